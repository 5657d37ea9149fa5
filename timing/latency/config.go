package latency

import (
	"encoding/json"
	"fmt"
	"os"
)

// TimingConfig holds per-family cycle costs for the CRISP-32 timing model.
// The defaults describe a small single-issue in-order core.
type TimingConfig struct {
	// ALULatency is the execution latency for arithmetic, logic,
	// comparison and shift operations. Default: 1 cycle.
	ALULatency uint64 `json:"alu_latency"`

	// BranchLatency is the execution latency for branches and jumps.
	// Default: 1 cycle.
	BranchLatency uint64 `json:"branch_latency"`

	// LoadLatency is the latency for loads assuming a data-cache hit.
	// Default: 2 cycles.
	LoadLatency uint64 `json:"load_latency"`

	// StoreLatency is the latency for stores. Default: 1 cycle.
	StoreLatency uint64 `json:"store_latency"`

	// MultiplyLatency is the latency for MUL/MULH/MULHU. Default: 3 cycles.
	MultiplyLatency uint64 `json:"multiply_latency"`

	// DivideLatency is the latency for DIV/DIVU/REM/REMU. Default: 12
	// cycles.
	DivideLatency uint64 `json:"divide_latency"`

	// SystemLatency is the latency for SYSCALL/BREAK and the interrupt
	// control operations. Default: 1 cycle.
	SystemLatency uint64 `json:"system_latency"`

	// DispatchLatency is the cost of an interrupt dispatch cycle: the
	// context save plus the vector fetch. Default: 34 cycles (32 stores
	// plus IVT read plus redirect).
	DispatchLatency uint64 `json:"dispatch_latency"`

	// CacheHitLatency is the data-cache hit latency used by the cache
	// model. Default: 2 cycles.
	CacheHitLatency uint64 `json:"cache_hit_latency"`

	// MemoryLatency is the cost of a cache miss to guest memory.
	// Default: 20 cycles.
	MemoryLatency uint64 `json:"memory_latency"`
}

// DefaultTimingConfig returns a TimingConfig with the default values.
func DefaultTimingConfig() *TimingConfig {
	return &TimingConfig{
		ALULatency:      1,
		BranchLatency:   1,
		LoadLatency:     2,
		StoreLatency:    1,
		MultiplyLatency: 3,
		DivideLatency:   12,
		SystemLatency:   1,
		DispatchLatency: 34,
		CacheHitLatency: 2,
		MemoryLatency:   20,
	}
}

// LoadConfig loads a TimingConfig from a JSON file. Missing fields keep
// their defaults.
func LoadConfig(path string) (*TimingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read timing config file: %w", err)
	}

	config := DefaultTimingConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse timing config: %w", err)
	}

	return config, nil
}

// SaveConfig writes a TimingConfig to a JSON file.
func (c *TimingConfig) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize timing config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write timing config file: %w", err)
	}

	return nil
}

// Validate checks that all latency values are valid (> 0).
func (c *TimingConfig) Validate() error {
	if c.ALULatency == 0 {
		return fmt.Errorf("alu_latency must be > 0")
	}
	if c.BranchLatency == 0 {
		return fmt.Errorf("branch_latency must be > 0")
	}
	if c.LoadLatency == 0 {
		return fmt.Errorf("load_latency must be > 0")
	}
	if c.StoreLatency == 0 {
		return fmt.Errorf("store_latency must be > 0")
	}
	if c.MultiplyLatency == 0 {
		return fmt.Errorf("multiply_latency must be > 0")
	}
	if c.DivideLatency == 0 {
		return fmt.Errorf("divide_latency must be > 0")
	}
	if c.SystemLatency == 0 {
		return fmt.Errorf("system_latency must be > 0")
	}
	if c.DispatchLatency == 0 {
		return fmt.Errorf("dispatch_latency must be > 0")
	}
	if c.CacheHitLatency == 0 {
		return fmt.Errorf("cache_hit_latency must be > 0")
	}
	if c.MemoryLatency == 0 {
		return fmt.Errorf("memory_latency must be > 0")
	}
	return nil
}

// Clone returns a copy of the TimingConfig.
func (c *TimingConfig) Clone() *TimingConfig {
	clone := *c
	return &clone
}
