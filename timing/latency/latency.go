// Package latency provides the instruction cost model for CRISP-32 timing
// estimation. Costs are per instruction family and configurable via
// TimingConfig.
package latency

import (
	"github.com/MannyPeterson/crisp32/insts"
)

// Table provides instruction latency lookups.
type Table struct {
	config *TimingConfig
}

// NewTable creates a latency table with the default timing values.
func NewTable() *Table {
	return &Table{
		config: DefaultTimingConfig(),
	}
}

// NewTableWithConfig creates a latency table with a custom configuration.
func NewTableWithConfig(config *TimingConfig) *Table {
	return &Table{
		config: config,
	}
}

// GetLatency returns the execution latency in cycles for the given
// instruction. Memory stall cycles are accounted separately by the cache
// model.
func (t *Table) GetLatency(inst *insts.Instruction) uint64 {
	if inst == nil {
		return 1
	}

	switch inst.Op {
	case insts.OpMUL, insts.OpMULH, insts.OpMULHU:
		return t.config.MultiplyLatency
	case insts.OpDIV, insts.OpDIVU, insts.OpREM, insts.OpREMU:
		return t.config.DivideLatency
	}

	switch inst.Format {
	case insts.FormatRType, insts.FormatIType, insts.FormatLUI, insts.FormatShiftImm:
		return t.config.ALULatency
	case insts.FormatBranch, insts.FormatJump:
		return t.config.BranchLatency
	case insts.FormatLoad:
		return t.config.LoadLatency
	case insts.FormatStore:
		return t.config.StoreLatency
	case insts.FormatSystem, insts.FormatIntCtl, insts.FormatMMUCtl:
		return t.config.SystemLatency
	default:
		return 1
	}
}

// DispatchLatency returns the cost of an interrupt dispatch cycle.
func (t *Table) DispatchLatency() uint64 {
	return t.config.DispatchLatency
}

// IsMemoryOp returns true if the instruction accesses data memory.
func (t *Table) IsMemoryOp(inst *insts.Instruction) bool {
	return t.IsLoadOp(inst) || t.IsStoreOp(inst)
}

// IsLoadOp returns true if the instruction is a load.
func (t *Table) IsLoadOp(inst *insts.Instruction) bool {
	return inst != nil && inst.Format == insts.FormatLoad
}

// IsStoreOp returns true if the instruction is a store.
func (t *Table) IsStoreOp(inst *insts.Instruction) bool {
	return inst != nil && inst.Format == insts.FormatStore
}

// IsBranchOp returns true if the instruction is a branch or jump.
func (t *Table) IsBranchOp(inst *insts.Instruction) bool {
	if inst == nil {
		return false
	}
	return inst.Format == insts.FormatBranch || inst.Format == insts.FormatJump
}

// Config returns the current timing configuration.
func (t *Table) Config() *TimingConfig {
	return t.config
}
