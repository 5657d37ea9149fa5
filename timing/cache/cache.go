// Package cache provides a cache model for CRISP-32 timing estimation,
// built on Akita cache components.
//
// The model tracks tags, validity, dirtiness and LRU state only; data
// stays in guest memory. Architectural results never depend on it.
package cache

import (
	akitacache "github.com/sarchlab/akita/v4/mem/cache"
)

// Config holds cache configuration parameters.
type Config struct {
	// Size in bytes
	Size int
	// Associativity (number of ways)
	Associativity int
	// BlockSize in bytes (cache line size)
	BlockSize int
	// HitLatency in cycles
	HitLatency uint64
	// MissLatency in cycles (includes guest memory access time)
	MissLatency uint64
}

// DefaultDCacheConfig returns the default data-cache configuration: a
// small 8 KiB 2-way cache suited to the single-issue core the latency
// model describes.
func DefaultDCacheConfig() Config {
	return Config{
		Size:          8 * 1024,
		Associativity: 2,
		BlockSize:     32,
		HitLatency:    2,
		MissLatency:   20,
	}
}

// DefaultICacheConfig returns the default instruction-cache configuration.
func DefaultICacheConfig() Config {
	return Config{
		Size:          8 * 1024,
		Associativity: 2,
		BlockSize:     32,
		HitLatency:    1,
		MissLatency:   20,
	}
}

// AccessResult contains the result of a cache access.
type AccessResult struct {
	// Hit indicates whether the access was a cache hit.
	Hit bool
	// Latency is the number of cycles this access takes.
	Latency uint64
	// Evicted is true if a valid block was evicted.
	Evicted bool
	// EvictedAddr is the address of the evicted block (if Evicted is true).
	EvictedAddr uint32
	// Writeback is true if the evicted block was dirty.
	Writeback bool
}

// Statistics holds cache performance statistics.
type Statistics struct {
	Reads      uint64
	Writes     uint64
	Hits       uint64
	Misses     uint64
	Evictions  uint64
	Writebacks uint64
}

// Cache models a write-allocate, writeback cache. The Akita cache
// directory manages tags, validity and LRU state.
type Cache struct {
	config    Config
	directory *akitacache.DirectoryImpl
	stats     Statistics
}

// New creates a new cache with the given configuration.
func New(config Config) *Cache {
	numSets := config.Size / (config.Associativity * config.BlockSize)

	return &Cache{
		config: config,
		directory: akitacache.NewDirectory(
			numSets,
			config.Associativity,
			config.BlockSize,
			akitacache.NewLRUVictimFinder(),
		),
	}
}

// Config returns the cache configuration.
func (c *Cache) Config() Config {
	return c.config
}

// Stats returns cache statistics.
func (c *Cache) Stats() Statistics {
	return c.stats
}

// ResetStats clears cache statistics.
func (c *Cache) ResetStats() {
	c.stats = Statistics{}
}

func (c *Cache) blockAddr(addr uint32) uint64 {
	return uint64(addr) / uint64(c.config.BlockSize) * uint64(c.config.BlockSize)
}

// Access runs one access through the model and returns its latency.
// Write-allocate: a write miss fetches the block before dirtying it.
func (c *Cache) Access(addr uint32, isWrite bool) AccessResult {
	if isWrite {
		c.stats.Writes++
	} else {
		c.stats.Reads++
	}

	blockAddr := c.blockAddr(addr)
	block := c.directory.Lookup(0, blockAddr)

	if block != nil && block.IsValid {
		c.stats.Hits++
		c.directory.Visit(block)
		if isWrite {
			block.IsDirty = true
		}
		return AccessResult{Hit: true, Latency: c.config.HitLatency}
	}

	c.stats.Misses++
	return c.handleMiss(blockAddr, isWrite)
}

// Read performs a read access.
func (c *Cache) Read(addr uint32) AccessResult {
	return c.Access(addr, false)
}

// Write performs a write access.
func (c *Cache) Write(addr uint32) AccessResult {
	return c.Access(addr, true)
}

// handleMiss allocates the block, evicting a victim if necessary.
func (c *Cache) handleMiss(blockAddr uint64, isWrite bool) AccessResult {
	result := AccessResult{
		Hit:     false,
		Latency: c.config.MissLatency,
	}

	victim := c.directory.FindVictim(blockAddr)
	if victim == nil {
		return result
	}

	if victim.IsValid {
		c.stats.Evictions++
		result.Evicted = true
		result.EvictedAddr = uint32(victim.Tag)

		if victim.IsDirty {
			c.stats.Writebacks++
			result.Writeback = true
		}
	}

	victim.Tag = blockAddr
	victim.IsValid = true
	victim.IsDirty = isWrite

	c.directory.Visit(victim)

	return result
}

// Invalidate marks a cache line as invalid.
func (c *Cache) Invalidate(addr uint32) {
	block := c.directory.Lookup(0, c.blockAddr(addr))
	if block != nil && block.IsValid {
		block.IsValid = false
		block.IsDirty = false
	}
}

// Flush counts writebacks for all dirty blocks and invalidates everything.
func (c *Cache) Flush() {
	sets := c.directory.GetSets()
	for _, set := range sets {
		for _, block := range set.Blocks {
			if block.IsValid && block.IsDirty {
				c.stats.Writebacks++
			}
			block.IsValid = false
			block.IsDirty = false
		}
	}
}

// Reset invalidates all cache lines and clears statistics.
func (c *Cache) Reset() {
	c.directory.Reset()
	c.stats = Statistics{}
}
