// Package timing estimates cycle counts for CRISP-32 execution. A Tracker
// observes the machine's memory traffic through the access-listener hook
// and charges per-instruction costs from the latency table plus cache
// stall cycles from the cache models. Timing is observational only: it
// never alters architectural state.
package timing

import (
	"fmt"
	"io"

	"github.com/MannyPeterson/crisp32/timing/cache"
	"github.com/MannyPeterson/crisp32/timing/latency"
	"github.com/MannyPeterson/crisp32/vm"
)

// Stats holds the counters accumulated over a tracked run.
type Stats struct {
	// Instructions is the number of guest instructions executed.
	Instructions uint64
	// Dispatches is the number of interrupt dispatch cycles.
	Dispatches uint64
	// ExecCycles is the summed per-instruction execution cost.
	ExecCycles uint64
	// FetchStalls is the cycles lost to instruction-cache misses.
	FetchStalls uint64
	// MemStalls is the cycles lost to data-cache misses.
	MemStalls uint64
}

// Cycles returns the estimated total cycle count.
func (s Stats) Cycles() uint64 {
	return s.ExecCycles + s.FetchStalls + s.MemStalls
}

// CPI returns cycles per instruction.
func (s Stats) CPI() float64 {
	if s.Instructions == 0 {
		return 0
	}
	return float64(s.Cycles()) / float64(s.Instructions)
}

// Tracker accumulates timing estimates for a machine run.
type Tracker struct {
	table  *latency.Table
	icache *cache.Cache
	dcache *cache.Cache

	stats Stats
}

// NewTracker creates a tracker with the given latency table and default
// cache configurations.
func NewTracker(table *latency.Table) *Tracker {
	icfg := cache.DefaultICacheConfig()
	dcfg := cache.DefaultDCacheConfig()
	icfg.MissLatency = table.Config().MemoryLatency
	dcfg.HitLatency = table.Config().CacheHitLatency
	dcfg.MissLatency = table.Config().MemoryLatency

	return &Tracker{
		table:  table,
		icache: cache.New(icfg),
		dcache: cache.New(dcfg),
	}
}

// Listener returns the access listener to install on the machine with
// vm.WithAccessListener. Fetches go to the instruction cache, everything
// else (including page-table walks) to the data cache.
func (t *Tracker) Listener() vm.AccessListener {
	return func(addr uint32, width int, kind vm.AccessKind) {
		switch kind {
		case vm.AccessFetch:
			r := t.icache.Read(addr)
			if !r.Hit {
				t.stats.FetchStalls += r.Latency - t.icache.Config().HitLatency
			}
		case vm.AccessRead:
			r := t.dcache.Read(addr)
			if !r.Hit {
				t.stats.MemStalls += r.Latency - t.dcache.Config().HitLatency
			}
		case vm.AccessWrite:
			r := t.dcache.Write(addr)
			if !r.Hit {
				t.stats.MemStalls += r.Latency - t.dcache.Config().HitLatency
			}
		}
	}
}

// Observe charges the cost of one executed cycle.
func (t *Tracker) Observe(result vm.StepResult) {
	switch {
	case result.Dispatched:
		t.stats.Dispatches++
		t.stats.ExecCycles += t.table.DispatchLatency()
	case result.Inst != nil:
		t.stats.Instructions++
		t.stats.ExecCycles += t.table.GetLatency(result.Inst)
	}
}

// Run executes the machine to completion, observing every cycle.
func (t *Tracker) Run(m *vm.Machine) error {
	m.SetRunning(true)

	for m.Running() {
		result := m.Step()
		t.Observe(result)
		if result.Err != nil {
			return result.Err
		}
	}

	return nil
}

// Stats returns the accumulated counters.
func (t *Tracker) Stats() Stats {
	return t.stats
}

// ICacheStats returns the instruction-cache statistics.
func (t *Tracker) ICacheStats() cache.Statistics {
	return t.icache.Stats()
}

// DCacheStats returns the data-cache statistics.
func (t *Tracker) DCacheStats() cache.Statistics {
	return t.dcache.Stats()
}

// Report writes a human-readable timing summary.
func (t *Tracker) Report(w io.Writer) {
	s := t.stats
	total := s.Cycles()
	if total == 0 {
		total = 1
	}

	fmt.Fprintf(w, "Total Instructions: %d\n", s.Instructions)
	fmt.Fprintf(w, "Interrupt Dispatches: %d\n", s.Dispatches)
	fmt.Fprintf(w, "Total Cycles: %d\n", s.Cycles())
	fmt.Fprintf(w, "CPI: %.2f\n", s.CPI())
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "Breakdown:\n")
	fmt.Fprintf(w, "  Execute:      %6d cycles (%5.1f%%)\n",
		s.ExecCycles, 100.0*float64(s.ExecCycles)/float64(total))
	fmt.Fprintf(w, "  Fetch stalls: %6d cycles (%5.1f%%)\n",
		s.FetchStalls, 100.0*float64(s.FetchStalls)/float64(total))
	fmt.Fprintf(w, "  Memory stalls:%6d cycles (%5.1f%%)\n",
		s.MemStalls, 100.0*float64(s.MemStalls)/float64(total))
	fmt.Fprintf(w, "\n")
	ic, dc := t.icache.Stats(), t.dcache.Stats()
	fmt.Fprintf(w, "I-cache: %d hits, %d misses\n", ic.Hits, ic.Misses)
	fmt.Fprintf(w, "D-cache: %d hits, %d misses, %d writebacks\n",
		dc.Hits, dc.Misses, dc.Writebacks)
}
