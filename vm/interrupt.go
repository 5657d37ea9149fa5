// Package vm implements the CRISP-32 virtual machine core.
package vm

// NumInterrupts is the number of interrupt vectors.
const NumInterrupts = 256

// IVTEntrySize is the size of one interrupt vector table entry: 4 bytes of
// handler address followed by 4 reserved bytes the VM must preserve.
const IVTEntrySize = 8

// SnapshotSize is the size of the register snapshot pushed to the guest
// stack during dispatch: 32 registers as little-endian 32-bit words. The
// layout is part of the guest ABI and must be bit-exact.
const SnapshotSize = NumRegs * 4

// InterruptController holds the pending bitmap and the dispatch/return
// state. Dispatch itself runs on the Machine, which owns the registers and
// memory the context save touches.
type InterruptController struct {
	// Enabled is the global interrupt mask. Initially false.
	Enabled bool

	// SavedPC is the PC of the preempted instruction, set during dispatch.
	SavedPC uint32

	// SavedRegsAddr is the guest address of the register snapshot while a
	// handler runs.
	SavedRegsAddr uint32

	pending [NumInterrupts / 8]uint8
}

// Raise marks interrupt n pending. Idempotent; callable from any component
// at any time, including mid-cycle by a fault.
func (ic *InterruptController) Raise(n uint8) {
	ic.pending[n/8] |= 1 << (n % 8)
}

// Pending reports whether interrupt n is pending.
func (ic *InterruptController) Pending(n uint8) bool {
	return ic.pending[n/8]&(1<<(n%8)) != 0
}

// clear removes interrupt n from the pending set.
func (ic *InterruptController) clear(n uint8) {
	ic.pending[n/8] &^= 1 << (n % 8)
}

// lowestPending scans for the highest-priority pending interrupt. Lower
// index is higher priority. Index 255 is reserved and never dispatched.
func (ic *InterruptController) lowestPending() (uint8, bool) {
	for n := 0; n < NumInterrupts-1; n++ {
		if ic.pending[n/8]&(1<<(n%8)) != 0 {
			return uint8(n), true
		}
	}
	return 0, false
}
