// Package vm implements the CRISP-32 virtual machine core.
package vm

import "fmt"

// Guest-visible interrupt numbers. Numbers 16..254 are available to guest
// software via RAISE; 255 is reserved and never dispatched.
const (
	IntIllegalOp uint8 = 1 // unknown opcode
	IntMemFault  uint8 = 2 // misaligned PC or out-of-bounds access
	IntSyscall   uint8 = 4 // SYSCALL instruction
	IntBreak     uint8 = 5 // BREAK instruction
	IntPrivilege uint8 = 7 // privileged instruction in user mode
	IntPageFault uint8 = 8 // MMU translation denial
)

// Fault is a guest-visible failure. Raising a fault sets the corresponding
// bit in the pending bitmap; whether the machine also halts depends on where
// the fault occurred (see Machine.Step).
type Fault struct {
	// Interrupt is the interrupt number the fault raises.
	Interrupt uint8

	// Addr is the guest address involved, when the fault concerns memory.
	Addr uint32

	// Write is true for faults on a store access.
	Write bool

	// Exec is true for faults on an instruction fetch.
	Exec bool
}

// Error implements the error interface.
func (f *Fault) Error() string {
	kind := "read"
	switch {
	case f.Write:
		kind = "write"
	case f.Exec:
		kind = "exec"
	}
	return fmt.Sprintf("fault: interrupt %d (%s at 0x%08X)", f.Interrupt, kind, f.Addr)
}
