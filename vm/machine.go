// Package vm implements the CRISP-32 virtual machine core.
package vm

import (
	"fmt"

	"github.com/MannyPeterson/crisp32/insts"
)

// StepResult represents the result of executing a single cycle.
type StepResult struct {
	// Inst is the instruction executed this cycle, nil when the cycle was
	// consumed by an interrupt dispatch or failed before decode.
	Inst *insts.Instruction

	// Dispatched is true when the cycle delivered an interrupt instead of
	// executing an instruction.
	Dispatched bool

	// Fault is the guest-visible fault raised during this cycle, if any.
	// The corresponding interrupt is already pending.
	Fault *Fault

	// Err is set for engine-fatal conditions; Run exits immediately.
	Err error
}

// Machine is the CRISP-32 virtual machine state: register file, program
// counter, memory window, MMU and interrupt subsystem. It is exclusively
// owned by its caller; nothing inside the engine shares mutable state with
// the outside.
type Machine struct {
	regFile *RegFile
	memory  *Memory
	mmu     *MMU
	ints    *InterruptController
	decoder *insts.Decoder

	running bool

	stepCount uint64
	maxSteps  uint64 // 0 means no limit
}

// Option is a functional option for configuring the Machine.
type Option func(*Machine)

// WithMaxSteps caps the number of cycles Run may execute. A value of 0
// means no limit. Exceeding the cap ends Run with an error.
func WithMaxSteps(max uint64) Option {
	return func(m *Machine) {
		m.maxSteps = max
	}
}

// WithAccessListener installs an observer for guest memory traffic. The
// listener sees physical addresses after translation and must not mutate
// machine state.
func WithAccessListener(l AccessListener) Option {
	return func(m *Machine) {
		m.memory.SetListener(l)
	}
}

// NewMachine creates a machine over the given guest memory buffer. The
// machine starts halted, in kernel mode, with paging and interrupts
// disabled. The buffer must outlive the machine.
func NewMachine(memory []byte, opts ...Option) *Machine {
	mem := NewMemory(memory)
	m := &Machine{
		regFile: &RegFile{},
		memory:  mem,
		mmu:     NewMMU(mem),
		ints:    &InterruptController{},
		decoder: insts.NewDecoder(),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// RegFile returns the machine's register file.
func (m *Machine) RegFile() *RegFile {
	return m.regFile
}

// Memory returns the machine's memory window.
func (m *Machine) Memory() *Memory {
	return m.memory
}

// MMU returns the machine's address translator.
func (m *Machine) MMU() *MMU {
	return m.mmu
}

// Interrupts returns the machine's interrupt controller.
func (m *Machine) Interrupts() *InterruptController {
	return m.ints
}

// Running reports whether the machine will execute further cycles.
func (m *Machine) Running() bool {
	return m.running
}

// SetRunning overrides the running flag. A host may use this to cancel
// execution between steps, or to resume after a halting fault once a
// handler is installed.
func (m *Machine) SetRunning(running bool) {
	m.running = running
}

// StepCount returns the number of cycles executed.
func (m *Machine) StepCount() uint64 {
	return m.stepCount
}

// Reset clears the registers, PC, privilege and paging flags and halts the
// machine. Memory, the interrupt subsystem and the page-table registers
// are untouched.
func (m *Machine) Reset() {
	*m.regFile = RegFile{}
	m.running = false
	m.mmu.KernelMode = true
	m.mmu.PagingEnabled = false
	m.stepCount = 0
}

// LoadProgram copies a raw binary image into guest memory at addr and sets
// the PC to addr. The image format carries no headers, relocations or
// entry-point record.
func (m *Machine) LoadProgram(addr uint32, image []byte) error {
	if uint64(addr)+uint64(len(image)) > uint64(m.memory.Size()) {
		return fmt.Errorf("program of %d bytes does not fit at 0x%08X", len(image), addr)
	}
	copy(m.memory.Bytes()[addr:], image)
	m.regFile.PC = addr
	return nil
}

// Raise marks interrupt n pending.
func (m *Machine) Raise(n uint8) {
	m.ints.Raise(n)
}

// SetInterruptHandler writes a handler address into the interrupt vector
// table entry for interrupt n. The entry's reserved bytes are preserved.
func (m *Machine) SetInterruptHandler(n uint8, handler uint32) error {
	return m.memory.Write32(uint32(n)*IVTEntrySize, handler)
}

// Step executes one cycle: interrupt-check, alignment-check, fetch, decode,
// execute. Dispatching an interrupt consumes the whole cycle.
func (m *Machine) Step() StepResult {
	if m.maxSteps > 0 && m.stepCount >= m.maxSteps {
		m.running = false
		return StepResult{Err: fmt.Errorf("max steps reached (%d)", m.maxSteps)}
	}
	m.stepCount++

	dispatched, err := m.dispatchInterrupt()
	if err != nil {
		m.running = false
		return StepResult{Err: err}
	}
	if dispatched {
		return StepResult{Dispatched: true}
	}

	pc := m.regFile.PC
	if pc%insts.InstructionSize != 0 {
		f := &Fault{Interrupt: IntMemFault, Addr: pc, Exec: true}
		m.Raise(f.Interrupt)
		m.running = false
		return StepResult{Fault: f}
	}

	physPC, err := m.mmu.Translate(pc, false, true)
	if err != nil {
		f := err.(*Fault)
		m.Raise(f.Interrupt)
		m.running = false
		return StepResult{
			Fault: f,
			Err:   fmt.Errorf("page fault on instruction fetch at PC=0x%08X", pc),
		}
	}

	word, err := m.memory.Fetch(physPC)
	if err != nil {
		f := err.(*Fault)
		m.Raise(f.Interrupt)
		m.running = false
		return StepResult{
			Fault: f,
			Err:   fmt.Errorf("instruction fetch out of bounds at PC=0x%08X", pc),
		}
	}

	inst := m.decoder.Decode(word)

	// PC advances before the instruction body runs; branches and jumps
	// compute their targets from the post-increment PC.
	m.regFile.PC += insts.InstructionSize

	result := m.execute(inst)
	result.Inst = inst

	// R0 is hardwired to zero.
	m.regFile.R[0] = 0

	return result
}

// Run executes cycles until the machine halts or a step fails. The machine
// state remains fully inspectable after any failure.
func (m *Machine) Run() error {
	m.running = true

	for m.running {
		result := m.Step()
		if result.Err != nil {
			return result.Err
		}
	}

	return nil
}

// dispatchInterrupt delivers the highest-priority pending interrupt, if
// interrupts are enabled. It reports whether a dispatch consumed the cycle.
// An unreadable IVT entry or an out-of-bounds register snapshot is fatal.
func (m *Machine) dispatchInterrupt() (bool, error) {
	if !m.ints.Enabled {
		return false, nil
	}

	n, ok := m.ints.lowestPending()
	if !ok {
		return false, nil
	}

	m.ints.clear(n)
	m.ints.SavedPC = m.regFile.PC
	m.mmu.KernelMode = true

	// Push the snapshot; R29 is recorded post-decrement so the snapshot
	// itself holds the pushed stack pointer.
	sp := m.regFile.Read(RegSP) - SnapshotSize
	m.regFile.Write(RegSP, sp)
	m.ints.SavedRegsAddr = sp

	if uint64(sp)+SnapshotSize > uint64(m.memory.Size()) {
		return false, fmt.Errorf(
			"interrupt %d: register snapshot at 0x%08X exceeds memory bounds", n, sp)
	}
	for i := uint8(0); i < NumRegs; i++ {
		if err := m.memory.Write32(sp+4*uint32(i), m.regFile.Read(i)); err != nil {
			return false, fmt.Errorf("interrupt %d: register snapshot failed: %w", n, err)
		}
	}

	m.ints.Enabled = false
	m.regFile.Write(RegArg0, uint32(n))

	handler, err := m.memory.Read32(uint32(n) * IVTEntrySize)
	if err != nil {
		return false, fmt.Errorf("interrupt %d: IVT entry unreadable: %w", n, err)
	}
	m.regFile.PC = handler

	return true, nil
}
