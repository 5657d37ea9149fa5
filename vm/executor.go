// Package vm implements the CRISP-32 virtual machine core.
package vm

import (
	"github.com/MannyPeterson/crisp32/insts"
)

// execute dispatches a decoded instruction by family. The PC has already
// been advanced past the instruction.
func (m *Machine) execute(inst *insts.Instruction) StepResult {
	switch inst.Format {
	case insts.FormatRType:
		m.executeRType(inst)
	case insts.FormatIType:
		m.executeIType(inst)
	case insts.FormatLUI:
		m.regFile.Write(inst.Rt, inst.Imm<<16)
	case insts.FormatShiftImm:
		m.executeShiftImm(inst)
	case insts.FormatLoad:
		return m.executeLoad(inst)
	case insts.FormatStore:
		return m.executeStore(inst)
	case insts.FormatBranch:
		m.executeBranch(inst)
	case insts.FormatJump:
		m.executeJump(inst)
	case insts.FormatSystem:
		return m.executeSystem(inst)
	case insts.FormatIntCtl:
		return m.executeIntCtl(inst)
	case insts.FormatMMUCtl:
		return m.executeMMUCtl(inst)
	default:
		f := &Fault{Interrupt: IntIllegalOp, Addr: m.regFile.PC - insts.InstructionSize, Exec: true}
		m.Raise(f.Interrupt)
		m.running = false
		return StepResult{Fault: f}
	}
	return StepResult{}
}

// executeRType executes register-register operations. All arithmetic wraps;
// no instruction traps on overflow.
func (m *Machine) executeRType(inst *insts.Instruction) {
	rf := m.regFile
	a := rf.Read(inst.Rs)
	b := rf.Read(inst.Rt)

	var result uint32
	switch inst.Op {
	case insts.OpADD, insts.OpADDU:
		result = a + b
	case insts.OpSUB, insts.OpSUBU:
		result = a - b
	case insts.OpAND:
		result = a & b
	case insts.OpOR:
		result = a | b
	case insts.OpXOR:
		result = a ^ b
	case insts.OpNOR:
		result = ^(a | b)
	case insts.OpSLT:
		if int32(a) < int32(b) {
			result = 1
		}
	case insts.OpSLTU:
		if a < b {
			result = 1
		}
	case insts.OpSLLV:
		result = b << (a & 0x1F)
	case insts.OpSRLV:
		result = b >> (a & 0x1F)
	case insts.OpSRAV:
		result = uint32(int32(b) >> (a & 0x1F))
	case insts.OpMUL:
		// Low 32 bits of the product; signed and unsigned agree.
		result = a * b
	case insts.OpMULH:
		result = uint32(int64(int32(a)) * int64(int32(b)) >> 32)
	case insts.OpMULHU:
		result = uint32(uint64(a) * uint64(b) >> 32)
	case insts.OpDIV:
		// Division by zero yields 0. INT32_MIN / -1 wraps to INT32_MIN.
		if b != 0 {
			result = uint32(int32(a) / int32(b))
		}
	case insts.OpDIVU:
		if b != 0 {
			result = a / b
		}
	case insts.OpREM:
		if b != 0 {
			result = uint32(int32(a) % int32(b))
		}
	case insts.OpREMU:
		if b != 0 {
			result = a % b
		}
	}

	rf.Write(inst.Rd, result)
}

// executeIType executes register-immediate operations. The destination is
// the rt field.
func (m *Machine) executeIType(inst *insts.Instruction) {
	rf := m.regFile
	a := rf.Read(inst.Rs)
	imm := inst.Imm

	var result uint32
	switch inst.Op {
	case insts.OpADDI, insts.OpADDIU:
		result = a + imm
	case insts.OpANDI:
		result = a & imm
	case insts.OpORI:
		result = a | imm
	case insts.OpXORI:
		result = a ^ imm
	case insts.OpSLTI:
		if int32(a) < int32(imm) {
			result = 1
		}
	case insts.OpSLTIU:
		if a < imm {
			result = 1
		}
	}

	rf.Write(inst.Rt, result)
}

// executeShiftImm executes constant-amount shifts. The shift count is the
// immediate masked to 5 bits.
func (m *Machine) executeShiftImm(inst *insts.Instruction) {
	rf := m.regFile
	v := rf.Read(inst.Rt)
	shamt := inst.Imm & 0x1F

	var result uint32
	switch inst.Op {
	case insts.OpSLL:
		result = v << shamt
	case insts.OpSRL:
		result = v >> shamt
	case insts.OpSRA:
		result = uint32(int32(v) >> shamt)
	}

	rf.Write(inst.Rd, result)
}

// executeLoad executes loads. The effective address is regs[rs]+imm,
// translated as a data read. A fault aborts the instruction without
// modifying any register.
func (m *Machine) executeLoad(inst *insts.Instruction) StepResult {
	ea := m.regFile.Read(inst.Rs) + inst.Imm

	phys, err := m.mmu.Translate(ea, false, false)
	if err != nil {
		return m.dataFault(err)
	}

	var value uint32
	switch inst.Op {
	case insts.OpLW:
		v, err := m.memory.Read32(phys)
		if err != nil {
			return m.dataFault(err)
		}
		value = v
	case insts.OpLH:
		v, err := m.memory.Read16(phys)
		if err != nil {
			return m.dataFault(err)
		}
		value = uint32(int32(int16(v)))
	case insts.OpLHU:
		v, err := m.memory.Read16(phys)
		if err != nil {
			return m.dataFault(err)
		}
		value = uint32(v)
	case insts.OpLB:
		v, err := m.memory.Read8(phys)
		if err != nil {
			return m.dataFault(err)
		}
		value = uint32(int32(int8(v)))
	case insts.OpLBU:
		v, err := m.memory.Read8(phys)
		if err != nil {
			return m.dataFault(err)
		}
		value = uint32(v)
	}

	m.regFile.Write(inst.Rt, value)
	return StepResult{}
}

// executeStore executes stores. The register value is truncated to the
// access width.
func (m *Machine) executeStore(inst *insts.Instruction) StepResult {
	ea := m.regFile.Read(inst.Rs) + inst.Imm
	v := m.regFile.Read(inst.Rt)

	phys, err := m.mmu.Translate(ea, true, false)
	if err != nil {
		return m.dataFault(err)
	}

	switch inst.Op {
	case insts.OpSW:
		err = m.memory.Write32(phys, v)
	case insts.OpSH:
		err = m.memory.Write16(phys, uint16(v))
	case insts.OpSB:
		err = m.memory.Write8(phys, uint8(v))
	}
	if err != nil {
		return m.dataFault(err)
	}

	return StepResult{}
}

// dataFault raises the interrupt for a fault on a data access. The
// instruction is aborted but the machine keeps running; the next step
// dispatches the handler if interrupts are enabled.
func (m *Machine) dataFault(err error) StepResult {
	f := err.(*Fault)
	m.Raise(f.Interrupt)
	return StepResult{Fault: f}
}

// executeBranch executes conditional branches. There is no delay slot: the
// target is the post-increment PC plus the immediate offset.
func (m *Machine) executeBranch(inst *insts.Instruction) {
	rf := m.regFile
	a := rf.Read(inst.Rs)

	var taken bool
	switch inst.Op {
	case insts.OpBEQ:
		taken = a == rf.Read(inst.Rt)
	case insts.OpBNE:
		taken = a != rf.Read(inst.Rt)
	case insts.OpBLEZ:
		taken = int32(a) <= 0
	case insts.OpBGTZ:
		taken = int32(a) > 0
	case insts.OpBLTZ:
		taken = int32(a) < 0
	case insts.OpBGEZ:
		taken = int32(a) >= 0
	}

	if taken {
		rf.PC += inst.Imm
	}
}

// executeJump executes jumps. JAL and JALR link the post-increment PC.
// Register jump targets are not alignment-checked here; a misaligned PC
// faults at the start of the next fetch.
func (m *Machine) executeJump(inst *insts.Instruction) {
	rf := m.regFile

	switch inst.Op {
	case insts.OpJ:
		rf.PC = inst.Imm
	case insts.OpJAL:
		rf.Write(RegRA, rf.PC)
		rf.PC = inst.Imm
	case insts.OpJR:
		rf.PC = rf.Read(inst.Rs)
	case insts.OpJALR:
		rf.Write(inst.Rd, rf.PC)
		rf.PC = rf.Read(inst.Rs)
	}
}

// executeSystem executes NOP, SYSCALL and BREAK. SYSCALL and BREAK raise
// their interrupts and halt; R4 carries the interrupt number out to the
// host. The raised interrupt is not dispatched by the current run.
func (m *Machine) executeSystem(inst *insts.Instruction) StepResult {
	switch inst.Op {
	case insts.OpNOP:
	case insts.OpSYSCALL:
		m.Raise(IntSyscall)
		m.regFile.Write(RegArg0, uint32(IntSyscall))
		m.running = false
	case insts.OpBREAK:
		m.Raise(IntBreak)
		m.regFile.Write(RegArg0, uint32(IntBreak))
		m.running = false
	}
	return StepResult{}
}

// executeIntCtl executes interrupt-control operations. EI, DI and IRET are
// privileged; RAISE and GETPC are not.
func (m *Machine) executeIntCtl(inst *insts.Instruction) StepResult {
	switch inst.Op {
	case insts.OpEI:
		if r := m.requireKernel(); r.Fault != nil {
			return r
		}
		m.ints.Enabled = true
	case insts.OpDI:
		if r := m.requireKernel(); r.Fault != nil {
			return r
		}
		m.ints.Enabled = false
	case insts.OpIRET:
		if r := m.requireKernel(); r.Fault != nil {
			return r
		}
		m.interruptReturn()
	case insts.OpRAISE:
		m.Raise(uint8(inst.Imm & 0xFF))
	case insts.OpGETPC:
		m.regFile.Write(inst.Rd, m.ints.SavedPC)
	}
	return StepResult{}
}

// interruptReturn restores the context saved by dispatch: PC, all 32
// registers from the guest-stack snapshot, and the global interrupt
// enable. kernel_mode is deliberately not restored; a handler returning to
// user mode must drop privilege via ENTER_USER before IRET.
func (m *Machine) interruptReturn() {
	m.regFile.PC = m.ints.SavedPC

	base := m.ints.SavedRegsAddr
	if uint64(base)+SnapshotSize <= uint64(m.memory.Size()) {
		for i := uint8(0); i < NumRegs; i++ {
			v, err := m.memory.Read32(base + 4*uint32(i))
			if err != nil {
				break
			}
			m.regFile.Write(i, v)
		}
	}

	m.ints.Enabled = true
}

// executeMMUCtl executes paging and privilege control. GETMODE is the only
// unprivileged operation in the family.
func (m *Machine) executeMMUCtl(inst *insts.Instruction) StepResult {
	switch inst.Op {
	case insts.OpENABLE_PAGING:
		if r := m.requireKernel(); r.Fault != nil {
			return r
		}
		m.mmu.PagingEnabled = true
	case insts.OpDISABLE_PAGING:
		if r := m.requireKernel(); r.Fault != nil {
			return r
		}
		m.mmu.PagingEnabled = false
	case insts.OpSET_PTBR:
		if r := m.requireKernel(); r.Fault != nil {
			return r
		}
		m.mmu.PTBR = m.regFile.Read(inst.Rd)
		m.mmu.NumPages = m.regFile.Read(inst.Rt)
	case insts.OpENTER_USER:
		if r := m.requireKernel(); r.Fault != nil {
			return r
		}
		m.mmu.KernelMode = false
	case insts.OpGETMODE:
		var mode uint32
		if m.mmu.KernelMode {
			mode = 1
		}
		m.regFile.Write(inst.Rd, mode)
	}
	return StepResult{}
}

// requireKernel raises a privilege violation when executed in user mode.
// The machine keeps running; the instruction becomes a no-op.
func (m *Machine) requireKernel() StepResult {
	if m.mmu.KernelMode {
		return StepResult{}
	}
	f := &Fault{Interrupt: IntPrivilege, Addr: m.regFile.PC - insts.InstructionSize, Exec: true}
	m.Raise(f.Interrupt)
	return StepResult{Fault: f}
}
