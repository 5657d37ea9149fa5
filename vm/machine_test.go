package vm_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/MannyPeterson/crisp32/insts"
	"github.com/MannyPeterson/crisp32/vm"
)

// word encodes one instruction into its 8-byte wire form.
func word(op insts.Op, rs, rt, rd uint8, imm uint32) []byte {
	w := insts.Encode(&insts.Instruction{Op: op, Rs: rs, Rt: rt, Rd: rd, Imm: imm})
	return w[:]
}

// program concatenates instruction words into an image.
func program(words ...[]byte) []byte {
	var image []byte
	for _, w := range words {
		image = append(image, w...)
	}
	return image
}

const loadAddr = 0x1000

var _ = Describe("Machine", func() {
	var machine *vm.Machine

	BeforeEach(func() {
		machine = vm.NewMachine(make([]byte, 64*1024))
	})

	load := func(words ...[]byte) {
		Expect(machine.LoadProgram(loadAddr, program(words...))).To(Succeed())
	}

	Describe("NewMachine", func() {
		It("should start halted in kernel mode with paging off", func() {
			Expect(machine.Running()).To(BeFalse())
			Expect(machine.MMU().KernelMode).To(BeTrue())
			Expect(machine.MMU().PagingEnabled).To(BeFalse())
			Expect(machine.Interrupts().Enabled).To(BeFalse())
			Expect(machine.RegFile().PC).To(Equal(uint32(0)))
		})
	})

	Describe("LoadProgram", func() {
		It("should copy the image and set the PC", func() {
			image := []byte{0xDE, 0xAD, 0xBE, 0xEF}

			Expect(machine.LoadProgram(0x2000, image)).To(Succeed())

			Expect(machine.RegFile().PC).To(Equal(uint32(0x2000)))
			Expect(machine.Memory().Bytes()[0x2000:0x2004]).To(Equal(image))
		})

		It("should reject images that do not fit", func() {
			err := machine.LoadProgram(0xFFFF, make([]byte, 16))
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Step", func() {
		It("should advance the PC by the instruction size", func() {
			load(word(insts.OpNOP, 0, 0, 0, 0))

			result := machine.Step()

			Expect(result.Err).ToNot(HaveOccurred())
			Expect(machine.RegFile().PC).To(Equal(uint32(loadAddr + 8)))
		})

		It("should keep R0 at zero even when an instruction targets it", func() {
			load(word(insts.OpADDI, 1, 0, 0, 99)) // ADDI R0, R1, 99

			machine.RegFile().Write(1, 5)
			machine.Step()

			Expect(machine.RegFile().Read(0)).To(Equal(uint32(0)))
		})

		It("should halt and raise ILLEGAL_OP on an unknown opcode", func() {
			machine.SetRunning(true)
			load([]byte{0xAA, 0, 0, 0, 0, 0, 0, 0})

			result := machine.Step()

			Expect(result.Fault).ToNot(BeNil())
			Expect(result.Fault.Interrupt).To(Equal(vm.IntIllegalOp))
			Expect(machine.Interrupts().Pending(vm.IntIllegalOp)).To(BeTrue())
			Expect(machine.Running()).To(BeFalse())
		})

		It("should halt and raise MEM_FAULT on a misaligned PC", func() {
			machine.SetRunning(true)
			machine.RegFile().PC = loadAddr + 4

			result := machine.Step()

			Expect(result.Fault).ToNot(BeNil())
			Expect(result.Fault.Interrupt).To(Equal(vm.IntMemFault))
			Expect(machine.Running()).To(BeFalse())
		})

		It("should fail the run on an out-of-bounds fetch", func() {
			machine.SetRunning(true)
			machine.RegFile().PC = machine.Memory().Size() // no room for a word

			result := machine.Step()

			Expect(result.Err).To(HaveOccurred())
			Expect(machine.Running()).To(BeFalse())
		})

		It("should abort a faulting load without touching the register", func() {
			load(word(insts.OpLW, 0, 5, 0, 0xFFFFF000)) // way past memory

			machine.RegFile().Write(5, 0xABCD)
			machine.SetRunning(true)
			result := machine.Step()

			Expect(result.Fault).ToNot(BeNil())
			Expect(result.Fault.Interrupt).To(Equal(vm.IntMemFault))
			Expect(machine.RegFile().Read(5)).To(Equal(uint32(0xABCD)))
			Expect(machine.Running()).To(BeTrue(), "data faults do not halt")
		})
	})

	Describe("Run", func() {
		It("should stop after the configured step cap", func() {
			capped := vm.NewMachine(make([]byte, 4096), vm.WithMaxSteps(4))
			// An infinite loop: J back to itself.
			Expect(capped.LoadProgram(0x100, program(
				word(insts.OpJ, 0, 0, 0, 0x100),
			))).To(Succeed())

			err := capped.Run()

			Expect(err).To(HaveOccurred())
			Expect(capped.StepCount()).To(Equal(uint64(4)))
		})
	})

	Describe("Reset", func() {
		It("should clear registers, PC and mode but keep memory", func() {
			load(word(insts.OpADDI, 0, 1, 0, 42), word(insts.OpSYSCALL, 0, 0, 0, 0))
			Expect(machine.Run()).To(Succeed())
			machine.MMU().PagingEnabled = true
			machine.MMU().KernelMode = false

			machine.Reset()

			Expect(machine.RegFile().Read(1)).To(Equal(uint32(0)))
			Expect(machine.RegFile().PC).To(Equal(uint32(0)))
			Expect(machine.MMU().KernelMode).To(BeTrue())
			Expect(machine.MMU().PagingEnabled).To(BeFalse())
			// The image survives.
			Expect(machine.Memory().Bytes()[loadAddr]).To(Equal(uint8(insts.OpADDI)))
			// So does the pending SYSCALL interrupt.
			Expect(machine.Interrupts().Pending(vm.IntSyscall)).To(BeTrue())
		})
	})

	Describe("end-to-end scenarios", func() {
		It("should run the arithmetic scenario", func() {
			load(
				word(insts.OpADDI, 0, 1, 0, 42), // ADDI R1, R0, 42
				word(insts.OpADDI, 0, 2, 0, 10), // ADDI R2, R0, 10
				word(insts.OpADD, 1, 2, 3, 0),   // ADD  R3, R1, R2
				word(insts.OpSYSCALL, 0, 0, 0, 0),
			)

			Expect(machine.Run()).To(Succeed())

			rf := machine.RegFile()
			Expect(machine.Running()).To(BeFalse())
			Expect(rf.Read(1)).To(Equal(uint32(42)))
			Expect(rf.Read(2)).To(Equal(uint32(10)))
			Expect(rf.Read(3)).To(Equal(uint32(52)))
			Expect(rf.Read(4)).To(Equal(uint32(vm.IntSyscall)))
		})

		It("should take a branch over the fallthrough path", func() {
			load(
				word(insts.OpADDI, 0, 1, 0, 5),  // ADDI R1, R0, 5
				word(insts.OpADDI, 0, 2, 0, 5),  // ADDI R2, R0, 5
				word(insts.OpADDI, 0, 3, 0, 0),  // ADDI R3, R0, 0
				word(insts.OpBEQ, 1, 2, 0, 16),  // BEQ  R1, R2, +16
				word(insts.OpADDI, 0, 3, 0, 99), // skipped
				word(insts.OpSYSCALL, 0, 0, 0, 0),
				word(insts.OpADDI, 0, 3, 0, 1), // branch target
				word(insts.OpSYSCALL, 0, 0, 0, 0),
			)

			Expect(machine.Run()).To(Succeed())

			Expect(machine.RegFile().Read(3)).To(Equal(uint32(1)))
		})

		It("should round-trip a word through memory", func() {
			load(
				word(insts.OpLUI, 0, 1, 0, 0x1234), // LUI R1, 0x1234
				word(insts.OpORI, 1, 1, 0, 0x5678), // ORI R1, R1, 0x5678
				word(insts.OpSW, 0, 1, 0, 0x2000),  // SW  R1, R0, +0x2000
				word(insts.OpLW, 0, 2, 0, 0x2000),  // LW  R2, R0, +0x2000
				word(insts.OpSYSCALL, 0, 0, 0, 0),
			)

			Expect(machine.Run()).To(Succeed())

			rf := machine.RegFile()
			Expect(rf.Read(1)).To(Equal(uint32(0x12345678)))
			Expect(rf.Read(2)).To(Equal(uint32(0x12345678)))
			Expect(machine.Memory().Bytes()[0x2000:0x2004]).To(
				Equal([]byte{0x78, 0x56, 0x34, 0x12}))
		})

		It("should call and return through JAL and JR", func() {
			load(
				word(insts.OpJAL, 0, 0, 0, loadAddr+24), // JAL sub
				word(insts.OpADDI, 1, 1, 0, 1),          // ADDI R1, R1, 1
				word(insts.OpSYSCALL, 0, 0, 0, 0),
				word(insts.OpADDI, 0, 1, 0, 100), // sub: ADDI R1, R0, 100
				word(insts.OpJR, 31, 0, 0, 0),    // JR R31
			)

			Expect(machine.Run()).To(Succeed())

			Expect(machine.RegFile().Read(1)).To(Equal(uint32(101)))
		})

		It("should divide and take remainders", func() {
			load(
				word(insts.OpADDI, 0, 1, 0, 100),  // R1 = 100
				word(insts.OpADDI, 0, 2, 0, 7),    // R2 = 7
				word(insts.OpADDI, 0, 8, 0, 1000), // R8 = 1000
				word(insts.OpADDI, 0, 9, 0, 25),   // R9 = 25
				word(insts.OpDIV, 1, 2, 3, 0),     // R3 = 100 / 7
				word(insts.OpREM, 1, 2, 5, 0),     // R5 = 100 % 7
				word(insts.OpDIVU, 8, 9, 6, 0),    // R6 = 1000 / 25
				word(insts.OpREMU, 8, 9, 7, 0),    // R7 = 1000 % 25
				word(insts.OpSYSCALL, 0, 0, 0, 0),
			)

			Expect(machine.Run()).To(Succeed())

			rf := machine.RegFile()
			Expect(rf.Read(3)).To(Equal(uint32(14)))
			Expect(rf.Read(5)).To(Equal(uint32(2)))
			Expect(rf.Read(6)).To(Equal(uint32(40)))
			Expect(rf.Read(7)).To(Equal(uint32(0)))
		})

		It("should turn EI in user mode into a privilege violation", func() {
			load(
				word(insts.OpENTER_USER, 0, 0, 0, 0),
				word(insts.OpEI, 0, 0, 0, 0),
				word(insts.OpSYSCALL, 0, 0, 0, 0),
			)

			Expect(machine.Run()).To(Succeed())

			Expect(machine.Interrupts().Pending(vm.IntPrivilege)).To(BeTrue())
			Expect(machine.Interrupts().Enabled).To(BeFalse())
		})
	})

	Describe("arithmetic boundary behavior", func() {
		// run executes a single R-type operation on two register values
		// and returns R3.
		run := func(op insts.Op, a, b uint32) uint32 {
			m := vm.NewMachine(make([]byte, 4096))
			Expect(m.LoadProgram(0x100, program(
				word(op, 1, 2, 3, 0),
				word(insts.OpSYSCALL, 0, 0, 0, 0),
			))).To(Succeed())
			m.RegFile().Write(1, a)
			m.RegFile().Write(2, b)
			Expect(m.Run()).To(Succeed())
			return m.RegFile().Read(3)
		}

		It("should mask shift amounts to 5 bits", func() {
			load(
				word(insts.OpADDI, 0, 1, 0, 0xABCD), // R1 = 0xABCD
				word(insts.OpSLL, 0, 1, 3, 32),      // R3 = R1 << (32 & 0x1F)
				word(insts.OpSYSCALL, 0, 0, 0, 0),
			)

			Expect(machine.Run()).To(Succeed())

			Expect(machine.RegFile().Read(3)).To(Equal(uint32(0xABCD)))
		})

		It("should define division overflow and divide-by-zero", func() {
			minInt32 := uint32(0x80000000)
			negOne := uint32(0xFFFFFFFF)

			Expect(run(insts.OpDIV, minInt32, negOne)).To(Equal(minInt32))
			Expect(run(insts.OpREM, minInt32, negOne)).To(Equal(uint32(0)))
			Expect(run(insts.OpDIV, 42, 0)).To(Equal(uint32(0)))
			Expect(run(insts.OpDIVU, 42, 0)).To(Equal(uint32(0)))
			Expect(run(insts.OpREM, 42, 0)).To(Equal(uint32(0)))
			Expect(run(insts.OpREMU, 42, 0)).To(Equal(uint32(0)))
		})

		It("should compute the high product words", func() {
			Expect(run(insts.OpMULH, 0x10000, 0x10000)).To(Equal(uint32(1)))
			Expect(run(insts.OpMULHU, 0x10000, 0x10000)).To(Equal(uint32(1)))
			Expect(run(insts.OpMULH, 0xFFFFFFFF, 0xFFFFFFFF)).To(Equal(uint32(0)))
			Expect(run(insts.OpMULHU, 0xFFFFFFFF, 0xFFFFFFFF)).To(Equal(uint32(0xFFFFFFFE)))
		})

		It("should sign-extend narrow loads and zero-extend their unsigned forms", func() {
			Expect(machine.Memory().Write8(0x3000, 0x80)).To(Succeed())
			Expect(machine.Memory().Write16(0x3100, 0x8001)).To(Succeed())
			load(
				word(insts.OpLB, 0, 1, 0, 0x3000),  // R1 = sign-extended byte
				word(insts.OpLBU, 0, 2, 0, 0x3000), // R2 = zero-extended byte
				word(insts.OpLH, 0, 3, 0, 0x3100),  // R3 = sign-extended half
				word(insts.OpLHU, 0, 5, 0, 0x3100), // R5 = zero-extended half
				word(insts.OpSYSCALL, 0, 0, 0, 0),
			)

			Expect(machine.Run()).To(Succeed())

			rf := machine.RegFile()
			Expect(rf.Read(1)).To(Equal(uint32(0xFFFFFF80)))
			Expect(rf.Read(2)).To(Equal(uint32(0x80)))
			Expect(rf.Read(3)).To(Equal(uint32(0xFFFF8001)))
			Expect(rf.Read(5)).To(Equal(uint32(0x8001)))
		})
	})

	Describe("system and mode queries", func() {
		It("should halt on BREAK with R4 carrying the interrupt number", func() {
			load(word(insts.OpBREAK, 0, 0, 0, 0))

			Expect(machine.Run()).To(Succeed())

			Expect(machine.Running()).To(BeFalse())
			Expect(machine.RegFile().Read(4)).To(Equal(uint32(vm.IntBreak)))
			Expect(machine.Interrupts().Pending(vm.IntBreak)).To(BeTrue())
		})

		It("should report the privilege level through GETMODE", func() {
			load(
				word(insts.OpGETMODE, 0, 0, 1, 0), // R1 = 1 (kernel)
				word(insts.OpENTER_USER, 0, 0, 0, 0),
				word(insts.OpGETMODE, 0, 0, 2, 0), // R2 = 0 (user)
				word(insts.OpSYSCALL, 0, 0, 0, 0),
			)

			Expect(machine.Run()).To(Succeed())

			Expect(machine.RegFile().Read(1)).To(Equal(uint32(1)))
			Expect(machine.RegFile().Read(2)).To(Equal(uint32(0)))
		})

		It("should expose the saved PC through GETPC", func() {
			machine.Interrupts().SavedPC = 0x4440
			load(
				word(insts.OpGETPC, 0, 0, 1, 0),
				word(insts.OpSYSCALL, 0, 0, 0, 0),
			)

			Expect(machine.Run()).To(Succeed())

			Expect(machine.RegFile().Read(1)).To(Equal(uint32(0x4440)))
		})

		It("should compare signed and unsigned values", func() {
			load(
				word(insts.OpADDI, 0, 1, 0, 0xFFFFFFFF),  // R1 = -1 signed, max unsigned
				word(insts.OpADDI, 0, 2, 0, 1),           // R2 = 1
				word(insts.OpSLT, 1, 2, 3, 0),            // R3 = (-1 < 1) = 1
				word(insts.OpSLTU, 1, 2, 5, 0),           // R5 = (max < 1) = 0
				word(insts.OpSLTI, 1, 6, 0, 0),           // R6 = (-1 < 0) = 1
				word(insts.OpSLTIU, 2, 7, 0, 0xFFFFFFFF), // R7 = (1 < max) = 1
				word(insts.OpSYSCALL, 0, 0, 0, 0),
			)

			Expect(machine.Run()).To(Succeed())

			rf := machine.RegFile()
			Expect(rf.Read(3)).To(Equal(uint32(1)))
			Expect(rf.Read(5)).To(Equal(uint32(0)))
			Expect(rf.Read(6)).To(Equal(uint32(1)))
			Expect(rf.Read(7)).To(Equal(uint32(1)))
		})

		It("should combine bits through NOR and XOR", func() {
			load(
				word(insts.OpADDI, 0, 1, 0, 0x0F0F), // R1
				word(insts.OpADDI, 0, 2, 0, 0x00FF), // R2
				word(insts.OpNOR, 1, 2, 3, 0),       // R3 = ^(R1|R2)
				word(insts.OpXOR, 1, 2, 5, 0),       // R5 = R1^R2
				word(insts.OpSYSCALL, 0, 0, 0, 0),
			)

			Expect(machine.Run()).To(Succeed())

			Expect(machine.RegFile().Read(3)).To(Equal(uint32(0xFFFFF000)))
			Expect(machine.RegFile().Read(5)).To(Equal(uint32(0x0FF0)))
		})

		It("should shift by register amounts with SRAV", func() {
			load(
				word(insts.OpADDI, 0, 1, 0, 0x80000000), // R1 = INT32_MIN
				word(insts.OpADDI, 0, 2, 0, 4),          // R2 = 4
				word(insts.OpSRAV, 2, 1, 3, 0),          // R3 = R1 >> 4 (arith)
				word(insts.OpSRLV, 2, 1, 5, 0),          // R5 = R1 >> 4 (logic)
				word(insts.OpSYSCALL, 0, 0, 0, 0),
			)

			Expect(machine.Run()).To(Succeed())

			Expect(machine.RegFile().Read(3)).To(Equal(uint32(0xF8000000)))
			Expect(machine.RegFile().Read(5)).To(Equal(uint32(0x08000000)))
		})
	})

	Describe("jump alignment", func() {
		It("should fault at the next fetch after JR to a misaligned address", func() {
			load(
				word(insts.OpADDI, 0, 1, 0, 0x2004), // R1 = misaligned target
				word(insts.OpJR, 1, 0, 0, 0),
			)
			machine.SetRunning(true)

			Expect(machine.Step().Err).ToNot(HaveOccurred())
			Expect(machine.Step().Err).ToNot(HaveOccurred(), "the jump itself does not fault")
			Expect(machine.RegFile().PC).To(Equal(uint32(0x2004)))

			result := machine.Step()
			Expect(result.Fault).ToNot(BeNil())
			Expect(result.Fault.Interrupt).To(Equal(vm.IntMemFault))
		})
	})

	Describe("paging", func() {
		It("should page-fault a user store to an unmapped page without halting", func() {
			// Page table at 0x800 with a single mapping.
			Expect(machine.Memory().Write32(0x800,
				0x00005000|vm.PTEValid|vm.PTEUser|vm.PTEWrite|vm.PTEExec)).To(Succeed())

			machine.MMU().PTBR = 0x800
			machine.MMU().NumPages = 1
			machine.MMU().PagingEnabled = true
			machine.MMU().KernelMode = false
			machine.RegFile().PC = 0x0 // virtual page 0 maps to 0x5000

			// At physical 0x5000: SW R1, R0, +0x4000 (vpn 4, unmapped).
			copy(machine.Memory().Bytes()[0x5000:], program(
				word(insts.OpSW, 0, 1, 0, 0x4000),
				word(insts.OpSYSCALL, 0, 0, 0, 0),
			))

			machine.SetRunning(true)
			result := machine.Step()

			Expect(result.Fault).ToNot(BeNil())
			Expect(result.Fault.Interrupt).To(Equal(vm.IntPageFault))
			Expect(machine.Interrupts().Pending(vm.IntPageFault)).To(BeTrue())
			Expect(machine.Running()).To(BeTrue())
		})

		It("should end the run on a fetch page fault", func() {
			machine.MMU().PTBR = 0x800
			machine.MMU().NumPages = 1
			machine.MMU().PagingEnabled = true
			machine.MMU().KernelMode = false
			machine.RegFile().PC = 8 << 12 // vpn 8, out of range

			machine.SetRunning(true)
			result := machine.Step()

			Expect(result.Err).To(HaveOccurred())
			Expect(machine.Running()).To(BeFalse())
			Expect(machine.Interrupts().Pending(vm.IntPageFault)).To(BeTrue())
		})
	})
})
