package insts_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/MannyPeterson/crisp32/insts"
)

var _ = Describe("Insts Package", func() {
	It("should have an Instruction type", func() {
		var i insts.Instruction
		Expect(i).To(BeZero())
	})

	It("should have a Decoder type", func() {
		decoder := insts.NewDecoder()
		Expect(decoder).ToNot(BeNil())
	})

	It("should classify every opcode into a known format", func() {
		for op := range allOps() {
			Expect(insts.FormatOf(op)).ToNot(Equal(insts.FormatUnknown),
				"opcode %v has no format", op)
		}
	})

	It("should resolve mnemonics back to opcodes", func() {
		for op := range allOps() {
			resolved, ok := insts.OpByMnemonic(op.String())
			Expect(ok).To(BeTrue())
			Expect(resolved).To(Equal(op))
		}
	})

	It("should name unknown opcodes as ???", func() {
		Expect(insts.Op(0xAA).String()).To(Equal("???"))
	})
})

// allOps returns the set of defined opcodes, as map keys.
func allOps() map[insts.Op]struct{} {
	ops := []insts.Op{
		insts.OpNOP,
		insts.OpADD, insts.OpADDU, insts.OpSUB, insts.OpSUBU,
		insts.OpADDI, insts.OpADDIU,
		insts.OpAND, insts.OpOR, insts.OpXOR, insts.OpNOR,
		insts.OpANDI, insts.OpORI, insts.OpXORI, insts.OpLUI,
		insts.OpSLL, insts.OpSRL, insts.OpSRA,
		insts.OpSLLV, insts.OpSRLV, insts.OpSRAV,
		insts.OpSLT, insts.OpSLTU, insts.OpSLTI, insts.OpSLTIU,
		insts.OpMUL, insts.OpMULH, insts.OpMULHU,
		insts.OpDIV, insts.OpDIVU, insts.OpREM, insts.OpREMU,
		insts.OpLW, insts.OpLH, insts.OpLHU, insts.OpLB, insts.OpLBU,
		insts.OpSW, insts.OpSH, insts.OpSB,
		insts.OpBEQ, insts.OpBNE, insts.OpBLEZ, insts.OpBGTZ,
		insts.OpBLTZ, insts.OpBGEZ,
		insts.OpJ, insts.OpJAL, insts.OpJR, insts.OpJALR,
		insts.OpSYSCALL, insts.OpBREAK,
		insts.OpEI, insts.OpDI, insts.OpIRET, insts.OpRAISE, insts.OpGETPC,
		insts.OpENABLE_PAGING, insts.OpDISABLE_PAGING, insts.OpSET_PTBR,
		insts.OpENTER_USER, insts.OpGETMODE,
	}
	m := make(map[insts.Op]struct{}, len(ops))
	for _, op := range ops {
		m[op] = struct{}{}
	}
	return m
}
