// Package insts provides CRISP-32 instruction definitions, decoding and
// encoding.
package insts

import "encoding/binary"

// Decoder decodes CRISP-32 machine code into instructions.
type Decoder struct{}

// NewDecoder creates a new CRISP-32 instruction decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode decodes an 8-byte instruction word. The word must be at least
// InstructionSize bytes long; extra bytes are ignored.
//
// Decoding performs no validity checks: opcodes outside the ISA decode with
// Format == FormatUnknown and are the executor's concern.
func (d *Decoder) Decode(word []byte) *Instruction {
	_ = word[InstructionSize-1]

	op := Op(word[0])
	return &Instruction{
		Op:     op,
		Format: FormatOf(op),
		Rs:     word[1],
		Rt:     word[2],
		Rd:     word[3],
		Imm:    binary.LittleEndian.Uint32(word[4:8]),
	}
}

// Encode serializes an instruction into its 8-byte wire form. It is the
// exact inverse of Decode.
func Encode(inst *Instruction) [InstructionSize]byte {
	var word [InstructionSize]byte
	word[0] = uint8(inst.Op)
	word[1] = inst.Rs
	word[2] = inst.Rt
	word[3] = inst.Rd
	binary.LittleEndian.PutUint32(word[4:8], inst.Imm)
	return word
}
