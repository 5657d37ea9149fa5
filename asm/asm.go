// Package asm provides a two-pass assembler for the CRISP-32 instruction
// set. Pass 1 collects labels and computes addresses; pass 2 emits machine
// code through the insts encoder.
//
// The accepted syntax follows the reference assembler: one instruction per
// line, `label:` definitions, `;` or `#` comments, operands separated by
// commas or whitespace. Registers are written R0-R31 (case-insensitive) or
// with their conventional aliases (zero, sp, ra, ...).
package asm

import (
	"fmt"
	"strings"

	"github.com/MannyPeterson/crisp32/insts"
)

// DefaultLoadBase is the conventional load address for assembled images.
// J and JAL targets given as labels are made absolute by adding it.
const DefaultLoadBase = 0x1000

// Assembler holds the symbol table and emission state across the two
// passes.
type Assembler struct {
	// LoadBase is added to jump-target labels to form absolute addresses.
	LoadBase uint32

	symbols map[string]uint32
	addr    uint32
	pass    int
	out     []byte
}

// New creates an assembler with the conventional load base.
func New() *Assembler {
	return &Assembler{
		LoadBase: DefaultLoadBase,
		symbols:  make(map[string]uint32),
	}
}

// Symbols returns the label table collected during assembly.
func (a *Assembler) Symbols() map[string]uint32 {
	return a.symbols
}

// Assemble translates a complete source text into a raw binary image.
func (a *Assembler) Assemble(src string) ([]byte, error) {
	lines := strings.Split(src, "\n")

	for _, pass := range []int{1, 2} {
		a.pass = pass
		a.addr = 0
		a.out = a.out[:0]

		for i, line := range lines {
			if err := a.assembleLine(line); err != nil {
				return nil, fmt.Errorf("pass %d, line %d: %w", pass, i+1, err)
			}
		}
	}

	return a.out, nil
}

// assembleLine handles one source line: optional label, optional
// instruction.
func (a *Assembler) assembleLine(line string) error {
	line = strings.TrimSpace(stripComment(line))
	if line == "" {
		return nil
	}

	if idx := labelEnd(line); idx > 0 {
		name := line[:idx]
		if a.pass == 1 {
			if _, dup := a.symbols[name]; dup {
				return fmt.Errorf("duplicate label %q", name)
			}
			a.symbols[name] = a.addr
		}
		line = strings.TrimSpace(line[idx+1:])
		if line == "" {
			return nil
		}
	}

	tokens := tokenize(line)
	if len(tokens) == 0 {
		return nil
	}

	op, ok := insts.OpByMnemonic(strings.ToUpper(tokens[0]))
	if !ok {
		return fmt.Errorf("unknown instruction %q", tokens[0])
	}

	inst, err := a.parseOperands(op, tokens[1:])
	if err != nil {
		return err
	}

	if a.pass == 2 {
		word := insts.Encode(inst)
		a.out = append(a.out, word[:]...)
	}
	a.addr += insts.InstructionSize

	return nil
}

// parseOperands fills in the register and immediate fields according to
// the instruction family's operand shape.
func (a *Assembler) parseOperands(op insts.Op, args []string) (*insts.Instruction, error) {
	inst := &insts.Instruction{Op: op, Format: insts.FormatOf(op)}

	switch inst.Format {
	case insts.FormatRType:
		// ADD rd, rs, rt
		if err := needArgs(args, 3); err != nil {
			return nil, err
		}
		var err error
		if inst.Rd, err = parseRegister(args[0]); err != nil {
			return nil, err
		}
		if inst.Rs, err = parseRegister(args[1]); err != nil {
			return nil, err
		}
		if inst.Rt, err = parseRegister(args[2]); err != nil {
			return nil, err
		}

	case insts.FormatIType:
		// ADDI rt, rs, imm
		if err := needArgs(args, 3); err != nil {
			return nil, err
		}
		var err error
		if inst.Rt, err = parseRegister(args[0]); err != nil {
			return nil, err
		}
		if inst.Rs, err = parseRegister(args[1]); err != nil {
			return nil, err
		}
		if inst.Imm, err = a.immediate(args[2]); err != nil {
			return nil, err
		}

	case insts.FormatLUI:
		// LUI rt, imm
		if err := needArgs(args, 2); err != nil {
			return nil, err
		}
		var err error
		if inst.Rt, err = parseRegister(args[0]); err != nil {
			return nil, err
		}
		if inst.Imm, err = a.immediate(args[1]); err != nil {
			return nil, err
		}

	case insts.FormatShiftImm:
		// SLL rd, rt, shamt
		if err := needArgs(args, 3); err != nil {
			return nil, err
		}
		var err error
		if inst.Rd, err = parseRegister(args[0]); err != nil {
			return nil, err
		}
		if inst.Rt, err = parseRegister(args[1]); err != nil {
			return nil, err
		}
		if inst.Imm, err = a.immediate(args[2]); err != nil {
			return nil, err
		}

	case insts.FormatLoad, insts.FormatStore:
		// LW rt, rs, offset
		if err := needArgs(args, 3); err != nil {
			return nil, err
		}
		var err error
		if inst.Rt, err = parseRegister(args[0]); err != nil {
			return nil, err
		}
		if inst.Rs, err = parseRegister(args[1]); err != nil {
			return nil, err
		}
		if inst.Imm, err = a.immediate(args[2]); err != nil {
			return nil, err
		}

	case insts.FormatBranch:
		switch op {
		case insts.OpBEQ, insts.OpBNE:
			// BEQ rs, rt, target
			if err := needArgs(args, 3); err != nil {
				return nil, err
			}
			var err error
			if inst.Rs, err = parseRegister(args[0]); err != nil {
				return nil, err
			}
			if inst.Rt, err = parseRegister(args[1]); err != nil {
				return nil, err
			}
			if inst.Imm, err = a.branchTarget(args[2]); err != nil {
				return nil, err
			}
		default:
			// BLEZ rs, target
			if err := needArgs(args, 2); err != nil {
				return nil, err
			}
			var err error
			if inst.Rs, err = parseRegister(args[0]); err != nil {
				return nil, err
			}
			if inst.Imm, err = a.branchTarget(args[1]); err != nil {
				return nil, err
			}
		}

	case insts.FormatJump:
		switch op {
		case insts.OpJ, insts.OpJAL:
			// J target; labels and numeric targets are offsets from the
			// image start, made absolute with the load base.
			if err := needArgs(args, 1); err != nil {
				return nil, err
			}
			if target, ok := a.symbols[args[0]]; ok {
				inst.Imm = target + a.LoadBase
			} else {
				v, err := a.immediate(args[0])
				if err != nil {
					return nil, err
				}
				inst.Imm = v + a.LoadBase
			}
		case insts.OpJR:
			if err := needArgs(args, 1); err != nil {
				return nil, err
			}
			var err error
			if inst.Rs, err = parseRegister(args[0]); err != nil {
				return nil, err
			}
		case insts.OpJALR:
			// JALR rd, rs
			if err := needArgs(args, 2); err != nil {
				return nil, err
			}
			var err error
			if inst.Rd, err = parseRegister(args[0]); err != nil {
				return nil, err
			}
			if inst.Rs, err = parseRegister(args[1]); err != nil {
				return nil, err
			}
		}

	case insts.FormatIntCtl:
		switch op {
		case insts.OpRAISE:
			if err := needArgs(args, 1); err != nil {
				return nil, err
			}
			var err error
			if inst.Imm, err = a.immediate(args[0]); err != nil {
				return nil, err
			}
		case insts.OpGETPC:
			if err := needArgs(args, 1); err != nil {
				return nil, err
			}
			var err error
			if inst.Rd, err = parseRegister(args[0]); err != nil {
				return nil, err
			}
		}
		// EI, DI, IRET take no operands.

	case insts.FormatMMUCtl:
		switch op {
		case insts.OpSET_PTBR:
			// SET_PTBR rd, rt
			if err := needArgs(args, 2); err != nil {
				return nil, err
			}
			var err error
			if inst.Rd, err = parseRegister(args[0]); err != nil {
				return nil, err
			}
			if inst.Rt, err = parseRegister(args[1]); err != nil {
				return nil, err
			}
		case insts.OpGETMODE:
			if err := needArgs(args, 1); err != nil {
				return nil, err
			}
			var err error
			if inst.Rd, err = parseRegister(args[0]); err != nil {
				return nil, err
			}
		}
		// ENABLE_PAGING, DISABLE_PAGING, ENTER_USER take no operands.

	case insts.FormatSystem:
		// NOP, SYSCALL, BREAK take no operands.
	}

	return inst, nil
}

// branchTarget resolves a branch operand: a label becomes an offset
// relative to the post-increment PC, anything else parses as a literal
// offset.
func (a *Assembler) branchTarget(tok string) (uint32, error) {
	if target, ok := a.symbols[tok]; ok {
		return target - (a.addr + insts.InstructionSize), nil
	}
	return a.immediate(tok)
}

// immediate parses a numeric operand. During pass 1 unresolved symbols are
// tolerated; addresses are all that matters until emission.
func (a *Assembler) immediate(tok string) (uint32, error) {
	v, err := parseImmediate(tok)
	if err != nil {
		if a.pass == 1 {
			return 0, nil
		}
		return 0, err
	}
	return v, nil
}

func needArgs(args []string, n int) error {
	if len(args) < n {
		return fmt.Errorf("expected %d operands, got %d", n, len(args))
	}
	return nil
}

// stripComment removes a trailing ; or # comment.
func stripComment(line string) string {
	if i := strings.IndexAny(line, ";#"); i >= 0 {
		return line[:i]
	}
	return line
}

// labelEnd returns the index of the colon terminating a leading label, or
// -1 when the line does not start with one.
func labelEnd(line string) int {
	for i, r := range line {
		switch {
		case r == ':':
			return i
		case r == ' ' || r == '\t':
			return -1
		}
	}
	return -1
}

// tokenize splits a line on whitespace and commas.
func tokenize(line string) []string {
	return strings.FieldsFunc(line, func(r rune) bool {
		return r == ' ' || r == '\t' || r == ','
	})
}
