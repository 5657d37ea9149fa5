// Package asm provides a two-pass assembler for the CRISP-32 instruction
// set.
package asm

import (
	"fmt"
	"strconv"
	"strings"
)

// regAliases maps the conventional MIPS-style register names to indexes.
var regAliases = map[string]uint8{
	"zero": 0,
	"at":   1,
	"v0":   2, "v1": 3,
	"a0": 4, "a1": 5, "a2": 6, "a3": 7,
	"t0": 8, "t1": 9, "t2": 10, "t3": 11,
	"t4": 12, "t5": 13, "t6": 14, "t7": 15,
	"s0": 16, "s1": 17, "s2": 18, "s3": 19,
	"s4": 20, "s5": 21, "s6": 22, "s7": 23,
	"t8": 24, "t9": 25,
	"k0": 26, "k1": 27,
	"gp": 28, "sp": 29, "fp": 30, "ra": 31,
}

// parseRegister resolves a register operand: an alias like "sp" or the
// numbered form "R5"/"r5".
func parseRegister(tok string) (uint8, error) {
	lower := strings.ToLower(tok)
	if reg, ok := regAliases[lower]; ok {
		return reg, nil
	}

	if len(lower) > 1 && lower[0] == 'r' {
		n, err := strconv.ParseUint(lower[1:], 10, 8)
		if err == nil && n <= 31 {
			return uint8(n), nil
		}
	}

	return 0, fmt.Errorf("invalid register %q", tok)
}

// parseImmediate parses a signed or unsigned numeric literal, decimal or
// 0x-prefixed hex. Negative values wrap into their two's-complement
// 32-bit form.
func parseImmediate(tok string) (uint32, error) {
	v, err := strconv.ParseInt(tok, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid immediate %q", tok)
	}
	if v < -(1<<31) || v > (1<<32)-1 {
		return 0, fmt.Errorf("immediate %q out of 32-bit range", tok)
	}
	return uint32(v), nil
}
