// Package main provides the entry point for the CRISP-32 assembler.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/MannyPeterson/crisp32/asm"
	"github.com/MannyPeterson/crisp32/insts"
)

var loadBase = flag.Uint("base", asm.DefaultLoadBase, "Load base added to jump-target labels")

func main() {
	flag.Parse()

	if flag.NArg() != 2 {
		fmt.Fprintf(os.Stderr, "Usage: c32asm [options] <input.asm> <output.bin>\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	inputFile := flag.Arg(0)
	outputFile := flag.Arg(1)

	src, err := os.ReadFile(inputFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot read %s: %v\n", inputFile, err)
		os.Exit(1)
	}

	a := asm.New()
	a.LoadBase = uint32(*loadBase)

	out, err := a.Assemble(string(src))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Assembly failed: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(outputFile, out, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot write %s: %v\n", outputFile, err)
		os.Exit(1)
	}

	fmt.Printf("Assembly successful:\n")
	fmt.Printf("  Input:   %s\n", inputFile)
	fmt.Printf("  Output:  %s\n", outputFile)
	fmt.Printf("  Size:    %d bytes (%d instructions)\n",
		len(out), len(out)/insts.InstructionSize)
	fmt.Printf("  Symbols: %d\n", len(a.Symbols()))
}
