// Package main provides the entry point for CRISP-32.
// CRISP-32 is a 32-bit RISC virtual machine with paging and interrupts.
//
// For the full CLI, use: go run ./cmd/c32vm
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("CRISP-32 - 32-bit RISC Virtual Machine")
	fmt.Println("")
	fmt.Println("Usage: c32vm [options] <program.bin>")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -mem        Guest memory size in bytes")
	fmt.Println("  -load       Load address for the image")
	fmt.Println("  -max-steps  Stop after this many cycles")
	fmt.Println("  -timing     Enable timing estimation mode")
	fmt.Println("  -config     Path to timing configuration JSON file")
	fmt.Println("  -v          Verbose output")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/c32vm' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/c32vm' instead.")
	}
}
