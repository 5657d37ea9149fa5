// Package main provides the CRISP-32 embedding tool: it converts a raw
// binary image into a Go source file holding the bytes, so programs can be
// compiled into a host binary.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
)

var (
	varName = flag.String("name", "program", "Name of the generated variable")
	pkgName = flag.String("package", "main", "Package name for the generated file")
)

func main() {
	flag.Parse()

	if flag.NArg() != 2 {
		fmt.Fprintf(os.Stderr, "Usage: c32embed [options] <input.bin> <output.go>\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	data, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot read %s: %v\n", flag.Arg(0), err)
		os.Exit(1)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "// Code generated by c32embed from %s. DO NOT EDIT.\n\n", flag.Arg(0))
	fmt.Fprintf(&b, "package %s\n\n", *pkgName)
	fmt.Fprintf(&b, "var %s = []byte{", *varName)
	for i, v := range data {
		if i%12 == 0 {
			b.WriteString("\n\t")
		}
		fmt.Fprintf(&b, "0x%02X, ", v)
	}
	b.WriteString("\n}\n")

	if err := os.WriteFile(flag.Arg(1), []byte(b.String()), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot write %s: %v\n", flag.Arg(1), err)
		os.Exit(1)
	}

	fmt.Printf("Embedded %d bytes as %s.%s in %s\n",
		len(data), *pkgName, *varName, flag.Arg(1))
}
