// Package main provides the entry point for the CRISP-32 virtual machine.
// It loads a raw binary image into guest memory, runs it to a halt and
// prints the final register state.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/MannyPeterson/crisp32/loader"
	"github.com/MannyPeterson/crisp32/timing"
	"github.com/MannyPeterson/crisp32/timing/latency"
	"github.com/MannyPeterson/crisp32/vm"
)

var (
	memSize    = flag.Uint("mem", 1<<20, "Guest memory size in bytes")
	loadAddr   = flag.Uint("load", loader.DefaultLoadAddr, "Load address for the image")
	maxSteps   = flag.Uint64("max-steps", 0, "Stop after this many cycles (0 = no limit)")
	enableTime = flag.Bool("timing", false, "Enable timing estimation mode")
	configPath = flag.String("config", "", "Path to timing configuration JSON file")
	verbose    = flag.Bool("v", false, "Verbose output")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: c32vm [options] <program.bin>\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	programPath := flag.Arg(0)

	img, err := loader.LoadAt(programPath, uint32(*loadAddr))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading program: %v\n", err)
		os.Exit(1)
	}

	if *verbose {
		fmt.Printf("Loaded: %s\n", programPath)
		fmt.Printf("Load address: 0x%X\n", img.LoadAddr)
		fmt.Printf("Size: %d bytes (%d instructions)\n", len(img.Data), img.Instructions())
	}

	if *enableTime {
		os.Exit(runTiming(img, programPath))
	}
	os.Exit(runEmulation(img, programPath))
}

// runEmulation runs the program in plain emulation mode.
func runEmulation(img *loader.Image, programPath string) int {
	memory := make([]byte, *memSize)
	machine := vm.NewMachine(memory, vm.WithMaxSteps(*maxSteps))

	if err := machine.LoadProgram(img.LoadAddr, img.Data); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if err := machine.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Execution error: %v\n", err)
		dumpState(machine)
		return 1
	}

	if *verbose {
		fmt.Printf("\nProgram: %s\n", programPath)
		fmt.Printf("Cycles executed: %d\n", machine.StepCount())
	}
	dumpState(machine)

	return 0
}

// runTiming runs the program with the cycle estimator attached.
func runTiming(img *loader.Image, programPath string) int {
	timingConfig := latency.DefaultTimingConfig()
	if *configPath != "" {
		var err error
		timingConfig, err = latency.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading timing config: %v\n", err)
			return 1
		}
	}
	if err := timingConfig.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid timing config: %v\n", err)
		return 1
	}

	tracker := timing.NewTracker(latency.NewTableWithConfig(timingConfig))

	memory := make([]byte, *memSize)
	machine := vm.NewMachine(memory,
		vm.WithMaxSteps(*maxSteps),
		vm.WithAccessListener(tracker.Listener()),
	)

	if err := machine.LoadProgram(img.LoadAddr, img.Data); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	runErr := tracker.Run(machine)

	fmt.Printf("Program: %s\n\n", programPath)
	tracker.Report(os.Stdout)
	fmt.Printf("\n")
	dumpState(machine)

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Execution error: %v\n", runErr)
		return 1
	}
	return 0
}

// dumpState prints the register file and machine flags.
func dumpState(m *vm.Machine) {
	rf := m.RegFile()

	fmt.Printf("PC=0x%08X  mode=%s  paging=%v  interrupts=%v\n",
		rf.PC, modeName(m), m.MMU().PagingEnabled, m.Interrupts().Enabled)
	for i := 0; i < vm.NumRegs; i += 4 {
		fmt.Printf("R%-2d=0x%08X  R%-2d=0x%08X  R%-2d=0x%08X  R%-2d=0x%08X\n",
			i, rf.R[i], i+1, rf.R[i+1], i+2, rf.R[i+2], i+3, rf.R[i+3])
	}
}

func modeName(m *vm.Machine) string {
	if m.MMU().KernelMode {
		return "kernel"
	}
	return "user"
}
