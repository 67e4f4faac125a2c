// Command camidbg is a minimal interactive debugger over an already-linked
// CAMI bytecode program: it steps one opcode at a time and shows the
// current function, program counter, operand stack depth, call depth, the
// most recent steps and the error that ended the run, if any. It does not
// assemble or link bytecode itself
// (spec's assembler/disassembler and linker textual front end are
// Non-goals); it consumes the JSON-encoded bytecode.Program shape a
// separate producer would emit.
//
// Grounded on cmd/run/main.go + cmd/run/interactive.go: the same
// flag-driven entry point choosing between a batch run and a bubbletea
// TUI, generalized from picking-an-exported-function to stepping opcodes.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/cami-vm/cami/bytecode"
	"github.com/cami-vm/cami/machine"
)

func main() {
	var (
		programFile = flag.String("program", "", "Path to a JSON-encoded bytecode.Program")
		interactive = flag.Bool("i", false, "Interactive stepping TUI")
		maxSteps    = flag.Int("max-steps", 0, "Opcode step budget for batch mode (0 = unbounded)")
	)
	flag.Parse()

	if *programFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: camidbg -program <program.json> [-i] [-max-steps N]")
		os.Exit(1)
	}

	prog, err := loadProgram(*programFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *interactive {
		if !isInteractiveTerminal() {
			fmt.Fprintln(os.Stderr, "Error: -i requires an interactive terminal")
			os.Exit(1)
		}
		if err := runInteractive(prog); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := runBatch(prog, *maxSteps); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadProgram(path string) (*bytecode.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read program: %w", err)
	}
	var prog bytecode.Program
	if err := json.Unmarshal(data, &prog); err != nil {
		return nil, fmt.Errorf("decode program: %w", err)
	}
	return &prog, nil
}

func runBatch(prog *bytecode.Program, maxSteps int) error {
	m, lerr := machine.New(prog, machine.DefaultConfig(), zap.NewNop())
	if lerr != nil {
		return fmt.Errorf("load: %s", lerr.Error())
	}
	result := m.Run(maxSteps)
	fmt.Printf("completion: %s\n", result.Completion)
	if result.Err != nil {
		fmt.Printf("error: %s\n", result.Err.Error())
	}
	fmt.Printf("exit code: %d\n", result.ExitCode)
	return nil
}
