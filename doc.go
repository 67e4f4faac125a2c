// Package cami implements the CAMI abstract machine: a bytecode
// interpreter that detects undefined behavior in already-translated C
// programs by executing them against the semantics of the C abstract
// machine rather than against real hardware.
//
// # Architecture Overview
//
// The module is organized the way a bytecode VM's sub-systems usually
// are, one package per concern:
//
//	cami/types      Interned C type lattice and compatibility rules
//	cami/vmem       Segmented 64-bit virtual memory (code/data/heap/stack/mmio)
//	cami/object     ObjectManager: generational object arenas + GC
//	cami/trace      Sequencing: call tree, full-expression ordering, tag conflicts
//	cami/bytecode   The linked program shape and its loader
//	cami/eval       The fetch-decode-execute loop over a loaded program
//	cami/camierrors Structured load/link/execute error taxonomy
//	cami/machine    The owning facade wiring the above into one run
//	cami/cmd/camidbg An interactive, opcode-stepping debugger TUI
//
// # Quick Start
//
//	m, err := machine.New(prog, machine.DefaultConfig(), nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result := m.Run(0)
//	fmt.Println(result.Completion, result.ExitCode)
//
// # Undefined Behavior Detection
//
// Every operation that the C standard leaves undefined is checked at
// execution time; a violation halts the run with an exception
// completion carrying a structured *camierrors.Error and the UB code(s)
// that fired, rather than silently producing an unspecified result the
// way native machine code would.
//
// # Non-goals
//
// This module does not parse C source, optimize, JIT-compile, run
// multiple threads, perform network I/O, or dynamically link at
// runtime. It consumes an already-linked bytecode.Program; producing
// one (an assembler, a disassembler, a linker's textual front end) is
// out of scope.
package cami
