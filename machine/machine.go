// Package machine wires VirtualMemory, ObjectManager, the loader and the
// Evaluator into the single owning facade an embedder calls (spec §6).
//
// Grounded on runtime/runtime.go + runtime/instance.go: a thin struct that
// owns the sub-systems and exposes New/Run, exactly the pattern the teacher
// uses to front wazero's engine and a WASM instance.
package machine

import (
	"go.uber.org/zap"

	"github.com/cami-vm/cami/bytecode"
	"github.com/cami-vm/cami/camierrors"
	"github.com/cami-vm/cami/eval"
	"github.com/cami-vm/cami/object"
	"github.com/cami-vm/cami/vmem"
)

// Config collects every tunable the abstract machine's sub-systems need,
// the analog of the teacher's functional-options engine constructor
// simplified to a plain struct (spec has no per-call module-instance
// lifecycle to configure).
type Config struct {
	Memory  vmem.Config
	Objects object.Config
}

// DefaultConfig returns the tunables this port uses when an embedder has
// no specific requirement (spec §9's GC parameters are left as tunables
// by the reference implementation; these are this port's defaults).
func DefaultConfig() Config {
	return Config{
		Memory: vmem.Config{
			HeapPageSize: 1 << 16,
		},
		Objects: object.DefaultConfig(),
	}
}

// Machine owns one loaded program and its evaluator (spec §4's Abstract
// Machine, a fixed composition of VirtualMemory + ObjectManager +
// Evaluator over one Bytecode program).
type Machine struct {
	loaded *bytecode.Loaded
	eval   *eval.Evaluator
	logger *zap.Logger
}

// New loads prog and builds an Evaluator ready to run from its entry
// point (spec §6.1 program load). Mirrors runtime.New's
// construct-sub-engine-then-wrap shape.
func New(prog *bytecode.Program, cfg Config, logger *zap.Logger) (*Machine, *camierrors.Error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	loaded, err := bytecode.Load(prog, cfg.Memory, cfg.Objects, logger)
	if err != nil {
		return nil, err
	}
	return &Machine{
		loaded: loaded,
		eval:   eval.New(loaded, logger),
		logger: logger,
	}, nil
}

// Run drives the evaluator to completion, returning the run's terminal
// outcome (spec §6.4: halt/abort/exception). maxSteps <= 0 means
// unbounded.
func (m *Machine) Run(maxSteps int) eval.Result {
	return m.eval.Run(maxSteps)
}

// Loaded exposes the loaded program for introspection (a debugger
// stepping opcodes, or tests asserting on object/memory state).
func (m *Machine) Loaded() *bytecode.Loaded {
	return m.loaded
}

// Step executes exactly one opcode and reports whether the run has ended.
func (m *Machine) Step() (bool, eval.Result) {
	return m.eval.Step()
}

// PC, StackDepth, CallDepth and CurrentFunction mirror the same Evaluator
// accessors, for an interactive debugger's status line.
func (m *Machine) PC() uint64              { return m.eval.PC() }
func (m *Machine) StackDepth() int         { return m.eval.StackDepth() }
func (m *Machine) CallDepth() int          { return m.eval.CallDepth() }
func (m *Machine) CurrentFunction() string { return m.eval.CurrentFunction() }
