// Package camierrors is the structured error type shared by every CAMI
// subsystem: loader, decoder, object manager, evaluator and trace.
package camierrors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred.
type Phase string

const (
	PhaseLoad     Phase = "load"     // bytecode-shape loading and link-time relocation
	PhaseDecode   Phase = "decode"   // opcode fetch/decode
	PhaseValidate Phase = "validate" // compiler-guarantee / constraint checks
	PhaseExecute  Phase = "execute"  // opcode evaluation
	PhaseGC       Phase = "gc"       // object-descriptor arena collection
	PhaseMMIO     Phase = "mmio"     // host I/O device
)

// Kind categorizes the error, mirroring the taxonomy of spec §7.
type Kind string

const (
	KindCompilerGuarantee   Kind = "compiler_guarantee"   // bytecode producer broke an invariant
	KindConstraintViolation Kind = "constraint_violation" // malformed-program diagnostic
	KindUndefinedBehavior   Kind = "undefined_behavior"   // the core detection product
	KindArenaOOM            Kind = "arena_oom"            // major GC failed to free enough Old space
	KindHostFault           Kind = "host_fault"           // bad bytecode file, missing symbol, etc.
	KindMemoryAccess        Kind = "memory_access"        // unaligned / out-of-segment / unallocated heap access
	KindMMIOAccess          Kind = "mmio_access"          // malformed MMIO control word
)

// UBCode is one numeric Undefined Behavior code from the fixed enumeration
// in spec §7.3 / §8. See ub.go for the full table.
type UBCode int

// Error is the structured error type used throughout CAMI.
type Error struct {
	Cause    error
	Phase    Phase
	Kind     Kind
	Detail   string
	UBCodes  []UBCode
	Backtrace []string // rendered TraceContext chains, set for tag-related UB only
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if len(e.UBCodes) > 0 {
		b.WriteString(" (")
		for i, code := range e.UBCodes {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(ubName(code))
			b.WriteString(fmt.Sprintf("#%d", int(code)))
		}
		b.WriteByte(')')
	}

	for _, bt := range e.Backtrace {
		b.WriteString("\n  ")
		b.WriteString(bt)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// CompilerGuarantee creates an error for a violated bytecode-producer
// invariant (spec §7 category 1): non-recoverable, aborts the run.
func CompilerGuarantee(phase Phase, detail string, args ...any) *Error {
	return &Error{Phase: phase, Kind: KindCompilerGuarantee, Detail: fmtDetail(detail, args)}
}

// ConstraintViolation creates an error for a standard-mandated diagnostic
// (spec §7 category 2): recoverable, the run stops with "exception".
func ConstraintViolation(phase Phase, detail string, args ...any) *Error {
	return &Error{Phase: phase, Kind: KindConstraintViolation, Detail: fmtDetail(detail, args)}
}

// UB creates an Undefined Behavior error carrying one or more UB codes.
func UB(detail string, codes ...UBCode) *Error {
	return &Error{Phase: PhaseExecute, Kind: KindUndefinedBehavior, Detail: detail, UBCodes: codes}
}

// ArenaOOM creates an object-arena out-of-memory error (spec §7 category 4).
func ArenaOOM(detail string, args ...any) *Error {
	return &Error{Phase: PhaseGC, Kind: KindArenaOOM, Detail: fmtDetail(detail, args)}
}

// HostFault creates a host-level fault (spec §7 category 5): surfaced
// before the first opcode executes.
func HostFault(phase Phase, cause error, detail string, args ...any) *Error {
	return &Error{Phase: phase, Kind: KindHostFault, Cause: cause, Detail: fmtDetail(detail, args)}
}

// MemoryAccess creates a VirtualMemory access error.
func MemoryAccess(addr, length uint64, reason string) *Error {
	return &Error{
		Phase:  PhaseExecute,
		Kind:   KindMemoryAccess,
		Detail: fmt.Sprintf("addr=0x%x len=%d: %s", addr, length, reason),
	}
}

// MMIOAccess creates a malformed-MMIO-control-word error.
func MMIOAccess(reason string) *Error {
	return &Error{Phase: PhaseMMIO, Kind: KindMMIOAccess, Detail: reason}
}

func fmtDetail(msg string, args []any) string {
	if len(args) == 0 {
		return msg
	}
	return fmt.Sprintf(msg, args...)
}

// WithBacktrace attaches rendered TraceContext chains to a UB error (for
// unsequenced-access conflicts, which report both conflicting accesses).
func (e *Error) WithBacktrace(frames ...string) *Error {
	e.Backtrace = frames
	return e
}
