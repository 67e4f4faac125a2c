package eval

import (
	"go.uber.org/zap"

	"github.com/cami-vm/cami/bytecode"
	"github.com/cami-vm/cami/camierrors"
	"github.com/cami-vm/cami/object"
	"github.com/cami-vm/cami/trace"
	"github.com/cami-vm/cami/types"
	"github.com/cami-vm/cami/vmem"
)

// Completion is a run's terminal outcome (spec §6.4).
type Completion int

const (
	RunHalt Completion = iota
	RunAbort
	RunException
)

func (c Completion) String() string {
	switch c {
	case RunHalt:
		return "halt"
	case RunAbort:
		return "abort"
	default:
		return "exception"
	}
}

// Result is what Run returns: how the run ended and, for a normal halt,
// the reported exit value.
type Result struct {
	Completion Completion
	ExitCode   int64
	Err        *camierrors.Error
}

// Evaluator is CAMI's fetch-decode-execute loop (spec §4.4): it owns the
// operand stack, designation register and call stack exclusively, and
// reads/writes through VirtualMemory and ObjectManager for everything
// else (spec §5's single-rooted ownership).
type Evaluator struct {
	mem       *vmem.Memory
	objects   *object.Manager
	loaded    *bytecode.Loaded
	logger    *zap.Logger

	pc          uint64
	stack       []RichValue
	designation Designation
	callStack   []*Frame
	rootCtx     *trace.Context
	execCounter uint64
	exprTables  [][]*trace.FullExprInfo
	stackTop    uint64

	finished bool
	exitCode int64
}

// New builds an Evaluator ready to run from the entry point of a Loaded
// program, with an initial frame already pushed for the entry function.
// Unlike `call`, New does not enter the entry function's block 0.
func New(loaded *bytecode.Loaded, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Evaluator{
		mem:        loaded.Memory,
		objects:    loaded.Objects,
		loaded:     loaded,
		logger:     logger,
		pc:         loaded.EntryPC,
		rootCtx:    trace.NewRoot(),
		exprTables: buildExprTables(loaded.Functions),
	}
	entryFn := loaded.Functions[loaded.EntryIndex]
	ctx := e.rootCtx.Call(trace.TraceLocation{}, uint32(loaded.EntryIndex))
	e.stackTop = vmem.StackBoundary - entryFn.FrameSize
	e.mem.NotifyStackPointer(e.stackTop)
	e.callStack = append(e.callStack, newFrame(loaded.EntryIndex, 0, 0, e.stackTop, entryFn.MaxObjectNum, ctx))
	return e
}

func (e *Evaluator) staticByIndex(i uint32) object.Ref {
	if int(i) >= len(e.loaded.StaticRefs) {
		return object.Ref{}
	}
	return e.loaded.StaticRefs[i]
}

func (e *Evaluator) function(i int) *bytecode.Function {
	return &e.loaded.Functions[i]
}

func (e *Evaluator) topFrame() *Frame {
	if len(e.callStack) == 0 {
		return nil
	}
	return e.callStack[len(e.callStack)-1]
}

func (e *Evaluator) push(v RichValue) { e.stack = append(e.stack, v) }

func (e *Evaluator) pop() (RichValue, *camierrors.Error) {
	if len(e.stack) == 0 {
		return RichValue{}, camierrors.CompilerGuarantee(camierrors.PhaseExecute, "operand stack underflow")
	}
	v := e.stack[len(e.stack)-1]
	e.stack = e.stack[:len(e.stack)-1]
	return v, nil
}

func (e *Evaluator) peek() (RichValue, *camierrors.Error) {
	if len(e.stack) == 0 {
		return RichValue{}, camierrors.CompilerGuarantee(camierrors.PhaseExecute, "operand stack underflow")
	}
	return e.stack[len(e.stack)-1], nil
}

// nextExecID hands out a fresh, process-wide monotonic instance id for a
// full expression as it begins (the `fe` opcode, see execFullExpr). Every
// access tag and call point recorded while that full expression is active
// shares its Frame's ExecID, so two accesses within the same full-expression
// instance fall through to the per-function sequenced-after bitmap instead
// of being trivially ordered by ExecID (see trace package).
func (e *Evaluator) nextExecID() uint64 {
	e.execCounter++
	return e.execCounter
}

// Run executes opcodes until halt, an unrecoverable error, or a host step
// budget is hit (maxSteps <= 0 means unbounded).
func (e *Evaluator) Run(maxSteps int) Result {
	steps := 0
	for {
		if maxSteps > 0 && steps >= maxSteps {
			return Result{Completion: RunException, Err: camierrors.HostFault(camierrors.PhaseExecute, nil, "step budget exhausted")}
		}
		steps++
		done, result := e.step()
		if done {
			return result
		}
	}
}

// Step executes exactly one opcode, for callers that drive the evaluator
// interactively (a debugger) rather than to completion. Returns whether
// the run is now over and, if so, its Result.
func (e *Evaluator) Step() (bool, Result) {
	return e.step()
}

// PC returns the current program counter, for introspection.
func (e *Evaluator) PC() uint64 { return e.pc }

// StackDepth returns the number of values currently on the operand stack.
func (e *Evaluator) StackDepth() int { return len(e.stack) }

// CallDepth returns the number of frames currently on the call stack.
func (e *Evaluator) CallDepth() int { return len(e.callStack) }

// CurrentFunction returns the name of the function the top frame belongs
// to, or "" if the evaluator has already finished.
func (e *Evaluator) CurrentFunction() string {
	f := e.topFrame()
	if f == nil {
		return ""
	}
	return e.function(f.FuncIndex).Name
}

// DesignationType reports whether the designation register holds a value and,
// if so, its lvalue type.
func (e *Evaluator) DesignationType() (*types.Type, bool) {
	if !e.designation.Valid {
		return nil, false
	}
	return e.designation.LValueType, true
}

// step fetches, decodes and executes exactly one opcode.
func (e *Evaluator) step() (bool, Result) {
	op, info, err := e.fetch()
	if err != nil {
		return true, Result{Completion: RunException, Err: err}
	}
	if op == OpHalt {
		code, herr := e.execHalt()
		if herr != nil {
			return true, Result{Completion: RunException, Err: herr}
		}
		return true, Result{Completion: RunHalt, ExitCode: code}
	}
	if err := e.dispatch(op, info); err != nil {
		if err.Kind == camierrors.KindArenaOOM {
			return true, Result{Completion: RunAbort, Err: err}
		}
		return true, Result{Completion: RunException, Err: err}
	}
	if e.finished {
		return true, Result{Completion: RunHalt, ExitCode: e.exitCode}
	}
	return false, Result{}
}

// fetch reads one opcode (and its 3-byte info word, if any) at pc and
// advances pc (spec §4.4.1).
func (e *Evaluator) fetch() (Opcode, uint32, *camierrors.Error) {
	var buf [4]byte
	if err := e.mem.Read(buf[:1], e.pc, 1); err != nil {
		return 0, 0, err.(*camierrors.Error)
	}
	op := Opcode(buf[0])
	if !hasInfo(op) {
		e.pc++
		return op, 0, nil
	}
	if err := e.mem.Read(buf[1:4], e.pc+1, 3); err != nil {
		return 0, 0, err.(*camierrors.Error)
	}
	e.pc += 4
	return op, decodeUint24(buf[1], buf[2], buf[3]), nil
}

// dispatch routes one decoded opcode to its handler, grouped exactly as
// spec §4.4.2's opcode catalog table.
func (e *Evaluator) dispatch(op Opcode, info uint32) *camierrors.Error {
	switch op {
	case OpDsg:
		return e.execDsg(decodeId24(info))
	case OpDrf:
		return e.execDrf()
	case OpDot:
		return e.execDot(decodeId24(info))
	case OpArrow:
		return e.execArrow(decodeId24(info))
	case OpAddr:
		return e.execAddr()

	case OpRead:
		return e.execRead()
	case OpMdf:
		return e.execModify(false)
	case OpMdfi:
		return e.execModify(true)
	case OpZero:
		return e.execZero(false)
	case OpZeroi:
		return e.execZero(true)

	case OpEb:
		return e.execEnterBlock(decodeId24(info))
	case OpLb:
		return e.execLeaveBlock()
	case OpFe:
		return e.execFullExpr(info)

	case OpNew:
		return e.execNew(info)
	case OpDel:
		return e.execDelete()

	case OpJ:
		e.pc = uint64(int64(e.pc) + int64(decodeInt24(byte(info), byte(info>>8), byte(info>>16))))
		return nil
	case OpJst:
		return e.execCondJump(info, true)
	case OpJnt:
		return e.execCondJump(info, false)
	case OpCall:
		return e.execCall(decodeId24(info))
	case OpIj:
		return e.execIndirectCall()
	case OpRet:
		return e.execReturn()

	case OpPush:
		return e.execPush(info)
	case OpPushu:
		e.push(RichValue{Value: Value{Kind: VUndefined}, Attributes: Attributes{Indeterminate: true}})
		return nil
	case OpPop:
		_, err := e.pop()
		return err
	case OpDup:
		v, err := e.peek()
		if err != nil {
			return err
		}
		e.push(v)
		return nil

	case OpCpl, OpNeg, OpPos, OpNot:
		return e.execUnary(op)
	case OpMul, OpDiv, OpMod, OpAdd, OpSub, OpLs, OpRs,
		OpSl, OpSle, OpSg, OpSge, OpSeq, OpSne, OpAnd, OpOr, OpXor:
		return e.execBinary(op)

	case OpCast:
		return e.execCast(info)

	case OpNop:
		return nil
	default:
		return camierrors.CompilerGuarantee(camierrors.PhaseDecode, "unknown opcode %d", op)
	}
}
