package eval

import (
	"github.com/cami-vm/cami/bytecode"
	"github.com/cami-vm/cami/camierrors"
	"github.com/cami-vm/cami/object"
	"github.com/cami-vm/cami/trace"
	"github.com/cami-vm/cami/types"
	"github.com/cami-vm/cami/vmem"
)

// execCondJump implements jst/jnt (spec §4.4.2): pop a truthiness value,
// and if it matches want, apply info's signed 24-bit offset to pc.
func (e *Evaluator) execCondJump(info uint32, want bool) *camierrors.Error {
	rv, err := e.pop()
	if err != nil {
		return err
	}
	if rv.Kind != VInteger {
		return camierrors.CompilerGuarantee(camierrors.PhaseExecute, "conditional jump on a non-scalar value")
	}
	if (rv.Bits != 0) == want {
		offset := decodeInt24(byte(info), byte(info>>8), byte(info>>16))
		e.pc = uint64(int64(e.pc) + int64(offset))
	}
	return nil
}

// execCall implements `call id` (spec §4.4.2/§4.4.3): id names a function
// entity directly, no compatibility check is needed (the compiler already
// resolved a concrete callee), so only the frame machinery applies.
func (e *Evaluator) execCall(id Id24) *camierrors.Error {
	if !id.IsFunction {
		return camierrors.CompilerGuarantee(camierrors.PhaseExecute, "call: id does not name a function")
	}
	return e.invoke(int(id.Index))
}

// execIndirectCall implements `ij` (spec §4.4.3 "call"): pop a function
// pointer value and transfer control to its referent, after checking the
// referent's type is compatible with the pointer's static type — plain
// sign-free compatibility is not enough here (spec: "requires the callee
// pointer's referent type to be compatible with the function entity's
// type").
func (e *Evaluator) execIndirectCall() *camierrors.Error {
	rv, err := e.pop()
	if err != nil {
		return err
	}
	if rv.Kind != VPointer {
		return camierrors.UB("indirect call through a null, dissociative or non-function pointer", camierrors.UBDerefInvalidPtr)
	}
	entity, ok := e.loaded.Entities[rv.RawAddr]
	if !ok || entity.Kind != bytecode.EntityFunction {
		return camierrors.UB("indirect call through a pointer that does not name a function", camierrors.UBDerefInvalidPtr)
	}
	fn := e.function(entity.FuncIndex)
	if !types.IsCompatible(rv.Type.Referenced, fn.EffectiveType) {
		return camierrors.UB("indirect call through a pointer whose referent type is incompatible with the callee", camierrors.UBIncompatibleFuncCall)
	}
	return e.invoke(entity.FuncIndex)
}

// invoke pushes a new frame for funcIndex, bump-allocating its stack
// region below the current stack top, materializes the arguments already
// on the operand stack into the callee's parameter slots (spec: "call"
// allocates locals and enters block 0), and transfers control.
func (e *Evaluator) invoke(funcIndex int) *camierrors.Error {
	fn := e.function(funcIndex)
	params := fn.EffectiveType.Params

	args := make([]RichValue, len(params))
	for i := len(params) - 1; i >= 0; i-- {
		rv, err := e.pop()
		if err != nil {
			return err
		}
		args[i] = rv
	}

	newTop := e.stackTop - fn.FrameSize
	if vmem.SegmentOf(newTop) != vmem.SegmentStack {
		return camierrors.ArenaOOM("call stack exhausted")
	}

	caller := e.topFrame()
	ctx := caller.Ctx.Call(trace.TraceLocation{
		ExecID:     caller.ExecID,
		FullExprID: caller.FullExprID,
		InnerID:    trace.NewInnerID(caller.NextInnerID, trace.AccessCoexisting),
	}, uint32(funcIndex))
	caller.NextInnerID++

	frame := newFrame(funcIndex, e.pc, len(e.stack), newTop, fn.MaxObjectNum, ctx)
	e.callStack = append(e.callStack, frame)
	e.stackTop = newTop
	e.mem.NotifyStackPointer(e.stackTop)

	if len(fn.Blocks) > 0 {
		block := fn.Blocks[0]
		created := make([]int, 0, len(block.Slots))
		for i, slot := range block.Slots {
			addr := frame.Base + fn.SlotOffsets[slot]
			ref, remap, err := e.objects.New(fn.SlotTypes[slot], addr, false, e.rootSet())
			if err != nil {
				return err
			}
			e.applyRemap(remap)
			frame.Slots[slot] = ref
			created = append(created, int(slot))
			if i < len(args) {
				if serr := e.storeValue(ref, args[i].Value); serr != nil {
					return serr
				}
				d := e.objects.Descriptor(ref)
				d.Status = object.StatusWell
			}
		}
		frame.Blocks = append(frame.Blocks, blockEntry{slots: created})
	}

	e.pc = vmem.CodeBase + fn.AddressInCode
	return nil
}

// execReturn implements `ret` (spec §4.4.2/§4.4.3): leaves every still-open
// block in LIFO order, releases the frame's trace context, restores pc
// and the stack pointer, and carries the top-of-operand-stack return
// value (if any) across the frame boundary. A ret from the outermost
// frame halts the run with that value as exit code.
func (e *Evaluator) execReturn() *camierrors.Error {
	frame := e.topFrame()
	for len(frame.Blocks) > 0 {
		e.leaveBlockOnce(frame)
	}

	var retVal *RichValue
	if len(e.stack) > frame.StackBase {
		v, err := e.pop()
		if err != nil {
			return err
		}
		retVal = &v
	}
	e.stack = e.stack[:frame.StackBase]

	frame.Ctx.Release()
	e.callStack = e.callStack[:len(e.callStack)-1]

	if len(e.callStack) == 0 {
		e.finished = true
		if retVal != nil {
			e.exitCode = retVal.AsInt64()
		}
		return nil
	}

	e.pc = frame.ReturnPC
	e.stackTop = frame.Base + e.function(frame.FuncIndex).FrameSize
	e.mem.NotifyStackPointer(e.stackTop)
	if retVal != nil {
		e.push(*retVal)
	}
	return nil
}
