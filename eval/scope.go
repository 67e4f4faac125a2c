package eval

import (
	"github.com/cami-vm/cami/camierrors"
	"github.com/cami-vm/cami/object"
)

// execEnterBlock creates every automatic object the named block declares
// (spec §4.4.2 "eb id": enter block, create its automatic objects).
func (e *Evaluator) execEnterBlock(id Id24) *camierrors.Error {
	frame := e.topFrame()
	fn := e.function(frame.FuncIndex)
	if int(id.Index) >= len(fn.Blocks) {
		return camierrors.CompilerGuarantee(camierrors.PhaseExecute, "eb: block index %d out of range", id.Index)
	}
	block := fn.Blocks[id.Index]
	created := make([]int, 0, len(block.Slots))
	for _, slot := range block.Slots {
		t := fn.SlotTypes[slot]
		addr := frame.Base + fn.SlotOffsets[slot]
		ref, remap, err := e.objects.New(t, addr, false, e.rootSet())
		if err != nil {
			return err
		}
		e.applyRemap(remap)
		frame.Slots[slot] = ref
		created = append(created, int(slot))
	}
	frame.Blocks = append(frame.Blocks, blockEntry{slots: created})
	return nil
}

// execLeaveBlock destroys the innermost still-open block's automatic
// objects (spec §4.4.2 "lb": leave block, destroy them; implicit full
// expression).
func (e *Evaluator) execLeaveBlock() *camierrors.Error {
	frame := e.topFrame()
	if len(frame.Blocks) == 0 {
		return camierrors.CompilerGuarantee(camierrors.PhaseExecute, "lb with no open block")
	}
	e.leaveBlockOnce(frame)
	return nil
}

func (e *Evaluator) leaveBlockOnce(frame *Frame) {
	block := frame.Blocks[len(frame.Blocks)-1]
	frame.Blocks = frame.Blocks[:len(frame.Blocks)-1]
	// Destroy in reverse creation order, mirroring C's reverse-declaration
	// destructor order for automatic storage.
	for i := len(block.slots) - 1; i >= 0; i-- {
		slot := block.slots[i]
		e.objects.Cleanup(frame.Slots[slot])
		frame.Slots[slot] = object.Ref{}
	}
}

// execFullExpr marks the start of a new full expression (spec §4.4.2 "fe
// id"), resetting the per-full-expression inner-id counter the trace
// machinery uses to position events in that expression's sequenced-after
// bitmap.
func (e *Evaluator) execFullExpr(id uint32) *camierrors.Error {
	frame := e.topFrame()
	frame.FullExprID = id
	frame.ExecID = e.nextExecID()
	frame.NextInnerID = 0
	return nil
}

// rootSet gathers the Evaluator's live CAMI-side roots for a GC call
// triggered from within New (spec §4.3.2 step 1 a/b/c): every
// pointer-typed value on the operand stack, the designation register's
// entity, and every live automatic-object slot across the whole call
// stack.
func (e *Evaluator) rootSet() object.RootSet {
	var roots object.RootSet
	for _, rv := range e.stack {
		if rv.Kind == VPointer && !rv.Entity.IsNil() {
			roots.OperandStack = append(roots.OperandStack, rv.Entity)
		}
	}
	if e.designation.Valid {
		roots.Designation = e.designation.Obj
		roots.HasDesignation = true
	}
	for _, frame := range e.callStack {
		for _, slot := range frame.Slots {
			if !slot.IsNil() {
				roots.AutomaticSlots = append(roots.AutomaticSlots, slot)
			}
		}
	}
	return roots
}

// applyRemap rewrites every CAMI-side reference the Evaluator owns after
// a GC moved something (spec §4.3.2 step 6's "rewrite every CAMI-side
// reference").
func (e *Evaluator) applyRemap(remap object.Remap) {
	if !remap.Moved() {
		return
	}
	for i, rv := range e.stack {
		if rv.Kind == VPointer && !rv.Entity.IsNil() {
			e.stack[i].Entity = remap.Apply(rv.Entity)
		}
	}
	if e.designation.Valid {
		e.designation.Obj = remap.Apply(e.designation.Obj)
	}
	for _, frame := range e.callStack {
		for i, slot := range frame.Slots {
			if !slot.IsNil() {
				frame.Slots[i] = remap.Apply(slot)
			}
		}
	}
}
