package eval

import (
	"github.com/cami-vm/cami/camierrors"
	"github.com/cami-vm/cami/object"
	"github.com/cami-vm/cami/types"
)

// Designation is the single "current lvalue" register of spec §3.5, set
// by dsg/drf/dot/arrow and consumed by read/mdf/zero/addr. This port
// tracks the designated object directly by Ref rather than by a raw
// address + byte offset: dot/arrow re-designate to the already-wired
// sub-object (object.Manager's Subs), so no separate offset bookkeeping
// is needed to recover it.
type Designation struct {
	Valid      bool
	Obj        object.Ref
	LValueType *types.Type
}

func (e *Evaluator) setDesignation(obj object.Ref, lvalueType *types.Type) {
	e.designation = Designation{Valid: true, Obj: obj, LValueType: lvalueType}
}

// execDsg sets the designation register to the entity named by id (a
// static object or an automatic-object slot in the current frame).
func (e *Evaluator) execDsg(id Id24) *camierrors.Error {
	if id.IsFunction {
		return camierrors.ConstraintViolation(camierrors.PhaseExecute, "dsg on a function entity")
	}
	if id.IsGlobal {
		d := e.objects.Descriptor(e.staticByIndex(id.Index))
		if d == nil {
			return camierrors.CompilerGuarantee(camierrors.PhaseExecute, "dsg: static-object index %d has no descriptor", id.Index)
		}
		e.setDesignation(e.staticByIndex(id.Index), d.Type)
		return nil
	}
	frame := e.topFrame()
	if int(id.Index) >= len(frame.Slots) {
		return camierrors.CompilerGuarantee(camierrors.PhaseExecute, "dsg: automatic-slot index %d out of range", id.Index)
	}
	ref := frame.Slots[id.Index]
	d := e.objects.Descriptor(ref)
	if d == nil {
		return camierrors.CompilerGuarantee(camierrors.PhaseExecute, "dsg: automatic slot %d is not live", id.Index)
	}
	e.setDesignation(ref, d.Type)
	return nil
}

// execDrf designates the referent of the pointer value on top of the
// operand stack (a pointer-typed lvalue dereference).
func (e *Evaluator) execDrf() *camierrors.Error {
	v, err := e.pop()
	if err != nil {
		return err
	}
	switch v.Kind {
	case VPointer:
		if v.Entity.IsNil() {
			return camierrors.UB("dereference of a null or out-of-range pointer", camierrors.UBDerefInvalidPtr)
		}
		d := e.objects.Descriptor(v.Entity)
		if d == nil || d.Status == object.StatusDestroyed {
			return camierrors.UB("dereference of a pointer to a deleted object", camierrors.UBDerefInvalidPtr, camierrors.UBUsePtrValueRefDeletedObj)
		}
		lvalueType := d.Type
		if v.Type != nil {
			if ref := types.Unqualified(v.Type).Referenced; ref != nil {
				lvalueType = ref
			}
		}
		e.setDesignation(v.Entity, lvalueType)
		return nil
	case VDissociativePointer, VNull:
		return camierrors.UB("dereference of an invalid pointer value", camierrors.UBDerefInvalidPtr)
	default:
		return camierrors.ConstraintViolation(camierrors.PhaseExecute, "drf on a non-pointer value")
	}
}

// execDot navigates the designation register to struct/union member m
// (spec: "member access on the designated lvalue").
func (e *Evaluator) execDot(m Id24) *camierrors.Error {
	if !e.designation.Valid {
		return camierrors.CompilerGuarantee(camierrors.PhaseExecute, "dot with no designated lvalue")
	}
	d := e.objects.Descriptor(e.designation.Obj)
	if d == nil {
		return camierrors.UB("member access through a destroyed object", camierrors.UBReferDeletedObject)
	}
	ut := types.Unqualified(d.Type)
	if (ut.Kind != types.Struct && ut.Kind != types.Union) || int(m.Index) >= len(d.Subs) {
		return camierrors.CompilerGuarantee(camierrors.PhaseExecute, "dot: member index %d out of range", m.Index)
	}
	sub := d.Subs[m.Index]
	sd := e.objects.Descriptor(sub)
	e.setDesignation(sub, sd.Type)
	return nil
}

// execArrow dereferences the pointer value on top of the operand stack
// and immediately navigates to member m, i.e. `p->m`.
func (e *Evaluator) execArrow(m Id24) *camierrors.Error {
	if err := e.execDrf(); err != nil {
		return err
	}
	return e.execDot(m)
}

// execAddr pushes a Pointer value naming the currently designated object
// at offset 0.
func (e *Evaluator) execAddr() *camierrors.Error {
	if !e.designation.Valid {
		return camierrors.CompilerGuarantee(camierrors.PhaseExecute, "addr with no designated lvalue")
	}
	d := e.objects.Descriptor(e.designation.Obj)
	if d == nil {
		return camierrors.UB("address-of a destroyed object", camierrors.UBReferDeletedObject)
	}
	pt := &types.Type{Kind: types.Pointer, Referenced: e.designation.LValueType}
	e.push(RichValue{Value: Value{Kind: VPointer, Type: pt, Entity: e.designation.Obj, RawAddr: d.Address}})
	return nil
}
