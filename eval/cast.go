package eval

import (
	"math"

	"github.com/cami-vm/cami/camierrors"
	"github.com/cami-vm/cami/object"
	"github.com/cami-vm/cami/types"
)

// execCast implements `cast type_id` (spec §4.4.2/§4.4.3): pops a value
// and pushes it reinterpreted as the info-th entry of the types table.
func (e *Evaluator) execCast(info uint32) *camierrors.Error {
	if int(info) >= len(e.loaded.Types) {
		return camierrors.CompilerGuarantee(camierrors.PhaseExecute, "cast: type index %d out of range", info)
	}
	target := e.loaded.Types[info]
	ut := types.Unqualified(target)
	rv, err := e.pop()
	if err != nil {
		return err
	}
	srcUt := types.Unqualified(rv.Type)

	switch {
	case types.IsArithmetic(srcUt) && types.IsArithmetic(ut):
		return e.castArithmetic(target, ut, rv)
	case types.IsPointerLike(srcUt) && types.IsInteger(ut):
		return e.castPointerToInteger(target, ut, rv)
	case types.IsInteger(srcUt) && types.IsPointerLike(ut):
		return e.castIntegerToPointer(target, rv)
	case types.IsPointerLike(srcUt) && types.IsPointerLike(ut):
		return e.castPointerToPointer(target, ut, rv)
	default:
		return camierrors.CompilerGuarantee(camierrors.PhaseExecute, "cast between unsupported type kinds")
	}
}

func (e *Evaluator) castArithmetic(target, ut *types.Type, rv RichValue) *camierrors.Error {
	srcUt := types.Unqualified(rv.Type)
	switch {
	case types.IsInteger(srcUt) && types.IsInteger(ut):
		e.push(RichValue{Value: IntegerValue(target, rv.Bits)})
		return nil
	case types.IsInteger(srcUt) && ut.Kind == types.F32:
		e.push(RichValue{Value: F32Value(float32(intAsFloat(rv)))})
		return nil
	case types.IsInteger(srcUt) && ut.Kind == types.F64:
		e.push(RichValue{Value: F64Value(intAsFloat(rv))})
		return nil
	case srcUt.Kind == types.F32 && types.IsInteger(ut):
		return e.floatToInt(target, ut, float64(rv.F32()))
	case srcUt.Kind == types.F64 && types.IsInteger(ut):
		return e.floatToInt(target, ut, rv.F64())
	case srcUt.Kind == types.F32 && ut.Kind == types.F64:
		e.push(RichValue{Value: F64Value(float64(rv.F32()))})
		return nil
	case srcUt.Kind == types.F64 && ut.Kind == types.F32:
		f := rv.F64()
		if math.Abs(f) > math.MaxFloat32 {
			return camierrors.UB("double-to-float demotion out of range", camierrors.UBRealFloatDemotion)
		}
		e.push(RichValue{Value: F32Value(float32(f))})
		return nil
	default:
		e.push(RichValue{Value: rv.Value})
		return nil
	}
}

func intAsFloat(rv RichValue) float64 {
	if isSigned(types.Unqualified(rv.Type)) {
		return float64(rv.AsInt64())
	}
	return float64(rv.AsUint64())
}

func (e *Evaluator) floatToInt(target, ut *types.Type, f float64) *camierrors.Error {
	width := types.Size(ut) * 8
	if width == 0 || width > 64 {
		width = 64
	}
	var lo, hi float64
	if isSigned(ut) {
		lo = -math.Exp2(float64(width - 1))
		hi = math.Exp2(float64(width-1)) - 1
	} else {
		lo = 0
		hi = math.Exp2(float64(width)) - 1
	}
	if f < lo || f > hi || math.IsNaN(f) {
		return camierrors.UB("floating-to-integer conversion out of range", camierrors.UBExceptionalCondition)
	}
	e.push(RichValue{Value: IntegerValue(target, uint64(int64(f)))})
	return nil
}

func (e *Evaluator) castPointerToInteger(target, ut *types.Type, rv RichValue) *camierrors.Error {
	width := types.Size(ut) * 8
	if width < 64 && rv.RawAddr>>width != 0 {
		return camierrors.UB("pointer value is not representable in the target integer type", camierrors.UBCastToOrFromInteger)
	}
	e.push(RichValue{Value: IntegerValue(target, rv.RawAddr)})
	return nil
}

// castIntegerToPointer implements spec §4.4.3's cast: looks up the exact
// address in the entity map; if an object starts there, the result names
// the most specific sub-object starting at that address whose type matches
// the target's referent type; otherwise the result is a DissociativePointer.
// An address strictly inside an object (not at the start of the object or
// of one of its sub-objects) is not resolved and also gives a
// DissociativePointer.
func (e *Evaluator) castIntegerToPointer(target *types.Type, rv RichValue) *camierrors.Error {
	addr := rv.AsUint64()
	if addr == 0 {
		e.push(RichValue{Value: Value{Kind: VNull, Type: target}})
		return nil
	}
	ref, ok := e.objects.EntityAt(addr)
	if !ok {
		e.push(RichValue{Value: Value{Kind: VDissociativePointer, Type: target, RawAddr: addr}})
		return nil
	}
	best, found := e.mostSpecificSub(ref, target.Referenced)
	if !found {
		e.push(RichValue{Value: Value{Kind: VDissociativePointer, Type: target, RawAddr: addr}})
		return nil
	}
	d := e.objects.Descriptor(best)
	if err := e.checkPointerAlignment(d.Address, target.Referenced); err != nil {
		return err
	}
	e.push(RichValue{Value: Value{Kind: VPointer, Type: target, Entity: best, RawAddr: d.Address}})
	return nil
}

// mostSpecificSub descends ref's sub-object tree (restricted to sub-objects
// sharing ref's starting address) looking for a member whose type matches
// want, reporting false if none does (spec §4.4.3: otherwise a
// DissociativePointer).
func (e *Evaluator) mostSpecificSub(ref object.Ref, want *types.Type) (object.Ref, bool) {
	d := e.objects.Descriptor(ref)
	if d == nil {
		return ref, false
	}
	if types.IsCompatible(d.Type, want) {
		return ref, true
	}
	for _, sub := range d.Subs {
		sd := e.objects.Descriptor(sub)
		if sd != nil && sd.Address == d.Address {
			if found, ok := e.mostSpecificSub(sub, want); ok {
				return found, true
			}
		}
	}
	return ref, false
}

func (e *Evaluator) checkPointerAlignment(addr uint64, referent *types.Type) *camierrors.Error {
	align := types.Align(referent)
	if align > 1 && addr%align != 0 {
		return camierrors.UB("pointer cast result is misaligned for its referent type", camierrors.UBUnalignedPtrCast)
	}
	return nil
}

func (e *Evaluator) castPointerToPointer(target, ut *types.Type, rv RichValue) *camierrors.Error {
	if rv.Kind == VNull || rv.RawAddr == 0 {
		e.push(RichValue{Value: Value{Kind: VNull, Type: target}})
		return nil
	}
	if err := e.checkPointerAlignment(rv.RawAddr, ut.Referenced); err != nil {
		return err
	}
	e.push(RichValue{Value: Value{Kind: rv.Kind, Type: target, Entity: rv.Entity, RawAddr: rv.RawAddr, Offset: rv.Offset}})
	return nil
}
