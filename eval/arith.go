package eval

import (
	"math"

	"github.com/cami-vm/cami/camierrors"
	"github.com/cami-vm/cami/object"
	"github.com/cami-vm/cami/types"
)

// execUnary implements cpl/neg/pos/not (spec §4.4.2).
func (e *Evaluator) execUnary(op Opcode) *camierrors.Error {
	rv, err := e.pop()
	if err != nil {
		return err
	}
	ut := types.Unqualified(rv.Type)

	switch op {
	case OpPos:
		e.push(RichValue{Value: rv.Value})
		return nil
	case OpNot:
		var b uint64
		if rv.Bits == 0 {
			b = 1
		}
		e.push(RichValue{Value: IntegerValue(&types.Type{Kind: types.I32}, b)})
		return nil
	case OpCpl:
		if !types.IsInteger(ut) {
			return camierrors.CompilerGuarantee(camierrors.PhaseExecute, "cpl on a non-integer value")
		}
		e.push(RichValue{Value: IntegerValue(rv.Type, ^rv.Bits)})
		return nil
	case OpNeg:
		switch {
		case ut.Kind == types.F32:
			e.push(RichValue{Value: F32Value(-rv.F32())})
			return nil
		case ut.Kind == types.F64:
			e.push(RichValue{Value: F64Value(-rv.F64())})
			return nil
		case types.IsInteger(ut):
			if isSigned(ut) {
				width := types.Size(ut) * 8
				minVal := int64(-1) << (width - 1)
				if width >= 64 {
					minVal = math.MinInt64
				}
				if rv.AsInt64() == minVal {
					return camierrors.UB("negation of the most negative signed value overflows", camierrors.UBExceptionalCondition)
				}
			}
			e.push(RichValue{Value: IntegerValue(rv.Type, uint64(-rv.AsInt64()))})
			return nil
		default:
			return camierrors.CompilerGuarantee(camierrors.PhaseExecute, "neg on a non-arithmetic value")
		}
	default:
		return camierrors.CompilerGuarantee(camierrors.PhaseExecute, "not a unary opcode")
	}
}

func commonType(a, b *types.Type) *types.Type {
	if types.Size(types.Unqualified(a)) >= types.Size(types.Unqualified(b)) {
		return a
	}
	return b
}

// execBinary implements the 15 binary opcodes of spec §4.4.2/§4.4.3.
func (e *Evaluator) execBinary(op Opcode) *camierrors.Error {
	rhs, err := e.pop()
	if err != nil {
		return err
	}
	lhs, err := e.pop()
	if err != nil {
		return err
	}

	if types.IsPointerLike(types.Unqualified(lhs.Type)) || types.IsPointerLike(types.Unqualified(rhs.Type)) {
		return e.execPointerBinary(op, lhs, rhs)
	}

	lut := types.Unqualified(lhs.Type)
	if lut.Kind == types.F32 || lut.Kind == types.F64 {
		return e.execFloatBinary(op, lhs, rhs)
	}
	return e.execIntBinary(op, lhs, rhs)
}

func (e *Evaluator) execFloatBinary(op Opcode, lhs, rhs RichValue) *camierrors.Error {
	is64 := types.Unqualified(lhs.Type).Kind == types.F64
	var a, b float64
	if is64 {
		a, b = lhs.F64(), rhs.F64()
	} else {
		a, b = float64(lhs.F32()), float64(rhs.F32())
	}
	cmp := func(r bool) {
		var bits uint64
		if r {
			bits = 1
		}
		e.push(RichValue{Value: IntegerValue(&types.Type{Kind: types.I32}, bits)})
	}
	switch op {
	case OpAdd:
		e.pushFloat(is64, a+b)
	case OpSub:
		e.pushFloat(is64, a-b)
	case OpMul:
		e.pushFloat(is64, a*b)
	case OpDiv:
		if b == 0 {
			return camierrors.UB("floating-point division by zero", camierrors.UBDivOrModZero)
		}
		e.pushFloat(is64, a/b)
	case OpSl:
		cmp(a < b)
	case OpSle:
		cmp(a <= b)
	case OpSg:
		cmp(a > b)
	case OpSge:
		cmp(a >= b)
	case OpSeq:
		cmp(a == b)
	case OpSne:
		cmp(a != b)
	default:
		return camierrors.CompilerGuarantee(camierrors.PhaseExecute, "opcode %s not defined over floating values", op)
	}
	return nil
}

func (e *Evaluator) pushFloat(is64 bool, v float64) {
	if is64 {
		e.push(RichValue{Value: F64Value(v)})
	} else {
		e.push(RichValue{Value: F32Value(float32(v))})
	}
}

func (e *Evaluator) execIntBinary(op Opcode, lhs, rhs RichValue) *camierrors.Error {
	rt := commonType(lhs.Type, rhs.Type)
	signed := isSigned(types.Unqualified(rt))
	width := types.Size(types.Unqualified(rt)) * 8
	if width == 0 || width > 64 {
		width = 64
	}
	a, b := lhs.AsInt64(), rhs.AsInt64()
	ua, ub := lhs.AsUint64(), rhs.AsUint64()

	cmp := func(r bool) {
		var bits uint64
		if r {
			bits = 1
		}
		e.push(RichValue{Value: IntegerValue(&types.Type{Kind: types.I32}, bits)})
	}

	switch op {
	case OpAdd:
		if signed {
			r := a + b
			if overflowsAdd(a, b, r, width) {
				return camierrors.UB("signed integer addition overflows", camierrors.UBExceptionalCondition)
			}
			e.push(RichValue{Value: IntegerValue(rt, uint64(r))})
		} else {
			e.push(RichValue{Value: IntegerValue(rt, ua+ub)})
		}
	case OpSub:
		if signed {
			r := a - b
			if overflowsAdd(a, -b, r, width) {
				return camierrors.UB("signed integer subtraction overflows", camierrors.UBExceptionalCondition)
			}
			e.push(RichValue{Value: IntegerValue(rt, uint64(r))})
		} else {
			e.push(RichValue{Value: IntegerValue(rt, ua-ub)})
		}
	case OpMul:
		if signed {
			r := a * b
			if overflowsMul(a, b, r, width) {
				return camierrors.UB("signed integer multiplication overflows", camierrors.UBExceptionalCondition)
			}
			e.push(RichValue{Value: IntegerValue(rt, uint64(r))})
		} else {
			e.push(RichValue{Value: IntegerValue(rt, ua*ub)})
		}
	case OpDiv:
		if b == 0 {
			return camierrors.UB("division by zero", camierrors.UBDivOrModZero)
		}
		if signed {
			minVal := int64(-1) << (width - 1)
			if width >= 64 {
				minVal = math.MinInt64
			}
			if a == minVal && b == -1 {
				return camierrors.UB("signed division overflows", camierrors.UBExceptionalCondition)
			}
			e.push(RichValue{Value: IntegerValue(rt, uint64(a/b))})
		} else {
			e.push(RichValue{Value: IntegerValue(rt, ua/ub)})
		}
	case OpMod:
		if b == 0 {
			return camierrors.UB("modulus by zero", camierrors.UBDivOrModZero)
		}
		if signed {
			e.push(RichValue{Value: IntegerValue(rt, uint64(a%b))})
		} else {
			e.push(RichValue{Value: IntegerValue(rt, ua%ub)})
		}
	case OpLs, OpRs:
		if ub >= width {
			return camierrors.UB("shift amount is outside [0, width)", camierrors.UBInvalidRHSOfShift)
		}
		if op == OpLs {
			if signed && a < 0 {
				return camierrors.UB("left shift of a negative signed value", camierrors.UBInvalidResultOfLeftShift)
			}
			r := ua << ub
			if signed && width < 64 && overflowsShiftLeft(ua, ub, width) {
				return camierrors.UB("left shift result does not fit the type", camierrors.UBInvalidResultOfLeftShift)
			}
			e.push(RichValue{Value: IntegerValue(rt, r)})
		} else {
			if signed {
				e.push(RichValue{Value: IntegerValue(rt, uint64(a>>ub))})
			} else {
				e.push(RichValue{Value: IntegerValue(rt, ua>>ub)})
			}
		}
	case OpAnd:
		e.push(RichValue{Value: IntegerValue(rt, ua&ub)})
	case OpOr:
		e.push(RichValue{Value: IntegerValue(rt, ua|ub)})
	case OpXor:
		e.push(RichValue{Value: IntegerValue(rt, ua^ub)})
	case OpSl:
		if signed {
			cmp(a < b)
		} else {
			cmp(ua < ub)
		}
	case OpSle:
		if signed {
			cmp(a <= b)
		} else {
			cmp(ua <= ub)
		}
	case OpSg:
		if signed {
			cmp(a > b)
		} else {
			cmp(ua > ub)
		}
	case OpSge:
		if signed {
			cmp(a >= b)
		} else {
			cmp(ua >= ub)
		}
	case OpSeq:
		cmp(ua == ub)
	case OpSne:
		cmp(ua != ub)
	default:
		return camierrors.CompilerGuarantee(camierrors.PhaseExecute, "opcode %s not defined over integer values", op)
	}
	return nil
}

func overflowsAdd(a, b, r int64, width uint64) bool {
	if width >= 64 {
		return (b > 0 && r < a) || (b < 0 && r > a)
	}
	minVal := int64(-1) << (width - 1)
	maxVal := (int64(1) << (width - 1)) - 1
	return r < minVal || r > maxVal
}

// overflowsMul reports whether a*b overflows a signed integer of the given
// width. r is a*b computed in int64: for width<64 the narrow operands are
// sign-extended so the product never overflows int64 itself, so a plain
// range check against the type's [min,max] suffices; for width==64 the
// product can genuinely wrap int64, so the classic r/a!=b check is used
// instead (mirrors overflowsAdd's width split).
func overflowsMul(a, b, r int64, width uint64) bool {
	if width >= 64 {
		return a != 0 && r/a != b
	}
	minVal := int64(-1) << (width - 1)
	maxVal := (int64(1) << (width - 1)) - 1
	return r < minVal || r > maxVal
}

func overflowsShiftLeft(ua, ub, width uint64) bool {
	maxVal := uint64(1)<<(width-1) - 1
	return (ua << ub) > maxVal
}

// execPointerBinary implements pointer arithmetic/subtraction/comparison
// (spec §4.4.3).
func (e *Evaluator) execPointerBinary(op Opcode, lhs, rhs RichValue) *camierrors.Error {
	switch op {
	case OpAdd, OpSub:
		var ptr, intVal RichValue
		negate := false
		if types.IsPointerLike(types.Unqualified(lhs.Type)) {
			ptr, intVal = lhs, rhs
			if op == OpSub && types.IsPointerLike(types.Unqualified(rhs.Type)) {
				return e.pointerSubtract(lhs, rhs)
			}
			if op == OpSub {
				negate = true
			}
		} else {
			ptr, intVal = rhs, lhs
		}
		return e.pointerAdd(ptr, intVal.AsInt64(), negate)
	case OpSl, OpSle, OpSg, OpSge:
		return e.pointerCompare(op, lhs, rhs)
	case OpSeq, OpSne:
		eq := lhs.Entity == rhs.Entity && lhs.RawAddr == rhs.RawAddr && lhs.Offset == rhs.Offset
		var bits uint64
		if (op == OpSeq) == eq {
			bits = 1
		}
		e.push(RichValue{Value: IntegerValue(&types.Type{Kind: types.I32}, bits)})
		return nil
	default:
		return camierrors.CompilerGuarantee(camierrors.PhaseExecute, "opcode %s not defined over pointer values", op)
	}
}

func (e *Evaluator) pointerAdd(ptr RichValue, k int64, negate bool) *camierrors.Error {
	if negate {
		k = -k
	}
	if ptr.Entity.IsNil() {
		return camierrors.UB("arithmetic on a dissociative or null pointer", camierrors.UBPtrAdditionOOB)
	}
	d := e.objects.Descriptor(ptr.Entity)
	if d == nil {
		return camierrors.UB("arithmetic on a pointer to a destroyed object", camierrors.UBReferDeletedObject)
	}
	referent := ptr.Type.Referenced
	isCharView := types.IsCCharacter(referent) && !types.IsCompatible(referent, d.Type)
	if isCharView {
		newOffset := int64(ptr.Offset) + k
		if newOffset < 0 || uint64(newOffset) > types.Size(d.Type) {
			return camierrors.UB("character-view pointer arithmetic out of bounds", camierrors.UBPtrAdditionOOB)
		}
		e.push(RichValue{Value: Value{Kind: VPointer, Type: ptr.Type, Entity: ptr.Entity, RawAddr: ptr.RawAddr, Offset: uint64(newOffset)}})
		return nil
	}

	super := e.objects.Descriptor(d.Super)
	if super == nil || types.Unqualified(super.Type).Kind != types.Array {
		// A non-array object is treated as a length-1 array: only index 0
		// and the one-past-end index 1 are valid (spec §4.4.3).
		newIdx := int64(ptr.Offset) + k
		if newIdx < 0 || newIdx > 1 {
			return camierrors.UB("pointer arithmetic past a non-array object's one-past-end", camierrors.UBIndexOOB)
		}
		e.push(RichValue{Value: Value{Kind: VPointer, Type: ptr.Type, Entity: ptr.Entity, RawAddr: ptr.RawAddr, Offset: uint64(newIdx)}})
		return nil
	}
	arrLen := int64(types.Unqualified(super.Type).Length)
	idx := elementIndex(super, ptr.Entity) + int64(ptr.Offset)
	newIdx := idx + k
	if newIdx < 0 || newIdx > arrLen {
		return camierrors.UB("pointer arithmetic outside the array", camierrors.UBPtrAdditionOOB, camierrors.UBIndexOOB)
	}
	e.push(RichValue{Value: Value{Kind: VPointer, Type: ptr.Type, Entity: ptr.Entity, RawAddr: ptr.RawAddr, Offset: uint64(newIdx)}})
	return nil
}

// elementIndex returns elem's position within super's Subs, or 0 if not
// found (elem is super itself, treated as element 0).
func elementIndex(super *object.Descriptor, elem object.Ref) int64 {
	for i, s := range super.Subs {
		if s == elem {
			return int64(i)
		}
	}
	return 0
}

func (e *Evaluator) pointerSubtract(a, b RichValue) *camierrors.Error {
	if a.Entity.IsNil() || b.Entity.IsNil() {
		return camierrors.UB("subtraction of a dissociative or null pointer", camierrors.UBInvalidPtrSubtraction)
	}
	da := e.objects.Descriptor(a.Entity)
	db := e.objects.Descriptor(b.Entity)
	if da == nil || db == nil {
		return camierrors.UB("subtraction through a destroyed pointer referent", camierrors.UBReferDeletedObject)
	}
	if !sameArray(e.objects, da, db) {
		return camierrors.UB("pointer subtraction across different arrays", camierrors.UBInvalidPtrSubtraction)
	}
	diff := int64(a.Offset) - int64(b.Offset)
	e.push(RichValue{Value: IntegerValue(&types.Type{Kind: types.I64}, uint64(diff))})
	return nil
}

func (e *Evaluator) pointerCompare(op Opcode, a, b RichValue) *camierrors.Error {
	if a.Entity.IsNil() || b.Entity.IsNil() {
		return camierrors.UB("comparison of a dissociative or null pointer", camierrors.UBInvalidPtrCompare)
	}
	da := e.objects.Descriptor(a.Entity)
	db := e.objects.Descriptor(b.Entity)
	if da == nil || db == nil {
		return camierrors.UB("comparison through a destroyed pointer referent", camierrors.UBReferDeletedObject)
	}
	if topObject(e.objects, a.Entity) != topObject(e.objects, b.Entity) {
		return camierrors.UB("pointer comparison across different top objects", camierrors.UBInvalidPtrCompare)
	}
	ao, bo := int64(a.Offset), int64(b.Offset)
	var r bool
	switch op {
	case OpSl:
		r = ao < bo
	case OpSle:
		r = ao <= bo
	case OpSg:
		r = ao > bo
	case OpSge:
		r = ao >= bo
	}
	var bits uint64
	if r {
		bits = 1
	}
	e.push(RichValue{Value: IntegerValue(&types.Type{Kind: types.I32}, bits)})
	return nil
}

// sameArray reports whether a and b are both elements of the same array
// (same Super), or are the same standalone object (spec §4.4.3 pointer
// subtraction).
func sameArray(objects *object.Manager, a, b *object.Descriptor) bool {
	if a == b {
		return true
	}
	if a.Super.IsNil() || a.Super != b.Super {
		return false
	}
	super := objects.Descriptor(a.Super)
	return super != nil && types.Unqualified(super.Type).Kind == types.Array
}

// topObject walks Super links to the outermost containing object, used to
// check that two pointers designate the same top object (spec §4.4.3
// pointer comparison).
func topObject(objects *object.Manager, ref object.Ref) object.Ref {
	for {
		d := objects.Descriptor(ref)
		if d == nil || d.Super.IsNil() {
			return ref
		}
		ref = d.Super
	}
}
