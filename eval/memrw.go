package eval

import (
	"encoding/binary"

	"github.com/cami-vm/cami/camierrors"
	"github.com/cami-vm/cami/object"
	"github.com/cami-vm/cami/trace"
	"github.com/cami-vm/cami/types"
)

func isVolatileType(t *types.Type) bool {
	return t.Kind == types.Qualified && t.Qualifiers.Volatile()
}

func isConstType(t *types.Type) bool {
	return t.Kind == types.Qualified && t.Qualifiers.Const()
}

// readable implements spec §4.4.3's readable-status rule: every scalar
// leaf well for a struct/array, at least one readable leaf for a union,
// the object's own status for a scalar.
func readable(objects *object.Manager, ref object.Ref) bool {
	d := objects.Descriptor(ref)
	if d == nil {
		return false
	}
	ut := types.Unqualified(d.Type)
	switch ut.Kind {
	case types.Struct, types.Array:
		for _, s := range d.Subs {
			if !readable(objects, s) {
				return false
			}
		}
		return true
	case types.Union:
		if len(d.Subs) == 0 {
			return true
		}
		for _, s := range d.Subs {
			if readable(objects, s) {
				return true
			}
		}
		return false
	default:
		return d.Status == object.StatusWell
	}
}

// addressRange returns [addr, addr+size) for ref's object.
func (e *Evaluator) addressRange(ref object.Ref) (uint64, uint64) {
	d := e.objects.Descriptor(ref)
	if d == nil {
		return 0, 0
	}
	return d.Address, d.Address + types.Size(d.Type)
}

// overlapsPartially reports whether a and b's byte ranges intersect
// without one containing the other (spec §4.4.3 overlap_obj_assign).
func overlapsPartially(aLo, aHi, bLo, bHi uint64) bool {
	if aHi <= bLo || bHi <= aLo {
		return false // disjoint
	}
	contains := (aLo <= bLo && bHi <= aHi) || (bLo <= aLo && aHi <= bHi)
	return !contains
}

// loadValue decodes the bytes of obj as lvalueType (spec §4.4.3 read).
func (e *Evaluator) loadValue(obj object.Ref, lvalueType *types.Type) (Value, *camierrors.Error) {
	d := e.objects.Descriptor(obj)
	ut := types.Unqualified(lvalueType)

	switch {
	case types.IsInteger(ut):
		var buf [8]byte
		n := types.Size(ut)
		if err := e.mem.Read(buf[:n], d.Address, n); err != nil {
			return Value{}, err.(*camierrors.Error)
		}
		var bits uint64
		for i := uint64(0); i < n; i++ {
			bits |= uint64(buf[i]) << (8 * i)
		}
		return IntegerValue(lvalueType, bits), nil
	case ut.Kind == types.F32:
		var buf [4]byte
		if err := e.mem.Read(buf[:], d.Address, 4); err != nil {
			return Value{}, err.(*camierrors.Error)
		}
		return Value{Kind: VF32, Type: lvalueType, Bits: uint64(binary.LittleEndian.Uint32(buf[:]))}, nil
	case ut.Kind == types.F64:
		var buf [8]byte
		if err := e.mem.Read(buf[:], d.Address, 8); err != nil {
			return Value{}, err.(*camierrors.Error)
		}
		return Value{Kind: VF64, Type: lvalueType, Bits: binary.LittleEndian.Uint64(buf[:])}, nil
	case types.IsPointerLike(ut):
		var buf [16]byte
		if err := e.mem.Read(buf[:], d.Address, 16); err != nil {
			return Value{}, err.(*camierrors.Error)
		}
		base := binary.LittleEndian.Uint64(buf[0:8])
		offset := binary.LittleEndian.Uint64(buf[8:16])
		if entity, ok := e.objects.EntityAt(base); ok {
			return Value{Kind: VPointer, Type: lvalueType, Entity: entity, RawAddr: base, Offset: offset}, nil
		}
		if _, ok := e.loaded.Entities[base]; ok {
			return Value{Kind: VPointer, Type: lvalueType, RawAddr: base, Offset: offset}, nil
		}
		if base == 0 {
			return Value{Kind: VNull, Type: lvalueType}, nil
		}
		return Value{Kind: VDissociativePointer, Type: lvalueType, RawAddr: base, Offset: offset}, nil
	case ut.Kind == types.Struct || ut.Kind == types.Union:
		return Value{Kind: VStructOrUnion, Type: lvalueType, Backing: obj}, nil
	default:
		return Value{}, camierrors.ConstraintViolation(camierrors.PhaseExecute, "read of an unreadable lvalue type")
	}
}

// storeValue encodes v's bits into obj's bytes (spec §4.4.3 modify).
func (e *Evaluator) storeValue(obj object.Ref, v Value) *camierrors.Error {
	d := e.objects.Descriptor(obj)
	switch v.Kind {
	case VInteger:
		n := types.Size(types.Unqualified(d.Type))
		var buf [8]byte
		for i := uint64(0); i < n; i++ {
			buf[i] = byte(v.Bits >> (8 * i))
		}
		if err := e.mem.Write(d.Address, buf[:n]); err != nil {
			return err.(*camierrors.Error)
		}
	case VF32:
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], uint32(v.Bits))
		if err := e.mem.Write(d.Address, buf[:]); err != nil {
			return err.(*camierrors.Error)
		}
	case VF64:
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], v.Bits)
		if err := e.mem.Write(d.Address, buf[:]); err != nil {
			return err.(*camierrors.Error)
		}
	case VPointer, VDissociativePointer, VNull:
		var buf [16]byte
		binary.LittleEndian.PutUint64(buf[0:8], v.RawAddr)
		binary.LittleEndian.PutUint64(buf[8:16], v.Offset)
		if err := e.mem.Write(d.Address, buf[:]); err != nil {
			return err.(*camierrors.Error)
		}
		if old, ok := e.objects.ReferencedObject(obj); ok {
			e.objects.RemoveReference(obj, old)
		}
		if !v.Entity.IsNil() {
			e.objects.AddReference(obj, v.Entity)
		}
	case VStructOrUnion:
		size := types.Size(d.Type)
		buf := make([]byte, size)
		src := e.objects.Descriptor(v.Backing)
		if src == nil {
			return camierrors.UB("struct/union assignment from a destroyed object", camierrors.UBReferDeletedObject)
		}
		if err := e.mem.Read(buf, src.Address, size); err != nil {
			return err.(*camierrors.Error)
		}
		if err := e.mem.Write(d.Address, buf); err != nil {
			return err.(*camierrors.Error)
		}
	default:
		return camierrors.ConstraintViolation(camierrors.PhaseExecute, "modify with an unwritable value kind")
	}
	return nil
}

func (e *Evaluator) execRead() *camierrors.Error {
	if !e.designation.Valid {
		return camierrors.CompilerGuarantee(camierrors.PhaseExecute, "read with no designated lvalue")
	}
	obj := e.designation.Obj
	d := e.objects.Descriptor(obj)
	if d == nil {
		return camierrors.UB("read through a destroyed object", camierrors.UBReferDeletedObject)
	}
	lvalueType := e.designation.LValueType
	if !types.IsAllowed(lvalueType, d.Type) {
		return camierrors.UB("lvalue type does not view this object's effective type", camierrors.UBIncompatibleRead)
	}
	if isVolatileType(d.Type) && !isVolatileType(lvalueType) {
		return camierrors.UB("read of a volatile object through a non-volatile lvalue", camierrors.UBInvalidReadVolatileObj)
	}
	if !readable(e.objects, obj) {
		return camierrors.UB("read of an object with indeterminate representation", camierrors.UBReadIndeterminateRepr)
	}
	if err := e.attachAccessTag(obj, trace.AccessCoexisting); err != nil {
		return err
	}
	v, err := e.loadValue(obj, lvalueType)
	if err != nil {
		return err
	}
	e.push(RichValue{Value: v, Attributes: Attributes{DirectlyReadFrom: obj}})
	return nil
}

func (e *Evaluator) execModify(initOnly bool) *camierrors.Error {
	if !e.designation.Valid {
		return camierrors.CompilerGuarantee(camierrors.PhaseExecute, "mdf with no designated lvalue")
	}
	obj := e.designation.Obj
	d := e.objects.Descriptor(obj)
	if d == nil {
		return camierrors.UB("modify of a destroyed object", camierrors.UBReferDeletedObject)
	}
	if !initOnly && isConstType(d.Type) {
		return camierrors.UB("modification of a const object", camierrors.UBModifyConstObj)
	}
	rv, err := e.pop()
	if err != nil {
		return err
	}
	if !rv.DirectlyReadFrom.IsNil() && rv.DirectlyReadFrom != obj {
		srcLo, srcHi := e.addressRange(rv.DirectlyReadFrom)
		dstLo, dstHi := e.addressRange(obj)
		if overlapsPartially(srcLo, srcHi, dstLo, dstHi) {
			return camierrors.UB("assignment from a partially overlapping object", camierrors.UBOverlapObjAssign)
		}
	}
	if !types.IsAllowed(e.designation.LValueType, d.Type) && rv.Kind != VStructOrUnion {
		return camierrors.UB("value type is not compatible with the designated lvalue", camierrors.UBIncompatibleRead)
	}
	if err := e.storeValue(obj, rv.Value); err != nil {
		return err
	}
	if err := e.attachAccessTag(obj, trace.AccessMutuallyExclusive); err != nil {
		return err
	}
	d.Status = object.StatusWell
	return nil
}

func (e *Evaluator) execZero(initOnly bool) *camierrors.Error {
	if !e.designation.Valid {
		return camierrors.CompilerGuarantee(camierrors.PhaseExecute, "zero with no designated lvalue")
	}
	obj := e.designation.Obj
	d := e.objects.Descriptor(obj)
	if d == nil {
		return camierrors.UB("zero of a destroyed object", camierrors.UBReferDeletedObject)
	}
	if !initOnly && isConstType(d.Type) {
		return camierrors.UB("modification of a const object", camierrors.UBModifyConstObj)
	}
	if old, ok := e.objects.ReferencedObject(obj); ok {
		e.objects.RemoveReference(obj, old)
	}
	if err := e.mem.Zeroize(d.Address, types.Size(d.Type)); err != nil {
		return err.(*camierrors.Error)
	}
	if err := e.attachAccessTag(obj, trace.AccessMutuallyExclusive); err != nil {
		return err
	}
	d.Status = object.StatusWell
	return nil
}
