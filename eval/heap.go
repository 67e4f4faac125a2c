package eval

import (
	"github.com/cami-vm/cami/camierrors"
	"github.com/cami-vm/cami/object"
	"github.com/cami-vm/cami/types"
	"github.com/cami-vm/cami/vmem"
)

// execNew implements `new id` (spec §4.4.2): pop the element count, and
// allocate an array of info's type in the heap segment, pushing a pointer
// to its first element.
func (e *Evaluator) execNew(info uint32) *camierrors.Error {
	if int(info) >= len(e.loaded.Types) {
		return camierrors.CompilerGuarantee(camierrors.PhaseExecute, "new: type index %d out of range", info)
	}
	elem := e.loaded.Types[info]
	countRV, err := e.pop()
	if err != nil {
		return err
	}
	if countRV.Kind != VInteger {
		return camierrors.CompilerGuarantee(camierrors.PhaseExecute, "new: element count must be an integer")
	}
	count := countRV.AsUint64()
	if count == 0 {
		e.push(RichValue{Value: Value{Kind: VNull, Type: &types.Type{Kind: types.Pointer, Referenced: elem}}})
		return nil
	}
	arrType := &types.Type{Kind: types.Array, Element: elem, Length: count}
	size := types.Size(arrType)
	addr := e.objects.AllocHeapAddress(size)
	root, remap, nerr := e.objects.New(arrType, addr, false, e.rootSet())
	if nerr != nil {
		return nerr
	}
	e.applyRemap(remap)
	// The pushed pointer designates the array's first element, not the
	// array object itself, mirroring array-to-pointer decay.
	rootDesc := e.objects.Descriptor(root)
	first := root
	if len(rootDesc.Subs) > 0 {
		first = rootDesc.Subs[0]
	}
	e.push(RichValue{Value: Value{
		Kind:    VPointer,
		Type:    &types.Type{Kind: types.Pointer, Referenced: elem},
		Entity:  first,
		RawAddr: addr,
	}})
	return nil
}

// execDelete implements `del` (spec §4.4.2): pop a pointer and destroy the
// heap object family it designates. Deleting through a pointer that does
// not point to the start of a heap-allocated family is a constraint
// violation (spec §4.3.1).
func (e *Evaluator) execDelete() *camierrors.Error {
	rv, err := e.pop()
	if err != nil {
		return err
	}
	switch rv.Kind {
	case VNull:
		return nil
	case VPointer:
		if rv.Entity.IsNil() {
			return camierrors.ConstraintViolation(camierrors.PhaseExecute, "delete of a pointer not to a heap object")
		}
		d := e.objects.Descriptor(rv.Entity)
		if d == nil {
			return camierrors.UB("delete through a pointer whose referent was already destroyed", camierrors.UBReferDeletedObject)
		}
		if vmem.SegmentOf(d.Address) != vmem.SegmentHeap || rv.Offset != 0 {
			return camierrors.ConstraintViolation(camierrors.PhaseExecute, "delete of a pointer not to the start of a heap object")
		}
		root := topObject(e.objects, rv.Entity)
		rootDesc := e.objects.Descriptor(root)
		if rootDesc.Address != d.Address {
			return camierrors.ConstraintViolation(camierrors.PhaseExecute, "delete of a pointer not to the start of a heap object")
		}
		e.objects.Cleanup(root)
		return nil
	default:
		return camierrors.ConstraintViolation(camierrors.PhaseExecute, "delete of an indeterminate or dissociative pointer")
	}
}
