package object_test

import (
	"testing"

	"github.com/cami-vm/cami/object"
	"github.com/cami-vm/cami/types"
	"github.com/cami-vm/cami/vmem"
)

func newManager(t *testing.T) (*object.Manager, *vmem.Memory) {
	t.Helper()
	mem, err := vmem.NewMemory(nil, make([]byte, 4096), 0, vmem.Config{HeapPageSize: 256})
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	return object.NewManager(mem, object.DefaultConfig(), nil), mem
}

func TestNewScalarAllocatesInEden(t *testing.T) {
	m, _ := newManager(t)
	ref, remap, err := m.New(&types.Type{Kind: types.I32}, vmem.HeapBase, false, object.RootSet{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if remap.Moved() {
		t.Fatalf("expected no GC on first allocation")
	}
	d := m.Descriptor(ref)
	if d == nil {
		t.Fatalf("expected live descriptor")
	}
	if d.Status != object.StatusUninitialized {
		t.Fatalf("scalar object should start uninitialized, got %s", d.Status)
	}
	if d.Address != vmem.HeapBase {
		t.Fatalf("address = %#x, want %#x", d.Address, vmem.HeapBase)
	}
	if ref.Arena != object.ArenaEden {
		t.Fatalf("expected Eden arena, got %s", ref.Arena)
	}
}

func TestNewStructWiresSuperAndSubs(t *testing.T) {
	m, _ := newManager(t)
	st := &types.Type{
		Kind:    types.Struct,
		Name:    "point",
		Members: []*types.Type{{Kind: types.I32}, {Kind: types.I32}},
	}
	root, _, err := m.New(st, vmem.HeapBase, false, object.RootSet{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	d := m.Descriptor(root)
	if len(d.Subs) != 2 {
		t.Fatalf("expected 2 sub-objects, got %d", len(d.Subs))
	}
	for i, sub := range d.Subs {
		sd := m.Descriptor(sub)
		if sd == nil {
			t.Fatalf("sub %d missing descriptor", i)
		}
		if sd.Super != root {
			t.Fatalf("sub %d Super = %v, want %v", i, sd.Super, root)
		}
	}
	// second member at offset 4
	if d.Subs[1] == d.Subs[0] {
		t.Fatalf("members must be distinct objects")
	}
	second := m.Descriptor(d.Subs[1])
	if second.Address != vmem.HeapBase+4 {
		t.Fatalf("second member address = %#x, want %#x", second.Address, vmem.HeapBase+4)
	}
}

func TestNewArrayElementCount(t *testing.T) {
	m, _ := newManager(t)
	arr := &types.Type{Kind: types.Array, Element: &types.Type{Kind: types.I8}, Length: 4}
	root, _, err := m.New(arr, vmem.HeapBase, false, object.RootSet{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	d := m.Descriptor(root)
	if len(d.Subs) != 4 {
		t.Fatalf("expected 4 elements, got %d", len(d.Subs))
	}
}

func TestCleanupMarksReferrersIndeterminate(t *testing.T) {
	m, mem := newManager(t)
	target, _, err := m.New(&types.Type{Kind: types.I32}, vmem.HeapBase, false, object.RootSet{})
	if err != nil {
		t.Fatalf("New target: %v", err)
	}
	ptrType := &types.Type{Kind: types.Pointer, Referenced: &types.Type{Kind: types.I32}}
	ptrObj, _, err := m.New(ptrType, vmem.HeapBase+256, false, object.RootSet{})
	if err != nil {
		t.Fatalf("New pointer: %v", err)
	}
	m.AddReference(ptrObj, target)

	m.Cleanup(target)

	td := m.Descriptor(target)
	if td.Status != object.StatusDestroyed {
		t.Fatalf("target status = %s, want destroyed", td.Status)
	}
	pd := m.Descriptor(ptrObj)
	if pd.Status != object.StatusIndeterminate {
		t.Fatalf("referrer status = %s, want indeterminate", pd.Status)
	}
	if _, ok := m.EntityAt(vmem.HeapBase); ok {
		t.Fatalf("destroyed object should be removed from the entity map")
	}
	var buf [4]byte
	if err := mem.Read(buf[:], vmem.HeapBase, 4); err != nil {
		t.Fatalf("read zeroed bytes: %v", err)
	}
	for _, b := range buf {
		if b != 0 {
			t.Fatalf("destroyed object bytes not zeroed: %v", buf)
		}
	}
}

func TestReferencedObjectDecodesPointerWireFormat(t *testing.T) {
	m, mem := newManager(t)
	target, _, err := m.New(&types.Type{Kind: types.I32}, vmem.HeapBase, false, object.RootSet{})
	if err != nil {
		t.Fatalf("New target: %v", err)
	}
	ptrType := &types.Type{Kind: types.Pointer, Referenced: &types.Type{Kind: types.I32}}
	ptrObj, _, err := m.New(ptrType, vmem.HeapBase+256, false, object.RootSet{})
	if err != nil {
		t.Fatalf("New pointer: %v", err)
	}
	d := m.Descriptor(ptrObj)
	d.Status = object.StatusWell

	var wire [16]byte
	for i := 0; i < 8; i++ {
		wire[i] = byte(vmem.HeapBase >> (8 * i))
	}
	if err := mem.Write(d.Address, wire[:]); err != nil {
		t.Fatalf("write pointer wire value: %v", err)
	}

	got, ok := m.ReferencedObject(ptrObj)
	if !ok {
		t.Fatalf("expected a resolved reference")
	}
	if got != target {
		t.Fatalf("ReferencedObject = %v, want %v", got, target)
	}
}

func TestMinorGCReclaimsUnreachableEdenObject(t *testing.T) {
	m, _ := newManager(t)
	live, _, err := m.New(&types.Type{Kind: types.I32}, vmem.HeapBase, false, object.RootSet{})
	if err != nil {
		t.Fatalf("New live: %v", err)
	}
	dead, _, err := m.New(&types.Type{Kind: types.I32}, vmem.HeapBase+256, false, object.RootSet{})
	if err != nil {
		t.Fatalf("New dead: %v", err)
	}

	remap, err := m.MinorGC(object.RootSet{OperandStack: []object.Ref{live}})
	if err != nil {
		t.Fatalf("MinorGC: %v", err)
	}

	newLive := remap.Apply(live)
	if m.Descriptor(newLive) == nil {
		t.Fatalf("live object should survive minor GC")
	}
	if m.Descriptor(dead) != nil {
		t.Fatalf("unreachable object should have been reclaimed")
	}
}

func TestMinorGCPromotesAgedSurvivor(t *testing.T) {
	m, _ := newManager(t)
	ref, _, err := m.New(&types.Type{Kind: types.I32}, vmem.HeapBase, false, object.RootSet{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	roots := object.RootSet{OperandStack: []object.Ref{ref}}
	for i := uint8(0); i <= object.DefaultConfig().PromoteThreshold; i++ {
		remap, err := m.MinorGC(roots)
		if err != nil {
			t.Fatalf("MinorGC iteration %d: %v", i, err)
		}
		ref = remap.Apply(ref)
		roots = object.RootSet{OperandStack: []object.Ref{ref}}
	}
	if ref.Arena != object.ArenaOld {
		t.Fatalf("object should have been promoted to Old after repeated survival, got arena %s", ref.Arena)
	}
}

func TestMajorGCReclaimsUnreachableOldObject(t *testing.T) {
	m, _ := newManager(t)
	st := &types.Type{Kind: types.Struct, Name: "s", Members: []*types.Type{{Kind: types.I32}}}
	root, _, err := m.New(st, vmem.HeapBase, false, object.RootSet{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// Force it into Old directly: large-object path triggers the same
	// allocation policy as an object whose N(type) is at/above threshold,
	// but here we promote via repeated minor GC instead so the state
	// machine is exercised the same way a real run would hit it.
	roots := object.RootSet{OperandStack: []object.Ref{root}}
	for i := uint8(0); i <= object.DefaultConfig().PromoteThreshold; i++ {
		remap, err := m.MinorGC(roots)
		if err != nil {
			t.Fatalf("MinorGC: %v", err)
		}
		root = remap.Apply(root)
		roots = object.RootSet{OperandStack: []object.Ref{root}}
	}
	if root.Arena != object.ArenaOld {
		t.Fatalf("setup failed: expected object in Old, got %s", root.Arena)
	}

	// Leave it unreferenced (never destroyed) so the reclaim path logs a
	// leak warning, then sweep it with no roots.
	if _, err := m.MajorGC(object.RootSet{}); err != nil {
		t.Fatalf("MajorGC: %v", err)
	}
	if m.Descriptor(root) != nil {
		t.Fatalf("unreachable Old object should have been reclaimed by major GC")
	}
}

func TestPermanentAllocationNeverTriggersGC(t *testing.T) {
	m, _ := newManager(t)
	ref, remap, err := m.New(&types.Type{Kind: types.I32}, vmem.DataBase, true, object.RootSet{})
	if err != nil {
		t.Fatalf("New permanent: %v", err)
	}
	if remap.Moved() {
		t.Fatalf("permanent allocation should never report a remap")
	}
	d := m.Descriptor(ref)
	if d.Status != object.StatusWell {
		t.Fatalf("permanent objects should start well, got %s", d.Status)
	}
	if ref.Arena != object.ArenaPermanent {
		t.Fatalf("expected Permanent arena, got %s", ref.Arena)
	}
}

func TestObjectFamilyCount(t *testing.T) {
	arr := &types.Type{Kind: types.Array, Element: &types.Type{Kind: types.I32}, Length: 3}
	if n := object.N(arr); n != 4 {
		t.Fatalf("N(array of 3) = %d, want 4", n)
	}
	st := &types.Type{Kind: types.Struct, Members: []*types.Type{{Kind: types.I32}, arr}}
	if n := object.N(st); n != 6 {
		t.Fatalf("N(struct{i32, array[3]}) = %d, want 6", n)
	}
}
