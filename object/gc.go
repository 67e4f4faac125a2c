package object

import (
	"encoding/binary"

	"go.uber.org/zap"

	"github.com/cami-vm/cami/camierrors"
	"github.com/cami-vm/cami/types"
	"github.com/cami-vm/cami/vmem"
)

// RootSet is the external root contribution the Evaluator hands to a GC
// call (spec §4.3.2 step 1 a/b/c); the Manager supplies root (d),
// permanent pointer objects, internally by scanning its own Permanent
// arena.
type RootSet struct {
	OperandStack   []Ref
	Designation    Ref
	HasDesignation bool
	AutomaticSlots []Ref
}

// Remap is the one-shot old-Ref -> new-Ref table produced by a GC pass
// (spec §4.3.2 step 6). The caller (Evaluator/AbstractMachine) applies it
// to every CAMI-side reference it owns: operand stack, designation
// register, automatic-object slots, entity map.
type Remap struct {
	refs map[Ref]Ref
}

// Apply rewrites ref if it moved, returning it unchanged otherwise.
func (r Remap) Apply(ref Ref) Ref {
	if r.refs == nil {
		return ref
	}
	if nr, ok := r.refs[ref]; ok {
		return nr
	}
	return ref
}

// Moved reports whether the remap touched anything at all, so callers can
// skip a no-op rewrite pass.
func (r Remap) Moved() bool {
	return len(r.refs) > 0
}

// mergeRemap composes two successive remaps (e.g. a minor GC followed by
// a major GC within the same allocation attempt) into the single rewrite
// a caller must apply.
func mergeRemap(a, b Remap) Remap {
	if len(a.refs) == 0 {
		return b
	}
	if len(b.refs) == 0 {
		return a
	}
	out := make(map[Ref]Ref, len(a.refs)+len(b.refs))
	for k, v := range a.refs {
		if v2, ok := b.refs[v]; ok {
			out[k] = v2
		} else {
			out[k] = v
		}
	}
	for k, v := range b.refs {
		if _, already := out[k]; !already {
			out[k] = v
		}
	}
	return Remap{refs: out}
}

func (m *Manager) bfsMark(initial []Ref, visited map[Ref]bool) {
	queue := append([]Ref(nil), initial...)
	for _, r := range initial {
		visited[r] = true
	}
	for len(queue) > 0 {
		r := queue[0]
		queue = queue[1:]
		d := m.Descriptor(r)
		if d == nil {
			continue
		}
		push := func(next Ref) {
			if next.IsNil() || visited[next] {
				return
			}
			visited[next] = true
			queue = append(queue, next)
		}
		push(d.Super)
		for _, s := range d.Subs {
			push(s)
		}
		if types.IsPointerLike(d.Type) {
			if target, ok := m.ReferencedObject(r); ok {
				push(target)
			}
		}
	}
}

// markRoots performs root marking and top-down reachability (spec §4.3.2
// steps 1-2): the caller's operand-stack/designation/automatic-slot roots,
// plus every Permanent pointer object that currently references a
// non-permanent object.
func (m *Manager) markRoots(roots RootSet) map[Ref]bool {
	visited := make(map[Ref]bool)
	var initial []Ref
	initial = append(initial, roots.OperandStack...)
	if roots.HasDesignation {
		initial = append(initial, roots.Designation)
	}
	initial = append(initial, roots.AutomaticSlots...)

	for i := range m.permanent.slots {
		d := &m.permanent.slots[i]
		if !d.inUse || d.Status != StatusWell || !types.IsPointerLike(d.Type) {
			continue
		}
		ref := Ref{Arena: ArenaPermanent, Index: uint32(i)}
		if target, ok := m.ReferencedObject(ref); ok && target.Arena != ArenaPermanent {
			initial = append(initial, target)
		}
	}
	m.bfsMark(initial, visited)
	return visited
}

func referencedFromOld(d *Descriptor) bool {
	for ref := range d.ReferencedBy {
		if ref.Arena == ArenaOld {
			return true
		}
	}
	return false
}

func (m *Manager) reachesMarked(o Ref, visited map[Ref]bool) bool {
	seen := map[Ref]bool{}
	var walk func(r Ref) bool
	walk = func(r Ref) bool {
		if r.IsNil() || seen[r] {
			return false
		}
		seen[r] = true
		if visited[r] {
			return true
		}
		d := m.Descriptor(r)
		if d == nil {
			return false
		}
		if !d.Super.IsNil() && walk(d.Super) {
			return true
		}
		for ref := range d.ReferencedBy {
			if walk(ref) {
				return true
			}
		}
		return false
	}
	return walk(o)
}

// crossGenerationRescue is spec §4.3.2 step 3: a young descriptor that is
// unmarked but is observed from Old, and from which a marked root is
// backwards-reachable via super_object or referenced_by, must survive —
// otherwise Old would be left holding a dangling back-edge.
func (m *Manager) crossGenerationRescue(visited map[Ref]bool) {
	var rescued []Ref
	for _, a := range []*arena{m.eden, m.activeSurvivor()} {
		for i := range a.slots {
			d := &a.slots[i]
			if !d.inUse {
				continue
			}
			ref := Ref{Arena: a.id, Index: uint32(i)}
			if visited[ref] {
				continue
			}
			if referencedFromOld(d) && m.reachesMarked(ref, visited) {
				rescued = append(rescued, ref)
			}
		}
	}
	if len(rescued) > 0 {
		m.bfsMark(rescued, visited)
	}
}

func (m *Manager) allocHeapRegion(size uint64) uint64 {
	if m.heapBump == 0 {
		m.heapBump = vmem.HeapBase
	}
	addr := roundUp(m.heapBump, 8)
	m.heapBump = addr + size
	return addr
}

func roundUp(v, align uint64) uint64 {
	if align == 0 || v%align == 0 {
		return v
	}
	return v + (align - v%align)
}

// relocateFamily moves the descriptors of the whole object family rooted
// at ref into targetArenaID and records the address/ref rewrites into
// addrMap/refMap (spec §4.3.2 step 6). A heap-resident family's bytes are
// copied to a fresh heap region; automatic and static families keep their
// address.
func (m *Manager) relocateFamily(ref Ref, targetArenaID ArenaID, addrMap map[uint64]uint64, refMap map[Ref]Ref) Ref {
	root := m.Descriptor(ref)
	oldRootAddr := root.Address
	newRootAddr := oldRootAddr
	if vmem.SegmentOf(oldRootAddr) == vmem.SegmentHeap {
		size := types.Size(root.Type)
		newRootAddr = m.allocHeapRegion(size)
		buf := make([]byte, size)
		_ = m.mem.Read(buf, oldRootAddr, size)
		_ = m.mem.Write(newRootAddr, buf)
	}
	delta := int64(newRootAddr) - int64(oldRootAddr)

	var relocateNode func(r Ref, newSuper Ref) Ref
	relocateNode = func(r Ref, newSuper Ref) Ref {
		d := m.Descriptor(r)
		oldAddr := d.Address
		newAddr := uint64(int64(oldAddr) + delta)
		addrMap[oldAddr] = newAddr

		target := m.arenaFor(targetArenaID)
		idx, ok := target.alloc()
		if !ok {
			// Capacity was already checked by the caller; this should not
			// happen in practice, but fall back to keeping the old ref
			// rather than corrupting state.
			return r
		}
		newRef := Ref{Arena: targetArenaID, Index: uint32(idx)}
		moved := *d
		moved.Address = newAddr
		moved.Super = newSuper
		moved.inUse = true
		oldSubs := d.Subs
		target.slots[idx] = moved
		delete(m.entities, oldAddr)
		m.entities[newAddr] = newRef
		refMap[r] = newRef

		oldArena := m.arenaFor(r.Arena)
		oldArena.free(int(r.Index))

		newSubs := make([]Ref, len(oldSubs))
		for i, s := range oldSubs {
			newSubs[i] = relocateNode(s, newRef)
		}
		target.slots[idx].Subs = newSubs
		return newRef
	}
	return relocateNode(ref, Ref{})
}

// applyRelocation fixes up every remaining Super/Subs/ReferencedBy edge in
// every arena (including arenas nothing moved out of, which may still
// point at something that moved), then rewrites the stored pointer bytes
// of every surviving referrer of a moved object.
func (m *Manager) applyRelocation(addrMap map[uint64]uint64, refMap map[Ref]Ref) {
	for _, a := range []*arena{m.eden, m.survivors[0], m.survivors[1], m.old, m.permanent} {
		for i := range a.slots {
			d := &a.slots[i]
			if !d.inUse {
				continue
			}
			if nr, ok := refMap[d.Super]; ok {
				d.Super = nr
			}
			for j, s := range d.Subs {
				if nr, ok := refMap[s]; ok {
					d.Subs[j] = nr
				}
			}
			if len(d.ReferencedBy) > 0 {
				newSet := make(map[Ref]struct{}, len(d.ReferencedBy))
				for old := range d.ReferencedBy {
					if nr, ok := refMap[old]; ok {
						newSet[nr] = struct{}{}
					} else {
						newSet[old] = struct{}{}
					}
				}
				d.ReferencedBy = newSet
			}
		}
	}

	for oldAddr, newAddr := range addrMap {
		newRef, ok := m.entities[newAddr]
		if !ok {
			continue
		}
		d := m.Descriptor(newRef)
		if d == nil {
			continue
		}
		for referrer := range d.ReferencedBy {
			rd := m.Descriptor(referrer)
			if rd == nil {
				continue
			}
			var pbuf [16]byte
			if err := m.mem.Read(pbuf[:], rd.Address, 16); err != nil {
				continue
			}
			if binary.LittleEndian.Uint64(pbuf[0:8]) == oldAddr {
				binary.LittleEndian.PutUint64(pbuf[0:8], newAddr)
				_ = m.mem.Write(rd.Address, pbuf[:])
			}
		}
	}
}

func (m *Manager) reclaim(ref Ref) {
	d := m.Descriptor(ref)
	if d == nil {
		return
	}
	if d.Status != StatusDestroyed {
		m.logger.Warn("object leaked",
			zap.String("ref", ref.String()),
			zap.Uint64("address", d.Address),
			zap.String("status", d.Status.String()),
		)
	}
	delete(m.entities, d.Address)
	m.arenaFor(ref.Arena).free(int(ref.Index))
}

func (m *Manager) oldHasRoom(refs []Ref) bool {
	need := 0
	for _, r := range refs {
		if d := m.Descriptor(r); d != nil {
			need += N(d.Type)
		}
	}
	return m.old.liveCount()+need <= m.old.capacity
}

// MinorGC runs the Eden+active-Survivor collection of spec §4.3.2.
func (m *Manager) MinorGC(roots RootSet) (Remap, *camierrors.Error) {
	visited := m.markRoots(roots)
	m.crossGenerationRescue(visited)

	var young []Ref
	for _, a := range []*arena{m.eden, m.activeSurvivor()} {
		for i := range a.slots {
			d := &a.slots[i]
			if !d.inUse {
				continue
			}
			ref := Ref{Arena: a.id, Index: uint32(i)}
			if !visited[ref] {
				m.reclaim(ref)
				continue
			}
			if d.Super.IsNil() {
				young = append(young, ref)
			}
		}
	}

	var promote, keep []Ref
	for _, ref := range young {
		d := m.Descriptor(ref)
		d.Age++
		if d.Age > m.cfg.PromoteThreshold {
			promote = append(promote, ref)
		} else {
			keep = append(keep, ref)
		}
	}

	keepSize := 0
	for _, r := range keep {
		keepSize += N(m.Descriptor(r).Type)
	}

	addrMap := map[uint64]uint64{}
	refMap := map[Ref]Ref{}
	inactiveID := m.inactiveSurvivor().id

	if keepSize > m.inactiveSurvivor().capacity {
		all := append(append([]Ref{}, keep...), promote...)
		if !m.oldHasRoom(all) {
			if _, err := m.MajorGC(roots); err != nil {
				return Remap{}, err
			}
		}
		if !m.oldHasRoom(all) {
			return Remap{}, camierrors.ArenaOOM("minor GC: no room in Old for evacuated survivors")
		}
		for _, ref := range all {
			m.relocateFamily(ref, ArenaOld, addrMap, refMap)
		}
	} else {
		if !m.oldHasRoom(promote) {
			if _, err := m.MajorGC(roots); err != nil {
				return Remap{}, err
			}
		}
		if !m.oldHasRoom(promote) {
			keep = append(keep, promote...)
			promote = nil
		}
		for _, ref := range promote {
			m.relocateFamily(ref, ArenaOld, addrMap, refMap)
		}
		for _, ref := range keep {
			m.relocateFamily(ref, inactiveID, addrMap, refMap)
		}
		m.activeIdx = 1 - m.activeIdx
	}

	m.applyRelocation(addrMap, refMap)
	return Remap{refs: refMap}, nil
}

// MajorGC collects the Old arena (spec §4.3.3): mark-and-sweep using the
// same root pass as minor GC, reclaiming every unmarked descriptor. This
// port reclaims dead Old slots through the arena's free-index allocator
// rather than physically sliding survivors to the front of the slab —
// objects are addressed by Ref everywhere, so slot position carries no
// semantic weight and a second relocation pass over Old would only
// duplicate the work minor GC already does when it evacuates into Old.
func (m *Manager) MajorGC(roots RootSet) (Remap, *camierrors.Error) {
	m.majorGCRun = true
	visited := m.markRoots(roots)
	for i := range m.old.slots {
		d := &m.old.slots[i]
		if !d.inUse {
			continue
		}
		ref := Ref{Arena: ArenaOld, Index: uint32(i)}
		if visited[ref] {
			continue
		}
		m.reclaim(ref)
	}
	return Remap{}, nil
}
