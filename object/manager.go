package object

import (
	"encoding/binary"

	"go.uber.org/zap"

	"github.com/cami-vm/cami/camierrors"
	"github.com/cami-vm/cami/types"
	"github.com/cami-vm/cami/vmem"
)

// Config sizes the four arenas and tunes allocation policy (spec §4.3).
type Config struct {
	EdenCapacity      int
	SurvivorCapacity  int
	OldCapacity       int
	PermanentCapacity int

	// SmallObjectThreshold is N(type) below which an object is "small"
	// and allocated in Eden; at or above it, the object is "large" and
	// allocated directly in Old (spec §4.3.1). The reference
	// implementation leaves this a tunable; 64 is this port's default.
	SmallObjectThreshold int

	// PromoteThreshold is the survivor age above which a minor GC promotes
	// an object to Old instead of copying it to the other survivor space.
	PromoteThreshold uint8
}

// DefaultConfig returns reasonable arena sizes for tests and small runs.
func DefaultConfig() Config {
	return Config{
		EdenCapacity:         4096,
		SurvivorCapacity:     2048,
		OldCapacity:          16384,
		PermanentCapacity:    4096,
		SmallObjectThreshold: 64,
		PromoteThreshold:     15,
	}
}

// Manager is CAMI's ObjectManager.
type Manager struct {
	mem    *vmem.Memory
	cfg    Config
	logger *zap.Logger

	eden          *arena
	survivors     [2]*arena
	activeIdx     int
	old           *arena
	permanent     *arena

	entities map[uint64]Ref

	// majorGCRun is cleared on each new_ entry and prevents running major
	// GC more than once per top-level allocation (spec §4.3.3).
	majorGCRun bool

	// heapBump is a simple bump allocator handing out fresh heap addresses
	// to relocated (GC-moved) object families. Only heap-resident objects
	// (those created by the `new` opcode) are ever relocated by this
	// port; automatic and static objects keep a stable address for their
	// whole lifetime, so their descriptors participate in GC bookkeeping
	// (marking, promotion ages) without ever being physically moved.
	heapBump uint64
}

// NewManager constructs a Manager backed by mem. logger defaults to a
// no-op logger if nil, mirroring the teacher's engine.Logger() fallback.
func NewManager(mem *vmem.Memory, cfg Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		mem:       mem,
		cfg:       cfg,
		logger:    logger,
		eden:      newArena(ArenaEden, cfg.EdenCapacity),
		survivors: [2]*arena{newArena(ArenaSurvivorA, cfg.SurvivorCapacity), newArena(ArenaSurvivorB, cfg.SurvivorCapacity)},
		old:       newArena(ArenaOld, cfg.OldCapacity),
		permanent: newArena(ArenaPermanent, cfg.PermanentCapacity),
		entities:  make(map[uint64]Ref),
	}
}

func (m *Manager) arenaFor(id ArenaID) *arena {
	switch id {
	case ArenaEden:
		return m.eden
	case ArenaSurvivorA:
		return m.survivors[0]
	case ArenaSurvivorB:
		return m.survivors[1]
	case ArenaOld:
		return m.old
	case ArenaPermanent:
		return m.permanent
	default:
		return nil
	}
}

func (m *Manager) activeSurvivor() *arena   { return m.survivors[m.activeIdx] }
func (m *Manager) inactiveSurvivor() *arena { return m.survivors[1-m.activeIdx] }

// Descriptor returns the live descriptor at ref, or nil if ref is nil or
// the slot is not in use.
func (m *Manager) Descriptor(ref Ref) *Descriptor {
	a := m.arenaFor(ref.Arena)
	if a == nil || int(ref.Index) >= a.capacity || !a.slots[ref.Index].inUse {
		return nil
	}
	return &a.slots[ref.Index]
}

// EntityAt resolves the object whose address is exactly addr.
func (m *Manager) EntityAt(addr uint64) (Ref, bool) {
	ref, ok := m.entities[addr]
	return ref, ok
}

// New allocates an object family of type t at addr, recursing into
// sub-objects per spec §4.3.1, and returns the root object's Ref plus a
// Remap the caller must apply to its own roots (operand stack,
// designation register, automatic slots) if a GC ran during allocation
// and moved something out from under it. permanent requests
// Permanent-arena, always-well allocation (used for static objects and
// MMIO registers at load time) and never triggers GC.
func (m *Manager) New(t *types.Type, addr uint64, permanent bool, roots RootSet) (Ref, Remap, *camierrors.Error) {
	if permanent {
		root, err := m.createFamily(t, addr, ArenaPermanent)
		if err != nil {
			return Ref{}, Remap{}, err
		}
		m.setWellRecursive(root)
		return root, Remap{}, nil
	}

	m.majorGCRun = false
	var remap Remap
	count := N(t)
	if count < m.cfg.SmallObjectThreshold {
		if root, err := m.createFamily(t, addr, ArenaEden); err == nil {
			return root, remap, nil
		}
		// Eden overflowed: minor GC, then retry once, then fall back to
		// treating the object as large (spec §4.3.1 policy table).
		minorRemap, err := m.MinorGC(roots)
		if err != nil {
			return Ref{}, Remap{}, err
		}
		remap = mergeRemap(remap, minorRemap)
		if root, cerr := m.createFamily(t, addr, ArenaEden); cerr == nil {
			return root, remap, nil
		}
	}
	if root, err := m.createFamily(t, addr, ArenaOld); err == nil {
		return root, remap, nil
	}
	if !m.majorGCRun {
		majorRemap, err := m.MajorGC(roots)
		if err != nil {
			return Ref{}, Remap{}, err
		}
		remap = mergeRemap(remap, majorRemap)
		m.majorGCRun = true
	}
	if root, err := m.createFamily(t, addr, ArenaOld); err == nil {
		return root, remap, nil
	}
	return Ref{}, Remap{}, camierrors.ArenaOOM("object-descriptor arena exhausted after major GC")
}

func (m *Manager) createFamily(t *types.Type, addr uint64, arenaID ArenaID) (Ref, *camierrors.Error) {
	a := m.arenaFor(arenaID)
	idx, ok := a.alloc()
	if !ok {
		return Ref{}, camierrors.ArenaOOM("arena %s exhausted", arenaID)
	}
	ref := Ref{Arena: arenaID, Index: uint32(idx)}
	a.slots[idx] = Descriptor{
		Address:      addr,
		Type:         t,
		Status:       StatusUninitialized,
		ReferencedBy: make(map[Ref]struct{}),
		inUse:        true,
	}
	m.entities[addr] = ref

	ut := types.Unqualified(t)
	switch ut.Kind {
	case types.Array:
		elemSize := types.Size(ut.Element)
		subs := make([]Ref, ut.Length)
		for i := uint64(0); i < ut.Length; i++ {
			sub, err := m.createFamily(ut.Element, addr+i*elemSize, arenaID)
			if err != nil {
				return Ref{}, err
			}
			m.Descriptor(sub).Super = ref
			subs[i] = sub
		}
		a.slots[idx].Subs = subs
	case types.Struct:
		offsets := types.MemberOffsets(ut)
		subs := make([]Ref, len(ut.Members))
		for i, member := range ut.Members {
			sub, err := m.createFamily(member, addr+offsets[i], arenaID)
			if err != nil {
				return Ref{}, err
			}
			m.Descriptor(sub).Super = ref
			subs[i] = sub
		}
		a.slots[idx].Subs = subs
	case types.Union:
		subs := make([]Ref, len(ut.Members))
		for i, member := range ut.Members {
			sub, err := m.createFamily(member, addr, arenaID)
			if err != nil {
				return Ref{}, err
			}
			m.Descriptor(sub).Super = ref
			subs[i] = sub
		}
		a.slots[idx].Subs = subs
	}
	return ref, nil
}

func (m *Manager) setWellRecursive(ref Ref) {
	d := m.Descriptor(ref)
	if d == nil {
		return
	}
	d.Status = StatusWell
	for _, s := range d.Subs {
		m.setWellRecursive(s)
	}
}

// AddReference records that pointerObj's stored value now references
// target, maintaining target.ReferencedBy (spec §3.2 invariant).
func (m *Manager) AddReference(pointerObj, target Ref) {
	if target.IsNil() {
		return
	}
	d := m.Descriptor(target)
	if d == nil {
		return
	}
	d.ReferencedBy[pointerObj] = struct{}{}
}

// RemoveReference drops the back-edge pointerObj -> target.
func (m *Manager) RemoveReference(pointerObj, target Ref) {
	if target.IsNil() {
		return
	}
	d := m.Descriptor(target)
	if d == nil {
		return
	}
	delete(d.ReferencedBy, pointerObj)
}

// ReferencedObject decodes the pointer value stored at obj's address and
// maps it to a live object (spec §4.3.5). The wire format is 16 bytes:
// an 8-byte base address (the entity handle) followed by an 8-byte
// offset; only the base address participates in entity resolution.
func (m *Manager) ReferencedObject(obj Ref) (Ref, bool) {
	d := m.Descriptor(obj)
	if d == nil || d.Status.IsIndeterminateRepresentation() {
		return Ref{}, false
	}
	var buf [16]byte
	if err := m.mem.Read(buf[:], d.Address, 16); err != nil {
		return Ref{}, false
	}
	base := binary.LittleEndian.Uint64(buf[0:8])
	target, ok := m.entities[base]
	return target, ok
}

// AllocHeapAddress hands out a fresh, 8-byte-aligned heap address for a
// family of the given byte size, for callers (the `new` opcode) that need
// a heap slot before they can call New.
func (m *Manager) AllocHeapAddress(size uint64) uint64 {
	return m.allocHeapRegion(size)
}

// Cleanup destroys the object family rooted at ref (spec §4.3.1 cleanup):
// marks the whole family destroyed, marks every referrer's stored pointer
// indeterminate, erases the family's entities, and zeroes the underlying
// bytes.
func (m *Manager) Cleanup(ref Ref) {
	d := m.Descriptor(ref)
	if d == nil {
		return
	}
	m.destroyFamily(ref)
}

func (m *Manager) destroyFamily(ref Ref) {
	d := m.Descriptor(ref)
	if d == nil {
		return
	}
	d.Status = StatusDestroyed
	for referrer := range d.ReferencedBy {
		if rd := m.Descriptor(referrer); rd != nil {
			rd.Status = StatusIndeterminate
		}
	}
	delete(m.entities, d.Address)
	_ = m.mem.Zeroize(d.Address, types.Size(d.Type))
	for _, sub := range d.Subs {
		m.destroyFamily(sub)
	}
}

// CheckRepresentation is the port of the source's checkObjectRepresentation
// hook. No CAMI type currently defines a trap representation, so this is
// a deliberate no-op left for a future type to override (spec §9).
func CheckRepresentation(d *Descriptor) error {
	return nil
}
