// Package object is CAMI's ObjectManager: it allocates object descriptors
// in generational arenas, runs the precise mark-and-rearrange collector,
// and keeps the referenced_by back-edges GC relocation needs to rewrite
// live pointers (spec §4.3).
//
// Descriptors are never handed out as pointers that could dangle across a
// GC-moving allocation (spec §9 "GC + stable references"); every object is
// addressed by Ref, an arena-relative index, resolved through the Manager
// on each access.
package object

import "fmt"

// ArenaID names one of the four descriptor arenas plus the "no arena"
// zero value (spec §3.3, §4.3).
type ArenaID uint8

const (
	ArenaNone ArenaID = iota
	ArenaEden
	ArenaSurvivorA
	ArenaSurvivorB
	ArenaOld
	ArenaPermanent
)

func (a ArenaID) String() string {
	switch a {
	case ArenaEden:
		return "eden"
	case ArenaSurvivorA:
		return "survivor_a"
	case ArenaSurvivorB:
		return "survivor_b"
	case ArenaOld:
		return "old"
	case ArenaPermanent:
		return "permanent"
	default:
		return "none"
	}
}

// Ref is an arena-relative object handle. The zero value means "no
// object".
type Ref struct {
	Arena ArenaID
	Index uint32
}

// IsNil reports whether r refers to no object.
func (r Ref) IsNil() bool {
	return r.Arena == ArenaNone
}

func (r Ref) String() string {
	if r.IsNil() {
		return "<nil>"
	}
	return fmt.Sprintf("%s#%d", r.Arena, r.Index)
}
