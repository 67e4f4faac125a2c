package object

import (
	"github.com/cami-vm/cami/trace"
	"github.com/cami-vm/cami/types"
)

// Status is the state machine of spec §4.4.4.
type Status uint8

const (
	StatusUninitialized Status = iota
	StatusWell
	StatusDestroyed
	StatusIndeterminate
	StatusNonValueRepresentation
)

// IsIndeterminateRepresentation reports whether s is one of the three
// "indeterminate representation" states a read must reject (spec §4.4.4).
func (s Status) IsIndeterminateRepresentation() bool {
	switch s {
	case StatusUninitialized, StatusIndeterminate, StatusNonValueRepresentation:
		return true
	}
	return false
}

func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusWell:
		return "well"
	case StatusDestroyed:
		return "destroyed"
	case StatusIndeterminate:
		return "indeterminate"
	case StatusNonValueRepresentation:
		return "non_value_representation"
	default:
		return "invalid"
	}
}

// Descriptor is one object or sub-object: fields exactly mirror spec §3.2.
type Descriptor struct {
	Address uint64
	Type    *types.Type
	Status  Status
	Age     uint8

	Tags []trace.Tag

	Super Ref
	Subs  []Ref

	// ReferencedBy holds every pointer-typed object whose stored value
	// currently points at this one.
	ReferencedBy map[Ref]struct{}

	inUse bool
}

// N is the recursive object-family count of t (spec §4.3.1).
func N(t *types.Type) int {
	t = types.Unqualified(t)
	switch t.Kind {
	case types.Array:
		return 1 + int(t.Length)*N(t.Element)
	case types.Struct, types.Union:
		n := 1
		for _, m := range t.Members {
			n += N(m)
		}
		return n
	default:
		return 1
	}
}
