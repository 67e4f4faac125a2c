// Package trace implements CAMI's sequencing machinery: per-access tags
// carrying call context and intra-full-expression position, used to
// detect unsequenced modification and use-after-destruction.
//
// The refcounted cactus-stack context is the CAMI analog of the teacher's
// resource.UnifiedTable handle bookkeeping (explicit create/drop with a
// backing count), generalized from a flat handle table to a tree of
// call-contexts that share ancestors.
package trace

import (
	"fmt"

	"github.com/cami-vm/cami/camierrors"
)

// AccessKind distinguishes a read-like access (coexisting with other reads)
// from a write/delete-like one (mutually exclusive with any other access),
// per spec §4.5.
type AccessKind uint8

const (
	AccessCoexisting       AccessKind = 0
	AccessMutuallyExclusive AccessKind = 1
)

// TraceLocation identifies when a single access happened inside one
// function invocation (spec §4.5).
//
// ExecID is a process-wide monotonically increasing sequence number minted
// each time a full expression begins (the `fe` opcode); it totally orders
// full-expression instances across the whole run, including across
// different call invocations, without relying on FullExprID being
// execution-monotonic (loops and recursion revisit the same table entry).
// InnerID packs the coexisting/mutually-exclusive bit in its low bit and
// the position within the full expression's sequence-after bitmap in the
// remaining bits, mirroring the source's inner_id encoding.
type TraceLocation struct {
	ExecID     uint64
	FullExprID uint32
	InnerID    uint32
}

// Kind reports whether this location is a read-like or write-like access.
func (l TraceLocation) Kind() AccessKind {
	return AccessKind(l.InnerID & 1)
}

// Position returns the index into the owning FullExprInfo's bitmap.
func (l TraceLocation) Position() uint32 {
	return l.InnerID >> 1
}

// NewInnerID packs a bitmap position and access kind into an InnerID.
func NewInnerID(position uint32, kind AccessKind) uint32 {
	return (position << 1) | uint32(kind)
}

// SourceLocation is a (line, column) pair for diagnostics.
type SourceLocation struct {
	Line   int
	Column int
}

// FullExprInfo is one entry of a function's full-expression table: the
// event count and the sequenced-before bitmap for that full expression
// (spec §4.5).
type FullExprInfo struct {
	EventCount int
	// bits[i*EventCount+j] set iff event i is sequenced after event j.
	bits      []bool
	Locations []SourceLocation
}

// NewFullExprInfo allocates a FullExprInfo for eventCount trace events.
func NewFullExprInfo(eventCount int, locations []SourceLocation) *FullExprInfo {
	return &FullExprInfo{
		EventCount: eventCount,
		bits:       make([]bool, eventCount*eventCount),
		Locations:  locations,
	}
}

// SetSequencedAfter records that event i is sequenced after event j.
func (f *FullExprInfo) SetSequencedAfter(i, j uint32) {
	f.bits[int(i)*f.EventCount+int(j)] = true
}

// SequencedAfter reports whether event i is recorded as sequenced after j.
func (f *FullExprInfo) SequencedAfter(i, j uint32) bool {
	if int(i) >= f.EventCount || int(j) >= f.EventCount {
		return false
	}
	return f.bits[int(i)*f.EventCount+int(j)]
}

// ExprTableLookup resolves the full-expression table entry for funcID's
// fullExprID-th full expression, used to consult the sequenced-before
// bitmap at a common-ancestor function. Returns nil if unknown.
type ExprTableLookup func(funcID uint32, fullExprID uint32) *FullExprInfo

// Tag is a trace event attached to a leaf object on every read, modify,
// zero or delete (spec §4.5).
type Tag struct {
	Ctx *Context
	Loc TraceLocation
}

func comparisonPoint(tag Tag, divergence *Context) TraceLocation {
	if divergence == nil {
		return tag.Loc
	}
	return divergence.callPoint
}

func sequencedStrictlyAfter(newLoc, oldLoc TraceLocation, ancestorFuncID uint32, lookup ExprTableLookup) bool {
	if newLoc.ExecID != oldLoc.ExecID {
		return newLoc.ExecID > oldLoc.ExecID
	}
	if newLoc.FullExprID != oldLoc.FullExprID {
		return false
	}
	info := lookup(ancestorFuncID, newLoc.FullExprID)
	if info == nil {
		return false
	}
	return info.SequencedAfter(newLoc.Position(), oldLoc.Position())
}

// AttachTag attaches next to the leaf's existing tag set, applying the
// unsequenced-access rule (spec §4.5) against every tag already present.
// It returns the updated tag set (stale coexisting tags pruned) or a UB
// error the first time the rule cannot prove ordering and at least one of
// the two conflicting accesses is mutually exclusive.
func AttachTag(existing []Tag, next Tag, lookup ExprTableLookup) ([]Tag, *camierrors.Error) {
	kept := make([]Tag, 0, len(existing)+1)
	for _, old := range existing {
		if old.Ctx == nil {
			continue
		}
		ancestor, divNew, divOld := diverge(next.Ctx, old.Ctx)
		newLoc := comparisonPoint(next, divNew)
		oldLoc := comparisonPoint(old, divOld)

		newAfterOld := sequencedStrictlyAfter(newLoc, oldLoc, ancestor.funcID, lookup)
		if newAfterOld {
			// old is proven sequenced-before next: stale, drop it.
			continue
		}
		if next.Loc.Kind() == AccessMutuallyExclusive || old.Loc.Kind() == AccessMutuallyExclusive {
			return existing, camierrors.UB("unsequenced access to an object", camierrors.UBUnsequencedAccess).
				WithBacktrace(describe(next.Ctx, next.Loc), describe(old.Ctx, old.Loc))
		}
		kept = append(kept, old)
	}
	kept = append(kept, next)
	return kept, nil
}

func describe(ctx *Context, loc TraceLocation) string {
	var funcID uint32
	if ctx != nil {
		funcID = ctx.funcID
	}
	return fmt.Sprintf("func#%d exec=%d fullExpr=%d pos=%d", funcID, loc.ExecID, loc.FullExprID, loc.Position())
}
