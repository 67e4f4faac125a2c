package eval

import (
	"github.com/cami-vm/cami/bytecode"
	"github.com/cami-vm/cami/camierrors"
	"github.com/cami-vm/cami/object"
	"github.com/cami-vm/cami/trace"
	"github.com/cami-vm/cami/types"
)

// buildExprTables converts every function's wire-format full-expression
// table (bytecode.FullExprInfo, a flattened bool slice) into the
// trace.FullExprInfo the sequencing machinery consults.
func buildExprTables(functions []bytecode.Function) [][]*trace.FullExprInfo {
	tables := make([][]*trace.FullExprInfo, len(functions))
	for i, fn := range functions {
		fes := make([]*trace.FullExprInfo, len(fn.FullExprs))
		for j, fe := range fn.FullExprs {
			locs := make([]trace.SourceLocation, fe.EventCount)
			for k := range locs {
				if k < len(fe.Lines) {
					locs[k] = trace.SourceLocation{Line: fe.Lines[k], Column: fe.Columns[k]}
				}
			}
			info := trace.NewFullExprInfo(fe.EventCount, locs)
			for a := 0; a < fe.EventCount; a++ {
				for b := 0; b < fe.EventCount; b++ {
					if fe.Bits[a*fe.EventCount+b] {
						info.SetSequencedAfter(uint32(a), uint32(b))
					}
				}
			}
			fes[j] = info
		}
		tables[i] = fes
	}
	return tables
}

func (e *Evaluator) exprLookup(funcID, fullExprID uint32) *trace.FullExprInfo {
	if int(funcID) >= len(e.exprTables) {
		return nil
	}
	fns := e.exprTables[funcID]
	if int(fullExprID) >= len(fns) {
		return nil
	}
	return fns[fullExprID]
}

// attachAccessTag records one read/modify/zero/delete event against ref
// and, when ref is a union member, every sibling member (spec §4.5: tags
// are attached "to every leaf in the top-object subtree whose address
// range overlaps the access", which for union members means every other
// member since they all share the address).
func (e *Evaluator) attachAccessTag(ref object.Ref, kind trace.AccessKind) *camierrors.Error {
	frame := e.topFrame()
	loc := trace.TraceLocation{
		ExecID:     frame.ExecID,
		FullExprID: frame.FullExprID,
		InnerID:    trace.NewInnerID(frame.NextInnerID, kind),
	}
	frame.NextInnerID++
	tag := trace.Tag{Ctx: frame.Ctx, Loc: loc}

	for _, target := range e.overlappingLeaves(ref) {
		d := e.objects.Descriptor(target)
		if d == nil {
			continue
		}
		updated, err := trace.AttachTag(d.Tags, tag, e.exprLookup)
		if err != nil {
			return err
		}
		d.Tags = updated
	}
	return nil
}

// overlappingLeaves returns ref plus, if ref's parent is a union, every
// sibling member (they share ref's address range).
func (e *Evaluator) overlappingLeaves(ref object.Ref) []object.Ref {
	d := e.objects.Descriptor(ref)
	if d == nil || d.Super.IsNil() {
		return []object.Ref{ref}
	}
	super := e.objects.Descriptor(d.Super)
	if super == nil || len(super.Subs) < 2 {
		return []object.Ref{ref}
	}
	// A shared address across sibling sub-objects only happens for union
	// members (spec §3.2: "a union has one sub-object per member, all at
	// the same address").
	if types.Unqualified(super.Type).Kind != types.Union {
		return []object.Ref{ref}
	}
	return super.Subs
}
