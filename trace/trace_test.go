package trace_test

import (
	"testing"

	"github.com/cami-vm/cami/trace"
)

func lookupTable(tables map[uint32]*trace.FullExprInfo) trace.ExprTableLookup {
	return func(funcID uint32, fullExprID uint32) *trace.FullExprInfo {
		return tables[fullExprID]
	}
}

func TestUnsequencedModifyThenReadIsUB(t *testing.T) {
	root := trace.NewRoot()
	ctx := root.Call(trace.TraceLocation{ExecID: 1}, 0)

	fe := trace.NewFullExprInfo(2, nil)
	// sequence-after bitmap left empty: neither event is proven ordered.
	tables := map[uint32]*trace.FullExprInfo{0: fe}

	modify := trace.Tag{Ctx: ctx, Loc: trace.TraceLocation{ExecID: 5, FullExprID: 0, InnerID: trace.NewInnerID(0, trace.AccessMutuallyExclusive)}}
	read := trace.Tag{Ctx: ctx, Loc: trace.TraceLocation{ExecID: 5, FullExprID: 0, InnerID: trace.NewInnerID(1, trace.AccessCoexisting)}}

	tags, err := trace.AttachTag(nil, modify, lookupTable(tables))
	if err != nil {
		t.Fatalf("attaching first tag: %v", err)
	}

	_, err = trace.AttachTag(tags, read, lookupTable(tables))
	if err == nil {
		t.Fatal("expected unsequenced_access UB")
	}
}

func TestSequencedModifyThenReadIsFine(t *testing.T) {
	root := trace.NewRoot()
	ctx := root.Call(trace.TraceLocation{ExecID: 1}, 0)

	fe := trace.NewFullExprInfo(2, nil)
	fe.SetSequencedAfter(1, 0) // event 1 (read) is sequenced after event 0 (modify)
	tables := map[uint32]*trace.FullExprInfo{0: fe}

	modify := trace.Tag{Ctx: ctx, Loc: trace.TraceLocation{ExecID: 5, FullExprID: 0, InnerID: trace.NewInnerID(0, trace.AccessMutuallyExclusive)}}
	read := trace.Tag{Ctx: ctx, Loc: trace.TraceLocation{ExecID: 5, FullExprID: 0, InnerID: trace.NewInnerID(1, trace.AccessCoexisting)}}

	tags, err := trace.AttachTag(nil, modify, lookupTable(tables))
	if err != nil {
		t.Fatalf("attaching first tag: %v", err)
	}
	tags, err = trace.AttachTag(tags, read, lookupTable(tables))
	if err != nil {
		t.Fatalf("expected no UB, got %v", err)
	}
	if len(tags) != 1 {
		t.Errorf("the proven-stale modify tag should have been pruned, got %d tags", len(tags))
	}
}

func TestConcurrentReadsAreCoexisting(t *testing.T) {
	root := trace.NewRoot()
	ctx := root.Call(trace.TraceLocation{ExecID: 1}, 0)
	fe := trace.NewFullExprInfo(2, nil)
	tables := map[uint32]*trace.FullExprInfo{0: fe}

	r1 := trace.Tag{Ctx: ctx, Loc: trace.TraceLocation{ExecID: 5, FullExprID: 0, InnerID: trace.NewInnerID(0, trace.AccessCoexisting)}}
	r2 := trace.Tag{Ctx: ctx, Loc: trace.TraceLocation{ExecID: 5, FullExprID: 0, InnerID: trace.NewInnerID(1, trace.AccessCoexisting)}}

	tags, err := trace.AttachTag(nil, r1, lookupTable(tables))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tags, err = trace.AttachTag(tags, r2, lookupTable(tables))
	if err != nil {
		t.Fatalf("two concurrent reads must not be UB: %v", err)
	}
	if len(tags) != 2 {
		t.Errorf("both coexisting reads should be kept, got %d", len(tags))
	}
}

func TestDifferentCallsAreOrderedByExecID(t *testing.T) {
	root := trace.NewRoot()
	caller := root.Call(trace.TraceLocation{ExecID: 1}, 0)
	inner1 := caller.Call(trace.TraceLocation{ExecID: 2, FullExprID: 0, InnerID: trace.NewInnerID(0, trace.AccessMutuallyExclusive)}, 1)
	inner2 := caller.Call(trace.TraceLocation{ExecID: 4, FullExprID: 0, InnerID: trace.NewInnerID(0, trace.AccessMutuallyExclusive)}, 1)

	fe := trace.NewFullExprInfo(1, nil)
	tables := map[uint32]*trace.FullExprInfo{0: fe}

	first := trace.Tag{Ctx: inner1, Loc: trace.TraceLocation{ExecID: 3, FullExprID: 0, InnerID: trace.NewInnerID(0, trace.AccessMutuallyExclusive)}}
	second := trace.Tag{Ctx: inner2, Loc: trace.TraceLocation{ExecID: 5, FullExprID: 0, InnerID: trace.NewInnerID(0, trace.AccessMutuallyExclusive)}}

	tags, err := trace.AttachTag(nil, first, lookupTable(tables))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := trace.AttachTag(tags, second, lookupTable(tables)); err != nil {
		t.Fatalf("the second call happened strictly after the first: %v", err)
	}
}

func TestContextRefcounting(t *testing.T) {
	root := trace.NewRoot()
	child := root.Call(trace.TraceLocation{}, 0)
	if child.FuncID() != 0 {
		t.Fatalf("FuncID() = %d, want 0", child.FuncID())
	}
	child.Retain()
	child.Release()
	child.Release() // should release the retained root edge without panicking
}
