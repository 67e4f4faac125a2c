package eval

import (
	"github.com/cami-vm/cami/object"
	"github.com/cami-vm/cami/trace"
)

// blockEntry is one entered-but-not-yet-left block: the automatic objects
// it created, so `lb` can destroy them in reverse creation order.
type blockEntry struct {
	slots []int // indices into Frame.Slots this block populated
}

// Frame is one call-stack entry (spec §3.6 "each frame owning its
// static-info link, return address, per-block nesting stack, live
// automatic-object slots, active full-expression id, and a TraceContext").
type Frame struct {
	FuncIndex   int
	ReturnPC    uint64
	StackBase   int // operand-stack depth on entry, restored by ret
	Base        uint64 // stack-segment address this frame's automatic objects are offset from
	Slots       []object.Ref
	Blocks      []blockEntry
	FullExprID  uint32
	ExecID      uint64
	NextInnerID uint32
	Ctx         *trace.Context
}

func newFrame(funcIndex int, returnPC uint64, stackBase int, base uint64, maxObjects int, ctx *trace.Context) *Frame {
	return &Frame{
		FuncIndex: funcIndex,
		ReturnPC:  returnPC,
		StackBase: stackBase,
		Base:      base,
		Slots:     make([]object.Ref, maxObjects),
		Ctx:       ctx,
	}
}
