package eval

import (
	"github.com/cami-vm/cami/bytecode"
	"github.com/cami-vm/cami/camierrors"
)

// execPush implements `push const_id` (spec §4.4.2): materializes the
// info-th entry of the constants table as an operand-stack value.
func (e *Evaluator) execPush(info uint32) *camierrors.Error {
	if int(info) >= len(e.loaded.Constants) {
		return camierrors.CompilerGuarantee(camierrors.PhaseExecute, "push: constant index %d out of range", info)
	}
	c := e.loaded.Constants[info]
	switch c.Kind {
	case bytecode.ConstInteger:
		e.push(RichValue{Value: IntegerValue(c.Type, c.Bits)})
	case bytecode.ConstF32:
		e.push(RichValue{Value: Value{Kind: VF32, Type: c.Type, Bits: c.Bits}})
	case bytecode.ConstF64:
		e.push(RichValue{Value: Value{Kind: VF64, Type: c.Type, Bits: c.Bits}})
	case bytecode.ConstNull:
		e.push(RichValue{Value: Value{Kind: VNull, Type: c.Type}})
	default:
		return camierrors.CompilerGuarantee(camierrors.PhaseExecute, "push: unknown constant kind")
	}
	return nil
}
