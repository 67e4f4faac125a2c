// Package eval is CAMI's Evaluator: the operand stack, designation
// register, and opcode dispatch loop that executes linked bytecode and
// raises Undefined Behavior as a typed error (spec §4.4).
//
// Grounded on wasm/instruction.go's tagged-union-per-opcode style for
// Value/Opcode, and engine/wazero.go + engine/abi.go for call dispatch and
// ABI-style value classification (here, the cast rules of spec §4.4.3).
package eval

import (
	"math"

	"github.com/cami-vm/cami/object"
	"github.com/cami-vm/cami/types"
)

// ValueKind discriminates the Value variants of spec §3.4.
type ValueKind uint8

const (
	VInteger ValueKind = iota
	VF32
	VF64
	VPointer
	VDissociativePointer
	VStructOrUnion
	VNull
	VUndefined
)

// Value is CAMI's tagged-union runtime value. Integer bit patterns are
// always stored in Bits regardless of width; arithmetic normalizes by
// sign-/zero-extending against Type on every read.
type Value struct {
	Kind ValueKind
	Type *types.Type

	Bits uint64 // VInteger (raw pattern), VF32/VF64 (IEEE-754 bit pattern)

	// VPointer / VDissociativePointer
	Entity    object.Ref // nil (ArenaNone) when the pointer targets no live object
	RawAddr   uint64     // base address on the wire, valid for both kinds
	Offset    uint64

	// VStructOrUnion: the value is "generated by" this object, used by
	// the overlap check on a subsequent direct assignment (spec §4.4.3).
	Backing object.Ref
}

// Attributes is the non-value metadata riding along an operand-stack slot
// (spec §3.4 RichValue).
type Attributes struct {
	Indeterminate  bool
	DirectlyReadFrom object.Ref // ArenaNone if this value was not a direct, unmodified read of an object
}

// RichValue is one operand-stack slot.
type RichValue struct {
	Value
	Attributes
}

// F32 decodes the IEEE-754 bit pattern as a float32.
func (v Value) F32() float32 { return math.Float32frombits(uint32(v.Bits)) }

// F64 decodes the IEEE-754 bit pattern as a float64.
func (v Value) F64() float64 { return math.Float64frombits(v.Bits) }

// IntegerValue builds an Integer Value, masking Bits to the type's width.
func IntegerValue(t *types.Type, bits uint64) Value {
	return Value{Kind: VInteger, Type: t, Bits: normalize(t, bits)}
}

// F32Value builds an F32 Value.
func F32Value(f float32) Value {
	return Value{Kind: VF32, Type: &types.Type{Kind: types.F32}, Bits: uint64(math.Float32bits(f))}
}

// F64Value builds an F64 Value.
func F64Value(f float64) Value {
	return Value{Kind: VF64, Type: &types.Type{Kind: types.F64}, Bits: math.Float64bits(f)}
}

// normalize sign-/zero-extends bits to t's logical width, per spec §3.4.
func normalize(t *types.Type, bits uint64) uint64 {
	ut := types.Unqualified(t)
	width := types.Size(ut) * 8
	if width == 0 || width >= 64 {
		return bits
	}
	mask := uint64(1)<<width - 1
	bits &= mask
	if isSigned(ut) && bits&(1<<(width-1)) != 0 {
		bits |= ^mask
	}
	return bits
}

func isSigned(t *types.Type) bool {
	switch t.Kind {
	case types.I8, types.I16, types.I32, types.I64, types.Char:
		return true
	default:
		return false
	}
}

// AsInt64 reinterprets Bits as a signed 64-bit integer (already correctly
// extended by normalize at construction time).
func (v Value) AsInt64() int64 { return int64(v.Bits) }

// AsUint64 reinterprets Bits as an unsigned 64-bit integer.
func (v Value) AsUint64() uint64 { return v.Bits }
