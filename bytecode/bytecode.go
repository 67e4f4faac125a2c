// Package bytecode is the in-memory shape the Evaluator consumes once the
// (out-of-scope) assembler/linker has produced a linked module: code and
// data bytes, the function/type/constant tables, static-object placement,
// and the relocations to apply once at load (spec §6.1).
//
// Grounded on wasm/types.go's Module/FuncBody/DataSegment shape and
// wasm/decode.go's section-by-section "decode into a plain struct" style;
// there is no decoder here because the textual/binary bytecode format is a
// spec Non-goal — Program is handed to Load already populated.
package bytecode

import "github.com/cami-vm/cami/types"

// Resource limits (spec §6.1).
const (
	MaxTypesOrConstants = 1 << 24
	MaxFunctions        = 1 << 22
	MaxStaticObjects    = 1 << 22
	MaxAutomaticObjects = 1 << 23
)

// BlockInfo is one entry of a function's block table: the automatic
// objects (by slot index; their types are in Function.SlotTypes) a block
// creates on entry and destroys on leave.
type BlockInfo struct {
	Slots []uint32
}

// FullExprInfo mirrors trace.FullExprInfo's wire shape: event count, the
// N×N sequenced-after bitmap flattened row-major, and a source location
// per inner-id.
type FullExprInfo struct {
	EventCount int
	Bits       []bool // EventCount*EventCount, row-major: Bits[i*EventCount+j] == sequenced-after(i,j)
	Lines      []int
	Columns    []int
}

// SourceLine maps a code offset (relative to the function's address) to a
// line number, for diagnostics.
type SourceLine struct {
	CodeOffset uint64
	Line       int
}

// Function is a Function entity (spec §3.2): immutable after load.
type Function struct {
	Name          string
	EffectiveType *types.Type
	AddressInCode uint64
	FileName      string
	FrameSize     uint64
	CodeSize      uint64
	MaxObjectNum  int
	Blocks        []BlockInfo
	FullExprs     []FullExprInfo
	SourceLines   []SourceLine

	// SlotTypes[i]/SlotOffsets[i] give the type and frame-relative byte
	// offset of automatic-object slot i, for every slot this function
	// ever creates across all its blocks (len == MaxObjectNum).
	SlotTypes   []*types.Type
	SlotOffsets []uint64
}

// StaticObject places one named object at a data-segment-relative address.
type StaticObject struct {
	Name              string
	Type              *types.Type
	AddressRelToData  uint64
}

// DataRelocation rewrites an 8-byte field in the data segment, at load, to
// the resolved address of Symbol (a static object or function name).
type DataRelocation struct {
	OffsetInData uint64
	Symbol       string
}

// Program is the complete linked module (spec §6.1).
type Program struct {
	Code             []byte
	Data             []byte
	StringLiteralLen uint64

	StaticObjects []StaticObject
	Constants     []Constant
	Types         []*types.Type
	Functions     []Function
	DataRelocate  []DataRelocation

	// Entry indexes Functions; its AddressInCode becomes the initial pc.
	Entry int
}

// ConstantKind discriminates the variants of a pre-materialized constant
// (spec §3.4 Value, restricted to what `push` can embed).
type ConstantKind uint8

const (
	ConstInteger ConstantKind = iota
	ConstF32
	ConstF64
	ConstNull
)

// Constant is one entry of the constants table consumed by `push`.
type Constant struct {
	Kind ConstantKind
	Type *types.Type
	Bits uint64 // integer bit pattern, or the bits of the f32/f64 value
}
