// Package types is CAMI's TypeSystem: canonical, interned representations
// of C types plus the compatibility predicates and size/align rules the
// rest of the machine consults (spec §3.1, §4.1).
//
// Like wasm.ValType/wasm.FuncType in the teacher, every Type is a tagged
// union (Kind + payload) rather than a class hierarchy. Equal types built
// through one System are deduplicated to one shared descriptor; Types
// built directly as struct literals are not, so the compatibility
// predicates compare structurally.
package types

import "fmt"

// Kind discriminates the Type variants of spec §3.1.
type Kind uint8

const (
	Invalid Kind = iota
	Bool
	Char
	I8
	I16
	I32
	I64
	U8
	U16
	U32
	U64
	F32
	F64
	Void
	Null // nullptr_t
	Pointer
	Array
	Function
	Struct
	Union
	Qualified
	DissociativePointer
)

// Qualifiers is a bit set over {const, volatile, restrict, atomic}.
type Qualifiers uint8

const (
	QualConst Qualifiers = 1 << iota
	QualVolatile
	QualRestrict
	QualAtomic
)

func (q Qualifiers) Const() bool    { return q&QualConst != 0 }
func (q Qualifiers) Volatile() bool { return q&QualVolatile != 0 }
func (q Qualifiers) Restrict() bool { return q&QualRestrict != 0 }
func (q Qualifiers) Atomic() bool   { return q&QualAtomic != 0 }

// Type is the representation of a C type. Equal types obtained from the
// same System share one *Type descriptor; a Type built directly as a
// struct literal is a separate descriptor.
type Type struct {
	Kind Kind

	// Pointer
	Referenced *Type

	// Array
	Element *Type
	Length  uint64

	// Function
	Returned *Type
	Params   []*Type

	// Struct / Union (nominal): Members is filled in by System.DefineStruct
	// / DefineUnion, possibly after a forward Type with Members == nil was
	// already handed out by DeclareStruct / DeclareUnion.
	Name    string
	Members []*Type

	// Qualified
	Inner      *Type
	Qualifiers Qualifiers
}

func (t *Type) String() string {
	switch t.Kind {
	case Bool:
		return "_Bool"
	case Char:
		return "char"
	case I8:
		return "int8_t"
	case I16:
		return "int16_t"
	case I32:
		return "int32_t"
	case I64:
		return "int64_t"
	case U8:
		return "uint8_t"
	case U16:
		return "uint16_t"
	case U32:
		return "uint32_t"
	case U64:
		return "uint64_t"
	case F32:
		return "float"
	case F64:
		return "double"
	case Void:
		return "void"
	case Null:
		return "nullptr_t"
	case Pointer:
		return t.Referenced.String() + "*"
	case Array:
		return fmt.Sprintf("%s[%d]", t.Element, t.Length)
	case Function:
		return fmt.Sprintf("%s(...)", t.Returned)
	case Struct:
		return "struct " + t.Name
	case Union:
		return "union " + t.Name
	case Qualified:
		return qualString(t.Qualifiers) + t.Inner.String()
	case DissociativePointer:
		return "(dissociative)" + t.Referenced.String() + "*"
	default:
		return "<invalid>"
	}
}

func qualString(q Qualifiers) string {
	s := ""
	if q.Const() {
		s += "const "
	}
	if q.Volatile() {
		s += "volatile "
	}
	if q.Restrict() {
		s += "restrict "
	}
	if q.Atomic() {
		s += "_Atomic "
	}
	return s
}

// IsInteger reports whether t is one of the integer kinds (Bool, Char,
// I8..I64, U8..U64). Qualified types delegate to their Inner type.
func IsInteger(t *Type) bool {
	t = Unqualified(t)
	switch t.Kind {
	case Bool, Char, I8, I16, I32, I64, U8, U16, U32, U64:
		return true
	}
	return false
}

// IsArithmetic reports whether t is an integer or floating type.
func IsArithmetic(t *Type) bool {
	t = Unqualified(t)
	return IsInteger(t) || t.Kind == F32 || t.Kind == F64
}

// IsPointerLike reports whether t is a Pointer, Null, or DissociativePointer.
func IsPointerLike(t *Type) bool {
	t = Unqualified(t)
	return t.Kind == Pointer || t.Kind == Null || t.Kind == DissociativePointer
}

// IsScalar reports whether t is arithmetic or pointer-like.
func IsScalar(t *Type) bool {
	return IsArithmetic(t) || IsPointerLike(t)
}

// IsCCharacter reports whether t is one of the "character" kinds that may
// view any non-function object byte-by-byte (spec §4.1 is_c_character).
func IsCCharacter(t *Type) bool {
	t = Unqualified(t)
	return t.Kind == Char || t.Kind == I8 || t.Kind == U8
}

// Unqualified strips one layer of Qualified (Qualified never nests, spec
// §3.1 invariant), returning t unchanged if it is not Qualified.
func Unqualified(t *Type) *Type {
	if t.Kind == Qualified {
		return t.Inner
	}
	return t
}

func unsignedCounterpart(k Kind) Kind {
	switch k {
	case I8:
		return U8
	case I16:
		return U16
	case I32:
		return U32
	case I64:
		return U64
	default:
		return k
	}
}

// IsCompatible reports strict structural compatibility: same kind, same
// nominal name for struct/union, compatible referenced/element/param types
// and matching qualifiers for Qualified.
func IsCompatible(a, b *Type) bool {
	if a == b {
		return true
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case Pointer, DissociativePointer:
		return IsCompatible(a.Referenced, b.Referenced)
	case Array:
		return a.Length == b.Length && IsCompatible(a.Element, b.Element)
	case Function:
		if len(a.Params) != len(b.Params) || !IsCompatible(a.Returned, b.Returned) {
			return false
		}
		for i := range a.Params {
			if !IsCompatible(a.Params[i], b.Params[i]) {
				return false
			}
		}
		return true
	case Struct, Union:
		return a.Name == b.Name
	case Qualified:
		return a.Qualifiers == b.Qualifiers && IsCompatible(a.Inner, b.Inner)
	default:
		return true // same basic kind already checked above
	}
}

// IsLooserCompatible is IsCompatible but treats a signed integer kind and
// its unsigned counterpart of the same width as equal (ignores sign).
// Pointer referents must still be strictly compatible.
func IsLooserCompatible(a, b *Type) bool {
	if a == b {
		return true
	}
	ak, bk := a.Kind, b.Kind
	if IsInteger(a) && IsInteger(b) {
		return unsignedCounterpart(ak) == unsignedCounterpart(bk)
	}
	if ak != bk {
		return false
	}
	switch ak {
	case Pointer, DissociativePointer:
		return IsCompatible(a.Referenced, b.Referenced)
	case Array:
		return a.Length == b.Length && IsLooserCompatible(a.Element, b.Element)
	case Function:
		if len(a.Params) != len(b.Params) || !IsLooserCompatible(a.Returned, b.Returned) {
			return false
		}
		for i := range a.Params {
			if !IsLooserCompatible(a.Params[i], b.Params[i]) {
				return false
			}
		}
		return true
	case Struct, Union:
		return a.Name == b.Name
	case Qualified:
		return a.Qualifiers == b.Qualifiers && IsLooserCompatible(a.Inner, b.Inner)
	default:
		return true
	}
}

// IsLoosestCompatible is IsLooserCompatible but additionally ignores the
// referenced type of pointers (any pointer is loosest-compatible with any
// other pointer).
func IsLoosestCompatible(a, b *Type) bool {
	if IsPointerLike(a) && IsPointerLike(b) {
		return true
	}
	if a.Kind != b.Kind {
		if IsInteger(a) && IsInteger(b) {
			return unsignedCounterpart(a.Kind) == unsignedCounterpart(b.Kind)
		}
		return false
	}
	switch a.Kind {
	case Array:
		return a.Length == b.Length && IsLoosestCompatible(a.Element, b.Element)
	case Function:
		if len(a.Params) != len(b.Params) || !IsLoosestCompatible(a.Returned, b.Returned) {
			return false
		}
		for i := range a.Params {
			if !IsLoosestCompatible(a.Params[i], b.Params[i]) {
				return false
			}
		}
		return true
	case Struct, Union:
		return a.Name == b.Name
	case Qualified:
		return IsLoosestCompatible(a.Inner, b.Inner)
	default:
		return IsLooserCompatible(a, b)
	}
}

// IsAllowed reports whether an lvalue of lvalueType may view an object of
// objectType (spec §4.1 is_allowed): a character-typed lvalue may view any
// non-function object; otherwise the two types must be looser-compatible.
func IsAllowed(lvalueType, objectType *Type) bool {
	if IsCCharacter(lvalueType) && Unqualified(objectType).Kind != Function {
		return true
	}
	return IsLooserCompatible(lvalueType, objectType)
}

// Size returns the size in bytes of t per the ABI rules of spec §4.1.
func Size(t *Type) uint64 {
	switch t.Kind {
	case Bool, Char, I8, U8:
		return 1
	case I16, U16:
		return 2
	case I32, U32, F32:
		return 4
	case I64, U64, F64:
		return 8
	case Void, Null:
		return 0
	case Pointer, DissociativePointer:
		return 16
	case Array:
		return Size(t.Element) * t.Length
	case Struct:
		return structLayout(t).size
	case Union:
		return unionSize(t)
	case Qualified:
		return Size(t.Inner)
	default:
		return 0
	}
}

// Align returns the alignment in bytes of t.
func Align(t *Type) uint64 {
	switch t.Kind {
	case Bool, Char, I8, U8:
		return 1
	case I16, U16:
		return 2
	case I32, U32, F32:
		return 4
	case I64, U64, F64:
		return 8
	case Pointer, DissociativePointer:
		return 8
	case Array:
		return Align(t.Element)
	case Struct:
		return structLayout(t).align
	case Union:
		return unionAlign(t)
	case Qualified:
		return Align(t.Inner)
	default:
		return 1
	}
}

type layout struct {
	size    uint64
	align   uint64
	offsets []uint64
}

func structLayout(t *Type) layout {
	var l layout
	l.align = 1
	l.offsets = make([]uint64, len(t.Members))
	var offset uint64
	for i, m := range t.Members {
		a := Align(m)
		if a > l.align {
			l.align = a
		}
		offset = roundUp(offset, a)
		l.offsets[i] = offset
		offset += Size(m)
	}
	l.size = roundUp(offset, l.align)
	return l
}

// MemberOffsets returns the byte offset of each member in a struct type.
// For union types every member is at offset 0.
func MemberOffsets(t *Type) []uint64 {
	switch t.Kind {
	case Struct:
		return structLayout(t).offsets
	case Union:
		return make([]uint64, len(t.Members))
	default:
		return nil
	}
}

func unionSize(t *Type) uint64 {
	var max uint64
	for _, m := range t.Members {
		if s := Size(m); s > max {
			max = s
		}
	}
	a := unionAlign(t)
	return roundUp(max, a)
}

func unionAlign(t *Type) uint64 {
	var max uint64 = 1
	for _, m := range t.Members {
		if a := Align(m); a > max {
			max = a
		}
	}
	return max
}

func roundUp(v, align uint64) uint64 {
	if align == 0 {
		return v
	}
	rem := v % align
	if rem == 0 {
		return v
	}
	return v + (align - rem)
}
