package types

import (
	"fmt"
	"strings"
	"sync"
)

// System is the thread-unsafe interning manager owning every Type
// descriptor reachable from CAMI bytecode. It mirrors the teacher's
// Module.AddType dedup-on-insert idiom, generalized into dedicated pools
// per variant kind the way wasm.Module keeps TypeDefs/Types separate pools
// for plain functions vs. GC composite types.
//
// A System is NOT safe for concurrent use (spec §4.1: "thread-unsafe");
// CAMI is single-threaded end to end (spec §5).
type System struct {
	basics   [DissociativePointer + 1]*Type // singletons, indexed by Kind
	pointers map[*Type]*Type
	arrays   map[arrayKey]*Type
	funcs    map[string]*Type
	quals    map[qualKey]*Type
	structs  map[string]*Type
	unions   map[string]*Type

	once sync.Once
}

type arrayKey struct {
	elem   *Type
	length uint64
}

type qualKey struct {
	inner *Type
	quals Qualifiers
}

// NewSystem constructs an empty TypeSystem with its basic-kind singletons
// pre-interned.
func NewSystem() *System {
	s := &System{
		pointers: make(map[*Type]*Type),
		arrays:   make(map[arrayKey]*Type),
		funcs:    make(map[string]*Type),
		quals:    make(map[qualKey]*Type),
		structs:  make(map[string]*Type),
		unions:   make(map[string]*Type),
	}
	for k := Invalid; k <= DissociativePointer; k++ {
		switch k {
		case Pointer, Array, Function, Struct, Union, Qualified:
			// parameterized kinds: not a basic singleton
		default:
			s.basics[k] = &Type{Kind: k}
		}
	}
	return s
}

// Basic returns the canonical descriptor for a non-parameterized kind
// (Bool, Char, I8..U64, F32, F64, Void, Null, Invalid, DissociativePointer
// used only as the Referenced-less raw case is not supported here — use
// Pointer with Kind override via Cast when a dissociative pointer value
// needs a type).
func (s *System) Basic(k Kind) *Type {
	if t := s.basics[k]; t != nil {
		return t
	}
	return s.basics[Invalid]
}

// Bool, Char, ... convenience accessors for the most commonly used basics.
func (s *System) Bool() *Type { return s.Basic(Bool) }
func (s *System) Char() *Type { return s.Basic(Char) }
func (s *System) I8() *Type   { return s.Basic(I8) }
func (s *System) I16() *Type  { return s.Basic(I16) }
func (s *System) I32() *Type  { return s.Basic(I32) }
func (s *System) I64() *Type  { return s.Basic(I64) }
func (s *System) U8() *Type   { return s.Basic(U8) }
func (s *System) U16() *Type  { return s.Basic(U16) }
func (s *System) U32() *Type  { return s.Basic(U32) }
func (s *System) U64() *Type  { return s.Basic(U64) }
func (s *System) F32() *Type  { return s.Basic(F32) }
func (s *System) F64() *Type  { return s.Basic(F64) }
func (s *System) Void() *Type { return s.Basic(Void) }
func (s *System) Null() *Type { return s.Basic(Null) }

// Pointer returns the canonical pointer-to-ref type, interning on first sight.
func (s *System) Pointer(ref *Type) *Type {
	if t, ok := s.pointers[ref]; ok {
		return t
	}
	t := &Type{Kind: Pointer, Referenced: ref}
	s.pointers[ref] = t
	return t
}

// Array returns the canonical array-of-elem type of the given length.
// Precondition: length > 0 (spec §3.1 invariant); violating it is a
// programmer bug, not a reported error (spec §4.1).
func (s *System) Array(elem *Type, length uint64) *Type {
	key := arrayKey{elem, length}
	if t, ok := s.arrays[key]; ok {
		return t
	}
	t := &Type{Kind: Array, Element: elem, Length: length}
	s.arrays[key] = t
	return t
}

// Function returns the canonical function type for (returned, params).
func (s *System) Function(returned *Type, params []*Type) *Type {
	key := funcKey(returned, params)
	if t, ok := s.funcs[key]; ok {
		return t
	}
	t := &Type{Kind: Function, Returned: returned, Params: append([]*Type(nil), params...)}
	s.funcs[key] = t
	return t
}

func funcKey(returned *Type, params []*Type) string {
	parts := make([]string, 0, len(params)+1)
	parts = append(parts, fmt.Sprintf("%p", returned))
	for _, p := range params {
		parts = append(parts, fmt.Sprintf("%p", p))
	}
	return strings.Join(parts, ",")
}

// Qualified returns the canonical qualified type. Precondition: inner is
// neither Qualified nor Function (spec §3.1 invariant).
func (s *System) Qualified(inner *Type, quals Qualifiers) *Type {
	key := qualKey{inner, quals}
	if t, ok := s.quals[key]; ok {
		return t
	}
	t := &Type{Kind: Qualified, Inner: inner, Qualifiers: quals}
	s.quals[key] = t
	return t
}

// DeclareStruct returns the (possibly already-defined) descriptor for a
// forward-declared struct, reserving it on first sight with Members == nil.
func (s *System) DeclareStruct(name string) *Type {
	if t, ok := s.structs[name]; ok {
		return t
	}
	t := &Type{Kind: Struct, Name: name}
	s.structs[name] = t
	return t
}

// DefineStruct fills in the member list of a previously (or implicitly)
// declared struct.
func (s *System) DefineStruct(name string, members []*Type) *Type {
	t := s.DeclareStruct(name)
	t.Members = members
	return t
}

// DeclareUnion returns the (possibly already-defined) descriptor for a
// forward-declared union.
func (s *System) DeclareUnion(name string) *Type {
	if t, ok := s.unions[name]; ok {
		return t
	}
	t := &Type{Kind: Union, Name: name}
	s.unions[name] = t
	return t
}

// DefineUnion fills in the member list of a previously (or implicitly)
// declared union.
func (s *System) DefineUnion(name string, members []*Type) *Type {
	t := s.DeclareUnion(name)
	t.Members = members
	return t
}
