package bytecode

import (
	"encoding/binary"

	"go.uber.org/zap"

	"github.com/cami-vm/cami/camierrors"
	"github.com/cami-vm/cami/object"
	"github.com/cami-vm/cami/types"
	"github.com/cami-vm/cami/vmem"
)

// EntityKind discriminates the two Entity variants of spec §3.2.
type EntityKind uint8

const (
	EntityObject EntityKind = iota
	EntityFunction
)

// Entity is anything addressable by a pointer value (spec §3.2, §3.6
// "entities: ordered map from u64 address -> Entity").
type Entity struct {
	Kind      EntityKind
	Name      string
	Address   uint64
	FuncIndex int // valid when Kind == EntityFunction
}

// Loaded is the result of linking a Program into live machine state: a
// VirtualMemory with relocations applied, an ObjectManager with every
// static object created and set well, and the entity map the Evaluator
// consults for pointer<->integer casts and indirect calls.
type Loaded struct {
	Memory    *vmem.Memory
	Objects   *object.Manager
	Entities  map[uint64]Entity
	ObjByAddr map[uint64]object.Ref
	// StaticRefs[i] is the Ref of prog.StaticObjects[i], for dsg's global
	// index resolution.
	StaticRefs []object.Ref
	Functions  []Function
	Types      []*types.Type
	Constants  []Constant
	EntryIndex int
	EntryPC    uint64
}

// Load validates a Program against the resource limits of spec §6.1,
// applies its data relocations, and constructs the live VirtualMemory and
// ObjectManager, creating every static object as a Permanent, well-status
// object family.
func Load(prog *Program, memCfg vmem.Config, objCfg object.Config, logger *zap.Logger) (*Loaded, *camierrors.Error) {
	if len(prog.Types) > MaxTypesOrConstants || len(prog.Constants) > MaxTypesOrConstants {
		return nil, camierrors.CompilerGuarantee(camierrors.PhaseLoad, "types/constants table exceeds 2^24 entries")
	}
	if len(prog.Functions) > MaxFunctions {
		return nil, camierrors.CompilerGuarantee(camierrors.PhaseLoad, "function table exceeds 2^22 entries")
	}
	if len(prog.StaticObjects) > MaxStaticObjects {
		return nil, camierrors.CompilerGuarantee(camierrors.PhaseLoad, "static-object table exceeds 2^22 entries")
	}
	for i, fn := range prog.Functions {
		if fn.MaxObjectNum > MaxAutomaticObjects {
			return nil, camierrors.CompilerGuarantee(camierrors.PhaseLoad, "function %q (#%d) exceeds 2^23 automatic objects", fn.Name, i)
		}
	}
	if prog.Entry < 0 || prog.Entry >= len(prog.Functions) {
		return nil, camierrors.HostFault(camierrors.PhaseLoad, nil, "entry index out of range")
	}

	symbols, err := resolveSymbols(prog)
	if err != nil {
		return nil, err
	}
	data := append([]byte(nil), prog.Data...)
	for _, reloc := range prog.DataRelocate {
		addr, ok := symbols[reloc.Symbol]
		if !ok {
			return nil, camierrors.HostFault(camierrors.PhaseLoad, nil, "relocation references unknown symbol %q", reloc.Symbol)
		}
		if reloc.OffsetInData+8 > uint64(len(data)) {
			return nil, camierrors.CompilerGuarantee(camierrors.PhaseLoad, "relocation offset %d out of range of data segment", reloc.OffsetInData)
		}
		binary.LittleEndian.PutUint64(data[reloc.OffsetInData:], addr)
	}

	mem, merr := vmem.NewMemory(prog.Code, data, prog.StringLiteralLen, memCfg)
	if merr != nil {
		return nil, merr.(*camierrors.Error)
	}

	mgr := object.NewManager(mem, objCfg, logger)
	entities := make(map[uint64]Entity, len(prog.StaticObjects)+len(prog.Functions))
	objByAddr := make(map[uint64]object.Ref, len(prog.StaticObjects))
	staticRefs := make([]object.Ref, len(prog.StaticObjects))

	for i, so := range prog.StaticObjects {
		addr := vmem.DataBase + so.AddressRelToData
		ref, _, cerr := mgr.New(so.Type, addr, true, object.RootSet{})
		if cerr != nil {
			return nil, cerr
		}
		entities[addr] = Entity{Kind: EntityObject, Name: so.Name, Address: addr}
		objByAddr[addr] = ref
		staticRefs[i] = ref
	}
	for i, fn := range prog.Functions {
		addr := vmem.CodeBase + fn.AddressInCode
		entities[addr] = Entity{Kind: EntityFunction, Name: fn.Name, Address: addr, FuncIndex: i}
	}

	entryAddr := vmem.CodeBase + prog.Functions[prog.Entry].AddressInCode
	return &Loaded{
		Memory:     mem,
		Objects:    mgr,
		Entities:   entities,
		ObjByAddr:  objByAddr,
		StaticRefs: staticRefs,
		Functions:  prog.Functions,
		Types:      prog.Types,
		Constants:  prog.Constants,
		EntryIndex: prog.Entry,
		EntryPC:    entryAddr,
	}, nil
}

// resolveSymbols builds the name -> absolute-address table relocations
// resolve against, before any object is created (static objects and
// functions may reference each other and themselves).
func resolveSymbols(prog *Program) (map[string]uint64, *camierrors.Error) {
	symbols := make(map[string]uint64, len(prog.StaticObjects)+len(prog.Functions))
	for _, so := range prog.StaticObjects {
		addr := vmem.DataBase + so.AddressRelToData
		if _, dup := symbols[so.Name]; dup {
			return nil, camierrors.CompilerGuarantee(camierrors.PhaseLoad, "duplicate symbol %q", so.Name)
		}
		symbols[so.Name] = addr
	}
	for _, fn := range prog.Functions {
		addr := vmem.CodeBase + fn.AddressInCode
		if _, dup := symbols[fn.Name]; dup {
			return nil, camierrors.CompilerGuarantee(camierrors.PhaseLoad, "duplicate symbol %q", fn.Name)
		}
		symbols[fn.Name] = addr
	}
	return symbols, nil
}
