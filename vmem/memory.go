package vmem

import (
	"encoding/binary"

	"github.com/cami-vm/cami/camierrors"
)

// Config controls the tunables of a Memory instance.
type Config struct {
	HeapPageSize uint64
	HostFS       HostFS
}

// Memory is CAMI's VirtualMemory (spec §4.2): a single 64-bit address space
// made of five segments backed by different storage strategies -
// contiguous byte slices for code and data, a lazily paged map for the
// heap, a growable deque for the stack, and an 8-register device for MMIO.
//
// Grounded on the teacher's linker/internal/memory.Wrapper, which wraps a
// single wazero api.Memory behind typed, bounds-checked accessors; Memory
// generalizes the same idea across five segments instead of one.
type Memory struct {
	code             []byte
	data             []byte
	stringLiteralLen uint64

	// stack[i] holds the byte at address (StackBoundary - len(stack) + i).
	// It grows toward lower addresses as NotifyStackPointer descends.
	stack []byte

	heap *heap
	mmio *mmio
}

// NewMemory builds a Memory over the given code and data segment contents.
// stringLiteralLen is the byte count, from the start of data, that holds
// string-literal initializers and is therefore write-protected (spec
// §4.4.3, UBModifyStringLiteral).
func NewMemory(code, data []byte, stringLiteralLen uint64, cfg Config) (*Memory, error) {
	if uint64(len(code)) > CodeBoundary-CodeBase {
		return nil, camierrors.CompilerGuarantee(camierrors.PhaseLoad, "code segment exceeds the code region")
	}
	if uint64(len(data)) > DataBoundary-DataBase {
		return nil, camierrors.CompilerGuarantee(camierrors.PhaseLoad, "data segment exceeds the data region")
	}
	fs := cfg.HostFS
	if fs == nil {
		fs = NewOSHostFS(".")
	}
	m := &Memory{
		code:             code,
		data:             data,
		stringLiteralLen: stringLiteralLen,
		heap:             newHeap(cfg.HeapPageSize),
	}
	m.mmio = newMMIO(fs, m.rawRead, m.rawWrite)
	return m, nil
}

func (m *Memory) stackBottom() uint64 {
	return StackBoundary - uint64(len(m.stack))
}

// NotifyStackPointer informs Memory of the evaluator's current stack
// pointer (the lowest valid stack address), growing or shrinking the
// backing deque as frames push and pop.
func (m *Memory) NotifyStackPointer(sp uint64) {
	bottom := m.stackBottom()
	switch {
	case sp < bottom:
		grown := make([]byte, (bottom-sp)+uint64(len(m.stack)))
		copy(grown[bottom-sp:], m.stack)
		m.stack = grown
	case sp > bottom:
		shrink := sp - bottom
		if shrink > uint64(len(m.stack)) {
			shrink = uint64(len(m.stack))
		}
		m.stack = m.stack[shrink:]
	}
}

// rawRead is the MMIO device's view into guest memory for syscall
// arguments (file names, read/write buffers), which may live in data,
// heap or stack. It reports failure instead of erroring so the MMIO
// device can surface it as a status code (E_BAD_IN_BUF).
func (m *Memory) rawRead(addr uint64, n int) ([]byte, bool) {
	dest := make([]byte, n)
	if err := m.Read(dest, addr, uint64(n)); err != nil {
		return nil, false
	}
	return dest, true
}

func (m *Memory) rawWrite(addr uint64, p []byte) bool {
	return m.Write(addr, p) == nil
}

// Read copies length bytes starting at addr into dest (spec §4.2: read).
func (m *Memory) Read(dest []byte, addr uint64, length uint64) error {
	if length == 0 {
		return nil
	}
	if uint64(len(dest)) < length {
		return camierrors.CompilerGuarantee(camierrors.PhaseExecute, "destination buffer smaller than read length")
	}
	switch SegmentOf(addr) {
	case SegmentCode:
		if !rangeFits(addr, length, CodeBase, CodeBase+uint64(len(m.code))) {
			return camierrors.MemoryAccess(addr, length, "read past end of code segment")
		}
		copy(dest[:length], m.code[addr-CodeBase:])
		return nil
	case SegmentData:
		if !rangeFits(addr, length, DataBase, DataBase+uint64(len(m.data))) {
			return camierrors.MemoryAccess(addr, length, "read past end of data segment")
		}
		copy(dest[:length], m.data[addr-DataBase:])
		return nil
	case SegmentHeap:
		if !rangeFits(addr, length, HeapBase, HeapBoundary) {
			return camierrors.MemoryAccess(addr, length, "read outside heap segment")
		}
		m.heap.read(dest[:length], addr)
		return nil
	case SegmentStack:
		if !rangeFits(addr, length, m.stackBottom(), StackBoundary) {
			return camierrors.MemoryAccess(addr, length, "read outside live stack region")
		}
		copy(dest[:length], m.stack[addr-m.stackBottom():])
		return nil
	case SegmentMMIO:
		return camierrors.MMIOAccess("MMIO registers are not byte-addressable for arbitrary-length read")
	default:
		return camierrors.MemoryAccess(addr, length, "address not in any segment")
	}
}

// Write stores src at addr (spec §4.2: write). Writes into the code
// segment or the string-literal prefix of data are rejected per
// UBModifyStringLiteral / the compiler guarantee that code is immutable.
func (m *Memory) Write(addr uint64, src []byte) error {
	length := uint64(len(src))
	if length == 0 {
		return nil
	}
	switch SegmentOf(addr) {
	case SegmentCode:
		return camierrors.CompilerGuarantee(camierrors.PhaseExecute, "attempt to write to the code segment")
	case SegmentData:
		if !rangeFits(addr, length, DataBase, DataBase+uint64(len(m.data))) {
			return camierrors.MemoryAccess(addr, length, "write past end of data segment")
		}
		if addr < DataBase+m.stringLiteralLen {
			return camierrors.UB("write to a string-literal object", camierrors.UBModifyStringLiteral)
		}
		copy(m.data[addr-DataBase:], src)
		return nil
	case SegmentHeap:
		if !rangeFits(addr, length, HeapBase, HeapBoundary) {
			return camierrors.MemoryAccess(addr, length, "write outside heap segment")
		}
		m.heap.write(addr, src)
		return nil
	case SegmentStack:
		if !rangeFits(addr, length, m.stackBottom(), StackBoundary) {
			return camierrors.MemoryAccess(addr, length, "write outside live stack region")
		}
		copy(m.stack[addr-m.stackBottom():], src)
		return nil
	case SegmentMMIO:
		if length != 8 {
			return camierrors.MMIOAccess("MMIO registers are written one 8-byte word at a time")
		}
		m.mmio.writeRegister(addr, binary.LittleEndian.Uint64(src))
		return nil
	default:
		return camierrors.MemoryAccess(addr, length, "address not in any segment")
	}
}

// Zeroize fills length bytes at addr with zero (spec §4.2: zeroize), used
// by object destruction to erase the value representation.
func (m *Memory) Zeroize(addr uint64, length uint64) error {
	if length == 0 {
		return nil
	}
	switch SegmentOf(addr) {
	case SegmentCode:
		return camierrors.CompilerGuarantee(camierrors.PhaseExecute, "attempt to zeroize the code segment")
	case SegmentData:
		if !rangeFits(addr, length, DataBase, DataBase+uint64(len(m.data))) {
			return camierrors.MemoryAccess(addr, length, "zeroize past end of data segment")
		}
		seg := m.data[addr-DataBase : addr-DataBase+length]
		for i := range seg {
			seg[i] = 0
		}
		return nil
	case SegmentHeap:
		if !rangeFits(addr, length, HeapBase, HeapBoundary) {
			return camierrors.MemoryAccess(addr, length, "zeroize outside heap segment")
		}
		m.heap.zeroize(addr, length)
		return nil
	case SegmentStack:
		if !rangeFits(addr, length, m.stackBottom(), StackBoundary) {
			return camierrors.MemoryAccess(addr, length, "zeroize outside live stack region")
		}
		seg := m.stack[addr-m.stackBottom() : addr-m.stackBottom()+length]
		for i := range seg {
			seg[i] = 0
		}
		return nil
	default:
		return camierrors.MemoryAccess(addr, length, "address not in any segment")
	}
}

// ReadMMIORegister reads one of the 8-byte MMIO words (used by
// Read16/Read32/Read64 for reads that land in SegmentMMIO).
func (m *Memory) ReadMMIORegister(addr uint64) (uint64, error) {
	if SegmentOf(addr) != SegmentMMIO {
		return 0, camierrors.MMIOAccess("address is not an MMIO register")
	}
	return m.mmio.readRegister(addr), nil
}

func checkAlignment(addr uint64, width uint64) error {
	if addr%width != 0 {
		return camierrors.UB("misaligned fixed-width access", camierrors.UBUnalignedPtrCast)
	}
	return nil
}

// Read16/Read32/Read64 load aligned little-endian integers (spec §4.2:
// fixed-width accessors; the evaluator's loads go through Read instead).
func (m *Memory) Read16(addr uint64) (uint16, error) {
	if err := checkAlignment(addr, 2); err != nil {
		return 0, err
	}
	if SegmentOf(addr) == SegmentMMIO {
		v, err := m.ReadMMIORegister(addr)
		return uint16(v), err
	}
	var buf [2]byte
	if err := m.Read(buf[:], addr, 2); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(buf[:]), nil
}

func (m *Memory) Read32(addr uint64) (uint32, error) {
	if err := checkAlignment(addr, 4); err != nil {
		return 0, err
	}
	if SegmentOf(addr) == SegmentMMIO {
		v, err := m.ReadMMIORegister(addr)
		return uint32(v), err
	}
	var buf [4]byte
	if err := m.Read(buf[:], addr, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func (m *Memory) Read64(addr uint64) (uint64, error) {
	if err := checkAlignment(addr, 8); err != nil {
		return 0, err
	}
	if SegmentOf(addr) == SegmentMMIO {
		return m.ReadMMIORegister(addr)
	}
	var buf [8]byte
	if err := m.Read(buf[:], addr, 8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func (m *Memory) Write16(addr uint64, v uint16) error {
	if err := checkAlignment(addr, 2); err != nil {
		return err
	}
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	return m.Write(addr, buf[:])
}

func (m *Memory) Write32(addr uint64, v uint32) error {
	if err := checkAlignment(addr, 4); err != nil {
		return err
	}
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return m.Write(addr, buf[:])
}

func (m *Memory) Write64(addr uint64, v uint64) error {
	if err := checkAlignment(addr, 8); err != nil {
		return err
	}
	if SegmentOf(addr) == SegmentMMIO {
		m.mmio.writeRegister(addr, v)
		return nil
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return m.Write(addr, buf[:])
}

// StackTop returns the current lowest live stack address.
func (m *Memory) StackTop() uint64 {
	return m.stackBottom()
}
