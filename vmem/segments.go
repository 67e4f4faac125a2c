// Package vmem is CAMI's VirtualMemory: a byte-addressable, segmented 64-bit
// address space with endian-aware fixed-width load/store, a lazily paged
// heap and an 8-register MMIO device (spec §4.2).
//
// The segment/register adapter shape is grounded on the teacher's
// linker/internal/memory.Wrapper, which bridges a single flat address
// space (wazero's api.Memory) to typed, bounds-checked fixed-width
// accessors; Memory here does the analogous job across five segments
// instead of one.
package vmem

// Segment identifies which region of the address space an address falls
// in (spec §4.2 table). Addresses are exactly as laid out by the reference
// implementation's layout:: constants.
type Segment int

const (
	SegmentNone Segment = iota
	SegmentCode
	SegmentData
	SegmentHeap
	SegmentStack
	SegmentMMIO
)

const (
	CodeBase      uint64 = 0x0000_0000_0001_0000
	CodeBoundary  uint64 = 0x1000_0000_0000_0000
	DataBase      uint64 = CodeBoundary
	DataBoundary  uint64 = 0x2000_0000_0000_0000
	HeapBase      uint64 = DataBoundary
	HeapBoundary  uint64 = 0x5fff_ffff_ffff_0000
	StackBase     uint64 = 0x6000_0000_0000_0000
	StackBoundary uint64 = 0x8000_0000_0000_0000
	MMIOBase      uint64 = StackBoundary
	MMIOBoundary  uint64 = 0xa000_0000_0000_0000
)

// NumMMIORegisters is the count of 8-byte MMIO registers (spec §4.2,
// §6.3): control, word0..word6.
const NumMMIORegisters = 8

func inRange(addr, base, boundary uint64) bool {
	return addr >= base && addr < boundary
}

func rangeFits(addr, length, base, boundary uint64) bool {
	if addr+length < addr {
		return false // overflow
	}
	return addr >= base && addr+length <= boundary
}

// SegmentOf classifies addr, or returns SegmentNone if it falls in an
// unused gap.
func SegmentOf(addr uint64) Segment {
	switch {
	case inRange(addr, CodeBase, CodeBoundary):
		return SegmentCode
	case inRange(addr, DataBase, DataBoundary):
		return SegmentData
	case inRange(addr, HeapBase, HeapBoundary):
		return SegmentHeap
	case inRange(addr, StackBase, StackBoundary):
		return SegmentStack
	case inRange(addr, MMIOBase, MMIOBoundary):
		return SegmentMMIO
	default:
		return SegmentNone
	}
}
