package vmem

// heap is a lazily-allocated, zero-initialized paged region of the heap
// segment. The reference implementation keys pages in an explicit
// multi-level radix page table (configurable level count and page size,
// spec §4.2); a Go map from page index to page buffer is the idiomatic
// equivalent for this sparse, address-keyed workload and keeps the same
// lazy-zero-page semantics and O(1) average lookup.
type heap struct {
	pageSize uint64
	pages    map[uint64][]byte
}

func newHeap(pageSize uint64) *heap {
	if pageSize == 0 {
		pageSize = 4096
	}
	return &heap{pageSize: pageSize, pages: make(map[uint64][]byte)}
}

func (h *heap) pageIndex(addr uint64) uint64 {
	return (addr - HeapBase) / h.pageSize
}

func (h *heap) page(idx uint64, alloc bool) []byte {
	p, ok := h.pages[idx]
	if !ok {
		if !alloc {
			return nil
		}
		p = make([]byte, h.pageSize)
		h.pages[idx] = p
	}
	return p
}

// read handles an access that may cross one or more page boundaries.
func (h *heap) read(dest []byte, addr uint64) {
	remaining := dest
	for len(remaining) > 0 {
		off := addr % h.pageSize
		n := h.pageSize - off
		if uint64(len(remaining)) < n {
			n = uint64(len(remaining))
		}
		p := h.pages[h.pageIndex(addr)]
		if p == nil {
			for i := uint64(0); i < n; i++ {
				remaining[i] = 0
			}
		} else {
			copy(remaining[:n], p[off:off+n])
		}
		remaining = remaining[n:]
		addr += n
	}
}

func (h *heap) write(addr uint64, src []byte) {
	remaining := src
	for len(remaining) > 0 {
		off := addr % h.pageSize
		n := h.pageSize - off
		if uint64(len(remaining)) < n {
			n = uint64(len(remaining))
		}
		p := h.page(h.pageIndex(addr), true)
		copy(p[off:off+n], remaining[:n])
		remaining = remaining[n:]
		addr += n
	}
}

func (h *heap) zeroize(addr uint64, length uint64) {
	for length > 0 {
		off := addr % h.pageSize
		n := h.pageSize - off
		if n > length {
			n = length
		}
		if p, ok := h.pages[h.pageIndex(addr)]; ok {
			for i := uint64(0); i < n; i++ {
				p[off+i] = 0
			}
		}
		addr += n
		length -= n
	}
}
