package vmem_test

import (
	"os"
	"testing"

	"github.com/cami-vm/cami/vmem"
)

func newTestMemory(t *testing.T) *vmem.Memory {
	t.Helper()
	code := make([]byte, 64)
	data := make([]byte, 128)
	m, err := vmem.NewMemory(code, data, 16, vmem.Config{HeapPageSize: 64})
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	return m
}

func TestSegmentOf(t *testing.T) {
	cases := []struct {
		addr uint64
		want vmem.Segment
	}{
		{vmem.CodeBase, vmem.SegmentCode},
		{vmem.DataBase, vmem.SegmentData},
		{vmem.HeapBase, vmem.SegmentHeap},
		{vmem.StackBase, vmem.SegmentStack},
		{vmem.MMIOBase, vmem.SegmentMMIO},
		{vmem.CodeBoundary - 1, vmem.SegmentCode},
		{0, vmem.SegmentNone},
	}
	for _, c := range cases {
		if got := vmem.SegmentOf(c.addr); got != c.want {
			t.Errorf("SegmentOf(0x%x) = %v, want %v", c.addr, got, c.want)
		}
	}
}

func TestDataReadWriteRoundTrip(t *testing.T) {
	m := newTestMemory(t)
	addr := vmem.DataBase + 32
	if err := m.Write64(addr, 0xdeadbeefcafef00d); err != nil {
		t.Fatalf("Write64: %v", err)
	}
	got, err := m.Read64(addr)
	if err != nil {
		t.Fatalf("Read64: %v", err)
	}
	if got != 0xdeadbeefcafef00d {
		t.Errorf("got %#x, want %#x", got, uint64(0xdeadbeefcafef00d))
	}
}

func TestWriteToStringLiteralPrefixIsUB(t *testing.T) {
	m := newTestMemory(t)
	err := m.Write32(vmem.DataBase+4, 1)
	if err == nil {
		t.Fatal("expected UB error writing to string-literal prefix")
	}
}

func TestWriteToCodeSegmentFails(t *testing.T) {
	m := newTestMemory(t)
	if err := m.Write32(vmem.CodeBase, 1); err == nil {
		t.Fatal("expected error writing to code segment")
	}
}

func TestMisalignedAccessIsUB(t *testing.T) {
	m := newTestMemory(t)
	if _, err := m.Read32(vmem.DataBase + 17); err == nil {
		t.Fatal("expected UB error for misaligned access")
	}
}

func TestHeapReadBeforeWriteIsZero(t *testing.T) {
	m := newTestMemory(t)
	v, err := m.Read64(vmem.HeapBase + 1024)
	if err != nil {
		t.Fatalf("Read64: %v", err)
	}
	if v != 0 {
		t.Errorf("unwritten heap word = %#x, want 0", v)
	}
}

func TestHeapWriteSpansPages(t *testing.T) {
	m := newTestMemory(t)
	addr := vmem.HeapBase + 60 // page size 64, so this write crosses into the next page
	src := make([]byte, 16)
	for i := range src {
		src[i] = byte(i + 1)
	}
	if err := m.Write(addr, src); err != nil {
		t.Fatalf("Write: %v", err)
	}
	dest := make([]byte, 16)
	if err := m.Read(dest, addr, 16); err != nil {
		t.Fatalf("Read: %v", err)
	}
	for i := range src {
		if dest[i] != src[i] {
			t.Fatalf("byte %d = %d, want %d", i, dest[i], src[i])
		}
	}
}

func TestStackGrowsAndShrinks(t *testing.T) {
	m := newTestMemory(t)
	m.NotifyStackPointer(vmem.StackBoundary - 32)
	if err := m.Write64(vmem.StackBoundary-32, 42); err != nil {
		t.Fatalf("Write64: %v", err)
	}
	m.NotifyStackPointer(vmem.StackBoundary - 64)
	v, err := m.Read64(vmem.StackBoundary - 32)
	if err != nil {
		t.Fatalf("Read64 after growth: %v", err)
	}
	if v != 42 {
		t.Errorf("stack value after growth = %d, want 42", v)
	}
	m.NotifyStackPointer(vmem.StackBoundary)
	if _, err := m.Read64(vmem.StackBoundary - 32); err == nil {
		t.Fatal("expected error reading address below the live stack after shrink")
	}
}

func TestMMIOOpenWriteReadCloseRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m, err := vmem.NewMemory(make([]byte, 16), make([]byte, 256), 0, vmem.Config{
		HeapPageSize: 64,
		HostFS:       vmem.NewOSHostFS(dir),
	})
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}

	name := "greeting.txt"
	nameAddr := vmem.DataBase + 0
	if err := m.Write(nameAddr, []byte(name)); err != nil {
		t.Fatalf("write name: %v", err)
	}

	mustWriteWord := func(idx int, v uint64) {
		t.Helper()
		addr := vmem.MMIOBase + uint64(idx)*8
		if err := m.Write64(addr, v); err != nil {
			t.Fatalf("write mmio word %d: %v", idx, err)
		}
	}

	mustWriteWord(1, nameAddr)
	mustWriteWord(2, uint64(len(name)))
	mustWriteWord(3, vmem.ModeRead|vmem.ModeWrite|vmem.ModeCreate|vmem.ModeTrunc)
	mustWriteWord(0, 0) // opOpen

	status, err := m.Read64(vmem.MMIOBase)
	if err != nil {
		t.Fatalf("read control: %v", err)
	}
	if int64(status) != vmem.StatusSuccess {
		t.Fatalf("open status = %d, want success", int64(status))
	}
	fd, err := m.Read64(vmem.MMIOBase + 8)
	if err != nil {
		t.Fatalf("read fd: %v", err)
	}

	payload := "hello"
	payloadAddr := vmem.DataBase + 64
	if err := m.Write(payloadAddr, []byte(payload)); err != nil {
		t.Fatalf("write payload: %v", err)
	}
	mustWriteWord(1, fd)
	mustWriteWord(2, payloadAddr)
	mustWriteWord(3, uint64(len(payload)))
	mustWriteWord(0, 3) // opWrite

	status, _ = m.Read64(vmem.MMIOBase)
	if int64(status) != vmem.StatusSuccess {
		t.Fatalf("write status = %d, want success", int64(status))
	}

	data, err := os.ReadFile(dir + "/" + name)
	if err != nil {
		t.Fatalf("reading file written via MMIO: %v", err)
	}
	if string(data) != payload {
		t.Errorf("file contents = %q, want %q", data, payload)
	}
}
