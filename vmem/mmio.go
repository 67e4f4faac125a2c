package vmem

// MMIO operation selectors, written to the control register to trigger a
// host syscall (spec §4.2, §6.3).
const (
	opOpen = iota
	opClose
	opRead
	opWrite
	opSeek
	opTruncate
	opRename
	opRemove
	opDup
)

type mmio struct {
	regs  [NumMMIORegisters]uint64
	fs    HostFS
	read  func(addr uint64, n int) ([]byte, bool)
	write func(addr uint64, p []byte) bool
}

// register indices.
const (
	regControl = iota
	regWord0
	regWord1
	regWord2
	regWord3
	regWord4
	regWord5
	regWord6
)

func newMMIO(fs HostFS, read func(uint64, int) ([]byte, bool), write func(uint64, []byte) bool) *mmio {
	return &mmio{fs: fs, read: read, write: write}
}

func (m *mmio) readRegister(addr uint64) uint64 {
	idx := (addr - MMIOBase) / 8
	if idx >= NumMMIORegisters {
		return 0
	}
	return m.regs[idx]
}

func (m *mmio) writeRegister(addr uint64, value uint64) {
	idx := (addr - MMIOBase) / 8
	if idx >= NumMMIORegisters {
		return
	}
	m.regs[idx] = value
	if idx == regControl {
		m.dispatch(value)
	}
}

func (m *mmio) status(code int64) {
	m.regs[regControl] = uint64(code)
}

func (m *mmio) detail(word int, v uint64) {
	m.regs[1+word] = v
}

func (m *mmio) dispatch(op uint64) {
	switch op {
	case opOpen:
		m.doOpen()
	case opClose:
		m.doClose()
	case opRead:
		m.doRead()
	case opWrite:
		m.doWrite()
	case opSeek:
		m.doSeek()
	case opTruncate:
		m.doTruncate()
	case opRename:
		m.doRename()
	case opRemove:
		m.doRemove()
	case opDup:
		m.doDup()
	default:
		m.status(StatusInvalidAddress)
	}
}

func (m *mmio) readString(addr uint64, length uint64) (string, bool) {
	b, ok := m.read(addr, int(length))
	if !ok {
		return "", false
	}
	return string(b), true
}

// word layout: open(word0=name addr, word1=name len, word2=mode) -> control=status, word0=fd or detail
func (m *mmio) doOpen() {
	name, ok := m.readString(m.regs[regWord0], m.regs[regWord1])
	if !ok {
		m.status(StatusBadInBuf)
		return
	}
	fd, status := m.fs.Open(name, m.regs[regWord2])
	m.status(status)
	m.detail(0, uint64(fd))
}

// close(word0=fd) -> control=status
func (m *mmio) doClose() {
	status := m.fs.Close(int(m.regs[regWord0]))
	m.status(status)
}

// read(word0=fd, word1=buf addr, word2=len) -> control=status, word0=n read
func (m *mmio) doRead() {
	length := m.regs[regWord2]
	buf := make([]byte, length)
	n, status := m.fs.Read(int(m.regs[regWord0]), buf)
	if status == StatusSuccess && n > 0 {
		if !m.write(m.regs[regWord1], buf[:n]) {
			m.status(StatusBadOutBuf)
			return
		}
	}
	m.status(status)
	m.detail(0, uint64(n))
}

// write(word0=fd, word1=buf addr, word2=len) -> control=status, word0=n written
func (m *mmio) doWrite() {
	length := m.regs[regWord2]
	buf, ok := m.read(m.regs[regWord1], int(length))
	if !ok {
		m.status(StatusBadInBuf)
		return
	}
	n, status := m.fs.Write(int(m.regs[regWord0]), buf)
	m.status(status)
	m.detail(0, uint64(n))
}

// seek(word0=fd, word1=anchor, word2=offset) -> control=status, word0=new pos
func (m *mmio) doSeek() {
	pos, status := m.fs.Seek(int(m.regs[regWord0]), m.regs[regWord1], int64(m.regs[regWord2]))
	m.status(status)
	m.detail(0, uint64(pos))
}

// truncate(word0=fd, word1=length) -> control=status
func (m *mmio) doTruncate() {
	status := m.fs.Truncate(int(m.regs[regWord0]), int64(m.regs[regWord1]))
	m.status(status)
}

// rename(word0=from addr, word1=from len, word2=to addr, word3=to len) -> control=status
func (m *mmio) doRename() {
	from, ok := m.readString(m.regs[regWord0], m.regs[regWord1])
	if !ok {
		m.status(StatusBadInBuf)
		return
	}
	to, ok := m.readString(m.regs[regWord2], m.regs[regWord3])
	if !ok {
		m.status(StatusBadInBuf)
		return
	}
	m.status(m.fs.Rename(from, to))
}

// remove(word0=name addr, word1=name len) -> control=status
func (m *mmio) doRemove() {
	name, ok := m.readString(m.regs[regWord0], m.regs[regWord1])
	if !ok {
		m.status(StatusBadInBuf)
		return
	}
	m.status(m.fs.Remove(name))
}

// dup(word0=fd) -> control=status, word0=new fd
func (m *mmio) doDup() {
	newFd, status := m.fs.Dup(int(m.regs[regWord0]))
	m.status(status)
	m.detail(0, uint64(newFd))
}
