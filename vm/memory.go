// Package vm implements the CRISP-32 virtual machine core.
package vm

import "encoding/binary"

// AccessKind distinguishes the kinds of guest memory traffic reported to an
// AccessListener.
type AccessKind uint8

// Access kinds.
const (
	AccessRead AccessKind = iota
	AccessWrite
	AccessFetch
)

// AccessListener observes successful guest memory accesses. addr is the
// physical address, width the access size in bytes. Listeners must not
// mutate machine state.
type AccessListener func(addr uint32, width int, kind AccessKind)

// Memory is the byte-addressable guest physical memory window. All
// multi-byte access is little-endian at the guest level regardless of host
// byte order. No other component touches raw bytes for multi-byte values.
type Memory struct {
	data     []byte
	listener AccessListener
}

// NewMemory creates a memory window over the given buffer. The buffer is
// exclusively owned by the machine while it runs; it must outlive the
// machine.
func NewMemory(data []byte) *Memory {
	return &Memory{data: data}
}

// Size returns the size of the memory window in bytes.
func (m *Memory) Size() uint32 {
	return uint32(len(m.data))
}

// Bytes exposes the underlying buffer for host-side inspection. The caller
// must not access it concurrently with Run.
func (m *Memory) Bytes() []byte {
	return m.data
}

// SetListener installs an access listener. A nil listener disables
// reporting.
func (m *Memory) SetListener(l AccessListener) {
	m.listener = l
}

// check verifies addr+width stays inside the window.
func (m *Memory) check(addr uint32, width int, write bool) error {
	if uint64(addr)+uint64(width) > uint64(len(m.data)) {
		return &Fault{Interrupt: IntMemFault, Addr: addr, Write: write}
	}
	return nil
}

func (m *Memory) notify(addr uint32, width int, kind AccessKind) {
	if m.listener != nil {
		m.listener(addr, width, kind)
	}
}

// Read8 reads one byte.
func (m *Memory) Read8(addr uint32) (uint8, error) {
	if err := m.check(addr, 1, false); err != nil {
		return 0, err
	}
	m.notify(addr, 1, AccessRead)
	return m.data[addr], nil
}

// Read16 reads a little-endian 16-bit value. Alignment is not enforced.
func (m *Memory) Read16(addr uint32) (uint16, error) {
	if err := m.check(addr, 2, false); err != nil {
		return 0, err
	}
	m.notify(addr, 2, AccessRead)
	return binary.LittleEndian.Uint16(m.data[addr : addr+2]), nil
}

// Read32 reads a little-endian 32-bit value. Alignment is not enforced.
func (m *Memory) Read32(addr uint32) (uint32, error) {
	if err := m.check(addr, 4, false); err != nil {
		return 0, err
	}
	m.notify(addr, 4, AccessRead)
	return binary.LittleEndian.Uint32(m.data[addr : addr+4]), nil
}

// Write8 writes one byte.
func (m *Memory) Write8(addr uint32, value uint8) error {
	if err := m.check(addr, 1, true); err != nil {
		return err
	}
	m.data[addr] = value
	m.notify(addr, 1, AccessWrite)
	return nil
}

// Write16 writes a little-endian 16-bit value.
func (m *Memory) Write16(addr uint32, value uint16) error {
	if err := m.check(addr, 2, true); err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(m.data[addr:addr+2], value)
	m.notify(addr, 2, AccessWrite)
	return nil
}

// Write32 writes a little-endian 32-bit value.
func (m *Memory) Write32(addr uint32, value uint32) error {
	if err := m.check(addr, 4, true); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(m.data[addr:addr+4], value)
	m.notify(addr, 4, AccessWrite)
	return nil
}

// Fetch returns the 8-byte instruction word at addr. The returned slice
// aliases the memory buffer and is only valid until the next write.
func (m *Memory) Fetch(addr uint32) ([]byte, error) {
	if err := m.check(addr, 8, false); err != nil {
		f := err.(*Fault)
		f.Exec = true
		return nil, f
	}
	m.notify(addr, 8, AccessFetch)
	return m.data[addr : addr+8], nil
}
