package memory

import "encoding/binary"

// Bus performs reads and writes against a Map, splitting any transfer
// that spans a region boundary into per-region pieces.
type Bus struct {
	Map *Map

	// IP is read only to annotate OutOfBoundsError diagnostics with the
	// instruction pointer at fault time; the CPU keeps it updated.
	IP int32
}

// NewBus constructs a bus over the given region map.
func NewBus(m *Map) *Bus {
	return &Bus{Map: m}
}

// Write writes bytes starting at addr, splitting at region boundaries.
// Returns an *OutOfBoundsError if any byte of the range is not covered
// by a region.
func (b *Bus) Write(addr uint32, bytes []byte) error {
	for len(bytes) > 0 {
		region := b.Map.Find(addr)
		if region == nil {
			return &OutOfBoundsError{Addr: addr, IP: b.IP}
		}
		off := addr - region.Base
		toTransfer := min(uint32(len(bytes)), region.Size-off)
		if err := region.write(off, bytes[:toTransfer]); err != nil {
			return err
		}
		bytes = bytes[toTransfer:]
		addr += toTransfer
	}
	return nil
}

// Read reads len(buf) bytes starting at addr into buf, splitting at
// region boundaries. Returns an *OutOfBoundsError if any byte of the
// range is not covered by a region.
func (b *Bus) Read(addr uint32, buf []byte) error {
	for len(buf) > 0 {
		region := b.Map.Find(addr)
		if region == nil {
			return &OutOfBoundsError{Addr: addr, IP: b.IP}
		}
		off := addr - region.Base
		toTransfer := min(uint32(len(buf)), region.Size-off)
		if err := region.read(off, buf[:toTransfer]); err != nil {
			return err
		}
		buf = buf[toTransfer:]
		addr += toTransfer
	}
	return nil
}

// ReadU16 is a little-endian convenience reader built on Read.
func (b *Bus) ReadU16(addr uint32) (uint16, error) {
	var buf [2]byte
	if err := b.Read(addr, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(buf[:]), nil
}

// ReadU32 is a little-endian convenience reader built on Read.
func (b *Bus) ReadU32(addr uint32) (uint32, error) {
	var buf [4]byte
	if err := b.Read(addr, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func min(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

// write dispatches to the region's kind-specific write behavior. off is
// relative to the region's Base.
func (r *Region) write(off uint32, bytes []byte) error {
	switch r.Kind {
	case KindRAM:
		copy(r.ram[off:], bytes)
	case KindSerialOut:
		// A one-byte region: off is always 0, len(bytes) always 1.
		_, err := r.serial.Write(bytes)
		return err
	case KindExitPort:
		return &ExitError{Code: bytes[0]}
	}
	return nil
}

// read dispatches to the region's kind-specific read behavior. All
// three kinds read as RAM.
func (r *Region) read(off uint32, buf []byte) error {
	copy(buf, r.ram[off:])
	return nil
}
