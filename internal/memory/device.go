package memory

import (
	"bufio"
	"io"
)

// SerialDevice is the host stream a SerialOut region emits bytes to: a
// small device owned by the region rather than a reference back into
// the CPU, so the region never re-enters the bus while servicing a
// write. It has no remote-console concept — just a buffered io.Writer
// that callers (tests, in particular) can swap out freely.
type SerialDevice struct {
	w *bufio.Writer
}

// NewSerialDevice wraps w for use as a SerialOut region's backing
// stream. Bytes are flushed immediately, since the guest expects its
// serial output to be visible without an explicit flush instruction.
func NewSerialDevice(w io.Writer) *SerialDevice {
	return &SerialDevice{w: bufio.NewWriter(w)}
}

// Write implements io.Writer, flushing after every call.
func (d *SerialDevice) Write(p []byte) (int, error) {
	n, err := d.w.Write(p)
	if err != nil {
		return n, err
	}
	return n, d.w.Flush()
}
