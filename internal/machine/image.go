package machine

import (
	"fmt"
	"io"
)

// LoadImage reads a raw little-endian program image from r into a
// freshly allocated, zero-padded RAM buffer of ramSize bytes: the guest
// image is loaded verbatim at address 0, and anything beyond it starts
// zeroed. An image larger than ramSize is a host error.
func LoadImage(r io.Reader, ramSize uint32) ([]byte, error) {
	ram := make([]byte, ramSize)
	_, err := io.ReadFull(r, ram)
	switch err {
	case nil:
		// Image filled every byte of RAM; confirm there isn't more.
		var extra [1]byte
		if m, _ := r.Read(extra[:]); m > 0 {
			return nil, fmt.Errorf("machine: image exceeds RAM size %d bytes", ramSize)
		}
		return ram, nil
	case io.ErrUnexpectedEOF, io.EOF:
		return ram, nil
	default:
		return nil, fmt.Errorf("machine: reading image: %w", err)
	}
}
