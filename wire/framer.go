package wire

import (
	"io"

	"github.com/pkg/errors"
)

// DefaultMaxPacketSize bounds the declared size of a single packet (64KB).
const DefaultMaxPacketSize = 64 * 1024

// Framer accumulates bytes received from a stream and splits them into
// complete packets. A single read may carry part of a packet, exactly one
// packet, or several; the framer keeps whatever is incomplete until later
// reads supply the rest.
//
// A Framer belongs to one connection and is not safe for concurrent use.
type Framer struct {
	buf []byte
	max int
}

// NewFramer returns a framer rejecting packets declared larger than
// maxPacketSize. A non-positive value selects DefaultMaxPacketSize.
func NewFramer(maxPacketSize int) *Framer {
	if maxPacketSize <= 0 {
		maxPacketSize = DefaultMaxPacketSize
	}
	return &Framer{max: maxPacketSize}
}

// Feed appends received bytes. p is copied.
func (f *Framer) Feed(p []byte) {
	f.buf = append(f.buf, p...)
}

// Next returns the next complete packet. It returns a nil packet and a nil
// error when more bytes are needed. A packet is complete only when the
// number of bytes actually received reaches its declared size.
//
// An error means the stream cannot be resynchronized and the connection
// should be dropped.
func (f *Framer) Next() ([]byte, error) {
	if len(f.buf) < HeaderSize {
		return nil, nil
	}
	h, err := DecodeHeader(f.buf)
	if err != nil {
		return nil, err
	}
	if h.Size < HeaderSize || int(h.Size) > f.max {
		return nil, errors.Wrapf(ErrBadSize, "declared size %d, limit %d", h.Size, f.max)
	}
	size := int(h.Size)
	if len(f.buf) < size {
		return nil, nil
	}
	packet := make([]byte, size)
	copy(packet, f.buf)
	f.buf = f.buf[:copy(f.buf, f.buf[size:])]
	return packet, nil
}

// Buffered returns the number of received bytes not yet returned as part
// of a packet.
func (f *Framer) Buffered() int {
	return len(f.buf)
}

// Reset discards buffered bytes.
func (f *Framer) Reset() {
	f.buf = f.buf[:0]
}

// ReadPacket reads exactly one packet from r, blocking until it has
// arrived in full. It is the framing rule for readers that own a
// goroutine, where the framer's incremental feeding is unnecessary.
func ReadPacket(r io.Reader, maxPacketSize int) ([]byte, error) {
	if maxPacketSize <= 0 {
		maxPacketSize = DefaultMaxPacketSize
	}
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	h, err := DecodeHeader(header[:])
	if err != nil {
		return nil, err
	}
	if h.Size < HeaderSize || int(h.Size) > maxPacketSize {
		return nil, errors.Wrapf(ErrBadSize, "declared size %d, limit %d", h.Size, maxPacketSize)
	}
	packet := make([]byte, h.Size)
	copy(packet, header[:])
	if _, err := io.ReadFull(r, packet[HeaderSize:]); err != nil {
		return nil, err
	}
	return packet, nil
}
