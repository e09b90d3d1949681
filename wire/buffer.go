// Package wire implements the chatroom binary protocol: a growable
// cursor-based byte buffer, the fixed packet header, the message kinds of
// both protocol dialects and a stream framer that assembles complete
// packets from partial socket reads.
package wire

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// growSize is the increment, in bytes, by which a Buffer grows when a write
// runs past its current capacity.
const growSize = 256

// ErrShortBuffer is returned when a read would run past the bytes written
// into the buffer.
var ErrShortBuffer = errors.New("read past end of buffer")

// Buffer is a byte sequence with independent read and write cursors.
// Integers are fixed-width little-endian. Strings are a u32 byte length
// followed by the raw bytes.
//
// Reads are bounded by the number of bytes written, never by the allocated
// capacity, so a partially received packet can never be decoded as if it
// were complete.
//
// A Buffer is not safe for concurrent use.
type Buffer struct {
	data       []byte
	writeIndex int
	readIndex  int
}

// NewBuffer returns an empty buffer with size bytes preallocated.
func NewBuffer(size int) *Buffer {
	if size < 0 {
		size = 0
	}
	return &Buffer{data: make([]byte, size)}
}

// newReader wraps p for decoding without copying it.
func newReader(p []byte) *Buffer {
	return &Buffer{data: p, writeIndex: len(p)}
}

// grow makes room for n more bytes at the write cursor. The buffer grows in
// whole increments of growSize and never shrinks.
func (b *Buffer) grow(n int) {
	need := b.writeIndex + n
	if need <= len(b.data) {
		return
	}
	size := len(b.data) + growSize
	for size < need {
		size += growSize
	}
	data := make([]byte, size)
	copy(data, b.data)
	b.data = data
}

// WriteUint16 appends v at the write cursor.
func (b *Buffer) WriteUint16(v uint16) {
	b.grow(2)
	binary.LittleEndian.PutUint16(b.data[b.writeIndex:], v)
	b.writeIndex += 2
}

// WriteUint32 appends v at the write cursor.
func (b *Buffer) WriteUint32(v uint32) {
	b.grow(4)
	binary.LittleEndian.PutUint32(b.data[b.writeIndex:], v)
	b.writeIndex += 4
}

// WriteUint64 appends v at the write cursor.
func (b *Buffer) WriteUint64(v uint64) {
	b.grow(8)
	binary.LittleEndian.PutUint64(b.data[b.writeIndex:], v)
	b.writeIndex += 8
}

// WriteRaw appends p without a length prefix.
func (b *Buffer) WriteRaw(p []byte) {
	b.grow(len(p))
	b.writeIndex += copy(b.data[b.writeIndex:], p)
}

// WriteString appends s as [u32 length][bytes].
func (b *Buffer) WriteString(s string) {
	b.WriteUint32(uint32(len(s)))
	b.grow(len(s))
	b.writeIndex += copy(b.data[b.writeIndex:], s)
}

// WriteStrings appends list as [u32 count][count x u32 length][bytes...].
// All lengths come before the string bytes they describe.
func (b *Buffer) WriteStrings(list []string) {
	b.WriteUint32(uint32(len(list)))
	for _, s := range list {
		b.WriteUint32(uint32(len(s)))
	}
	for _, s := range list {
		b.grow(len(s))
		b.writeIndex += copy(b.data[b.writeIndex:], s)
	}
}

// PutUint32At overwrites four already written bytes at index. It is used to
// patch the packet size into the header once the payload is encoded.
func (b *Buffer) PutUint32At(index int, v uint32) error {
	if index < 0 || index+4 > b.writeIndex {
		return errors.Wrapf(ErrShortBuffer, "put uint32 at %d of %d", index, b.writeIndex)
	}
	binary.LittleEndian.PutUint32(b.data[index:], v)
	return nil
}

func (b *Buffer) take(n int, what string) ([]byte, error) {
	if n < 0 || b.readIndex+n > b.writeIndex {
		return nil, errors.Wrapf(ErrShortBuffer, "read %s (%d bytes) at %d of %d", what, n, b.readIndex, b.writeIndex)
	}
	p := b.data[b.readIndex : b.readIndex+n]
	b.readIndex += n
	return p, nil
}

// ReadUint16 reads a u16 at the read cursor.
func (b *Buffer) ReadUint16() (uint16, error) {
	p, err := b.take(2, "uint16")
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(p), nil
}

// ReadUint32 reads a u32 at the read cursor.
func (b *Buffer) ReadUint32() (uint32, error) {
	p, err := b.take(4, "uint32")
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(p), nil
}

// ReadUint64 reads a u64 at the read cursor.
func (b *Buffer) ReadUint64() (uint64, error) {
	p, err := b.take(8, "uint64")
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(p), nil
}

// ReadString reads a length-prefixed string at the read cursor.
func (b *Buffer) ReadString() (string, error) {
	n, err := b.ReadUint32()
	if err != nil {
		return "", err
	}
	p, err := b.take(int(n), "string")
	if err != nil {
		return "", err
	}
	return string(p), nil
}

// ReadStrings reads a list written by WriteStrings. An empty list decodes
// to a non-nil empty slice.
func (b *Buffer) ReadStrings() ([]string, error) {
	count, err := b.ReadUint32()
	if err != nil {
		return nil, err
	}
	// Every entry needs at least its four length bytes.
	if int(count) > b.Remaining()/4 {
		return nil, errors.Wrapf(ErrShortBuffer, "list of %d entries with %d bytes left", count, b.Remaining())
	}
	lengths := make([]uint32, count)
	for i := range lengths {
		if lengths[i], err = b.ReadUint32(); err != nil {
			return nil, err
		}
	}
	list := make([]string, 0, count)
	for _, n := range lengths {
		p, err := b.take(int(n), "list entry")
		if err != nil {
			return nil, err
		}
		list = append(list, string(p))
	}
	return list, nil
}

// ReadRemaining returns every unread byte and moves the read cursor to the
// end. The returned slice aliases the buffer.
func (b *Buffer) ReadRemaining() []byte {
	p := b.data[b.readIndex:b.writeIndex]
	b.readIndex = b.writeIndex
	return p
}

// Bytes returns the written bytes. The slice aliases the buffer and is
// only valid until the next write or Reset.
func (b *Buffer) Bytes() []byte {
	return b.data[:b.writeIndex]
}

// Len returns the number of bytes written.
func (b *Buffer) Len() int {
	return b.writeIndex
}

// Cap returns the allocated size of the buffer.
func (b *Buffer) Cap() int {
	return len(b.data)
}

// Remaining returns the number of written bytes not yet read.
func (b *Buffer) Remaining() int {
	return b.writeIndex - b.readIndex
}

// Set replaces the contents with a copy of raw and positions the read
// cursor at the start.
func (b *Buffer) Set(raw []byte) {
	if len(raw) > len(b.data) {
		b.data = make([]byte, len(raw))
	} else {
		clear(b.data)
	}
	copy(b.data, raw)
	b.readIndex = 0
	b.writeIndex = len(raw)
}

// Reset zeroes the contents and both cursors so the buffer can be reused
// for the next packet without reallocating.
func (b *Buffer) Reset() {
	clear(b.data)
	b.readIndex = 0
	b.writeIndex = 0
}
