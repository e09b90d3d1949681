package wire

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestBuffer_Integers(t *testing.T) {
	b := NewBuffer(0)
	b.WriteUint16(0xBEEF)
	b.WriteUint32(0xDEADBEEF)
	b.WriteUint64(0x0102030405060708)

	want := []byte{
		0xEF, 0xBE,
		0xEF, 0xBE, 0xAD, 0xDE,
		0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01,
	}
	if !bytes.Equal(b.Bytes(), want) {
		t.Fatalf("Bytes() = %x, want %x", b.Bytes(), want)
	}

	v16, err := b.ReadUint16()
	if err != nil || v16 != 0xBEEF {
		t.Errorf("ReadUint16() = %x, %v", v16, err)
	}
	v32, err := b.ReadUint32()
	if err != nil || v32 != 0xDEADBEEF {
		t.Errorf("ReadUint32() = %x, %v", v32, err)
	}
	v64, err := b.ReadUint64()
	if err != nil || v64 != 0x0102030405060708 {
		t.Errorf("ReadUint64() = %x, %v", v64, err)
	}
	if b.Remaining() != 0 {
		t.Errorf("Remaining() = %d, want 0", b.Remaining())
	}
}

func TestBuffer_GrowPreservesWrittenBytes(t *testing.T) {
	b := NewBuffer(4)
	b.WriteUint32(7)
	if b.Cap() != 4 {
		t.Fatalf("Cap() = %d, want 4", b.Cap())
	}

	b.WriteString("hello")
	if b.Cap() != 4+growSize {
		t.Errorf("Cap() = %d, want %d", b.Cap(), 4+growSize)
	}

	v, err := b.ReadUint32()
	if err != nil || v != 7 {
		t.Fatalf("ReadUint32() = %d, %v, want 7", v, err)
	}
	s, err := b.ReadString()
	if err != nil || s != "hello" {
		t.Fatalf("ReadString() = %q, %v, want hello", s, err)
	}
}

func TestBuffer_GrowInWholeIncrements(t *testing.T) {
	b := NewBuffer(0)
	long := strings.Repeat("x", 600)
	b.WriteString(long)

	// 604 bytes needed: three increments.
	if b.Cap() != 3*growSize {
		t.Errorf("Cap() = %d, want %d", b.Cap(), 3*growSize)
	}
	got, err := b.ReadString()
	if err != nil {
		t.Fatalf("ReadString failed: %v", err)
	}
	if got != long {
		t.Error("long string corrupted after growth")
	}
}

func TestBuffer_Strings(t *testing.T) {
	b := NewBuffer(0)
	b.WriteStrings([]string{"a", "", "bcd"})

	want := []byte{
		3, 0, 0, 0,
		1, 0, 0, 0, 0, 0, 0, 0, 3, 0, 0, 0,
		'a', 'b', 'c', 'd',
	}
	if !bytes.Equal(b.Bytes(), want) {
		t.Fatalf("Bytes() = %v, want %v", b.Bytes(), want)
	}

	list, err := b.ReadStrings()
	if err != nil {
		t.Fatalf("ReadStrings failed: %v", err)
	}
	if len(list) != 3 || list[0] != "a" || list[1] != "" || list[2] != "bcd" {
		t.Errorf("ReadStrings() = %q", list)
	}
}

func TestBuffer_EmptyStrings(t *testing.T) {
	b := NewBuffer(0)
	b.WriteStrings(nil)
	b.WriteString("")

	list, err := b.ReadStrings()
	if err != nil {
		t.Fatalf("ReadStrings failed: %v", err)
	}
	if list == nil || len(list) != 0 {
		t.Errorf("ReadStrings() = %#v, want empty non-nil slice", list)
	}
	s, err := b.ReadString()
	if err != nil || s != "" {
		t.Errorf("ReadString() = %q, %v", s, err)
	}
}

func TestBuffer_ReadBoundedByWrittenLength(t *testing.T) {
	b := NewBuffer(512)
	b.WriteUint32(1)

	if _, err := b.ReadUint64(); !errors.Is(err, ErrShortBuffer) {
		t.Errorf("ReadUint64 past written bytes: got %v, want ErrShortBuffer", err)
	}
}

func TestBuffer_ReadStringLengthOverflow(t *testing.T) {
	b := NewBuffer(0)
	b.WriteUint32(100)
	b.WriteRaw([]byte("short"))

	if _, err := b.ReadString(); !errors.Is(err, ErrShortBuffer) {
		t.Errorf("got %v, want ErrShortBuffer", err)
	}
}

func TestBuffer_ReadStringsCountOverflow(t *testing.T) {
	b := NewBuffer(0)
	b.WriteUint32(1 << 30)

	if _, err := b.ReadStrings(); !errors.Is(err, ErrShortBuffer) {
		t.Errorf("got %v, want ErrShortBuffer", err)
	}
}

func TestBuffer_Reset(t *testing.T) {
	b := NewBuffer(8)
	b.WriteUint64(42)
	b.Reset()

	if b.Len() != 0 || b.Remaining() != 0 {
		t.Errorf("Len() = %d, Remaining() = %d after Reset", b.Len(), b.Remaining())
	}
	if b.Cap() != 8 {
		t.Errorf("Cap() = %d, want 8", b.Cap())
	}
	for i, c := range b.data {
		if c != 0 {
			t.Fatalf("byte %d = %d after Reset, want 0", i, c)
		}
	}
	if _, err := b.ReadUint32(); !errors.Is(err, ErrShortBuffer) {
		t.Errorf("read after Reset: got %v, want ErrShortBuffer", err)
	}
}

func TestBuffer_Set(t *testing.T) {
	b := NewBuffer(16)
	b.WriteUint64(0xFFFFFFFFFFFFFFFF)
	b.Set([]byte{5, 0, 0, 0})

	if b.Len() != 4 {
		t.Errorf("Len() = %d, want 4", b.Len())
	}
	v, err := b.ReadUint32()
	if err != nil || v != 5 {
		t.Errorf("ReadUint32() = %d, %v, want 5", v, err)
	}
	if _, err := b.ReadUint32(); !errors.Is(err, ErrShortBuffer) {
		t.Errorf("read past Set data: got %v, want ErrShortBuffer", err)
	}
}

func TestBuffer_PutUint32At(t *testing.T) {
	b := NewBuffer(0)
	b.WriteUint32(0)
	b.WriteUint32(9)

	if err := b.PutUint32At(0, 8); err != nil {
		t.Fatalf("PutUint32At failed: %v", err)
	}
	if err := b.PutUint32At(6, 1); !errors.Is(err, ErrShortBuffer) {
		t.Errorf("PutUint32At past end: got %v, want ErrShortBuffer", err)
	}
	if v, _ := b.ReadUint32(); v != 8 {
		t.Errorf("patched value = %d, want 8", v)
	}
}
