// Package bytesreader is a thin, bounds-checked view over an immutable byte
// buffer. It is the lowest layer of the keychain parser: every struct
// decoder and every attribute lookup ultimately goes through a Reader.
package bytesreader

import (
	"encoding/binary"
	"fmt"
)

// ErrOutOfBounds is returned whenever a read would exceed the buffer.
// Callers decide what that means: a structural parse error during container
// navigation, or "treat as absent" during attribute resolution.
var ErrOutOfBounds = fmt.Errorf("bytesreader: out of bounds")

// Reader wraps a read-only byte buffer with big-endian accessors.
type Reader struct {
	buf []byte
}

// New wraps buf without copying it. The caller must not mutate buf afterward.
func New(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Len returns the total buffer length.
func (r *Reader) Len() int { return len(r.buf) }

func (r *Reader) checkRange(offset, length uint32) error {
	if length == 0 {
		if uint64(offset) > uint64(len(r.buf)) {
			return fmt.Errorf("%w: offset %d exceeds length %d", ErrOutOfBounds, offset, len(r.buf))
		}
		return nil
	}
	end := uint64(offset) + uint64(length)
	if end > uint64(len(r.buf)) {
		return fmt.Errorf("%w: range [%d,%d) exceeds length %d", ErrOutOfBounds, offset, end, len(r.buf))
	}
	return nil
}

// Slice returns buf[offset:offset+length], bounds-checked.
func (r *Reader) Slice(offset, length uint32) ([]byte, error) {
	if err := r.checkRange(offset, length); err != nil {
		return nil, err
	}
	return r.buf[offset : offset+length], nil
}

// U32BE reads a 4-byte big-endian unsigned integer at offset.
func (r *Reader) U32BE(offset uint32) (uint32, error) {
	b, err := r.Slice(offset, 4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// LV decodes a length-prefixed value at offset: a 4-byte big-endian length L
// followed by L bytes of data, the whole field padded to a 4-byte boundary.
// It returns the L raw data bytes (padding is never included).
func (r *Reader) LV(offset uint32) ([]byte, error) {
	length, err := r.U32BE(offset)
	if err != nil {
		return nil, err
	}
	padded := PadToWord(length)
	data, err := r.Slice(offset+4, padded)
	if err != nil {
		return nil, err
	}
	return data[:length], nil
}

// PadToWord rounds n up to the next multiple of 4.
func PadToWord(n uint32) uint32 {
	return (n + 3) &^ 3
}

// Cursor walks fixed-size slots over the buffer starting at a base offset,
// used by the table record-offset scanner where the number of live slots
// isn't known up front.
type Cursor struct {
	r    *Reader
	pos  uint32
}

// NewCursor creates a cursor positioned at offset.
func (r *Reader) NewCursor(offset uint32) *Cursor {
	return &Cursor{r: r, pos: offset}
}

// Pos returns the cursor's current offset.
func (c *Cursor) Pos() uint32 { return c.pos }

// NextU32 reads the 4-byte value at the cursor and advances by 4.
func (c *Cursor) NextU32() (uint32, error) {
	v, err := c.r.U32BE(c.pos)
	if err != nil {
		return 0, err
	}
	c.pos += 4
	return v, nil
}
