// Package attrs implements the attribute resolver: given a record's base
// address and a column pointer taken from the record's fixed header, it
// returns the typed value stored elsewhere in the record. It never raises
// on malformed data; every failure degrades to the type's zero value,
// optionally logged at debug level.
package attrs

import (
	"keychainkit/keychain/bytesreader"
	"keychainkit/keychain/layout"
)

// Logger receives debug traces for swallowed struct-decode failures.
type Logger interface {
	Debugf(format string, args ...any)
}

// columnPointerMask clears the low bit, which the format reserves as an
// unspecified flag whose meaning is never assumed. The mask is applied
// uniformly and only here, so every new record kind automatically gets
// correct behavior.
const columnPointerMask = 0xFFFFFFFE

// Resolver resolves column pointers against one record's base address.
type Resolver struct {
	r      *bytesreader.Reader
	base   uint32
	logger Logger
}

// New creates a Resolver bound to the record at base within r.
func New(r *bytesreader.Reader, base uint32, logger Logger) Resolver {
	return Resolver{r: r, base: base, logger: logger}
}

func mask(ptr uint32) uint32 { return ptr & columnPointerMask }

// Int resolves a 4-byte big-endian integer attribute. Absent (pointer 0)
// yields 0.
func (a Resolver) Int(ptr uint32) uint32 {
	p := mask(ptr)
	if p == 0 {
		return 0
	}
	v, err := a.r.U32BE(a.base + p)
	if err != nil {
		a.debugf("int attribute at pointer %#x: %v", ptr, err)
		return 0
	}
	return v
}

// FourCC resolves a four-char-code attribute. Absent yields the zero code.
func (a Resolver) FourCC(ptr uint32) layout.FourCharCode {
	p := mask(ptr)
	if p == 0 {
		return layout.FourCharCode{}
	}
	b, err := a.r.Slice(a.base+p, 4)
	if err != nil {
		a.debugf("four-char-code attribute at pointer %#x: %v", ptr, err)
		return layout.FourCharCode{}
	}
	var f layout.FourCharCode
	copy(f[:], b)
	return f
}

// Timestamp resolves the opaque 16-byte ASCII timestamp token. Absent
// yields the zero value.
func (a Resolver) Timestamp(ptr uint32) layout.Timestamp {
	p := mask(ptr)
	if p == 0 {
		return layout.Timestamp{}
	}
	b, err := a.r.Slice(a.base+p, 16)
	if err != nil {
		a.debugf("timestamp attribute at pointer %#x: %v", ptr, err)
		return layout.Timestamp{}
	}
	var ts layout.Timestamp
	copy(ts[:], b)
	return ts
}

// LV resolves a length-prefixed byte string attribute. Absent, or any
// struct-decoding failure (declared length too long for the buffer), yields
// an empty (non-nil) slice rather than propagating an error: the resolver
// always degrades to empty and logs at debug level, never raises.
func (a Resolver) LV(ptr uint32) []byte {
	p := mask(ptr)
	if p == 0 {
		return []byte{}
	}
	v, err := a.r.LV(a.base + p)
	if err != nil {
		a.debugf("LV attribute at pointer %#x: %v", ptr, err)
		return []byte{}
	}
	return v
}

func (a Resolver) debugf(format string, args ...any) {
	if a.logger != nil {
		a.logger.Debugf(format, args...)
	}
}
