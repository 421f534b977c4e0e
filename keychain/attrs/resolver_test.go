package attrs

import (
	"encoding/binary"
	"testing"

	"keychainkit/keychain/bytesreader"
)

func TestAbsentPointerReturnsZeroValues(t *testing.T) {
	r := bytesreader.New(make([]byte, 32))
	a := New(r, 0, nil)
	if got := a.Int(0); got != 0 {
		t.Fatalf("Int(0) = %d, want 0", got)
	}
	if got := a.LV(0); len(got) != 0 {
		t.Fatalf("LV(0) = %v, want empty", got)
	}
	if got := a.FourCC(0); got.String() != "" {
		t.Fatalf("FourCC(0) = %q, want empty", got.String())
	}
}

func TestLowBitMaskedUniformly(t *testing.T) {
	buf := make([]byte, 32)
	binary.BigEndian.PutUint32(buf[8:12], 0xDEADBEEF)
	r := bytesreader.New(buf)
	a := New(r, 0, nil)
	gotEven := a.Int(8)
	gotOdd := a.Int(9) // low bit set, must resolve identically to 8
	if gotEven != 0xDEADBEEF || gotOdd != 0xDEADBEEF {
		t.Fatalf("Int(8)=%#x Int(9)=%#x, want both %#x", gotEven, gotOdd, 0xDEADBEEF)
	}
}

func TestLVAttributeOutOfBoundsReturnsEmpty(t *testing.T) {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint32(buf[4:8], 0xFFFFFF) // absurd length
	r := bytesreader.New(buf)
	a := New(r, 0, nil)
	got := a.LV(4)
	if len(got) != 0 {
		t.Fatalf("LV with bad length = %v, want empty", got)
	}
}

func TestIntAttributeRoundTrip(t *testing.T) {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint32(buf[4:8], 7)
	r := bytesreader.New(buf)
	a := New(r, 0, nil)
	if got := a.Int(4); got != 7 {
		t.Fatalf("Int(4) = %d, want 7", got)
	}
}
