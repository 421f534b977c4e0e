package layout

import (
	"encoding/binary"
	"testing"

	"keychainkit/keychain/bytesreader"
)

func putU32(buf []byte, off uint32, v uint32) {
	binary.BigEndian.PutUint32(buf[off:off+4], v)
}

func TestDecodeDatabaseHeaderSignature(t *testing.T) {
	buf := make([]byte, DatabaseHeaderSize)
	copy(buf[0:4], "kych")
	putU32(buf, 8, DatabaseHeaderSize)
	putU32(buf, 12, 64)
	r := bytesreader.New(buf)
	h, err := DecodeDatabaseHeader(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !h.SignatureValid() {
		t.Fatal("expected valid signature")
	}
	if h.SchemaOffset != 64 {
		t.Fatalf("SchemaOffset = %d, want 64", h.SchemaOffset)
	}
}

func TestDecodeDatabaseHeaderBadSignature(t *testing.T) {
	buf := make([]byte, DatabaseHeaderSize)
	copy(buf[0:4], "XXXX")
	r := bytesreader.New(buf)
	h, err := DecodeDatabaseHeader(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.SignatureValid() {
		t.Fatal("expected invalid signature")
	}
}

func TestDecodeTableHeader(t *testing.T) {
	buf := make([]byte, TableHeaderSize)
	putU32(buf, 0, 100)
	putU32(buf, 4, 0x40000000)
	putU32(buf, 8, 3)
	r := bytesreader.New(buf)
	h, err := DecodeTableHeader(r, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.TableSize != 100 || h.TableID != 0x40000000 || h.RecordCount != 3 {
		t.Fatalf("decoded wrong: %+v", h)
	}
}

func TestDecodeSSGPMapKey(t *testing.T) {
	region := make([]byte, 40)
	copy(region[0:4], SSGPMagic[:])
	copy(region[4:24], []byte("01234567890123456789"))
	ssgp, err := DecodeSSGP(region)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	key := ssgp.MapKey()
	if string(key[0:4]) != "ssgp" {
		t.Fatalf("map key prefix = %q, want ssgp", key[0:4])
	}
}

func TestFourCharCodeString(t *testing.T) {
	f := FourCharCode{'n', 'o', 't', 'e'}
	if f.String() != "note" {
		t.Fatalf("got %q", f.String())
	}
}

func TestDecodeGenericPasswordHeaderFieldOrder(t *testing.T) {
	buf := make([]byte, GenericPasswordHeaderSize)
	putU32(buf, 0, 200)  // RecordSize
	putU32(buf, 4, 40)   // SSGPArea
	putU32(buf, 8, 0)    // CreationDate absent
	putU32(buf, 40, 123) // Service pointer (index 10 -> offset 40)
	r := bytesreader.New(buf)
	h, err := DecodeGenericPasswordHeader(r, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.RecordSize != 200 || h.SSGPArea != 40 {
		t.Fatalf("got %+v", h)
	}
	if h.Service != 123 {
		t.Fatalf("Service = %d, want 123", h.Service)
	}
}
