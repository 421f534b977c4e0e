package container

import (
	"encoding/binary"
	"testing"

	"keychainkit/keychain/layout"
)

// buildFixture assembles a minimal keychain file with one table containing
// record offsets at 4, 12 (a tombstone 0 and a misaligned 6 are interspersed
// and must be skipped).
func buildFixture(tableID uint32) []byte {
	const headerSize = layout.DatabaseHeaderSize
	const schemaSize = layout.SchemaHeaderSize
	tableOffsetsBase := headerSize + schemaSize
	tableCount := 1
	tableDirSize := tableCount * 4
	tableBase := tableOffsetsBase + tableDirSize // absolute offset of the table, right after the table directory

	tableRelOffset := uint32(schemaSize + tableDirSize) // table offsets are relative to header size
	// Table header (24 bytes) + record-offset slots.
	tableHeaderSize := layout.TableHeaderSize
	recordSlots := []uint32{0, 4, 6, 12} // 0=tombstone, 6=misaligned, 4 and 12 live
	recordCount := uint32(2)

	totalLen := headerSize + schemaSize + tableDirSize + tableHeaderSize + len(recordSlots)*4 + 64
	buf := make([]byte, totalLen)

	copy(buf[0:4], "kych")
	binary.BigEndian.PutUint32(buf[4:8], 1)
	binary.BigEndian.PutUint32(buf[8:12], uint32(headerSize))
	binary.BigEndian.PutUint32(buf[12:16], uint32(headerSize)) // schema offset == headerSize, i.e. right after header
	binary.BigEndian.PutUint32(buf[16:20], 0)

	schemaOff := headerSize
	binary.BigEndian.PutUint32(buf[schemaOff:schemaOff+4], uint32(schemaSize+tableDirSize+tableHeaderSize+len(recordSlots)*4))
	binary.BigEndian.PutUint32(buf[schemaOff+4:schemaOff+8], uint32(tableCount))

	tableDirOff := schemaOff + schemaSize
	binary.BigEndian.PutUint32(buf[tableDirOff:tableDirOff+4], tableRelOffset)

	_ = tableBase
	tableAbsOff := headerSize + int(tableRelOffset)
	binary.BigEndian.PutUint32(buf[tableAbsOff:tableAbsOff+4], uint32(tableHeaderSize+len(recordSlots)*4))
	binary.BigEndian.PutUint32(buf[tableAbsOff+4:tableAbsOff+8], tableID)
	binary.BigEndian.PutUint32(buf[tableAbsOff+8:tableAbsOff+12], recordCount)

	slotBase := tableAbsOff + tableHeaderSize
	for i, v := range recordSlots {
		binary.BigEndian.PutUint32(buf[slotBase+i*4:slotBase+i*4+4], v)
	}

	return buf
}

func TestLoadAndTableScan(t *testing.T) {
	buf := buildFixture(0x10)
	c, err := Load(buf, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !c.Header.SignatureValid() {
		t.Fatal("expected valid signature")
	}
	_, live, err := c.Table(0x10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(live) != 2 || live[0] != 4 || live[1] != 12 {
		t.Fatalf("live offsets = %v, want [4 12]", live)
	}
}

func TestTableNotFound(t *testing.T) {
	buf := buildFixture(0x10)
	c, err := Load(buf, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := c.Table(0x99); err != ErrTableNotFound {
		t.Fatalf("got %v, want ErrTableNotFound", err)
	}
}

func TestBadSignatureStillParses(t *testing.T) {
	buf := buildFixture(0x10)
	copy(buf[0:4], "XXXX")
	c, err := Load(buf, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Header.SignatureValid() {
		t.Fatal("expected invalid signature")
	}
	if _, _, err := c.Table(0x10); err != nil {
		t.Fatalf("expected table lookup to still work: %v", err)
	}
}

func TestRecordBase(t *testing.T) {
	buf := buildFixture(0x10)
	c, err := Load(buf, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	base, err := c.RecordBase(0x10, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := uint32(layout.DatabaseHeaderSize) + uint32(layout.SchemaHeaderSize+4) + 4
	if base != want {
		t.Fatalf("RecordBase = %d, want %d", base, want)
	}
}
