package keychain

import (
	"bytes"
	"crypto/cipher"
	"crypto/des"
	"encoding/binary"
	"testing"

	"keychainkit/keychain/bytesreader"
	"keychainkit/keychain/catalog"
	"keychainkit/keychain/crypto"
	"keychainkit/keychain/layout"
)

// fixtureBuilder assembles a keychain file byte-by-byte, patching
// forward-referenced offsets once their targets are known. It exists only
// to keep the integration fixture below readable.
type fixtureBuilder struct {
	buf []byte
}

func (fb *fixtureBuilder) pos() uint32 { return uint32(len(fb.buf)) }

func (fb *fixtureBuilder) writeZeros(n int) uint32 {
	pos := fb.pos()
	fb.buf = append(fb.buf, make([]byte, n)...)
	return pos
}

func (fb *fixtureBuilder) writeBytes(b []byte) uint32 {
	pos := fb.pos()
	fb.buf = append(fb.buf, b...)
	return pos
}

func (fb *fixtureBuilder) writeU32(v uint32) uint32 {
	pos := fb.pos()
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	fb.buf = append(fb.buf, b...)
	return pos
}

func (fb *fixtureBuilder) putU32At(pos uint32, v uint32) {
	binary.BigEndian.PutUint32(fb.buf[pos:pos+4], v)
}

func (fb *fixtureBuilder) putBytesAt(pos uint32, b []byte) {
	copy(fb.buf[pos:pos+uint32(len(b))], b)
}

func encryptFixture(t *testing.T, key, iv, padded []byte) []byte {
	t.Helper()
	block, err := des.NewTripleDESCipher(expandKeyForTest(key))
	if err != nil {
		t.Fatalf("des.NewTripleDESCipher: %v", err)
	}
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out
}

func expandKeyForTest(key []byte) []byte {
	if len(key) == 16 {
		out := make([]byte, 24)
		copy(out[0:16], key)
		copy(out[16:24], key[0:8])
		return out
	}
	return key
}

func pkcsPadForTest(data []byte, blockSize int) []byte {
	pad := blockSize - len(data)%blockSize
	if pad == 0 {
		pad = blockSize
	}
	out := make([]byte, len(data)+pad)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(pad)
	}
	return out
}

// reverseFirst32ForTest mirrors UnwrapCMS's second-stage input
// construction: only the first min(32, len(b)) bytes are kept and
// reversed, matching what the real code feeds into the second decrypt.
func reverseFirst32ForTest(b []byte) []byte {
	n := 32
	if len(b) < n {
		n = len(b)
	}
	out := make([]byte, n)
	copy(out, b[:n])
	for i, j := 0, n-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// buildFullFixture assembles a minimal but complete keychain file: a
// metadata table holding the DB blob, a symmetric-key table holding one
// wrapped item key, and a generic-password table holding one password
// encrypted under that item key.
func buildFullFixture(t *testing.T, password string) []byte {
	t.Helper()
	const headerSize = uint32(layout.DatabaseHeaderSize)

	salt := bytes.Repeat([]byte{0x05}, 20)
	dbIV := bytes.Repeat([]byte{0x06}, crypto.BlockSize)
	dbKey := bytes.Repeat([]byte{0xAA}, crypto.KeyLen)
	masterCandidate := crypto.DeriveMasterKey(password, salt)
	dbCiphertext := encryptFixture(t, masterCandidate, dbIV, pkcsPadForTest(dbKey, crypto.BlockSize))

	label := []byte("label-00000000000000") // 20 bytes
	var magic [4]byte
	copy(magic[:], layout.SSGPMagic[:])
	itemKey := bytes.Repeat([]byte{0x42}, crypto.KeyLen)
	blobIV := bytes.Repeat([]byte{0x07}, crypto.BlockSize)

	innerPlain := append(append([]byte{}, 0, 0, 0, 0), itemKey...)
	finalStageCipher := encryptFixture(t, dbKey, blobIV, pkcsPadForTest(innerPlain, crypto.BlockSize)) // 32 bytes
	// stage1 (what the real code recovers from outerCipher) is built longer
	// than 32 bytes, as it is for a real ~48-byte wrapped-key ciphertext:
	// only the first 32 bytes - reversed - feed the second decrypt, and the
	// trailing block must be discarded rather than decrypted along with it.
	stage1Plain := append(append([]byte{}, reverseFirst32ForTest(finalStageCipher)...), bytes.Repeat([]byte{0x99}, 8)...)
	// Decrypt3DES strips padding at every stage, so the first-stage decrypt
	// output must itself be a padded block, not the bare reversed bytes.
	outerCipher := encryptFixture(t, dbKey, crypto.MagicCMSIV[:], pkcsPadForTest(stage1Plain, crypto.BlockSize))

	ssgpIV := bytes.Repeat([]byte{0x08}, crypto.BlockSize)
	ssgpCiphertext := encryptFixture(t, itemKey, ssgpIV, pkcsPadForTest([]byte("hunter2"), crypto.BlockSize))

	fb := &fixtureBuilder{}
	headerPos := fb.writeZeros(int(headerSize))
	schemaPos := fb.writeZeros(layout.SchemaHeaderSize)
	tableDirPos := fb.writeZeros(3 * 4)

	// --- metadata table: holds the DB blob ---
	metaTableRelOffset := fb.pos() - headerSize
	metaTableHeaderPos := fb.writeZeros(layout.TableHeaderSize)
	metaSlotsPos := fb.writeZeros(4)

	dbBlobPos := fb.pos()
	fb.writeZeros(layout.DBBlobSize)
	fb.writeBytes(dbCiphertext)
	fb.putU32At(dbBlobPos+0, 1)  // Version
	fb.putU32At(dbBlobPos+4, 0)  // Reserved
	fb.putU32At(dbBlobPos+8, uint32(layout.DBBlobSize))
	fb.putU32At(dbBlobPos+12, uint32(layout.DBBlobSize)+uint32(len(dbCiphertext)))
	fb.putBytesAt(dbBlobPos+16, salt)
	fb.putBytesAt(dbBlobPos+36, dbIV)

	metaTableAbs := headerSize + metaTableRelOffset
	fb.putU32At(metaSlotsPos, dbBlobPos-metaTableAbs)
	fb.putU32At(metaTableHeaderPos+4, catalog.RecordMetadata)
	fb.putU32At(metaTableHeaderPos+8, 1)

	// --- symmetric key table: holds the wrapped item key ---
	symTableRelOffset := fb.pos() - headerSize
	symTableHeaderPos := fb.writeZeros(layout.TableHeaderSize)
	symSlotsPos := fb.writeZeros(4)

	symRecordPos := fb.pos()
	fb.writeZeros(layout.KeyBlobRecordHeaderSize)
	blobPos := fb.pos()
	fb.writeZeros(layout.SymmetricKeyBlobSize)
	fb.writeBytes(outerCipher)
	fb.writeZeros(layout.SSGPLabelOffsetFromTotalLength)
	fb.writeBytes(label)
	fb.writeBytes(magic[:])

	totalLength := uint32(layout.SymmetricKeyBlobSize) + uint32(len(outerCipher))
	fb.putU32At(blobPos+0, uint32(layout.SymmetricKeyBlobSize))
	fb.putU32At(blobPos+4, totalLength)
	fb.putBytesAt(blobPos+8, blobIV)

	symTableAbs := headerSize + symTableRelOffset
	fb.putU32At(symSlotsPos, symRecordPos-symTableAbs)
	fb.putU32At(symTableHeaderPos+4, catalog.RecordSymmetricKey)
	fb.putU32At(symTableHeaderPos+8, 1)

	// --- generic password table ---
	genTableRelOffset := fb.pos() - headerSize
	genTableHeaderPos := fb.writeZeros(layout.TableHeaderSize)
	genSlotsPos := fb.writeZeros(4)

	genRecordPos := fb.pos()
	genHeaderPos := fb.writeZeros(layout.GenericPasswordHeaderSize)

	accountPtr := fb.pos() - genRecordPos
	account := []byte("alice")
	fb.writeU32(uint32(len(account)))
	fb.writeBytes(account)
	fb.writeZeros(int(bytesreader.PadToWord(uint32(len(account))) - uint32(len(account))))

	servicePtr := fb.pos() - genRecordPos
	service := []byte("example.com")
	fb.writeU32(uint32(len(service)))
	fb.writeBytes(service)
	fb.writeZeros(int(bytesreader.PadToWord(uint32(len(service))) - uint32(len(service))))

	ssgpOff := fb.pos() - genRecordPos
	fb.writeBytes(magic[:])
	fb.writeBytes(label)
	fb.writeBytes(ssgpIV)
	fb.writeBytes(ssgpCiphertext)
	ssgpLen := uint32(4+20+8) + uint32(len(ssgpCiphertext))
	_ = ssgpOff

	recordSize := fb.pos() - genRecordPos
	fb.putU32At(genHeaderPos+0, recordSize)
	fb.putU32At(genHeaderPos+4, ssgpLen)
	fb.putU32At(genHeaderPos+36, accountPtr)
	fb.putU32At(genHeaderPos+40, servicePtr)

	genTableAbs := headerSize + genTableRelOffset
	fb.putU32At(genSlotsPos, genRecordPos-genTableAbs)
	fb.putU32At(genTableHeaderPos+4, catalog.RecordGenericPassword)
	fb.putU32At(genTableHeaderPos+8, 1)

	// --- table directory, schema header, file header ---
	fb.putU32At(tableDirPos+0, metaTableRelOffset)
	fb.putU32At(tableDirPos+4, symTableRelOffset)
	fb.putU32At(tableDirPos+8, genTableRelOffset)

	fb.putU32At(schemaPos+0, fb.pos()-schemaPos)
	fb.putU32At(schemaPos+4, 3)

	fb.putBytesAt(headerPos+0, []byte("kych"))
	fb.putU32At(headerPos+4, 1)
	fb.putU32At(headerPos+8, headerSize)
	fb.putU32At(headerPos+12, schemaPos)
	fb.putU32At(headerPos+16, 0)

	return fb.buf
}

func TestOpenAndDumpGenericPasswordUnlocked(t *testing.T) {
	buf := buildFullFixture(t, "correct horse")
	k, err := Open(buf, WithPassword("correct horse"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if k.Locked() {
		t.Fatal("expected unlocked keychain")
	}

	passwords, err := k.DumpGenericPasswords()
	if err != nil {
		t.Fatalf("DumpGenericPasswords: %v", err)
	}
	if len(passwords) != 1 {
		t.Fatalf("got %d generic passwords, want 1", len(passwords))
	}
	got := passwords[0]
	if got.Locked {
		t.Fatal("expected unlocked record")
	}
	if got.Plaintext != "hunter2" {
		t.Fatalf("Plaintext = %q, want hunter2", got.Plaintext)
	}
	if got.Account != "alice" || got.Service != "example.com" {
		t.Fatalf("Account/Service = %q/%q", got.Account, got.Service)
	}
}

func TestOpenWithWrongPasswordStaysLocked(t *testing.T) {
	buf := buildFullFixture(t, "correct horse")
	k, err := Open(buf, WithPassword("wrong password"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !k.Locked() {
		t.Fatal("expected locked keychain under the wrong password")
	}
	passwords, err := k.DumpGenericPasswords()
	if err != nil {
		t.Fatalf("DumpGenericPasswords: %v", err)
	}
	if len(passwords) != 1 || !passwords[0].Locked {
		t.Fatal("expected the one record present but marked locked")
	}
}

func TestDumpKeychainPasswordHashAvailableWhileLocked(t *testing.T) {
	buf := buildFullFixture(t, "correct horse")
	k, err := Open(buf)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !k.Locked() {
		t.Fatal("expected locked keychain with no credential supplied")
	}
	hash, err := k.DumpKeychainPasswordHash()
	if err != nil {
		t.Fatalf("DumpKeychainPasswordHash: %v", err)
	}
	if hash[:len("$keychain$*")] != "$keychain$*" {
		t.Fatalf("hash = %q, missing expected prefix", hash)
	}
}

func TestOpenBadSignatureStillOpensLocked(t *testing.T) {
	buf := buildFullFixture(t, "correct horse")
	copy(buf[0:4], "XXXX")
	k, err := Open(buf)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !k.Locked() {
		t.Fatal("expected locked keychain on bad signature")
	}
}

func TestSetCredentialUnlocksAfterOpen(t *testing.T) {
	buf := buildFullFixture(t, "correct horse")
	k, err := Open(buf)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !k.Locked() {
		t.Fatal("expected locked keychain with no credential")
	}
	k.SetCredential(WithPassword("correct horse"))
	if k.Locked() {
		t.Fatal("expected unlocked keychain after SetCredential with the right password")
	}
}
