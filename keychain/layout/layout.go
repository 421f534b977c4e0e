// Package layout holds one Go type and one decode function per on-disk
// struct in the legacy Apple keychain container: the database header, the
// schema header, table headers, record-offset entries, the four-char-code
// and timestamp atoms, and the per-record-kind headers whose fields are
// column pointers rather than inline values.
//
// Every decoder here is explicit-field big-endian reads, not reflection
// (encoding/binary.Read): every struct is fixed-size and laid out exactly
// as the file stores it, so there is nothing reflection would buy us.
package layout

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"keychainkit/keychain/bytesreader"
)

// KeychainSignature is the required magic at offset 0 of a keychain file.
var KeychainSignature = [4]byte{'k', 'y', 'c', 'h'}

// DatabaseHeader is the file's outermost header.
type DatabaseHeader struct {
	Signature    [4]byte
	Version      uint32
	HeaderSize   uint32
	SchemaOffset uint32
	Unused       uint32
}

const DatabaseHeaderSize = 20

// DecodeDatabaseHeader decodes the header at offset 0.
func DecodeDatabaseHeader(r *bytesreader.Reader) (DatabaseHeader, error) {
	b, err := r.Slice(0, DatabaseHeaderSize)
	if err != nil {
		return DatabaseHeader{}, fmt.Errorf("database header: %w", err)
	}
	var h DatabaseHeader
	copy(h.Signature[:], b[0:4])
	h.Version = binary.BigEndian.Uint32(b[4:8])
	h.HeaderSize = binary.BigEndian.Uint32(b[8:12])
	h.SchemaOffset = binary.BigEndian.Uint32(b[12:16])
	h.Unused = binary.BigEndian.Uint32(b[16:20])
	return h, nil
}

// SignatureValid reports whether h.Signature is the literal byte string
// "kych". This is always a bytes-to-bytes comparison, so there is no risk
// of the string/bytes mismatch that can silently fail to match in a
// dynamically typed implementation.
func (h DatabaseHeader) SignatureValid() bool {
	return bytes.Equal(h.Signature[:], KeychainSignature[:])
}

// SchemaHeader describes the table directory.
type SchemaHeader struct {
	SchemaSize uint32
	TableCount uint32
}

const SchemaHeaderSize = 8

// DecodeSchemaHeader decodes the schema header at offset.
func DecodeSchemaHeader(r *bytesreader.Reader, offset uint32) (SchemaHeader, error) {
	b, err := r.Slice(offset, SchemaHeaderSize)
	if err != nil {
		return SchemaHeader{}, fmt.Errorf("schema header: %w", err)
	}
	return SchemaHeader{
		SchemaSize: binary.BigEndian.Uint32(b[0:4]),
		TableCount: binary.BigEndian.Uint32(b[4:8]),
	}, nil
}

// TableHeader describes one table within the schema.
type TableHeader struct {
	TableSize     uint32
	TableID       uint32
	RecordCount   uint32
	RecordsOffset uint32 // informational; the live record-offset scan starts right after this fixed header regardless of this value
	IndexesOffset uint32 // reserved metadata, unused by this parser
	FreeListHead  uint32 // reserved metadata, unused by this parser
}

const TableHeaderSize = 24

// DecodeTableHeader decodes the table header at offset.
func DecodeTableHeader(r *bytesreader.Reader, offset uint32) (TableHeader, error) {
	b, err := r.Slice(offset, TableHeaderSize)
	if err != nil {
		return TableHeader{}, fmt.Errorf("table header: %w", err)
	}
	return TableHeader{
		TableSize:     binary.BigEndian.Uint32(b[0:4]),
		TableID:       binary.BigEndian.Uint32(b[4:8]),
		RecordCount:   binary.BigEndian.Uint32(b[8:12]),
		RecordsOffset: binary.BigEndian.Uint32(b[12:16]),
		IndexesOffset: binary.BigEndian.Uint32(b[16:20]),
		FreeListHead:  binary.BigEndian.Uint32(b[20:24]),
	}, nil
}

// FourCharCode is a 4-byte tag interpreted as ASCII, e.g. record type codes.
type FourCharCode [4]byte

func (f FourCharCode) String() string { return string(bytes.TrimRight(f[:], "\x00")) }

// Timestamp is the keychain's opaque 16-byte ASCII time field. It is kept
// as a raw token rather than parsed into a calendar value: the on-disk
// encoding (timezone, precision) is not well-defined enough to invent a
// time.Time conversion for.
type Timestamp [16]byte

func (t Timestamp) String() string { return string(bytes.TrimRight(t[:], "\x00")) }

// Raw returns the 16 raw ASCII bytes unmodified.
func (t Timestamp) Raw() [16]byte { return t }

// CommonBlobMagic is the magic value at the start of a CSSM common blob,
// used to validate the key-material blob trailing a public/private key
// record before the IV/ciphertext region is trusted.
const CommonBlobMagic uint32 = 0xFADE0711

// DBBlob is the top-level encrypted wrapping-key envelope.
type DBBlob struct {
	Version         uint32
	Reserved        uint32
	StartCryptoBlob uint32 // offset, relative to the blob start, where ciphertext begins
	TotalLength     uint32 // offset, relative to the blob start, where ciphertext ends
	Salt            [20]byte
	IV              [8]byte
}

const DBBlobSize = 4 + 4 + 4 + 4 + 20 + 8

// DecodeDBBlob decodes a DBBlob at offset.
func DecodeDBBlob(r *bytesreader.Reader, offset uint32) (DBBlob, error) {
	b, err := r.Slice(offset, DBBlobSize)
	if err != nil {
		return DBBlob{}, fmt.Errorf("db blob: %w", err)
	}
	var d DBBlob
	d.Version = binary.BigEndian.Uint32(b[0:4])
	d.Reserved = binary.BigEndian.Uint32(b[4:8])
	d.StartCryptoBlob = binary.BigEndian.Uint32(b[8:12])
	d.TotalLength = binary.BigEndian.Uint32(b[12:16])
	copy(d.Salt[:], b[16:36])
	copy(d.IV[:], b[36:44])
	return d, nil
}

// KeyBlobRecordHeader is the outer header of a symmetric-key table record.
type KeyBlobRecordHeader struct {
	RecordSize uint32
	Unused1    uint32
	Unused2    uint32
}

const KeyBlobRecordHeaderSize = 12

// DecodeKeyBlobRecordHeader decodes the outer header at offset.
func DecodeKeyBlobRecordHeader(r *bytesreader.Reader, offset uint32) (KeyBlobRecordHeader, error) {
	b, err := r.Slice(offset, KeyBlobRecordHeaderSize)
	if err != nil {
		return KeyBlobRecordHeader{}, fmt.Errorf("key blob record header: %w", err)
	}
	return KeyBlobRecordHeader{
		RecordSize: binary.BigEndian.Uint32(b[0:4]),
		Unused1:    binary.BigEndian.Uint32(b[4:8]),
		Unused2:    binary.BigEndian.Uint32(b[8:12]),
	}, nil
}

// SymmetricKeyBlob is the encrypted-key envelope inside a symmetric-key
// table record. The trailing "ssgp" discriminator and label sit at fixed
// offsets relative to TotalLength, not inside this fixed-size struct: the
// 20-byte label lives at TotalLength+8, and the 4-byte "ssgp" magic comes
// immediately after the label, at TotalLength+28.
type SymmetricKeyBlob struct {
	StartCryptoBlob uint32
	TotalLength     uint32
	IV              [8]byte
}

const SymmetricKeyBlobSize = 4 + 4 + 8

// DecodeSymmetricKeyBlob decodes a SymmetricKeyBlob at offset.
func DecodeSymmetricKeyBlob(r *bytesreader.Reader, offset uint32) (SymmetricKeyBlob, error) {
	b, err := r.Slice(offset, SymmetricKeyBlobSize)
	if err != nil {
		return SymmetricKeyBlob{}, fmt.Errorf("symmetric key blob: %w", err)
	}
	var k SymmetricKeyBlob
	k.StartCryptoBlob = binary.BigEndian.Uint32(b[0:4])
	k.TotalLength = binary.BigEndian.Uint32(b[4:8])
	copy(k.IV[:], b[8:16])
	return k, nil
}

// SSGPLabelOffsetFromTotalLength and SSGPMagicOffsetFromTotalLength are
// added to TotalLength, i.e. counted from the blob start plus TotalLength,
// per the keyblob record layout.
const (
	SSGPLabelOffsetFromTotalLength = 8
	SSGPLabelSize                  = 20
	SSGPMagicOffsetFromTotalLength = SSGPLabelOffsetFromTotalLength + SSGPLabelSize
	SSGPMagicSize                  = 4
)

// SSGPMagic is the ASCII discriminator for secure-storage-group password
// blobs, both inside symmetric-key records and inside per-item secrets.
var SSGPMagic = [4]byte{'s', 's', 'g', 'p'}

// CommonKeyBlob is the key-material envelope trailing a public/private key
// record. Unlike SymmetricKeyBlob it starts with a magic that must be
// validated before the IV/ciphertext region is trusted.
type CommonKeyBlob struct {
	Magic           uint32
	Reserved        uint32
	StartCryptoBlob uint32
	TotalLength     uint32
	IV              [8]byte
}

const CommonKeyBlobSize = 4 + 4 + 4 + 4 + 8

// DecodeCommonKeyBlob decodes a CommonKeyBlob at offset.
func DecodeCommonKeyBlob(r *bytesreader.Reader, offset uint32) (CommonKeyBlob, error) {
	b, err := r.Slice(offset, CommonKeyBlobSize)
	if err != nil {
		return CommonKeyBlob{}, fmt.Errorf("common key blob: %w", err)
	}
	var k CommonKeyBlob
	k.Magic = binary.BigEndian.Uint32(b[0:4])
	k.Reserved = binary.BigEndian.Uint32(b[4:8])
	k.StartCryptoBlob = binary.BigEndian.Uint32(b[8:12])
	k.TotalLength = binary.BigEndian.Uint32(b[12:16])
	copy(k.IV[:], b[16:24])
	return k, nil
}

// SSGP is the per-item encrypted-secret container embedded in password
// records: 4-byte magic, 20-byte label, 8-byte IV, then ciphertext.
type SSGP struct {
	Magic      [4]byte
	Label      [20]byte
	IV         [8]byte
	Ciphertext []byte
}

const ssgpFixedSize = 4 + 20 + 8

// DecodeSSGP decodes an SSGP region of exactly len(region) bytes: everything
// after the fixed 32-byte prefix is ciphertext.
func DecodeSSGP(region []byte) (SSGP, error) {
	if len(region) < ssgpFixedSize {
		return SSGP{}, fmt.Errorf("ssgp region too short: %d bytes", len(region))
	}
	var s SSGP
	copy(s.Magic[:], region[0:4])
	copy(s.Label[:], region[4:24])
	copy(s.IV[:], region[24:32])
	s.Ciphertext = region[32:]
	return s, nil
}

// MapKey returns the 24-byte (magic || label) key used to look this SSGP's
// wrapping key up in the WrappingKeyMap.
func (s SSGP) MapKey() [24]byte {
	var k [24]byte
	copy(k[0:4], s.Magic[:])
	copy(k[4:24], s.Label[:])
	return k
}

// UnlockBlob is the on-disk layout of an "unlock file": a small header
// followed by a 24-byte master key, which is fed through the same
// DB-blob-decrypt step as a PBKDF2-derived password master key.
type UnlockBlob struct {
	Header    [8]byte
	MasterKey [24]byte
}

const UnlockBlobSize = 8 + 24

// DecodeUnlockBlob decodes an unlock-file buffer.
func DecodeUnlockBlob(buf []byte) (UnlockBlob, error) {
	if len(buf) < UnlockBlobSize {
		return UnlockBlob{}, fmt.Errorf("unlock blob too short: %d bytes, want at least %d", len(buf), UnlockBlobSize)
	}
	var u UnlockBlob
	copy(u.Header[:], buf[0:8])
	copy(u.MasterKey[:], buf[8:32])
	return u, nil
}

// --- Password-bearing record headers ---------------------------------------

// GenericPasswordHeader is the fixed-layout header of a generic password
// record. Every field but RecordSize and SSGPArea is a column pointer:
// an offset, relative to the record base, to the attribute's real value.
type GenericPasswordHeader struct {
	RecordSize   uint32
	SSGPArea     uint32 // byte length of the embedded SSGP region, not a pointer
	CreationDate uint32
	ModDate      uint32
	Description  uint32
	Creator      uint32
	Type         uint32
	PrintName    uint32
	Alias        uint32
	Account      uint32
	Service      uint32
}

const GenericPasswordHeaderSize = 11 * 4

func DecodeGenericPasswordHeader(r *bytesreader.Reader, base uint32) (GenericPasswordHeader, error) {
	var h GenericPasswordHeader
	fields, err := decodeU32Fields(r, base, 11)
	if err != nil {
		return h, fmt.Errorf("generic password header: %w", err)
	}
	h.RecordSize, h.SSGPArea = fields[0], fields[1]
	h.CreationDate, h.ModDate = fields[2], fields[3]
	h.Description, h.Creator, h.Type = fields[4], fields[5], fields[6]
	h.PrintName, h.Alias, h.Account, h.Service = fields[7], fields[8], fields[9], fields[10]
	return h, nil
}

// InternetPasswordHeader is the fixed-layout header of an internet password
// record.
type InternetPasswordHeader struct {
	RecordSize     uint32
	SSGPArea       uint32
	CreationDate   uint32
	ModDate        uint32
	Description    uint32
	Comment        uint32
	Creator        uint32
	Type           uint32
	PrintName      uint32
	Alias          uint32
	Protected      uint32
	Account        uint32
	SecurityDomain uint32
	Server         uint32
	Protocol       uint32
	AuthType       uint32
	Port           uint32 // column pointer to a 4-byte integer
	Path           uint32
}

const InternetPasswordHeaderSize = 18 * 4

func DecodeInternetPasswordHeader(r *bytesreader.Reader, base uint32) (InternetPasswordHeader, error) {
	var h InternetPasswordHeader
	f, err := decodeU32Fields(r, base, 18)
	if err != nil {
		return h, fmt.Errorf("internet password header: %w", err)
	}
	h.RecordSize, h.SSGPArea = f[0], f[1]
	h.CreationDate, h.ModDate = f[2], f[3]
	h.Description, h.Comment, h.Creator, h.Type = f[4], f[5], f[6], f[7]
	h.PrintName, h.Alias, h.Protected, h.Account = f[8], f[9], f[10], f[11]
	h.SecurityDomain, h.Server, h.Protocol = f[12], f[13], f[14]
	h.AuthType, h.Port, h.Path = f[15], f[16], f[17]
	return h, nil
}

// AppleShareHeader is the fixed-layout header of an AppleShare password
// record (legacy, no longer produced by modern macOS).
type AppleShareHeader struct {
	RecordSize   uint32
	SSGPArea     uint32
	CreationDate uint32
	ModDate      uint32
	Description  uint32
	Comment      uint32
	Creator      uint32
	Type         uint32
	PrintName    uint32
	Alias        uint32
	Protected    uint32
	Account      uint32
	Volume       uint32
	Server       uint32
	Protocol     uint32
	Address      uint32
	Signature    uint32
}

const AppleShareHeaderSize = 17 * 4

func DecodeAppleShareHeader(r *bytesreader.Reader, base uint32) (AppleShareHeader, error) {
	var h AppleShareHeader
	f, err := decodeU32Fields(r, base, 17)
	if err != nil {
		return h, fmt.Errorf("appleshare header: %w", err)
	}
	h.RecordSize, h.SSGPArea = f[0], f[1]
	h.CreationDate, h.ModDate = f[2], f[3]
	h.Description, h.Comment, h.Creator, h.Type = f[4], f[5], f[6], f[7]
	h.PrintName, h.Alias, h.Protected, h.Account = f[8], f[9], f[10], f[11]
	h.Volume, h.Server, h.Protocol, h.Address, h.Signature = f[12], f[13], f[14], f[15], f[16]
	return h, nil
}

// X509CertHeader is the fixed-layout header of an X.509 certificate record.
type X509CertHeader struct {
	CertSize             uint32
	CertType             uint32
	CertEncoding         uint32
	PrintName            uint32
	Alias                uint32
	Subject              uint32
	Issuer               uint32
	SerialNumber         uint32
	SubjectKeyIdentifier uint32
	PublicKeyHash        uint32
}

const X509CertHeaderSize = 10 * 4

func DecodeX509CertHeader(r *bytesreader.Reader, base uint32) (X509CertHeader, error) {
	var h X509CertHeader
	f, err := decodeU32Fields(r, base, 10)
	if err != nil {
		return h, fmt.Errorf("x509 cert header: %w", err)
	}
	h.CertSize, h.CertType, h.CertEncoding = f[0], f[1], f[2]
	h.PrintName, h.Alias, h.Subject, h.Issuer = f[3], f[4], f[5], f[6]
	h.SerialNumber, h.SubjectKeyIdentifier, h.PublicKeyHash = f[7], f[8], f[9]
	return h, nil
}

// SecKeyHeader is the fixed-layout header shared by public and private key
// records.
type SecKeyHeader struct {
	BlobSize         uint32
	PrintName        uint32
	Label            uint32
	KeyClass         uint32
	Private          uint32
	KeyType          uint32
	KeySizeInBits    uint32
	EffectiveKeySize uint32
	Extractable      uint32
	KeyCreator       uint32
}

const SecKeyHeaderSize = 10 * 4

func DecodeSecKeyHeader(r *bytesreader.Reader, base uint32) (SecKeyHeader, error) {
	var h SecKeyHeader
	f, err := decodeU32Fields(r, base, 10)
	if err != nil {
		return h, fmt.Errorf("seckey header: %w", err)
	}
	h.BlobSize, h.PrintName, h.Label = f[0], f[1], f[2]
	h.KeyClass, h.Private, h.KeyType = f[3], f[4], f[5]
	h.KeySizeInBits, h.EffectiveKeySize, h.Extractable, h.KeyCreator = f[6], f[7], f[8], f[9]
	return h, nil
}

func decodeU32Fields(r *bytesreader.Reader, base uint32, count int) ([]uint32, error) {
	b, err := r.Slice(base, uint32(count*4))
	if err != nil {
		return nil, err
	}
	out := make([]uint32, count)
	for i := range out {
		out[i] = binary.BigEndian.Uint32(b[i*4 : i*4+4])
	}
	return out, nil
}
