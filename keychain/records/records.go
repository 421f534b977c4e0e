// Package records builds the six typed record kinds (generic password,
// internet password, AppleShare password, X.509 certificate, public key,
// private key) from a record's raw bytes: header decode, attribute
// resolution, and - where applicable - secret decryption.
package records

import (
	"encoding/base64"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"keychainkit/keychain/attrs"
	"keychainkit/keychain/bytesreader"
	"keychainkit/keychain/catalog"
	"keychainkit/keychain/crypto"
	"keychainkit/keychain/layout"
)

// Logger receives debug/warn traces during record construction.
type Logger interface {
	Warnf(format string, args ...any)
	Debugf(format string, args ...any)
}

func warnf(l Logger, format string, args ...any) {
	if l != nil {
		l.Warnf(format, args...)
	}
}

// Secret holds the shared fields of every password-bearing record kind:
// the SSGP blob it was decoded from and the decrypted plaintext once
// resolved. The wrapping key used for the decrypt is not kept. Locked stays
// true, and Plaintext holds the locked sentinel, whenever no wrapping key
// was found or decryption's padding check failed.
type Secret struct {
	SSGP      *layout.SSGP
	Locked    bool
	Plaintext string
	Encoding  string // "utf-8" or "latin1"; empty when Locked
}

// LockedSecret is the value installed into every Secret.Plaintext field
// that this package cannot decrypt - mirrored from keychain.LockedSentinel
// so this package does not need to import the root package.
const LockedSecret = "[Invalid Password / Keychain Locked]"

// decodeText decodes plain as UTF-8 when it already is valid UTF-8;
// otherwise it commits to a Latin-1 (ISO-8859-1) transcode, since Latin-1
// accepts every byte string and there is no second validity check to fall
// back on. The returned encoding name travels with the record so a report
// can flag which items needed the fallback.
func decodeText(plain []byte) (string, string) {
	if utf8.Valid(plain) {
		return string(plain), "utf-8"
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(plain)
	if err != nil {
		return string(plain), "latin1"
	}
	return string(out), "latin1"
}

func resolveSecret(region []byte, wrappingKeys map[[24]byte][]byte, logger Logger) Secret {
	if len(region) == 0 {
		return Secret{Locked: true, Plaintext: LockedSecret}
	}
	ssgp, err := layout.DecodeSSGP(region)
	if err != nil {
		warnf(logger, "ssgp decode failed: %v", err)
		return Secret{Locked: true, Plaintext: LockedSecret}
	}
	key, ok := wrappingKeys[ssgp.MapKey()]
	if !ok {
		warnf(logger, "no wrapping key found for label %x", ssgp.Label)
		return Secret{SSGP: &ssgp, Locked: true, Plaintext: LockedSecret}
	}
	plain, ok := crypto.Decrypt3DES(key, ssgp.IV[:], ssgp.Ciphertext)
	if !ok {
		warnf(logger, "ssgp decrypt failed for label %x", ssgp.Label)
		return Secret{SSGP: &ssgp, Locked: true, Plaintext: LockedSecret}
	}
	text, encoding := decodeText(plain)
	return Secret{SSGP: &ssgp, Locked: false, Plaintext: text, Encoding: encoding}
}

// GenericPassword is a CSSM_DL_DB_RECORD_GENERIC_PASSWORD item.
type GenericPassword struct {
	Secret
	CreationDate layout.Timestamp
	ModDate      layout.Timestamp
	Description  string
	Creator      layout.FourCharCode
	Type         layout.FourCharCode
	PrintName    string
	Alias        string
	Account      string
	Service      string
}

// BuildGenericPassword decodes the fixed header at base, resolves its
// attributes, and - if an SSGP area is present - decrypts the secret using
// wrappingKeys (keyed by SSGP magic||label).
func BuildGenericPassword(r *bytesreader.Reader, base uint32, wrappingKeys map[[24]byte][]byte, logger Logger) (GenericPassword, error) {
	h, err := layout.DecodeGenericPasswordHeader(r, base)
	if err != nil {
		return GenericPassword{}, err
	}
	a := attrs.New(r, base, nil)

	p := GenericPassword{
		CreationDate: a.Timestamp(h.CreationDate),
		ModDate:      a.Timestamp(h.ModDate),
		Description:  string(a.LV(h.Description)),
		Creator:      a.FourCC(h.Creator),
		Type:         a.FourCC(h.Type),
		PrintName:    string(a.LV(h.PrintName)),
		Alias:        string(a.LV(h.Alias)),
		Account:      string(a.LV(h.Account)),
		Service:      string(a.LV(h.Service)),
	}
	if h.SSGPArea != 0 {
		region, err := secretRegion(r, base, h.SSGPArea, h.RecordSize)
		if err != nil {
			warnf(logger, "generic password ssgp region: %v", err)
			p.Secret = Secret{Locked: true, Plaintext: LockedSecret}
		} else {
			p.Secret = resolveSecret(region, wrappingKeys, logger)
		}
	} else {
		p.Secret = Secret{Locked: true, Plaintext: LockedSecret}
	}
	return p, nil
}

// InternetPassword is a CSSM_DL_DB_RECORD_INTERNET_PASSWORD item.
type InternetPassword struct {
	Secret
	CreationDate   layout.Timestamp
	ModDate        layout.Timestamp
	Description    string
	Comment        string
	Creator        layout.FourCharCode
	Type           layout.FourCharCode
	PrintName      string
	Alias          string
	Protected      uint32
	Account        string
	SecurityDomain string
	Server         string
	Protocol       string
	AuthType       string
	Port           uint32
	Path           string
}

func BuildInternetPassword(r *bytesreader.Reader, base uint32, wrappingKeys map[[24]byte][]byte, logger Logger) (InternetPassword, error) {
	h, err := layout.DecodeInternetPasswordHeader(r, base)
	if err != nil {
		return InternetPassword{}, err
	}
	a := attrs.New(r, base, nil)

	p := InternetPassword{
		CreationDate:   a.Timestamp(h.CreationDate),
		ModDate:        a.Timestamp(h.ModDate),
		Description:    string(a.LV(h.Description)),
		Comment:        string(a.LV(h.Comment)),
		Creator:        a.FourCC(h.Creator),
		Type:           a.FourCC(h.Type),
		PrintName:      string(a.LV(h.PrintName)),
		Alias:          string(a.LV(h.Alias)),
		Protected:      a.Int(h.Protected),
		Account:        string(a.LV(h.Account)),
		SecurityDomain: string(a.LV(h.SecurityDomain)),
		Server:         string(a.LV(h.Server)),
		Protocol:       catalog.Name(catalog.ProtocolType, a.Int(h.Protocol)),
		AuthType:       catalog.Name(catalog.AuthType, a.Int(h.AuthType)),
		Port:           a.Int(h.Port),
		Path:           string(a.LV(h.Path)),
	}
	if h.SSGPArea != 0 {
		region, err := secretRegion(r, base, h.SSGPArea, h.RecordSize)
		if err != nil {
			warnf(logger, "internet password ssgp region: %v", err)
			p.Secret = Secret{Locked: true, Plaintext: LockedSecret}
		} else {
			p.Secret = resolveSecret(region, wrappingKeys, logger)
		}
	} else {
		p.Secret = Secret{Locked: true, Plaintext: LockedSecret}
	}
	return p, nil
}

// AppleSharePassword is a CSSM_DL_DB_RECORD_APPLESHARE_PASSWORD item.
type AppleSharePassword struct {
	Secret
	CreationDate layout.Timestamp
	ModDate      layout.Timestamp
	Description  string
	Comment      string
	Creator      layout.FourCharCode
	Type         layout.FourCharCode
	PrintName    string
	Alias        string
	Protected    uint32
	Account      string
	Volume       string
	Server       string
	Protocol     string
	Address      string
	Signature    layout.FourCharCode
}

func BuildAppleSharePassword(r *bytesreader.Reader, base uint32, wrappingKeys map[[24]byte][]byte, logger Logger) (AppleSharePassword, error) {
	h, err := layout.DecodeAppleShareHeader(r, base)
	if err != nil {
		return AppleSharePassword{}, err
	}
	a := attrs.New(r, base, nil)

	p := AppleSharePassword{
		CreationDate: a.Timestamp(h.CreationDate),
		ModDate:      a.Timestamp(h.ModDate),
		Description:  string(a.LV(h.Description)),
		Comment:      string(a.LV(h.Comment)),
		Creator:      a.FourCC(h.Creator),
		Type:         a.FourCC(h.Type),
		PrintName:    string(a.LV(h.PrintName)),
		Alias:        string(a.LV(h.Alias)),
		Protected:    a.Int(h.Protected),
		Account:      string(a.LV(h.Account)),
		Volume:       string(a.LV(h.Volume)),
		Server:       string(a.LV(h.Server)),
		Protocol:     catalog.Name(catalog.ProtocolType, a.Int(h.Protocol)),
		Address:      string(a.LV(h.Address)),
		Signature:    a.FourCC(h.Signature),
	}
	if h.SSGPArea != 0 {
		region, err := secretRegion(r, base, h.SSGPArea, h.RecordSize)
		if err != nil {
			warnf(logger, "appleshare password ssgp region: %v", err)
			p.Secret = Secret{Locked: true, Plaintext: LockedSecret}
		} else {
			p.Secret = resolveSecret(region, wrappingKeys, logger)
		}
	} else {
		p.Secret = Secret{Locked: true, Plaintext: LockedSecret}
	}
	return p, nil
}

// X509Certificate is a CSSM_DL_DB_RECORD_X509_CERTIFICATE item. Raw holds
// the exportable DER-encoded certificate payload.
type X509Certificate struct {
	CertType              uint32
	CertEncoding          uint32
	PrintName             string
	Alias                 string
	Subject               []byte
	Issuer                []byte
	SerialNumber          []byte
	SubjectKeyIdentifier  []byte
	PublicKeyHash         []byte
	Raw                   []byte
}

func BuildX509Certificate(r *bytesreader.Reader, base uint32) (X509Certificate, error) {
	h, err := layout.DecodeX509CertHeader(r, base)
	if err != nil {
		return X509Certificate{}, err
	}
	a := attrs.New(r, base, nil)

	raw, _ := r.Slice(base+layout.X509CertHeaderSize, h.CertSize)
	return X509Certificate{
		CertType:             a.Int(h.CertType),
		CertEncoding:         a.Int(h.CertEncoding),
		PrintName:            string(a.LV(h.PrintName)),
		Alias:                string(a.LV(h.Alias)),
		Subject:              a.LV(h.Subject),
		Issuer:               a.LV(h.Issuer),
		SerialNumber:         a.LV(h.SerialNumber),
		SubjectKeyIdentifier: a.LV(h.SubjectKeyIdentifier),
		PublicKeyHash:        a.LV(h.PublicKeyHash),
		Raw:                  raw,
	}, nil
}

// KeyRecord is the shared shape of public and private key records. Kind
// distinguishes which table it came from ("public" or "private"); Private
// is the CSSM_ATTRIBUTE_PRIVATE header flag, a separate notion from Kind.
type KeyRecord struct {
	Kind             string
	PrintName        string
	Label            string
	KeyClass         string
	KeyType          string
	KeySizeInBits    uint32
	EffectiveKeySize uint32
	Extractable      bool
	Private          bool
	KeyCreator       string
	KeyMaterial      []byte // raw for public keys; decrypted for private keys once unlocked
	Locked           bool
}

// BuildPublicKey decodes a public key record. Public key material is
// stored unencrypted, but it still trails a CommonKeyBlob envelope whose
// magic must be validated before [StartCryptoBlob:TotalLength] is trusted
// as the key bytes - the same envelope BuildPrivateKey parses, just never
// decrypted here.
func BuildPublicKey(r *bytesreader.Reader, base uint32, logger Logger) (KeyRecord, error) {
	h, err := layout.DecodeSecKeyHeader(r, base)
	if err != nil {
		return KeyRecord{}, err
	}
	k, blobBase, blobLen := buildKeyCommon(r, base, h)
	k.Kind = "public"
	if blobLen < layout.CommonKeyBlobSize {
		k.Locked = true
		return k, nil
	}
	blob, err := layout.DecodeCommonKeyBlob(r, blobBase)
	if err != nil {
		warnf(logger, "public key blob decode failed: %v", err)
		k.Locked = true
		return k, nil
	}
	if blob.Magic != layout.CommonBlobMagic {
		warnf(logger, "public key blob has bad magic")
		k.Locked = true
		return k, nil
	}
	if blob.TotalLength < blob.StartCryptoBlob || blob.TotalLength > blobLen {
		warnf(logger, "public key blob has inconsistent crypto bounds")
		k.Locked = true
		return k, nil
	}
	material, err := r.Slice(blobBase+blob.StartCryptoBlob, blob.TotalLength-blob.StartCryptoBlob)
	if err != nil {
		warnf(logger, "public key crypto region: %v", err)
		k.Locked = true
		return k, nil
	}
	k.KeyMaterial = material
	k.Locked = false
	return k, nil
}

// BuildPrivateKey decodes a private key record and, if masterKey is
// non-nil, unwraps its key material via the two-stage CMS primitive. A nil
// masterKey (locked keychain) yields Locked: true with no key material.
func BuildPrivateKey(r *bytesreader.Reader, base uint32, masterKey []byte, logger Logger) (KeyRecord, error) {
	h, err := layout.DecodeSecKeyHeader(r, base)
	if err != nil {
		return KeyRecord{}, err
	}
	k, blobBase, blobLen := buildKeyCommon(r, base, h)
	k.Kind = "private"

	if masterKey == nil || blobLen < layout.CommonKeyBlobSize {
		k.Locked = true
		return k, nil
	}
	blob, err := layout.DecodeCommonKeyBlob(r, blobBase)
	if err != nil {
		warnf(logger, "private key blob decode failed: %v", err)
		k.Locked = true
		return k, nil
	}
	if blob.Magic != layout.CommonBlobMagic {
		warnf(logger, "private key blob has bad magic")
		k.Locked = true
		return k, nil
	}
	if blob.TotalLength < blob.StartCryptoBlob || blob.TotalLength > blobLen {
		warnf(logger, "private key blob has inconsistent crypto bounds")
		k.Locked = true
		return k, nil
	}
	ciphertext, err := r.Slice(blobBase+blob.StartCryptoBlob, blob.TotalLength-blob.StartCryptoBlob)
	if err != nil {
		warnf(logger, "private key ciphertext region: %v", err)
		k.Locked = true
		return k, nil
	}
	unwrapped, ok := crypto.UnwrapCMS(masterKey, blob.IV[:], ciphertext)
	if !ok || len(unwrapped) < 12 {
		warnf(logger, "private key unwrap failed")
		k.Locked = true
		return k, nil
	}
	k.KeyMaterial = unwrapped[12:]
	k.Locked = false
	return k, nil
}

// buildKeyCommon resolves the fields shared by public/private key records
// and returns the trailing key-material blob's location within r.
func buildKeyCommon(r *bytesreader.Reader, base uint32, h layout.SecKeyHeader) (KeyRecord, uint32, uint32) {
	a := attrs.New(r, base, nil)
	k := KeyRecord{
		PrintName:        string(a.LV(h.PrintName)),
		Label:            string(a.LV(h.Label)),
		KeyClass:         catalog.Name(catalog.KeyType, a.Int(h.KeyClass)),
		KeyType:          catalog.Name(catalog.Algorithm, a.Int(h.KeyType)),
		KeySizeInBits:    a.Int(h.KeySizeInBits),
		EffectiveKeySize: a.Int(h.EffectiveKeySize),
		Extractable:      a.Int(h.Extractable) != 0,
		Private:          a.Int(h.Private) != 0,
		KeyCreator:       catalog.Name(catalog.StdAppleAddinModule, a.Int(h.KeyCreator)),
	}
	return k, base + layout.SecKeyHeaderSize, h.BlobSize
}

// secretRegion slices the SSGP-bearing tail of a password record: from
// immediately after the fixed header to the record's declared end.
func secretRegion(r *bytesreader.Reader, base, ssgpArea, recordSize uint32) ([]byte, error) {
	if ssgpArea == 0 || recordSize < ssgpArea {
		return nil, nil
	}
	return r.Slice(base+recordSize-ssgpArea, ssgpArea)
}

// The ExportName/ExportKind/ExportPayload methods below are the minimal
// shape the export package needs from any dumped record: a print name to
// derive the file stem from, an extension tag, and the bytes to write.
// Every concrete record kind is exportable - a locked secret still exports
// its locked-sentinel text, matching password items always having content
// to write even when undecryptable.

// ExportName returns the record's print name, the raw (unfiltered) file
// stem candidate.
func (p GenericPassword) ExportName() string { return p.PrintName }

// ExportKind returns the export package's extension tag for this record.
func (p GenericPassword) ExportKind() string { return "txt" }

// ExportPayload renders the record as the text block written to disk.
func (p GenericPassword) ExportPayload() ([]byte, bool) {
	return []byte(passwordSummary("Generic Password", p.PrintName, p.Account, p.Service, p.Secret)), true
}

func (p InternetPassword) ExportName() string { return p.PrintName }
func (p InternetPassword) ExportKind() string { return "txt" }
func (p InternetPassword) ExportPayload() ([]byte, bool) {
	return []byte(passwordSummary("Internet Password", p.PrintName, p.Account, p.Server, p.Secret)), true
}

func (p AppleSharePassword) ExportName() string { return p.PrintName }
func (p AppleSharePassword) ExportKind() string { return "txt" }
func (p AppleSharePassword) ExportPayload() ([]byte, bool) {
	return []byte(passwordSummary("AppleShare Password", p.PrintName, p.Account, p.Server, p.Secret)), true
}

func passwordSummary(kind, printName, account, location string, s Secret) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[+] %s\n", kind)
	fmt.Fprintf(&b, " [-] Print Name: %s\n", printName)
	fmt.Fprintf(&b, " [-] Account: %s\n", account)
	fmt.Fprintf(&b, " [-] Location: %s\n", location)
	if s.Locked {
		fmt.Fprintf(&b, " [-] Password: %s\n", LockedSecret)
	} else if s.Encoding == "latin1" {
		fmt.Fprintf(&b, " [-] Password (Latin-1 decoded): %s\n", s.Plaintext)
	} else {
		fmt.Fprintf(&b, " [-] Password: %s\n", s.Plaintext)
	}
	return b.String()
}

func (c X509Certificate) ExportName() string { return c.PrintName }
func (c X509Certificate) ExportKind() string { return "crt" }
func (c X509Certificate) ExportPayload() ([]byte, bool) {
	return c.Raw, len(c.Raw) > 0
}

func (k KeyRecord) ExportName() string { return k.PrintName }
func (k KeyRecord) ExportKind() string {
	if k.Kind == "private" {
		return "key"
	}
	return "pub"
}
func (k KeyRecord) ExportPayload() ([]byte, bool) {
	if k.Locked {
		return []byte(LockedSecret), true
	}
	return k.KeyMaterial, true
}

// ToDict renders a fixed selection of a record's fields, with byte fields
// base64-encoded, for consumption by the --json dump. Fields not listed in
// each method are left out: for example Creator, Type and Alias on password
// records, Comment on internet and AppleShare records, and CertType and
// CertEncoding on certificates. Secret plaintext is included since the
// locked sentinel travels in the same field; there is no separate "hide the
// secret" mode.

func (p GenericPassword) ToDict() map[string]any {
	return map[string]any{
		"record_type":  "GenericPassword",
		"PrintName":    p.PrintName,
		"Description":  p.Description,
		"Account":      p.Account,
		"Service":      p.Service,
		"CreationDate": p.CreationDate.String(),
		"ModDate":      p.ModDate.String(),
		"Locked":       p.Locked,
		"Password":     p.Plaintext,
		"Encoding":     p.Encoding,
	}
}

func (p InternetPassword) ToDict() map[string]any {
	return map[string]any{
		"record_type":    "InternetPassword",
		"PrintName":      p.PrintName,
		"Description":    p.Description,
		"Account":        p.Account,
		"SecurityDomain": p.SecurityDomain,
		"Server":         p.Server,
		"Protocol":       p.Protocol,
		"AuthType":       p.AuthType,
		"Port":           p.Port,
		"Path":           p.Path,
		"Locked":         p.Locked,
		"Password":       p.Plaintext,
		"Encoding":       p.Encoding,
	}
}

func (p AppleSharePassword) ToDict() map[string]any {
	return map[string]any{
		"record_type": "AppleSharePassword",
		"PrintName":   p.PrintName,
		"Description": p.Description,
		"Account":     p.Account,
		"Volume":      p.Volume,
		"Server":      p.Server,
		"Protocol":    p.Protocol,
		"Address":     p.Address,
		"Signature":   p.Signature.String(),
		"Locked":      p.Locked,
		"Password":    p.Plaintext,
		"Encoding":    p.Encoding,
	}
}

func (c X509Certificate) ToDict() map[string]any {
	return map[string]any{
		"record_type":          "X509Certificate",
		"PrintName":            c.PrintName,
		"Alias":                c.Alias,
		"Subject_b64":          base64.StdEncoding.EncodeToString(c.Subject),
		"Issuer_b64":           base64.StdEncoding.EncodeToString(c.Issuer),
		"SerialNumber_b64":     base64.StdEncoding.EncodeToString(c.SerialNumber),
		"SubjectKeyIdentifier": base64.StdEncoding.EncodeToString(c.SubjectKeyIdentifier),
		"PublicKeyHash_b64":    base64.StdEncoding.EncodeToString(c.PublicKeyHash),
		"Certificate_b64":      base64.StdEncoding.EncodeToString(c.Raw),
	}
}

func (k KeyRecord) ToDict() map[string]any {
	return map[string]any{
		"record_type":      "KeyRecord",
		"Kind":             k.Kind,
		"PrintName":        k.PrintName,
		"Label":            k.Label,
		"KeyClass":         k.KeyClass,
		"KeyType":          k.KeyType,
		"KeySizeInBits":    k.KeySizeInBits,
		"EffectiveKeySize": k.EffectiveKeySize,
		"Extractable":      k.Extractable,
		"Private":          k.Private,
		"KeyCreator":       k.KeyCreator,
		"Locked":           k.Locked,
		"KeyMaterial_b64":  base64.StdEncoding.EncodeToString(k.KeyMaterial),
	}
}
