// Package keychain is the public facade: it ties the container navigator,
// attribute resolver, crypto core, and record builders together into an
// Open/enumerate API over a legacy Apple .keychain file.
package keychain

import (
	"encoding/hex"
	"fmt"
	"os"

	"keychainkit/keychain/bytesreader"
	"keychainkit/keychain/catalog"
	"keychainkit/keychain/container"
	"keychainkit/keychain/crypto"
	"keychainkit/keychain/hashformat"
	"keychainkit/keychain/layout"
	"keychainkit/keychain/records"
)

type state int

const (
	stateUnopened state = iota
	stateLocked
	stateUnlocked
)

// Keychain is an opened, navigable keychain file, possibly unlocked.
type Keychain struct {
	buf       []byte
	reader    *bytesreader.Reader
	container *container.Container
	logger    Logger

	state state

	dbBlob        layout.DBBlob
	dbBlobFound   bool
	masterKey     []byte              // the recovered 24-byte DB wrapping key
	wrappingKeys  map[[24]byte][]byte // SSGP magic||label -> item wrapping key
}

// Option configures Open.
type Option func(*openConfig)

type openConfig struct {
	logger         Logger
	password       string
	hexKey         string
	unlockFilePath string
}

// WithLogger supplies the collaborator that receives warnings and debug
// traces. Without it, every internal component is passed a nil logger and
// stays silent.
func WithLogger(l Logger) Option {
	return func(c *openConfig) { c.logger = l }
}

// WithPassword unlocks using a PBKDF2-derived master key.
func WithPassword(password string) Option {
	return func(c *openConfig) { c.password = password }
}

// WithHexKey unlocks using a hex-encoded 24-byte master key, bypassing
// PBKDF2 entirely.
func WithHexKey(hexKey string) Option {
	return func(c *openConfig) { c.hexKey = hexKey }
}

// WithUnlockFile unlocks using a master key read from an unlock-file on
// disk (the format layout.DecodeUnlockBlob expects).
func WithUnlockFile(path string) Option {
	return func(c *openConfig) { c.unlockFilePath = path }
}

// Open parses buf as a keychain file and, if a credential option was
// supplied, attempts to unlock it. A structural failure (truncated header,
// truncated schema) returns an error; a bad or absent credential never
// does - the handle is simply returned locked.
func Open(buf []byte, opts ...Option) (*Keychain, error) {
	cfg := openConfig{}
	for _, o := range opts {
		o(&cfg)
	}

	c, err := container.Load(buf, cfg.logger)
	if err != nil {
		return nil, fmt.Errorf("keychain: %w", err)
	}

	k := &Keychain{
		buf:       buf,
		reader:    c.Reader,
		container: c,
		logger:    cfg.logger,
		state:     stateLocked,
	}
	k.loadDBBlob()

	masterKey, err := resolveCandidateMasterKey(cfg, k.dbBlobSalt())
	if err != nil {
		k.warnf("credential: %v", err)
		return k, nil
	}
	if masterKey != nil {
		k.tryUnlock(masterKey)
	}
	return k, nil
}

func resolveCandidateMasterKey(cfg openConfig, salt []byte) ([]byte, error) {
	switch {
	case cfg.hexKey != "":
		key, err := hex.DecodeString(cfg.hexKey)
		if err != nil {
			return nil, fmt.Errorf("hex key: %w", err)
		}
		return key, nil
	case cfg.unlockFilePath != "":
		buf, err := os.ReadFile(cfg.unlockFilePath)
		if err != nil {
			return nil, fmt.Errorf("unlock file: %w", err)
		}
		u, err := layout.DecodeUnlockBlob(buf)
		if err != nil {
			return nil, fmt.Errorf("unlock file: %w", err)
		}
		key := make([]byte, len(u.MasterKey))
		copy(key, u.MasterKey[:])
		return key, nil
	case cfg.password != "":
		if salt == nil {
			return nil, fmt.Errorf("no metadata table to derive a master key against")
		}
		return crypto.DeriveMasterKey(cfg.password, salt), nil
	default:
		return nil, nil
	}
}

func (k *Keychain) loadDBBlob() {
	_, live, err := k.container.Table(catalog.RecordMetadata)
	if err != nil || len(live) == 0 {
		k.warnf("no metadata table; hash extraction and unlock are unavailable")
		return
	}
	base, err := k.container.RecordBase(catalog.RecordMetadata, live[0])
	if err != nil {
		k.warnf("metadata record base: %v", err)
		return
	}
	blob, err := layout.DecodeDBBlob(k.reader, base)
	if err != nil {
		k.warnf("db blob decode: %v", err)
		return
	}
	k.dbBlob = blob
	k.dbBlobFound = true
}

func (k *Keychain) dbBlobSalt() []byte {
	if !k.dbBlobFound {
		return nil
	}
	salt := make([]byte, len(k.dbBlob.Salt))
	copy(salt, k.dbBlob.Salt[:])
	return salt
}

// SetCredential re-derives the wrapping key and rebuilds the wrapping-key
// map from opts, exactly as Open would with the same options. It is
// idempotent and safe to call again with a different credential.
func (k *Keychain) SetCredential(opts ...Option) {
	cfg := openConfig{logger: k.logger}
	for _, o := range opts {
		o(&cfg)
	}
	masterKey, err := resolveCandidateMasterKey(cfg, k.dbBlobSalt())
	if err != nil {
		k.warnf("credential: %v", err)
		return
	}
	if masterKey == nil {
		return
	}
	k.tryUnlock(masterKey)
}

// tryUnlock recovers the DB wrapping key from the candidate master key and
// rebuilds the symmetric-key map; the handle only transitions to unlocked
// if both steps succeed, per the state machine's two-part condition. Keys
// from an earlier credential are dropped first, so a failed attempt leaves
// the handle locked with nothing to decrypt with.
func (k *Keychain) tryUnlock(candidateMasterKey []byte) {
	k.masterKey, k.wrappingKeys, k.state = nil, nil, stateLocked
	if !k.dbBlobFound {
		return
	}
	ciphertext, err := k.reader.Slice(k.dbBlobBase()+k.dbBlob.StartCryptoBlob, k.dbBlob.TotalLength-k.dbBlob.StartCryptoBlob)
	if err != nil {
		k.warnf("db blob ciphertext region: %v", err)
		return
	}
	plain, ok := crypto.Decrypt3DES(candidateMasterKey, k.dbBlob.IV[:], ciphertext)
	if !ok || len(plain) < crypto.KeyLen {
		k.state = stateLocked
		return
	}

	wrappingKeys := k.buildWrappingKeyMap(plain[:crypto.KeyLen])
	if len(wrappingKeys) == 0 {
		k.state = stateLocked
		return
	}
	k.masterKey = plain[:crypto.KeyLen]
	k.wrappingKeys = wrappingKeys
	k.state = stateUnlocked
}

func (k *Keychain) dbBlobBase() uint32 {
	_, live, err := k.container.Table(catalog.RecordMetadata)
	if err != nil || len(live) == 0 {
		return 0
	}
	base, err := k.container.RecordBase(catalog.RecordMetadata, live[0])
	if err != nil {
		return 0
	}
	return base
}

// buildWrappingKeyMap scans the symmetric-key table, unwraps each entry
// with dbKey, and indexes the resulting 24-byte item key by its trailing
// SSGP magic||label.
func (k *Keychain) buildWrappingKeyMap(dbKey []byte) map[[24]byte][]byte {
	out := map[[24]byte][]byte{}
	_, live, err := k.container.Table(catalog.RecordSymmetricKey)
	if err != nil {
		k.warnf("symmetric key table: %v", err)
		return out
	}
	for _, offset := range live {
		base, err := k.container.RecordBase(catalog.RecordSymmetricKey, offset)
		if err != nil {
			k.warnf("symmetric key record base: %v", err)
			continue
		}
		if _, err := layout.DecodeKeyBlobRecordHeader(k.reader, base); err != nil {
			k.warnf("symmetric key record header: %v", err)
			continue
		}
		blobBase := base + layout.KeyBlobRecordHeaderSize
		blob, err := layout.DecodeSymmetricKeyBlob(k.reader, blobBase)
		if err != nil {
			k.warnf("symmetric key blob: %v", err)
			continue
		}
		ciphertext, err := k.reader.Slice(blobBase+blob.StartCryptoBlob, blob.TotalLength-blob.StartCryptoBlob)
		if err != nil {
			k.warnf("symmetric key ciphertext region: %v", err)
			continue
		}
		unwrapped, ok := crypto.UnwrapCMS(dbKey, blob.IV[:], ciphertext)
		if !ok || len(unwrapped) != 4+crypto.KeyLen {
			k.warnf("symmetric key unwrap failed at offset %d", offset)
			continue
		}
		itemKey := unwrapped[4:]

		label, err := k.reader.Slice(blobBase+blob.TotalLength+layout.SSGPLabelOffsetFromTotalLength, layout.SSGPLabelSize)
		if err != nil {
			k.warnf("symmetric key ssgp label: %v", err)
			continue
		}
		magic, err := k.reader.Slice(blobBase+blob.TotalLength+layout.SSGPMagicOffsetFromTotalLength, layout.SSGPMagicSize)
		if err != nil {
			k.warnf("symmetric key ssgp magic: %v", err)
			continue
		}
		var mapKey [24]byte
		copy(mapKey[0:4], magic)
		copy(mapKey[4:24], label)
		out[mapKey] = itemKey
	}
	return out
}

// Locked reports whether the handle can decrypt per-item secrets.
func (k *Keychain) Locked() bool { return k.state != stateUnlocked }

func (k *Keychain) warnf(format string, args ...any) {
	if k.logger != nil {
		k.logger.Warnf(format, args...)
	}
}

// DumpGenericPasswords enumerates every generic password record.
func (k *Keychain) DumpGenericPasswords() ([]records.GenericPassword, error) {
	_, live, err := k.container.Table(catalog.RecordGenericPassword)
	if err == container.ErrTableNotFound {
		k.warnf("no generic password table")
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	out := make([]records.GenericPassword, 0, len(live))
	for _, offset := range live {
		base, err := k.container.RecordBase(catalog.RecordGenericPassword, offset)
		if err != nil {
			k.warnf("generic password record base: %v", err)
			continue
		}
		rec, err := records.BuildGenericPassword(k.reader, base, k.wrappingKeys, k.logger)
		if err != nil {
			k.warnf("generic password record at offset %d: %v", offset, err)
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// DumpInternetPasswords enumerates every internet password record.
func (k *Keychain) DumpInternetPasswords() ([]records.InternetPassword, error) {
	_, live, err := k.container.Table(catalog.RecordInternetPassword)
	if err == container.ErrTableNotFound {
		k.warnf("no internet password table")
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	out := make([]records.InternetPassword, 0, len(live))
	for _, offset := range live {
		base, err := k.container.RecordBase(catalog.RecordInternetPassword, offset)
		if err != nil {
			k.warnf("internet password record base: %v", err)
			continue
		}
		rec, err := records.BuildInternetPassword(k.reader, base, k.wrappingKeys, k.logger)
		if err != nil {
			k.warnf("internet password record at offset %d: %v", offset, err)
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// DumpAppleSharePasswords enumerates every AppleShare password record.
func (k *Keychain) DumpAppleSharePasswords() ([]records.AppleSharePassword, error) {
	_, live, err := k.container.Table(catalog.RecordAppleSharePassword)
	if err == container.ErrTableNotFound {
		k.warnf("no appleshare password table")
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	out := make([]records.AppleSharePassword, 0, len(live))
	for _, offset := range live {
		base, err := k.container.RecordBase(catalog.RecordAppleSharePassword, offset)
		if err != nil {
			k.warnf("appleshare password record base: %v", err)
			continue
		}
		rec, err := records.BuildAppleSharePassword(k.reader, base, k.wrappingKeys, k.logger)
		if err != nil {
			k.warnf("appleshare password record at offset %d: %v", offset, err)
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// DumpX509Certificates enumerates every certificate record.
func (k *Keychain) DumpX509Certificates() ([]records.X509Certificate, error) {
	_, live, err := k.container.Table(catalog.RecordCertificate)
	if err == container.ErrTableNotFound {
		k.warnf("no certificate table")
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	out := make([]records.X509Certificate, 0, len(live))
	for _, offset := range live {
		base, err := k.container.RecordBase(catalog.RecordCertificate, offset)
		if err != nil {
			k.warnf("certificate record base: %v", err)
			continue
		}
		rec, err := records.BuildX509Certificate(k.reader, base)
		if err != nil {
			k.warnf("certificate record at offset %d: %v", offset, err)
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// DumpPublicKeys enumerates every public key record.
func (k *Keychain) DumpPublicKeys() ([]records.KeyRecord, error) {
	_, live, err := k.container.Table(catalog.RecordPublicKey)
	if err == container.ErrTableNotFound {
		k.warnf("no public key table")
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	out := make([]records.KeyRecord, 0, len(live))
	for _, offset := range live {
		base, err := k.container.RecordBase(catalog.RecordPublicKey, offset)
		if err != nil {
			k.warnf("public key record base: %v", err)
			continue
		}
		rec, err := records.BuildPublicKey(k.reader, base, k.logger)
		if err != nil {
			k.warnf("public key record at offset %d: %v", offset, err)
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// DumpPrivateKeys enumerates every private key record. Key material is the
// locked sentinel rather than raw bytes whenever the handle is locked.
func (k *Keychain) DumpPrivateKeys() ([]records.KeyRecord, error) {
	_, live, err := k.container.Table(catalog.RecordPrivateKey)
	if err == container.ErrTableNotFound {
		k.warnf("no private key table")
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	out := make([]records.KeyRecord, 0, len(live))
	for _, offset := range live {
		base, err := k.container.RecordBase(catalog.RecordPrivateKey, offset)
		if err != nil {
			k.warnf("private key record base: %v", err)
			continue
		}
		rec, err := records.BuildPrivateKey(k.reader, base, k.masterKey, k.logger)
		if err != nil {
			k.warnf("private key record at offset %d: %v", offset, err)
			continue
		}
		if rec.Locked {
			rec.KeyMaterial = []byte(LockedSentinel)
		}
		out = append(out, rec)
	}
	return out, nil
}

// DumpKeychainPasswordHash renders the crack-ready hash string. Available
// even when locked: it requires only the DB blob, never decryption.
func (k *Keychain) DumpKeychainPasswordHash() (string, error) {
	if !k.dbBlobFound {
		return "", fmt.Errorf("keychain: no metadata table to extract a hash from")
	}
	ciphertext, err := k.reader.Slice(k.dbBlobBase()+k.dbBlob.StartCryptoBlob, k.dbBlob.TotalLength-k.dbBlob.StartCryptoBlob)
	if err != nil {
		return "", fmt.Errorf("keychain: db blob ciphertext region: %w", err)
	}
	return hashformat.Format(k.dbBlob.Salt[:], k.dbBlob.IV[:], ciphertext), nil
}
