// Package crypto implements the keychain's two-stage 3DES-CBC unwrap: the
// PBKDF2-HMAC-SHA1 master-key derivation, the DES3-CBC primitive that
// doubles as the "wrong password" oracle via its padding check, and the
// CMS-style two-stage key unwrap shared by the symmetric-key map build and
// the private-key unwrap.
package crypto

import (
	"crypto/cipher"
	"crypto/des"
	"crypto/sha1"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// BlockSize is the 3DES block size.
	BlockSize = 8
	// KeyLen is the 3DES key length used throughout the keychain format.
	KeyLen = 24
	// PBKDF2Iterations and PBKDF2KeyLen match the keychain's master-key
	// derivation exactly: 1000 rounds of HMAC-SHA1, 24-byte output.
	PBKDF2Iterations = 1000
	PBKDF2KeyLen      = 24
)

// MagicCMSIV is the fixed first-stage IV used by Apple's CMS-style key
// wrap, applied before the record's own IV in the two-stage unwrap.
var MagicCMSIV = [8]byte{0x4A, 0xDD, 0xA2, 0x2C, 0x79, 0xE8, 0x21, 0x05}

// DeriveMasterKey derives the PBKDF2-HMAC-SHA1 master key candidate from a
// user password and the DB blob's salt. This candidate is not itself the
// wrapping key: the DB blob's own ciphertext must still be decrypted with it
// under the blob's IV (Decrypt3DES) to recover the wrapping key.
func DeriveMasterKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, PBKDF2Iterations, PBKDF2KeyLen, sha1.New)
}

// Decrypt3DES decrypts data with 3DES-CBC under key/iv and strips
// PKCS-style padding (final byte p, 1<=p<=8, all of the last p bytes equal
// p). Any failure - empty input, a length that isn't a positive multiple
// of BlockSize, or bad padding - returns (nil, false) rather than an error.
// This is deliberate: a decrypt under the wrong key fails the padding check
// with probability ~1-1/256, which is the keychain's built-in "wrong
// password" detector and must never be special-cased away.
func Decrypt3DES(key, iv, data []byte) ([]byte, bool) {
	if len(data) == 0 || len(data)%BlockSize != 0 {
		return nil, false
	}
	block, err := des.NewTripleDESCipher(normalizeKey(key))
	if err != nil {
		return nil, false
	}
	mode := cipher.NewCBCDecrypter(block, iv)
	plain := make([]byte, len(data))
	mode.CryptBlocks(plain, data)

	pad := int(plain[len(plain)-1])
	if pad < 1 || pad > BlockSize {
		return nil, false
	}
	for _, b := range plain[len(plain)-pad:] {
		if int(b) != pad {
			return nil, false
		}
	}
	return plain[:len(plain)-pad], true
}

// normalizeKey expands a 16-byte 2-key 3DES key to 24 bytes (K1||K2||K1);
// any other length is passed through for des.NewTripleDESCipher to
// validate.
func normalizeKey(key []byte) []byte {
	if len(key) == 16 {
		out := make([]byte, 24)
		copy(out[0:16], key)
		copy(out[16:24], key[0:8])
		return out
	}
	return key
}

// UnwrapCMS performs the two-stage CMS-style key unwrap used both to build
// the wrapping-key map from the symmetric-key table and to unwrap a
// private-key record's key material:
//
//  1. decrypt ciphertext with wrappingKey under MagicCMSIV
//  2. take the first 32 bytes of that plaintext (or fewer, if it decrypted
//     to less than 32 bytes) and reverse them
//  3. decrypt only that reversed 32-byte (or shorter) span with wrappingKey
//     under recordIV - any bytes past the first 32 are never fed to the
//     second decrypt
//
// The reversal/second-stage span is capped at 32 bytes; this is the one
// primitive both call sites share so it cannot drift between them.
func UnwrapCMS(wrappingKey, recordIV, ciphertext []byte) ([]byte, bool) {
	stage1, ok := Decrypt3DES(wrappingKey, MagicCMSIV[:], ciphertext)
	if !ok || len(stage1) == 0 {
		return nil, false
	}

	revLen := 32
	if len(stage1) < revLen {
		revLen = len(stage1)
	}
	reversed := make([]byte, revLen)
	copy(reversed, stage1[:revLen])
	for i, j := 0, revLen-1; i < j; i, j = i+1, j-1 {
		reversed[i], reversed[j] = reversed[j], reversed[i]
	}

	return Decrypt3DES(wrappingKey, recordIV, reversed)
}
