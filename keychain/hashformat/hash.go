// Package hashformat renders the keychain's DB blob as a crack-ready hash
// string, in the same format common password-recovery tools already expect.
package hashformat

import "encoding/hex"

// Format builds "$keychain$*<salt_hex>*<iv_hex>*<ciphertext_hex>" from the
// DB blob's salt, IV, and the crypto blob region itself. Available even on
// a locked keychain: no decryption is required to produce it.
func Format(salt, iv, ciphertext []byte) string {
	return "$keychain$*" + hex.EncodeToString(salt) + "*" + hex.EncodeToString(iv) + "*" + hex.EncodeToString(ciphertext)
}
