package hashformat

import (
	"regexp"
	"testing"
)

var hashPattern = regexp.MustCompile(`^\$keychain\$\*[0-9a-f]{40}\*[0-9a-f]{16}\*[0-9a-f]+$`)

func TestFormatMatchesExpectedShape(t *testing.T) {
	salt := make([]byte, 20)
	iv := make([]byte, 8)
	ciphertext := make([]byte, 48)
	for i := range salt {
		salt[i] = byte(i)
	}
	for i := range iv {
		iv[i] = byte(i + 1)
	}
	for i := range ciphertext {
		ciphertext[i] = byte(i + 2)
	}

	got := Format(salt, iv, ciphertext)
	if !hashPattern.MatchString(got) {
		t.Fatalf("Format() = %q, does not match expected pattern", got)
	}
}

func TestFormatEmptyCiphertextStillMatchesSaltIV(t *testing.T) {
	salt := make([]byte, 20)
	iv := make([]byte, 8)
	got := Format(salt, iv, nil)
	want := "$keychain$*" + "0000000000000000000000000000000000000000" + "*" + "0000000000000000" + "*"
	if got != want {
		t.Fatalf("Format() = %q, want %q", got, want)
	}
}
