package cmd

import (
	"fmt"
	"os"

	"keychainkit/keychain"
)

// openFixture reads the fixture named by the -f/--file flag and opens it
// with whichever credential flag was supplied, logging through stdLogger
// when -v/--verbose is set.
func openFixture() (*keychain.Keychain, error) {
	if err := requireFixture(); err != nil {
		return nil, err
	}
	buf, err := os.ReadFile(fixturePath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", fixturePath, err)
	}

	opts := []keychain.Option{keychain.WithLogger(newStdLogger(verbose))}
	switch {
	case hexKey != "":
		opts = append(opts, keychain.WithHexKey(hexKey))
	case unlockFilePath != "":
		opts = append(opts, keychain.WithUnlockFile(unlockFilePath))
	case password != "":
		opts = append(opts, keychain.WithPassword(password))
	}

	kc, err := keychain.Open(buf, opts...)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", fixturePath, err)
	}
	return kc, nil
}
