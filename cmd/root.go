// Package cmd is the command-line entry point: a cobra root command with
// persistent credential/output flags shared by dump, export, and selftest.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "1.0.0"

var (
	fixturePath    string
	password       string
	hexKey         string
	unlockFilePath string
	jsonOutput     bool
	verbose        bool
)

var rootCmd = &cobra.Command{
	Use:   "keychainkit",
	Short: "Offline forensic reader for legacy Apple .keychain files",
	Long: `keychainkit v` + version + `
Parses a legacy Apple keychain database file and, given a credential,
unlocks and decrypts the items inside it.

This tool supports:
  - Enumerating generic/internet/AppleShare passwords, certificates, and keys
  - Unlocking with a password, a raw hex master key, or an unlock file
  - Extracting a crack-ready password hash without any credential at all
  - Exporting unlocked secrets to individual files
  - Running a fixed self-test battery against a fixture file`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&fixturePath, "file", "f", "",
		"path to the .keychain file to open")
	rootCmd.PersistentFlags().StringVarP(&password, "password", "p", "",
		"password to derive the master key from")
	rootCmd.PersistentFlags().StringVar(&hexKey, "key", "",
		"hex-encoded 24-byte master key, bypassing password derivation")
	rootCmd.PersistentFlags().StringVar(&unlockFilePath, "unlock-file", "",
		"path to an unlock-file holding the master key")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"emit machine-readable JSON instead of console tables")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"log warnings and debug traces from the parser to stderr")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func requireFixture() error {
	if fixturePath == "" {
		return fmt.Errorf("a fixture file is required: use -f/--file")
	}
	return nil
}
