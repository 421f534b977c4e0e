package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"keychainkit/output"
)

var dumpKind string

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Enumerate records from a keychain file",
	RunE:  runDump,
}

func init() {
	dumpCmd.Flags().StringVar(&dumpKind, "kind", "all",
		"record kind to dump: generic, internet, appleshare, cert, pubkey, privkey, hash, all")
	rootCmd.AddCommand(dumpCmd)
}

func runDump(cmd *cobra.Command, args []string) error {
	kc, err := openFixture()
	if err != nil {
		return err
	}

	dict := map[string]any{}
	wantAll := dumpKind == "all"

	if wantAll || dumpKind == "generic" {
		items, err := kc.DumpGenericPasswords()
		if err != nil {
			return fmt.Errorf("dumping generic passwords: %w", err)
		}
		if jsonOutput {
			dict["generic_passwords"] = toDicts(items)
		} else {
			output.PrintGenericPasswords(items)
		}
	}
	if wantAll || dumpKind == "internet" {
		items, err := kc.DumpInternetPasswords()
		if err != nil {
			return fmt.Errorf("dumping internet passwords: %w", err)
		}
		if jsonOutput {
			dict["internet_passwords"] = toDicts(items)
		} else {
			output.PrintInternetPasswords(items)
		}
	}
	if wantAll || dumpKind == "appleshare" {
		items, err := kc.DumpAppleSharePasswords()
		if err != nil {
			return fmt.Errorf("dumping appleshare passwords: %w", err)
		}
		if jsonOutput {
			dict["appleshare_passwords"] = toDicts(items)
		} else {
			output.PrintAppleSharePasswords(items)
		}
	}
	if wantAll || dumpKind == "cert" {
		items, err := kc.DumpX509Certificates()
		if err != nil {
			return fmt.Errorf("dumping certificates: %w", err)
		}
		if jsonOutput {
			dict["certificates"] = toDicts(items)
		} else {
			output.PrintX509Certificates(items)
		}
	}
	if wantAll || dumpKind == "pubkey" {
		items, err := kc.DumpPublicKeys()
		if err != nil {
			return fmt.Errorf("dumping public keys: %w", err)
		}
		if jsonOutput {
			dict["public_keys"] = toDicts(items)
		} else {
			output.PrintKeys("PUBLIC KEYS", items)
		}
	}
	if wantAll || dumpKind == "privkey" {
		items, err := kc.DumpPrivateKeys()
		if err != nil {
			return fmt.Errorf("dumping private keys: %w", err)
		}
		if jsonOutput {
			dict["private_keys"] = toDicts(items)
		} else {
			output.PrintKeys("PRIVATE KEYS", items)
		}
	}
	if wantAll || dumpKind == "hash" {
		hash, err := kc.DumpKeychainPasswordHash()
		if err != nil {
			if !jsonOutput {
				output.PrintWarning(err.Error())
			}
		} else if jsonOutput {
			dict["password_hash"] = hash
		} else {
			output.PrintKeychainPasswordHash(hash)
		}
	}

	if jsonOutput {
		enc, err := json.MarshalIndent(dict, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling json: %w", err)
		}
		fmt.Println(string(enc))
	}
	return nil
}

// dictable is the minimal surface records.ToDict methods satisfy,
// letting toDicts collapse every record slice type into one loop.
type dictable interface {
	ToDict() map[string]any
}

func toDicts[T dictable](items []T) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, it := range items {
		out = append(out, it.ToDict())
	}
	return out
}
