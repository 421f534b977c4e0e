package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"keychainkit/export"
	"keychainkit/keychain/records"
	"keychainkit/output"
)

var exportDir string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export every exportable record to individual files",
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportDir, "out", "o", "./export",
		"directory to write exported files into")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	kc, err := openFixture()
	if err != nil {
		return err
	}

	written := 0
	skipped := 0

	writeAll := func(kind string, items []export.Record) error {
		for _, r := range items {
			path, ok, err := export.Write(exportDir, r)
			if err != nil {
				return fmt.Errorf("exporting %s: %w", kind, err)
			}
			if !ok {
				skipped++
				continue
			}
			written++
			if !jsonOutput {
				output.PrintSuccess(fmt.Sprintf("wrote %s", path))
			}
		}
		return nil
	}

	gp, err := kc.DumpGenericPasswords()
	if err != nil {
		return err
	}
	if err := writeAll("generic password", toExportRecords(gp)); err != nil {
		return err
	}

	ip, err := kc.DumpInternetPasswords()
	if err != nil {
		return err
	}
	if err := writeAll("internet password", toExportRecords(ip)); err != nil {
		return err
	}

	ap, err := kc.DumpAppleSharePasswords()
	if err != nil {
		return err
	}
	if err := writeAll("appleshare password", toExportRecords(ap)); err != nil {
		return err
	}

	certs, err := kc.DumpX509Certificates()
	if err != nil {
		return err
	}
	if err := writeAll("certificate", toExportRecords(certs)); err != nil {
		return err
	}

	pub, err := kc.DumpPublicKeys()
	if err != nil {
		return err
	}
	if err := writeAll("public key", toExportRecords(pub)); err != nil {
		return err
	}

	priv, err := kc.DumpPrivateKeys()
	if err != nil {
		return err
	}
	if err := writeAll("private key", toExportRecords(priv)); err != nil {
		return err
	}

	if jsonOutput {
		fmt.Printf(`{"written":%d,"skipped":%d}`+"\n", written, skipped)
	} else {
		output.PrintSuccess(fmt.Sprintf("exported %d records (%d skipped as non-exportable)", written, skipped))
	}
	return nil
}

// exportable is satisfied by every records type by way of the
// ExportName/ExportKind/ExportPayload methods at the bottom of records.go;
// toExportRecords upcasts a typed slice to export.Record uniformly.
type exportable interface {
	export.Record
}

func toExportRecords[T exportable](items []T) []export.Record {
	out := make([]export.Record, 0, len(items))
	for _, it := range items {
		out = append(out, it)
	}
	return out
}

var (
	_ exportable = records.GenericPassword{}
	_ exportable = records.InternetPassword{}
	_ exportable = records.AppleSharePassword{}
	_ exportable = records.X509Certificate{}
	_ exportable = records.KeyRecord{}
)
