// Package output renders dumped keychain records as console tables, one
// renderer per record kind, reusing the color-style conventions the
// original tool's table printer used for its own domain.
package output

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"keychainkit/keychain/records"
)

var (
	colorHeader  = text.Colors{text.FgCyan, text.Bold}
	colorLabel   = text.Colors{text.FgYellow}
	colorValue   = text.Colors{text.FgWhite}
	colorSuccess = text.Colors{text.FgGreen}
	colorError   = text.Colors{text.FgRed}
	colorWarn    = text.Colors{text.FgYellow}
)

func getTableStyle() table.Style {
	style := table.StyleRounded
	style.Color.Header = colorHeader
	style.Color.Row = text.Colors{text.FgWhite}
	style.Color.RowAlternate = text.Colors{text.FgHiWhite}
	style.Options.SeparateRows = false
	return style
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(getTableStyle())
	t.Style().Options.SeparateRows = false
	return t
}

// lockColor returns the locked indicator colored red, or the plaintext
// colored green, so a locked row always stands out in the console.
func lockColor(locked bool, plaintext string) string {
	if locked {
		return colorError.Sprint(plaintext)
	}
	return colorSuccess.Sprint(plaintext)
}

// PrintGenericPasswords renders the generic password table.
func PrintGenericPasswords(items []records.GenericPassword) {
	fmt.Println()
	t := newTable()
	t.SetTitle("GENERIC PASSWORDS")
	t.AppendHeader(table.Row{"Name", "Account", "Service", "Password"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Colors: colorLabel, WidthMin: 20},
		{Number: 2, Colors: colorValue, WidthMin: 15},
		{Number: 3, Colors: colorValue, WidthMin: 20},
		{Number: 4, WidthMin: 25},
	})
	if len(items) == 0 {
		t.AppendRow(table.Row{"-", "-", "-", colorWarn.Sprint("(none found)")})
	}
	for _, p := range items {
		t.AppendRow(table.Row{p.PrintName, p.Account, p.Service, lockColor(p.Locked, p.Plaintext)})
	}
	t.Render()
}

// PrintInternetPasswords renders the internet password table.
func PrintInternetPasswords(items []records.InternetPassword) {
	fmt.Println()
	t := newTable()
	t.SetTitle("INTERNET PASSWORDS")
	t.AppendHeader(table.Row{"Name", "Account", "Server", "Protocol", "Password"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Colors: colorLabel, WidthMin: 18},
		{Number: 2, Colors: colorValue, WidthMin: 15},
		{Number: 3, Colors: colorValue, WidthMin: 20},
		{Number: 4, Colors: colorValue, WidthMin: 10},
		{Number: 5, WidthMin: 25},
	})
	if len(items) == 0 {
		t.AppendRow(table.Row{"-", "-", "-", "-", colorWarn.Sprint("(none found)")})
	}
	for _, p := range items {
		t.AppendRow(table.Row{p.PrintName, p.Account, p.Server, p.Protocol, lockColor(p.Locked, p.Plaintext)})
	}
	t.Render()
}

// PrintAppleSharePasswords renders the AppleShare password table.
func PrintAppleSharePasswords(items []records.AppleSharePassword) {
	fmt.Println()
	t := newTable()
	t.SetTitle("APPLESHARE PASSWORDS")
	t.AppendHeader(table.Row{"Name", "Account", "Server", "Password"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Colors: colorLabel, WidthMin: 18},
		{Number: 2, Colors: colorValue, WidthMin: 15},
		{Number: 3, Colors: colorValue, WidthMin: 20},
		{Number: 4, WidthMin: 25},
	})
	if len(items) == 0 {
		t.AppendRow(table.Row{"-", "-", "-", colorWarn.Sprint("(none found)")})
	}
	for _, p := range items {
		t.AppendRow(table.Row{p.PrintName, p.Account, p.Server, lockColor(p.Locked, p.Plaintext)})
	}
	t.Render()
}

// PrintX509Certificates renders the certificate table.
func PrintX509Certificates(items []records.X509Certificate) {
	fmt.Println()
	t := newTable()
	t.SetTitle("X.509 CERTIFICATES")
	t.AppendHeader(table.Row{"Name", "Alias", "Size (bytes)"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Colors: colorLabel, WidthMin: 25},
		{Number: 2, Colors: colorValue, WidthMin: 20},
		{Number: 3, WidthMin: 12},
	})
	if len(items) == 0 {
		t.AppendRow(table.Row{"-", "-", "-"})
	}
	for _, c := range items {
		t.AppendRow(table.Row{c.PrintName, c.Alias, len(c.Raw)})
	}
	t.Render()
}

// PrintKeys renders a public- or private-key table; only the title differs
// by kind, the column layout is shared.
func PrintKeys(title string, items []records.KeyRecord) {
	fmt.Println()
	t := newTable()
	t.SetTitle(title)
	t.AppendHeader(table.Row{"Name", "Label", "Type", "Size (bits)", "Status"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Colors: colorLabel, WidthMin: 20},
		{Number: 2, Colors: colorValue, WidthMin: 15},
		{Number: 3, Colors: colorValue, WidthMin: 12},
		{Number: 4, WidthMin: 10},
		{Number: 5, WidthMin: 12},
	})
	if len(items) == 0 {
		t.AppendRow(table.Row{"-", "-", "-", "-", colorWarn.Sprint("(none found)")})
	}
	for _, k := range items {
		status := colorSuccess.Sprint("available")
		if k.Locked {
			status = colorError.Sprint("locked")
		}
		t.AppendRow(table.Row{k.PrintName, k.Label, k.KeyType, k.KeySizeInBits, status})
	}
	t.Render()
}

// PrintKeychainPasswordHash prints the crack-ready hash string.
func PrintKeychainPasswordHash(hash string) {
	fmt.Println()
	t := newTable()
	t.SetTitle("KEYCHAIN PASSWORD HASH")
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 1, WidthMin: 80}})
	t.AppendRow(table.Row{hash})
	t.Render()
}

// PrintError prints an error message.
func PrintError(msg string) {
	fmt.Println(colorError.Sprintf("✗ Error: %s", msg))
}

// PrintSuccess prints a success message.
func PrintSuccess(msg string) {
	fmt.Println(colorSuccess.Sprintf("✓ %s", msg))
}

// PrintWarning prints a warning message.
func PrintWarning(msg string) {
	fmt.Println(colorWarn.Sprintf("⚠ %s", msg))
}
