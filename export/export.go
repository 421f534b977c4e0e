// Package export writes dumped keychain records to individual files on
// disk, mirroring the original tool's write_to_disk/FileName/FileExt
// convention: one file per record, named from its print name, extensioned
// by record kind, with a numeric suffix inserted on a name collision.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Record is the minimal shape export needs from a dumped record.
type Record interface {
	// ExportName returns the record's raw (unfiltered) print name.
	ExportName() string
	// ExportKind returns the extension tag ("key", "pub", "crt", "txt").
	ExportKind() string
	// ExportPayload returns the bytes to write and whether the record has
	// anything exportable at all.
	ExportPayload() ([]byte, bool)
}

// FileName keeps only alphanumeric characters from the record's print
// name, exactly as the original tool's FileName property does.
func FileName(r Record) string {
	var b strings.Builder
	for _, c := range r.ExportName() {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			b.WriteRune(c)
		}
	}
	return b.String()
}

// FileExt returns the dotted extension for the record's kind.
func FileExt(r Record) string {
	switch r.ExportKind() {
	case "key":
		return ".key"
	case "pub":
		return ".pub"
	case "crt":
		return ".crt"
	default:
		return ".txt"
	}
}

// Write writes the record's exportable payload to dir, returning the path
// written. A name collision gets a numeric suffix inserted before the
// extension ("name.1.ext", "name.2.ext", ...), same as the original tool.
// A record with nothing exportable is reported via the ok return, not an
// error: that is a property of the record (e.g. an empty certificate),
// not an I/O failure.
func Write(dir string, r Record) (path string, ok bool, err error) {
	payload, exportable := r.ExportPayload()
	if !exportable {
		return "", false, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", false, fmt.Errorf("export: create directory %s: %w", dir, err)
	}

	stem, ext := FileName(r), FileExt(r)
	name := stem + ext
	for i := 1; fileExists(filepath.Join(dir, name)); i++ {
		name = fmt.Sprintf("%s.%d%s", stem, i, ext)
	}

	path = filepath.Join(dir, name)
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return "", false, fmt.Errorf("export: write %s: %w", path, err)
	}
	return path, true, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
