// Package container navigates the nested binary keychain structure: file
// header, schema, table directory, and per-table record-offset lists. None
// of this depends on knowing a record's size in advance; every offset is
// discovered by walking the container.
package container

import (
	"fmt"

	"keychainkit/keychain/bytesreader"
	"keychainkit/keychain/layout"
)

// Logger receives structural warnings and debug traces during navigation.
// The zero value (nil) is valid: every call site nil-checks before use, so
// a caller may always pass nil instead of a NopLogger.
type Logger interface {
	Warnf(format string, args ...any)
	Debugf(format string, args ...any)
}

// ErrTableNotFound is returned by Table when no table of the requested
// type exists in the schema.
var ErrTableNotFound = fmt.Errorf("container: table not found")

// Container is an opened, navigable keychain file. It never mutates the
// underlying buffer and is safe to share for concurrent reads once built.
type Container struct {
	Reader      *bytesreader.Reader
	Header      layout.DatabaseHeader
	TableOffset []uint32 // schema-relative order, as stored in the file
	tableIndex  map[uint32]int
	logger      Logger
}

// Load parses buf into a Container. A signature mismatch is warn-only: the
// navigator still attempts to parse the rest of the file, opening it in a
// locked state rather than refusing it outright. Any other structural
// failure - truncated header, truncated schema, out-of-bounds table
// directory - aborts and returns an error, since there is nothing sound
// left to parse.
func Load(buf []byte, logger Logger) (*Container, error) {
	r := bytesreader.New(buf)
	header, err := layout.DecodeDatabaseHeader(r)
	if err != nil {
		return nil, fmt.Errorf("container: truncated header: %w", err)
	}
	if !header.SignatureValid() && logger != nil {
		logger.Warnf("keychain signature does not match %q; parsing anyway", string(layout.KeychainSignature[:]))
	}

	schema, err := layout.DecodeSchemaHeader(r, header.SchemaOffset)
	if err != nil {
		return nil, fmt.Errorf("container: truncated schema: %w", err)
	}

	tableListBase := layout.DatabaseHeaderSize + layout.SchemaHeaderSize
	offsets := make([]uint32, schema.TableCount)
	for i := range offsets {
		v, err := r.U32BE(uint32(tableListBase) + uint32(i)*4)
		if err != nil {
			return nil, fmt.Errorf("container: truncated table directory: %w", err)
		}
		offsets[i] = v
	}

	c := &Container{
		Reader:      r,
		Header:      header,
		TableOffset: offsets,
		logger:      logger,
	}
	if err := c.buildTableIndex(); err != nil {
		return nil, err
	}
	return c, nil
}

// buildTableIndex reads every table's header once and records table-id ->
// position in TableOffset. Table order in the file is not fixed, so every
// lookup by well-known type constant must go through this index.
func (c *Container) buildTableIndex() error {
	c.tableIndex = make(map[uint32]int, len(c.TableOffset))
	for i, off := range c.TableOffset {
		base := uint32(layout.DatabaseHeaderSize) + off
		h, err := layout.DecodeTableHeader(c.Reader, base)
		if err != nil {
			return fmt.Errorf("container: truncated table header at index %d: %w", i, err)
		}
		c.tableIndex[h.TableID] = i
	}
	return nil
}

// Table returns the header and the live record offsets (relative to the
// table) for tableType. ErrTableNotFound is a routine condition: callers
// treat it as "log a warning, return an empty enumeration", never a hard
// failure.
func (c *Container) Table(tableType uint32) (layout.TableHeader, []uint32, error) {
	idx, ok := c.tableIndex[tableType]
	if !ok {
		return layout.TableHeader{}, nil, ErrTableNotFound
	}
	return c.tableAtOffset(c.TableOffset[idx])
}

func (c *Container) tableAtOffset(tableOffset uint32) (layout.TableHeader, []uint32, error) {
	base := uint32(layout.DatabaseHeaderSize) + tableOffset
	header, err := layout.DecodeTableHeader(c.Reader, base)
	if err != nil {
		return layout.TableHeader{}, nil, fmt.Errorf("container: table header: %w", err)
	}

	recordOffsetBase := base + layout.TableHeaderSize
	cursor := c.Reader.NewCursor(recordOffsetBase)

	var live []uint32
	for uint32(len(live)) < header.RecordCount {
		v, err := cursor.NextU32()
		if err != nil {
			return header, nil, fmt.Errorf("container: record-offset scan exhausted buffer before finding %d records (found %d): %w", header.RecordCount, len(live), err)
		}
		// A live slot is nonzero and 4-byte aligned; anything else is a
		// deleted/free slot (tombstone or padding) and is skipped without
		// decrementing the live count.
		if v != 0 && v%4 == 0 {
			live = append(live, v)
		}
	}
	return header, live, nil
}

// RecordBase computes the absolute file offset of a record given its table
// type and its (table-relative) record offset.
func (c *Container) RecordBase(tableType uint32, recordOffset uint32) (uint32, error) {
	idx, ok := c.tableIndex[tableType]
	if !ok {
		return 0, ErrTableNotFound
	}
	return layout.DatabaseHeaderSize + c.TableOffset[idx] + recordOffset, nil
}
