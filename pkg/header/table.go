// Package header implements the header-aware detection policy: a
// table-driven probe of (magic-byte pattern, skip length, extension hint)
// descriptors, shipped as data rather than code per the spec's Design
// Note. The table below is the versioned default; NewTable builds a
// probe-ready Table from any other descriptor slice a caller supplies.
package header

import (
	"bytes"
	"strings"

	"github.com/romtool/collator/pkg/romset"
)

// Descriptor is one row of the header table.
type Descriptor struct {
	Name string
	// Magic is matched against the leading bytes of a file at offset 0.
	Magic []byte
	// Skip is the number of leading bytes excluded from the hashable
	// payload when Magic matches.
	Skip int
	// Extensions are lowercase, dot-free extension hints consulted before
	// the (more expensive, already-buffered) magic-byte confirmation.
	Extensions []string
}

// DefaultTable is the built-in, versioned header table. Version 1.
//
//nolint:gochecknoglobals
var DefaultTable = []Descriptor{
	{
		Name:       "ines",
		Magic:      []byte{0x4E, 0x45, 0x53, 0x1A}, // "NES\x1a"
		Skip:       16,
		Extensions: []string{"nes"},
	},
	{
		Name:       "fds",
		Magic:      []byte{0x46, 0x44, 0x53, 0x1A}, // "FDS\x1a"
		Skip:       16,
		Extensions: []string{"fds"},
	},
	{
		Name:       "lynx",
		Magic:      []byte{0x4C, 0x59, 0x4E, 0x58}, // "LYNX"
		Skip:       64,
		Extensions: []string{"lnx"},
	},
	{
		Name:       "atari7800",
		Magic:      []byte{0x01, 0x83},
		Skip:       128,
		Extensions: []string{"a78"},
	},
	{
		Name:       "pce",
		Magic:      nil, // no reliable magic; extension-only detection
		Skip:       512,
		Extensions: []string{"pce"},
	},
}

// Table is a probe-ready header table: an extension index plus the
// ordered descriptor list for magic-byte confirmation.
type Table struct {
	descriptors []Descriptor
	byExt       map[string][]Descriptor
}

// NewTable builds a Table from a descriptor slice (DefaultTable, or one
// loaded from an external data file).
func NewTable(descriptors []Descriptor) *Table {
	t := &Table{
		descriptors: descriptors,
		byExt:       make(map[string][]Descriptor),
	}

	for _, d := range descriptors {
		for _, ext := range d.Extensions {
			t.byExt[ext] = append(t.byExt[ext], d)
		}
	}

	return t
}

// Default is the Table built from DefaultTable.
func Default() *Table { return NewTable(DefaultTable) }

// Probe inspects a filename and the leading bytes already buffered by the
// caller (the Scanner reads ahead before dispatching to the Digest
// Kernel) and returns the matching header descriptor, if any.
func Probe(t *Table, filename string, lead []byte) *romset.Header {
	ext := strings.ToLower(strings.TrimPrefix(extOf(filename), "."))

	for _, d := range t.byExt[ext] {
		if headerMatches(d, lead) {
			return toRomsetHeader(d)
		}
	}

	// Extension didn't hit (or file has no recognized extension): fall
	// back to a full magic-byte scan so headers survive a rename.
	for _, d := range t.descriptors {
		if len(d.Magic) == 0 {
			continue
		}

		if headerMatches(d, lead) {
			return toRomsetHeader(d)
		}
	}

	return nil
}

func headerMatches(d Descriptor, lead []byte) bool {
	if len(d.Magic) == 0 {
		// Extension-only descriptors (e.g. pce) match unconditionally
		// once their extension has routed here.
		return true
	}

	if len(lead) < len(d.Magic) {
		return false
	}

	return bytes.Equal(lead[:len(d.Magic)], d.Magic)
}

func toRomsetHeader(d Descriptor) *romset.Header {
	return &romset.Header{Name: d.Name, Skip: d.Skip}
}

func extOf(filename string) string {
	for i := len(filename) - 1; i >= 0; i-- {
		if filename[i] == '.' {
			return filename[i:]
		}

		if filename[i] == '/' {
			break
		}
	}

	return ""
}
