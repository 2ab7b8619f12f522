package romset

import "time"

// Header describes a leading byte run discovered at offset 0 of a file
// that should be excluded from the hashable payload.
type Header struct {
	Name   string // e.g. "ines", "fds", "lynx"
	Offset int    // always 0 in the current table, kept for future formats
	Skip   int    // bytes to discard before hashing
}

// RawRecord is the unit emitted by the Scanner. Immutable once emitted.
type RawRecord struct {
	// SourcePath is the absolute path to the file on disk.
	SourcePath string

	// ArchivePath is set when the record came from inside an archive; it
	// is the absolute path to the enclosing archive file.
	ArchivePath string

	// EntryName is the inner archive entry name, set iff ArchivePath is set.
	EntryName string

	// Size is the byte size of the hashable payload, after header skip.
	Size int64

	Digest    Digest
	Header    *Header
	ModTime   time.Time
	Unhashable bool // true if DigestFailed occurred; may still match by (name,size)
}

// DisplayName returns the file or entry name used for (name,size) matching
// and for log/report output.
func (r RawRecord) DisplayName() string {
	if r.EntryName != "" {
		return r.EntryName
	}

	return r.SourcePath
}

// Key returns the record's identity key: SHA-256 of its hashable payload
// when known, else a path-based fallback (never used for matching, only
// for diagnostics/logging of unhashable records).
func (r RawRecord) Key() string {
	if r.Digest.SHA256 != "" {
		return r.Digest.SHA256
	}

	if r.ArchivePath != "" {
		return r.ArchivePath + "!" + r.EntryName
	}

	return r.SourcePath
}
