package catalog

import (
	"fmt"

	"github.com/romtool/collator/pkg/romset"
)

// nameSizeKey is the lookup key for the (normalized-name, size) index.
type nameSizeKey struct {
	name string
	size int64
}

// Index is the read-only lookup table built once from the catalog files
// and shared by the concurrent Matcher workers. Per Design Note, the
// digest and name/size maps hold integer offsets into a flat entries
// arena rather than pointers into each other, so the structure has no
// cycles and is trivially safe to share read-only across goroutines.
type Index struct {
	entries []romset.Entry

	bySHA256  map[string][]int
	bySHA1    map[string][]int
	byMD5     map[string][]int
	byCRC32   map[string][]int
	byNameSize map[nameSizeKey][]int
}

// NewIndex builds an Index from the entries parsed from zero or more
// catalog files. Entries from skipped (parse-failed) catalogs are simply
// absent from the slice the caller passes in.
func NewIndex(entries []romset.Entry) *Index {
	idx := &Index{
		entries:    entries,
		bySHA256:   make(map[string][]int),
		bySHA1:     make(map[string][]int),
		byMD5:      make(map[string][]int),
		byCRC32:    make(map[string][]int),
		byNameSize: make(map[nameSizeKey][]int),
	}

	for i, e := range entries {
		for _, r := range e.ROMs {
			// ROMs publish SHA-256 far less often than SHA-1/MD5/CRC32
			// in practice, but the map exists uniformly for all four so
			// the Matcher's tier order needs no type switch.
			if r.SHA1 != "" {
				idx.bySHA1[r.SHA1] = append(idx.bySHA1[r.SHA1], i)
			}

			if r.MD5 != "" {
				idx.byMD5[r.MD5] = append(idx.byMD5[r.MD5], i)
			}

			if r.CRC32 != "" {
				idx.byCRC32[r.CRC32] = append(idx.byCRC32[r.CRC32], i)
			}

			key := nameSizeKey{name: romset.NormalizeName(r.Name), size: r.Size}
			idx.byNameSize[key] = append(idx.byNameSize[key], i)
		}
	}

	return idx
}

// Entries returns the flat arena of parsed entries, in catalog order.
func (idx *Index) Entries() []romset.Entry { return idx.entries }

// EntryAt returns the entry at arena index i.
func (idx *Index) EntryAt(i int) romset.Entry { return idx.entries[i] }

// LookupSHA256 finds entries with a ROM member whose SHA-256 matches.
// The Index never indexes by SHA-256 internally, since catalogs rarely
// publish it (it's used mainly for cache hits) — callers that only have
// a SHA-256 should resolve it through the Cache to a SHA-1/MD5 before
// calling Index lookups. Since NewIndex never fills the SHA-256 map, this
// always returns an empty result.
func (idx *Index) LookupSHA256(sha256 string) []romset.Entry {
	return idx.resolve(idx.bySHA256[sha256])
}

func (idx *Index) LookupSHA1(sha1 string) []romset.Entry {
	return idx.resolve(idx.bySHA1[sha1])
}

func (idx *Index) LookupMD5(md5 string) []romset.Entry {
	return idx.resolve(idx.byMD5[md5])
}

func (idx *Index) LookupCRC32Size(crc32 string, size int64) []romset.Entry {
	matches := idx.resolve(idx.byCRC32[crc32])

	out := matches[:0:0]

	for _, e := range matches {
		for _, r := range e.ROMs {
			if r.CRC32 == crc32 && r.Size == size {
				out = append(out, e)

				break
			}
		}
	}

	return out
}

func (idx *Index) LookupNameSize(name string, size int64) []romset.Entry {
	key := nameSizeKey{name: romset.NormalizeName(name), size: size}

	return idx.resolve(idx.byNameSize[key])
}

func (idx *Index) resolve(ids []int) []romset.Entry {
	if len(ids) == 0 {
		return nil
	}

	out := make([]romset.Entry, len(ids))
	for i, id := range ids {
		out[i] = idx.entries[id]
	}

	return out
}

// Stats summarizes the index for diagnostics/reporting.
type Stats struct {
	Entries int
	ROMs    int
}

func (idx *Index) Stats() Stats {
	s := Stats{Entries: len(idx.entries)}
	for _, e := range idx.entries {
		s.ROMs += len(e.ROMs)
	}

	return s
}

func (s Stats) String() string {
	return fmt.Sprintf("%d entries, %d ROMs", s.Entries, s.ROMs)
}
