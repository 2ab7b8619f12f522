// Package match implements the Matcher: joining scanned raw records
// against the Catalog Index via a five-tier lookup order.
package match

import (
	"github.com/romtool/collator/pkg/catalog"
	"github.com/romtool/collator/pkg/romset"
)

// Match pairs one scanned record with one catalog entry it matched.
type Match struct {
	Record romset.RawRecord
	Entry  romset.Entry
	// Tier names which lookup tier produced this match, for diagnostics.
	Tier string
}

// One runs the match order against a single record and returns every
// catalog entry that matched at the first successful tier (multiple
// catalog entries may share a ROM, so all matches at that tier are kept;
// a record is matched on the first successful lookup).
// A record with zero matches is reported via ok=false so the caller can
// route it to Enrichment.
func One(idx *catalog.Index, r romset.RawRecord) (matches []Match, ok bool) {
	if r.Digest.SHA256 != "" {
		if es := idx.LookupSHA256(r.Digest.SHA256); len(es) > 0 {
			return toMatches(r, es, "sha256"), true
		}
	}

	if r.Digest.SHA1 != "" {
		if es := idx.LookupSHA1(r.Digest.SHA1); len(es) > 0 {
			return toMatches(r, es, "sha1"), true
		}
	}

	if r.Digest.MD5 != "" {
		if es := idx.LookupMD5(r.Digest.MD5); len(es) > 0 {
			return toMatches(r, es, "md5"), true
		}
	}

	if r.Digest.CRC32 != "" {
		if es := idx.LookupCRC32Size(r.Digest.CRC32, r.Size); len(es) > 0 {
			return toMatches(r, es, "crc32+size"), true
		}
	}

	if es := idx.LookupNameSize(r.DisplayName(), r.Size); len(es) > 0 {
		return toMatches(r, es, "name+size"), true
	}

	return nil, false
}

func toMatches(r romset.RawRecord, entries []romset.Entry, tier string) []Match {
	out := make([]Match, len(entries))
	for i, e := range entries {
		out[i] = Match{Record: r, Entry: e, Tier: tier}
	}

	return out
}

// All runs One over every record and partitions the results into matched
// (keyed by catalog name + entry name, so the Plan Builder can group
// candidates per Catalog Entry) and unmatched. It performs no I/O and
// holds no shared mutable state, so callers are free to shard `records`
// across a worker pool and merge the partial Result values themselves;
// All itself just runs sequentially over whatever slice it's handed.
type Result struct {
	Matched   []Match
	Unmatched []romset.RawRecord
}

func All(idx *catalog.Index, records []romset.RawRecord) Result {
	var res Result

	for _, r := range records {
		if ms, ok := One(idx, r); ok {
			res.Matched = append(res.Matched, ms...)
		} else {
			res.Unmatched = append(res.Unmatched, r)
		}
	}

	return res
}
