// Package negcache is an in-memory Golomb-coded set of content hashes
// known present as of the last full scan of the checksums table. A
// membership miss proves absence and lets the caller skip a SQL round
// trip outright; a hit is a maybe (false positives are expected) and
// still needs the real lookup.
package negcache

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"sort"
)

// Filter is immutable once built; Build a new one to reflect new data.
type Filter struct {
	k       int
	n       int
	encoded []byte
}

// Empty returns a filter with no members; every MayContain call misses.
func Empty() *Filter {
	return &Filter{k: 1}
}

// Build constructs a filter over keys, deduplicating and sorting their
// hashes internally. keys is typically every sha256 currently present in
// the checksums table.
func Build(keys []string) *Filter {
	if len(keys) == 0 {
		return Empty()
	}

	seen := make(map[uint64]struct{}, len(keys))
	hashes := make([]uint64, 0, len(keys))

	for _, key := range keys {
		h := hashKey(key)
		if _, ok := seen[h]; ok {
			continue
		}

		seen[h] = struct{}{}

		hashes = append(hashes, h)
	}

	sort.Slice(hashes, func(i, j int) bool { return hashes[i] < hashes[j] })

	k := pickK(len(hashes))

	var buf bytes.Buffer

	enc := newGolombEncoder(&buf, k)

	var prev uint64

	for _, h := range hashes {
		_ = enc.encode(h - prev) // bytes.Buffer.WriteByte never errors
		prev = h
	}

	_ = enc.flush()

	return &Filter{k: k, n: len(hashes), encoded: buf.Bytes()}
}

// MayContain reports whether key might be a member. false proves it is
// not; true may be a false positive.
func (f *Filter) MayContain(key string) bool {
	if f == nil || f.n == 0 {
		return false
	}

	target := hashKey(key)
	dec := newGolombDecoder(bytes.NewReader(f.encoded), f.k)

	var cum uint64

	for i := 0; i < f.n; i++ {
		delta, err := dec.decode()
		if err != nil {
			return true // short/corrupt read: fail open, let the real lookup decide
		}

		cum += delta

		switch {
		case cum == target:
			return true
		case cum > target:
			return false
		}
	}

	return false
}

// Len returns the number of distinct members the filter was built from.
func (f *Filter) Len() int {
	if f == nil {
		return 0
	}

	return f.n
}

func hashKey(key string) uint64 {
	sum := sha256.Sum256([]byte(key))

	return binary.BigEndian.Uint64(sum[:8])
}

// pickK chooses the Rice parameter so the mean gap between sorted hashes
// over the full 64-bit space is close to 2^k, per the standard Golomb-Rice
// sizing rule for a set of n items out of an M-item universe.
func pickK(n int) int {
	if n < 2 {
		return 1
	}

	mean := (uint64(1) << 63) / uint64(n)

	k := 0
	for mean > 1 {
		mean >>= 1
		k++
	}

	if k < 1 {
		k = 1
	}

	if k > 63 {
		k = 63
	}

	return k
}
