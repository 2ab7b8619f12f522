// Package digest implements the Digest Kernel: a streaming,
// multi-algorithm hasher with optional header-skip support. One Kernel is
// single-threaded; callers achieve parallelism by instantiating one per
// worker goroutine, the same single-goroutine-per-call posture a local
// file store takes toward concurrency.
package digest

import (
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"io"

	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"

	"github.com/romtool/collator/pkg/romset"
)

// DefaultBufferSize is the fixed-size read buffer used by Sum.
const DefaultBufferSize = 1 << 20 // 1 MiB

// DigestFailed wraps an underlying I/O error encountered while hashing.
type DigestFailed struct {
	Cause error
}

func (e *DigestFailed) Error() string {
	return fmt.Sprintf("digest failed: %s", e.Cause)
}

func (e *DigestFailed) Unwrap() error {
	return e.Cause
}

// Kernel reads a stream once, updating every requested algorithm in
// lock-step. Not safe for concurrent use; create one per worker.
type Kernel struct {
	bufSize int
}

// New returns a Kernel with the given read-buffer size, or DefaultBufferSize
// when size <= 0.
func New(size int) *Kernel {
	if size <= 0 {
		size = DefaultBufferSize
	}

	return &Kernel{bufSize: size}
}

// Sum reads r exactly once, skipping the header's Skip leading bytes (if
// hdr is non-nil) before updating any requested algorithm, and returns the
// resulting Digest. Short reads (stream ending early) are not an error.
func (k *Kernel) Sum(r io.Reader, want romset.Set, hdr *romset.Header) (romset.Digest, error) {
	var (
		crcH  hash.Hash32
		md5H  hash.Hash
		sha1H hash.Hash
		sha256H hash.Hash
	)

	if want.Has(romset.CRC32) {
		crcH = crc32.NewIEEE()
	}

	if want.Has(romset.MD5) {
		md5H = md5.New()
	}

	if want.Has(romset.SHA1) {
		sha1H = sha1.New()
	}

	// SHA-256 is computed only when want asks for it; the caller decides
	// (pkg/scanner passes Options.Want, which defaults to romset.All), so
	// the Kernel itself stays a pure function of `want`.
	if want.Has(romset.SHA256) {
		sha256H = sha256.New()
	}

	skip := 0
	if hdr != nil {
		skip = hdr.Skip
	}

	buf := make([]byte, k.bufSize)

	var total int64

	for skip > 0 {
		n := skip
		if n > len(buf) {
			n = len(buf)
		}

		rn, err := io.ReadFull(r, buf[:n])
		skip -= rn

		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return romset.Digest{}, nil
			}

			return romset.Digest{}, &DigestFailed{Cause: err}
		}
	}

	writers := make([]io.Writer, 0, 4)
	if crcH != nil {
		writers = append(writers, crcH)
	}

	if md5H != nil {
		writers = append(writers, md5H)
	}

	if sha1H != nil {
		writers = append(writers, sha1H)
	}

	if sha256H != nil {
		writers = append(writers, sha256H)
	}

	mw := io.MultiWriter(writers...)

	for {
		n, err := r.Read(buf)
		if n > 0 {
			total += int64(n)

			if _, werr := mw.Write(buf[:n]); werr != nil {
				return romset.Digest{}, &DigestFailed{Cause: werr}
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}

			return romset.Digest{}, &DigestFailed{Cause: err}
		}
	}

	d := romset.Digest{Size: total}

	if crcH != nil {
		d.CRC32 = hex.EncodeToString(crcH.Sum(nil))
	}

	if md5H != nil {
		d.MD5 = hex.EncodeToString(md5H.Sum(nil))
	}

	if sha1H != nil {
		d.SHA1 = hex.EncodeToString(sha1H.Sum(nil))
	}

	if sha256H != nil {
		d.SHA256 = hex.EncodeToString(sha256H.Sum(nil))
	}

	return d, nil
}
