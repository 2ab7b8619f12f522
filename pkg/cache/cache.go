// Package cache is the content-keyed persistent store for digests and raw
// enrichment payloads: get_checksums/put_checksums/get_enrichment/
// put_enrichment over two logical tables (checksums, enrichment), both
// keyed by sha256. The SQL itself lives in pkg/cache/store; this package
// adds the negative-cache filter, zstd payload compression and the
// optional S3/MinIO mirror on top. Open failures are meant to be caught
// with OpenOrDegrade and turned into a warning, never fatal.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/romtool/collator/pkg/cache/blobmirror"
	"github.com/romtool/collator/pkg/cache/negcache"
	"github.com/romtool/collator/pkg/cache/store"
	"github.com/romtool/collator/pkg/lock"
)

// Options configures Open.
type Options struct {
	Pool *store.PoolConfig

	// NegativeCache enables the in-memory Golomb-coded absence filter for
	// get_checksums lookups.
	NegativeCache bool

	// Mirror, if non-nil, is validated and dialed as an S3/MinIO mirror
	// for enrichment payloads.
	Mirror *blobmirror.Config

	// Locker serializes store writes. Nil defaults to an in-process
	// local.Locker; pass a pkg/lock/redis.Locker when multiple collator
	// processes share one postgres/mysql cache database.
	Locker lock.Locker
}

// Cache composes the SQL store with a negative-cache filter and an
// optional blob mirror. Every exported method is nil-safe so a caller
// that got nil back from OpenOrDegrade can use it unconditionally as a
// permanently-cold cache.
type Cache struct {
	store  *store.Store
	mirror *blobmirror.Mirror

	negEnabled bool
	negMu      sync.RWMutex
	neg        *negcache.Filter
	negOverlay map[string]struct{}
}

// OpenError wraps any failure from Open.
type OpenError struct {
	Err error
}

func (e *OpenError) Error() string { return fmt.Sprintf("cache: open failed: %v", e.Err) }
func (e *OpenError) Unwrap() error { return e.Err }

// Open dials dbURL, creates the checksums/enrichment tables if missing,
// and optionally dials a blob mirror.
func Open(ctx context.Context, dbURL string, opts Options) (*Cache, error) {
	st, err := store.Open(ctx, dbURL, opts.Pool, opts.Locker)
	if err != nil {
		return nil, &OpenError{Err: err}
	}

	c := &Cache{
		store:      st,
		negEnabled: opts.NegativeCache,
		negOverlay: make(map[string]struct{}),
	}

	if opts.Mirror != nil {
		m, err := blobmirror.New(ctx, *opts.Mirror)
		if err != nil {
			_ = st.Close()

			return nil, &OpenError{Err: err}
		}

		c.mirror = m
	}

	if c.negEnabled {
		if err := c.RefreshNegativeCache(ctx); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("negative cache: initial build failed, starting cold")
		}
	}

	return c, nil
}

// OpenOrDegrade calls Open and, on failure, logs a warning and returns a
// nil *Cache instead of propagating the error.
func OpenOrDegrade(ctx context.Context, dbURL string, opts Options) *Cache {
	if dbURL == "" {
		return nil
	}

	c, err := Open(ctx, dbURL, opts)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("cache unavailable, continuing without a checksum/enrichment cache")

		return nil
	}

	return c
}

// Close releases the underlying database connection. Safe on a nil Cache.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}

	return c.store.Close()
}

// DigestRow mirrors store.DigestRow so callers don't need to import the
// store subpackage directly.
type DigestRow = store.DigestRow

// GetChecksums implements get_checksums(sha256) → DigestRow?. A negative
// cache miss (when enabled) skips the SQL round trip outright.
func (c *Cache) GetChecksums(ctx context.Context, sha256 string) (DigestRow, bool, error) {
	if c == nil {
		return DigestRow{}, false, nil
	}

	if c.negEnabled && !c.mightHaveChecksum(sha256) {
		return DigestRow{}, false, nil
	}

	return c.store.GetChecksums(ctx, sha256)
}

// PutChecksums implements put_checksums(DigestRow): upsert, updated_at
// monotonically advanced.
func (c *Cache) PutChecksums(ctx context.Context, row DigestRow) error {
	if c == nil {
		return nil
	}

	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = time.Now().UTC()
	}

	if err := c.store.PutChecksums(ctx, row); err != nil {
		return err
	}

	c.markPresent(row.Digest.SHA256)

	return nil
}

// GetEnrichment implements get_enrichment(sha256, source) → payload?. A
// local miss falls back to the blob mirror when one is configured.
func (c *Cache) GetEnrichment(ctx context.Context, sha256, source string) ([]byte, bool, error) {
	if c == nil {
		return nil, false, nil
	}

	compressed, ok, err := c.store.GetEnrichment(ctx, sha256, source)
	if err != nil {
		return nil, false, err
	}

	if !ok {
		if c.mirror == nil {
			return nil, false, nil
		}

		mirrored, mok, merr := c.mirror.Get(ctx, sha256, source)
		if merr != nil {
			zerolog.Ctx(ctx).Warn().Err(merr).Str("sha256", sha256).Str("source", source).
				Msg("enrichment blob mirror lookup failed")

			return nil, false, nil
		}

		if !mok {
			return nil, false, nil
		}

		compressed = mirrored
	}

	payload, err := decompressPayload(compressed)
	if err != nil {
		return nil, false, fmt.Errorf("cache: get_enrichment(%q, %q): decompressing payload: %w", sha256, source, err)
	}

	return payload, true, nil
}

// PutEnrichment implements put_enrichment(sha256, source, payload):
// compresses and upserts the payload locally, then mirrors it to
// S3/MinIO when configured. A mirror failure is logged, not fatal — the
// local row is already durable.
func (c *Cache) PutEnrichment(ctx context.Context, sha256, source string, payload []byte) error {
	if c == nil {
		return nil
	}

	compressed, err := compressPayload(payload)
	if err != nil {
		return fmt.Errorf("cache: put_enrichment(%q, %q): compressing payload: %w", sha256, source, err)
	}

	if err := c.store.PutEnrichment(ctx, sha256, source, compressed); err != nil {
		return err
	}

	if c.mirror != nil {
		if err := c.mirror.Put(ctx, sha256, source, compressed); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("sha256", sha256).Str("source", source).
				Msg("enrichment blob mirror write failed")
		}
	}

	return nil
}

// RefreshNegativeCache rebuilds the in-memory absence filter from a full
// scan of the checksums table and clears the since-last-build overlay.
func (c *Cache) RefreshNegativeCache(ctx context.Context) error {
	if c == nil {
		return nil
	}

	keys, err := c.store.AllChecksumKeys(ctx)
	if err != nil {
		return fmt.Errorf("cache: refreshing negative cache: %w", err)
	}

	filter := negcache.Build(keys)

	c.negMu.Lock()
	c.neg = filter
	c.negOverlay = make(map[string]struct{})
	c.negMu.Unlock()

	return nil
}

// mightHaveChecksum consults the negative-cache filter plus the overlay
// of keys written since the last RefreshNegativeCache.
func (c *Cache) mightHaveChecksum(sha256 string) bool {
	c.negMu.RLock()
	defer c.negMu.RUnlock()

	if _, ok := c.negOverlay[sha256]; ok {
		return true
	}

	return c.neg.MayContain(sha256)
}

func (c *Cache) markPresent(sha256 string) {
	if !c.negEnabled {
		return
	}

	c.negMu.Lock()
	c.negOverlay[sha256] = struct{}{}
	c.negMu.Unlock()
}
