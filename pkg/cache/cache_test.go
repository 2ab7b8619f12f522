package cache_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romtool/collator/pkg/cache"
	"github.com/romtool/collator/pkg/romset"
)

func openTest(t *testing.T, opts cache.Options) *cache.Cache {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "cache.db")

	c, err := cache.Open(context.Background(), "sqlite:///"+dbPath, opts)
	require.NoError(t, err)

	t.Cleanup(func() { _ = c.Close() })

	return c
}

func TestPutThenGetChecksumsRoundTrips(t *testing.T) {
	t.Parallel()

	c := openTest(t, cache.Options{})
	ctx := context.Background()

	row := cache.DigestRow{
		Source: "scan",
		Size:   2048,
		Digest: romset.Digest{
			CRC32:  "0d4a1185",
			MD5:    "5eb63bbbe01eeed093cb22bb8f5acdc3",
			SHA1:   "2aae6c35c94fcfb415dbe95f408b9ce91ee846ed",
			SHA256: "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9",
		},
	}

	require.NoError(t, c.PutChecksums(ctx, row))

	got, ok, err := c.GetChecksums(ctx, row.Digest.SHA256)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, row.Digest, got.Digest)
}

func TestGetChecksumsMissIsNotAnError(t *testing.T) {
	t.Parallel()

	c := openTest(t, cache.Options{})

	_, ok, err := c.GetChecksums(context.Background(), "deadbeef")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPutThenGetEnrichmentRoundTripsThroughCompression(t *testing.T) {
	t.Parallel()

	c := openTest(t, cache.Options{})
	ctx := context.Background()

	sha := "cccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccc"
	payload := []byte(`{"title":"Chrono Trigger","platform":"Super Nintendo Entertainment System"}`)

	require.NoError(t, c.PutEnrichment(ctx, sha, "thegamesdb", payload))

	got, ok, err := c.GetEnrichment(ctx, sha, "thegamesdb")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, payload, got)
}

func TestGetEnrichmentMissingSourceMisses(t *testing.T) {
	t.Parallel()

	c := openTest(t, cache.Options{})
	ctx := context.Background()

	sha := "dddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddd"

	require.NoError(t, c.PutEnrichment(ctx, sha, "thegamesdb", []byte("a")))

	_, ok, err := c.GetEnrichment(ctx, sha, "screenscraper")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNegativeCacheSkipsLookupForKnownAbsentKey(t *testing.T) {
	t.Parallel()

	c := openTest(t, cache.Options{NegativeCache: true})
	ctx := context.Background()

	require.NoError(t, c.PutChecksums(ctx, cache.DigestRow{
		Source: "scan",
		Digest: romset.Digest{SHA256: "1111111111111111111111111111111111111111111111111111111111111111"},
	}))
	require.NoError(t, c.RefreshNegativeCache(ctx))

	_, ok, err := c.GetChecksums(ctx, "2222222222222222222222222222222222222222222222222222222222222222")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNegativeCacheOverlayCoversKeysWrittenSinceLastRefresh(t *testing.T) {
	t.Parallel()

	c := openTest(t, cache.Options{NegativeCache: true})
	ctx := context.Background()

	require.NoError(t, c.RefreshNegativeCache(ctx))

	sha := "3333333333333333333333333333333333333333333333333333333333333333"

	require.NoError(t, c.PutChecksums(ctx, cache.DigestRow{Source: "scan", Digest: romset.Digest{SHA256: sha}}))

	got, ok, err := c.GetChecksums(ctx, sha)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sha, got.Digest.SHA256)
}

func TestOpenOrDegradeReturnsNilOnUnsupportedURL(t *testing.T) {
	t.Parallel()

	c := cache.OpenOrDegrade(context.Background(), "not-a-real-scheme://nope", cache.Options{})
	assert.Nil(t, c)
}

func TestOpenOrDegradeReturnsNilOnEmptyURL(t *testing.T) {
	t.Parallel()

	c := cache.OpenOrDegrade(context.Background(), "", cache.Options{})
	assert.Nil(t, c)
}

func TestNilCacheIsSafeToUse(t *testing.T) {
	t.Parallel()

	var c *cache.Cache

	ctx := context.Background()

	_, ok, err := c.GetChecksums(ctx, "anything")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.PutChecksums(ctx, cache.DigestRow{Digest: romset.Digest{SHA256: "x"}}))

	_, ok, err = c.GetEnrichment(ctx, "x", "source")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.PutEnrichment(ctx, "x", "source", []byte("payload")))
	require.NoError(t, c.RefreshNegativeCache(ctx))
	require.NoError(t, c.Close())
}
