package torrentzip_test

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romtool/collator/pkg/torrentzip"
)

func readAll(t *testing.T, path string) []byte {
	t.Helper()

	b, err := os.ReadFile(path)
	require.NoError(t, err)

	return b
}

func TestWriteFileIsDeterministicAcrossInputOrder(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	a := []torrentzip.Entry{
		{Name: "b.nes", Data: bytes.NewBufferString("second file payload")},
		{Name: "a.nes", Data: bytes.NewBufferString("first file payload")},
	}
	b := []torrentzip.Entry{
		{Name: "a.nes", Data: bytes.NewBufferString("first file payload")},
		{Name: "b.nes", Data: bytes.NewBufferString("second file payload")},
	}

	pathA := filepath.Join(dir, "a.zip")
	pathB := filepath.Join(dir, "b.zip")

	require.NoError(t, torrentzip.WriteFile(context.Background(), pathA, a))
	require.NoError(t, torrentzip.WriteFile(context.Background(), pathB, b))

	assert.Equal(t, readAll(t, pathA), readAll(t, pathB))
}

func TestWriteFileProducesReadableZip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "out.zip")

	entries := []torrentzip.Entry{
		{Name: "Game.nes", Data: bytes.NewBufferString("rom payload bytes")},
	}

	require.NoError(t, torrentzip.WriteFile(context.Background(), path, entries))

	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()

	require.Len(t, zr.File, 1)
	assert.Equal(t, "Game.nes", zr.File[0].Name)

	rc, err := zr.File[0].Open()
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "rom payload bytes", string(data))
}

func TestWriteFileSortsEntriesByLowercaseName(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "sorted.zip")

	entries := []torrentzip.Entry{
		{Name: "Zeta.nes", Data: bytes.NewBufferString("z")},
		{Name: "alpha.nes", Data: bytes.NewBufferString("a")},
		{Name: "Beta.nes", Data: bytes.NewBufferString("b")},
	}

	require.NoError(t, torrentzip.WriteFile(context.Background(), path, entries))

	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()

	require.Len(t, zr.File, 3)
	assert.Equal(t, "alpha.nes", zr.File[0].Name)
	assert.Equal(t, "Beta.nes", zr.File[1].Name)
	assert.Equal(t, "Zeta.nes", zr.File[2].Name)
}

func TestWriteFileRemovesPartialOnFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "missing-dir", "out.zip")

	err := torrentzip.WriteFile(context.Background(), path, []torrentzip.Entry{
		{Name: "a.nes", Data: bytes.NewBufferString("x")},
	})
	assert.Error(t, err)

	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries)
}
