package zipfile_test

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romtool/collator/pkg/archive"
	"github.com/romtool/collator/pkg/archive/zipfile"
)

func buildFixture(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fixture.zip")

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := zip.NewWriter(f)

	entry, err := w.Create("game.rom")
	require.NoError(t, err)
	_, err = entry.Write([]byte("rom contents"))
	require.NoError(t, err)

	require.NoError(t, w.Close())

	return path
}

func TestZipListReturnsMembers(t *testing.T) {
	t.Parallel()

	z, err := zipfile.Open(buildFixture(t))
	require.NoError(t, err)
	defer z.Close()

	assert.Equal(t, archive.KindZip, z.Kind())

	members, err := z.List(context.Background())
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "game.rom", members[0].Name)
}

func TestZipOpenReturnsMemberContents(t *testing.T) {
	t.Parallel()

	z, err := zipfile.Open(buildFixture(t))
	require.NoError(t, err)
	defer z.Close()

	rc, err := z.Open(context.Background(), "game.rom")
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "rom contents", string(data))
}

func TestZipOpenMissingMemberErrors(t *testing.T) {
	t.Parallel()

	z, err := zipfile.Open(buildFixture(t))
	require.NoError(t, err)
	defer z.Close()

	_, err = z.Open(context.Background(), "missing.rom")
	assert.Error(t, err)
}
