package header_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romtool/collator/pkg/header"
)

func TestProbeMatchesByExtensionThenMagic(t *testing.T) {
	t.Parallel()

	tbl := header.Default()

	lead := append([]byte{0x4E, 0x45, 0x53, 0x1A}, make([]byte, 60)...)

	h := header.Probe(tbl, "Super Mario Bros.nes", lead)
	require.NotNil(t, h)
	assert.Equal(t, "ines", h.Name)
	assert.Equal(t, 16, h.Skip)
}

func TestProbeFallsBackToMagicWithoutExtension(t *testing.T) {
	t.Parallel()

	tbl := header.Default()

	lead := append([]byte{0x4E, 0x45, 0x53, 0x1A}, make([]byte, 60)...)

	h := header.Probe(tbl, "renamed.bin", lead)
	require.NotNil(t, h)
	assert.Equal(t, "ines", h.Name)
}

func TestProbeNoMatch(t *testing.T) {
	t.Parallel()

	tbl := header.Default()

	h := header.Probe(tbl, "plain.bin", []byte{0, 0, 0, 0})
	assert.Nil(t, h)
}

func TestProbeExtensionOnlyDescriptor(t *testing.T) {
	t.Parallel()

	tbl := header.Default()

	h := header.Probe(tbl, "game.pce", nil)
	require.NotNil(t, h)
	assert.Equal(t, 512, h.Skip)
}
