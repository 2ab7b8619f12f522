package token_test

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romtool/collator/pkg/token"
)

func TestResolveSingleValuedTokens(t *testing.T) {
	t.Parallel()

	ctx := token.Context{
		DatName:    "Nintendo - Nintendo Entertainment System",
		Category:   "Platformer",
		OutputBase: "Super Game",
		OutputExt:  "nes",
	}

	paths, warnings := token.Resolve("{platformShort}/{genre}/{outputName}.{outputExt}", ctx)
	require.Empty(t, warnings)
	require.Len(t, paths, 1)
	assert.Equal(t, "NES/Platformer/Super Game.nes", paths[0])
}

func TestResolveExpandsMultiValuedCartesian(t *testing.T) {
	t.Parallel()

	ctx := token.Context{
		Regions:   []string{"USA", "Europe"},
		Languages: []string{"en", "fr"},
	}

	paths, warnings := token.Resolve("{region}/{language}", ctx)
	require.Empty(t, warnings)

	sort.Strings(paths)
	assert.Equal(t, []string{
		"Europe/en", "Europe/fr", "USA/en", "USA/fr",
	}, paths)
}

func TestResolveFlagsUnknownTokenButKeepsItVerbatim(t *testing.T) {
	t.Parallel()

	paths, warnings := token.Resolve("{bogus}/{outputName}.rom", token.Context{OutputBase: "x"})
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "bogus")
	require.Len(t, paths, 1)
	assert.Equal(t, "{bogus}/x.rom", paths[0])
}

func TestResolveWithNoTokensReturnsTemplateUnchanged(t *testing.T) {
	t.Parallel()

	paths, warnings := token.Resolve("flat/output.rom", token.Context{})
	assert.Empty(t, warnings)
	assert.Equal(t, []string{"flat/output.rom"}, paths)
}

func TestResolveProfileMatchesSubstring(t *testing.T) {
	t.Parallel()

	p, ok := token.ResolveProfile("Nintendo - Super Nintendo Entertainment System")
	require.True(t, ok)
	assert.Equal(t, "SNES", p.ShortName)
}

func TestResolveProfileNoMatch(t *testing.T) {
	t.Parallel()

	_, ok := token.ResolveProfile("Commodore 64")
	assert.False(t, ok)
}
