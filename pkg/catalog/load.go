package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/romtool/collator/pkg/romset"
)

// ErrNoCatalogsUsable is returned by Load when every catalog path failed
// to parse.
var ErrNoCatalogsUsable = errors.New("no catalogs usable")

// Load parses every catalog file named by paths (each already expanded
// from any glob by the caller) and returns a built Index. A per-file parse
// failure is logged as a warning and the file is skipped; Load only fails
// when nothing parsed.
func Load(ctx context.Context, paths []string) (*Index, []error, error) {
	var (
		entries []romset.Entry
		warns   []error
	)

	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			warns = append(warns, &CatalogParseError{Catalog: p, Cause: err})

			zerolog.Ctx(ctx).Warn().Err(err).Str("catalog", p).Msg("skipping unreadable catalog")

			continue
		}

		name := filepath.Base(p)

		es, err := Parse(name, f)

		_ = f.Close()

		if err != nil {
			warns = append(warns, err)

			zerolog.Ctx(ctx).Warn().Err(err).Str("catalog", p).Msg("skipping unparseable catalog")

			continue
		}

		entries = append(entries, es...)
	}

	if len(paths) > 0 && len(entries) == 0 {
		return nil, warns, ErrNoCatalogsUsable
	}

	return NewIndex(entries), warns, nil
}
