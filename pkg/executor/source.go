package executor

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/romtool/collator/pkg/archive"
	"github.com/romtool/collator/pkg/archive/sevenzip"
	"github.com/romtool/collator/pkg/archive/zipfile"
	"github.com/romtool/collator/pkg/romset"
)

// openSource resolves a RawRecord to its bytes, transparently extracting
// from an enclosing archive when ArchivePath is set. scratchDir is used
// only by the 7z backend, which has no streaming single-member read.
func openSource(ctx context.Context, r romset.RawRecord, scratchDir string) (io.ReadCloser, error) {
	if r.ArchivePath == "" {
		return os.Open(r.SourcePath)
	}

	kind, ok, err := archive.SniffFile(r.ArchivePath)
	if err != nil {
		return nil, err
	}

	if !ok {
		return nil, fmt.Errorf("executor: could not identify archive format of %q", r.ArchivePath)
	}

	switch kind {
	case archive.KindZip:
		z, err := zipfile.Open(r.ArchivePath)
		if err != nil {
			return nil, err
		}

		rc, err := z.Open(ctx, r.EntryName)
		if err != nil {
			z.Close()

			return nil, err
		}

		return &closeBoth{ReadCloser: rc, outer: z}, nil
	case archive.KindSevenZip:
		dir := filepath.Join(scratchDir, filepath.Base(r.ArchivePath)+".scratch")

		s, err := sevenzip.Open(r.ArchivePath, dir)
		if err != nil {
			return nil, err
		}

		return s.Open(ctx, r.EntryName)
	default:
		return nil, &archive.ErrUnsupportedKind{Kind: kind}
	}
}

// closeBoth closes an archive member reader and then its enclosing
// archive handle.
type closeBoth struct {
	io.ReadCloser
	outer interface{ Close() error }
}

func (c *closeBoth) Close() error {
	err := c.ReadCloser.Close()
	if outerErr := c.outer.Close(); err == nil {
		err = outerErr
	}

	return err
}
