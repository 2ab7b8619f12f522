package executor

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/romtool/collator/pkg/romset"
)

// atomicWriteFrom copies src's remaining bytes into dstPath via a
// temp-file-in-same-dir-then-rename, the pattern the local store uses
// for every file it writes.
func atomicWriteFrom(dstPath string, src io.Reader) error {
	dir := filepath.Dir(dstPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %q: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(dstPath)+"-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())

		return fmt.Errorf("writing temp file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), dstPath); err != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("renaming into %q: %w", dstPath, err)
	}

	return nil
}

func (e *Executor) execCopy(ctx context.Context, a romset.Action) error {
	src, err := openSource(ctx, a.Source, e.ScratchDir)
	if err != nil {
		return err
	}
	defer src.Close()

	return atomicWriteFrom(a.Destination, src)
}

func (e *Executor) execMove(ctx context.Context, a romset.Action) error {
	if a.Source.ArchivePath != "" {
		// Moving an archive member means copy-then-leave-the-archive-intact:
		// there is nothing meaningful to remove.
		return e.execCopy(ctx, a)
	}

	dir := filepath.Dir(a.Destination)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %q: %w", dir, err)
	}

	if err := os.Rename(a.Source.SourcePath, a.Destination); err == nil {
		return nil
	}

	// Cross-device rename: fall back to copy, then remove the source.
	if err := e.execCopy(ctx, a); err != nil {
		return err
	}

	return os.Remove(a.Source.SourcePath)
}

func (e *Executor) execLink(ctx context.Context, a romset.Action) error {
	if a.Source.ArchivePath != "" {
		// No archive member can be linked directly; materialize a copy.
		return e.execCopy(ctx, a)
	}

	dir := filepath.Dir(a.Destination)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %q: %w", dir, err)
	}

	switch a.LinkMode {
	case romset.LinkHard:
		if err := os.Link(a.Source.SourcePath, a.Destination); err == nil {
			return nil
		}

		return e.execCopy(ctx, a)
	case romset.LinkSymbolic:
		abs, err := filepath.Abs(a.Source.SourcePath)
		if err != nil {
			return err
		}

		if err := os.Symlink(abs, a.Destination); err == nil {
			return nil
		}

		return e.execCopy(ctx, a)
	case romset.LinkReflink:
		if tryReflink(a.Source.SourcePath, a.Destination) {
			return nil
		}

		return e.execCopy(ctx, a)
	default:
		return fmt.Errorf("unknown link mode %q", a.LinkMode)
	}
}

func (e *Executor) execExtract(ctx context.Context, a romset.Action) error {
	src, err := openSource(ctx, a.Source, e.ScratchDir)
	if err != nil {
		return err
	}
	defer src.Close()

	return atomicWriteFrom(a.Destination, src)
}
