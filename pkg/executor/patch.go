package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/romtool/collator/pkg/patch"
	"github.com/romtool/collator/pkg/romset"
)

func (e *Executor) execPatch(ctx context.Context, a romset.Action) error {
	src, err := openSource(ctx, a.Source, e.ScratchDir)
	if err != nil {
		return err
	}
	defer src.Close()

	source, err := io.ReadAll(src)
	if err != nil {
		return fmt.Errorf("reading patch source: %w", err)
	}

	patchData, err := os.ReadFile(a.PatchPath)
	if err != nil {
		return fmt.Errorf("reading patch file %q: %w", a.PatchPath, err)
	}

	out, err := patch.Apply(a.PatchKind, source, patchData)
	if err != nil {
		return fmt.Errorf("applying %s patch: %w", a.PatchKind, err)
	}

	return atomicWriteFrom(a.Destination, bytes.NewReader(out))
}

func (e *Executor) execTest(ctx context.Context, a romset.Action) error {
	src, err := openSource(ctx, a.Source, e.ScratchDir)
	if err != nil {
		return err
	}
	defer src.Close()

	_, err = io.Copy(io.Discard, src)

	return err
}
