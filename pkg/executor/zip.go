package executor

import (
	"context"

	"github.com/romtool/collator/pkg/romset"
	"github.com/romtool/collator/pkg/torrentzip"
)

func (e *Executor) execZip(ctx context.Context, a romset.Action) error {
	entries := make([]torrentzip.Entry, 0, len(a.ZipMembers))

	var closers []interface{ Close() error }

	defer func() {
		for _, c := range closers {
			c.Close()
		}
	}()

	for _, m := range a.ZipMembers {
		src, err := openSource(ctx, m.Record, e.ScratchDir)
		if err != nil {
			return err
		}

		closers = append(closers, src)

		entries = append(entries, torrentzip.Entry{Name: m.EntryName, Data: src})
	}

	return torrentzip.WriteFile(ctx, a.Destination, entries)
}
