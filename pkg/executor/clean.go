package executor

import (
	"context"
	"os"

	"github.com/romtool/collator/pkg/romset"
)

func (e *Executor) execClean(ctx context.Context, a romset.Action) error {
	err := os.Remove(a.Destination)
	if os.IsNotExist(err) {
		return nil
	}

	return err
}
