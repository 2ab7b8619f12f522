// Command collator is the batch ROM collection front-end: it resolves
// flags into a config.Config, builds the scan/match/select/plan pipeline,
// and runs it once or on a --watch schedule.
package main

import (
	"context"
	"errors"
	"log"
	"os"

	"github.com/romtool/collator/pkg/catalog"
	"github.com/romtool/collator/pkg/config"
)

func main() {
	os.Exit(realMain())
}

func realMain() int {
	c := New()

	if err := c.Run(context.Background(), os.Args); err != nil {
		log.Printf("error running collator: %s", err)

		var cfgErr *config.Error

		switch {
		case errors.As(err, &cfgErr):
			return 2
		case errors.Is(err, catalog.ErrNoCatalogsUsable):
			return 3
		default:
			return 1
		}
	}

	return 0
}
