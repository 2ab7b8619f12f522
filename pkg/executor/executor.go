// Package executor runs a built plan: walking its Actions, dispatching
// per Kind, and publishing progress.Event structs to a single consumer
// — workers never touch the UI directly, only the bus. Honors a single
// context.Context cancellation: in-flight actions run to completion, no
// new ones start, and the partial result is surfaced but not retried.
package executor

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/romtool/collator/pkg/plan"
	"github.com/romtool/collator/pkg/progress"
	"github.com/romtool/collator/pkg/romset"
)

// Result tallies how a Run went.
type Result struct {
	Succeeded int
	Failed    int
	Skipped   int
	Errors    []error
}

// Executor runs Actions against the filesystem.
type Executor struct {
	Bus         *progress.Bus
	ScratchDir  string
	Concurrency int
}

func New(bus *progress.Bus, scratchDir string, concurrency int) *Executor {
	if concurrency < 1 {
		concurrency = 1
	}

	return &Executor{Bus: bus, ScratchDir: scratchDir, Concurrency: concurrency}
}

// Run executes every live Action in p, up to Concurrency in flight at
// once. Demoted (non-live) actions are counted as Skipped without
// dispatch. Cancellation stops new dispatches; actions already running
// finish before Run returns.
func (e *Executor) Run(ctx context.Context, p *plan.Plan) Result {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.Concurrency)

	var result Result

	resultCh := make(chan error, len(p.Actions))

	for _, action := range p.Actions {
		action := action

		if !action.Live() {
			result.Skipped++

			continue
		}

		select {
		case <-gctx.Done():
			result.Skipped++

			continue
		default:
		}

		g.Go(func() error {
			err := e.dispatch(gctx, p, action)
			resultCh <- err

			return nil
		})
	}

	_ = g.Wait()
	close(resultCh)

	for err := range resultCh {
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, err)
		} else {
			result.Succeeded++
		}
	}

	return result
}

func (e *Executor) dispatch(ctx context.Context, p *plan.Plan, a romset.Action) error {
	e.publish(ctx, a, progress.PhaseStarted, "")

	var err error

	switch a.Kind {
	case romset.ActionCopy:
		err = e.execCopy(ctx, a)
	case romset.ActionMove:
		err = e.execMove(ctx, a)
	case romset.ActionLink:
		err = e.execLink(ctx, a)
	case romset.ActionExtract:
		err = e.execExtract(ctx, a)
	case romset.ActionZipInto:
		err = e.execZip(ctx, a)
	case romset.ActionPatch:
		err = e.execPatch(ctx, a)
	case romset.ActionTestOnly:
		err = e.execTest(ctx, a)
	case romset.ActionEmitReport, romset.ActionEmitCatalog:
		err = e.execEmitDocument(ctx, p, a)
	case romset.ActionEmitPlaylist:
		err = e.execEmitPlaylist(ctx, a)
	case romset.ActionCleanDelete:
		err = e.execClean(ctx, a)
	default:
		err = fmt.Errorf("executor: unhandled action kind %q", a.Kind)
	}

	if err != nil {
		e.publish(ctx, a, progress.PhaseFailed, err.Error())

		return fmt.Errorf("executor: %s %q: %w", a.Kind, a.Destination, err)
	}

	e.publish(ctx, a, progress.PhaseCompleted, "")

	return nil
}

func (e *Executor) publish(ctx context.Context, a romset.Action, phase progress.Phase, message string) {
	if e.Bus == nil {
		return
	}

	e.Bus.Publish(ctx, progress.Event{
		Path:    a.Destination,
		Phase:   phase,
		Message: message,
	})
}
