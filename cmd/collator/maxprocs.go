package main

import (
	"context"

	"github.com/rs/zerolog"
	"go.uber.org/automaxprocs/maxprocs"
)

// autoMaxProcs sets runtime.GOMAXPROCS from the container CPU quota once
// at process start. A batch run doesn't live long enough for the quota
// to change mid-process, unlike a long-lived server, so a single call
// replaces a periodic re-check loop.
func autoMaxProcs(ctx context.Context) {
	log := zerolog.Ctx(ctx)

	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
		log.Info().Msgf(format, args...)
	})); err != nil {
		log.Warn().Err(err).Msg("failed to set GOMAXPROCS")
	}
}
