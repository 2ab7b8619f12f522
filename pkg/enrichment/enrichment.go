// Package enrichment looks up metadata for unmatched records against two
// advisory external services. Enrichment never feeds back into matching
// or selection: it has no import of pkg/match or pkg/selector, a
// layering rule enforced structurally rather than by convention.
package enrichment

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/romtool/collator/pkg/circuitbreaker"
	"github.com/romtool/collator/pkg/romset"
)

// Metadata is the advisory record either external source returns.
type Metadata struct {
	Title       string
	Platform    string
	Genre       string
	ReleaseYear string
	Source      string // "H" or "I"
}

// Mode controls how eagerly Enrichment is attempted.
type Mode string

const (
	ModeBestEffort Mode = "best-effort"
	ModeAlways     Mode = "always"
	ModeOff        Mode = "off"
)

// ErrCacheOnlyMiss is the sentinel recorded as a CACHE-MISS diagnostic
// when --cache-only forbids a network call that would otherwise have
// been attempted. Lookup also returns it, without that diagnostic, when
// Mode is ModeOff.
var ErrCacheOnlyMiss = errors.New("enrichment: cache-only: no network call attempted")

// SourceH looks up metadata by checksum, preferring the strongest
// available digest.
type SourceH interface {
	LookupByDigest(ctx context.Context, digest romset.Digest) (Metadata, error)
}

// SourceI looks up metadata by name, applying its own retry ladder of
// progressively shorter titles internally.
type SourceI interface {
	LookupByName(ctx context.Context, title, platform string) (Metadata, error)
}

// Enricher orchestrates both sources, each behind its own circuit
// breaker, honoring --cache-only and --I-mode.
type Enricher struct {
	H SourceH
	I SourceI

	breakerH *circuitbreaker.CircuitBreaker
	breakerI *circuitbreaker.CircuitBreaker

	CacheOnly bool
	Mode      Mode
}

// New builds an Enricher with the default circuit breaker thresholds
// (pkg/circuitbreaker.DefaultThreshold/DefaultTimeout).
func New(h SourceH, i SourceI, cacheOnly bool, mode Mode) *Enricher {
	return &Enricher{
		H:         h,
		I:         i,
		breakerH:  circuitbreaker.New(0, 0),
		breakerI:  circuitbreaker.New(0, 0),
		CacheOnly: cacheOnly,
		Mode:      mode,
	}
}

// Lookup enriches one unmatched record: Source H first if a digest is
// available and healthy, else Source I by display name. Both calls are
// advisory; a failure here never changes whether the record is matched.
func (e *Enricher) Lookup(ctx context.Context, r romset.RawRecord, platformHint string) (Metadata, error) {
	log := zerolog.Ctx(ctx)

	if e.Mode == ModeOff {
		return Metadata{}, ErrCacheOnlyMiss
	}

	if e.CacheOnly {
		log.Info().Str("record", r.DisplayName()).Msg("CACHE-MISS (cache-only)")

		return Metadata{}, ErrCacheOnlyMiss
	}

	if e.H != nil && !r.Digest.Empty() && e.breakerH.AllowRequest() {
		md, err := e.H.LookupByDigest(ctx, r.Digest)
		if err == nil {
			e.breakerH.RecordSuccess()

			return md, nil
		}

		e.breakerH.RecordFailure()
		log.Warn().Err(err).Str("record", r.DisplayName()).Msg("source H lookup failed")
	}

	if e.I != nil && e.breakerI.AllowRequest() {
		md, err := e.I.LookupByName(ctx, r.DisplayName(), platformHint)
		if err == nil {
			e.breakerI.RecordSuccess()

			return md, nil
		}

		e.breakerI.RecordFailure()
		log.Warn().Err(err).Str("record", r.DisplayName()).Msg("source I lookup failed")
	}

	if e.Mode == ModeAlways {
		return Metadata{}, errors.New("enrichment: both sources unavailable")
	}

	return Metadata{}, errors.New("enrichment: no metadata found")
}
