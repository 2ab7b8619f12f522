// Package healthcheck probes enrichment sources' health endpoints once per
// Run call, feeding the result into each source's circuit breaker so a run
// against an already-down service doesn't have to burn through a timeout
// per record first; cmd/collator does not call Run. Adapted from
// pkg/cache/healthcheck's upstream polling loop, narrowed to a one-shot
// probe (enrichment sources are queried for the lifetime of one run, not
// monitored continuously like a long-lived cache server's upstreams).
package healthcheck

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/romtool/collator/pkg/circuitbreaker"
)

// HTTPDoer is satisfied by *http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Probe is one source's health endpoint plus the breaker its result
// should prime.
type Probe struct {
	Name    string
	URL     string
	Breaker *circuitbreaker.CircuitBreaker
}

// Run issues a GET against every probe's URL and, for any that fail or
// don't return 200, forces that probe's breaker open so the first real
// enrichment call skips straight to CACHE-MISS-style degradation instead
// of attempting (and timing out on) a known-down service.
func Run(ctx context.Context, doer HTTPDoer, probes []Probe) {
	log := zerolog.Ctx(ctx)

	for _, p := range probes {
		if p.URL == "" || p.Breaker == nil {
			continue
		}

		healthy := probeOne(ctx, doer, p.URL)
		if !healthy {
			log.Warn().Str("source", p.Name).Msg("enrichment source failed health probe; starting with breaker open")
			p.Breaker.ForceOpen()
		}
	}
}

func probeOne(ctx context.Context, doer HTTPDoer, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}

	resp, err := doer.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}
