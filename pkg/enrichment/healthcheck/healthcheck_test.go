package healthcheck_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romtool/collator/pkg/circuitbreaker"
	"github.com/romtool/collator/pkg/enrichment/healthcheck"
)

type fakeDoer struct {
	statusByURL map[string]int
}

func (f *fakeDoer) Do(req *http.Request) (*http.Response, error) {
	status, ok := f.statusByURL[req.URL.String()]
	if !ok {
		status = http.StatusNotFound
	}

	return &http.Response{StatusCode: status, Body: http.NoBody}, nil
}

func TestRunForcesBreakerOpenOnFailure(t *testing.T) {
	t.Parallel()

	doer := &fakeDoer{statusByURL: map[string]int{
		"https://h.example.com/health": http.StatusOK,
		"https://i.example.com/health": http.StatusInternalServerError,
	}}

	breakerH := circuitbreaker.New(0, 0)
	breakerI := circuitbreaker.New(0, 0)

	healthcheck.Run(context.Background(), doer, []healthcheck.Probe{
		{Name: "H", URL: "https://h.example.com/health", Breaker: breakerH},
		{Name: "I", URL: "https://i.example.com/health", Breaker: breakerI},
	})

	assert.True(t, breakerH.AllowRequest())
	assert.False(t, breakerI.AllowRequest())
}

func TestRunSkipsEmptyProbes(t *testing.T) {
	t.Parallel()

	doer := &fakeDoer{statusByURL: map[string]int{}}

	require.NotPanics(t, func() {
		healthcheck.Run(context.Background(), doer, []healthcheck.Probe{
			{Name: "empty", URL: "", Breaker: nil},
		})
	})
}
