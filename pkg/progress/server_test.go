package progress_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romtool/collator/pkg/progress"
)

func TestServerStatusReturnsRingSnapshot(t *testing.T) {
	t.Parallel()

	ring := progress.NewRingSink(4)
	ring.Publish(progress.Event{Path: "a.rom", Phase: progress.PhaseCompleted})

	srv := progress.NewServer(zerolog.Nop(), ring, nil)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var events []progress.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 1)
	assert.Equal(t, "a.rom", events[0].Path)
}

func TestServerMetricsEndpointResponds(t *testing.T) {
	t.Parallel()

	srv := progress.NewServer(zerolog.Nop(), progress.NewRingSink(1), nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
