package sourcei_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romtool/collator/pkg/enrichment/sourcei"
)

type fakeDoer struct {
	titles   []string
	response *http.Response
}

func (f *fakeDoer) Do(req *http.Request) (*http.Response, error) {
	f.titles = append(f.titles, req.URL.Query().Get("title"))

	title := req.URL.Query().Get("title")
	if title == "super game" {
		return jsonResponse(200, `{"found":true,"title":"Super Game","platform":"SNES"}`), nil
	}

	return jsonResponse(200, `{"found":false}`), nil
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}
}

func TestLookupByNameFindsOnFirstAttempt(t *testing.T) {
	t.Parallel()

	doer := &fakeDoer{}
	c := sourcei.New("https://sourcei.example.com", doer)

	md, err := c.LookupByName(context.Background(), "Super Game", "SNES")
	require.NoError(t, err)
	assert.Equal(t, "Super Game", md.Title)
	assert.Equal(t, "I", md.Source)
	assert.Len(t, doer.titles, 1)
}

func TestLookupByNameWalksRetryLadder(t *testing.T) {
	t.Parallel()

	doer := &fakeDoer{}
	c := sourcei.New("https://sourcei.example.com", doer)

	_, err := c.LookupByName(context.Background(), "Totally Unknown Title Here", "SNES")
	assert.Error(t, err)
	// first attempt with platform, then without, then progressively
	// shorter titles: at least more than one query was attempted.
	assert.Greater(t, len(doer.titles), 1)
}

func TestLookupByNameNoMatchReturnsError(t *testing.T) {
	t.Parallel()

	doer := &fakeDoer{}
	c := sourcei.New("https://sourcei.example.com", doer)

	_, err := c.LookupByName(context.Background(), "Nonexistent", "")
	assert.Error(t, err)
}
