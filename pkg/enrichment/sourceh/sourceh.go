// Package sourceh implements the checksum-to-metadata enrichment lookup
// against Source H.
package sourceh

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/romtool/collator/pkg/enrichment"
	"github.com/romtool/collator/pkg/romset"
)

// HTTPDoer is satisfied by *http.Client; a module-level injection point
// so tests can supply a deterministic fake instead of touching the
// network.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client queries Source H's checksum-lookup endpoint.
type Client struct {
	BaseURL    string
	HTTPClient HTTPDoer
	MaxRetries int
	BaseDelay  time.Duration
}

// New returns a Client with conservative retry defaults.
func New(baseURL string, doer HTTPDoer) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: doer,
		MaxRetries: 3,
		BaseDelay:  250 * time.Millisecond,
	}
}

type response struct {
	Title       string `json:"title"`
	Platform    string `json:"platform"`
	Genre       string `json:"genre"`
	ReleaseYear string `json:"release_year"`
}

// LookupByDigest queries by the strongest available digest, preferring
// SHA-1, then MD5, then SHA-256; CRC32 alone is never sent since it is
// too weak a key for a third-party lookup.
func (c *Client) LookupByDigest(ctx context.Context, digest romset.Digest) (enrichment.Metadata, error) {
	algo, value := strongestDigest(digest)
	if value == "" {
		return enrichment.Metadata{}, fmt.Errorf("sourceh: no usable digest")
	}

	url := fmt.Sprintf("%s/lookup/%s/%s", c.BaseURL, algo, value)

	var out response

	if err := doWithRetry(ctx, c.HTTPClient, c.MaxRetries, c.BaseDelay, url, &out); err != nil {
		return enrichment.Metadata{}, fmt.Errorf("sourceh: %w", err)
	}

	return enrichment.Metadata{
		Title:       out.Title,
		Platform:    out.Platform,
		Genre:       out.Genre,
		ReleaseYear: out.ReleaseYear,
		Source:      "H",
	}, nil
}

func strongestDigest(d romset.Digest) (algo, value string) {
	if d.SHA1 != "" {
		return "sha1", d.SHA1
	}

	if d.MD5 != "" {
		return "md5", d.MD5
	}

	if d.SHA256 != "" {
		return "sha256", d.SHA256
	}

	return "", ""
}

// doWithRetry issues a GET against url, retrying failures other than a
// 404 with exponential backoff: at most maxRetries retries after the
// first attempt.
func doWithRetry(ctx context.Context, doer HTTPDoer, maxRetries int, baseDelay time.Duration, url string, out interface{}) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := baseDelay << uint(attempt-1)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}

		resp, err := doer.Do(req)
		if err != nil {
			lastErr = err

			continue
		}

		func() {
			defer resp.Body.Close()

			if resp.StatusCode == http.StatusNotFound {
				lastErr = fmt.Errorf("not found")

				return
			}

			if resp.StatusCode >= 500 {
				lastErr = fmt.Errorf("server error: %d", resp.StatusCode)

				return
			}

			if resp.StatusCode != http.StatusOK {
				lastErr = fmt.Errorf("unexpected status: %d", resp.StatusCode)

				return
			}

			lastErr = json.NewDecoder(resp.Body).Decode(out)
		}()

		if lastErr == nil {
			return nil
		}

		if resp.StatusCode == http.StatusNotFound {
			return lastErr
		}
	}

	return lastErr
}
