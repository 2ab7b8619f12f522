// Package sourcei implements the name-to-metadata enrichment lookup
// against Source I, including its title-shortening retry ladder.
package sourcei

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/romtool/collator/pkg/enrichment"
	"github.com/romtool/collator/pkg/romset"
)

// HTTPDoer mirrors sourceh.HTTPDoer; kept as its own local interface so
// sourcei has no import-time dependency on sourceh.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client queries Source I's name-lookup endpoint.
type Client struct {
	BaseURL    string
	HTTPClient HTTPDoer
}

func New(baseURL string, doer HTTPDoer) *Client {
	return &Client{BaseURL: baseURL, HTTPClient: doer}
}

type response struct {
	Title       string `json:"title"`
	Platform    string `json:"platform"`
	Genre       string `json:"genre"`
	ReleaseYear string `json:"release_year"`
	Found       bool   `json:"found"`
}

// LookupByName walks a retry ladder: normalized title plus platform,
// then title alone, then progressively shorter
// titles word-by-word from the end, then a single keyword for very short
// titles. It stops at the first query that returns a found result.
func (c *Client) LookupByName(ctx context.Context, title, platform string) (enrichment.Metadata, error) {
	normalized := romset.NormalizeName(title)

	for _, q := range queryLadder(normalized, platform) {
		md, found, err := c.query(ctx, q.title, q.platform)
		if err != nil {
			return enrichment.Metadata{}, fmt.Errorf("sourcei: %w", err)
		}

		if found {
			return md, nil
		}
	}

	return enrichment.Metadata{}, fmt.Errorf("sourcei: no match for %q", title)
}

type query struct {
	title    string
	platform string
}

// queryLadder builds the ordered list of attempts: full title with
// platform, full title alone, then the title with its trailing word
// dropped on each further step until one word remains.
func queryLadder(title, platform string) []query {
	var ladder []query

	if platform != "" {
		ladder = append(ladder, query{title: title, platform: platform})
	}

	ladder = append(ladder, query{title: title})

	words := strings.Fields(title)
	for n := len(words) - 1; n >= 1; n-- {
		ladder = append(ladder, query{title: strings.Join(words[:n], " ")})
	}

	return ladder
}

func (c *Client) query(ctx context.Context, title, platform string) (enrichment.Metadata, bool, error) {
	v := url.Values{}
	v.Set("title", title)

	if platform != "" {
		v.Set("platform", platform)
	}

	reqURL := c.BaseURL + "/search?" + v.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return enrichment.Metadata{}, false, err
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return enrichment.Metadata{}, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return enrichment.Metadata{}, false, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return enrichment.Metadata{}, false, err
	}

	if !out.Found {
		return enrichment.Metadata{}, false, nil
	}

	return enrichment.Metadata{
		Title:       out.Title,
		Platform:    out.Platform,
		Genre:       out.Genre,
		ReleaseYear: out.ReleaseYear,
		Source:      "I",
	}, true, nil
}
