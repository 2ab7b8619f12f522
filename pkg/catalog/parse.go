// Package catalog parses DAT catalog documents and builds the read-only
// lookup index the Matcher joins scanned records against.
package catalog

import (
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/romtool/collator/pkg/romset"
)

// CatalogParseError wraps a parse failure for one catalog file. A
// catalog that fails to parse is skipped with a warning; the run
// continues unless zero catalogs remain usable.
type CatalogParseError struct {
	Catalog string
	Cause   error
}

func (e *CatalogParseError) Error() string {
	return fmt.Sprintf("catalog %q: %s", e.Catalog, e.Cause)
}

func (e *CatalogParseError) Unwrap() error { return e.Cause }

// datafile mirrors the Logiqx DAT XML schema's subset this module reads.
type datafile struct {
	XMLName xml.Name `xml:"datafile"`
	Games   []game   `xml:"game"`
}

type game struct {
	Name        string `xml:"name,attr"`
	Description string `xml:"description"`
	Category    string `xml:"category"`
	ROMs        []rom  `xml:"rom"`
}

type rom struct {
	Name  string `xml:"name,attr"`
	Size  int64  `xml:"size,attr"`
	CRC32 string `xml:"crc,attr"`
	MD5   string `xml:"md5,attr"`
	SHA1  string `xml:"sha1,attr"`
}

var tagPattern = regexp.MustCompile(`\(([^()]*)\)|\[([^\[\]]*)\]`)

// Parse reads one DAT document from r (named catalogName for error
// reporting and for the Entry.CatalogName plan-ordering key) and returns
// its entries. It never returns entries with CatalogParseError set; the
// error is always wrapped as *CatalogParseError.
func Parse(catalogName string, r io.Reader) ([]romset.Entry, error) {
	var df datafile

	dec := xml.NewDecoder(r)
	dec.Strict = false

	if err := dec.Decode(&df); err != nil {
		return nil, &CatalogParseError{Catalog: catalogName, Cause: err}
	}

	entries := make([]romset.Entry, 0, len(df.Games))

	for _, g := range df.Games {
		e := romset.Entry{
			CatalogName: catalogName,
			Name:        g.Name,
			Description: g.Description,
			Category:    g.Category,
		}

		e.Regions, e.Languages, e.Types, e.Revision = parseTags(g.Name)

		for _, r := range g.ROMs {
			e.ROMs = append(e.ROMs, romset.ROM{
				Name:  r.Name,
				Size:  r.Size,
				CRC32: strings.ToLower(r.CRC32),
				MD5:   strings.ToLower(r.MD5),
				SHA1:  strings.ToLower(r.SHA1),
			})
		}

		entries = append(entries, e)
	}

	return entries, nil
}

// knownRegions/knownLanguages are the token vocabularies recognized inside
// a release name's parenthesized groups, e.g. "Super Game (USA) (En,Fr)".
//
//nolint:gochecknoglobals
var (
	knownRegions = map[string]string{
		"usa": "USA", "europe": "Europe", "japan": "Japan", "world": "World",
		"korea": "Korea", "brazil": "Brazil", "australia": "Australia",
		"china": "China", "asia": "Asia", "germany": "Germany",
		"france": "France", "spain": "Spain", "italy": "Italy",
	}

	knownTypes = map[string]string{
		"beta": "beta", "proto": "proto", "demo": "demo",
		"unl": "unlicensed", "bios": "bios", "sample": "sample",
		"unlicensed": "unlicensed", "device": "device",
		"b": "baddump", "baddump": "baddump", "o": "overdump",
		"verified": "verified",
	}

	langPattern = regexp.MustCompile(`^[A-Za-z]{2}(,[A-Za-z]{2})*$`)
	revPattern  = regexp.MustCompile(`(?i)^rev\s*[0-9a-z.]+$|^v[0-9][0-9.]*$`)
)

// parseTags extracts region/language/type/revision tokens from a release
// name's parenthesized and bracketed groups. This is deliberately a small
// hand-rolled scanner rather than a single regex: groups can repeat and
// carry comma-joined sub-tokens that a single capture pass can't cleanly
// pull apart.
func parseTags(name string) (regions, languages, types []string, revision string) {
	for _, m := range tagPattern.FindAllStringSubmatch(name, -1) {
		group := m[1]
		if group == "" {
			group = m[2]
		}

		for _, tok := range strings.Split(group, ",") {
			tok = strings.TrimSpace(tok)
			if tok == "" {
				continue
			}

			lower := strings.ToLower(tok)

			switch {
			case knownRegions[lower] != "":
				regions = append(regions, knownRegions[lower])
			case knownTypes[lower] != "":
				types = append(types, knownTypes[lower])
			case langPattern.MatchString(tok) && len(tok) <= 2:
				languages = append(languages, strings.ToLower(tok))
			case revPattern.MatchString(tok):
				revision = tok
			}
		}
	}

	return regions, languages, types, revision
}
