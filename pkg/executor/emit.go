package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/romtool/collator/pkg/plan"
	"github.com/romtool/collator/pkg/romset"
)

// reportDocument is the JSON shape for both report and catalog emission
// (dir2dat/fixdat); the Open Question on report format was resolved to
// JSON since every other artifact in this module is already JSON.
type reportDocument struct {
	Actions     []actionSummary     `json:"actions"`
	Diagnostics []plan.Diagnostic   `json:"diagnostics,omitempty"`
	CatalogKind *romset.CatalogKind `json:"catalog_kind,omitempty"`
}

type actionSummary struct {
	Kind        string `json:"kind"`
	Destination string `json:"destination"`
	CatalogName string `json:"catalog_name,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

func (e *Executor) execEmitDocument(ctx context.Context, p *plan.Plan, a romset.Action) error {
	doc := reportDocument{Diagnostics: p.Diagnostics}

	for _, act := range p.Actions {
		summary := actionSummary{
			Kind:        act.Kind.String(),
			Destination: act.Destination,
			Reason:      act.Reason,
		}

		if act.CatalogEntry != nil {
			summary.CatalogName = act.CatalogEntry.Name
		}

		doc.Actions = append(doc.Actions, summary)
	}

	if a.Kind == romset.ActionEmitCatalog {
		kind := a.CatalogKind
		doc.CatalogKind = &kind
	}

	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")

	if err := enc.Encode(doc); err != nil {
		return err
	}

	return atomicWriteFrom(a.Destination, &buf)
}

func (e *Executor) execEmitPlaylist(ctx context.Context, a romset.Action) error {
	var buf strings.Builder

	for _, entry := range a.PlaylistEntries {
		buf.WriteString(entry)
		buf.WriteByte('\n')
	}

	return atomicWriteFrom(a.Destination, strings.NewReader(buf.String()))
}
