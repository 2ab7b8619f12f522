// Package plan builds the execution Plan: the ordered list of write
// Actions the Executor will carry out, with destination-collision
// demotion, zip-member grouping, and clean-mode enumeration.
package plan

import (
	"sort"

	"github.com/romtool/collator/pkg/romset"
)

// DiagnosticKind names the class of a non-fatal Plan diagnostic.
type DiagnosticKind string

const (
	Conflict      DiagnosticKind = "Conflict"
	MatchConflict DiagnosticKind = "MatchConflict"
)

// Diagnostic is a non-fatal note attached to the Plan; it never changes
// the process exit code on its own.
type Diagnostic struct {
	Kind    DiagnosticKind
	Path    string
	Message string
}

// Plan is the Plan Builder's output: actions in canonical emission order
// plus any diagnostics collected while building them.
type Plan struct {
	Actions     []romset.Action
	Diagnostics []Diagnostic
}

// Item is one resolved (Catalog Entry, matched record, destination) triple
// ready to become an Action. Destination is a single rendered path; when
// the Token Resolver produced a Cartesian expansion, the caller supplies
// one Item per expansion.
type Item struct {
	Candidate   romset.Candidate
	Destination string
}

// CanonicalOrder sorts items deterministically: by catalog name, then
// entry name, then — as a reproducibility tie-break within one entry —
// by source path and inner archive entry name. The Candidate
// Selector's own contract only promises permutation-invariance, not a
// specific order, so the Plan Builder re-establishes one here.
func CanonicalOrder(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].Candidate, items[j].Candidate

		if a.Entry.CatalogName != b.Entry.CatalogName {
			return a.Entry.CatalogName < b.Entry.CatalogName
		}

		if a.Entry.Name != b.Entry.Name {
			return a.Entry.Name < b.Entry.Name
		}

		if a.Record.SourcePath != b.Record.SourcePath {
			return a.Record.SourcePath < b.Record.SourcePath
		}

		return a.Record.EntryName < b.Record.EntryName
	})
}

// BuildWrite emits one Action per item for a non-zip write command (copy,
// move, link, extract, patch). Items must already be in canonical order.
// Destination collisions demote the later item to a no-op Action carrying
// a Reason, and record a Conflict diagnostic.
func BuildWrite(items []Item, kind romset.Kind, linkMode romset.LinkMode) *Plan {
	p := &Plan{}

	claimed := make(map[string]bool, len(items))

	for _, it := range items {
		entry := it.Candidate.Entry

		action := romset.Action{
			Kind:         kind,
			Source:       it.Candidate.Record,
			Destination:  it.Destination,
			LinkMode:     linkMode,
			CatalogEntry: &entry,
		}

		if it.Candidate.Transformation == romset.ApplyPatch {
			action.PatchPath = it.Candidate.PatchPath
			action.PatchKind = it.Candidate.PatchKind
		}

		if claimed[it.Destination] {
			action.Reason = "destination already claimed by an earlier action"
			p.Diagnostics = append(p.Diagnostics, Diagnostic{
				Kind:    Conflict,
				Path:    it.Destination,
				Message: "destination " + it.Destination + " already claimed; demoted to no-op",
			})
		} else {
			claimed[it.Destination] = true
		}

		p.Actions = append(p.Actions, action)
	}

	return p
}

// BuildZip folds items sharing the same .zip destination into one
// ActionZipInto per destination. Unlike BuildWrite,
// a shared destination here is the expected, intentional grouping
// trigger, not a collision.
func BuildZip(items []Item) *Plan {
	p := &Plan{}

	order := make([]string, 0)
	byDest := make(map[string]*romset.Action)

	for _, it := range items {
		action, ok := byDest[it.Destination]
		if !ok {
			entry := it.Candidate.Entry
			action = &romset.Action{
				Kind:         romset.ActionZipInto,
				Destination:  it.Destination,
				CatalogEntry: &entry,
			}
			byDest[it.Destination] = action
			order = append(order, it.Destination)
		}

		action.ZipMembers = append(action.ZipMembers, romset.ZipMember{
			Record:    it.Candidate.Record,
			EntryName: it.Candidate.Record.DisplayName(),
		})
	}

	for _, dest := range order {
		p.Actions = append(p.Actions, *byDest[dest])
	}

	return p
}

// AppendTrailing appends test/report/playlist/catalog actions after the
// write set: they never gate or reorder the writes already in p.
func AppendTrailing(p *Plan, trailing ...romset.Action) {
	p.Actions = append(p.Actions, trailing...)
}

// Merge combines write and zip sub-plans (and any others) into one Plan,
// preserving each input plan's internal action order.
func Merge(plans ...*Plan) *Plan {
	merged := &Plan{}

	for _, p := range plans {
		if p == nil {
			continue
		}

		merged.Actions = append(merged.Actions, p.Actions...)
		merged.Diagnostics = append(merged.Diagnostics, p.Diagnostics...)
	}

	return merged
}
