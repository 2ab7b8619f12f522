package selector

import (
	"regexp"
	"sort"
	"strconv"

	"github.com/romtool/collator/pkg/romset"
)

// GroupKey identifies the set of catalog Entries that compete for a single
// slot under 1-game-1-ROM selection. Entries group across catalog Entry
// boundaries: "Game C (USA)", "(Europe)" and "(Japan)" are three distinct
// romset.Entry values but one GroupKey, since NormalizedName strips the
// region/language/revision tag groups that distinguish them.
type GroupKey struct {
	Catalog string
	Name    string
}

func keyOf(e romset.Entry) GroupKey {
	return GroupKey{Catalog: e.CatalogName, Name: e.NormalizedName()}
}

var blemishTypes = map[string]bool{
	"beta": true, "proto": true, "demo": true, "unlicensed": true,
	"baddump": true, "overdump": true, "sample": true,
}

func isRetail(e romset.Entry) bool {
	for _, t := range e.Types {
		if blemishTypes[t] {
			return false
		}
	}

	return true
}

func hasVerified(e romset.Entry) bool {
	return hasType(e, "verified")
}

// Group partitions candidates into their 1G1R competition groups, preserving
// first-seen group order for deterministic downstream iteration.
func Group(candidates []romset.Candidate) (order []GroupKey, groups map[GroupKey][]romset.Candidate) {
	groups = make(map[GroupKey][]romset.Candidate)

	for _, c := range candidates {
		k := keyOf(c.Entry)
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}

		groups[k] = append(groups[k], c)
	}

	return order, groups
}

// Select applies the 1-game-1-ROM preference chain to each
// group. When vector.Single is false, every surviving candidate is returned
// untouched — filtering already happened in Apply. The function is pure and
// deterministic: the same candidate multiset in any input order produces
// the same output, because every partition step is keyed on group contents
// rather than input position, and the final tie-break sorts by normalized
// name, then entry name, then source path and archive entry name.
func Select(vector romset.PreferenceVector, candidates []romset.Candidate) []romset.Candidate {
	order, groups := Group(candidates)

	if !vector.Single {
		out := make([]romset.Candidate, 0, len(candidates))
		for _, k := range order {
			out = append(out, groups[k]...)
		}

		return out
	}

	out := make([]romset.Candidate, 0, len(order))

	for _, k := range order {
		winner, ok := reduce(vector, groups[k])
		if ok {
			out = append(out, winner)
		}
	}

	return out
}

func reduce(vector romset.PreferenceVector, group []romset.Candidate) (romset.Candidate, bool) {
	if len(group) == 0 {
		return romset.Candidate{}, false
	}

	group = partitionByRank(group, func(c romset.Candidate) int {
		return regionRank(vector.Regions, c.Entry.Regions)
	})

	group = partitionByRank(group, func(c romset.Candidate) int {
		return languageRank(vector.Languages, c.Entry.Languages)
	})

	group = partitionByRank(group, func(c romset.Candidate) int {
		return typeRank(vector, c.Entry)
	})

	group = partitionByRank(group, func(c romset.Candidate) int {
		return revisionRank(vector.Revision, c.Entry.Revision)
	})

	sort.SliceStable(group, func(i, j int) bool {
		a, b := group[i], group[j]

		if na, nb := a.Entry.NormalizedName(), b.Entry.NormalizedName(); na != nb {
			return na < nb
		}

		if a.Entry.Name != b.Entry.Name {
			return a.Entry.Name < b.Entry.Name
		}

		if a.Record.SourcePath != b.Record.SourcePath {
			return a.Record.SourcePath < b.Record.SourcePath
		}

		return a.Record.EntryName < b.Record.EntryName
	})

	return group[0], true
}

// partitionByRank keeps only the candidates achieving the minimal rank
// value within the group (lower is preferred), leaving ties for the next
// partition step to resolve.
func partitionByRank(group []romset.Candidate, rank func(romset.Candidate) int) []romset.Candidate {
	if len(group) <= 1 {
		return group
	}

	best := rank(group[0])

	for _, c := range group[1:] {
		if r := rank(c); r < best {
			best = r
		}
	}

	out := make([]romset.Candidate, 0, len(group))

	for _, c := range group {
		if rank(c) == best {
			out = append(out, c)
		}
	}

	return out
}

func regionRank(preferred []string, have []string) int {
	return bestRank(preferred, have)
}

func languageRank(preferred []string, have []string) int {
	return bestRank(preferred, have)
}

// bestRank returns the lowest index in preferred matched by any value in
// have, or len(preferred) when nothing matches — worse than any explicit
// preference but still a valid, ranked outcome.
func bestRank(preferred []string, have []string) int {
	best := len(preferred)

	for _, h := range have {
		for i, p := range preferred {
			if p == h && i < best {
				best = i
			}
		}
	}

	return best
}

func typeRank(vector romset.PreferenceVector, e romset.Entry) int {
	rank := 0

	retail := isRetail(e)
	if !retail {
		rank += 2
	}

	if vector.OnlyRetail && !retail {
		rank += 100
	}

	if vector.PreferVerified && !hasVerified(e) {
		rank++
	}

	return rank
}

var revisionDigits = regexp.MustCompile(`[0-9]+(\.[0-9]+)?`)

// revisionValue extracts a comparable numeric value from a free-form
// revision token such as "Rev 1" or "v1.1"; tokens without digits sort as 0.
func revisionValue(revision string) float64 {
	m := revisionDigits.FindString(revision)
	if m == "" {
		return 0
	}

	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0
	}

	return v
}

func revisionRank(order romset.RevisionOrder, revision string) int {
	v := revisionValue(revision)

	// Rank is an int, so scale the float revision value into a sortable
	// integer space wide enough for any realistic revision token while
	// keeping "prefer newest" as the lower (better) rank.
	const scale = 1000

	scaled := int(v * scale)

	if order == romset.PreferOldest {
		return scaled
	}

	return -scaled
}
