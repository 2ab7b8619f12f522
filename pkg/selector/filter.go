// Package selector implements the Candidate Selector: filtering and
// 1-game-1-ROM preference ordering over the Matcher's output.
package selector

import (
	"regexp"

	"github.com/romtool/collator/pkg/romset"
)

// Filters holds the include/exclude and category toggles configured on
// the command line.
type Filters struct {
	Include *regexp.Regexp
	Exclude *regexp.Regexp

	// BIOSOnly, when true, keeps only BIOS-tagged entries; when false,
	// BIOS entries are dropped from the general set.
	BIOSOnly bool
	// DeviceOnly mirrors BIOSOnly for device-tagged entries.
	DeviceOnly bool

	UnlicensedOn bool
	BadDumpOn    bool
}

func hasType(e romset.Entry, t string) bool {
	for _, ty := range e.Types {
		if ty == t {
			return true
		}
	}

	return false
}

// Apply returns the subset of candidates surviving the include/exclude and
// category filters, independent of 1G1R mode.
func Apply(f Filters, candidates []romset.Candidate) []romset.Candidate {
	out := make([]romset.Candidate, 0, len(candidates))

	for _, c := range candidates {
		if !passesFilters(f, c.Entry) {
			continue
		}

		out = append(out, c)
	}

	return out
}

func passesFilters(f Filters, e romset.Entry) bool {
	if f.Include != nil && !f.Include.MatchString(e.Name) {
		return false
	}

	if f.Exclude != nil && f.Exclude.MatchString(e.Name) {
		return false
	}

	isBIOS := hasType(e, "bios")
	if f.BIOSOnly && !isBIOS {
		return false
	}

	if !f.BIOSOnly && isBIOS {
		return false
	}

	isDevice := hasType(e, "device")
	if f.DeviceOnly && !isDevice {
		return false
	}

	if !f.DeviceOnly && isDevice {
		return false
	}

	if !f.UnlicensedOn && hasType(e, "unlicensed") {
		return false
	}

	if !f.BadDumpOn && hasType(e, "baddump") {
		return false
	}

	return true
}
