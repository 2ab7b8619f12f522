// Package token resolves `{token}` output-path templates against a chosen
// candidate, its catalog entry, and the file it came from.
package token

import (
	"path/filepath"
	"regexp"
	"strings"
)

// Context carries every value a template token might reference. DatName
// and DatDescription are catalog-file-level (not per-entry) so they are
// supplied by the caller alongside the per-entry fields.
type Context struct {
	DatName        string
	DatDescription string

	EntryName   string
	Regions     []string
	Languages   []string
	Types       []string
	Category    string // also serves as the "genre" token

	InputPath  string // original source path, for {inputDirname}
	OutputBase string // destination basename sans extension, for {outputName}
	OutputExt  string
}

var tokenPattern = regexp.MustCompile(`\{([a-zA-Z]+)\}`)

// multiValued names the catalog-family tokens that may expand to more than
// one output path.
var multiValued = map[string]bool{"region": true, "language": true, "type": true}

// Resolve renders template against ctx, returning one path per Cartesian
// combination of multi-valued tokens found (region x language x type), plus
// any warnings for unknown tokens. Unknown tokens are left in the output
// verbatim, e.g. "{bogus}".
func Resolve(template string, ctx Context) (paths []string, warnings []string) {
	names := uniqueTokenNames(template)

	values := make(map[string][]string, len(names))

	for _, name := range names {
		v, known := lookup(name, ctx)
		if !known {
			warnings = append(warnings, "unknown token: {"+name+"}")
			values[name] = []string{"{" + name + "}"}

			continue
		}

		if len(v) == 0 {
			v = []string{""}
		}

		values[name] = v
	}

	combos := cartesian(names, values)

	for _, combo := range combos {
		paths = append(paths, render(template, names, combo))
	}

	if len(paths) == 0 {
		paths = []string{template}
	}

	return paths, warnings
}

func render(template string, names []string, combo []string) string {
	out := template
	for i, name := range names {
		out = strings.ReplaceAll(out, "{"+name+"}", combo[i])
	}

	return out
}

func uniqueTokenNames(template string) []string {
	seen := make(map[string]bool)

	var names []string

	for _, m := range tokenPattern.FindAllStringSubmatch(template, -1) {
		name := m[1]
		if !seen[name] {
			seen[name] = true

			names = append(names, name)
		}
	}

	return names
}

// cartesian expands every multi-valued token's set while holding
// single-valued tokens fixed, returning one []string per combination
// ordered to match names.
func cartesian(names []string, values map[string][]string) [][]string {
	combos := [][]string{{}}

	for _, name := range names {
		vs := values[name]

		next := make([][]string, 0, len(combos)*len(vs))

		for _, c := range combos {
			for _, v := range vs {
				row := append(append([]string{}, c...), v)
				next = append(next, row)
			}
		}

		combos = next
	}

	return combos
}

func lookup(name string, ctx Context) ([]string, bool) {
	switch name {
	case "datName":
		return []string{ctx.DatName}, true
	case "datDescription":
		return []string{ctx.DatDescription}, true
	case "region":
		return ctx.Regions, true
	case "language":
		return ctx.Languages, true
	case "genre", "category":
		return []string{ctx.Category}, true
	case "type":
		return ctx.Types, true
	case "inputDirname":
		return []string{filepath.Dir(ctx.InputPath)}, true
	case "outputBasename":
		return []string{filepath.Base(ctx.OutputBase)}, true
	case "outputName":
		return []string{ctx.OutputBase}, true
	case "outputExt":
		return []string{ctx.OutputExt}, true
	case "platformShort", "platformLong", "platformVendor", "platformExt":
		return lookupProfile(name, ctx)
	default:
		return nil, false
	}
}

func lookupProfile(name string, ctx Context) ([]string, bool) {
	p, ok := ResolveProfile(ctx.DatName)
	if !ok {
		p, ok = ResolveProfile(ctx.Category)
	}

	if !ok {
		return nil, false
	}

	switch name {
	case "platformShort":
		return []string{p.ShortName}, true
	case "platformLong":
		return []string{p.LongName}, true
	case "platformVendor":
		return []string{p.Vendor}, true
	case "platformExt":
		return []string{p.Extension}, true
	default:
		return nil, false
	}
}
