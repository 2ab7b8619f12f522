package romset

import (
	"path/filepath"
	"strings"
	"unicode"
)

// NormalizeName implements the name-normalization rule shared by the
// Catalog Index (building its (name,size) lookup key) and the Candidate
// Selector (tie-break ordering): lowercase, strip parenthesized and
// bracketed tag groups, strip the file extension, collapse whitespace.
func NormalizeName(name string) string {
	name = strings.TrimSuffix(name, filepath.Ext(name))

	var b strings.Builder

	depth := 0

	for _, r := range name {
		switch r {
		case '(', '[':
			depth++

			continue
		case ')', ']':
			if depth > 0 {
				depth--
			}

			continue
		}

		if depth > 0 {
			continue
		}

		b.WriteRune(unicode.ToLower(r))
	}

	return collapseSpace(b.String())
}

func collapseSpace(s string) string {
	fields := strings.Fields(s)

	return strings.Join(fields, " ")
}
