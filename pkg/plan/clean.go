package plan

import (
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/romtool/collator/pkg/romset"
)

// Clean walks root and turns every regular file not present in produced
// into a CleanDelete action, skipping any path matching a protected
// prefix. filepath.WalkDir already visits entries in lexical order per
// directory, so the result is deterministic without an extra sort pass.
func Clean(root string, produced map[string]bool, protected []string) ([]romset.Action, error) {
	var actions []romset.Action

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			return nil
		}

		if produced[path] {
			return nil
		}

		if isProtected(path, protected) {
			return nil
		}

		actions = append(actions, romset.Action{
			Kind:        romset.ActionCleanDelete,
			Destination: path,
		})

		return nil
	})
	if err != nil {
		return nil, err
	}

	return actions, nil
}

func isProtected(path string, protected []string) bool {
	for _, p := range protected {
		if path == p || strings.HasPrefix(path, strings.TrimSuffix(p, string(filepath.Separator))+string(filepath.Separator)) {
			return true
		}
	}

	return false
}
