package archive

import (
	"bufio"
	"fmt"
	"os"
)

const sniffHeaderSize = 8

// SniffFile reads the first few bytes of path and identifies its
// archive Kind.
func SniffFile(path string) (Kind, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, false, fmt.Errorf("archive: opening %q: %w", path, err)
	}
	defer f.Close()

	header := make([]byte, sniffHeaderSize)

	n, err := bufio.NewReader(f).Read(header)
	if err != nil && n == 0 {
		return 0, false, fmt.Errorf("archive: reading header of %q: %w", path, err)
	}

	kind, ok := Sniff(path, header[:n])

	return kind, ok, nil
}
