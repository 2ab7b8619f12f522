//go:build linux

package executor

import (
	"os"

	"golang.org/x/sys/unix"
)

// tryReflink attempts a copy-on-write clone via the FICLONE ioctl.
// Returns false (never an error) when the filesystem doesn't support
// it, so the caller can fall back to a byte copy.
func tryReflink(srcPath, dstPath string) bool {
	src, err := os.Open(srcPath)
	if err != nil {
		return false
	}
	defer src.Close()

	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return false
	}
	defer dst.Close()

	if err := unix.IoctlFileClone(int(dst.Fd()), int(src.Fd())); err != nil {
		os.Remove(dstPath)

		return false
	}

	return true
}
