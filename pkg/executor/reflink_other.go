//go:build !linux

package executor

// tryReflink is a no-op off Linux; reflink mode always falls back to a
// byte copy on platforms without FICLONE.
func tryReflink(srcPath, dstPath string) bool { return false }
