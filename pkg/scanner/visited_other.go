//go:build !unix

package scanner

// visitedSet degrades to a no-op off unix: symlink cycle protection via
// (dev, ino) needs syscall.Stat_t, which has no portable equivalent here.
// Known gap, not faked: a symlink cycle on a non-unix host will walk
// until the OS's own path-length limit kicks in.
type visitedSet struct{}

func newVisitedSet() *visitedSet { return &visitedSet{} }

func (v *visitedSet) markAndCheck(path string) bool { return true }
