//go:build unix

package pipeline

import "syscall"

// umask wraps syscall.Umask so callers that need a scoped umask change
// (spec §4.4 "For the vmcore + mock path... created with umask 0027")
// can restore the previous value with a single defer.
func umask(mask int) int {
	return syscall.Umask(mask)
}
