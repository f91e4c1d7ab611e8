//go:build !linux

package bridge

// NewPollWaiter returns a waiter that never blocks; the following read blocks
// instead.
func NewPollWaiter(fd uintptr) Waiter {
	return NoWait
}
