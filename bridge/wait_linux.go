//go:build linux

package bridge

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// PollWaiter waits for a file descriptor to become readable.
type PollWaiter struct {
	fd   int
	poll func(fds []unix.PollFd, timeout int) (int, error)
}

func NewPollWaiter(fd uintptr) *PollWaiter {
	return &PollWaiter{fd: int(fd), poll: unix.Poll}
}

// Wait blocks without timeout. Signal interruptions are retried; hang-up and
// error conditions count as readable so the next read observes them.
func (w *PollWaiter) Wait() error {
	fds := []unix.PollFd{{Fd: int32(w.fd), Events: unix.POLLIN}}
	for {
		fds[0].Revents = 0
		_, err := w.poll(fds, -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: poll fd %d: %w", ErrInputWait, w.fd, err)
		}
		if fds[0].Revents&unix.POLLNVAL != 0 {
			return fmt.Errorf("%w: poll fd %d: invalid descriptor", ErrInputWait, w.fd)
		}
		return nil
	}
}
