//go:build linux

package bridge

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestPollWaiter_RetriesOnInterrupt(t *testing.T) {
	calls := 0
	w := &PollWaiter{fd: 0, poll: func(fds []unix.PollFd, timeout int) (int, error) {
		calls++
		assert.Equal(t, -1, timeout)
		if calls < 3 {
			return -1, unix.EINTR
		}
		fds[0].Revents = unix.POLLIN
		return 1, nil
	}}

	require.NoError(t, w.Wait())
	assert.Equal(t, 3, calls)
}

func TestPollWaiter_FailureIsFatal(t *testing.T) {
	w := &PollWaiter{fd: 7, poll: func(fds []unix.PollFd, timeout int) (int, error) {
		return -1, unix.ENOMEM
	}}

	err := w.Wait()
	assert.True(t, errors.Is(err, ErrInputWait))
	assert.True(t, errors.Is(err, unix.ENOMEM))
}

func TestPollWaiter_InvalidDescriptor(t *testing.T) {
	w := &PollWaiter{fd: 7, poll: func(fds []unix.PollFd, timeout int) (int, error) {
		fds[0].Revents = unix.POLLNVAL
		return 1, nil
	}}

	assert.True(t, errors.Is(w.Wait(), ErrInputWait))
}

func TestPollWaiter_Pipe(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	_, err = w.Write([]byte{0x01})
	require.NoError(t, err)
	require.NoError(t, NewPollWaiter(r.Fd()).Wait())
}
