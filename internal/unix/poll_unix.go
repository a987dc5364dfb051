//go:build linux || darwin

package unix

import (
	"errors"
	"math"
	"time"

	"golang.org/x/sys/unix"
)

// readyMask is every revent that means a read will not block.
const readyMask = unix.POLLIN | unix.POLLHUP | unix.POLLERR | unix.POLLNVAL

// Poll waits until at least one of fds is readable or timeout elapses.
// A negative timeout blocks indefinitely, zero returns immediately.
// The returned slice is index-aligned with fds. An interrupted wait
// reports nothing ready and no error.
func Poll(fds []int, timeout time.Duration) ([]bool, error) {
	pfds := make([]unix.PollFd, len(fds))
	for i, fd := range fds {
		pfds[i] = unix.PollFd{Fd: int32(fd), Events: unix.POLLIN}
	}

	ready := make([]bool, len(fds))
	if _, err := unix.Poll(pfds, timeoutMillis(timeout)); err != nil {
		if errors.Is(err, unix.EINTR) {
			return ready, nil
		}
		return nil, err
	}

	for i := range pfds {
		ready[i] = pfds[i].Revents&readyMask != 0
	}
	return ready, nil
}

// timeoutMillis rounds a duration up to whole milliseconds for poll(2).
func timeoutMillis(d time.Duration) int {
	if d < 0 {
		return -1
	}
	ms := (d + time.Millisecond - 1) / time.Millisecond
	if ms > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(ms)
}
