//go:build linux

package unix

import (
	"errors"

	"golang.org/x/sys/unix"
)

// WaitAnyChild blocks until some child of this process has exited. The
// child is left waitable (WNOWAIT) so its owner can still collect the status.
func WaitAnyChild() error {
	var info unix.Siginfo
	for {
		err := unix.Waitid(unix.P_ALL, 0, &info, unix.WEXITED|unix.WNOWAIT, nil)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		return err
	}
}

// Exited reports whether the child pid has terminated without reaping it.
func Exited(pid int) (bool, error) {
	var info unix.Siginfo
	for {
		err := unix.Waitid(unix.P_PID, pid, &info, unix.WEXITED|unix.WNOHANG|unix.WNOWAIT, nil)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return false, err
		}
		// si_signo stays zero when WNOHANG finds nothing waitable.
		return info.Signo == int32(unix.SIGCHLD), nil
	}
}
