//go:build darwin

package unix

import (
	"errors"

	"golang.org/x/sys/unix"
)

// szomb is the p_stat of a terminated, unreaped process (sys/proc.h)
const szomb = 5

// WaitAnyChild is unavailable: darwin has no wait that leaves the child
// waitable. Callers fall back to polling with Exited.
func WaitAnyChild() error {
	return ErrUnsupported
}

// Exited reports whether the child pid has terminated without reaping it.
// A zombie is seen through the process table; a pid that is gone entirely
// reports ECHILD, as waitid would.
func Exited(pid int) (bool, error) {
	kp, err := unix.SysctlKinfoProc("kern.proc.pid", pid)
	if err == nil && int(kp.Proc.P_pid) == pid {
		return kp.Proc.P_stat == szomb, nil
	}
	if kerr := unix.Kill(pid, 0); errors.Is(kerr, unix.ESRCH) {
		return false, unix.ECHILD
	}
	if err == nil {
		err = unix.ESRCH
	}
	return false, err
}
