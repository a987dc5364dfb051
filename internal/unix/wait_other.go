//go:build !linux && !darwin

package unix

// WaitAnyChild is not available on this platform.
func WaitAnyChild() error {
	return ErrUnsupported
}

// Exited is not available on this platform.
func Exited(pid int) (bool, error) {
	return false, ErrUnsupported
}
