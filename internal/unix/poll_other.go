//go:build !linux && !darwin

package unix

import "time"

// Poll is not available on this platform.
func Poll(fds []int, timeout time.Duration) ([]bool, error) {
	return nil, ErrUnsupported
}
