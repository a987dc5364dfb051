// Package unix wraps the readiness and child-wait system calls the
// multiplexer blocks in.
package unix

import "errors"

// ErrUnsupported is returned on platforms without the required system call.
var ErrUnsupported = errors.New("unix: unsupported on this platform")
