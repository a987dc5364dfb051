//go:build darwin

package unix

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWaitAnyChildUnsupported(t *testing.T) {
	require.ErrorIs(t, WaitAnyChild(), ErrUnsupported)
}

func TestExitedUnknownPid(t *testing.T) {
	// pids wrap well below this on darwin
	_, err := Exited(999999)
	require.Error(t, err)
}
