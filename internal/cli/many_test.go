//go:build linux

package cli

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SectorAlpha/AlphaGSM"
)

func TestRunManyServers(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping process tests in short mode")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	c := newTestCLI(t)
	c.exe = filepath.Join(t.TempDir(), "alphagsm")
	// drop the --settings flag the parent passes down, then act as the server
	script := "#!/bin/sh\nshift 2\nserver=$1\nshift\n[ \"$server\" = bad ] && exit 4\necho \"$server got $*\"\n"
	require.NoError(t, os.WriteFile(c.exe, []byte(script), 0o755))

	require.NoError(t, c.run(t, "2", "a", "b", "status", "-v"))
	assert.Contains(t, c.out.String(), "a: a got status -v\n")
	assert.Contains(t, c.out.String(), "b: b got status -v\n")
	assert.Contains(t, c.out.String(), "a has finished with status 0\n")

	err := c.run(t, "2", "a", "bad", "stop")
	var exitErr *alphagsm.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, "bad", exitErr.Server)
	assert.Equal(t, 4, exitErr.Code)
}
