package alphagsm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommandString(t *testing.T) {
	for _, c := range Commands() {
		assert.Equal(t, c, ParseCommand(c.String()))
	}
	assert.Equal(t, CmdUnknown, ParseCommand("backup"))
	assert.Equal(t, "unknown", Command(99).String())
	assert.True(t, CmdConnect.Interactive())
	assert.False(t, CmdStart.Interactive())

	text, err := CmdStop.MarshalText()
	assert.NoError(t, err)
	assert.Equal(t, "stop", string(text))
	_, err = CmdUnknown.MarshalText()
	assert.Error(t, err)
}

func TestMultiError(t *testing.T) {
	merr := &MultiError{}
	merr.Add(nil)
	assert.NoError(t, merr.Err())

	merr.Add(&OpError{Op: CmdStart, Server: "mc", Err: ErrNotReady})
	assert.Equal(t, `alphagsm start "mc": alphagsm: server finished before it was ready`, merr.Error())

	merr.Add(&ExitError{Server: "tf2", Code: -9})
	assert.Equal(t, "2 errors occurred", merr.Error())
	assert.ErrorIs(t, merr.Err(), ErrNotReady)

	var exitErr *ExitError
	assert.True(t, errors.As(merr.Err(), &exitErr))
	assert.Equal(t, "tf2 killed by signal 9", exitErr.Error())
	assert.Equal(t, "tf2 exited with status 3", (&ExitError{Server: "tf2", Code: 3}).Error())
}
