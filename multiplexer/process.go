package multiplexer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"

	"github.com/SectorAlpha/AlphaGSM/internal/unix"
)

// Stream is a readable handle with an OS file descriptor. *os.File
// satisfies it.
type Stream interface {
	io.ReadCloser
	Fd() uintptr
}

// Process is a child process handle. Poll must not block; Wait blocks until
// the process terminates. Both report the exit code, which is the negated
// signal number when the process was killed by a signal.
type Process interface {
	Pid() int
	Poll() (code int, exited bool, err error)
	Wait() (int, error)
	Kill() error
}

// Piped is implemented by processes that expose their output pipes.
// Either method may return nil when that stream is not captured.
type Piped interface {
	Stdout() Stream
	Stderr() Stream
}

// Cmd is a Process backed by an *exec.Cmd whose output goes to plain OS
// pipes, so no copying goroutines run behind the multiplexer's back.
type Cmd struct {
	cmd    *exec.Cmd
	stdout *os.File
	stderr *os.File
	done   bool
	code   int
}

// Start starts cmd, piping any of Stdout and Stderr the caller left nil.
// The write ends are closed in the parent once the child holds them, so the
// read ends report end of stream when the child exits.
func Start(cmd *exec.Cmd) (*Cmd, error) {
	c := &Cmd{cmd: cmd}
	var writers []*os.File
	closeAll := func() {
		for _, f := range writers {
			f.Close()
		}
		if c.stdout != nil {
			c.stdout.Close()
		}
		if c.stderr != nil {
			c.stderr.Close()
		}
	}

	if cmd.Stdout == nil {
		r, w, err := os.Pipe()
		if err != nil {
			return nil, fmt.Errorf("creating stdout pipe: %w", err)
		}
		c.stdout, cmd.Stdout = r, w
		writers = append(writers, w)
	}
	if cmd.Stderr == nil {
		r, w, err := os.Pipe()
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("creating stderr pipe: %w", err)
		}
		c.stderr, cmd.Stderr = r, w
		writers = append(writers, w)
	}

	if err := cmd.Start(); err != nil {
		closeAll()
		return nil, err
	}
	for _, w := range writers {
		w.Close()
	}
	return c, nil
}

// Pid returns the child's process id
func (c *Cmd) Pid() int {
	return c.cmd.Process.Pid
}

// Stdout returns the read end of the stdout pipe, or nil
func (c *Cmd) Stdout() Stream {
	if c.stdout == nil {
		return nil
	}
	return c.stdout
}

// Stderr returns the read end of the stderr pipe, or nil
func (c *Cmd) Stderr() Stream {
	if c.stderr == nil {
		return nil
	}
	return c.stderr
}

// Poll checks for termination without blocking. The status is inspected
// with WNOWAIT and collected through exec.Cmd.Wait, so the child is reaped
// exactly once.
func (c *Cmd) Poll() (int, bool, error) {
	if c.done {
		return c.code, true, nil
	}
	exited, err := unix.Exited(c.Pid())
	if err != nil && !errors.Is(err, syscall.ECHILD) {
		return 0, false, err
	}
	if err == nil && !exited {
		return 0, false, nil
	}
	code, err := c.Wait()
	return code, true, err
}

// Wait blocks until the child terminates and returns its exit code
func (c *Cmd) Wait() (int, error) {
	if c.done {
		return c.code, nil
	}
	err := c.cmd.Wait()
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return 0, err
	}
	c.done = true
	c.code = exitCode(c.cmd.ProcessState)
	return c.code, nil
}

// Kill sends SIGKILL to the child
func (c *Cmd) Kill() error {
	if c.done {
		return nil
	}
	return c.cmd.Process.Kill()
}

// String returns the command line
func (c *Cmd) String() string {
	return c.cmd.String()
}

func exitCode(state *os.ProcessState) int {
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return -int(ws.Signal())
	}
	return state.ExitCode()
}
