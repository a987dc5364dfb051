// Package screen runs game servers inside detached GNU screen sessions so
// they outlive the command that started them and can be attached to later.
package screen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
)

const (
	// DefaultBinary is the screen executable looked up in PATH
	DefaultBinary = "screen"

	// DefaultSessionPrefix namespaces alphagsm sessions
	DefaultSessionPrefix = "sam#"
)

// Error reports a failed screen invocation
type Error struct {
	// Op is the screen action, such as "start" or "send"
	Op string
	// Session is the full session name
	Session string
	// Code is the exit status, or -1 when screen could not be run
	Code int
	// Output is what screen printed
	Output string
	// Err is the underlying error
	Err error
}

// Error returns a formatted error message
func (e *Error) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("screen %s %q: exit status %d: %s", e.Op, e.Session, e.Code, e.Output)
	}
	return fmt.Sprintf("screen %s %q: %v", e.Op, e.Session, e.Err)
}

// Unwrap returns the underlying error for error chain inspection
func (e *Error) Unwrap() error {
	return e.Err
}

// Screen controls sessions through the screen binary
type Screen struct {
	// Binary is the screen executable
	Binary string
	// LogDir receives session logs and generated screenrc files
	LogDir string
	// SessionPrefix is prepended to server names
	SessionPrefix string

	logger *slog.Logger
}

// Option configures a Screen
type Option func(*Screen)

// WithBinary sets the screen executable
func WithBinary(path string) Option {
	return func(s *Screen) {
		if path != "" {
			s.Binary = path
		}
	}
}

// WithLogDir sets the session log directory
func WithLogDir(dir string) Option {
	return func(s *Screen) {
		if dir != "" {
			s.LogDir = dir
		}
	}
}

// WithSessionPrefix sets the session name prefix
func WithSessionPrefix(prefix string) Option {
	return func(s *Screen) {
		s.SessionPrefix = prefix
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Screen) {
		s.logger = l
	}
}

// New returns a Screen logging to ~/.alphagsm/logs unless configured
// otherwise
func New(opts ...Option) *Screen {
	s := &Screen{
		Binary:        DefaultBinary,
		SessionPrefix: DefaultSessionPrefix,
	}
	if home, err := os.UserHomeDir(); err == nil {
		s.LogDir = filepath.Join(home, ".alphagsm", "logs")
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Session returns the session name for a server
func (s *Screen) Session(name string) string {
	return s.SessionPrefix + name
}

// LogPath returns where the session output of a server is logged
func (s *Screen) LogPath(name string) string {
	return filepath.Join(s.LogDir, s.Session(name)+".log")
}

func (s *Screen) rcPath(name string) string {
	return filepath.Join(s.LogDir, s.Session(name)+".screenrc")
}

// Start launches argv in a new detached session, in dir, with its output
// logged to LogPath(name)
func (s *Screen) Start(ctx context.Context, name string, argv []string, dir string) error {
	if len(argv) == 0 {
		return &Error{Op: "start", Session: s.Session(name), Code: -1, Err: errors.New("empty command")}
	}
	if err := os.MkdirAll(s.LogDir, 0o755); err != nil {
		return &Error{Op: "start", Session: s.Session(name), Code: -1, Err: fmt.Errorf("creating log dir: %w", err)}
	}
	rc := s.rcPath(name)
	if err := renameio.WriteFile(rc, []byte(screenrc(s.LogPath(name))), 0o644); err != nil {
		return &Error{Op: "start", Session: s.Session(name), Code: -1, Err: fmt.Errorf("writing screenrc: %w", err)}
	}

	args := append([]string{"-dmLS", s.Session(name), "-c", rc}, argv...)
	s.logger.Info("starting screen session", "session", s.Session(name), "cmd", strings.Join(argv, " "), "dir", dir)
	return s.run(ctx, "start", name, dir, args...)
}

// Send runs a screen command in the first window of the session
func (s *Screen) Send(ctx context.Context, name string, command ...string) error {
	args := append([]string{"-S", s.Session(name), "-p", "0", "-X"}, command...)
	return s.run(ctx, "send", name, "", args...)
}

// Stuff types input into the session as if from the keyboard
func (s *Screen) Stuff(ctx context.Context, name, input string) error {
	return s.Send(ctx, name, "stuff", input)
}

// Exists reports whether the session is running
func (s *Screen) Exists(ctx context.Context, name string) bool {
	return s.Send(ctx, name, "select", ".") == nil
}

// Quit kills the session
func (s *Screen) Quit(ctx context.Context, name string) error {
	return s.Send(ctx, name, "quit")
}

// Connect attaches the terminal to the session until the user detaches
func (s *Screen) Connect(name string) error {
	cmd := exec.Command(s.Binary, "-rS", s.Session(name))
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	if err := cmd.Run(); err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		return &Error{Op: "connect", Session: s.Session(name), Code: code, Err: err}
	}
	return nil
}

func (s *Screen) run(ctx context.Context, op, name, dir string, args ...string) error {
	cmd := exec.CommandContext(ctx, s.Binary, args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err == nil {
		return nil
	}
	e := &Error{Op: op, Session: s.Session(name), Code: -1, Output: strings.TrimSpace(string(out)), Err: err}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		e.Code = exitErr.ExitCode()
	}
	return e
}

func screenrc(logPath string) string {
	return fmt.Sprintf("logfile %s\nlogfile flush 1\nlog on\n", logPath)
}
