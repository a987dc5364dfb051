package alphagsm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"slices"
	"time"

	"github.com/SectorAlpha/AlphaGSM/multiplexer"
	"github.com/SectorAlpha/AlphaGSM/server"
)

// ReadyMarker is the line a started server prints once it is up
const ReadyMarker = server.ReadyMarker

// Manager runs one alphagsm child per server and multiplexes their output.
// Children are tagged with their target so interleaved lines stay readable.
type Manager struct {
	// Concurrency is the maximum number of children running at once
	Concurrency int
	// Executable is the alphagsm binary run for each server
	Executable string
	// Sudo is the binary used for user/server targets
	Sudo string
	// StepTimeout bounds each multiplexer step
	StepTimeout time.Duration
	// BaseArgs are passed to every child ahead of the server name
	BaseArgs []string

	muxOpts []multiplexer.Option
	logger  *slog.Logger
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithConcurrency sets the maximum number of children running at once
func WithConcurrency(n int) ManagerOption {
	return func(m *Manager) {
		m.Concurrency = n
	}
}

// WithExecutable sets the binary spawned per server
func WithExecutable(path string) ManagerOption {
	return func(m *Manager) {
		m.Executable = path
	}
}

// WithSudo sets the binary used to switch user
func WithSudo(path string) ManagerOption {
	return func(m *Manager) {
		m.Sudo = path
	}
}

// WithMultiplexer adds options for the multiplexers the Manager creates
func WithMultiplexer(opts ...multiplexer.Option) ManagerOption {
	return func(m *Manager) {
		m.muxOpts = append(m.muxOpts, opts...)
	}
}

// WithStepTimeout sets how long one multiplexer step may block
func WithStepTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.StepTimeout = d
	}
}

// WithBaseArgs sets arguments, usually global flags, given to every child
// before the server name
func WithBaseArgs(args ...string) ManagerOption {
	return func(m *Manager) {
		m.BaseArgs = args
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = l
	}
}

// NewManager creates a new Manager with default settings
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		Concurrency: DefaultConcurrency,
		Executable:  DefaultExecutable,
		Sudo:        DefaultSudo,
		StepTimeout: DefaultStepTimeout,
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.Concurrency < 1 {
		m.Concurrency = 1
	}
	if m.StepTimeout <= 0 {
		m.StepTimeout = DefaultStepTimeout
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// Command returns the child command that runs args against t
func (m *Manager) Command(ctx context.Context, t Target, args []string) *exec.Cmd {
	argv := append(append(slices.Clone(m.BaseArgs), t.Server), args...)
	if t.User != "" {
		argv = append([]string{"-u", t.User, "--", m.Executable}, argv...)
		return exec.CommandContext(ctx, m.Sudo, argv...)
	}
	return exec.CommandContext(ctx, m.Executable, argv...)
}

func (m *Manager) newMultiplexer() *multiplexer.Multiplexer {
	opts := append([]multiplexer.Option{multiplexer.WithLogger(m.logger)}, m.muxOpts...)
	return multiplexer.New(opts...)
}

// Run runs args against every target, at most Concurrency at a time, and
// returns the exit code of each child keyed by target. Non-zero exits are
// reported as *ExitError inside a *MultiError. Cancelling ctx kills the
// children still running.
func (m *Manager) Run(ctx context.Context, targets []Target, args []string) (map[string]int, error) {
	if len(targets) == 0 {
		return nil, ErrNoTargets
	}
	op := opOf(args)
	if op.Interactive() && len(targets) > 1 {
		return nil, ErrInteractive
	}

	mux := m.newMultiplexer()
	defer mux.Close()

	codes := make(map[string]int, len(targets))
	merr := &MultiError{}
	queue := targets
	running := 0

	for {
		for running < m.Concurrency && len(queue) > 0 && ctx.Err() == nil {
			t := queue[0]
			queue = queue[1:]
			if _, err := mux.Run(t.String(), m.Command(ctx, t, args)); err != nil {
				merr.Add(&OpError{Op: op, Server: t.String(), Err: err})
				continue
			}
			running++
		}
		if running == 0 {
			break
		}

		// no line checks are set, so an interruption only delays delivery
		if _, err := mux.Process(m.StepTimeout); err != nil && !errors.Is(err, multiplexer.ErrInterrupted) {
			merr.Add(err)
			break
		}
		for tag, code := range mux.CheckReturnValues() {
			running--
			codes[tag] = code
			if code != 0 {
				merr.Add(&ExitError{Server: tag, Code: code})
			}
		}
	}

	if err := ctx.Err(); err != nil {
		merr.Add(err)
	}
	return codes, merr.Err()
}

// Start starts targets one after another. Each child's output is shown
// until it prints a line containing ReadyMarker, then it joins the shared
// multiplexer and the next target is started. Once every target is up the
// remaining output is drained until all children exit.
func (m *Manager) Start(ctx context.Context, targets []Target, args []string) (map[string]int, error) {
	if len(targets) == 0 {
		return nil, ErrNoTargets
	}
	args = append([]string{CmdStart.String()}, args...)

	mux := m.newMultiplexer()
	defer mux.Close()

	codes := make(map[string]int, len(targets))
	merr := &MultiError{}
	collect := func() {
		for tag, code := range mux.CheckReturnValues() {
			codes[tag] = code
			if code != 0 {
				merr.Add(&ExitError{Server: tag, Code: code})
			}
		}
	}

	for _, t := range targets {
		if ctx.Err() != nil {
			break
		}
		proc, ready, err := multiplexer.RunAndWaitForMarker(mux, t.String(), multiplexer.Contains(ReadyMarker), m.Command(ctx, t, args))
		if err != nil {
			merr.Add(&OpError{Op: CmdStart, Server: t.String(), Err: err})
			continue
		}
		if !ready {
			code, err := proc.Wait()
			if err != nil {
				merr.Add(&OpError{Op: CmdStart, Server: t.String(), Err: err})
				continue
			}
			codes[t.String()] = code
			if code != 0 {
				merr.Add(&ExitError{Server: t.String(), Code: code})
			} else {
				merr.Add(&OpError{Op: CmdStart, Server: t.String(), Err: ErrNotReady})
			}
			continue
		}
		m.logger.Debug("server ready", "server", t.String())
		collect()
	}

	for ctx.Err() == nil {
		n, err := mux.Process(m.StepTimeout)
		if err != nil {
			merr.Add(fmt.Errorf("draining output: %w", err))
			break
		}
		collect()
		if n == multiplexer.Idle {
			break
		}
	}
	if err := ctx.Err(); err != nil {
		merr.Add(err)
	}
	return codes, merr.Err()
}

func opOf(args []string) Command {
	if len(args) == 0 {
		return CmdUnknown
	}
	return ParseCommand(args[0])
}
