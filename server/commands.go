package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/SectorAlpha/AlphaGSM/datastore"
	"github.com/SectorAlpha/AlphaGSM/gamemodule"
	"github.com/SectorAlpha/AlphaGSM/tail"
)

// Setup configures the server and installs its files. The configuration is
// saved even when the install fails so setup can be rerun.
func (s *Server) Setup(ctx context.Context, opts gamemodule.ConfigureOptions) error {
	if opts.Ask && opts.Prompter == nil {
		opts.Prompter = gamemodule.NewLinePrompter(s.env.In, s.env.Out)
	}
	return s.mutate(ctx, func() error {
		if err := s.module.Configure(ctx, s, opts); err != nil {
			return fmt.Errorf("configuring %s: %w", s.name, err)
		}
		if err := s.data.Save(); err != nil {
			return err
		}
		if err := s.module.Install(ctx, s); err != nil {
			return fmt.Errorf("installing %s: %w", s.name, err)
		}
		return nil
	})
}

// StartOptions controls Start
type StartOptions struct {
	// Follow keeps printing the server log until the session ends
	Follow bool
}

// Start launches the server session. When the module can recognize its
// ready line, Start waits for it for up to server.ready_timeout. ReadyMarker
// is printed once the server is up.
func (s *Server) Start(ctx context.Context, opts StartOptions) error {
	if s.Running(ctx) {
		return fmt.Errorf("%w: %s", ErrRunning, s.name)
	}
	argv, dir, err := s.module.StartCommand(s)
	if err != nil {
		return err
	}

	logPath := s.env.Sessions.LogPath(s.name)
	// the previous run's log is kept aside so the ready line is searched in
	// this run's output only
	if err := rotate(logPath); err != nil {
		return err
	}
	if err := s.env.Sessions.Start(ctx, s.name, argv, dir); err != nil {
		return fmt.Errorf("starting %s: %w", s.name, err)
	}
	s.logger.Info("server started", "cmd", argv, "dir", dir)

	check := s.module.Ready(s)
	if opts.Follow {
		return s.follow(ctx, logPath, check)
	}
	if check != nil {
		if err := s.waitReady(ctx, logPath, check); err != nil {
			return err
		}
	}
	fmt.Fprintln(s.env.Out, ReadyMarker)
	return nil
}

func (s *Server) waitReady(ctx context.Context, logPath string, check func([]byte) bool) error {
	timeout := s.env.Settings.Server.ReadyTimeout.Duration
	waitCtx, cancel := context.WithTimeoutCause(ctx, timeout, fmt.Errorf("%w after %s", ErrNotReady, timeout))
	defer cancel()
	waitCtx, stop := s.watchSession(waitCtx)
	defer stop()

	line, err := tail.WaitFor(waitCtx, logPath, check, tail.FromStart(), tail.WithLogger(s.logger))
	if err != nil {
		if cause := context.Cause(waitCtx); cause != nil && ctx.Err() == nil {
			return fmt.Errorf("waiting for %s: %w", s.name, cause)
		}
		return fmt.Errorf("waiting for %s: %w", s.name, err)
	}
	s.logger.Info("server ready", "line", line)
	return nil
}

// follow prints the log as it grows, with ReadyMarker after the ready line,
// until the session ends or ctx is cancelled
func (s *Server) follow(ctx context.Context, logPath string, check func([]byte) bool) error {
	followCtx, stop := s.watchSession(ctx)
	defer stop()

	lines, cleanup, err := tail.Follow(followCtx, logPath, tail.FromStart(), tail.WithLogger(s.logger))
	if err != nil {
		return err
	}
	defer func() { _ = cleanup() }()

	ready := check == nil
	if ready {
		fmt.Fprintln(s.env.Out, ReadyMarker)
	}
loop:
	for {
		select {
		case l, ok := <-lines:
			if !ok {
				break loop
			}
			if l.Err != nil {
				return l.Err
			}
			fmt.Fprintln(s.env.Out, l.Text)
			if !ready && check([]byte(l.Text)) {
				ready = true
				fmt.Fprintln(s.env.Out, ReadyMarker)
			}
		case <-followCtx.Done():
			break loop
		}
	}
	if errors.Is(context.Cause(followCtx), ErrExited) && ctx.Err() == nil {
		if !ready {
			return fmt.Errorf("%w: %s before it was ready", ErrExited, s.name)
		}
		return nil
	}
	return ctx.Err()
}

// watchSession returns a context cancelled with ErrExited once the session
// is gone
func (s *Server) watchSession(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(ctx)
	interval := s.pollInterval()
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if !s.env.Sessions.Exists(ctx, s.name) {
					cancel(ErrExited)
					return
				}
			}
		}
	}()
	return ctx, func() { cancel(nil) }
}

func (s *Server) pollInterval() time.Duration {
	d := s.env.Settings.Server.StopCheckInterval.Duration
	if d <= 0 || d > time.Second {
		d = time.Second
	}
	return d
}

// Stop asks the server to shut down, retrying up to the smaller of
// server.stop_attempts and the module's limit, and kills the session if it
// is still there
func (s *Server) Stop(ctx context.Context) error {
	if !s.Running(ctx) {
		return fmt.Errorf("%w: %s", ErrNotRunning, s.name)
	}
	cfg := s.env.Settings.Server
	attempts := min(cfg.StopAttempts, s.module.MaxStopWait())
	if attempts < 1 {
		attempts = 1
	}
	fmt.Fprintf(s.env.Out, "Will try to stop %s %d times\n", s.name, attempts)

	for attempt := range attempts {
		if err := s.module.Stop(ctx, s, attempt); err != nil {
			return fmt.Errorf("stopping %s: %w", s.name, err)
		}
		for range cfg.StopChecks {
			if !s.Running(ctx) {
				s.logger.Info("server stopped", "attempts", attempt+1)
				return nil
			}
			if err := sleep(ctx, cfg.StopCheckInterval.Duration); err != nil {
				return err
			}
		}
		if !s.Running(ctx) {
			return nil
		}
		fmt.Fprintf(s.env.Out, "%s isn't stopping after %d attempts\n", s.name, attempt+1)
	}

	fmt.Fprintf(s.env.Out, "Killing %s\n", s.name)
	s.logger.Warn("killing server session")
	if err := s.env.Sessions.Quit(ctx, s.name); err != nil {
		s.logger.Warn("screen quit failed", "error", err)
	}
	if err := sleep(ctx, s.pollInterval()); err != nil {
		return err
	}
	if s.Running(ctx) {
		return fmt.Errorf("%w: %s", ErrStopFailed, s.name)
	}
	return nil
}

// Status prints whether the server is running. verbose adds the module,
// data store and log locations.
func (s *Server) Status(ctx context.Context, verbose int) error {
	if s.Running(ctx) {
		fmt.Fprintf(s.env.Out, "%s is running\n", s.name)
	} else {
		fmt.Fprintf(s.env.Out, "%s is not running\n", s.name)
	}
	if verbose > 0 {
		fmt.Fprintf(s.env.Out, "module: %s (%s)\n", s.module.Name(), s.moduleID)
		fmt.Fprintf(s.env.Out, "data:   %s\n", s.data.Path())
		fmt.Fprintf(s.env.Out, "log:    %s\n", s.env.Sessions.LogPath(s.name))
	}
	if verbose > 1 {
		return s.Dump(false)
	}
	return nil
}

// Message sends a chat message to the players of a running server
func (s *Server) Message(ctx context.Context, msg gamemodule.Message) error {
	if !s.Running(ctx) {
		return fmt.Errorf("%w: %s", ErrNotRunning, s.name)
	}
	return s.module.Message(ctx, s, msg)
}

// Connect attaches the terminal to the server console
func (s *Server) Connect(ctx context.Context) error {
	if !s.Running(ctx) {
		return fmt.Errorf("%w: %s", ErrNotRunning, s.name)
	}
	return s.env.Sessions.Connect(s.name)
}

// Dump prints the data store as indented JSON, or YAML
func (s *Server) Dump(yaml bool) error {
	var (
		out string
		err error
	)
	if yaml {
		out, err = s.data.YAML()
	} else {
		out, err = s.data.PrettyJSON()
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(s.env.Out, strings.TrimRight(out, "\n"))
	return nil
}

// Set stores raw at the dotted key. Modules that validate values decide
// what is stored; otherwise raw is parsed with datastore.ParseValue. The
// module key is never writable.
func (s *Server) Set(ctx context.Context, key, raw string) error {
	if key == "module" {
		return fmt.Errorf("%w: %s", gamemodule.ErrReadOnly, key)
	}
	return s.mutate(ctx, func() error {
		var value any = datastore.ParseValue(raw)
		if c, ok := s.module.(gamemodule.Checker); ok {
			v, err := c.CheckValue(s, key, raw)
			if err != nil {
				return err
			}
			value = v
		}
		return s.data.Set(key, value)
	})
}

// Commands returns the module's extra commands
func (s *Server) Commands() []gamemodule.CommandSpec {
	if c, ok := s.module.(gamemodule.Commander); ok {
		return c.Commands()
	}
	return nil
}

// RunCommand runs a module command with the data store locked
func (s *Server) RunCommand(ctx context.Context, name string, args []string) error {
	for _, c := range s.Commands() {
		if c.Name != name {
			continue
		}
		if len(args) < c.MinArgs || (c.MaxArgs >= 0 && len(args) > c.MaxArgs) {
			return fmt.Errorf("%s: wrong number of arguments, usage: %s", name, c.Usage)
		}
		return s.mutate(ctx, func() error {
			return c.Run(ctx, s, args)
		})
	}
	return fmt.Errorf("%w: %s", ErrUnknownCommand, name)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// rotate moves path to path.old, replacing an older copy
func rotate(path string) error {
	err := os.Rename(path, path+".old")
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("rotating log %s: %w", path, err)
}
