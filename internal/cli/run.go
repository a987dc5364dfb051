package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/SectorAlpha/AlphaGSM"
	"github.com/SectorAlpha/AlphaGSM/multiplexer"
)

// anyServer stands for "no particular server" in '* help'
const anyServer = "*"

// invocation is the parsed positional command line
type invocation struct {
	targets []alphagsm.Target
	// generic is set for the '*' pseudo server
	generic bool
	command []string
}

// parseInvocation splits "[COUNT] SERVER... COMMAND [ARGS]"
func parseInvocation(args []string) (invocation, error) {
	var inv invocation
	if len(args) == 0 {
		return inv, errors.New("no server given")
	}
	count := 1
	if n, err := strconv.Atoi(args[0]); err == nil {
		if n < 1 {
			return inv, fmt.Errorf("server count must be positive, got %d", n)
		}
		count = n
		args = args[1:]
	}
	if len(args) < count {
		return inv, fmt.Errorf("expected %d servers, got %d", count, len(args))
	}
	names, rest := args[:count], args[count:]
	if len(rest) == 0 {
		return inv, errors.New("no command given")
	}
	inv.command = rest

	if count == 1 && names[0] == anyServer {
		inv.generic = true
		return inv, nil
	}
	targets, err := alphagsm.ParseTargets(names)
	if err != nil {
		return inv, err
	}
	inv.targets = targets
	return inv, nil
}

// local reports whether the invocation can run in this process
func (inv invocation) local() bool {
	return inv.generic || (len(inv.targets) == 1 && inv.targets[0].User == "")
}

func (a *app) run(ctx context.Context, args []string) error {
	inv, err := parseInvocation(args)
	if err != nil {
		return err
	}
	if inv.local() {
		name := anyServer
		if !inv.generic {
			name = inv.targets[0].Server
		}
		cmd := a.serverCmd(name)
		cmd.SetArgs(inv.command)
		return cmd.ExecuteContext(ctx)
	}
	return a.runMany(ctx, inv)
}

// runMany runs the command once per target in child processes
func (a *app) runMany(ctx context.Context, inv invocation) error {
	exe, err := a.executable()
	if err != nil {
		return fmt.Errorf("finding alphagsm binary: %w", err)
	}
	mgr := alphagsm.NewManager(
		alphagsm.WithExecutable(exe),
		alphagsm.WithSudo(a.settings.Sudo.Binary),
		alphagsm.WithConcurrency(a.settings.Multiplexer.Concurrency),
		alphagsm.WithBaseArgs(a.globalArgs()...),
		alphagsm.WithLogger(a.logger),
		alphagsm.WithMultiplexer(
			multiplexer.WithSink(multiplexer.NewConsoleSink(a.out, consoleStyle(a.out)...)),
			multiplexer.WithLogger(a.logger),
			multiplexer.WithReadSize(a.settings.Multiplexer.ReadSize),
			multiplexer.WithHandoffTicks(a.settings.Multiplexer.Ticks()...),
		),
	)

	var codes map[string]int
	if alphagsm.ParseCommand(inv.command[0]) == alphagsm.CmdStart {
		codes, err = mgr.Start(ctx, inv.targets, inv.command[1:])
	} else {
		codes, err = mgr.Run(ctx, inv.targets, inv.command)
	}
	a.logger.Debug("children finished", "codes", codes)
	return err
}

// consoleStyle drops tag styling when output is not a terminal
func consoleStyle(w io.Writer) []multiplexer.SinkOption {
	f, ok := w.(*os.File)
	if !ok {
		return []multiplexer.SinkOption{multiplexer.WithPlainTags()}
	}
	if info, err := f.Stat(); err != nil || info.Mode()&os.ModeCharDevice == 0 {
		return []multiplexer.SinkOption{multiplexer.WithPlainTags()}
	}
	return nil
}
