package gamemodule

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/SectorAlpha/AlphaGSM/datastore"
	"github.com/SectorAlpha/AlphaGSM/multiplexer"
	"github.com/SectorAlpha/AlphaGSM/updatefs"
)

func init() {
	Register("custom", func() Module { return &Custom{} })
}

// Custom runs an arbitrary command line. Its files can be deployed from a
// source directory with updatefs, which also drives the update command.
//
// Data store keys:
//
//	dir           working directory
//	command       argv as a list, or a string split on whitespace
//	stop_command  console input that stops the server ("stop")
//	say_command   console command prefix for messages ("say")
//	ready         text of the log line printed once the server is up
//	source        directory the files were deployed from
//	linkdir, copy updatefs patterns
type Custom struct{}

// Name returns the module name
func (*Custom) Name() string {
	return "Custom command"
}

// Configure records the directory and command line. Setup takes optional
// DIR and COMMAND arguments.
func (*Custom) Configure(ctx context.Context, srv Server, opts ConfigureOptions) error {
	data := srv.Data()
	dir, err := ask(opts, opts.Arg(0, opts.Value("dir", "")), data.GetString("dir", defaultDir(srv.Name())), "Directory to run the server in")
	if err != nil {
		return err
	}
	if err := data.Set("dir", dir); err != nil {
		return err
	}

	command := strings.Join(data.GetStrings("command"), " ")
	if len(opts.Args) > 1 {
		command = strings.Join(opts.Args[1:], " ")
	}
	if command, err = ask(opts, opts.Value("command", ""), command, "Command line to start the server"); err != nil {
		return err
	}
	argv, err := commandLine(datastore.ParseValue(command))
	if err != nil {
		return err
	}
	if len(argv) == 0 {
		return fmt.Errorf("%w: no command given", ErrNotConfigured)
	}
	if err := data.Set("command", toAny(argv)); err != nil {
		return err
	}

	for _, key := range []string{"stop_command", "say_command", "ready", "source"} {
		if v := opts.Value(key, ""); v != "" {
			if err := data.Set(key, v); err != nil {
				return err
			}
		}
	}
	for _, key := range []string{"linkdir", "copy"} {
		if v := opts.Value(key, ""); v != "" {
			if err := data.Set(key, toAny(strings.Split(v, ","))); err != nil {
				return err
			}
		}
	}
	data.SetDefault("stop_command", "stop")
	return nil
}

// Install creates the directory and deploys the source tree if one is set
func (c *Custom) Install(ctx context.Context, srv Server) error {
	data := srv.Data()
	dir := data.GetString("dir", "")
	if dir == "" {
		return fmt.Errorf("%w: dir is not set, run setup", ErrNotConfigured)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating server dir: %w", err)
	}
	source := data.GetString("source", "")
	if source == "" {
		return nil
	}
	return c.deploy(srv, data.GetString("installed_from", ""), source)
}

func (*Custom) deploy(srv Server, oldDir, newDir string) error {
	data := srv.Data()
	linkdir, err := updatefs.Compile(data.GetStrings("linkdir"))
	if err != nil {
		return err
	}
	copies, err := updatefs.Compile(data.GetStrings("copy"))
	if err != nil {
		return err
	}
	report, err := updatefs.Update(oldDir, newDir, data.GetString("dir", ""), updatefs.Options{
		LinkDir: linkdir,
		Copy:    copies,
		Logger:  srv.Logger(),
	})
	if err != nil {
		return err
	}
	for _, s := range report.Sidecars {
		fmt.Fprintf(srv.Out(), "conflict: kept your version, see %s\n", s)
	}
	srv.Logger().Info("deployed files", "server", srv.Name(), "from", newDir,
		"linked", len(report.Linked), "copied", len(report.Copied), "removed", len(report.Removed))
	return data.Set("installed_from", newDir)
}

// StartCommand returns the configured command line
func (*Custom) StartCommand(srv Server) ([]string, string, error) {
	data := srv.Data()
	argv := data.GetStrings("command")
	if len(argv) == 0 {
		return nil, "", fmt.Errorf("%w: no command set, run setup", ErrNotConfigured)
	}
	return argv, data.GetString("dir", ""), nil
}

// Stop types the stop command
func (*Custom) Stop(ctx context.Context, srv Server, attempt int) error {
	return srv.Send(ctx, "\n"+srv.Data().GetString("stop_command", "stop")+"\n")
}

// Message sends the text with the say command. Targets are not supported.
func (*Custom) Message(ctx context.Context, srv Server, msg Message) error {
	say := srv.Data().GetString("say_command", "say")
	return srv.Send(ctx, "\n"+say+" "+msg.Text+"\n")
}

// Ready matches the configured ready text
func (*Custom) Ready(srv Server) multiplexer.LineCheck {
	if ready := srv.Data().GetString("ready", ""); ready != "" {
		return multiplexer.Contains(ready)
	}
	return nil
}

// MaxStopWait returns the default
func (*Custom) MaxStopWait() int {
	return DefaultMaxStopWait
}

// Commands adds update
func (c *Custom) Commands() []CommandSpec {
	return []CommandSpec{{
		Name: "update", Usage: "update NEWDIR", Short: "Deploy a new version of the server files",
		MinArgs: 1, MaxArgs: 1,
		Run: func(ctx context.Context, srv Server, args []string) error {
			data := srv.Data()
			if err := c.deploy(srv, data.GetString("installed_from", ""), args[0]); err != nil {
				return err
			}
			return data.Set("source", args[0])
		},
	}}
}

// commandLine accepts a decoded list or a plain string
func commandLine(v any) ([]string, error) {
	switch v := v.(type) {
	case string:
		return strings.Fields(v), nil
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("command entries must be strings, got %v", e)
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, fmt.Errorf("command must be a string or a list, got %v", v)
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
