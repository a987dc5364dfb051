package gamemodule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/SectorAlpha/AlphaGSM/multiplexer"
)

const (
	// DefaultMinecraftPort is the port used when none is configured
	DefaultMinecraftPort = 25565

	// DefaultMinecraftJar is the server jar name used when none is configured
	DefaultMinecraftJar = "minecraft_server.jar"
)

func init() {
	Register("minecraft.vanilla", func() Module { return &Vanilla{} })
	Alias("minecraft", "minecraft.vanilla")
}

// defaultBackupFiles lists what a world backup contains
var defaultBackupFiles = []any{"world", "server.properties", "whitelist.json", "ops.json", "banned-ips.json", "banned-players.json"}

// Vanilla runs the official Minecraft Java server jar. The jar is placed in
// the server directory by the operator.
type Vanilla struct{}

// Name returns the module name
func (*Vanilla) Name() string {
	return "Minecraft (vanilla)"
}

// Configure records port, directory, jar name and EULA acceptance. Setup
// takes optional PORT and DIR arguments.
func (*Vanilla) Configure(ctx context.Context, srv Server, opts ConfigureOptions) error {
	data := srv.Data()

	current := strconv.Itoa(data.GetInt("port", DefaultMinecraftPort))
	for {
		raw, err := ask(opts, opts.Arg(0, opts.Value("port", "")), current, "Port for the server to listen on")
		if err != nil {
			return err
		}
		port, err := strconv.Atoi(raw)
		if err == nil && port > 0 && port < 65536 {
			if err := data.Set("port", port); err != nil {
				return err
			}
			break
		}
		if !opts.Ask || opts.Prompter == nil {
			return fmt.Errorf("%w: %q is not a valid port", ErrNotConfigured, raw)
		}
		fmt.Fprintf(srv.Out(), "%s isn't a valid port number\n", raw)
		opts.Args, opts.Values = nil, nil
	}

	dir, err := ask(opts, opts.Arg(1, opts.Value("dir", "")), data.GetString("dir", defaultDir(srv.Name())), "Directory to install the server in")
	if err != nil {
		return err
	}
	if err := data.Set("dir", dir); err != nil {
		return err
	}

	exe := opts.Value("exe_name", data.GetString("exe_name", DefaultMinecraftJar))
	if err := data.Set("exe_name", exe); err != nil {
		return err
	}

	eula := opts.Value("eula", "")
	if eula == "" && opts.Ask && opts.Prompter != nil && !data.GetBool("eula", false) {
		if eula, err = opts.Prompter.Prompt("Have you read and accepted the Minecraft EULA? (y/n)", "n"); err != nil {
			return err
		}
	}
	if eula != "" {
		if err := data.Set("eula", yes(eula)); err != nil {
			return err
		}
	}
	data.SetDefault("backupfiles", defaultBackupFiles)
	return nil
}

// Install checks for the server jar and writes the port and EULA settings
// into the files the server reads
func (*Vanilla) Install(ctx context.Context, srv Server) error {
	data := srv.Data()
	dir := data.GetString("dir", "")
	if dir == "" {
		return fmt.Errorf("%w: dir is not set, run setup", ErrNotConfigured)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating server dir: %w", err)
	}
	jar := filepath.Join(dir, data.GetString("exe_name", DefaultMinecraftJar))
	if _, err := os.Stat(jar); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: can't find server jar %s, place it in the directory or update exe_name and run setup again", ErrNotConfigured, jar)
	}

	port := strconv.Itoa(data.GetInt("port", DefaultMinecraftPort))
	if err := UpdateConfig(filepath.Join(dir, "server.properties"), map[string]string{"server-port": port}); err != nil {
		return err
	}
	if data.GetBool("eula", false) {
		if err := UpdateConfig(filepath.Join(dir, "eula.txt"), map[string]string{"eula": "true"}); err != nil {
			return err
		}
	}
	srv.Logger().Info("installed minecraft server", "server", srv.Name(), "dir", dir, "port", port)
	return nil
}

// StartCommand runs the jar without its GUI
func (*Vanilla) StartCommand(srv Server) ([]string, string, error) {
	data := srv.Data()
	dir := data.GetString("dir", "")
	if dir == "" {
		return nil, "", fmt.Errorf("%w: dir is not set, run setup", ErrNotConfigured)
	}
	java := data.GetString("java", "java")
	return []string{java, "-jar", data.GetString("exe_name", DefaultMinecraftJar), "nogui"}, dir, nil
}

// Stop types the stop command into the console
func (*Vanilla) Stop(ctx context.Context, srv Server, attempt int) error {
	return srv.Send(ctx, "\nstop\n")
}

// Message sends a tellraw to each target, everyone by default
func (*Vanilla) Message(ctx context.Context, srv Server, msg Message) error {
	payload, err := tellraw(msg.Text, msg.Parse)
	if err != nil {
		return err
	}
	targets := msg.Targets
	if len(targets) == 0 {
		targets = []string{"@a"}
	}
	for _, target := range targets {
		if err := srv.Send(ctx, "\ntellraw "+target+" "+payload+"\n"); err != nil {
			return err
		}
	}
	return nil
}

// Ready matches the "Done (12.3s)! For help..." line
func (*Vanilla) Ready(Server) multiplexer.LineCheck {
	return multiplexer.Contains("Done (")
}

// MaxStopWait returns the default
func (*Vanilla) MaxStopWait() int {
	return DefaultMaxStopWait
}

// Commands adds op and deop
func (*Vanilla) Commands() []CommandSpec {
	return []CommandSpec{
		{
			Name: "op", Usage: "op USER...", Short: "Give players operator status",
			MinArgs: 1, MaxArgs: -1,
			Run: func(ctx context.Context, srv Server, users []string) error {
				return sendEach(ctx, srv, "op", users)
			},
		},
		{
			Name: "deop", Usage: "deop USER...", Short: "Remove operator status from players",
			MinArgs: 1, MaxArgs: -1,
			Run: func(ctx context.Context, srv Server, users []string) error {
				return sendEach(ctx, srv, "deop", users)
			},
		},
	}
}

// CheckValue allows changing the jar, port and backup file list
func (*Vanilla) CheckValue(srv Server, key, raw string) (any, error) {
	switch key {
	case "exe_name", "java":
		return raw, nil
	case "port":
		port, err := strconv.Atoi(raw)
		if err != nil || port <= 0 || port >= 65536 {
			return nil, fmt.Errorf("%q is not a valid port", raw)
		}
		return port, nil
	case "backupfiles":
		parts := strings.Split(raw, ",")
		out := make([]any, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrReadOnly, key)
}

func sendEach(ctx context.Context, srv Server, command string, users []string) error {
	for _, u := range users {
		if err := srv.Send(ctx, "\n"+command+" "+u+"\n"); err != nil {
			return err
		}
	}
	return nil
}

// selectorPattern splits text before a player selector such as @p or
// @a[r=10] from the selector itself
var selectorPattern = regexp.MustCompile(`^([^@]*[^\\])?(@.(?:\[[^\]]+\])?)`)

// tellraw renders the JSON text component for msg. With parse set,
// selectors become selector components so the game expands them.
func tellraw(msg string, parse bool) (string, error) {
	var v any = map[string]string{"text": msg}
	if parse && strings.Contains(msg, "@") {
		var parts []any
		for {
			m := selectorPattern.FindStringSubmatchIndex(msg)
			if m == nil {
				break
			}
			if m[2] >= 0 {
				parts = append(parts, msg[m[2]:m[3]])
			}
			parts = append(parts, map[string]string{"selector": msg[m[4]:m[5]]})
			msg = msg[m[1]:]
		}
		v = append(parts, msg)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func defaultDir(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return name
	}
	return filepath.Join(home, name)
}
