package cli

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SectorAlpha/AlphaGSM"
	"github.com/SectorAlpha/AlphaGSM/server"
	"github.com/SectorAlpha/AlphaGSM/settings"
)

// sessions is a screen stand-in where nothing ever runs
type sessions struct {
	mu      sync.Mutex
	logDir  string
	started [][]string
}

func (s *sessions) Start(_ context.Context, name string, argv []string, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = append(s.started, argv)
	return nil
}
func (s *sessions) Stuff(context.Context, string, string) error { return nil }
func (s *sessions) Send(context.Context, string, ...string) error { return nil }
func (s *sessions) Exists(context.Context, string) bool { return false }
func (s *sessions) Quit(context.Context, string) error { return nil }
func (s *sessions) Connect(string) error { return nil }
func (s *sessions) LogPath(name string) string { return filepath.Join(s.logDir, name+".log") }

type testCLI struct {
	root     string
	settings string
	out      bytes.Buffer
	errOut   bytes.Buffer
	sessions *sessions
	exe      string
}

func newTestCLI(t *testing.T) *testCLI {
	t.Helper()
	root := t.TempDir()
	t.Setenv(settings.SystemPathEnv, filepath.Join(root, "missing-system.toml"))
	path := filepath.Join(root, "alphagsm.toml")
	require.NoError(t, os.WriteFile(path, []byte("[core]\nuser_dir = \""+root+"\"\n"), 0o644))
	return &testCLI{root: root, settings: path, sessions: &sessions{logDir: root}}
}

func (c *testCLI) run(t *testing.T, args ...string) error {
	t.Helper()
	c.out.Reset()
	c.errOut.Reset()
	a := newApp()
	a.in = strings.NewReader("")
	a.out, a.errOut = &c.out, &c.errOut
	a.newEnv = func(s settings.Settings, l *slog.Logger) server.Env {
		return server.Env{Settings: s, Sessions: c.sessions, Logger: l}
	}
	if c.exe != "" {
		a.executable = func() (string, error) { return c.exe, nil }
	}
	cmd := newRootCmd(a)
	cmd.SetArgs(append([]string{"--settings", c.settings}, args...))
	return cmd.ExecuteContext(context.Background())
}

func TestParseInvocation(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		targets []string
		generic bool
		command []string
		wantErr string
	}{
		{name: "single", args: []string{"mc", "start"}, targets: []string{"mc"}, command: []string{"start"}},
		{name: "count", args: []string{"2", "mc", "tf2", "stop", "now"}, targets: []string{"mc", "tf2"}, command: []string{"stop", "now"}},
		{name: "user", args: []string{"games/mc", "status"}, targets: []string{"games/mc"}, command: []string{"status"}},
		{name: "generic", args: []string{"*", "help"}, generic: true, command: []string{"help"}},
		{name: "no command", args: []string{"mc"}, wantErr: "no command given"},
		{name: "short count", args: []string{"3", "a", "b"}, wantErr: "expected 3 servers, got 2"},
		{name: "zero count", args: []string{"0", "a", "start"}, wantErr: "server count must be positive"},
		{name: "bad target", args: []string{"bad name", "start"}, wantErr: "invalid target"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv, err := parseInvocation(tt.args)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			var got []string
			for _, target := range inv.targets {
				got = append(got, target.String())
			}
			assert.Equal(t, tt.targets, got)
			assert.Equal(t, tt.generic, inv.generic)
			assert.Equal(t, tt.command, inv.command)
		})
	}
}

func TestInvocationLocal(t *testing.T) {
	assert.True(t, invocation{generic: true}.local())
	assert.True(t, invocation{targets: []alphagsm.Target{{Server: "a"}}}.local())
	assert.False(t, invocation{targets: []alphagsm.Target{{User: "u", Server: "a"}}}.local())
	assert.False(t, invocation{targets: []alphagsm.Target{{Server: "a"}, {Server: "b"}}}.local())
}

func TestCreateSetupDump(t *testing.T) {
	c := newTestCLI(t)
	dir := t.TempDir()

	require.NoError(t, c.run(t, "svc", "create", "custom"))
	assert.Contains(t, c.out.String(), "Created svc using custom")

	require.NoError(t, c.run(t, "svc", "setup", "--noask", "-o", "ready=UP", dir, "./run.sh"))
	require.NoError(t, c.run(t, "svc", "set", "motd", `"hello"`))

	require.NoError(t, c.run(t, "svc", "dump", "--yaml"))
	assert.Contains(t, c.out.String(), "module: custom\n")
	assert.Contains(t, c.out.String(), "ready: UP\n")
	assert.Contains(t, c.out.String(), "motd: hello\n")

	require.NoError(t, c.run(t, "svc", "status"))
	assert.Equal(t, "svc is not running\n", c.out.String())

	err := c.run(t, "svc", "stop")
	assert.ErrorIs(t, err, server.ErrNotRunning)
	var opErr *alphagsm.OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, alphagsm.CmdStop, opErr.Op)
}

func TestStartPrintsReadyMarker(t *testing.T) {
	c := newTestCLI(t)
	require.NoError(t, c.run(t, "svc", "create", "custom"))
	require.NoError(t, c.run(t, "svc", "setup", "-n", t.TempDir(), "./run.sh"))

	require.NoError(t, c.run(t, "svc", "start"))
	assert.Equal(t, server.ReadyMarker+"\n", c.out.String())
	assert.Equal(t, [][]string{{"./run.sh"}}, c.sessions.started)
}

func TestHelp(t *testing.T) {
	c := newTestCLI(t)
	require.NoError(t, c.run(t, "*", "help"))
	for _, name := range []string{"create", "setup", "start", "stop", "status", "message", "connect", "dump", "set"} {
		assert.Contains(t, c.out.String(), name)
	}

	require.NoError(t, c.run(t, "mc", "create", "minecraft"))
	require.NoError(t, c.run(t, "mc", "help"))
	assert.Contains(t, c.out.String(), "Give players operator status")

	assert.ErrorContains(t, c.run(t, "*", "start"), "only supports help")
}

func TestUnknownServer(t *testing.T) {
	c := newTestCLI(t)
	err := c.run(t, "ghost", "start")
	assert.ErrorContains(t, err, "create it with 'alphagsm ghost create MODULE'")
}
