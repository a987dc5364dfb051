package server

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/SectorAlpha/AlphaGSM/gamemodule"
	"github.com/SectorAlpha/AlphaGSM/settings"
)

// fakeSessions stands in for GNU screen. Start writes output to the log;
// the session then lives until lifetime passes, stopAfter inputs were
// stuffed, or Quit is called.
type fakeSessions struct {
	mu         sync.Mutex
	logDir     string
	running    map[string]time.Time
	output     string
	lifetime   time.Duration
	stopAfter  int
	ignoreQuit bool
	started    [][]string
	dirs       []string
	stuffed    []string
	quits      int
	connects   int
}

func newFakeSessions(logDir string) *fakeSessions {
	return &fakeSessions{logDir: logDir, running: map[string]time.Time{}}
}

func (f *fakeSessions) Start(_ context.Context, name string, argv []string, dir string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.running[name]; ok {
		return errors.New("session exists")
	}
	f.started = append(f.started, argv)
	f.dirs = append(f.dirs, dir)
	deadline := time.Time{}
	if f.lifetime > 0 {
		deadline = time.Now().Add(f.lifetime)
	}
	f.running[name] = deadline
	return os.WriteFile(f.LogPath(name), []byte(f.output), 0o644)
}

func (f *fakeSessions) Stuff(_ context.Context, name, input string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stuffed = append(f.stuffed, input)
	if f.stopAfter > 0 && len(f.stuffed) >= f.stopAfter {
		delete(f.running, name)
	}
	return nil
}

func (f *fakeSessions) Send(_ context.Context, name string, command ...string) error {
	return nil
}

func (f *fakeSessions) Exists(_ context.Context, name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	deadline, ok := f.running[name]
	if ok && !deadline.IsZero() && time.Now().After(deadline) {
		delete(f.running, name)
		return false
	}
	return ok
}

func (f *fakeSessions) Quit(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quits++
	if !f.ignoreQuit {
		delete(f.running, name)
	}
	return nil
}

func (f *fakeSessions) Connect(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	return nil
}

func (f *fakeSessions) LogPath(name string) string {
	return filepath.Join(f.logDir, "sam#"+name+".log")
}

func (f *fakeSessions) markRunning(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running[name] = time.Time{}
}

type harness struct {
	env      Env
	sessions *fakeSessions
	out      *bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	root := t.TempDir()
	s := settings.Default()
	s.Core.UserDir = root
	s.Core.DataDir = filepath.Join(root, "conf")
	s.Screen.LogDir = filepath.Join(root, "logs")
	s.Server.StopChecks = 2
	s.Server.StopCheckInterval = settings.Duration{Duration: 5 * time.Millisecond}
	s.Server.ReadyTimeout = settings.Duration{Duration: 2 * time.Second}
	require.NoError(t, os.MkdirAll(s.Screen.LogDir, 0o755))

	sessions := newFakeSessions(s.Screen.LogDir)
	out := &bytes.Buffer{}
	return &harness{
		env: Env{
			Settings: s,
			Sessions: sessions,
			Logger:   slog.New(slog.DiscardHandler),
			Out:      out,
			In:       strings.NewReader(""),
		},
		sessions: sessions,
		out:      out,
	}
}

// custom creates a custom server that runs ./run.sh and is ready on "UP"
func (h *harness) custom(t *testing.T, name string) *Server {
	t.Helper()
	srv, err := Create(name, "custom", h.env)
	require.NoError(t, err)
	require.NoError(t, srv.Setup(context.Background(), gamemodule.ConfigureOptions{
		Args:   []string{t.TempDir(), "./run.sh"},
		Values: map[string]string{"ready": "UP"},
	}))
	return srv
}
