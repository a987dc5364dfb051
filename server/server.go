package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"

	"github.com/SectorAlpha/AlphaGSM/datastore"
	"github.com/SectorAlpha/AlphaGSM/gamemodule"
	"github.com/SectorAlpha/AlphaGSM/screen"
	"github.com/SectorAlpha/AlphaGSM/settings"
)

// ReadyMarker is printed on its own line once a started server is ready.
// Callers running alphagsm as a child process wait for it.
const ReadyMarker = "#%READY%#"

// Common errors returned by server commands
var (
	// ErrInvalidName indicates a server name that cannot name a data store
	ErrInvalidName = errors.New("server: invalid server name")

	// ErrNoModule indicates a data store without a module key
	ErrNoModule = errors.New("server: data store names no module")

	// ErrRunning indicates the server session already exists
	ErrRunning = errors.New("server: already running")

	// ErrNotRunning indicates the server session does not exist
	ErrNotRunning = errors.New("server: not running")

	// ErrStopFailed indicates the session survived every stop attempt
	ErrStopFailed = errors.New("server: could not stop server")

	// ErrNotReady indicates the server did not report ready in time
	ErrNotReady = errors.New("server: not ready")

	// ErrExited indicates the session ended while waiting for it
	ErrExited = errors.New("server: session ended")

	// ErrUnknownCommand indicates a command neither builtin nor provided by
	// the module
	ErrUnknownCommand = errors.New("server: unknown command")
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// Sessions runs servers in detached terminal sessions. *screen.Screen is
// the implementation used outside tests.
type Sessions interface {
	Start(ctx context.Context, name string, argv []string, dir string) error
	Stuff(ctx context.Context, name, input string) error
	Send(ctx context.Context, name string, command ...string) error
	Exists(ctx context.Context, name string) bool
	Quit(ctx context.Context, name string) error
	Connect(name string) error
	LogPath(name string) string
}

var _ Sessions = (*screen.Screen)(nil)

// Env is what every server needs from the process it runs in
type Env struct {
	Settings settings.Settings
	Sessions Sessions
	Logger   *slog.Logger
	// Out receives user facing output
	Out io.Writer
	// In answers setup prompts
	In io.Reader
}

// NewEnv returns an Env using GNU screen as configured in s
func NewEnv(s settings.Settings, logger *slog.Logger) Env {
	if logger == nil {
		logger = slog.Default()
	}
	return Env{
		Settings: s,
		Sessions: screen.New(
			screen.WithBinary(s.Screen.Binary),
			screen.WithLogDir(s.Screen.LogDir),
			screen.WithSessionPrefix(s.Screen.SessionPrefix),
			screen.WithLogger(logger),
		),
		Logger: logger,
		Out:    os.Stdout,
		In:     os.Stdin,
	}
}

func (e Env) withDefaults() Env {
	if e.Logger == nil {
		e.Logger = slog.Default()
	}
	if e.Out == nil {
		e.Out = io.Discard
	}
	if e.In == nil {
		e.In = os.Stdin
	}
	return e
}

// Server is one named game server
type Server struct {
	name     string
	moduleID string
	module   gamemodule.Module
	data     *datastore.Store
	env      Env
	logger   *slog.Logger
}

var _ gamemodule.Server = (*Server)(nil)

// DataPath returns where the data store of name lives
func DataPath(s settings.Settings, name string) string {
	return filepath.Join(s.Core.DataDir, name+".json")
}

// Load opens an existing server
func Load(name string, env Env) (*Server, error) {
	if !namePattern.MatchString(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	env = env.withDefaults()
	data, err := datastore.Open(DataPath(env.Settings, name))
	if err != nil {
		return nil, fmt.Errorf("loading server %s: %w", name, err)
	}
	return bind(name, data, env)
}

// Create makes a new server using the module registered as moduleID
func Create(name, moduleID string, env Env) (*Server, error) {
	if !namePattern.MatchString(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	env = env.withDefaults()
	id, err := gamemodule.Resolve(moduleID)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(env.Settings.Core.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	data, err := datastore.Create(DataPath(env.Settings, name), map[string]any{"module": id})
	if err != nil {
		return nil, fmt.Errorf("creating server %s: %w", name, err)
	}
	env.Logger.Info("created server", "server", name, "module", id)
	return bind(name, data, env)
}

func bind(name string, data *datastore.Store, env Env) (*Server, error) {
	id := data.GetString("module", "")
	if id == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoModule, data.Path())
	}
	module, err := gamemodule.Lookup(id)
	if err != nil {
		return nil, fmt.Errorf("loading server %s: %w", name, err)
	}
	return &Server{
		name:     name,
		moduleID: id,
		module:   module,
		data:     data,
		env:      env,
		logger:   env.Logger.With("server", name),
	}, nil
}

// Name returns the server name
func (s *Server) Name() string {
	return s.name
}

// ModuleID returns the id of the server's module
func (s *Server) ModuleID() string {
	return s.moduleID
}

// Module returns the server's module
func (s *Server) Module() gamemodule.Module {
	return s.module
}

// Data returns the data store
func (s *Server) Data() *datastore.Store {
	return s.data
}

// Send types input into the server console
func (s *Server) Send(ctx context.Context, input string) error {
	return s.env.Sessions.Stuff(ctx, s.name, input)
}

// Out returns the user facing output
func (s *Server) Out() io.Writer {
	return s.env.Out
}

// Logger returns the server's logger
func (s *Server) Logger() *slog.Logger {
	return s.logger
}

// Running reports whether the server session exists
func (s *Server) Running(ctx context.Context) bool {
	return s.env.Sessions.Exists(ctx, s.name)
}

// mutate runs fn with the data store locked and freshly loaded, then saves
func (s *Server) mutate(ctx context.Context, fn func() error) error {
	unlock, err := s.data.Lock(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = unlock() }()

	fresh, err := datastore.Open(s.data.Path())
	if err != nil {
		return err
	}
	s.data = fresh
	if err := fn(); err != nil {
		return err
	}
	return s.data.Save()
}
