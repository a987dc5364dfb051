// Package settings loads alphagsm configuration. A Settings value is built
// once at startup from the system file and then the user file, and is
// passed by value from there on.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// SystemPathEnv overrides the system settings file location
const SystemPathEnv = "ALPHAGSM_SYSTEM_CONFIG"

// DefaultSystemPath is used when SystemPathEnv is unset
const DefaultSystemPath = "/etc/alphagsm.toml"

// UserFileName is the settings file looked up inside Core.UserDir
const UserFileName = "alphagsm.toml"

// Settings is the full configuration
type Settings struct {
	Core        Core        `toml:"core"`
	Screen      Screen      `toml:"screen"`
	Server      Server      `toml:"server"`
	Multiplexer Multiplexer `toml:"multiplexer"`
	Sudo        Sudo        `toml:"sudo"`
	Log         Log         `toml:"log"`
}

// Core holds the on-disk layout
type Core struct {
	// UserDir is the per-user state directory (default ~/.alphagsm)
	UserDir string `toml:"user_dir"`
	// DataDir holds one JSON data store per server (default <user_dir>/conf)
	DataDir string `toml:"data_dir"`
}

// Screen configures GNU screen
type Screen struct {
	Binary string `toml:"binary"`
	// LogDir receives one session log per server (default <user_dir>/logs)
	LogDir        string `toml:"log_dir"`
	SessionPrefix string `toml:"session_prefix"`
}

// Server configures the builtin server commands
type Server struct {
	StopAttempts      int      `toml:"stop_attempts"`
	StopChecks        int      `toml:"stop_checks"`
	StopCheckInterval Duration `toml:"stop_check_interval"`
	ReadyTimeout      Duration `toml:"ready_timeout"`
}

// Multiplexer configures multi-server runs
type Multiplexer struct {
	ReadSize     int        `toml:"read_size"`
	HandoffTicks []Duration `toml:"handoff_ticks"`
	Concurrency  int        `toml:"concurrency"`
}

// Sudo configures user/server targets
type Sudo struct {
	Binary string `toml:"binary"`
}

// Log configures diagnostics
type Log struct {
	Level string `toml:"level"`
	// File is a JSON log file; empty logs text to stderr
	File string `toml:"file"`
}

// Duration is a time.Duration written as a string such as "10s"
type Duration struct {
	time.Duration
}

// UnmarshalText parses a Go duration string
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText formats the duration
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the built-in settings. Directory fields left empty are
// derived from Core.UserDir by Load.
func Default() Settings {
	return Settings{
		Core: Core{UserDir: "~/.alphagsm"},
		Screen: Screen{
			Binary:        "screen",
			SessionPrefix: "sam#",
		},
		Server: Server{
			StopAttempts:      5,
			StopChecks:        6,
			StopCheckInterval: Duration{10 * time.Second},
			ReadyTimeout:      Duration{5 * time.Minute},
		},
		Multiplexer: Multiplexer{
			ReadSize:     1000,
			HandoffTicks: []Duration{{time.Second}, {0}},
			Concurrency:  4,
		},
		Sudo: Sudo{Binary: "sudo"},
		Log:  Log{Level: "info"},
	}
}

// SystemPath returns the system settings file location
func SystemPath() string {
	if p := os.Getenv(SystemPathEnv); p != "" {
		return p
	}
	return DefaultSystemPath
}

// Load decodes the system file over the defaults, then the user file over
// that. userPath may be empty to use <core.user_dir>/alphagsm.toml as set by
// the system file. Missing files are skipped.
func Load(systemPath, userPath string) (Settings, error) {
	s := Default()
	if err := decodeFile(systemPath, &s); err != nil {
		return Settings{}, err
	}
	if userPath == "" {
		userPath = filepath.Join(expandHome(s.Core.UserDir), UserFileName)
	}
	if err := decodeFile(userPath, &s); err != nil {
		return Settings{}, err
	}
	s.resolve()
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func decodeFile(path string, s *Settings) error {
	if path == "" {
		return nil
	}
	if _, err := toml.DecodeFile(expandHome(path), s); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading settings %s: %w", path, err)
	}
	return nil
}

// resolve expands home directories and fills derived paths
func (s *Settings) resolve() {
	s.Core.UserDir = expandHome(s.Core.UserDir)
	if s.Core.DataDir == "" {
		s.Core.DataDir = filepath.Join(s.Core.UserDir, "conf")
	}
	s.Core.DataDir = expandHome(s.Core.DataDir)
	if s.Screen.LogDir == "" {
		s.Screen.LogDir = filepath.Join(s.Core.UserDir, "logs")
	}
	s.Screen.LogDir = expandHome(s.Screen.LogDir)
	s.Log.File = expandHome(s.Log.File)
}

// Validate reports settings that cannot work
func (s Settings) Validate() error {
	var errs []error
	if s.Screen.Binary == "" {
		errs = append(errs, errors.New("screen.binary is empty"))
	}
	if s.Server.StopAttempts < 1 {
		errs = append(errs, fmt.Errorf("server.stop_attempts must be at least 1, got %d", s.Server.StopAttempts))
	}
	if s.Server.StopChecks < 1 {
		errs = append(errs, fmt.Errorf("server.stop_checks must be at least 1, got %d", s.Server.StopChecks))
	}
	if s.Multiplexer.ReadSize < 1 {
		errs = append(errs, fmt.Errorf("multiplexer.read_size must be positive, got %d", s.Multiplexer.ReadSize))
	}
	if s.Multiplexer.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("multiplexer.concurrency must be at least 1, got %d", s.Multiplexer.Concurrency))
	}
	for _, d := range s.Multiplexer.HandoffTicks {
		if d.Duration < 0 {
			errs = append(errs, fmt.Errorf("multiplexer.handoff_ticks must not be negative, got %s", d))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	return nil
}

// Ticks returns the handoff ticks as plain durations
func (m Multiplexer) Ticks() []time.Duration {
	out := make([]time.Duration, len(m.HandoffTicks))
	for i, d := range m.HandoffTicks {
		out[i] = d.Duration
	}
	return out
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
