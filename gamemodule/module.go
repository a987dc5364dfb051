package gamemodule

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/SectorAlpha/AlphaGSM/datastore"
	"github.com/SectorAlpha/AlphaGSM/multiplexer"
)

// Common errors returned by modules
var (
	// ErrUnknownModule indicates no module is registered under the id
	ErrUnknownModule = errors.New("gamemodule: unknown module")

	// ErrReadOnly indicates a data store key cannot be set by the user
	ErrReadOnly = errors.New("gamemodule: key is read only")

	// ErrNotConfigured indicates required configuration is missing
	ErrNotConfigured = errors.New("gamemodule: not configured")
)

// DefaultMaxStopWait is how many stop attempts a module allows by default
const DefaultMaxStopWait = 5

// Server is the view of a game server a module works with
type Server interface {
	// Name is the server name chosen by the operator
	Name() string
	// Data is the server's data store. Modules change it freely; the
	// caller saves it.
	Data() *datastore.Store
	// Send types input into the running server console
	Send(ctx context.Context, input string) error
	// Out receives user facing output
	Out() io.Writer
	// Logger is the server's logger
	Logger() *slog.Logger
}

// ConfigureOptions carries the arguments of the setup command
type ConfigureOptions struct {
	// Args are the positional setup arguments
	Args []string
	// Values are key=value options given on the command line
	Values map[string]string
	// Ask allows prompting for anything missing
	Ask bool
	// Prompter asks the questions when Ask is set
	Prompter Prompter
}

// Value returns the named option or def
func (o ConfigureOptions) Value(key, def string) string {
	if v, ok := o.Values[key]; ok {
		return v
	}
	return def
}

// Arg returns the i-th positional argument or def
func (o ConfigureOptions) Arg(i int, def string) string {
	if i < len(o.Args) {
		return o.Args[i]
	}
	return def
}

// Message is a chat message for the players of a server
type Message struct {
	Text string
	// Targets are the players to address; empty means everyone
	Targets []string
	// Parse asks the module to interpret player selectors in Text
	Parse bool
}

// Module is one kind of game server
type Module interface {
	// Name is the human readable module name
	Name() string
	// Configure fills the data store from options and prompts. Keys
	// already present are kept unless the options override them.
	Configure(ctx context.Context, srv Server, opts ConfigureOptions) error
	// Install prepares the server files so the server can start
	Install(ctx context.Context, srv Server) error
	// StartCommand returns the command line and working directory
	StartCommand(srv Server) (argv []string, dir string, err error)
	// Stop asks the running server to shut down. attempt counts from 0.
	Stop(ctx context.Context, srv Server, attempt int) error
	// Message sends a chat message to players
	Message(ctx context.Context, srv Server, msg Message) error
	// Ready returns the check that recognizes the "server is up" log
	// line, or nil when the module cannot tell
	Ready(srv Server) multiplexer.LineCheck
	// MaxStopWait caps the number of stop attempts
	MaxStopWait() int
}

// CommandSpec describes a module specific command
type CommandSpec struct {
	Name  string
	Usage string
	Short string
	// MinArgs and MaxArgs bound the argument count; MaxArgs < 0 is unbounded
	MinArgs int
	MaxArgs int
	Run     func(ctx context.Context, srv Server, args []string) error
}

// Commander is implemented by modules with extra commands
type Commander interface {
	Commands() []CommandSpec
}

// Checker is implemented by modules that validate values given to the
// set command. The returned value is stored.
type Checker interface {
	CheckValue(srv Server, key, raw string) (any, error)
}
