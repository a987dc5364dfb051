package alphagsm

import (
	"errors"
	"time"
)

// Defaults for multi-server runs
const (
	// DefaultConcurrency is how many servers a Manager drives at once
	DefaultConcurrency = 4

	// DefaultExecutable is the alphagsm binary spawned per server
	DefaultExecutable = "alphagsm"

	// DefaultSudo is the binary used to run as another user
	DefaultSudo = "sudo"

	// DefaultStepTimeout bounds one multiplexer step so cancellation is
	// noticed
	DefaultStepTimeout = 250 * time.Millisecond
)

// Command is a builtin server command
type Command int

const (
	// CmdUnknown represents an unknown command
	CmdUnknown Command = iota
	// CmdCreate makes a new server with a module
	CmdCreate
	// CmdSetup configures and installs the server
	CmdSetup
	// CmdStart launches the server session
	CmdStart
	// CmdStop shuts the server down
	CmdStop
	// CmdStatus reports whether the server runs
	CmdStatus
	// CmdMessage sends a chat message
	CmdMessage
	// CmdConnect attaches to the console
	CmdConnect
	// CmdDump prints the data store
	CmdDump
	// CmdSet changes a data store value
	CmdSet
	// CmdHelp lists the server's commands
	CmdHelp
)

var commandNames = [...]string{
	CmdUnknown: "unknown",
	CmdCreate:  "create",
	CmdSetup:   "setup",
	CmdStart:   "start",
	CmdStop:    "stop",
	CmdStatus:  "status",
	CmdMessage: "message",
	CmdConnect: "connect",
	CmdDump:    "dump",
	CmdSet:     "set",
	CmdHelp:    "help",
}

// Commands lists the builtin commands in help order
func Commands() []Command {
	return []Command{CmdCreate, CmdSetup, CmdStart, CmdStop, CmdStatus, CmdMessage, CmdConnect, CmdDump, CmdSet, CmdHelp}
}

// String returns the command name
func (c Command) String() string {
	if c < 0 || int(c) >= len(commandNames) {
		return commandNames[CmdUnknown]
	}
	return commandNames[c]
}

// ParseCommand returns the builtin command called name, or CmdUnknown
func ParseCommand(name string) Command {
	for _, c := range Commands() {
		if c.String() == name {
			return c
		}
	}
	return CmdUnknown
}

// Interactive reports whether the command needs the terminal and so cannot
// run on several servers at once
func (c Command) Interactive() bool {
	return c == CmdConnect
}

// MarshalText implements encoding.TextMarshaler
func (c Command) MarshalText() ([]byte, error) {
	if c == CmdUnknown {
		return nil, errors.New("alphagsm: cannot marshal unknown command")
	}
	return []byte(c.String()), nil
}
