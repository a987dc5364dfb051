package alphagsm

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	serverPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)
	userPattern   = regexp.MustCompile(`^[a-z_][a-z0-9_-]*\$?$`)
)

// Target names a server, optionally owned by another user
type Target struct {
	// User runs the server through sudo when set
	User   string
	Server string
}

// ParseTarget parses "server" or "user/server"
func ParseTarget(s string) (Target, error) {
	user, server, found := strings.Cut(s, "/")
	if !found {
		user, server = "", s
	}
	if found && !userPattern.MatchString(user) {
		return Target{}, fmt.Errorf("%w: bad user in %q", ErrInvalidTarget, s)
	}
	if !serverPattern.MatchString(server) {
		return Target{}, fmt.Errorf("%w: bad server name in %q", ErrInvalidTarget, s)
	}
	return Target{User: user, Server: server}, nil
}

// ParseTargets parses each argument and drops repeats, keeping the first
// occurrence
func ParseTargets(args []string) ([]Target, error) {
	seen := make(map[Target]bool, len(args))
	out := make([]Target, 0, len(args))
	for _, a := range args {
		t, err := ParseTarget(a)
		if err != nil {
			return nil, err
		}
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out, nil
}

// String returns the target as written on the command line
func (t Target) String() string {
	if t.User == "" {
		return t.Server
	}
	return t.User + "/" + t.Server
}
