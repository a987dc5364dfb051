package multiplexer

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors returned by multiplexer operations
var (
	// ErrInterrupted matches any *Interrupted returned by Process
	ErrInterrupted = errors.New("multiplexer: output interrupted")

	// ErrConflict indicates a known stream was re-registered with different state
	ErrConflict = errors.New("multiplexer: conflicting stream state")

	// ErrUnknownProcess indicates the process is not owned by this multiplexer
	ErrUnknownProcess = errors.New("multiplexer: unknown process")

	// ErrUnknownStream indicates the stream is not owned by this multiplexer
	ErrUnknownStream = errors.New("multiplexer: unknown stream")

	// ErrRegistered indicates a selector already monitors the stream
	ErrRegistered = errors.New("multiplexer: stream already registered")
)

// Match is the line that tripped a stream's LineCheck, together with the
// check itself so the caller can put it back.
type Match struct {
	Line  []byte
	Check LineCheck
}

// Interrupted is returned by Process when one or more streams matched their
// LineCheck during the step. It is a signal rather than a failure: every
// other part of the step has completed by the time it is returned.
type Interrupted struct {
	// Streams maps each interrupted stream to the line that matched
	Streams map[Stream]Match

	order []Stream
}

func newInterrupted() *Interrupted {
	return &Interrupted{Streams: make(map[Stream]Match)}
}

func (e *Interrupted) add(s Stream, m Match) {
	if _, ok := e.Streams[s]; !ok {
		e.order = append(e.order, s)
	}
	e.Streams[s] = m
}

func (e *Interrupted) has(s Stream) bool {
	_, ok := e.Streams[s]
	return ok
}

func (e *Interrupted) empty() bool {
	return len(e.Streams) == 0
}

// Error lists the matched lines
func (e *Interrupted) Error() string {
	lines := make([]string, 0, len(e.order))
	for _, s := range e.order {
		lines = append(lines, fmt.Sprintf("%q", e.Streams[s].Line))
	}
	return fmt.Sprintf("multiplexer: %d stream(s) interrupted: %s", len(e.order), strings.Join(lines, ", "))
}

// Is makes errors.Is(err, ErrInterrupted) true
func (e *Interrupted) Is(target error) bool {
	return target == ErrInterrupted
}

// Reapply restores each stream's LineCheck on m. Streams m no longer owns
// are skipped.
func (e *Interrupted) Reapply(m *Multiplexer) {
	for _, s := range e.order {
		if st, ok := m.streams[s]; ok {
			st.check = e.Streams[s].Check
		}
	}
}

// ConflictError reports an AddStream call that disagrees with what the
// multiplexer already holds for the stream
type ConflictError struct {
	// Stream is the stream being re-registered
	Stream Stream
	// Reason describes the disagreement
	Reason string
	// Have is the buffered data already held
	Have []byte
	// Got is the buffered data the caller supplied
	Got []byte
}

// Error returns a formatted error message
func (e *ConflictError) Error() string {
	return fmt.Sprintf("multiplexer: %s for known stream %s (have %d buffered bytes, got %d)",
		e.Reason, streamName(e.Stream), len(e.Have), len(e.Got))
}

// Unwrap returns ErrConflict for error chain inspection
func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// streamName labels a stream for error messages and logs
func streamName(s Stream) string {
	if n, ok := s.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("fd %d", s.Fd())
}
