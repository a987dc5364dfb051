package multiplexer

import (
	"fmt"
	"slices"
	"time"

	"github.com/SectorAlpha/AlphaGSM/internal/unix"
)

// Forever makes Process and Select block without a timeout
const Forever time.Duration = -1

// Selector reports which registered streams are readable
type Selector interface {
	// Register starts monitoring s
	Register(s Stream) error
	// Unregister stops monitoring s
	Unregister(s Stream) error
	// Select blocks until at least one stream is readable or at end of
	// stream, or until timeout elapses. A negative timeout blocks
	// indefinitely. Ready streams are returned in registration order.
	Select(timeout time.Duration) ([]Stream, error)
	// Close releases any resources held by the selector
	Close() error
}

// PollSelector is a Selector built on poll(2)
type PollSelector struct {
	streams []Stream
}

// NewPollSelector returns an empty PollSelector
func NewPollSelector() *PollSelector {
	return &PollSelector{}
}

// Register starts monitoring s
func (p *PollSelector) Register(s Stream) error {
	if slices.Contains(p.streams, s) {
		return fmt.Errorf("%w: %s", ErrRegistered, streamName(s))
	}
	p.streams = append(p.streams, s)
	return nil
}

// Unregister stops monitoring s
func (p *PollSelector) Unregister(s Stream) error {
	i := slices.Index(p.streams, s)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownStream, streamName(s))
	}
	p.streams = slices.Delete(p.streams, i, i+1)
	return nil
}

// Select polls every registered stream. Hang-up and error conditions count
// as readable so the caller observes end of stream on the next read.
func (p *PollSelector) Select(timeout time.Duration) ([]Stream, error) {
	fds := make([]int, len(p.streams))
	for i, s := range p.streams {
		fds[i] = int(s.Fd())
	}
	ready, err := unix.Poll(fds, timeout)
	if err != nil {
		return nil, fmt.Errorf("poll: %w", err)
	}
	var out []Stream
	for i, ok := range ready {
		if ok {
			out = append(out, p.streams[i])
		}
	}
	return out, nil
}

// Close forgets all registered streams
func (p *PollSelector) Close() error {
	p.streams = nil
	return nil
}
