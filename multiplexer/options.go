package multiplexer

import (
	"log/slog"
	"os"
	"time"

	"github.com/SectorAlpha/AlphaGSM/internal/unix"
)

const (
	// DefaultReadSize is the most bytes read from one stream per step
	DefaultReadSize = 1000

	// reapPollInterval paces non-blocking reaping when no stream is open
	// and the caller asked for a finite timeout
	reapPollInterval = 10 * time.Millisecond
)

// DefaultHandoffTicks are the steps RunAndWaitForMarker runs on the target
// after a handoff: one bounded wait, then one non-blocking drain.
func DefaultHandoffTicks() []time.Duration {
	return []time.Duration{time.Second, 0}
}

// ChildWaiter blocks until some child process has exited, without reaping it
type ChildWaiter func() error

// config holds construction options. Scratch multiplexers created during a
// handoff share it with their target.
type config struct {
	sink         Sink
	logger       *slog.Logger
	newSelector  func() Selector
	waitChild    ChildWaiter
	readSize     int
	handoffTicks []time.Duration
}

func defaultConfig() config {
	return config{
		newSelector:  func() Selector { return NewPollSelector() },
		waitChild:    unix.WaitAnyChild,
		readSize:     DefaultReadSize,
		handoffTicks: DefaultHandoffTicks(),
	}
}

// Option configures a Multiplexer
type Option func(*config)

// WithSink sets where delivered lines go. The default writes to stdout.
func WithSink(s Sink) Option {
	return func(c *config) {
		c.sink = s
	}
}

// WithLogger sets the logger used for diagnostics
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithSelector sets the factory for the readiness selector
func WithSelector(newSelector func() Selector) Option {
	return func(c *config) {
		c.newSelector = newSelector
	}
}

// WithChildWaiter sets the primitive used to wait while every owned
// process has closed its streams
func WithChildWaiter(w ChildWaiter) Option {
	return func(c *config) {
		c.waitChild = w
	}
}

// WithReadSize sets the per-step read size
func WithReadSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.readSize = n
		}
	}
}

// WithHandoffTicks sets the steps run on the target after a handoff
func WithHandoffTicks(ticks ...time.Duration) Option {
	return func(c *config) {
		c.handoffTicks = ticks
	}
}

func (c *config) finish() {
	if c.sink == nil {
		c.sink = NewConsoleSink(os.Stdout)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
}
