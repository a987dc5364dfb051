package multiplexer

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

// Sink receives every line the multiplexer delivers. Tag is the display
// prefix including its trailing separator; it is empty for lifecycle
// notices such as "web has finished with status 0".
type Sink interface {
	WriteLine(tag, text string)
}

// SinkFunc adapts a function to Sink
type SinkFunc func(tag, text string)

// WriteLine calls f(tag, text)
func (f SinkFunc) WriteLine(tag, text string) {
	f(tag, text)
}

// ConsoleSink writes "<tag><text>\n" to a writer, rendering the tag with a
// lipgloss style. Styling degrades to plain text when the output does not
// support it.
type ConsoleSink struct {
	w     io.Writer
	style lipgloss.Style
	plain bool
}

// SinkOption configures a ConsoleSink
type SinkOption func(*ConsoleSink)

// WithTagStyle sets the style used to render tags
func WithTagStyle(style lipgloss.Style) SinkOption {
	return func(c *ConsoleSink) {
		c.style = style
	}
}

// WithPlainTags disables tag styling
func WithPlainTags() SinkOption {
	return func(c *ConsoleSink) {
		c.plain = true
	}
}

// DefaultTagStyle is the style ConsoleSink uses unless told otherwise
func DefaultTagStyle() lipgloss.Style {
	return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
}

// NewConsoleSink returns a sink writing to w
func NewConsoleSink(w io.Writer, opts ...SinkOption) *ConsoleSink {
	c := &ConsoleSink{w: w, style: DefaultTagStyle()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WriteLine writes one line
func (c *ConsoleSink) WriteLine(tag, text string) {
	if tag != "" && !c.plain {
		tag = c.style.Render(tag)
	}
	fmt.Fprintf(c.w, "%s%s\n", tag, text)
}
