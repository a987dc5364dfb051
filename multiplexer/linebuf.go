package multiplexer

import (
	"bytes"
	"iter"
)

// LineBuffer accumulates raw bytes from one stream and hands back complete
// newline-terminated lines, keeping any partial tail for later appends.
type LineBuffer struct {
	data []byte
}

// NewLineBuffer returns a buffer seeded with a copy of initial
func NewLineBuffer(initial []byte) *LineBuffer {
	return &LineBuffer{data: bytes.Clone(initial)}
}

// Append adds p to the end of the buffer
func (b *LineBuffer) Append(p []byte) {
	b.data = append(b.data, p...)
}

// Lines yields the complete lines present when iteration starts, without
// their delimiter. Each yielded line is removed from the buffer before it is
// yielded, so stopping early leaves the remaining lines buffered.
func (b *LineBuffer) Lines() iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		for {
			i := bytes.IndexByte(b.data, '\n')
			if i < 0 {
				return
			}
			line := bytes.Clone(b.data[:i])
			b.data = b.data[i+1:]
			if !yield(line) {
				return
			}
		}
	}
}

// Flush removes and returns everything left in the buffer. It is used once
// at end of stream so a final unterminated line is not dropped.
func (b *LineBuffer) Flush() []byte {
	rest := b.data
	b.data = nil
	return rest
}

// Bytes returns a copy of the unconsumed data
func (b *LineBuffer) Bytes() []byte {
	return bytes.Clone(b.data)
}

// Len returns the number of unconsumed bytes
func (b *LineBuffer) Len() int {
	return len(b.data)
}
