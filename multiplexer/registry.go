package multiplexer

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
)

// AddBareProcess registers proc under tag without any stream. Registering a
// known process only updates its tag.
func (m *Multiplexer) AddBareProcess(tag string, proc Process) {
	if ps, ok := m.procs[proc]; ok {
		ps.tag = tag
		return
	}
	m.procs[proc] = &procState{tag: tag}
	m.streamless.add(proc)
}

// AddProcess registers proc under tag together with the output streams it
// exposes through Piped.
func (m *Multiplexer) AddProcess(tag string, proc Process) error {
	m.AddBareProcess(tag, proc)
	p, ok := proc.(Piped)
	if !ok {
		return nil
	}
	for _, s := range []Stream{p.Stdout(), p.Stderr()} {
		if s == nil {
			continue
		}
		if err := m.AddStream(s, proc, "", nil); err != nil {
			return err
		}
	}
	return nil
}

// AddStream associates s with an already registered process. initial seeds
// the stream's line buffer and, when non-empty, is checked and delivered on
// the next step.
//
// Adding a known stream again with the same initial data only replaces its
// sub-tag. Any other disagreement fails with a *ConflictError.
func (m *Multiplexer) AddStream(s Stream, proc Process, subtag string, initial []byte) error {
	ps, ok := m.procs[proc]
	if !ok {
		return fmt.Errorf("%w: pid %d", ErrUnknownProcess, proc.Pid())
	}
	if st, known := m.streams[s]; known {
		if st.proc != proc {
			return &ConflictError{Stream: s, Reason: "owned by another process", Have: st.buf.Bytes(), Got: initial}
		}
		if !bytes.Equal(st.buf.Bytes(), initial) {
			return &ConflictError{Stream: s, Reason: "different buffered data", Have: st.buf.Bytes(), Got: initial}
		}
		st.subtag = subtag
		return nil
	}

	if err := m.selector.Register(s); err != nil {
		return fmt.Errorf("registering %s: %w", streamName(s), err)
	}
	m.streams[s] = &streamState{proc: proc, subtag: subtag, buf: NewLineBuffer(initial)}
	ps.streams = append(ps.streams, s)
	m.streamless.remove(proc)
	if len(initial) > 0 {
		m.pending.add(s)
	}
	m.cfg.logger.Debug("stream added", "tag", ps.tag, "stream", streamName(s), "buffered", len(initial))
	return nil
}

// RemoveStream stops monitoring s and returns its owner, sub-tag and the
// data still buffered for it. The stream is not closed. A process left
// without streams waits to be reaped.
func (m *Multiplexer) RemoveStream(s Stream) (Process, string, []byte, error) {
	st, ok := m.streams[s]
	if !ok {
		return nil, "", nil, fmt.Errorf("%w: %s", ErrUnknownStream, streamName(s))
	}
	if err := m.selector.Unregister(s); err != nil && !errors.Is(err, ErrUnknownStream) {
		return nil, "", nil, fmt.Errorf("unregistering %s: %w", streamName(s), err)
	}
	ps := m.procs[st.proc]
	ps.streams = slices.DeleteFunc(ps.streams, func(x Stream) bool { return x == s })
	delete(m.streams, s)
	m.pending.remove(s)
	if len(ps.streams) == 0 {
		m.streamless.add(st.proc)
	}
	return st.proc, st.subtag, st.buf.Bytes(), nil
}

// RemoveProcess forgets proc and all of its streams without closing them
func (m *Multiplexer) RemoveProcess(proc Process) error {
	ps, ok := m.procs[proc]
	if !ok {
		return fmt.Errorf("%w: pid %d", ErrUnknownProcess, proc.Pid())
	}
	for _, s := range slices.Clone(ps.streams) {
		if _, _, _, err := m.RemoveStream(s); err != nil {
			return err
		}
	}
	delete(m.procs, proc)
	m.streamless.remove(proc)
	return nil
}

// Transfer moves proc, its tag, its streams and their buffered data to
// target. Nothing moves unless every stream can be added to target; on
// failure both multiplexers are left as they were. Line
// checks do not travel; see Interrupted.Reapply.
func (m *Multiplexer) Transfer(target *Multiplexer, proc Process) error {
	ps, ok := m.procs[proc]
	if !ok {
		return fmt.Errorf("%w: pid %d", ErrUnknownProcess, proc.Pid())
	}
	if target == m {
		return nil
	}
	for _, s := range ps.streams {
		ts, known := target.streams[s]
		if !known {
			continue
		}
		have := m.streams[s].buf.Bytes()
		if ts.proc != proc {
			return &ConflictError{Stream: s, Reason: "owned by another process", Have: ts.buf.Bytes(), Got: have}
		}
		if !bytes.Equal(ts.buf.Bytes(), have) {
			return &ConflictError{Stream: s, Reason: "different buffered data", Have: ts.buf.Bytes(), Got: have}
		}
	}

	// every stream joins target before any leaves m, so a failure can be
	// undone on target alone
	prev, known := target.procs[proc]
	var prevTag string
	if known {
		prevTag = prev.tag
	}
	target.AddBareProcess(ps.tag, proc)
	var added []Stream
	for _, s := range ps.streams {
		_, had := target.streams[s]
		st := m.streams[s]
		if err := target.AddStream(s, proc, st.subtag, st.buf.Bytes()); err != nil {
			target.undoTransfer(proc, added, known, prevTag)
			return err
		}
		if !had {
			added = append(added, s)
		}
	}

	for _, s := range slices.Clone(ps.streams) {
		if _, _, _, err := m.RemoveStream(s); err != nil {
			m.cfg.logger.Warn("releasing transferred stream", "stream", streamName(s), "err", err)
			delete(m.streams, s)
			m.pending.remove(s)
		}
	}
	delete(m.procs, proc)
	m.streamless.remove(proc)
	return nil
}

// undoTransfer drops the streams a failed Transfer added and restores
// what m knew about proc before it
func (m *Multiplexer) undoTransfer(proc Process, added []Stream, known bool, tag string) {
	for _, s := range added {
		if _, _, _, err := m.RemoveStream(s); err != nil {
			m.cfg.logger.Warn("undoing transfer", "stream", streamName(s), "err", err)
		}
	}
	if known {
		m.procs[proc].tag = tag
		return
	}
	delete(m.procs, proc)
	m.streamless.remove(proc)
}

// SetLineCheck attaches check to s, replacing any previous one. A nil
// check clears it. Data already buffered is checked on the next step.
func (m *Multiplexer) SetLineCheck(s Stream, check LineCheck) error {
	st, ok := m.streams[s]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownStream, streamName(s))
	}
	st.check = check
	if check != nil && st.buf.Len() > 0 {
		m.pending.add(s)
	}
	return nil
}

// Has reports whether proc is owned by m
func (m *Multiplexer) Has(proc Process) bool {
	_, ok := m.procs[proc]
	return ok
}

// Tag returns the tag proc was registered under
func (m *Multiplexer) Tag(proc Process) (string, bool) {
	ps, ok := m.procs[proc]
	if !ok {
		return "", false
	}
	return ps.tag, true
}

// Streams returns the open streams of proc in registration order
func (m *Multiplexer) Streams(proc Process) []Stream {
	ps, ok := m.procs[proc]
	if !ok {
		return nil
	}
	return slices.Clone(ps.streams)
}

// Streamless reports whether proc is owned and has no open stream
func (m *Multiplexer) Streamless(proc Process) bool {
	return m.streamless.has(proc)
}

// Buffered returns a copy of the unconsumed data held for s
func (m *Multiplexer) Buffered(s Stream) ([]byte, bool) {
	st, ok := m.streams[s]
	if !ok {
		return nil, false
	}
	return st.buf.Bytes(), true
}

// Len returns the number of owned processes
func (m *Multiplexer) Len() int {
	return len(m.procs)
}

// Contains returns a LineCheck matching lines that contain substr
func Contains(substr string) LineCheck {
	b := []byte(substr)
	return func(line []byte) bool {
		return bytes.Contains(line, b)
	}
}

// Equals returns a LineCheck matching lines equal to s
func Equals(s string) LineCheck {
	b := []byte(s)
	return func(line []byte) bool {
		return bytes.Equal(line, b)
	}
}
