package multiplexer

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"os/exec"
	"syscall"
	"time"

	"github.com/SectorAlpha/AlphaGSM/internal/unix"
)

// Idle is returned by Process when the multiplexer owns no processes
const Idle = -1

// LineCheck inspects one completed line, without its newline
type LineCheck func(line []byte) bool

type procState struct {
	tag     string
	streams []Stream
}

type streamState struct {
	proc   Process
	subtag string
	buf    *LineBuffer
	check  LineCheck
}

// Multiplexer owns a set of processes and their output streams. It is not
// safe for concurrent use.
type Multiplexer struct {
	cfg      config
	selector Selector
	procs    map[Process]*procState
	streams  map[Stream]*streamState

	// processes with no open stream, awaiting exit
	streamless orderedSet[Process]
	// streams holding data that must be re-checked and delivered
	// before the next read
	pending orderedSet[Stream]

	returns map[string]int
	chunk   []byte
}

// New returns an empty Multiplexer
func New(opts ...Option) *Multiplexer {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.finish()
	return newWithConfig(cfg)
}

func newWithConfig(cfg config) *Multiplexer {
	return &Multiplexer{
		cfg:      cfg,
		selector: cfg.newSelector(),
		procs:    make(map[Process]*procState),
		streams:  make(map[Stream]*streamState),
		returns:  make(map[string]int),
		chunk:    make([]byte, cfg.readSize),
	}
}

// Close releases the selector. Owned processes and streams are left alone.
func (m *Multiplexer) Close() error {
	return m.selector.Close()
}

// Run starts cmd and registers it under tag with its stdout and stderr.
// Start failures are returned unchanged. When registration fails the child
// is killed and collected, and nothing stays owned.
func (m *Multiplexer) Run(tag string, cmd *exec.Cmd) (*Cmd, error) {
	proc, err := Start(cmd)
	if err != nil {
		return nil, err
	}
	if err := m.AddProcess(tag, proc); err != nil {
		m.discard(proc)
		return nil, err
	}
	m.cfg.logger.Debug("started process", "tag", tag, "pid", proc.Pid(), "cmd", cmd.String())
	return proc, nil
}

// discard forgets proc, then kills and reaps it
func (m *Multiplexer) discard(proc *Cmd) {
	if err := m.RemoveProcess(proc); err != nil && !errors.Is(err, ErrUnknownProcess) {
		m.cfg.logger.Warn("removing process", "pid", proc.Pid(), "err", err)
	}
	for _, s := range []Stream{proc.Stdout(), proc.Stderr()} {
		if s != nil {
			_ = s.Close()
		}
	}
	if err := proc.Kill(); err != nil {
		m.cfg.logger.Debug("killing process", "pid", proc.Pid(), "err", err)
	}
	if _, err := proc.Wait(); err != nil {
		m.cfg.logger.Warn("collecting process", "pid", proc.Pid(), "err", err)
	}
}

// Process runs one step of the event loop and returns the number of open
// streams, or Idle when nothing is owned. timeout bounds the blocking wait;
// Forever blocks until something happens.
//
// An *Interrupted error means one or more LineChecks matched. Everything
// else in the step has completed and the matched lines were not delivered.
// A select failure after a match is joined with the *Interrupted so the
// match is still signalled.
func (m *Multiplexer) Process(timeout time.Duration) (int, error) {
	if len(m.procs) == 0 {
		return Idle, nil
	}

	intr := newInterrupted()
	for _, s := range m.pending.drain() {
		if st, ok := m.streams[s]; ok {
			m.consume(s, st, intr)
		}
	}

	if len(m.streams) > 0 {
		ready, err := m.selector.Select(timeout)
		if err != nil {
			err = fmt.Errorf("selecting streams: %w", err)
			if !intr.empty() {
				// lines matched before the select still have to be signalled
				m.requeue(intr)
				return len(m.streams), errors.Join(err, intr)
			}
			return len(m.streams), err
		}
		for _, s := range ready {
			m.read(s, intr)
		}
		m.reap()
	} else if err := m.waitStreamless(timeout); err != nil {
		return 0, err
	}

	if !intr.empty() {
		m.requeue(intr)
		return len(m.streams), intr
	}
	return len(m.streams), nil
}

// ProcessAll steps until no process is left. It stops at the first
// interruption or error.
func (m *Multiplexer) ProcessAll() error {
	for {
		n, err := m.Process(Forever)
		if err != nil {
			return err
		}
		if n == Idle {
			return nil
		}
	}
}

// CheckReturnValues returns the exit codes recorded since the last call,
// keyed by tag, and clears them.
func (m *Multiplexer) CheckReturnValues() map[string]int {
	out := maps.Clone(m.returns)
	clear(m.returns)
	return out
}

// consume delivers complete lines from st until its check matches
func (m *Multiplexer) consume(s Stream, st *streamState, intr *Interrupted) {
	for line := range st.buf.Lines() {
		if st.check != nil && st.check(line) {
			intr.add(s, Match{Line: line, Check: st.check})
			st.check = nil
			return
		}
		m.cfg.sink.WriteLine(m.displayTag(st), string(line))
	}
}

// read pulls one chunk from a ready stream. End of stream flushes the
// partial tail and closes the stream unless it was interrupted this step,
// in which case the stream stays put and end of stream is seen again later.
func (m *Multiplexer) read(s Stream, intr *Interrupted) {
	st, ok := m.streams[s]
	if !ok {
		return
	}
	n, err := s.Read(m.chunk)
	if n > 0 {
		st.buf.Append(m.chunk[:n])
	}
	if !intr.has(s) {
		m.consume(s, st, intr)
	}
	if n > 0 && err == nil {
		return
	}
	if err != nil && !errors.Is(err, io.EOF) {
		m.cfg.logger.Warn("read failed, treating as end of stream",
			"tag", m.displayTag(st), "stream", streamName(s), "err", err)
	}
	if intr.has(s) {
		return
	}

	if rest := st.buf.Flush(); len(rest) > 0 {
		m.cfg.sink.WriteLine(m.displayTag(st), string(rest))
	}
	if _, _, _, err := m.RemoveStream(s); err != nil {
		m.cfg.logger.Warn("removing stream", "stream", streamName(s), "err", err)
	}
	if err := s.Close(); err != nil {
		m.cfg.logger.Debug("closing stream", "stream", streamName(s), "err", err)
	}
}

// reap collects every streamless process that has exited and returns how
// many were collected
func (m *Multiplexer) reap() int {
	reaped := 0
	for _, p := range m.streamless.snapshot() {
		ps := m.procs[p]
		code, exited, err := p.Poll()
		if err != nil {
			m.cfg.logger.Warn("polling process", "tag", ps.tag, "pid", p.Pid(), "err", err)
			continue
		}
		if !exited {
			continue
		}
		m.returns[ps.tag] = code
		delete(m.procs, p)
		m.streamless.remove(p)
		m.notice("%s has finished with status %d", ps.tag, code)
		reaped++
	}
	return reaped
}

// waitStreamless handles a step with no open stream. Forever blocks in the
// child waiter; a finite timeout polls until something exits or time runs
// out.
func (m *Multiplexer) waitStreamless(timeout time.Duration) error {
	if timeout >= 0 {
		m.pollReap(time.Now().Add(timeout))
		return nil
	}
	err := m.cfg.waitChild()
	if err != nil && !errors.Is(err, syscall.ECHILD) && !errors.Is(err, unix.ErrUnsupported) {
		return fmt.Errorf("waiting for child: %w", err)
	}
	if m.reap() == 0 && !errors.Is(err, syscall.ECHILD) {
		// the child that ended the wait belongs to someone else and stays
		// waitable, so waiting again would return at once
		m.pollReap(time.Time{})
	}
	return nil
}

// pollReap reaps every reapPollInterval until a process is collected,
// nothing is owned or deadline passes. A zero deadline never passes.
func (m *Multiplexer) pollReap(deadline time.Time) {
	for m.reap() == 0 && len(m.procs) > 0 {
		wait := reapPollInterval
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return
			}
			wait = min(remaining, wait)
		}
		time.Sleep(wait)
	}
}

// requeue marks interrupted streams for delivery on the next step
func (m *Multiplexer) requeue(intr *Interrupted) {
	for _, s := range intr.order {
		if _, ok := m.streams[s]; ok {
			m.pending.add(s)
		}
	}
}

func (m *Multiplexer) displayTag(st *streamState) string {
	tag := m.procs[st.proc].tag
	if st.subtag != "" {
		tag += "-" + st.subtag
	}
	if tag != "" {
		tag += ": "
	}
	return tag
}

func (m *Multiplexer) notice(format string, args ...any) {
	m.cfg.sink.WriteLine("", fmt.Sprintf(format, args...))
}
