package multiplexer

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"time"
)

// fakeStream returns queued chunks one Read at a time, then io.EOF
type fakeStream struct {
	fd     uintptr
	chunks [][]byte
	err    error
	closed bool
	// eagerEOF returns io.EOF together with the last chunk
	eagerEOF bool
}

var nextFakeFd uintptr = 100

func newFakeStream(chunks ...string) *fakeStream {
	nextFakeFd++
	s := &fakeStream{fd: nextFakeFd}
	for _, c := range chunks {
		s.chunks = append(s.chunks, []byte(c))
	}
	return s
}

func (s *fakeStream) Read(p []byte) (int, error) {
	if len(s.chunks) == 0 {
		if s.err != nil {
			return 0, s.err
		}
		return 0, io.EOF
	}
	n := copy(p, s.chunks[0])
	if n < len(s.chunks[0]) {
		s.chunks[0] = s.chunks[0][n:]
	} else {
		s.chunks = s.chunks[1:]
	}
	if s.eagerEOF && len(s.chunks) == 0 {
		return n, io.EOF
	}
	return n, nil
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

func (s *fakeStream) Fd() uintptr {
	return s.fd
}

func (s *fakeStream) Name() string {
	return fmt.Sprintf("fake%d", s.fd)
}

// fakeProc exits once exited is set, or on poll number exitAfter
type fakeProc struct {
	pid       int
	code      int
	exited    bool
	polls     int
	exitAfter int
	stdout    Stream
	stderr    Stream
}

func (p *fakeProc) Pid() int { return p.pid }

func (p *fakeProc) Poll() (int, bool, error) {
	p.polls++
	if p.exitAfter > 0 && p.polls >= p.exitAfter {
		p.exited = true
	}
	if !p.exited {
		return 0, false, nil
	}
	return p.code, true, nil
}

func (p *fakeProc) Wait() (int, error) {
	p.exited = true
	return p.code, nil
}

func (p *fakeProc) Kill() error {
	p.exited = true
	p.code = -9
	return nil
}

func (p *fakeProc) Stdout() Stream { return p.stdout }
func (p *fakeProc) Stderr() Stream { return p.stderr }

// fakeSelector reports every registered stream ready, like pipes that
// always hold data or have hung up
type fakeSelector struct {
	streams  []Stream
	timeouts []time.Duration
	closed   bool
	err      error
	// registerErr fails every Register; capacity fails those beyond it
	registerErr error
	capacity    int
}

var errSelectorFull = errors.New("selector full")

func (f *fakeSelector) Register(s Stream) error {
	if f.registerErr != nil {
		return f.registerErr
	}
	if f.capacity > 0 && len(f.streams) >= f.capacity {
		return errSelectorFull
	}
	if slices.Contains(f.streams, s) {
		return ErrRegistered
	}
	f.streams = append(f.streams, s)
	return nil
}

func (f *fakeSelector) Unregister(s Stream) error {
	i := slices.Index(f.streams, s)
	if i < 0 {
		return ErrUnknownStream
	}
	f.streams = slices.Delete(f.streams, i, i+1)
	return nil
}

func (f *fakeSelector) Select(timeout time.Duration) ([]Stream, error) {
	f.timeouts = append(f.timeouts, timeout)
	if f.err != nil {
		return nil, f.err
	}
	return slices.Clone(f.streams), nil
}

func (f *fakeSelector) Close() error {
	f.closed = true
	return nil
}

// recorder collects delivered lines as "tag|text"
type recorder struct {
	lines []string
}

func (r *recorder) WriteLine(tag, text string) {
	r.lines = append(r.lines, tag+"|"+text)
}

type harness struct {
	mux      *Multiplexer
	sel      *fakeSelector
	out      *recorder
	waits    int
	selector func() Selector
}

func newHarness(opts ...Option) *harness {
	h := &harness{sel: &fakeSelector{}, out: &recorder{}}
	h.selector = func() Selector { return h.sel }
	base := []Option{
		WithSink(h.out),
		WithSelector(h.selector),
		WithChildWaiter(func() error {
			h.waits++
			return nil
		}),
	}
	h.mux = New(append(base, opts...)...)
	return h
}
