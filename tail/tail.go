// Package tail follows a growing text file, such as a screen session log,
// and delivers each completed line on a channel. It keeps following across
// truncation, removal and replacement of the file.
package tail

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"vawter.tech/stopper"

	"github.com/SectorAlpha/AlphaGSM/multiplexer"
)

const (
	// DefaultDebounce coalesces bursts of write events
	DefaultDebounce = 10 * time.Millisecond

	// DefaultPollInterval rescans the file when no event arrives, which
	// covers filesystems without inotify support
	DefaultPollInterval = time.Second

	readChunk = 4096
)

// ErrClosed is returned by WaitFor when following ended without a match
var ErrClosed = errors.New("tail: stopped before a matching line")

// Line is one line of the followed file, or an error from the watcher
type Line struct {
	Text string
	Err  error
}

// CleanupFunc stops following and closes the channel. It may be called
// more than once.
type CleanupFunc func() error

type config struct {
	fromStart    bool
	debounce     time.Duration
	pollInterval time.Duration
	logger       *slog.Logger
}

// Option configures Follow
type Option func(*config)

// FromStart delivers the existing contents first instead of only new lines
func FromStart() Option {
	return func(c *config) {
		c.fromStart = true
	}
}

// WithDebounce sets how long to wait after a write event before reading
func WithDebounce(d time.Duration) Option {
	return func(c *config) {
		c.debounce = d
	}
}

// WithPollInterval sets the fallback rescan interval
func WithPollInterval(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithLogger sets the logger for reopen diagnostics
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// follower holds the open file. All access happens under mu, which also
// serializes sends so the channel can be closed safely.
type follower struct {
	mu        sync.Mutex
	path      string
	log       *slog.Logger
	file      *os.File
	inode     uint64
	offset    int64
	fromStart bool
	buf       *multiplexer.LineBuffer
	debouncer *time.Timer
	closed    bool
	ch        chan Line
	stopping  <-chan struct{}
}

// Follow starts following path. A missing file is not an error; lines flow
// once it is created. The parent directory must exist.
func Follow(ctx context.Context, path string, opts ...Option) (<-chan Line, CleanupFunc, error) {
	cfg := config{
		debounce:     DefaultDebounce,
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	path = filepath.Clean(path)
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, err
	}
	// the directory is watched so creation and rename of the file are seen
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return nil, nil, err
	}

	sctx := stopper.WithContext(ctx)
	f := &follower{
		path:      path,
		log:       cfg.logger,
		fromStart: cfg.fromStart,
		buf:       multiplexer.NewLineBuffer(nil),
		ch:        make(chan Line, 64),
		stopping:  sctx.Stopping(),
	}

	sctx.Defer(func() {
		_ = watcher.Close()
		f.close()
	})

	cleanup := func() error {
		sctx.Stop(100 * time.Millisecond)
		return sctx.Wait()
	}

	f.schedule(0)

	sctx.Go(func(sctx *stopper.Context) error {
		ticker := time.NewTicker(cfg.pollInterval)
		defer ticker.Stop()

		for !sctx.IsStopping() {
			select {
			case <-sctx.Stopping():
				return nil

			case <-sctx.Done():
				return nil

			case event, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if filepath.Clean(event.Name) == path {
					f.schedule(cfg.debounce)
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				if err != nil {
					f.mu.Lock()
					f.send(Line{Err: err})
					f.mu.Unlock()
				}

			case <-ticker.C:
				f.scan()
			}
		}
		return nil
	})

	return f.ch, cleanup, nil
}

// schedule runs a scan after d, replacing any scan already pending
func (f *follower) schedule(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	if f.debouncer != nil {
		f.debouncer.Stop()
	}
	f.debouncer = time.AfterFunc(d, f.scan)
}

// scan reads everything new, reopening the file when it was truncated or
// replaced. A partial last line of a replaced file is delivered as a line.
func (f *follower) scan() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for range 2 {
		if f.closed {
			return
		}
		if f.file == nil && !f.open() {
			return
		}
		if !f.drain() {
			return
		}
		if !f.rotated() {
			return
		}
		if rest := f.buf.Flush(); len(rest) > 0 && !f.send(Line{Text: string(rest)}) {
			return
		}
		f.log.Debug("log file replaced, reopening", "path", f.path)
		f.file.Close()
		f.file = nil
		f.fromStart = true
	}
}

func (f *follower) open() bool {
	file, err := os.Open(f.path)
	if err != nil {
		// whatever appears later is new
		f.fromStart = true
		return false
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return false
	}
	f.file = file
	f.inode = inode(info)
	f.offset = 0
	if !f.fromStart {
		if off, err := file.Seek(0, io.SeekEnd); err == nil {
			f.offset = off
		}
	}
	return true
}

// drain reads to end of file, delivering lines. It reports false when the
// follower is stopping.
func (f *follower) drain() bool {
	chunk := make([]byte, readChunk)
	for {
		n, err := f.file.Read(chunk)
		if n > 0 {
			f.offset += int64(n)
			f.buf.Append(chunk[:n])
			for line := range f.buf.Lines() {
				if !f.send(Line{Text: string(line)}) {
					return false
				}
			}
		}
		if err != nil || n == 0 {
			return true
		}
	}
}

// rotated reports whether the path no longer names the open file or the
// file shrank below what was read
func (f *follower) rotated() bool {
	info, err := os.Stat(f.path)
	if err != nil {
		return true
	}
	return inode(info) != f.inode || info.Size() < f.offset
}

func (f *follower) send(l Line) bool {
	if f.closed {
		return false
	}
	select {
	case f.ch <- l:
		return true
	case <-f.stopping:
		return false
	}
}

func (f *follower) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	if f.debouncer != nil {
		f.debouncer.Stop()
	}
	if f.file != nil {
		f.file.Close()
	}
	close(f.ch)
}

// WaitFor follows path until a line matches check and returns that line.
// Non-matching lines are dropped.
func WaitFor(ctx context.Context, path string, check multiplexer.LineCheck, opts ...Option) (string, error) {
	lines, cleanup, err := Follow(ctx, path, opts...)
	if err != nil {
		return "", err
	}
	defer func() { _ = cleanup() }()

	for {
		select {
		case l, ok := <-lines:
			if !ok {
				if ctx.Err() != nil {
					return "", ctx.Err()
				}
				return "", ErrClosed
			}
			if l.Err != nil {
				return "", l.Err
			}
			if check([]byte(l.Text)) {
				return l.Text, nil
			}
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}
