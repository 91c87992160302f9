package tailer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/atikulmunna/kitsune/internal/watcher"
)

const (
	DefaultInitialLines = 100
	DefaultPollInterval = time.Second
	DefaultChangeSettle = 50 * time.Millisecond
)

// ErrClosed is returned by Start after Close.
var ErrClosed = errors.New("tailer: closed")

// OpenError reports that the monitored file could not be opened or read when
// monitoring started. The tailer stays idle.
type OpenError struct {
	Path string
	Err  error
}

func (e *OpenError) Error() string { return fmt.Sprintf("open %s: %v", e.Path, e.Err) }

func (e *OpenError) Unwrap() error { return e.Err }

// EventKind distinguishes tailer events.
type EventKind int

const (
	EventContent EventKind = iota
	EventError
)

// Event is emitted for newly appended text or a read failure. Generation
// identifies the monitoring session that produced it.
type Event struct {
	Kind       EventKind
	Generation uint64
	Text       string
	Err        error
}

// Options tune a Tailer. Zero values take the package defaults.
type Options struct {
	InitialLines int
	PollInterval time.Duration
	ChangeSettle time.Duration
	Logger       logrus.FieldLogger
}

// Tailer follows one file: it returns an initial window of content and then
// emits every appended block of text as an Event.
type Tailer struct {
	opts   Options
	log    logrus.FieldLogger
	events chan Event

	mu         sync.Mutex // lifecycle
	path       string
	gen        uint64
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	monitoring bool
	closed     bool

	readMu sync.Mutex // read-and-advance
	offset int64
}

// New creates an idle Tailer.
func New(opts Options) *Tailer {
	if opts.InitialLines <= 0 {
		opts.InitialLines = DefaultInitialLines
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.ChangeSettle < 0 {
		opts.ChangeSettle = 0
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Tailer{
		opts:   opts,
		log:    opts.Logger.WithField("component", "tailer"),
		events: make(chan Event, 64),
	}
}

// Events returns the channel of content and error events. It is closed by Close.
func (t *Tailer) Events() <-chan Event {
	return t.events
}

// Start begins monitoring path, stopping any previous session first. It
// returns the whole file when readFromStart is set, otherwise the last
// InitialLines lines joined by "\n".
func (t *Tailer) Start(path string, readFromStart bool) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return "", ErrClosed
	}
	t.stopLocked()

	log := t.log.WithField("path", path)
	log.Info("starting monitoring")

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", t.openFailed(path, err)
	}

	text, offset, err := readInitial(abs, readFromStart, t.opts.InitialLines)
	if err != nil {
		return "", t.openFailed(path, err)
	}

	t.readMu.Lock()
	t.offset = offset
	t.readMu.Unlock()

	t.gen++
	t.path = abs
	t.monitoring = true

	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel

	w, err := watcher.New(abs, t.opts.Logger)
	if err != nil {
		// The fallback ticker still picks up changes.
		log.WithError(err).Warn("change notification unavailable, polling only")
	} else {
		t.wg.Add(2)
		go func() {
			defer t.wg.Done()
			w.Start(ctx)
		}()
		go t.watchLoop(ctx, t.gen, abs, w)
	}

	t.wg.Add(1)
	go t.pollLoop(ctx, t.gen, abs)

	log.WithField("offset", offset).Info("now monitoring")
	return text, nil
}

// openFailed reports an open failure both as an event and as the returned error.
func (t *Tailer) openFailed(path string, err error) error {
	openErr := &OpenError{Path: path, Err: err}
	t.log.WithField("path", path).WithError(err).Error("failed to start monitoring")
	select {
	case t.events <- Event{Kind: EventError, Generation: t.gen, Err: openErr}:
	default:
	}
	return openErr
}

// Stop ends the current session. Events it produced that are still queued
// are discarded, so none is delivered after Stop returns. Calling Stop on an
// idle tailer is a no-op.
func (t *Tailer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

func (t *Tailer) stopLocked() {
	if t.cancel == nil {
		return
	}
	t.cancel()
	t.cancel = nil
	// Trigger goroutines never take t.mu, so waiting here cannot deadlock.
	t.wg.Wait()
	t.drain()
	t.monitoring = false
	t.log.WithField("path", t.path).Debug("stopped monitoring")
}

// drain drops queued events. Only the session goroutines send content, and
// they have exited.
func (t *Tailer) drain() {
	for {
		select {
		case <-t.events:
		default:
			return
		}
	}
}

// Close stops monitoring and makes the tailer unusable.
func (t *Tailer) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	t.stopLocked()
	close(t.events)
	return nil
}

// Monitoring reports whether a session is active.
func (t *Tailer) Monitoring() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.monitoring
}

// Path returns the absolute path of the current or last session.
func (t *Tailer) Path() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.path
}

// Generation identifies the current session. Events carrying another
// generation belong to a stopped session.
func (t *Tailer) Generation() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gen
}

// Offset returns the byte offset consumed so far.
func (t *Tailer) Offset() int64 {
	t.readMu.Lock()
	defer t.readMu.Unlock()
	return t.offset
}

// watchLoop turns change notifications into reads.
func (t *Tailer) watchLoop(ctx context.Context, gen uint64, path string, w *watcher.Watcher) {
	defer t.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.Events():
			// Give the writer a moment to finish the current write.
			if t.opts.ChangeSettle > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(t.opts.ChangeSettle):
				}
			}
			t.readNew(ctx, gen, path)
		case err := <-w.Errors():
			t.emit(ctx, Event{Kind: EventError, Generation: gen, Err: fmt.Errorf("watch %s: %w", path, err)})
		}
	}
}

// pollLoop is the fallback for filesystems that drop notifications.
func (t *Tailer) pollLoop(ctx context.Context, gen uint64, path string) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.readNew(ctx, gen, path)
		}
	}
}

// readNew reads everything appended since the last offset and emits it.
// Concurrent triggers queue on readMu, so each one sees the offset left by
// the previous read.
func (t *Tailer) readNew(ctx context.Context, gen uint64, path string) {
	t.readMu.Lock()
	defer t.readMu.Unlock()

	if ctx.Err() != nil {
		return
	}

	text, err := t.readLocked(path)
	if err != nil {
		t.log.WithField("path", path).WithError(err).Warn("incremental read failed, will retry")
		t.emit(ctx, Event{Kind: EventError, Generation: gen, Err: err})
		return
	}
	if text != "" {
		t.emit(ctx, Event{Kind: EventContent, Generation: gen, Text: text})
	}
}

func (t *Tailer) readLocked(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("reopen %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}

	size := info.Size()
	if size < t.offset {
		t.log.WithFields(logrus.Fields{"path": path, "offset": t.offset, "size": size}).Info("file shrank, rotation detected")
		t.offset = 0
	}
	if size <= t.offset {
		return "", nil
	}

	start := t.offset
	if _, err := f.Seek(start, io.SeekStart); err != nil {
		return "", fmt.Errorf("seek %s: %w", path, err)
	}
	b, err := io.ReadAll(f)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}

	// A rune split by the writer is picked up whole on the next read.
	n := completeLen(b)
	t.offset = start + int64(n)
	return decode(b[:n], start == 0), nil
}

// emit delivers an event unless the session has been stopped.
func (t *Tailer) emit(ctx context.Context, ev Event) {
	select {
	case t.events <- ev:
	case <-ctx.Done():
	}
}
