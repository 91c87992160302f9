package watcher

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Event represents a change to the watched file.
type Event struct {
	Path string
	Op   fsnotify.Op
}

// Watcher reports size and last-write changes to a single file. It watches the
// parent directory so that a file replaced under the same name keeps
// producing events.
type Watcher struct {
	fsw    *fsnotify.Watcher
	events chan Event
	errors chan error
	path   string
	log    logrus.FieldLogger
}

// New creates a Watcher scoped to the directory of path and filtered to its
// exact file name.
func New(path string, log logrus.FieldLogger) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Watcher{
		fsw:    fsw,
		events: make(chan Event, 64),
		errors: make(chan error, 8),
		path:   abs,
		log:    log.WithField("component", "watcher"),
	}, nil
}

// Events returns the channel of change events for the watched file.
func (w *Watcher) Events() <-chan Event { return w.events }

// Errors returns the channel of watcher failures.
func (w *Watcher) Errors() <-chan error { return w.errors }

// Path returns the absolute path being watched.
func (w *Watcher) Path() string { return w.path }

// Start forwards matching events until the context is cancelled. The
// underlying watcher is closed on return.
func (w *Watcher) Start(ctx context.Context) {
	defer w.fsw.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.relevant(ev) {
				continue
			}
			// Coalesce: one pending event is enough to trigger a read.
			select {
			case w.events <- Event{Path: ev.Name, Op: ev.Op}:
			default:
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Warn("watcher error")
			select {
			case w.errors <- err:
			default:
			}
		}
	}
}

// relevant keeps write and create notifications for the exact file name.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != w.path {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)
}

// Expand resolves glob patterns to matching file paths. Patterns without
// glob syntax are returned as-is so that a missing file still reaches the
// caller and fails with a proper open error.
// Supports recursive patterns like /var/log/**/*.log via doublestar.
func Expand(patterns []string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	for _, pattern := range patterns {
		matches := []string{pattern}
		if hasMeta(pattern) {
			var err error
			matches, err = doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly(), doublestar.WithFailOnIOErrors())
			if err != nil {
				return nil, fmt.Errorf("expand %q: %w", pattern, err)
			}
		}
		for _, m := range matches {
			abs, err := filepath.Abs(m)
			if err != nil {
				return nil, fmt.Errorf("resolve %s: %w", m, err)
			}
			if !seen[abs] {
				seen[abs] = true
				out = append(out, abs)
			}
		}
	}
	return out, nil
}

func hasMeta(pattern string) bool {
	for i := 0; i < len(pattern); i++ {
		switch pattern[i] {
		case '*', '?', '[', '{':
			return true
		}
	}
	return false
}
