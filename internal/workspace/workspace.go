// Package workspace manages the set of open panels: it opens and closes
// them, fans their events into one channel, applies filters across panels
// and keeps the auto session current.
package workspace

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/atikulmunna/kitsune/internal/hub"
	"github.com/atikulmunna/kitsune/internal/panel"
	"github.com/atikulmunna/kitsune/internal/session"
)

var (
	// ErrAlreadyOpen is returned when a file already has a panel.
	ErrAlreadyOpen = errors.New("workspace: file already open")
	// ErrUnknownPanel is returned for a handle that names no open panel.
	ErrUnknownPanel = errors.New("workspace: unknown panel")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("workspace: closed")
)

const eventBuffer = 1024

// Options configure a Workspace.
type Options struct {
	Panel panel.Options
	// Sessions, when set, receives the auto session after every open and
	// close.
	Sessions *session.Store
	Logger   logrus.FieldLogger
}

type entry struct {
	path  string
	panel *panel.Panel
}

// Workspace owns every open panel and the sync hub they share.
type Workspace struct {
	hub    *hub.Hub
	opts   Options
	log    logrus.FieldLogger
	events chan panel.Event
	done   chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	entries []entry
	closed  bool
}

// New creates an empty workspace around h.
func New(h *hub.Hub, opts Options) *Workspace {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Panel.Logger == nil {
		opts.Panel.Logger = opts.Logger
	}
	return &Workspace{
		hub:    h,
		opts:   opts,
		log:    opts.Logger.WithField("component", "workspace"),
		events: make(chan panel.Event, eventBuffer),
		done:   make(chan struct{}),
	}
}

// Events returns the events of every panel. It is closed by Close.
func (w *Workspace) Events() <-chan panel.Event { return w.events }

// Hub returns the shared sync hub.
func (w *Workspace) Hub() *hub.Hub { return w.hub }

// OpenFile opens path in a new panel. A panel whose file fails to load is
// kept and shows the error in its status; the error is returned alongside it.
func (w *Workspace) OpenFile(path string) (*panel.Panel, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil, ErrClosed
	}
	if slices.ContainsFunc(w.entries, func(e entry) bool { return e.path == abs }) {
		w.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAlreadyOpen, abs)
	}
	p := panel.New(w.hub, w.opts.Panel)
	w.entries = append(w.entries, entry{path: abs, panel: p})
	w.wg.Add(1)
	go w.forward(p)
	w.mu.Unlock()

	w.log.WithFields(logrus.Fields{"path": abs, "panel": p.ID()}).Info("opened panel")
	loadErr := p.LoadFile(abs)
	w.saveAuto()
	return p, loadErr
}

// Panels returns the open panels in opening order.
func (w *Workspace) Panels() []*panel.Panel {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*panel.Panel, len(w.entries))
	for i, e := range w.entries {
		out[i] = e.panel
	}
	return out
}

// Panel returns the panel with the given handle.
func (w *Workspace) Panel(id hub.Handle) (*panel.Panel, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, e := range w.entries {
		if e.panel.ID() == id {
			return e.panel, true
		}
	}
	return nil, false
}

// Paths returns the file of every open panel in opening order.
func (w *Workspace) Paths() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.entries))
	for i, e := range w.entries {
		out[i] = e.path
	}
	return out
}

// ClosePanel closes and removes one panel.
func (w *Workspace) ClosePanel(id hub.Handle) error {
	w.mu.Lock()
	i := slices.IndexFunc(w.entries, func(e entry) bool { return e.panel.ID() == id })
	if i < 0 {
		w.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownPanel, id)
	}
	p := w.entries[i].panel
	w.entries = slices.Delete(w.entries, i, i+1)
	w.mu.Unlock()

	err := p.Close()
	w.log.WithField("panel", id).Info("closed panel")
	w.saveAuto()
	return err
}

// CloseAll closes every panel and leaves the workspace usable.
func (w *Workspace) CloseAll() {
	w.mu.Lock()
	entries := w.entries
	w.entries = nil
	w.mu.Unlock()

	for _, e := range entries {
		if err := e.panel.Close(); err != nil {
			w.log.WithError(err).WithField("panel", e.panel.ID()).Warn("failed to close panel")
		}
	}
}

// ApplyFilterToAll sets filter on every open panel.
func (w *Workspace) ApplyFilterToAll(filter string) {
	for _, p := range w.Panels() {
		p.SetFilter(filter)
	}
	w.log.WithField("filter", filter).Debug("applied filter to all panels")
}

// SetSyncEnabled turns timestamp sync on or off for the whole workspace.
func (w *Workspace) SetSyncEnabled(enabled bool) {
	w.hub.SetEnabled(enabled)
}

// SyncEnabled reports whether timestamp sync is on.
func (w *Workspace) SyncEnabled() bool {
	return w.hub.Enabled()
}

// RestoreLastSession opens the files of the auto session that still exist
// and returns how many panels were opened.
func (w *Workspace) RestoreLastSession() (int, error) {
	if w.opts.Sessions == nil {
		return 0, nil
	}
	files := w.opts.Sessions.LastSessionFiles()
	if len(files) == 0 {
		return 0, nil
	}
	w.log.WithField("files", len(files)).Info("restoring session")
	return w.openAll(files)
}

// LoadSession replaces the open panels with the files of a named session.
func (w *Workspace) LoadSession(name string) (int, error) {
	if w.opts.Sessions == nil {
		return 0, fmt.Errorf("%w: %s", session.ErrNotFound, name)
	}
	files, err := w.opts.Sessions.Load(name)
	if err != nil {
		return 0, err
	}
	w.CloseAll()
	return w.openAll(files)
}

// SaveSession stores the open files under name.
func (w *Workspace) SaveSession(name string) error {
	if w.opts.Sessions == nil {
		return errors.New("workspace: no session store")
	}
	return w.opts.Sessions.Save(name, w.Paths())
}

// Close closes every panel and the event channel. The hub is left to its
// owner.
func (w *Workspace) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.mu.Unlock()

	w.CloseAll()
	close(w.done)
	w.wg.Wait()
	close(w.events)
}

func (w *Workspace) openAll(files []string) (int, error) {
	var errs []error
	opened := 0
	for _, f := range files {
		if _, err := w.OpenFile(f); err != nil {
			errs = append(errs, err)
			if errors.Is(err, ErrAlreadyOpen) || errors.Is(err, ErrClosed) {
				continue
			}
		}
		opened++
	}
	return opened, errors.Join(errs...)
}

// forward copies a panel's events into the workspace channel until the
// panel closes.
func (w *Workspace) forward(p *panel.Panel) {
	defer w.wg.Done()
	for ev := range p.Events() {
		if ev.Kind == panel.FilterToAllRequested {
			w.ApplyFilterToAll(ev.Text)
		}
		select {
		case w.events <- ev:
		case <-w.done:
		}
	}
}

// saveAuto records the open files as the auto session.
func (w *Workspace) saveAuto() {
	if w.opts.Sessions == nil {
		return
	}
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return
	}
	err := w.opts.Sessions.SaveAuto(w.Paths())
	if err != nil && !errors.Is(err, session.ErrNoFiles) {
		w.log.WithError(err).Warn("failed to save auto session")
	}
}
