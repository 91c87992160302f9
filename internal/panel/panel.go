package panel

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/atikulmunna/kitsune/internal/aggregator"
	"github.com/atikulmunna/kitsune/internal/buffer"
	"github.com/atikulmunna/kitsune/internal/hub"
	"github.com/atikulmunna/kitsune/internal/model"
	"github.com/atikulmunna/kitsune/internal/parser"
	"github.com/atikulmunna/kitsune/internal/tailer"
)

const defaultEventBuffer = 256

// ErrClosed is returned by commands issued after Close.
var ErrClosed = errors.New("panel: closed")

// lineBreaks normalizes every line ending to "\n" before splitting.
var lineBreaks = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// Options configure a Panel.
type Options struct {
	Capacity      int
	Parser        parser.Parser
	Tail          tailer.Options
	ReadFromStart bool
	EventBuffer   int
	Logger        logrus.FieldLogger
}

// Panel drives one stream: it tails a file into a record buffer, reacts to
// sync broadcasts from other panels and reports everything as Events.
// Every entry point takes mu, which makes it the single delivery path for
// the buffer.
type Panel struct {
	id     hub.Handle
	hub    *hub.Hub
	tail   *tailer.Tailer
	sub    *hub.Subscription
	stats  *aggregator.Aggregator
	events chan Event
	log    logrus.FieldLogger
	opts   Options
	wg     sync.WaitGroup

	mu          sync.Mutex
	buf         *buffer.Buffer
	path        string
	title       string
	gen         uint64
	paused      bool
	follow      bool
	syncEnabled bool
	status      string
	loaded      bool
	closed      bool
	dropped     int64
}

// New creates a panel attached to h. Follow and sync start enabled.
func New(h *hub.Hub, opts Options) *Panel {
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = defaultEventBuffer
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Tail.Logger == nil {
		opts.Tail.Logger = opts.Logger
	}

	id := h.NewHandle()
	p := &Panel{
		id:          id,
		hub:         h,
		tail:        tailer.New(opts.Tail),
		sub:         h.Subscribe(),
		stats:       aggregator.New(),
		events:      make(chan Event, opts.EventBuffer),
		log:         opts.Logger.WithFields(logrus.Fields{"component": "panel", "panel": id}),
		opts:        opts,
		buf:         buffer.New(opts.Capacity, opts.Parser),
		title:       "New Log",
		follow:      true,
		syncEnabled: true,
		status:      "Ready",
	}

	p.wg.Add(2)
	go p.consumeTail()
	go p.consumeSync()

	p.log.Debug("panel created")
	return p
}

// ID returns the panel's broadcaster handle.
func (p *Panel) ID() hub.Handle { return p.id }

// Events returns the event channel. It is closed by Close.
func (p *Panel) Events() <-chan Event { return p.events }

// LoadFile clears the panel and starts tailing path. The initial window goes
// through the same append path as live updates.
func (p *Panel) LoadFile(path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	log := p.log.WithField("path", path)
	log.Info("loading file")

	p.loaded = false
	p.buf.Clear()
	p.stats.Reset()
	p.path = path
	p.title = filepath.Base(path)
	p.setStatusLocked("Loading...")

	text, err := p.tail.Start(path, p.opts.ReadFromStart)
	if err != nil {
		log.WithError(err).Error("failed to load file")
		p.setStatusLocked("Error: " + err.Error())
		return fmt.Errorf("load %s: %w", path, err)
	}
	p.path = p.tail.Path()
	p.gen = p.tail.Generation()
	p.loaded = true

	if text != "" {
		log.WithField("chars", len(text)).Debug("got initial content")
		p.appendLocked(text)
	}

	log.Info("successfully loaded")
	p.setStatusLocked(p.monitoringStatus())
	return nil
}

// Pause drops incoming content until Resume.
func (p *Panel) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused || p.closed {
		return
	}
	p.paused = true
	p.setStatusLocked("Paused")
}

// Resume continues appending new content. Content that arrived while paused
// is not replayed.
func (p *Panel) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.paused || p.closed {
		return
	}
	p.paused = false
	p.setStatusLocked(p.monitoringStatus())
}

// SetFollow toggles auto-scroll. Turning it on requests a scroll to the end.
func (p *Panel) SetFollow(follow bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	turnedOn := follow && !p.follow
	p.follow = follow
	if turnedOn {
		p.emitLocked(Event{Kind: ScrollToEndRequested})
	}
}

// SetFilter replaces the filter text used by View.
func (p *Panel) SetFilter(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buf.SetFilter(text)
}

// ApplyFilterToAll asks the owner to apply this panel's filter everywhere.
func (p *Panel) ApplyFilterToAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.emitLocked(Event{Kind: FilterToAllRequested, Text: p.buf.Filter()})
}

// Clear empties the buffer and restarts numbering.
func (p *Panel) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buf.Clear()
	p.stats.Reset()
}

// Copy returns every buffered line, unfiltered, joined by newlines.
func (p *Panel) Copy() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var sb strings.Builder
	first := true
	p.buf.Each(func(r model.Record) bool {
		if !first {
			sb.WriteByte('\n')
		}
		first = false
		sb.WriteString(r.RawText)
		return true
	})
	return sb.String()
}

// SetSyncEnabled controls whether this panel broadcasts and follows
// broadcasts from others.
func (p *Panel) SetSyncEnabled(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.syncEnabled = enabled
}

// Select handles a local selection of the record with the given sequence
// number. A timestamped record is broadcast to the other panels. It reports
// whether the record is still buffered.
func (p *Panel) Select(sequence int) (model.Record, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, ok := p.buf.Get(sequence)
	if !ok {
		return model.Record{}, false
	}
	if p.syncEnabled && rec.HasTimestamp {
		p.hub.Broadcast(rec.Timestamp, p.id)
	}
	return rec, true
}

// Close stops tailing, unsubscribes from the hub and closes the event
// channel.
func (p *Panel) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	err := p.tail.Close()
	p.sub.Close()
	p.wg.Wait()
	close(p.events)

	p.log.Debug("panel closed")
	return err
}

func (p *Panel) consumeTail() {
	defer p.wg.Done()
	for ev := range p.tail.Events() {
		p.handleTail(ev)
	}
}

func (p *Panel) consumeSync() {
	defer p.wg.Done()
	for n := range p.sub.C() {
		p.handleSync(n)
	}
}

func (p *Panel) handleTail(ev tailer.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || ev.Generation != p.gen {
		return
	}

	switch ev.Kind {
	case tailer.EventContent:
		if !p.loaded {
			return
		}
		if p.paused {
			p.stats.RecordDropped(len(splitLines(ev.Text)))
			return
		}
		if strings.HasPrefix(p.status, "Error: ") {
			p.setStatusLocked(p.monitoringStatus())
		}
		p.appendLocked(ev.Text)
	case tailer.EventError:
		msg := ev.Err.Error()
		p.emitLocked(Event{Kind: ErrorOccurred, Text: msg})
		p.setStatusLocked("Error: " + msg)
	}
}

func (p *Panel) handleSync(n hub.Notification) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || !p.syncEnabled || n.Source == p.id {
		p.log.WithFields(logrus.Fields{"sync": p.syncEnabled, "self": n.Source == p.id}).Debug("ignoring sync notification")
		return
	}

	rec, ok := p.buf.FindClosestByTime(n.Time)
	if !ok {
		return
	}
	p.log.WithField("sequence", rec.Sequence).Debug("syncing to record")
	p.emitLocked(Event{Kind: ScrollToRecordRequested, Record: rec})
}

// appendLocked splits text into lines, appends the non-empty ones and emits
// the resulting batch.
func (p *Panel) appendLocked(text string) {
	lines := splitLines(text)
	if len(lines) == 0 {
		return
	}

	batch := make([]model.Record, 0, len(lines))
	for _, line := range lines {
		rec := p.buf.Append(line)
		p.stats.Record(rec)
		batch = append(batch, rec)
	}

	p.emitLocked(Event{Kind: RecordsAppended, Records: batch})
	if p.follow {
		p.emitLocked(Event{Kind: ScrollToEndRequested})
	}
}

// splitLines splits on \r\n, \r and \n and drops empty lines.
func splitLines(text string) []string {
	parts := strings.Split(lineBreaks.Replace(text), "\n")
	lines := parts[:0]
	for _, part := range parts {
		if part != "" {
			lines = append(lines, part)
		}
	}
	return lines
}

func (p *Panel) monitoringStatus() string {
	return "Monitoring: " + p.title
}

func (p *Panel) setStatusLocked(status string) {
	if status == p.status {
		return
	}
	p.status = status
	p.emitLocked(Event{Kind: StatusChanged, Text: status})
}

// emitLocked delivers an event without blocking. Events for a consumer that
// has fallen behind are dropped; the buffer still holds every record.
func (p *Panel) emitLocked(ev Event) {
	if p.closed {
		return
	}
	ev.Panel = p.id
	select {
	case p.events <- ev:
	default:
		p.dropped++
		p.log.WithField("dropped", p.dropped).Warn("dropped event for slow consumer")
	}
}

// Path returns the file being tailed, or "" before LoadFile.
func (p *Panel) Path() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.path
}

// Title returns the file name shown for the panel.
func (p *Panel) Title() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.title
}

// Status returns the current status text.
func (p *Panel) Status() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *Panel) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func (p *Panel) Following() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.follow
}

func (p *Panel) SyncEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.syncEnabled
}

func (p *Panel) Filter() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.Filter()
}

// View returns the buffered records that match the filter, oldest first.
func (p *Panel) View() []model.Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.View()
}

// Records returns every buffered record, oldest first.
func (p *Panel) Records() []model.Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.Records()
}

// TotalLines returns the number of lines appended since the last clear,
// including evicted ones.
func (p *Panel) TotalLines() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.LastSequence()
}

// Stats returns the panel's ingest metrics.
func (p *Panel) Stats() aggregator.Stats {
	return p.stats.Snapshot()
}

// Match reports whether rec passes the panel's filter.
func (p *Panel) Match(rec model.Record) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.Match(rec)
}
