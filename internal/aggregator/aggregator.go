package aggregator

import (
	"sync"
	"time"

	"github.com/atikulmunna/kitsune/internal/model"
)

// rateWindow is the span used for the lines-per-second figure.
const rateWindow = 5 * time.Second

const windowSeconds = int64(rateWindow / time.Second)

// bucket counts arrivals within one wall-clock second.
type bucket struct {
	sec int64
	n   int64
}

// Stats holds a point-in-time snapshot of a panel's metrics.
type Stats struct {
	Uptime       string           `json:"uptime"`
	TotalRecords int64            `json:"total_records"`
	Timestamped  int64            `json:"timestamped"`
	RPS          float64          `json:"rps"`
	LevelCounts  map[string]int64 `json:"level_counts"`
	DroppedLines int64            `json:"dropped_lines"`
}

// Aggregator counts records per level and computes a sliding ingest rate.
// It is safe for concurrent use.
type Aggregator struct {
	mu          sync.RWMutex
	startTime   time.Time
	total       int64
	timestamped int64
	dropped     int64
	levelCounts map[model.Level]int64
	window      [windowSeconds]bucket // indexed by second modulo windowSeconds
	now         func() time.Time
}

// New creates an empty Aggregator.
func New() *Aggregator {
	return &Aggregator{
		startTime:   time.Now(),
		levelCounts: make(map[model.Level]int64),
		now:         time.Now,
	}
}

// Record adds a record to the metrics.
func (a *Aggregator) Record(rec model.Record) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	a.total++
	a.levelCounts[rec.Level]++
	if rec.HasTimestamp {
		a.timestamped++
	}
	sec := now.Unix()
	b := &a.window[sec%windowSeconds]
	if b.sec != sec {
		*b = bucket{sec: sec}
	}
	b.n++
}

// RecordDropped counts lines that arrived while the panel was paused.
func (a *Aggregator) RecordDropped(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dropped += int64(n)
}

// Reset clears every counter except uptime.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.total = 0
	a.timestamped = 0
	a.dropped = 0
	a.levelCounts = make(map[model.Level]int64)
	a.window = [windowSeconds]bucket{}
}

// Snapshot returns the current metrics.
func (a *Aggregator) Snapshot() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	recent := a.recentLocked(now)

	// Copy level counts.
	counts := make(map[string]int64, len(model.Levels))
	for _, l := range model.Levels {
		counts[l.String()] = a.levelCounts[l]
	}

	return Stats{
		Uptime:       now.Sub(a.startTime).Truncate(time.Second).String(),
		TotalRecords: a.total,
		Timestamped:  a.timestamped,
		RPS:          float64(recent) / rateWindow.Seconds(),
		LevelCounts:  counts,
		DroppedLines: a.dropped,
	}
}

// recentLocked counts arrivals in the last windowSeconds seconds, the
// current one included.
func (a *Aggregator) recentLocked(now time.Time) int64 {
	cur := now.Unix()
	var total int64
	for _, b := range a.window {
		if b.n > 0 && b.sec <= cur && cur-b.sec < windowSeconds {
			total += b.n
		}
	}
	return total
}
