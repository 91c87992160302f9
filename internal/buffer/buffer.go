// Package buffer holds the bounded, ordered record history of one stream.
//
// A Buffer is not safe for concurrent use. Its owner serializes every call,
// which in practice is the panel that feeds it.
package buffer

import (
	"strings"
	"time"

	"github.com/atikulmunna/kitsune/internal/model"
	"github.com/atikulmunna/kitsune/internal/parser"
)

// DefaultCapacity is the number of records kept before the oldest is evicted.
const DefaultCapacity = 50000

// Buffer is a circular buffer of records with FIFO eviction and a
// case-insensitive substring filter.
type Buffer struct {
	parser   parser.Parser
	entries  []model.Record
	capacity int
	head     int // next write position
	size     int
	seq      int // last assigned sequence number

	filter      string
	filterLower string
}

// New creates an empty buffer. A non-positive capacity means DefaultCapacity
// and a nil parser means the default local-time parser.
func New(capacity int, p parser.Parser) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if p == nil {
		p = parser.New(nil)
	}
	return &Buffer{
		parser:   p,
		capacity: capacity,
		// Grown on demand; most streams never reach capacity.
		entries: make([]model.Record, 0, min(capacity, 1024)),
	}
}

// Append parses line with the next sequence number and stores it, evicting
// the oldest record when the buffer is full.
func (b *Buffer) Append(line string) model.Record {
	b.seq++
	rec := b.parser.Parse(line, b.seq)

	if len(b.entries) < b.capacity {
		b.entries = append(b.entries, rec)
		b.size++
		b.head = len(b.entries) % b.capacity
		return rec
	}

	b.entries[b.head] = rec
	b.head = (b.head + 1) % b.capacity
	return rec
}

// Clear removes every record and restarts numbering at 1.
func (b *Buffer) Clear() {
	b.entries = b.entries[:0]
	b.head = 0
	b.size = 0
	b.seq = 0
}

// Len returns the number of stored records.
func (b *Buffer) Len() int { return b.size }

// Capacity returns the maximum number of stored records.
func (b *Buffer) Capacity() int { return b.capacity }

// LastSequence returns the most recently assigned sequence number.
func (b *Buffer) LastSequence() int { return b.seq }

// Each calls fn for every record from oldest to newest until fn returns false.
func (b *Buffer) Each(fn func(model.Record) bool) {
	start := 0
	if b.size == b.capacity {
		start = b.head // oldest entry is at head when full
	}
	for i := 0; i < b.size; i++ {
		if !fn(b.entries[(start+i)%b.capacity]) {
			return
		}
	}
}

// Records returns all records in order.
func (b *Buffer) Records() []model.Record {
	out := make([]model.Record, 0, b.size)
	b.Each(func(r model.Record) bool {
		out = append(out, r)
		return true
	})
	return out
}

// Get returns the record with the given sequence number if it is still held.
func (b *Buffer) Get(sequence int) (model.Record, bool) {
	if b.size == 0 {
		return model.Record{}, false
	}
	// Sequences are contiguous between the oldest and the newest record.
	oldest := b.seq - b.size + 1
	if sequence < oldest || sequence > b.seq {
		return model.Record{}, false
	}
	start := 0
	if b.size == b.capacity {
		start = b.head
	}
	return b.entries[(start+sequence-oldest)%b.capacity], true
}

// SetFilter replaces the filter text. Blank text matches everything.
func (b *Buffer) SetFilter(text string) {
	b.filter = text
	b.filterLower = strings.ToLower(text)
}

// Filter returns the current filter text.
func (b *Buffer) Filter() string { return b.filter }

// Match reports whether rec passes the current filter.
func (b *Buffer) Match(rec model.Record) bool {
	if strings.TrimSpace(b.filter) == "" {
		return true
	}
	return strings.Contains(strings.ToLower(rec.RawText), b.filterLower)
}

// View returns the records that pass the current filter, in order.
func (b *Buffer) View() []model.Record {
	out := make([]model.Record, 0, b.size)
	b.Each(func(r model.Record) bool {
		if b.Match(r) {
			out = append(out, r)
		}
		return true
	})
	return out
}

// FindClosestByTime returns the timestamped record nearest to target. On a
// tie the earlier record wins.
func (b *Buffer) FindClosestByTime(target time.Time) (model.Record, bool) {
	var (
		best     model.Record
		bestDist time.Duration
		found    bool
	)
	b.Each(func(r model.Record) bool {
		if !r.HasTimestamp {
			return true
		}
		d := absDuration(r.Timestamp.Sub(target))
		if !found || d < bestDist {
			best, bestDist, found = r, d, true
		}
		return true
	})
	return best, found
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		// Sub saturates at the minimum, which has no positive counterpart.
		if d == time.Duration(-1<<63) {
			return time.Duration(1<<63 - 1)
		}
		return -d
	}
	return d
}
