package aggregator

import (
	"testing"
	"time"

	"github.com/atikulmunna/kitsune/internal/model"
)

func TestRateCalculation(t *testing.T) {
	agg := New()

	for i := 0; i < 10; i++ {
		agg.Record(model.Record{Level: model.LevelInfo, RawText: "test"})
	}

	stats := agg.Snapshot()
	if stats.TotalRecords != 10 {
		t.Errorf("expected 10 total records, got %d", stats.TotalRecords)
	}
	if stats.RPS <= 0 {
		t.Errorf("expected positive RPS, got %f", stats.RPS)
	}
}

func TestLevelCounts(t *testing.T) {
	agg := New()

	agg.Record(model.Record{Level: model.LevelInfo})
	agg.Record(model.Record{Level: model.LevelInfo})
	agg.Record(model.Record{Level: model.LevelError, HasTimestamp: true})
	agg.Record(model.Record{Level: model.LevelWarning})
	agg.Record(model.Record{Level: model.LevelError})

	stats := agg.Snapshot()
	if stats.LevelCounts["INFO"] != 2 {
		t.Errorf("expected 2 INFO, got %d", stats.LevelCounts["INFO"])
	}
	if stats.LevelCounts["ERROR"] != 2 {
		t.Errorf("expected 2 ERROR, got %d", stats.LevelCounts["ERROR"])
	}
	if stats.LevelCounts["WARN"] != 1 {
		t.Errorf("expected 1 WARN, got %d", stats.LevelCounts["WARN"])
	}
	if stats.LevelCounts["TRACE"] != 0 {
		t.Errorf("expected 0 TRACE, got %d", stats.LevelCounts["TRACE"])
	}
	if stats.Timestamped != 1 {
		t.Errorf("expected 1 timestamped record, got %d", stats.Timestamped)
	}
}

func TestWindowPrunesOldArrivals(t *testing.T) {
	agg := New()
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	agg.now = func() time.Time { return clock }

	for i := 0; i < 5; i++ {
		agg.Record(model.Record{})
	}
	clock = clock.Add(2 * rateWindow)

	stats := agg.Snapshot()
	if stats.RPS != 0 {
		t.Errorf("expected RPS 0 after the window passed, got %f", stats.RPS)
	}
	if stats.TotalRecords != 5 {
		t.Errorf("expected totals to survive pruning, got %d", stats.TotalRecords)
	}
}

func TestReset(t *testing.T) {
	agg := New()
	agg.Record(model.Record{Level: model.LevelError})
	agg.RecordDropped(3)

	agg.Reset()

	stats := agg.Snapshot()
	if stats.TotalRecords != 0 || stats.DroppedLines != 0 || stats.LevelCounts["ERROR"] != 0 {
		t.Errorf("expected zeroed stats, got %+v", stats)
	}
}

func TestBurstRecordingStaysLinear(t *testing.T) {
	agg := New()
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	agg.now = func() time.Time { return clock }

	const n = 50000
	start := time.Now()
	for i := 0; i < n; i++ {
		agg.Record(model.Record{Level: model.LevelInfo})
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("recording %d records inside one window took %s", n, elapsed)
	}

	stats := agg.Snapshot()
	if want := float64(n) / rateWindow.Seconds(); stats.RPS != want {
		t.Errorf("expected RPS %f, got %f", want, stats.RPS)
	}
}

func TestRateSpansWindowSeconds(t *testing.T) {
	agg := New()
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	agg.now = func() time.Time { return clock }

	// Two records per second for eight seconds; only the last five count.
	for s := 0; s < 8; s++ {
		agg.Record(model.Record{})
		agg.Record(model.Record{})
		clock = clock.Add(time.Second)
	}
	clock = clock.Add(-time.Second)

	if got := agg.Snapshot().RPS; got != 2 {
		t.Errorf("expected RPS 2, got %f", got)
	}
}
