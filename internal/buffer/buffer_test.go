package buffer

import (
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/atikulmunna/kitsune/internal/parser"
)

func newUTC(capacity int) *Buffer {
	return New(capacity, parser.New(time.UTC))
}

func TestAppendAssignsSequence(t *testing.T) {
	b := newUTC(10)

	for i := 1; i <= 3; i++ {
		rec := b.Append(fmt.Sprintf("line %d", i))
		if rec.Sequence != i {
			t.Errorf("expected sequence %d, got %d", i, rec.Sequence)
		}
	}
	if b.Len() != 3 {
		t.Errorf("expected 3 records, got %d", b.Len())
	}
}

func TestEvictionAtDefaultCapacity(t *testing.T) {
	b := newUTC(0)

	for i := 1; i <= DefaultCapacity+1; i++ {
		b.Append(fmt.Sprintf("line %d", i))
	}

	if b.Len() != DefaultCapacity {
		t.Fatalf("expected %d records, got %d", DefaultCapacity, b.Len())
	}
	recs := b.Records()
	if recs[0].Sequence != 2 || recs[0].RawText != "line 2" {
		t.Errorf("expected oldest retained record to be line 2, got %+v", recs[0])
	}
	if last := recs[len(recs)-1]; last.Sequence != DefaultCapacity+1 {
		t.Errorf("expected newest sequence %d, got %d", DefaultCapacity+1, last.Sequence)
	}
	if _, ok := b.Get(1); ok {
		t.Error("expected the first record to be evicted")
	}
}

func TestRingOrderAfterWrap(t *testing.T) {
	b := newUTC(3)
	for i := 1; i <= 7; i++ {
		b.Append(fmt.Sprintf("l%d", i))
	}

	var got []string
	for _, r := range b.Records() {
		got = append(got, r.RawText)
	}
	want := []string{"l5", "l6", "l7"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Records() = %v, want %v", got, want)
	}

	rec, ok := b.Get(6)
	if !ok || rec.RawText != "l6" {
		t.Errorf("Get(6) = %+v, %v", rec, ok)
	}
}

func TestClearResetsSequence(t *testing.T) {
	b := newUTC(3)
	for i := 0; i < 5; i++ {
		b.Append("x")
	}

	b.Clear()
	if b.Len() != 0 || b.LastSequence() != 0 {
		t.Fatalf("expected empty buffer, got len %d seq %d", b.Len(), b.LastSequence())
	}

	rec := b.Append("fresh")
	if rec.Sequence != 1 {
		t.Errorf("expected sequence to restart at 1, got %d", rec.Sequence)
	}
	if recs := b.Records(); len(recs) != 1 || recs[0].RawText != "fresh" {
		t.Errorf("unexpected records after clear: %+v", recs)
	}
}

func TestFilterView(t *testing.T) {
	b := newUTC(10)
	b.Append("ERROR disk full")
	b.Append("INFO all good")
	b.Append("error: retry")

	b.SetFilter("Error")
	view := b.View()
	if len(view) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(view))
	}
	if view[0].Sequence != 1 || view[1].Sequence != 3 {
		t.Errorf("unexpected matches: %+v", view)
	}
	if b.Len() != 3 {
		t.Error("filter must not remove records")
	}

	b.SetFilter("")
	if len(b.View()) != 3 {
		t.Error("expected empty filter to match all")
	}

	b.SetFilter("   ")
	if len(b.View()) != 3 {
		t.Error("expected blank filter to match all")
	}
}

func TestFilterIdempotent(t *testing.T) {
	b := newUTC(10)
	b.Append("alpha")
	b.Append("beta")
	b.Append("alphabet")

	b.SetFilter("alp")
	once := b.View()
	b.SetFilter("alp")
	twice := b.View()

	if !reflect.DeepEqual(once, twice) {
		t.Errorf("filter not idempotent: %+v vs %+v", once, twice)
	}
}

func TestFindClosestByTime(t *testing.T) {
	b := newUTC(10)
	b.Append("no timestamp here")
	b.Append("2024-01-15T10:00:00Z a")
	b.Append("2024-01-15T10:00:10Z b")
	b.Append("2024-01-15T10:00:20Z c")

	target := time.Date(2024, 1, 15, 10, 0, 12, 0, time.UTC)
	rec, ok := b.FindClosestByTime(target)
	if !ok || rec.Content != "b" {
		t.Errorf("expected record b, got %+v (found=%v)", rec, ok)
	}

	// 10:00:05 is equally far from a and b; the earlier record wins.
	tie := time.Date(2024, 1, 15, 10, 0, 5, 0, time.UTC)
	rec, ok = b.FindClosestByTime(tie)
	if !ok || rec.Sequence != 2 {
		t.Errorf("expected tie to resolve to sequence 2, got %+v", rec)
	}
}

func TestFindClosestByTimeNoTimestamps(t *testing.T) {
	b := newUTC(10)
	b.Append("plain")

	if _, ok := b.FindClosestByTime(time.Now()); ok {
		t.Error("expected no match without timestamps")
	}
}
