package tailer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestTailer() *Tailer {
	return New(Options{
		PollInterval: 50 * time.Millisecond,
		ChangeSettle: 5 * time.Millisecond,
		Logger:       quietLogger(),
	})
}

// waitContent collects content events until want is seen or time runs out.
func waitContent(t *testing.T, tl *Tailer, want string) {
	t.Helper()
	var got strings.Builder
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-tl.Events():
			if ev.Kind == EventContent {
				got.WriteString(ev.Text)
				if got.String() == want {
					return
				}
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q, got %q", want, got.String())
		}
	}
}

func TestStartReadsLastLines(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "app.log")

	var content strings.Builder
	for i := 1; i <= 250; i++ {
		fmt.Fprintf(&content, "line %03d\r\n", i)
	}
	content.WriteString("\n\n")
	if err := os.WriteFile(logPath, []byte(content.String()), 0644); err != nil {
		t.Fatal(err)
	}

	tl := newTestTailer()
	defer tl.Close()

	text, err := tl.Start(logPath, false)
	if err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(text, "\n")
	if len(lines) != DefaultInitialLines {
		t.Fatalf("expected %d lines, got %d", DefaultInitialLines, len(lines))
	}
	if lines[0] != "line 151" || lines[99] != "line 250" {
		t.Errorf("unexpected window: first %q, last %q", lines[0], lines[99])
	}
	if tl.Offset() != int64(content.Len()) {
		t.Errorf("expected offset %d, got %d", content.Len(), tl.Offset())
	}
}

func TestLastLinesAcrossChunks(t *testing.T) {
	// Lines longer than a chunk force the leftover to carry over.
	long := strings.Repeat("x", chunkSize+100)
	data := "first\n" + long + "\nlast\n"

	text, err := lastLines(strings.NewReader(data), int64(len(data)), 10)
	if err != nil {
		t.Fatal(err)
	}
	want := "first\n" + long + "\nlast"
	if text != want {
		t.Errorf("unexpected text (len %d, want %d)", len(text), len(want))
	}

	text, err = lastLines(strings.NewReader(data), int64(len(data)), 2)
	if err != nil {
		t.Fatal(err)
	}
	if text != long+"\nlast" {
		t.Errorf("expected the last two lines, got len %d", len(text))
	}
}

func TestLastLinesStripsBOMAtFileStart(t *testing.T) {
	data := "\ufeffhello\nworld\n"

	text, err := lastLines(strings.NewReader(data), int64(len(data)), 100)
	if err != nil {
		t.Fatal(err)
	}
	if text != "hello\nworld" {
		t.Errorf("expected BOM stripped, got %q", text)
	}
}

func TestStartFromBeginning(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "app.log")
	if err := os.WriteFile(logPath, []byte("\ufeffa\nb\nc\n"), 0644); err != nil {
		t.Fatal(err)
	}

	tl := newTestTailer()
	defer tl.Close()

	text, err := tl.Start(logPath, true)
	if err != nil {
		t.Fatal(err)
	}
	if text != "a\nb\nc\n" {
		t.Errorf("expected full content without BOM, got %q", text)
	}
}

func TestTailNewContent(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "app.log")
	if err := os.WriteFile(logPath, []byte("existing line\n"), 0644); err != nil {
		t.Fatal(err)
	}

	tl := newTestTailer()
	defer tl.Close()

	if _, err := tl.Start(logPath, false); err != nil {
		t.Fatal(err)
	}

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.WriteString("hello from test\nsecond\n")
	f.Close()

	waitContent(t, tl, "hello from test\nsecond\n")
}

func TestRotationResetsOffset(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "app.log")
	if err := os.WriteFile(logPath, []byte(strings.Repeat("a", 999)+"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	tl := newTestTailer()
	defer tl.Close()

	if _, err := tl.Start(logPath, true); err != nil {
		t.Fatal(err)
	}
	if tl.Offset() != 1000 {
		t.Fatalf("expected offset 1000, got %d", tl.Offset())
	}

	// Replace the file atomically with a shorter one.
	replacement := strings.Repeat("b", 199) + "\n"
	tmp := filepath.Join(dir, "app.log.new")
	if err := os.WriteFile(tmp, []byte(replacement), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, logPath); err != nil {
		t.Fatal(err)
	}

	waitContent(t, tl, replacement)
	if tl.Offset() != 200 {
		t.Errorf("expected offset 200 after rotation, got %d", tl.Offset())
	}
}

func TestTransientReadFailureKeepsMonitoring(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "app.log")
	if err := os.WriteFile(logPath, []byte("one\n"), 0644); err != nil {
		t.Fatal(err)
	}

	tl := newTestTailer()
	defer tl.Close()

	if _, err := tl.Start(logPath, false); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(logPath); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-tl.Events():
		if ev.Kind != EventError {
			t.Fatalf("expected an error event, got %+v", ev)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for error event")
	}

	if !tl.Monitoring() {
		t.Fatal("expected monitoring to continue after a read failure")
	}

	// Shorter than the consumed offset, so it reads as a new file.
	if err := os.WriteFile(logPath, []byte("ok\n"), 0644); err != nil {
		t.Fatal(err)
	}
	waitContent(t, tl, "ok\n")
}

func TestOpenFailure(t *testing.T) {
	tl := newTestTailer()
	defer tl.Close()

	_, err := tl.Start(filepath.Join(t.TempDir(), "missing.log"), false)

	var openErr *OpenError
	if !errors.As(err, &openErr) {
		t.Fatalf("expected *OpenError, got %v", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected wrapped ErrNotExist, got %v", err)
	}
	if tl.Monitoring() {
		t.Error("expected tailer to stay idle")
	}

	select {
	case ev := <-tl.Events():
		if ev.Kind != EventError {
			t.Errorf("expected error event, got %+v", ev)
		}
	case <-time.After(time.Second):
		t.Error("expected an error event for the open failure")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "app.log")
	if err := os.WriteFile(logPath, []byte("x\n"), 0644); err != nil {
		t.Fatal(err)
	}

	tl := newTestTailer()
	defer tl.Close()

	tl.Stop()
	if _, err := tl.Start(logPath, false); err != nil {
		t.Fatal(err)
	}
	gen := tl.Generation()
	tl.Stop()
	tl.Stop()
	if tl.Monitoring() {
		t.Error("expected idle after Stop")
	}

	// Restarting opens a new session.
	if _, err := tl.Start(logPath, false); err != nil {
		t.Fatal(err)
	}
	if tl.Generation() == gen {
		t.Error("expected a new generation after restart")
	}
}

func TestCloseRejectsStart(t *testing.T) {
	tl := newTestTailer()
	if err := tl.Close(); err != nil {
		t.Fatal(err)
	}
	if err := tl.Close(); err != nil {
		t.Fatal(err)
	}

	_, err := tl.Start("whatever.log", false)
	if !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if _, ok := <-tl.Events(); ok {
		t.Error("expected events channel to be closed")
	}
}

func TestCompleteLen(t *testing.T) {
	euro := []byte("€") // 3 bytes

	tests := []struct {
		name string
		in   []byte
		want int
	}{
		{"ascii", []byte("abc"), 3},
		{"full rune", append([]byte("a"), euro...), 4},
		{"split rune", append([]byte("a"), euro[:2]...), 1},
		{"empty", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := completeLen(tt.in); got != tt.want {
				t.Errorf("completeLen() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestStartHoldsBackSplitRune(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "app.log")
	// The writer has only flushed the first byte of "é".
	if err := os.WriteFile(logPath, []byte("first\ncaf\xc3"), 0644); err != nil {
		t.Fatal(err)
	}

	tl := newTestTailer()
	defer tl.Close()

	text, err := tl.Start(logPath, false)
	if err != nil {
		t.Fatal(err)
	}
	if text != "first\ncaf" {
		t.Errorf("expected the partial rune to be held back, got %q", text)
	}
	if tl.Offset() != 9 {
		t.Errorf("expected offset 9, got %d", tl.Offset())
	}

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("\xa9 ok\n"); err != nil {
		t.Fatal(err)
	}
	f.Close()

	waitContent(t, tl, "é ok\n")
}

func TestStopDiscardsQueuedEvents(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "app.log")
	if err := os.WriteFile(logPath, []byte("one\n"), 0644); err != nil {
		t.Fatal(err)
	}

	tl := newTestTailer()
	defer tl.Close()

	if _, err := tl.Start(logPath, false); err != nil {
		t.Fatal(err)
	}
	start := tl.Offset()

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("two\n"); err != nil {
		t.Fatal(err)
	}
	f.Close()

	// The offset advances under the same lock that queues the event.
	deadline := time.Now().Add(3 * time.Second)
	for tl.Offset() == start {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for the append to be read")
		}
		time.Sleep(10 * time.Millisecond)
	}

	tl.Stop()

	select {
	case ev := <-tl.Events():
		t.Errorf("expected no event after Stop, got %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}
}
