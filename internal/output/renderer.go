package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/atikulmunna/kitsune/internal/aggregator"
	"github.com/atikulmunna/kitsune/internal/model"
)

// Renderer writes panel output to a stream.
type Renderer interface {
	// Record writes one record from the named source.
	Record(source string, rec model.Record) error
	// Status writes a status, error or informational line.
	Status(source, text string) error
	// Stats writes a metrics snapshot.
	Stats(source string, s aggregator.Stats) error
}

// ---------------------------------------------------------------------------
// Text Renderer (colorized terminal output)
// ---------------------------------------------------------------------------

var (
	styleTrace = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Faint(true)
	styleDebug = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Faint(true)
	styleInfo  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	styleWarn  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))            // yellow
	styleError = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true) // red bold

	styleSource = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Faint(true) // cyan
	styleStatus = lipgloss.NewStyle().Foreground(lipgloss.Color("141")).Italic(true)
)

// LevelStyle returns the style for a level. Every level has one.
func LevelStyle(l model.Level) lipgloss.Style {
	switch l {
	case model.LevelTrace:
		return styleTrace
	case model.LevelDebug:
		return styleDebug
	case model.LevelWarning:
		return styleWarn
	case model.LevelError:
		return styleError
	default:
		return styleInfo
	}
}

// TextRenderer prints records with severity-based colors.
type TextRenderer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewTextRenderer returns a Renderer that writes colorized text to w.
func NewTextRenderer(w io.Writer) *TextRenderer {
	return &TextRenderer{w: w}
}

func (r *TextRenderer) Record(source string, rec model.Record) error {
	style := LevelStyle(rec.Level)
	tag := style.Render(fmt.Sprintf("%-5s", rec.Level))
	line := fmt.Sprintf("%s %s %s", styleSource.Render(source), tag, style.Render(rec.DisplayText()))
	return r.println(line)
}

func (r *TextRenderer) Status(source, text string) error {
	return r.println(fmt.Sprintf("%s %s", styleSource.Render(source), styleStatus.Render(text)))
}

func (r *TextRenderer) Stats(source string, s aggregator.Stats) error {
	levels := make([]string, 0, len(s.LevelCounts))
	for _, l := range model.Levels {
		levels = append(levels, fmt.Sprintf("%s=%d", l, s.LevelCounts[l.String()]))
	}
	line := fmt.Sprintf("%s up %s, %d lines (%d timestamped), %.1f lines/s, %d dropped, %s",
		styleSource.Render(source), s.Uptime, s.TotalRecords, s.Timestamped, s.RPS, s.DroppedLines,
		strings.Join(levels, " "))
	return r.println(line)
}

func (r *TextRenderer) println(line string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := fmt.Fprintln(r.w, line)
	return err
}

// ---------------------------------------------------------------------------
// JSON Renderer (structured output for piping)
// ---------------------------------------------------------------------------

// jsonLine is one line of JSON output. Exactly one of Record, Status and
// Stats is set.
type jsonLine struct {
	Source string            `json:"source"`
	Record *model.Record     `json:"record,omitempty"`
	Status string            `json:"status,omitempty"`
	Stats  *aggregator.Stats `json:"stats,omitempty"`
}

// JSONRenderer prints one JSON object per line.
type JSONRenderer struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONRenderer returns a Renderer that writes JSON lines to w.
func NewJSONRenderer(w io.Writer) *JSONRenderer {
	return &JSONRenderer{enc: json.NewEncoder(w)}
}

func (r *JSONRenderer) Record(source string, rec model.Record) error {
	return r.encode(jsonLine{Source: source, Record: &rec})
}

func (r *JSONRenderer) Status(source, text string) error {
	return r.encode(jsonLine{Source: source, Status: text})
}

func (r *JSONRenderer) Stats(source string, s aggregator.Stats) error {
	return r.encode(jsonLine{Source: source, Stats: &s})
}

func (r *JSONRenderer) encode(v jsonLine) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enc.Encode(v)
}

// New returns the renderer for format ("text" or "json").
func New(format string, w io.Writer) (Renderer, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		return NewTextRenderer(w), nil
	case "json":
		return NewJSONRenderer(w), nil
	default:
		return nil, fmt.Errorf("unknown output format %q (want %s)", format, strings.Join(Formats(), ", "))
	}
}

// Formats lists the supported output formats.
func Formats() []string {
	return []string{"json", "text"}
}
