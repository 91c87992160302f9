package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/atikulmunna/kitsune/internal/model"
)

// Parser converts a raw log line into a structured Record.
type Parser interface {
	Parse(raw string, sequence int) model.Record
}

// contentTrim is the separator set stripped between a timestamp and the message.
const contentTrim = " :-|"

// ---------------------------------------------------------------------------
// Timestamp patterns
// ---------------------------------------------------------------------------

// pattern is one timestamp family. convert turns the first capture group into
// an instant; a false return means the structural match is discarded and the
// next family is tried.
type pattern struct {
	re      *regexp.Regexp
	convert func(s string, loc *time.Location) (time.Time, bool)

	// digitsOnly rejects a match that is immediately followed by another
	// digit, so that a 13-digit value never reads as a 10-digit one.
	digitsOnly bool
}

// patterns is ordered: families overlap, and earlier entries win.
var patterns = []pattern{
	{
		re:      regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d{1,7})?(?:Z|[+-]\d{2}:\d{2})?)`),
		convert: convertISO,
	},
	{
		re:      regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}\s+\d{2}:\d{2}:\d{2}(?:[.,]\d{1,7})?)`),
		convert: convertLayout("2006-01-02 15:04:05"),
	},
	{
		re:      regexp.MustCompile(`^\[(\d{4}-\d{2}-\d{2}\s+\d{2}:\d{2}:\d{2}(?:[.,]\d{1,7})?)\]`),
		convert: convertLayout("2006-01-02 15:04:05"),
	},
	{
		re:      regexp.MustCompile(`^(\d{2}\s+[A-Za-z]{3}\s+\d{4}\s+\d{2}:\d{2}:\d{2}(?:[.,]\d{1,3})?)`),
		convert: convertLayout("02 Jan 2006 15:04:05"),
	},
	{
		re:         regexp.MustCompile(`^(\d{10})(?:\.\d+)?`),
		convert:    convertEpoch(time.Unix),
		digitsOnly: true,
	},
	{
		re:         regexp.MustCompile(`^(\d{13})`),
		convert:    convertEpoch(func(ms, _ int64) time.Time { return time.UnixMilli(ms) }),
		digitsOnly: true,
	},
}

func convertISO(s string, loc *time.Location) (time.Time, bool) {
	if strings.HasSuffix(s, "Z") || hasOffset(s) {
		t, err := time.Parse(time.RFC3339Nano, s)
		return t, err == nil
	}
	t, err := time.ParseInLocation("2006-01-02T15:04:05", s, loc)
	return t, err == nil
}

// hasOffset reports whether an ISO timestamp ends in a ±hh:mm zone.
func hasOffset(s string) bool {
	if len(s) < 6 {
		return false
	}
	tail := s[len(s)-6:]
	return (tail[0] == '+' || tail[0] == '-') && tail[3] == ':'
}

// convertLayout parses calendar forms. The fraction separator may be a comma
// and the fields may be separated by runs of whitespace; both are normalized
// before parsing. Fractional seconds are accepted by time.Parse even though
// the layout does not name them.
func convertLayout(layout string) func(string, *time.Location) (time.Time, bool) {
	return func(s string, loc *time.Location) (time.Time, bool) {
		s = strings.Join(strings.Fields(strings.ReplaceAll(s, ",", ".")), " ")
		t, err := time.ParseInLocation(layout, s, loc)
		return t, err == nil
	}
}

func convertEpoch(fn func(int64, int64) time.Time) func(string, *time.Location) (time.Time, bool) {
	return func(s string, loc *time.Location) (time.Time, bool) {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return time.Time{}, false
		}
		return fn(n, 0).In(loc), true
	}
}

// ---------------------------------------------------------------------------
// Level detection
// ---------------------------------------------------------------------------

// levelRe finds the leftmost whole-word level token. Longer spellings come
// first so that INFORMATION is not cut to INFO.
var levelRe = regexp.MustCompile(`(?i)\b(INFORMATION|WARNING|CRITICAL|TRACE|DEBUG|INFO|WARN|ERROR|FATAL|ERR|WRN|INF|DBG|TRC)\b`)

// normalizeLevel maps a level token onto the closed Level set.
func normalizeLevel(s string) model.Level {
	switch strings.ToUpper(s) {
	case "TRACE", "TRC":
		return model.LevelTrace
	case "DEBUG", "DBG":
		return model.LevelDebug
	case "WARN", "WARNING", "WRN":
		return model.LevelWarning
	case "ERROR", "ERR", "FATAL", "CRITICAL":
		return model.LevelError
	default:
		return model.LevelInfo
	}
}

// DetectLevel scans the whole line for a level token. Lines without one are Info.
func DetectLevel(line string) model.Level {
	m := levelRe.FindStringSubmatch(line)
	if m == nil {
		return model.LevelInfo
	}
	return normalizeLevel(m[1])
}

// ---------------------------------------------------------------------------
// Timestamp parser
// ---------------------------------------------------------------------------

// TimestampParser detects a leading timestamp and a level token.
// Zone-less calendar timestamps are read in Location.
type TimestampParser struct {
	Location *time.Location
}

// New returns a parser that reads zone-less timestamps in loc. A nil loc
// means local time.
func New(loc *time.Location) *TimestampParser {
	if loc == nil {
		loc = time.Local
	}
	return &TimestampParser{Location: loc}
}

var defaultParser = New(nil)

// Parse runs the default local-time parser.
func Parse(raw string, sequence int) model.Record {
	return defaultParser.Parse(raw, sequence)
}

func (p *TimestampParser) Parse(raw string, sequence int) model.Record {
	rec := model.Record{
		Sequence: sequence,
		RawText:  raw,
		Content:  raw,
		Level:    DetectLevel(raw),
	}

	loc := p.Location
	if loc == nil {
		loc = time.Local
	}

	for _, pat := range patterns {
		m := pat.re.FindStringSubmatchIndex(raw)
		if m == nil {
			continue
		}
		end := m[1]
		if pat.digitsOnly && end < len(raw) && isDigit(raw[end]) {
			continue
		}
		ts, ok := pat.convert(raw[m[2]:m[3]], loc)
		if !ok {
			continue
		}
		rec.Timestamp = ts
		rec.HasTimestamp = true
		rec.Content = strings.TrimLeft(raw[end:], contentTrim)
		break
	}

	return rec
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
