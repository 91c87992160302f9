package model

import (
	"fmt"
	"strings"
	"time"
)

// Level is the severity of a parsed record.
type Level int

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarning
	LevelError
)

// Levels lists every level in ascending severity.
var Levels = []Level{LevelTrace, LevelDebug, LevelInfo, LevelWarning, LevelError}

func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "TRACE"
	case LevelDebug:
		return "DEBUG"
	case LevelWarning:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

// MarshalText encodes the level by name.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText accepts the names produced by String.
func (l *Level) UnmarshalText(b []byte) error {
	switch strings.ToUpper(string(b)) {
	case "TRACE":
		*l = LevelTrace
	case "DEBUG":
		*l = LevelDebug
	case "INFO":
		*l = LevelInfo
	case "WARN":
		*l = LevelWarning
	case "ERROR":
		*l = LevelError
	default:
		return fmt.Errorf("unknown level %q", string(b))
	}
	return nil
}

// Record represents a single parsed log line. Records are never modified
// after the parser returns them.
type Record struct {
	Sequence     int       `json:"sequence"`
	RawText      string    `json:"raw"`
	Content      string    `json:"content"`
	Timestamp    time.Time `json:"timestamp,omitzero"`
	HasTimestamp bool      `json:"has_timestamp"`
	Level        Level     `json:"level"`
}

// Time returns the detected timestamp and whether one was found.
func (r Record) Time() (time.Time, bool) {
	return r.Timestamp, r.HasTimestamp
}

// DisplayText renders the record the way list views show it.
func (r Record) DisplayText() string {
	if !r.HasTimestamp {
		return fmt.Sprintf("%5d │ %s", r.Sequence, r.Content)
	}
	return fmt.Sprintf("%5d │ [%s] %s", r.Sequence, r.Timestamp.Format("15:04:05.000"), r.Content)
}
