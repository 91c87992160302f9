package panel

import (
	"github.com/atikulmunna/kitsune/internal/hub"
	"github.com/atikulmunna/kitsune/internal/model"
)

// EventKind identifies what a panel is reporting.
type EventKind int

const (
	// RecordsAppended carries a batch of newly buffered records.
	RecordsAppended EventKind = iota
	// ScrollToEndRequested asks the view to show the newest record.
	ScrollToEndRequested
	// ScrollToRecordRequested asks the view to show Record.
	ScrollToRecordRequested
	// ErrorOccurred reports a tail failure in Text.
	ErrorOccurred
	// StatusChanged reports the new status text in Text.
	StatusChanged
	// FilterToAllRequested asks the owner to apply the filter in Text to
	// every panel.
	FilterToAllRequested
)

func (k EventKind) String() string {
	switch k {
	case RecordsAppended:
		return "records_appended"
	case ScrollToEndRequested:
		return "scroll_to_end"
	case ScrollToRecordRequested:
		return "scroll_to_record"
	case ErrorOccurred:
		return "error"
	case StatusChanged:
		return "status"
	case FilterToAllRequested:
		return "filter_to_all"
	default:
		return "unknown"
	}
}

// Event is something a panel reports to its presentation.
type Event struct {
	Kind    EventKind
	Panel   hub.Handle
	Records []model.Record
	Record  model.Record
	Text    string
}
