package job

import "strings"

// Status is the canonical lifecycle state of a card job.
type Status string

// Stable values (persisted verbatim in snapshots).
const (
	StatusQueued         Status = "queued"
	StatusExtractingText Status = "extracting_text"
	StatusParsing        Status = "parsing"
	StatusComposing      Status = "composing"
	StatusSending        Status = "sending"
	StatusSent           Status = "sent"
	StatusFailed         Status = "failed"
)

var allStatuses = []Status{
	StatusQueued,
	StatusExtractingText,
	StatusParsing,
	StatusComposing,
	StatusSending,
	StatusSent,
	StatusFailed,
}

// statusRank orders statuses along the pipeline. Transitions must move to a
// strictly higher rank; the only rank reset is the retry path, which goes
// through RecordFailure/Retry on the store, never through UpdateStatus.
var statusRank = map[Status]int{
	StatusQueued:         0,
	StatusExtractingText: 1,
	StatusParsing:        2,
	StatusComposing:      3,
	StatusSending:        4,
	StatusSent:           5,
	StatusFailed:         6,
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	_, ok := statusRank[normalized]
	return normalized, ok
}

// Rank returns the pipeline position of s; unknown statuses rank below queued.
func (s Status) Rank() int {
	if r, ok := statusRank[s]; ok {
		return r
	}
	return -1
}

// IsTerminal reports whether s ends the job lifecycle.
func (s Status) IsTerminal() bool {
	return s == StatusSent || s == StatusFailed
}

// IsProcessing reports whether s reflects a worker-held in-flight stage.
func (s Status) IsProcessing() bool {
	switch s {
	case StatusExtractingText, StatusParsing, StatusComposing, StatusSending:
		return true
	default:
		return false
	}
}
