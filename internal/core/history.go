package core

import (
	"sync"
	"time"
)

// DefaultHistorySize is the number of finished conversions the history
// ring keeps.
const DefaultHistorySize = 20

// Summary condenses a finished conversion for the recent-history feed.
// It outlives the conversion itself: the janitor may have swept the job
// from the registry while its summary is still listed here.
type Summary struct {
	ConversionID string    `json:"conversionId"`
	FileName     string    `json:"fileName"`
	RowsRead     int       `json:"rowsRead"`
	Records      int       `json:"records"`
	Statements   int       `json:"statements"`
	Outcome      string    `json:"outcome"`
	Error        string    `json:"error,omitempty"`
	DurationMs   int64     `json:"durationMs"`
	FinishedAt   time.Time `json:"finishedAt"`
}

// historyRing is a bounded, newest-first list of conversion summaries.
type historyRing struct {
	mu      sync.Mutex
	max     int
	entries []Summary
}

func newHistoryRing(max int) *historyRing {
	if max <= 0 {
		max = DefaultHistorySize
	}
	return &historyRing{
		max:     max,
		entries: make([]Summary, 0, max),
	}
}

// add prepends a summary, dropping the oldest entry when full.
func (h *historyRing) add(s Summary) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = append([]Summary{s}, h.entries...)
	if len(h.entries) > h.max {
		h.entries = h.entries[:h.max]
	}
}

// list returns a copy of the entries, newest first.
func (h *historyRing) list() []Summary {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Summary, len(h.entries))
	copy(out, h.entries)
	return out
}
