package agent

import (
	"github.com/Imetomi/bugninja-cli/api/schemas"
)

// History keeps the conversation window the oracle sees plus the full
// trace for the final report. The window is bounded; the trace is not.
type History struct {
	window int
	recent []schemas.HistoryEntry
	full   []schemas.HistoryEntry
}

// NewHistory creates a history with the given window size.
func NewHistory(window int) *History {
	return &History{window: window}
}

// Add appends an entry, evicting the oldest from the window when full.
func (h *History) Add(entry schemas.HistoryEntry) {
	h.full = append(h.full, entry)
	h.recent = append(h.recent, entry)
	if len(h.recent) > h.window {
		h.recent = h.recent[len(h.recent)-h.window:]
	}
}

// Window returns the bounded recent entries, oldest first.
func (h *History) Window() []schemas.HistoryEntry {
	out := make([]schemas.HistoryEntry, len(h.recent))
	copy(out, h.recent)
	return out
}

// Full returns every recorded entry for the run report.
func (h *History) Full() []schemas.HistoryEntry {
	out := make([]schemas.HistoryEntry, len(h.full))
	copy(out, h.full)
	return out
}

// Len returns the total number of recorded steps.
func (h *History) Len() int { return len(h.full) }
