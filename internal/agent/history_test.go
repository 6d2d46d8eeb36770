package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Imetomi/bugninja-cli/api/schemas"
)

func TestHistoryWindowEvictsOldest(t *testing.T) {
	h := NewHistory(3)
	for i := 0; i < 5; i++ {
		h.Add(schemas.HistoryEntry{Step: i})
	}

	window := h.Window()
	assert.Len(t, window, 3)
	assert.Equal(t, 2, window[0].Step)
	assert.Equal(t, 4, window[2].Step)

	full := h.Full()
	assert.Len(t, full, 5)
	assert.Equal(t, 0, full[0].Step)
	assert.Equal(t, 5, h.Len())
}

func TestHistoryCopiesAreIndependent(t *testing.T) {
	h := NewHistory(5)
	h.Add(schemas.HistoryEntry{Step: 0, URL: "a"})

	w := h.Window()
	w[0].URL = "mutated"
	assert.Equal(t, "a", h.Window()[0].URL)
}
