package simulator

import (
	"math"

	"microgrid_simulator/internal/model"
)

// HistoryCapacity is the number of most recent hourly records kept.
const HistoryCapacity = 48

// History is a fixed-capacity FIFO of history records. It is not safe for
// concurrent use; the engine guards it.
type History struct {
	buf   []model.HistoryRecord
	start int
	size  int
}

func NewHistory(capacity int) *History {
	return &History{buf: make([]model.HistoryRecord, capacity)}
}

// Append adds a record, evicting the oldest one when full.
func (h *History) Append(r model.HistoryRecord) {
	if len(h.buf) == 0 {
		return
	}
	if h.size < len(h.buf) {
		h.buf[(h.start+h.size)%len(h.buf)] = r
		h.size++
		return
	}
	h.buf[h.start] = r
	h.start = (h.start + 1) % len(h.buf)
}

// Records returns a chronological copy of the buffer.
func (h *History) Records() []model.HistoryRecord {
	out := make([]model.HistoryRecord, h.size)
	for i := 0; i < h.size; i++ {
		out[i] = h.buf[(h.start+i)%len(h.buf)]
	}
	return out
}

func (h *History) Len() int { return h.size }

func (h *History) Reset() {
	h.start = 0
	h.size = 0
}

// Round1 rounds to one decimal with half-up semantics.
func Round1(v float64) float64 {
	return math.Floor(v*10+0.5) / 10
}

// RoundInt rounds to an integer with half-up semantics.
func RoundInt(v float64) float64 {
	return math.Floor(v + 0.5)
}
