package layout

import "github.com/prodspace/canvaskit/internal/canvaskit"

// Snapshot captures node positions before a layout run so the run can be
// undone later.
type Snapshot []canvaskit.NodePosition

const DefaultHistoryCapacity = 10

// History is a bounded linear undo stack of position snapshots. Pushing
// after an undo discards the snapshots past the current point, and the
// oldest snapshot is evicted once capacity is reached.
type History struct {
	entries  []Snapshot
	index    int // points at the snapshot Undo would return; -1 when empty
	capacity int
}

func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &History{index: -1, capacity: capacity}
}

func (h *History) Push(s Snapshot) {
	clone := make(Snapshot, len(s))
	copy(clone, s)
	h.entries = append(h.entries[:h.index+1], clone)
	if len(h.entries) > h.capacity {
		h.entries = h.entries[len(h.entries)-h.capacity:]
	}
	h.index = len(h.entries) - 1
}

// Undo returns the most recent snapshot and steps back. The second return
// is false when there is nothing to undo.
func (h *History) Undo() (Snapshot, bool) {
	if h.index < 0 {
		return nil, false
	}
	s := h.entries[h.index]
	h.index--
	return s, true
}

// Drop discards the snapshot Undo would return next, for callers that
// pushed ahead of an operation that then failed.
func (h *History) Drop() {
	if h.index < 0 {
		return
	}
	h.entries = h.entries[:h.index]
	h.index--
}

func (h *History) CanUndo() bool { return h.index >= 0 }

func (h *History) Len() int { return h.index + 1 }
