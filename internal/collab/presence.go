package collab

import "time"

// Presence is the ephemeral per-user state mirrored to everyone in a
// room. It is never persisted and vanishes when the peer leaves.
type Presence struct {
	Actor     string    `json:"actor"`
	Name      string    `json:"name,omitempty"`
	Color     string    `json:"color,omitempty"`
	CursorX   float64   `json:"cursor_x"`
	CursorY   float64   `json:"cursor_y"`
	Selection []int64   `json:"selection,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// presenceMinInterval caps outbound presence updates at roughly one per
// animation frame. Intermediate cursor samples are dropped, keeping only
// the newest.
const presenceMinInterval = 16 * time.Millisecond
