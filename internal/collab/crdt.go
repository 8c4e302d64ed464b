// Package collab provides live multi-user canvas editing: a
// last-writer-wins replicated key/value document for shared state,
// throttled ephemeral presence, and websocket sessions plus the server
// hub that fans updates out to a room.
package collab

import (
	"encoding/json"
	"sort"
	"sync"
)

// Stamp totally orders writes across actors. A higher counter wins;
// equal counters fall back to the lexicographically larger actor id so
// concurrent writes resolve the same way on every replica.
type Stamp struct {
	Counter uint64 `json:"counter"`
	Actor   string `json:"actor"`
}

func (s Stamp) After(other Stamp) bool {
	if s.Counter != other.Counter {
		return s.Counter > other.Counter
	}
	return s.Actor > other.Actor
}

// Register is one replicated cell: a value, the stamp of its last write,
// and a tombstone flag for deletes.
type Register struct {
	Value   json.RawMessage `json:"value,omitempty"`
	Stamp   Stamp           `json:"stamp"`
	Deleted bool            `json:"deleted,omitempty"`
}

// LWWMap is a last-writer-wins replicated map. Local writes bump a
// Lamport counter; merging a remote register keeps whichever write has
// the later stamp. Deletes leave tombstones so they survive merges.
type LWWMap struct {
	mu      sync.RWMutex
	actor   string
	counter uint64
	entries map[string]Register
}

func NewLWWMap(actor string) *LWWMap {
	return &LWWMap{actor: actor, entries: map[string]Register{}}
}

func (m *LWWMap) Set(key string, value json.RawMessage) Register {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter++
	reg := Register{Value: value, Stamp: Stamp{Counter: m.counter, Actor: m.actor}}
	m.entries[key] = reg
	return reg
}

func (m *LWWMap) Delete(key string) Register {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter++
	reg := Register{Stamp: Stamp{Counter: m.counter, Actor: m.actor}, Deleted: true}
	m.entries[key] = reg
	return reg
}

func (m *LWWMap) Get(key string) (json.RawMessage, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	reg, ok := m.entries[key]
	if !ok || reg.Deleted {
		return nil, false
	}
	return reg.Value, true
}

// Apply merges a remote register and reports whether it won. The local
// counter advances past the remote stamp so later local writes beat it.
func (m *LWWMap) Apply(key string, reg Register) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if reg.Stamp.Counter > m.counter {
		m.counter = reg.Stamp.Counter
	}
	current, exists := m.entries[key]
	if exists && !reg.Stamp.After(current.Stamp) {
		return false
	}
	m.entries[key] = reg
	return true
}

// Merge applies a batch of remote registers and returns the keys that
// changed, sorted.
func (m *LWWMap) Merge(entries map[string]Register) []string {
	var changed []string
	for key, reg := range entries {
		if m.Apply(key, reg) {
			changed = append(changed, key)
		}
	}
	sort.Strings(changed)
	return changed
}

// Snapshot copies every register, tombstones included, for sending to a
// newly joined peer.
func (m *LWWMap) Snapshot() map[string]Register {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Register, len(m.entries))
	for key, reg := range m.entries {
		out[key] = reg
	}
	return out
}

// Keys lists live (non-tombstoned) keys, sorted.
func (m *LWWMap) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.entries))
	for key, reg := range m.entries {
		if !reg.Deleted {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}
