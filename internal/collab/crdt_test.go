package collab

import (
	"encoding/json"
	"testing"
)

func TestLWWMapLocalWrites(t *testing.T) {
	m := NewLWWMap("alice")
	m.Set("node:1:title", json.RawMessage(`"draft"`))
	m.Set("node:1:title", json.RawMessage(`"final"`))
	value, ok := m.Get("node:1:title")
	if !ok || string(value) != `"final"` {
		t.Fatalf("expected latest local write, got %q %v", value, ok)
	}
	m.Delete("node:1:title")
	if _, ok := m.Get("node:1:title"); ok {
		t.Fatalf("expected tombstoned key to read as absent")
	}
	if keys := m.Keys(); len(keys) != 0 {
		t.Fatalf("expected no live keys, got %v", keys)
	}
}

func TestLWWMapHigherCounterWins(t *testing.T) {
	m := NewLWWMap("alice")
	m.Set("k", json.RawMessage(`"local"`))
	won := m.Apply("k", Register{
		Value: json.RawMessage(`"remote"`),
		Stamp: Stamp{Counter: 10, Actor: "bob"},
	})
	if !won {
		t.Fatalf("expected remote write with higher counter to win")
	}
	if value, _ := m.Get("k"); string(value) != `"remote"` {
		t.Fatalf("expected remote value, got %q", value)
	}
	// The local counter advanced past the remote stamp, so the next
	// local write wins again.
	m.Set("k", json.RawMessage(`"local2"`))
	won = m.Apply("k", Register{
		Value: json.RawMessage(`"stale"`),
		Stamp: Stamp{Counter: 10, Actor: "bob"},
	})
	if won {
		t.Fatalf("expected stale remote write to lose")
	}
	if value, _ := m.Get("k"); string(value) != `"local2"` {
		t.Fatalf("expected local value kept, got %q", value)
	}
}

func TestLWWMapActorBreaksTies(t *testing.T) {
	a := NewLWWMap("alice")
	b := NewLWWMap("bob")
	regA := a.Set("k", json.RawMessage(`"from-alice"`))
	regB := b.Set("k", json.RawMessage(`"from-bob"`))
	if regA.Stamp.Counter != regB.Stamp.Counter {
		t.Fatalf("expected equal counters for the tie case")
	}
	a.Apply("k", regB)
	b.Apply("k", regA)
	valueA, _ := a.Get("k")
	valueB, _ := b.Get("k")
	if string(valueA) != string(valueB) {
		t.Fatalf("replicas diverged: %q vs %q", valueA, valueB)
	}
	// "bob" > "alice", so bob's write wins on both sides.
	if string(valueA) != `"from-bob"` {
		t.Fatalf("expected deterministic tiebreak winner, got %q", valueA)
	}
}

func TestLWWMapConvergesRegardlessOfOrder(t *testing.T) {
	writes := []struct {
		key string
		reg Register
	}{
		{"x", Register{Value: json.RawMessage(`1`), Stamp: Stamp{Counter: 1, Actor: "a"}}},
		{"x", Register{Value: json.RawMessage(`2`), Stamp: Stamp{Counter: 2, Actor: "b"}}},
		{"y", Register{Value: json.RawMessage(`3`), Stamp: Stamp{Counter: 1, Actor: "b"}}},
		{"y", Register{Stamp: Stamp{Counter: 3, Actor: "a"}, Deleted: true}},
		{"z", Register{Value: json.RawMessage(`4`), Stamp: Stamp{Counter: 2, Actor: "a"}}},
	}
	forward := NewLWWMap("r1")
	backward := NewLWWMap("r2")
	for _, w := range writes {
		forward.Apply(w.key, w.reg)
	}
	for i := len(writes) - 1; i >= 0; i-- {
		backward.Apply(writes[i].key, writes[i].reg)
	}
	for _, key := range []string{"x", "y", "z"} {
		valueF, okF := forward.Get(key)
		valueB, okB := backward.Get(key)
		if okF != okB || string(valueF) != string(valueB) {
			t.Fatalf("key %q diverged: (%q,%v) vs (%q,%v)", key, valueF, okF, valueB, okB)
		}
	}
	if value, ok := forward.Get("y"); ok {
		t.Fatalf("expected delete to win on y, got %q", value)
	}
}

func TestMergeReportsChangedKeys(t *testing.T) {
	m := NewLWWMap("alice")
	m.Set("a", json.RawMessage(`"mine"`))
	changed := m.Merge(map[string]Register{
		"a": {Value: json.RawMessage(`"stale"`), Stamp: Stamp{Counter: 0, Actor: "bob"}},
		"b": {Value: json.RawMessage(`"new"`), Stamp: Stamp{Counter: 5, Actor: "bob"}},
	})
	if len(changed) != 1 || changed[0] != "b" {
		t.Fatalf("expected only b to change, got %v", changed)
	}
}
