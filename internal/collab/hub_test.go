package collab

import (
	"encoding/json"
	"testing"

	"github.com/prodspace/canvaskit/internal/canvaskit"
)

func TestJoinSnapshotRegistersPeerAtomically(t *testing.T) {
	h := NewHub(HubOptions{})
	r := h.room(7)
	r.doc.Apply("note", Register{Value: json.RawMessage(`"hello"`), Stamp: Stamp{Counter: 1, Actor: "bob"}})

	p := &peer{actor: "alice", send: make(chan message, 64)}
	h.registerPeer(r, p, 7)
	if got := h.RoomPeerCount(7); got != 1 {
		t.Fatalf("expected peer visible as soon as its snapshot is taken, got %d peers", got)
	}
	h.broadcast(r, nil, message{Type: msgLeave, Actor: "bob"})

	snapshot := <-p.send
	if snapshot.Type != msgSnapshot {
		t.Fatalf("expected the snapshot first, got %q", snapshot.Type)
	}
	if _, ok := snapshot.Entries["note"]; !ok {
		t.Fatalf("expected document entry in the snapshot, got %+v", snapshot.Entries)
	}
	next := <-p.send
	if next.Type != msgLeave {
		t.Fatalf("expected the broadcast delivered after the snapshot, got %q", next.Type)
	}
}

func TestMergePositionsFiltersStaleWrites(t *testing.T) {
	h := NewHub(HubOptions{})
	r := h.room(1)
	current, _ := json.Marshal(canvaskit.NodePosition{ID: 1, X: 50, Y: 50})
	r.doc.Apply(PositionKey(1), Register{Value: current, Stamp: Stamp{Counter: 5, Actor: "zed"}})

	stale, _ := json.Marshal(canvaskit.NodePosition{ID: 1, X: 1, Y: 1})
	_, ok := mergePositions(r, message{
		Type:      msgPositions,
		Positions: []canvaskit.NodePosition{{ID: 1, X: 1, Y: 1}},
		Entries:   map[string]Register{PositionKey(1): {Value: stale, Stamp: Stamp{Counter: 1, Actor: "alice"}}},
	})
	if ok {
		t.Fatalf("expected the stale write suppressed")
	}

	fresh, _ := json.Marshal(canvaskit.NodePosition{ID: 1, X: 9, Y: 9})
	msg, ok := mergePositions(r, message{
		Type:      msgPositions,
		Positions: []canvaskit.NodePosition{{ID: 1, X: 1, Y: 1}},
		Entries:   map[string]Register{PositionKey(1): {Value: fresh, Stamp: Stamp{Counter: 6, Actor: "alice"}}},
	})
	if !ok || len(msg.Positions) != 1 || msg.Positions[0].X != 9 {
		t.Fatalf("expected the newer write kept with its decoded position, got ok=%v %+v", ok, msg.Positions)
	}
	if value, found := r.doc.Get(PositionKey(1)); !found || string(value) != string(fresh) {
		t.Fatalf("expected the room document updated, got %s", value)
	}
}
