package collab

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/prodspace/canvaskit/internal/canvaskit"
)

func TestNoopSessionIsInert(t *testing.T) {
	var s Session = NoopSession{}
	if s.Enabled() {
		t.Fatalf("noop session must report disabled")
	}
	if s.Updates() != nil {
		t.Fatalf("noop session must not produce updates")
	}
	s.PublishPositions([]canvaskit.NodePosition{{ID: 1}})
	s.PublishPresence(Presence{Actor: "x"})
	if err := s.Leave(); err != nil {
		t.Fatalf("noop leave failed: %v", err)
	}
}

func readUpdate(t *testing.T, s *WSSession) Update {
	t.Helper()
	select {
	case u := <-s.Updates():
		return u
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for update")
		return Update{}
	}
}

func TestDispatchIgnoresOwnEchoes(t *testing.T) {
	s := NewWSSession(WSSessionOptions{Actor: "alice"})
	s.dispatch(message{Type: msgPositions, Actor: "alice", Positions: []canvaskit.NodePosition{{ID: 1, X: 5}}})
	select {
	case u := <-s.Updates():
		t.Fatalf("expected own echo dropped, got %+v", u)
	default:
	}
	s.dispatch(message{Type: msgPositions, Actor: "bob", Positions: []canvaskit.NodePosition{{ID: 1, X: 5}}})
	u := readUpdate(t, s)
	if len(u.Positions) != 1 || u.Positions[0].X != 5 {
		t.Fatalf("expected bob's positions delivered, got %+v", u)
	}
}

func TestDispatchMergesEntriesIntoDoc(t *testing.T) {
	s := NewWSSession(WSSessionOptions{Actor: "alice"})
	s.dispatch(message{Type: msgEntries, Actor: "bob", Entries: map[string]Register{
		"note": {Value: json.RawMessage(`"hi"`), Stamp: Stamp{Counter: 3, Actor: "bob"}},
	}})
	u := readUpdate(t, s)
	if _, ok := u.Entries["note"]; !ok {
		t.Fatalf("expected merged entry in update, got %+v", u)
	}
	if value, ok := s.Doc().Get("note"); !ok || string(value) != `"hi"` {
		t.Fatalf("expected entry merged into the session doc, got %q %v", value, ok)
	}
	// Replaying the same entry changes nothing and emits nothing.
	s.dispatch(message{Type: msgEntries, Actor: "bob", Entries: map[string]Register{
		"note": {Value: json.RawMessage(`"hi"`), Stamp: Stamp{Counter: 3, Actor: "bob"}},
	}})
	select {
	case u := <-s.Updates():
		t.Fatalf("expected duplicate entry suppressed, got %+v", u)
	default:
	}
}

func TestDispatchSnapshotAndLeave(t *testing.T) {
	s := NewWSSession(WSSessionOptions{Actor: "alice"})
	s.dispatch(message{
		Type:      msgSnapshot,
		Positions: []canvaskit.NodePosition{{ID: 2, X: 9}},
		Entries: map[string]Register{
			"k": {Value: json.RawMessage(`1`), Stamp: Stamp{Counter: 1, Actor: "bob"}},
		},
		Peers: []Presence{{Actor: "bob"}},
	})
	u := readUpdate(t, s)
	if len(u.Positions) != 1 || len(u.Presence) != 1 || len(u.Entries) != 1 {
		t.Fatalf("expected snapshot update with positions, presence and entries, got %+v", u)
	}
	s.dispatch(message{Type: msgLeave, Actor: "bob"})
	if u = readUpdate(t, s); u.PeerLeft != "bob" {
		t.Fatalf("expected leave notice for bob, got %+v", u)
	}
}

func TestPublishPresenceThrottles(t *testing.T) {
	s := NewWSSession(WSSessionOptions{Actor: "alice"})
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	// No connection yet, so sends land in the replay buffer.
	s.PublishPresence(Presence{CursorX: 1})
	s.PublishPresence(Presence{CursorX: 2})
	s.PublishPresence(Presence{CursorX: 3})

	s.mu.Lock()
	if s.presenceTimer != nil {
		s.presenceTimer.Stop()
		s.presenceTimer = nil
	}
	buffered := len(s.buffer)
	queued := s.queuedPres
	s.mu.Unlock()
	if buffered != 1 {
		t.Fatalf("expected one presence sent within the interval, got %d", buffered)
	}
	if queued == nil || queued.CursorX != 3 {
		t.Fatalf("expected newest sample queued, got %+v", queued)
	}

	now = now.Add(presenceMinInterval)
	s.flushPresence()
	s.mu.Lock()
	buffered = len(s.buffer)
	s.mu.Unlock()
	if buffered != 2 {
		t.Fatalf("expected queued presence flushed, got %d buffered", buffered)
	}
}

func lastBuffered(t *testing.T, s *WSSession) message {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buffer) == 0 {
		t.Fatalf("expected a buffered message")
	}
	return s.buffer[len(s.buffer)-1]
}

func TestConcurrentMovesConvergeAcrossReplicas(t *testing.T) {
	alice := NewWSSession(WSSessionOptions{Actor: "alice"})
	bob := NewWSSession(WSSessionOptions{Actor: "bob"})

	// Both replicas move node 1 at the same Lamport time; the stamp
	// tiebreak must pick the same winner on both sides.
	alice.PublishPositions([]canvaskit.NodePosition{{ID: 1, X: 20, Y: 20}})
	bob.PublishPositions([]canvaskit.NodePosition{{ID: 1, X: 10, Y: 10}})
	aliceMsg := lastBuffered(t, alice)
	bobMsg := lastBuffered(t, bob)

	alice.dispatch(bobMsg)
	bob.dispatch(aliceMsg)

	u := readUpdate(t, alice)
	if len(u.Positions) != 1 || u.Positions[0].X != 10 || u.Positions[0].Y != 10 {
		t.Fatalf("expected alice to adopt the winning move, got %+v", u.Positions)
	}
	select {
	case u := <-bob.Updates():
		t.Fatalf("expected the losing move suppressed on bob, got %+v", u)
	default:
	}

	aliceValue, _ := alice.Doc().Get(PositionKey(1))
	bobValue, _ := bob.Doc().Get(PositionKey(1))
	if string(aliceValue) == "" || string(aliceValue) != string(bobValue) {
		t.Fatalf("replicas diverged: %s vs %s", aliceValue, bobValue)
	}
}

func TestPublishEntryNilLeavesTombstone(t *testing.T) {
	s := NewWSSession(WSSessionOptions{Actor: "alice"})
	s.PublishEntry(NodeKey(5), json.RawMessage(`{"id":5}`))
	s.PublishEntry(NodeKey(5), nil)
	msg := lastBuffered(t, s)
	reg, ok := msg.Entries[NodeKey(5)]
	if !ok || !reg.Deleted {
		t.Fatalf("expected tombstone entry, got %+v", msg.Entries)
	}
	if _, ok := s.Doc().Get(NodeKey(5)); ok {
		t.Fatalf("expected entry deleted from the session doc")
	}
}

func TestJoinReplacesPreviousConnection(t *testing.T) {
	serverConns := make(chan *websocket.Conn, 2)
	readErrs := make(chan error, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		var join message
		if err := wsjson.Read(r.Context(), conn, &join); err != nil {
			return
		}
		serverConns <- conn
		for {
			var msg message
			if err := wsjson.Read(context.Background(), conn, &msg); err != nil {
				readErrs <- err
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	s := NewWSSession(WSSessionOptions{BaseURL: srv.URL, Actor: "alice"})
	t.Cleanup(func() { _ = s.Leave() })

	ctx := context.Background()
	if err := s.Join(ctx, 1); err != nil {
		t.Fatalf("first join failed: %v", err)
	}
	waitServerConn(t, serverConns)
	if err := s.Join(ctx, 1); err != nil {
		t.Fatalf("second join failed: %v", err)
	}
	waitServerConn(t, serverConns)
	select {
	case <-readErrs:
		// The first connection was torn down by the rejoin.
	case <-time.After(2 * time.Second):
		t.Fatalf("expected the first connection closed after rejoining")
	}
}

func waitServerConn(t *testing.T, conns chan *websocket.Conn) {
	t.Helper()
	select {
	case <-conns:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for the server side of the connection")
	}
}

func TestMessagesBufferWhileDisconnected(t *testing.T) {
	s := NewWSSession(WSSessionOptions{Actor: "alice"})
	s.PublishPositions([]canvaskit.NodePosition{{ID: 1, X: 4}})
	s.PublishEntry("k", json.RawMessage(`"v"`))
	s.mu.Lock()
	buffered := len(s.buffer)
	s.mu.Unlock()
	if buffered != 2 {
		t.Fatalf("expected both messages buffered, got %d", buffered)
	}
	// Leaving discards the buffer; nothing should panic.
	if err := s.Leave(); err != nil {
		t.Fatalf("leave failed: %v", err)
	}
	s.PublishPositions([]canvaskit.NodePosition{{ID: 2}})
}
