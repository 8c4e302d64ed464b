package collab

import (
	"context"
	"fmt"
	"sync"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/prodspace/canvaskit/internal/canvaskit"
)

// Hub owns one room per canvas on the server. A room fans every accepted
// message out to the other peers, merges shared-state entries into the
// room's replicated document, and keeps presence so a joining peer sees
// who is already there.
type Hub struct {
	logger            canvaskit.Logger
	applyPositions    func(canvasID int64, update canvaskit.BatchPositionUpdate) (int, error)
	snapshotPositions func(canvasID int64) ([]canvaskit.NodePosition, error)

	mu    sync.Mutex
	rooms map[int64]*room
}

type HubOptions struct {
	Logger canvaskit.Logger
	// ApplyPositions persists broadcast position updates, typically
	// Store.BatchUpdatePositions. Optional.
	ApplyPositions func(canvasID int64, update canvaskit.BatchPositionUpdate) (int, error)
	// SnapshotPositions supplies current node positions for the join
	// snapshot. Optional.
	SnapshotPositions func(canvasID int64) ([]canvaskit.NodePosition, error)
}

func NewHub(opts HubOptions) *Hub {
	return &Hub{
		logger:            opts.Logger,
		applyPositions:    opts.ApplyPositions,
		snapshotPositions: opts.SnapshotPositions,
		rooms:             map[int64]*room{},
	}
}

type room struct {
	doc      *LWWMap
	presence map[string]Presence
	peers    map[*peer]struct{}
}

type peer struct {
	actor string
	send  chan message
}

func (h *Hub) room(canvasID int64) *room {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[canvasID]
	if !ok {
		r = &room{
			doc:      NewLWWMap(fmt.Sprintf("room-%d", canvasID)),
			presence: map[string]Presence{},
			peers:    map[*peer]struct{}{},
		}
		h.rooms[canvasID] = r
	}
	return r
}

// RoomPeerCount reports how many peers are connected to a canvas room.
func (h *Hub) RoomPeerCount(canvasID int64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[canvasID]
	if !ok {
		return 0
	}
	return len(r.peers)
}

// Serve runs one peer connection until it disconnects or sends a leave
// message. The first message must be a join carrying the actor id.
func (h *Hub) Serve(ctx context.Context, conn *websocket.Conn, canvasID int64) error {
	var join message
	if err := wsjson.Read(ctx, conn, &join); err != nil {
		return err
	}
	if join.Type != msgJoin || join.Actor == "" {
		_ = conn.Close(websocket.StatusPolicyViolation, "expected join")
		return fmt.Errorf("expected join message, got %q", join.Type)
	}

	r := h.room(canvasID)
	p := &peer{actor: join.Actor, send: make(chan message, 64)}
	h.registerPeer(r, p, canvasID)

	writeDone := make(chan struct{})
	writeCtx, cancelWrites := context.WithCancel(ctx)
	go func() {
		defer close(writeDone)
		for msg := range p.send {
			if err := wsjson.Write(writeCtx, conn, msg); err != nil {
				return
			}
		}
	}()

	err := h.readPeer(ctx, conn, r, p, canvasID)

	h.mu.Lock()
	delete(r.peers, p)
	delete(r.presence, p.actor)
	h.mu.Unlock()
	h.broadcast(r, p, message{Type: msgLeave, Actor: p.actor})

	close(p.send)
	cancelWrites()
	<-writeDone
	return err
}

// registerPeer queues the join snapshot and adds the peer to the room
// under one lock acquisition. Building the snapshot and registering
// atomically means no broadcast can land between the two, so the peer
// sees every room change either in the snapshot or as a later message.
func (h *Hub) registerPeer(r *room, p *peer, canvasID int64) {
	var positions []canvaskit.NodePosition
	if h.snapshotPositions != nil {
		snap, err := h.snapshotPositions(canvasID)
		if err != nil {
			h.logf("canvas %d: join snapshot positions failed: %v", canvasID, err)
		} else {
			positions = snap
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	peers := make([]Presence, 0, len(r.presence))
	for _, pres := range r.presence {
		peers = append(peers, pres)
	}
	// The send queue is empty until the peer is registered, so the
	// snapshot always goes out first.
	p.send <- message{
		Type:      msgSnapshot,
		CanvasID:  canvasID,
		Entries:   r.doc.Snapshot(),
		Peers:     peers,
		Positions: positions,
	}
	r.peers[p] = struct{}{}
}

func (h *Hub) readPeer(ctx context.Context, conn *websocket.Conn, r *room, p *peer, canvasID int64) error {
	for {
		var msg message
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure || ctx.Err() != nil {
				return nil
			}
			return err
		}
		msg.Actor = p.actor
		switch msg.Type {
		case msgPositions:
			msg, ok := mergePositions(r, msg)
			if !ok {
				continue
			}
			if h.applyPositions != nil && len(msg.Positions) > 0 {
				update := canvaskit.BatchPositionUpdate{Nodes: msg.Positions}
				if _, err := h.applyPositions(canvasID, update); err != nil {
					h.logf("canvas %d: applying %d broadcast positions failed: %v", canvasID, len(msg.Positions), err)
				}
			}
			h.broadcast(r, p, msg)
		case msgEntries:
			changed := r.doc.Merge(msg.Entries)
			if len(changed) == 0 {
				continue
			}
			kept := make(map[string]Register, len(changed))
			for _, key := range changed {
				kept[key] = msg.Entries[key]
			}
			msg.Entries = kept
			h.broadcast(r, p, msg)
		case msgPresence:
			if msg.Presence == nil {
				continue
			}
			msg.Presence.Actor = p.actor
			h.mu.Lock()
			r.presence[p.actor] = *msg.Presence
			h.mu.Unlock()
			h.broadcast(r, p, msg)
		case msgLeave:
			return nil
		default:
			h.logf("canvas %d: ignoring unknown message type %q from %s", canvasID, msg.Type, p.actor)
		}
	}
}

// mergePositions folds a stamped position message into the room
// document and trims it to the writes that won, so stale concurrent
// moves never reach the other peers or the store. Unstamped messages
// pass through untouched.
func mergePositions(r *room, msg message) (message, bool) {
	if len(msg.Entries) == 0 {
		return msg, len(msg.Positions) > 0
	}
	changed := r.doc.Merge(msg.Entries)
	positions := winningPositions(changed, msg.Entries)
	if len(positions) == 0 {
		return msg, false
	}
	kept := make(map[string]Register, len(changed))
	for _, key := range changed {
		kept[key] = msg.Entries[key]
	}
	msg.Entries = kept
	msg.Positions = positions
	return msg, true
}

// broadcast queues a message for every peer except the sender. A peer
// with a full queue misses the message rather than stalling the room.
func (h *Hub) broadcast(r *room, sender *peer, msg message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for p := range r.peers {
		if p == sender {
			continue
		}
		select {
		case p.send <- msg:
		default:
			h.logf("dropping %s message to slow peer %s", msg.Type, p.actor)
		}
	}
}

func (h *Hub) logf(format string, args ...any) {
	if h.logger == nil {
		return
	}
	h.logger.Printf(format, args...)
}
