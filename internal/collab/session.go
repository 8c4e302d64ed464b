package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/prodspace/canvaskit/internal/canvaskit"
)

// message is the room wire format, client and server side.
type message struct {
	Type      string                   `json:"type"`
	CanvasID  int64                    `json:"canvas_id,omitempty"`
	Actor     string                   `json:"actor,omitempty"`
	Positions []canvaskit.NodePosition `json:"positions,omitempty"`
	Entries   map[string]Register      `json:"entries,omitempty"`
	Presence  *Presence                `json:"presence,omitempty"`
	Peers     []Presence               `json:"peers,omitempty"`
}

const (
	msgJoin      = "join"
	msgSnapshot  = "snapshot"
	msgPositions = "positions"
	msgEntries   = "entries"
	msgPresence  = "presence"
	msgLeave     = "leave"
)

// Update is one remote change delivered to the engine.
type Update struct {
	Positions []canvaskit.NodePosition
	Entries   map[string]Register
	Presence  []Presence
	PeerLeft  string
}

// Session is the collaboration seam the engine is built against. A
// session is injected, never constructed by the engine, so single-user
// deployments run with NoopSession and tests run with fakes.
type Session interface {
	// Enabled reports whether updates will ever arrive. The engine skips
	// publishing and the consumer goroutine entirely when false.
	Enabled() bool
	Join(ctx context.Context, canvasID int64) error
	Leave() error
	PublishPositions(positions []canvaskit.NodePosition)
	// PublishEntry replicates one shared-document entry. A nil value
	// publishes a tombstone.
	PublishEntry(key string, value json.RawMessage)
	PublishPresence(p Presence)
	Updates() <-chan Update
}

// NoopSession is the disabled-collaboration placeholder. Every publish
// is a no-op and Updates never yields.
type NoopSession struct{}

func (NoopSession) Enabled() bool                             { return false }
func (NoopSession) Join(context.Context, int64) error         { return nil }
func (NoopSession) Leave() error                              { return nil }
func (NoopSession) PublishPositions([]canvaskit.NodePosition) {}
func (NoopSession) PublishEntry(string, json.RawMessage)      {}
func (NoopSession) PublishPresence(Presence)                  {}
func (NoopSession) Updates() <-chan Update                    { return nil }

// WSSession is a live room connection over a websocket. Messages sent
// while disconnected are buffered and replayed after reconnecting, so
// local edits are never lost to a flaky link.
type WSSession struct {
	baseURL string
	token   string
	actor   string
	doc     *LWWMap
	updates chan Update
	now     func() time.Time

	mu            sync.Mutex
	conn          *websocket.Conn
	canvasID      int64
	buffer        []message
	closed        bool
	cancelRead    context.CancelFunc
	lastPresence  time.Time
	queuedPres    *Presence
	presenceTimer *time.Timer
}

type WSSessionOptions struct {
	BaseURL string
	Token   string
	Actor   string
}

func NewWSSession(opts WSSessionOptions) *WSSession {
	actor := strings.TrimSpace(opts.Actor)
	if actor == "" {
		actor = uuid.NewString()
	}
	return &WSSession{
		baseURL: strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		token:   strings.TrimSpace(opts.Token),
		actor:   actor,
		doc:     NewLWWMap(actor),
		updates: make(chan Update, 64),
		now:     time.Now,
	}
}

func (s *WSSession) Enabled() bool { return true }

// Doc exposes the session's replicated shared-state document.
func (s *WSSession) Doc() *LWWMap { return s.doc }

func (s *WSSession) Join(ctx context.Context, canvasID int64) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("session closed")
	}
	s.canvasID = canvasID
	oldConn := s.conn
	s.conn = nil
	oldCancel := s.cancelRead
	s.cancelRead = nil
	s.mu.Unlock()

	// A rejoin tears down the previous connection first so its read loop
	// cannot race the new one.
	if oldCancel != nil {
		oldCancel()
	}
	if oldConn != nil {
		_ = oldConn.Close(websocket.StatusNormalClosure, "rejoining")
	}

	conn, err := s.dial(ctx)
	if err != nil {
		return err
	}
	if err := wsjson.Write(ctx, conn, message{Type: msgJoin, CanvasID: canvasID, Actor: s.actor}); err != nil {
		_ = conn.Close(websocket.StatusInternalError, "join failed")
		return err
	}

	readCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.conn = conn
	s.cancelRead = cancel
	s.mu.Unlock()
	go s.readLoop(readCtx, conn)
	s.replayBuffered()
	return nil
}

func (s *WSSession) dial(ctx context.Context) (*websocket.Conn, error) {
	url := fmt.Sprintf("%s/v1/canvases/%d/room", s.baseURL, s.canvasID)
	header := http.Header{}
	if s.token != "" {
		header.Set("Authorization", "Bearer "+s.token)
	}
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: header})
	return conn, err
}

func (s *WSSession) Leave() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	s.conn = nil
	cancel := s.cancelRead
	if s.presenceTimer != nil {
		s.presenceTimer.Stop()
		s.presenceTimer = nil
	}
	s.mu.Unlock()

	if conn != nil {
		ctx, done := context.WithTimeout(context.Background(), 2*time.Second)
		_ = wsjson.Write(ctx, conn, message{Type: msgLeave, Actor: s.actor})
		done()
		_ = conn.Close(websocket.StatusNormalClosure, "leaving")
	}
	if cancel != nil {
		cancel()
	}
	return nil
}

// PublishPositions stamps each position into the shared document before
// sending, so replicas that see concurrent moves of the same node all
// keep the write with the later stamp.
func (s *WSSession) PublishPositions(positions []canvaskit.NodePosition) {
	if len(positions) == 0 {
		return
	}
	entries := make(map[string]Register, len(positions))
	for _, p := range positions {
		value, err := json.Marshal(p)
		if err != nil {
			continue
		}
		entries[PositionKey(p.ID)] = s.doc.Set(PositionKey(p.ID), value)
	}
	s.send(message{Type: msgPositions, Actor: s.actor, Positions: positions, Entries: entries})
}

// PublishEntry writes one shared-document entry. A nil value publishes
// a tombstone.
func (s *WSSession) PublishEntry(key string, value json.RawMessage) {
	var reg Register
	if value == nil {
		reg = s.doc.Delete(key)
	} else {
		reg = s.doc.Set(key, value)
	}
	s.send(message{Type: msgEntries, Actor: s.actor, Entries: map[string]Register{key: reg}})
}

// PublishPresence forwards cursor and selection state, dropping
// intermediate samples so at most one update goes out per interval.
func (s *WSSession) PublishPresence(p Presence) {
	p.Actor = s.actor
	p.UpdatedAt = s.now()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	elapsed := s.now().Sub(s.lastPresence)
	if elapsed < presenceMinInterval {
		s.queuedPres = &p
		if s.presenceTimer == nil {
			s.presenceTimer = time.AfterFunc(presenceMinInterval-elapsed, s.flushPresence)
		}
		s.mu.Unlock()
		return
	}
	s.lastPresence = s.now()
	s.mu.Unlock()
	s.send(message{Type: msgPresence, Actor: s.actor, Presence: &p})
}

func (s *WSSession) flushPresence() {
	s.mu.Lock()
	s.presenceTimer = nil
	p := s.queuedPres
	s.queuedPres = nil
	if p == nil || s.closed {
		s.mu.Unlock()
		return
	}
	s.lastPresence = s.now()
	s.mu.Unlock()
	s.send(message{Type: msgPresence, Actor: s.actor, Presence: p})
}

func (s *WSSession) Updates() <-chan Update { return s.updates }

func (s *WSSession) send(msg message) {
	s.mu.Lock()
	conn := s.conn
	if conn == nil {
		if !s.closed {
			s.buffer = append(s.buffer, msg)
		}
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, conn, msg); err != nil {
		s.mu.Lock()
		if !s.closed {
			s.buffer = append(s.buffer, msg)
			if s.conn == conn {
				s.conn = nil
			}
		}
		s.mu.Unlock()
		_ = conn.Close(websocket.StatusInternalError, "write failed")
	}
}

func (s *WSSession) replayBuffered() {
	s.mu.Lock()
	buffered := s.buffer
	s.buffer = nil
	s.mu.Unlock()
	for _, msg := range buffered {
		s.send(msg)
	}
}

func (s *WSSession) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var msg message
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			s.mu.Lock()
			closed := s.closed
			if s.conn == conn {
				s.conn = nil
			}
			s.mu.Unlock()
			if closed || ctx.Err() != nil {
				return
			}
			s.reconnect(ctx)
			return
		}
		s.dispatch(msg)
	}
}

func (s *WSSession) reconnect(ctx context.Context) {
	delay := 250 * time.Millisecond
	const maxDelay = 5 * time.Second
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		canvasID := s.canvasID
		s.mu.Unlock()

		dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := s.Join(dialCtx, canvasID)
		cancel()
		if err == nil {
			return
		}
		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

// winningPositions decodes the position entries among the changed keys
// of a merge, dropping everything the merge rejected as stale.
func winningPositions(changed []string, entries map[string]Register) []canvaskit.NodePosition {
	positions := make([]canvaskit.NodePosition, 0, len(changed))
	for _, key := range changed {
		kind, _, ok := SplitKey(key)
		if !ok || kind != KindPosition {
			continue
		}
		reg, ok := entries[key]
		if !ok || reg.Deleted {
			continue
		}
		var p canvaskit.NodePosition
		if err := json.Unmarshal(reg.Value, &p); err != nil {
			continue
		}
		positions = append(positions, p)
	}
	return positions
}

func (s *WSSession) dispatch(msg message) {
	var update Update
	switch msg.Type {
	case msgSnapshot:
		changed := s.doc.Merge(msg.Entries)
		entries := make(map[string]Register, len(changed))
		snapshot := s.doc.Snapshot()
		for _, key := range changed {
			entries[key] = snapshot[key]
		}
		update = Update{Positions: msg.Positions, Entries: entries, Presence: msg.Peers}
	case msgPositions:
		if msg.Actor == s.actor {
			return
		}
		if len(msg.Entries) == 0 {
			update = Update{Positions: msg.Positions}
			break
		}
		changed := s.doc.Merge(msg.Entries)
		positions := winningPositions(changed, msg.Entries)
		if len(positions) == 0 {
			// Every stamped write lost to a later local one.
			return
		}
		update = Update{Positions: positions}
	case msgEntries:
		if msg.Actor == s.actor {
			return
		}
		changed := s.doc.Merge(msg.Entries)
		if len(changed) == 0 {
			return
		}
		entries := make(map[string]Register, len(changed))
		for _, key := range changed {
			entries[key] = msg.Entries[key]
		}
		update = Update{Entries: entries}
	case msgPresence:
		if msg.Presence == nil || msg.Actor == s.actor {
			return
		}
		update = Update{Presence: []Presence{*msg.Presence}}
	case msgLeave:
		update = Update{PeerLeft: msg.Actor}
	default:
		return
	}
	select {
	case s.updates <- update:
	default:
		// Slow consumer; drop the oldest update to keep the feed moving.
		select {
		case <-s.updates:
		default:
		}
		select {
		case s.updates <- update:
		default:
		}
	}
}
