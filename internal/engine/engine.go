package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/prodspace/canvaskit/internal/canvaskit"
	"github.com/prodspace/canvaskit/internal/collab"
	"github.com/prodspace/canvaskit/internal/layout"
)

type Options struct {
	Client RemoteClient
	// Clock drives the debounce timers. Defaults to the wall clock;
	// tests inject a fake.
	Clock  Clock
	Logger canvaskit.Logger
	// Rules guards Connect locally so invalid edges are rejected before
	// any network round trip. Defaults to the built-in table.
	Rules canvaskit.Rules
	// Session is the collaboration seam. Defaults to NoopSession, which
	// turns every publish into a no-op.
	Session     collab.Session
	SaveDelay   time.Duration
	ResizeDelay time.Duration
}

// Engine holds the working copy of one canvas. All reads come from
// memory; mutations apply locally first and reach the server either
// immediately (structural changes) or through the debounced saver
// (geometry). It is safe for concurrent use.
type Engine struct {
	client      RemoteClient
	clock       Clock
	logger      canvaskit.Logger
	rules       canvaskit.Rules
	session     collab.Session
	saveDelay   time.Duration
	resizeDelay time.Duration
	errs        chan error

	mu           sync.Mutex
	loaded       bool
	closed       bool
	loadSeq      uint64
	canvas       canvaskit.Canvas
	nodes        map[int64]*canvaskit.Node
	conns        map[int64]*canvaskit.Connection
	selection    map[int64]struct{}
	viewport     canvaskit.Viewport
	peers        map[string]collab.Presence
	saver        *saver
	history      *layout.History
	nextTempID   int64
	consumerStop chan struct{}
}

func New(opts Options) (*Engine, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("remote client is required")
	}
	if opts.Clock == nil {
		opts.Clock = NewClock()
	}
	if opts.Rules == nil {
		opts.Rules = canvaskit.DefaultRules()
	}
	if opts.Session == nil {
		opts.Session = collab.NoopSession{}
	}
	return &Engine{
		client:      opts.Client,
		clock:       opts.Clock,
		logger:      opts.Logger,
		rules:       opts.Rules,
		session:     opts.Session,
		saveDelay:   opts.SaveDelay,
		resizeDelay: opts.ResizeDelay,
		errs:        make(chan error, 16),
		selection:   map[int64]struct{}{},
		peers:       map[string]collab.Presence{},
		history:     layout.NewHistory(0),
		nextTempID:  -1,
	}, nil
}

// Load fetches a canvas and replaces the working copy. When loads race,
// only the latest call installs its result; stale responses are dropped.
func (e *Engine) Load(ctx context.Context, canvasID int64) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return errClosed
	}
	e.loadSeq++
	seq := e.loadSeq
	e.mu.Unlock()

	doc, err := e.client.FetchCanvas(ctx, canvasID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return errClosed
	}
	if seq != e.loadSeq {
		e.mu.Unlock()
		return nil
	}
	if e.saver != nil {
		e.saver.close()
	}
	e.canvas = doc.Canvas
	e.viewport = doc.Canvas.Viewport()
	e.nodes = make(map[int64]*canvaskit.Node, len(doc.Nodes))
	for i := range doc.Nodes {
		node := doc.Nodes[i]
		e.nodes[node.ID] = &node
	}
	e.conns = make(map[int64]*canvaskit.Connection, len(doc.Connections))
	for i := range doc.Connections {
		conn := doc.Connections[i]
		e.conns[conn.ID] = &conn
	}
	e.selection = map[int64]struct{}{}
	e.peers = map[string]collab.Presence{}
	e.history = layout.NewHistory(0)
	e.saver = newSaver(e.client, e.clock, canvasID, e.saveDelay, e.resizeDelay, e.logger, e.errs)
	e.loaded = true
	firstLoad := e.consumerStop == nil
	if firstLoad && e.session.Enabled() {
		e.consumerStop = make(chan struct{})
	}
	stop := e.consumerStop
	e.mu.Unlock()

	if e.session.Enabled() {
		if err := e.session.Join(ctx, canvasID); err != nil {
			e.logf("canvas %d: collaboration join failed: %v", canvasID, err)
			e.reportErr(err)
		} else if firstLoad {
			go e.consumeUpdates(stop)
		}
	}
	return nil
}

func (e *Engine) consumeUpdates(stop chan struct{}) {
	updates := e.session.Updates()
	for {
		select {
		case <-stop:
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			e.applyRemote(update)
		}
	}
}

// applyRemote folds a collaborator's update into the working copy
// without queueing saves; the originating peer already persisted it.
func (e *Engine) applyRemote(update collab.Update) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, p := range update.Positions {
		if node, ok := e.nodes[p.ID]; ok {
			node.X = p.X
			node.Y = p.Y
		}
	}
	for key, reg := range update.Entries {
		e.applyEntryLocked(key, reg)
	}
	for _, pres := range update.Presence {
		e.peers[pres.Actor] = pres
	}
	if update.PeerLeft != "" {
		delete(e.peers, update.PeerLeft)
	}
}

// applyEntryLocked installs one winning shared-document register:
// entity upserts and tombstones for nodes and connections, per-node
// position writes. Undecodable values are skipped.
func (e *Engine) applyEntryLocked(key string, reg collab.Register) {
	kind, id, ok := collab.SplitKey(key)
	if !ok {
		return
	}
	switch kind {
	case collab.KindPosition:
		if reg.Deleted {
			return
		}
		var p canvaskit.NodePosition
		if err := json.Unmarshal(reg.Value, &p); err != nil {
			return
		}
		if node, ok := e.nodes[id]; ok {
			node.X = p.X
			node.Y = p.Y
		}
	case collab.KindNode:
		if reg.Deleted {
			delete(e.nodes, id)
			delete(e.selection, id)
			for connID, conn := range e.conns {
				if conn.References(id) {
					delete(e.conns, connID)
				}
			}
			return
		}
		var node canvaskit.Node
		if err := json.Unmarshal(reg.Value, &node); err != nil {
			return
		}
		node.ID = id
		e.nodes[id] = &node
	case collab.KindConnection:
		if reg.Deleted {
			delete(e.conns, id)
			return
		}
		var conn canvaskit.Connection
		if err := json.Unmarshal(reg.Value, &conn); err != nil {
			return
		}
		conn.ID = id
		e.conns[id] = &conn
	}
}

// publishNode replicates a node create or update to the room.
func (e *Engine) publishNode(node canvaskit.Node) {
	if !e.session.Enabled() {
		return
	}
	value, err := json.Marshal(node)
	if err != nil {
		return
	}
	e.session.PublishEntry(collab.NodeKey(node.ID), value)
}

// publishConnection replicates a connection create to the room.
func (e *Engine) publishConnection(conn canvaskit.Connection) {
	if !e.session.Enabled() {
		return
	}
	value, err := json.Marshal(conn)
	if err != nil {
		return
	}
	e.session.PublishEntry(collab.ConnectionKey(conn.ID), value)
}

func (e *Engine) Canvas() canvaskit.Canvas {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.canvas
}

func (e *Engine) Viewport() canvaskit.Viewport {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.viewport
}

func (e *Engine) Node(nodeID int64) (canvaskit.Node, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	node, ok := e.nodes[nodeID]
	if !ok {
		return canvaskit.Node{}, false
	}
	return *node, true
}

// Nodes returns a copy of every node, sorted by id.
func (e *Engine) Nodes() []canvaskit.Node {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.nodesLocked()
}

func (e *Engine) nodesLocked() []canvaskit.Node {
	out := make([]canvaskit.Node, 0, len(e.nodes))
	for _, node := range e.nodes {
		out = append(out, *node)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (e *Engine) Connections() []canvaskit.Connection {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connsLocked()
}

func (e *Engine) connsLocked() []canvaskit.Connection {
	out := make([]canvaskit.Connection, 0, len(e.conns))
	for _, conn := range e.conns {
		out = append(out, *conn)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (e *Engine) Peers() []collab.Presence {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]collab.Presence, 0, len(e.peers))
	for _, p := range e.peers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Actor < out[j].Actor })
	return out
}

// ToggleSelect flips a node in or out of the selection set.
func (e *Engine) ToggleSelect(nodeID int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.nodes[nodeID]; !ok {
		return fmt.Errorf("%w: node %d", canvaskit.ErrNotFound, nodeID)
	}
	if _, selected := e.selection[nodeID]; selected {
		delete(e.selection, nodeID)
	} else {
		e.selection[nodeID] = struct{}{}
	}
	return nil
}

// SelectNodes replaces the selection set. Ids that do not resolve to a
// node are ignored rather than failing the whole call, so box-select
// over a half-deleted region still lands.
func (e *Engine) SelectNodes(nodeIDs []int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.selection = map[int64]struct{}{}
	for _, id := range nodeIDs {
		if _, ok := e.nodes[id]; ok {
			e.selection[id] = struct{}{}
		}
	}
}

func (e *Engine) ClearSelection() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.selection = map[int64]struct{}{}
}

func (e *Engine) SelectedIDs() []int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selectedLocked()
}

func (e *Engine) selectedLocked() []int64 {
	out := make([]int64, 0, len(e.selection))
	for id := range e.selection {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// MoveNode applies a position change locally and queues it for the
// debounced batch save.
func (e *Engine) MoveNode(nodeID int64, x, y float64) error {
	return e.MoveNodes([]canvaskit.NodePosition{{ID: nodeID, X: x, Y: y}})
}

func (e *Engine) MoveNodes(positions []canvaskit.NodePosition) error {
	e.mu.Lock()
	if !e.loaded {
		e.mu.Unlock()
		return fmt.Errorf("no canvas loaded")
	}
	applied := make([]canvaskit.NodePosition, 0, len(positions))
	for _, p := range positions {
		if math.IsNaN(p.X) || math.IsInf(p.X, 0) || math.IsNaN(p.Y) || math.IsInf(p.Y, 0) {
			e.mu.Unlock()
			return fmt.Errorf("%w: position must be finite", canvaskit.ErrInvalidInput)
		}
		node, ok := e.nodes[p.ID]
		if !ok {
			e.mu.Unlock()
			return fmt.Errorf("%w: node %d", canvaskit.ErrNotFound, p.ID)
		}
		if node.IsLocked {
			e.mu.Unlock()
			return fmt.Errorf("%w: node %d", canvaskit.ErrLocked, p.ID)
		}
		applied = append(applied, p)
	}
	for _, p := range applied {
		node := e.nodes[p.ID]
		node.X = p.X
		node.Y = p.Y
	}
	saver := e.saver
	e.mu.Unlock()

	for _, p := range applied {
		saver.queuePosition(p)
	}
	e.session.PublishPositions(applied)
	return nil
}

// ResizeNode applies a size change locally and queues it on the resize
// debounce, which is shorter than the position one.
func (e *Engine) ResizeNode(nodeID int64, width, height float64) error {
	e.mu.Lock()
	if !e.loaded {
		e.mu.Unlock()
		return fmt.Errorf("no canvas loaded")
	}
	if width < canvaskit.MinNodeWidth || height < canvaskit.MinNodeHeight ||
		math.IsNaN(width) || math.IsInf(width, 0) || math.IsNaN(height) || math.IsInf(height, 0) {
		e.mu.Unlock()
		return fmt.Errorf("%w: size below %gx%g minimum", canvaskit.ErrInvalidInput, canvaskit.MinNodeWidth, canvaskit.MinNodeHeight)
	}
	node, ok := e.nodes[nodeID]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: node %d", canvaskit.ErrNotFound, nodeID)
	}
	if node.IsLocked {
		e.mu.Unlock()
		return fmt.Errorf("%w: node %d", canvaskit.ErrLocked, nodeID)
	}
	node.Width = width
	node.Height = height
	saver := e.saver
	e.mu.Unlock()

	saver.queueSize(nodeID, width, height)
	return nil
}

// CreateNode inserts the node optimistically under a temporary negative
// id, then swaps in the canonical id once the server responds. On
// failure the optimistic node is removed again.
func (e *Engine) CreateNode(ctx context.Context, req canvaskit.CreateNodeRequest) (canvaskit.Node, error) {
	e.mu.Lock()
	if !e.loaded {
		e.mu.Unlock()
		return canvaskit.Node{}, fmt.Errorf("no canvas loaded")
	}
	canvasID := e.canvas.ID
	tempID := e.nextTempID
	e.nextTempID--
	temp := canvaskit.Node{
		ID:       tempID,
		CanvasID: canvasID,
		Name:     req.Name,
		Type:     req.Type,
		X:        req.X,
		Y:        req.Y,
		Width:    req.Width,
		Height:   req.Height,
		Content:  req.Content,
		Config:   req.Config,
	}
	e.nodes[tempID] = &temp
	e.mu.Unlock()

	created, err := e.client.CreateNode(ctx, canvasID, req)

	e.mu.Lock()
	delete(e.nodes, tempID)
	if err != nil {
		saver := e.saver
		e.mu.Unlock()
		if saver != nil {
			saver.dropNode(tempID)
		}
		return canvaskit.Node{}, err
	}
	node := created
	e.nodes[node.ID] = &node
	if _, selected := e.selection[tempID]; selected {
		delete(e.selection, tempID)
		e.selection[node.ID] = struct{}{}
	}
	if e.saver != nil {
		e.saver.renameNode(tempID, node.ID)
	}
	e.mu.Unlock()

	e.publishNode(node)
	return node, nil
}

// UpdateNode sends a partial update and installs the canonical result.
func (e *Engine) UpdateNode(ctx context.Context, nodeID int64, req canvaskit.UpdateNodeRequest) (canvaskit.Node, error) {
	updated, err := e.client.UpdateNode(ctx, nodeID, req)
	if err != nil {
		return canvaskit.Node{}, err
	}
	e.mu.Lock()
	node := updated
	e.nodes[node.ID] = &node
	e.mu.Unlock()

	e.publishNode(node)
	return node, nil
}

// DeleteNode removes the node and its connections locally, then remotely.
// A failed remote delete restores everything.
func (e *Engine) DeleteNode(ctx context.Context, nodeID int64) error {
	e.mu.Lock()
	node, ok := e.nodes[nodeID]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: node %d", canvaskit.ErrNotFound, nodeID)
	}
	removedNode := *node
	var removedConns []canvaskit.Connection
	for id, conn := range e.conns {
		if conn.References(nodeID) {
			removedConns = append(removedConns, *conn)
			delete(e.conns, id)
		}
	}
	delete(e.nodes, nodeID)
	delete(e.selection, nodeID)
	saver := e.saver
	e.mu.Unlock()

	saver.dropNode(nodeID)

	if err := e.client.DeleteNode(ctx, nodeID); err != nil {
		if !isNotFound(err) {
			e.mu.Lock()
			restored := removedNode
			e.nodes[nodeID] = &restored
			for i := range removedConns {
				conn := removedConns[i]
				e.conns[conn.ID] = &conn
			}
			e.mu.Unlock()
			return err
		}
	}
	if e.session.Enabled() {
		e.session.PublishEntry(collab.NodeKey(nodeID), nil)
		for _, conn := range removedConns {
			e.session.PublishEntry(collab.ConnectionKey(conn.ID), nil)
		}
	}
	return nil
}

// Connect validates the edge locally, then creates it remotely.
func (e *Engine) Connect(ctx context.Context, req canvaskit.CreateConnectionRequest) (canvaskit.Connection, error) {
	e.mu.Lock()
	if !e.loaded {
		e.mu.Unlock()
		return canvaskit.Connection{}, fmt.Errorf("no canvas loaded")
	}
	canvasID := e.canvas.ID
	if req.SourceNodeID == req.TargetNodeID {
		e.mu.Unlock()
		return canvaskit.Connection{}, fmt.Errorf("%w: node %d", canvaskit.ErrSelfLoop, req.SourceNodeID)
	}
	source, ok := e.nodes[req.SourceNodeID]
	if !ok {
		e.mu.Unlock()
		return canvaskit.Connection{}, fmt.Errorf("%w: source node %d", canvaskit.ErrNotFound, req.SourceNodeID)
	}
	target, ok := e.nodes[req.TargetNodeID]
	if !ok {
		e.mu.Unlock()
		return canvaskit.Connection{}, fmt.Errorf("%w: target node %d", canvaskit.ErrNotFound, req.TargetNodeID)
	}
	if !e.rules.Allowed(source.Type, target.Type) {
		e.mu.Unlock()
		return canvaskit.Connection{}, &canvaskit.RuleError{SourceType: source.Type, TargetType: target.Type}
	}
	e.mu.Unlock()

	created, err := e.client.CreateConnection(ctx, canvasID, req)
	if err != nil {
		return canvaskit.Connection{}, err
	}
	e.mu.Lock()
	conn := created
	e.conns[conn.ID] = &conn
	e.mu.Unlock()

	e.publishConnection(conn)
	return conn, nil
}

func (e *Engine) DeleteConnection(ctx context.Context, connectionID int64) error {
	e.mu.Lock()
	conn, ok := e.conns[connectionID]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: connection %d", canvaskit.ErrNotFound, connectionID)
	}
	removed := *conn
	delete(e.conns, connectionID)
	e.mu.Unlock()

	if err := e.client.DeleteConnection(ctx, connectionID); err != nil {
		if !isNotFound(err) {
			e.mu.Lock()
			restored := removed
			e.conns[connectionID] = &restored
			e.mu.Unlock()
			return err
		}
	}
	if e.session.Enabled() {
		e.session.PublishEntry(collab.ConnectionKey(connectionID), nil)
	}
	return nil
}

// AutoLayout recomputes node positions hierarchically. The previous
// positions are pushed onto the undo history first.
func (e *Engine) AutoLayout(opts layout.Options) error {
	e.mu.Lock()
	if !e.loaded {
		e.mu.Unlock()
		return fmt.Errorf("no canvas loaded")
	}
	nodes := e.nodesLocked()
	conns := e.connsLocked()
	snapshot := make(layout.Snapshot, 0, len(nodes))
	movable := make([]canvaskit.Node, 0, len(nodes))
	for _, node := range nodes {
		if node.IsLocked {
			continue
		}
		snapshot = append(snapshot, canvaskit.NodePosition{ID: node.ID, X: node.X, Y: node.Y})
		movable = append(movable, node)
	}
	if len(movable) == 0 {
		e.mu.Unlock()
		return nil
	}
	e.history.Push(snapshot)
	e.mu.Unlock()

	positions := layout.Compute(movable, conns, opts)
	if err := e.MoveNodes(positions); err != nil {
		e.mu.Lock()
		e.history.Drop()
		e.mu.Unlock()
		return err
	}
	return nil
}

// UndoLayout restores the positions captured before the most recent
// AutoLayout. It is a no-op when the history is empty.
func (e *Engine) UndoLayout() error {
	e.mu.Lock()
	snapshot, ok := e.history.Undo()
	e.mu.Unlock()
	if !ok {
		return nil
	}
	// Nodes deleted since the snapshot are skipped.
	e.mu.Lock()
	kept := make([]canvaskit.NodePosition, 0, len(snapshot))
	for _, p := range snapshot {
		if node, exists := e.nodes[p.ID]; exists && !node.IsLocked {
			kept = append(kept, p)
		}
	}
	e.mu.Unlock()
	if len(kept) == 0 {
		return nil
	}
	return e.MoveNodes(kept)
}

func (e *Engine) CanUndoLayout() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.CanUndo()
}

// SetViewport replaces the viewport wholesale, clamping zoom.
func (e *Engine) SetViewport(vp canvaskit.Viewport) {
	e.mu.Lock()
	defer e.mu.Unlock()
	vp.Zoom = canvaskit.ClampZoom(vp.Zoom)
	e.viewport = vp
}

func (e *Engine) PanTo(x, y float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.viewport.X = x
	e.viewport.Y = y
}

func (e *Engine) PanBy(dx, dy float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.viewport.X += dx
	e.viewport.Y += dy
}

// ZoomAt changes zoom while keeping the screen point (cx, cy) anchored
// to the same canvas location.
func (e *Engine) ZoomAt(zoom, cx, cy float64) canvaskit.Viewport {
	e.mu.Lock()
	defer e.mu.Unlock()
	old := e.viewport.Zoom
	if old <= 0 {
		old = 1
	}
	next := canvaskit.ClampZoom(zoom)
	e.viewport.X = cx - (cx-e.viewport.X)*next/old
	e.viewport.Y = cy - (cy-e.viewport.Y)*next/old
	e.viewport.Zoom = next
	return e.viewport
}

// FitToScreen recenters the viewport around all nodes.
func (e *Engine) FitToScreen(containerWidth, containerHeight float64) canvaskit.Viewport {
	e.mu.Lock()
	nodes := e.nodesLocked()
	e.mu.Unlock()
	vp := layout.FitViewport(nodes, containerWidth, containerHeight)
	e.mu.Lock()
	e.viewport = vp
	e.mu.Unlock()
	return vp
}

// PublishCursor mirrors the local cursor and selection to collaborators.
func (e *Engine) PublishCursor(x, y float64) {
	if !e.session.Enabled() {
		return
	}
	e.mu.Lock()
	selection := e.selectedLocked()
	e.mu.Unlock()
	e.session.PublishPresence(collab.Presence{CursorX: x, CursorY: y, Selection: selection})
}

// Save flushes pending geometry immediately and persists the viewport.
func (e *Engine) Save(ctx context.Context) error {
	e.mu.Lock()
	if !e.loaded {
		e.mu.Unlock()
		return fmt.Errorf("no canvas loaded")
	}
	saver := e.saver
	canvasID := e.canvas.ID
	vp := e.viewport
	e.mu.Unlock()

	if err := saver.flush(ctx); err != nil {
		return err
	}
	x, y, zoom := vp.X, vp.Y, vp.Zoom
	updated, err := e.client.UpdateCanvas(ctx, canvasID, canvaskit.UpdateCanvasRequest{
		ViewportX: &x,
		ViewportY: &y,
		ZoomLevel: &zoom,
	})
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.canvas = updated
	e.mu.Unlock()
	return nil
}

// PendingSaves reports how many geometry writes are queued.
func (e *Engine) PendingSaves() int {
	e.mu.Lock()
	saver := e.saver
	e.mu.Unlock()
	if saver == nil {
		return 0
	}
	return saver.pendingCount()
}

// Errors yields background save failures. The channel is buffered and
// never blocks the saver; unread errors beyond the buffer are dropped.
func (e *Engine) Errors() <-chan error { return e.errs }

func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	saver := e.saver
	stop := e.consumerStop
	e.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	if saver != nil {
		saver.close()
	}
	return e.session.Leave()
}

func (e *Engine) logf(format string, args ...any) {
	if e.logger == nil {
		return
	}
	e.logger.Printf(format, args...)
}

func (e *Engine) reportErr(err error) {
	select {
	case e.errs <- err:
	default:
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, canvaskit.ErrNotFound)
}
