package canvaskit

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

// Logger is the narrow logging surface long-lived components accept.
type Logger interface {
	Printf(format string, args ...any)
}

type StoreOptions struct {
	Rules        Rules
	StateBackend StateBackend
	Logger       Logger
}

// Store is the canonical state behind the persistence boundary: canvases,
// nodes and connections. Every mutation is an idempotent field set and is
// snapshotted to the configured StateBackend.
type Store struct {
	mu      sync.Mutex
	rules   Rules
	backend StateBackend
	logger  Logger

	nextID      int64
	canvases    map[int64]*Canvas
	nodes       map[int64]*Node
	connections map[int64]*Connection
}

func NewStore() *Store {
	return NewStoreWithOptions(StoreOptions{})
}

func NewStoreWithOptions(opts StoreOptions) *Store {
	rules := opts.Rules
	if rules == nil {
		rules = DefaultRules()
	}
	s := &Store{
		rules:       rules,
		backend:     opts.StateBackend,
		logger:      opts.Logger,
		nextID:      1,
		canvases:    map[int64]*Canvas{},
		nodes:       map[int64]*Node{},
		connections: map[int64]*Connection{},
	}
	s.restore()
	return s
}

func (s *Store) restore() {
	if s.backend == nil {
		return
	}
	snapshot, err := s.backend.Load()
	if err != nil {
		s.logf("failed to load state snapshot: %v", err)
		return
	}
	if snapshot == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if snapshot.NextID > 0 {
		s.nextID = snapshot.NextID
	}
	for i := range snapshot.Canvases {
		c := snapshot.Canvases[i]
		s.canvases[c.ID] = &c
	}
	for i := range snapshot.Nodes {
		n := snapshot.Nodes[i]
		s.nodes[n.ID] = &n
	}
	for i := range snapshot.Connections {
		c := snapshot.Connections[i]
		s.connections[c.ID] = &c
	}
}

// SetRules replaces the connection rule table, e.g. after a rules-file
// reload. Existing connections are not revalidated.
func (s *Store) SetRules(rules Rules) {
	if rules == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = rules
}

func (s *Store) Rules() Rules {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := Rules{}
	for source, targets := range s.rules {
		out[source] = append([]NodeType(nil), targets...)
	}
	return out
}

func (s *Store) CreateCanvas(req CreateCanvasRequest) (*Canvas, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("%w: canvas name is required", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	canvas := &Canvas{
		ID:          s.allocateIDLocked(),
		Name:        req.Name,
		Description: req.Description,
		ZoomLevel:   1,
		GridEnabled: true,
		GridSize:    20,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.canvases[canvas.ID] = canvas
	if err := s.persistLocked(); err != nil {
		delete(s.canvases, canvas.ID)
		return nil, err
	}
	out := *canvas
	return &out, nil
}

// GetCanvas returns the canvas with all of its nodes and connections, in
// ascending id order.
func (s *Store) GetCanvas(id int64) (*CanvasDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	canvas, ok := s.canvases[id]
	if !ok {
		return nil, fmt.Errorf("%w: canvas %d", ErrNotFound, id)
	}
	doc := &CanvasDocument{
		Canvas:      *canvas,
		Nodes:       []Node{},
		Connections: []Connection{},
	}
	for _, n := range s.nodes {
		if n.CanvasID == id {
			doc.Nodes = append(doc.Nodes, *n)
		}
	}
	for _, c := range s.connections {
		if c.CanvasID == id {
			doc.Connections = append(doc.Connections, *c)
		}
	}
	sort.Slice(doc.Nodes, func(i, j int) bool { return doc.Nodes[i].ID < doc.Nodes[j].ID })
	sort.Slice(doc.Connections, func(i, j int) bool { return doc.Connections[i].ID < doc.Connections[j].ID })
	return doc, nil
}

func (s *Store) ListCanvases() []Canvas {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Canvas, 0, len(s.canvases))
	for _, c := range s.canvases {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) UpdateCanvas(id int64, req UpdateCanvasRequest) (*Canvas, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	canvas, ok := s.canvases[id]
	if !ok {
		return nil, fmt.Errorf("%w: canvas %d", ErrNotFound, id)
	}
	updated := *canvas
	if req.Name != nil {
		if *req.Name == "" {
			return nil, fmt.Errorf("%w: canvas name cannot be empty", ErrInvalidInput)
		}
		updated.Name = *req.Name
	}
	if req.Description != nil {
		updated.Description = *req.Description
	}
	if req.ViewportX != nil {
		updated.ViewportX = *req.ViewportX
	}
	if req.ViewportY != nil {
		updated.ViewportY = *req.ViewportY
	}
	if req.ZoomLevel != nil {
		updated.ZoomLevel = ClampZoom(*req.ZoomLevel)
	}
	if req.GridEnabled != nil {
		updated.GridEnabled = *req.GridEnabled
	}
	if req.SnapToGrid != nil {
		updated.SnapToGrid = *req.SnapToGrid
	}
	if req.GridSize != nil {
		if *req.GridSize <= 0 {
			return nil, fmt.Errorf("%w: grid size must be positive", ErrInvalidInput)
		}
		updated.GridSize = *req.GridSize
	}
	if !isFinite(updated.ViewportX) || !isFinite(updated.ViewportY) {
		return nil, fmt.Errorf("%w: viewport offsets must be finite", ErrInvalidInput)
	}
	updated.UpdatedAt = time.Now().UTC()
	s.canvases[id] = &updated
	if err := s.persistLocked(); err != nil {
		s.canvases[id] = canvas
		return nil, err
	}
	out := updated
	return &out, nil
}

// DeleteCanvas removes the canvas and cascades to every node and
// connection it owns.
func (s *Store) DeleteCanvas(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.canvases[id]; !ok {
		return fmt.Errorf("%w: canvas %d", ErrNotFound, id)
	}
	delete(s.canvases, id)
	for nodeID, n := range s.nodes {
		if n.CanvasID == id {
			delete(s.nodes, nodeID)
		}
	}
	for connID, c := range s.connections {
		if c.CanvasID == id {
			delete(s.connections, connID)
		}
	}
	return s.persistLocked()
}

func (s *Store) CreateNode(canvasID int64, req CreateNodeRequest) (*Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.canvases[canvasID]; !ok {
		return nil, fmt.Errorf("%w: canvas %d", ErrNotFound, canvasID)
	}
	if req.Config != nil && req.Config.ConfigType() != req.Type {
		return nil, fmt.Errorf("%w: config variant %s does not match node type %s", ErrInvalidInput, req.Config.ConfigType(), req.Type)
	}
	now := time.Now().UTC()
	node := &Node{
		CanvasID:    canvasID,
		Name:        req.Name,
		Type:        req.Type,
		X:           req.X,
		Y:           req.Y,
		Width:       req.Width,
		Height:      req.Height,
		Content:     req.Content,
		Config:      req.Config,
		Color:       req.Color,
		BorderColor: req.BorderColor,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if node.Name == "" {
		node.Name = fmt.Sprintf("New %s node", req.Type)
	}
	if node.Width == 0 && node.Height == 0 {
		node.Width, node.Height = DefaultNodeWidth, DefaultNodeHeight
		if node.Type == NodeDoc {
			node.Width, node.Height = DefaultDocWidth, DefaultDocHeight
		}
	}
	if err := node.Validate(); err != nil {
		return nil, err
	}
	node.ID = s.allocateIDLocked()
	s.nodes[node.ID] = node
	if err := s.persistLocked(); err != nil {
		delete(s.nodes, node.ID)
		return nil, err
	}
	out := *node
	return &out, nil
}

func (s *Store) GetNode(id int64) (*Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	node, ok := s.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: node %d", ErrNotFound, id)
	}
	out := *node
	return &out, nil
}

func (s *Store) UpdateNode(id int64, req UpdateNodeRequest) (*Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	node, ok := s.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: node %d", ErrNotFound, id)
	}
	geometryChange := req.X != nil || req.Y != nil || req.Width != nil || req.Height != nil
	if node.IsLocked && geometryChange {
		return nil, fmt.Errorf("%w: node %d", ErrLocked, id)
	}
	updated := *node
	if req.Name != nil {
		updated.Name = *req.Name
	}
	if req.X != nil {
		updated.X = *req.X
	}
	if req.Y != nil {
		updated.Y = *req.Y
	}
	if req.Width != nil {
		updated.Width = *req.Width
	}
	if req.Height != nil {
		updated.Height = *req.Height
	}
	if req.Content != nil {
		updated.Content = *req.Content
	}
	if req.Config != nil {
		cfg, err := DecodeNodeConfig(node.Type, req.Config)
		if err != nil {
			return nil, err
		}
		updated.Config = cfg
	}
	if req.Color != nil {
		updated.Color = *req.Color
	}
	if req.BorderColor != nil {
		updated.BorderColor = *req.BorderColor
	}
	if req.IsLocked != nil {
		updated.IsLocked = *req.IsLocked
	}
	if req.IsCollapsed != nil {
		updated.IsCollapsed = *req.IsCollapsed
	}
	if req.ZIndex != nil {
		updated.ZIndex = *req.ZIndex
	}
	if req.WorkflowStage != nil {
		updated.WorkflowStage = *req.WorkflowStage
	}
	if err := updated.Validate(); err != nil {
		return nil, err
	}
	updated.UpdatedAt = time.Now().UTC()
	s.nodes[id] = &updated
	if err := s.persistLocked(); err != nil {
		s.nodes[id] = node
		return nil, err
	}
	out := updated
	return &out, nil
}

// DeleteNode removes the node and, in the same step, every connection
// that references it, so no dangling connection is ever observable.
func (s *Store) DeleteNode(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[id]; !ok {
		return fmt.Errorf("%w: node %d", ErrNotFound, id)
	}
	delete(s.nodes, id)
	for connID, c := range s.connections {
		if c.References(id) {
			delete(s.connections, connID)
		}
	}
	return s.persistLocked()
}

func (s *Store) CreateConnection(canvasID int64, req CreateConnectionRequest) (*Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.canvases[canvasID]; !ok {
		return nil, fmt.Errorf("%w: canvas %d", ErrNotFound, canvasID)
	}
	if req.SourceNodeID == req.TargetNodeID {
		return nil, fmt.Errorf("%w: node %d", ErrSelfLoop, req.SourceNodeID)
	}
	source, ok := s.nodes[req.SourceNodeID]
	if !ok {
		return nil, fmt.Errorf("%w: source node %d", ErrNotFound, req.SourceNodeID)
	}
	target, ok := s.nodes[req.TargetNodeID]
	if !ok {
		return nil, fmt.Errorf("%w: target node %d", ErrNotFound, req.TargetNodeID)
	}
	if source.CanvasID != canvasID || target.CanvasID != canvasID {
		return nil, ErrCrossCanvas
	}
	if !s.rules.Allowed(source.Type, target.Type) {
		return nil, &RuleError{SourceType: source.Type, TargetType: target.Type}
	}
	style := req.Style
	if style == "" {
		style = StyleSolid
	}
	connType := req.Type
	if connType == "" {
		connType = "default"
	}
	conn := &Connection{
		ID:           s.allocateIDLocked(),
		CanvasID:     canvasID,
		SourceNodeID: req.SourceNodeID,
		TargetNodeID: req.TargetNodeID,
		SourceAnchor: req.SourceAnchor,
		TargetAnchor: req.TargetAnchor,
		Type:         connType,
		Style:        style,
		Color:        req.Color,
		Label:        req.Label,
		CreatedAt:    time.Now().UTC(),
	}
	s.connections[conn.ID] = conn
	if err := s.persistLocked(); err != nil {
		delete(s.connections, conn.ID)
		return nil, err
	}
	out := *conn
	return &out, nil
}

func (s *Store) DeleteConnection(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.connections[id]; !ok {
		return fmt.Errorf("%w: connection %d", ErrNotFound, id)
	}
	delete(s.connections, id)
	return s.persistLocked()
}

// BatchUpdatePositions sets the position of each listed node. Unknown ids
// are skipped so replays after a delete stay idempotent; locked nodes are
// skipped too. Returns the number of nodes updated.
func (s *Store) BatchUpdatePositions(canvasID int64, update BatchPositionUpdate) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.canvases[canvasID]; !ok {
		return 0, fmt.Errorf("%w: canvas %d", ErrNotFound, canvasID)
	}
	for _, pos := range update.Nodes {
		if !isFinite(pos.X) || !isFinite(pos.Y) {
			return 0, fmt.Errorf("%w: position for node %d must be finite", ErrInvalidInput, pos.ID)
		}
	}
	now := time.Now().UTC()
	updated := 0
	for _, pos := range update.Nodes {
		node, ok := s.nodes[pos.ID]
		if !ok || node.CanvasID != canvasID || node.IsLocked {
			continue
		}
		next := *node
		next.X = pos.X
		next.Y = pos.Y
		next.UpdatedAt = now
		s.nodes[pos.ID] = &next
		updated++
	}
	if updated == 0 {
		return 0, nil
	}
	return updated, s.persistLocked()
}

func (s *Store) Close() error {
	if closer, ok := s.backend.(stateBackendCloser); ok {
		return closer.Close()
	}
	return nil
}

func (s *Store) allocateIDLocked() int64 {
	id := s.nextID
	s.nextID++
	return id
}

func (s *Store) persistLocked() error {
	if s.backend == nil {
		return nil
	}
	snapshot := persistedState{NextID: s.nextID}
	for _, c := range s.canvases {
		snapshot.Canvases = append(snapshot.Canvases, *c)
	}
	for _, n := range s.nodes {
		snapshot.Nodes = append(snapshot.Nodes, *n)
	}
	for _, c := range s.connections {
		snapshot.Connections = append(snapshot.Connections, *c)
	}
	sort.Slice(snapshot.Canvases, func(i, j int) bool { return snapshot.Canvases[i].ID < snapshot.Canvases[j].ID })
	sort.Slice(snapshot.Nodes, func(i, j int) bool { return snapshot.Nodes[i].ID < snapshot.Nodes[j].ID })
	sort.Slice(snapshot.Connections, func(i, j int) bool { return snapshot.Connections[i].ID < snapshot.Connections[j].ID })
	return s.backend.Save(&snapshot)
}

func (s *Store) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
