package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/prodspace/canvaskit/internal/canvaskit"
)

const (
	// DefaultSaveDelay is the quiet period after the last queued move
	// before positions are flushed in one batch.
	DefaultSaveDelay = time.Second
	// DefaultResizeDelay debounces size changes separately so a drag
	// resize settles before hitting the API.
	DefaultResizeDelay = 400 * time.Millisecond

	flushTimeout = 10 * time.Second
)

type nodeSize struct {
	Width  float64
	Height float64
}

// saver coalesces node geometry writes. Queued positions overwrite
// earlier entries for the same node, so a burst of drag events becomes a
// single batch request once the debounce window closes. A failed flush
// puts the entries back unless newer values arrived in the meantime, so
// every accepted change is eventually written at least once.
type saver struct {
	client      RemoteClient
	clock       Clock
	canvasID    int64
	saveDelay   time.Duration
	resizeDelay time.Duration
	logger      canvaskit.Logger
	errs        chan<- error

	mu           sync.Mutex
	pending      map[int64]canvaskit.NodePosition
	pendingSizes map[int64]nodeSize
	timer        Timer
	resizeTimer  Timer
	closed       bool
}

func newSaver(client RemoteClient, clock Clock, canvasID int64, saveDelay, resizeDelay time.Duration, logger canvaskit.Logger, errs chan<- error) *saver {
	if saveDelay <= 0 {
		saveDelay = DefaultSaveDelay
	}
	if resizeDelay <= 0 {
		resizeDelay = DefaultResizeDelay
	}
	return &saver{
		client:       client,
		clock:        clock,
		canvasID:     canvasID,
		saveDelay:    saveDelay,
		resizeDelay:  resizeDelay,
		logger:       logger,
		errs:         errs,
		pending:      map[int64]canvaskit.NodePosition{},
		pendingSizes: map[int64]nodeSize{},
	}
}

func (s *saver) queuePosition(p canvaskit.NodePosition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.pending[p.ID] = p
	if s.timer == nil {
		s.timer = s.clock.AfterFunc(s.saveDelay, s.onSaveTimer)
	} else {
		s.timer.Reset(s.saveDelay)
	}
}

func (s *saver) queueSize(nodeID int64, width, height float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.pendingSizes[nodeID] = nodeSize{Width: width, Height: height}
	if s.resizeTimer == nil {
		s.resizeTimer = s.clock.AfterFunc(s.resizeDelay, s.onResizeTimer)
	} else {
		s.resizeTimer.Reset(s.resizeDelay)
	}
}

func (s *saver) onSaveTimer() {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := s.flushPositions(ctx); err != nil {
		s.report(err)
	}
}

func (s *saver) onResizeTimer() {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := s.flushSizes(ctx); err != nil {
		s.report(err)
	}
}

func (s *saver) flushPositions(ctx context.Context) error {
	s.mu.Lock()
	if len(s.pending) == 0 {
		s.timer = nil
		s.mu.Unlock()
		return nil
	}
	batch := s.pending
	s.pending = map[int64]canvaskit.NodePosition{}
	s.timer = nil
	s.mu.Unlock()

	update := canvaskit.BatchPositionUpdate{Nodes: make([]canvaskit.NodePosition, 0, len(batch))}
	for _, p := range batch {
		update.Nodes = append(update.Nodes, p)
	}
	sortPositions(update.Nodes)

	if _, err := s.client.BatchUpdatePositions(ctx, s.canvasID, update); err != nil {
		s.requeue(batch)
		return err
	}
	return nil
}

// requeue restores a failed batch, keeping any value queued since the
// flush started since it is newer.
func (s *saver) requeue(batch map[int64]canvaskit.NodePosition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for id, p := range batch {
		if _, superseded := s.pending[id]; !superseded {
			s.pending[id] = p
		}
	}
	if len(s.pending) > 0 && s.timer == nil {
		s.timer = s.clock.AfterFunc(s.saveDelay, s.onSaveTimer)
	}
}

func (s *saver) flushSizes(ctx context.Context) error {
	s.mu.Lock()
	if len(s.pendingSizes) == 0 {
		s.resizeTimer = nil
		s.mu.Unlock()
		return nil
	}
	batch := s.pendingSizes
	s.pendingSizes = map[int64]nodeSize{}
	s.resizeTimer = nil
	s.mu.Unlock()

	ids := make([]int64, 0, len(batch))
	for id := range batch {
		ids = append(ids, id)
	}
	sortIDs(ids)

	var firstErr error
	failed := map[int64]nodeSize{}
	for _, id := range ids {
		size := batch[id]
		width, height := size.Width, size.Height
		if _, err := s.client.UpdateNode(ctx, id, canvaskit.UpdateNodeRequest{Width: &width, Height: &height}); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			failed[id] = size
		}
	}
	if len(failed) > 0 {
		s.mu.Lock()
		if !s.closed {
			for id, size := range failed {
				if _, superseded := s.pendingSizes[id]; !superseded {
					s.pendingSizes[id] = size
				}
			}
			if len(s.pendingSizes) > 0 && s.resizeTimer == nil {
				s.resizeTimer = s.clock.AfterFunc(s.resizeDelay, s.onResizeTimer)
			}
		}
		s.mu.Unlock()
	}
	return firstErr
}

// flush writes everything immediately, bypassing both debounce windows.
func (s *saver) flush(ctx context.Context) error {
	s.stopTimers()
	if err := s.flushPositions(ctx); err != nil {
		return err
	}
	return s.flushSizes(ctx)
}

func (s *saver) pendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending) + len(s.pendingSizes)
}

// dropNode discards queued writes for a node that no longer exists.
func (s *saver) dropNode(nodeID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, nodeID)
	delete(s.pendingSizes, nodeID)
}

// renameNode moves queued writes from a temporary id to the canonical one.
func (s *saver) renameNode(oldID, newID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pending[oldID]; ok {
		delete(s.pending, oldID)
		p.ID = newID
		s.pending[newID] = p
	}
	if size, ok := s.pendingSizes[oldID]; ok {
		delete(s.pendingSizes, oldID)
		s.pendingSizes[newID] = size
	}
}

func (s *saver) stopTimers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.resizeTimer != nil {
		s.resizeTimer.Stop()
		s.resizeTimer = nil
	}
}

func (s *saver) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.resizeTimer != nil {
		s.resizeTimer.Stop()
		s.resizeTimer = nil
	}
}

func (s *saver) report(err error) {
	if s.logger != nil {
		s.logger.Printf("canvas %d: deferred save failed: %v", s.canvasID, err)
	}
	if s.errs == nil {
		return
	}
	select {
	case s.errs <- err:
	default:
	}
}

func sortPositions(positions []canvaskit.NodePosition) {
	sort.Slice(positions, func(i, j int) bool { return positions[i].ID < positions[j].ID })
}

func sortIDs(ids []int64) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
