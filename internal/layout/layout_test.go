package layout

import (
	"reflect"
	"testing"

	"github.com/prodspace/canvaskit/internal/canvaskit"
)

func makeNode(id int64, width, height float64) canvaskit.Node {
	return canvaskit.Node{ID: id, Type: canvaskit.NodeDoc, Width: width, Height: height}
}

func makeConn(id, source, target int64) canvaskit.Connection {
	return canvaskit.Connection{ID: id, SourceNodeID: source, TargetNodeID: target}
}

func positionsByID(result []canvaskit.NodePosition) map[int64]canvaskit.NodePosition {
	m := make(map[int64]canvaskit.NodePosition, len(result))
	for _, p := range result {
		m[p.ID] = p
	}
	return m
}

func TestComputeRanksFollowConnections(t *testing.T) {
	nodes := []canvaskit.Node{
		makeNode(1, 300, 200),
		makeNode(2, 300, 200),
		makeNode(3, 300, 200),
	}
	conns := []canvaskit.Connection{
		makeConn(10, 1, 2),
		makeConn(11, 2, 3),
	}
	result := Compute(nodes, conns, Options{})
	pos := positionsByID(result)
	if !(pos[1].Y < pos[2].Y && pos[2].Y < pos[3].Y) {
		t.Fatalf("expected descending chain top to bottom, got %+v", pos)
	}
	gap := pos[2].Y - (pos[1].Y + 200)
	if gap != defaultRankSpacing {
		t.Fatalf("expected rank gap %g, got %g", defaultRankSpacing, gap)
	}
}

func TestComputeLongestPathRanking(t *testing.T) {
	// 1 -> 2 -> 4 and 1 -> 3 -> 4: both paths agree, 4 lands at rank 2.
	// Adding 1 -> 4 directly must not pull 4 up.
	nodes := []canvaskit.Node{
		makeNode(1, 300, 200), makeNode(2, 300, 200),
		makeNode(3, 300, 200), makeNode(4, 300, 200),
	}
	conns := []canvaskit.Connection{
		makeConn(10, 1, 2), makeConn(11, 1, 3),
		makeConn(12, 2, 4), makeConn(13, 3, 4),
		makeConn(14, 1, 4),
	}
	pos := positionsByID(Compute(nodes, conns, Options{}))
	if pos[2].Y != pos[3].Y {
		t.Fatalf("expected 2 and 3 to share a rank, got %g and %g", pos[2].Y, pos[3].Y)
	}
	if pos[4].Y <= pos[2].Y {
		t.Fatalf("expected 4 below its deepest parent, got %g vs %g", pos[4].Y, pos[2].Y)
	}
}

func TestComputeNoOverlapWithinRank(t *testing.T) {
	nodes := []canvaskit.Node{
		makeNode(1, 300, 200),
		makeNode(2, 400, 300),
		makeNode(3, 120, 80),
		makeNode(4, 300, 200),
	}
	conns := []canvaskit.Connection{
		makeConn(10, 1, 2), makeConn(11, 1, 3), makeConn(12, 1, 4),
	}
	pos := positionsByID(Compute(nodes, conns, Options{}))
	children := []int64{2, 3, 4}
	for i, a := range children {
		for _, b := range children[i+1:] {
			pa, pb := pos[a], pos[b]
			wa := widthOf(nodes, a)
			wb := widthOf(nodes, b)
			if pa.X < pb.X+wb && pb.X < pa.X+wa {
				t.Fatalf("nodes %d and %d overlap horizontally: %+v %+v", a, b, pa, pb)
			}
		}
	}
}

func widthOf(nodes []canvaskit.Node, id int64) float64 {
	for _, n := range nodes {
		if n.ID == id {
			return n.Width
		}
	}
	return 0
}

func TestComputeIsDeterministic(t *testing.T) {
	nodes := []canvaskit.Node{
		makeNode(5, 300, 200), makeNode(1, 300, 200), makeNode(3, 300, 200),
		makeNode(2, 300, 200), makeNode(4, 300, 200),
	}
	conns := []canvaskit.Connection{
		makeConn(10, 1, 3), makeConn(11, 1, 4), makeConn(12, 2, 4),
		makeConn(13, 2, 5), makeConn(14, 3, 5),
	}
	first := Compute(nodes, conns, Options{})
	for i := 0; i < 5; i++ {
		if again := Compute(nodes, conns, Options{}); !reflect.DeepEqual(first, again) {
			t.Fatalf("layout not deterministic:\nfirst %+v\nagain %+v", first, again)
		}
	}
}

func TestComputeToleratesCycles(t *testing.T) {
	nodes := []canvaskit.Node{
		makeNode(1, 300, 200), makeNode(2, 300, 200), makeNode(3, 300, 200),
	}
	conns := []canvaskit.Connection{
		makeConn(10, 1, 2), makeConn(11, 2, 3), makeConn(12, 3, 1),
	}
	result := Compute(nodes, conns, Options{})
	if len(result) != 3 {
		t.Fatalf("expected positions for all cycle members, got %d", len(result))
	}
}

func TestComputePacksDisconnectedComponents(t *testing.T) {
	nodes := []canvaskit.Node{
		makeNode(1, 300, 200), makeNode(2, 300, 200),
		makeNode(3, 300, 200), makeNode(4, 300, 200),
	}
	conns := []canvaskit.Connection{
		makeConn(10, 1, 2),
		makeConn(11, 3, 4),
	}
	pos := positionsByID(Compute(nodes, conns, Options{}))
	// Both components start at the top margin but occupy disjoint
	// horizontal bands.
	if pos[1].Y != pos[3].Y {
		t.Fatalf("expected both roots at the top, got %g and %g", pos[1].Y, pos[3].Y)
	}
	if pos[3].X < pos[1].X+300 {
		t.Fatalf("expected second component to the right of the first, got %+v %+v", pos[1], pos[3])
	}
}

func TestComputeDirections(t *testing.T) {
	nodes := []canvaskit.Node{makeNode(1, 300, 200), makeNode(2, 300, 200)}
	conns := []canvaskit.Connection{makeConn(10, 1, 2)}

	pos := positionsByID(Compute(nodes, conns, Options{Direction: BottomToTop}))
	if pos[1].Y <= pos[2].Y {
		t.Fatalf("BT: expected source below target, got %+v", pos)
	}
	pos = positionsByID(Compute(nodes, conns, Options{Direction: LeftToRight}))
	if pos[1].X >= pos[2].X {
		t.Fatalf("LR: expected source left of target, got %+v", pos)
	}
	pos = positionsByID(Compute(nodes, conns, Options{Direction: RightToLeft}))
	if pos[1].X <= pos[2].X {
		t.Fatalf("RL: expected source right of target, got %+v", pos)
	}
}

func TestComputeSkipsDanglingConnections(t *testing.T) {
	nodes := []canvaskit.Node{makeNode(1, 300, 200)}
	conns := []canvaskit.Connection{makeConn(10, 1, 99), makeConn(11, 1, 1)}
	result := Compute(nodes, conns, Options{})
	if len(result) != 1 {
		t.Fatalf("expected single node laid out, got %d", len(result))
	}
}

func TestComputeEmpty(t *testing.T) {
	if result := Compute(nil, nil, Options{}); result != nil {
		t.Fatalf("expected nil for empty input, got %+v", result)
	}
}

func TestFitViewportCentersContent(t *testing.T) {
	nodes := []canvaskit.Node{
		makeNode(1, 100, 100),
	}
	nodes[0].X = 400
	nodes[0].Y = 400
	vp := FitViewport(nodes, 1000, 800)
	if vp.Zoom != 1 {
		t.Fatalf("expected zoom 1 for small content, got %g", vp.Zoom)
	}
	// Content center is (450,450); the viewport must map it to the
	// container center.
	if vp.X != 1000/2-450.0 || vp.Y != 800/2-450.0 {
		t.Fatalf("unexpected fit viewport: %+v", vp)
	}
}

func TestFitViewportClampsZoom(t *testing.T) {
	nodes := []canvaskit.Node{makeNode(1, 100, 100), makeNode(2, 100, 100)}
	nodes[1].X = 100000
	vp := FitViewport(nodes, 800, 600)
	if vp.Zoom < canvaskit.MinZoom {
		t.Fatalf("expected zoom clamped at %g, got %g", canvaskit.MinZoom, vp.Zoom)
	}
	if FitViewport(nil, 800, 600).Zoom != 1 {
		t.Fatalf("expected identity viewport for empty canvas")
	}
}

func TestHistoryPushUndo(t *testing.T) {
	h := NewHistory(0)
	if h.CanUndo() {
		t.Fatalf("fresh history should have nothing to undo")
	}
	if _, ok := h.Undo(); ok {
		t.Fatalf("undo on empty history should report false")
	}

	h.Push(Snapshot{{ID: 1, X: 10, Y: 20}})
	h.Push(Snapshot{{ID: 1, X: 30, Y: 40}})
	s, ok := h.Undo()
	if !ok || s[0].X != 30 {
		t.Fatalf("expected latest snapshot first, got %+v %v", s, ok)
	}
	s, ok = h.Undo()
	if !ok || s[0].X != 10 {
		t.Fatalf("expected earlier snapshot next, got %+v %v", s, ok)
	}
	if h.CanUndo() {
		t.Fatalf("history should be exhausted")
	}
}

func TestHistoryPushTruncatesFuture(t *testing.T) {
	h := NewHistory(10)
	h.Push(Snapshot{{ID: 1, X: 1}})
	h.Push(Snapshot{{ID: 1, X: 2}})
	if _, ok := h.Undo(); !ok {
		t.Fatalf("undo failed")
	}
	h.Push(Snapshot{{ID: 1, X: 3}})
	if h.Len() != 2 {
		t.Fatalf("expected truncated history of 2, got %d", h.Len())
	}
	s, _ := h.Undo()
	if s[0].X != 3 {
		t.Fatalf("expected newest snapshot 3, got %+v", s)
	}
}

func TestHistoryEvictsOldest(t *testing.T) {
	h := NewHistory(3)
	for i := 1; i <= 5; i++ {
		h.Push(Snapshot{{ID: 1, X: float64(i)}})
	}
	if h.Len() != 3 {
		t.Fatalf("expected capacity-bounded length 3, got %d", h.Len())
	}
	seen := []float64{}
	for {
		s, ok := h.Undo()
		if !ok {
			break
		}
		seen = append(seen, s[0].X)
	}
	if !reflect.DeepEqual(seen, []float64{5, 4, 3}) {
		t.Fatalf("expected newest three snapshots, got %v", seen)
	}
}

func TestHistoryDropDiscardsNewest(t *testing.T) {
	h := NewHistory(3)
	h.Push(Snapshot{{ID: 1, X: 1}})
	h.Push(Snapshot{{ID: 1, X: 2}})
	h.Drop()
	s, ok := h.Undo()
	if !ok || s[0].X != 1 {
		t.Fatalf("expected drop to discard only the newest snapshot, got %+v %v", s, ok)
	}
	h.Drop()
	if h.CanUndo() {
		t.Fatalf("drop on empty history should stay empty")
	}
}

func TestHistorySnapshotsAreIsolated(t *testing.T) {
	h := NewHistory(10)
	original := Snapshot{{ID: 1, X: 1}}
	h.Push(original)
	original[0].X = 999
	s, _ := h.Undo()
	if s[0].X != 1 {
		t.Fatalf("expected snapshot isolated from caller mutation, got %+v", s)
	}
}
