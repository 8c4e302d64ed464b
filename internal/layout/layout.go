// Package layout computes hierarchical positions for canvas nodes from
// their directed connections. It is pure: inputs are never mutated and no
// I/O happens here.
package layout

import (
	"sort"

	"github.com/prodspace/canvaskit/internal/canvaskit"
)

type Direction string

const (
	TopToBottom Direction = "TB"
	BottomToTop Direction = "BT"
	LeftToRight Direction = "LR"
	RightToLeft Direction = "RL"
)

type Options struct {
	Direction   Direction
	NodeSpacing float64 // gap between nodes sharing a rank
	RankSpacing float64 // gap between consecutive ranks
	MarginX     float64
	MarginY     float64
}

const (
	defaultNodeSpacing = 80.0
	defaultRankSpacing = 120.0
	defaultMargin      = 50.0

	barycenterSweeps = 4
)

func (o Options) withDefaults() Options {
	if o.Direction == "" {
		o.Direction = TopToBottom
	}
	if o.NodeSpacing <= 0 {
		o.NodeSpacing = defaultNodeSpacing
	}
	if o.RankSpacing <= 0 {
		o.RankSpacing = defaultRankSpacing
	}
	if o.MarginX <= 0 {
		o.MarginX = defaultMargin
	}
	if o.MarginY <= 0 {
		o.MarginY = defaultMargin
	}
	return o
}

// node is the internal working copy; order is the creation-order index
// used as the deterministic tiebreak everywhere.
type lnode struct {
	id            int64
	width, height float64
	order         int
	rank          int
	pos           int // position within rank
}

// Compute assigns a position to every node so that connection targets sit
// one rank below (or beside, per direction) their sources. Ranks are
// longest-path depths; order within a rank is refined by barycenter sweeps
// with ascending node id as the stable tiebreak. Disconnected components
// are laid out independently and packed side by side. The result is
// deterministic for identical inputs.
func Compute(nodes []canvaskit.Node, connections []canvaskit.Connection, opts Options) []canvaskit.NodePosition {
	if len(nodes) == 0 {
		return nil
	}
	opts = opts.withDefaults()

	working := make([]*lnode, 0, len(nodes))
	byID := make(map[int64]*lnode, len(nodes))
	for _, n := range nodes {
		ln := &lnode{id: n.ID, width: n.Width, height: n.Height}
		if ln.width <= 0 {
			ln.width = canvaskit.DefaultNodeWidth
		}
		if ln.height <= 0 {
			ln.height = canvaskit.DefaultNodeHeight
		}
		working = append(working, ln)
		byID[n.ID] = ln
	}
	sort.Slice(working, func(i, j int) bool { return working[i].id < working[j].id })
	for i, ln := range working {
		ln.order = i
	}

	out, in := buildEdges(byID, connections)
	components := splitComponents(working, out, in)

	positions := make(map[int64][2]float64, len(working))
	crossCursor := crossMargin(opts)
	for _, component := range components {
		size := layoutComponent(component, out, in, opts, crossCursor, positions)
		crossCursor += size + opts.RankSpacing
	}

	result := make([]canvaskit.NodePosition, 0, len(working))
	for _, ln := range working {
		p := positions[ln.id]
		result = append(result, canvaskit.NodePosition{ID: ln.id, X: p[0], Y: p[1]})
	}
	return result
}

func crossMargin(opts Options) float64 {
	if opts.Direction == LeftToRight || opts.Direction == RightToLeft {
		return opts.MarginY
	}
	return opts.MarginX
}

func buildEdges(byID map[int64]*lnode, connections []canvaskit.Connection) (out, in map[int64][]int64) {
	out = map[int64][]int64{}
	in = map[int64][]int64{}
	seen := map[[2]int64]bool{}
	for _, c := range connections {
		if c.SourceNodeID == c.TargetNodeID {
			continue
		}
		if _, ok := byID[c.SourceNodeID]; !ok {
			continue
		}
		if _, ok := byID[c.TargetNodeID]; !ok {
			continue
		}
		key := [2]int64{c.SourceNodeID, c.TargetNodeID}
		if seen[key] {
			continue
		}
		seen[key] = true
		out[c.SourceNodeID] = append(out[c.SourceNodeID], c.TargetNodeID)
		in[c.TargetNodeID] = append(in[c.TargetNodeID], c.SourceNodeID)
	}
	for _, neighbors := range out {
		sort.Slice(neighbors, func(i, j int) bool { return neighbors[i] < neighbors[j] })
	}
	for _, neighbors := range in {
		sort.Slice(neighbors, func(i, j int) bool { return neighbors[i] < neighbors[j] })
	}
	return out, in
}

// splitComponents groups nodes into weakly connected components, each
// ordered by creation order, components ordered by their smallest id.
func splitComponents(working []*lnode, out, in map[int64][]int64) [][]*lnode {
	byID := make(map[int64]*lnode, len(working))
	for _, ln := range working {
		byID[ln.id] = ln
	}
	visited := map[int64]bool{}
	var components [][]*lnode
	for _, ln := range working {
		if visited[ln.id] {
			continue
		}
		var component []*lnode
		queue := []int64{ln.id}
		visited[ln.id] = true
		for len(queue) > 0 {
			id := queue[0]
			queue = queue[1:]
			component = append(component, byID[id])
			for _, next := range append(append([]int64{}, out[id]...), in[id]...) {
				if !visited[next] {
					visited[next] = true
					queue = append(queue, next)
				}
			}
		}
		sort.Slice(component, func(i, j int) bool { return component[i].order < component[j].order })
		components = append(components, component)
	}
	return components
}

// assignRanks sets each node's rank to its longest-path distance from a
// root of its component. Back edges found on the DFS stack are ignored so
// cycles cannot wedge the computation.
func assignRanks(component []*lnode, in map[int64][]int64) {
	const (
		unvisited = 0
		onStack   = 1
		done      = 2
	)
	state := make(map[int64]int, len(component))
	byID := make(map[int64]*lnode, len(component))
	for _, ln := range component {
		byID[ln.id] = ln
	}
	var visit func(ln *lnode) int
	visit = func(ln *lnode) int {
		switch state[ln.id] {
		case done:
			return ln.rank
		case onStack:
			return -1 // back edge, ignore
		}
		state[ln.id] = onStack
		rank := 0
		for _, parentID := range in[ln.id] {
			parent, ok := byID[parentID]
			if !ok {
				continue
			}
			if parentRank := visit(parent); parentRank >= 0 && parentRank+1 > rank {
				rank = parentRank + 1
			}
		}
		ln.rank = rank
		state[ln.id] = done
		return rank
	}
	for _, ln := range component {
		visit(ln)
	}
}

func layoutComponent(component []*lnode, out, in map[int64][]int64, opts Options, crossOffset float64, positions map[int64][2]float64) float64 {
	assignRanks(component, in)

	maxRank := 0
	for _, ln := range component {
		if ln.rank > maxRank {
			maxRank = ln.rank
		}
	}
	ranks := make([][]*lnode, maxRank+1)
	for _, ln := range component {
		ranks[ln.rank] = append(ranks[ln.rank], ln)
	}
	for _, rank := range ranks {
		sort.Slice(rank, func(i, j int) bool { return rank[i].order < rank[j].order })
		for i, ln := range rank {
			ln.pos = i
		}
	}

	reduceCrossings(ranks, out, in)

	horizontal := opts.Direction == LeftToRight || opts.Direction == RightToLeft
	reversed := opts.Direction == BottomToTop || opts.Direction == RightToLeft

	// Cross-axis extent of each rank row and the widest row, used to
	// center narrower rows.
	rankSpan := make([]float64, len(ranks))
	rankExtent := make([]float64, len(ranks))
	maxSpan := 0.0
	for r, rank := range ranks {
		span := 0.0
		extent := 0.0
		for i, ln := range rank {
			if i > 0 {
				span += opts.NodeSpacing
			}
			span += crossSize(ln, horizontal)
			if mainSize(ln, horizontal) > extent {
				extent = mainSize(ln, horizontal)
			}
		}
		rankSpan[r] = span
		rankExtent[r] = extent
		if span > maxSpan {
			maxSpan = span
		}
	}

	mainCursor := mainMargin(opts, horizontal)
	for idx := range ranks {
		r := idx
		if reversed {
			r = len(ranks) - 1 - idx
		}
		rank := ranks[r]
		cross := crossOffset + (maxSpan-rankSpan[r])/2
		for _, ln := range rank {
			main := mainCursor + (rankExtent[r]-mainSize(ln, horizontal))/2
			if horizontal {
				positions[ln.id] = [2]float64{main, cross}
			} else {
				positions[ln.id] = [2]float64{cross, main}
			}
			cross += crossSize(ln, horizontal) + opts.NodeSpacing
		}
		mainCursor += rankExtent[r] + opts.RankSpacing
	}
	return maxSpan
}

// mainSize is a node's extent along the rank-progression axis.
func mainSize(ln *lnode, horizontal bool) float64 {
	if horizontal {
		return ln.width
	}
	return ln.height
}

// crossSize is a node's extent along the within-rank axis.
func crossSize(ln *lnode, horizontal bool) float64 {
	if horizontal {
		return ln.height
	}
	return ln.width
}

func mainMargin(opts Options, horizontal bool) float64 {
	if horizontal {
		return opts.MarginX
	}
	return opts.MarginY
}

// reduceCrossings runs alternating downward and upward barycenter sweeps.
// A node with no neighbors in the fixed rank keeps its current position;
// ties break on creation order so the result stays deterministic.
func reduceCrossings(ranks [][]*lnode, out, in map[int64][]int64) {
	posOf := func(rank []*lnode) map[int64]int {
		m := make(map[int64]int, len(rank))
		for i, ln := range rank {
			m[ln.id] = i
		}
		return m
	}
	sweep := func(fixed, moving []*lnode, neighbors map[int64][]int64) {
		fixedPos := posOf(fixed)
		type keyed struct {
			ln  *lnode
			bar float64
		}
		entries := make([]keyed, len(moving))
		for i, ln := range moving {
			sum, count := 0.0, 0
			for _, id := range neighbors[ln.id] {
				if p, ok := fixedPos[id]; ok {
					sum += float64(p)
					count++
				}
			}
			bar := float64(i)
			if count > 0 {
				bar = sum / float64(count)
			}
			entries[i] = keyed{ln: ln, bar: bar}
		}
		sort.SliceStable(entries, func(a, b int) bool {
			if entries[a].bar != entries[b].bar {
				return entries[a].bar < entries[b].bar
			}
			return entries[a].ln.order < entries[b].ln.order
		})
		for i, e := range entries {
			moving[i] = e.ln
			e.ln.pos = i
		}
	}
	for pass := 0; pass < barycenterSweeps; pass++ {
		if pass%2 == 0 {
			for r := 1; r < len(ranks); r++ {
				sweep(ranks[r-1], ranks[r], in)
			}
		} else {
			for r := len(ranks) - 2; r >= 0; r-- {
				sweep(ranks[r+1], ranks[r], out)
			}
		}
	}
}

// FitViewport returns the pan and zoom that centers every node inside a
// container of the given size. Zoom never exceeds 1.
func FitViewport(nodes []canvaskit.Node, containerWidth, containerHeight float64) canvaskit.Viewport {
	if len(nodes) == 0 {
		return canvaskit.Viewport{Zoom: 1}
	}
	minX, minY := nodes[0].X, nodes[0].Y
	maxX, maxY := minX, minY
	for _, n := range nodes {
		width, height := n.Width, n.Height
		if width <= 0 {
			width = canvaskit.DefaultNodeWidth
		}
		if height <= 0 {
			height = canvaskit.DefaultNodeHeight
		}
		if n.X < minX {
			minX = n.X
		}
		if n.Y < minY {
			minY = n.Y
		}
		if n.X+width > maxX {
			maxX = n.X + width
		}
		if n.Y+height > maxY {
			maxY = n.Y + height
		}
	}
	const padding = 100.0
	contentWidth := maxX - minX
	contentHeight := maxY - minY
	zoom := 1.0
	if contentWidth > 0 && contentHeight > 0 {
		zoomX := (containerWidth - padding*2) / contentWidth
		zoomY := (containerHeight - padding*2) / contentHeight
		zoom = zoomX
		if zoomY < zoom {
			zoom = zoomY
		}
		if zoom > 1 {
			zoom = 1
		}
	}
	zoom = canvaskit.ClampZoom(zoom)
	centerX := minX + contentWidth/2
	centerY := minY + contentHeight/2
	return canvaskit.Viewport{
		X:    containerWidth/2 - centerX*zoom,
		Y:    containerHeight/2 - centerY*zoom,
		Zoom: zoom,
	}
}
