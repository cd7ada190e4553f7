package roadgraph

import (
	"container/heap"
	"errors"
	"fmt"

	"github.com/kyroy/kdtree"

	"transit-isochrone/internal/geo"
)

var ErrEmptyNetwork = errors.New("road network has no nodes")

type Node struct {
	ID    int64 // source id, e.g. an OSM node id
	Point geo.Point
}

// Graph is an undirected walking network in CSR form. It is read-only after
// Build and may be shared across timetable reloads.
type Graph struct {
	nodes    []Node
	firstOut []int32   // len(nodes)+1; firstOut[i]..firstOut[i+1] are arcs from node i
	head     []int32   // arc target
	cost     []float64 // arc traversal time in seconds
	tree     *kdtree.KDTree
}

// nodePoint adapts a node to kdtree.Point.
type nodePoint struct {
	idx  int32
	x, y float64
}

func (p nodePoint) Dimensions() int { return 2 }

func (p nodePoint) Dimension(i int) float64 {
	if i == 0 {
		return p.x
	}
	return p.y
}

type Builder struct {
	walkingSpeed float64
	nodes        []Node
	index        map[int64]int32
	edges        [][2]int32
}

func NewBuilder(walkingSpeed float64) *Builder {
	return &Builder{walkingSpeed: walkingSpeed, index: make(map[int64]int32)}
}

// AddNode registers a node. Adding an id twice keeps the first position.
func (b *Builder) AddNode(id int64, p geo.Point) {
	if _, ok := b.index[id]; ok {
		return
	}
	b.index[id] = int32(len(b.nodes))
	b.nodes = append(b.nodes, Node{ID: id, Point: p})
}

func (b *Builder) AddEdge(from, to int64) error {
	u, ok := b.index[from]
	if !ok {
		return fmt.Errorf("edge %d-%d: unknown node %d", from, to, from)
	}
	v, ok := b.index[to]
	if !ok {
		return fmt.Errorf("edge %d-%d: unknown node %d", from, to, to)
	}
	if u != v {
		b.edges = append(b.edges, [2]int32{u, v})
	}
	return nil
}

func (b *Builder) Build() (*Graph, error) {
	if len(b.nodes) == 0 {
		return nil, ErrEmptyNetwork
	}
	if b.walkingSpeed <= 0 {
		return nil, fmt.Errorf("walking speed must be positive, got %g", b.walkingSpeed)
	}
	n := len(b.nodes)
	g := &Graph{
		nodes:    b.nodes,
		firstOut: make([]int32, n+1),
		head:     make([]int32, 2*len(b.edges)),
		cost:     make([]float64, 2*len(b.edges)),
	}
	for _, e := range b.edges {
		g.firstOut[e[0]+1]++
		g.firstOut[e[1]+1]++
	}
	for i := 1; i <= n; i++ {
		g.firstOut[i] += g.firstOut[i-1]
	}
	fill := make([]int32, n)
	copy(fill, g.firstOut[:n])
	for _, e := range b.edges {
		secs := b.nodes[e[0]].Point.Dist(b.nodes[e[1]].Point) / b.walkingSpeed
		for _, arc := range [2][2]int32{{e[0], e[1]}, {e[1], e[0]}} {
			slot := fill[arc[0]]
			g.head[slot] = arc[1]
			g.cost[slot] = secs
			fill[arc[0]]++
		}
	}

	pts := make([]kdtree.Point, n)
	for i, nd := range g.nodes {
		pts[i] = nodePoint{idx: int32(i), x: nd.Point.X, y: nd.Point.Y}
	}
	g.tree = kdtree.New(pts)
	return g, nil
}

func (g *Graph) NodeCount() int { return len(g.nodes) }

func (g *Graph) EdgeCount() int { return len(g.head) / 2 }

func (g *Graph) Node(i int32) Node { return g.nodes[i] }

// Snap returns the node nearest to p if it lies within tolerance meters.
func (g *Graph) Snap(p geo.Point, tolerance float64) (idx int32, dist float64, ok bool) {
	found := g.tree.KNN(nodePoint{idx: -1, x: p.X, y: p.Y}, 1)
	if len(found) == 0 {
		return 0, 0, false
	}
	np := found[0].(nodePoint)
	d := g.nodes[np.idx].Point.Dist(p)
	if d > tolerance {
		return 0, 0, false
	}
	return np.idx, d, true
}

// pathTree holds shortest walking times from one source node, complete up to limit seconds.
type pathTree struct {
	limit float64
	secs  map[int32]float64
}

// shortestPaths runs Dijkstra from src, settling nodes up to limit seconds.
func (g *Graph) shortestPaths(src int32, limit float64) *pathTree {
	t := &pathTree{limit: limit, secs: map[int32]float64{}}
	best := map[int32]float64{src: 0}
	pq := &nodeQueue{{node: src}}
	for pq.Len() > 0 {
		it := heap.Pop(pq).(nodeItem)
		if _, done := t.secs[it.node]; done {
			continue
		}
		t.secs[it.node] = it.secs
		for a := g.firstOut[it.node]; a < g.firstOut[it.node+1]; a++ {
			next := it.secs + g.cost[a]
			if next > limit {
				continue
			}
			v := g.head[a]
			if cur, ok := best[v]; ok && cur <= next {
				continue
			}
			best[v] = next
			heap.Push(pq, nodeItem{node: v, secs: next})
		}
	}
	return t
}

type nodeItem struct {
	node int32
	secs float64
}

type nodeQueue []nodeItem

func (q nodeQueue) Len() int { return len(q) }

func (q nodeQueue) Less(i, j int) bool {
	if q[i].secs != q[j].secs {
		return q[i].secs < q[j].secs
	}
	return q[i].node < q[j].node
}

func (q nodeQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *nodeQueue) Push(x any) { *q = append(*q, x.(nodeItem)) }

func (q *nodeQueue) Pop() any {
	old := *q
	it := old[len(old)-1]
	*q = old[:len(old)-1]
	return it
}
