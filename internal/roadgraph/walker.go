package roadgraph

import (
	"math"

	"github.com/bluele/gcache"

	"transit-isochrone/internal/config"
	"transit-isochrone/internal/geo"
	"transit-isochrone/internal/gtfs"
)

// Walker answers walking-time queries. It follows the road graph when both
// points snap onto it and falls back to a slower straight line otherwise.
// A Walker is safe for concurrent use.
type Walker struct {
	graph  *Graph
	tuning config.Tuning
	trees  gcache.Cache // source node -> *pathTree
	stops  map[geo.Point]snapped
}

// snapped is a stop position resolved onto the graph ahead of time.
type snapped struct {
	node int32
	dist float64
	ok   bool
}

// NewWalker returns a walker over g. A nil graph yields a straight-line-only walker.
func NewWalker(g *Graph, tuning config.Tuning) *Walker {
	w := &Walker{graph: g, tuning: tuning}
	if g != nil && tuning.PathCacheSize > 0 {
		w.trees = gcache.New(tuning.PathCacheSize).LRU().Build()
	}
	return w
}

func (w *Walker) Graph() *Graph { return w.graph }

// WithStops returns a walker sharing w's graph and path cache with every stop
// snapped in advance, so queries at stop positions skip the nearest-node
// search. It also reports how many stops lie on the graph. Call it again
// after each timetable load; w itself is left untouched.
func (w *Walker) WithStops(stops []gtfs.Stop, proj geo.Projection) (*Walker, int) {
	if w.graph == nil {
		return w, 0
	}
	next := &Walker{graph: w.graph, tuning: w.tuning, trees: w.trees, stops: make(map[geo.Point]snapped, len(stops))}
	onGraph := 0
	for _, s := range stops {
		p := proj.Project(s.Lat, s.Lon)
		node, dist, ok := w.graph.Snap(p, w.tuning.SnapToleranceMeters)
		next.stops[p] = snapped{node: node, dist: dist, ok: ok}
		if ok {
			onGraph++
		}
	}
	return next, onGraph
}

// StopCount is the number of distinct stop positions snapped in advance.
func (w *Walker) StopCount() int { return len(w.stops) }

func (w *Walker) snap(p geo.Point) (int32, float64, bool) {
	if s, ok := w.stops[p]; ok {
		return s.node, s.dist, s.ok
	}
	return w.graph.Snap(p, w.tuning.SnapToleranceMeters)
}

// StraightLine is the off-graph walking time between a and b.
func (w *Walker) StraightLine(a, b geo.Point) float64 {
	return a.Dist(b) / w.tuning.StraightWalkingSpeed
}

// WalkTime returns the walking time from a to b in seconds. The result never
// exceeds the straight-line estimate.
func (w *Walker) WalkTime(a, b geo.Point) float64 {
	return w.WalkTimes(a, []geo.Point{b}, w.StraightLine(a, b))[0]
}

// WalkTimes returns walking times from a to each target. Graph paths longer than
// limit seconds are not explored; those targets get their straight-line time.
func (w *Walker) WalkTimes(a geo.Point, targets []geo.Point, limit float64) []float64 {
	out := make([]float64, len(targets))
	for i, t := range targets {
		out[i] = w.StraightLine(a, t)
	}
	if w.graph == nil || len(targets) == 0 {
		return out
	}
	src, snapA, ok := w.snap(a)
	if !ok {
		return out
	}
	lead := snapA / w.tuning.WalkingSpeed
	if lead > limit {
		return out
	}
	tree := w.pathTree(src, limit-lead)
	for i, t := range targets {
		dst, snapB, ok := w.snap(t)
		if !ok {
			continue
		}
		secs, reached := tree.secs[dst]
		if !reached {
			continue
		}
		out[i] = math.Min(out[i], lead+secs+snapB/w.tuning.WalkingSpeed)
	}
	return out
}

func (w *Walker) pathTree(src int32, limit float64) *pathTree {
	if w.trees != nil {
		if v, err := w.trees.Get(src); err == nil {
			if t := v.(*pathTree); t.limit >= limit {
				return t
			}
		}
	}
	t := w.graph.shortestPaths(src, limit)
	if w.trees != nil {
		_ = w.trees.Set(src, t)
	}
	return t
}
