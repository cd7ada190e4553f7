package reach

import (
	"math"
	"sort"
	"time"

	"github.com/tidwall/rtree"

	"transit-isochrone/internal/config"
	"transit-isochrone/internal/geo"
	"transit-isochrone/internal/gtfs"
)

type Mode uint8

const (
	ModeOrigin Mode = iota
	ModeWalk
	ModeTransit
)

func (m Mode) String() string {
	switch m {
	case ModeOrigin:
		return "origin"
	case ModeWalk:
		return "walk"
	case ModeTransit:
		return "transit"
	}
	return "unknown"
}

// Label is a settled location with its earliest arrival time and the step
// that produced it.
type Label struct {
	Location int32  // 0 is the origin, stops follow
	StopID   string // empty for the origin
	Point    geo.Point
	Arrival  gtfs.Time
	Mode     Mode
	From     int32 // walk: location walked from; transit: boarding location

	// Transit only.
	TripID    string
	ReadyAt   gtfs.Time // arrival at the boarding stop
	Departure gtfs.Time // scheduled departure of the boarded trip
}

type Stats struct {
	Settled      int
	Pushed       int
	Stale        int
	TripsBoarded int
	Elapsed      time.Duration
}

type WalkTimer interface {
	WalkTime(a, b geo.Point) float64
}

// Result is the immutable reachability field of one search run.
type Result struct {
	RunID string
	Stats Stats

	start    gtfs.Time
	deadline gtfs.Time
	proj     geo.Projection
	walker   WalkTimer
	tuning   config.Tuning

	labels []Label
	byLoc  map[int32]int
	tree   rtree.RTree
}

// New indexes the settled labels. The caller must not modify labels afterwards.
func New(runID string, labels []Label, start gtfs.Time, durationSecs float64, proj geo.Projection, walker WalkTimer, tuning config.Tuning) *Result {
	sort.Slice(labels, func(i, j int) bool { return labels[i].Location < labels[j].Location })
	r := &Result{
		RunID:    runID,
		start:    start,
		deadline: start.Add(durationSecs),
		proj:     proj,
		walker:   walker,
		tuning:   tuning,
		labels:   labels,
		byLoc:    make(map[int32]int, len(labels)),
	}
	for i, l := range labels {
		r.byLoc[l.Location] = i
		pt := [2]float64{l.Point.X, l.Point.Y}
		r.tree.Insert(pt, pt, i)
	}
	return r
}

func (r *Result) Start() gtfs.Time { return r.start }

func (r *Result) Deadline() gtfs.Time { return r.deadline }

func (r *Result) Projection() geo.Projection { return r.proj }

func (r *Result) Len() int { return len(r.labels) }

// Labels returns a copy of the settled labels ordered by location.
func (r *Result) Labels() []Label {
	return append([]Label(nil), r.labels...)
}

func (r *Result) Label(location int32) (Label, bool) {
	i, ok := r.byLoc[location]
	if !ok {
		return Label{}, false
	}
	return r.labels[i], true
}

// Within returns the labels within radius meters of p, nearest first.
func (r *Result) Within(p geo.Point, radius float64) []Label {
	type hit struct {
		idx  int
		dist float64
	}
	var hits []hit
	r.tree.Search(
		[2]float64{p.X - radius, p.Y - radius},
		[2]float64{p.X + radius, p.Y + radius},
		func(_, _ [2]float64, data interface{}) bool {
			i := data.(int)
			if d := r.labels[i].Point.Dist(p); d <= radius {
				hits = append(hits, hit{idx: i, dist: d})
			}
			return true
		},
	)
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].dist != hits[j].dist {
			return hits[i].dist < hits[j].dist
		}
		return r.labels[hits[i].idx].Location < r.labels[hits[j].idx].Location
	})
	out := make([]Label, len(hits))
	for i, h := range hits {
		out[i] = r.labels[h.idx]
	}
	return out
}

// Nearest returns the settled label closest to p. Points with non-finite
// coordinates have no nearest label.
func (r *Result) Nearest(p geo.Point) (Label, bool) {
	if len(r.labels) == 0 || !finite(p.X) || !finite(p.Y) {
		return Label{}, false
	}
	// Grow a search box until it holds something, then confirm with an exact
	// circle of the best distance seen.
	radius := math.Max(r.tuning.SnapToleranceMeters, 1)
	for {
		found := -1
		best := math.Inf(1)
		r.tree.Search(
			[2]float64{p.X - radius, p.Y - radius},
			[2]float64{p.X + radius, p.Y + radius},
			func(_, _ [2]float64, data interface{}) bool {
				i := data.(int)
				if d := r.labels[i].Point.Dist(p); d < best {
					best, found = d, i
				}
				return true
			},
		)
		if found >= 0 {
			return r.Within(p, best)[0], true
		}
		radius *= 2
	}
}

// ArrivalAt returns the earliest arrival at p: the label itself when p is within
// snapping tolerance of one, otherwise the best walk from nearby labels.
func (r *Result) ArrivalAt(p geo.Point) (gtfs.Time, bool) {
	near, ok := r.Nearest(p)
	if !ok {
		return 0, false
	}
	if near.Point.Dist(p) <= r.tuning.SnapToleranceMeters {
		return near.Arrival, near.Arrival <= r.deadline
	}
	radius := math.Min(r.deadline.Sub(r.start)*r.tuning.WalkingSpeed, r.tuning.MaxWalkRadiusMeters)
	best := math.Inf(1)
	for _, l := range r.Within(p, radius) {
		remaining := r.deadline.Sub(l.Arrival)
		if remaining < 0 || l.Point.Dist(p) > remaining*r.tuning.WalkingSpeed {
			continue
		}
		if t := float64(l.Arrival) + r.walker.WalkTime(l.Point, p); t < best {
			best = t
		}
	}
	if best > float64(r.deadline) {
		return 0, false
	}
	return gtfs.Time(best), true
}

// ArrivalTimeAt returns seconds since the search start at which (lat, lng) is
// reached, or false when it is unreachable within the budget.
func (r *Result) ArrivalTimeAt(lat, lng float64) (float64, bool) {
	if geo.ValidateLatLng(geo.LatLng{Lat: lat, Lng: lng}) != nil {
		return 0, false
	}
	t, ok := r.ArrivalAt(r.proj.Project(lat, lng))
	if !ok {
		return 0, false
	}
	return t.Sub(r.start), true
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
