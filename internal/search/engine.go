package search

import (
	"container/heap"
	"math"
	"time"

	"github.com/google/uuid"

	"transit-isochrone/internal/config"
	"transit-isochrone/internal/geo"
	"transit-isochrone/internal/gtfs"
	"transit-isochrone/internal/reach"
)

type WalkTimer interface {
	WalkTime(a, b geo.Point) float64
	WalkTimes(a geo.Point, targets []geo.Point, limit float64) []float64
}

// Engine runs reachability searches over one Network. It holds no per-run
// state and may be shared by goroutines, each with its own Workspace.
type Engine struct {
	net        *Network
	walker     WalkTimer
	tuning     config.Tuning
	serviceDay time.Time
}

// NewEngine returns an engine. serviceDay is used for configurations without a date.
func NewEngine(net *Network, walker WalkTimer, tuning config.Tuning, serviceDay time.Time) *Engine {
	return &Engine{net: net, walker: walker, tuning: tuning, serviceDay: serviceDay}
}

func (e *Engine) Network() *Network { return e.net }

const (
	tripActiveUnknown int8 = iota
	tripActive
	tripInactive
)

// Workspace is the mutable state of one search run. It is reused across runs
// but must never be used by two runs at once.
type Workspace struct {
	arena    *TripArena
	queue    labelQueue
	seq      uint64
	best     []gtfs.Time
	settled  []bool
	active   []int8
	lineSeen []bool
	lines    []int32
	cand     []int32
	targets  []geo.Point
	stats    reach.Stats
}

func NewWorkspace() *Workspace {
	return &Workspace{arena: NewTripArena()}
}

func (ws *Workspace) reset(locations, trips, lines int) {
	ws.arena.Reset()
	ws.queue = ws.queue[:0]
	ws.seq = 0
	ws.best = resize(ws.best, locations)
	for i := range ws.best {
		ws.best[i] = gtfs.Time(math.Inf(1))
	}
	ws.settled = resize(ws.settled, locations)
	clear(ws.settled)
	ws.active = resize(ws.active, trips)
	clear(ws.active)
	ws.lineSeen = resize(ws.lineSeen, lines)
	clear(ws.lineSeen)
	ws.stats = reach.Stats{}
}

func resize[T any](s []T, n int) []T {
	if cap(s) < n {
		return make([]T, n)
	}
	return s[:n]
}

// push records l if it improves on the best known arrival at its location.
func (ws *Workspace) push(l reach.Label, deadline gtfs.Time) {
	if l.Arrival > deadline || ws.settled[l.Location] || l.Arrival >= ws.best[l.Location] {
		return
	}
	ws.best[l.Location] = l.Arrival
	ws.seq++
	heap.Push(&ws.queue, queued{label: l, seq: ws.seq})
	ws.stats.Pushed++
}

// Run executes one search and returns its reachability field. Invalid
// configurations are rejected before any workspace state is touched.
func (e *Engine) Run(ws *Workspace, cfg Configuration) (*reach.Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	began := time.Now()
	date := cfg.Date
	if date.IsZero() {
		date = e.serviceDay
	}
	deadline := cfg.Deadline()
	ws.reset(len(e.net.stops)+1, len(e.net.trips), e.net.lineCount)

	origin := e.net.proj.Project(cfg.Origin.Lat, cfg.Origin.Lng)
	ws.push(reach.Label{Location: 0, Point: origin, Arrival: cfg.StartTime, Mode: reach.ModeOrigin, From: -1}, deadline)

	var labels []reach.Label
	for ws.queue.Len() > 0 {
		l := heap.Pop(&ws.queue).(queued).label
		if l.Arrival > deadline {
			break
		}
		if ws.settled[l.Location] {
			ws.stats.Stale++
			continue
		}
		ws.settled[l.Location] = true
		labels = append(labels, l)

		remaining := deadline.Sub(l.Arrival)
		if remaining <= 0 {
			continue
		}
		e.expandWalk(ws, l, remaining, deadline)
		if l.Location > 0 {
			e.expandTransit(ws, l, cfg, date, deadline)
		}
	}

	ws.stats.Settled = len(labels)
	ws.stats.TripsBoarded = ws.arena.Len()
	ws.stats.Elapsed = time.Since(began)
	res := reach.New(uuid.NewString(), labels, cfg.StartTime, cfg.DurationSecs, e.net.proj, e.walker, e.tuning)
	res.Stats = ws.stats
	return res, nil
}

// expandWalk pushes every unsettled stop walkable from l within the remaining budget.
func (e *Engine) expandWalk(ws *Workspace, l reach.Label, remaining float64, deadline gtfs.Time) {
	radius := math.Min(remaining*e.tuning.WalkingSpeed, e.tuning.MaxWalkRadiusMeters)
	cands := e.net.stopsWithin(l.Point, radius, ws.cand)
	ws.cand = cands

	targets := ws.targets[:0]
	kept := cands[:0]
	for _, si := range cands {
		if ws.settled[si+1] {
			continue
		}
		kept = append(kept, si)
		targets = append(targets, e.net.stopPoints[si])
	}
	ws.targets = targets
	if len(kept) == 0 {
		return
	}
	secs := e.walker.WalkTimes(l.Point, targets, remaining)
	for i, si := range kept {
		ws.push(reach.Label{
			Location: si + 1,
			StopID:   e.net.stops[si].StopID,
			Point:    e.net.stopPoints[si],
			Arrival:  l.Arrival.Add(secs[i]),
			Mode:     reach.ModeWalk,
			From:     l.Location,
		}, deadline)
	}
}

// expandTransit boards, at the stop of l, the first usable departure of every
// line and rides each trip as far as the deadline allows, stopping early where
// an earlier boarding already covers the rest.
func (e *Engine) expandTransit(ws *Workspace, l reach.Label, cfg Configuration, date time.Time, deadline gtfs.Time) {
	stop := l.Location - 1
	if !cfg.allowsAgency(e.net.stopAgency[stop]) {
		return
	}
	ready := l.Arrival.Add(e.tuning.MinTransferSeconds)
	ws.lines = ws.lines[:0]
	for _, ev := range e.net.pickups.departures(stop, ready) {
		if ev.Departure > deadline {
			break
		}
		line := e.net.tripLine[ev.Trip]
		if ws.lineSeen[line] || !e.tripActive(ws, ev.Trip, date) {
			continue
		}
		ws.lineSeen[line] = true
		ws.lines = append(ws.lines, line)
		e.ride(ws, l, ev, deadline)
	}
	for _, line := range ws.lines {
		ws.lineSeen[line] = false
	}
}

func (e *Engine) ride(ws *Workspace, from reach.Label, ev PickupEvent, deadline gtfs.Time) {
	trip := &e.net.trips[ev.Trip]
	stops := e.net.pickups.tripStops[ev.Trip]
	h := ws.arena.GetOrCreate(ev.Trip)
	end := ws.arena.Board(h, int(ev.Position), len(trip.StopTimes)-1)
	for pos := int(ev.Position) + 1; pos <= end; pos++ {
		arr := trip.StopTimes[pos].Arrival
		if arr > deadline {
			return
		}
		// The furthest position only moves forward. An upstream boarding
		// rides stops behind it.
		if pos > ws.arena.Position(h) {
			ws.arena.Advance(h, pos, arr)
		}
		si := stops[pos]
		ws.push(reach.Label{
			Location:  si + 1,
			StopID:    e.net.stops[si].StopID,
			Point:     e.net.stopPoints[si],
			Arrival:   arr,
			Mode:      reach.ModeTransit,
			From:      from.Location,
			TripID:    trip.TripID,
			ReadyAt:   from.Arrival,
			Departure: ev.Departure,
		}, deadline)
	}
}

func (e *Engine) tripActive(ws *Workspace, trip int32, date time.Time) bool {
	switch ws.active[trip] {
	case tripActive:
		return true
	case tripInactive:
		return false
	}
	ok := e.net.timetable.IsServiceActive(e.net.trips[trip].TripID, date)
	if ok {
		ws.active[trip] = tripActive
	} else {
		ws.active[trip] = tripInactive
	}
	return ok
}
