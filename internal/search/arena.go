package search

import (
	"fmt"

	"transit-isochrone/internal/gtfs"
)

// TripHandle addresses a record in a TripArena. It is only valid for the arena
// generation that issued it.
type TripHandle uint64

func makeHandle(gen uint32, idx int) TripHandle { return TripHandle(uint64(gen)<<32 | uint64(uint32(idx))) }

func (h TripHandle) split() (gen uint32, idx int) { return uint32(h >> 32), int(uint32(h)) }

type tripProgress struct {
	position int // furthest stop-time position reached; -1 before the first advance
	arrival  gtfs.Time
	boarded  int // earliest boarding position; -1 before the first boarding
}

// TripArena owns the trip-in-progress records of one search run.
type TripArena struct {
	gen     uint32
	records []tripProgress
	byTrip  map[int32]int
}

func NewTripArena() *TripArena {
	return &TripArena{byTrip: make(map[int32]int)}
}

// Reset drops every record. Handles issued before the reset become invalid.
func (a *TripArena) Reset() {
	a.gen++
	a.records = a.records[:0]
	clear(a.byTrip)
}

func (a *TripArena) Len() int { return len(a.records) }

// GetOrCreate returns the record for trip, creating it on first boarding.
func (a *TripArena) GetOrCreate(trip int32) TripHandle {
	if idx, ok := a.byTrip[trip]; ok {
		return makeHandle(a.gen, idx)
	}
	idx := len(a.records)
	a.records = append(a.records, tripProgress{position: -1, boarded: -1})
	a.byTrip[trip] = idx
	return makeHandle(a.gen, idx)
}

// Advance moves the trip to position. It is a no-op returning false unless
// position is strictly past the current one.
func (a *TripArena) Advance(h TripHandle, position int, arrival gtfs.Time) bool {
	rec := a.record(h)
	if position <= rec.position {
		return false
	}
	rec.position = position
	rec.arrival = arrival
	return true
}

// Board records a boarding at position and returns the last position that
// boarding still has to ride. The first boarding rides to last. A later
// boarding upstream of every earlier one rides only up to the previous earliest
// boarding, past which the trip is already covered. Any other boarding returns -1.
func (a *TripArena) Board(h TripHandle, position, last int) int {
	rec := a.record(h)
	switch {
	case rec.boarded < 0:
		rec.boarded = position
		return last
	case position < rec.boarded:
		prev := rec.boarded
		rec.boarded = position
		return prev
	}
	return -1
}

// Position is the furthest stop-time position reached, or -1.
func (a *TripArena) Position(h TripHandle) int { return a.record(h).position }

// Arrival is the scheduled arrival at Position.
func (a *TripArena) Arrival(h TripHandle) gtfs.Time { return a.record(h).arrival }

func (a *TripArena) record(h TripHandle) *tripProgress {
	gen, idx := h.split()
	if gen != a.gen || idx >= len(a.records) {
		panic(fmt.Sprintf("trip arena: stale or foreign handle %#x (generation %d, %d records)", uint64(h), a.gen, len(a.records)))
	}
	return &a.records[idx]
}
