package search

import (
	"fmt"
	"sort"

	"transit-isochrone/internal/gtfs"
)

// PickupEvent is one scheduled departure from a stop.
type PickupEvent struct {
	Departure gtfs.Time
	Position  int32 // stop-time position within the trip
	Trip      int32 // index into the trip slice the index was built from
}

func (e PickupEvent) less(o PickupEvent) bool {
	if e.Departure != o.Departure {
		return e.Departure < o.Departure
	}
	if e.Position != o.Position {
		return e.Position < o.Position
	}
	return e.Trip < o.Trip
}

// PickupIndex lists, per stop, every departure ordered by time, then position,
// then trip. It also keeps each trip's stop indices by position. It is built
// once per timetable and is read-only afterwards.
type PickupIndex struct {
	stopIdx   map[string]int32
	byStop    [][]PickupEvent
	tripStops [][]int32
}

// BuildPickupIndex validates the trips against stops and indexes their departures.
// Trips must be sorted by id for tie-breaking on trip to follow trip ids.
func BuildPickupIndex(stops []gtfs.Stop, trips []gtfs.Trip) (*PickupIndex, error) {
	p := &PickupIndex{
		stopIdx:   make(map[string]int32, len(stops)),
		byStop:    make([][]PickupEvent, len(stops)),
		tripStops: make([][]int32, len(trips)),
	}
	for i, s := range stops {
		if _, dup := p.stopIdx[s.StopID]; dup {
			return nil, fmt.Errorf("%w: duplicate stop %q", ErrDataIntegrity, s.StopID)
		}
		p.stopIdx[s.StopID] = int32(i)
	}
	for ti, t := range trips {
		seq := make([]int32, len(t.StopTimes))
		for pos, st := range t.StopTimes {
			si, ok := p.stopIdx[st.StopID]
			if !ok {
				return nil, fmt.Errorf("%w: trip %q references unknown stop %q", ErrDataIntegrity, t.TripID, st.StopID)
			}
			if st.Departure < st.Arrival {
				return nil, fmt.Errorf("%w: trip %q departs stop %q at %s before arriving at %s", ErrDataIntegrity, t.TripID, st.StopID, st.Departure, st.Arrival)
			}
			if pos > 0 {
				prev := t.StopTimes[pos-1]
				if st.StopSequence <= prev.StopSequence {
					return nil, fmt.Errorf("%w: trip %q stop times not sorted by stop_sequence (%d after %d)", ErrDataIntegrity, t.TripID, st.StopSequence, prev.StopSequence)
				}
				if st.Arrival < prev.Departure {
					return nil, fmt.Errorf("%w: trip %q arrives at stop %q at %s before leaving the previous stop at %s", ErrDataIntegrity, t.TripID, st.StopID, st.Arrival, prev.Departure)
				}
			}
			seq[pos] = si
			// Nothing can be reached by boarding at the last stop.
			if pos < len(t.StopTimes)-1 {
				p.byStop[si] = append(p.byStop[si], PickupEvent{Departure: st.Departure, Position: int32(pos), Trip: int32(ti)})
			}
		}
		p.tripStops[ti] = seq
	}
	for _, evs := range p.byStop {
		sort.Slice(evs, func(i, j int) bool { return evs[i].less(evs[j]) })
	}
	return p, nil
}

// NextDeparture returns the earliest departure from stopID at or after notBefore.
// The search scans the same sorted events directly, since it boards the first departure of
// every line rather than only the first overall.
func (p *PickupIndex) NextDeparture(stopID string, notBefore gtfs.Time) (PickupEvent, bool) {
	si, ok := p.stopIdx[stopID]
	if !ok {
		return PickupEvent{}, false
	}
	evs := p.departures(si, notBefore)
	if len(evs) == 0 {
		return PickupEvent{}, false
	}
	return evs[0], true
}

// Departures returns all departures from stopID at or after notBefore, in order.
func (p *PickupIndex) Departures(stopID string, notBefore gtfs.Time) []PickupEvent {
	si, ok := p.stopIdx[stopID]
	if !ok {
		return nil
	}
	return p.departures(si, notBefore)
}

func (p *PickupIndex) departures(stop int32, notBefore gtfs.Time) []PickupEvent {
	evs := p.byStop[stop]
	i := sort.Search(len(evs), func(i int) bool { return evs[i].Departure >= notBefore })
	return evs[i:]
}

// EventCount is the total number of indexed departures.
func (p *PickupIndex) EventCount() int {
	n := 0
	for _, evs := range p.byStop {
		n += len(evs)
	}
	return n
}
