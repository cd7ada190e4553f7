package search

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transit-isochrone/internal/gtfs"
)

func TestPickupIndexOrdering(t *testing.T) {
	stops := []gtfs.Stop{stopAt("A", 0, 0), stopAt("B", 100, 0), stopAt("C", 200, 0)}
	trips := []gtfs.Trip{
		tripOf("t0", "R1", "daily", 0, call{"A", 0, 120}, call{"B", 200, 200}),
		tripOf("t1", "R1", "daily", 0, call{"B", 0, 60}, call{"A", 100, 120}, call{"C", 300, 300}),
		tripOf("t2", "R2", "daily", 0, call{"A", 0, 120}, call{"C", 250, 250}),
		tripOf("t3", "R2", "daily", 0, call{"A", 0, 30}, call{"C", 90, 90}),
	}
	p, err := BuildPickupIndex(stops, trips)
	require.NoError(t, err)

	// Departures at A: t3@30, then the 120s tie broken by position (t0, t2 at 0; t1 at 1) then trip.
	got := p.Departures("A", startTime)
	want := []PickupEvent{
		{Departure: startTime.Add(30), Position: 0, Trip: 3},
		{Departure: startTime.Add(120), Position: 0, Trip: 0},
		{Departure: startTime.Add(120), Position: 0, Trip: 2},
		{Departure: startTime.Add(120), Position: 1, Trip: 1},
	}
	assert.Equal(t, want, got)

	// The last stop of a trip never yields a pickup.
	assert.Empty(t, p.Departures("C", startTime))
	assert.Equal(t, 5, p.EventCount())
}

func TestPickupIndexLookup(t *testing.T) {
	stops := []gtfs.Stop{stopAt("A", 0, 0), stopAt("B", 100, 0)}
	trips := []gtfs.Trip{
		tripOf("t0", "R1", "daily", 0, call{"A", 100, 100}, call{"B", 200, 200}),
		tripOf("t1", "R1", "daily", 0, call{"A", 300, 300}, call{"B", 400, 400}),
	}
	p, err := BuildPickupIndex(stops, trips)
	require.NoError(t, err)

	tests := []struct {
		name      string
		stop      string
		notBefore float64
		wantTrip  int32
		wantOK    bool
	}{
		{name: "before first", stop: "A", notBefore: 0, wantTrip: 0, wantOK: true},
		{name: "exactly at departure", stop: "A", notBefore: 100, wantTrip: 0, wantOK: true},
		{name: "just after first", stop: "A", notBefore: 100.5, wantTrip: 1, wantOK: true},
		{name: "after last", stop: "A", notBefore: 301},
		{name: "terminal stop", stop: "B", notBefore: 0},
		{name: "unknown stop", stop: "nope", notBefore: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := p.NextDeparture(tt.stop, startTime.Add(tt.notBefore))
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.wantTrip, ev.Trip)
			}
		})
	}
	assert.Nil(t, p.Departures("nope", startTime))
}

func TestPickupIndexIntegrityErrors(t *testing.T) {
	stops := []gtfs.Stop{stopAt("A", 0, 0), stopAt("B", 100, 0)}
	unsorted := tripOf("t", "R1", "daily", 0, call{"A", 0, 0}, call{"B", 60, 60})
	unsorted.StopTimes[1].StopSequence = 1

	tests := []struct {
		name  string
		stops []gtfs.Stop
		trip  gtfs.Trip
	}{
		{name: "unknown stop", stops: stops, trip: tripOf("t", "R1", "daily", 0, call{"A", 0, 0}, call{"Z", 60, 60})},
		{name: "departure before arrival", stops: stops, trip: tripOf("t", "R1", "daily", 0, call{"A", 10, 5}, call{"B", 60, 60})},
		{name: "arrival before previous departure", stops: stops, trip: tripOf("t", "R1", "daily", 0, call{"A", 0, 90}, call{"B", 60, 60})},
		{name: "stop sequence not increasing", stops: stops, trip: unsorted},
		{name: "duplicate stop", stops: append([]gtfs.Stop{stopAt("A", 5, 5)}, stops...), trip: tripOf("t", "R1", "daily", 0, call{"A", 0, 0}, call{"B", 60, 60})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildPickupIndex(tt.stops, []gtfs.Trip{tt.trip})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrDataIntegrity))
		})
	}
}

func TestNewNetworkRejectsBadStopCoordinates(t *testing.T) {
	bad := gtfs.Stop{StopID: "X", Lat: 123, Lon: 0}
	_, err := NewNetwork(testFeed([]gtfs.Stop{bad}, nil), testProj)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDataIntegrity)
}

func TestConfigurationKey(t *testing.T) {
	a := configAt(0, 0, 600)
	a.AgencyFilter = AgencySet("TTC", "GO", " ")
	b := configAt(0, 0, 600)
	b.AgencyFilter = AgencySet("GO", "TTC")
	assert.Equal(t, a.Key(), b.Key())

	c := b
	c.Date = testDate
	assert.NotEqual(t, b.Key(), c.Key())
	assert.NotEqual(t, b.Key(), configAt(0, 0, 600).Key())
}
