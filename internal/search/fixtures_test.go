package search

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"transit-isochrone/internal/config"
	"transit-isochrone/internal/geo"
	"transit-isochrone/internal/gtfs"
	"transit-isochrone/internal/roadgraph"
)

var (
	testProj = geo.NewProjection(geo.LatLng{Lat: 43.68, Lng: -79.61})
	// Tuesday
	testDate = time.Date(2023, 4, 4, 0, 0, 0, 0, time.UTC)
)

const startTime = gtfs.Time(13 * 3600)

// at returns the coordinate x meters east and y meters north of the projection reference.
func at(x, y float64) geo.LatLng { return testProj.Unproject(geo.Point{X: x, Y: y}) }

func stopAt(id string, x, y float64) gtfs.Stop {
	ll := at(x, y)
	return gtfs.Stop{StopID: id, Name: id, Lat: ll.Lat, Lon: ll.Lng}
}

type call struct {
	stop     string
	arr, dep float64 // seconds after startTime
}

func tripOf(id, route, service string, direction int, calls ...call) gtfs.Trip {
	t := gtfs.Trip{TripID: id, RouteID: route, ServiceID: service, DirectionID: direction}
	for i, c := range calls {
		t.StopTimes = append(t.StopTimes, gtfs.StopTime{
			TripID:       id,
			StopID:       c.stop,
			StopSequence: i + 1,
			Arrival:      startTime.Add(c.arr),
			Departure:    startTime.Add(c.dep),
		})
	}
	return t
}

func testFeed(stops []gtfs.Stop, trips []gtfs.Trip) *gtfs.Feed {
	agencies := []gtfs.Agency{{AgencyID: "GO"}, {AgencyID: "TTC"}}
	routes := []gtfs.Route{
		{RouteID: "R1", AgencyID: "TTC"},
		{RouteID: "R2", AgencyID: "TTC"},
		{RouteID: "G1", AgencyID: "GO"},
	}
	cal := []gtfs.Calendar{{
		ServiceID: "daily",
		Weekdays:  [7]bool{true, true, true, true, true, true, true},
		StartDate: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC),
	}}
	return gtfs.NewFeed(agencies, routes, stops, trips, nil, cal, nil)
}

func testEngine(t *testing.T, stops []gtfs.Stop, trips []gtfs.Trip) *Engine {
	t.Helper()
	net, err := NewNetwork(testFeed(stops, trips), testProj)
	require.NoError(t, err)
	tuning := config.DefaultTuning()
	return NewEngine(net, roadgraph.NewWalker(nil, tuning), tuning, testDate)
}

func configAt(x, y, duration float64) Configuration {
	return Configuration{StartTime: startTime, DurationSecs: duration, Origin: at(x, y)}
}
