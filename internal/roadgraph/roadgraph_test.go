package roadgraph

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transit-isochrone/internal/config"
	"transit-isochrone/internal/geo"
	"transit-isochrone/internal/gtfs"
)

// testGraph is an L shape A(0,0) - B(100,0) - C(100,100) plus an isolated node D(0,50).
func testGraph(t *testing.T) *Graph {
	t.Helper()
	b := NewBuilder(config.WalkingSpeed)
	b.AddNode(1, geo.Point{X: 0, Y: 0})
	b.AddNode(2, geo.Point{X: 100, Y: 0})
	b.AddNode(3, geo.Point{X: 100, Y: 100})
	b.AddNode(4, geo.Point{X: 0, Y: 50})
	require.NoError(t, b.AddEdge(1, 2))
	require.NoError(t, b.AddEdge(2, 3))
	g, err := b.Build()
	require.NoError(t, err)
	return g
}

func TestBuildErrors(t *testing.T) {
	_, err := NewBuilder(1.25).Build()
	assert.True(t, errors.Is(err, ErrEmptyNetwork))

	b := NewBuilder(1.25)
	b.AddNode(1, geo.Point{})
	assert.Error(t, b.AddEdge(1, 99))
}

func TestSnap(t *testing.T) {
	g := testGraph(t)
	idx, d, ok := g.Snap(geo.Point{X: 98, Y: 1}, 5)
	require.True(t, ok)
	assert.Equal(t, int64(2), g.Node(idx).ID)
	assert.InDelta(t, 2.236, d, 0.001)

	_, _, ok = g.Snap(geo.Point{X: 50, Y: 25}, 5)
	assert.False(t, ok)
}

func TestWalkTime(t *testing.T) {
	g := testGraph(t)
	w := NewWalker(g, config.DefaultTuning())

	tests := []struct {
		name string
		a, b geo.Point
		want float64
	}{
		{name: "along one edge", a: geo.Point{X: 0, Y: 0}, b: geo.Point{X: 100, Y: 0}, want: 100 / config.WalkingSpeed},
		// The graph path (200 m) is slower than the straight line (141 m at the slower speed).
		{name: "detour capped by straight line", a: geo.Point{X: 0, Y: 0}, b: geo.Point{X: 100, Y: 100}, want: 141.4213562 / config.StraightWalkingSpeed},
		{name: "no path", a: geo.Point{X: 0, Y: 0}, b: geo.Point{X: 0, Y: 50}, want: 50 / config.StraightWalkingSpeed},
		{name: "off graph", a: geo.Point{X: 0, Y: 0}, b: geo.Point{X: 1000, Y: 0}, want: 1000 / config.StraightWalkingSpeed},
		{name: "snap legs included", a: geo.Point{X: 0, Y: 10}, b: geo.Point{X: 100, Y: 0}, want: (10 + 100) / config.WalkingSpeed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, w.WalkTime(tt.a, tt.b), 1e-4)
		})
	}
}

func TestGraphNeverSlowerThanFallback(t *testing.T) {
	g := testGraph(t)
	w := NewWalker(g, config.DefaultTuning())
	pts := []geo.Point{{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 100, Y: 100}, {X: 0, Y: 50}}
	for _, a := range pts {
		for _, b := range pts {
			assert.LessOrEqual(t, w.WalkTime(a, b), w.StraightLine(a, b))
		}
	}
}

func TestWalkTimesRespectsLimit(t *testing.T) {
	g := testGraph(t)
	w := NewWalker(g, config.DefaultTuning())
	a := geo.Point{X: 0, Y: 0}
	b := geo.Point{X: 100, Y: 0}

	// With a limit below the graph time the target keeps its straight-line time.
	got := w.WalkTimes(a, []geo.Point{b}, 10)
	assert.InDelta(t, 100/config.StraightWalkingSpeed, got[0], 1e-9)

	// A later, wider query must not reuse the narrower cached tree.
	got = w.WalkTimes(a, []geo.Point{b}, 1000)
	assert.InDelta(t, 100/config.WalkingSpeed, got[0], 1e-9)
}

func TestStraightLineOnlyWalker(t *testing.T) {
	w := NewWalker(nil, config.DefaultTuning())
	assert.InDelta(t, 90/config.StraightWalkingSpeed, w.WalkTime(geo.Point{}, geo.Point{X: 90}), 1e-9)
}

func TestWalkerWithStops(t *testing.T) {
	g := testGraph(t)
	base := NewWalker(g, config.DefaultTuning())
	proj := geo.NewProjection(geo.LatLng{Lat: 43.7, Lng: -79.4})
	near := proj.Unproject(geo.Point{X: 101, Y: 1})
	far := proj.Unproject(geo.Point{X: 500, Y: 500})

	w, onGraph := base.WithStops([]gtfs.Stop{
		{StopID: "S1", Lat: near.Lat, Lon: near.Lng},
		{StopID: "S2", Lat: far.Lat, Lon: far.Lng},
	}, proj)
	assert.Equal(t, 1, onGraph)
	assert.Equal(t, 2, w.StopCount())
	assert.Equal(t, 0, base.StopCount(), "the original walker is unchanged")
	assert.Same(t, g, w.Graph())

	// Pre-snapped and looked-up positions give the same answer.
	s1 := proj.Project(near.Lat, near.Lng)
	a := geo.Point{X: 0, Y: 0}
	assert.InDelta(t, base.WalkTime(a, s1), w.WalkTime(a, s1), 1e-9)
	assert.InDelta(t, base.WalkTime(s1, a), w.WalkTime(s1, a), 1e-9)
	s2 := proj.Project(far.Lat, far.Lng)
	assert.InDelta(t, w.StraightLine(a, s2), w.WalkTime(a, s2), 1e-9)

	// A reload replaces the stop set rather than adding to it.
	again, onGraph := w.WithStops([]gtfs.Stop{{StopID: "S2", Lat: far.Lat, Lon: far.Lng}}, proj)
	assert.Equal(t, 0, onGraph)
	assert.Equal(t, 1, again.StopCount())

	plain, onGraph := NewWalker(nil, config.DefaultTuning()).WithStops([]gtfs.Stop{{StopID: "S1", Lat: near.Lat, Lon: near.Lng}}, proj)
	assert.Equal(t, 0, onGraph)
	assert.Nil(t, plain.Graph())
}

const sampleOSM = `<?xml version="1.0" encoding="UTF-8"?>
<osm version="0.6" generator="test">
  <node id="1" lat="43.000" lon="-79.0"/>
  <node id="2" lat="43.001" lon="-79.0"/>
  <node id="3" lat="43.002" lon="-79.0"/>
  <node id="4" lat="43.003" lon="-79.0"/>
  <node id="5" lat="43.004" lon="-79.0"/>
  <way id="10">
    <nd ref="1"/><nd ref="2"/><nd ref="3"/>
    <tag k="highway" v="footway"/>
  </way>
  <way id="11">
    <nd ref="3"/><nd ref="4"/>
    <tag k="highway" v="motorway"/>
  </way>
  <way id="12">
    <nd ref="4"/><nd ref="5"/>
    <tag k="highway" v="residential"/>
    <tag k="foot" v="no"/>
  </way>
</osm>`

func TestLoadOSM(t *testing.T) {
	proj := geo.NewProjection(geo.LatLng{Lat: 43, Lng: -79})
	g, err := LoadOSM(context.Background(), strings.NewReader(sampleOSM), proj, config.WalkingSpeed)
	require.NoError(t, err)
	assert.Equal(t, 3, g.NodeCount())
	assert.Equal(t, 2, g.EdgeCount())

	w := NewWalker(g, config.DefaultTuning())
	a := proj.Project(43.000, -79.0)
	b := proj.Project(43.002, -79.0)
	assert.InDelta(t, a.Dist(b)/config.WalkingSpeed, w.WalkTime(a, b), 1e-6)
}

func TestLoadOSMWithoutWalkableWays(t *testing.T) {
	doc := `<osm version="0.6"><node id="1" lat="1" lon="1"/></osm>`
	_, err := LoadOSM(context.Background(), strings.NewReader(doc), geo.NewProjection(geo.LatLng{}), 1.25)
	assert.True(t, errors.Is(err, ErrEmptyNetwork))
}
