package search

import (
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/tidwall/rtree"

	"transit-isochrone/internal/geo"
	"transit-isochrone/internal/gtfs"
)

// Network is everything a search needs from one timetable load: projected
// stops, the pickup index and a spatial index of stops. It is immutable and
// shared by concurrent searches.
type Network struct {
	timetable gtfs.Timetable
	proj      geo.Projection
	loadedAt  time.Time

	stops      []gtfs.Stop
	stopPoints []geo.Point
	stopAgency []string
	trips      []gtfs.Trip
	tripLine   []int32 // route+direction of each trip
	lineCount  int
	pickups    *PickupIndex
	stopTree   rtree.RTree
}

// NewNetwork builds the per-timetable structures. It fails with ErrDataIntegrity
// when the timetable is inconsistent.
func NewNetwork(tt gtfs.Timetable, proj geo.Projection) (*Network, error) {
	stops := tt.Stops()
	trips := tt.Trips()
	pickups, err := BuildPickupIndex(stops, trips)
	if err != nil {
		return nil, err
	}
	n := &Network{
		timetable:  tt,
		proj:       proj,
		loadedAt:   time.Now(),
		stops:      stops,
		stopPoints: make([]geo.Point, len(stops)),
		stopAgency: make([]string, len(stops)),
		trips:      trips,
		tripLine:   make([]int32, len(trips)),
		pickups:    pickups,
	}
	for i, s := range stops {
		if err := geo.ValidateLatLng(geo.LatLng{Lat: s.Lat, Lng: s.Lon}); err != nil {
			return nil, fmt.Errorf("%w: stop %q: %v", ErrDataIntegrity, s.StopID, err)
		}
		p := proj.Project(s.Lat, s.Lon)
		n.stopPoints[i] = p
		n.stopAgency[i] = tt.AgencyOf(s.StopID)
		pt := [2]float64{p.X, p.Y}
		n.stopTree.Insert(pt, pt, int32(i))
	}
	lines := make(map[string]int32)
	for i, t := range trips {
		key := t.RouteID + "\x00" + strconv.Itoa(t.DirectionID)
		id, ok := lines[key]
		if !ok {
			id = int32(len(lines))
			lines[key] = id
		}
		n.tripLine[i] = id
	}
	n.lineCount = len(lines)
	return n, nil
}

func (n *Network) Projection() geo.Projection { return n.proj }

func (n *Network) Pickups() *PickupIndex { return n.pickups }

func (n *Network) Stops() []gtfs.Stop { return n.stops }

func (n *Network) TripCount() int { return len(n.trips) }

func (n *Network) LoadedAt() time.Time { return n.loadedAt }

// stopsWithin returns stop indices within radius meters of p, ordered by index.
func (n *Network) stopsWithin(p geo.Point, radius float64, buf []int32) []int32 {
	buf = buf[:0]
	n.stopTree.Search(
		[2]float64{p.X - radius, p.Y - radius},
		[2]float64{p.X + radius, p.Y + radius},
		func(_, _ [2]float64, data interface{}) bool {
			si := data.(int32)
			if n.stopPoints[si].Dist(p) <= radius {
				buf = append(buf, si)
			}
			return true
		},
	)
	slices.Sort(buf)
	return buf
}
