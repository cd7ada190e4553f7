package geo

import (
	"fmt"
	"math"
)

const earthRadiusMeters = 6371000.0

type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Point is a planar coordinate in meters.
type Point struct {
	X float64
	Y float64
}

func (p Point) Dist(q Point) float64 { return math.Hypot(p.X-q.X, p.Y-q.Y) }

// Projection is an equirectangular projection about a fixed reference.
// Distances are accurate to well under 1% within ~100 km of the reference.
type Projection struct {
	ref    LatLng
	cosLat float64
}

func NewProjection(ref LatLng) Projection {
	return Projection{ref: ref, cosLat: math.Cos(ref.Lat * math.Pi / 180)}
}

func (p Projection) Reference() LatLng { return p.ref }

func (p Projection) Project(lat, lng float64) Point {
	return Point{
		X: (lng - p.ref.Lng) * math.Pi / 180 * earthRadiusMeters * p.cosLat,
		Y: (lat - p.ref.Lat) * math.Pi / 180 * earthRadiusMeters,
	}
}

// Unproject is the inverse of Project.
func (p Projection) Unproject(pt Point) LatLng {
	return LatLng{
		Lat: p.ref.Lat + pt.Y/earthRadiusMeters*180/math.Pi,
		Lng: p.ref.Lng + pt.X/(earthRadiusMeters*p.cosLat)*180/math.Pi,
	}
}

// ProjectionFor centres a projection on the mean of the given coordinates.
func ProjectionFor(coords []LatLng) Projection {
	if len(coords) == 0 {
		return NewProjection(LatLng{})
	}
	var sum LatLng
	for _, c := range coords {
		sum.Lat += c.Lat
		sum.Lng += c.Lng
	}
	n := float64(len(coords))
	return NewProjection(LatLng{Lat: sum.Lat / n, Lng: sum.Lng / n})
}

// CoordinateError reports an invalid latitude or longitude.
type CoordinateError struct {
	Field   string
	Value   float64
	Message string
}

func (e *CoordinateError) Error() string {
	return fmt.Sprintf("%s: %s (value: %.6f)", e.Field, e.Message, e.Value)
}

func ValidateLatLng(c LatLng) error {
	if err := checkRange(c.Lat, 90, "lat"); err != nil {
		return err
	}
	return checkRange(c.Lng, 180, "lng")
}

func checkRange(v, limit float64, field string) error {
	switch {
	case math.IsNaN(v):
		return &CoordinateError{Field: field, Value: v, Message: "NaN not allowed"}
	case math.IsInf(v, 0):
		return &CoordinateError{Field: field, Value: v, Message: "infinite value not allowed"}
	case v < -limit || v > limit:
		return &CoordinateError{Field: field, Value: v, Message: fmt.Sprintf("must be between %g and %g", -limit, limit)}
	}
	return nil
}
