package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectionRoundTrip(t *testing.T) {
	p := NewProjection(LatLng{Lat: 43.68, Lng: -79.61})
	ll := LatLng{Lat: 43.69, Lng: -79.60}
	back := p.Unproject(p.Project(ll.Lat, ll.Lng))
	assert.InDelta(t, ll.Lat, back.Lat, 1e-9)
	assert.InDelta(t, ll.Lng, back.Lng, 1e-9)
}

func TestProjectionDistance(t *testing.T) {
	p := NewProjection(LatLng{Lat: 0, Lng: 0})
	a := p.Project(0, 0)
	b := p.Project(0.01, 0)
	// 0.01 degrees of latitude is ~1112 m.
	assert.InDelta(t, 1111.95, a.Dist(b), 0.5)
}

func TestProjectionFor(t *testing.T) {
	p := ProjectionFor([]LatLng{{Lat: 10, Lng: 20}, {Lat: 12, Lng: 22}})
	assert.Equal(t, LatLng{Lat: 11, Lng: 21}, p.Reference())
	assert.Equal(t, Point{}, p.Project(11, 21))
}

func TestValidateLatLng(t *testing.T) {
	tests := []struct {
		name    string
		in      LatLng
		wantErr bool
	}{
		{name: "valid", in: LatLng{Lat: 43.6, Lng: -79.6}},
		{name: "boundary", in: LatLng{Lat: -90, Lng: 180}},
		{name: "lat too large", in: LatLng{Lat: 90.1, Lng: 0}, wantErr: true},
		{name: "lng too small", in: LatLng{Lat: 0, Lng: -180.5}, wantErr: true},
		{name: "nan", in: LatLng{Lat: math.NaN(), Lng: 0}, wantErr: true},
		{name: "inf", in: LatLng{Lat: 0, Lng: math.Inf(1)}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateLatLng(tt.in)
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			var ce *CoordinateError
			require.ErrorAs(t, err, &ce)
		})
	}
}
