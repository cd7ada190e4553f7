package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"transit-isochrone/internal/geo"
	"transit-isochrone/internal/gtfs"
	"transit-isochrone/internal/reach"
	"transit-isochrone/internal/search"
)

// Request is the wire form of a search.
type Request struct {
	Origin       geo.LatLng   `json:"origin"`
	StartTime    string       `json:"start_time"` // HH:MM[:SS], hours may exceed 23
	DurationSecs float64      `json:"duration_secs"`
	AgencyIDs    []string     `json:"agency_ids,omitempty"`
	Date         string       `json:"date,omitempty"` // YYYY-MM-DD, defaults to the service day
	Points       []geo.LatLng `json:"points,omitempty"`
	WithLabels   bool         `json:"with_labels,omitempty"`
}

// Configuration converts the request. Dates are interpreted in loc.
func (r Request) Configuration(loc *time.Location) (search.Configuration, error) {
	start, err := gtfs.ParseTime(r.StartTime)
	if err != nil {
		return search.Configuration{}, &search.ConfigError{Field: "start_time", Message: err.Error()}
	}
	cfg := search.Configuration{
		StartTime:    start,
		DurationSecs: r.DurationSecs,
		Origin:       r.Origin,
	}
	if len(r.AgencyIDs) > 0 {
		cfg.AgencyFilter = search.AgencySet(r.AgencyIDs...)
	}
	if d := strings.TrimSpace(r.Date); d != "" {
		if loc == nil {
			loc = time.Local
		}
		cfg.Date, err = time.ParseInLocation("2006-01-02", d, loc)
		if err != nil {
			return search.Configuration{}, &search.ConfigError{Field: "date", Message: fmt.Sprintf("want YYYY-MM-DD, got %q", d)}
		}
	}
	return cfg, cfg.Validate()
}

type Arrival struct {
	Point     geo.LatLng `json:"point"`
	Reachable bool       `json:"reachable"`
	Seconds   float64    `json:"seconds,omitempty"` // since start_time
}

type LabelView struct {
	StopID    string  `json:"stop_id,omitempty"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Arrival   string  `json:"arrival"`
	Seconds   float64 `json:"seconds"`
	Mode      string  `json:"mode"`
	FromStop  string  `json:"from_stop,omitempty"`
	TripID    string  `json:"trip_id,omitempty"`
	Departure string  `json:"departure,omitempty"`
}

type Response struct {
	RunID     string      `json:"run_id,omitempty"`
	Settled   int         `json:"settled"`
	ElapsedMs float64     `json:"elapsed_ms"`
	Arrivals  []Arrival   `json:"arrivals,omitempty"`
	Labels    []LabelView `json:"labels,omitempty"`
	Error     string      `json:"error,omitempty"`
	ErrorKind string      `json:"error_kind,omitempty"`
}

// NewResponse answers points against res and optionally lists its labels.
func NewResponse(res *reach.Result, points []geo.LatLng, withLabels bool) Response {
	resp := Response{
		RunID:     res.RunID,
		Settled:   res.Len(),
		ElapsedMs: float64(res.Stats.Elapsed.Microseconds()) / 1000,
	}
	for _, p := range points {
		a := Arrival{Point: p}
		if geo.ValidateLatLng(p) == nil {
			a.Seconds, a.Reachable = res.ArrivalTimeAt(p.Lat, p.Lng)
		}
		resp.Arrivals = append(resp.Arrivals, a)
	}
	if !withLabels {
		return resp
	}
	labels := res.Labels()
	stopOf := make(map[int32]string, len(labels))
	for _, l := range labels {
		stopOf[l.Location] = l.StopID
	}
	for _, l := range labels {
		ll := res.Projection().Unproject(l.Point)
		v := LabelView{
			StopID:  l.StopID,
			Lat:     ll.Lat,
			Lng:     ll.Lng,
			Arrival: l.Arrival.String(),
			Seconds: l.Arrival.Sub(res.Start()),
			Mode:    l.Mode.String(),
			TripID:  l.TripID,
		}
		if l.Mode != reach.ModeOrigin {
			v.FromStop = stopOf[l.From]
		}
		if l.Mode == reach.ModeTransit {
			v.Departure = l.Departure.String()
		}
		resp.Labels = append(resp.Labels, v)
	}
	return resp
}

// Handle decodes a JSON request, runs it and returns the response along with
// the result, which is nil on failure.
func (s *Service) Handle(ctx context.Context, data []byte, loc *time.Location) (Response, *reach.Result) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		s.countErr("decode")
		return errorResponse(fmt.Errorf("%w: decode request: %v", search.ErrInvalidConfiguration, err)), nil
	}
	cfg, err := req.Configuration(loc)
	if err != nil {
		s.countErr("invalid")
		return errorResponse(err), nil
	}
	res, err := s.Search(ctx, cfg)
	if err != nil {
		return errorResponse(err), nil
	}
	return NewResponse(res, req.Points, req.WithLabels), res
}

func errorResponse(err error) Response {
	kind := "internal"
	switch {
	case errors.Is(err, search.ErrInvalidConfiguration):
		kind = "invalid_configuration"
	case errors.Is(err, ErrBusy):
		kind = "busy"
	}
	return Response{Error: err.Error(), ErrorKind: kind}
}
