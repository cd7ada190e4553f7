package search

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"transit-isochrone/internal/geo"
	"transit-isochrone/internal/gtfs"
)

var (
	ErrInvalidConfiguration = errors.New("invalid search configuration")
	ErrDataIntegrity        = errors.New("timetable data integrity")
)

// ConfigError describes one rejected configuration field.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfiguration }

// Configuration is the immutable input of one search run.
type Configuration struct {
	StartTime    gtfs.Time
	DurationSecs float64
	Origin       geo.LatLng
	// AgencyFilter limits boarding to stops of these agencies; empty means all.
	AgencyFilter map[string]struct{}
	// Date selects the service day; zero means the engine default.
	Date time.Time
}

func (c Configuration) Validate() error {
	switch {
	case math.IsNaN(c.DurationSecs) || math.IsInf(c.DurationSecs, 0):
		return &ConfigError{Field: "duration_secs", Message: "must be finite"}
	case c.DurationSecs < 0:
		return &ConfigError{Field: "duration_secs", Message: fmt.Sprintf("must not be negative, got %g", c.DurationSecs)}
	case math.IsNaN(float64(c.StartTime)) || c.StartTime < 0:
		return &ConfigError{Field: "start_time", Message: "must be a non-negative time of day"}
	}
	if err := geo.ValidateLatLng(c.Origin); err != nil {
		var ce *geo.CoordinateError
		if errors.As(err, &ce) {
			return &ConfigError{Field: "origin." + ce.Field, Message: ce.Message}
		}
		return &ConfigError{Field: "origin", Message: err.Error()}
	}
	return nil
}

func (c Configuration) Deadline() gtfs.Time { return c.StartTime.Add(c.DurationSecs) }

func (c Configuration) allowsAgency(agencyID string) bool {
	if len(c.AgencyFilter) == 0 {
		return true
	}
	_, ok := c.AgencyFilter[agencyID]
	return ok
}

// Key is a canonical string for the configuration, usable as a cache key.
func (c Configuration) Key() string {
	agencies := make([]string, 0, len(c.AgencyFilter))
	for a := range c.AgencyFilter {
		agencies = append(agencies, a)
	}
	sort.Strings(agencies)
	date := ""
	if !c.Date.IsZero() {
		date = c.Date.Format("2006-01-02")
	}
	return fmt.Sprintf("%.6f,%.6f|%g|%g|%s|%s", c.Origin.Lat, c.Origin.Lng, float64(c.StartTime), c.DurationSecs, date, strings.Join(agencies, ","))
}

// AgencySet builds an agency filter from ids, ignoring blanks.
func AgencySet(ids ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			set[id] = struct{}{}
		}
	}
	return set
}
