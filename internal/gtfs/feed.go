package gtfs

import (
	"sort"
	"time"
)

// Feed is an in-memory Timetable. Stops and trips are kept sorted by id so that
// slice positions are stable for a given feed.
type Feed struct {
	agencies []Agency
	routes   map[string]Route
	stops    []Stop
	trips    []Trip

	tripService map[string]string         // trip_id -> service_id
	stopAgency  map[string]string         // stop_id -> agency_id
	calendars   map[string]Calendar       // service_id -> calendar row
	exceptions  map[string]map[string]int // service_id -> yyyy-mm-dd -> exception_type
}

// NewFeed assembles a Feed. Trips without stop times get theirs from stopTimes, in the
// order given; callers are expected to supply them ordered by stop_sequence.
func NewFeed(agencies []Agency, routes []Route, stops []Stop, trips []Trip, stopTimes []StopTime, calendars []Calendar, dates []CalendarDate) *Feed {
	f := &Feed{
		agencies:    append([]Agency(nil), agencies...),
		routes:      make(map[string]Route, len(routes)),
		stops:       append([]Stop(nil), stops...),
		trips:       make([]Trip, len(trips)),
		tripService: make(map[string]string, len(trips)),
		stopAgency:  make(map[string]string, len(stops)),
		calendars:   make(map[string]Calendar, len(calendars)),
		exceptions:  make(map[string]map[string]int),
	}
	for _, r := range routes {
		f.routes[r.RouteID] = r
	}
	sort.Slice(f.stops, func(i, j int) bool { return f.stops[i].StopID < f.stops[j].StopID })

	byTrip := make(map[string][]StopTime, len(trips))
	for _, st := range stopTimes {
		byTrip[st.TripID] = append(byTrip[st.TripID], st)
	}
	for i, t := range trips {
		if len(t.StopTimes) == 0 {
			t.StopTimes = byTrip[t.TripID]
		}
		f.trips[i] = t
		f.tripService[t.TripID] = t.ServiceID
	}
	sort.Slice(f.trips, func(i, j int) bool { return f.trips[i].TripID < f.trips[j].TripID })

	// A stop belongs to the lowest agency id among the routes calling at it.
	for _, t := range f.trips {
		agency := f.agencyOfRoute(t.RouteID)
		for _, st := range t.StopTimes {
			if cur, ok := f.stopAgency[st.StopID]; !ok || agency < cur {
				f.stopAgency[st.StopID] = agency
			}
		}
	}

	for _, c := range calendars {
		f.calendars[c.ServiceID] = c
	}
	for _, d := range dates {
		m := f.exceptions[d.ServiceID]
		if m == nil {
			m = make(map[string]int)
			f.exceptions[d.ServiceID] = m
		}
		m[dateKey(d.Date)] = d.ExceptionType
	}
	return f
}

func (f *Feed) agencyOfRoute(routeID string) string {
	if r, ok := f.routes[routeID]; ok && r.AgencyID != "" {
		return r.AgencyID
	}
	// Single-agency feeds may leave route.agency_id blank.
	if len(f.agencies) == 1 {
		return f.agencies[0].AgencyID
	}
	return ""
}

func (f *Feed) Agencies() []Agency { return f.agencies }

func (f *Feed) Stops() []Stop { return f.stops }

func (f *Feed) Trips() []Trip { return f.trips }

func (f *Feed) AgencyOf(stopID string) string { return f.stopAgency[stopID] }

// IsServiceActive reports whether the trip's service runs on date, applying
// calendar_dates exceptions over the weekly calendar.
func (f *Feed) IsServiceActive(tripID string, date time.Time) bool {
	svc, ok := f.tripService[tripID]
	if !ok {
		return false
	}
	switch f.exceptions[svc][dateKey(date)] {
	case ExceptionAdded:
		return true
	case ExceptionRemoved:
		return false
	}
	c, ok := f.calendars[svc]
	if !ok {
		return false
	}
	day := dateOnly(date)
	if day.Before(dateOnly(c.StartDate)) || day.After(dateOnly(c.EndDate)) {
		return false
	}
	return c.Weekdays[day.Weekday()]
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dateKey(t time.Time) string { return t.Format("2006-01-02") }
