package gtfs

import "time"

type Agency struct {
	AgencyID string
	Name     string
	Timezone string
}

type Route struct {
	RouteID   string
	AgencyID  string
	ShortName string
	Type      int
}

type Stop struct {
	StopID string
	Name   string
	Lat    float64
	Lon    float64
}

type Trip struct {
	TripID      string
	RouteID     string
	ServiceID   string
	DirectionID int
	StopTimes   []StopTime // ordered by StopSequence
}

type StopTime struct {
	TripID       string
	StopID       string
	StopSequence int
	Arrival      Time // seconds since midnight (can exceed 24h)
	Departure    Time // seconds since midnight (can exceed 24h)
}

// Calendar is one calendar.txt row. Weekdays is indexed by time.Weekday (0=Sunday).
type Calendar struct {
	ServiceID string
	Weekdays  [7]bool
	StartDate time.Time
	EndDate   time.Time
}

const (
	ExceptionAdded   = 1
	ExceptionRemoved = 2
)

type CalendarDate struct {
	ServiceID     string
	Date          time.Time
	ExceptionType int
}

// Timetable is the read-only schedule model a search runs against.
// Stops and Trips return the same slices, in the same order, on every call.
type Timetable interface {
	Stops() []Stop
	Trips() []Trip
	AgencyOf(stopID string) string
	IsServiceActive(tripID string, date time.Time) bool
}
