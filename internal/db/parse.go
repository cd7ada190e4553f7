package db

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"transit-isochrone/internal/gtfs"
)

type rawTimes struct {
	arrival, departure string
}

// fillStopTimes parses the raw times into sts, which must be grouped by trip and
// ordered by stop_sequence. A call with one time gets it for both; a call with
// none holds the previous departure, as untimed intermediate stops do.
func fillStopTimes(sts []gtfs.StopTime, raw []rawTimes) error {
	var prev gtfs.Time
	for i := range sts {
		st := &sts[i]
		first := i == 0 || sts[i-1].TripID != st.TripID
		arr, arrOK, err := parseStopTime(raw[i].arrival)
		if err != nil {
			return fmt.Errorf("trip %q stop_sequence %d arrival_time: %w", st.TripID, st.StopSequence, err)
		}
		dep, depOK, err := parseStopTime(raw[i].departure)
		if err != nil {
			return fmt.Errorf("trip %q stop_sequence %d departure_time: %w", st.TripID, st.StopSequence, err)
		}
		switch {
		case arrOK && depOK:
		case arrOK:
			dep = arr
		case depOK:
			arr = dep
		case first:
			return fmt.Errorf("trip %q has no time at its first stop", st.TripID)
		default:
			arr, dep = prev, prev
		}
		st.Arrival, st.Departure = arr, dep
		prev = dep
	}
	return nil
}

// parseStopTime accepts GTFS HH:MM:SS text as well as PostgreSQL interval
// output such as "1 day 02:10:00". An empty string is reported as absent.
func parseStopTime(s string) (gtfs.Time, bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false, nil
	}
	days := 0
	if i := strings.Index(s, " day"); i > 0 {
		n, err := strconv.Atoi(strings.TrimSpace(s[:i]))
		if err != nil {
			return 0, false, fmt.Errorf("invalid time %q", s)
		}
		days = n
		rest := s[i+len(" day"):]
		rest = strings.TrimPrefix(rest, "s")
		s = strings.TrimSpace(rest)
		if s == "" {
			s = "00:00:00"
		}
	}
	t, err := gtfs.ParseTime(s)
	if err != nil {
		return 0, false, err
	}
	return t.Add(float64(days * 86400)), true, nil
}

// isAvailable reads a calendar weekday column across the encodings importers use.
func isAvailable(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "t", "true", "available":
		return true
	}
	return false
}

// parseDate accepts both the GTFS YYYYMMDD form and the date type's YYYY-MM-DD.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"2006-01-02", "20060102"} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

func parseExceptionType(s string) int {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "added":
		return gtfs.ExceptionAdded
	case "2", "removed":
		return gtfs.ExceptionRemoved
	}
	return 0
}

func parseDirection(s string) int {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "inbound":
		return 1
	}
	return 0
}

// parseRouteType returns -1 for values that are not numeric route types.
func parseRouteType(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return -1
	}
	return n
}
