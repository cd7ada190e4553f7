package db

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"transit-isochrone/internal/gtfs"
)

// LoadFeed reads the static GTFS tables of the connected database into a Feed.
// calendar and calendar_dates are optional; at least one should be present or
// no trip will ever be active.
func LoadFeed(ctx context.Context, db *sql.DB) (*gtfs.Feed, error) {
	began := time.Now()
	agencies, err := loadAgencies(ctx, db)
	if err != nil {
		return nil, err
	}
	routes, err := loadRoutes(ctx, db)
	if err != nil {
		return nil, err
	}
	stops, err := loadStops(ctx, db)
	if err != nil {
		return nil, err
	}
	trips, err := loadTrips(ctx, db)
	if err != nil {
		return nil, err
	}
	stopTimes, err := loadStopTimes(ctx, db)
	if err != nil {
		return nil, err
	}
	calendars, err := loadCalendars(ctx, db)
	if err != nil {
		return nil, err
	}
	dates, err := loadCalendarDates(ctx, db)
	if err != nil {
		return nil, err
	}
	log.Printf("loaded feed: agencies=%d routes=%d stops=%d trips=%d stop_times=%d calendars=%d calendar_dates=%d took=%s",
		len(agencies), len(routes), len(stops), len(trips), len(stopTimes), len(calendars), len(dates), time.Since(began))
	return gtfs.NewFeed(agencies, routes, stops, trips, stopTimes, calendars, dates), nil
}

func loadAgencies(ctx context.Context, db *sql.DB) ([]gtfs.Agency, error) {
	q := `SELECT COALESCE(agency_id, ''), COALESCE(agency_name, ''), COALESCE(agency_timezone, '') FROM agency`
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query agency: %w", err)
	}
	defer rows.Close()
	var out []gtfs.Agency
	for rows.Next() {
		var a gtfs.Agency
		if err := rows.Scan(&a.AgencyID, &a.Name, &a.Timezone); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func loadRoutes(ctx context.Context, db *sql.DB) ([]gtfs.Route, error) {
	q := `SELECT route_id, COALESCE(agency_id, ''), COALESCE(route_short_name, ''), COALESCE(route_type::text, '')
          FROM routes`
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query routes: %w", err)
	}
	defer rows.Close()
	var out []gtfs.Route
	for rows.Next() {
		var r gtfs.Route
		var typ string
		if err := rows.Scan(&r.RouteID, &r.AgencyID, &r.ShortName, &typ); err != nil {
			return nil, err
		}
		r.Type = parseRouteType(typ)
		out = append(out, r)
	}
	return out, rows.Err()
}

func loadStops(ctx context.Context, db *sql.DB) ([]gtfs.Stop, error) {
	// Prefer stop_lat/stop_lon, but support PostGIS stop_loc geography as fallback
	cols, err := hasColumns(ctx, db, "public", "stops", "stop_lat", "stop_lon", "stop_loc")
	if err != nil {
		return nil, err
	}
	var q string
	switch {
	case cols["stop_lat"] && cols["stop_lon"]:
		q = `SELECT stop_id, COALESCE(stop_name, ''), stop_lat, stop_lon
             FROM stops WHERE stop_lat IS NOT NULL AND stop_lon IS NOT NULL`
	case cols["stop_loc"]:
		q = `SELECT stop_id, COALESCE(stop_name, ''), ST_Y(stop_loc::geometry), ST_X(stop_loc::geometry)
             FROM stops WHERE stop_loc IS NOT NULL`
	default:
		return nil, fmt.Errorf("stops table missing expected columns (stop_lat/lon or stop_loc)")
	}
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query stops: %w", err)
	}
	defer rows.Close()
	var out []gtfs.Stop
	for rows.Next() {
		var s gtfs.Stop
		if err := rows.Scan(&s.StopID, &s.Name, &s.Lat, &s.Lon); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func loadTrips(ctx context.Context, db *sql.DB) ([]gtfs.Trip, error) {
	q := `SELECT trip_id, route_id, service_id, COALESCE(direction_id::text, '') FROM trips`
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query trips: %w", err)
	}
	defer rows.Close()
	var out []gtfs.Trip
	for rows.Next() {
		var t gtfs.Trip
		var dir string
		if err := rows.Scan(&t.TripID, &t.RouteID, &t.ServiceID, &dir); err != nil {
			return nil, err
		}
		t.DirectionID = parseDirection(dir)
		out = append(out, t)
	}
	return out, rows.Err()
}

// loadStopTimes returns all stop times ordered by trip and stop_sequence, with
// blank times filled from the neighbouring call.
func loadStopTimes(ctx context.Context, db *sql.DB) ([]gtfs.StopTime, error) {
	q := `SELECT trip_id, stop_id, stop_sequence,
                 COALESCE(arrival_time::text, ''),
                 COALESCE(departure_time::text, '')
          FROM stop_times
          ORDER BY trip_id, stop_sequence`
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query stop_times: %w", err)
	}
	defer rows.Close()

	var out []gtfs.StopTime
	var raw []rawTimes
	for rows.Next() {
		var st gtfs.StopTime
		var r rawTimes
		if err := rows.Scan(&st.TripID, &st.StopID, &st.StopSequence, &r.arrival, &r.departure); err != nil {
			return nil, err
		}
		out = append(out, st)
		raw = append(raw, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := fillStopTimes(out, raw); err != nil {
		return nil, err
	}
	return out, nil
}

func loadCalendars(ctx context.Context, db *sql.DB) ([]gtfs.Calendar, error) {
	ok, err := tableExists(ctx, db, "public", "calendar")
	if err != nil || !ok {
		return nil, err
	}
	// calendar has booleans (0/1) or availability enums depending on the importer.
	q := `SELECT service_id,
                 monday::text, tuesday::text, wednesday::text, thursday::text,
                 friday::text, saturday::text, sunday::text,
                 start_date::text, end_date::text
          FROM calendar`
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query calendar: %w", err)
	}
	defer rows.Close()
	var out []gtfs.Calendar
	for rows.Next() {
		var c gtfs.Calendar
		var days [7]string // monday first, as in the table
		var start, end string
		if err := rows.Scan(&c.ServiceID, &days[0], &days[1], &days[2], &days[3], &days[4], &days[5], &days[6], &start, &end); err != nil {
			return nil, err
		}
		for i, d := range days {
			c.Weekdays[(time.Monday+time.Weekday(i))%7] = isAvailable(d)
		}
		if c.StartDate, err = parseDate(start); err != nil {
			return nil, fmt.Errorf("calendar %q start_date: %w", c.ServiceID, err)
		}
		if c.EndDate, err = parseDate(end); err != nil {
			return nil, fmt.Errorf("calendar %q end_date: %w", c.ServiceID, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func loadCalendarDates(ctx context.Context, db *sql.DB) ([]gtfs.CalendarDate, error) {
	ok, err := tableExists(ctx, db, "public", "calendar_dates")
	if err != nil || !ok {
		return nil, err
	}
	q := `SELECT service_id, date::text, exception_type::text FROM calendar_dates`
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query calendar_dates: %w", err)
	}
	defer rows.Close()
	var out []gtfs.CalendarDate
	for rows.Next() {
		var d gtfs.CalendarDate
		var date, typ string
		if err := rows.Scan(&d.ServiceID, &date, &typ); err != nil {
			return nil, err
		}
		if d.Date, err = parseDate(date); err != nil {
			return nil, fmt.Errorf("calendar_dates %q: %w", d.ServiceID, err)
		}
		d.ExceptionType = parseExceptionType(typ)
		if d.ExceptionType == 0 {
			log.Printf("calendar_dates %q %s: unknown exception_type %q, skipped", d.ServiceID, date, typ)
			continue
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
