package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transit-isochrone/internal/gtfs"
)

func TestWithDBName(t *testing.T) {
	tests := []struct {
		name    string
		dsn     string
		db      string
		want    string
		wantErr bool
	}{
		{name: "replace path", dsn: "postgres://u:p@host:5432/postgres?sslmode=disable", db: "gtfs_montreal_2024", want: "postgres://u:p@host:5432/gtfs_montreal_2024?sslmode=disable"},
		{name: "postgresql scheme", dsn: "postgresql://host/old", db: "/new", want: "postgresql://host/new"},
		{name: "missing scheme", dsn: "u@host:5432/x", db: "y", want: "postgres://u@host:5432/y"},
		{name: "empty dsn", dsn: "", db: "y", wantErr: true},
		{name: "empty db", dsn: "postgres://host/x", db: " ", wantErr: true},
		{name: "wrong scheme", dsn: "mysql://host/x", db: "y", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := WithDBName(tt.dsn, tt.db)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, "gtfs", DBName("postgres://host:5432/gtfs?sslmode=disable"))
	assert.Equal(t, "", DBName("postgres://host:5432"))
}

func TestParseStopTime(t *testing.T) {
	tests := []struct {
		in     string
		want   gtfs.Time
		wantOK bool
		err    bool
	}{
		{in: "", wantOK: false},
		{in: "08:15:00", want: 8*3600 + 15*60, wantOK: true},
		{in: "24:05:00", want: 24*3600 + 5*60, wantOK: true},
		{in: "1 day 02:10:00", want: 26*3600 + 10*60, wantOK: true},
		{in: "2 days 00:00:30", want: 48*3600 + 30, wantOK: true},
		{in: "1 day", want: 24 * 3600, wantOK: true},
		{in: "x day 01:00:00", err: true},
		{in: "soon", err: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok, err := parseStopTime(tt.in)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFillStopTimes(t *testing.T) {
	sts := []gtfs.StopTime{
		{TripID: "a", StopSequence: 1},
		{TripID: "a", StopSequence: 2},
		{TripID: "a", StopSequence: 3},
		{TripID: "a", StopSequence: 4},
		{TripID: "b", StopSequence: 1},
	}
	raw := []rawTimes{
		{departure: "08:00:00"},
		{arrival: "08:05:00", departure: "08:06:00"},
		{},
		{arrival: "08:20:00"},
		{arrival: "09:00:00", departure: "09:01:00"},
	}
	require.NoError(t, fillStopTimes(sts, raw))

	want := [][2]gtfs.Time{
		{8 * 3600, 8 * 3600},
		{8*3600 + 5*60, 8*3600 + 6*60},
		{8*3600 + 6*60, 8*3600 + 6*60},
		{8*3600 + 20*60, 8*3600 + 20*60},
		{9 * 3600, 9*3600 + 60},
	}
	for i, w := range want {
		assert.Equal(t, w[0], sts[i].Arrival, "arrival %d", i)
		assert.Equal(t, w[1], sts[i].Departure, "departure %d", i)
	}
}

func TestFillStopTimesRejectsUntimedFirstStop(t *testing.T) {
	sts := []gtfs.StopTime{{TripID: "a", StopSequence: 1}, {TripID: "b", StopSequence: 1}, {TripID: "b", StopSequence: 2}}
	raw := []rawTimes{{arrival: "07:00:00"}, {}, {arrival: "07:10:00"}}
	err := fillStopTimes(sts, raw)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"b"`)

	err = fillStopTimes(sts[:1], []rawTimes{{arrival: "bogus"}})
	assert.Error(t, err)
}

func TestCalendarParsing(t *testing.T) {
	for _, s := range []string{"1", "t", "true", "available", " TRUE "} {
		assert.True(t, isAvailable(s), s)
	}
	for _, s := range []string{"0", "f", "not_available", ""} {
		assert.False(t, isAvailable(s), s)
	}

	want := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)
	for _, s := range []string{"2024-03-09", "20240309"} {
		got, err := parseDate(s)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := parseDate("09/03/2024")
	assert.Error(t, err)

	assert.Equal(t, gtfs.ExceptionAdded, parseExceptionType("added"))
	assert.Equal(t, gtfs.ExceptionRemoved, parseExceptionType("2"))
	assert.Equal(t, 0, parseExceptionType("3"))

	assert.Equal(t, 1, parseDirection("1"))
	assert.Equal(t, 1, parseDirection("inbound"))
	assert.Equal(t, 0, parseDirection(""))
	assert.Equal(t, 3, parseRouteType("3"))
	assert.Equal(t, -1, parseRouteType("bus"))
}
