package gtfs

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Time is a service-day clock reading in seconds since midnight.
// Values past 24h are valid for trips running after midnight.
type Time float64

func (t Time) Add(secs float64) Time { return t + Time(secs) }

// Sub returns t-u in seconds.
func (t Time) Sub(u Time) float64 { return float64(t - u) }

func (t Time) String() string {
	total := int(math.Round(float64(t)))
	neg := ""
	if total < 0 {
		neg = "-"
		total = -total
	}
	return fmt.Sprintf("%s%02d:%02d:%02d", neg, total/3600, (total/60)%60, total%60)
}

// ParseTime parses HH:MM[:SS], allowing hours >= 24.
func ParseTime(s string) (Time, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	var fields [3]int
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || v < 0 {
			return 0, fmt.Errorf("invalid time %q", s)
		}
		fields[i] = v
	}
	if fields[1] > 59 || fields[2] > 59 {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	return Time(fields[0]*3600 + fields[1]*60 + fields[2]), nil
}
