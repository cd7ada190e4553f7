package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL       string
	City              string
	NATSURL           string
	NATSSubject       string
	NATSQueue         string
	NATSEventsSubject string
	MetricsAddr       string
	Location          *time.Location
	OSMPath           string
	TuningFile        string
	SearchWorkers     int
	ResultCacheSize   int
	ResultCacheTTL    time.Duration
	RequestTimeout    time.Duration
	TimetableRefresh  time.Duration
	ServiceDate       time.Time // zero means "today in Location"
	Tuning            Tuning
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{}

	dsn := firstNonEmpty(os.Getenv("DATABASE_URL"), os.Getenv("PG_DSN"))
	if dsn == "" {
		host := getenvDefault("PGHOST", "127.0.0.1")
		port := getenvDefault("PGPORT", "5432")
		user := getenvDefault("PGUSER", "postgres")
		pass := os.Getenv("PGPASSWORD")
		db := os.Getenv("PGDATABASE")
		if db == "" && os.Getenv("CITY") != "" {
			db = "postgres"
		}
		if db == "" {
			return nil, errors.New("PGDATABASE or DATABASE_URL must be set (set PGDATABASE=postgres when using CITY)")
		}
		sslmode := getenvDefault("PGSSLMODE", "disable")
		userInfo := urlEscape(user)
		if pass != "" {
			userInfo += ":" + urlEscape(pass)
		}
		cfg.DatabaseURL = fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", userInfo, host, port, db, sslmode)
	} else {
		cfg.DatabaseURL = dsn
	}
	cfg.City = firstNonEmpty(os.Getenv("CITY"), os.Getenv("CITY_NAME"))

	cfg.NATSURL = getenvDefault("NATS_URL", "nats://127.0.0.1:4222")
	cfg.NATSSubject = getenvDefault("NATS_SUBJECT", "isochrone.search")
	cfg.NATSQueue = getenvDefault("NATS_QUEUE", "isochrone-workers")
	// Empty disables completion events.
	cfg.NATSEventsSubject = getenvDefault("NATS_EVENTS_SUBJECT", "isochrone.completed")

	// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")
	cfg.OSMPath = os.Getenv("OSM_PATH")
	cfg.TuningFile = os.Getenv("TUNING_FILE")

	var err error
	if cfg.SearchWorkers, err = positiveInt("SEARCH_WORKERS", 4); err != nil {
		return nil, err
	}
	if cfg.ResultCacheSize, err = nonNegativeInt("RESULT_CACHE_SIZE", 64); err != nil {
		return nil, err
	}
	ttl, err := positiveInt("RESULT_CACHE_TTL_SEC", 600)
	if err != nil {
		return nil, err
	}
	cfg.ResultCacheTTL = time.Duration(ttl) * time.Second
	// Bounds each NATS request, including the wait for a free search worker.
	timeout, err := positiveInt("REQUEST_TIMEOUT_SEC", 10)
	if err != nil {
		return nil, err
	}
	cfg.RequestTimeout = time.Duration(timeout) * time.Second
	// Zero disables periodic timetable reloads.
	refresh, err := nonNegativeInt("TIMETABLE_REFRESH_MIN", 30)
	if err != nil {
		return nil, err
	}
	cfg.TimetableRefresh = time.Duration(refresh) * time.Minute

	tzName := getenvDefault("TZ", "")
	if tzName == "" {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(tzName)
		if err != nil {
			return nil, fmt.Errorf("invalid TZ: %v", err)
		}
		cfg.Location = loc
	}

	if v := os.Getenv("SERVICE_DATE"); v != "" {
		d, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(v), cfg.Location)
		if err != nil {
			return nil, fmt.Errorf("invalid SERVICE_DATE: %q", v)
		}
		cfg.ServiceDate = d
	}

	cfg.Tuning = DefaultTuning()
	if cfg.TuningFile != "" {
		t, err := LoadTuning(cfg.TuningFile)
		if err != nil {
			return nil, fmt.Errorf("tuning file %s: %w", cfg.TuningFile, err)
		}
		cfg.Tuning = t
	}

	return cfg, nil
}

// ServiceDay returns the configured service date, or today's date in the configured zone.
func (c *Config) ServiceDay(now time.Time) time.Time {
	if !c.ServiceDate.IsZero() {
		return c.ServiceDate
	}
	loc := c.Location
	if loc == nil {
		loc = time.Local
	}
	y, m, d := now.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func positiveInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return n, nil
}

func nonNegativeInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return n, nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}
