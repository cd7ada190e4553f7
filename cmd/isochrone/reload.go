package main

import (
	"context"
	"database/sql"
	"log"
	"time"

	"transit-isochrone/internal/config"
	"transit-isochrone/internal/db"
	"transit-isochrone/internal/geo"
	"transit-isochrone/internal/gtfs"
	"transit-isochrone/internal/metrics"
	"transit-isochrone/internal/roadgraph"
	"transit-isochrone/internal/service"
)

// reloader keeps the service on the latest timetable import and the current
// service day. Only its own goroutine touches its fields after start.
type reloader struct {
	cfg    *config.Config
	svc    *service.Service
	mcol   *metrics.Collector
	proj   geo.Projection
	walker *roadgraph.Walker

	sqlDB  *sql.DB
	dbName string
	feed   *gtfs.Feed
	day    time.Time
}

func (r *reloader) run(ctx context.Context) {
	if r.cfg.TimetableRefresh <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(r.cfg.TimetableRefresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		r.tick(ctx)
	}
}

func (r *reloader) tick(ctx context.Context) {
	// 1) Ping current DB; if it fails, force a reload
	needLoad := false
	if err := db.Ping(ctx, r.sqlDB); err != nil {
		log.Printf("db ping failed: %v; reloading timetable", err)
		needLoad = true
	}

	// 2) Re-resolve the latest import and compare db_name
	dsn, name, err := db.ResolveDSN(ctx, r.cfg.DatabaseURL, r.cfg.City)
	if err != nil {
		log.Printf("resolve latest import error: %v", err)
		r.count("error")
		return
	}
	if name != r.dbName {
		log.Printf("detected updated DB for city %q: %q -> %q", r.cfg.City, r.dbName, name)
		needLoad = true
	}

	day := r.cfg.ServiceDay(time.Now())
	if !needLoad && day.Equal(r.day) {
		r.count("unchanged")
		return
	}

	sqlDB, feed, walker := r.sqlDB, r.feed, r.walker
	if needLoad {
		newDB, err := openAndPing(ctx, dsn)
		if err != nil {
			log.Printf("open %q: %v", name, err)
			r.count("error")
			return
		}
		newFeed, err := db.LoadFeed(ctx, newDB)
		if err != nil {
			log.Printf("load timetable from %q: %v", name, err)
			newDB.Close()
			r.count("error")
			return
		}
		sqlDB, feed = newDB, newFeed
		var onGraph int
		walker, onGraph = r.walker.WithStops(feed.Stops(), r.proj)
		if walker.Graph() != nil {
			log.Printf("walking graph: stops_on_graph=%d/%d", onGraph, len(feed.Stops()))
		}
	}

	engine, err := newEngine(feed, r.proj, walker, r.cfg.Tuning, day)
	if err != nil {
		// Keep serving the previous timetable.
		log.Printf("rebuild network: %v", err)
		if sqlDB != r.sqlDB {
			sqlDB.Close()
		}
		r.count("error")
		return
	}
	r.svc.Swap(engine)
	if sqlDB != r.sqlDB {
		r.sqlDB.Close()
		r.sqlDB = sqlDB
	}
	r.dbName, r.feed, r.day, r.walker = name, feed, day, walker
	log.Printf("timetable swapped: db=%q service_day=%s", name, day.Format("2006-01-02"))
	r.count("ok")
}

func (r *reloader) count(result string) {
	if r.mcol != nil {
		r.mcol.TimetableReloads.WithLabelValues(result).Inc()
	}
}
