package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"transit-isochrone/internal/config"
	"transit-isochrone/internal/db"
	"transit-isochrone/internal/geo"
	"transit-isochrone/internal/gtfs"
	"transit-isochrone/internal/metrics"
	"transit-isochrone/internal/publisher"
	"transit-isochrone/internal/reach"
	"transit-isochrone/internal/roadgraph"
	"transit-isochrone/internal/search"
	"transit-isochrone/internal/service"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	dsn, dbName, err := db.ResolveDSN(ctx, cfg.DatabaseURL, cfg.City)
	if err != nil {
		log.Fatalf("resolve timetable database: %v", err)
	}
	if cfg.City != "" {
		log.Printf("using database %q for city %q", dbName, cfg.City)
	}
	sqlDB, err := openAndPing(ctx, dsn)
	if err != nil {
		log.Fatalf("db error: %v", err)
	}
	feed, err := db.LoadFeed(ctx, sqlDB)
	if err != nil {
		log.Fatalf("load timetable: %v", err)
	}
	if len(feed.Stops()) == 0 {
		log.Fatalf("timetable in %q has no stops", dbName)
	}

	// The projection stays fixed for the process lifetime so the road graph
	// never needs re-projecting after a timetable reload.
	proj := projectionFor(feed.Stops())
	walker := buildWalker(ctx, cfg, proj, feed.Stops())

	// Metrics setup
	var mcol *metrics.Collector
	var svcMetrics service.Metrics
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector(cfg.SearchWorkers, cfg.TimetableRefresh)
		svcMetrics = metrics.Service{C: mcol}
		if g := walker.Graph(); g != nil {
			mcol.RoadNodes.Set(float64(g.NodeCount()))
		}
		srv := mcol.Serve(cfg.MetricsAddr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	day := cfg.ServiceDay(time.Now())
	engine, err := newEngine(feed, proj, walker, cfg.Tuning, day)
	if err != nil {
		log.Fatalf("build network: %v", err)
	}
	svc := service.New(engine, service.Options{
		Workers:   cfg.SearchWorkers,
		CacheSize: cfg.ResultCacheSize,
		CacheTTL:  cfg.ResultCacheTTL,
		Metrics:   svcMetrics,
	})
	if mcol != nil {
		svcMetrics.TimetableSwapped(len(feed.Stops()), len(feed.Trips()))
	}

	pub, err := publisher.NewNATSPublisher(cfg.NATSURL, cfg.NATSEventsSubject, wrapPublisherMetrics(mcol))
	if err != nil {
		log.Fatalf("nats error: %v", err)
	}
	defer pub.Close()

	err = pub.Serve(ctx, cfg.NATSSubject, cfg.NATSQueue, cfg.RequestTimeout, func(ctx context.Context, data []byte) []byte {
		resp, res := svc.Handle(ctx, data, cfg.Location)
		if res != nil {
			_ = pub.PublishCompleted(completedEvent(cfg.City, res))
		}
		b, err := json.Marshal(resp)
		if err != nil {
			log.Printf("encode response: %v", err)
			return []byte(`{"error":"encode response","error_kind":"internal"}`)
		}
		return b
	})
	if err != nil {
		log.Fatalf("nats subscribe: %v", err)
	}

	r := &reloader{
		cfg:    cfg,
		svc:    svc,
		mcol:   mcol,
		proj:   proj,
		walker: walker,
		sqlDB:  sqlDB,
		dbName: dbName,
		feed:   feed,
		day:    day,
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.run(ctx)
	}()

	// Block until context cancelled
	<-ctx.Done()
	<-done
	r.sqlDB.Close()
	log.Println("shutdown complete")
}

func openAndPing(ctx context.Context, dsn string) (*sql.DB, error) {
	sqlDB, err := db.Open(dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(ctx, sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return sqlDB, nil
}

func projectionFor(stops []gtfs.Stop) geo.Projection {
	coords := make([]geo.LatLng, 0, len(stops))
	for _, s := range stops {
		coords = append(coords, geo.LatLng{Lat: s.Lat, Lng: s.Lon})
	}
	return geo.ProjectionFor(coords)
}

// buildWalker loads the OSM walking network when configured. Any failure falls
// back to straight-line walking rather than stopping the service.
func buildWalker(ctx context.Context, cfg *config.Config, proj geo.Projection, stops []gtfs.Stop) *roadgraph.Walker {
	if cfg.OSMPath == "" {
		log.Printf("OSM_PATH not set, walking is straight-line only")
		return roadgraph.NewWalker(nil, cfg.Tuning)
	}
	f, err := os.Open(cfg.OSMPath)
	if err != nil {
		log.Printf("open osm %s: %v; walking is straight-line only", cfg.OSMPath, err)
		return roadgraph.NewWalker(nil, cfg.Tuning)
	}
	defer f.Close()
	g, err := roadgraph.LoadOSM(ctx, f, proj, cfg.Tuning.WalkingSpeed)
	if err != nil {
		log.Printf("load osm %s: %v; walking is straight-line only", cfg.OSMPath, err)
		return roadgraph.NewWalker(nil, cfg.Tuning)
	}
	w, onGraph := roadgraph.NewWalker(g, cfg.Tuning).WithStops(stops, proj)
	log.Printf("walking graph: nodes=%d edges=%d stops_on_graph=%d/%d", g.NodeCount(), g.EdgeCount(), onGraph, len(stops))
	return w
}

func newEngine(feed *gtfs.Feed, proj geo.Projection, walker *roadgraph.Walker, tuning config.Tuning, day time.Time) (*search.Engine, error) {
	net, err := search.NewNetwork(feed, proj)
	if err != nil {
		return nil, err
	}
	log.Printf("network ready: stops=%d trips=%d pickups=%d service_day=%s",
		len(net.Stops()), net.TripCount(), net.Pickups().EventCount(), day.Format("2006-01-02"))
	return search.NewEngine(net, walker, tuning, day), nil
}

func completedEvent(city string, res *reach.Result) publisher.CompletedEvent {
	ev := publisher.CompletedEvent{
		RunID:        res.RunID,
		City:         city,
		Timestamp:    time.Now().UTC(),
		StartTime:    res.Start().String(),
		DurationSecs: res.Deadline().Sub(res.Start()),
		Settled:      res.Stats.Settled,
		TripsBoarded: res.Stats.TripsBoarded,
		ElapsedMs:    float64(res.Stats.Elapsed.Microseconds()) / 1000,
	}
	if origin, ok := res.Label(0); ok {
		ll := res.Projection().Unproject(origin.Point)
		ev.OriginLat, ev.OriginLng = ll.Lat, ll.Lng
	}
	return ev
}

// wrapPublisherMetrics adapts our Collector to the PublisherMetrics interface.
func wrapPublisherMetrics(c *metrics.Collector) publisher.PublisherMetrics {
	if c == nil {
		return nil
	}
	return &pubMetrics{c: c}
}

type pubMetrics struct{ c *metrics.Collector }

func (p *pubMetrics) NATSRequestInc()                { p.c.NATSRequests.Inc() }
func (p *pubMetrics) NATSPublishedInc()              { p.c.NATSPublished.Inc() }
func (p *pubMetrics) NATSPublishErrInc()             { p.c.NATSPublishErrs.Inc() }
func (p *pubMetrics) PublishObserve(d time.Duration) { p.c.PublishDuration.Observe(d.Seconds()) }
func (p *pubMetrics) NATSSetConnected(b bool) {
	if b {
		p.c.NATSConnected.Set(1)
	} else {
		p.c.NATSConnected.Set(0)
	}
}
