package metrics

import (
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	Searches       prometheus.Counter
	SearchErrors   *prometheus.CounterVec // reason label: invalid|busy|run|decode
	SearchDuration prometheus.Histogram
	SettledLabels  prometheus.Histogram
	TripsBoarded   prometheus.Histogram
	WorkersBusy    prometheus.Gauge

	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	NATSRequests    prometheus.Counter
	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge
	PublishDuration prometheus.Histogram

	TimetableReloads *prometheus.CounterVec // result label: ok|error|unchanged
	TimetableStops   prometheus.Gauge
	TimetableTrips   prometheus.Gauge
	RoadNodes        prometheus.Gauge

	Workers         prometheus.Gauge
	RefreshInterval prometheus.Gauge // seconds
}

func NewCollector(workers int, refreshInterval time.Duration) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		Searches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "isochrone_searches_total",
			Help: "Total searches run to completion (cache hits excluded).",
		}),
		SearchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "isochrone_search_errors_total",
			Help: "Searches rejected or failed, by reason.",
		}, []string{"reason"}),
		SearchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "isochrone_search_duration_seconds",
			Help:    "Wall time of one search run.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		SettledLabels: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "isochrone_settled_labels",
			Help:    "Locations settled per search.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		}),
		TripsBoarded: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "isochrone_trips_boarded",
			Help:    "Distinct trips boarded per search.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
		WorkersBusy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "isochrone_workers_busy",
			Help: "Search workspaces currently in use.",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "isochrone_result_cache_hits_total",
			Help: "Searches answered from the result cache.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "isochrone_result_cache_misses_total",
			Help: "Searches not found in the result cache.",
		}),
		NATSRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "isochrone_nats_requests_total",
			Help: "Total search requests received over NATS.",
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "isochrone_nats_published_total",
			Help: "Total NATS messages published (replies and events).",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "isochrone_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "isochrone_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "isochrone_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		TimetableReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "isochrone_timetable_reloads_total",
			Help: "Timetable reload attempts, by result.",
		}, []string{"result"}),
		TimetableStops: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "isochrone_timetable_stops",
			Help: "Stops in the active timetable.",
		}),
		TimetableTrips: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "isochrone_timetable_trips",
			Help: "Trips in the active timetable.",
		}),
		RoadNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "isochrone_road_nodes",
			Help: "Nodes in the walking graph, 0 when walking is straight-line only.",
		}),
		Workers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "isochrone_workers",
			Help: "Configured number of search workspaces.",
		}),
		RefreshInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "isochrone_refresh_interval_seconds",
			Help: "Timetable refresh interval in seconds.",
		}),
	}

	reg.MustRegister(
		c.Searches, c.SearchErrors, c.SearchDuration, c.SettledLabels, c.TripsBoarded, c.WorkersBusy,
		c.CacheHits, c.CacheMisses,
		c.NATSRequests, c.NATSPublished, c.NATSPublishErrs, c.NATSConnected, c.PublishDuration,
		c.TimetableReloads, c.TimetableStops, c.TimetableTrips, c.RoadNodes,
		c.Workers, c.RefreshInterval,
	)

	c.Workers.Set(float64(workers))
	c.RefreshInterval.Set(refreshInterval.Seconds())

	return c
}

func (c *Collector) Registry() *prometheus.Registry { return c.reg }

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
	log.Printf("metrics listening on %s", addr)
	return srv
}

// Service adapts the collector to service.Metrics.
type Service struct{ C *Collector }

func (s Service) SearchObserve(d time.Duration, settled, tripsBoarded int) {
	s.C.Searches.Inc()
	s.C.SearchDuration.Observe(d.Seconds())
	s.C.SettledLabels.Observe(float64(settled))
	s.C.TripsBoarded.Observe(float64(tripsBoarded))
}

func (s Service) SearchErrInc(reason string) { s.C.SearchErrors.WithLabelValues(reason).Inc() }
func (s Service) CacheHitInc()               { s.C.CacheHits.Inc() }
func (s Service) CacheMissInc()              { s.C.CacheMisses.Inc() }
func (s Service) WorkersBusySet(n int)       { s.C.WorkersBusy.Set(float64(n)) }

func (s Service) TimetableSwapped(stops, trips int) {
	s.C.TimetableStops.Set(float64(stops))
	s.C.TimetableTrips.Set(float64(trips))
}
