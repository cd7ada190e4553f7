package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/bluele/gcache"

	"transit-isochrone/internal/reach"
	"transit-isochrone/internal/search"
)

// ErrBusy is returned when no workspace frees up before the caller's context ends.
var ErrBusy = errors.New("all search workers busy")

// Metrics receives search outcomes. A nil Metrics is allowed.
type Metrics interface {
	SearchObserve(d time.Duration, settled, tripsBoarded int)
	SearchErrInc(reason string)
	CacheHitInc()
	CacheMissInc()
	WorkersBusySet(n int)
	TimetableSwapped(stops, trips int)
}

type Options struct {
	Workers   int
	CacheSize int // zero disables result caching
	CacheTTL  time.Duration
	Metrics   Metrics
}

// Service runs searches on a fixed pool of workspaces and caches their results.
// The engine can be swapped while searches are in flight.
type Service struct {
	mu         sync.RWMutex
	engine     *search.Engine
	generation uint64

	pool    chan *search.Workspace
	cache   gcache.Cache
	metrics Metrics

	busyMu sync.Mutex
	busy   int
}

func New(engine *search.Engine, opts Options) *Service {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	s := &Service{
		engine:  engine,
		pool:    make(chan *search.Workspace, opts.Workers),
		metrics: opts.Metrics,
	}
	for i := 0; i < opts.Workers; i++ {
		s.pool <- search.NewWorkspace()
	}
	if opts.CacheSize > 0 {
		b := gcache.New(opts.CacheSize).LRU()
		if opts.CacheTTL > 0 {
			b = b.Expiration(opts.CacheTTL)
		}
		s.cache = b.Build()
	}
	return s
}

func (s *Service) Engine() *search.Engine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// Swap installs a new engine, typically after a timetable reload. Searches
// already running finish on the engine they started with.
func (s *Service) Swap(engine *search.Engine) {
	s.mu.Lock()
	s.engine = engine
	s.generation++
	s.mu.Unlock()
	if s.cache != nil {
		s.cache.Purge()
	}
	if s.metrics != nil {
		net := engine.Network()
		s.metrics.TimetableSwapped(len(net.Stops()), net.TripCount())
	}
}

// Search returns the reachability field for cfg. Invalid configurations fail
// with search.ErrInvalidConfiguration without waiting for a worker.
func (s *Service) Search(ctx context.Context, cfg search.Configuration) (*reach.Result, error) {
	if err := cfg.Validate(); err != nil {
		s.countErr("invalid")
		return nil, err
	}
	s.mu.RLock()
	engine, gen := s.engine, s.generation
	s.mu.RUnlock()

	key := strconv.FormatUint(gen, 10) + "|" + cfg.Key()
	if s.cache != nil {
		if v, err := s.cache.Get(key); err == nil {
			if s.metrics != nil {
				s.metrics.CacheHitInc()
			}
			return v.(*reach.Result), nil
		}
		if s.metrics != nil {
			s.metrics.CacheMissInc()
		}
	}

	var ws *search.Workspace
	select {
	case ws = <-s.pool:
	case <-ctx.Done():
		s.countErr("busy")
		return nil, fmt.Errorf("%w: %w", ErrBusy, ctx.Err())
	}
	s.setBusy(1)
	res, err := engine.Run(ws, cfg)
	s.setBusy(-1)
	s.pool <- ws
	if err != nil {
		s.countErr("run")
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.SearchObserve(res.Stats.Elapsed, res.Stats.Settled, res.Stats.TripsBoarded)
	}
	log.Printf("search run=%s settled=%d pushed=%d stale=%d boarded=%d took=%s",
		res.RunID, res.Stats.Settled, res.Stats.Pushed, res.Stats.Stale, res.Stats.TripsBoarded, res.Stats.Elapsed)
	if s.cache != nil {
		_ = s.cache.Set(key, res)
	}
	return res, nil
}

func (s *Service) setBusy(delta int) {
	s.busyMu.Lock()
	s.busy += delta
	n := s.busy
	s.busyMu.Unlock()
	if s.metrics != nil {
		s.metrics.WorkersBusySet(n)
	}
}

func (s *Service) countErr(reason string) {
	if s.metrics != nil {
		s.metrics.SearchErrInc(reason)
	}
}
