// Package home keeps the home page sections (featured, latest and popular
// rankings) in memory and refreshes them concurrently.
package home

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/rayin-translation/internal/activity"
	"github.com/JakeFAU/rayin-translation/internal/library"
	"github.com/JakeFAU/rayin-translation/internal/logging"
	"github.com/JakeFAU/rayin-translation/internal/metrics"
)

// Config sizes the sections and sets the freshness window.
type Config struct {
	TTL            time.Duration
	FeaturedLimit  int
	LatestLimit    int
	LatestChapters int
	PopularLimit   int
}

// DefaultConfig mirrors the layout of the home page.
func DefaultConfig() Config {
	return Config{
		TTL:            5 * time.Minute,
		FeaturedLimit:  10,
		LatestLimit:    15,
		LatestChapters: 3,
		PopularLimit:   10,
	}
}

// Injector receives novels loaded by the home feed so novel pages open warm.
type Injector interface {
	InjectNovel(novel library.Novel)
}

// Snapshot is a copy of the home state.
type Snapshot struct {
	Featured    []library.Novel    `json:"featured"`
	Latest      []library.Novel    `json:"latest"`
	Popular     library.PopularSet `json:"popular"`
	Ready       bool               `json:"ready"`
	Loading     bool               `json:"loading"`
	LastFetched time.Time          `json:"last_fetched"`
	Error       string             `json:"error,omitempty"`
}

// Store owns the home state.
type Store struct {
	cfg     Config
	repo    library.HomeRepository
	cache   Injector
	clock   library.Clock
	emitter activity.Emitter
	logger  *zap.Logger

	fetchMu sync.Mutex
	mu      sync.RWMutex
	state   Snapshot
}

// New builds a Store. Zero config fields take their defaults; cache may be nil.
func New(
	repo library.HomeRepository,
	cache Injector,
	clock library.Clock,
	emitter activity.Emitter,
	logger *zap.Logger,
	cfg Config,
) *Store {
	def := DefaultConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.FeaturedLimit <= 0 {
		cfg.FeaturedLimit = def.FeaturedLimit
	}
	if cfg.LatestLimit <= 0 {
		cfg.LatestLimit = def.LatestLimit
	}
	if cfg.LatestChapters <= 0 {
		cfg.LatestChapters = def.LatestChapters
	}
	if cfg.PopularLimit <= 0 {
		cfg.PopularLimit = def.PopularLimit
	}
	if emitter == nil {
		emitter = activity.Nop{}
	}
	return &Store{
		cfg:     cfg,
		repo:    repo,
		cache:   cache,
		clock:   clock,
		emitter: emitter,
		logger:  logging.For(logger, logging.CategoryFetch),
	}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.state
	out.Featured = cloneNovels(s.state.Featured)
	out.Latest = cloneNovels(s.state.Latest)
	out.Popular = library.PopularSet{
		AllTime: append([]library.PopularNovel(nil), s.state.Popular.AllTime...),
		Weekly:  append([]library.PopularNovel(nil), s.state.Popular.Weekly...),
		Monthly: append([]library.PopularNovel(nil), s.state.Popular.Monthly...),
	}
	return out
}

func (s *Store) fresh() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Ready && s.clock.Now().Sub(s.state.LastFetched) < s.cfg.TTL
}

// Fetch refreshes every section unless the data is fresh and force is false.
// Sections load concurrently; a failed section keeps its previous value and
// the failures are joined into the returned error.
func (s *Store) Fetch(ctx context.Context, force bool) error {
	if !force && s.fresh() {
		metrics.ObserveCache("home", "hit")
		return nil
	}
	s.fetchMu.Lock()
	defer s.fetchMu.Unlock()
	// Another caller may have refreshed while we waited.
	if !force && s.fresh() {
		metrics.ObserveCache("home", "hit")
		return nil
	}
	metrics.ObserveCache("home", "miss")

	s.mu.Lock()
	s.state.Loading = true
	s.mu.Unlock()

	start := time.Now()
	now := s.clock.Now()
	var (
		featured, latest         []library.Novel
		allTime, weekly, monthly []library.PopularNovel
		errs                     [5]error
		g                        errgroup.Group
	)
	g.Go(func() error {
		featured, errs[0] = s.repo.Featured(ctx, s.cfg.FeaturedLimit)
		return nil
	})
	g.Go(func() error {
		latest, errs[1] = s.repo.Latest(ctx, s.cfg.LatestLimit, s.cfg.LatestChapters)
		return nil
	})
	g.Go(func() error {
		allTime, errs[2] = s.repo.PopularAllTime(ctx, s.cfg.PopularLimit)
		return nil
	})
	g.Go(func() error {
		weekly, errs[3] = s.repo.PopularSince(ctx, now.AddDate(0, 0, -7), s.cfg.PopularLimit)
		return nil
	})
	g.Go(func() error {
		monthly, errs[4] = s.repo.PopularSince(ctx, now.AddDate(0, 0, -30), s.cfg.PopularLimit)
		return nil
	})
	// Sections never fail the group; each error is kept in its slot.
	_ = g.Wait()

	labels := [5]string{"featured", "latest", "popular all-time", "popular weekly", "popular monthly"}
	var failures []error
	for i, err := range errs {
		if err != nil {
			failures = append(failures, wrap(labels[i], err))
		}
	}
	joined := errors.Join(failures...)

	for i := range latest {
		latest[i].Chapters = topChapters(latest[i].Chapters, s.cfg.LatestChapters)
	}

	s.mu.Lock()
	if errs[0] == nil && len(featured) > 0 {
		s.state.Featured = featured
	}
	if errs[1] == nil {
		s.state.Latest = nonNil(latest)
	}
	if errs[2] == nil {
		s.state.Popular.AllTime = nonNil(allTime)
	}
	if errs[3] == nil {
		s.state.Popular.Weekly = nonNil(weekly)
	}
	if errs[4] == nil {
		s.state.Popular.Monthly = nonNil(monthly)
	}
	s.state.Loading = false
	s.state.Ready = true
	s.state.LastFetched = s.clock.Now()
	s.state.Error = ""
	if joined != nil {
		s.state.Error = joined.Error()
	}
	s.mu.Unlock()

	if s.cache != nil {
		for _, n := range featured {
			s.cache.InjectNovel(withoutChapters(n))
		}
		for _, n := range latest {
			s.cache.InjectNovel(withoutChapters(n))
		}
	}

	evt := activity.Event{Kind: activity.KindHomeFetch, TS: s.clock.Now(), Dur: time.Since(start)}
	if joined != nil {
		evt.Failed = true
		evt.Note = joined.Error()
		s.logger.Warn("home sections failed to load", zap.Error(joined))
	}
	s.emitter.Emit(evt)
	return joined
}

func wrap(section string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", section, err)
}

// topChapters keeps the n highest-numbered chapters in descending order.
func topChapters(in []library.ChapterSummary, n int) []library.ChapterSummary {
	out := append([]library.ChapterSummary{}, in...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Number > out[j].Number })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// withoutChapters drops the truncated listing so the novel page loads the full one.
func withoutChapters(n library.Novel) library.Novel {
	n.Chapters = nil
	return n
}

func cloneNovels(in []library.Novel) []library.Novel {
	if in == nil {
		return nil
	}
	out := make([]library.Novel, len(in))
	for i, n := range in {
		out[i] = n.Clone()
	}
	return out
}

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
