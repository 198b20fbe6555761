// Package novelcache keeps recently read novels and chapters in memory with
// freshness windows, hover prefetch and stale fallback on backend errors.
package novelcache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/rayin-translation/internal/activity"
	"github.com/JakeFAU/rayin-translation/internal/library"
	"github.com/JakeFAU/rayin-translation/internal/logging"
	"github.com/JakeFAU/rayin-translation/internal/metrics"
)

// Config controls freshness windows and capacity.
type Config struct {
	NovelTTL         time.Duration
	ChapterTTL       time.Duration
	PrefetchCooldown time.Duration
	PrefetchTimeout  time.Duration
	// LoadTimeout bounds a shared backend load. Loads outlive the caller
	// that started them so coalesced waiters are not failed by its cancellation.
	LoadTimeout     time.Duration
	NovelCapacity   int
	ChapterCapacity int
}

const (
	defaultNovelTTL         = 5 * time.Minute
	defaultChapterTTL       = 10 * time.Minute
	defaultPrefetchCooldown = 10 * time.Second
	defaultPrefetchTimeout  = 15 * time.Second
	defaultLoadTimeout      = 30 * time.Second
	defaultNovelCapacity    = 512
	defaultChapterCapacity  = 256
)

type novelEntry struct {
	novel     library.Novel
	fetchedAt time.Time
	partial   bool
}

type chapterEntry struct {
	chapter   library.Chapter
	fetchedAt time.Time
}

// Cache serves novels by slug and chapters by slug and number.
type Cache struct {
	cfg     Config
	repo    library.NovelRepository
	clock   library.Clock
	emitter activity.Emitter
	logger  *zap.Logger

	mu       sync.Mutex
	novels   *lru.Cache[string, novelEntry]
	chapters *lru.Cache[string, chapterEntry]
	guards   *ttlcache.Cache[string, struct{}]
	group    singleflight.Group
	loading  atomic.Int32

	bgCtx    context.Context
	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs a Cache. A nil emitter discards view events.
func New(
	repo library.NovelRepository,
	clock library.Clock,
	emitter activity.Emitter,
	logger *zap.Logger,
	cfg Config,
) (*Cache, error) {
	if repo == nil {
		return nil, errors.New("novel repository is required")
	}
	if clock == nil {
		return nil, errors.New("clock is required")
	}
	if emitter == nil {
		emitter = activity.Nop{}
	}
	cfg = withDefaults(cfg)
	novels, err := lru.New[string, novelEntry](cfg.NovelCapacity)
	if err != nil {
		return nil, fmt.Errorf("novel cache: %w", err)
	}
	chapters, err := lru.New[string, chapterEntry](cfg.ChapterCapacity)
	if err != nil {
		return nil, fmt.Errorf("chapter cache: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Cache{
		cfg:      cfg,
		repo:     repo,
		clock:    clock,
		emitter:  emitter,
		logger:   logging.For(logger, logging.CategoryFetch),
		novels:   novels,
		chapters: chapters,
		guards:   ttlcache.New[string, struct{}](ttlcache.WithDisableTouchOnHit[string, struct{}]()),
		bgCtx:    ctx,
		bgCancel: cancel,
	}, nil
}

func withDefaults(cfg Config) Config {
	if cfg.NovelTTL <= 0 {
		cfg.NovelTTL = defaultNovelTTL
	}
	if cfg.ChapterTTL <= 0 {
		cfg.ChapterTTL = defaultChapterTTL
	}
	if cfg.PrefetchCooldown <= 0 {
		cfg.PrefetchCooldown = defaultPrefetchCooldown
	}
	if cfg.PrefetchTimeout <= 0 {
		cfg.PrefetchTimeout = defaultPrefetchTimeout
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = defaultLoadTimeout
	}
	if cfg.NovelCapacity <= 0 {
		cfg.NovelCapacity = defaultNovelCapacity
	}
	if cfg.ChapterCapacity <= 0 {
		cfg.ChapterCapacity = defaultChapterCapacity
	}
	return cfg
}

func chapterKey(slug string, number int) string {
	return slug + "/" + strconv.Itoa(number)
}

func (c *Cache) novelFresh(e novelEntry) bool {
	return !e.partial && c.clock.Now().Sub(e.fetchedAt) < c.cfg.NovelTTL
}

func (c *Cache) chapterFresh(e chapterEntry) bool {
	return c.clock.Now().Sub(e.fetchedAt) < c.cfg.ChapterTTL
}

// FetchNovel returns the novel with its ascending chapter list. A fresh entry
// is served without I/O. When loading fails a stale or partial entry is
// returned instead of the error.
func (c *Cache) FetchNovel(ctx context.Context, slug string) (library.Novel, error) {
	if slug == "" {
		return library.Novel{}, fmt.Errorf("novel %q: %w", slug, library.ErrNotFound)
	}
	cached, ok := c.novels.Get(slug)
	if ok && c.novelFresh(cached) {
		metrics.ObserveCache("novel", "hit")
		return cached.novel.Clone(), nil
	}
	metrics.ObserveCache("novel", "miss")

	if !ok {
		c.loading.Add(1)
		defer c.loading.Add(-1)
	}
	v, err := c.shared(ctx, "novel:"+slug, func(loadCtx context.Context) (any, error) {
		return c.loadNovel(loadCtx, slug)
	})
	if err == nil {
		return v.(library.Novel).Clone(), nil
	}
	if errors.Is(err, library.ErrNotFound) || ctx.Err() != nil {
		return library.Novel{}, err
	}
	if stale, found := c.novels.Get(slug); found {
		metrics.ObserveCache("novel", "stale")
		c.logger.Warn("serving cached novel after fetch failure",
			zap.String("slug", slug),
			zap.Bool("partial", stale.partial),
			zap.Error(err))
		return stale.novel.Clone(), nil
	}
	return library.Novel{}, err
}

// shared runs load once per key. The load runs on a context detached from the
// caller's cancellation; each caller stops waiting when its own ctx is done.
func (c *Cache) shared(ctx context.Context, key string, load func(context.Context) (any, error)) (any, error) {
	ch := c.group.DoChan(key, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.LoadTimeout)
		defer cancel()
		return load(loadCtx)
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, fmt.Errorf("wait for %s: %w", key, ctx.Err())
	}
}

func (c *Cache) loadNovel(ctx context.Context, slug string) (library.Novel, error) {
	start := time.Now()
	novel, err := c.repo.GetNovelBySlug(ctx, slug)
	if err != nil {
		c.emitFetch(activity.KindNovelFetch, slug, start, err)
		return library.Novel{}, fmt.Errorf("load novel %q: %w", slug, err)
	}
	chapters, err := c.repo.ListChapterSummaries(ctx, novel.ID)
	if err != nil {
		c.emitFetch(activity.KindNovelFetch, slug, start, err)
		return library.Novel{}, fmt.Errorf("load chapters for %q: %w", slug, err)
	}
	if chapters == nil {
		chapters = []library.ChapterSummary{}
	}
	novel.Chapters = chapters
	c.mu.Lock()
	c.novels.Add(slug, novelEntry{novel: novel, fetchedAt: c.clock.Now()})
	c.mu.Unlock()
	c.emitFetch(activity.KindNovelFetch, slug, start, nil)
	return novel, nil
}

// FetchChapter returns chapter number of the novel with the given slug and
// records a view whenever the chapter is loaded from the backend.
func (c *Cache) FetchChapter(ctx context.Context, slug string, number int) (library.Chapter, error) {
	if slug == "" || number <= 0 {
		return library.Chapter{}, fmt.Errorf("chapter %s/%d: %w", slug, number, library.ErrNotFound)
	}
	key := chapterKey(slug, number)
	cached, ok := c.chapters.Get(key)
	if ok && c.chapterFresh(cached) {
		metrics.ObserveCache("chapter", "hit")
		return cached.chapter, nil
	}
	metrics.ObserveCache("chapter", "miss")

	v, err := c.shared(ctx, "chapter:"+key, func(loadCtx context.Context) (any, error) {
		return c.loadChapter(loadCtx, slug, number)
	})
	if err == nil {
		return v.(library.Chapter), nil
	}
	if errors.Is(err, library.ErrNotFound) || ctx.Err() != nil {
		return library.Chapter{}, err
	}
	if stale, found := c.chapters.Get(key); found {
		metrics.ObserveCache("chapter", "stale")
		c.logger.Warn("serving cached chapter after fetch failure",
			zap.String("slug", slug),
			zap.Int("chapter", number),
			zap.Error(err))
		return stale.chapter, nil
	}
	return library.Chapter{}, err
}

func (c *Cache) loadChapter(ctx context.Context, slug string, number int) (library.Chapter, error) {
	novelID, err := c.novelID(ctx, slug)
	if err != nil {
		return library.Chapter{}, err
	}
	start := time.Now()
	chapter, err := c.repo.GetChapter(ctx, novelID, number)
	if err != nil {
		c.emitFetch(activity.KindChapterFetch, slug, start, err)
		return library.Chapter{}, fmt.Errorf("load chapter %s/%d: %w", slug, number, err)
	}
	c.mu.Lock()
	c.chapters.Add(chapterKey(slug, number), chapterEntry{chapter: chapter, fetchedAt: c.clock.Now()})
	c.mu.Unlock()
	c.emitFetch(activity.KindChapterFetch, slug, start, nil)
	c.emitter.Emit(activity.Event{
		Kind:      activity.KindChapterView,
		TS:        c.clock.Now(),
		Slug:      slug,
		ChapterID: chapter.ID,
		Count:     1,
	})
	return chapter, nil
}

// novelID resolves the id from any cached entry, partial or stale, before
// falling back to a full fetch.
func (c *Cache) novelID(ctx context.Context, slug string) (string, error) {
	if e, ok := c.novels.Peek(slug); ok && e.novel.ID != "" {
		return e.novel.ID, nil
	}
	novel, err := c.FetchNovel(ctx, slug)
	if err != nil {
		return "", err
	}
	return novel.ID, nil
}

func (c *Cache) emitFetch(kind activity.Kind, slug string, start time.Time, err error) {
	evt := activity.Event{
		Kind: kind,
		TS:   c.clock.Now(),
		Slug: slug,
		Dur:  time.Since(start),
	}
	if err != nil {
		evt.Failed = true
		evt.Note = err.Error()
	}
	c.emitter.Emit(evt)
}

// PrefetchNovel loads the novel in the background unless it is fresh or was
// prefetched within the cooldown window.
func (c *Cache) PrefetchNovel(slug string) {
	if slug == "" {
		return
	}
	if e, ok := c.novels.Peek(slug); ok && c.novelFresh(e) {
		metrics.ObservePrefetch("novel", "fresh")
		return
	}
	c.prefetch("novel:"+slug, "novel", func(ctx context.Context) error {
		_, err := c.FetchNovel(ctx, slug)
		return err
	})
}

// PrefetchChapter loads the chapter in the background unless it is fresh or
// was prefetched within the cooldown window.
func (c *Cache) PrefetchChapter(slug string, number int) {
	if slug == "" || number <= 0 {
		return
	}
	key := chapterKey(slug, number)
	if e, ok := c.chapters.Peek(key); ok && c.chapterFresh(e) {
		metrics.ObservePrefetch("chapter", "fresh")
		return
	}
	c.prefetch("chapter:"+key, "chapter", func(ctx context.Context) error {
		_, err := c.FetchChapter(ctx, slug, number)
		return err
	})
}

func (c *Cache) prefetch(guardKey, kind string, fn func(ctx context.Context) error) {
	if c.bgCtx.Err() != nil {
		return
	}
	// In-flight guard never expires; it is replaced by the cooldown once the fetch ends.
	if _, found := c.guards.GetOrSet(guardKey, struct{}{}, ttlcache.WithTTL[string, struct{}](ttlcache.NoTTL)); found {
		metrics.ObservePrefetch(kind, "skipped")
		return
	}
	metrics.ObservePrefetch(kind, "started")
	c.bgWG.Add(1)
	go func() {
		defer c.bgWG.Done()
		defer c.guards.Set(guardKey, struct{}{}, c.cfg.PrefetchCooldown)
		ctx, cancel := context.WithTimeout(c.bgCtx, c.cfg.PrefetchTimeout)
		defer cancel()
		start := time.Now()
		err := fn(ctx)
		evt := activity.Event{
			Kind: activity.KindPrefetch,
			TS:   c.clock.Now(),
			Slug: strings.TrimPrefix(guardKey, kind+":"),
			Dur:  time.Since(start),
		}
		if err != nil {
			evt.Failed = true
			evt.Note = err.Error()
			c.logger.Debug("prefetch failed", zap.String("key", guardKey), zap.Error(err))
		}
		c.emitter.Emit(evt)
	}()
}

// InjectNovel stores a novel obtained elsewhere (for example the home feed) as
// a partial entry. Full entries are never overwritten.
func (c *Cache) InjectNovel(novel library.Novel) {
	if novel.Slug == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.novels.Peek(novel.Slug); ok && !e.partial {
		return
	}
	novel = novel.Clone()
	if novel.Chapters == nil {
		novel.Chapters = []library.ChapterSummary{}
	}
	c.novels.Add(novel.Slug, novelEntry{novel: novel, fetchedAt: c.clock.Now(), partial: true})
}

// GetNovel returns the cached novel without I/O.
func (c *Cache) GetNovel(slug string) (library.Novel, bool) {
	e, ok := c.novels.Peek(slug)
	if !ok {
		return library.Novel{}, false
	}
	return e.novel.Clone(), true
}

// GetChapter returns the cached chapter without I/O.
func (c *Cache) GetChapter(slug string, number int) (library.Chapter, bool) {
	e, ok := c.chapters.Peek(chapterKey(slug, number))
	if !ok {
		return library.Chapter{}, false
	}
	return e.chapter, true
}

// Invalidate drops the novel and every cached chapter of it.
func (c *Cache) Invalidate(slug string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.novels.Remove(slug)
	prefix := slug + "/"
	for _, key := range c.chapters.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.chapters.Remove(key)
		}
	}
}

// Loading reports whether a novel fetch without any cached entry is in flight.
func (c *Cache) Loading() bool {
	return c.loading.Load() > 0
}

// Close cancels background prefetches and waits for them to finish.
func (c *Cache) Close() {
	c.bgCancel()
	c.bgWG.Wait()
}

// Wait blocks until in-flight prefetches finish.
func (c *Cache) Wait() {
	c.bgWG.Wait()
}
