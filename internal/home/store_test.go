package home

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/rayin-translation/internal/clock/manual"
	"github.com/JakeFAU/rayin-translation/internal/library"
	"github.com/JakeFAU/rayin-translation/internal/storage/memory"
)

type flakyRepo struct {
	*memory.LibraryStore
	calls        atomic.Int32
	failLatest   atomic.Bool
	failWeekly   atomic.Bool
	emptyFeature atomic.Bool
	emptyLatest  atomic.Bool
}

func (r *flakyRepo) Featured(ctx context.Context, limit int) ([]library.Novel, error) {
	r.calls.Add(1)
	if r.emptyFeature.Load() {
		return []library.Novel{}, nil
	}
	return r.LibraryStore.Featured(ctx, limit)
}

func (r *flakyRepo) Latest(ctx context.Context, limit, chapterLimit int) ([]library.Novel, error) {
	if r.failLatest.Load() {
		return nil, errors.New("latest down")
	}
	if r.emptyLatest.Load() {
		return nil, nil
	}
	return r.LibraryStore.Latest(ctx, limit, chapterLimit)
}

func (r *flakyRepo) PopularSince(ctx context.Context, since time.Time, limit int) ([]library.PopularNovel, error) {
	if r.failWeekly.Load() && time.Since(since) < 8*24*time.Hour {
		return nil, errors.New("weekly down")
	}
	return r.LibraryStore.PopularSince(ctx, since, limit)
}

type injectRecorder struct {
	mu     sync.Mutex
	novels []library.Novel
}

func (i *injectRecorder) InjectNovel(n library.Novel) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.novels = append(i.novels, n)
}

func seed(t *testing.T) (*flakyRepo, *manual.Clock) {
	t.Helper()
	now := time.Now().UTC()
	store := memory.NewLibraryStore(nil)
	store.PutNovel(library.Novel{
		ID: "n1", Slug: "slime", Title: "Slime", BannerURL: "https://cdn/banner.png",
		CreatedAt: now.AddDate(-1, 0, 0), UpdatedAt: now.Add(-time.Hour),
	})
	store.PutNovel(library.Novel{
		ID: "n2", Slug: "mage", Title: "Mage",
		CreatedAt: now.AddDate(0, -2, 0), UpdatedAt: now.AddDate(0, 0, -20),
	})
	for i := 1; i <= 5; i++ {
		store.PutChapter(library.Chapter{
			ChapterSummary: library.ChapterSummary{ID: "c" + string(rune('0'+i)), Number: i},
			NovelID:        "n1",
		})
	}
	return &flakyRepo{LibraryStore: store}, manual.New(now)
}

func TestFetchLoadsAllSections(t *testing.T) {
	t.Parallel()
	repo, clock := seed(t)
	inject := &injectRecorder{}
	store := New(repo, inject, clock, nil, zap.NewNop(), Config{})

	require.NoError(t, store.Fetch(context.Background(), false))
	snap := store.Snapshot()
	require.True(t, snap.Ready)
	require.False(t, snap.Loading)
	require.Empty(t, snap.Error)
	require.Len(t, snap.Featured, 1)
	require.Len(t, snap.Latest, 2)
	require.Equal(t, "slime", snap.Latest[0].Slug)
	require.Equal(t, []int{5, 4, 3}, numbers(snap.Latest[0].Chapters))
	require.Len(t, snap.Popular.AllTime, 2)
	require.Equal(t, "slime", snap.Popular.AllTime[0].Slug)
	require.Len(t, snap.Popular.Weekly, 1)
	require.Len(t, snap.Popular.Monthly, 2)

	require.Len(t, inject.novels, 3)
	for _, n := range inject.novels {
		require.Nil(t, n.Chapters)
	}
}

func TestFetchSkipsWhenFresh(t *testing.T) {
	t.Parallel()
	repo, clock := seed(t)
	store := New(repo, nil, clock, nil, zap.NewNop(), Config{})
	ctx := context.Background()

	require.NoError(t, store.Fetch(ctx, false))
	clock.Advance(4 * time.Minute)
	require.NoError(t, store.Fetch(ctx, false))
	require.Equal(t, int32(1), repo.calls.Load())

	require.NoError(t, store.Fetch(ctx, true))
	require.Equal(t, int32(2), repo.calls.Load())

	clock.Advance(6 * time.Minute)
	require.NoError(t, store.Fetch(ctx, false))
	require.Equal(t, int32(3), repo.calls.Load())
}

func TestFetchKeepsPreviousSectionsOnFailure(t *testing.T) {
	t.Parallel()
	repo, clock := seed(t)
	store := New(repo, nil, clock, nil, zap.NewNop(), Config{})
	ctx := context.Background()

	require.NoError(t, store.Fetch(ctx, false))
	before := store.Snapshot()

	repo.failLatest.Store(true)
	repo.failWeekly.Store(true)
	repo.emptyFeature.Store(true)
	err := store.Fetch(ctx, true)
	require.Error(t, err)
	require.Contains(t, err.Error(), "latest")
	require.Contains(t, err.Error(), "popular weekly")

	after := store.Snapshot()
	require.True(t, after.Ready)
	require.NotEmpty(t, after.Error)
	require.Equal(t, before.Latest, after.Latest)
	require.Equal(t, before.Featured, after.Featured)
	require.Equal(t, before.Popular.Weekly, after.Popular.Weekly)
	require.Equal(t, before.Popular.Monthly, after.Popular.Monthly)
}

func TestFetchReplacesLatestWithEmptyResult(t *testing.T) {
	t.Parallel()
	repo, clock := seed(t)
	store := New(repo, nil, clock, nil, zap.NewNop(), Config{})
	ctx := context.Background()

	require.NoError(t, store.Fetch(ctx, false))
	require.NotEmpty(t, store.Snapshot().Latest)

	repo.emptyLatest.Store(true)
	require.NoError(t, store.Fetch(ctx, true))
	latest := store.Snapshot().Latest
	require.NotNil(t, latest)
	require.Empty(t, latest)
}

func TestSnapshotIsACopy(t *testing.T) {
	t.Parallel()
	repo, clock := seed(t)
	store := New(repo, nil, clock, nil, zap.NewNop(), Config{})
	require.NoError(t, store.Fetch(context.Background(), false))

	snap := store.Snapshot()
	snap.Latest[0].Chapters[0].Title = "mutated"
	require.NotEqual(t, "mutated", store.Snapshot().Latest[0].Chapters[0].Title)
}

func TestTopChapters(t *testing.T) {
	t.Parallel()
	in := []library.ChapterSummary{{Number: 2}, {Number: 9}, {Number: 4}, {Number: 7}}
	require.Equal(t, []int{9, 7, 4}, numbers(topChapters(in, 3)))
	require.Empty(t, topChapters(nil, 3))
}

func numbers(in []library.ChapterSummary) []int {
	out := make([]int, 0, len(in))
	for _, c := range in {
		out = append(out, c.Number)
	}
	return out
}
