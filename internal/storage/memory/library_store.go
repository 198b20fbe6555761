package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/rayin-translation/internal/id/uuid"
	"github.com/JakeFAU/rayin-translation/internal/library"
)

// LibraryStore provides an in-memory implementation of the library
// repositories for development/testing.
type LibraryStore struct {
	mu       sync.RWMutex
	ids      library.IDGenerator
	novels   map[string]library.Novel
	chapters map[string]library.Chapter
	profiles map[string]library.Profile
	presets  map[string]library.Preset
}

// NewLibraryStore constructs a LibraryStore. A nil generator falls back to UUIDv7.
func NewLibraryStore(ids library.IDGenerator) *LibraryStore {
	if ids == nil {
		ids = uuid.NewUUIDGenerator()
	}
	return &LibraryStore{
		ids:      ids,
		novels:   make(map[string]library.Novel),
		chapters: make(map[string]library.Chapter),
		profiles: make(map[string]library.Profile),
		presets:  make(map[string]library.Preset),
	}
}

// PutNovel seeds or replaces a novel; its Chapters field is ignored.
func (s *LibraryStore) PutNovel(n library.Novel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n.Chapters = nil
	s.novels[n.ID] = n
}

// PutChapter seeds or replaces a chapter.
func (s *LibraryStore) PutChapter(c library.Chapter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chapters[c.ID] = c
}

// PutProfile seeds or replaces a profile.
func (s *LibraryStore) PutProfile(p library.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.ID] = p
}

// PutPreset seeds or replaces a preset.
func (s *LibraryStore) PutPreset(p library.Preset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presets[p.ID] = p
}

// GetNovelBySlug implements library.NovelRepository.
func (s *LibraryStore) GetNovelBySlug(_ context.Context, slug string) (library.Novel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, n := range s.novels {
		if n.Slug == slug {
			return n, nil
		}
	}
	return library.Novel{}, fmt.Errorf("novel %q: %w", slug, library.ErrNotFound)
}

// ListChapterSummaries implements library.NovelRepository.
func (s *LibraryStore) ListChapterSummaries(_ context.Context, novelID string) ([]library.ChapterSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.summariesLocked(novelID, false), nil
}

// GetChapter implements library.NovelRepository.
func (s *LibraryStore) GetChapter(_ context.Context, novelID string, number int) (library.Chapter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.chapters {
		if c.NovelID == novelID && c.Number == number {
			return c, nil
		}
	}
	return library.Chapter{}, fmt.Errorf("chapter %d: %w", number, library.ErrNotFound)
}

// AddChapterViews implements library.NovelRepository.
func (s *LibraryStore) AddChapterViews(_ context.Context, chapterID string, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chapters[chapterID]
	if !ok {
		return nil
	}
	c.Views += delta
	s.chapters[chapterID] = c
	return nil
}

// Featured implements library.HomeRepository.
func (s *LibraryStore) Featured(_ context.Context, limit int) ([]library.Novel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []library.Novel{}
	for _, n := range s.sortedNovelsLocked(byUpdatedDesc) {
		if n.BannerURL != "" {
			out = append(out, n)
		}
	}
	return truncate(out, limit), nil
}

// Latest implements library.HomeRepository.
func (s *LibraryStore) Latest(_ context.Context, limit, chapterLimit int) ([]library.Novel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	novels := truncate(s.sortedNovelsLocked(byUpdatedDesc), limit)
	for i := range novels {
		novels[i].Chapters = truncate(s.summariesLocked(novels[i].ID, true), chapterLimit)
	}
	return novels, nil
}

// PopularAllTime implements library.HomeRepository.
func (s *LibraryStore) PopularAllTime(_ context.Context, limit int) ([]library.PopularNovel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	novels := s.sortedNovelsLocked(func(a, b library.Novel) bool { return a.CreatedAt.Before(b.CreatedAt) })
	return toPopular(truncate(novels, limit)), nil
}

// PopularSince implements library.HomeRepository.
func (s *LibraryStore) PopularSince(_ context.Context, since time.Time, limit int) ([]library.PopularNovel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []library.Novel{}
	for _, n := range s.sortedNovelsLocked(byUpdatedDesc) {
		if !n.UpdatedAt.Before(since) {
			out = append(out, n)
		}
	}
	return toPopular(truncate(out, limit)), nil
}

// ListNovelRefs implements library.AdminRepository.
func (s *LibraryStore) ListNovelRefs(_ context.Context) ([]library.NovelRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	novels := s.sortedNovelsLocked(func(a, b library.Novel) bool { return a.Title < b.Title })
	out := make([]library.NovelRef, 0, len(novels))
	for _, n := range novels {
		out = append(out, toRef(n))
	}
	return out, nil
}

// GetNovelRefBySlug implements library.AdminRepository.
func (s *LibraryStore) GetNovelRefBySlug(ctx context.Context, slug string) (library.NovelRef, error) {
	n, err := s.GetNovelBySlug(ctx, slug)
	if err != nil {
		return library.NovelRef{}, err
	}
	return toRef(n), nil
}

// GetNovelRefByID implements library.AdminRepository.
func (s *LibraryStore) GetNovelRefByID(_ context.Context, id string) (library.NovelRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.novels[id]
	if !ok {
		return library.NovelRef{}, fmt.Errorf("novel %q: %w", id, library.ErrNotFound)
	}
	return toRef(n), nil
}

// ListChapterRefs implements library.AdminRepository.
func (s *LibraryStore) ListChapterRefs(_ context.Context, novelID string) ([]library.ChapterSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.summariesLocked(novelID, true), nil
}

// GetChapterByID implements library.AdminRepository.
func (s *LibraryStore) GetChapterByID(_ context.Context, id string) (library.Chapter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chapters[id]
	if !ok {
		return library.Chapter{}, fmt.Errorf("chapter %q: %w", id, library.ErrNotFound)
	}
	return c, nil
}

// CreateChapter implements library.AdminRepository.
func (s *LibraryStore) CreateChapter(_ context.Context, in library.ChapterInput, at time.Time) (string, error) {
	id, err := s.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("generate chapter id: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	published := in.PublishedAt
	if published == nil {
		published = &at
	}
	updated := at
	s.chapters[id] = library.Chapter{
		ChapterSummary: library.ChapterSummary{
			ID:          id,
			Number:      in.Number,
			Title:       in.Title,
			PublishedAt: published,
		},
		NovelID:   in.NovelID,
		Content:   in.Content,
		UpdatedAt: &updated,
	}
	if n, ok := s.novels[in.NovelID]; ok {
		n.UpdatedAt = at
		s.novels[in.NovelID] = n
	}
	return id, nil
}

// UpdateChapter implements library.AdminRepository.
func (s *LibraryStore) UpdateChapter(_ context.Context, id string, in library.ChapterInput, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chapters[id]
	if !ok {
		return fmt.Errorf("chapter %q: %w", id, library.ErrNotFound)
	}
	updated := at
	c.NovelID = in.NovelID
	c.Number = in.Number
	c.Title = in.Title
	c.Content = in.Content
	c.UpdatedAt = &updated
	s.chapters[id] = c
	return nil
}

// DeleteChapter implements library.AdminRepository.
func (s *LibraryStore) DeleteChapter(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chapters[id]; !ok {
		return fmt.Errorf("chapter %q: %w", id, library.ErrNotFound)
	}
	delete(s.chapters, id)
	return nil
}

// UpdateNovelImage implements library.AdminRepository.
func (s *LibraryStore) UpdateNovelImage(_ context.Context, novelID, imageURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.novels[novelID]
	if !ok {
		return fmt.Errorf("novel %q: %w", novelID, library.ErrNotFound)
	}
	n.ImageURL = imageURL
	s.novels[novelID] = n
	return nil
}

// GetProfile implements library.ProfileRepository.
func (s *LibraryStore) GetProfile(_ context.Context, userID string) (library.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return library.Profile{}, fmt.Errorf("profile %q: %w", userID, library.ErrNotFound)
	}
	return p, nil
}

// CountProfiles implements library.ProfileRepository.
func (s *LibraryStore) CountProfiles(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.profiles)), nil
}

// ListPresets implements library.PresetRepository.
func (s *LibraryStore) ListPresets(_ context.Context) ([]library.Preset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]library.Preset, 0, len(s.presets))
	for _, p := range s.presets {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsDefault != out[j].IsDefault {
			return out[i].IsDefault
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// GetPreset implements library.PresetRepository.
func (s *LibraryStore) GetPreset(_ context.Context, id string) (library.Preset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.presets[id]
	if !ok {
		return library.Preset{}, fmt.Errorf("preset %q: %w", id, library.ErrNotFound)
	}
	return p, nil
}

// CreatePreset implements library.PresetRepository.
func (s *LibraryStore) CreatePreset(_ context.Context, p library.Preset) (library.Preset, error) {
	id, err := s.ids.NewID()
	if err != nil {
		return library.Preset{}, fmt.Errorf("generate preset id: %w", err)
	}
	p.ID = id
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presets[id] = p
	return p, nil
}

// UpdatePreset implements library.PresetRepository.
func (s *LibraryStore) UpdatePreset(_ context.Context, p library.Preset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.presets[p.ID]
	if !ok {
		return fmt.Errorf("preset %q: %w", p.ID, library.ErrNotFound)
	}
	existing.Settings = p.Settings
	s.presets[p.ID] = existing
	return nil
}

// DeletePreset implements library.PresetRepository.
func (s *LibraryStore) DeletePreset(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.presets[id]; !ok {
		return fmt.Errorf("preset %q: %w", id, library.ErrNotFound)
	}
	delete(s.presets, id)
	return nil
}

func (s *LibraryStore) summariesLocked(novelID string, desc bool) []library.ChapterSummary {
	out := []library.ChapterSummary{}
	for _, c := range s.chapters {
		if c.NovelID == novelID {
			out = append(out, c.ChapterSummary)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if desc {
			return out[i].Number > out[j].Number
		}
		return out[i].Number < out[j].Number
	})
	return out
}

func (s *LibraryStore) sortedNovelsLocked(less func(a, b library.Novel) bool) []library.Novel {
	out := make([]library.Novel, 0, len(s.novels))
	for _, n := range s.novels {
		out = append(out, n)
	}
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func byUpdatedDesc(a, b library.Novel) bool {
	return a.UpdatedAt.After(b.UpdatedAt)
}

func truncate[T any](in []T, limit int) []T {
	if limit >= 0 && len(in) > limit {
		return in[:limit]
	}
	return in
}

func toRef(n library.Novel) library.NovelRef {
	return library.NovelRef{ID: n.ID, Title: n.Title, Slug: n.Slug, Synopsis: n.Synopsis}
}

func toPopular(novels []library.Novel) []library.PopularNovel {
	out := make([]library.PopularNovel, 0, len(novels))
	for _, n := range novels {
		out = append(out, library.PopularNovel{
			ID:       n.ID,
			Title:    n.Title,
			Slug:     n.Slug,
			ImageURL: n.ImageURL,
			Author:   n.Author,
		})
	}
	return out
}
