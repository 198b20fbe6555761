package library

import (
	"context"
	"io"
	"time"
)

// NovelRepository loads reader-facing novel and chapter data.
type NovelRepository interface {
	// GetNovelBySlug returns ErrNotFound when no novel has the slug.
	GetNovelBySlug(ctx context.Context, slug string) (Novel, error)
	// ListChapterSummaries returns chapters ordered by ascending number.
	ListChapterSummaries(ctx context.Context, novelID string) ([]ChapterSummary, error)
	// GetChapter returns ErrNotFound when the novel has no such chapter.
	GetChapter(ctx context.Context, novelID string, number int) (Chapter, error)
	// AddChapterViews increments the view counter by delta.
	AddChapterViews(ctx context.Context, chapterID string, delta int64) error
}

// HomeRepository loads the home page sections.
type HomeRepository interface {
	Featured(ctx context.Context, limit int) ([]Novel, error)
	// Latest returns recently updated novels, each carrying at most chapterLimit
	// chapters ordered by descending number.
	Latest(ctx context.Context, limit, chapterLimit int) ([]Novel, error)
	PopularAllTime(ctx context.Context, limit int) ([]PopularNovel, error)
	PopularSince(ctx context.Context, since time.Time, limit int) ([]PopularNovel, error)
}

// AdminRepository backs the chapter editor.
type AdminRepository interface {
	ListNovelRefs(ctx context.Context) ([]NovelRef, error)
	GetNovelRefBySlug(ctx context.Context, slug string) (NovelRef, error)
	GetNovelRefByID(ctx context.Context, id string) (NovelRef, error)
	// ListChapterRefs returns chapters ordered by descending number.
	ListChapterRefs(ctx context.Context, novelID string) ([]ChapterSummary, error)
	GetChapterByID(ctx context.Context, id string) (Chapter, error)
	CreateChapter(ctx context.Context, in ChapterInput, at time.Time) (string, error)
	UpdateChapter(ctx context.Context, id string, in ChapterInput, at time.Time) error
	DeleteChapter(ctx context.Context, id string) error
	UpdateNovelImage(ctx context.Context, novelID, imageURL string) error
}

// ProfileRepository reads user profiles.
type ProfileRepository interface {
	GetProfile(ctx context.Context, userID string) (Profile, error)
	CountProfiles(ctx context.Context) (int64, error)
}

// PresetRepository persists translation presets.
type PresetRepository interface {
	// ListPresets orders defaults first, then by name.
	ListPresets(ctx context.Context) ([]Preset, error)
	GetPreset(ctx context.Context, id string) (Preset, error)
	CreatePreset(ctx context.Context, p Preset) (Preset, error)
	UpdatePreset(ctx context.Context, p Preset) error
	DeletePreset(ctx context.Context, id string) error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces unique identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Publisher sends notifications to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// BlobStore persists binary objects and returns their public URL.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Hasher hashes content for object naming.
type Hasher interface {
	Hash(data []byte) (string, error)
}
