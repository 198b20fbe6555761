// Package admin implements the chapter editor backend used by superadmins.
package admin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/rayin-translation/internal/activity"
	"github.com/JakeFAU/rayin-translation/internal/library"
	"github.com/JakeFAU/rayin-translation/internal/logging"
)

// EventChapterPublished is published when a new chapter is created.
const EventChapterPublished = "chapter.published"

// Invalidator drops cached reader data for a novel.
type Invalidator interface {
	Invalidate(slug string)
}

// Config tunes the Service.
type Config struct {
	// CoverPrefix is the object path prefix for uploaded covers.
	CoverPrefix string
	// MaxCoverBytes bounds uploaded cover size.
	MaxCoverBytes int64
}

// Deps groups the Service collaborators.
type Deps struct {
	Repo      library.AdminRepository
	Blobs     library.BlobStore
	Hasher    library.Hasher
	Publisher library.Publisher
	Cache     Invalidator
	Clock     library.Clock
	Emitter   activity.Emitter
	Logger    *zap.Logger
}

// Service loads and edits chapters.
type Service struct {
	repo      library.AdminRepository
	blobs     library.BlobStore
	hasher    library.Hasher
	publisher library.Publisher
	cache     Invalidator
	clock     library.Clock
	emitter   activity.Emitter
	logger    *zap.Logger
	cfg       Config
}

// New builds a Service. Publisher, Cache and Emitter are optional.
func New(d Deps, cfg Config) (*Service, error) {
	if d.Repo == nil {
		return nil, errors.New("admin repository is required")
	}
	if d.Clock == nil {
		return nil, errors.New("clock is required")
	}
	if cfg.CoverPrefix == "" {
		cfg.CoverPrefix = "covers"
	}
	if cfg.MaxCoverBytes <= 0 {
		cfg.MaxCoverBytes = 10 << 20
	}
	if d.Emitter == nil {
		d.Emitter = activity.Nop{}
	}
	return &Service{
		repo:      d.Repo,
		blobs:     d.Blobs,
		hasher:    d.Hasher,
		publisher: d.Publisher,
		cache:     d.Cache,
		clock:     d.Clock,
		emitter:   d.Emitter,
		logger:    logging.For(d.Logger, logging.CategoryChapter),
		cfg:       cfg,
	}, nil
}

// NovelView is a novel with its chapter list, newest first.
type NovelView struct {
	Novel    library.NovelRef         `json:"novel"`
	Chapters []library.ChapterSummary `json:"chapters"`
	// NextChapterNumber is the suggested number for a new chapter.
	NextChapterNumber int `json:"next_chapter_number"`
}

// ChapterView is a chapter together with its novel and sibling chapters.
type ChapterView struct {
	Chapter  library.Chapter          `json:"chapter"`
	Novel    library.NovelRef         `json:"novel"`
	Chapters []library.ChapterSummary `json:"chapters"`
}

// Form is the editable chapter payload.
type Form struct {
	NovelID     string     `json:"novel_id"`
	Number      int        `json:"chapter_number"`
	Title       string     `json:"title"`
	Content     string     `json:"content"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// SaveResult tells the caller where to go after saving.
type SaveResult struct {
	ChapterID string `json:"chapter_id"`
	Slug      string `json:"slug"`
	Created   bool   `json:"created"`
}

// ChapterPublished is the payload of EventChapterPublished.
type ChapterPublished struct {
	ChapterID string    `json:"chapter_id"`
	NovelID   string    `json:"novel_id"`
	Slug      string    `json:"slug"`
	Number    int       `json:"chapter_number"`
	Title     string    `json:"title"`
	At        time.Time `json:"at"`
}

// LoadNovels lists every novel ordered by title.
func (s *Service) LoadNovels(ctx context.Context) ([]library.NovelRef, error) {
	refs, err := s.repo.ListNovelRefs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list novels: %w", err)
	}
	return refs, nil
}

// LoadNovelBySlug returns the novel, its chapters and the next chapter number.
func (s *Service) LoadNovelBySlug(ctx context.Context, slug string) (NovelView, error) {
	ref, err := s.repo.GetNovelRefBySlug(ctx, slug)
	if err != nil {
		return NovelView{}, fmt.Errorf("get novel %q: %w", slug, err)
	}
	chapters, err := s.repo.ListChapterRefs(ctx, ref.ID)
	if err != nil {
		return NovelView{}, fmt.Errorf("list chapters: %w", err)
	}
	return NovelView{Novel: ref, Chapters: chapters, NextChapterNumber: nextNumber(chapters)}, nil
}

// nextNumber expects chapters ordered by descending number.
func nextNumber(chapters []library.ChapterSummary) int {
	if len(chapters) == 0 {
		return 1
	}
	return chapters[0].Number + 1
}

// LoadChapter returns a chapter with its novel and the novel's chapters.
func (s *Service) LoadChapter(ctx context.Context, chapterID string) (ChapterView, error) {
	ch, err := s.repo.GetChapterByID(ctx, chapterID)
	if err != nil {
		return ChapterView{}, fmt.Errorf("get chapter: %w", err)
	}
	ref, err := s.repo.GetNovelRefByID(ctx, ch.NovelID)
	if err != nil {
		return ChapterView{}, fmt.Errorf("get novel: %w", err)
	}
	chapters, err := s.repo.ListChapterRefs(ctx, ref.ID)
	if err != nil {
		return ChapterView{}, fmt.Errorf("list chapters: %w", err)
	}
	return ChapterView{Chapter: ch, Novel: ref, Chapters: chapters}, nil
}

// Save creates a chapter, or updates chapterID when it is set.
func (s *Service) Save(ctx context.Context, form Form, chapterID string) (SaveResult, error) {
	if strings.TrimSpace(form.NovelID) == "" {
		return SaveResult{}, library.Invalid("Please select a novel first.")
	}
	if form.Number < 1 {
		return SaveResult{}, library.Invalid("Chapter number must be at least 1.")
	}
	ref, err := s.repo.GetNovelRefByID(ctx, form.NovelID)
	if err != nil {
		if errors.Is(err, library.ErrNotFound) {
			return SaveResult{}, library.Invalid("Please select a novel first.")
		}
		return SaveResult{}, fmt.Errorf("get novel: %w", err)
	}

	in := library.ChapterInput{
		NovelID:     ref.ID,
		Number:      form.Number,
		Title:       strings.TrimSpace(form.Title),
		Content:     form.Content,
		PublishedAt: form.PublishedAt,
	}
	at := s.clock.Now()
	res := SaveResult{Slug: ref.Slug}

	if chapterID != "" {
		existing, err := s.repo.GetChapterByID(ctx, chapterID)
		if err != nil {
			return SaveResult{}, fmt.Errorf("get chapter: %w", err)
		}
		if err := s.repo.UpdateChapter(ctx, chapterID, in, at); err != nil {
			return SaveResult{}, fmt.Errorf("update chapter: %w", err)
		}
		res.ChapterID = chapterID
		if existing.NovelID != ref.ID {
			s.invalidateByID(ctx, existing.NovelID)
		}
	} else {
		id, err := s.repo.CreateChapter(ctx, in, at)
		if err != nil {
			return SaveResult{}, fmt.Errorf("create chapter: %w", err)
		}
		res.ChapterID = id
		res.Created = true
	}
	s.invalidate(ref.Slug)

	if res.Created {
		s.publish(ctx, ChapterPublished{
			ChapterID: res.ChapterID,
			NovelID:   ref.ID,
			Slug:      ref.Slug,
			Number:    in.Number,
			Title:     in.Title,
			At:        at,
		})
	}
	s.logger.Info("chapter saved",
		zap.String("slug", ref.Slug),
		zap.String("chapter_id", res.ChapterID),
		zap.Int("number", in.Number),
		zap.Bool("created", res.Created),
	)
	s.emitter.Emit(activity.Event{Kind: activity.KindChapterSaved, TS: at, Slug: ref.Slug, ChapterID: res.ChapterID})
	return res, nil
}

// Delete removes a chapter and returns its novel's slug.
func (s *Service) Delete(ctx context.Context, chapterID string) (string, error) {
	ch, err := s.repo.GetChapterByID(ctx, chapterID)
	if err != nil {
		return "", fmt.Errorf("get chapter: %w", err)
	}
	if err := s.repo.DeleteChapter(ctx, chapterID); err != nil {
		return "", fmt.Errorf("delete chapter: %w", err)
	}
	slug := s.invalidateByID(ctx, ch.NovelID)
	s.logger.Info("chapter deleted", zap.String("slug", slug), zap.String("chapter_id", chapterID))
	s.emitter.Emit(activity.Event{Kind: activity.KindChapterDeleted, TS: s.clock.Now(), Slug: slug, ChapterID: chapterID})
	return slug, nil
}

var coverExtensions = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
	"image/gif":  "gif",
	"image/avif": "avif",
}

// UploadCover stores a cover image under a content-addressed path and points
// the novel at it. It returns the public URL.
func (s *Service) UploadCover(ctx context.Context, slug, contentType string, r io.Reader) (string, error) {
	if s.blobs == nil || s.hasher == nil {
		return "", errors.New("cover storage is not configured")
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", library.Invalid("invalid content type %q", contentType)
	}
	ext, ok := coverExtensions[mediaType]
	if !ok {
		return "", library.Invalid("unsupported cover type %q", mediaType)
	}
	ref, err := s.repo.GetNovelRefBySlug(ctx, slug)
	if err != nil {
		return "", fmt.Errorf("get novel %q: %w", slug, err)
	}

	data, err := io.ReadAll(io.LimitReader(r, s.cfg.MaxCoverBytes+1))
	if err != nil {
		return "", fmt.Errorf("read cover: %w", err)
	}
	if int64(len(data)) > s.cfg.MaxCoverBytes {
		return "", library.Invalid("cover exceeds %d bytes", s.cfg.MaxCoverBytes)
	}
	if len(data) == 0 {
		return "", library.Invalid("cover is empty")
	}
	digest, err := s.hasher.Hash(data)
	if err != nil {
		return "", fmt.Errorf("hash cover: %w", err)
	}

	path := fmt.Sprintf("%s/%s/%s.%s", s.cfg.CoverPrefix, ref.Slug, digest, ext)
	url, err := s.blobs.PutObject(ctx, path, mediaType, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("store cover: %w", err)
	}
	if err := s.repo.UpdateNovelImage(ctx, ref.ID, url); err != nil {
		return "", fmt.Errorf("update novel image: %w", err)
	}
	s.invalidate(ref.Slug)
	s.logger.Info("cover uploaded", zap.String("slug", ref.Slug), zap.String("path", path), zap.Int("bytes", len(data)))
	s.emitter.Emit(activity.Event{Kind: activity.KindCoverUploaded, TS: s.clock.Now(), Slug: ref.Slug, Note: path})
	return url, nil
}

func (s *Service) invalidate(slug string) {
	if s.cache != nil && slug != "" {
		s.cache.Invalidate(slug)
	}
}

func (s *Service) invalidateByID(ctx context.Context, novelID string) string {
	ref, err := s.repo.GetNovelRefByID(ctx, novelID)
	if err != nil {
		s.logger.Warn("novel lookup for cache invalidation failed", zap.String("novel_id", novelID), zap.Error(err))
		return ""
	}
	s.invalidate(ref.Slug)
	return ref.Slug
}

func (s *Service) publish(ctx context.Context, msg ChapterPublished) {
	if s.publisher == nil {
		return
	}
	id, err := s.publisher.Publish(ctx, EventChapterPublished, msg)
	if err != nil {
		s.logger.Warn("chapter notification failed", zap.String("chapter_id", msg.ChapterID), zap.Error(err))
		return
	}
	s.logger.Debug("chapter notification published", zap.String("message_id", id))
}
