// Package activity defines the events reader and admin components emit, and a
// non-blocking hub that batches them on a background goroutine before fanning
// them out to sinks such as structured logs, Prometheus or the view counter.
package activity

import (
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/rayin-translation/internal/logging"
)

// Kind denotes what happened.
type Kind string

// Supported activity kinds.
const (
	KindChapterView    Kind = "CHAPTER_VIEW"
	KindNovelFetch     Kind = "NOVEL_FETCH"
	KindChapterFetch   Kind = "CHAPTER_FETCH"
	KindHomeFetch      Kind = "HOME_FETCH"
	KindPrefetch       Kind = "PREFETCH"
	KindTranslation    Kind = "TRANSLATION"
	KindPresetSaved    Kind = "PRESET_SAVED"
	KindChapterSaved   Kind = "CHAPTER_SAVED"
	KindChapterDeleted Kind = "CHAPTER_DELETED"
	KindCoverUploaded  Kind = "COVER_UPLOADED"
	KindAuth           Kind = "AUTH"
	KindBotPreview     Kind = "BOT_PREVIEW"
)

// Event is a single activity record.
type Event struct {
	// Kind says what happened.
	Kind Kind
	// Category is the log category the event belongs to.
	Category logging.Category
	// TS is the timestamp recorded by the emitter.
	TS time.Time
	// Slug optionally scopes the event to a novel.
	Slug string
	// ChapterID identifies the chapter for view and save events.
	ChapterID string
	// Count is the view delta for CHAPTER_VIEW and a token count for TRANSLATION.
	Count int64
	// Dur captures latency for fetches and translations.
	Dur time.Duration
	// Failed marks events describing an unsuccessful operation.
	Failed bool
	// Note carries low-volume context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Kind {
	case KindChapterView:
		if e.ChapterID == "" {
			return errors.New("chapter view requires chapter id")
		}
		if e.Count <= 0 {
			return errors.New("chapter view requires a positive count")
		}
	case KindNovelFetch, KindChapterFetch, KindHomeFetch, KindPrefetch, KindTranslation,
		KindPresetSaved, KindChapterSaved, KindChapterDeleted, KindCoverUploaded, KindAuth, KindBotPreview:
	default:
		return fmt.Errorf("unknown kind %q", e.Kind)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// CategoryOrDefault returns the event's category, deriving one from Kind when unset.
func (e Event) CategoryOrDefault() logging.Category {
	if e.Category != "" {
		return e.Category
	}
	switch e.Kind {
	case KindChapterView, KindChapterFetch, KindChapterSaved, KindChapterDeleted:
		return logging.CategoryChapter
	case KindNovelFetch, KindCoverUploaded:
		return logging.CategoryNovel
	case KindHomeFetch, KindPrefetch:
		return logging.CategoryFetch
	case KindTranslation:
		return logging.CategoryTranslation
	case KindPresetSaved:
		return logging.CategoryPreset
	case KindAuth:
		return logging.CategoryAuth
	case KindBotPreview:
		return logging.CategoryPreview
	default:
		return logging.CategorySystem
	}
}
