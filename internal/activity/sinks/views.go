package sinks

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/rayin-translation/internal/activity"
)

// ViewCounter applies view deltas to persistent chapter rows.
type ViewCounter interface {
	AddChapterViews(ctx context.Context, chapterID string, delta int64) error
}

// ViewSink collapses CHAPTER_VIEW events per chapter and writes one increment
// per chapter per batch.
type ViewSink struct {
	repo   ViewCounter
	logger *zap.Logger
}

// NewViewSink constructs a ViewSink for the provided repository.
func NewViewSink(repo ViewCounter, logger *zap.Logger) *ViewSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ViewSink{repo: repo, logger: logger}
}

// Consume forwards the collapsed deltas. Every chapter is attempted; failures
// are joined into the returned error.
func (s *ViewSink) Consume(ctx context.Context, batch []activity.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	deltas := make(map[string]int64)
	order := make([]string, 0)
	for _, evt := range batch {
		if evt.Kind != activity.KindChapterView || evt.ChapterID == "" || evt.Count <= 0 {
			continue
		}
		if _, ok := deltas[evt.ChapterID]; !ok {
			order = append(order, evt.ChapterID)
		}
		deltas[evt.ChapterID] += evt.Count
	}

	var errs []error
	for _, id := range order {
		if err := s.repo.AddChapterViews(ctx, id, deltas[id]); err != nil {
			s.logger.Warn("chapter view increment failed",
				zap.String("chapter_id", id),
				zap.Int64("delta", deltas[id]),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("add views %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// Close implements the Sink interface; it performs no action.
func (s *ViewSink) Close(context.Context) error {
	return nil
}
