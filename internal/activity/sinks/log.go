package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/rayin-translation/internal/activity"
	"github.com/JakeFAU/rayin-translation/internal/logging"
)

// LogSink writes one debug line per event under the event's category logger.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []activity.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("kind", string(evt.Kind)),
			zap.Time("ts", evt.TS),
		}
		if evt.Slug != "" {
			fields = append(fields, zap.String("slug", evt.Slug))
		}
		if evt.ChapterID != "" {
			fields = append(fields, zap.String("chapter_id", evt.ChapterID))
		}
		if evt.Count != 0 {
			fields = append(fields, zap.Int64("count", evt.Count))
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		logger := logging.For(s.logger, evt.CategoryOrDefault())
		if evt.Failed {
			logger.Warn("activity", fields...)
			continue
		}
		logger.Debug("activity", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
