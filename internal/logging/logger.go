// Package logging provides zap logger helpers.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category groups log lines by the area of the product that produced them.
type Category string

// Supported log categories.
const (
	CategoryTranslation Category = "TRANSLATION"
	CategoryPreset      Category = "PRESET"
	CategoryNovel       Category = "NOVEL"
	CategoryChapter     Category = "CHAPTER"
	CategoryFetch       Category = "FETCH"
	CategorySystem      Category = "SYSTEM"
	CategoryAuth        Category = "AUTH"
	CategoryPreview     Category = "PREVIEW"
)

// New builds a zap.Logger configured for development or production.
// Debug lowers the production level so category debug lines are emitted.
func New(development, debug bool) (*zap.Logger, error) {
	if development {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		logger, err := cfg.Build()
		if err != nil {
			return nil, fmt.Errorf("build dev logger: %w", err)
		}
		return logger, nil
	}
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = false
	cfg.EncoderConfig.TimeKey = "ts"
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build prod logger: %w", err)
	}
	return logger, nil
}

// For returns a child logger tagged with the category.
func For(logger *zap.Logger, cat Category) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return logger.Named(strings.ToLower(string(cat))).With(zap.String("category", string(cat)))
}
