// Package presets manages the named translation settings used by the admin
// translator.
package presets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/rayin-translation/internal/activity"
	"github.com/JakeFAU/rayin-translation/internal/library"
	"github.com/JakeFAU/rayin-translation/internal/logging"
)

// DefaultModel is used when a preset does not name a model.
const DefaultModel = "openrouter/pony-alpha"

// Defaults returns the built-in settings.
func Defaults() library.Settings {
	return library.Settings{
		Model:       DefaultModel,
		Temperature: 0.7,
		TopP:        1.0,
		TopK:        0,
		MaxTokens:   8192,
		Reasoning:   false,
	}
}

// Apply extracts the settings of a preset, filling in the default model.
func Apply(p library.Preset) library.Settings {
	s := p.Settings
	if strings.TrimSpace(s.Model) == "" {
		s.Model = DefaultModel
	}
	return s
}

// Validate checks sampling settings are within the ranges the completion API accepts.
func Validate(s library.Settings) error {
	switch {
	case s.Temperature < 0 || s.Temperature > 2:
		return library.Invalid("temperature must be between 0 and 2")
	case s.TopP < 0 || s.TopP > 1:
		return library.Invalid("top_p must be between 0 and 1")
	case s.TopK < 0:
		return library.Invalid("top_k must not be negative")
	case s.MaxTokens <= 0:
		return library.Invalid("max_tokens must be positive")
	}
	return nil
}

// Select picks the preset for a novel: its own preset, else the default,
// else the first. ok is false when the list is empty.
func Select(list []library.Preset, novelID string) (library.Preset, bool) {
	if len(list) == 0 {
		return library.Preset{}, false
	}
	if novelID != "" {
		for _, p := range list {
			if p.NovelID == novelID {
				return p, true
			}
		}
	}
	for _, p := range list {
		if p.IsDefault {
			return p, true
		}
	}
	return list[0], true
}

// ResetToDefault returns the default preset's id and settings, or the
// built-in settings with an empty id when no preset is marked default.
func ResetToDefault(list []library.Preset) (string, library.Settings) {
	for _, p := range list {
		if p.IsDefault {
			return p.ID, Apply(p)
		}
	}
	return "", Defaults()
}

// Selection is the preset list with the active choice applied.
type Selection struct {
	Presets  []library.Preset `json:"presets"`
	ActiveID string           `json:"active_id,omitempty"`
	Settings library.Settings `json:"settings"`
}

// Service persists presets.
type Service struct {
	repo    library.PresetRepository
	clock   library.Clock
	emitter activity.Emitter
	logger  *zap.Logger
}

// NewService builds a Service.
func NewService(repo library.PresetRepository, clock library.Clock, emitter activity.Emitter, logger *zap.Logger) *Service {
	if emitter == nil {
		emitter = activity.Nop{}
	}
	return &Service{
		repo:    repo,
		clock:   clock,
		emitter: emitter,
		logger:  logging.For(logger, logging.CategoryPreset),
	}
}

// Load lists presets and selects the active one for novelID.
func (s *Service) Load(ctx context.Context, novelID string) (Selection, error) {
	list, err := s.repo.ListPresets(ctx)
	if err != nil {
		return Selection{}, fmt.Errorf("list presets: %w", err)
	}
	sel := Selection{Presets: list, Settings: Defaults()}
	if p, ok := Select(list, novelID); ok {
		sel.ActiveID = p.ID
		sel.Settings = Apply(p)
	}
	s.logger.Debug("presets loaded", zap.Int("count", len(list)), zap.String("active", sel.ActiveID))
	return sel, nil
}

// Resolve returns the settings for presetID, or the selection for novelID
// when presetID is empty.
func (s *Service) Resolve(ctx context.Context, presetID, novelID string) (library.Settings, error) {
	if presetID != "" {
		p, err := s.repo.GetPreset(ctx, presetID)
		if err != nil {
			return library.Settings{}, fmt.Errorf("get preset: %w", err)
		}
		return Apply(p), nil
	}
	sel, err := s.Load(ctx, novelID)
	if err != nil {
		return library.Settings{}, err
	}
	return sel.Settings, nil
}

// Save updates the active preset, or creates a new one named name when
// activeID is empty. New presets are scoped to novelID when it is set.
func (s *Service) Save(ctx context.Context, settings library.Settings, activeID, name, novelID string) (library.Preset, error) {
	if err := Validate(settings); err != nil {
		return library.Preset{}, err
	}
	if activeID != "" {
		existing, err := s.repo.GetPreset(ctx, activeID)
		if err != nil {
			return library.Preset{}, fmt.Errorf("get preset: %w", err)
		}
		existing.Settings = settings
		if err := s.repo.UpdatePreset(ctx, existing); err != nil {
			return library.Preset{}, fmt.Errorf("update preset: %w", err)
		}
		s.saved(existing)
		return existing, nil
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return library.Preset{}, library.Invalid("preset name is required")
	}
	created, err := s.repo.CreatePreset(ctx, library.Preset{
		Name:     name,
		NovelID:  novelID,
		Settings: settings,
	})
	if err != nil {
		return library.Preset{}, fmt.Errorf("create preset: %w", err)
	}
	s.saved(created)
	return created, nil
}

func (s *Service) saved(p library.Preset) {
	s.logger.Info("preset saved", zap.String("id", p.ID), zap.String("name", p.Name))
	s.emitter.Emit(activity.Event{Kind: activity.KindPresetSaved, TS: s.now(), Note: p.Name})
}

// Delete removes a preset. The default preset cannot be deleted.
func (s *Service) Delete(ctx context.Context, id string) error {
	if id == "" {
		return library.Invalid("no preset selected")
	}
	p, err := s.repo.GetPreset(ctx, id)
	if err != nil {
		return fmt.Errorf("get preset: %w", err)
	}
	if p.IsDefault {
		return library.Invalid("Cannot delete the default preset.")
	}
	if err := s.repo.DeletePreset(ctx, id); err != nil {
		if errors.Is(err, library.ErrNotFound) {
			return err
		}
		return fmt.Errorf("delete preset: %w", err)
	}
	s.logger.Info("preset deleted", zap.String("id", id), zap.String("name", p.Name))
	return nil
}

func (s *Service) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock.Now()
}
