package presets

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/rayin-translation/internal/activity"
	"github.com/JakeFAU/rayin-translation/internal/clock/manual"
	"github.com/JakeFAU/rayin-translation/internal/library"
	"github.com/JakeFAU/rayin-translation/internal/storage/memory"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []activity.Event
}

func (e *recordingEmitter) Emit(evt activity.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
}

func seededStore() *memory.LibraryStore {
	store := memory.NewLibraryStore(nil)
	store.PutPreset(library.Preset{
		ID: "p-default", Name: "Default", IsDefault: true,
		Settings: library.Settings{Model: "", Temperature: 0.5, TopP: 0.9, MaxTokens: 4096},
	})
	store.PutPreset(library.Preset{
		ID: "p-slime", Name: "Slime", NovelID: "n1",
		Settings: library.Settings{Model: "anthropic/claude", Temperature: 0.3, TopP: 1, MaxTokens: 2048, Reasoning: true},
	})
	return store
}

func TestSelect(t *testing.T) {
	t.Parallel()
	list := []library.Preset{
		{ID: "a", Name: "A"},
		{ID: "def", Name: "Default", IsDefault: true},
		{ID: "n", Name: "Novel", NovelID: "n1"},
	}
	tests := []struct {
		name    string
		list    []library.Preset
		novelID string
		wantID  string
		wantOK  bool
	}{
		{name: "novel specific", list: list, novelID: "n1", wantID: "n", wantOK: true},
		{name: "falls back to default", list: list, novelID: "n2", wantID: "def", wantOK: true},
		{name: "no novel", list: list, wantID: "def", wantOK: true},
		{name: "first when no default", list: list[:1], novelID: "n1", wantID: "a", wantOK: true},
		{name: "empty", list: nil, wantOK: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p, ok := Select(tc.list, tc.novelID)
			require.Equal(t, tc.wantOK, ok)
			require.Equal(t, tc.wantID, p.ID)
		})
	}
}

func TestApplyFillsModel(t *testing.T) {
	t.Parallel()
	s := Apply(library.Preset{Settings: library.Settings{Temperature: 1}})
	require.Equal(t, DefaultModel, s.Model)
	require.InDelta(t, 1.0, s.Temperature, 1e-9)
}

func TestResetToDefault(t *testing.T) {
	t.Parallel()
	id, s := ResetToDefault([]library.Preset{{ID: "x"}})
	require.Empty(t, id)
	require.Equal(t, Defaults(), s)

	id, s = ResetToDefault([]library.Preset{{ID: "x"}, {ID: "d", IsDefault: true, Settings: library.Settings{MaxTokens: 10}}})
	require.Equal(t, "d", id)
	require.Equal(t, 10, s.MaxTokens)
	require.Equal(t, DefaultModel, s.Model)
}

func TestValidate(t *testing.T) {
	t.Parallel()
	require.NoError(t, Validate(Defaults()))
	bad := Defaults()
	bad.Temperature = 3
	require.ErrorIs(t, Validate(bad), library.ErrValidation)
	bad = Defaults()
	bad.MaxTokens = 0
	require.ErrorIs(t, Validate(bad), library.ErrValidation)
	bad = Defaults()
	bad.TopK = -1
	require.ErrorIs(t, Validate(bad), library.ErrValidation)
}

func TestLoad(t *testing.T) {
	t.Parallel()
	svc := NewService(seededStore(), nil, nil, zap.NewNop())

	sel, err := svc.Load(context.Background(), "n1")
	require.NoError(t, err)
	require.Len(t, sel.Presets, 2)
	require.Equal(t, "p-default", sel.Presets[0].ID)
	require.Equal(t, "p-slime", sel.ActiveID)
	require.True(t, sel.Settings.Reasoning)

	sel, err = svc.Load(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, "p-default", sel.ActiveID)
	require.Equal(t, DefaultModel, sel.Settings.Model)
}

func TestLoadEmptyUsesDefaults(t *testing.T) {
	t.Parallel()
	svc := NewService(memory.NewLibraryStore(nil), nil, nil, zap.NewNop())
	sel, err := svc.Load(context.Background(), "n1")
	require.NoError(t, err)
	require.Empty(t, sel.ActiveID)
	require.Equal(t, Defaults(), sel.Settings)
	require.Empty(t, sel.Presets)
}

func TestResolve(t *testing.T) {
	t.Parallel()
	svc := NewService(seededStore(), nil, nil, zap.NewNop())
	s, err := svc.Resolve(context.Background(), "p-slime", "")
	require.NoError(t, err)
	require.Equal(t, "anthropic/claude", s.Model)

	s, err = svc.Resolve(context.Background(), "", "")
	require.NoError(t, err)
	require.Equal(t, 4096, s.MaxTokens)

	_, err = svc.Resolve(context.Background(), "missing", "")
	require.ErrorIs(t, err, library.ErrNotFound)
}

func TestSaveUpdatesActive(t *testing.T) {
	t.Parallel()
	store := seededStore()
	emitter := &recordingEmitter{}
	clock := manual.New(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	svc := NewService(store, clock, emitter, zap.NewNop())

	settings := Defaults()
	settings.Temperature = 1.2
	saved, err := svc.Save(context.Background(), settings, "p-slime", "ignored", "n9")
	require.NoError(t, err)
	require.Equal(t, "Slime", saved.Name)
	require.Equal(t, "n1", saved.NovelID)

	got, err := store.GetPreset(context.Background(), "p-slime")
	require.NoError(t, err)
	require.InDelta(t, 1.2, got.Temperature, 1e-9)

	require.Len(t, emitter.events, 1)
	require.Equal(t, activity.KindPresetSaved, emitter.events[0].Kind)
	require.Equal(t, clock.Now(), emitter.events[0].TS)
}

func TestSaveCreates(t *testing.T) {
	t.Parallel()
	store := seededStore()
	svc := NewService(store, nil, nil, zap.NewNop())

	created, err := svc.Save(context.Background(), Defaults(), "", "  Literal  ", "n2")
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.Equal(t, "Literal", created.Name)
	require.Equal(t, "n2", created.NovelID)
	require.False(t, created.IsDefault)

	sel, err := svc.Load(context.Background(), "n2")
	require.NoError(t, err)
	require.Equal(t, created.ID, sel.ActiveID)
}

func TestSaveRejects(t *testing.T) {
	t.Parallel()
	svc := NewService(seededStore(), nil, nil, zap.NewNop())

	_, err := svc.Save(context.Background(), Defaults(), "", "  ", "")
	require.ErrorIs(t, err, library.ErrValidation)

	bad := Defaults()
	bad.TopP = 2
	_, err = svc.Save(context.Background(), bad, "p-slime", "", "")
	require.ErrorIs(t, err, library.ErrValidation)

	_, err = svc.Save(context.Background(), Defaults(), "missing", "", "")
	require.ErrorIs(t, err, library.ErrNotFound)
}

func TestDelete(t *testing.T) {
	t.Parallel()
	store := seededStore()
	svc := NewService(store, nil, nil, zap.NewNop())
	ctx := context.Background()

	err := svc.Delete(ctx, "p-default")
	require.ErrorIs(t, err, library.ErrValidation)
	var verr *library.ValidationError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, "Cannot delete the default preset.", verr.Error())

	require.ErrorIs(t, svc.Delete(ctx, ""), library.ErrValidation)
	require.NoError(t, svc.Delete(ctx, "p-slime"))
	require.ErrorIs(t, svc.Delete(ctx, "p-slime"), library.ErrNotFound)

	list, err := store.ListPresets(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
}
