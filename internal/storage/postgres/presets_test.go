package postgres

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/rayin-translation/internal/library"
)

var presetCols = []string{
	"id", "name", "novel_id", "is_default", "model", "temperature", "top_p", "top_k", "max_tokens", "reasoning",
	"system_prompt",
}

func TestListPresetsDefaultFirst(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery(`FROM translation_settings ORDER BY is_default DESC, name ASC`).
		WillReturnRows(pgxmock.NewRows(presetCols).
			AddRow("p1", "Default", "", true, "openrouter/pony-alpha", 0.7, 1.0, 0, 8192, false, "").
			AddRow("p2", "Slime", "n1", false, "m", 0.3, 0.9, 40, 4096, true, "be terse"))

	presets, err := store.ListPresets(context.Background())
	require.NoError(t, err)
	require.Len(t, presets, 2)
	require.True(t, presets[0].IsDefault)
	require.Equal(t, "n1", presets[1].NovelID)
	require.Equal(t, 40, presets[1].TopK)
	require.True(t, presets[1].Reasoning)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePresetReturnsID(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	p := library.Preset{
		Name:    "Slime",
		NovelID: "n1",
		Settings: library.Settings{
			Model: "m", Temperature: 0.5, TopP: 1, TopK: 0, MaxTokens: 8192,
		},
	}
	mock.ExpectQuery(`INSERT INTO translation_settings`).
		WithArgs("Slime", "n1", false, "m", 0.5, 1.0, 0, 8192, false, "").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("p9"))

	created, err := store.CreatePreset(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, "p9", created.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateAndDeletePreset(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	p := library.Preset{ID: "p1", Settings: library.Settings{Model: "m", Temperature: 0.2, TopP: 0.8, MaxTokens: 100}}
	mock.ExpectExec(`UPDATE translation_settings`).
		WithArgs("m", 0.2, 0.8, 0, 100, false, "", "p1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`DELETE FROM translation_settings WHERE id = \$1`).
		WithArgs("p1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.NoError(t, store.UpdatePreset(context.Background(), p))
	require.ErrorIs(t, store.DeletePreset(context.Background(), "p1"), library.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPresetNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery(`FROM translation_settings WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows(presetCols))

	_, err := store.GetPreset(context.Background(), "missing")
	require.ErrorIs(t, err, library.ErrNotFound)
}
