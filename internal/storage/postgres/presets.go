package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/rayin-translation/internal/library"
)

const presetColumns = `id::text, name, COALESCE(novel_id::text, ''), is_default, model, temperature, top_p,
	top_k, max_tokens, reasoning, COALESCE(system_prompt, '')`

// ListPresets returns defaults first, then presets by name.
func (s *Store) ListPresets(ctx context.Context) ([]library.Preset, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+presetColumns+` FROM translation_settings ORDER BY is_default DESC, name ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query presets: %w", err)
	}
	defer rows.Close()
	out := []library.Preset{}
	for rows.Next() {
		p, err := scanPreset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan preset: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate presets: %w", err)
	}
	return out, nil
}

// GetPreset loads one preset.
func (s *Store) GetPreset(ctx context.Context, id string) (library.Preset, error) {
	p, err := scanPreset(s.pool.QueryRow(ctx,
		`SELECT `+presetColumns+` FROM translation_settings WHERE id = $1`, id))
	if err != nil {
		return library.Preset{}, notFound(err, "preset")
	}
	return p, nil
}

// CreatePreset inserts a non-default preset and returns it with its id.
func (s *Store) CreatePreset(ctx context.Context, p library.Preset) (library.Preset, error) {
	if err := s.pool.QueryRow(ctx, `INSERT INTO translation_settings
	(name, novel_id, is_default, model, temperature, top_p, top_k, max_tokens, reasoning, system_prompt)
VALUES ($1, NULLIF($2, '')::uuid, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id::text`,
		p.Name, p.NovelID, p.IsDefault, p.Model, p.Temperature, p.TopP, p.TopK, p.MaxTokens, p.Reasoning, p.SystemPrompt,
	).Scan(&p.ID); err != nil {
		return library.Preset{}, fmt.Errorf("insert preset: %w", err)
	}
	return p, nil
}

// UpdatePreset overwrites the sampling settings of an existing preset.
func (s *Store) UpdatePreset(ctx context.Context, p library.Preset) error {
	tag, err := s.pool.Exec(ctx, `UPDATE translation_settings
SET model = $1, temperature = $2, top_p = $3, top_k = $4, max_tokens = $5, reasoning = $6, system_prompt = $7
WHERE id = $8`,
		p.Model, p.Temperature, p.TopP, p.TopK, p.MaxTokens, p.Reasoning, p.SystemPrompt, p.ID,
	)
	if err != nil {
		return fmt.Errorf("update preset: %w", err)
	}
	return requireAffected(tag, "preset")
}

// DeletePreset removes a preset row.
func (s *Store) DeletePreset(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM translation_settings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete preset: %w", err)
	}
	return requireAffected(tag, "preset")
}

func scanPreset(row pgx.Row) (library.Preset, error) {
	var p library.Preset
	if err := row.Scan(
		&p.ID,
		&p.Name,
		&p.NovelID,
		&p.IsDefault,
		&p.Model,
		&p.Temperature,
		&p.TopP,
		&p.TopK,
		&p.MaxTokens,
		&p.Reasoning,
		&p.SystemPrompt,
	); err != nil {
		return library.Preset{}, err //nolint:wrapcheck // wrapped by caller
	}
	return p, nil
}
