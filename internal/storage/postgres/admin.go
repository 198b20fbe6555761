package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/JakeFAU/rayin-translation/internal/id/uuid"
	"github.com/JakeFAU/rayin-translation/internal/library"
)

const refColumns = `id::text, title, slug, COALESCE(synopsis, '')`

// ListNovelRefs lists every novel ordered by title.
func (s *Store) ListNovelRefs(ctx context.Context) ([]library.NovelRef, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+refColumns+` FROM novels ORDER BY title ASC`)
	if err != nil {
		return nil, fmt.Errorf("query novel refs: %w", err)
	}
	defer rows.Close()
	out := []library.NovelRef{}
	for rows.Next() {
		var r library.NovelRef
		if err := rows.Scan(&r.ID, &r.Title, &r.Slug, &r.Synopsis); err != nil {
			return nil, fmt.Errorf("scan novel ref: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate novel refs: %w", err)
	}
	return out, nil
}

// GetNovelRefBySlug loads one novel ref by slug.
func (s *Store) GetNovelRefBySlug(ctx context.Context, slug string) (library.NovelRef, error) {
	return s.getNovelRef(ctx, `SELECT `+refColumns+` FROM novels WHERE slug = $1`, slug)
}

// GetNovelRefByID loads one novel ref by id.
func (s *Store) GetNovelRefByID(ctx context.Context, id string) (library.NovelRef, error) {
	return s.getNovelRef(ctx, `SELECT `+refColumns+` FROM novels WHERE id = $1`, id)
}

func (s *Store) getNovelRef(ctx context.Context, query string, arg string) (library.NovelRef, error) {
	var r library.NovelRef
	if err := s.pool.QueryRow(ctx, query, arg).Scan(&r.ID, &r.Title, &r.Slug, &r.Synopsis); err != nil {
		return library.NovelRef{}, notFound(err, "novel")
	}
	return r, nil
}

// ListChapterRefs lists chapters newest first.
func (s *Store) ListChapterRefs(ctx context.Context, novelID string) ([]library.ChapterSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+summaryColumns+` FROM chapters WHERE novel_id = $1 ORDER BY chapter_number DESC`,
		novelID,
	)
	if err != nil {
		return nil, fmt.Errorf("query chapter refs: %w", err)
	}
	return collectSummaries(rows)
}

// GetChapterByID loads one chapter for editing.
func (s *Store) GetChapterByID(ctx context.Context, id string) (library.Chapter, error) {
	if !uuid.Valid(id) {
		return library.Chapter{}, fmt.Errorf("chapter %q: %w", id, library.ErrNotFound)
	}
	row := s.pool.QueryRow(ctx, `SELECT id::text, novel_id::text, chapter_number, COALESCE(title, ''),
	COALESCE(content, ''), published_at, updated_at, COALESCE(views, 0)
FROM chapters WHERE id = $1`, id)
	ch, err := scanChapter(row)
	if err != nil {
		return library.Chapter{}, notFound(err, "chapter")
	}
	return ch, nil
}

// CreateChapter inserts a chapter and returns its id.
func (s *Store) CreateChapter(ctx context.Context, in library.ChapterInput, at time.Time) (string, error) {
	published := in.PublishedAt
	if published == nil {
		published = &at
	}
	var id string
	if err := s.pool.QueryRow(ctx, `INSERT INTO chapters (novel_id, chapter_number, title, content, published_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id::text`,
		in.NovelID, in.Number, in.Title, in.Content, published, at,
	).Scan(&id); err != nil {
		return "", fmt.Errorf("insert chapter: %w", err)
	}
	if _, err := s.pool.Exec(ctx, `UPDATE novels SET updated_at = $1 WHERE id = $2`, at, in.NovelID); err != nil {
		return "", fmt.Errorf("touch novel: %w", err)
	}
	return id, nil
}

// UpdateChapter overwrites the editable chapter fields.
func (s *Store) UpdateChapter(ctx context.Context, id string, in library.ChapterInput, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE chapters
SET novel_id = $1, chapter_number = $2, title = $3, content = $4, updated_at = $5
WHERE id = $6`, in.NovelID, in.Number, in.Title, in.Content, at, id)
	if err != nil {
		return fmt.Errorf("update chapter: %w", err)
	}
	return requireAffected(tag, "chapter")
}

// DeleteChapter removes a chapter.
func (s *Store) DeleteChapter(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM chapters WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete chapter: %w", err)
	}
	return requireAffected(tag, "chapter")
}

// UpdateNovelImage points the novel at a new cover.
func (s *Store) UpdateNovelImage(ctx context.Context, novelID, imageURL string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE novels SET image_url = $1 WHERE id = $2`, imageURL, novelID)
	if err != nil {
		return fmt.Errorf("update novel image: %w", err)
	}
	return requireAffected(tag, "novel")
}
