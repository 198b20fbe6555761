package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/rayin-translation/internal/library"
)

const novelColumns = `id::text, slug, title, COALESCE(author, ''), COALESCE(author_romaji, ''),
	COALESCE(synopsis, ''), COALESCE(image_url, ''), COALESCE(banner_url, ''), created_at, updated_at`

const summaryColumns = `id::text, chapter_number, COALESCE(title, ''), published_at, COALESCE(views, 0)`

// GetNovelBySlug loads one novel without its chapters.
func (s *Store) GetNovelBySlug(ctx context.Context, slug string) (library.Novel, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+novelColumns+` FROM novels WHERE slug = $1`, slug)
	novel, err := scanNovel(row)
	if err != nil {
		return library.Novel{}, notFound(err, "novel")
	}
	return novel, nil
}

// ListChapterSummaries returns the table of contents in reading order.
func (s *Store) ListChapterSummaries(ctx context.Context, novelID string) ([]library.ChapterSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+summaryColumns+` FROM chapters WHERE novel_id = $1 ORDER BY chapter_number ASC`,
		novelID,
	)
	if err != nil {
		return nil, fmt.Errorf("query chapters: %w", err)
	}
	return collectSummaries(rows)
}

// GetChapter loads one chapter body.
func (s *Store) GetChapter(ctx context.Context, novelID string, number int) (library.Chapter, error) {
	row := s.pool.QueryRow(ctx, `SELECT id::text, novel_id::text, chapter_number, COALESCE(title, ''),
	COALESCE(content, ''), published_at, updated_at, COALESCE(views, 0)
FROM chapters WHERE novel_id = $1 AND chapter_number = $2`, novelID, number)
	ch, err := scanChapter(row)
	if err != nil {
		return library.Chapter{}, notFound(err, "chapter")
	}
	return ch, nil
}

// AddChapterViews applies a view delta atomically.
func (s *Store) AddChapterViews(ctx context.Context, chapterID string, delta int64) error {
	if delta == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx,
		`UPDATE chapters SET views = COALESCE(views, 0) + $1 WHERE id = $2`,
		delta, chapterID,
	); err != nil {
		return fmt.Errorf("increment chapter views: %w", err)
	}
	return nil
}

func scanNovel(row pgx.Row) (library.Novel, error) {
	var n library.Novel
	if err := row.Scan(
		&n.ID,
		&n.Slug,
		&n.Title,
		&n.Author,
		&n.AuthorRomaji,
		&n.Synopsis,
		&n.ImageURL,
		&n.BannerURL,
		&n.CreatedAt,
		&n.UpdatedAt,
	); err != nil {
		return library.Novel{}, err //nolint:wrapcheck // wrapped by caller
	}
	return n, nil
}

func scanChapter(row pgx.Row) (library.Chapter, error) {
	var ch library.Chapter
	if err := row.Scan(
		&ch.ID,
		&ch.NovelID,
		&ch.Number,
		&ch.Title,
		&ch.Content,
		&ch.PublishedAt,
		&ch.UpdatedAt,
		&ch.Views,
	); err != nil {
		return library.Chapter{}, err //nolint:wrapcheck // wrapped by caller
	}
	return ch, nil
}

func collectSummaries(rows pgx.Rows) ([]library.ChapterSummary, error) {
	defer rows.Close()
	out := []library.ChapterSummary{}
	for rows.Next() {
		var c library.ChapterSummary
		if err := rows.Scan(&c.ID, &c.Number, &c.Title, &c.PublishedAt, &c.Views); err != nil {
			return nil, fmt.Errorf("scan chapter: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chapters: %w", err)
	}
	return out, nil
}
