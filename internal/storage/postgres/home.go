package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/rayin-translation/internal/library"
)

const popularColumns = `id::text, title, slug, COALESCE(image_url, ''), COALESCE(author, '')`

// Featured returns novels that have a banner image.
func (s *Store) Featured(ctx context.Context, limit int) ([]library.Novel, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+novelColumns+` FROM novels WHERE banner_url IS NOT NULL LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query featured novels: %w", err)
	}
	return collectNovels(rows)
}

// Latest returns recently updated novels with their newest chapters attached.
func (s *Store) Latest(ctx context.Context, limit, chapterLimit int) ([]library.Novel, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+novelColumns+` FROM novels ORDER BY updated_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query latest novels: %w", err)
	}
	novels, err := collectNovels(rows)
	if err != nil {
		return nil, err
	}
	if len(novels) == 0 || chapterLimit <= 0 {
		return novels, nil
	}

	ids := make([]string, len(novels))
	byID := make(map[string]int, len(novels))
	for i, n := range novels {
		ids[i] = n.ID
		byID[n.ID] = i
		novels[i].Chapters = []library.ChapterSummary{}
	}
	chRows, err := s.pool.Query(ctx, `SELECT novel_key, `+summaryColumns+`
FROM (
	SELECT c.*, c.novel_id::text AS novel_key,
		row_number() OVER (PARTITION BY c.novel_id ORDER BY c.chapter_number DESC) AS rn
	FROM chapters c WHERE c.novel_id::text = ANY($1)
) ranked
WHERE rn <= $2
ORDER BY novel_key, chapter_number DESC`, ids, chapterLimit)
	if err != nil {
		return nil, fmt.Errorf("query latest chapters: %w", err)
	}
	defer chRows.Close()
	for chRows.Next() {
		var (
			novelID string
			c       library.ChapterSummary
		)
		if err := chRows.Scan(&novelID, &c.ID, &c.Number, &c.Title, &c.PublishedAt, &c.Views); err != nil {
			return nil, fmt.Errorf("scan latest chapter: %w", err)
		}
		if idx, ok := byID[novelID]; ok {
			novels[idx].Chapters = append(novels[idx].Chapters, c)
		}
	}
	if err := chRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate latest chapters: %w", err)
	}
	return novels, nil
}

// PopularAllTime returns the longest-running novels.
func (s *Store) PopularAllTime(ctx context.Context, limit int) ([]library.PopularNovel, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+popularColumns+` FROM novels ORDER BY created_at ASC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query popular novels: %w", err)
	}
	return collectPopular(rows)
}

// PopularSince returns novels updated at or after since.
func (s *Store) PopularSince(ctx context.Context, since time.Time, limit int) ([]library.PopularNovel, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+popularColumns+` FROM novels WHERE updated_at >= $1 ORDER BY updated_at DESC LIMIT $2`,
		since, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query popular novels since: %w", err)
	}
	return collectPopular(rows)
}

func collectNovels(rows pgx.Rows) ([]library.Novel, error) {
	defer rows.Close()
	out := []library.Novel{}
	for rows.Next() {
		n, err := scanNovel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan novel: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate novels: %w", err)
	}
	return out, nil
}

func collectPopular(rows pgx.Rows) ([]library.PopularNovel, error) {
	defer rows.Close()
	out := []library.PopularNovel{}
	for rows.Next() {
		var p library.PopularNovel
		if err := rows.Scan(&p.ID, &p.Title, &p.Slug, &p.ImageURL, &p.Author); err != nil {
			return nil, fmt.Errorf("scan popular novel: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate popular novels: %w", err)
	}
	return out, nil
}
