package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/rayin-translation/internal/library"
)

var novelCols = []string{
	"id", "slug", "title", "author", "author_romaji", "synopsis", "image_url", "banner_url", "created_at", "updated_at",
}

var summaryCols = []string{"id", "chapter_number", "title", "published_at", "views"}

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewWithPool(mock)
	require.NoError(t, err)
	return store, mock
}

func TestNewWithPoolRequiresPool(t *testing.T) {
	t.Parallel()

	_, err := NewWithPool(nil)
	require.Error(t, err)
}

func TestNewRejectsBadConfig(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{})
	require.Error(t, err)

	_, err = New(context.Background(), Config{DSN: "postgres://localhost/rayin", Schema: "bad-schema;"})
	require.ErrorContains(t, err, "invalid schema")
}

func TestGetNovelBySlug(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	updated := created.Add(time.Hour)

	mock.ExpectQuery(`FROM novels WHERE slug = \$1`).
		WithArgs("slime").
		WillReturnRows(pgxmock.NewRows(novelCols).AddRow(
			"n1", "slime", "Slime Life", "伏瀬", "Fuse", "A slime.", "https://img/c.png", "", created, updated,
		))

	novel, err := store.GetNovelBySlug(context.Background(), "slime")
	require.NoError(t, err)
	require.Equal(t, "n1", novel.ID)
	require.Equal(t, "Fuse", novel.AuthorRomaji)
	require.Equal(t, created, novel.CreatedAt)
	require.Equal(t, updated, novel.UpdatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetNovelBySlugNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery(`FROM novels WHERE slug`).
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows(novelCols))

	_, err := store.GetNovelBySlug(context.Background(), "missing")
	require.ErrorIs(t, err, library.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListChapterSummariesAscending(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	published := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM chapters WHERE novel_id = \$1 ORDER BY chapter_number ASC`).
		WithArgs("n1").
		WillReturnRows(pgxmock.NewRows(summaryCols).
			AddRow("c1", 1, "Start", &published, int64(10)).
			AddRow("c2", 2, "Next", nil, int64(0)))

	chapters, err := store.ListChapterSummaries(context.Background(), "n1")
	require.NoError(t, err)
	require.Len(t, chapters, 2)
	require.Equal(t, 1, chapters[0].Number)
	require.Equal(t, int64(10), chapters[0].Views)
	require.NotNil(t, chapters[0].PublishedAt)
	require.Nil(t, chapters[1].PublishedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListChapterSummariesQueryError(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery(`FROM chapters`).WithArgs("n1").WillReturnError(errors.New("boom"))

	_, err := store.ListChapterSummaries(context.Background(), "n1")
	require.ErrorContains(t, err, "boom")
}

func TestGetChapter(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	updated := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM chapters WHERE novel_id = \$1 AND chapter_number = \$2`).
		WithArgs("n1", 3).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "novel_id", "chapter_number", "title", "content", "published_at", "updated_at", "views",
		}).AddRow("c3", "n1", 3, "Three", "body", nil, &updated, int64(4)))

	ch, err := store.GetChapter(context.Background(), "n1", 3)
	require.NoError(t, err)
	require.Equal(t, "c3", ch.ID)
	require.Equal(t, "body", ch.Content)
	require.Equal(t, &updated, ch.UpdatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetChapterNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery(`FROM chapters WHERE novel_id`).
		WithArgs("n1", 99).
		WillReturnError(pgx.ErrNoRows)

	_, err := store.GetChapter(context.Background(), "n1", 99)
	require.ErrorIs(t, err, library.ErrNotFound)
}

func TestAddChapterViewsIsAtomicIncrement(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE chapters SET views = COALESCE\(views, 0\) \+ \$1 WHERE id = \$2`).
		WithArgs(int64(3), "c1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.AddChapterViews(context.Background(), "c1", 3))
	require.NoError(t, store.AddChapterViews(context.Background(), "c1", 0))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPing(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectPing()
	require.NoError(t, store.Ping(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
