package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/rayin-translation/internal/library"
)

func TestListNovelRefsOrderedByTitle(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery(`FROM novels ORDER BY title ASC`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "title", "slug", "synopsis"}).
			AddRow("n1", "Alpha", "alpha", "").
			AddRow("n2", "Beta", "beta", "b"))

	refs, err := store.ListNovelRefs(context.Background())
	require.NoError(t, err)
	require.Len(t, refs, 2)
	require.Equal(t, "beta", refs[1].Slug)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetNovelRefByIDNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery(`FROM novels WHERE id = \$1`).
		WithArgs("nope").
		WillReturnRows(pgxmock.NewRows([]string{"id", "title", "slug", "synopsis"}))

	_, err := store.GetNovelRefByID(context.Background(), "nope")
	require.ErrorIs(t, err, library.ErrNotFound)
}

func TestListChapterRefsDescending(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery(`ORDER BY chapter_number DESC`).
		WithArgs("n1").
		WillReturnRows(pgxmock.NewRows(summaryCols).
			AddRow("c2", 2, "Two", nil, int64(0)).
			AddRow("c1", 1, "One", nil, int64(0)))

	refs, err := store.ListChapterRefs(context.Background(), "n1")
	require.NoError(t, err)
	require.Equal(t, 2, refs[0].Number)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateChapterTouchesNovel(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	at := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	in := library.ChapterInput{NovelID: "n1", Number: 4, Title: "Four", Content: "text"}

	mock.ExpectQuery(`INSERT INTO chapters`).
		WithArgs("n1", 4, "Four", "text", &at, at).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("c4"))
	mock.ExpectExec(`UPDATE novels SET updated_at = \$1 WHERE id = \$2`).
		WithArgs(at, "n1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	id, err := store.CreateChapter(context.Background(), in, at)
	require.NoError(t, err)
	require.Equal(t, "c4", id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateChapterMissingRow(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	at := time.Now().UTC()
	mock.ExpectExec(`UPDATE chapters`).
		WithArgs("n1", 1, "T", "C", at, "c1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.UpdateChapter(context.Background(), "c1", library.ChapterInput{
		NovelID: "n1", Number: 1, Title: "T", Content: "C",
	}, at)
	require.ErrorIs(t, err, library.ErrNotFound)
}

func TestDeleteChapterAndUpdateImage(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec(`DELETE FROM chapters WHERE id = \$1`).
		WithArgs("c1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`UPDATE novels SET image_url = \$1 WHERE id = \$2`).
		WithArgs("https://cdn/cover.png", "n1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.DeleteChapter(context.Background(), "c1"))
	require.NoError(t, store.UpdateNovelImage(context.Background(), "n1", "https://cdn/cover.png"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetChapterByIDRejectsMalformedID(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	_, err := store.GetChapterByID(context.Background(), "chapter-1")
	require.ErrorIs(t, err, library.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProfileAndCount(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery(`FROM profiles WHERE id = \$1`).
		WithArgs("u1").
		WillReturnRows(pgxmock.NewRows([]string{"role", "username"}).AddRow("superadmin", "rayin"))
	mock.ExpectQuery(`SELECT count\(\*\) FROM profiles`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(12)))

	p, err := store.GetProfile(context.Background(), "u1")
	require.NoError(t, err)
	require.True(t, p.IsSuperAdmin())
	require.Equal(t, "u1", p.ID)

	n, err := store.CountProfiles(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(12), n)
	require.NoError(t, mock.ExpectationsWereMet())
}
