package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/novelmirror/internal/mirror"
)

func seedSeries(t *testing.T, s *Store) (int64, int64) {
	t.Helper()
	ctx := context.Background()
	seriesID, err := s.UpsertSeries(ctx, mirror.Series{URL: "https://mem.test/s", Title: "Saga", UpdatedAt: time.Unix(10, 0)})
	require.NoError(t, err)
	bookID, err := s.UpsertBook(ctx, mirror.Book{SeriesID: seriesID, Ordinal: 1, Title: "Volume 1"})
	require.NoError(t, err)
	return seriesID, bookID
}

func chapterAt(seriesID, bookID int64, ordinal, pageOrdinal int, url string) (mirror.Chapter, mirror.Page) {
	title := "Chapter " + url
	return mirror.Chapter{
			SeriesID: seriesID,
			BookID:   bookID,
			Ordinal:  ordinal,
			Title:    title,
			Hash:     mirror.ChapterHash(title, 0, ordinal),
		}, mirror.Page{
			SeriesID: seriesID,
			Ordinal:  pageOrdinal,
			URL:      url,
			Hash:     mirror.PageHash(url),
			Content:  "<p>body</p>",
		}
}

func TestStoreSeriesUpsertIsIdempotent(t *testing.T) {
	t.Parallel()

	s := NewStore()
	ctx := context.Background()
	id1, err := s.UpsertSeries(ctx, mirror.Series{URL: "https://mem.test/s", Title: "Old", LastChapterURL: "https://mem.test/c/1", UpdatedAt: time.Unix(1, 0)})
	require.NoError(t, err)
	id2, err := s.UpsertSeries(ctx, mirror.Series{URL: "https://mem.test/s", Title: "New", Authors: []string{"Ann"}, UpdatedAt: time.Unix(2, 0)})
	require.NoError(t, err)
	require.Equal(t, id1, id2)

	got, err := s.GetSeries(ctx, id1)
	require.NoError(t, err)
	require.Equal(t, "New", got.Title)
	require.Equal(t, "https://mem.test/c/1", got.LastChapterURL, "empty last chapter keeps the stored one")
	require.Equal(t, time.Unix(1, 0), got.CreatedAt)

	byURL, err := s.FindSeriesByURL(ctx, "https://mem.test/s")
	require.NoError(t, err)
	require.Equal(t, id1, byURL.ID)

	_, err = s.FindSeriesByURL(ctx, "https://mem.test/other")
	require.ErrorIs(t, err, mirror.ErrNotFound)

	list, err := s.ListSeries(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestStoreSaveChapterAndScaffold(t *testing.T) {
	t.Parallel()

	s := NewStore()
	ctx := context.Background()
	seriesID, bookID := seedSeries(t, s)

	for i, url := range []string{"https://mem.test/c/1", "https://mem.test/c/2"} {
		ch, page := chapterAt(seriesID, bookID, i+1, i+1, url)
		link, err := s.SaveChapter(ctx, ch, page)
		require.NoError(t, err)
		require.NotZero(t, link.ChapterID)
		require.NotZero(t, link.PageID)
	}

	// Re-saving keeps ids and the original page ordinal.
	ch, page := chapterAt(seriesID, bookID, 1, 99, "https://mem.test/c/1")
	_, err := s.SaveChapter(ctx, ch, page)
	require.NoError(t, err)

	scaffold, err := s.Scaffold(ctx, seriesID)
	require.NoError(t, err)
	require.Len(t, scaffold, 2)
	require.Equal(t, 1, scaffold[0].Page.Ordinal)
	require.Equal(t, 2, scaffold[1].Page.Ordinal)
	require.Empty(t, scaffold[0].Page.Content)
	require.Equal(t, "Volume 1", scaffold[0].Book.Title)

	last, err := s.LastPage(ctx, seriesID)
	require.NoError(t, err)
	require.Equal(t, "https://mem.test/c/2", last.URL)

	stored, err := s.Page(ctx, last.ID)
	require.NoError(t, err)
	require.Equal(t, "<p>body</p>", stored.Content)
}

func TestStoreBookUpsertRefreshesMetadata(t *testing.T) {
	t.Parallel()

	s := NewStore()
	ctx := context.Background()
	seriesID, bookID := seedSeries(t, s)

	again, err := s.UpsertBook(ctx, mirror.Book{SeriesID: seriesID, Ordinal: 1, Title: "Volume One", CoverURL: "https://mem.test/v1.png"})
	require.NoError(t, err)
	require.Equal(t, bookID, again)

	_, err = s.UpsertBook(ctx, mirror.Book{SeriesID: 999, Ordinal: 1})
	require.ErrorIs(t, err, mirror.ErrNotFound)
}

func TestStoreErrors(t *testing.T) {
	t.Parallel()

	s := NewStore()
	ctx := context.Background()

	_, err := s.LastPage(ctx, 1)
	require.ErrorIs(t, err, mirror.ErrNotFound)

	_, err = s.UpsertSeries(ctx, mirror.Series{})
	require.Error(t, err)

	ch, page := chapterAt(1, 42, 1, 1, "https://mem.test/c/1")
	_, err = s.SaveChapter(ctx, ch, page)
	require.ErrorIs(t, err, mirror.ErrNotFound)
}
