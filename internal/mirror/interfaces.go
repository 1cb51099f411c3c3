package mirror

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned by Store lookups that match nothing.
var ErrNotFound = errors.New("not found")

// Store persists series structure. Every upsert is idempotent on the
// record's natural key and returns the stored id.
type Store interface {
	// UpsertSeries keys on Series.URL and refreshes metadata.
	UpsertSeries(ctx context.Context, series Series) (int64, error)
	GetSeries(ctx context.Context, id int64) (Series, error)
	FindSeriesByURL(ctx context.Context, url string) (Series, error)
	ListSeries(ctx context.Context) ([]Series, error)
	// UpsertBook keys on (SeriesID, Ordinal) and refreshes title and art.
	UpsertBook(ctx context.Context, book Book) (int64, error)
	// SaveChapter upserts the Page (SeriesID, Hash), the Chapter
	// (SeriesID, Hash) and their link as one unit.
	SaveChapter(ctx context.Context, chapter Chapter, page Page) (ChapterPage, error)
	// Scaffold returns every Book/Chapter/Page of the series by Page ordinal.
	Scaffold(ctx context.Context, seriesID int64) (Scaffold, error)
	// LastPage returns the highest-ordinal Page or ErrNotFound.
	LastPage(ctx context.Context, seriesID int64) (Page, error)
	Close() error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Publisher pushes update events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run ids.
type IDGenerator interface {
	NewID() (string, error)
}
