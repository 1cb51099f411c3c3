package mirror

import (
	"strconv"
	"time"

	"github.com/JakeFAU/novelmirror/internal/hash/sha256"
)

// Series is a mirrored work, identified by its canonical remote URL.
type Series struct {
	ID             int64     `json:"id"`
	URL            string    `json:"url"`
	Title          string    `json:"title"`
	Description    string    `json:"description,omitempty"`
	Authors        []string  `json:"authors,omitempty"`
	Genres         []string  `json:"genres,omitempty"`
	Tags           []string  `json:"tags,omitempty"`
	CoverURL       string    `json:"cover_url,omitempty"`
	LastChapterURL string    `json:"last_chapter_url,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Book groups chapters. Ordinal is 1-based within the series.
type Book struct {
	ID               int64    `json:"id"`
	SeriesID         int64    `json:"series_id"`
	Ordinal          int      `json:"ordinal"`
	Title            string   `json:"title"`
	CoverURL         string   `json:"cover_url,omitempty"`
	IllustrationURLs []string `json:"illustration_urls,omitempty"`
}

// Chapter is a titled entry inside a Book. Ordinal restarts at 1 per Book.
type Chapter struct {
	ID       int64  `json:"id"`
	SeriesID int64  `json:"series_id"`
	BookID   int64  `json:"book_id"`
	Ordinal  int    `json:"ordinal"`
	Title    string `json:"title"`
	Hash     string `json:"hash"`
}

// Page is the raw content fetched from one remote URL. Ordinal is
// series-global and assigned once.
type Page struct {
	ID        int64     `json:"id"`
	SeriesID  int64     `json:"series_id"`
	Ordinal   int       `json:"ordinal"`
	URL       string    `json:"url"`
	Hash      string    `json:"hash"`
	Title     string    `json:"title"`
	Content   string    `json:"-"`
	BlobURI   string    `json:"blob_uri,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
}

// ChapterPage links a Chapter to one of its Pages.
type ChapterPage struct {
	ChapterID int64 `json:"chapter_id"`
	PageID    int64 `json:"page_id"`
	Ordinal   int   `json:"ordinal"`
}

// ChapterHash derives the chapter identity from its title and position.
// bookIndex is the zero-based book position (Book.Ordinal - 1).
func ChapterHash(title string, bookIndex, ordinal int) string {
	return sha256.SumParts(title, strconv.Itoa(bookIndex), strconv.Itoa(ordinal))
}

// PageHash derives the page identity from its source URL.
func PageHash(url string) string {
	return sha256.Sum([]byte(url))
}
