package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/JakeFAU/novelmirror/internal/mirror"
)

type ordinalKey struct {
	seriesID int64
	ordinal  int
}

type hashKey struct {
	seriesID int64
	hash     string
}

type linkKey struct {
	chapterID int64
	pageID    int64
}

// Store provides an in-memory mirror.Store for development/testing.
type Store struct {
	mu     sync.RWMutex
	nextID int64

	series      map[int64]mirror.Series
	seriesByURL map[string]int64
	books       map[int64]mirror.Book
	bookIDs     map[ordinalKey]int64
	chapters    map[int64]mirror.Chapter
	chapterIDs  map[hashKey]int64
	pages       map[int64]mirror.Page
	pageIDs     map[hashKey]int64
	links       map[linkKey]mirror.ChapterPage
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		series:      make(map[int64]mirror.Series),
		seriesByURL: make(map[string]int64),
		books:       make(map[int64]mirror.Book),
		bookIDs:     make(map[ordinalKey]int64),
		chapters:    make(map[int64]mirror.Chapter),
		chapterIDs:  make(map[hashKey]int64),
		pages:       make(map[int64]mirror.Page),
		pageIDs:     make(map[hashKey]int64),
		links:       make(map[linkKey]mirror.ChapterPage),
	}
}

func (s *Store) allocID() int64 {
	s.nextID++
	return s.nextID
}

// UpsertSeries inserts or refreshes a series keyed by URL.
func (s *Store) UpsertSeries(_ context.Context, series mirror.Series) (int64, error) {
	if series.URL == "" {
		return 0, fmt.Errorf("series url is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.seriesByURL[series.URL]; ok {
		existing := s.series[id]
		series.ID = id
		series.CreatedAt = existing.CreatedAt
		if series.LastChapterURL == "" {
			series.LastChapterURL = existing.LastChapterURL
		}
		s.series[id] = cloneSeries(series)
		return id, nil
	}
	series.ID = s.allocID()
	if series.CreatedAt.IsZero() {
		series.CreatedAt = series.UpdatedAt
	}
	s.series[series.ID] = cloneSeries(series)
	s.seriesByURL[series.URL] = series.ID
	return series.ID, nil
}

// GetSeries fetches a series by id.
func (s *Store) GetSeries(_ context.Context, id int64) (mirror.Series, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	series, ok := s.series[id]
	if !ok {
		return mirror.Series{}, fmt.Errorf("series %d: %w", id, mirror.ErrNotFound)
	}
	return cloneSeries(series), nil
}

// FindSeriesByURL fetches a series by canonical URL.
func (s *Store) FindSeriesByURL(_ context.Context, url string) (mirror.Series, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.seriesByURL[url]
	if !ok {
		return mirror.Series{}, fmt.Errorf("series %s: %w", url, mirror.ErrNotFound)
	}
	return cloneSeries(s.series[id]), nil
}

// ListSeries returns every series ordered by id.
func (s *Store) ListSeries(_ context.Context) ([]mirror.Series, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]mirror.Series, 0, len(s.series))
	for _, series := range s.series {
		out = append(out, cloneSeries(series))
	}
	slices.SortFunc(out, func(a, b mirror.Series) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// UpsertBook inserts or refreshes a book keyed by (series, ordinal).
func (s *Store) UpsertBook(_ context.Context, book mirror.Book) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.series[book.SeriesID]; !ok {
		return 0, fmt.Errorf("series %d: %w", book.SeriesID, mirror.ErrNotFound)
	}
	key := ordinalKey{seriesID: book.SeriesID, ordinal: book.Ordinal}
	if id, ok := s.bookIDs[key]; ok {
		book.ID = id
	} else {
		book.ID = s.allocID()
		s.bookIDs[key] = book.ID
	}
	book.IllustrationURLs = slices.Clone(book.IllustrationURLs)
	s.books[book.ID] = book
	return book.ID, nil
}

// SaveChapter upserts the page, the chapter and their link. An existing
// page keeps its ordinal.
func (s *Store) SaveChapter(_ context.Context, chapter mirror.Chapter, page mirror.Page) (mirror.ChapterPage, error) {
	if page.URL == "" || page.Hash == "" || chapter.Hash == "" {
		return mirror.ChapterPage{}, fmt.Errorf("page url, page hash and chapter hash are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.books[chapter.BookID]; !ok {
		return mirror.ChapterPage{}, fmt.Errorf("book %d: %w", chapter.BookID, mirror.ErrNotFound)
	}

	pk := hashKey{seriesID: page.SeriesID, hash: page.Hash}
	if id, ok := s.pageIDs[pk]; ok {
		page.ID = id
		page.Ordinal = s.pages[id].Ordinal
	} else {
		page.ID = s.allocID()
		s.pageIDs[pk] = page.ID
	}
	s.pages[page.ID] = page

	ck := hashKey{seriesID: chapter.SeriesID, hash: chapter.Hash}
	if id, ok := s.chapterIDs[ck]; ok {
		chapter.ID = id
	} else {
		chapter.ID = s.allocID()
		s.chapterIDs[ck] = chapter.ID
	}
	s.chapters[chapter.ID] = chapter

	link := mirror.ChapterPage{ChapterID: chapter.ID, PageID: page.ID, Ordinal: 1}
	s.links[linkKey{chapterID: chapter.ID, pageID: page.ID}] = link
	return link, nil
}

// Scaffold returns the series structure ordered by page ordinal.
func (s *Store) Scaffold(_ context.Context, seriesID int64) (mirror.Scaffold, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out mirror.Scaffold
	for key := range s.links {
		chapter := s.chapters[key.chapterID]
		if chapter.SeriesID != seriesID {
			continue
		}
		page := s.pages[key.pageID]
		page.Content = ""
		book := s.books[chapter.BookID]
		book.IllustrationURLs = slices.Clone(book.IllustrationURLs)
		out = append(out, mirror.ScaffoldEntry{Book: book, Chapter: chapter, Page: page})
	}
	slices.SortFunc(out, func(a, b mirror.ScaffoldEntry) int {
		if c := cmp.Compare(a.Page.Ordinal, b.Page.Ordinal); c != 0 {
			return c
		}
		return cmp.Compare(a.Page.ID, b.Page.ID)
	})
	return out, nil
}

// LastPage returns the highest-ordinal page of the series.
func (s *Store) LastPage(_ context.Context, seriesID int64) (mirror.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var (
		last  mirror.Page
		found bool
	)
	for _, page := range s.pages {
		if page.SeriesID != seriesID {
			continue
		}
		if !found || page.Ordinal > last.Ordinal || (page.Ordinal == last.Ordinal && page.ID > last.ID) {
			last = page
			found = true
		}
	}
	if !found {
		return mirror.Page{}, fmt.Errorf("last page of series %d: %w", seriesID, mirror.ErrNotFound)
	}
	return last, nil
}

// Page returns a stored page including content.
func (s *Store) Page(_ context.Context, id int64) (mirror.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	page, ok := s.pages[id]
	if !ok {
		return mirror.Page{}, fmt.Errorf("page %d: %w", id, mirror.ErrNotFound)
	}
	return page, nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

func cloneSeries(series mirror.Series) mirror.Series {
	series.Authors = slices.Clone(series.Authors)
	series.Genres = slices.Clone(series.Genres)
	series.Tags = slices.Clone(series.Tags)
	return series
}
