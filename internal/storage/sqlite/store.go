// Package sqlite provides a single-file mirror.Store backed by modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/JakeFAU/novelmirror/internal/mirror"
)

//go:embed schema.sql
var schema string

const timeLayout = time.RFC3339Nano

// Store implements mirror.Store on SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at dsn and applies the schema.
// ":memory:" is accepted and pinned to a single connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("storage.dsn is required")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Every connection to :memory: is a fresh database, and SQLite
	// serializes writers anyway.
	db.SetMaxOpenConns(1)
	store := &Store{db: db}
	if err := store.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Migrate creates missing tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		return fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const upsertSeriesSQL = `
INSERT INTO series (
	url, title, description, authors, genres, tags, cover_url, last_chapter_url, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (url) DO UPDATE SET
	title = excluded.title,
	description = excluded.description,
	authors = excluded.authors,
	genres = excluded.genres,
	tags = excluded.tags,
	cover_url = excluded.cover_url,
	last_chapter_url = COALESCE(NULLIF(excluded.last_chapter_url, ''), series.last_chapter_url),
	updated_at = excluded.updated_at
RETURNING id`

// UpsertSeries inserts or refreshes a series keyed by URL.
func (s *Store) UpsertSeries(ctx context.Context, series mirror.Series) (int64, error) {
	if series.URL == "" {
		return 0, fmt.Errorf("series url is required")
	}
	createdAt := series.CreatedAt
	if createdAt.IsZero() {
		createdAt = series.UpdatedAt
	}
	var id int64
	err := s.db.QueryRowContext(ctx, upsertSeriesSQL,
		series.URL,
		series.Title,
		series.Description,
		encodeList(series.Authors),
		encodeList(series.Genres),
		encodeList(series.Tags),
		series.CoverURL,
		series.LastChapterURL,
		formatTime(createdAt),
		formatTime(series.UpdatedAt),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert series: %w", err)
	}
	return id, nil
}

const seriesColumns = `id, url, title, description, authors, genres, tags, cover_url, last_chapter_url, created_at, updated_at`

// GetSeries fetches a series by id.
func (s *Store) GetSeries(ctx context.Context, id int64) (mirror.Series, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+seriesColumns+` FROM series WHERE id = ?`, id)
	series, err := scanSeries(row)
	if err != nil {
		return mirror.Series{}, fmt.Errorf("get series %d: %w", id, err)
	}
	return series, nil
}

// FindSeriesByURL fetches a series by canonical URL.
func (s *Store) FindSeriesByURL(ctx context.Context, url string) (mirror.Series, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+seriesColumns+` FROM series WHERE url = ?`, url)
	series, err := scanSeries(row)
	if err != nil {
		return mirror.Series{}, fmt.Errorf("find series %s: %w", url, err)
	}
	return series, nil
}

// ListSeries returns every series ordered by id.
func (s *Store) ListSeries(ctx context.Context) ([]mirror.Series, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+seriesColumns+` FROM series ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list series: %w", err)
	}
	defer rows.Close()
	var out []mirror.Series
	for rows.Next() {
		series, err := scanSeries(rows)
		if err != nil {
			return nil, fmt.Errorf("list series: %w", err)
		}
		out = append(out, series)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list series: %w", err)
	}
	return out, nil
}

const upsertBookSQL = `
INSERT INTO books (series_id, ordinal, title, cover_url, illustration_urls)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (series_id, ordinal) DO UPDATE SET
	title = excluded.title,
	cover_url = excluded.cover_url,
	illustration_urls = excluded.illustration_urls
RETURNING id`

// UpsertBook inserts or refreshes a book keyed by (series, ordinal).
func (s *Store) UpsertBook(ctx context.Context, book mirror.Book) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, upsertBookSQL,
		book.SeriesID,
		book.Ordinal,
		book.Title,
		book.CoverURL,
		encodeList(book.IllustrationURLs),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert book: %w", err)
	}
	return id, nil
}

const upsertPageSQL = `
INSERT INTO pages (series_id, ordinal, url, hash, title, content, blob_uri, fetched_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (series_id, hash) DO UPDATE SET
	title = excluded.title,
	content = excluded.content,
	blob_uri = excluded.blob_uri,
	fetched_at = excluded.fetched_at
RETURNING id`

const upsertChapterSQL = `
INSERT INTO chapters (series_id, book_id, ordinal, title, hash)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (series_id, hash) DO UPDATE SET
	book_id = excluded.book_id,
	ordinal = excluded.ordinal,
	title = excluded.title
RETURNING id`

const upsertChapterPageSQL = `
INSERT INTO chapter_pages (chapter_id, page_id, ordinal)
VALUES (?, ?, ?)
ON CONFLICT (chapter_id, page_id) DO UPDATE SET ordinal = excluded.ordinal`

// SaveChapter upserts the page, the chapter and their link in one
// transaction. An existing page keeps its ordinal.
func (s *Store) SaveChapter(ctx context.Context, chapter mirror.Chapter, page mirror.Page) (link mirror.ChapterPage, err error) {
	if page.URL == "" || page.Hash == "" || chapter.Hash == "" {
		return mirror.ChapterPage{}, fmt.Errorf("page url, page hash and chapter hash are required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mirror.ChapterPage{}, fmt.Errorf("begin save chapter: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = tx.QueryRowContext(ctx, upsertPageSQL,
		page.SeriesID,
		page.Ordinal,
		page.URL,
		page.Hash,
		page.Title,
		page.Content,
		page.BlobURI,
		formatTime(page.FetchedAt),
	).Scan(&link.PageID); err != nil {
		return mirror.ChapterPage{}, fmt.Errorf("upsert page: %w", err)
	}
	if err = tx.QueryRowContext(ctx, upsertChapterSQL,
		chapter.SeriesID,
		chapter.BookID,
		chapter.Ordinal,
		chapter.Title,
		chapter.Hash,
	).Scan(&link.ChapterID); err != nil {
		return mirror.ChapterPage{}, fmt.Errorf("upsert chapter: %w", err)
	}
	link.Ordinal = 1
	if _, err = tx.ExecContext(ctx, upsertChapterPageSQL, link.ChapterID, link.PageID, link.Ordinal); err != nil {
		return mirror.ChapterPage{}, fmt.Errorf("link chapter page: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return mirror.ChapterPage{}, fmt.Errorf("commit save chapter: %w", err)
	}
	return link, nil
}

const scaffoldSQL = `
SELECT
	b.id, b.series_id, b.ordinal, b.title, b.cover_url, b.illustration_urls,
	c.id, c.series_id, c.book_id, c.ordinal, c.title, c.hash,
	p.id, p.series_id, p.ordinal, p.url, p.hash, p.title, p.blob_uri, p.fetched_at
FROM chapter_pages cp
JOIN chapters c ON c.id = cp.chapter_id
JOIN books b ON b.id = c.book_id
JOIN pages p ON p.id = cp.page_id
WHERE c.series_id = ?
ORDER BY p.ordinal, p.id`

// Scaffold returns the series structure ordered by page ordinal.
func (s *Store) Scaffold(ctx context.Context, seriesID int64) (mirror.Scaffold, error) {
	rows, err := s.db.QueryContext(ctx, scaffoldSQL, seriesID)
	if err != nil {
		return nil, fmt.Errorf("read scaffold: %w", err)
	}
	defer rows.Close()
	var out mirror.Scaffold
	for rows.Next() {
		var (
			e             mirror.ScaffoldEntry
			illustrations string
			fetchedAt     string
		)
		if err := rows.Scan(
			&e.Book.ID, &e.Book.SeriesID, &e.Book.Ordinal, &e.Book.Title, &e.Book.CoverURL, &illustrations,
			&e.Chapter.ID, &e.Chapter.SeriesID, &e.Chapter.BookID, &e.Chapter.Ordinal, &e.Chapter.Title, &e.Chapter.Hash,
			&e.Page.ID, &e.Page.SeriesID, &e.Page.Ordinal, &e.Page.URL, &e.Page.Hash, &e.Page.Title, &e.Page.BlobURI, &fetchedAt,
		); err != nil {
			return nil, fmt.Errorf("scan scaffold: %w", err)
		}
		if e.Book.IllustrationURLs, err = decodeList(illustrations); err != nil {
			return nil, fmt.Errorf("scan scaffold: %w", err)
		}
		if e.Page.FetchedAt, err = parseTime(fetchedAt); err != nil {
			return nil, fmt.Errorf("scan scaffold: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read scaffold: %w", err)
	}
	return out, nil
}

// LastPage returns the highest-ordinal page of the series.
func (s *Store) LastPage(ctx context.Context, seriesID int64) (mirror.Page, error) {
	var (
		p         mirror.Page
		fetchedAt string
	)
	err := s.db.QueryRowContext(ctx, `
SELECT id, series_id, ordinal, url, hash, title, blob_uri, fetched_at
FROM pages WHERE series_id = ?
ORDER BY ordinal DESC, id DESC
LIMIT 1`, seriesID).Scan(&p.ID, &p.SeriesID, &p.Ordinal, &p.URL, &p.Hash, &p.Title, &p.BlobURI, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return mirror.Page{}, fmt.Errorf("last page of series %d: %w", seriesID, mirror.ErrNotFound)
	}
	if err != nil {
		return mirror.Page{}, fmt.Errorf("last page of series %d: %w", seriesID, err)
	}
	if p.FetchedAt, err = parseTime(fetchedAt); err != nil {
		return mirror.Page{}, fmt.Errorf("last page of series %d: %w", seriesID, err)
	}
	return p, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSeries(row scanner) (mirror.Series, error) {
	var (
		s                     mirror.Series
		authors, genres, tags string
		createdAt, updatedAt  string
	)
	err := row.Scan(
		&s.ID, &s.URL, &s.Title, &s.Description, &authors, &genres, &tags,
		&s.CoverURL, &s.LastChapterURL, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return mirror.Series{}, mirror.ErrNotFound
	}
	if err != nil {
		return mirror.Series{}, err
	}
	if s.Authors, err = decodeList(authors); err != nil {
		return mirror.Series{}, err
	}
	if s.Genres, err = decodeList(genres); err != nil {
		return mirror.Series{}, err
	}
	if s.Tags, err = decodeList(tags); err != nil {
		return mirror.Series{}, err
	}
	if s.CreatedAt, err = parseTime(createdAt); err != nil {
		return mirror.Series{}, err
	}
	if s.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return mirror.Series{}, err
	}
	return s, nil
}

func encodeList(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	raw, err := json.Marshal(values)
	if err != nil {
		// []string always marshals.
		return "[]"
	}
	return string(raw)
}

func decodeList(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "[]" {
		return nil, nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, fmt.Errorf("decode list column: %w", err)
	}
	return values, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(raw string) (time.Time, error) {
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", raw, err)
	}
	return t, nil
}
