// Package postgres provides the Postgres-backed mirror.Store.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/novelmirror/internal/mirror"
)

//go:embed schema.sql
var schema string

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// Store implements mirror.Store on Postgres.
type Store struct {
	pool pgxPool
}

// New connects a pool and applies the schema.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store := &Store{pool: pool}
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(pool pgxPool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Migrate creates missing tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

const upsertSeriesSQL = `
INSERT INTO series (
	url, title, description, authors, genres, tags, cover_url, last_chapter_url, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (url) DO UPDATE SET
	title = EXCLUDED.title,
	description = EXCLUDED.description,
	authors = EXCLUDED.authors,
	genres = EXCLUDED.genres,
	tags = EXCLUDED.tags,
	cover_url = EXCLUDED.cover_url,
	last_chapter_url = COALESCE(NULLIF(EXCLUDED.last_chapter_url, ''), series.last_chapter_url),
	updated_at = EXCLUDED.updated_at
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
	err := s.pool.QueryRow(ctx, upsertSeriesSQL,
		series.URL,
		series.Title,
		series.Description,
		nonNil(series.Authors),
		nonNil(series.Genres),
		nonNil(series.Tags),
		series.CoverURL,
		series.LastChapterURL,
		createdAt,
		series.UpdatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert series: %w", err)
	}
	return id, nil
}

const seriesColumns = `id, url, title, description, authors, genres, tags, cover_url, last_chapter_url, created_at, updated_at`

// GetSeries fetches a series by id.
func (s *Store) GetSeries(ctx context.Context, id int64) (mirror.Series, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+seriesColumns+` FROM series WHERE id = $1`, id)
	series, err := scanSeries(row)
	if err != nil {
		return mirror.Series{}, fmt.Errorf("get series %d: %w", id, err)
	}
	return series, nil
}

// FindSeriesByURL fetches a series by canonical URL.
func (s *Store) FindSeriesByURL(ctx context.Context, url string) (mirror.Series, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+seriesColumns+` FROM series WHERE url = $1`, url)
	series, err := scanSeries(row)
	if err != nil {
		return mirror.Series{}, fmt.Errorf("find series %s: %w", url, err)
	}
	return series, nil
}

// ListSeries returns every series ordered by id.
func (s *Store) ListSeries(ctx context.Context) ([]mirror.Series, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+seriesColumns+` FROM series ORDER BY id`)
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
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (series_id, ordinal) DO UPDATE SET
	title = EXCLUDED.title,
	cover_url = EXCLUDED.cover_url,
	illustration_urls = EXCLUDED.illustration_urls
RETURNING id`

// UpsertBook inserts or refreshes a book keyed by (series, ordinal).
func (s *Store) UpsertBook(ctx context.Context, book mirror.Book) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, upsertBookSQL,
		book.SeriesID,
		book.Ordinal,
		book.Title,
		book.CoverURL,
		nonNil(book.IllustrationURLs),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert book: %w", err)
	}
	return id, nil
}

const upsertPageSQL = `
INSERT INTO pages (series_id, ordinal, url, hash, title, content, blob_uri, fetched_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (series_id, hash) DO UPDATE SET
	title = EXCLUDED.title,
	content = EXCLUDED.content,
	blob_uri = EXCLUDED.blob_uri,
	fetched_at = EXCLUDED.fetched_at
RETURNING id`

const upsertChapterSQL = `
INSERT INTO chapters (series_id, book_id, ordinal, title, hash)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (series_id, hash) DO UPDATE SET
	book_id = EXCLUDED.book_id,
	ordinal = EXCLUDED.ordinal,
	title = EXCLUDED.title
RETURNING id`

const upsertChapterPageSQL = `
INSERT INTO chapter_pages (chapter_id, page_id, ordinal)
VALUES ($1, $2, $3)
ON CONFLICT (chapter_id, page_id) DO UPDATE SET ordinal = EXCLUDED.ordinal`

// SaveChapter upserts the page, the chapter and their link in one
// transaction. An existing page keeps its ordinal.
func (s *Store) SaveChapter(ctx context.Context, chapter mirror.Chapter, page mirror.Page) (link mirror.ChapterPage, err error) {
	if page.URL == "" || page.Hash == "" || chapter.Hash == "" {
		return mirror.ChapterPage{}, fmt.Errorf("page url, page hash and chapter hash are required")
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return mirror.ChapterPage{}, fmt.Errorf("begin save chapter: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = tx.QueryRow(ctx, upsertPageSQL,
		page.SeriesID,
		page.Ordinal,
		page.URL,
		page.Hash,
		page.Title,
		page.Content,
		page.BlobURI,
		page.FetchedAt,
	).Scan(&link.PageID); err != nil {
		return mirror.ChapterPage{}, fmt.Errorf("upsert page: %w", err)
	}
	if err = tx.QueryRow(ctx, upsertChapterSQL,
		chapter.SeriesID,
		chapter.BookID,
		chapter.Ordinal,
		chapter.Title,
		chapter.Hash,
	).Scan(&link.ChapterID); err != nil {
		return mirror.ChapterPage{}, fmt.Errorf("upsert chapter: %w", err)
	}
	link.Ordinal = 1
	if _, err = tx.Exec(ctx, upsertChapterPageSQL, link.ChapterID, link.PageID, link.Ordinal); err != nil {
		return mirror.ChapterPage{}, fmt.Errorf("link chapter page: %w", err)
	}
	if err = tx.Commit(ctx); err != nil {
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
WHERE c.series_id = $1
ORDER BY p.ordinal, p.id`

// Scaffold returns the series structure ordered by page ordinal.
func (s *Store) Scaffold(ctx context.Context, seriesID int64) (mirror.Scaffold, error) {
	rows, err := s.pool.Query(ctx, scaffoldSQL, seriesID)
	if err != nil {
		return nil, fmt.Errorf("read scaffold: %w", err)
	}
	defer rows.Close()
	var out mirror.Scaffold
	for rows.Next() {
		var e mirror.ScaffoldEntry
		if err := rows.Scan(
			&e.Book.ID, &e.Book.SeriesID, &e.Book.Ordinal, &e.Book.Title, &e.Book.CoverURL, &e.Book.IllustrationURLs,
			&e.Chapter.ID, &e.Chapter.SeriesID, &e.Chapter.BookID, &e.Chapter.Ordinal, &e.Chapter.Title, &e.Chapter.Hash,
			&e.Page.ID, &e.Page.SeriesID, &e.Page.Ordinal, &e.Page.URL, &e.Page.Hash, &e.Page.Title, &e.Page.BlobURI, &e.Page.FetchedAt,
		); err != nil {
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
	var p mirror.Page
	err := s.pool.QueryRow(ctx, `
SELECT id, series_id, ordinal, url, hash, title, blob_uri, fetched_at
FROM pages WHERE series_id = $1
ORDER BY ordinal DESC, id DESC
LIMIT 1`, seriesID).Scan(&p.ID, &p.SeriesID, &p.Ordinal, &p.URL, &p.Hash, &p.Title, &p.BlobURI, &p.FetchedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return mirror.Page{}, fmt.Errorf("last page of series %d: %w", seriesID, mirror.ErrNotFound)
	}
	if err != nil {
		return mirror.Page{}, fmt.Errorf("last page of series %d: %w", seriesID, err)
	}
	return p, nil
}

func scanSeries(row pgx.Row) (mirror.Series, error) {
	var s mirror.Series
	err := row.Scan(
		&s.ID, &s.URL, &s.Title, &s.Description, &s.Authors, &s.Genres, &s.Tags,
		&s.CoverURL, &s.LastChapterURL, &s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return mirror.Series{}, mirror.ErrNotFound
	}
	if err != nil {
		return mirror.Series{}, err
	}
	return s, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
