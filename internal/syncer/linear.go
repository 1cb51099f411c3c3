package syncer

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/novelmirror/internal/mirror"
	"github.com/JakeFAU/novelmirror/internal/source"
)

// linearCursor is the book being filled and the last chapter ordinal used
// in it. A zero book means no book has been opened yet.
type linearCursor struct {
	book    mirror.Book
	chapter int
}

// walkLinear follows next links from start. A failed fetch ends the walk:
// later chapters are only reachable through the failed page.
func (e *Engine) walkLinear(
	ctx context.Context,
	r *run,
	src source.LinearSource,
	start string,
	cursor linearCursor,
	known map[string]mirror.ScaffoldEntry,
) error {
	for chapter, err := range source.Chapters(ctx, src, start) {
		if err != nil {
			if canceled(ctx, err) {
				return err
			}
			if errors.Is(err, source.ErrChapterUnavailable) {
				err = nil
			}
			e.skipChapter(r, chapter.URL, err)
			r.logger.Info("linear crawl truncated", zap.String("chapter_url", chapter.URL))
			return nil
		}
		if entry, ok := known[mirror.PageHash(chapter.URL)]; ok {
			r.lastPage = entry.Page
			cursor = linearCursor{book: entry.Book, chapter: entry.Chapter.Ordinal}
			continue
		}
		if cursor.book.ID == 0 || cursor.chapter >= e.opts.AutoBookSplit {
			book, err := e.openBook(ctx, r, cursor.book.Ordinal+1)
			if err != nil {
				return err
			}
			cursor = linearCursor{book: book}
		}
		cursor.chapter++
		entry, err := e.persist(ctx, r, cursor.book, cursor.chapter, chapter.URL, chapter)
		if err != nil {
			return err
		}
		known[entry.Page.Hash] = entry
	}
	return nil
}

// openBook creates the next synthetic book of a linear series.
func (e *Engine) openBook(ctx context.Context, r *run, ordinal int) (mirror.Book, error) {
	book := mirror.Book{
		SeriesID: r.series.ID,
		Ordinal:  ordinal,
		Title:    fmt.Sprintf("Book %d", ordinal),
	}
	id, err := e.store.UpsertBook(ctx, book)
	if err != nil {
		return mirror.Book{}, fmt.Errorf("save book %d: %w", ordinal, err)
	}
	book.ID = id
	r.logger.Debug("book opened", zap.Int("book", ordinal))
	return book, nil
}

// linearResumePoint returns where a linear catch-up starts: the last stored
// page, refetched to learn its current next link. A series with no pages
// starts over from the first chapter.
func (e *Engine) linearResumePoint(
	ctx context.Context,
	r *run,
	scaffold mirror.Scaffold,
	info source.SeriesInfo,
) (string, linearCursor, error) {
	last, err := e.store.LastPage(ctx, r.series.ID)
	if errors.Is(err, mirror.ErrNotFound) {
		first := info.FirstChapterURL
		if first == "" {
			first = r.series.URL
		}
		return first, linearCursor{}, nil
	}
	if err != nil {
		return "", linearCursor{}, fmt.Errorf("read last page: %w", err)
	}
	r.lastPage = last
	var cursor linearCursor
	for _, entry := range scaffold {
		if entry.Page.ID == last.ID {
			cursor = linearCursor{book: entry.Book, chapter: entry.Chapter.Ordinal}
			break
		}
	}
	r.logger.Debug("resuming linear crawl", zap.String("from", last.URL), zap.Int("page", last.Ordinal))
	return last.URL, cursor, nil
}
