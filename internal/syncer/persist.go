package syncer

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/novelmirror/internal/hash/sha256"
	"github.com/JakeFAU/novelmirror/internal/metrics"
	"github.com/JakeFAU/novelmirror/internal/mirror"
	"github.com/JakeFAU/novelmirror/internal/source"
)

const archiveContentType = "text/html; charset=utf-8"

// Update is published after a sync that wrote at least one chapter.
type Update struct {
	RunID       string `json:"run_id"`
	SeriesID    int64  `json:"series_id"`
	URL         string `json:"url"`
	Title       string `json:"title"`
	NewChapters int    `json:"new_chapters"`
	IsNew       bool   `json:"is_new"`
}

// persist writes one fetched chapter at the next page ordinal and advances
// the run. pageURL is the identity the walk uses for the known-page check.
func (e *Engine) persist(
	ctx context.Context,
	r *run,
	book mirror.Book,
	chapterOrdinal int,
	pageURL string,
	fetched source.Chapter,
) (mirror.ScaffoldEntry, error) {
	page := mirror.Page{
		SeriesID:  r.series.ID,
		Ordinal:   r.lastPage.Ordinal + 1,
		URL:       pageURL,
		Hash:      mirror.PageHash(pageURL),
		Title:     fetched.Title,
		Content:   fetched.Content,
		FetchedAt: e.opts.Clock.Now(),
	}
	page.BlobURI = e.archive(ctx, r, page)

	chapter := mirror.Chapter{
		SeriesID: r.series.ID,
		BookID:   book.ID,
		Ordinal:  chapterOrdinal,
		Title:    fetched.Title,
		Hash:     mirror.ChapterHash(fetched.Title, book.Ordinal-1, chapterOrdinal),
	}
	link, err := e.store.SaveChapter(ctx, chapter, page)
	if err != nil {
		return mirror.ScaffoldEntry{}, fmt.Errorf("save chapter %s: %w", pageURL, err)
	}
	page.ID = link.PageID
	page.Content = ""
	chapter.ID = link.ChapterID

	r.lastPage = page
	r.loaded++
	metrics.ObserveChapterIngested(r.site)
	r.logger.Debug("chapter saved",
		zap.String("chapter_url", pageURL),
		zap.Int("book", book.Ordinal),
		zap.Int("chapter", chapterOrdinal),
		zap.Int("page", page.Ordinal),
	)

	if page.Ordinal > r.maxOrdinal {
		r.maxOrdinal = page.Ordinal
		r.series.LastChapterURL = pageURL
		r.dirty = true
	}
	return mirror.ScaffoldEntry{Book: book, Chapter: chapter, Page: page}, nil
}

func (e *Engine) skipChapter(r *run, url string, err error) {
	metrics.ObserveChapterFailure(r.site)
	if err == nil {
		r.logger.Warn("chapter unavailable, skipping", zap.String("chapter_url", url))
		return
	}
	r.logger.Warn("chapter fetch failed, skipping", zap.String("chapter_url", url), zap.Error(err))
}

// archive stores the raw body and returns its URI. A failed upload is
// logged and leaves the page without a blob.
func (e *Engine) archive(ctx context.Context, r *run, page mirror.Page) string {
	if e.opts.Archive == nil {
		return ""
	}
	path := e.blobPath(r.series.URL, page.Hash)
	uri, err := e.opts.Archive.PutObject(ctx, path, archiveContentType, strings.NewReader(page.Content))
	if err != nil {
		r.logger.Warn("archive page failed", zap.String("path", path), zap.Error(err))
		return ""
	}
	return uri
}

func (e *Engine) blobPath(seriesURL, pageHash string) string {
	seriesHash := sha256.Sum([]byte(seriesURL))
	prefix := strings.Trim(e.opts.ArchivePrefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s/%s.html", seriesHash, pageHash)
	}
	return fmt.Sprintf("%s/%s/%s.html", prefix, seriesHash, pageHash)
}

func (e *Engine) notify(ctx context.Context, r *run, isNew bool) {
	if e.opts.Publisher == nil {
		return
	}
	update := Update{
		RunID:       r.id,
		SeriesID:    r.series.ID,
		URL:         r.series.URL,
		Title:       r.series.Title,
		NewChapters: r.loaded,
		IsNew:       isNew,
	}
	id, err := e.opts.Publisher.Publish(ctx, e.opts.Topic, update)
	if err != nil {
		r.logger.Warn("publish update failed", zap.Error(err))
		return
	}
	r.logger.Info("update published", zap.String("message_id", id), zap.Int("new_chapters", r.loaded))
}
