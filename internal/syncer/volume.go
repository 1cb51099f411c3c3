package syncer

import (
	"context"
	"fmt"
	"iter"

	"go.uber.org/zap"

	"github.com/JakeFAU/novelmirror/internal/mirror"
	"github.com/JakeFAU/novelmirror/internal/source"
)

// walkVolumes merges the remote table of contents with known pages in one
// pass. The volume index is the book ordinal and the position inside a
// volume is the chapter ordinal, whether or not the entry is fetched.
func (e *Engine) walkVolumes(
	ctx context.Context,
	r *run,
	src source.VolumeSource,
	volumes iter.Seq2[source.Volume, error],
	known map[string]mirror.ScaffoldEntry,
) error {
	index := 0
	for volume, err := range volumes {
		if err != nil {
			return fmt.Errorf("%w: table of contents %s: %w", ErrSourceUnavailable, r.series.URL, err)
		}
		index++
		book, err := e.saveBook(ctx, r, volume, index)
		if err != nil {
			return err
		}
		for i, ref := range volume.Chapters {
			if err := ctx.Err(); err != nil {
				return err
			}
			if entry, ok := known[mirror.PageHash(ref.URL)]; ok {
				r.lastPage = entry.Page
				continue
			}
			chapter, err := src.FetchChapter(ctx, ref.URL, volume.Title)
			if err != nil && canceled(ctx, err) {
				return err
			}
			if err != nil || chapter == nil {
				e.skipChapter(r, ref.URL, err)
				continue
			}
			if chapter.Title == "" {
				chapter.Title = ref.Title
			}
			entry, err := e.persist(ctx, r, book, i+1, ref.URL, *chapter)
			if err != nil {
				return err
			}
			known[entry.Page.Hash] = entry
		}
	}
	return nil
}

// saveBook upserts the book for a volume. Metadata is refreshed on every
// walk since covers change under known volumes.
func (e *Engine) saveBook(ctx context.Context, r *run, volume source.Volume, ordinal int) (mirror.Book, error) {
	book := mirror.Book{
		SeriesID:         r.series.ID,
		Ordinal:          ordinal,
		Title:            volume.Title,
		IllustrationURLs: volume.IllustrationURLs,
	}
	if book.Title == "" {
		book.Title = fmt.Sprintf("Volume %d", ordinal)
	}
	if len(volume.IllustrationURLs) > 0 {
		book.CoverURL = volume.IllustrationURLs[0]
	}
	id, err := e.store.UpsertBook(ctx, book)
	if err != nil {
		return mirror.Book{}, fmt.Errorf("save book %d: %w", ordinal, err)
	}
	book.ID = id
	r.logger.Debug("book saved",
		zap.Int("book", ordinal),
		zap.String("title", book.Title),
		zap.Int("chapters", len(volume.Chapters)),
	)
	return book, nil
}

func sliceVolumes(volumes []source.Volume) iter.Seq2[source.Volume, error] {
	return func(yield func(source.Volume, error) bool) {
		for _, v := range volumes {
			if !yield(v, nil) {
				return
			}
		}
	}
}
