package source

import (
	"context"
	"errors"
	"fmt"
	"iter"
)

// ErrChapterUnavailable means the adapter found no usable chapter at a URL,
// e.g. a locked or blank page.
var ErrChapterUnavailable = errors.New("chapter unavailable")

// Chapters lazily crawls a linear source from firstURL. Next links resolve
// against the root of firstURL. The sequence ends when a link is terminal or
// when a URL repeats. A fetch error, or ErrChapterUnavailable for a nil
// chapter, is yielded once and ends it too.
func Chapters(ctx context.Context, src LinearSource, firstURL string) iter.Seq2[Chapter, error] {
	return func(yield func(Chapter, error) bool) {
		root, err := RootOf(firstURL)
		if err != nil {
			yield(Chapter{URL: firstURL}, err)
			return
		}
		markers := DefaultTerminalMarkers
		if tm, ok := src.(TerminalMarker); ok && len(tm.TerminalMarkers()) > 0 {
			markers = tm.TerminalMarkers()
		}

		visited := make(map[string]struct{})
		next := firstURL
		for next != "" {
			if _, seen := visited[next]; seen {
				return
			}
			visited[next] = struct{}{}

			chapter, err := src.FetchChapter(ctx, next)
			if err != nil {
				yield(Chapter{URL: next}, fmt.Errorf("fetch chapter %s: %w", next, err))
				return
			}
			if chapter == nil {
				yield(Chapter{URL: next}, fmt.Errorf("chapter %s: %w", next, ErrChapterUnavailable))
				return
			}
			if chapter.URL == "" {
				chapter.URL = next
			}
			if !yield(*chapter, nil) {
				return
			}
			next, _ = ResolveNext(root, chapter.NextURL, markers)
		}
	}
}
