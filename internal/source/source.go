// Package source defines the two crawl protocols a host adapter can speak
// and the registry that maps a URL's root domain to its adapter.
//
// A LinearSource exposes chapters one page at a time, each page naming the
// next. A VolumeSource publishes a table of contents grouped into volumes and
// serves any chapter on request. Both return a nil chapter, not an error, for
// an entry that exists but cannot be read (locked or blank).
package source

import (
	"context"
	"iter"
)

// SeriesInfo is the metadata shown on a series landing page.
type SeriesInfo struct {
	URL             string
	Title           string
	Description     string
	Authors         []string
	Genres          []string
	Tags            []string
	CoverURL        string
	FirstChapterURL string
}

// ChapterRef is a table-of-contents entry.
type ChapterRef struct {
	Title string
	URL   string
}

// Volume is one group of the table of contents.
type Volume struct {
	Title            string
	URL              string
	Chapters         []ChapterRef
	IllustrationURLs []string
}

// Chapter is a fetched chapter body.
type Chapter struct {
	URL     string
	Title   string
	Content string
	NextURL string
}

// Adapter is the capability every host adapter has.
type Adapter interface {
	Name() string
	SeriesInfo(ctx context.Context, url string) (SeriesInfo, error)
}

// LinearSource follows "next chapter" links.
type LinearSource interface {
	Adapter
	FetchChapter(ctx context.Context, url string) (*Chapter, error)
}

// VolumeSource exposes a volume-grouped table of contents.
type VolumeSource interface {
	Adapter
	// Volumes yields volumes in declared order. A yielded error ends the
	// sequence.
	Volumes(ctx context.Context, seriesURL string) iter.Seq2[Volume, error]
	FetchChapter(ctx context.Context, url, bookTitle string) (*Chapter, error)
}

// TerminalMarker is implemented by linear adapters whose hosts link to
// placeholder pages instead of leaving the next link empty.
type TerminalMarker interface {
	TerminalMarkers() []string
}

// CollectVolumes drains seq, stopping at the first error.
func CollectVolumes(seq iter.Seq2[Volume, error]) ([]Volume, error) {
	var volumes []Volume
	for volume, err := range seq {
		if err != nil {
			return nil, err
		}
		volumes = append(volumes, volume)
	}
	return volumes, nil
}
