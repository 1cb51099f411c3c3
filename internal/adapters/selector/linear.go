package selector

import (
	"context"

	"github.com/JakeFAU/novelmirror/internal/source"
)

// Linear reads hosts where every chapter page links to the next one.
type Linear struct {
	name   string
	client Getter
	rules  Rules
}

// NewLinear builds a linear adapter.
func NewLinear(name string, client Getter, rules Rules) *Linear {
	return &Linear{name: name, client: client, rules: rules}
}

// Name identifies the adapter in logs.
func (a *Linear) Name() string { return a.name }

// TerminalMarkers returns the configured placeholder markers.
func (a *Linear) TerminalMarkers() []string { return a.rules.TerminalMarkers }

// SeriesInfo reads metadata from url. Without a first-chapter selector the
// url itself is taken as the first chapter.
func (a *Linear) SeriesInfo(ctx context.Context, url string) (source.SeriesInfo, error) {
	info, err := seriesInfo(ctx, a.client, a.rules.Series, url)
	if err != nil {
		return source.SeriesInfo{}, err
	}
	if info.FirstChapterURL == "" {
		info.FirstChapterURL = url
	}
	return info, nil
}

// FetchChapter returns nil when the page has no title or body. NextURL is
// the raw href so the crawl can resolve it against the series root.
func (a *Linear) FetchChapter(ctx context.Context, url string) (*source.Chapter, error) {
	p, err := load(ctx, a.client, url)
	if err != nil {
		return nil, err
	}
	root := p.doc.Selection
	title := text(root, a.rules.Chapter.Title)
	content := innerHTML(root, a.rules.Chapter.Content)
	if title == "" || content == "" {
		return nil, nil
	}
	next, _ := root.Find(a.rules.Chapter.Next).First().Attr("href")
	return &source.Chapter{
		URL:     p.base.String(),
		Title:   title,
		Content: content,
		NextURL: next,
	}, nil
}
