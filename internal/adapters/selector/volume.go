package selector

import (
	"context"
	"iter"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/novelmirror/internal/source"
)

// Volume reads hosts that publish a volume-grouped table of contents.
type Volume struct {
	name   string
	client Getter
	rules  Rules
}

// NewVolume builds a volume adapter.
func NewVolume(name string, client Getter, rules Rules) *Volume {
	return &Volume{name: name, client: client, rules: rules}
}

// Name identifies the adapter in logs.
func (a *Volume) Name() string { return a.name }

// SeriesInfo reads metadata from the series landing page.
func (a *Volume) SeriesInfo(ctx context.Context, url string) (source.SeriesInfo, error) {
	return seriesInfo(ctx, a.client, a.rules.Series, url)
}

// Volumes walks the table of contents, following the next-page link when
// one is configured. A volume split across pages is yielded once: the first
// volume of a page continues the last one of the previous page when their
// titles match. Volumes on the same page are never merged.
func (a *Volume) Volumes(ctx context.Context, seriesURL string) iter.Seq2[source.Volume, error] {
	return func(yield func(source.Volume, error) bool) {
		var pending *source.Volume
		seen := make(map[string]struct{})
		pageURL := seriesURL
		for pageURL != "" {
			if _, ok := seen[pageURL]; ok {
				break
			}
			seen[pageURL] = struct{}{}

			p, err := load(ctx, a.client, pageURL)
			if err != nil {
				yield(source.Volume{}, err)
				return
			}
			for i, volume := range a.parseVolumes(p) {
				if i == 0 && pending != nil && pending.Title == volume.Title {
					pending.Chapters = append(pending.Chapters, volume.Chapters...)
					pending.IllustrationURLs = append(pending.IllustrationURLs, volume.IllustrationURLs...)
					continue
				}
				if pending != nil && !yield(*pending, nil) {
					return
				}
				pending = &volume
			}
			pageURL = href(p, p.doc.Selection, a.rules.TOC.NextPage)
		}
		if pending != nil {
			yield(*pending, nil)
		}
	}
}

func (a *Volume) parseVolumes(p page) []source.Volume {
	containers := p.doc.Selection
	if a.rules.TOC.Volume != "" {
		containers = p.doc.Find(a.rules.TOC.Volume)
	}
	var volumes []source.Volume
	containers.Each(func(_ int, container *goquery.Selection) {
		volume := source.Volume{
			Title: text(container, a.rules.TOC.VolumeTitle),
			URL:   p.base.String(),
		}
		container.Find(a.rules.TOC.ChapterLink).Each(func(_ int, link *goquery.Selection) {
			raw, _ := link.Attr("href")
			chapterURL := source.ResolveHref(p.base, raw)
			if chapterURL == "" {
				return
			}
			volume.Chapters = append(volume.Chapters, source.ChapterRef{
				Title: collapse(link.Text()),
				URL:   chapterURL,
			})
		})
		if a.rules.TOC.Illustration != "" {
			container.Find(a.rules.TOC.Illustration).Each(func(_ int, img *goquery.Selection) {
				if u := imageURL(p, img); u != "" {
					volume.IllustrationURLs = append(volume.IllustrationURLs, u)
				}
			})
		}
		volumes = append(volumes, volume)
	})
	return volumes
}

// FetchChapter returns nil when the page has no title or body. A title that
// repeats the book title as a prefix is trimmed to the chapter's own name.
func (a *Volume) FetchChapter(ctx context.Context, url, bookTitle string) (*source.Chapter, error) {
	p, err := load(ctx, a.client, url)
	if err != nil {
		return nil, err
	}
	root := p.doc.Selection
	title := trimBookPrefix(text(root, a.rules.Chapter.Title), bookTitle)
	content := innerHTML(root, a.rules.Chapter.Content)
	if title == "" || content == "" {
		return nil, nil
	}
	return &source.Chapter{
		URL:     p.base.String(),
		Title:   title,
		Content: content,
		NextURL: href(p, root, a.rules.Chapter.Next),
	}, nil
}

func trimBookPrefix(title, bookTitle string) string {
	if bookTitle == "" || len(title) <= len(bookTitle) || !strings.HasPrefix(title, bookTitle) {
		return title
	}
	rest := strings.TrimLeft(title[len(bookTitle):], " -:–—|")
	if rest == "" {
		return title
	}
	return rest
}
