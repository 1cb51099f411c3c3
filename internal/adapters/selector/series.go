package selector

import (
	"context"
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/novelmirror/internal/source"
)

func seriesInfo(ctx context.Context, client Getter, sel SeriesSelectors, rawURL string) (source.SeriesInfo, error) {
	p, err := load(ctx, client, rawURL)
	if err != nil {
		return source.SeriesInfo{}, err
	}
	root := p.doc.Selection
	info := source.SeriesInfo{
		URL:             rawURL,
		Title:           text(root, sel.Title),
		Description:     text(root, sel.Description),
		Authors:         texts(root, sel.Author),
		Genres:          texts(root, sel.Genre),
		Tags:            texts(root, sel.Tag),
		CoverURL:        coverURL(p, sel.Cover),
		FirstChapterURL: href(p, root, sel.FirstChapter),
	}
	if info.Title == "" {
		info.Title = text(root, "title")
	}
	if info.Title == "" {
		return source.SeriesInfo{}, fmt.Errorf("no series title at %s", rawURL)
	}
	return info, nil
}

func coverURL(p page, selector string) string {
	if selector == "" {
		return ""
	}
	node := p.doc.Find(selector).First()
	if node.Length() == 0 {
		return ""
	}
	if goquery.NodeName(node) == "meta" {
		content, _ := node.Attr("content")
		return source.ResolveHref(p.base, content)
	}
	if goquery.NodeName(node) != "img" {
		node = node.Find("img").First()
	}
	return imageURL(p, node)
}
