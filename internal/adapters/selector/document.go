package selector

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/novelmirror/internal/fetch"
	"github.com/JakeFAU/novelmirror/internal/source"
)

// Getter fetches a page; *fetch.Client paces and retries.
type Getter interface {
	Get(ctx context.Context, url string) (fetch.Response, error)
}

type page struct {
	doc  *goquery.Document
	base *url.URL
}

func load(ctx context.Context, client Getter, rawURL string) (page, error) {
	res, err := client.Get(ctx, rawURL)
	if err != nil {
		return page{}, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body))
	if err != nil {
		return page{}, fmt.Errorf("parse html %s: %w", rawURL, err)
	}
	finalURL := res.URL
	if finalURL == "" {
		finalURL = rawURL
	}
	base, err := url.Parse(finalURL)
	if err != nil {
		return page{}, fmt.Errorf("parse page url: %w", err)
	}
	return page{doc: doc, base: base}, nil
}

func text(s *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return collapse(s.Find(selector).First().Text())
}

func texts(s *goquery.Selection, selector string) []string {
	if selector == "" {
		return nil
	}
	var out []string
	s.Find(selector).Each(func(_ int, item *goquery.Selection) {
		if t := collapse(item.Text()); t != "" {
			out = append(out, t)
		}
	})
	return out
}

func innerHTML(s *goquery.Selection, selector string) string {
	node := s.Find(selector).First()
	if node.Length() == 0 {
		return ""
	}
	html, err := node.Html()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(html)
}

func href(p page, s *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	raw, _ := s.Find(selector).First().Attr("href")
	return source.ResolveHref(p.base, raw)
}

// imageURL prefers lazy-load attributes over src placeholders.
func imageURL(p page, img *goquery.Selection) string {
	for _, attr := range []string{"data-src", "data-lazy-src", "src"} {
		if raw, ok := img.Attr(attr); ok && strings.TrimSpace(raw) != "" {
			return source.ResolveHref(p.base, raw)
		}
	}
	return ""
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
