// Package selector implements linear and volume adapters driven by CSS
// selectors, so a new host can be mirrored from configuration alone.
package selector

import (
	"fmt"
	"strings"
)

// Kinds of crawl a site can use.
const (
	KindLinear = "linear"
	KindVolume = "volume"
)

// SeriesSelectors locate series metadata on the landing page.
type SeriesSelectors struct {
	Title        string `mapstructure:"title"`
	Description  string `mapstructure:"description"`
	Author       string `mapstructure:"author"`
	Genre        string `mapstructure:"genre"`
	Tag          string `mapstructure:"tag"`
	Cover        string `mapstructure:"cover"`
	FirstChapter string `mapstructure:"first_chapter"`
}

// TOCSelectors locate the table of contents. Volume is optional; without it
// the whole page is one volume.
type TOCSelectors struct {
	Volume       string `mapstructure:"volume"`
	VolumeTitle  string `mapstructure:"volume_title"`
	ChapterLink  string `mapstructure:"chapter_link"`
	Illustration string `mapstructure:"illustration"`
	NextPage     string `mapstructure:"next_page"`
}

// ChapterSelectors locate the chapter body.
type ChapterSelectors struct {
	Title   string `mapstructure:"title"`
	Content string `mapstructure:"content"`
	Next    string `mapstructure:"next"`
}

// Rules describe how to read one host.
type Rules struct {
	Kind            string           `mapstructure:"kind"`
	Series          SeriesSelectors  `mapstructure:"series"`
	TOC             TOCSelectors     `mapstructure:"toc"`
	Chapter         ChapterSelectors `mapstructure:"chapter"`
	TerminalMarkers []string         `mapstructure:"terminal_markers"`
}

// Validate checks that the selectors the kind needs are present.
func (r Rules) Validate() error {
	if strings.TrimSpace(r.Chapter.Title) == "" || strings.TrimSpace(r.Chapter.Content) == "" {
		return fmt.Errorf("chapter.title and chapter.content selectors are required")
	}
	switch r.Kind {
	case KindLinear:
		if strings.TrimSpace(r.Chapter.Next) == "" {
			return fmt.Errorf("chapter.next selector is required for linear sites")
		}
	case KindVolume:
		if strings.TrimSpace(r.TOC.ChapterLink) == "" {
			return fmt.Errorf("toc.chapter_link selector is required for volume sites")
		}
	default:
		return fmt.Errorf("kind must be %q or %q, got %q", KindLinear, KindVolume, r.Kind)
	}
	return nil
}
