package source

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeLinear struct {
	pages   map[string]*Chapter
	errs    map[string]error
	markers []string
	fetched []string
}

func (f *fakeLinear) Name() string { return "fake" }

func (f *fakeLinear) SeriesInfo(context.Context, string) (SeriesInfo, error) {
	return SeriesInfo{}, nil
}

func (f *fakeLinear) FetchChapter(_ context.Context, url string) (*Chapter, error) {
	f.fetched = append(f.fetched, url)
	if err := f.errs[url]; err != nil {
		return nil, err
	}
	ch, ok := f.pages[url]
	if !ok {
		return nil, nil
	}
	cp := *ch
	return &cp, nil
}

func (f *fakeLinear) TerminalMarkers() []string { return f.markers }

func collect(t *testing.T, src LinearSource, first string) ([]Chapter, error) {
	t.Helper()
	var out []Chapter
	for ch, err := range Chapters(context.Background(), src, first) {
		if err != nil {
			return out, err
		}
		out = append(out, ch)
	}
	return out, nil
}

func TestChaptersFollowsNextLinks(t *testing.T) {
	t.Parallel()

	src := &fakeLinear{pages: map[string]*Chapter{
		"https://lin.test/s/1": {Title: "One", Content: "a", NextURL: "/s/2"},
		"https://lin.test/s/2": {Title: "Two", Content: "b", NextURL: "https://lin.test/s/3"},
		"https://lin.test/s/3": {Title: "Three", Content: "c", NextURL: ""},
	}}

	chapters, err := collect(t, src, "https://lin.test/s/1")
	require.NoError(t, err)
	require.Len(t, chapters, 3)
	require.Equal(t, "https://lin.test/s/2", chapters[1].URL)
	require.Equal(t, "Three", chapters[2].Title)
}

func TestChaptersStopsAtTerminalMarker(t *testing.T) {
	t.Parallel()

	src := &fakeLinear{
		markers: []string{"/teaser"},
		pages: map[string]*Chapter{
			"https://lin.test/s/1": {Title: "One", Content: "a", NextURL: "/s/teaser"},
		},
	}
	chapters, err := collect(t, src, "https://lin.test/s/1")
	require.NoError(t, err)
	require.Len(t, chapters, 1)
	require.Equal(t, []string{"https://lin.test/s/1"}, src.fetched)
}

func TestChaptersStopsOnInvalidChapter(t *testing.T) {
	t.Parallel()

	src := &fakeLinear{pages: map[string]*Chapter{
		"https://lin.test/s/1": {Title: "One", Content: "a", NextURL: "/s/2"},
	}}
	chapters, err := collect(t, src, "https://lin.test/s/1")
	require.ErrorIs(t, err, ErrChapterUnavailable)
	require.ErrorContains(t, err, "https://lin.test/s/2")
	require.Len(t, chapters, 1)
	require.Equal(t, []string{"https://lin.test/s/1", "https://lin.test/s/2"}, src.fetched)
}

func TestChaptersYieldsErrorAndHalts(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	src := &fakeLinear{
		pages: map[string]*Chapter{
			"https://lin.test/s/1": {Title: "One", Content: "a", NextURL: "/s/2"},
			"https://lin.test/s/2": {Title: "Two", Content: "b", NextURL: "/s/3"},
			"https://lin.test/s/4": {Title: "Four", Content: "d", NextURL: "/s/5"},
		},
		errs: map[string]error{"https://lin.test/s/3": boom},
	}
	chapters, err := collect(t, src, "https://lin.test/s/1")
	require.ErrorIs(t, err, boom)
	require.Len(t, chapters, 2)
	require.NotContains(t, src.fetched, "https://lin.test/s/4")
}

func TestChaptersBreaksCycles(t *testing.T) {
	t.Parallel()

	src := &fakeLinear{pages: map[string]*Chapter{
		"https://lin.test/s/1": {Title: "One", Content: "a", NextURL: "/s/2"},
		"https://lin.test/s/2": {Title: "Two", Content: "b", NextURL: "/s/1"},
	}}
	chapters, err := collect(t, src, "https://lin.test/s/1")
	require.NoError(t, err)
	require.Len(t, chapters, 2)
}

func TestChaptersEarlyTermination(t *testing.T) {
	t.Parallel()

	src := &fakeLinear{pages: map[string]*Chapter{
		"https://lin.test/s/1": {Title: "One", Content: "a", NextURL: "/s/2"},
		"https://lin.test/s/2": {Title: "Two", Content: "b", NextURL: "/s/3"},
	}}
	for range Chapters(context.Background(), src, "https://lin.test/s/1") {
		break
	}
	require.Equal(t, []string{"https://lin.test/s/1"}, src.fetched)
}
