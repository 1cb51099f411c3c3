package syncer

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/novelmirror/internal/mirror"
	"github.com/JakeFAU/novelmirror/internal/source"
)

var errFlaky = errors.New("connection reset")

// script is the remote side shared by the fake adapters: chapter pages and
// how many more times each URL fails (-1 forever).
type script struct {
	mu      sync.Mutex
	info    source.SeriesInfo
	infoErr error
	pages   map[string]source.Chapter
	fails   map[string]int
	fetched []string
}

func newScript(title string) *script {
	return &script{
		info:  source.SeriesInfo{Title: title},
		pages: make(map[string]source.Chapter),
		fails: make(map[string]int),
	}
}

func (s *script) seriesInfo(url string) (source.SeriesInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.infoErr != nil {
		return source.SeriesInfo{}, s.infoErr
	}
	info := s.info
	info.URL = url
	return info, nil
}

func (s *script) fetch(url string) (*source.Chapter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetched = append(s.fetched, url)
	if n := s.fails[url]; n != 0 {
		if n > 0 {
			s.fails[url] = n - 1
		}
		return nil, fmt.Errorf("get %s: %w", url, errFlaky)
	}
	page, ok := s.pages[url]
	if !ok {
		return nil, nil
	}
	page.URL = url
	return &page, nil
}

func (s *script) fetches() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.fetched...)
}

func (s *script) resetFetches() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetched = nil
}

type fakeVolume struct {
	*script
	volumes []source.Volume
	tocErr  error
}

func (f *fakeVolume) Name() string { return "fake-volume" }

func (f *fakeVolume) SeriesInfo(_ context.Context, url string) (source.SeriesInfo, error) {
	return f.seriesInfo(url)
}

func (f *fakeVolume) Volumes(_ context.Context, _ string) iter.Seq2[source.Volume, error] {
	return func(yield func(source.Volume, error) bool) {
		f.mu.Lock()
		volumes, tocErr := f.volumes, f.tocErr
		f.mu.Unlock()
		if tocErr != nil {
			yield(source.Volume{}, tocErr)
			return
		}
		for _, v := range volumes {
			if !yield(v, nil) {
				return
			}
		}
	}
}

func (f *fakeVolume) FetchChapter(_ context.Context, url, _ string) (*source.Chapter, error) {
	return f.fetch(url)
}

// newFakeVolume builds one volume per entry of sizes with chapters named
// "C<n>" at https://<host>/c/<n>, numbered across volumes.
func newFakeVolume(host string, sizes ...int) *fakeVolume {
	f := &fakeVolume{script: newScript("Saga")}
	n := 0
	for v, size := range sizes {
		volume := source.Volume{Title: fmt.Sprintf("Volume %d", v+1)}
		for range size {
			n++
			url := fmt.Sprintf("https://%s/c/%d", host, n)
			title := fmt.Sprintf("C%d", n)
			volume.Chapters = append(volume.Chapters, source.ChapterRef{Title: title, URL: url})
			f.pages[url] = source.Chapter{Title: title, Content: "<p>" + title + "</p>"}
		}
		f.volumes = append(f.volumes, volume)
	}
	return f
}

type fakeLinear struct {
	*script
}

func (f *fakeLinear) Name() string { return "fake-linear" }

func (f *fakeLinear) SeriesInfo(_ context.Context, url string) (source.SeriesInfo, error) {
	return f.seriesInfo(url)
}

func (f *fakeLinear) FetchChapter(_ context.Context, url string) (*source.Chapter, error) {
	return f.fetch(url)
}

// newFakeLinear chains n chapters with root-relative next links.
func newFakeLinear(host string, n int) *fakeLinear {
	f := &fakeLinear{script: newScript("Serial")}
	f.info.FirstChapterURL = fmt.Sprintf("https://%s/c/1", host)
	for i := 1; i <= n; i++ {
		f.addChapter(host, i)
	}
	return f
}

// addChapter appends chapter i and links i-1 to it.
func (f *fakeLinear) addChapter(host string, i int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	url := fmt.Sprintf("https://%s/c/%d", host, i)
	title := fmt.Sprintf("C%d", i)
	f.pages[url] = source.Chapter{Title: title, Content: "<p>" + title + "</p>"}
	if i > 1 {
		prev := fmt.Sprintf("https://%s/c/%d", host, i-1)
		page := f.pages[prev]
		page.NextURL = fmt.Sprintf("/c/%d", i)
		f.pages[prev] = page
	}
}

// countingStore counts series writes on top of a real store.
type countingStore struct {
	mirror.Store
	mu      sync.Mutex
	upserts int
}

func (s *countingStore) UpsertSeries(ctx context.Context, series mirror.Series) (int64, error) {
	s.mu.Lock()
	s.upserts++
	s.mu.Unlock()
	return s.Store.UpsertSeries(ctx, series)
}

func (s *countingStore) seriesWrites() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upserts
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (s *seqIDs) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("run-%d", s.n), nil
}

func newTestEngine(t *testing.T, store mirror.Store, opts Options, adapters map[string]source.Adapter) *Engine {
	t.Helper()
	registry := source.NewRegistry()
	for domain, adapter := range adapters {
		require.NoError(t, registry.Register(domain, adapter))
	}
	if opts.Clock == nil {
		opts.Clock = fixedClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	}
	if opts.IDs == nil {
		opts.IDs = &seqIDs{}
	}
	engine, err := New(store, registry, opts)
	require.NoError(t, err)
	return engine
}

func entryFor(t *testing.T, scaffold mirror.Scaffold, url string) mirror.ScaffoldEntry {
	t.Helper()
	for _, entry := range scaffold {
		if entry.Page.URL == url {
			return entry
		}
	}
	t.Fatalf("no scaffold entry for %s", url)
	return mirror.ScaffoldEntry{}
}

func pageOrdinals(scaffold mirror.Scaffold) []int {
	out := make([]int, 0, len(scaffold))
	for _, entry := range scaffold {
		out = append(out, entry.Page.Ordinal)
	}
	return out
}
