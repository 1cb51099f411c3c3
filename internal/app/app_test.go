package app_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/novelmirror/internal/adapters/selector"
	"github.com/JakeFAU/novelmirror/internal/app"
	"github.com/JakeFAU/novelmirror/internal/config"
	mempub "github.com/JakeFAU/novelmirror/internal/publisher/memory"
	"github.com/JakeFAU/novelmirror/internal/ratelimit"
	memstore "github.com/JakeFAU/novelmirror/internal/storage/memory"
	"github.com/JakeFAU/novelmirror/internal/storage/sqlite"
	"github.com/JakeFAU/novelmirror/internal/syncer"
)

func baseConfig() config.Config {
	return config.Config{
		Storage: config.StorageConfig{Driver: config.StorageMemory},
		Archive: config.ArchiveConfig{Driver: config.DriverNone, Prefix: "raw"},
		Notify:  config.NotifyConfig{Driver: config.DriverNone, Topic: "updates"},
		Sync:    config.SyncConfig{AutoBookSplit: syncer.AutoBookSplit, Concurrency: 2},
		HTTP: config.HTTPConfig{
			Timeout: 5 * time.Second,
			Retry:   ratelimit.RetryPolicy{MaxAttempts: 1},
		},
	}
}

func linearSite(domain string) config.SiteConfig {
	return config.SiteConfig{
		Domain:  domain,
		Fetcher: config.FetcherResty,
		Rules: selector.Rules{
			Kind:    selector.KindLinear,
			Series:  selector.SeriesSelectors{Title: "h1.title", FirstChapter: "a.first"},
			Chapter: selector.ChapterSelectors{Title: "h1", Content: "#content", Next: "a.next"},
		},
	}
}

func TestNew_MemoryDefaults(t *testing.T) {
	t.Parallel()

	a, err := app.NewWithLogger(context.Background(), baseConfig(), zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, a)

	assert.IsType(t, &memstore.Store{}, a.Store)
	assert.Nil(t, a.Archive)
	assert.Nil(t, a.Publisher)
	assert.NotNil(t, a.Engine)
	assert.NotNil(t, a.Dispatcher)
	assert.Empty(t, a.Sources.Domains())
	require.NoError(t, a.Close())
}

func TestNew_SQLiteLocalArchiveAndSites(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := baseConfig()
	cfg.Storage = config.StorageConfig{Driver: config.StorageSQLite, DSN: filepath.Join(dir, "mirror.db")}
	cfg.Archive = config.ArchiveConfig{Driver: config.DriverLocal, BaseDir: filepath.Join(dir, "pages")}
	cfg.Notify = config.NotifyConfig{Driver: config.DriverMemory, Topic: "updates"}

	volume := config.SiteConfig{
		Domain:  "www.volumes.org",
		Fetcher: config.FetcherColly,
		Rules: selector.Rules{
			Kind:    selector.KindVolume,
			TOC:     selector.TOCSelectors{ChapterLink: "a.chapter"},
			Chapter: selector.ChapterSelectors{Title: "h2", Content: "div.text"},
		},
	}
	cfg.Sites = []config.SiteConfig{linearSite("example.com"), volume}

	a, err := app.NewWithLogger(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)

	assert.IsType(t, &sqlite.Store{}, a.Store)
	assert.IsType(t, &mempub.Publisher{}, a.Publisher)
	assert.NotNil(t, a.Archive)
	assert.ElementsMatch(t, []string{"example.com", "volumes.org"}, a.Sources.Domains())

	info, err := os.Stat(filepath.Join(dir, "pages"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	require.NoError(t, a.Close())
}

func TestNew_Failures(t *testing.T) {
	t.Parallel()

	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"unknown storage", func(c *config.Config) { c.Storage.Driver = "mysql" }},
		{"unknown archive", func(c *config.Config) { c.Archive.Driver = "s3" }},
		{"unknown notify", func(c *config.Config) { c.Notify.Driver = "kafka" }},
		{"archive dir is a file", func(c *config.Config) {
			c.Archive = config.ArchiveConfig{Driver: config.DriverLocal, BaseDir: filepath.Join(blocker, "pages")}
		}},
		{"unknown fetcher", func(c *config.Config) {
			site := linearSite("example.com")
			site.Fetcher = "curl"
			c.Sites = []config.SiteConfig{site}
		}},
		{"unknown kind", func(c *config.Config) {
			site := linearSite("example.com")
			site.Rules.Kind = "tree"
			c.Sites = []config.SiteConfig{site}
		}},
		{"duplicate domain", func(c *config.Config) {
			c.Sites = []config.SiteConfig{linearSite("example.com"), linearSite("www.example.com")}
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := baseConfig()
			tc.mutate(&cfg)
			a, err := app.NewWithLogger(context.Background(), cfg, zap.NewNop())
			require.Error(t, err)
			assert.Nil(t, a)
		})
	}
}

func TestApp_LoadsLinearSeriesEndToEnd(t *testing.T) {
	t.Parallel()

	pages := map[string]string{
		"/series": `<html><body><h1 class="title">Serial</h1><a class="first" href="/c/1">Start</a></body></html>`,
		"/c/1":    `<html><body><h1>One</h1><div id="content"><p>first</p></div><a class="next" href="/c/2">Next</a></body></html>`,
		"/c/2":    `<html><body><h1>Two</h1><div id="content"><p>second</p></div></body></html>`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	cfg := baseConfig()
	cfg.Archive.Driver = config.DriverMemory
	cfg.Notify.Driver = config.DriverMemory
	cfg.Sites = []config.SiteConfig{linearSite("127.0.0.1")}

	a, err := app.NewWithLogger(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	ctx := context.Background()
	count, isNew, err := a.Engine.Load(ctx, syncer.ParseTarget(srv.URL+"/series"))
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, 2, count)

	series, err := a.Store.ListSeries(ctx)
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.Equal(t, "Serial", series[0].Title)
	assert.Equal(t, srv.URL+"/c/2", series[0].LastChapterURL)

	scaffold, err := a.Store.Scaffold(ctx, series[0].ID)
	require.NoError(t, err)
	require.Len(t, scaffold, 2)
	assert.Equal(t, "One", scaffold[0].Chapter.Title)
	assert.Equal(t, "Book 1", scaffold[1].Book.Title)

	published := a.Publisher.(*mempub.Publisher).Messages()
	require.Len(t, published, 1)

	results, err := a.Dispatcher.CatchUpAll(ctx, series)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.Equal(t, 0, results[0].Count)
}
