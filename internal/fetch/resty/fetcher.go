// Package restyfetcher implements fetch.Fetcher with resty behind a
// Cloudflare-bypass transport, for hosts that challenge plain clients.
package restyfetcher

import (
	"context"
	"fmt"
	"net/http/cookiejar"
	"sync"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"golang.org/x/net/publicsuffix"

	"github.com/JakeFAU/novelmirror/internal/fetch"
)

// Config controls the resty client.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	Headers   map[string]string
}

// Fetcher implements fetch.Fetcher using a resty client.
type Fetcher struct {
	mu     sync.Mutex
	client *resty.Client
}

// New builds a Fetcher.
func New(cfg Config) (*Fetcher, error) {
	if cfg.UserAgent == "" {
		cfg.UserAgent = fetch.DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	client := resty.New()
	jar, err := newJar()
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	client.SetHeader("user-agent", cfg.UserAgent)
	client.SetHeaders(cfg.Headers)
	client.SetTimeout(cfg.Timeout)

	return &Fetcher{client: client}, nil
}

// ResetSession installs an empty cookie jar.
func (f *Fetcher) ResetSession() {
	jar, err := newJar()
	if err != nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.client.SetCookieJar(jar)
}

// Fetch executes a single GET.
func (f *Fetcher) Fetch(ctx context.Context, url string) (fetch.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	start := time.Now()
	res, err := f.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return fetch.Response{}, fmt.Errorf("resty get: %w", err)
	}
	if err := fetch.CheckStatus(url, res.StatusCode()); err != nil {
		return fetch.Response{}, err
	}
	finalURL := url
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		finalURL = res.RawResponse.Request.URL.String()
	}
	return fetch.Response{
		URL:        finalURL,
		StatusCode: res.StatusCode(),
		Header:     res.Header().Clone(),
		Body:       res.Body(),
		Duration:   time.Since(start),
	}, nil
}

func newJar() (*cookiejar.Jar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	return jar, nil
}
