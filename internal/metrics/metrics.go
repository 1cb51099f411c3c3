// Package metrics exposes Prometheus collectors for the mirror.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	chaptersIngestedTotal      *prometheus.CounterVec
	chapterFailuresTotal       *prometheus.CounterVec
	fetchAttemptsTotal         *prometheus.CounterVec
	fetchBytesTotal            *prometheus.CounterVec
	limiterPausesTotal         *prometheus.CounterVec
	limiterPauseSeconds        *prometheus.HistogramVec
	syncRunsTotal              *prometheus.CounterVec
	syncDurationSeconds        *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		chaptersIngestedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mirror_chapters_ingested_total",
				Help: "Chapters persisted as new pages, labeled by site.",
			},
			[]string{"site"},
		)

		chapterFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mirror_chapter_failures_total",
				Help: "Chapters skipped because the fetch failed or the entry was invalid.",
			},
			[]string{"site"},
		)

		fetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mirror_fetch_attempts_total",
				Help: "Fetch attempts, labeled by site and outcome (ok, retry, error).",
			},
			[]string{"site", "outcome"},
		)

		fetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mirror_fetch_bytes_total",
				Help: "Bytes fetched from source hosts, labeled by site.",
			},
			[]string{"site"},
		)

		limiterPausesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mirror_limiter_pauses_total",
				Help: "Rate limiter window pauses, labeled by site.",
			},
			[]string{"site"},
		)

		limiterPauseSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mirror_limiter_pause_seconds",
				Help:    "Histogram of rate limiter pause durations.",
				Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300},
			},
			[]string{"site"},
		)

		syncRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mirror_sync_runs_total",
				Help: "Series sync runs, labeled by operation and result.",
			},
			[]string{"operation", "result"},
		)

		syncDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mirror_sync_duration_seconds",
				Help:    "Histogram of series sync durations.",
				Buckets: []float64{1, 5, 30, 60, 300, 900, 3600},
			},
			[]string{"operation"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveChapterIngested counts a chapter persisted for site.
func ObserveChapterIngested(site string) {
	Init()
	chaptersIngestedTotal.WithLabelValues(SanitizeSite(site)).Inc()
}

// ObserveChapterFailure counts a skipped chapter for site.
func ObserveChapterFailure(site string) {
	Init()
	chapterFailuresTotal.WithLabelValues(SanitizeSite(site)).Inc()
}

// ObserveFetch records one fetch attempt and, on success, the body size.
func ObserveFetch(site, outcome string, bytesFetched int) {
	Init()
	sanitized := SanitizeSite(site)
	fetchAttemptsTotal.WithLabelValues(sanitized, outcome).Inc()
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(sanitized).Add(float64(bytesFetched))
	}
}

// ObserveLimiterPause records a limiter window pause.
func ObserveLimiterPause(site string, duration time.Duration) {
	Init()
	sanitized := SanitizeSite(site)
	limiterPausesTotal.WithLabelValues(sanitized).Inc()
	limiterPauseSeconds.WithLabelValues(sanitized).Observe(duration.Seconds())
}

// ObserveSync records the outcome of a LoadNewSeries or CatchUp run.
func ObserveSync(operation, result string, duration time.Duration) {
	Init()
	syncRunsTotal.WithLabelValues(operation, result).Inc()
	syncDurationSeconds.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
