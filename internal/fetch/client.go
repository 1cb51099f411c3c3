package fetch

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/novelmirror/internal/logging"
	"github.com/JakeFAU/novelmirror/internal/metrics"
	"github.com/JakeFAU/novelmirror/internal/ratelimit"
	"github.com/JakeFAU/novelmirror/internal/telemetry"
)

var tracer = telemetry.Tracer("fetch")

// Client paces every attempt through the host's Limiter and retries
// transient failures, resetting the session between attempts.
type Client struct {
	fetcher Fetcher
	limiter *ratelimit.Limiter
	retry   ratelimit.RetryPolicy
	site    string
	logger  *zap.Logger
}

// NewClient wires a fetcher to its host limiter.
func NewClient(fetcher Fetcher, limiter *ratelimit.Limiter, retry ratelimit.RetryPolicy, site string, logger *zap.Logger) *Client {
	return &Client{
		fetcher: fetcher,
		limiter: limiter,
		retry:   retry,
		site:    site,
		logger:  logging.Component(logger, "fetch").With(zap.String("site", site)),
	}
}

// NewPacedClient builds the Limiter for site with fetcher as its session.
func NewPacedClient(fetcher Fetcher, limits ratelimit.Config, retry ratelimit.RetryPolicy, site string, logger *zap.Logger) *Client {
	limiter := ratelimit.New(limits,
		ratelimit.WithSite(site),
		ratelimit.WithSession(fetcher),
		ratelimit.WithLogger(logging.Component(logger, "ratelimit")),
	)
	return NewClient(fetcher, limiter, retry, site, logger)
}

// Site returns the host label the client was built for.
func (c *Client) Site() string {
	return c.site
}

// Get fetches url, retrying transient failures up to the policy ceiling.
func (c *Client) Get(ctx context.Context, url string) (resp Response, err error) {
	attempts := 0
	ctx, span := tracer.Start(ctx, "fetch.get", trace.WithAttributes(
		attribute.String("site", c.site),
		attribute.String("url", url),
	))
	defer func() {
		telemetry.End(span, err,
			attribute.Int("attempts", attempts),
			attribute.Int("status_code", resp.StatusCode),
		)
	}()

	op := func(ctx context.Context) error {
		attempts++
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		r, err := c.fetcher.Fetch(ctx, url)
		if err != nil {
			metrics.ObserveFetch(c.site, "error", 0)
			return err
		}
		metrics.ObserveFetch(c.site, "ok", len(r.Body))
		resp = r
		return nil
	}
	onRetry := func(attempt int, err error) {
		metrics.ObserveFetch(c.site, "retry", 0)
		c.logger.Warn("retrying fetch",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		c.fetcher.ResetSession()
	}
	if err := c.retry.Do(ctx, op, onRetry); err != nil {
		return Response{}, fmt.Errorf("get %s: %w", url, err)
	}
	return resp, nil
}
