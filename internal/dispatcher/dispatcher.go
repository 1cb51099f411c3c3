// Package dispatcher runs catch-up over many series, one sequential flow per
// host with hosts in parallel.
package dispatcher

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/novelmirror/internal/logging"
	"github.com/JakeFAU/novelmirror/internal/mirror"
	"github.com/JakeFAU/novelmirror/internal/source"
)

// DefaultConcurrency bounds how many hosts are synced at once.
const DefaultConcurrency = 4

// Syncer catches up one series.
type Syncer interface {
	CatchUp(ctx context.Context, series mirror.Series) (int, error)
}

// Result is the outcome for one series.
type Result struct {
	Series mirror.Series
	Domain string
	Count  int
	Err    error
}

// Batch is the series of one root domain in input order.
type Batch struct {
	Domain string
	Series []int
}

// Dispatcher fans catch-up out across hosts.
type Dispatcher struct {
	syncer      Syncer
	concurrency int
	logger      *zap.Logger
}

// New creates a Dispatcher. A concurrency below 1 uses DefaultConcurrency.
func New(syncer Syncer, concurrency int, logger *zap.Logger) *Dispatcher {
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	return &Dispatcher{
		syncer:      syncer,
		concurrency: concurrency,
		logger:      logging.Component(logger, "dispatcher"),
	}
}

// Plan groups series indexes by root domain, domains sorted. Series whose
// URL has no usable host are returned in invalid.
func Plan(series []mirror.Series) (batches []Batch, invalid map[int]error) {
	byDomain := make(map[string][]int)
	for i, s := range series {
		domain, err := source.RootDomain(s.URL)
		if err != nil {
			if invalid == nil {
				invalid = make(map[int]error)
			}
			invalid[i] = err
			continue
		}
		byDomain[domain] = append(byDomain[domain], i)
	}
	for domain, idx := range byDomain {
		batches = append(batches, Batch{Domain: domain, Series: idx})
	}
	slices.SortFunc(batches, func(a, b Batch) int {
		switch {
		case a.Domain < b.Domain:
			return -1
		case a.Domain > b.Domain:
			return 1
		default:
			return 0
		}
	})
	return batches, invalid
}

// FilterSite keeps the series whose root domain matches site's.
func FilterSite(series []mirror.Series, site string) ([]mirror.Series, error) {
	want, err := source.RootDomain(site)
	if err != nil {
		return nil, fmt.Errorf("site %q: %w", site, err)
	}
	var out []mirror.Series
	for _, s := range series {
		if domain, err := source.RootDomain(s.URL); err == nil && domain == want {
			out = append(out, s)
		}
	}
	return out, nil
}

// CatchUpAll syncs every series and returns one Result per input, in input
// order. A failing series does not stop the others; only cancellation ends
// the run early, and then the returned error is the context's.
func (d *Dispatcher) CatchUpAll(ctx context.Context, series []mirror.Series) ([]Result, error) {
	results := make([]Result, len(series))
	for i, s := range series {
		results[i] = Result{Series: s}
	}
	batches, invalid := Plan(series)
	for i, err := range invalid {
		results[i].Err = err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for _, batch := range batches {
		g.Go(func() error {
			logger := d.logger.With(zap.String("domain", batch.Domain))
			logger.Info("host flow started", zap.Int("series", len(batch.Series)))
			total := 0
			for _, i := range batch.Series {
				results[i].Domain = batch.Domain
				if err := gctx.Err(); err != nil {
					results[i].Err = err
					continue
				}
				count, err := d.syncer.CatchUp(gctx, results[i].Series)
				results[i].Count = count
				results[i].Err = err
				total += count
				if err != nil {
					logger.Warn("series catch-up failed",
						zap.Int64("series_id", results[i].Series.ID),
						zap.Error(err),
					)
				}
			}
			logger.Info("host flow finished", zap.Int("new_chapters", total))
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return results, fmt.Errorf("catch up all: %w", err)
	}
	return results, nil
}
