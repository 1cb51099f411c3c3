// Package syncer mirrors a series into a mirror.Store and keeps it current.
//
// LoadNewSeries walks a source from the beginning. CatchUp reconciles the
// live table of contents against the stored scaffold: known pages are
// skipped by URL hash and each new page takes the ordinal after the last
// page seen in the walk, so an entry inserted mid-list lands at its
// position instead of being appended. Both operations run one chapter at a
// time; pacing lives in the adapter's fetch client.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/novelmirror/internal/clock/system"
	"github.com/JakeFAU/novelmirror/internal/id/uuid"
	"github.com/JakeFAU/novelmirror/internal/logging"
	"github.com/JakeFAU/novelmirror/internal/metrics"
	"github.com/JakeFAU/novelmirror/internal/mirror"
	"github.com/JakeFAU/novelmirror/internal/source"
	"github.com/JakeFAU/novelmirror/internal/telemetry"
)

// AutoBookSplit is the default number of chapters per synthetic book for
// linear sources.
const AutoBookSplit = 9999

// ErrSourceUnavailable means the series info or table of contents could
// not be read. Nothing past that point was attempted.
var ErrSourceUnavailable = errors.New("source unavailable")

var tracer = telemetry.Tracer("syncer")

const (
	opLoadNew = "load_new"
	opCatchUp = "catch_up"
)

// Resolver finds the adapter that serves a URL.
type Resolver interface {
	Lookup(rawURL string) (source.Adapter, error)
}

// Options tune an Engine. Zero values pick defaults; a nil Archive or
// Publisher disables that step.
type Options struct {
	AutoBookSplit int
	Archive       mirror.BlobStore
	ArchivePrefix string
	Publisher     mirror.Publisher
	Topic         string
	Clock         mirror.Clock
	IDs           mirror.IDGenerator
	Logger        *zap.Logger
}

// Engine runs load-new and catch-up syncs.
type Engine struct {
	store   mirror.Store
	sources Resolver
	opts    Options
	logger  *zap.Logger
}

// New constructs an Engine.
func New(store mirror.Store, sources Resolver, opts Options) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if sources == nil {
		return nil, fmt.Errorf("source resolver is required")
	}
	if opts.AutoBookSplit < 0 {
		return nil, fmt.Errorf("auto book split must not be negative, got %d", opts.AutoBookSplit)
	}
	if opts.AutoBookSplit == 0 {
		opts.AutoBookSplit = AutoBookSplit
	}
	if opts.Clock == nil {
		opts.Clock = system.New()
	}
	if opts.IDs == nil {
		opts.IDs = uuid.New()
	}
	return &Engine{
		store:   store,
		sources: sources,
		opts:    opts,
		logger:  logging.Component(opts.Logger, "syncer"),
	}, nil
}

// Target names what Load should sync. The first non-zero field wins, in
// the order Series, SeriesID, URL.
type Target struct {
	URL      string
	SeriesID int64
	Series   *mirror.Series
}

// ParseTarget reads a CLI argument: a positive integer is a series id,
// anything else a URL.
func ParseTarget(arg string) Target {
	arg = strings.TrimSpace(arg)
	if id, err := strconv.ParseInt(arg, 10, 64); err == nil && id > 0 {
		return Target{SeriesID: id}
	}
	return Target{URL: arg}
}

func (t Target) String() string {
	switch {
	case t.Series != nil:
		return t.Series.URL
	case t.SeriesID != 0:
		return strconv.FormatInt(t.SeriesID, 10)
	default:
		return t.URL
	}
}

// Load catches up a known series or loads a new one. isNew reports whether
// the series record was created by this call.
func (e *Engine) Load(ctx context.Context, target Target) (count int, isNew bool, err error) {
	switch {
	case target.Series != nil:
		count, err = e.CatchUp(ctx, *target.Series)
		return count, false, err
	case target.SeriesID != 0:
		series, err := e.store.GetSeries(ctx, target.SeriesID)
		if err != nil {
			return 0, false, fmt.Errorf("load series %d: %w", target.SeriesID, err)
		}
		count, err = e.CatchUp(ctx, series)
		return count, false, err
	case target.URL != "":
		series, err := e.store.FindSeriesByURL(ctx, target.URL)
		if errors.Is(err, mirror.ErrNotFound) {
			count, err = e.LoadNewSeries(ctx, target.URL)
			return count, true, err
		}
		if err != nil {
			return 0, false, fmt.Errorf("load series %s: %w", target.URL, err)
		}
		count, err = e.CatchUp(ctx, series)
		return count, false, err
	default:
		return 0, false, fmt.Errorf("load target is empty")
	}
}

// LoadNewSeries creates the series and ingests every chapter the source
// exposes. It returns the number of pages written.
func (e *Engine) LoadNewSeries(ctx context.Context, url string) (count int, err error) {
	ctx, r, err := e.begin(ctx, opLoadNew, url)
	if err != nil {
		return 0, err
	}
	defer func() { err = e.finish(ctx, r, true, err) }()

	adapter, err := e.sources.Lookup(url)
	if err != nil {
		return 0, fmt.Errorf("resolve adapter: %w", err)
	}
	info, err := adapter.SeriesInfo(ctx, url)
	if err != nil {
		return 0, fmt.Errorf("%w: series info %s: %w", ErrSourceUnavailable, url, err)
	}
	r.series = seriesFromInfo(mirror.Series{URL: url}, info, e.opts.Clock.Now())
	if err := e.saveSeries(ctx, r); err != nil {
		return 0, err
	}
	r.logger = r.logger.With(zap.Int64("series_id", r.series.ID))
	r.logger.Info("series created", zap.String("title", r.series.Title), zap.String("adapter", adapter.Name()))

	// A series record may predate this call when Load raced another run
	// or the caller bypassed Load, so start from whatever is stored.
	scaffold, err := e.store.Scaffold(ctx, r.series.ID)
	if err != nil {
		return 0, fmt.Errorf("read scaffold: %w", err)
	}
	known := scaffold.KnownPages()
	r.maxOrdinal = maxPageOrdinal(scaffold)

	switch src := adapter.(type) {
	case source.VolumeSource:
		err = e.walkVolumes(ctx, r, src, src.Volumes(ctx, url), known)
	case source.LinearSource:
		first := info.FirstChapterURL
		if first == "" {
			first = url
		}
		err = e.walkLinear(ctx, r, src, first, linearCursor{}, known)
	default:
		err = fmt.Errorf("adapter %q cannot crawl chapters", adapter.Name())
	}
	return r.loaded, err
}

// CatchUp ingests chapters that appeared since the last sync and refreshes
// series and book metadata. It returns the number of pages written.
func (e *Engine) CatchUp(ctx context.Context, series mirror.Series) (count int, err error) {
	ctx, r, err := e.begin(ctx, opCatchUp, series.URL)
	if err != nil {
		return 0, err
	}
	r.series = series
	r.logger = r.logger.With(zap.Int64("series_id", series.ID))
	defer func() { err = e.finish(ctx, r, false, err) }()

	if series.ID == 0 {
		return 0, fmt.Errorf("catch up %s: series has no id", series.URL)
	}
	adapter, err := e.sources.Lookup(series.URL)
	if err != nil {
		return 0, fmt.Errorf("resolve adapter: %w", err)
	}
	info, err := adapter.SeriesInfo(ctx, series.URL)
	if err != nil {
		return 0, fmt.Errorf("%w: series info %s: %w", ErrSourceUnavailable, series.URL, err)
	}
	r.series = seriesFromInfo(series, info, e.opts.Clock.Now())
	if err := e.saveSeries(ctx, r); err != nil {
		return 0, err
	}

	scaffold, err := e.store.Scaffold(ctx, series.ID)
	if err != nil {
		return 0, fmt.Errorf("read scaffold: %w", err)
	}
	known := scaffold.KnownPages()
	r.maxOrdinal = maxPageOrdinal(scaffold)

	switch src := adapter.(type) {
	case source.VolumeSource:
		volumes, err := source.CollectVolumes(src.Volumes(ctx, series.URL))
		if err != nil {
			return 0, fmt.Errorf("%w: table of contents %s: %w", ErrSourceUnavailable, series.URL, err)
		}
		r.logger.Debug("table of contents read", zap.Int("volumes", len(volumes)), zap.Int("known_pages", len(known)))
		err = e.walkVolumes(ctx, r, src, sliceVolumes(volumes), known)
		return r.loaded, err
	case source.LinearSource:
		start, cursor, err := e.linearResumePoint(ctx, r, scaffold, info)
		if err != nil {
			return 0, err
		}
		err = e.walkLinear(ctx, r, src, start, cursor, known)
		return r.loaded, err
	default:
		return 0, fmt.Errorf("adapter %q cannot crawl chapters", adapter.Name())
	}
}

// run is the state of one sync flow.
type run struct {
	id       string
	op       string
	site     string
	started  time.Time
	series   mirror.Series
	lastPage mirror.Page
	loaded   int
	logger   *zap.Logger
	span     trace.Span

	// maxOrdinal is the highest page ordinal stored for the series; dirty
	// marks a LastChapterURL not yet written back.
	maxOrdinal int
	dirty      bool
}

func (e *Engine) begin(ctx context.Context, op, url string) (context.Context, *run, error) {
	id, err := e.opts.IDs.NewID()
	if err != nil {
		return ctx, nil, fmt.Errorf("generate run id: %w", err)
	}
	site := metrics.SanitizeSite(url)
	ctx, span := tracer.Start(ctx, "syncer."+op, trace.WithAttributes(
		attribute.String("run_id", id),
		attribute.String("site", site),
		attribute.String("url", url),
	))
	fields := []zap.Field{
		zap.String("run_id", id),
		zap.String("operation", op),
		zap.String("site", site),
		zap.String("url", url),
	}
	if sc := span.SpanContext(); sc.IsSampled() {
		fields = append(fields, zap.String("trace_id", sc.TraceID().String()))
	}
	return ctx, &run{
		id:      id,
		op:      op,
		site:    site,
		started: e.opts.Clock.Now(),
		logger:  e.logger.With(fields...),
		span:    span,
	}, nil
}

// finish writes back the series once, records the run and returns err
// joined with any failure to save the series.
func (e *Engine) finish(ctx context.Context, r *run, isNew bool, err error) error {
	if r.dirty {
		if saveErr := e.saveSeries(context.WithoutCancel(ctx), r); saveErr != nil {
			err = errors.Join(err, saveErr)
		}
	}
	duration := e.opts.Clock.Now().Sub(r.started)
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.ObserveSync(r.op, result, duration)
	if err != nil {
		r.logger.Error("sync failed", zap.Int("new_chapters", r.loaded), zap.Error(err))
	} else {
		r.logger.Info("sync finished", zap.Int("new_chapters", r.loaded), zap.Duration("duration", duration))
	}
	if r.loaded > 0 {
		e.notify(ctx, r, isNew)
	}
	telemetry.End(r.span, err,
		attribute.Int64("series_id", r.series.ID),
		attribute.Int("new_chapters", r.loaded),
	)
	return err
}

func (e *Engine) saveSeries(ctx context.Context, r *run) error {
	r.series.UpdatedAt = e.opts.Clock.Now()
	id, err := e.store.UpsertSeries(ctx, r.series)
	if err != nil {
		return fmt.Errorf("save series %s: %w", r.series.URL, err)
	}
	r.series.ID = id
	r.dirty = false
	return nil
}

func maxPageOrdinal(scaffold mirror.Scaffold) int {
	highest := 0
	for _, entry := range scaffold {
		highest = max(highest, entry.Page.Ordinal)
	}
	return highest
}

// seriesFromInfo overlays fresh metadata on a stored series. Empty fields
// in info keep the stored value.
func seriesFromInfo(series mirror.Series, info source.SeriesInfo, now time.Time) mirror.Series {
	if info.Title != "" {
		series.Title = info.Title
	}
	if info.Description != "" {
		series.Description = info.Description
	}
	if len(info.Authors) > 0 {
		series.Authors = info.Authors
	}
	if len(info.Genres) > 0 {
		series.Genres = info.Genres
	}
	if len(info.Tags) > 0 {
		series.Tags = info.Tags
	}
	if info.CoverURL != "" {
		series.CoverURL = info.CoverURL
	}
	if series.CreatedAt.IsZero() {
		series.CreatedAt = now
	}
	return series
}

// canceled reports whether err came from ctx rather than the source.
func canceled(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
