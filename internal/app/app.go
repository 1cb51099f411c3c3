// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/novelmirror/internal/adapters/selector"
	"github.com/JakeFAU/novelmirror/internal/config"
	"github.com/JakeFAU/novelmirror/internal/dispatcher"
	"github.com/JakeFAU/novelmirror/internal/fetch"
	collyfetcher "github.com/JakeFAU/novelmirror/internal/fetch/colly"
	"github.com/JakeFAU/novelmirror/internal/fetch/headless"
	restyfetcher "github.com/JakeFAU/novelmirror/internal/fetch/resty"
	"github.com/JakeFAU/novelmirror/internal/logging"
	"github.com/JakeFAU/novelmirror/internal/mirror"
	mempub "github.com/JakeFAU/novelmirror/internal/publisher/memory"
	"github.com/JakeFAU/novelmirror/internal/publisher/pubsub"
	"github.com/JakeFAU/novelmirror/internal/source"
	"github.com/JakeFAU/novelmirror/internal/storage/gcs"
	"github.com/JakeFAU/novelmirror/internal/storage/local"
	memstore "github.com/JakeFAU/novelmirror/internal/storage/memory"
	"github.com/JakeFAU/novelmirror/internal/storage/postgres"
	"github.com/JakeFAU/novelmirror/internal/storage/sqlite"
	"github.com/JakeFAU/novelmirror/internal/syncer"
	"github.com/JakeFAU/novelmirror/internal/telemetry"
)

// App holds the shared, long-lived services for one process. It is built
// once at startup and closed by the command hooks.
type App struct {
	Config     config.Config
	Logger     *zap.Logger
	Store      mirror.Store
	Archive    mirror.BlobStore
	Publisher  mirror.Publisher
	Sources    *source.Registry
	Engine     *syncer.Engine
	Dispatcher *dispatcher.Dispatcher

	closers []func() error
}

// New builds every service cfg asks for and fails fast if one cannot start.
// Services already started are closed on failure.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return NewWithLogger(ctx, cfg, logger)
}

// NewWithLogger is New with a caller-supplied logger.
func NewWithLogger(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}
	if err := a.start(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	logger.Info("services initialized", zap.Strings("domains", a.Sources.Domains()))
	return a, nil
}

func (a *App) start(ctx context.Context) error {
	cfg := a.Config
	a.Logger.Info("initializing services",
		zap.String("storage", cfg.Storage.Driver),
		zap.String("archive", cfg.Archive.Driver),
		zap.String("notify", cfg.Notify.Driver),
		zap.Int("sites", len(cfg.Sites)),
	)

	tp, err := telemetry.InitTracerProvider(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	a.closers = append(a.closers, func() error {
		return tp.Shutdown(context.Background())
	})

	if err := a.openStore(ctx); err != nil {
		return err
	}
	if err := a.openArchive(ctx); err != nil {
		return err
	}
	if err := a.openPublisher(ctx); err != nil {
		return err
	}
	if err := a.registerSites(); err != nil {
		return err
	}

	engine, err := syncer.New(a.Store, a.Sources, syncer.Options{
		AutoBookSplit: cfg.Sync.AutoBookSplit,
		Archive:       a.Archive,
		ArchivePrefix: cfg.Archive.Prefix,
		Publisher:     a.Publisher,
		Topic:         cfg.Notify.Topic,
		Logger:        a.Logger,
	})
	if err != nil {
		return fmt.Errorf("init engine: %w", err)
	}
	a.Engine = engine
	a.Dispatcher = dispatcher.New(engine, cfg.Sync.Concurrency, a.Logger)
	return nil
}

func (a *App) openStore(ctx context.Context) error {
	cfg := a.Config.Storage
	switch cfg.Driver {
	case config.StorageSQLite:
		store, err := sqlite.Open(ctx, cfg.DSN)
		if err != nil {
			return fmt.Errorf("init sqlite store: %w", err)
		}
		a.Store = store
	case config.StoragePostgres:
		store, err := postgres.New(ctx, postgres.Config{
			DSN:             cfg.DSN,
			MaxConns:        cfg.MaxConns,
			MaxConnLifetime: cfg.MaxConnLifetime,
		})
		if err != nil {
			return fmt.Errorf("init postgres store: %w", err)
		}
		a.Store = store
	case config.StorageMemory:
		a.Logger.Warn("using in-memory store; nothing survives this process")
		a.Store = memstore.NewStore()
	default:
		return fmt.Errorf("unknown storage driver: %s", cfg.Driver)
	}
	a.closers = append(a.closers, a.Store.Close)
	return nil
}

func (a *App) openArchive(ctx context.Context) error {
	cfg := a.Config.Archive
	switch cfg.Driver {
	case config.DriverNone, "":
		a.Logger.Info("raw page archive disabled")
	case config.DriverMemory:
		a.Archive = memstore.NewBlobStore()
	case config.DriverLocal:
		blobs, err := local.New(local.Config{BaseDir: cfg.BaseDir})
		if err != nil {
			return fmt.Errorf("init local archive: %w", err)
		}
		a.Archive = blobs
	case config.DriverGCS:
		blobs, err := gcs.Open(ctx, gcs.Config{Bucket: cfg.Bucket}, nil)
		if err != nil {
			return fmt.Errorf("init gcs archive: %w", err)
		}
		a.Archive = blobs
		a.closers = append(a.closers, blobs.Close)
	default:
		return fmt.Errorf("unknown archive driver: %s", cfg.Driver)
	}
	return nil
}

func (a *App) openPublisher(ctx context.Context) error {
	cfg := a.Config.Notify
	switch cfg.Driver {
	case config.DriverNone, "":
		a.Logger.Info("update notifications disabled")
	case config.DriverMemory:
		pub := mempub.New()
		a.Publisher = pub
		a.closers = append(a.closers, pub.Close)
	case config.DriverPubSub:
		pub, err := pubsub.New(ctx, pubsub.Config{ProjectID: cfg.ProjectID, Topic: cfg.Topic})
		if err != nil {
			return fmt.Errorf("init pubsub publisher: %w", err)
		}
		a.Publisher = pub
		a.closers = append(a.closers, pub.Close)
	default:
		return fmt.Errorf("unknown notify driver: %s", cfg.Driver)
	}
	return nil
}

// registerSites builds one paced client and adapter per configured domain.
func (a *App) registerSites() error {
	a.Sources = source.NewRegistry()
	for _, site := range a.Config.Sites {
		fetcher, err := a.newFetcher(site)
		if err != nil {
			return fmt.Errorf("site %s: %w", site.Domain, err)
		}
		client := fetch.NewPacedClient(
			fetcher,
			site.EffectiveLimits(a.Config.Limits),
			a.Config.HTTP.Retry,
			site.Domain,
			a.Logger,
		)
		adapter, err := newAdapter(site, client)
		if err != nil {
			return err
		}
		if err := a.Sources.Register(site.Domain, adapter); err != nil {
			return fmt.Errorf("register %s: %w", site.Domain, err)
		}
		a.Logger.Debug("site registered",
			zap.String("domain", site.Domain),
			zap.String("kind", site.Rules.Kind),
			zap.String("fetcher", site.Fetcher),
		)
	}
	return nil
}

func (a *App) newFetcher(site config.SiteConfig) (fetch.Fetcher, error) {
	userAgent := site.UserAgent
	if userAgent == "" {
		userAgent = a.Config.HTTP.UserAgent
	}
	switch site.Fetcher {
	case config.FetcherColly, "":
		return collyfetcher.New(collyfetcher.Config{
			UserAgent:     userAgent,
			RespectRobots: a.Config.HTTP.RespectRobots,
			Timeout:       a.Config.HTTP.Timeout,
			Headers:       site.Headers,
		})
	case config.FetcherResty:
		return restyfetcher.New(restyfetcher.Config{
			UserAgent: userAgent,
			Timeout:   a.Config.HTTP.Timeout,
			Headers:   site.Headers,
		})
	case config.FetcherHeadless:
		f, err := headless.NewChromedp(headless.Config{
			UserAgent:         userAgent,
			NavigationTimeout: a.Config.HTTP.NavigationTimeout,
			WaitSelector:      site.WaitSelector,
			Headers:           site.Headers,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error {
			f.Close()
			return nil
		})
		return f, nil
	default:
		return nil, fmt.Errorf("unknown fetcher: %s", site.Fetcher)
	}
}

func newAdapter(site config.SiteConfig, client *fetch.Client) (source.Adapter, error) {
	switch site.Rules.Kind {
	case selector.KindLinear:
		return selector.NewLinear(site.Domain, client, site.Rules), nil
	case selector.KindVolume:
		return selector.NewVolume(site.Domain, client, site.Rules), nil
	default:
		return nil, fmt.Errorf("site %s: unknown kind %q", site.Domain, site.Rules.Kind)
	}
}

// Close shuts services down in reverse start order and flushes the logger.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.Logger.Warn("error shutting down services", zap.Error(err))
		return err
	}
	// Sync fails on stderr for some platforms.
	_ = a.Logger.Sync()
	return nil
}
