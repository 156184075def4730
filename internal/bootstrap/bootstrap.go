// Package bootstrap assembles the quote manager from its configuration.
// Both the HTTP service and the CLI build their components here.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jsamuelsen/quote-manager/internal/adapters/clients"
	"github.com/jsamuelsen/quote-manager/internal/adapters/clients/acl"
	"github.com/jsamuelsen/quote-manager/internal/adapters/notify"
	"github.com/jsamuelsen/quote-manager/internal/adapters/storage/memory"
	"github.com/jsamuelsen/quote-manager/internal/adapters/storage/sqlite"
	"github.com/jsamuelsen/quote-manager/internal/app"
	"github.com/jsamuelsen/quote-manager/internal/platform/config"
	"github.com/jsamuelsen/quote-manager/internal/ports"
)

// Options adjust how components are built.
type Options struct {
	// Registerer receives the sync counters. Defaults to prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer

	// UserAgent is sent to the remote source.
	UserAgent string
}

// Components is the wired application.
type Components struct {
	Config  *config.Config
	Logger  *slog.Logger
	Storage ports.KeyValueStore
	Store   *app.LocalStore
	Banner  *notify.Banner
	Remote  *acl.RemoteSource

	// Syncer is nil when sync is disabled.
	Syncer *app.Syncer

	Service *app.QuoteService
	Health  *ports.DefaultHealthRegistry

	closers []func() error
}

// Build opens storage and wires every component. Call Warmup before serving
// and Close when done.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*Components, error) {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Components{
		Config: cfg,
		Logger: logger,
		Health: ports.NewHealthRegistry(),
	}

	if err := c.openStorage(ctx); err != nil {
		return nil, err
	}

	c.Store = app.NewLocalStore(c.Storage, logger.With(slog.String("component", "app.LocalStore")))

	c.Banner = notify.NewBanner(cfg.Notification.DisplayDuration, notify.WithLogger(logger))
	c.closers = append(c.closers, func() error {
		c.Banner.Stop()
		return nil
	})

	if err := c.buildRemote(opts); err != nil {
		_ = c.Close()
		return nil, err
	}

	svcCfg := app.QuoteServiceConfig{
		Store:       c.Store,
		Preferences: c.Storage,
		Session:     memory.New(),
		Notifier:    c.Banner,
		Logger:      logger,
	}

	if cfg.Sync.Enabled {
		syncer, err := app.NewSyncer(app.SyncerConfig{
			Source:       c.Remote,
			Reconciler:   app.NewReconciler(c.Store, c.Banner, logger),
			Interval:     cfg.Sync.Interval,
			FetchTimeout: cfg.Sync.FetchTimeout,
			RunOnStart:   cfg.Sync.RunOnStart,
			Registerer:   opts.Registerer,
			Logger:       logger,
		})
		if err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("creating syncer: %w", err)
		}

		c.Syncer = syncer
		svcCfg.Syncer = syncer
	}

	c.Service = app.NewQuoteService(svcCfg)

	return c, nil
}

func (c *Components) openStorage(ctx context.Context) error {
	switch c.Config.Storage.Driver {
	case config.StorageDriverMemory:
		c.Storage = memory.New()

		if err := c.Health.Register(ports.CheckerFunc{CheckerName: "storage"}); err != nil {
			return fmt.Errorf("registering storage health check: %w", err)
		}

		return nil

	case config.StorageDriverSQLite:
		db, err := sqlite.Open(ctx, c.Config.Storage.Path, sqlite.Options{
			BusyTimeout: c.Config.Storage.BusyTimeout,
		})
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}

		c.Storage = db
		c.closers = append(c.closers, db.Close)

		if err := c.Health.Register(db); err != nil {
			_ = db.Close()
			return fmt.Errorf("registering storage health check: %w", err)
		}

		c.Logger.Info("storage opened", slog.String("path", db.Path()))

		return nil

	default:
		return fmt.Errorf("unknown storage driver %q", c.Config.Storage.Driver)
	}
}

func (c *Components) buildRemote(opts Options) error {
	remoteCfg := c.Config.Services.Remote

	headers := map[string]string{"Accept": "application/json"}
	if opts.UserAgent != "" {
		headers["User-Agent"] = opts.UserAgent
	}

	client, err := clients.New(&clients.Config{
		BaseURL:     remoteCfg.BaseURL,
		ServiceName: remoteCfg.Name,
		Timeout:     c.Config.Client.Timeout,
		Retry:       c.Config.Client.Retry,
		Circuit:     c.Config.Client.CircuitBreaker,
		Transport:   c.Config.Client.Transport,
		Headers:     headers,
		Logger:      c.Logger,
	})
	if err != nil {
		return fmt.Errorf("creating remote client: %w", err)
	}

	c.Remote = acl.NewRemoteSource(acl.RemoteSourceConfig{
		Client:      client,
		ServiceName: remoteCfg.Name,
		Limit:       c.Config.Sync.BatchLimit,
		Logger:      c.Logger,
	})

	// The local collection keeps serving while the remote is down.
	if err := c.Health.RegisterOptional(c.Remote); err != nil {
		return fmt.Errorf("registering remote health check: %w", err)
	}

	return nil
}

// Warmup loads the persisted collection and probes dependencies in parallel.
// Loading and storage are required; the remote probe is not.
func (c *Components) Warmup(ctx context.Context) error {
	return app.Warmup(ctx, c.Logger,
		app.WarmupStep{Name: "load", Required: true, Run: c.Store.Load},
		app.WarmupStep{Name: "storage", Required: true, Run: c.checkStorage},
		app.WarmupStep{Name: "remote", Run: c.Remote.Check},
	)
}

func (c *Components) checkStorage(ctx context.Context) error {
	if checker, ok := c.Storage.(ports.HealthChecker); ok {
		return checker.Check(ctx)
	}

	return nil
}

// SyncStatus returns the syncer as a status provider, or nil when sync is disabled.
func (c *Components) SyncStatus() interface{ Status() app.SyncStatus } {
	if c.Syncer == nil {
		return nil
	}

	return c.Syncer
}

// Close releases resources in reverse order of acquisition.
func (c *Components) Close() error {
	var errs []error

	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}

	c.closers = nil

	return errors.Join(errs...)
}
