// Package app assembles a ribamar process from its configuration: logger,
// store, mailer, dispatch engine, scheduler and HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"

	"golang.org/x/sync/errgroup"

	"github.com/rhuss/ribamar/pkg/api"
	"github.com/rhuss/ribamar/pkg/config"
	"github.com/rhuss/ribamar/pkg/debug"
	"github.com/rhuss/ribamar/pkg/dispatch"
	"github.com/rhuss/ribamar/pkg/mailer"
	"github.com/rhuss/ribamar/pkg/observability"
	"github.com/rhuss/ribamar/pkg/scheduler"
	"github.com/rhuss/ribamar/pkg/storage"
	"github.com/rhuss/ribamar/pkg/storage/memory"
	"github.com/rhuss/ribamar/pkg/storage/mongo"
	"github.com/rhuss/ribamar/pkg/storage/postgres"
	transporthttp "github.com/rhuss/ribamar/pkg/transport/http"
)

// App is a fully wired ribamar process.
type App struct {
	cfg       *config.Config
	logger    *slog.Logger
	logCloser io.Closer
	store     storage.Store
	engine    *dispatch.Engine
	scheduler *scheduler.Scheduler
	server    *transporthttp.Server
}

type options struct {
	logger *slog.Logger
	store  storage.Store
	sender mailer.Sender
}

// Option overrides a component built from configuration.
type Option func(*options)

// WithLogger replaces the configured log sink.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithStore replaces the configured store. The App takes ownership of it.
func WithStore(s storage.Store) Option {
	return func(o *options) { o.store = s }
}

// WithMailSender replaces the SMTP sender.
func WithMailSender(s mailer.Sender) Option {
	return func(o *options) { o.sender = s }
}

// New builds every component. Nothing is scheduled or listening until Run.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (_ *App, err error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{cfg: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.logger = o.logger
	if a.logger == nil {
		logger, closer, err := observability.NewLogger(cfg.Logger)
		if err != nil {
			return nil, fmt.Errorf("creating logger: %w", err)
		}
		a.logger, a.logCloser = logger, closer
	}

	debug.Init(cfg.Logger.Debug, a.logger)

	a.store = o.store
	if a.store == nil {
		if a.store, err = openStore(ctx, cfg.Storage, a.logger); err != nil {
			return nil, err
		}
	}

	mailOpts := []mailer.Option{mailer.WithLogger(a.logger)}
	if o.sender != nil {
		mailOpts = append(mailOpts, mailer.WithSender(o.sender))
	}
	mail, err := mailer.New(cfg.Mailer, a.store, mailOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating mailer: %w", err)
	}

	a.engine, err = dispatch.New(dispatch.Deps{
		Store:     a.store,
		Logger:    a.logger,
		Mailer:    mail,
		Validator: api.NewValidator(),
		Config:    cfg,
	}, api.Entities()...)
	if err != nil {
		return nil, fmt.Errorf("creating dispatch engine: %w", err)
	}

	a.scheduler = scheduler.New(a.engine,
		scheduler.WithLogger(a.logger),
		scheduler.WithOverlap(cfg.Scheduler.AllowOverlap),
	)

	adapter := transporthttp.NewAdapter(a.engine,
		transporthttp.WithAdapterLogger(a.logger),
		transporthttp.WithMaxBodySize(cfg.Server.MaxBodySize),
	)
	serverOpts := []transporthttp.ServerOption{
		transporthttp.WithPort(cfg.Server.Port),
		transporthttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
		transporthttp.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		transporthttp.WithHealth(a.store),
		transporthttp.WithLogger(a.logger),
	}
	if cfg.Observability.Metrics.Enabled {
		serverOpts = append(serverOpts, transporthttp.WithMetrics(cfg.Observability.Metrics.Path))
	}
	if a.server, err = transporthttp.NewServer(adapter, serverOpts...); err != nil {
		return nil, fmt.Errorf("creating server: %w", err)
	}

	return a, nil
}

func openStore(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (storage.Store, error) {
	switch cfg.Type {
	case "memory":
		logger.Info("storage enabled", slog.String("type", "memory"), slog.Int("max_size", cfg.MaxSize))
		return memory.New(cfg.MaxSize), nil
	case "postgres":
		s, err := postgres.New(ctx, postgres.Config{
			DSN:            cfg.Postgres.DSN,
			MaxConns:       cfg.Postgres.MaxConns,
			MigrateOnStart: cfg.Postgres.MigrateOnStart,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("opening postgres store: %w", err)
		}
		logger.Info("storage enabled", slog.String("type", "postgres"))
		return s, nil
	case "mongo":
		s, err := mongo.New(ctx, mongo.Config{
			URL:      cfg.Mongo.URL,
			Database: cfg.Mongo.Database,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("opening mongo store: %w", err)
		}
		logger.Info("storage enabled", slog.String("type", "mongo"), slog.String("database", cfg.Mongo.Database))
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// Run schedules the maintenance tasks, then listens on the configured port
// until ctx is cancelled. A scheduling configuration error is returned
// before the port is opened.
func (a *App) Run(ctx context.Context) error {
	if err := a.scheduler.Start(ctx, a.cfg.Scheduler.Tasks); err != nil {
		return err
	}
	return a.serve(ctx, a.server.ListenAndServe)
}

// Serve is Run on an existing listener, which it takes ownership of.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	if err := a.scheduler.Start(ctx, a.cfg.Scheduler.Tasks); err != nil {
		ln.Close()
		return err
	}
	return a.serve(ctx, func(ctx context.Context) error { return a.server.ServeOn(ctx, ln) })
}

func (a *App) serve(ctx context.Context, listen func(context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return listen(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		<-a.scheduler.Stop().Done()
		return nil
	})
	return g.Wait()
}

// Close releases the store and the log sink.
func (a *App) Close() error {
	var errs []error
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.logCloser != nil {
		errs = append(errs, a.logCloser.Close())
	}
	return errors.Join(errs...)
}
