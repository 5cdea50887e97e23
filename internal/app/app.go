// Package app assembles the bot process from configuration: storage, the
// quote client, services, the scheduler, the Telegram bot and the ops HTTP
// server. Everything is built once at startup and torn down by Close.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/tbourn/go-token-alert-bot/internal/bot"
	"github.com/tbourn/go-token-alert-bot/internal/config"
	"github.com/tbourn/go-token-alert-bot/internal/domain"
	httpapi "github.com/tbourn/go-token-alert-bot/internal/http"
	"github.com/tbourn/go-token-alert-bot/internal/http/handlers"
	"github.com/tbourn/go-token-alert-bot/internal/notify"
	"github.com/tbourn/go-token-alert-bot/internal/observability"
	"github.com/tbourn/go-token-alert-bot/internal/quote"
	"github.com/tbourn/go-token-alert-bot/internal/repo"
	"github.com/tbourn/go-token-alert-bot/internal/scheduler"
	"github.com/tbourn/go-token-alert-bot/internal/services"
)

const shutdownTimeout = 10 * time.Second

// App is the wired process.
type App struct {
	Config config.Config
	Log    zerolog.Logger

	DB            *gorm.DB
	Catalog       domain.Catalog
	Quotes        *quote.Client
	Subscriptions *services.SubscriptionService
	Refresh       *services.RefreshService
	Scheduler     *scheduler.Scheduler
	Bot           *bot.Bot

	// Server is nil when the ops API is disabled.
	Server *http.Server

	last    atomic.Pointer[services.CycleReport]
	closers []func(context.Context) error
}

// OpenDB connects to the configured store and migrates the schema.
func OpenDB(cfg config.Config) (*gorm.DB, error) {
	db, err := repo.Open(cfg.DB, cfg.OTEL.Enabled)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		closeDB(db)
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// New builds the App. api is the Telegram client used both for the menus and
// for outbound alerts. On error everything already opened is released.
func New(ctx context.Context, cfg config.Config, api bot.API, logger zerolog.Logger, version string) (_ *App, err error) {
	a := &App{Config: cfg, Log: logger}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		return nil, fmt.Errorf("otel: %w", err)
	}
	a.closers = append(a.closers, shutdownOTel)

	if a.Catalog, err = domain.LoadCatalog(cfg.CatalogPath); err != nil {
		return nil, err
	}

	if a.DB, err = OpenDB(cfg); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { closeDB(a.DB); return nil })

	a.Quotes = quote.NewClient(cfg.Quote, logger)
	a.Subscriptions = services.NewSubscriptionService(a.DB, a.Quotes)
	a.Refresh = &services.RefreshService{
		Store:    a.Subscriptions,
		Quotes:   a.Quotes,
		Notifier: notify.New(api, cfg.NotifyMinInterval, logger),
		FailFast: cfg.CycleFailFast,
		Log:      logger.With().Str("component", "refresh").Logger(),
	}
	a.Scheduler = scheduler.New(cfg.UpdateEvery, func(ctx context.Context) error {
		rep, err := a.Refresh.Run(ctx)
		a.last.Store(&rep)
		return err
	}, logger)
	a.Bot = bot.New(api, a.Subscriptions, a.Catalog, logger)

	if cfg.HTTP.Enabled {
		gin.SetMode(cfg.HTTP.GinMode)
		r := gin.New()
		h := handlers.New(a.Subscriptions, a.Subscriptions, a.Scheduler)
		httpapi.RegisterRoutes(r, h, cfg.HTTP, cfg.OTEL.ServiceName, logger)
		a.Server = httpapi.NewServer(cfg.HTTP, r)
	}
	return a, nil
}

// Run serves the bot, the scheduler and the ops API until ctx ends or one of
// them fails. Cancellation is a clean stop and yields nil.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return stopped(a.Scheduler.Run(gctx)) })
	g.Go(func() error { return stopped(a.Bot.Run(gctx)) })

	if a.Server != nil {
		srv := a.Server
		g.Go(func() error {
			a.Log.Info().Str("addr", srv.Addr).Msg("ops api listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("ops api: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	a.Log.Info().
		Dur("update_every", a.Config.UpdateEvery).
		Bool("ops_api", a.Server != nil).
		Msg("alert bot started")
	err := g.Wait()
	a.Log.Info().Err(err).Msg("alert bot stopped")
	return err
}

// RefreshOnce runs a single cycle under the scheduler's overlap guard.
func (a *App) RefreshOnce(ctx context.Context) (services.CycleReport, error) {
	err := a.Scheduler.RunOnce(ctx)
	if errors.Is(err, scheduler.ErrRunning) {
		return services.CycleReport{}, err
	}
	return a.LastReport(), err
}

// LastReport returns the report of the most recent finished cycle.
func (a *App) LastReport() services.CycleReport {
	if rep := a.last.Load(); rep != nil {
		return *rep
	}
	return services.CycleReport{}
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func stopped(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
