// Package app provides the top-level application lifecycle for the signal
// bridge. It wires together all dependencies (exchange client, sizing,
// execution, stores, monitors, notifications) and runs the HTTP ingress until
// the context is cancelled.
package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tradewire/signalbridge/internal/config"
	"github.com/tradewire/signalbridge/internal/domain"
	"github.com/tradewire/signalbridge/internal/feed"
	"github.com/tradewire/signalbridge/internal/monitor"
	"github.com/tradewire/signalbridge/internal/server"
	"github.com/tradewire/signalbridge/internal/server/handler"
	"github.com/tradewire/signalbridge/internal/service"
)

// guardSweepInterval is how often expired cooldown and dedup entries are
// dropped from the signal guard.
const guardSweepInterval = 10 * time.Minute

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// monitorHandle defers binding the trailing-stop manager, which needs the
// trade service as its closer and so is built after it. It also subscribes the
// position's symbol to the WebSocket price feed before a watch starts.
type monitorHandle struct {
	manager *monitor.Manager
	wsFeed  *feed.KrakenWSFeed
}

func (h *monitorHandle) StartFor(pos domain.Position, confidence int) {
	if h.wsFeed != nil {
		h.wsFeed.AddSymbol(pos.Symbol)
	}
	if h.manager != nil {
		h.manager.StartFor(pos, confidence)
	}
}

// Run is the main entry point. It wires all dependencies, starts the HTTP
// server and background workers, and blocks until the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.Bool("dry_run", a.cfg.Trading.DryRun),
		slog.String("default_symbol", a.cfg.Trading.DefaultSymbol),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, cleanup)

	// Market metadata is fetched once per process; a cold exchange at boot is
	// tolerated and retried on the first signal.
	if err := deps.Catalog.Warm(ctx); err != nil {
		a.logger.WarnContext(ctx, "market catalog warm-up failed, will retry on demand",
			slog.Any("error", err))
	}

	g, ctx := errgroup.WithContext(ctx)

	handle := &monitorHandle{}
	trades := service.NewTradeService(
		deps.Sizer, deps.Gateway, deps.Guard,
		deps.Positions, deps.Trades,
		handle, deps.Notifier, deps.Balances,
		a.logger,
	)

	// WebSocket ticker feed keeps the price board warm for monitors.
	if a.cfg.Exchange.WsFeedEnabled {
		wsFeed := feed.NewKrakenWSFeed(
			a.cfg.Exchange.WsURL,
			[]string{a.cfg.Trading.DefaultSymbol},
			deps.Board,
			a.logger,
		)
		handle.wsFeed = wsFeed
		g.Go(func() error {
			err := wsFeed.Run(ctx)
			if ctx.Err() != nil {
				return nil
			}
			return err
		})
	}

	// Trailing-stop monitors; resumed for open positions at start.
	if a.cfg.Trailing.Enabled {
		mon := monitor.NewMonitor(monitor.Config{
			StopPct:             a.cfg.Trailing.StopPct,
			HardCapPct:          a.cfg.Trailing.HardCapPct,
			PollInterval:        a.cfg.Trailing.PollInterval.Duration,
			ConfidenceThreshold: a.cfg.Trailing.ConfidenceThreshold,
			Standard: monitor.Tier{
				ActivationPct: a.cfg.Trailing.Standard.ActivationPct,
				GapPct:        a.cfg.Trailing.Standard.GapPct,
			},
			High: monitor.Tier{
				ActivationPct: a.cfg.Trailing.High.ActivationPct,
				GapPct:        a.cfg.Trailing.High.GapPct,
			},
		}, deps.Positions, deps.Board, trades, a.logger)
		mgr := monitor.NewManager(mon, a.logger)
		handle.manager = mgr
		g.Go(func() error {
			err := mgr.Run(ctx, deps.Positions, 0)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	// Periodic guard sweep keeps the cooldown map from growing unbounded.
	g.Go(func() error {
		ticker := time.NewTicker(guardSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case now := <-ticker.C:
				deps.Guard.Cleanup(now)
			}
		}
	})

	// HTTP ingress.
	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		APIKey:          a.cfg.Server.APIKey,
		RateLimiter:     deps.RateLimiter,
		RateLimitPerMin: a.cfg.Server.RateLimitPerMin,
	}, server.Handlers{
		Health:    handler.NewHealthHandler(a.cfg.Trading.DryRun, a.logger),
		Webhook:   handler.NewWebhookHandler(trades, deps.Normalizer, a.cfg.Trading.WebhookSecret, a.logger),
		Positions: handler.NewPositionHandler(deps.Positions, deps.Trades, a.logger),
		Status:    handler.NewStatusHandler(a.cfg.Trading.DryRun, a.cfg.Trading.DefaultSymbol),
	}, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	return g.Wait()
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
