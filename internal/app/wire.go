package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tradewire/signalbridge/internal/account"
	"github.com/tradewire/signalbridge/internal/cache/redis"
	"github.com/tradewire/signalbridge/internal/config"
	"github.com/tradewire/signalbridge/internal/crypto"
	"github.com/tradewire/signalbridge/internal/domain"
	"github.com/tradewire/signalbridge/internal/executor"
	"github.com/tradewire/signalbridge/internal/feed"
	"github.com/tradewire/signalbridge/internal/market"
	"github.com/tradewire/signalbridge/internal/notify"
	"github.com/tradewire/signalbridge/internal/platform/kraken"
	"github.com/tradewire/signalbridge/internal/sizing"
	"github.com/tradewire/signalbridge/internal/store/file"
	"github.com/tradewire/signalbridge/internal/store/postgres"
	"github.com/tradewire/signalbridge/internal/symbol"
)

// Dependencies bundles everything the running application needs. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Exchange   domain.Exchange
	Catalog    *market.Catalog
	Balances   *account.BalanceCache
	Sizer      *sizing.Sizer
	Gateway    *executor.Gateway
	Guard      *executor.Guard
	Normalizer *symbol.Normalizer
	Board      *feed.PriceBoard

	Positions domain.PositionStore
	Trades    domain.TradeStore

	RateLimiter domain.RateLimiter
	Notifier    *notify.Notifier
}

// paperBalances overlays synthetic balances on a credential-less client so
// dry-run works without API keys. Every other call passes through.
type paperBalances struct {
	domain.Exchange
}

func (paperBalances) FetchBalances(context.Context) (map[string]float64, error) {
	return map[string]float64{
		"EUR": 100000, "USD": 100000, "GBP": 100000,
		"USDT": 100000, "USDC": 100000,
		"BTC": 10, "ETH": 100, "SOL": 1000, "DOGE": 1e6,
	}, nil
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Normalizer: symbol.NewNormalizer(cfg.Trading.DefaultSymbol),
	}

	// --- Exchange client ---
	secret, err := crypto.LoadSecret(crypto.SecretConfig{
		RawSecret:     cfg.Exchange.ApiSecret,
		EncryptedPath: cfg.Exchange.EncryptedSecretPath,
		Password:      cfg.Exchange.KeyPassword,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: load api secret: %w", err)
	}
	auth := &crypto.KrakenAuth{Key: cfg.Exchange.ApiKey, Secret: secret}
	deps.Exchange = kraken.NewClient(cfg.Exchange.RestURL, auth, logger)
	if cfg.Trading.DryRun && cfg.Exchange.ApiKey == "" {
		// No credentials to query; dry-run sizes against a synthetic account.
		logger.Info("wire: using synthetic balances (dry run without credentials)")
		deps.Exchange = paperBalances{deps.Exchange}
	}

	// --- Market metadata, balances, sizing, execution ---
	deps.Catalog = market.NewCatalog(deps.Exchange, logger)
	deps.Balances = account.NewBalanceCache(deps.Exchange, cfg.Trading.BalanceTTL.Duration, logger)
	deps.Sizer = sizing.NewSizer(deps.Catalog, deps.Balances, deps.Exchange, sizing.Params{
		QuotePerTrade:    cfg.Trading.QuotePerTrade,
		MinNotional:      cfg.Trading.MinNotional,
		FeeBufferPct:     cfg.Trading.FeeBufferPct,
		ReserveQuote:     cfg.Trading.ReserveQuote,
		ReserveBase:      cfg.Trading.ReserveBase,
		MinAmountCeiling: cfg.Trading.MinAmountCeiling,
	}, logger)
	deps.Gateway = executor.NewGateway(
		deps.Exchange,
		cfg.Gateway.Attempts,
		cfg.Gateway.BackoffBase.Duration,
		cfg.Trading.DryRun,
		logger,
	)
	deps.Guard = executor.NewGuard(
		cfg.Trading.BuyCooldown.Duration,
		cfg.Trading.SellCooldown.Duration,
		cfg.Trading.DedupWindow.Duration,
	)
	deps.Board = feed.NewPriceBoard(deps.Exchange)

	// --- Stores: PostgreSQL when configured, file snapshot otherwise ---
	if cfg.Postgres.DSN != "" {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.Positions = postgres.NewPositionStore(pool)
		deps.Trades = postgres.NewTradeStore(pool)
	} else {
		store, err := file.NewStore(cfg.Snapshot.Path, cfg.Snapshot.LoadOnStart, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: snapshot store: %w", err)
		}
		deps.Positions = store
		deps.Trades = store
	}

	// --- Redis webhook rate limiter (optional) ---
	if cfg.Redis.Addr != "" {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
