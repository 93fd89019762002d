// Package config defines the top-level configuration for the signal bridge
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by SIGNALBRIDGE_* environment variables.
type Config struct {
	Exchange ExchangeConfig `toml:"exchange"`
	Trading  TradingConfig  `toml:"trading"`
	Trailing TrailingConfig `toml:"trailing"`
	Gateway  GatewayConfig  `toml:"gateway"`
	Server   ServerConfig   `toml:"server"`
	Redis    RedisConfig    `toml:"redis"`
	Postgres PostgresConfig `toml:"postgres"`
	Snapshot SnapshotConfig `toml:"snapshot"`
	Notify   NotifyConfig   `toml:"notify"`
	LogLevel string         `toml:"log_level"`
}

// ExchangeConfig holds exchange endpoints and API credentials.
type ExchangeConfig struct {
	RestURL string `toml:"rest_url"`
	WsURL   string `toml:"ws_url"`
	ApiKey  string `toml:"api_key"`
	// ApiSecret is the base64-encoded private key issued by the exchange.
	ApiSecret string `toml:"api_secret"`
	// EncryptedSecretPath points to a JSON blob produced by
	// `signalbridge encrypt-secret`; used instead of api_secret when set.
	EncryptedSecretPath string `toml:"encrypted_secret_path"`
	KeyPassword         string `toml:"key_password"`
	// WsFeedEnabled turns on the public ticker WebSocket feed so trailing
	// monitors read pushed prices instead of polling the REST ticker.
	WsFeedEnabled bool `toml:"ws_feed_enabled"`
}

// TradingConfig holds the sizing and signal-policy parameters.
type TradingConfig struct {
	// WebhookSecret is the shared secret every webhook payload must carry.
	WebhookSecret string `toml:"webhook_secret"`
	DefaultSymbol string `toml:"default_symbol"`
	// QuotePerTrade is the fixed notional per BUY, in quote currency.
	QuotePerTrade float64 `toml:"quote_per_trade"`
	// MinNotional is the smallest notional the bridge will attempt; targets
	// below it are raised to it before exchange minimums apply.
	MinNotional   float64 `toml:"min_notional"`
	FeeBufferPct  float64 `toml:"fee_buffer_pct"`
	ReserveQuote  float64 `toml:"reserve_quote"`
	ReserveBase   float64 `toml:"reserve_base"`
	BuyCooldown   duration `toml:"buy_cooldown"`
	SellCooldown  duration `toml:"sell_cooldown"`
	DedupWindow   duration `toml:"dedup_window"`
	BalanceTTL    duration `toml:"balance_ttl"`
	// MinAmountCeiling is the sanity ceiling for exchange-reported minimum
	// order amounts: a minimum whose notional exceeds this many quote units
	// is disregarded in favour of the amount step.
	MinAmountCeiling float64 `toml:"min_amount_ceiling"`
	DryRun           bool    `toml:"dry_run"`
}

// TierConfig holds the trailing parameters for one confidence tier, in
// percent of price.
type TierConfig struct {
	ActivationPct float64 `toml:"activation_pct"`
	GapPct        float64 `toml:"gap_pct"`
}

// TrailingConfig holds the trailing-stop monitor parameters.
type TrailingConfig struct {
	Enabled bool `toml:"enabled"`
	// StopPct is the initial hard-stop distance below entry, in percent.
	StopPct float64 `toml:"stop_pct"`
	// HardCapPct caps StopPct: the effective stop is min(StopPct, HardCapPct).
	HardCapPct   float64  `toml:"hard_cap_pct"`
	PollInterval duration `toml:"poll_interval"`
	// ConfidenceThreshold selects the High tier when a signal's confidence
	// is at or above it.
	ConfidenceThreshold int        `toml:"confidence_threshold"`
	Standard            TierConfig `toml:"standard"`
	High                TierConfig `toml:"high"`
}

// GatewayConfig holds the order-submission retry policy.
type GatewayConfig struct {
	Attempts    int      `toml:"attempts"`
	BackoffBase duration `toml:"backoff_base"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port int `toml:"port"`
	// APIKey guards the read-only /api/* endpoints. Empty disables auth.
	APIKey string `toml:"api_key"`
	// RateLimitPerMin limits webhook requests per client IP per minute.
	// Requires Redis; 0 disables the limiter.
	RateLimitPerMin int `toml:"rate_limit_per_min"`
}

// RedisConfig holds Redis connection parameters. An empty Addr disables the
// Redis-backed webhook rate limiter.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// PostgresConfig holds PostgreSQL connection parameters. An empty DSN selects
// the file snapshot store instead.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// SnapshotConfig holds the file snapshot store parameters.
type SnapshotConfig struct {
	Path        string `toml:"path"`
	LoadOnStart bool   `toml:"load_on_start"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Exchange: ExchangeConfig{
			RestURL:       "https://api.kraken.com",
			WsURL:         "wss://ws.kraken.com",
			WsFeedEnabled: true,
		},
		Trading: TradingConfig{
			DefaultSymbol:    "BTC/EUR",
			QuotePerTrade:    25.0,
			MinNotional:      10.0,
			FeeBufferPct:     0.5,
			ReserveQuote:     0.0,
			ReserveBase:      0.0,
			BuyCooldown:      duration{5 * time.Minute},
			SellCooldown:     duration{0},
			DedupWindow:      duration{5 * time.Second},
			BalanceTTL:       duration{5 * time.Second},
			MinAmountCeiling: 500.0,
			DryRun:           true,
		},
		Trailing: TrailingConfig{
			Enabled:             true,
			StopPct:             2.0,
			HardCapPct:          5.0,
			PollInterval:        duration{5 * time.Second},
			ConfidenceThreshold: 2,
			Standard:            TierConfig{ActivationPct: 0.3, GapPct: 0.4},
			High:                TierConfig{ActivationPct: 0.6, GapPct: 0.8},
		},
		Gateway: GatewayConfig{
			Attempts:    3,
			BackoffBase: duration{500 * time.Millisecond},
		},
		Server: ServerConfig{
			Port:            8000,
			RateLimitPerMin: 0,
		},
		Redis: RedisConfig{
			Addr:       "",
			DB:         0,
			PoolSize:   10,
			MaxRetries: 3,
		},
		Postgres: PostgresConfig{
			DSN:           "",
			PoolMaxConns:  5,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Snapshot: SnapshotConfig{
			Path:        "state.json",
			LoadOnStart: true,
		},
		Notify: NotifyConfig{
			Events: []string{"order_filled", "position_closed", "error"},
		},
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Webhook secret is mandatory: an unauthenticated order endpoint is not
	// a configuration we ever want to run.
	if strings.TrimSpace(c.Trading.WebhookSecret) == "" {
		errs = append(errs, "trading: webhook_secret must be set")
	}

	// Exchange credentials are required for live trading only.
	if !c.Trading.DryRun {
		if c.Exchange.ApiKey == "" {
			errs = append(errs, "exchange: api_key is required when dry_run is false")
		}
		if c.Exchange.ApiSecret == "" && c.Exchange.EncryptedSecretPath == "" {
			errs = append(errs, "exchange: either api_secret or encrypted_secret_path is required when dry_run is false")
		}
	}
	if c.Exchange.EncryptedSecretPath != "" && c.Exchange.KeyPassword == "" {
		errs = append(errs, "exchange: key_password is required when encrypted_secret_path is set")
	}
	if c.Exchange.RestURL == "" {
		errs = append(errs, "exchange: rest_url must not be empty")
	}
	if c.Exchange.WsFeedEnabled && c.Exchange.WsURL == "" {
		errs = append(errs, "exchange: ws_url must not be empty when ws_feed_enabled is true")
	}

	// Trading
	if c.Trading.DefaultSymbol == "" {
		errs = append(errs, "trading: default_symbol must not be empty")
	}
	if c.Trading.QuotePerTrade <= 0 {
		errs = append(errs, "trading: quote_per_trade must be > 0")
	}
	if c.Trading.MinNotional < 0 {
		errs = append(errs, "trading: min_notional must be >= 0")
	}
	if c.Trading.FeeBufferPct < 0 || c.Trading.FeeBufferPct >= 100 {
		errs = append(errs, "trading: fee_buffer_pct must be in [0, 100)")
	}
	if c.Trading.BuyCooldown.Duration < 0 || c.Trading.SellCooldown.Duration < 0 {
		errs = append(errs, "trading: cooldowns must not be negative")
	}
	if c.Trading.BalanceTTL.Duration <= 0 {
		errs = append(errs, "trading: balance_ttl must be > 0")
	}

	// Trailing
	if c.Trailing.Enabled {
		if c.Trailing.StopPct <= 0 {
			errs = append(errs, "trailing: stop_pct must be > 0 when enabled")
		}
		if c.Trailing.HardCapPct <= 0 {
			errs = append(errs, "trailing: hard_cap_pct must be > 0 when enabled")
		}
		if c.Trailing.PollInterval.Duration <= 0 {
			errs = append(errs, "trailing: poll_interval must be > 0 when enabled")
		}
		for name, tier := range map[string]TierConfig{"standard": c.Trailing.Standard, "high": c.Trailing.High} {
			if tier.ActivationPct <= 0 || tier.GapPct <= 0 {
				errs = append(errs, fmt.Sprintf("trailing.%s: activation_pct and gap_pct must be > 0", name))
			}
		}
	}

	// Gateway
	if c.Gateway.Attempts < 1 {
		errs = append(errs, "gateway: attempts must be >= 1")
	}
	if c.Gateway.BackoffBase.Duration <= 0 {
		errs = append(errs, "gateway: backoff_base must be > 0")
	}

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.RateLimitPerMin > 0 && c.Redis.Addr == "" {
		errs = append(errs, "server: rate_limit_per_min requires redis.addr to be set")
	}

	// Redis (only when enabled)
	if c.Redis.Addr != "" && c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// Postgres (only when enabled)
	if c.Postgres.DSN != "" {
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	}

	// Snapshot store is the fallback when Postgres is not configured.
	if c.Postgres.DSN == "" && strings.TrimSpace(c.Snapshot.Path) == "" {
		errs = append(errs, "snapshot: path must be set when postgres.dsn is empty")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
