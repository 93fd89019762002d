package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies SIGNALBRIDGE_* environment variable overrides,
// and returns the final Config. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SIGNALBRIDGE_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Exchange ──
	setStr(&cfg.Exchange.RestURL, "SIGNALBRIDGE_EXCHANGE_REST_URL")
	setStr(&cfg.Exchange.WsURL, "SIGNALBRIDGE_EXCHANGE_WS_URL")
	setStr(&cfg.Exchange.ApiKey, "SIGNALBRIDGE_EXCHANGE_API_KEY")
	setStr(&cfg.Exchange.ApiKey, "KRAKEN_API_KEY") // compatibility alias
	setStr(&cfg.Exchange.ApiSecret, "SIGNALBRIDGE_EXCHANGE_API_SECRET")
	setStr(&cfg.Exchange.ApiSecret, "KRAKEN_API_SECRET") // compatibility alias
	setStr(&cfg.Exchange.EncryptedSecretPath, "SIGNALBRIDGE_EXCHANGE_ENCRYPTED_SECRET_PATH")
	setStr(&cfg.Exchange.KeyPassword, "SIGNALBRIDGE_EXCHANGE_KEY_PASSWORD")
	setBool(&cfg.Exchange.WsFeedEnabled, "SIGNALBRIDGE_EXCHANGE_WS_FEED_ENABLED")

	// ── Trading ──
	setStr(&cfg.Trading.WebhookSecret, "SIGNALBRIDGE_TRADING_WEBHOOK_SECRET")
	setStr(&cfg.Trading.DefaultSymbol, "SIGNALBRIDGE_TRADING_DEFAULT_SYMBOL")
	setFloat64(&cfg.Trading.QuotePerTrade, "SIGNALBRIDGE_TRADING_QUOTE_PER_TRADE")
	setFloat64(&cfg.Trading.MinNotional, "SIGNALBRIDGE_TRADING_MIN_NOTIONAL")
	setFloat64(&cfg.Trading.FeeBufferPct, "SIGNALBRIDGE_TRADING_FEE_BUFFER_PCT")
	setFloat64(&cfg.Trading.ReserveQuote, "SIGNALBRIDGE_TRADING_RESERVE_QUOTE")
	setFloat64(&cfg.Trading.ReserveBase, "SIGNALBRIDGE_TRADING_RESERVE_BASE")
	setDuration(&cfg.Trading.BuyCooldown, "SIGNALBRIDGE_TRADING_BUY_COOLDOWN")
	setDuration(&cfg.Trading.SellCooldown, "SIGNALBRIDGE_TRADING_SELL_COOLDOWN")
	setDuration(&cfg.Trading.DedupWindow, "SIGNALBRIDGE_TRADING_DEDUP_WINDOW")
	setDuration(&cfg.Trading.BalanceTTL, "SIGNALBRIDGE_TRADING_BALANCE_TTL")
	setFloat64(&cfg.Trading.MinAmountCeiling, "SIGNALBRIDGE_TRADING_MIN_AMOUNT_CEILING")
	setBool(&cfg.Trading.DryRun, "SIGNALBRIDGE_TRADING_DRY_RUN")
	setBool(&cfg.Trading.DryRun, "PAPER_MODE") // compatibility alias

	// ── Trailing ──
	setBool(&cfg.Trailing.Enabled, "SIGNALBRIDGE_TRAILING_ENABLED")
	setFloat64(&cfg.Trailing.StopPct, "SIGNALBRIDGE_TRAILING_STOP_PCT")
	setFloat64(&cfg.Trailing.HardCapPct, "SIGNALBRIDGE_TRAILING_HARD_CAP_PCT")
	setDuration(&cfg.Trailing.PollInterval, "SIGNALBRIDGE_TRAILING_POLL_INTERVAL")
	setInt(&cfg.Trailing.ConfidenceThreshold, "SIGNALBRIDGE_TRAILING_CONFIDENCE_THRESHOLD")
	setFloat64(&cfg.Trailing.Standard.ActivationPct, "SIGNALBRIDGE_TRAILING_STANDARD_ACTIVATION_PCT")
	setFloat64(&cfg.Trailing.Standard.GapPct, "SIGNALBRIDGE_TRAILING_STANDARD_GAP_PCT")
	setFloat64(&cfg.Trailing.High.ActivationPct, "SIGNALBRIDGE_TRAILING_HIGH_ACTIVATION_PCT")
	setFloat64(&cfg.Trailing.High.GapPct, "SIGNALBRIDGE_TRAILING_HIGH_GAP_PCT")

	// ── Gateway ──
	setInt(&cfg.Gateway.Attempts, "SIGNALBRIDGE_GATEWAY_ATTEMPTS")
	setDuration(&cfg.Gateway.BackoffBase, "SIGNALBRIDGE_GATEWAY_BACKOFF_BASE")

	// ── Server ──
	setInt(&cfg.Server.Port, "SIGNALBRIDGE_SERVER_PORT")
	setInt(&cfg.Server.Port, "PORT") // platform-provided port (Render, Heroku)
	setStr(&cfg.Server.APIKey, "SIGNALBRIDGE_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimitPerMin, "SIGNALBRIDGE_SERVER_RATE_LIMIT_PER_MIN")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "SIGNALBRIDGE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SIGNALBRIDGE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SIGNALBRIDGE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SIGNALBRIDGE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SIGNALBRIDGE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SIGNALBRIDGE_REDIS_TLS_ENABLED")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "SIGNALBRIDGE_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setInt(&cfg.Postgres.PoolMaxConns, "SIGNALBRIDGE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "SIGNALBRIDGE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "SIGNALBRIDGE_POSTGRES_RUN_MIGRATIONS")

	// ── Snapshot ──
	setStr(&cfg.Snapshot.Path, "SIGNALBRIDGE_SNAPSHOT_PATH")
	setBool(&cfg.Snapshot.LoadOnStart, "SIGNALBRIDGE_SNAPSHOT_LOAD_ON_START")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SIGNALBRIDGE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SIGNALBRIDGE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SIGNALBRIDGE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SIGNALBRIDGE_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "SIGNALBRIDGE_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
