package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load merges the TOML file at path over Defaults and applies MINIMARKET_*
// environment overrides. A missing file is not an error, so a node can be
// configured from the environment alone. The result is not validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	// .env is optional.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Mode, "MINIMARKET_MODE")
	setStr(&cfg.Log.Level, "MINIMARKET_LOG_LEVEL")
	setStr(&cfg.Log.Format, "MINIMARKET_LOG_FORMAT")

	// ── Program ──
	setStr(&cfg.Program.Name, "MINIMARKET_PROGRAM_NAME")
	setDuration(&cfg.Program.MaxTxLifetime, "MINIMARKET_PROGRAM_MAX_TX_LIFETIME")
	setDuration(&cfg.Program.LockTTL, "MINIMARKET_PROGRAM_LOCK_TTL")
	setDuration(&cfg.Program.LockWait, "MINIMARKET_PROGRAM_LOCK_WAIT")
	setFloat64(&cfg.Program.MaxConfidence, "MINIMARKET_PROGRAM_MAX_CONFIDENCE")
	setBool(&cfg.Program.FaucetEnabled, "MINIMARKET_PROGRAM_FAUCET_ENABLED")
	setDuration(&cfg.Program.PruneInterval, "MINIMARKET_PROGRAM_PRUNE_INTERVAL")

	// ── Storage ──
	setStr(&cfg.Storage.Backend, "MINIMARKET_STORAGE_BACKEND")
	setStr(&cfg.SQLite.Path, "MINIMARKET_SQLITE_PATH")
	setStr(&cfg.Postgres.DSN, "MINIMARKET_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "MINIMARKET_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "MINIMARKET_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "MINIMARKET_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "MINIMARKET_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "MINIMARKET_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "MINIMARKET_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "MINIMARKET_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "MINIMARKET_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "MINIMARKET_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "MINIMARKET_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "MINIMARKET_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "MINIMARKET_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "MINIMARKET_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "MINIMARKET_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "MINIMARKET_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "MINIMARKET_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "MINIMARKET_REDIS_KEY_PREFIX")
	setBool(&cfg.Redis.FeedStore, "MINIMARKET_REDIS_FEED_STORE")
	setDuration(&cfg.Redis.CacheTTL, "MINIMARKET_REDIS_CACHE_TTL")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "MINIMARKET_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "MINIMARKET_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "MINIMARKET_S3_REGION")
	setStr(&cfg.S3.Bucket, "MINIMARKET_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "MINIMARKET_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "MINIMARKET_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "MINIMARKET_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "MINIMARKET_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.KeyPrefix, "MINIMARKET_S3_KEY_PREFIX")
	setStr(&cfg.S3.PublicURL, "MINIMARKET_S3_PUBLIC_URL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "MINIMARKET_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "MINIMARKET_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "MINIMARKET_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "MINIMARKET_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "MINIMARKET_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "MINIMARKET_SERVER_RATE_WINDOW")
	setInt(&cfg.Server.TxRateLimit, "MINIMARKET_SERVER_TX_RATE_LIMIT")
	setDuration(&cfg.Server.TxRateWindow, "MINIMARKET_SERVER_TX_RATE_WINDOW")

	// ── Mirror / Archive ──
	setBool(&cfg.Mirror.Enabled, "MINIMARKET_MIRROR_ENABLED")
	setDuration(&cfg.Mirror.Interval, "MINIMARKET_MIRROR_INTERVAL")
	setBool(&cfg.Archive.Enabled, "MINIMARKET_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "MINIMARKET_ARCHIVE_INTERVAL")
	setDuration(&cfg.Archive.Retention, "MINIMARKET_ARCHIVE_RETENTION")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "MINIMARKET_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "MINIMARKET_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "MINIMARKET_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "MINIMARKET_NOTIFY_EVENTS")

	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "MINIMARKET_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.KeyFile, "MINIMARKET_WALLET_KEY_FILE")
	setStr(&cfg.Wallet.KeyPassword, "MINIMARKET_WALLET_KEY_PASSWORD")
	setStr(&cfg.Wallet.APIURL, "MINIMARKET_WALLET_API_URL")
}

// Typed env-var helpers. Each only mutates the target when the variable is
// present, non-empty and parses.

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
			if p = strings.TrimSpace(p); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
