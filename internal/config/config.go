// Package config defines the node configuration and its validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/minimarket/internal/oracle"
)

// Config is the root configuration. Fields are populated from a TOML file
// and then optionally overridden by MINIMARKET_* environment variables.
type Config struct {
	Mode     string         `toml:"mode"`
	Log      LogConfig      `toml:"log"`
	Program  ProgramConfig  `toml:"program"`
	Storage  StorageConfig  `toml:"storage"`
	SQLite   SQLiteConfig   `toml:"sqlite"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Mirror   MirrorConfig   `toml:"mirror"`
	Archive  ArchiveConfig  `toml:"archive"`
	Notify   NotifyConfig   `toml:"notify"`
	Wallet   WalletConfig   `toml:"wallet"`
}

// LogConfig selects the slog level and handler.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// ProgramConfig controls the market program and the runtime that hosts it.
type ProgramConfig struct {
	// Name seeds the program id; nodes sharing state must agree on it.
	Name          string   `toml:"name"`
	MaxTxLifetime duration `toml:"max_tx_lifetime"`
	LockTTL       duration `toml:"lock_ttl"`
	LockWait      duration `toml:"lock_wait"`
	// MaxConfidence bounds the oracle confidence interval accepted at
	// resolution.
	MaxConfidence float64  `toml:"max_confidence"`
	FaucetEnabled bool     `toml:"faucet_enabled"`
	PruneInterval duration `toml:"prune_interval"`
}

// StorageConfig selects the account store backend.
type StorageConfig struct {
	Backend string `toml:"backend"`
}

// SQLiteConfig locates the embedded database file.
type SQLiteConfig struct {
	Path string `toml:"path"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. When disabled the node
// falls back to in-process locks, no cache and no cross-process bus.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	KeyPrefix  string `toml:"key_prefix"`
	// FeedStore keeps oracle feeds in Redis instead of process memory.
	FeedStore bool     `toml:"feed_store"`
	CacheTTL  duration `toml:"cache_ttl"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	KeyPrefix      string `toml:"key_prefix"`
	PublicURL      string `toml:"public_url"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey guards /api/admin; empty disables the admin routes.
	APIKey       string   `toml:"api_key"`
	RateLimit    int      `toml:"rate_limit"`
	RateWindow   duration `toml:"rate_window"`
	TxRateLimit  int      `toml:"tx_rate_limit"`
	TxRateWindow duration `toml:"tx_rate_window"`
}

// MirrorConfig controls the read-side market reconciler.
type MirrorConfig struct {
	Enabled  bool     `toml:"enabled"`
	Interval duration `toml:"interval"`
}

// ArchiveConfig controls event-log archival to S3.
type ArchiveConfig struct {
	Enabled   bool     `toml:"enabled"`
	Interval  duration `toml:"interval"`
	Retention duration `toml:"retention"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// WalletConfig is used by marketctl to sign transactions.
type WalletConfig struct {
	PrivateKey  string `toml:"private_key"`
	KeyFile     string `toml:"key_file"`
	KeyPassword string `toml:"key_password"`
	APIURL      string `toml:"api_url"`
}

// duration wraps time.Duration so TOML strings like "5m" decode.
type duration struct {
	time.Duration
}

// UnmarshalText parses a Go duration string such as "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText renders the duration in Go syntax.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config for a single-node deployment with everything
// held in memory.
func Defaults() Config {
	return Config{
		Mode: "full",
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Program: ProgramConfig{
			Name:          "minimarket",
			MaxTxLifetime: duration{2 * time.Minute},
			LockTTL:       duration{10 * time.Second},
			LockWait:      duration{5 * time.Second},
			MaxConfidence: oracle.DefaultMaxConfidence,
			PruneInterval: duration{10 * time.Minute},
		},
		Storage: StorageConfig{Backend: "memory"},
		SQLite:  SQLiteConfig{Path: "data/minimarket.db"},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "minimarket",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			KeyPrefix:  "minimarket",
			CacheTTL:   duration{30 * time.Second},
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "minimarket",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:      true,
			Port:         8080,
			CORSOrigins:  []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:    300,
			RateWindow:   duration{time.Minute},
			TxRateLimit:  60,
			TxRateWindow: duration{time.Minute},
		},
		Mirror: MirrorConfig{
			Enabled:  true,
			Interval: duration{30 * time.Second},
		},
		Archive: ArchiveConfig{
			Interval:  duration{24 * time.Hour},
			Retention: duration{90 * 24 * time.Hour},
		},
		Notify: NotifyConfig{
			Events: []string{"market_created", "market_activated", "market_resolved"},
		},
		Wallet: WalletConfig{
			APIURL: "http://localhost:8080",
		},
	}
}

var validModes = map[string]bool{
	"node":    true,
	"mirror":  true,
	"archive": true,
	"full":    true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validBackends = map[string]bool{
	"memory":   true,
	"sqlite":   true,
	"postgres": true,
}

// Validate checks for invalid or missing values and returns one error
// listing every problem found.
func (c *Config) Validate() error {
	var errs []string

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: node, mirror, archive, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Sprintf("unknown log.level %q (valid: debug, info, warn, error)", c.Log.Level))
	}
	if f := strings.ToLower(c.Log.Format); f != "json" && f != "text" {
		errs = append(errs, fmt.Sprintf("unknown log.format %q (valid: json, text)", c.Log.Format))
	}

	// Program
	if strings.TrimSpace(c.Program.Name) == "" {
		errs = append(errs, "program: name must not be empty")
	}
	if c.Program.MaxTxLifetime.Duration <= 0 {
		errs = append(errs, "program: max_tx_lifetime must be > 0")
	}
	if c.Program.MaxConfidence < 0 {
		errs = append(errs, "program: max_confidence must be >= 0")
	}

	// Storage
	backend := strings.ToLower(c.Storage.Backend)
	if !validBackends[backend] {
		errs = append(errs, fmt.Sprintf("storage: unknown backend %q (valid: memory, sqlite, postgres)", c.Storage.Backend))
	}
	if backend == "sqlite" && c.SQLite.Path == "" {
		errs = append(errs, "sqlite: path must not be empty")
	}
	if backend == "postgres" {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	}
	// A mirror-only process reads state written by another node.
	if mode == "mirror" && backend == "memory" {
		errs = append(errs, "mirror mode needs a shared storage backend (sqlite or postgres)")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	} else if c.Redis.FeedStore {
		errs = append(errs, "redis: feed_store requires redis.enabled")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
	}

	// Archive
	if c.Archive.Enabled || mode == "archive" {
		if !c.S3.Enabled {
			errs = append(errs, "archive: requires s3.enabled")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be > 0")
		}
		if c.Archive.Retention.Duration <= 0 {
			errs = append(errs, "archive: retention must be > 0")
		}
	}

	// Mirror
	if (c.Mirror.Enabled || mode == "mirror") && c.Mirror.Interval.Duration <= 0 {
		errs = append(errs, "mirror: interval must be > 0")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 || c.Server.TxRateLimit < 0 {
			errs = append(errs, "server: rate limits must be >= 0")
		}
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
