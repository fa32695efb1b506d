package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/alanyoungcy/minimarket/internal/blob/s3"
	"github.com/alanyoungcy/minimarket/internal/cache/redis"
	"github.com/alanyoungcy/minimarket/internal/config"
	"github.com/alanyoungcy/minimarket/internal/domain"
	"github.com/alanyoungcy/minimarket/internal/notify"
	"github.com/alanyoungcy/minimarket/internal/pda"
	"github.com/alanyoungcy/minimarket/internal/server/handler"
	"github.com/alanyoungcy/minimarket/internal/store/memory"
	"github.com/alanyoungcy/minimarket/internal/store/postgres"
	"github.com/alanyoungcy/minimarket/internal/store/sqlite"
)

// Dependencies bundles the concrete implementations the modes run on. It
// is built by Wire and torn down by the cleanup function Wire returns.
type Dependencies struct {
	ProgramID domain.Address

	// Stores
	Accounts domain.AccountStore
	Events   domain.EventStore
	Mirror   domain.MarketMirror
	Feeds    domain.FeedStore

	// Redis-backed; nil when redis is disabled.
	MarketCache domain.MarketCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// S3-backed; nil when s3 is disabled.
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Nil when no notification channel is configured.
	Notifier *notify.Notifier

	HealthChecks map[string]handler.HealthCheck
}

// Wire constructs every dependency the configuration asks for and returns
// a cleanup function releasing them in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(format string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf(format, err)
	}

	deps := &Dependencies{
		ProgramID:    pda.ProgramID(cfg.Program.Name),
		HealthChecks: make(map[string]handler.HealthCheck),
	}

	// --- Core storage ---
	switch strings.ToLower(cfg.Storage.Backend) {
	case "postgres":
		pg, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail("wire: postgres: %w", err)
		}
		closers = append(closers, pg.Close)
		if cfg.Postgres.RunMigrations {
			if err := pg.RunMigrations(ctx); err != nil {
				return fail("wire: postgres migrations: %w", err)
			}
		}
		pool := pg.Pool()
		deps.Accounts = postgres.NewAccountStore(pool)
		deps.Events = postgres.NewEventStore(pool)
		deps.Mirror = postgres.NewMarketMirror(pool)
		deps.HealthChecks["postgres"] = pool.Ping

	case "sqlite":
		lite, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return fail("wire: sqlite: %w", err)
		}
		closers = append(closers, func() { _ = lite.Close() })
		deps.Accounts = sqlite.NewAccountStore(lite.DB())
		deps.Events = sqlite.NewEventStore(lite.DB())
		deps.Mirror = memory.NewMarketMirror()
		deps.HealthChecks["sqlite"] = lite.DB().PingContext

	default:
		deps.Accounts = memory.NewAccountStore()
		deps.Events = memory.NewEventStore()
		deps.Mirror = memory.NewMarketMirror()
	}
	deps.Feeds = memory.NewFeedStore()

	// --- Redis ---
	if cfg.Redis.Enabled {
		rc, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return fail("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = rc.Close() })

		deps.MarketCache = redis.NewMarketCache(rc, cfg.Redis.CacheTTL.Duration)
		deps.RateLimiter = redis.NewRateLimiter(rc)
		deps.LockManager = redis.NewLockManager(rc)
		deps.SignalBus = redis.NewSignalBus(rc)
		if cfg.Redis.FeedStore {
			deps.Feeds = redis.NewFeedStore(rc)
		}
		deps.HealthChecks["redis"] = rc.Ping
	}

	// --- S3 ---
	if cfg.S3.Enabled {
		sc, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
			KeyPrefix:      cfg.S3.KeyPrefix,
			PublicURL:      cfg.S3.PublicURL,
		})
		if err != nil {
			return fail("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = sc.Close() })

		deps.BlobWriter = s3blob.NewWriter(sc)
		deps.BlobReader = s3blob.NewReader(sc)
		deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.Events, logger)
		deps.HealthChecks["s3"] = sc.Health
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		tg, err := notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID, "", 3, 0)
		if err != nil {
			// Notifications are best effort; a bad bot token must not stop the node.
			logger.WarnContext(ctx, "wire: telegram disabled", slog.String("error", err.Error()))
		} else {
			senders = append(senders, tg)
		}
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) > 0 {
		deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	}

	return deps, cleanup, nil
}
