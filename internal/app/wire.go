package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/alanyoungcy/lotterykeeper/internal/blob/s3"
	"github.com/alanyoungcy/lotterykeeper/internal/cache/redis"
	"github.com/alanyoungcy/lotterykeeper/internal/config"
	"github.com/alanyoungcy/lotterykeeper/internal/domain"
	"github.com/alanyoungcy/lotterykeeper/internal/notify"
	"github.com/alanyoungcy/lotterykeeper/internal/payout"
	"github.com/alanyoungcy/lotterykeeper/internal/server/handler"
	"github.com/alanyoungcy/lotterykeeper/internal/store/memory"
	"github.com/alanyoungcy/lotterykeeper/internal/store/postgres"
)

// Dependencies bundles the infrastructure the lottery runs on. In standalone
// mode only the in-process parts are set; the redis and s3 backed fields stay
// nil and the features behind them are skipped.
type Dependencies struct {
	House  common.Address
	Ledger domain.Ledger

	// Stores
	Rounds domain.RoundStore
	Audit  domain.AuditStore

	// Redis
	State       domain.StateCache
	Sequence    domain.Sequence
	RateLimiter domain.RateLimiter
	Locks       domain.LockManager
	Bus         domain.SignalBus

	// Blob storage
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	Notifier *notify.Notifier
	// Checks are the dependency probes behind /api/health.
	Checks []handler.Check
}

// Wire builds every dependency the configured mode needs and returns a
// cleanup function releasing them in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{House: common.HexToAddress(cfg.Payout.HouseAddress)}

	if !cfg.Full() {
		deps.Ledger = payout.NewMemoryLedger(deps.House)
		deps.Rounds = memory.NewRoundStore()
		deps.Audit = memory.NewAuditStore()
		deps.Notifier = wireNotifier(cfg, logger)
		return deps, cleanup, nil
	}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
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
	rounds := postgres.NewRoundStore(pool)
	deps.Rounds = rounds
	deps.Audit = postgres.NewAuditStore(pool)
	if strings.EqualFold(cfg.Payout.Ledger, "postgres") {
		deps.Ledger = postgres.NewLedgerStore(pool, deps.House)
	} else {
		deps.Ledger = payout.NewMemoryLedger(deps.House)
	}
	deps.Checks = append(deps.Checks, handler.Check{Name: "postgres", Ping: pgClient.Ping})

	// --- Redis ---
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

	deps.State = redis.NewStateCache(redisClient)
	deps.Sequence = redis.NewSequence(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.Locks = redis.NewLockManager(redisClient)
	deps.Bus = redis.NewSignalBus(redisClient)
	deps.Checks = append(deps.Checks, handler.Check{Name: "redis", Ping: redisClient.Ping})

	// --- S3 (only when archiving) ---
	if cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), rounds, deps.Audit)
		deps.Checks = append(deps.Checks, handler.Check{Name: "s3", Ping: s3Client.Health})
	}

	deps.Notifier = wireNotifier(cfg, logger)
	return deps, cleanup, nil
}

func wireNotifier(cfg *config.Config, logger *slog.Logger) *notify.Notifier {
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
	return notify.NewNotifier(senders, cfg.Notify.Events, logger)
}
