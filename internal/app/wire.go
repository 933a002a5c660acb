package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/propertyx/internal/blob/s3"
	"github.com/alanyoungcy/propertyx/internal/cache/redis"
	"github.com/alanyoungcy/propertyx/internal/config"
	"github.com/alanyoungcy/propertyx/internal/domain"
	"github.com/alanyoungcy/propertyx/internal/metrics"
	"github.com/alanyoungcy/propertyx/internal/notify"
	"github.com/alanyoungcy/propertyx/internal/platform/ipfs"
	"github.com/alanyoungcy/propertyx/internal/platform/stacks"
	"github.com/alanyoungcy/propertyx/internal/server/handler"
	"github.com/alanyoungcy/propertyx/internal/store/postgres"
)

// Dependencies bundles the infrastructure the run modes build on. It is
// constructed by Wire and torn down by the returned cleanup function.
// Fields backed by a disabled store stay nil.
type Dependencies struct {
	// Upstreams
	Stacks *stacks.Client
	IPFS   *ipfs.Client

	// Stores
	Proposals    domain.ProposalStore
	Transactions domain.TransactionStore
	Listings     domain.ListingStore
	Audit        domain.AuditStore

	// Caches
	Metadata  domain.MetadataCache
	Snapshots domain.SnapshotCache
	Sessions  domain.SessionCache
	Limiter   domain.RateLimiter
	Locks     domain.LockManager
	Bus       *redis.SignalBus

	// Blob storage
	Documents *s3blob.DocumentStore
	Archive   *s3blob.SnapshotArchiver

	// Events is the notifier wrapping the bus; it is never nil.
	Events  *notify.Notifier
	Metrics *metrics.Metrics

	// Pingers back the health endpoint, keyed by dependency name.
	Pingers map[string]handler.Pinger
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
		Metrics: metrics.New(),
		Pingers: make(map[string]handler.Pinger),
	}

	// --- Stacks and IPFS ---
	deps.Stacks = stacks.NewClient(stacks.ClientConfig{
		BaseURL:       cfg.Stacks.APIURL,
		APIKey:        cfg.Stacks.APIKey,
		Timeout:       cfg.Stacks.Timeout.Duration,
		RatePerSecond: cfg.Stacks.RatePerSecond,
		Burst:         cfg.Stacks.Burst,
	})
	deps.IPFS = ipfs.NewClient(ipfs.ClientConfig{
		Gateway:       cfg.IPFS.Gateway,
		Timeout:       cfg.IPFS.Timeout.Duration,
		RatePerSecond: cfg.IPFS.RatePerSecond,
	})
	deps.Pingers["stacks"] = handler.PingFunc(func(ctx context.Context) error {
		_, err := deps.Stacks.ChainTip(ctx)
		return err
	})

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
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
		deps.Proposals = postgres.NewProposalStore(pool)
		deps.Transactions = postgres.NewTransactionStore(pool)
		deps.Listings = postgres.NewListingStore(pool)
		deps.Audit = postgres.NewAuditStore(pool)
		deps.Pingers["postgres"] = pgClient
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
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

		deps.Metadata = redis.NewMetadataCache(redisClient, cfg.Marketplace.MetadataTTL.Duration)
		deps.Snapshots = redis.NewSnapshotCache(redisClient, cfg.Marketplace.SnapshotTTL.Duration)
		deps.Sessions = redis.NewSessionCache(redisClient)
		deps.Limiter = redis.NewRateLimiter(redisClient)
		deps.Locks = redis.NewLockManager(redisClient)
		deps.Bus = redis.NewSignalBus(redisClient)
		deps.Pingers["redis"] = redisClient

		if deps.Audit == nil {
			deps.Audit = redis.NewAuditStream(deps.Bus)
		}
	}

	// --- S3 blob storage ---
	if cfg.S3.Enabled {
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

		writer := s3blob.NewWriter(s3Client)
		deps.Documents = s3blob.NewDocumentStore(writer, s3blob.NewReader(s3Client))
		deps.Archive = s3blob.NewSnapshotArchiver(writer, deps.Audit)
		deps.Pingers["s3"] = handler.PingFunc(s3Client.Health)
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
	if cfg.Notify.WebhookURL != "" {
		senders = append(senders, notify.NewWebhookSender(cfg.Notify.WebhookURL, cfg.Notify.WebhookSecret))
	}
	var bus domain.EventPublisher
	if deps.Bus != nil {
		bus = deps.Bus
	}
	deps.Events = notify.NewNotifier(bus, senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
