package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"

	s3blob "github.com/beliefmarket/beliefd/internal/blob/s3"
	"github.com/beliefmarket/beliefd/internal/cache/redis"
	"github.com/beliefmarket/beliefd/internal/config"
	"github.com/beliefmarket/beliefd/internal/domain"
	"github.com/beliefmarket/beliefd/internal/fhe"
	"github.com/beliefmarket/beliefd/internal/notify"
	"github.com/beliefmarket/beliefd/internal/oracle"
	"github.com/beliefmarket/beliefd/internal/store/memory"
	"github.com/beliefmarket/beliefd/internal/store/postgres"
)

// Dependencies bundles every concrete dependency the application modes need.
// It is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Persistence. Store is the transaction boundary; Audit reads the
	// append-only log back out for exports.
	Store domain.LedgerStore
	Audit domain.AuditReader

	// Redis-backed pieces, nil in sim mode.
	Cache   domain.MarketCache
	Bus     *redis.EventBus
	Limiter domain.RateLimiter

	// Crypto and the decryption bridge.
	Cipher   domain.Cipher
	Gateway  domain.DecryptionGateway
	Sim      *oracle.Sim
	Verifier *oracle.CallbackVerifier

	// Archive exports, nil unless S3 is enabled.
	Archiver *s3blob.Archiver

	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that must
// be called on shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}
	simMode := strings.ToLower(cfg.Mode) == "sim"

	sealed := fhe.NewSealed(cfg.Oracle.SealSecret)
	deps.Cipher = sealed

	// Persistence. Sim mode keeps the whole ledger in memory; everything
	// else runs on Postgres.
	if simMode {
		deps.Store = memory.New(cfg.Market.PlatformStake)
		deps.Audit = deps.Store.(*memory.Store)
	} else {
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

		store := postgres.NewStore(pgClient.Pool())
		if err := store.EnsureTreasury(ctx, cfg.Market.PlatformStake); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: seed treasury: %w", err)
		}
		deps.Store = store
		deps.Audit = store

		// Redis cache, event bus, and rate limiter ride along with
		// Postgres; sim mode does without all three.
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

		deps.Cache = redis.NewMarketCache(redisClient)
		deps.Bus = redis.NewEventBus(redisClient)
		deps.Limiter = redis.NewRateLimiter(redisClient)

		// Archive exports need both Postgres and object storage.
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
			deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), store, store, logger)
		}
	}

	// Decryption bridge. The simulator mints its own signing key so the
	// callback path exercises the same signature check as production.
	switch strings.ToLower(cfg.Oracle.Mode) {
	case "sim":
		key, err := crypto.GenerateKey()
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: oracle sim key: %w", err)
		}
		signer := oracle.NewCallbackSigner(key)
		verifier, err := oracle.NewCallbackVerifier(signer.Address())
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: oracle sim verifier: %w", err)
		}
		sim := oracle.NewSim(sealed, signer, cfg.Oracle.SimDelay.Duration, logger)
		deps.Gateway = sim
		deps.Sim = sim
		deps.Verifier = verifier
	case "gateway":
		verifier, err := oracle.NewCallbackVerifier(cfg.Oracle.SignerAddress)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: oracle verifier: %w", err)
		}
		deps.Gateway = oracle.NewGateway(cfg.Oracle.BaseURL, cfg.Oracle.CallbackURL, logger)
		deps.Verifier = verifier
	default:
		cleanup()
		return nil, nil, fmt.Errorf("wire: unsupported oracle mode %q", cfg.Oracle.Mode)
	}

	// Notifications.
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
