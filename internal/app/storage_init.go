package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/meenava/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/meenava/internal/health"
	"github.com/vladislavdragonenkov/meenava/internal/storage/memory"
	"github.com/vladislavdragonenkov/meenava/internal/storage/postgres"
	"github.com/vladislavdragonenkov/meenava/internal/storage/redis"
)

// runtimeDependencies — хранилища, выбранные драйвером, и их обслуживание.
type runtimeDependencies struct {
	cartStore       domain.CartStore
	catalog         domain.ProductCatalog
	outboxRepo      domain.OutboxRepository
	idempotencyRepo domain.IdempotencyRepository
	storageChecker  healthcheck.Checker
	// jobs — фоновые задачи хранилища, работают до отмены контекста.
	jobs    []func(ctx context.Context)
	closeFn func() error
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (runtimeDependencies, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.StorageDriver))
	if driver == "" {
		driver = StorageDriverMemory
	}

	switch driver {
	case StorageDriverMemory:
		store := memory.NewCartStore(cfg.CartTTL)
		logger.Info("using in-memory storage")
		return runtimeDependencies{
			cartStore:       store,
			catalog:         memory.NewSeededCatalog(),
			outboxRepo:      memory.NewOutboxRepository(),
			idempotencyRepo: memory.NewIdempotencyRepository(),
			storageChecker:  healthcheck.CheckFunc(store.Ping),
			closeFn:         func() error { return nil },
		}, nil

	case StorageDriverRedis:
		client, err := redis.Open(ctx, redis.Config{
			URL:      cfg.RedisURL,
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return runtimeDependencies{}, fmt.Errorf("open redis storage: %w", err)
		}
		logger.WithField("addr", cfg.RedisAddr).Info("using redis storage")
		return runtimeDependencies{
			cartStore:       redis.NewCartStore(client, cfg.CartTTL),
			catalog:         memory.NewSeededCatalog(),
			outboxRepo:      memory.NewOutboxRepository(),
			idempotencyRepo: redis.NewIdempotencyRepository(client),
			storageChecker:  healthcheck.CheckFunc(client.Ping),
			closeFn:         client.Close,
		}, nil

	case StorageDriverPostgres:
		if strings.TrimSpace(cfg.PostgresDSN) == "" {
			return runtimeDependencies{}, fmt.Errorf("postgres storage requires %s_POSTGRES_DSN", EnvPrefix)
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN, postgres.WithMaxConns(cfg.PostgresMaxConns))
		if err != nil {
			return runtimeDependencies{}, fmt.Errorf("open postgres storage: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return runtimeDependencies{}, fmt.Errorf("apply postgres migrations: %w", err)
			}
		}

		cartStore := postgres.NewCartStore(store)
		deps := runtimeDependencies{
			cartStore:       cartStore,
			catalog:         postgres.NewCatalogRepository(store),
			outboxRepo:      postgres.NewOutboxRepository(store),
			idempotencyRepo: postgres.NewIdempotencyRepository(store),
			storageChecker:  healthcheck.CheckFunc(store.Ping),
			closeFn:         store.Close,
		}
		if cfg.PostgresSnapshotRetention > 0 {
			retentionLogger := logger.WithField("component", "snapshot-retention")
			deps.jobs = append(deps.jobs, func(ctx context.Context) {
				runSnapshotRetention(ctx, cartStore, cfg.PostgresSnapshotRetention, cfg.PostgresRetentionInterval, retentionLogger)
			})
		}
		logger.Info("using postgres storage")
		return deps, nil

	default:
		return runtimeDependencies{}, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

// staleSnapshotDeleter удаляет снимки корзин, не обновлявшиеся с момента before.
type staleSnapshotDeleter interface {
	DeleteStale(ctx context.Context, before time.Time) (int, error)
}

// runSnapshotRetention периодически удаляет заброшенные корзины до отмены ctx.
func runSnapshotRetention(ctx context.Context, store staleSnapshotDeleter, retention, interval time.Duration, logger *log.Entry) {
	if interval <= 0 {
		interval = time.Hour
	}
	sweep := func() {
		deleted, err := store.DeleteStale(ctx, time.Now().UTC().Add(-retention))
		if err != nil {
			if ctx.Err() == nil {
				logger.WithError(err).Warn("failed to delete stale cart snapshots")
			}
			return
		}
		if deleted > 0 {
			logger.WithField("deleted", deleted).Info("stale cart snapshots deleted")
		}
	}

	sweep()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}
