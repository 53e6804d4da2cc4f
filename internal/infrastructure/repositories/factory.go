package repositories

import (
	"context"

	"telerelay/internal/core/ports"
	"telerelay/internal/infrastructure/repositories/memory"
	redisrepo "telerelay/internal/infrastructure/repositories/redis"
	"telerelay/pkg/circuitbreaker"
	"telerelay/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RepositoryFactory creates repositories with fallback support
type RepositoryFactory struct {
	cfg         *config.Config
	useRedis    bool
	redisClient *redis.Client
	breaker     *circuitbreaker.CircuitBreaker
	logger      *zap.SugaredLogger
}

// NewRepositoryFactory connects to Redis when enabled and falls back to
// memory when it is unreachable.
func NewRepositoryFactory(cfg *config.Config, logger *zap.SugaredLogger) (*RepositoryFactory, error) {
	factory := &RepositoryFactory{
		cfg:      cfg,
		useRedis: cfg.Redis.Enabled,
		logger:   logger,
	}

	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			logger,
		)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory frame store",
				"error", err,
			)
			factory.useRedis = false
		} else {
			factory.redisClient = client
			factory.breaker = circuitbreaker.New(circuitbreaker.DefaultConfig())
			factory.breaker.OnStateChange(func(from, to circuitbreaker.State) {
				logger.Warnw("redis circuit breaker state changed", "from", from, "to", to)
			})
			logger.Info("using Redis frame store")
		}
	}

	if !factory.useRedis {
		logger.Info("using memory frame store")
	}

	return factory, nil
}

// CreatePeerRegistry always returns the in-process registry: peers are live
// connections owned by this process.
func (f *RepositoryFactory) CreatePeerRegistry() ports.PeerRegistry {
	return memory.NewMemoryPeerRegistry()
}

// CreateFrameStore creates a frame store (Redis or memory with fallback)
func (f *RepositoryFactory) CreateFrameStore() ports.FrameStore {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRedisFrameStore(f.redisClient, f.cfg.Redis.FrameKey, f.cfg.Redis.FrameTTL, f.breaker)
	}
	return memory.NewMemoryFrameStore()
}

// UsingRedis reports whether the Redis backend is active.
func (f *RepositoryFactory) UsingRedis() bool {
	return f.useRedis && f.redisClient != nil
}

// Close closes Redis connection if used
func (f *RepositoryFactory) Close() error {
	if f.redisClient != nil {
		err := redisrepo.CloseRedisClient(f.redisClient)
		f.redisClient = nil
		return err
	}
	return nil
}

// HealthCheck checks Redis connection health
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.useRedis && f.redisClient != nil {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}
