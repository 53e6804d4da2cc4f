package repositories

import (
	"context"
	"testing"

	"telerelay/internal/infrastructure/repositories/memory"
	"telerelay/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRepositoryFactory_MemoryByDefault(t *testing.T) {
	factory, err := NewRepositoryFactory(config.DefaultConfig(), zap.NewNop().Sugar())
	require.NoError(t, err)
	defer factory.Close()

	assert.False(t, factory.UsingRedis())
	assert.IsType(t, &memory.MemoryFrameStore{}, factory.CreateFrameStore())
	assert.IsType(t, &memory.MemoryPeerRegistry{}, factory.CreatePeerRegistry())
	assert.NoError(t, factory.HealthCheck(context.Background()))
}

func TestRepositoryFactory_FallsBackWhenRedisUnreachable(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Redis.Enabled = true
	cfg.Redis.Address = "127.0.0.1:1"

	factory, err := NewRepositoryFactory(cfg, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer factory.Close()

	assert.False(t, factory.UsingRedis())
	assert.IsType(t, &memory.MemoryFrameStore{}, factory.CreateFrameStore())
}
