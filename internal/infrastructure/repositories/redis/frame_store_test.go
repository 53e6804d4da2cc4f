package redis

import (
	"context"
	"testing"
	"time"

	"telerelay/internal/core/domain"
	"telerelay/pkg/circuitbreaker"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFrame(t *testing.T) {
	captured := time.Date(2024, 3, 2, 10, 0, 0, 123, time.UTC)

	frame, err := decodeFrame([]interface{}{"\xff\xd8jpeg", "1709373600000000123", "42"})
	require.NoError(t, err)
	assert.Equal(t, []byte("\xff\xd8jpeg"), frame.Payload)
	assert.True(t, captured.Equal(frame.CapturedAt))
	assert.Equal(t, uint64(42), frame.Sequence)

	frame, err = decodeFrame([]interface{}{"", "1", "1"})
	require.NoError(t, err)
	assert.Empty(t, frame.Payload)
}

func TestDecodeFrame_Missing(t *testing.T) {
	_, err := decodeFrame([]interface{}{nil, nil, nil})
	assert.ErrorIs(t, err, domain.ErrFrameNotFound)

	_, err = decodeFrame([]interface{}{"x", "not-a-number", "1"})
	assert.Error(t, err)
}

func TestRedisFrameStore_UnreachableServerTripsBreaker(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	breaker := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold:    2,
		SuccessThreshold:    1,
		Timeout:             time.Minute,
		MaxRequestsHalfOpen: 1,
	})
	store := NewRedisFrameStore(client, "test:frame", time.Second, breaker)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		err := store.Put(ctx, &domain.Frame{Payload: []byte{1}, CapturedAt: time.Now()})
		require.Error(t, err)
	}
	require.Equal(t, circuitbreaker.StateOpen, breaker.GetState())

	err := store.Put(ctx, &domain.Frame{Payload: []byte{1}, CapturedAt: time.Now()})
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)

	_, err = store.Latest(ctx)
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
}
