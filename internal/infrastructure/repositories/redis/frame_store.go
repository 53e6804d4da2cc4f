package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"telerelay/internal/core/domain"
	"telerelay/internal/core/ports"
	"telerelay/pkg/circuitbreaker"
	"telerelay/pkg/tracing"

	"github.com/redis/go-redis/v9"
)

// putFrame bumps the sequence and replaces the frame hash in one round trip.
var putFrame = redis.NewScript(`
local seq = redis.call('INCR', KEYS[2])
redis.call('HSET', KEYS[1], 'payload', ARGV[1], 'captured_at', ARGV[2], 'seq', seq)
if tonumber(ARGV[3]) > 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[3])
end
return seq
`)

// RedisFrameStore keeps the latest frame in a single hash so several relay
// instances can serve the same camera. Calls go through a circuit breaker so
// an unreachable Redis fails fast instead of stalling the ingress.
type RedisFrameStore struct {
	client  *redis.Client
	key     string
	seqKey  string
	ttl     time.Duration
	breaker *circuitbreaker.CircuitBreaker
}

func NewRedisFrameStore(client *redis.Client, key string, ttl time.Duration, breaker *circuitbreaker.CircuitBreaker) ports.FrameStore {
	if breaker == nil {
		breaker = circuitbreaker.New(circuitbreaker.DefaultConfig())
	}
	return &RedisFrameStore{
		client:  client,
		key:     key,
		seqKey:  key + ":seq",
		ttl:     ttl,
		breaker: breaker,
	}
}

func (s *RedisFrameStore) Put(ctx context.Context, frame *domain.Frame) error {
	ctx, span := tracing.TraceFrameStore(ctx, "put", "redis")
	defer span.End()

	err := s.breaker.Execute(ctx, func() error {
		seq, err := putFrame.Run(ctx, s.client,
			[]string{s.key, s.seqKey},
			frame.Payload,
			frame.CapturedAt.UnixNano(),
			s.ttl.Milliseconds(),
		).Int64()
		if err != nil {
			return err
		}
		frame.Sequence = uint64(seq)
		return nil
	})
	if err != nil {
		tracing.RecordError(ctx, err)
		return fmt.Errorf("failed to store frame in Redis: %w", err)
	}
	return nil
}

func (s *RedisFrameStore) Latest(ctx context.Context) (domain.Frame, error) {
	ctx, span := tracing.TraceFrameStore(ctx, "latest", "redis")
	defer span.End()

	var values []interface{}
	err := s.breaker.Execute(ctx, func() error {
		var err error
		values, err = s.client.HMGet(ctx, s.key, "payload", "captured_at", "seq").Result()
		return err
	})
	if err != nil {
		tracing.RecordError(ctx, err)
		return domain.Frame{}, fmt.Errorf("failed to load frame from Redis: %w", err)
	}

	return decodeFrame(values)
}

// decodeFrame converts an HMGET reply for payload, captured_at and seq.
func decodeFrame(values []interface{}) (domain.Frame, error) {
	if len(values) != 3 || values[0] == nil {
		return domain.Frame{}, domain.ErrFrameNotFound
	}

	payload, ok := values[0].(string)
	if !ok {
		return domain.Frame{}, fmt.Errorf("unexpected payload type %T", values[0])
	}
	capturedAt, err := parseInt(values[1])
	if err != nil {
		return domain.Frame{}, fmt.Errorf("invalid captured_at: %w", err)
	}
	seq, err := parseInt(values[2])
	if err != nil {
		return domain.Frame{}, fmt.Errorf("invalid seq: %w", err)
	}

	return domain.Frame{
		Payload:    []byte(payload),
		CapturedAt: time.Unix(0, capturedAt),
		Sequence:   uint64(seq),
	}, nil
}

func parseInt(v interface{}) (int64, error) {
	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("unexpected type %T", v)
	}
	return strconv.ParseInt(s, 10, 64)
}
