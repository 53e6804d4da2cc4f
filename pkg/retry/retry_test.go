package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errDialFailed = errors.New("dial: connection refused")
	errBadURL     = errors.New("malformed ws url")
)

func fastConfig() Config {
	return Config{
		Enabled:      true,
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestRetry_SuccessOnFirstAttempt(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastConfig(), func() error {
		attempts++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetry_SuccessAfterRetries(t *testing.T) {
	var retried []int
	cfg := fastConfig()
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		retried = append(retried, attempt)
		assert.ErrorIs(t, err, errDialFailed)
	}

	attempts := 0
	err := Retry(context.Background(), cfg, func() error {
		attempts++
		if attempts < 3 {
			return errDialFailed
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestRetry_MaxAttemptsExceeded(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastConfig(), func() error {
		attempts++
		return errDialFailed
	})

	assert.ErrorIs(t, err, errDialFailed)
	assert.Equal(t, 4, attempts)
}

func TestRetry_NonRetryableStopsImmediately(t *testing.T) {
	cfg := fastConfig()
	cfg.NonRetryableErrors = []error{errBadURL}

	attempts := 0
	err := Retry(context.Background(), cfg, func() error {
		attempts++
		return fmtWrap(errBadURL)
	})

	assert.ErrorIs(t, err, errBadURL)
	assert.Equal(t, 1, attempts)
}

func TestRetry_Disabled(t *testing.T) {
	cfg := fastConfig()
	cfg.Enabled = false

	attempts := 0
	err := Retry(context.Background(), cfg, func() error {
		attempts++
		return errDialFailed
	})

	assert.Equal(t, errDialFailed, err)
	assert.Equal(t, 1, attempts)
}

func TestRetry_UnlimitedStopsOnCancel(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxAttempts = -1

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := Retry(ctx, cfg, func() error {
		attempts++
		if attempts == 5 {
			cancel()
		}
		return errDialFailed
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 5, attempts)
}

func TestRetryWithResult(t *testing.T) {
	attempts := 0
	got, err := RetryWithResult(context.Background(), fastConfig(), func() (string, error) {
		attempts++
		if attempts == 1 {
			return "", errDialFailed
		}
		return "connected", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "connected", got)
}

func TestCalculateDelay(t *testing.T) {
	cfg := Config{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}

	assert.Equal(t, 100*time.Millisecond, calculateDelay(cfg, 0))
	assert.Equal(t, 400*time.Millisecond, calculateDelay(cfg, 2))
	assert.Equal(t, time.Second, calculateDelay(cfg, 10))

	cfg.Jitter = true
	for i := 0; i < 100; i++ {
		d := calculateDelay(cfg, 1)
		assert.GreaterOrEqual(t, d, 150*time.Millisecond)
		assert.LessOrEqual(t, d, 250*time.Millisecond)
	}
}

func fmtWrap(err error) error {
	return errors.Join(errors.New("dial operator session"), err)
}
