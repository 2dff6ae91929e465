package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() Config {
	return Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
}

func TestDo_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	v, res, err := Do(context.Background(), fastConfig(), func(ctx context.Context, attempt int) (int, error) {
		calls++
		if attempt < 3 {
			return 0, errors.New("temporary")
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, res.Attempts)
	assert.True(t, res.Success)
}

func TestDo_StopsOnNonRetryable(t *testing.T) {
	permanent := errors.New("invalid address")
	cfg := fastConfig()
	cfg.Retryable = func(err error) bool { return !errors.Is(err, permanent) }

	calls := 0
	_, res, err := Do(context.Background(), cfg, func(ctx context.Context, attempt int) (string, error) {
		calls++
		return "", permanent
	})

	require.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
	assert.False(t, res.Success)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	boom := errors.New("boom")
	err := Run(context.Background(), fastConfig(), func(ctx context.Context, attempt int) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	cfg := Config{MaxAttempts: 5, InitialDelay: time.Hour, Multiplier: 2}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, cfg, func(ctx context.Context, attempt int) error {
			return errors.New("fail")
		})
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("retry did not stop on cancellation")
	}
}

func TestDelay(t *testing.T) {
	cfg := Config{InitialDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond, Multiplier: 2}
	assert.Equal(t, 100*time.Millisecond, Delay(cfg, 1))
	assert.Equal(t, 200*time.Millisecond, Delay(cfg, 2))
	assert.Equal(t, 300*time.Millisecond, Delay(cfg, 3))
}
