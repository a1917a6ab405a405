package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func TestDo_SuccessOnFirstAttempt(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Do(context.Background(), fastRetry(3), func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_SuccessAfterRetry(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Do(context.Background(), fastRetry(3), func(context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(errors.New("busy"), 503)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsRetries(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Do(context.Background(), fastRetry(3), func(context.Context) error {
		calls++
		return NewTransientError(errors.New("always"), 500)
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_PermanentErrorNotRetried(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Do(context.Background(), fastRetry(3), func(context.Context) error {
		calls++
		return &StatusError{URL: "https://data.sec.gov/x", StatusCode: 404}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelledStopsRetry(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastRetry(5)
	cfg.Backoff = func(int, error) time.Duration { return time.Hour }

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, cfg, func(context.Context) error {
			calls++
			return NewTransientError(errors.New("busy"), 503)
		})
	}()
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	case <-time.After(5 * time.Second):
		t.Fatal("Do did not return after cancel")
	}
}

func TestDo_CustomBackoffAndOnRetry(t *testing.T) {
	t.Parallel()

	var attempts []int
	var seen []int
	cfg := fastRetry(3)
	cfg.Backoff = func(attempt int, err error) time.Duration {
		attempts = append(attempts, attempt)
		return 0
	}
	cfg.OnRetry = func(attempt int, err error) { seen = append(seen, StatusCode(err)) }

	_ = Do(context.Background(), cfg, func(context.Context) error {
		return NewTransientError(errors.New("throttled"), 429)
	})
	assert.Equal(t, []int{0, 1}, attempts)
	assert.Equal(t, []int{429, 429}, seen)
}

func TestDo_CustomShouldRetry(t *testing.T) {
	t.Parallel()

	calls := 0
	cfg := fastRetry(3)
	cfg.ShouldRetry = func(error) bool { return true }
	_ = Do(context.Background(), cfg, func(context.Context) error {
		calls++
		return errors.New("anything")
	})
	assert.Equal(t, 3, calls)
}

func TestDoVal(t *testing.T) {
	t.Parallel()

	calls := 0
	v, err := DoVal(context.Background(), fastRetry(3), func(context.Context) ([]byte, error) {
		calls++
		if calls == 1 {
			return nil, NewTransientError(errors.New("busy"), 503)
		}
		return []byte("{}"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "{}", string(v))

	v, err = DoVal(context.Background(), fastRetry(2), func(context.Context) ([]byte, error) {
		return []byte("partial"), errors.New("permanent")
	})
	require.Error(t, err)
	assert.Nil(t, v)
}

func TestEDGARRetryConfig(t *testing.T) {
	t.Parallel()

	cfg := EDGARRetryConfig(3)
	assert.Equal(t, 4, cfg.MaxAttempts)
	require.NotNil(t, cfg.Backoff)
	assert.Equal(t, 2*time.Second, cfg.Backoff(0, NewTransientError(errors.New("x"), 429)))

	assert.Equal(t, 1, EDGARRetryConfig(-1).MaxAttempts)
}

func TestComputeBackoff(t *testing.T) {
	t.Parallel()

	cfg := RetryConfig{InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second, Multiplier: 2}
	assert.Equal(t, 100*time.Millisecond, computeBackoff(0, cfg))
	assert.Equal(t, 400*time.Millisecond, computeBackoff(2, cfg))
	assert.Equal(t, time.Second, computeBackoff(10, cfg))

	cfg.JitterFraction = 0.5
	for range 50 {
		d := computeBackoff(0, cfg)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}

func TestRetryLogger(t *testing.T) {
	t.Parallel()

	fn := RetryLogger("data.sec.gov", "companyfacts")
	assert.NotPanics(t, func() { fn(1, NewTransientError(errors.New("x"), 429)) })
}
