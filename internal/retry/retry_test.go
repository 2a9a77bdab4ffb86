package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureWaits 替换等待函数，记录每次退避时长
func captureWaits(t *testing.T) *[]time.Duration {
	t.Helper()

	var delays []time.Duration
	orig := wait
	wait = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	t.Cleanup(func() { wait = orig })

	return &delays
}

func TestBackoffShape(t *testing.T) {
	delays := captureWaits(t)

	calls := 0
	boom := errors.New("boom")
	err := Do(context.Background(), "always failing", func() error {
		calls++
		return boom
	}, Config{MaxAttempts: 5, InitialDelay: 100 * time.Millisecond, Multiplier: 2})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, 5, calls)
	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
	}, *delays)
}

func TestFirstAttemptSuccess(t *testing.T) {
	delays := captureWaits(t)

	calls := 0
	err := Do(context.Background(), "immediate success", func() error {
		calls++
		return nil
	}, Config{MaxAttempts: 5, InitialDelay: 100 * time.Millisecond})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *delays)
}

func TestRecoversAfterFailures(t *testing.T) {
	delays := captureWaits(t)

	calls := 0
	err := Do(context.Background(), "flaky", func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, Config{MaxAttempts: 5, InitialDelay: 100 * time.Millisecond, Multiplier: 2})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
	}, *delays)
}

func TestMaxDelayCap(t *testing.T) {
	delays := captureWaits(t)

	err := Do(context.Background(), "capped", func() error {
		return errors.New("boom")
	}, Config{
		MaxAttempts:  5,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     250 * time.Millisecond,
		Multiplier:   2,
	})

	require.Error(t, err)
	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		250 * time.Millisecond,
		250 * time.Millisecond,
	}, *delays)
}

func TestDefaultMaxDelayIsTenTimesInitial(t *testing.T) {
	cfg := Config{MaxAttempts: 3, InitialDelay: time.Second}.withDefaults()
	assert.Equal(t, 10*time.Second, cfg.MaxDelay)
	assert.Equal(t, float64(2), cfg.Multiplier)
}

func TestContextCancelStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Do(ctx, "cancelled", func() error {
		calls++
		return errors.New("boom")
	}, Config{MaxAttempts: 5, InitialDelay: 10 * time.Millisecond})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
