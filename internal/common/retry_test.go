package common

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_SuccessOnFirstAttempt(t *testing.T) {
	attempts := 0

	err := Do(context.Background(), func() error {
		attempts++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDo_SuccessAfterRetries(t *testing.T) {
	tests := []struct {
		name             string
		failUntilN       int
		maxRetries       int
		expectedAttempts int
		shouldSucceed    bool
	}{
		{name: "success on second attempt", failUntilN: 2, maxRetries: 3, expectedAttempts: 2, shouldSucceed: true},
		{name: "success on last retry", failUntilN: 4, maxRetries: 3, expectedAttempts: 4, shouldSucceed: true},
		{name: "fail all attempts", failUntilN: 10, maxRetries: 3, expectedAttempts: 4, shouldSucceed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			err := Do(context.Background(), func() error {
				attempts++
				if attempts < tt.failUntilN {
					return errors.New("temporary failure")
				}
				return nil
			}, WithMaxRetries(tt.maxRetries), WithInitialDelay(time.Millisecond))

			if tt.shouldSucceed {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
			assert.Equal(t, tt.expectedAttempts, attempts)
		})
	}
}

func TestDo_RetryPredicate(t *testing.T) {
	hardErr := errors.New("bad request")
	softErr := errors.New("rate limit")

	tests := []struct {
		name             string
		errs             []error
		expectedAttempts int
		expectWrapped    bool
		expectErr        error
	}{
		{
			name:             "non-retryable error returns immediately",
			errs:             []error{hardErr},
			expectedAttempts: 1,
			expectErr:        hardErr,
		},
		{
			name:             "retryable then non-retryable stops",
			errs:             []error{softErr, hardErr},
			expectedAttempts: 2,
			expectErr:        hardErr,
		},
		{
			name:             "retryable exhausted is wrapped",
			errs:             []error{softErr, softErr, softErr},
			expectedAttempts: 3,
			expectWrapped:    true,
			expectErr:        softErr,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			err := Do(context.Background(), func() error {
				e := tt.errs[min(attempts, len(tt.errs)-1)]
				attempts++
				return e
			},
				WithMaxRetries(2),
				WithInitialDelay(time.Millisecond),
				WithRetryIf(func(err error) bool { return err == softErr }),
			)

			require.Error(t, err)
			assert.Equal(t, tt.expectedAttempts, attempts)
			assert.ErrorIs(t, err, tt.expectErr)
			if tt.expectWrapped {
				assert.Contains(t, err.Error(), "retry failed after 3 attempts")
			} else {
				assert.Equal(t, tt.expectErr, err)
			}
		})
	}
}

func TestDo_OnRetryCallback(t *testing.T) {
	var delays []time.Duration
	_ = Do(context.Background(), func() error {
		return errors.New("always fails")
	},
		WithMaxRetries(3),
		WithInitialDelay(time.Millisecond),
		WithMultiplier(2),
		WithOnRetry(func(attempt int, delay time.Duration, err error) {
			delays = append(delays, delay)
		}),
	)

	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond, 4 * time.Millisecond}, delays)
}

func TestDo_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	attempts := 0
	err := Do(ctx, func() error {
		attempts++
		return errors.New("always fails")
	}, WithInitialDelay(100*time.Millisecond), WithMaxRetries(5))

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.GreaterOrEqual(t, attempts, 1)
}

func TestDo_ContextTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := Do(ctx, func() error {
		return errors.New("always fails")
	}, WithInitialDelay(30*time.Millisecond), WithMaxRetries(10))

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDo_NilFunction(t *testing.T) {
	err := Do(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, "retry: function cannot be nil", err.Error())
}

func TestPolicy_Schedule(t *testing.T) {
	p := NewPolicy(
		WithMaxRetries(4),
		WithInitialDelay(100*time.Millisecond),
		WithMaxDelay(300*time.Millisecond),
	)

	assert.Equal(t, 5, p.MaxAttempts())
	assert.Equal(t, 100*time.Millisecond, p.Delay(1))
	assert.Equal(t, 200*time.Millisecond, p.Delay(2))
	assert.Equal(t, 300*time.Millisecond, p.Delay(3))
}

func TestCalculateDelay(t *testing.T) {
	tests := []struct {
		name         string
		attempt      int
		initialDelay time.Duration
		maxDelay     time.Duration
		multiplier   float64
		expected     time.Duration
	}{
		{"first retry", 1, 100 * time.Millisecond, time.Second, 2.0, 100 * time.Millisecond},
		{"third retry", 3, 100 * time.Millisecond, time.Second, 2.0, 400 * time.Millisecond},
		{"capped at max delay", 5, 100 * time.Millisecond, 500 * time.Millisecond, 2.0, 500 * time.Millisecond},
		{"multiplier of 1.5", 2, 100 * time.Millisecond, time.Second, 1.5, 150 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, calculateDelay(tt.attempt, tt.initialDelay, tt.maxDelay, tt.multiplier))
		})
	}
}

func TestDo_InvalidOptions(t *testing.T) {
	// Invalid options should be ignored and use defaults
	err := Do(context.Background(), func() error {
		return nil
	},
		WithMaxRetries(-1),
		WithInitialDelay(-1),
		WithMaxDelay(-1),
		WithMultiplier(-1),
		WithRetryIf(nil),
	)

	assert.NoError(t, err)
}

func BenchmarkDo_Success(b *testing.B) {
	ctx := context.Background()
	for i := 0; i < b.N; i++ {
		_ = Do(ctx, func() error {
			return nil
		})
	}
}
