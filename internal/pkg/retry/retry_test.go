package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSleeper struct {
	delays []time.Duration
}

func (r *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func TestLinearPolicy_SucceedsAfterRetries(t *testing.T) {
	sleeper := &recordingSleeper{}
	policy := LinearPolicy{Attempts: 3, BaseDelay: time.Second, Sleep: sleeper.Sleep}

	calls := 0
	err := policy.Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		if attempt < 3 {
			return errors.New("connection reset")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeper.delays)
}

func TestLinearPolicy_GivesUpAfterLastAttempt(t *testing.T) {
	sleeper := &recordingSleeper{}
	policy := LinearPolicy{Attempts: 3, BaseDelay: time.Second, Sleep: sleeper.Sleep}
	failure := errors.New("boom")

	calls := 0
	err := policy.Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		return failure
	})

	assert.ErrorIs(t, err, failure)
	assert.Equal(t, 3, calls)
	assert.Len(t, sleeper.delays, 2)
}

func TestLinearPolicy_StopsOnNonRetryable(t *testing.T) {
	sleeper := &recordingSleeper{}
	permanent := errors.New("too large")
	policy := LinearPolicy{
		Attempts:  3,
		BaseDelay: time.Second,
		Sleep:     sleeper.Sleep,
		Retryable: func(err error) bool { return !errors.Is(err, permanent) },
	}

	calls := 0
	err := policy.Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		return permanent
	})

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
	assert.Empty(t, sleeper.delays)
}

func TestLinearPolicy_CancelledContextStopsWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := LinearPolicy{Attempts: 3, BaseDelay: time.Hour}.Do(ctx, func(ctx context.Context, attempt int) error {
		calls++
		return errors.New("fail")
	})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}
