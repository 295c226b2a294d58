package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yurufuwayuya/visual-prompt-builder/internal/entity"
)

func baseParams() entity.GenerationParameters {
	return entity.GenerationParameters{
		Width:         768,
		Height:        768,
		Strength:      0.7,
		Steps:         25,
		GuidanceScale: 7.5,
		OutputFormat:  "png",
	}
}

func TestIsOutOfMemory(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"cuda message", errors.New("CUDA out of memory. Tried to allocate 2.00 GiB"), true},
		{"generic", errors.New("RuntimeError: out of memory"), true},
		{"torch class", errors.New("torch.OutOfMemoryError: allocation failed"), true},
		{"classified", entity.NewGenerationError(entity.KindOutOfMemory, "gpu exhausted", nil), true},
		{"other", errors.New("invalid prompt"), false},
		{"room is not oom", errors.New("no room for prompt"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsOutOfMemory(tt.err))
		})
	}
}

func TestReduceParameters(t *testing.T) {
	second := ReduceParameters(baseParams(), 2)
	assert.Equal(t, 17, second.Steps)
	assert.InDelta(t, 6.0, second.GuidanceScale, 1e-9)
	assert.Equal(t, 768, second.Width)
	assert.Equal(t, 768, second.Height)

	third := ReduceParameters(second, 3)
	assert.Equal(t, 11, third.Steps)
	assert.InDelta(t, 4.5, third.GuidanceScale, 1e-9)
	assert.Equal(t, 512, third.Width)
	assert.Equal(t, 512, third.Height)
}

func TestReduceParameters_NeverIncreases(t *testing.T) {
	low := entity.GenerationParameters{Width: 256, Height: 384, Steps: 8, GuidanceScale: 2}
	got := ReduceParameters(low, 3)

	assert.Equal(t, 8, got.Steps)
	assert.InDelta(t, 2.0, got.GuidanceScale, 1e-9)
	assert.Equal(t, 256, got.Width)
	assert.Equal(t, 384, got.Height)
}

func TestOOMPolicy_RetriesWithReducedParameters(t *testing.T) {
	sleeper := &recordingSleeper{}
	policy := OOMPolicy{Attempts: 3, BaseDelay: 2 * time.Second, Sleep: sleeper.Sleep}
	state := &entity.GenerationAttemptState{CurrentParameters: baseParams()}

	var seen []entity.GenerationParameters
	err := policy.Do(context.Background(), state, func(ctx context.Context, params entity.GenerationParameters) error {
		seen = append(seen, params)
		if len(seen) < 3 {
			return errors.New("CUDA out of memory")
		}
		return nil
	})

	require.NoError(t, err)
	require.Len(t, seen, 3)
	assert.Equal(t, 2, state.RetryCount)
	assert.Nil(t, state.LastError)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, sleeper.delays)

	for i := 1; i < len(seen); i++ {
		assert.LessOrEqual(t, seen[i].Steps, seen[i-1].Steps)
		assert.LessOrEqual(t, seen[i].GuidanceScale, seen[i-1].GuidanceScale)
		assert.LessOrEqual(t, seen[i].Width, seen[i-1].Width)
	}
	assert.Equal(t, 512, seen[2].Width)
}

func TestOOMPolicy_ExhaustsBudget(t *testing.T) {
	sleeper := &recordingSleeper{}
	policy := OOMPolicy{Attempts: 3, BaseDelay: 2 * time.Second, Sleep: sleeper.Sleep}
	state := &entity.GenerationAttemptState{CurrentParameters: baseParams()}
	oom := errors.New("CUDA out of memory")

	calls := 0
	err := policy.Do(context.Background(), state, func(ctx context.Context, params entity.GenerationParameters) error {
		calls++
		return oom
	})

	assert.ErrorIs(t, err, oom)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, state.RetryCount)
	assert.ErrorIs(t, state.LastError, oom)
}

func TestOOMPolicy_OtherErrorsAreNotRetried(t *testing.T) {
	sleeper := &recordingSleeper{}
	policy := OOMPolicy{Attempts: 3, BaseDelay: 2 * time.Second, Sleep: sleeper.Sleep}
	state := &entity.GenerationAttemptState{CurrentParameters: baseParams()}

	calls := 0
	err := policy.Do(context.Background(), state, func(ctx context.Context, params entity.GenerationParameters) error {
		calls++
		return errors.New("invalid prompt")
	})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Zero(t, state.RetryCount)
	assert.Empty(t, sleeper.delays)
}
