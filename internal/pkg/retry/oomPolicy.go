package retry

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/yurufuwayuya/visual-prompt-builder/internal/entity"
)

const (
	DefaultOOMAttempts  = 3
	DefaultOOMBaseDelay = 2 * time.Second

	stepReduction   = 0.7
	minSteps        = 10
	guidanceStep    = 1.5
	minGuidance     = 3.0
	fallbackSize    = 512
	fallbackAttempt = 3
)

var oomPatterns = []string{
	"cuda out of memory",
	"out of memory",
	"cuda error: out of memory",
	"outofmemoryerror",
}

// IsOutOfMemory reports whether a provider error looks like GPU memory exhaustion.
func IsOutOfMemory(err error) bool {
	if err == nil {
		return false
	}
	if entity.IsGenerationKind(err, entity.KindOutOfMemory) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, p := range oomPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// ReduceParameters lowers steps by 30% (floor 10) and guidance by 1.5
// (floor 3), and from the third attempt on caps the resolution. A value
// already under its floor is left where it is.
func ReduceParameters(p entity.GenerationParameters, nextAttempt int) entity.GenerationParameters {
	p.Steps = min(p.Steps, max(minSteps, int(math.Floor(float64(p.Steps)*stepReduction))))
	p.GuidanceScale = math.Min(p.GuidanceScale, math.Max(minGuidance, p.GuidanceScale-guidanceStep))
	if nextAttempt >= fallbackAttempt {
		p.Width = min(p.Width, fallbackSize)
		p.Height = min(p.Height, fallbackSize)
	}
	return p
}

// OOMPolicy reruns an entire generation flow after out-of-memory failures.
// Any other error ends the loop immediately.
type OOMPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	Sleep     Sleeper
	OnRetry   func(state *entity.GenerationAttemptState)
}

func NewOOMPolicy() OOMPolicy {
	return OOMPolicy{Attempts: DefaultOOMAttempts, BaseDelay: DefaultOOMBaseDelay}
}

func (p OOMPolicy) Do(ctx context.Context, state *entity.GenerationAttemptState, fn func(ctx context.Context, params entity.GenerationParameters) error) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	attempts := max(p.Attempts, 1)

	for attempt := 1; ; attempt++ {
		err := fn(ctx, state.CurrentParameters)
		if err == nil {
			state.LastError = nil
			return nil
		}
		state.LastError = err

		if !IsOutOfMemory(err) || attempt >= attempts {
			return err
		}

		state.RetryCount++
		state.CurrentParameters = ReduceParameters(state.CurrentParameters, attempt+1)
		if p.OnRetry != nil {
			p.OnRetry(state)
		}
		if sleepErr := sleep(ctx, p.BaseDelay*time.Duration(attempt)); sleepErr != nil {
			return err
		}
	}
}
