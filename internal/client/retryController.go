// Package client is the Go API client for the generation service. Calls go
// through a retry controller that backs off on server failures and gives up
// at once on client and connectivity errors.
package client

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yurufuwayuya/visual-prompt-builder/internal/pkg/retry"
)

const MaxRetryCount = 3

var RetryDelays = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}

// RetryNotice is passed to OnRetry before each backoff.
type RetryNotice struct {
	NextAttempt int
	Delay       time.Duration
	Err         error
}

type RetryController struct {
	Sleep   retry.Sleeper
	OnRetry func(RetryNotice)
	Logger  logrus.FieldLogger
}

func NewRetryController(logger logrus.FieldLogger) *RetryController {
	return &RetryController{Sleep: retry.Sleep, Logger: logger}
}

// GenerateWithRetry calls fn until it succeeds, fails with a non-retryable
// error, or has been retried MaxRetryCount times.
func GenerateWithRetry[T any](ctx context.Context, rc *RetryController, fn func(ctx context.Context) (T, error)) (T, error) {
	sleep := rc.Sleep
	if sleep == nil {
		sleep = retry.Sleep
	}

	var zero T
	for attempt := 0; ; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return zero, &RetryError{Attempts: attempt + 1, Err: err}
		}

		retryable, guidance := classify(err)
		if !retryable {
			rc.log().WithError(err).Warn("Generation request failed with a non-retryable error")
			return zero, &RetryError{Attempts: attempt + 1, Guidance: guidance, Err: err}
		}
		if attempt >= MaxRetryCount {
			rc.log().WithError(err).Error("Generation request failed after max retries")
			return zero, &RetryError{Attempts: attempt + 1, Retryable: true, Err: err}
		}

		delay := RetryDelays[min(attempt, len(RetryDelays)-1)]
		rc.log().WithError(err).WithFields(logrus.Fields{
			"attempt": attempt + 2,
			"delay":   delay,
		}).Warn("Generation request failed, retrying")
		if rc.OnRetry != nil {
			rc.OnRetry(RetryNotice{NextAttempt: attempt + 2, Delay: delay, Err: err})
		}

		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			return zero, &RetryError{Attempts: attempt + 1, Err: sleepErr}
		}
	}
}

func (rc *RetryController) log() logrus.FieldLogger {
	if rc.Logger == nil {
		return logrus.StandardLogger()
	}
	return rc.Logger
}
