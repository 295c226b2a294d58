// Package retry holds the two retry policies used around provider calls: a
// short linear one for transient transfer failures and a whole-flow one that
// lowers generation parameters after a CUDA out-of-memory error.
package retry

import (
	"context"
	"time"
)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// LinearPolicy retries fn up to Attempts times in total, waiting
// BaseDelay*attempt after each failed attempt.
type LinearPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	Retryable func(error) bool
	Sleep     Sleeper
	OnRetry   func(attempt int, err error)
}

func (p LinearPolicy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	attempts := max(p.Attempts, 1)

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx, attempt); err == nil {
			return nil
		}
		if attempt == attempts || (p.Retryable != nil && !p.Retryable(err)) {
			return err
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
		if sleepErr := sleep(ctx, p.BaseDelay*time.Duration(attempt)); sleepErr != nil {
			return err
		}
	}
	return err
}
