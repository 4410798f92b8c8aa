// Package wait provides a bounded-retry condition poller used by the
// bootstrap sequencer and by test code directly.
package wait

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrAttemptsExhausted is returned (wrapped) when the predicate never
// returned true within the attempt budget. If the predicate failed on the
// final attempt, the returned error also wraps that failure so callers can
// tell "exhausted with a concrete last error" apart from "predicate only
// ever returned false".
var ErrAttemptsExhausted = errors.New("attempts exhausted")

// Predicate reports whether the awaited condition holds. Returning an error
// counts as a failed attempt; the error is only surfaced if it happens on
// the final attempt.
type Predicate func(ctx context.Context) (bool, error)

// For polls predicate up to attempts times, sleeping interval before every
// evaluation including the first. The leading sleep gives the polled system
// a minimum settle time even on the first check; callers rely on the failing
// case taking at least attempts*interval.
//
// ctx cancels the poll mid-sleep; cancellation surfaces ctx.Err().
func For(ctx context.Context, predicate Predicate, attempts int, interval time.Duration) error {
	if attempts <= 0 {
		return fmt.Errorf("invalid attempt budget %d", attempts)
	}
	timer := time.NewTimer(interval)
	defer timer.Stop()

	var lastErr error
	for i := 0; i < attempts; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		ok, err := predicate(ctx)
		if err != nil {
			lastErr = err
		} else if ok {
			return nil
		} else {
			lastErr = nil
		}

		if i < attempts-1 {
			timer.Reset(interval)
		}
	}
	if lastErr != nil {
		return fmt.Errorf("%w after %d attempts, last error: %w", ErrAttemptsExhausted, attempts, lastErr)
	}
	return fmt.Errorf("%w after %d attempts", ErrAttemptsExhausted, attempts)
}
