package wait

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForExhaustsBudget(t *testing.T) {
	attempts := 0
	start := time.Now()
	err := For(context.Background(), func(ctx context.Context) (bool, error) {
		attempts++
		return false, nil
	}, 5, 10*time.Millisecond)
	elapsed := time.Since(start)

	require.ErrorIs(t, err, ErrAttemptsExhausted)
	assert.Equal(t, 5, attempts)
	// interval is slept before every evaluation, including the first
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
}

func TestForSucceedsEarly(t *testing.T) {
	attempts := 0
	start := time.Now()
	err := For(context.Background(), func(ctx context.Context) (bool, error) {
		attempts++
		return attempts == 3, nil
	}, 10, 10*time.Millisecond)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.GreaterOrEqual(t, elapsed, 30*time.Millisecond)
	assert.Less(t, elapsed, 100*time.Millisecond)
}

func TestForSurfacesFinalError(t *testing.T) {
	boom := errors.New("rpc connection refused")
	err := For(context.Background(), func(ctx context.Context) (bool, error) {
		return false, boom
	}, 3, time.Millisecond)

	require.ErrorIs(t, err, ErrAttemptsExhausted)
	require.ErrorIs(t, err, boom)
}

func TestForSwallowsIntermediateErrors(t *testing.T) {
	boom := errors.New("transient")
	attempts := 0
	err := For(context.Background(), func(ctx context.Context) (bool, error) {
		attempts++
		if attempts < 3 {
			return false, boom
		}
		return false, nil
	}, 3, time.Millisecond)

	// the predicate returned plain false on the final attempt, so the
	// earlier errors must not leak into the result
	require.ErrorIs(t, err, ErrAttemptsExhausted)
	require.NotErrorIs(t, err, boom)
}

func TestForCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := For(ctx, func(ctx context.Context) (bool, error) {
		return false, nil
	}, 1000, 10*time.Millisecond)

	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestForRejectsZeroAttempts(t *testing.T) {
	err := For(context.Background(), func(ctx context.Context) (bool, error) {
		return true, nil
	}, 0, time.Millisecond)
	require.Error(t, err)
}
