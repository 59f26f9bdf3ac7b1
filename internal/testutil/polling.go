// Package testutil provides polling helpers for tests that observe work
// running on another execution context.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"
)

const (
	// PollingInterval is the default interval between condition checks.
	PollingInterval = 2 * time.Millisecond

	// DefaultTimeout bounds waits for work that should complete promptly,
	// e.g. a queued event or a short timer. It is generous to tolerate slow,
	// heavily loaded CI machines.
	DefaultTimeout = 5 * time.Second
)

// Poll checks condition every interval until it holds, the timeout elapses,
// or ctx is done.
func Poll(ctx context.Context, condition func() bool, timeout, interval time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if condition() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			if condition() {
				return nil
			}
			return fmt.Errorf("timeout waiting for condition (threshold: %v)", timeout)
		case <-ticker.C:
		}
	}
}

// WaitForState polls getter until predicate accepts its result, returning
// that result.
func WaitForState[T any](ctx context.Context, getter func() T, predicate func(T) bool, timeout, interval time.Duration) (T, error) {
	var last T
	err := Poll(ctx, func() bool {
		last = getter()
		return predicate(last)
	}, timeout, interval)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("waiting for state (last %+v): %w", last, err)
	}
	return last, nil
}

// RequireEventually fails the test unless condition holds within
// DefaultTimeout.
func RequireEventually(t testing.TB, condition func() bool, msgAndArgs ...any) {
	t.Helper()
	if err := Poll(context.Background(), condition, DefaultTimeout, PollingInterval); err != nil {
		if len(msgAndArgs) > 0 {
			if format, ok := msgAndArgs[0].(string); ok {
				t.Fatalf("%s: "+format, append([]any{err}, msgAndArgs[1:]...)...)
			}
		}
		t.Fatal(err)
	}
}
