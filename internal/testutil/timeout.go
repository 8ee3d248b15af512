package testutil

import (
	"context"
	"testing"
	"time"
)

const (
	// DefaultTestBuffer is the buffer time subtracted from test deadline
	// to allow for cleanup operations before the test times out.
	DefaultTestBuffer = 10 * time.Second

	// DefaultShortTimeout bounds quick operations such as a single
	// websocket exchange.
	DefaultShortTimeout = 30 * time.Second
)

// ContextWithTestDeadline creates a context that respects the test's deadline.
// It subtracts a buffer from the test deadline to allow time for cleanup and
// never runs longer than fallback.
//
// Usage:
//
//	func TestSomething(t *testing.T) {
//	    ctx, cancel := testutil.ContextWithTestDeadline(t, 5*time.Second)
//	    defer cancel()
//	    // ... test code using ctx
//	}
func ContextWithTestDeadline(t *testing.T, fallback time.Duration) (context.Context, context.CancelFunc) {
	t.Helper()
	return contextWithTestDeadline(t, fallback, DefaultTestBuffer)
}

// contextWithTestDeadline ends at the earlier of the test deadline minus
// buffer and now plus fallback. An adjusted deadline already in the past is
// ignored.
func contextWithTestDeadline(t *testing.T, fallback, buffer time.Duration) (context.Context, context.CancelFunc) {
	if deadline, ok := t.Deadline(); ok {
		adjustedDeadline := deadline.Add(-buffer)
		if time.Until(adjustedDeadline) > 0 && time.Until(adjustedDeadline) < fallback {
			return context.WithDeadline(context.Background(), adjustedDeadline)
		}
	}

	return context.WithTimeout(context.Background(), fallback)
}

// ShortOperationContext creates a context for quick operations like a
// single progress exchange. It respects the test deadline if one is set.
func ShortOperationContext(t *testing.T) (context.Context, context.CancelFunc) {
	t.Helper()
	return ContextWithTestDeadline(t, DefaultShortTimeout)
}

// WaitClosed waits for done to be closed or fails the test after timeout.
func WaitClosed(t *testing.T, done <-chan struct{}, timeout time.Duration) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatalf("timed out after %v waiting for close", timeout)
	}
}
