package backoff

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/example/freshcheck/internal/logging"
)

type transientTestError struct{}

func (transientTestError) Error() string   { return "transient" }
func (transientTestError) Timeout() bool   { return true }
func (transientTestError) Temporary() bool { return true }

var testPolicy = Policy{Attempts: 3, Initial: time.Millisecond, Max: 2 * time.Millisecond}

func TestDoRetriesTransientErrors(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), zap.NewNop(), testPolicy, "test.operation", "req-1", func() error {
		attempts++
		if attempts < 2 {
			return transientTestError{}
		}
		return nil
	})

	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}

func TestDoStopsOnPermanentError(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), zap.NewNop(), testPolicy, "test.operation", "req-2", func() error {
		attempts++
		return errors.New("boom")
	})

	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}

	var opErr *logging.OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected OperationError, got %T", err)
	}
	if opErr.Operation != "test.operation" || opErr.RequestID != "req-2" {
		t.Fatalf("unexpected operation metadata: %+v", opErr)
	}
}

func TestDoGivesUpAfterAttempts(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), zap.NewNop(), testPolicy, "test.operation", "", func() error {
		attempts++
		return transientTestError{}
	})

	if attempts != testPolicy.Attempts {
		t.Fatalf("expected %d attempts, got %d", testPolicy.Attempts, attempts)
	}
	var transient transientTestError
	if !errors.As(err, &transient) {
		t.Fatalf("expected the transient error to surface, got %v", err)
	}
}

func TestDoSingleAttemptPolicy(t *testing.T) {
	if err := Do(context.Background(), zap.NewNop(), Policy{Attempts: 1}, "op", "", func() error { return nil }); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestIsTransient(t *testing.T) {
	if IsTransient(nil) || IsTransient(errors.New("x")) {
		t.Fatal("plain errors are not transient")
	}
	if !IsTransient(context.DeadlineExceeded) || !IsTransient(transientTestError{}) {
		t.Fatal("deadline and timeout errors are transient")
	}
}
