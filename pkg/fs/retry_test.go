package fs

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"
)

func TestIsTransient(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"permission", os.ErrPermission, true},
		{"not exist", os.ErrNotExist, false},
		{"wrapped permission", &os.PathError{Op: "open", Path: "x", Err: os.ErrPermission}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := isTransient(tc.err); got != tc.want {
				t.Fatalf("isTransient(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestWithRetry_SucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()

	attempts := 0
	start := time.Now()

	err := withRetry(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return os.ErrPermission
		}

		return nil
	})
	if err != nil {
		t.Fatalf("withRetry: %v", err)
	}

	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}

	if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
		t.Fatalf("expected at least two backoff sleeps, elapsed=%v", elapsed)
	}
}

func TestWithRetry_GivesUpAfterBudgetExhausted(t *testing.T) {
	t.Parallel()

	attempts := 0

	err := withRetry(context.Background(), func() error {
		attempts++

		return os.ErrPermission
	})
	if err == nil {
		t.Fatal("expected an error once the retry budget is exhausted")
	}

	if attempts != len(retryBackoff)+1 {
		t.Fatalf("attempts = %d, want %d", attempts, len(retryBackoff)+1)
	}
}

func TestWithRetry_NonTransientFailsImmediately(t *testing.T) {
	t.Parallel()

	attempts := 0
	sentinel := errors.New("permanent")

	err := withRetry(context.Background(), func() error {
		attempts++

		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("err = %v, want sentinel", err)
	}

	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1 (no retry for non-transient errors)", attempts)
	}
}

func TestWithRetry_CancelledContextAborts(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0

	err := withRetry(ctx, func() error {
		attempts++

		return os.ErrPermission
	})
	if err == nil {
		t.Fatal("expected cancellation to surface as an error")
	}

	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1 (first call runs before the context is checked)", attempts)
	}
}
