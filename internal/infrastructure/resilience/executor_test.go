package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
)

var errLeaderMoved = errors.New("leader not available")

func deliveryClassifier(err error) ErrorClassification {
	return ErrorClassification{Retryable: errors.Is(err, errLeaderMoved), RecordFailure: true}
}

func TestExecuteRetryBudget(t *testing.T) {
	cases := []struct {
		name         string
		failures     int
		failWith     error
		wantAttempts int
		wantErr      error
	}{
		{name: "recovers after transient failures", failures: 2, failWith: errLeaderMoved, wantAttempts: 3},
		{name: "gives up after max attempts", failures: 10, failWith: errLeaderMoved, wantAttempts: 3, wantErr: errLeaderMoved},
		{name: "permanent failure is not retried", failures: 10, failWith: errors.New("message too large"), wantAttempts: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			exec := NewExecutor(Config{
				RetryMaxAttempts:    3,
				RetryInitialBackoff: time.Millisecond,
				RetryMaxBackoff:     2 * time.Millisecond,
				RetryMultiplier:     2,
			})

			attempts := 0
			err := exec.Execute(context.Background(), "kafka.delivery", func(context.Context) error {
				attempts++
				if attempts <= tc.failures {
					return tc.failWith
				}
				return nil
			}, deliveryClassifier)

			if attempts != tc.wantAttempts {
				t.Fatalf("expected %d attempts, got %d", tc.wantAttempts, attempts)
			}
			switch {
			case tc.failures < tc.wantAttempts && err != nil:
				t.Fatalf("expected success, got %v", err)
			case tc.wantErr != nil && !errors.Is(err, tc.wantErr):
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestExecuteUsesOperationOverride(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:    5,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		Operations: map[string]RetryPolicy{
			"kafka.delivery": {MaxAttempts: 2},
		},
	})

	count := func(op string) int {
		attempts := 0
		_ = exec.Execute(context.Background(), op, func(context.Context) error {
			attempts++
			return errLeaderMoved
		}, deliveryClassifier)
		return attempts
	}
	if got := count("kafka.delivery"); got != 2 {
		t.Fatalf("expected delivery override of 2 attempts, got %d", got)
	}
	if got := count("mongo.catalog"); got != 5 {
		t.Fatalf("expected default of 5 attempts, got %d", got)
	}
}

func TestExecuteOnceNeverRetries(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:    5,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		BreakerEnabled:      true,
	})

	var retried []int
	exec.Observe(nil, func(_ string, attempt int) { retried = append(retried, attempt) })

	attempts := 0
	err := exec.ExecuteOnce(context.Background(), "nats.relay", func(context.Context) error {
		attempts++
		return errLeaderMoved
	}, deliveryClassifier)
	if !errors.Is(err, errLeaderMoved) {
		t.Fatalf("expected retryable error to surface, got %v", err)
	}
	if attempts != 1 || len(retried) != 0 {
		t.Fatalf("expected a single attempt, got %d attempts and retries %v", attempts, retried)
	}
}

func TestExecuteOnceHonoursOpenCircuit(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:        3,
		BreakerEnabled:          true,
		BreakerMinRequests:      2,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      time.Minute,
		BreakerHalfOpenMaxCalls: 1,
	})

	errBroker := errors.New("broker unreachable")
	for i := 0; i < 2; i++ {
		_ = exec.ExecuteOnce(context.Background(), "nats.relay", func(context.Context) error {
			return errBroker
		}, nil)
	}

	err := exec.ExecuteOnce(context.Background(), "nats.relay", func(context.Context) error {
		t.Fatalf("circuit should be open and must not call operation")
		return nil
	}, nil)
	if !IsCircuitOpen(err) {
		t.Fatalf("expected open circuit, got %v", err)
	}
}

func TestExecuteStopsWhenContextCancelled(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:    5,
		RetryInitialBackoff: time.Hour,
		RetryMaxBackoff:     time.Hour,
	})
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	err := exec.Execute(ctx, "kafka.delivery", func(context.Context) error {
		attempts++
		cancel()
		return errLeaderMoved
	}, deliveryClassifier)
	if !errors.Is(err, errLeaderMoved) || attempts != 1 {
		t.Fatalf("expected one attempt ending in the last error, got %d, %v", attempts, err)
	}
}

func TestExecuteOpensCircuitAfterFailures(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:        1,
		RetryInitialBackoff:     1 * time.Millisecond,
		RetryMaxBackoff:         1 * time.Millisecond,
		RetryMultiplier:         2,
		BreakerEnabled:          true,
		BreakerMinRequests:      2,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      50 * time.Millisecond,
		BreakerHalfOpenMaxCalls: 1,
	})

	errBroker := errors.New("broker unreachable")
	for i := 0; i < 2; i++ {
		err := exec.Execute(context.Background(), "nats.relay", func(context.Context) error {
			return errBroker
		}, nil)
		if !errors.Is(err, errBroker) {
			t.Fatalf("expected broker error on iteration %d, got %v", i, err)
		}
	}

	err := exec.Execute(context.Background(), "nats.relay", func(context.Context) error {
		t.Fatalf("circuit should be open and must not call operation")
		return nil
	}, nil)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open state error, got %v", err)
	}
}

func TestExecuteReportsRetriesAndStateChanges(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:        2,
		RetryInitialBackoff:     1 * time.Millisecond,
		RetryMaxBackoff:         1 * time.Millisecond,
		RetryMultiplier:         2,
		BreakerEnabled:          true,
		BreakerMinRequests:      1,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      time.Minute,
		BreakerHalfOpenMaxCalls: 1,
	})

	retries := 0
	var transitions []string
	exec.Observe(func(op, from, to string) {
		transitions = append(transitions, op+":"+from+"->"+to)
	}, func(string, int) {
		retries++
	})

	errTemp := errors.New("temporary")
	classifier := TransientClassifier(func(err error) bool { return errors.Is(err, errTemp) })
	err := exec.Execute(context.Background(), "relay", func(context.Context) error {
		return errTemp
	}, classifier)
	if !errors.Is(err, errTemp) {
		t.Fatalf("expected temporary error, got %v", err)
	}
	if retries != 1 {
		t.Fatalf("expected 1 retry, got %d", retries)
	}
	if len(transitions) != 1 || transitions[0] != "relay:closed->open" {
		t.Fatalf("unexpected transitions %v", transitions)
	}
	if exec.State("relay") != "open" {
		t.Fatalf("expected open breaker, got %s", exec.State("relay"))
	}
	if exec.State("unused") != "closed" {
		t.Fatalf("expected closed for unused operation, got %s", exec.State("unused"))
	}
}
