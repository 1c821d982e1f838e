package nats

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/property-desk/internal/core/domain"
	"github.com/kirillkom/property-desk/internal/infrastructure/resilience"
)

type fakeBroker struct {
	calls        []string
	publishErrs  []error
	flushErrs    []error
	publishes    int
	unsubscribed int
	payload      []byte
}

func (f *fakeBroker) subscribe(subject string) (func() error, error) {
	f.calls = append(f.calls, "sub:"+subject)
	return func() error {
		f.unsubscribed++
		f.calls = append(f.calls, "unsub:"+subject)
		return nil
	}, nil
}

func (f *fakeBroker) publish(subject string, data []byte) error {
	f.calls = append(f.calls, "pub:"+subject)
	f.payload = data
	f.publishes++
	if len(f.publishErrs) > 0 {
		err := f.publishErrs[0]
		f.publishErrs = f.publishErrs[1:]
		return err
	}
	return nil
}

func (f *fakeBroker) flush(context.Context) error {
	f.calls = append(f.calls, "flush")
	if len(f.flushErrs) > 0 {
		err := f.flushErrs[0]
		f.flushErrs = f.flushErrs[1:]
		return err
	}
	return nil
}

func fastExecutor() *resilience.Executor {
	return resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	})
}

func TestRelaySubscribesPublishesAndUnsubscribes(t *testing.T) {
	b := &fakeBroker{}
	var results []string
	r := newRelay(b, nil, func(result string) { results = append(results, result) })

	if err := r.Relay(context.Background(), "chat.property.seller-1", []byte(`{"text":"hi"}`)); err != nil {
		t.Fatalf("Relay() error = %v", err)
	}
	want := []string{"sub:chat.property.seller-1", "pub:chat.property.seller-1", "flush", "unsub:chat.property.seller-1"}
	if len(b.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", b.calls, want)
	}
	for i := range want {
		if b.calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", b.calls, want)
		}
	}
	if string(b.payload) != `{"text":"hi"}` {
		t.Fatalf("unexpected payload %q", b.payload)
	}
	if len(results) != 1 || results[0] != "ok" {
		t.Fatalf("unexpected results %v", results)
	}
}

func TestRelayPublishesOnceWhenFlushTimesOut(t *testing.T) {
	b := &fakeBroker{flushErrs: []error{nats.ErrTimeout}}
	r := newRelay(b, fastExecutor(), nil)

	err := r.Relay(context.Background(), "chat.buyer-seller.u2", []byte("x"))
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
	if b.publishes != 1 || b.unsubscribed != 1 {
		t.Fatalf("expected a single send, got %d publishes, calls %v", b.publishes, b.calls)
	}
}

func TestRelayDoesNotRetryTransientPublishErrors(t *testing.T) {
	b := &fakeBroker{publishErrs: []error{nats.ErrDisconnected}}
	r := newRelay(b, fastExecutor(), nil)

	if err := r.Relay(context.Background(), "chat.buyer-seller.u2", []byte("x")); err == nil {
		t.Fatal("expected the failed send to be reported")
	}
	if b.publishes != 1 {
		t.Fatalf("expected one publish, got %d", b.publishes)
	}
}

func TestRelayMarksTransientErrorsTemporary(t *testing.T) {
	b := &fakeBroker{publishErrs: []error{nats.ErrNoServers}}
	var results []string
	r := newRelay(b, fastExecutor(), func(result string) { results = append(results, result) })

	err := r.Relay(context.Background(), "chat.buyer-seller.u2", []byte("x"))
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
	if len(results) != 1 || results[0] != "error" {
		t.Fatalf("unexpected results %v", results)
	}
}

func TestRelayDoesNotRetryPermanentErrors(t *testing.T) {
	permanent := errors.New("nats: invalid subject")
	b := &fakeBroker{publishErrs: []error{permanent}}
	r := newRelay(b, fastExecutor(), nil)

	err := r.Relay(context.Background(), "bad subject", []byte("x"))
	if !errors.Is(err, permanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("permanent error must not be temporary: %v", err)
	}
	if b.unsubscribed != 1 {
		t.Fatalf("expected one attempt, got %d", b.unsubscribed)
	}
}
