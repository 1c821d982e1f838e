package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/property-desk/internal/infrastructure/resilience"
)

const publishOperation = "nats.relay"

// broker is the slice of *nats.Conn the relay needs.
type broker interface {
	subscribe(subject string) (unsubscribe func() error, err error)
	publish(subject string, data []byte) error
	flush(ctx context.Context) error
}

// Relay forwards chat payloads over one long-lived NATS connection. Each
// call opens a short subscription on the topic, publishes and unsubscribes,
// so a topic with no live listener is still a valid target. Delivery is at
// most once: a failed send is reported and never repeated.
type Relay struct {
	conn     *nats.Conn
	broker   broker
	executor *resilience.Executor
	observe  func(result string)
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	// OnResult receives "ok" or "error" for every relay attempt.
	OnResult func(result string)
}

func New(url string) (*Relay, error) {
	return NewWithOptions(url, Options{})
}

func NewWithOptions(url string, options Options) (*Relay, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}

	conn, err := nats.Connect(
		url,
		nats.Name("property-desk"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	relay := newRelay(natsBroker{conn: conn}, options.ResilienceExecutor, options.OnResult)
	relay.conn = conn
	return relay, nil
}

func newRelay(b broker, executor *resilience.Executor, observe func(string)) *Relay {
	return &Relay{broker: b, executor: executor, observe: observe}
}

func (r *Relay) Close() {
	if r.conn != nil {
		r.conn.Close()
	}
}

func (r *Relay) Relay(ctx context.Context, topic string, payload []byte) error {
	call := func(ctx context.Context) error {
		unsubscribe, err := r.broker.subscribe(topic)
		if err != nil {
			return fmt.Errorf("nats subscribe: %w", err)
		}
		defer func() {
			if err := unsubscribe(); err != nil {
				slog.Warn("nats_unsubscribe_failed", "topic", topic, "error", err)
			}
		}()
		if err := r.broker.publish(topic, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		if err := r.broker.flush(ctx); err != nil {
			return fmt.Errorf("nats flush: %w", err)
		}
		return nil
	}

	var err error
	if r.executor != nil {
		err = r.executor.ExecuteOnce(ctx, publishOperation, call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	r.report(err)
	if err != nil {
		return resilience.WrapTemporary("nats relay", err, classifyNATSError)
	}
	return nil
}

func (r *Relay) report(err error) {
	if r.observe == nil {
		return
	}
	if err != nil {
		r.observe("error")
		return
	}
	r.observe("ok")
}

var classifyNATSError = resilience.TransientClassifier(func(err error) bool {
	return errors.Is(err, nats.ErrNoServers) ||
		errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrConnectionClosed) ||
		errors.Is(err, nats.ErrDisconnected) ||
		errors.Is(err, nats.ErrConnectionReconnecting)
})

type natsBroker struct {
	conn *nats.Conn
}

func (b natsBroker) subscribe(subject string) (func() error, error) {
	sub, err := b.conn.SubscribeSync(subject)
	if err != nil {
		return nil, err
	}
	return sub.Unsubscribe, nil
}

func (b natsBroker) publish(subject string, data []byte) error {
	return b.conn.Publish(subject, data)
}

func (b natsBroker) flush(ctx context.Context) error {
	return b.conn.FlushWithContext(ctx)
}
