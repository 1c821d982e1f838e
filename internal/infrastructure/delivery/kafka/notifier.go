package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/kirillkom/property-desk/internal/core/domain"
	"github.com/kirillkom/property-desk/internal/infrastructure/resilience"
)

const publishOperation = "kafka.delivery"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Notifier publishes signed-document events keyed by document id, so every
// event for one document lands on the same partition.
type Notifier struct {
	writer   messageWriter
	executor *resilience.Executor
	now      func() time.Time
}

type Options struct {
	BatchTimeout       time.Duration
	WriteTimeout       time.Duration
	ResilienceExecutor *resilience.Executor
}

func New(brokers []string, topic string, options Options) (*Notifier, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka: topic is required")
	}
	batchTimeout := options.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 50 * time.Millisecond
	}
	writeTimeout := options.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           batchTimeout,
		WriteTimeout:           writeTimeout,
		AllowAutoTopicCreation: true,
	}
	return newNotifier(writer, options.ResilienceExecutor), nil
}

func newNotifier(writer messageWriter, executor *resilience.Executor) *Notifier {
	return &Notifier{writer: writer, executor: executor, now: time.Now}
}

func (n *Notifier) NotifySigned(ctx context.Context, event domain.SignedDocumentEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return domain.WrapError(domain.ErrDelivery, "encode signed event", err)
	}
	message := kafka.Message{
		Key:   []byte(event.DocumentID),
		Value: body,
		Time:  n.now(),
		Headers: []kafka.Header{
			{Key: "event", Value: []byte("document.signed")},
		},
	}

	call := func(ctx context.Context) error {
		return n.writer.WriteMessages(ctx, message)
	}
	if n.executor != nil {
		err = n.executor.Execute(ctx, publishOperation, call, classifyKafkaError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		err = resilience.WrapTemporary("kafka delivery", err, classifyKafkaError)
		return domain.WrapError(domain.ErrDelivery, "kafka delivery", err)
	}
	return nil
}

func (n *Notifier) Close() error {
	return n.writer.Close()
}

var classifyKafkaError = resilience.TransientClassifier(isTransient)

func isTransient(err error) bool {
	var kafkaErr kafka.Error
	if errors.As(err, &kafkaErr) {
		return kafkaErr.Temporary()
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET)
}
