// Package kafka publishes booking lifecycle events to a Kafka topic for
// the billing and notification collaborators.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kirinyoku/rehearsal-go/internal/domain"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"
)

const (
	HeaderEventID   = "event-id"
	HeaderEventType = "event-type"
	HeaderSource    = "source"

	source = "rehearsal-go"
)

var ErrProducerClosed = errors.New("producer is closed")

type Config struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
	MaxAttempts  int
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes one message per lifecycle event, keyed by booking id so
// every event of a booking lands on the same partition in order.
type Producer struct {
	writer messageWriter
	topic  string
	closed bool
	mu     sync.RWMutex
}

func NewProducer(cfg Config, log *slog.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic cannot be empty")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 50 * time.Millisecond
	}
	if log == nil {
		log = slog.Default()
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		Compression:            compress.Snappy,
		MaxAttempts:            cfg.MaxAttempts,
		BatchTimeout:           cfg.BatchTimeout,
		AllowAutoTopicCreation: true,
		Logger:                 kafka.LoggerFunc(func(string, ...any) {}),
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...any) {
			log.Error(fmt.Sprintf(msg, args...), slog.String("component", "kafka"))
		}),
	}

	return newProducer(w, cfg.Topic), nil
}

func newProducer(w messageWriter, topic string) *Producer {
	return &Producer{writer: w, topic: topic}
}

func (p *Producer) Topic() string { return p.topic }

// PublishLifecycle writes the events in a single batch.
func (p *Producer) PublishLifecycle(ctx context.Context, events ...domain.LifecycleEvent) error {
	const op = "kafka.Producer.PublishLifecycle"

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return fmt.Errorf("%s: %w", op, ErrProducerClosed)
	}
	if len(events) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(events))
	for _, ev := range events {
		value, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(ev.Booking.ID.String()),
			Value: value,
			Time:  ev.OccurredAt,
			Headers: []kafka.Header{
				{Key: HeaderEventID, Value: []byte(ev.EventID.String())},
				{Key: HeaderEventType, Value: []byte(ev.Type)},
				{Key: HeaderSource, Value: []byte(source)},
			},
		})
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	return p.writer.Close()
}
