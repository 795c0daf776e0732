package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/KingHarry001/portfolio/pkg/logger"
)

// maxHandlerRetries is how many times a handler runs for one message before
// the message is dead-lettered and committed.
const maxHandlerRetries = 3

// Handler processes one decoded event.
type Handler func(ctx context.Context, event *Event) error

// messageReader is the part of *kafka.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ConsumerConfig holds Kafka consumer configuration.
type ConsumerConfig struct {
	Brokers  []string
	GroupID  string
	Topic    string
	MinBytes int
	MaxBytes int
}

// Consumer reads one topic as part of a consumer group. Offsets are
// committed only after a message was handled, dead-lettered, or found
// undecodable, so a crash mid-handler leads to redelivery.
type Consumer struct {
	reader  messageReader
	topic   string
	group   string
	handler Handler
	dlq     DeadLetterPublisher
	logger  *slog.Logger
	backoff func(attempt int) time.Duration

	closeOnce sync.Once
}

// ConsumerOption customises a Consumer.
type ConsumerOption func(*Consumer)

// WithDeadLetter routes messages that exhaust their retries to dlq.
func WithDeadLetter(dlq DeadLetterPublisher) ConsumerOption {
	return func(c *Consumer) { c.dlq = dlq }
}

// NewConsumer creates a new Kafka consumer for a specific topic and group.
func NewConsumer(cfg ConsumerConfig, handler Handler, logger *slog.Logger, opts ...ConsumerOption) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
	})
	return newConsumerWithReader(r, cfg.Topic, cfg.GroupID, handler, logger, opts...)
}

func newConsumerWithReader(r messageReader, topic, group string, handler Handler, logger *slog.Logger, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		reader:  r,
		topic:   topic,
		group:   group,
		handler: handler,
		logger:  logger,
		backoff: func(attempt int) time.Duration { return time.Duration(attempt) * 100 * time.Millisecond },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start consumes until ctx is canceled, then closes the reader.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started", slog.String("topic", c.topic), slog.String("group", c.group))
	defer func() {
		c.logger.Info("consumer stopping", slog.String("topic", c.topic))
		_ = c.Close()
	}()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			c.logger.Error("failed to fetch message", slog.String("topic", c.topic), slog.String("error", err.Error()))
			if !sleep(ctx, time.Second) {
				return nil
			}
			continue
		}

		if !c.process(ctx, msg) {
			return nil
		}
	}
}

// process handles one message and commits it. It returns false when ctx was
// canceled before the message could be settled.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) bool {
	consumerMessagesReceived.WithLabelValues(msg.Topic, c.group).Inc()
	start := time.Now()
	defer func() {
		consumerProcessingDuration.WithLabelValues(msg.Topic, c.group).Observe(time.Since(start).Seconds())
	}()

	attrs := []any{
		slog.String("topic", msg.Topic),
		slog.Int("partition", msg.Partition),
		slog.Int64("offset", msg.Offset),
	}

	event, err := UnmarshalEvent(msg.Value)
	if err != nil {
		consumerMessagesFailed.WithLabelValues(msg.Topic, c.group).Inc()
		c.logger.Error("failed to unmarshal event", append(attrs, slog.String("error", err.Error()))...)
		c.deadLetter(ctx, msg, fmt.Errorf("unmarshal event: %w", err))
		c.commit(ctx, msg)
		return true
	}

	hctx := extractTrace(ctx, &msg)
	if event.CorrelationID != "" {
		hctx = logger.WithCorrelationID(hctx, event.CorrelationID)
	}
	hctx, span := otel.Tracer(tracerName).Start(hctx, "consume "+msg.Topic,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination.name", msg.Topic),
			attribute.String("messaging.message.id", event.EventID),
			attribute.String("messaging.kafka.consumer.group", c.group),
		),
	)
	defer span.End()

	attrs = append(attrs,
		slog.String("event_type", event.EventType),
		slog.String("aggregate_id", event.AggregateID),
	)

	var lastErr error
	for attempt := 1; attempt <= maxHandlerRetries; attempt++ {
		if lastErr = c.handler(hctx, event); lastErr == nil {
			break
		}
		c.logger.WarnContext(hctx, "handler failed",
			append(attrs,
				slog.String("error", lastErr.Error()),
				slog.Int("attempt", attempt),
				slog.Int("max_retries", maxHandlerRetries),
			)...,
		)
		if attempt < maxHandlerRetries && !sleep(ctx, c.backoff(attempt)) {
			return false
		}
	}

	if lastErr != nil {
		span.RecordError(lastErr)
		span.SetStatus(codes.Error, lastErr.Error())
		consumerMessagesFailed.WithLabelValues(msg.Topic, c.group).Inc()
		c.logger.ErrorContext(hctx, "handler failed after all retries, dead-lettering message",
			append(attrs, slog.String("error", lastErr.Error()))...,
		)
		c.deadLetter(ctx, msg, lastErr)
	} else {
		consumerMessagesProcessed.WithLabelValues(msg.Topic, c.group).Inc()
	}

	c.commit(ctx, msg)
	return true
}

func (c *Consumer) deadLetter(ctx context.Context, msg kafka.Message, cause error) {
	if c.dlq == nil {
		return
	}
	if err := c.dlq.Publish(ctx, msg, cause, c.group); err != nil {
		c.logger.ErrorContext(ctx, "failed to publish message to DLQ",
			slog.String("topic", msg.Topic),
			slog.Int64("offset", msg.Offset),
			slog.String("error", err.Error()),
		)
	}
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.logger.Error("failed to commit message",
			slog.String("topic", msg.Topic),
			slog.Int64("offset", msg.Offset),
			slog.String("error", err.Error()),
		)
	}
}

// Close closes the consumer. It is safe to call multiple times.
func (c *Consumer) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.reader.Close()
	})
	return err
}

// sleep waits for d or until ctx is done, reporting whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
