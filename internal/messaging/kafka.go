package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/temcen/drillsense/internal/config"
)

// TrackingHandler applies one raw tracking envelope to the engine.
type TrackingHandler interface {
	Ingest(ctx context.Context, raw []byte) error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Stats() kafka.ReaderStats
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// TrackingConsumer reads session-tracking events from Kafka and hands them to
// the ingest handler. Messages that keep failing, or that the handler marks
// permanent, are parked on the dead letter topic and committed.
type TrackingConsumer struct {
	reader      messageReader
	dlqWriter   messageWriter
	handler     TrackingHandler
	isPermanent func(error) bool
	topic       string
	maxRetries  int
	baseDelay   time.Duration
	maxDelay    time.Duration
	logger      *logrus.Logger
}

func NewTrackingConsumer(
	cfg *config.KafkaConfig,
	handler TrackingHandler,
	isPermanent func(error) bool,
	logger *logrus.Logger,
) *TrackingConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topics.TrackingEvents,
		GroupID:        cfg.ConsumerGroup,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		CommitInterval: time.Second,
		StartOffset:    kafka.LastOffset,
	})

	dlqWriter := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topics.TrackingEventsDLQ,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}

	return newTrackingConsumer(reader, dlqWriter, handler, isPermanent, cfg.Topics.TrackingEvents, cfg.MaxRetries, logger)
}

func newTrackingConsumer(
	reader messageReader,
	dlqWriter messageWriter,
	handler TrackingHandler,
	isPermanent func(error) bool,
	topic string,
	maxRetries int,
	logger *logrus.Logger,
) *TrackingConsumer {
	if isPermanent == nil {
		isPermanent = func(error) bool { return false }
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &TrackingConsumer{
		reader:      reader,
		dlqWriter:   dlqWriter,
		handler:     handler,
		isPermanent: isPermanent,
		topic:       topic,
		maxRetries:  maxRetries,
		baseDelay:   time.Second,
		maxDelay:    30 * time.Second,
		logger:      logger,
	}
}

// Run consumes until ctx is cancelled. Consecutive fetch errors back off
// exponentially up to maxDelay.
func (c *TrackingConsumer) Run(ctx context.Context) error {
	var delay time.Duration
	for {
		message, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			delay = c.nextFetchDelay(delay)
			c.logger.WithError(err).WithField("retry_in", delay).Error("Failed to read message from Kafka")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			continue
		}
		delay = 0

		c.handleMessage(ctx, message)

		if err := c.reader.CommitMessages(ctx, message); err != nil && ctx.Err() == nil {
			c.logger.WithError(err).WithField("offset", message.Offset).Error("Failed to commit Kafka message")
		}
	}
}

func (c *TrackingConsumer) nextFetchDelay(previous time.Duration) time.Duration {
	if previous <= 0 {
		return c.baseDelay
	}
	next := previous * 2
	if next > c.maxDelay {
		return c.maxDelay
	}
	return next
}

func (c *TrackingConsumer) handleMessage(ctx context.Context, message kafka.Message) {
	err := c.processWithRetry(ctx, message)
	if err == nil || ctx.Err() != nil {
		return
	}

	c.logger.WithError(err).WithFields(logrus.Fields{
		"partition": message.Partition,
		"offset":    message.Offset,
	}).Error("Failed to process tracking event")

	if dlqErr := c.sendToDLQ(ctx, message, err); dlqErr != nil {
		c.logger.WithError(dlqErr).Error("Failed to send message to DLQ")
	}
}

func (c *TrackingConsumer) processWithRetry(ctx context.Context, message kafka.Message) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff
			delay := c.baseDelay * time.Duration(1<<uint(attempt-1))
			c.logger.WithFields(logrus.Fields{
				"offset":  message.Offset,
				"attempt": attempt,
				"delay":   delay,
			}).Info("Retrying tracking event")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		lastErr = c.handler.Ingest(ctx, message.Value)
		if lastErr == nil {
			return nil
		}
		if c.isPermanent(lastErr) {
			return lastErr
		}

		c.logger.WithError(lastErr).WithFields(logrus.Fields{
			"offset":  message.Offset,
			"attempt": attempt,
		}).Warn("Tracking event processing failed")
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *TrackingConsumer) sendToDLQ(ctx context.Context, message kafka.Message, originalError error) error {
	dlqMessage := map[string]interface{}{
		"original_message": json.RawMessage(message.Value),
		"error":            originalError.Error(),
		"dlq_timestamp":    time.Now(),
	}
	if !json.Valid(message.Value) {
		dlqMessage["original_message"] = string(message.Value)
	}

	dlqBytes, err := json.Marshal(dlqMessage)
	if err != nil {
		return fmt.Errorf("failed to marshal DLQ message: %w", err)
	}

	kafkaMessage := kafka.Message{
		Key:   message.Key,
		Value: dlqBytes,
		Headers: []kafka.Header{
			{Key: "original_topic", Value: []byte(c.topic)},
			{Key: "original_offset", Value: []byte(fmt.Sprint(message.Offset))},
			{Key: "error", Value: []byte(originalError.Error())},
		},
	}

	if err := c.dlqWriter.WriteMessages(ctx, kafkaMessage); err != nil {
		return fmt.Errorf("failed to write message to DLQ: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"offset": message.Offset,
		"error":  originalError.Error(),
	}).Warn("Message sent to DLQ")

	return nil
}

func (c *TrackingConsumer) Close() error {
	var errs []error

	if err := c.reader.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close consumer: %w", err))
	}

	if err := c.dlqWriter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close DLQ writer: %w", err))
	}

	return errors.Join(errs...)
}

// GetMetrics returns reader statistics for the health report.
func (c *TrackingConsumer) GetMetrics() map[string]interface{} {
	stats := c.reader.Stats()
	return map[string]interface{}{
		"consumer_lag":    stats.Lag,
		"consumer_offset": stats.Offset,
		"messages_read":   stats.Messages,
		"bytes_read":      stats.Bytes,
		"rebalances":      stats.Rebalances,
		"timeouts":        stats.Timeouts,
		"errors":          stats.Errors,
	}
}
