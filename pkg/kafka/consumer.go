package kafka

import (
	"context"
	"errors"
	"sync"
	"time"

	kafka_config "letsplay/pkg/kafka/config"
	"letsplay/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// Consumer reads one topic as a member of a consumer group and hands each
// message to a MessageHandler. Messages are processed one at a time per
// consumer, so per-key order follows partition order.
type Consumer struct {
	reader       *kafka.Reader
	dead         *kafka.Writer
	topic        string
	groupID      string
	maxRetries   int
	retryBackoff time.Duration
	handler      MessageHandler
	log          *logger.Logger
	mu           sync.RWMutex
	middleware   []ConsumerMiddleware
	closed       bool
	running      sync.WaitGroup
}

type ConsumerMiddleware func(ctx context.Context, msg Message, next MessageHandler) error

func NewConsumer(cfg *kafka_config.Config, topic, groupID, dlqTopic string, handler MessageHandler, log *logger.Logger) (*Consumer, error) {
	switch {
	case cfg == nil:
		return nil, errors.New("kafka config is required")
	case len(cfg.Brokers) == 0:
		return nil, errors.New("at least one broker is required")
	case topic == "":
		return nil, errors.New("consumer topic is required")
	case groupID == "":
		return nil, errors.New("consumer group is required")
	case handler == nil:
		return nil, errors.New("message handler is required")
	}

	c := &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:           cfg.Brokers,
			Topic:             topic,
			GroupID:           groupID,
			MinBytes:          cfg.ConsumerMinBytes,
			MaxBytes:          cfg.ConsumerMaxBytes,
			MaxWait:           cfg.ConsumerMaxWait,
			CommitInterval:    cfg.ConsumerCommitInterval,
			HeartbeatInterval: cfg.ConsumerHeartbeatInterval,
			SessionTimeout:    cfg.ConsumerSessionTimeout,
			RebalanceTimeout:  cfg.ConsumerRebalanceTimeout,
			StartOffset:       cfg.ConsumerStartOffset,
			ErrorLogger:       errorLogger(log),
		}),
		topic:        topic,
		groupID:      groupID,
		maxRetries:   cfg.ConsumerMaxRetries,
		retryBackoff: cfg.ConsumerRetryBackoff,
		handler:      handler,
		log:          log.With("topic", topic, "group_id", groupID),
	}
	if dlqTopic != "" {
		c.dead = newWriter(cfg.Brokers, dlqTopic, cfg.ProducerCompression, log)
	}
	return c, nil
}

func (c *Consumer) Use(middleware ConsumerMiddleware) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.middleware = append(c.middleware, middleware)
}

// Start consumes until ctx is cancelled. An offset is committed once its
// message was handled, acknowledged as a business outcome, or given up on.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.RLock()
	closed := c.closed
	if !closed {
		c.running.Add(1)
	}
	c.mu.RUnlock()
	if closed {
		return ErrConsumerClosed
	}
	defer c.running.Done()

	for {
		km, err := c.reader.FetchMessage(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			c.log.Error("Failed to fetch message", "error", err)
			if !sleepCtx(ctx, time.Second) {
				return ctx.Err()
			}
			continue
		}

		msg := fromKafkaMessage(km)
		if err := c.processMessage(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Error("Message processing failed", "key", msg.Key, "offset", msg.Offset, "error", err)
		}
		if err := c.reader.CommitMessages(ctx, km); err != nil {
			c.log.Error("Failed to commit offset", "offset", km.Offset, "error", err)
		}
	}
}

// processMessage retries transient failures in place with linear backoff.
// Once the budget is spent, or on a permanent failure, the message goes to
// the dead letter topic and the error is returned. Business errors are
// swallowed.
func (c *Consumer) processMessage(ctx context.Context, msg Message) error {
	c.mu.RLock()
	handle := wrap(c.handler, c.middleware)
	c.mu.RUnlock()

	err := handle(ctx, msg)
	for ShouldRetry(err, msg.Attempts(), c.maxRetries) {
		msg.markAttempt()
		n := msg.Attempts()
		c.log.Warn("Retrying message", "key", msg.Key, "attempt", n, "max_retries", c.maxRetries, "error", err)
		if !sleepCtx(ctx, c.retryBackoff*time.Duration(n)) {
			return ctx.Err()
		}
		err = handle(ctx, msg)
	}

	switch {
	case err == nil, ClassifyError(err) == ErrorTypeBusiness:
		return nil
	case c.dead == nil:
		return err
	}

	parked := msg.deadLetter(c.topic, c.groupID, err)
	if dlqErr := c.dead.WriteMessages(ctx, toKafkaMessage(parked)); dlqErr != nil {
		c.log.Error("Failed to send message to DLQ", "key", msg.Key, "error", dlqErr, "original_error", err)
	} else {
		c.log.Warn("Message sent to DLQ", "key", msg.Key, "retries", msg.Attempts(), "error", err)
	}
	return err
}

func fromKafkaMessage(km kafka.Message) Message {
	headers := make(map[string]string, len(km.Headers))
	for _, h := range km.Headers {
		headers[h.Key] = string(h.Value)
	}
	return Message{
		Key:       string(km.Key),
		Value:     km.Value,
		Headers:   headers,
		Topic:     km.Topic,
		Partition: km.Partition,
		Offset:    km.Offset,
		Timestamp: km.Time,
	}
}

// Close waits for Start to return, so cancel its context first.
func (c *Consumer) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.running.Wait()

	errs := []error{c.reader.Close()}
	if c.dead != nil {
		errs = append(errs, c.dead.Close())
	}
	return errors.Join(errs...)
}

func (c *Consumer) Stats() kafka.ReaderStats {
	return c.reader.Stats()
}

// sleepCtx reports false if ctx ended before d elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
