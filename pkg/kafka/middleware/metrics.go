package kafka_middleware

import (
	"context"
	"sync/atomic"
	"time"

	"letsplay/pkg/kafka"
)

// Metrics counts publish and consume outcomes. Safe for concurrent use.
type Metrics struct {
	messagesPublished       atomic.Int64
	messagesPublishedFailed atomic.Int64
	publishDurationTotal    atomic.Int64

	messagesConsumed       atomic.Int64
	messagesConsumedFailed atomic.Int64
	consumeDurationTotal   atomic.Int64
}

type MetricsSnapshot struct {
	MessagesPublished       int64  `json:"messages_published"`
	MessagesPublishedFailed int64  `json:"messages_published_failed"`
	AvgPublishDuration      string `json:"avg_publish_duration"`
	MessagesConsumed        int64  `json:"messages_consumed"`
	MessagesConsumedFailed  int64  `json:"messages_consumed_failed"`
	AvgConsumeDuration      string `json:"avg_consume_duration"`
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	published := m.messagesPublished.Load()
	consumed := m.messagesConsumed.Load()
	return MetricsSnapshot{
		MessagesPublished:       published,
		MessagesPublishedFailed: m.messagesPublishedFailed.Load(),
		AvgPublishDuration:      avg(m.publishDurationTotal.Load(), published).String(),
		MessagesConsumed:        consumed,
		MessagesConsumedFailed:  m.messagesConsumedFailed.Load(),
		AvgConsumeDuration:      avg(m.consumeDurationTotal.Load(), consumed).String(),
	}
}

func avg(total, count int64) time.Duration {
	if count == 0 {
		return 0
	}
	return time.Duration(total / count)
}

func (m *Metrics) ProducerMiddleware() kafka.ProducerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next kafka.MessageHandler) error {
		start := time.Now()
		err := next(ctx, msg)

		if err != nil {
			m.messagesPublishedFailed.Add(1)
		} else {
			m.messagesPublished.Add(1)
			m.publishDurationTotal.Add(int64(time.Since(start)))
		}
		return err
	}
}

func (m *Metrics) ConsumerMiddleware() kafka.ConsumerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next kafka.MessageHandler) error {
		start := time.Now()
		err := next(ctx, msg)

		if err != nil {
			m.messagesConsumedFailed.Add(1)
		} else {
			m.messagesConsumed.Add(1)
			m.consumeDurationTotal.Add(int64(time.Since(start)))
		}
		return err
	}
}
