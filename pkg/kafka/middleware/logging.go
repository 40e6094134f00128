package kafka_middleware

import (
	"context"
	"time"

	"letsplay/pkg/kafka"
	"letsplay/pkg/logger"
)

func messageAttrs(msg kafka.Message, took time.Duration) []any {
	return []any{
		"topic", msg.Topic,
		"key", msg.Key,
		"event_id", msg.EventID(),
		"event_type", msg.EventType(),
		"correlation_id", msg.CorrelationID(),
		"duration", took,
	}
}

func LoggingProducerMiddleware(log *logger.Logger) kafka.ProducerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next kafka.MessageHandler) error {
		start := time.Now()
		err := next(ctx, msg)
		attrs := messageAttrs(msg, time.Since(start))
		if err != nil {
			log.ErrorContext(ctx, "Publish failed", append(attrs, "error", err)...)
			return err
		}
		log.DebugContext(ctx, "Published", attrs...)
		return nil
	}
}

func LoggingConsumerMiddleware(log *logger.Logger) kafka.ConsumerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next kafka.MessageHandler) error {
		start := time.Now()
		err := next(ctx, msg)
		attrs := append(messageAttrs(msg, time.Since(start)),
			"partition", msg.Partition,
			"offset", msg.Offset,
			"attempts", msg.Attempts(),
		)
		if err != nil {
			log.WarnContext(ctx, "Handler failed", append(attrs, "error", err)...)
			return err
		}
		log.DebugContext(ctx, "Handled", attrs...)
		return nil
	}
}
