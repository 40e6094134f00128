package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	kafka_config "letsplay/pkg/kafka/config"
	"letsplay/pkg/logger"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"
)

// Producer publishes keyed messages to one topic. Messages the broker refuses
// are parked on the dead letter topic when one is configured.
type Producer struct {
	writer     *kafka.Writer
	dead       *kafka.Writer
	topic      string
	log        *logger.Logger
	mu         sync.RWMutex
	middleware []ProducerMiddleware
	closed     bool
}

type ProducerMiddleware func(ctx context.Context, msg Message, next MessageHandler) error

func NewProducer(cfg *kafka_config.Config, topic, dlqTopic string, log *logger.Logger) (*Producer, error) {
	switch {
	case cfg == nil:
		return nil, errors.New("kafka config is required")
	case len(cfg.Brokers) == 0:
		return nil, errors.New("at least one broker is required")
	case topic == "":
		return nil, errors.New("producer topic is required")
	}

	w := newWriter(cfg.Brokers, topic, cfg.ProducerCompression, log)
	w.RequiredAcks = requiredAcks(cfg.ProducerRequireAcks)
	w.MaxAttempts = cfg.ProducerMaxAttempts
	w.BatchTimeout = cfg.ProducerBatchTimeout
	w.Async = cfg.ProducerAsync

	p := &Producer{writer: w, topic: topic, log: log}
	if dlqTopic != "" {
		p.dead = newWriter(cfg.Brokers, dlqTopic, cfg.ProducerCompression, log)
	}
	return p, nil
}

func (p *Producer) Use(middleware ProducerMiddleware) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.middleware = append(p.middleware, middleware)
}

func (p *Producer) Publish(ctx context.Context, msg Message) error {
	p.mu.RLock()
	closed, chain := p.closed, p.middleware
	p.mu.RUnlock()

	switch {
	case closed:
		return ErrProducerClosed
	case msg.Key == "":
		return ErrEmptyKey
	case len(msg.Value) == 0:
		return ErrEmptyValue
	}
	msg.Topic = p.topic

	return wrap(p.write, chain)(ctx, msg)
}

func (p *Producer) write(ctx context.Context, msg Message) error {
	err := p.writer.WriteMessages(ctx, toKafkaMessage(msg))
	if err == nil || p.dead == nil {
		return err
	}
	parked := msg.deadLetter(p.topic, "", err)
	if deadErr := p.dead.WriteMessages(ctx, toKafkaMessage(parked)); deadErr != nil {
		return fmt.Errorf("publish to %s failed (%w) and dead letter write failed: %v", p.topic, err, deadErr)
	}
	p.log.WarnContext(ctx, "Message parked on dead letter topic",
		"topic", p.topic,
		"key", msg.Key,
		"error", err,
	)
	return err
}

func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	errs := []error{p.writer.Close()}
	if p.dead != nil {
		errs = append(errs, p.dead.Close())
	}
	return errors.Join(errs...)
}

func (p *Producer) Stats() kafka.WriterStats {
	return p.writer.Stats()
}

// wrap applies middleware so that chain[0] runs first.
func wrap[M ~func(context.Context, Message, MessageHandler) error](h MessageHandler, chain []M) MessageHandler {
	for i := len(chain) - 1; i >= 0; i-- {
		mw, next := chain[i], h
		h = func(ctx context.Context, m Message) error {
			return mw(ctx, m, next)
		}
	}
	return h
}

func requiredAcks(n int) kafka.RequiredAcks {
	switch n {
	case 0:
		return kafka.RequireNone
	case 1:
		return kafka.RequireOne
	default:
		return kafka.RequireAll
	}
}

var codecs = map[string]compress.Compression{
	"none":   compress.None,
	"gzip":   compress.Gzip,
	"lz4":    compress.Lz4,
	"zstd":   compress.Zstd,
	"snappy": compress.Snappy,
}

func compressionCodec(name string) compress.Compression {
	if c, ok := codecs[name]; ok {
		return c
	}
	return compress.Snappy
}

// newWriter hashes on the key so every task for a booking lands on the same
// partition.
func newWriter(brokers []string, topic, compression string, log *logger.Logger) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Compression:  compressionCodec(compression),
		MaxAttempts:  3,
		Logger:       kafka.LoggerFunc(func(string, ...any) {}),
		ErrorLogger:  errorLogger(log),
	}
}

func toKafkaMessage(msg Message) kafka.Message {
	at := msg.Timestamp
	if at.IsZero() {
		at = time.Now()
	}
	km := kafka.Message{
		Key:     []byte(msg.Key),
		Value:   msg.Value,
		Time:    at,
		Headers: make([]kafka.Header, 0, len(msg.Headers)),
	}
	for k, v := range msg.Headers {
		km.Headers = append(km.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return km
}

func errorLogger(log *logger.Logger) kafka.Logger {
	return kafka.LoggerFunc(func(msg string, args ...any) {
		log.Error(fmt.Sprintf(msg, args...), "component", "kafka")
	})
}
