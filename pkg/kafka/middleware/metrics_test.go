package kafka_middleware

import (
	"context"
	"errors"
	"testing"

	"letsplay/pkg/kafka"
)

func TestMetrics_ConsumerMiddleware(t *testing.T) {
	m := NewMetrics()
	mw := m.ConsumerMiddleware()
	msg := kafka.Raw("b1", []byte(`{}`), kafka.Envelope{})

	ok := func(ctx context.Context, msg kafka.Message) error { return nil }
	fail := func(ctx context.Context, msg kafka.Message) error { return errors.New("boom") }

	_ = mw(context.Background(), msg, ok)
	_ = mw(context.Background(), msg, ok)
	_ = mw(context.Background(), msg, fail)

	snap := m.Snapshot()
	if snap.MessagesConsumed != 2 {
		t.Errorf("MessagesConsumed = %d, want 2", snap.MessagesConsumed)
	}
	if snap.MessagesConsumedFailed != 1 {
		t.Errorf("MessagesConsumedFailed = %d, want 1", snap.MessagesConsumedFailed)
	}
	if snap.MessagesPublished != 0 {
		t.Errorf("MessagesPublished = %d, want 0", snap.MessagesPublished)
	}
}
