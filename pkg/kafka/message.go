package kafka

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Message is the transport-neutral view of a record. Topic, Partition and
// Offset are only populated on the consume side.
type Message struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
}

const (
	HeaderEventID       = "event-id"
	HeaderEventType     = "event-type"
	HeaderCorrelationID = "correlation-id"
	HeaderSchemaVersion = "schema-version"
	HeaderSource        = "source"
	HeaderProducedAt    = "produced-at"
	HeaderAttempts      = "attempts"

	HeaderDeadTopic  = "dead-topic"
	HeaderDeadReason = "dead-reason"
	HeaderDeadAt     = "dead-at"
	HeaderDeadGroup  = "dead-group"
)

// Envelope is the routing metadata stamped on every published message.
type Envelope struct {
	EventType     string
	CorrelationID string
	SchemaVersion string
	Source        string
}

func (e Envelope) headers(now time.Time) map[string]string {
	h := map[string]string{
		HeaderEventID:    uuid.NewString(),
		HeaderProducedAt: now.UTC().Format(time.RFC3339Nano),
	}
	set := func(k, v string) {
		if v != "" {
			h[k] = v
		}
	}
	set(HeaderEventType, e.EventType)
	set(HeaderCorrelationID, e.CorrelationID)
	set(HeaderSchemaVersion, e.SchemaVersion)
	set(HeaderSource, e.Source)
	return h
}

// Encode JSON-encodes value under key. Encoding failures are permanent.
func Encode(key string, value any, env Envelope) (Message, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return Message{}, NewPermanentError("encode message value", err)
	}
	return Raw(key, data, env), nil
}

// Raw wraps an already encoded payload.
func Raw(key string, value []byte, env Envelope) Message {
	now := time.Now()
	return Message{
		Key:       key,
		Value:     value,
		Headers:   env.headers(now),
		Timestamp: now,
	}
}

// MessageHandler processes one message. A nil return commits it.
type MessageHandler func(ctx context.Context, msg Message) error

func (m Message) Decode(v any) error {
	return json.Unmarshal(m.Value, v)
}

func (m Message) EventID() string       { return m.Headers[HeaderEventID] }
func (m Message) EventType() string     { return m.Headers[HeaderEventType] }
func (m Message) CorrelationID() string { return m.Headers[HeaderCorrelationID] }

// Attempts is how many times delivery has been retried in place.
func (m Message) Attempts() int {
	n, err := strconv.Atoi(m.Headers[HeaderAttempts])
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func (m *Message) markAttempt() {
	if m.Headers == nil {
		m.Headers = make(map[string]string, 1)
	}
	m.Headers[HeaderAttempts] = strconv.Itoa(m.Attempts() + 1)
}

// deadLetter returns a copy annotated with why it was parked. The receiver's
// header map is not mutated.
func (m Message) deadLetter(topic, group string, reason error) Message {
	h := make(map[string]string, len(m.Headers)+4)
	for k, v := range m.Headers {
		h[k] = v
	}
	h[HeaderDeadTopic] = topic
	h[HeaderDeadReason] = reason.Error()
	h[HeaderDeadAt] = time.Now().UTC().Format(time.RFC3339)
	if group != "" {
		h[HeaderDeadGroup] = group
	}
	m.Headers = h
	return m
}
