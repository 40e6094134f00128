package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrProducerClosed = errors.New("kafka producer is closed")
	ErrConsumerClosed = errors.New("kafka consumer is closed")
	ErrEmptyKey       = errors.New("message key cannot be empty")
	ErrEmptyValue     = errors.New("message value cannot be empty")
)

// ErrorType decides what the consumer does with a failed message: retry it in
// place, park it on the dead letter topic, or commit it as handled.
type ErrorType int

const (
	ErrorTypeUnknown ErrorType = iota
	ErrorTypeTransient
	ErrorTypePermanent
	ErrorTypeBusiness
)

var errorTypeNames = [...]string{"unknown", "transient", "permanent", "business"}

func (t ErrorType) String() string {
	if t < 0 || int(t) >= len(errorTypeNames) {
		return errorTypeNames[0]
	}
	return errorTypeNames[t]
}

// HandlerError tags a handler failure with its ErrorType.
type HandlerError struct {
	Type ErrorType
	Op   string
	Err  error
}

func (e *HandlerError) Error() string {
	if e.Err == nil {
		return e.Op
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

func NewTransientError(op string, err error) *HandlerError {
	return &HandlerError{Type: ErrorTypeTransient, Op: op, Err: err}
}

func NewPermanentError(op string, err error) *HandlerError {
	return &HandlerError{Type: ErrorTypePermanent, Op: op, Err: err}
}

// NewBusinessError marks an expected domain outcome. The message is committed.
func NewBusinessError(op string, err error) *HandlerError {
	return &HandlerError{Type: ErrorTypeBusiness, Op: op, Err: err}
}

// Untagged errors are matched on their text. Order matters: the first hit wins.
var errorPatterns = []struct {
	substr string
	typ    ErrorType
}{
	{"connection refused", ErrorTypeTransient},
	{"connection reset", ErrorTypeTransient},
	{"broken pipe", ErrorTypeTransient},
	{"no such host", ErrorTypeTransient},
	{"network is unreachable", ErrorTypeTransient},
	{"timeout", ErrorTypeTransient},
	{"deadline exceeded", ErrorTypeTransient},
	{"temporary failure", ErrorTypeTransient},
	{"server selection error", ErrorTypeTransient},
	{"not primary", ErrorTypeTransient},
	{"leader not available", ErrorTypeTransient},
	{"invalid message", ErrorTypePermanent},
	{"schema mismatch", ErrorTypePermanent},
	{"unknown topic", ErrorTypePermanent},
}

// ClassifyError resolves the ErrorType of err. Anything unrecognised is
// permanent.
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ErrorTypeUnknown
	}

	var he *HandlerError
	if errors.As(err, &he) {
		return he.Type
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeTransient
	}

	msg := strings.ToLower(err.Error())
	for _, p := range errorPatterns {
		if strings.Contains(msg, p.substr) {
			return p.typ
		}
	}
	return ErrorTypePermanent
}

func ShouldRetry(err error, attempts, maxRetries int) bool {
	return err != nil && attempts < maxRetries && ClassifyError(err) == ErrorTypeTransient
}
