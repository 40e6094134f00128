package core

import (
	"context"
	"errors"
	"fmt"
	"letsplay/pkg/logger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "letsplay/saga"

// Progress receives step outcomes as the engine runs. StepCompleted must
// durably record that the step at index is done before it returns; the engine
// does not start the next step until it has.
type Progress interface {
	StepStarted(ctx context.Context, index int, step string)
	AttemptFailed(ctx context.Context, index int, step string, attempt int, err error, willRetry bool)
	StepCompleted(ctx context.Context, index int, step string, attempt int) error
}

type Engine struct {
	steps  []*Step
	policy RetryPolicy
	log    *logger.Logger
	tracer trace.Tracer
}

func NewEngine(policy RetryPolicy, log *logger.Logger, steps ...*Step) *Engine {
	return &Engine{
		steps:  steps,
		policy: policy.normalized(),
		log:    log,
		tracer: otel.Tracer(tracerName),
	}
}

func (e *Engine) Steps() []*Step {
	return e.steps
}

func (e *Engine) Policy() RetryPolicy {
	return e.policy
}

// Run executes the steps from index from onwards, in order.
//
// It returns nil when every step succeeded, an *UnrecoverableSagaError when a
// step failed permanently or exhausted its attempts, ctx.Err() when the
// caller's context ended, and any other error when progress could not be
// recorded. Only the UnrecoverableSagaError case should be compensated.
func (e *Engine) Run(ctx context.Context, rc RunContext, from int, progress Progress) error {
	if from < 0 || from > len(e.steps) {
		return fmt.Errorf("invalid resume index %d for %d steps", from, len(e.steps))
	}
	for i := from; i < len(e.steps); i++ {
		if err := e.runStep(ctx, rc, i, e.steps[i], progress); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) runStep(ctx context.Context, rc RunContext, index int, step *Step, progress Progress) error {
	progress.StepStarted(ctx, index, step.Name)

	for attempt := 1; ; attempt++ {
		err := e.attempt(ctx, rc, step, attempt)
		if err == nil {
			if recErr := progress.StepCompleted(ctx, index, step.Name, attempt); recErr != nil {
				return fmt.Errorf("record %s completion: %w", step.Name, recErr)
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		willRetry := IsTransient(err) && attempt < e.policy.MaxAttempts
		progress.AttemptFailed(ctx, index, step.Name, attempt, err, willRetry)
		if !willRetry {
			return &UnrecoverableSagaError{Step: step.Name, Attempts: attempt, Err: err}
		}

		backoff := e.policy.Backoff(attempt)
		e.log.WarnContext(ctx, "Saga step attempt failed, retrying",
			"booking_id", rc.BookingID,
			"run_id", rc.RunID,
			"step", step.Name,
			"attempt", attempt,
			"max_attempts", e.policy.MaxAttempts,
			"backoff", backoff,
			"error", err,
		)
		if err := sleep(ctx, backoff); err != nil {
			return err
		}
	}
}

// attempt runs one bounded invocation of step. A timeout or panic is
// reported as a TransientActivityError.
func (e *Engine) attempt(ctx context.Context, rc RunContext, step *Step, attempt int) (err error) {
	ctx, span := e.tracer.Start(ctx, "saga."+step.Name, trace.WithAttributes(
		attribute.String("booking.id", rc.BookingID),
		attribute.String("saga.run_id", rc.RunID),
		attribute.Int("saga.attempt", attempt),
	))
	defer span.End()

	attemptCtx, cancel := context.WithTimeout(ctx, e.policy.StepTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = &TransientActivityError{Step: step.Name, Attempt: attempt, Err: fmt.Errorf("activity panicked: %v", r)}
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	err = step.Execute(attemptCtx, rc)
	if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return &TransientActivityError{Step: step.Name, Attempt: attempt, Err: fmt.Errorf("%w after %s: %v", ErrStepTimeout, e.policy.StepTimeout, err)}
	}
	return err
}
