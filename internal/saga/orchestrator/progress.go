package orchestrator

import (
	"context"
	"letsplay/pkg/model"
)

// runProgress writes engine progress into the saga run log.
type runProgress struct {
	o         *Orchestrator
	runID     string
	bookingID string
}

func (p *runProgress) StepStarted(ctx context.Context, index int, step string) {
	if err := p.o.runs.RecordStepStarted(ctx, p.runID, step); err != nil {
		p.o.log.WarnContext(ctx, "Failed to record step start", "run_id", p.runID, "step", step, "error", err)
	}
	if err := p.o.locker.Extend(ctx, p.runID, p.o.owner, p.o.leaseTTL); err != nil {
		p.o.log.WarnContext(ctx, "Failed to extend saga lease", "run_id", p.runID, "step", step, "error", err)
	}
}

func (p *runProgress) AttemptFailed(ctx context.Context, index int, step string, attempt int, err error, willRetry bool) {
	outcome := model.SagaOutcomeFailed
	if willRetry {
		outcome = model.SagaOutcomeRetrying
	}
	event := model.SagaEvent{
		Step:    step,
		Attempt: attempt,
		Outcome: outcome,
		Error:   err.Error(),
		At:      p.o.now().UTC(),
	}
	if recErr := p.o.runs.RecordAttempt(ctx, p.runID, event); recErr != nil {
		p.o.log.WarnContext(ctx, "Failed to record step attempt", "run_id", p.runID, "step", step, "attempt", attempt, "error", recErr)
	}
}

func (p *runProgress) StepCompleted(ctx context.Context, index int, step string, attempt int) error {
	event := model.SagaEvent{
		Step:    step,
		Attempt: attempt,
		Outcome: model.SagaOutcomeSucceeded,
		At:      p.o.now().UTC(),
	}
	if err := p.o.runs.RecordStepCompleted(ctx, p.runID, index, event); err != nil {
		return err
	}
	p.o.log.InfoContext(ctx, "Saga step completed",
		"booking_id", p.bookingID,
		"run_id", p.runID,
		"step", step,
		"attempt", attempt,
	)
	return nil
}
