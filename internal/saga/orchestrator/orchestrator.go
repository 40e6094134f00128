package orchestrator

import (
	"context"
	"errors"
	"fmt"
	bookingserrors "letsplay/internal/bookings/errors"
	bookingsrepo "letsplay/internal/bookings/repository"
	notifications "letsplay/internal/notifications/service"
	"letsplay/internal/saga/core"
	sagaerrors "letsplay/internal/saga/errors"
	"letsplay/internal/saga/queue"
	sagarepo "letsplay/internal/saga/repository"
	apperrors "letsplay/pkg/errors"
	"letsplay/pkg/logger"
	"letsplay/pkg/model"
	"os"
	"time"

	"github.com/google/uuid"
)

const (
	runIDPrefix = "booking-"

	recoveryBatchSize = 100
)

// CompensateFunc undoes a failed booking. It is called at most once per run.
type CompensateFunc func(ctx context.Context, bookingID string, reason string) error

type Dependencies struct {
	Bookings   bookingsrepo.BookingRepository
	Runs       sagarepo.SagaRunRepository
	Locker     sagarepo.RunLocker
	Queue      queue.TaskQueue
	Notifier   notifications.Notifier
	Steps      []*core.Step
	Compensate CompensateFunc
	Policy     core.RetryPolicy
	LeaseTTL   time.Duration
	StaleAfter time.Duration
	Log        *logger.Logger
}

// Orchestrator drives booking sagas: Validate, Reserve, Payment, Confirm,
// with MarkBookingFailed as the single compensation.
type Orchestrator struct {
	bookings   bookingsrepo.BookingRepository
	runs       sagarepo.SagaRunRepository
	locker     sagarepo.RunLocker
	queue      queue.TaskQueue
	notifier   notifications.Notifier
	engine     *core.Engine
	compensate CompensateFunc
	leaseTTL   time.Duration
	staleAfter time.Duration
	owner      string
	log        *logger.Logger
	now        func() time.Time
}

func New(deps Dependencies) *Orchestrator {
	return &Orchestrator{
		bookings:   deps.Bookings,
		runs:       deps.Runs,
		locker:     deps.Locker,
		queue:      deps.Queue,
		notifier:   deps.Notifier,
		engine:     core.NewEngine(deps.Policy, deps.Log, deps.Steps...),
		compensate: deps.Compensate,
		leaseTTL:   deps.LeaseTTL,
		staleAfter: deps.StaleAfter,
		owner:      ownerID(),
		log:        deps.Log,
		now:        time.Now,
	}
}

func ownerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return host + "-" + uuid.NewString()
}

// RunID is the deterministic saga run id of a booking.
func RunID(bookingID string) string {
	return runIDPrefix + bookingID
}

// Start opens the saga run of a booking and enqueues it. Repeated calls for
// the same booking collapse onto one run and enqueue at most one task while
// that run is active.
func (o *Orchestrator) Start(ctx context.Context, bookingID string) error {
	booking, err := o.bookings.FindByID(ctx, bookingID)
	if err != nil {
		return translateBookingError(bookingID, err)
	}
	if booking.IsTerminal() {
		o.log.Debug("Saga start skipped for terminal booking", "booking_id", bookingID, "status", booking.Status)
		return nil
	}

	runID := RunID(bookingID)
	created, err := o.runs.Create(ctx, &model.SagaRun{
		ID:        runID,
		BookingID: bookingID,
		State:     model.SagaRunStateRunning,
	})
	if err != nil {
		return apperrors.Internal("Failed to open saga run", err)
	}

	if !created {
		run, err := o.runs.FindByID(ctx, runID)
		if err != nil {
			return apperrors.Internal("Failed to load saga run", err)
		}
		if run.IsTerminal() || o.now().Sub(run.UpdatedAt) < o.staleAfter {
			o.log.Debug("Saga already active, start collapsed",
				"booking_id", bookingID,
				"run_id", runID,
				"state", run.State,
			)
			return nil
		}
	}

	if _, err := o.bookings.SetSagaRunID(ctx, bookingID, runID); err != nil {
		return apperrors.Internal("Failed to attach saga run to booking", err)
	}

	if err := o.queue.Enqueue(ctx, queue.Task{BookingID: bookingID, RunID: runID, Reason: "start"}); err != nil {
		return apperrors.Unavailable("saga task queue").WithDetails(map[string]any{"error": err.Error()})
	}

	o.log.Info("Booking saga started", "booking_id", bookingID, "run_id", runID, "new_run", created)
	return nil
}

// Run executes the remaining steps of a booking's saga under the run lease.
// A saga that ends FAILED is an outcome, not an error: Run returns nil. It
// returns an error when progress could not be recorded, when compensation
// failed, or when ctx ended; the caller may retry in all three cases.
func (o *Orchestrator) Run(ctx context.Context, bookingID string) error {
	runID := RunID(bookingID)

	acquired, err := o.locker.Acquire(ctx, runID, o.owner, o.leaseTTL)
	if err != nil {
		return fmt.Errorf("acquire saga lease: %w", err)
	}
	if !acquired {
		o.log.Debug("Saga run held by another worker", "booking_id", bookingID, "run_id", runID)
		return nil
	}
	defer o.releaseLease(ctx, runID)

	booking, err := o.bookings.FindByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, bookingserrors.ErrNotFound) || errors.Is(err, bookingserrors.ErrInvalidID) {
			o.log.Warn("Saga run for missing booking abandoned", "booking_id", bookingID, "run_id", runID)
			_, err := o.runs.Finish(ctx, runID, model.SagaRunStateFailed, "booking not found")
			return err
		}
		return fmt.Errorf("load booking: %w", err)
	}

	run, err := o.loadOrCreateRun(ctx, runID, bookingID)
	if err != nil {
		return err
	}
	if run.IsTerminal() {
		o.log.Debug("Saga run already finished", "booking_id", bookingID, "run_id", runID, "state", run.State)
		return nil
	}

	if booking.IsTerminal() {
		return o.settleTerminal(ctx, booking, runID)
	}

	rc := core.RunContext{BookingID: bookingID, RunID: runID}
	progress := &runProgress{o: o, runID: runID, bookingID: bookingID}

	o.log.Info("Saga run executing",
		"booking_id", bookingID,
		"run_id", runID,
		"from_step", run.CompletedSteps,
	)

	err = o.engine.Run(ctx, rc, run.CompletedSteps, progress)
	if err == nil {
		return o.complete(ctx, booking, runID)
	}

	if unrecoverable, ok := core.AsUnrecoverable(err); ok {
		return o.fail(ctx, booking, runID, unrecoverable)
	}

	if ctx.Err() != nil {
		o.log.Warn("Saga run interrupted, will resume", "booking_id", bookingID, "run_id", runID, "error", err)
		return ctx.Err()
	}

	o.log.Error("Saga run could not record progress", "booking_id", bookingID, "run_id", runID, "error", err)
	return err
}

func (o *Orchestrator) loadOrCreateRun(ctx context.Context, runID string, bookingID string) (*model.SagaRun, error) {
	run, err := o.runs.FindByID(ctx, runID)
	if err == nil {
		return run, nil
	}
	if !errors.Is(err, sagaerrors.ErrRunNotFound) {
		return nil, fmt.Errorf("load saga run: %w", err)
	}

	if _, err := o.runs.Create(ctx, &model.SagaRun{
		ID:        runID,
		BookingID: bookingID,
		State:     model.SagaRunStateRunning,
	}); err != nil {
		return nil, fmt.Errorf("create saga run: %w", err)
	}

	run, err = o.runs.FindByID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("reload saga run: %w", err)
	}
	return run, nil
}

// settleTerminal closes a run whose booking reached a terminal status
// without the run being finished, e.g. after a crash between the last step
// and the run update.
func (o *Orchestrator) settleTerminal(ctx context.Context, booking *model.Booking, runID string) error {
	switch booking.Status {
	case model.BookingStatusConfirmed:
		return o.complete(ctx, booking, runID)
	case model.BookingStatusFailed:
		finished, err := o.runs.Finish(ctx, runID, model.SagaRunStateFailed, booking.FailureReason)
		if err != nil {
			return fmt.Errorf("finish saga run: %w", err)
		}
		if finished {
			o.notifyFailed(ctx, booking, booking.FailureReason)
		}
		return nil
	default:
		_, err := o.runs.Finish(ctx, runID, model.SagaRunStateFailed, "booking "+booking.Status)
		return err
	}
}

func (o *Orchestrator) complete(ctx context.Context, booking *model.Booking, runID string) error {
	finished, err := o.runs.Finish(ctx, runID, model.SagaRunStateCompleted, "")
	if err != nil {
		return fmt.Errorf("finish saga run: %w", err)
	}
	if !finished {
		return nil
	}

	o.log.Info("Booking confirmed", "booking_id", booking.ID, "run_id", runID)
	o.notifier.Enqueue(ctx, model.Notification{
		UserID:    booking.UserID,
		Title:     "Booking Confirmed",
		Message:   fmt.Sprintf("Your booking at %s on %s is confirmed.", groundLabel(booking), booking.StartTime.Format("Jan 2 15:04")),
		Kind:      model.NotificationKindBookingConfirmed,
		BookingID: booking.ID,
	})
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, booking *model.Booking, runID string, cause *core.UnrecoverableSagaError) error {
	reason := cause.Reason()
	o.log.Warn("Booking saga failed, compensating",
		"booking_id", booking.ID,
		"run_id", runID,
		"step", cause.Step,
		"attempts", cause.Attempts,
		"reason", reason,
	)

	// Compensation runs even if the worker is shutting down.
	compCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.engine.Policy().StepTimeout)
	defer cancel()

	if err := o.compensate(compCtx, booking.ID, reason); err != nil {
		o.log.Error("Booking compensation failed",
			"booking_id", booking.ID,
			"run_id", runID,
			"reason", reason,
			"error", err,
			"operator_action_required", true,
		)
		if _, finishErr := o.runs.Finish(compCtx, runID, model.SagaRunStateCompensationFailed, reason); finishErr != nil {
			o.log.Error("Failed to record compensation failure", "run_id", runID, "error", finishErr)
		}
		return fmt.Errorf("compensate booking %s: %w", booking.ID, err)
	}

	// Compensation leaves a booking that left PENDING mid-run untouched, so
	// the run settles on whatever status it actually holds.
	current, err := o.bookings.FindByID(compCtx, booking.ID)
	switch {
	case err == nil && current.IsTerminal() && current.Status != model.BookingStatusFailed:
		return o.settleTerminal(compCtx, current, runID)
	case err == nil:
		booking = current
	case !errors.Is(err, bookingserrors.ErrNotFound):
		return fmt.Errorf("reload compensated booking: %w", err)
	}

	finished, err := o.runs.Finish(compCtx, runID, model.SagaRunStateFailed, reason)
	if err != nil {
		return fmt.Errorf("finish saga run: %w", err)
	}
	if finished {
		o.notifyFailed(compCtx, booking, reason)
	}
	return nil
}

func (o *Orchestrator) notifyFailed(ctx context.Context, booking *model.Booking, reason string) {
	o.notifier.Enqueue(ctx, model.Notification{
		UserID:    booking.UserID,
		Title:     "Booking Failed",
		Message:   fmt.Sprintf("Your booking at %s could not be completed: %s", groundLabel(booking), reason),
		Kind:      model.NotificationKindBookingFailed,
		BookingID: booking.ID,
	})
}

func groundLabel(b *model.Booking) string {
	if b.GroundName != "" {
		return b.GroundName
	}
	return b.GroundID
}

func (o *Orchestrator) releaseLease(ctx context.Context, runID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := o.locker.Release(ctx, runID, o.owner); err != nil {
		o.log.Warn("Failed to release saga lease", "run_id", runID, "error", err)
	}
}

// Recover re-enqueues stalled runs and bookings whose saga never started.
// It returns the number of tasks enqueued.
func (o *Orchestrator) Recover(ctx context.Context) (int, error) {
	cutoff := o.now().Add(-o.staleAfter)
	enqueued := 0

	runs, err := o.runs.FindStale(ctx, cutoff, recoveryBatchSize)
	if err != nil {
		return 0, fmt.Errorf("find stale saga runs: %w", err)
	}
	for _, run := range runs {
		if err := o.queue.Enqueue(ctx, queue.Task{BookingID: run.BookingID, RunID: run.ID, Reason: "recover"}); err != nil {
			return enqueued, fmt.Errorf("enqueue stale run %s: %w", run.ID, err)
		}
		enqueued++
	}

	orphans, err := o.bookings.FindOrphanedPending(ctx, cutoff, recoveryBatchSize)
	if err != nil {
		return enqueued, fmt.Errorf("find orphaned bookings: %w", err)
	}
	for _, booking := range orphans {
		if err := o.Start(ctx, booking.ID); err != nil {
			o.log.Warn("Failed to start saga for orphaned booking", "booking_id", booking.ID, "error", err)
			continue
		}
		enqueued++
	}

	if enqueued > 0 {
		o.log.Info("Saga recovery sweep enqueued work", "stale_runs", len(runs), "orphaned_bookings", len(orphans), "enqueued", enqueued)
	}
	return enqueued, nil
}

// GetRun returns the saga log of a booking.
func (o *Orchestrator) GetRun(ctx context.Context, bookingID string) (*model.SagaRun, error) {
	if bookingID == "" {
		return nil, apperrors.InvalidInput("Booking ID cannot be empty")
	}
	run, err := o.runs.FindByID(ctx, RunID(bookingID))
	if err != nil {
		if errors.Is(err, sagaerrors.ErrRunNotFound) {
			return nil, apperrors.NotFound("Saga run for booking " + bookingID)
		}
		return nil, apperrors.Internal("Failed to retrieve saga run", err)
	}
	return run, nil
}

func translateBookingError(bookingID string, err error) error {
	if errors.Is(err, bookingserrors.ErrNotFound) {
		return apperrors.NotFoundWithID("Booking", bookingID)
	}
	if errors.Is(err, bookingserrors.ErrInvalidID) {
		return apperrors.InvalidInput("Invalid booking ID format")
	}
	return apperrors.Internal("Failed to load booking", err)
}
