package orchestrator

import (
	"context"
	"errors"
	"letsplay/internal/saga/activities"
	"letsplay/internal/saga/core"
	"letsplay/internal/saga/payment"
	"letsplay/pkg/logger"
	"letsplay/pkg/model"
	"letsplay/test/fakes"
	"sync"
	"testing"
	"time"
)

// scriptedGateway fails with the queued errors, then settles.
type scriptedGateway struct {
	mu    sync.Mutex
	errs  []error
	calls int
}

func (g *scriptedGateway) Settle(ctx context.Context, charge payment.Charge) (*payment.Receipt, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if len(g.errs) > 0 {
		err := g.errs[0]
		g.errs = g.errs[1:]
		return nil, err
	}
	return &payment.Receipt{Reference: "ref-" + charge.BookingID, Settled: true, SettledAt: time.Now()}, nil
}

func (g *scriptedGateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type harness struct {
	store    *fakes.Store
	queue    *fakes.Queue
	notifier *fakes.Notifier
	gateway  *scriptedGateway
	acts     *activities.Activities
	orch     *Orchestrator
}

func fastPolicy() core.RetryPolicy {
	return core.RetryPolicy{
		MaxAttempts:    3,
		StepTimeout:    time.Second,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}
}

func newHarness(t *testing.T, opts ...func(*Dependencies)) *harness {
	t.Helper()

	h := &harness{
		store:    fakes.NewStore(),
		queue:    &fakes.Queue{},
		notifier: &fakes.Notifier{},
		gateway:  &scriptedGateway{},
	}
	log := logger.Discard()
	h.acts = activities.New(h.store.Bookings(), h.store.Reservations(), h.gateway, log)

	deps := Dependencies{
		Bookings:   h.store.Bookings(),
		Runs:       h.store.Runs(),
		Locker:     h.store.Locker(),
		Queue:      h.queue,
		Notifier:   h.notifier,
		Steps:      h.acts.Steps(),
		Compensate: h.acts.MarkBookingFailed,
		Policy:     fastPolicy(),
		LeaseTTL:   time.Minute,
		StaleAfter: time.Minute,
		Log:        log,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	h.orch = New(deps)
	return h
}

func (h *harness) pendingBooking(groundID string, start time.Time) *model.Booking {
	public := false
	return h.store.PutBooking(&model.Booking{
		UserID:             "host-1",
		GroundID:           groundID,
		GroundName:         "Court " + groundID,
		StartTime:          start,
		EndTime:            start.Add(time.Hour),
		Status:             model.BookingStatusPending,
		IsPublic:           &public,
		MaxParticipants:    1,
		JoinedParticipants: 1,
		TotalAmount:        40,
	})
}

func tomorrow() time.Time {
	return time.Now().UTC().Add(24 * time.Hour).Truncate(time.Hour)
}

func TestRun_ConfirmsBooking(t *testing.T) {
	h := newHarness(t)
	b := h.pendingBooking("g1", tomorrow())
	ctx := context.Background()

	if err := h.orch.Start(ctx, b.ID); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := h.orch.Run(ctx, b.ID); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	got := h.store.Booking(b.ID)
	if got.Status != model.BookingStatusConfirmed {
		t.Errorf("status = %s, want CONFIRMED", got.Status)
	}
	if !got.PaymentSettled {
		t.Error("payment not settled")
	}
	if got.SagaRunID != RunID(b.ID) {
		t.Errorf("saga run id = %q, want %q", got.SagaRunID, RunID(b.ID))
	}

	run := h.store.Run(RunID(b.ID))
	if run.State != model.SagaRunStateCompleted {
		t.Errorf("run state = %s, want COMPLETED", run.State)
	}
	if run.CompletedSteps != 4 {
		t.Errorf("completed steps = %d, want 4", run.CompletedSteps)
	}

	wantOrder := []string{
		activities.StepValidateBooking,
		activities.StepReserveGround,
		activities.StepProcessPayment,
		activities.StepConfirmBooking,
	}
	if len(run.History) != len(wantOrder) {
		t.Fatalf("history length = %d, want %d", len(run.History), len(wantOrder))
	}
	for i, step := range wantOrder {
		if run.History[i].Step != step || run.History[i].Outcome != model.SagaOutcomeSucceeded {
			t.Errorf("history[%d] = %+v, want %s SUCCEEDED", i, run.History[i], step)
		}
	}

	if n := len(h.notifier.SentWithTitle("Booking Confirmed")); n != 1 {
		t.Errorf("confirmed notifications = %d, want 1", n)
	}
	if h.store.LockHeld(RunID(b.ID)) {
		t.Error("lease still held after run")
	}
	if h.store.Reservation(model.SlotKey(b.GroundID, b.StartTime, b.EndTime)) == nil {
		t.Error("ground slot not reserved")
	}
}

func TestRun_PaymentFailsThreeTimesCompensates(t *testing.T) {
	h := newHarness(t)
	unavailable := errors.New("gateway unavailable")
	h.gateway.errs = []error{unavailable, unavailable, unavailable}
	b := h.pendingBooking("g1", tomorrow())
	ctx := context.Background()

	if err := h.orch.Start(ctx, b.ID); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := h.orch.Run(ctx, b.ID); err != nil {
		t.Fatalf("Run() error = %v, want nil for a failed saga", err)
	}

	got := h.store.Booking(b.ID)
	if got.Status != model.BookingStatusFailed {
		t.Errorf("status = %s, want FAILED", got.Status)
	}
	if got.PaymentSettled {
		t.Error("payment settled on failed booking")
	}
	if got.FailureReason == "" {
		t.Error("failure reason not recorded")
	}
	if h.gateway.Calls() != 3 {
		t.Errorf("gateway calls = %d, want 3", h.gateway.Calls())
	}
	if n := h.store.Calls("bookings.TransitionStatus"); n != 0 {
		t.Errorf("confirm invoked %d times, want 0", n)
	}
	if n := h.store.Calls("bookings.MarkFailed"); n != 1 {
		t.Errorf("compensator invoked %d times, want 1", n)
	}
	if n := len(h.notifier.SentWithTitle("Booking Failed")); n != 1 {
		t.Errorf("failure notifications = %d, want 1", n)
	}
	if h.store.Reservation(model.SlotKey(b.GroundID, b.StartTime, b.EndTime)) != nil {
		t.Error("ground slot still held by failed booking")
	}

	run := h.store.Run(RunID(b.ID))
	if run.State != model.SagaRunStateFailed {
		t.Errorf("run state = %s, want FAILED", run.State)
	}
	if run.CompletedSteps != 2 {
		t.Errorf("completed steps = %d, want 2", run.CompletedSteps)
	}
}

func TestRun_PermanentFailureSkipsRetries(t *testing.T) {
	h := newHarness(t)
	h.gateway.errs = []error{core.Permanent(payment.ErrPaymentDeclined)}
	b := h.pendingBooking("g1", tomorrow())
	ctx := context.Background()

	_ = h.orch.Start(ctx, b.ID)
	if err := h.orch.Run(ctx, b.ID); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if h.gateway.Calls() != 1 {
		t.Errorf("gateway calls = %d, want 1", h.gateway.Calls())
	}
	if got := h.store.Booking(b.ID); got.Status != model.BookingStatusFailed {
		t.Errorf("status = %s, want FAILED", got.Status)
	}
}

func TestRun_TransientFailureRecovers(t *testing.T) {
	h := newHarness(t)
	h.gateway.errs = []error{errors.New("connection reset"), errors.New("connection reset")}
	b := h.pendingBooking("g1", tomorrow())
	ctx := context.Background()

	_ = h.orch.Start(ctx, b.ID)
	if err := h.orch.Run(ctx, b.ID); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := h.store.Booking(b.ID); got.Status != model.BookingStatusConfirmed {
		t.Errorf("status = %s, want CONFIRMED", got.Status)
	}
	run := h.store.Run(RunID(b.ID))
	retrying := 0
	for _, ev := range run.History {
		if ev.Outcome == model.SagaOutcomeRetrying {
			retrying++
		}
	}
	if retrying != 2 {
		t.Errorf("retrying events = %d, want 2", retrying)
	}
}

func TestRun_ResumesFromRecordedStep(t *testing.T) {
	var mu sync.Mutex
	var calls []string
	recording := func(name string) *core.Step {
		return core.NewStep(name, func(ctx context.Context, rc core.RunContext) error {
			mu.Lock()
			defer mu.Unlock()
			calls = append(calls, name)
			return nil
		})
	}
	h := newHarness(t, func(d *Dependencies) {
		d.Steps = []*core.Step{recording("a"), recording("b"), recording("c"), recording("d")}
	})
	b := h.pendingBooking("g1", tomorrow())
	h.store.PutRun(&model.SagaRun{
		ID:             RunID(b.ID),
		BookingID:      b.ID,
		State:          model.SagaRunStateRunning,
		CompletedSteps: 2,
		UpdatedAt:      time.Now(),
	})

	if err := h.orch.Run(context.Background(), b.ID); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(calls) != 2 || calls[0] != "c" || calls[1] != "d" {
		t.Errorf("executed steps = %v, want [c d]", calls)
	}
}

func TestRun_TerminalBookingIsNoop(t *testing.T) {
	h := newHarness(t)
	b := h.pendingBooking("g1", tomorrow())
	ctx := context.Background()

	_ = h.orch.Start(ctx, b.ID)
	if err := h.orch.Run(ctx, b.ID); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	calls := h.gateway.Calls()

	if err := h.orch.Run(ctx, b.ID); err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if err := h.orch.Start(ctx, b.ID); err != nil {
		t.Fatalf("Start() after completion error = %v", err)
	}

	if h.gateway.Calls() != calls {
		t.Errorf("gateway called again on terminal run")
	}
	if n := len(h.notifier.SentWithTitle("Booking Confirmed")); n != 1 {
		t.Errorf("confirmed notifications = %d, want 1", n)
	}
	if n := len(h.queue.Tasks()); n != 1 {
		t.Errorf("tasks enqueued = %d, want 1", n)
	}
}

func TestStart_DuplicateCollapses(t *testing.T) {
	h := newHarness(t)
	b := h.pendingBooking("g1", tomorrow())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := h.orch.Start(ctx, b.ID); err != nil {
				t.Errorf("Start() error = %v", err)
			}
		}()
	}
	wg.Wait()

	tasks := h.queue.Tasks()
	if len(tasks) != 1 {
		t.Fatalf("tasks enqueued = %d, want 1", len(tasks))
	}
	if tasks[0].RunID != RunID(b.ID) {
		t.Errorf("task run id = %s, want %s", tasks[0].RunID, RunID(b.ID))
	}
}

func TestStart_MissingBooking(t *testing.T) {
	h := newHarness(t)
	if err := h.orch.Start(context.Background(), "64b7f0c2a1b2c3d4e5f60718"); err == nil {
		t.Fatal("Start() error = nil, want not found")
	}
	if n := len(h.queue.Tasks()); n != 0 {
		t.Errorf("tasks enqueued = %d, want 0", n)
	}
}

func TestRun_LeaseHeldElsewhereIsNoop(t *testing.T) {
	h := newHarness(t)
	b := h.pendingBooking("g1", tomorrow())
	ctx := context.Background()

	_ = h.orch.Start(ctx, b.ID)
	h.store.HoldLock(RunID(b.ID), "other-worker", time.Minute)

	if err := h.orch.Run(ctx, b.ID); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := h.store.Booking(b.ID); got.Status != model.BookingStatusPending {
		t.Errorf("status = %s, want PENDING", got.Status)
	}
	if h.gateway.Calls() != 0 {
		t.Error("steps ran without the lease")
	}
}

func TestRun_CompensationFailure(t *testing.T) {
	h := newHarness(t, func(d *Dependencies) {
		d.Compensate = func(ctx context.Context, bookingID string, reason string) error {
			return errors.New("mongo: not primary")
		}
	})
	h.gateway.errs = []error{core.Permanent(payment.ErrPaymentDeclined)}
	b := h.pendingBooking("g1", tomorrow())
	ctx := context.Background()

	_ = h.orch.Start(ctx, b.ID)
	err := h.orch.Run(ctx, b.ID)
	if err == nil {
		t.Fatal("Run() error = nil, want compensation error")
	}

	run := h.store.Run(RunID(b.ID))
	if run.State != model.SagaRunStateCompensationFailed {
		t.Errorf("run state = %s, want COMPENSATION_FAILED", run.State)
	}
	if n := len(h.notifier.SentWithTitle("Booking Failed")); n != 0 {
		t.Errorf("failure notifications = %d, want 0", n)
	}

	// A retried task must not compensate again.
	if err := h.orch.Run(ctx, b.ID); err != nil {
		t.Errorf("retry Run() error = %v, want nil", err)
	}
}

func TestRun_CancelledDuringRunIsNotReportedFailed(t *testing.T) {
	var h *harness
	h = newHarness(t, func(d *Dependencies) {
		d.Compensate = func(ctx context.Context, bookingID string, reason string) error {
			// The host cancels while payment is being retried.
			if _, err := h.store.Bookings().TransitionStatus(ctx, bookingID, []string{model.BookingStatusPending}, model.BookingStatusCancelled); err != nil {
				return err
			}
			return h.acts.MarkBookingFailed(ctx, bookingID, reason)
		}
	})
	h.gateway.errs = []error{core.Permanent(payment.ErrPaymentDeclined)}
	b := h.pendingBooking("g1", tomorrow())
	ctx := context.Background()

	_ = h.orch.Start(ctx, b.ID)
	if err := h.orch.Run(ctx, b.ID); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := h.store.Booking(b.ID); got.Status != model.BookingStatusCancelled {
		t.Errorf("status = %s, want CANCELLED", got.Status)
	}
	run := h.store.Run(RunID(b.ID))
	if run.State != model.SagaRunStateFailed {
		t.Errorf("run state = %s, want FAILED", run.State)
	}
	if run.FailureReason != "booking "+model.BookingStatusCancelled {
		t.Errorf("run failure reason = %q, want cancelled status", run.FailureReason)
	}
	if n := len(h.notifier.SentWithTitle("Booking Failed")); n != 0 {
		t.Errorf("failure notifications = %d, want 0", n)
	}
}

func TestRun_SlotTakenFailsSecondBooking(t *testing.T) {
	h := newHarness(t)
	start := tomorrow()
	first := h.pendingBooking("g1", start)
	second := h.pendingBooking("g1", start)
	ctx := context.Background()

	for _, b := range []*model.Booking{first, second} {
		_ = h.orch.Start(ctx, b.ID)
		if err := h.orch.Run(ctx, b.ID); err != nil {
			t.Fatalf("Run(%s) error = %v", b.ID, err)
		}
	}

	if got := h.store.Booking(first.ID); got.Status != model.BookingStatusConfirmed {
		t.Errorf("first status = %s, want CONFIRMED", got.Status)
	}
	got := h.store.Booking(second.ID)
	if got.Status != model.BookingStatusFailed {
		t.Errorf("second status = %s, want FAILED", got.Status)
	}
	if got.PaymentSettled {
		t.Error("second booking was charged")
	}
	res := h.store.Reservation(model.SlotKey("g1", start, start.Add(time.Hour)))
	if res == nil || res.BookingID != first.ID {
		t.Errorf("slot holder = %+v, want %s", res, first.ID)
	}
}

func TestRecover_ReenqueuesStaleAndOrphaned(t *testing.T) {
	h := newHarness(t)
	stale := h.pendingBooking("g1", tomorrow())
	orphan := h.pendingBooking("g2", tomorrow())

	h.store.PutRun(&model.SagaRun{
		ID:        RunID(stale.ID),
		BookingID: stale.ID,
		State:     model.SagaRunStateRunning,
		UpdatedAt: time.Now().Add(-time.Hour),
	})
	o := h.store.Booking(orphan.ID)
	o.CreatedAt = time.Now().Add(-time.Hour)
	h.store.PutBooking(o)

	n, err := h.orch.Recover(context.Background())
	if err != nil {
		t.Fatalf("Recover() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Recover() = %d, want 2", n)
	}

	seen := map[string]bool{}
	for _, task := range h.queue.Tasks() {
		seen[task.BookingID] = true
	}
	if !seen[stale.ID] || !seen[orphan.ID] {
		t.Errorf("enqueued = %v, want both bookings", seen)
	}
	if got := h.store.Booking(orphan.ID); got.SagaRunID != RunID(orphan.ID) {
		t.Errorf("orphan saga run id = %q", got.SagaRunID)
	}
}

func TestGetRun(t *testing.T) {
	h := newHarness(t)
	b := h.pendingBooking("g1", tomorrow())

	if _, err := h.orch.GetRun(context.Background(), b.ID); err == nil {
		t.Error("GetRun() before start error = nil, want not found")
	}
	_ = h.orch.Start(context.Background(), b.ID)
	run, err := h.orch.GetRun(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run.State != model.SagaRunStateRunning {
		t.Errorf("state = %s, want RUNNING", run.State)
	}
}
