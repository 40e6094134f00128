package fakes

import (
	"context"
	"sort"
	"time"

	bookingserrors "letsplay/internal/bookings/errors"
	bookingsrepo "letsplay/internal/bookings/repository"
	sagaerrors "letsplay/internal/saga/errors"
	sagarepo "letsplay/internal/saga/repository"
	"letsplay/pkg/model"
)

type reservationRepo struct {
	s *Store
}

func (s *Store) Reservations() bookingsrepo.GroundReservationRepository {
	return &reservationRepo{s: s}
}

// Reservation returns a copy of the reservation for key or nil.
func (s *Store) Reservation(key string) *model.GroundReservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.reservations[key]; ok {
		c := *r
		return &c
	}
	return nil
}

func (r *reservationRepo) Reserve(ctx context.Context, reservation *model.GroundReservation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("reservations.Reserve"); err != nil {
		return err
	}

	if reservation.ID == "" {
		reservation.ID = model.SlotKey(reservation.GroundID, reservation.StartTime, reservation.EndTime)
	}
	if _, held := r.s.reservations[reservation.ID]; held {
		return bookingserrors.ErrSlotHeld
	}
	reservation.CreatedAt = time.Now().UTC()
	c := *reservation
	r.s.reservations[c.ID] = &c
	return nil
}

func (r *reservationRepo) FindBySlot(ctx context.Context, key string) (*model.GroundReservation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("reservations.FindBySlot"); err != nil {
		return nil, err
	}

	res, ok := r.s.reservations[key]
	if !ok {
		return nil, bookingserrors.ErrReservationNotFound
	}
	c := *res
	return &c, nil
}

func (r *reservationRepo) Release(ctx context.Context, key string, bookingID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("reservations.Release"); err != nil {
		return false, err
	}

	res, ok := r.s.reservations[key]
	if !ok || res.BookingID != bookingID {
		return false, nil
	}
	delete(r.s.reservations, key)
	return true, nil
}

func (r *reservationRepo) TakeOver(ctx context.Context, key string, fromBookingID string, toBookingID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("reservations.TakeOver"); err != nil {
		return false, err
	}

	res, ok := r.s.reservations[key]
	if !ok || res.BookingID != fromBookingID {
		return false, nil
	}
	res.BookingID = toBookingID
	res.CreatedAt = time.Now().UTC()
	return true, nil
}

type runRepo struct {
	s *Store
}

func (s *Store) Runs() sagarepo.SagaRunRepository {
	return &runRepo{s: s}
}

func cloneRun(run *model.SagaRun) *model.SagaRun {
	c := *run
	c.History = append([]model.SagaEvent(nil), run.History...)
	if run.FinishedAt != nil {
		t := *run.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}

// Run returns a copy of the stored saga run or nil.
func (s *Store) Run(id string) *model.SagaRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run, ok := s.runs[id]; ok {
		return cloneRun(run)
	}
	return nil
}

// PutRun stores run as is, keeping its timestamps.
func (s *Store) PutRun(run *model.SagaRun) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = cloneRun(run)
}

func (r *runRepo) Create(ctx context.Context, run *model.SagaRun) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("runs.Create"); err != nil {
		return false, err
	}

	if _, exists := r.s.runs[run.ID]; exists {
		return false, nil
	}
	run.CreatedAt = time.Now().UTC()
	run.UpdatedAt = run.CreatedAt
	if run.History == nil {
		run.History = []model.SagaEvent{}
	}
	r.s.runs[run.ID] = cloneRun(run)
	return true, nil
}

func (r *runRepo) FindByID(ctx context.Context, id string) (*model.SagaRun, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("runs.FindByID"); err != nil {
		return nil, err
	}

	run, ok := r.s.runs[id]
	if !ok {
		return nil, sagaerrors.ErrRunNotFound
	}
	return cloneRun(run), nil
}

func (r *runRepo) running(id string) (*model.SagaRun, error) {
	run, ok := r.s.runs[id]
	if !ok || run.State != model.SagaRunStateRunning {
		return nil, sagaerrors.ErrProgressConflict
	}
	return run, nil
}

func (r *runRepo) RecordStepStarted(ctx context.Context, id string, step string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("runs.RecordStepStarted"); err != nil {
		return err
	}

	run, err := r.running(id)
	if err != nil {
		return err
	}
	run.CurrentStep = step
	run.Attempts = 0
	run.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *runRepo) RecordAttempt(ctx context.Context, id string, event model.SagaEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("runs.RecordAttempt"); err != nil {
		return err
	}

	run, err := r.running(id)
	if err != nil {
		return err
	}
	run.Attempts = event.Attempt
	run.LastError = event.Error
	run.History = append(run.History, event)
	run.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *runRepo) RecordStepCompleted(ctx context.Context, id string, index int, event model.SagaEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("runs.RecordStepCompleted"); err != nil {
		return err
	}

	run, err := r.running(id)
	if err != nil {
		return err
	}
	if run.CompletedSteps != index {
		return sagaerrors.ErrProgressConflict
	}
	run.CompletedSteps = index + 1
	run.Attempts = event.Attempt
	run.LastError = ""
	run.History = append(run.History, event)
	run.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *runRepo) Finish(ctx context.Context, id string, state string, reason string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("runs.Finish"); err != nil {
		return false, err
	}

	run, ok := r.s.runs[id]
	if !ok || run.State != model.SagaRunStateRunning {
		return false, nil
	}
	at := time.Now().UTC()
	run.State = state
	if reason != "" {
		run.FailureReason = reason
	}
	run.UpdatedAt = at
	run.FinishedAt = &at
	return true, nil
}

func (r *runRepo) FindStale(ctx context.Context, olderThan time.Time, limit int) ([]*model.SagaRun, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("runs.FindStale"); err != nil {
		return nil, err
	}

	var out []*model.SagaRun
	for _, run := range r.s.runs {
		if run.State == model.SagaRunStateRunning && run.UpdatedAt.Before(olderThan) {
			out = append(out, cloneRun(run))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type locker struct {
	s *Store
}

func (s *Store) Locker() sagarepo.RunLocker {
	return &locker{s: s}
}

// HoldLock installs a lease owned by owner, as if another worker held it.
func (s *Store) HoldLock(key string, owner string, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locks[key] = &model.SagaLock{ID: key, Owner: owner, ExpiresAt: time.Now().Add(ttl), CreatedAt: time.Now()}
}

// LockHeld reports whether a live lease exists for key.
func (s *Store) LockHeld(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	return ok && l.ExpiresAt.After(time.Now())
}

func (l *locker) Acquire(ctx context.Context, key string, owner string, ttl time.Duration) (bool, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	if err := l.s.enter("locks.Acquire"); err != nil {
		return false, err
	}

	now := time.Now()
	if cur, ok := l.s.locks[key]; ok && cur.ExpiresAt.After(now) {
		return false, nil
	}
	l.s.locks[key] = &model.SagaLock{ID: key, Owner: owner, ExpiresAt: now.Add(ttl), CreatedAt: now}
	return true, nil
}

func (l *locker) Extend(ctx context.Context, key string, owner string, ttl time.Duration) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	if err := l.s.enter("locks.Extend"); err != nil {
		return err
	}

	cur, ok := l.s.locks[key]
	if !ok || cur.Owner != owner {
		return sagaerrors.ErrLeaseNotHeld
	}
	cur.ExpiresAt = time.Now().Add(ttl)
	return nil
}

func (l *locker) Release(ctx context.Context, key string, owner string) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	if err := l.s.enter("locks.Release"); err != nil {
		return err
	}

	if cur, ok := l.s.locks[key]; ok && cur.Owner == owner {
		delete(l.s.locks, key)
	}
	return nil
}
