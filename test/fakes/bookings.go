package fakes

import (
	"context"
	"sort"
	"time"

	bookingserrors "letsplay/internal/bookings/errors"
	"letsplay/internal/bookings/repository"
	mongotx "letsplay/pkg/db/mongo"
	"letsplay/pkg/model"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type bookingRepo struct {
	s *Store
}

func (s *Store) Bookings() repository.BookingRepository {
	return &bookingRepo{s: s}
}

func cloneBooking(b *model.Booking) *model.Booking {
	c := *b
	if b.IsPublic != nil {
		v := *b.IsPublic
		c.IsPublic = &v
	}
	return &c
}

// PutBooking stores b directly, assigning an id when it has none.
func (s *Store) PutBooking(b *model.Booking) *model.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID == "" {
		b.ID = primitive.NewObjectID().Hex()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	s.bookings[b.ID] = cloneBooking(b)
	return cloneBooking(b)
}

// Booking returns a copy of the stored booking or nil.
func (s *Store) Booking(id string) *model.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.bookings[id]; ok {
		return cloneBooking(b)
	}
	return nil
}

// mutateBooking applies fn to the stored booking and records an undo.
// Callers must hold s.mu.
func (s *Store) mutateBooking(ctx context.Context, b *model.Booking, fn func(*model.Booking)) {
	prev := cloneBooking(b)
	fn(b)
	b.UpdatedAt = time.Now().UTC()
	s.record(ctx, func() { s.bookings[prev.ID] = prev })
}

func (r *bookingRepo) lookup(id string) (*model.Booking, error) {
	if !primitive.IsValidObjectID(id) {
		return nil, bookingserrors.ErrInvalidID
	}
	b, ok := r.s.bookings[id]
	if !ok {
		return nil, bookingserrors.ErrNotFound
	}
	return b, nil
}

func (r *bookingRepo) Create(ctx context.Context, booking *model.Booking) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("bookings.Create"); err != nil {
		return err
	}

	booking.ID = primitive.NewObjectID().Hex()
	booking.CreatedAt = time.Now().UTC()
	booking.UpdatedAt = booking.CreatedAt
	r.s.bookings[booking.ID] = cloneBooking(booking)
	id := booking.ID
	r.s.record(ctx, func() { delete(r.s.bookings, id) })
	return nil
}

func (r *bookingRepo) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("bookings.FindByID"); err != nil {
		return nil, err
	}

	b, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	return cloneBooking(b), nil
}

func (r *bookingRepo) Save(ctx context.Context, booking *model.Booking) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("bookings.Save"); err != nil {
		return err
	}
	if !primitive.IsValidObjectID(booking.ID) {
		return bookingserrors.ErrInvalidID
	}

	prev, existed := r.s.bookings[booking.ID]
	booking.UpdatedAt = time.Now().UTC()
	r.s.bookings[booking.ID] = cloneBooking(booking)
	id := booking.ID
	r.s.record(ctx, func() {
		if existed {
			r.s.bookings[id] = prev
		} else {
			delete(r.s.bookings, id)
		}
	})
	return nil
}

func (r *bookingRepo) FindConflicting(ctx context.Context, groundID string, start, end time.Time, excludeID string) ([]*model.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("bookings.FindConflicting"); err != nil {
		return nil, err
	}

	var out []*model.Booking
	for _, b := range r.s.bookings {
		if b.ID == excludeID || b.GroundID != groundID || b.Status != model.BookingStatusConfirmed {
			continue
		}
		if b.StartTime.Before(end) && b.EndTime.After(start) {
			out = append(out, cloneBooking(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (r *bookingRepo) SetSagaRunID(ctx context.Context, id string, runID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("bookings.SetSagaRunID"); err != nil {
		return false, err
	}

	b, err := r.lookup(id)
	if err != nil {
		if err == bookingserrors.ErrNotFound {
			return false, nil
		}
		return false, err
	}
	if b.SagaRunID != "" {
		return false, nil
	}
	r.s.mutateBooking(ctx, b, func(b *model.Booking) { b.SagaRunID = runID })
	return true, nil
}

func (r *bookingRepo) TransitionStatus(ctx context.Context, id string, from []string, to string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("bookings.TransitionStatus"); err != nil {
		return false, err
	}

	b, err := r.lookup(id)
	if err != nil {
		if err == bookingserrors.ErrNotFound {
			return false, nil
		}
		return false, err
	}
	for _, status := range from {
		if b.Status == status {
			r.s.mutateBooking(ctx, b, func(b *model.Booking) { b.Status = to })
			return true, nil
		}
	}
	return false, nil
}

func (r *bookingRepo) SetPaymentSettled(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("bookings.SetPaymentSettled"); err != nil {
		return err
	}

	b, err := r.lookup(id)
	if err != nil {
		return err
	}
	r.s.mutateBooking(ctx, b, func(b *model.Booking) { b.PaymentSettled = true })
	return nil
}

func (r *bookingRepo) MarkFailed(ctx context.Context, id string, reason string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("bookings.MarkFailed"); err != nil {
		return false, err
	}

	b, err := r.lookup(id)
	if err != nil {
		if err == bookingserrors.ErrNotFound {
			return false, nil
		}
		return false, err
	}
	if b.Status != model.BookingStatusPending {
		return false, nil
	}
	r.s.mutateBooking(ctx, b, func(b *model.Booking) {
		b.Status = model.BookingStatusFailed
		b.FailureReason = reason
	})
	return true, nil
}

func (r *bookingRepo) IncrementJoinedIfAvailable(ctx context.Context, id string) (*model.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("bookings.IncrementJoinedIfAvailable"); err != nil {
		return nil, err
	}

	b, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	if !b.Public() || b.Status != model.BookingStatusConfirmed || b.JoinedParticipants >= b.MaxParticipants {
		return nil, bookingserrors.ErrNotFound
	}
	// Undo as a decrement so concurrent committed increments survive.
	b.JoinedParticipants++
	b.UpdatedAt = time.Now().UTC()
	r.s.record(ctx, func() {
		if cur, ok := r.s.bookings[id]; ok {
			cur.JoinedParticipants--
		}
	})
	return cloneBooking(b), nil
}

func (r *bookingRepo) publicOpen() []*model.Booking {
	var out []*model.Booking
	for _, b := range r.s.bookings {
		if b.Public() && b.Status == model.BookingStatusConfirmed && b.HasCapacity() {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

func (r *bookingRepo) FindPublicOpen(ctx context.Context, limit int, offset int64) ([]*model.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("bookings.FindPublicOpen"); err != nil {
		return nil, err
	}

	all := r.publicOpen()
	out := []*model.Booking{}
	for i := int(offset); i < len(all) && len(out) < limit; i++ {
		out = append(out, cloneBooking(all[i]))
	}
	return out, nil
}

func (r *bookingRepo) CountPublicOpen(ctx context.Context) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("bookings.CountPublicOpen"); err != nil {
		return 0, err
	}
	return int64(len(r.publicOpen())), nil
}

func (r *bookingRepo) FindOrphanedPending(ctx context.Context, olderThan time.Time, limit int) ([]*model.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("bookings.FindOrphanedPending"); err != nil {
		return nil, err
	}

	var out []*model.Booking
	for _, b := range r.s.bookings {
		if b.Status == model.BookingStatusPending && b.SagaRunID == "" && b.CreatedAt.Before(olderThan) {
			out = append(out, cloneBooking(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *bookingRepo) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.s.ExecuteTransaction(ctx, fn)
}
