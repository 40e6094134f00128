package activities

import (
	"context"
	"errors"
	"fmt"
	bookingserrors "letsplay/internal/bookings/errors"
	"letsplay/internal/bookings/repository"
	"letsplay/internal/saga/core"
	"letsplay/internal/saga/payment"
	"letsplay/pkg/logger"
	"letsplay/pkg/model"
)

const (
	StepValidateBooking = "ValidateBooking"
	StepReserveGround   = "ReserveGround"
	StepProcessPayment  = "ProcessPayment"
	StepConfirmBooking  = "ConfirmBooking"
)

// Activities are the side-effecting units of the booking saga. Each one is
// safe to repeat for the same run: a retry after a partial failure converges
// on the same end state.
type Activities struct {
	bookings     repository.BookingRepository
	reservations repository.GroundReservationRepository
	gateway      payment.Gateway
	log          *logger.Logger
}

func New(
	bookings repository.BookingRepository,
	reservations repository.GroundReservationRepository,
	gateway payment.Gateway,
	log *logger.Logger,
) *Activities {
	return &Activities{
		bookings:     bookings,
		reservations: reservations,
		gateway:      gateway,
		log:          log,
	}
}

// Steps returns the forward steps in execution order.
func (a *Activities) Steps() []*core.Step {
	return []*core.Step{
		core.NewStep(StepValidateBooking, a.ValidateBooking),
		core.NewStep(StepReserveGround, a.ReserveGround),
		core.NewStep(StepProcessPayment, a.ProcessPayment),
		core.NewStep(StepConfirmBooking, a.ConfirmBooking),
	}
}

func (a *Activities) load(ctx context.Context, bookingID string) (*model.Booking, error) {
	booking, err := a.bookings.FindByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, bookingserrors.ErrNotFound) || errors.Is(err, bookingserrors.ErrInvalidID) {
			return nil, core.Permanent(fmt.Errorf("%w: %s", ErrBookingMissing, bookingID))
		}
		return nil, fmt.Errorf("load booking %s: %w", bookingID, err)
	}
	return booking, nil
}

func (a *Activities) ValidateBooking(ctx context.Context, rc core.RunContext) error {
	booking, err := a.load(ctx, rc.BookingID)
	if err != nil {
		return err
	}

	if booking.Status != model.BookingStatusPending {
		return core.Permanent(fmt.Errorf("%w: status %s", ErrBookingNotPending, booking.Status))
	}
	if !booking.EndTime.After(booking.StartTime) {
		return core.Permanent(ErrInvalidWindow)
	}

	conflicts, err := a.bookings.FindConflicting(ctx, booking.GroundID, booking.StartTime, booking.EndTime, booking.ID)
	if err != nil {
		return fmt.Errorf("check conflicting bookings: %w", err)
	}
	if len(conflicts) > 0 {
		return core.Permanent(fmt.Errorf("%w: overlaps confirmed booking %s", ErrSlotTaken, conflicts[0].ID))
	}

	return nil
}

// ReserveGround claims the booking's slot. The first booking to insert the
// slot key holds it; a repeat by the same booking is a no-op, and a slot left
// behind by a booking that has since failed is taken over.
func (a *Activities) ReserveGround(ctx context.Context, rc core.RunContext) error {
	booking, err := a.load(ctx, rc.BookingID)
	if err != nil {
		return err
	}

	reservation := &model.GroundReservation{
		ID:        model.SlotKey(booking.GroundID, booking.StartTime, booking.EndTime),
		GroundID:  booking.GroundID,
		BookingID: booking.ID,
		StartTime: booking.StartTime,
		EndTime:   booking.EndTime,
	}

	err = a.reservations.Reserve(ctx, reservation)
	if err == nil {
		a.log.InfoContext(ctx, "Ground slot reserved", "booking_id", booking.ID, "slot", reservation.ID)
		return nil
	}
	if !errors.Is(err, bookingserrors.ErrSlotHeld) {
		return fmt.Errorf("reserve ground slot: %w", err)
	}

	existing, err := a.reservations.FindBySlot(ctx, reservation.ID)
	if err != nil {
		// Released between our insert and this read; the retry inserts again.
		return fmt.Errorf("read held ground slot: %w", err)
	}
	if existing.BookingID == booking.ID {
		return nil
	}

	holder, err := a.bookings.FindByID(ctx, existing.BookingID)
	switch {
	case err == nil && !isReleasable(holder):
		return core.Permanent(fmt.Errorf("%w: held by booking %s", ErrSlotTaken, existing.BookingID))
	case err != nil && !errors.Is(err, bookingserrors.ErrNotFound) && !errors.Is(err, bookingserrors.ErrInvalidID):
		return fmt.Errorf("load slot holder %s: %w", existing.BookingID, err)
	}

	took, err := a.reservations.TakeOver(ctx, reservation.ID, existing.BookingID, booking.ID)
	if err != nil {
		return fmt.Errorf("take over ground slot: %w", err)
	}
	if !took {
		return fmt.Errorf("ground slot %s changed hands during takeover", reservation.ID)
	}

	a.log.InfoContext(ctx, "Ground slot taken over from released booking",
		"booking_id", booking.ID,
		"previous_booking_id", existing.BookingID,
		"slot", reservation.ID,
	)
	return nil
}

func isReleasable(holder *model.Booking) bool {
	return holder.Status == model.BookingStatusFailed || holder.Status == model.BookingStatusCancelled
}

func (a *Activities) ProcessPayment(ctx context.Context, rc core.RunContext) error {
	booking, err := a.load(ctx, rc.BookingID)
	if err != nil {
		return err
	}
	if booking.PaymentSettled {
		return nil
	}

	receipt, err := a.gateway.Settle(ctx, payment.Charge{
		BookingID:      booking.ID,
		Amount:         booking.TotalAmount,
		IdempotencyKey: rc.RunID,
	})
	if err != nil {
		return err
	}
	if !receipt.Settled {
		return ErrPaymentNotSettled
	}

	if err := a.bookings.SetPaymentSettled(ctx, booking.ID); err != nil {
		return fmt.Errorf("record payment: %w", err)
	}

	a.log.InfoContext(ctx, "Payment settled",
		"booking_id", booking.ID,
		"amount", booking.TotalAmount,
		"reference", receipt.Reference,
	)
	return nil
}

func (a *Activities) ConfirmBooking(ctx context.Context, rc core.RunContext) error {
	moved, err := a.bookings.TransitionStatus(ctx, rc.BookingID,
		[]string{model.BookingStatusPending}, model.BookingStatusConfirmed)
	if err != nil {
		if errors.Is(err, bookingserrors.ErrInvalidID) {
			return core.Permanent(fmt.Errorf("%w: %s", ErrBookingMissing, rc.BookingID))
		}
		return fmt.Errorf("confirm booking: %w", err)
	}
	if moved {
		return nil
	}

	booking, err := a.load(ctx, rc.BookingID)
	if err != nil {
		return err
	}
	if booking.Status == model.BookingStatusConfirmed {
		return nil
	}
	return core.Permanent(fmt.Errorf("%w: status %s", ErrBookingNotPending, booking.Status))
}

// MarkBookingFailed is the saga's compensator. It moves a PENDING booking to
// FAILED with reason and gives up the ground slot the booking holds. A
// booking that is missing or already terminal is left alone.
func (a *Activities) MarkBookingFailed(ctx context.Context, bookingID string, reason string) error {
	marked, err := a.bookings.MarkFailed(ctx, bookingID, reason)
	if err != nil {
		if errors.Is(err, bookingserrors.ErrInvalidID) {
			return nil
		}
		return fmt.Errorf("mark booking failed: %w", err)
	}

	booking, err := a.bookings.FindByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, bookingserrors.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("reload failed booking: %w", err)
	}

	if !marked && booking.Status != model.BookingStatusFailed {
		a.log.WarnContext(ctx, "Compensation skipped for booking in terminal status",
			"booking_id", bookingID,
			"status", booking.Status,
		)
		return nil
	}

	key := model.SlotKey(booking.GroundID, booking.StartTime, booking.EndTime)
	if _, err := a.reservations.Release(ctx, key, booking.ID); err != nil {
		a.log.WarnContext(ctx, "Failed to release ground slot of failed booking",
			"booking_id", bookingID,
			"slot", key,
			"error", err,
		)
	}
	return nil
}
