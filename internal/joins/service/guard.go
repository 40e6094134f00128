package service

import (
	"context"
	"errors"
	"fmt"
	bookingserrors "letsplay/internal/bookings/errors"
	apperrors "letsplay/pkg/errors"
	"letsplay/pkg/model"
)

// Accept admits the requester into the booking. The participant increment
// and the request transition commit together or not at all: the increment
// is a single conditional update that only matches a confirmed public
// booking below capacity, so concurrent accepts can never push joined past
// max. Requests on a booking whose saga is still running wait for it.
func (s *joinService) Accept(ctx context.Context, requestID string) (*model.JoinRequest, error) {
	req, err := s.loadPending(ctx, requestID)
	if err != nil {
		return nil, err
	}

	var booking *model.Booking
	at := s.now().UTC()

	err = s.bookings.ExecuteTransaction(ctx, func(ctx context.Context) error {
		updated, err := s.bookings.IncrementJoinedIfAvailable(ctx, req.BookingID)
		if err != nil {
			if errors.Is(err, bookingserrors.ErrNotFound) || errors.Is(err, bookingserrors.ErrInvalidID) {
				return s.classifyRejection(ctx, req.BookingID)
			}
			return apperrors.Internal("Failed to reserve participant slot", err)
		}

		moved, err := s.repo.TransitionStatus(ctx, requestID, model.JoinRequestStatusPending, model.JoinRequestStatusAccepted, at)
		if err != nil {
			return apperrors.Internal("Failed to accept join request", err)
		}
		if !moved {
			return s.notPending(ctx, requestID)
		}

		booking = updated
		return nil
	})
	if err != nil {
		if apperrors.IsAppError(err) {
			s.cfg.Log.Info("Join request not accepted", "id", requestID, "booking_id", req.BookingID, "error", err)
			return nil, err
		}
		s.cfg.Log.Error("Accept transaction failed", "id", requestID, "booking_id", req.BookingID, "error", err)
		return nil, apperrors.Internal("Failed to accept join request", err)
	}

	req.Status = model.JoinRequestStatusAccepted
	req.RespondedAt = &at

	s.cfg.Log.Info("Join request accepted",
		"id", requestID,
		"booking_id", booking.ID,
		"joined_participants", booking.JoinedParticipants,
		"max_participants", booking.MaxParticipants,
	)

	s.notifier.Enqueue(ctx, model.Notification{
		UserID:    req.UserID,
		Title:     "Request Accepted",
		Message:   fmt.Sprintf("Your request to join %s has been accepted!", groundLabel(booking)),
		Kind:      model.NotificationKindJoinAccepted,
		BookingID: booking.ID,
	})

	return req, nil
}

// classifyRejection explains why the conditional increment matched nothing.
func (s *joinService) classifyRejection(ctx context.Context, bookingID string) error {
	booking, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return err
	}

	switch {
	case !booking.Public():
		return apperrors.BookingNotPublic(bookingID)
	case booking.Status != model.BookingStatusConfirmed:
		return apperrors.BookingNotOpen(bookingID, booking.Status)
	case !booking.HasCapacity():
		return apperrors.BookingFull(bookingID)
	default:
		return apperrors.Conflict("Booking changed while accepting, please retry")
	}
}
