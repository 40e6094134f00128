package service

import (
	"context"
	"errors"
	"fmt"
	bookingserrors "letsplay/internal/bookings/errors"
	bookingsrepo "letsplay/internal/bookings/repository"
	joinserrors "letsplay/internal/joins/errors"
	"letsplay/internal/joins/repository"
	"letsplay/internal/joins/validator"
	notifications "letsplay/internal/notifications/service"
	"letsplay/pkg/config"
	apperrors "letsplay/pkg/errors"
	"letsplay/pkg/model"
	"letsplay/pkg/sanitizer"
	"strings"
	"sync"
	"time"
)

type JoinService interface {
	CreateRequest(ctx context.Context, bookingID string, req *model.JoinRequestCreate) (*model.JoinRequest, error)
	RespondToRequest(ctx context.Context, requestID string, resp *model.JoinRequestResponse) (*model.JoinRequest, error)
	Accept(ctx context.Context, requestID string) (*model.JoinRequest, error)
	Reject(ctx context.Context, requestID string) (*model.JoinRequest, error)
	ListByBooking(ctx context.Context, bookingID string) ([]*model.JoinRequest, error)
	ListPublicBookings(ctx context.Context, limit int, offset int64) ([]*model.Booking, int64, error)
}

type joinService struct {
	repo      repository.JoinRequestRepository
	bookings  bookingsrepo.BookingRepository
	notifier  notifications.Notifier
	validator *validator.JoinRequestValidator
	cfg       *config.Config
	now       func() time.Time
}

func NewJoinService(
	repo repository.JoinRequestRepository,
	bookings bookingsrepo.BookingRepository,
	notifier notifications.Notifier,
	validator *validator.JoinRequestValidator,
	cfg *config.Config,
) JoinService {
	return &joinService{
		repo:      repo,
		bookings:  bookings,
		notifier:  notifier,
		validator: validator,
		cfg:       cfg,
		now:       time.Now,
	}
}

func (s *joinService) CreateRequest(ctx context.Context, bookingID string, in *model.JoinRequestCreate) (*model.JoinRequest, error) {
	if in == nil {
		return nil, apperrors.InvalidInput("Join request payload cannot be empty")
	}

	req := &model.JoinRequest{
		BookingID: bookingID,
		UserID:    sanitizer.SanitizeRefID(in.UserID),
		UserName:  sanitizer.SanitizeDisplayName(in.UserName),
		Message:   sanitizer.SanitizeMessage(in.Message),
		Status:    model.JoinRequestStatusPending,
	}
	if err := s.validator.Validate(req); err != nil {
		s.cfg.Log.Warn("Join request validation failed", "booking_id", bookingID, "error", err)
		return nil, apperrors.Validation("Join request validation failed", map[string]any{"error": err.Error()})
	}

	booking, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !booking.Public() {
		return nil, apperrors.BookingNotPublic(bookingID)
	}
	if booking.Status != model.BookingStatusPending && booking.Status != model.BookingStatusConfirmed {
		return nil, apperrors.BookingNotOpen(bookingID, booking.Status)
	}
	if booking.UserID == req.UserID {
		return nil, apperrors.Validation("Host cannot request to join their own booking", map[string]any{"user_id": req.UserID})
	}

	if _, err := s.repo.FindPendingByUser(ctx, bookingID, req.UserID); err == nil {
		return nil, apperrors.Conflict("A pending join request already exists for this user")
	} else if !errors.Is(err, joinserrors.ErrNotFound) {
		return nil, apperrors.Internal("Failed to check existing join requests", err)
	}

	if err := s.repo.Create(ctx, req); err != nil {
		if errors.Is(err, joinserrors.ErrDuplicatePending) {
			return nil, apperrors.Conflict("A pending join request already exists for this user")
		}
		s.cfg.Log.Error("Failed to create join request", "booking_id", bookingID, "error", err)
		return nil, apperrors.Internal("Failed to create join request", err)
	}

	s.cfg.Log.Info("Join request created",
		"id", req.ID,
		"booking_id", bookingID,
		"user_id", req.UserID,
	)

	s.notifier.Enqueue(ctx, model.Notification{
		UserID:    booking.UserID,
		Title:     "New Join Request",
		Message:   fmt.Sprintf("%s wants to join your booking at %s", requesterName(req), groundLabel(booking)),
		Kind:      model.NotificationKindJoinRequest,
		BookingID: booking.ID,
	})

	return req, nil
}

func (s *joinService) RespondToRequest(ctx context.Context, requestID string, resp *model.JoinRequestResponse) (*model.JoinRequest, error) {
	if resp == nil {
		return nil, apperrors.InvalidInput("Response payload cannot be empty")
	}

	switch strings.ToUpper(strings.TrimSpace(resp.Status)) {
	case model.JoinRequestStatusAccepted:
		return s.Accept(ctx, requestID)
	case model.JoinRequestStatusRejected:
		return s.Reject(ctx, requestID)
	default:
		return nil, apperrors.Validation("Response status must be ACCEPTED or REJECTED", map[string]any{"status": resp.Status})
	}
}

func (s *joinService) Reject(ctx context.Context, requestID string) (*model.JoinRequest, error) {
	req, err := s.loadPending(ctx, requestID)
	if err != nil {
		return nil, err
	}

	at := s.now().UTC()
	moved, err := s.repo.TransitionStatus(ctx, requestID, model.JoinRequestStatusPending, model.JoinRequestStatusRejected, at)
	if err != nil {
		return nil, apperrors.Internal("Failed to reject join request", err)
	}
	if !moved {
		return nil, s.notPending(ctx, requestID)
	}

	req.Status = model.JoinRequestStatusRejected
	req.RespondedAt = &at
	s.cfg.Log.Info("Join request rejected", "id", requestID, "booking_id", req.BookingID)

	label := req.BookingID
	if booking, err := s.bookings.FindByID(ctx, req.BookingID); err == nil {
		label = groundLabel(booking)
	}
	s.notifier.Enqueue(ctx, model.Notification{
		UserID:    req.UserID,
		Title:     "Request Rejected",
		Message:   fmt.Sprintf("Your request to join %s was rejected.", label),
		Kind:      model.NotificationKindJoinRejected,
		BookingID: req.BookingID,
	})

	return req, nil
}

func (s *joinService) ListByBooking(ctx context.Context, bookingID string) ([]*model.JoinRequest, error) {
	if _, err := s.loadBooking(ctx, bookingID); err != nil {
		return nil, err
	}

	requests, err := s.repo.FindByBooking(ctx, bookingID)
	if err != nil {
		s.cfg.Log.Error("Failed to list join requests", "booking_id", bookingID, "error", err)
		return nil, apperrors.Internal("Failed to retrieve join requests", err)
	}
	return requests, nil
}

func (s *joinService) ListPublicBookings(ctx context.Context, limit int, offset int64) ([]*model.Booking, int64, error) {
	var count int64
	var bookings []*model.Booking
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.bookings.CountPublicOpen(ctx)
		if errCount != nil {
			s.cfg.Log.Error("Failed to count public bookings", "error", errCount)
			errCount = apperrors.Internal("Failed to count public bookings", errCount)
		}
	}()

	go func() {
		defer wg.Done()
		bookings, errFind = s.bookings.FindPublicOpen(ctx, limit, offset)
		if errFind != nil {
			s.cfg.Log.Error("Failed to list public bookings", "error", errFind)
			errFind = apperrors.Internal("Failed to retrieve public bookings", errFind)
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}
	if bookings == nil {
		bookings = []*model.Booking{}
	}

	return bookings, count, nil
}

// --- Helpers ---

func (s *joinService) loadBooking(ctx context.Context, bookingID string) (*model.Booking, error) {
	if bookingID == "" {
		return nil, apperrors.InvalidInput("Booking ID cannot be empty")
	}
	booking, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, bookingserrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Booking", bookingID)
		}
		if errors.Is(err, bookingserrors.ErrInvalidID) {
			return nil, apperrors.InvalidInput("Invalid booking ID format")
		}
		return nil, apperrors.Internal("Failed to retrieve booking", err)
	}
	return booking, nil
}

func (s *joinService) loadRequest(ctx context.Context, requestID string) (*model.JoinRequest, error) {
	if requestID == "" {
		return nil, apperrors.InvalidInput("Join request ID cannot be empty")
	}
	req, err := s.repo.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, joinserrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Join request", requestID)
		}
		if errors.Is(err, joinserrors.ErrInvalidID) {
			return nil, apperrors.InvalidInput("Invalid join request ID format")
		}
		return nil, apperrors.Internal("Failed to retrieve join request", err)
	}
	return req, nil
}

func (s *joinService) loadPending(ctx context.Context, requestID string) (*model.JoinRequest, error) {
	req, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != model.JoinRequestStatusPending {
		return nil, apperrors.RequestNotPending(requestID, req.Status)
	}
	return req, nil
}

// notPending re-reads a request that lost a conditional transition to
// report the status that won.
func (s *joinService) notPending(ctx context.Context, requestID string) error {
	req, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return err
	}
	return apperrors.RequestNotPending(requestID, req.Status)
}

func requesterName(req *model.JoinRequest) string {
	if req.UserName != "" {
		return req.UserName
	}
	return req.UserID
}

func groundLabel(b *model.Booking) string {
	if b.GroundName != "" {
		return b.GroundName
	}
	return b.GroundID
}
