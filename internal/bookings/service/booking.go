package service

import (
	"context"
	"errors"
	bookingserrors "letsplay/internal/bookings/errors"
	"letsplay/internal/bookings/repository"
	"letsplay/internal/bookings/validator"
	"letsplay/pkg/config"
	apperrors "letsplay/pkg/errors"
	"letsplay/pkg/model"
	"letsplay/pkg/sanitizer"
)

// SagaStarter hands a freshly persisted booking to the booking saga.
type SagaStarter interface {
	Start(ctx context.Context, bookingID string) error
}

type BookingService interface {
	Create(ctx context.Context, req *model.BookingCreate) (*model.Booking, error)
	GetByID(ctx context.Context, id string) (*model.Booking, error)
}

type bookingService struct {
	repo      repository.BookingRepository
	saga      SagaStarter
	validator *validator.BookingValidator
	cfg       *config.Config
}

func NewBookingService(
	repo repository.BookingRepository,
	saga SagaStarter,
	validator *validator.BookingValidator,
	cfg *config.Config,
) BookingService {
	return &bookingService{
		repo:      repo,
		saga:      saga,
		validator: validator,
		cfg:       cfg,
	}
}

// Create persists the booking as PENDING and starts its saga. A failure to
// start the saga is not reported to the caller: the booking stays PENDING
// without a run id and the recovery sweep picks it up.
func (s *bookingService) Create(ctx context.Context, req *model.BookingCreate) (*model.Booking, error) {
	if req == nil {
		return nil, apperrors.InvalidInput("Booking payload cannot be empty")
	}

	booking := newPendingBooking(req)
	if err := s.validator.Validate(booking); err != nil {
		s.cfg.Log.Warn("Booking validation failed", "error", err)
		return nil, apperrors.Validation("Booking validation failed", map[string]any{"error": err.Error()})
	}

	if err := s.repo.Create(ctx, booking); err != nil {
		s.cfg.Log.Error("Failed to create booking", "error", err)
		return nil, apperrors.Internal("Failed to create booking", err)
	}
	log := s.cfg.Log.With("booking_id", booking.ID)
	log.Info("Booking created",
		"user_id", booking.UserID,
		"ground_id", booking.GroundID,
		"start_time", booking.StartTime,
		"is_public", booking.Public(),
	)

	if err := s.saga.Start(ctx, booking.ID); err != nil {
		log.Warn("Failed to start booking saga, recovery will retry", "error", err)
	}
	return booking, nil
}

func (s *bookingService) GetByID(ctx context.Context, id string) (*model.Booking, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Booking ID cannot be empty")
	}

	booking, err := s.repo.FindByID(ctx, id)
	switch {
	case err == nil:
		return booking, nil
	case errors.Is(err, bookingserrors.ErrNotFound):
		return nil, apperrors.NotFoundWithID("Booking", id)
	case errors.Is(err, bookingserrors.ErrInvalidID):
		return nil, apperrors.InvalidInput("Invalid booking ID format")
	default:
		return nil, apperrors.Internal("Failed to retrieve booking", err)
	}
}

// newPendingBooking sanitizes req into a PENDING booking with the host as its
// only participant. Private bookings are capped at the host.
func newPendingBooking(req *model.BookingCreate) *model.Booking {
	public := req.IsPublic != nil && *req.IsPublic
	b := &model.Booking{
		UserID:             sanitizer.SanitizeRefID(req.UserID),
		GroundID:           sanitizer.SanitizeRefID(req.GroundID),
		GroundName:         sanitizer.SanitizeDisplayName(req.GroundName),
		StartTime:          req.StartTime.UTC(),
		EndTime:            req.EndTime.UTC(),
		Status:             model.BookingStatusPending,
		IsPublic:           &public,
		MaxParticipants:    req.MaxParticipants,
		JoinedParticipants: 1,
		TotalAmount:        req.TotalAmount,
	}
	if !public || b.MaxParticipants <= 0 {
		b.MaxParticipants = 1
	}
	return b
}
