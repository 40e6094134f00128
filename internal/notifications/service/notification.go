package service

import (
	"context"
	"letsplay/internal/notifications/repository"
	"letsplay/pkg/config"
	apperrors "letsplay/pkg/errors"
	"letsplay/pkg/model"
	"letsplay/pkg/sanitizer"
	"sync"
	"time"
)

const (
	routingKeyPrefix = "notification."
	deliveryTimeout  = 5 * time.Second
)

// Notifier delivers user notifications. Delivery is best effort: failures are
// logged and never reach the caller, whose own operation has already
// succeeded.
type Notifier interface {
	Enqueue(ctx context.Context, n model.Notification)
}

// Publisher fans notifications out to push channels.
type Publisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}

type NotificationService interface {
	Notifier
	ListByUser(ctx context.Context, userID string, limit int, offset int64) ([]*model.Notification, int64, error)
}

type notificationService struct {
	repo      repository.NotificationRepository
	publisher Publisher
	cfg       *config.Config
}

// NewNotificationService wires the store and an optional publisher; a nil
// publisher only persists.
func NewNotificationService(repo repository.NotificationRepository, publisher Publisher, cfg *config.Config) NotificationService {
	return &notificationService{
		repo:      repo,
		publisher: publisher,
		cfg:       cfg,
	}
}

func (s *notificationService) Enqueue(ctx context.Context, n model.Notification) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliveryTimeout)
	defer cancel()

	n.ID = ""
	n.CreatedAt = time.Time{}
	if err := s.repo.Create(ctx, &n); err != nil {
		s.cfg.Log.Error("Failed to store notification",
			"user_id", n.UserID,
			"kind", n.Kind,
			"booking_id", n.BookingID,
			"error", err,
		)
		return
	}

	if s.publisher != nil {
		if err := s.publisher.PublishJSON(ctx, routingKeyPrefix+kindKey(n.Kind), n); err != nil {
			s.cfg.Log.Warn("Failed to publish notification",
				"notification_id", n.ID,
				"user_id", n.UserID,
				"error", err,
			)
			return
		}
	}

	s.cfg.Log.Debug("Notification delivered",
		"notification_id", n.ID,
		"user_id", n.UserID,
		"kind", n.Kind,
	)
}

func kindKey(kind string) string {
	if kind == "" {
		return "generic"
	}
	return kind
}

func (s *notificationService) ListByUser(ctx context.Context, userID string, limit int, offset int64) ([]*model.Notification, int64, error) {
	userID = sanitizer.SanitizeRefID(userID)
	if userID == "" {
		return nil, 0, apperrors.InvalidInput("User ID cannot be empty")
	}

	var count int64
	var notifications []*model.Notification
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.repo.CountByUser(ctx, userID)
		if errCount != nil {
			s.cfg.Log.Error("Failed to count notifications", "user_id", userID, "error", errCount)
			errCount = apperrors.Internal("Failed to count notifications", errCount)
		}
	}()

	go func() {
		defer wg.Done()
		notifications, errFind = s.repo.FindByUser(ctx, userID, limit, offset)
		if errFind != nil {
			s.cfg.Log.Error("Failed to list notifications", "user_id", userID, "error", errFind)
			errFind = apperrors.Internal("Failed to retrieve notifications", errFind)
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}

	return notifications, count, nil
}
