package fakes

import (
	"context"
	"sort"
	"time"

	joinserrors "letsplay/internal/joins/errors"
	"letsplay/internal/joins/repository"
	notificationsrepo "letsplay/internal/notifications/repository"
	"letsplay/pkg/model"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type joinRepo struct {
	s *Store
}

func (s *Store) JoinRequests() repository.JoinRequestRepository {
	return &joinRepo{s: s}
}

func cloneJoinRequest(req *model.JoinRequest) *model.JoinRequest {
	c := *req
	if req.RespondedAt != nil {
		t := *req.RespondedAt
		c.RespondedAt = &t
	}
	return &c
}

// PutJoinRequest stores req directly, assigning an id when it has none.
func (s *Store) PutJoinRequest(req *model.JoinRequest) *model.JoinRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	if req.ID == "" {
		req.ID = primitive.NewObjectID().Hex()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	s.joinRequests[req.ID] = cloneJoinRequest(req)
	return cloneJoinRequest(req)
}

// JoinRequest returns a copy of the stored request or nil.
func (s *Store) JoinRequest(id string) *model.JoinRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	if req, ok := s.joinRequests[id]; ok {
		return cloneJoinRequest(req)
	}
	return nil
}

func (r *joinRepo) Create(ctx context.Context, req *model.JoinRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("joins.Create"); err != nil {
		return err
	}

	if req.Status == model.JoinRequestStatusPending {
		for _, existing := range r.s.joinRequests {
			if existing.BookingID == req.BookingID && existing.UserID == req.UserID && existing.Status == model.JoinRequestStatusPending {
				return joinserrors.ErrDuplicatePending
			}
		}
	}

	req.ID = primitive.NewObjectID().Hex()
	req.CreatedAt = time.Now().UTC()
	r.s.joinRequests[req.ID] = cloneJoinRequest(req)
	id := req.ID
	r.s.record(ctx, func() { delete(r.s.joinRequests, id) })
	return nil
}

func (r *joinRepo) FindByID(ctx context.Context, id string) (*model.JoinRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("joins.FindByID"); err != nil {
		return nil, err
	}

	if !primitive.IsValidObjectID(id) {
		return nil, joinserrors.ErrInvalidID
	}
	req, ok := r.s.joinRequests[id]
	if !ok {
		return nil, joinserrors.ErrNotFound
	}
	return cloneJoinRequest(req), nil
}

func (r *joinRepo) FindByBooking(ctx context.Context, bookingID string) ([]*model.JoinRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("joins.FindByBooking"); err != nil {
		return nil, err
	}

	out := []*model.JoinRequest{}
	for _, req := range r.s.joinRequests {
		if req.BookingID == bookingID {
			out = append(out, cloneJoinRequest(req))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *joinRepo) FindPendingByUser(ctx context.Context, bookingID string, userID string) (*model.JoinRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("joins.FindPendingByUser"); err != nil {
		return nil, err
	}

	for _, req := range r.s.joinRequests {
		if req.BookingID == bookingID && req.UserID == userID && req.Status == model.JoinRequestStatusPending {
			return cloneJoinRequest(req), nil
		}
	}
	return nil, joinserrors.ErrNotFound
}

func (r *joinRepo) TransitionStatus(ctx context.Context, id string, from string, to string, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("joins.TransitionStatus"); err != nil {
		return false, err
	}

	if !primitive.IsValidObjectID(id) {
		return false, joinserrors.ErrInvalidID
	}
	req, ok := r.s.joinRequests[id]
	if !ok || req.Status != from {
		return false, nil
	}

	prev := cloneJoinRequest(req)
	req.Status = to
	respondedAt := at.UTC()
	req.RespondedAt = &respondedAt
	r.s.record(ctx, func() { r.s.joinRequests[id] = prev })
	return true, nil
}

type notificationRepo struct {
	s *Store
}

func (s *Store) Notifications() notificationsrepo.NotificationRepository {
	return &notificationRepo{s: s}
}

// NotificationsFor returns the stored notifications of userID, oldest first.
func (s *Store) NotificationsFor(userID string) []model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Notification
	for _, n := range s.notifications {
		if n.UserID == userID {
			out = append(out, *n)
		}
	}
	return out
}

func (r *notificationRepo) Create(ctx context.Context, n *model.Notification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("notifications.Create"); err != nil {
		return err
	}

	n.ID = primitive.NewObjectID().Hex()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	c := *n
	r.s.notifications = append(r.s.notifications, &c)
	return nil
}

func (r *notificationRepo) FindByUser(ctx context.Context, userID string, limit int, offset int64) ([]*model.Notification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("notifications.FindByUser"); err != nil {
		return nil, err
	}

	var mine []*model.Notification
	for i := len(r.s.notifications) - 1; i >= 0; i-- {
		if n := r.s.notifications[i]; n.UserID == userID {
			mine = append(mine, n)
		}
	}

	out := []*model.Notification{}
	for i := int(offset); i < len(mine) && len(out) < limit; i++ {
		c := *mine[i]
		out = append(out, &c)
	}
	return out, nil
}

func (r *notificationRepo) CountByUser(ctx context.Context, userID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("notifications.CountByUser"); err != nil {
		return 0, err
	}

	var count int64
	for _, n := range r.s.notifications {
		if n.UserID == userID {
			count++
		}
	}
	return count, nil
}
