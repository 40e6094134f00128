package repository

import (
	"context"
	"errors"
	"fmt"
	joinserrors "letsplay/internal/joins/errors"
	"letsplay/pkg/config"
	mongotx "letsplay/pkg/db/mongo"
	"letsplay/pkg/model"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName = "Join_requests"
)

type JoinRequestRepository interface {
	// Create fails with ErrDuplicatePending if the user already has a
	// PENDING request for the booking.
	Create(ctx context.Context, req *model.JoinRequest) error
	FindByID(ctx context.Context, id string) (*model.JoinRequest, error)
	FindByBooking(ctx context.Context, bookingID string) ([]*model.JoinRequest, error)
	FindPendingByUser(ctx context.Context, bookingID string, userID string) (*model.JoinRequest, error)
	// TransitionStatus moves the request from one status to another and
	// stamps RespondedAt. It reports whether the request was in status from.
	TransitionStatus(ctx context.Context, id string, from string, to string, at time.Time) (bool, error)
}

type mongoJoinRequestRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoJoinRequestRepository(cfg *config.Config) JoinRequestRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoJoinRequestRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
	}
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if mongotx.InSession(ctx) {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func objectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: %s", joinserrors.ErrInvalidID, id)
	}
	return oid, nil
}

func (r *mongoJoinRequestRepository) Create(ctx context.Context, req *model.JoinRequest) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	req.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	result, err := r.collection.InsertOne(ctx, req)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return joinserrors.ErrDuplicatePending
		}
		return fmt.Errorf("failed to create join request: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		req.ID = oid.Hex()
	}
	return nil
}

func (r *mongoJoinRequestRepository) FindByID(ctx context.Context, id string) (*model.JoinRequest, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}

	var req model.JoinRequest
	err = r.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&req)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, joinserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find join request: %w", err)
	}
	return &req, nil
}

func (r *mongoJoinRequestRepository) FindByBooking(ctx context.Context, bookingID string) ([]*model.JoinRequest, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"booking_id": bookingID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find join requests: %w", err)
	}
	defer cursor.Close(ctx)

	requests := []*model.JoinRequest{}
	if err = cursor.All(ctx, &requests); err != nil {
		return nil, fmt.Errorf("failed to decode join requests: %w", err)
	}
	return requests, nil
}

func (r *mongoJoinRequestRepository) FindPendingByUser(ctx context.Context, bookingID string, userID string) (*model.JoinRequest, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"booking_id": bookingID,
		"user_id":    userID,
		"status":     model.JoinRequestStatusPending,
	}

	var req model.JoinRequest
	err := r.collection.FindOne(ctx, filter).Decode(&req)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, joinserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find pending join request: %w", err)
	}
	return &req, nil
}

func (r *mongoJoinRequestRepository) TransitionStatus(ctx context.Context, id string, from string, to string, at time.Time) (bool, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	oid, err := objectID(id)
	if err != nil {
		return false, err
	}

	filter := bson.M{"_id": oid, "status": from}
	update := bson.M{"$set": bson.M{"status": to, "responded_at": at.UTC()}}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to transition join request: %w", err)
	}
	return result.ModifiedCount == 1, nil
}
