package repository

import (
	"context"
	"errors"
	"fmt"
	bookingserrors "letsplay/internal/bookings/errors"
	"letsplay/pkg/config"
	"letsplay/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	ReservationCollectionName = "Ground_reservations"
)

// GroundReservationRepository owns ground slots. A slot belongs to at most
// one booking at a time; the first writer wins.
type GroundReservationRepository interface {
	// Reserve inserts the reservation. It returns ErrSlotHeld when the slot
	// already belongs to some booking, including the same one.
	Reserve(ctx context.Context, reservation *model.GroundReservation) error
	FindBySlot(ctx context.Context, key string) (*model.GroundReservation, error)
	// Release deletes the slot only while it is held by bookingID.
	Release(ctx context.Context, key string, bookingID string) (bool, error)
	// TakeOver reassigns a slot from one booking to another. Used when the
	// holder has been FAILED and released its claim.
	TakeOver(ctx context.Context, key string, fromBookingID string, toBookingID string) (bool, error)
}

type mongoGroundReservationRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoGroundReservationRepository(cfg *config.Config) GroundReservationRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoGroundReservationRepository{
		cfg:        cfg,
		collection: db.Collection(ReservationCollectionName),
	}
}

func (r *mongoGroundReservationRepository) Reserve(ctx context.Context, reservation *model.GroundReservation) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if reservation.ID == "" {
		reservation.ID = model.SlotKey(reservation.GroundID, reservation.StartTime, reservation.EndTime)
	}
	reservation.CreatedAt = now()

	_, err := r.collection.InsertOne(ctx, reservation)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return bookingserrors.ErrSlotHeld
		}
		return fmt.Errorf("failed to reserve ground slot: %w", err)
	}
	return nil
}

func (r *mongoGroundReservationRepository) FindBySlot(ctx context.Context, key string) (*model.GroundReservation, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var reservation model.GroundReservation
	err := r.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&reservation)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, bookingserrors.ErrReservationNotFound
		}
		return nil, fmt.Errorf("failed to find ground reservation: %w", err)
	}
	return &reservation, nil
}

func (r *mongoGroundReservationRepository) Release(ctx context.Context, key string, bookingID string) (bool, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": key, "booking_id": bookingID})
	if err != nil {
		return false, fmt.Errorf("failed to release ground slot: %w", err)
	}
	return result.DeletedCount == 1, nil
}

func (r *mongoGroundReservationRepository) TakeOver(ctx context.Context, key string, fromBookingID string, toBookingID string) (bool, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{"_id": key, "booking_id": fromBookingID}
	update := bson.M{"$set": bson.M{"booking_id": toBookingID, "created_at": now()}}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to take over ground slot: %w", err)
	}
	return result.ModifiedCount == 1, nil
}
