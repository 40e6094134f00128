package mongo

import (
	"context"
	"fmt"
	bookingsrepo "letsplay/internal/bookings/repository"
	joinsrepo "letsplay/internal/joins/repository"
	"letsplay/internal/migrations/mongo/validators"
	notificationsrepo "letsplay/internal/notifications/repository"
	sagarepo "letsplay/internal/saga/repository"
	"letsplay/pkg/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	BookingsIndexes = []mongo.IndexModel{
		{Keys: bson.D{
			{Key: "ground_id", Value: 1},
			{Key: "start_time", Value: 1},
			{Key: "status", Value: 1},
		}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "is_public", Value: 1}, {Key: "status", Value: 1}, {Key: "start_time", Value: 1}}},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
	}

	GroundReservationsIndexes = []mongo.IndexModel{
		{Keys: bson.D{{Key: "booking_id", Value: 1}}},
		{Keys: bson.D{{Key: "ground_id", Value: 1}, {Key: "start_time", Value: 1}}},
	}

	// One pending request per user and booking; decided requests do not
	// block a new one.
	JoinRequestsIndexes = []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "booking_id", Value: 1}, {Key: "user_id", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"status": "PENDING"}).
				SetName("uniq_pending_request"),
		},
		{Keys: bson.D{{Key: "booking_id", Value: 1}, {Key: "status", Value: 1}, {Key: "created_at", Value: 1}}},
	}

	SagaRunsIndexes = []mongo.IndexModel{
		{Keys: bson.D{{Key: "state", Value: 1}, {Key: "updated_at", Value: 1}}},
		{Keys: bson.D{{Key: "booking_id", Value: 1}}},
	}

	// Expired leases are also taken over on acquire; the TTL index only
	// keeps the collection small.
	SagaLocksIndexes = []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(3600),
		},
	}

	NotificationsIndexes = []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
	}
)

type CollectionDef struct {
	Indexes   []mongo.IndexModel
	Validator bson.M
}

// Collections lists every collection the services use with its indexes and
// optional JSON schema validator.
func Collections() map[string]CollectionDef {
	return map[string]CollectionDef{
		bookingsrepo.CollectionName: {
			Indexes:   BookingsIndexes,
			Validator: validators.BookingValidator,
		},
		bookingsrepo.ReservationCollectionName: {
			Indexes: GroundReservationsIndexes,
		},
		joinsrepo.CollectionName: {
			Indexes:   JoinRequestsIndexes,
			Validator: validators.JoinRequestValidator,
		},
		sagarepo.RunsCollectionName: {
			Indexes:   SagaRunsIndexes,
			Validator: validators.SagaRunValidator,
		},
		sagarepo.LocksCollectionName: {
			Indexes: SagaLocksIndexes,
		},
		notificationsrepo.CollectionName: {
			Indexes: NotificationsIndexes,
		},
	}
}

func RunMigration(ctx context.Context, client *mongo.Client, dbName string, log *logger.Logger) error {
	db := client.Database(dbName)
	log.Info("Running Mongo migrations", "database", dbName)

	for name, def := range Collections() {
		if err := ensureCollection(ctx, db, name, def.Validator, log); err != nil {
			return fmt.Errorf("failed to ensure collection %s: %w", name, err)
		}
		if err := ensureIndexes(ctx, db, name, def.Indexes, log); err != nil {
			return fmt.Errorf("failed to ensure indexes for %s: %w", name, err)
		}
	}

	log.Info("All migrations applied successfully")
	return nil
}

func ensureCollection(ctx context.Context, db *mongo.Database, name string, validator bson.M, log *logger.Logger) error {
	existing, err := db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return err
	}

	if len(existing) == 0 {
		log.Info("Creating collection", "collection", name)
		opts := options.CreateCollection()
		if validator != nil {
			opts.SetValidator(validator)
		}
		if err := db.CreateCollection(ctx, name, opts); err != nil {
			return fmt.Errorf("failed creating %s: %w", name, err)
		}
		return nil
	}

	if validator == nil {
		return nil
	}
	log.Info("Collection exists, updating validator", "collection", name)
	command := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
	}
	if err := db.RunCommand(ctx, command).Err(); err != nil {
		log.Warn("Failed updating validator", "collection", name, "error", err)
	}
	return nil
}

func ensureIndexes(ctx context.Context, db *mongo.Database, name string, models []mongo.IndexModel, log *logger.Logger) error {
	if len(models) == 0 {
		return nil
	}
	if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
		return err
	}
	log.Info("Ensured indexes", "collection", name, "count", len(models))
	return nil
}
