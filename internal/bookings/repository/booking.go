package repository

import (
	"context"
	"errors"
	"fmt"
	bookingserrors "letsplay/internal/bookings/errors"
	"letsplay/pkg/config"
	mongotx "letsplay/pkg/db/mongo"
	"letsplay/pkg/model"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const CollectionName = "Bookings"

type BookingRepository interface {
	Create(ctx context.Context, booking *model.Booking) error
	FindByID(ctx context.Context, id string) (*model.Booking, error)
	// Save replaces the stored booking with the given one.
	Save(ctx context.Context, booking *model.Booking) error
	// FindConflicting returns CONFIRMED bookings on groundID whose window
	// overlaps [start, end), excluding excludeID.
	FindConflicting(ctx context.Context, groundID string, start, end time.Time, excludeID string) ([]*model.Booking, error)
	// SetSagaRunID sets the run id only when none is set yet.
	SetSagaRunID(ctx context.Context, id string, runID string) (bool, error)
	// TransitionStatus moves the booking to status to if its current status is
	// one of from. It reports whether a transition happened.
	TransitionStatus(ctx context.Context, id string, from []string, to string) (bool, error)
	SetPaymentSettled(ctx context.Context, id string) error
	// MarkFailed moves a PENDING booking to FAILED with the given reason.
	MarkFailed(ctx context.Context, id string, reason string) (bool, error)
	// IncrementJoinedIfAvailable adds one participant if the booking is public,
	// confirmed and below capacity, returning the updated booking. It returns
	// ErrNotFound when no booking satisfied those conditions.
	IncrementJoinedIfAvailable(ctx context.Context, id string) (*model.Booking, error)
	FindPublicOpen(ctx context.Context, limit int, offset int64) ([]*model.Booking, error)
	CountPublicOpen(ctx context.Context) (int64, error)
	// FindOrphanedPending returns PENDING bookings created before olderThan
	// that never had a saga run attached.
	FindOrphanedPending(ctx context.Context, olderThan time.Time, limit int) ([]*model.Booking, error)
	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

type mongoBookingRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

func NewMongoBookingRepository(cfg *config.Config) BookingRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoBookingRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

// withTimeout bounds ctx by timeout unless ctx belongs to a transaction,
// which already carries its own deadline.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if mongotx.InSession(ctx) {
		return ctx, func() {}
	}

	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < timeout {
		return context.WithDeadline(ctx, deadline)
	}
	return context.WithTimeout(ctx, timeout)
}

func objectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, id)
	}
	return oid, nil
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func (r *mongoBookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	booking.CreatedAt = now()
	booking.UpdatedAt = booking.CreatedAt
	res, err := r.collection.InsertOne(ctx, booking)
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		booking.ID = oid.Hex()
	}
	return nil
}

func (r *mongoBookingRepository) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var booking model.Booking
	if err := r.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&booking); err != nil {
		return nil, notFound(err, "find booking")
	}
	return &booking, nil
}

func (r *mongoBookingRepository) Save(ctx context.Context, booking *model.Booking) error {
	oid, err := objectID(booking.ID)
	if err != nil {
		return err
	}

	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	booking.UpdatedAt = now()
	doc := *booking
	doc.ID = ""
	if _, err := r.collection.ReplaceOne(ctx, bson.M{"_id": oid}, doc, options.Replace().SetUpsert(true)); err != nil {
		return fmt.Errorf("save booking %s: %w", booking.ID, err)
	}
	return nil
}

func (r *mongoBookingRepository) FindConflicting(ctx context.Context, groundID string, start, end time.Time, excludeID string) ([]*model.Booking, error) {
	filter := bson.M{
		"ground_id":  groundID,
		"status":     model.BookingStatusConfirmed,
		"start_time": bson.M{"$lt": end},
		"end_time":   bson.M{"$gt": start},
	}
	if excludeID != "" {
		oid, err := objectID(excludeID)
		if err != nil {
			return nil, err
		}
		filter["_id"] = bson.M{"$ne": oid}
	}
	return r.list(ctx, "conflicting", filter, options.Find().SetSort(bson.D{{Key: "start_time", Value: 1}}))
}

// withoutRun matches bookings that have no saga run attached yet.
var withoutRun = bson.A{
	bson.M{"saga_run_id": bson.M{"$exists": false}},
	bson.M{"saga_run_id": ""},
}

func (r *mongoBookingRepository) SetSagaRunID(ctx context.Context, id string, runID string) (bool, error) {
	return r.updateIf(ctx, id, bson.M{"$or": withoutRun}, bson.M{"saga_run_id": runID})
}

func (r *mongoBookingRepository) TransitionStatus(ctx context.Context, id string, from []string, to string) (bool, error) {
	return r.updateIf(ctx, id, bson.M{"status": bson.M{"$in": from}}, bson.M{"status": to})
}

func (r *mongoBookingRepository) SetPaymentSettled(ctx context.Context, id string) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}

	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": oid}, setWithTimestamp(bson.M{"payment_settled": true}))
	if err != nil {
		return fmt.Errorf("settle payment for booking %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return bookingserrors.ErrNotFound
	}
	return nil
}

func (r *mongoBookingRepository) MarkFailed(ctx context.Context, id string, reason string) (bool, error) {
	return r.updateIf(ctx, id,
		bson.M{"status": model.BookingStatusPending},
		bson.M{"status": model.BookingStatusFailed, "failure_reason": reason},
	)
}

// hasRoom compares the two counters inside the document, so the capacity
// check runs in the same atomic operation as whatever update uses it.
var hasRoom = bson.M{"$lt": bson.A{"$joined_participants", "$max_participants"}}

func (r *mongoBookingRepository) IncrementJoinedIfAvailable(ctx context.Context, id string) (*model.Booking, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{
		"_id":       oid,
		"is_public": true,
		"status":    model.BookingStatusConfirmed,
		"$expr":     hasRoom,
	}
	update := setWithTimestamp(nil)
	update["$inc"] = bson.M{"joined_participants": 1}

	var booking model.Booking
	err = r.collection.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&booking)
	if err != nil {
		return nil, notFound(err, "increment joined participants")
	}
	return &booking, nil
}

func publicOpenFilter() bson.M {
	return bson.M{
		"is_public": true,
		"status":    model.BookingStatusConfirmed,
		"$expr":     hasRoom,
	}
}

func (r *mongoBookingRepository) FindPublicOpen(ctx context.Context, limit int, offset int64) ([]*model.Booking, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "start_time", Value: 1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)
	return r.list(ctx, "public", publicOpenFilter(), opts)
}

func (r *mongoBookingRepository) CountPublicOpen(ctx context.Context) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	n, err := r.collection.CountDocuments(ctx, publicOpenFilter())
	if err != nil {
		return 0, fmt.Errorf("count public bookings: %w", err)
	}
	return n, nil
}

func (r *mongoBookingRepository) FindOrphanedPending(ctx context.Context, olderThan time.Time, limit int) ([]*model.Booking, error) {
	filter := bson.M{
		"status":     model.BookingStatusPending,
		"created_at": bson.M{"$lt": olderThan},
		"$or":        withoutRun,
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}).SetLimit(int64(limit))
	return r.list(ctx, "orphaned", filter, opts)
}

func (r *mongoBookingRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}

func (r *mongoBookingRepository) list(ctx context.Context, kind string, filter bson.M, opts *options.FindOptions) ([]*model.Booking, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	cur, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find %s bookings: %w", kind, err)
	}
	defer cur.Close(ctx)

	var bookings []*model.Booking
	if err := cur.All(ctx, &bookings); err != nil {
		return nil, fmt.Errorf("decode %s bookings: %w", kind, err)
	}
	return bookings, nil
}

// updateIf applies set to booking id only while guard still matches. It
// reports whether the document changed.
func (r *mongoBookingRepository) updateIf(ctx context.Context, id string, guard, set bson.M) (bool, error) {
	oid, err := objectID(id)
	if err != nil {
		return false, err
	}

	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{"_id": oid}
	for k, v := range guard {
		filter[k] = v
	}
	res, err := r.collection.UpdateOne(ctx, filter, setWithTimestamp(set))
	if err != nil {
		return false, fmt.Errorf("update booking %s: %w", id, err)
	}
	return res.ModifiedCount == 1, nil
}

func setWithTimestamp(fields bson.M) bson.M {
	set := bson.M{"updated_at": now()}
	for k, v := range fields {
		set[k] = v
	}
	return bson.M{"$set": set}
}

func notFound(err error, op string) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return bookingserrors.ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
