package repository

import (
	"context"
	"errors"
	"fmt"
	sagaerrors "letsplay/internal/saga/errors"
	"letsplay/pkg/config"
	mongotx "letsplay/pkg/db/mongo"
	"letsplay/pkg/model"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	RunsCollectionName = "Saga_runs"
)

type SagaRunRepository interface {
	// Create inserts run. It reports false without error when a run with
	// the same id already exists.
	Create(ctx context.Context, run *model.SagaRun) (bool, error)
	FindByID(ctx context.Context, id string) (*model.SagaRun, error)
	RecordStepStarted(ctx context.Context, id string, step string) error
	RecordAttempt(ctx context.Context, id string, event model.SagaEvent) error
	// RecordStepCompleted advances CompletedSteps from index to index+1.
	// It fails with ErrProgressConflict when the run is not at index.
	RecordStepCompleted(ctx context.Context, id string, index int, event model.SagaEvent) error
	// Finish moves a RUNNING run into a terminal state.
	Finish(ctx context.Context, id string, state string, reason string) (bool, error)
	// FindStale returns RUNNING runs not updated since olderThan.
	FindStale(ctx context.Context, olderThan time.Time, limit int) ([]*model.SagaRun, error)
}

type mongoSagaRunRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoSagaRunRepository(cfg *config.Config) SagaRunRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoSagaRunRepository{
		cfg:        cfg,
		collection: db.Collection(RunsCollectionName),
	}
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if mongotx.InSession(ctx) {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func (r *mongoSagaRunRepository) Create(ctx context.Context, run *model.SagaRun) (bool, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	run.CreatedAt = now()
	run.UpdatedAt = run.CreatedAt
	if run.History == nil {
		run.History = []model.SagaEvent{}
	}

	_, err := r.collection.InsertOne(ctx, run)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create saga run: %w", err)
	}
	return true, nil
}

func (r *mongoSagaRunRepository) FindByID(ctx context.Context, id string) (*model.SagaRun, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var run model.SagaRun
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&run)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, sagaerrors.ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to find saga run: %w", err)
	}
	return &run, nil
}

func (r *mongoSagaRunRepository) RecordStepStarted(ctx context.Context, id string, step string) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	update := bson.M{"$set": bson.M{
		"current_step": step,
		"attempts":     0,
		"updated_at":   now(),
	}}
	return r.updateRunning(ctx, id, update)
}

func (r *mongoSagaRunRepository) RecordAttempt(ctx context.Context, id string, event model.SagaEvent) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	update := bson.M{
		"$set": bson.M{
			"attempts":   event.Attempt,
			"last_error": event.Error,
			"updated_at": now(),
		},
		"$push": bson.M{"history": event},
	}
	return r.updateRunning(ctx, id, update)
}

func (r *mongoSagaRunRepository) updateRunning(ctx context.Context, id string, update bson.M) error {
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id, "state": model.SagaRunStateRunning}, update)
	if err != nil {
		return fmt.Errorf("failed to update saga run: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("%w: run %s is not running", sagaerrors.ErrProgressConflict, id)
	}
	return nil
}

func (r *mongoSagaRunRepository) RecordStepCompleted(ctx context.Context, id string, index int, event model.SagaEvent) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{
		"_id":             id,
		"state":           model.SagaRunStateRunning,
		"completed_steps": index,
	}
	update := bson.M{
		"$set": bson.M{
			"completed_steps": index + 1,
			"attempts":        event.Attempt,
			"last_error":      "",
			"updated_at":      now(),
		},
		"$push": bson.M{"history": event},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to record step completion: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("%w: run %s not at step %d", sagaerrors.ErrProgressConflict, id, index)
	}
	return nil
}

func (r *mongoSagaRunRepository) Finish(ctx context.Context, id string, state string, reason string) (bool, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	finishedAt := now()
	set := bson.M{
		"state":       state,
		"updated_at":  finishedAt,
		"finished_at": finishedAt,
	}
	if reason != "" {
		set["failure_reason"] = reason
	}

	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "state": model.SagaRunStateRunning},
		bson.M{"$set": set},
	)
	if err != nil {
		return false, fmt.Errorf("failed to finish saga run: %w", err)
	}
	return result.ModifiedCount == 1, nil
}

func (r *mongoSagaRunRepository) FindStale(ctx context.Context, olderThan time.Time, limit int) ([]*model.SagaRun, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"state":      model.SagaRunStateRunning,
		"updated_at": bson.M{"$lt": olderThan},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "updated_at", Value: 1}}).
		SetLimit(int64(limit)).
		SetProjection(bson.M{"history": 0})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find stale saga runs: %w", err)
	}
	defer cursor.Close(ctx)

	var runs []*model.SagaRun
	if err = cursor.All(ctx, &runs); err != nil {
		return nil, fmt.Errorf("failed to decode saga runs: %w", err)
	}
	return runs, nil
}
