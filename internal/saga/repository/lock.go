package repository

import (
	"context"
	"errors"
	"fmt"
	sagaerrors "letsplay/internal/saga/errors"
	"letsplay/pkg/config"
	"letsplay/pkg/model"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	LocksCollectionName = "Saga_locks"

	redisLockPrefix = "saga:lock:"
)

// RunLocker hands out leases that serialize work on one saga run across
// workers. A lease expires after its ttl unless extended, so a crashed worker
// cannot block a run forever.
type RunLocker interface {
	Acquire(ctx context.Context, key string, owner string, ttl time.Duration) (bool, error)
	Extend(ctx context.Context, key string, owner string, ttl time.Duration) error
	Release(ctx context.Context, key string, owner string) error
}

// NewRunLocker picks the lease backend configured by SAGA_LOCK_BACKEND.
func NewRunLocker(cfg *config.Config) RunLocker {
	if cfg.SagaLockBackend == config.LockBackendRedis {
		return NewRedisRunLocker(cfg.Client.Redis)
	}
	return NewMongoRunLocker(cfg)
}

type mongoRunLocker struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoRunLocker(cfg *config.Config) RunLocker {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoRunLocker{
		cfg:        cfg,
		collection: db.Collection(LocksCollectionName),
	}
}

func (l *mongoRunLocker) Acquire(ctx context.Context, key string, owner string, ttl time.Duration) (bool, error) {
	ctx, cancel := withTimeout(ctx, l.cfg.WriteTimeout)
	defer cancel()

	at := now()
	lock := &model.SagaLock{
		ID:        key,
		Owner:     owner,
		ExpiresAt: at.Add(ttl),
		CreatedAt: at,
	}

	_, err := l.collection.InsertOne(ctx, lock)
	if err == nil {
		return true, nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return false, fmt.Errorf("failed to acquire saga lock: %w", err)
	}

	// Held: take it over only if the current lease has lapsed.
	result, err := l.collection.UpdateOne(ctx,
		bson.M{"_id": key, "expires_at": bson.M{"$lt": at}},
		bson.M{"$set": bson.M{"owner": owner, "expires_at": at.Add(ttl), "created_at": at}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to take over saga lock: %w", err)
	}
	return result.ModifiedCount == 1, nil
}

func (l *mongoRunLocker) Extend(ctx context.Context, key string, owner string, ttl time.Duration) error {
	ctx, cancel := withTimeout(ctx, l.cfg.WriteTimeout)
	defer cancel()

	result, err := l.collection.UpdateOne(ctx,
		bson.M{"_id": key, "owner": owner},
		bson.M{"$set": bson.M{"expires_at": now().Add(ttl)}},
	)
	if err != nil {
		return fmt.Errorf("failed to extend saga lock: %w", err)
	}
	if result.MatchedCount == 0 {
		return sagaerrors.ErrLeaseNotHeld
	}
	return nil
}

func (l *mongoRunLocker) Release(ctx context.Context, key string, owner string) error {
	ctx, cancel := withTimeout(ctx, l.cfg.WriteTimeout)
	defer cancel()

	_, err := l.collection.DeleteOne(ctx, bson.M{"_id": key, "owner": owner})
	if err != nil {
		return fmt.Errorf("failed to release saga lock: %w", err)
	}
	return nil
}

var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

	extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)
)

type redisRunLocker struct {
	client *redis.Client
}

func NewRedisRunLocker(client *redis.Client) RunLocker {
	return &redisRunLocker{client: client}
}

func (l *redisRunLocker) Acquire(ctx context.Context, key string, owner string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, redisLockPrefix+key, owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire saga lock: %w", err)
	}
	return ok, nil
}

func (l *redisRunLocker) Extend(ctx context.Context, key string, owner string, ttl time.Duration) error {
	n, err := extendScript.Run(ctx, l.client, []string{redisLockPrefix + key}, owner, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("failed to extend saga lock: %w", err)
	}
	if n == 0 {
		return sagaerrors.ErrLeaseNotHeld
	}
	return nil
}

func (l *redisRunLocker) Release(ctx context.Context, key string, owner string) error {
	err := releaseScript.Run(ctx, l.client, []string{redisLockPrefix + key}, owner).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to release saga lock: %w", err)
	}
	return nil
}
