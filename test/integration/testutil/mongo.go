package testutil

import (
	"context"
	"testing"
	"time"

	bookingsrepo "letsplay/internal/bookings/repository"
	migrations "letsplay/internal/migrations/mongo"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	DefaultMongoURI     = "mongodb://localhost:27017"
	DefaultDatabaseName = "letsplay_test"

	BookingsCollection = bookingsrepo.CollectionName
)

// MongoHelper talks to the service's database directly so tests can assert
// on state the API does not expose.
type MongoHelper struct {
	Client   *mongo.Client
	Database *mongo.Database
}

func withTimeout(d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), d)
}

func NewMongoHelper(t *testing.T, uri, dbName string) *MongoHelper {
	t.Helper()
	ctx, cancel := withTimeout(10 * time.Second)
	defer cancel()

	c, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		t.Fatalf("connect to %s: %v", uri, err)
	}
	if err := c.Ping(ctx, nil); err != nil {
		t.Fatalf("ping %s: %v", uri, err)
	}
	return &MongoHelper{Client: c, Database: c.Database(dbName)}
}

func (m *MongoHelper) Close(t *testing.T) {
	t.Helper()
	ctx, cancel := withTimeout(5 * time.Second)
	defer cancel()
	if err := m.Client.Disconnect(ctx); err != nil {
		t.Logf("disconnect: %v", err)
	}
}

// Reset empties every collection the migration job manages. Documents are
// deleted rather than dropping collections so indexes and validators stay.
func (m *MongoHelper) Reset(t *testing.T) {
	t.Helper()
	ctx, cancel := withTimeout(10 * time.Second)
	defer cancel()

	for name := range migrations.Collections() {
		if _, err := m.Database.Collection(name).DeleteMany(ctx, bson.M{}); err != nil {
			t.Fatalf("reset %s: %v", name, err)
		}
	}
}

func (m *MongoHelper) CountDocuments(t *testing.T, collection string, filter bson.M) int64 {
	t.Helper()
	ctx, cancel := withTimeout(5 * time.Second)
	defer cancel()

	if filter == nil {
		filter = bson.M{}
	}
	n, err := m.Database.Collection(collection).CountDocuments(ctx, filter)
	if err != nil {
		t.Fatalf("count %s: %v", collection, err)
	}
	return n
}
