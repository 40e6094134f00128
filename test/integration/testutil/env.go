package testutil

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"letsplay/pkg/client"
)

const DefaultHealthCheckTimeout = 30 * time.Second

// TestEnv points the suite at a running bookings service and its database.
type TestEnv struct {
	MongoURI     string
	DatabaseName string
	ServerURL    string
}

func NewTestEnv() *TestEnv {
	return &TestEnv{
		MongoURI:     getEnv("TEST_MONGO_URI", DefaultMongoURI),
		DatabaseName: getEnv("TEST_DB_NAME", DefaultDatabaseName),
		ServerURL:    os.Getenv("TEST_SERVER_URL"),
	}
}

// Setup skips the test unless TEST_SERVER_URL is set, then cleans the
// database and waits for the service to report healthy.
func (e *TestEnv) Setup(t *testing.T) (*MongoHelper, *client.LetsPlayClient) {
	t.Helper()
	if e.ServerURL == "" {
		t.Skip("TEST_SERVER_URL not set, skipping integration test")
	}

	mongo := NewMongoHelper(t, e.MongoURI, e.DatabaseName)
	mongo.Reset(t)

	api := client.NewLetsPlayClient(e.ServerURL)
	if err := api.HTTP().WaitForHealthy(context.Background(), DefaultHealthCheckTimeout); err != nil {
		t.Fatalf("service not healthy: %v", err)
	}

	return mongo, api
}

func (e *TestEnv) Cleanup(t *testing.T, mongo *MongoHelper) {
	t.Helper()

	if mongo == nil {
		return
	}
	mongo.Reset(t)
	mongo.Close(t)
}

func AssertStatusCode(t *testing.T, resp *client.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Fatalf("want %d %s, got %s", expected, http.StatusText(expected), resp)
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
