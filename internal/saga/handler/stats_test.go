package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	kafka_middleware "letsplay/pkg/kafka/middleware"

	"github.com/julienschmidt/httprouter"
)

func TestStatsHandler_SumsLag(t *testing.T) {
	h := NewStatsHandler(kafka_middleware.NewMetrics(), func() []ConsumerStats {
		return []ConsumerStats{
			{Messages: 10, Lag: 3},
			{Messages: 4, Errors: 1, Lag: 2},
		}
	})
	router := httprouter.New()
	h.RegisterRoutes(router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/saga/stats", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Data WorkerStats `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.Consumers != 2 {
		t.Errorf("consumers = %d, want 2", body.Data.Consumers)
	}
	if body.Data.Lag != 5 {
		t.Errorf("lag = %d, want 5", body.Data.Lag)
	}
}
