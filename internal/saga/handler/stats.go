package handler

import (
	"net/http"

	httputil "letsplay/pkg/http"
	kafka_middleware "letsplay/pkg/kafka/middleware"

	"github.com/julienschmidt/httprouter"
)

// ConsumerStats is the per-consumer view exposed by the worker.
type ConsumerStats struct {
	Messages int64 `json:"messages"`
	Errors   int64 `json:"errors"`
	Lag      int64 `json:"lag"`
}

type WorkerStats struct {
	Consumers int                              `json:"consumers"`
	Lag       int64                            `json:"lag"`
	Metrics   kafka_middleware.MetricsSnapshot `json:"metrics"`
	PerReader []ConsumerStats                  `json:"per_reader"`
}

// StatsHandler serves saga worker throughput and consumer lag.
type StatsHandler struct {
	metrics *kafka_middleware.Metrics
	readers func() []ConsumerStats
}

func NewStatsHandler(metrics *kafka_middleware.Metrics, readers func() []ConsumerStats) *StatsHandler {
	return &StatsHandler{
		metrics: metrics,
		readers: readers,
	}
}

func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	perReader := h.readers()
	stats := WorkerStats{
		Consumers: len(perReader),
		Metrics:   h.metrics.Snapshot(),
		PerReader: perReader,
	}
	for _, s := range perReader {
		stats.Lag += s.Lag
	}
	httputil.WriteSuccess(w, stats)
}

func (h *StatsHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/saga/stats", h.Stats)
}
