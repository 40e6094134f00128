package handler

import (
	"context"
	"net/http"

	httputil "letsplay/pkg/http"
	"letsplay/pkg/logger"
	"letsplay/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type RunReader interface {
	GetRun(ctx context.Context, bookingID string) (*model.SagaRun, error)
}

type SagaHandler struct {
	runs RunReader
	log  *logger.Logger
}

func NewSagaHandler(runs RunReader, log *logger.Logger) *SagaHandler {
	return &SagaHandler{
		runs: runs,
		log:  log,
	}
}

// GetRun exposes the saga log of a booking: state, completed steps and every
// recorded attempt.
func (h *SagaHandler) GetRun(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	run, err := h.runs.GetRun(r.Context(), ps.ByName("id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, run)
}

func (h *SagaHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/bookings/id/:id/saga", h.GetRun)
}
