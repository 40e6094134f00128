package handler

import (
	"encoding/json"
	"net/http"

	"letsplay/internal/joins/service"
	apperrors "letsplay/pkg/errors"
	httputil "letsplay/pkg/http"
	"letsplay/pkg/logger"
	"letsplay/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type JoinRequestHandler struct {
	service service.JoinService
	log     *logger.Logger
}

func NewJoinRequestHandler(service service.JoinService, log *logger.Logger) *JoinRequestHandler {
	return &JoinRequestHandler{
		service: service,
		log:     log,
	}
}

func (h *JoinRequestHandler) Create(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var in model.JoinRequestCreate
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httputil.WriteError(w, apperrors.InvalidInput("Invalid request body"))
		return
	}

	req, err := h.service.CreateRequest(r.Context(), ps.ByName("id"), &in)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteCreated(w, req)
}

func (h *JoinRequestHandler) ListByBooking(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	requests, err := h.service.ListByBooking(r.Context(), ps.ByName("id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteSuccess(w, requests)
}

func (h *JoinRequestHandler) Respond(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var resp model.JoinRequestResponse
	if err := json.NewDecoder(r.Body).Decode(&resp); err != nil {
		httputil.WriteError(w, apperrors.InvalidInput("Invalid request body"))
		return
	}

	req, err := h.service.RespondToRequest(r.Context(), ps.ByName("id"), &resp)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteSuccess(w, req)
}

func (h *JoinRequestHandler) ListPublicBookings(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	bookings, total, err := h.service.ListPublicBookings(r.Context(), limit, offset)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WritePaginated(w, bookings, total, limit, int(offset))
}

func (h *JoinRequestHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/bookings/public", h.ListPublicBookings)
	router.POST("/api/v1/bookings/id/:id/join-requests", h.Create)
	router.GET("/api/v1/bookings/id/:id/join-requests", h.ListByBooking)
	router.POST("/api/v1/join-requests/id/:id/respond", h.Respond)
}
