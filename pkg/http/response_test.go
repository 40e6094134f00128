package http

import (
	"encoding/json"
	"errors"
	"fmt"
	apperrors "letsplay/pkg/errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"booking full", apperrors.BookingFull("b1"), http.StatusConflict, apperrors.CodeBookingFull},
		{"not public", apperrors.BookingNotPublic("b1"), http.StatusUnprocessableEntity, apperrors.CodeBookingNotPublic},
		{"wrapped not pending", fmt.Errorf("respond: %w", apperrors.RequestNotPending("r1", "REJECTED")), http.StatusConflict, apperrors.CodeRequestNotPending},
		{"not found", apperrors.NotFoundWithID("Booking", "b1"), http.StatusNotFound, apperrors.CodeNotFound},
		{"status falls back to code", &apperrors.AppError{Code: apperrors.CodeInvalidInput, Message: "bad"}, http.StatusBadRequest, apperrors.CodeInvalidInput},
		{"plain error", errors.New("mongo: connection refused"), http.StatusInternalServerError, apperrors.CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, tt.err)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var body ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid JSON body: %v", err)
			}
			if body.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", body.Code, tt.wantCode)
			}
			if tt.wantStatus == http.StatusInternalServerError && body.Error != "Internal server error" {
				t.Errorf("internal errors must not leak details, got %q", body.Error)
			}
		})
	}
}

func TestExtractLimitOffset(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/bookings/public?limit=500&offset=-3", nil)
	limit, offset, err := ExtractLimitOffset(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if limit != 100 || offset != 0 {
		t.Errorf("got limit=%d offset=%d, want 100 and 0", limit, offset)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/bookings/public?limit=abc", nil)
	if _, _, err := ExtractLimitOffset(req); !apperrors.HasCode(err, apperrors.CodeInvalidInput) {
		t.Errorf("expected INVALID_INPUT, got %v", err)
	}
}
