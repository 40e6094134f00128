package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	apperrors "letsplay/pkg/errors"
	"letsplay/pkg/logger"
	"letsplay/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type mockJoinService struct {
	respondFunc func(ctx context.Context, id string, resp *model.JoinRequestResponse) (*model.JoinRequest, error)
	listFunc    func(ctx context.Context, limit int, offset int64) ([]*model.Booking, int64, error)
}

func (m *mockJoinService) CreateRequest(ctx context.Context, bookingID string, req *model.JoinRequestCreate) (*model.JoinRequest, error) {
	return &model.JoinRequest{ID: "r1", BookingID: bookingID, UserID: req.UserID, Status: model.JoinRequestStatusPending}, nil
}

func (m *mockJoinService) RespondToRequest(ctx context.Context, id string, resp *model.JoinRequestResponse) (*model.JoinRequest, error) {
	return m.respondFunc(ctx, id, resp)
}

func (m *mockJoinService) Accept(ctx context.Context, id string) (*model.JoinRequest, error) {
	return nil, nil
}

func (m *mockJoinService) Reject(ctx context.Context, id string) (*model.JoinRequest, error) {
	return nil, nil
}

func (m *mockJoinService) ListByBooking(ctx context.Context, bookingID string) ([]*model.JoinRequest, error) {
	return []*model.JoinRequest{}, nil
}

func (m *mockJoinService) ListPublicBookings(ctx context.Context, limit int, offset int64) ([]*model.Booking, int64, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, limit, offset)
	}
	return []*model.Booking{}, 0, nil
}

func newRouter(svc *mockJoinService) *httprouter.Router {
	router := httprouter.New()
	NewJoinRequestHandler(svc, logger.Discard()).RegisterRoutes(router)
	return router
}

func TestRespond_StatusMapping(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		err      error
		wantCode int
		wantErr  string
	}{
		{
			name:     "accepted",
			body:     `{"status":"ACCEPTED"}`,
			wantCode: http.StatusOK,
		},
		{
			name:     "booking full",
			body:     `{"status":"ACCEPTED"}`,
			err:      apperrors.BookingFull("b1"),
			wantCode: http.StatusConflict,
			wantErr:  apperrors.CodeBookingFull,
		},
		{
			name:     "already resolved",
			body:     `{"status":"REJECTED"}`,
			err:      apperrors.RequestNotPending("r1", model.JoinRequestStatusAccepted),
			wantCode: http.StatusConflict,
			wantErr:  apperrors.CodeRequestNotPending,
		},
		{
			name:     "malformed body",
			body:     `{"status":`,
			wantCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockJoinService{
				respondFunc: func(ctx context.Context, id string, resp *model.JoinRequestResponse) (*model.JoinRequest, error) {
					if tt.err != nil {
						return nil, tt.err
					}
					return &model.JoinRequest{ID: id, Status: resp.Status}, nil
				},
			}

			req := httptest.NewRequest(http.MethodPost, "/api/v1/join-requests/id/r1/respond", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			newRouter(svc).ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantErr != "" {
				var body struct {
					Code string `json:"code"`
				}
				if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
					t.Fatalf("decode: %v", err)
				}
				if body.Code != tt.wantErr {
					t.Errorf("code = %q, want %q", body.Code, tt.wantErr)
				}
			}
		})
	}
}

func TestListPublicBookings_Pagination(t *testing.T) {
	var gotLimit int
	var gotOffset int64
	svc := &mockJoinService{
		listFunc: func(ctx context.Context, limit int, offset int64) ([]*model.Booking, int64, error) {
			gotLimit, gotOffset = limit, offset
			return []*model.Booking{{ID: "b1"}}, 7, nil
		},
	}

	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/bookings/public?limit=5&offset=2", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotLimit != 5 || gotOffset != 2 {
		t.Errorf("service got limit=%d offset=%d, want 5 and 2", gotLimit, gotOffset)
	}

	var body struct {
		TotalCount int64 `json:"total_count"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.TotalCount != 7 {
		t.Errorf("total_count = %d, want 7", body.TotalCount)
	}
}

func TestCreate_ReturnsCreated(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings/id/b1/join-requests", strings.NewReader(`{"user_id":"u1"}`))
	rec := httptest.NewRecorder()
	newRouter(&mockJoinService{}).ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
}
