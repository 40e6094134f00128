package service

import (
	"context"
	"errors"
	"letsplay/internal/bookings/validator"
	apperrors "letsplay/pkg/errors"
	"letsplay/pkg/model"
	"letsplay/test/fakes"
	"testing"
	"time"
)

type recordingStarter struct {
	started []string
	err     error
}

func (s *recordingStarter) Start(ctx context.Context, bookingID string) error {
	s.started = append(s.started, bookingID)
	return s.err
}

func newService() (*fakes.Store, *recordingStarter, BookingService) {
	cfg := fakes.Config()
	store := fakes.NewStore()
	starter := &recordingStarter{}
	svc := NewBookingService(store.Bookings(), starter, validator.NewBookingValidator(cfg.Log, cfg.MaxParticipantsLimit), cfg)
	return store, starter, svc
}

func boolPtr(b bool) *bool {
	return &b
}

func validCreate() *model.BookingCreate {
	start := time.Now().Add(48 * time.Hour).Truncate(time.Hour)
	return &model.BookingCreate{
		UserID:      "user-1",
		GroundID:    "ground-7",
		GroundName:  "  North   Pitch ",
		StartTime:   start,
		EndTime:     start.Add(90 * time.Minute),
		TotalAmount: 60,
	}
}

func TestBookingService_CreateDefaults(t *testing.T) {
	tests := []struct {
		name       string
		isPublic   *bool
		max        int
		wantPublic bool
		wantMax    int
	}{
		{name: "private by default", isPublic: nil, max: 10, wantPublic: false, wantMax: 1},
		{name: "explicit private forces one seat", isPublic: boolPtr(false), max: 8, wantPublic: false, wantMax: 1},
		{name: "public keeps max", isPublic: boolPtr(true), max: 8, wantPublic: true, wantMax: 8},
		{name: "public without max", isPublic: boolPtr(true), max: 0, wantPublic: true, wantMax: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, starter, svc := newService()
			req := validCreate()
			req.IsPublic = tt.isPublic
			req.MaxParticipants = tt.max

			b, err := svc.Create(context.Background(), req)
			if err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			if b.Status != model.BookingStatusPending {
				t.Errorf("status = %s, want PENDING", b.Status)
			}
			if b.JoinedParticipants != 1 {
				t.Errorf("joined = %d, want 1", b.JoinedParticipants)
			}
			if b.Public() != tt.wantPublic || b.MaxParticipants != tt.wantMax {
				t.Errorf("public=%v max=%d, want public=%v max=%d", b.Public(), b.MaxParticipants, tt.wantPublic, tt.wantMax)
			}
			if b.GroundName != "North Pitch" {
				t.Errorf("ground name = %q, want sanitized", b.GroundName)
			}
			if store.Booking(b.ID) == nil {
				t.Error("booking not stored")
			}
			if len(starter.started) != 1 || starter.started[0] != b.ID {
				t.Errorf("saga starts = %v, want [%s]", starter.started, b.ID)
			}
		})
	}
}

func TestBookingService_CreateValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.BookingCreate)
	}{
		{name: "missing user", mutate: func(r *model.BookingCreate) { r.UserID = "" }},
		{name: "missing ground", mutate: func(r *model.BookingCreate) { r.GroundID = " " }},
		{name: "end before start", mutate: func(r *model.BookingCreate) { r.EndTime = r.StartTime.Add(-time.Minute) }},
		{name: "start in past", mutate: func(r *model.BookingCreate) {
			r.StartTime = time.Now().Add(-2 * time.Hour)
			r.EndTime = time.Now().Add(-time.Hour)
		}},
		{name: "negative amount", mutate: func(r *model.BookingCreate) { r.TotalAmount = -5 }},
		{name: "max over limit", mutate: func(r *model.BookingCreate) {
			r.IsPublic = boolPtr(true)
			r.MaxParticipants = 51
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, starter, svc := newService()
			req := validCreate()
			tt.mutate(req)

			_, err := svc.Create(context.Background(), req)
			if !apperrors.HasCode(err, apperrors.CodeValidation) {
				t.Fatalf("Create() error = %v, want validation", err)
			}
			if len(starter.started) != 0 {
				t.Error("saga started for invalid booking")
			}
		})
	}
}

func TestBookingService_CreateNilPayload(t *testing.T) {
	_, _, svc := newService()
	if _, err := svc.Create(context.Background(), nil); !apperrors.HasCode(err, apperrors.CodeInvalidInput) {
		t.Errorf("Create(nil) error = %v, want invalid input", err)
	}
}

func TestBookingService_SagaStartFailureKeepsBooking(t *testing.T) {
	store, starter, svc := newService()
	starter.err = errors.New("queue unavailable")

	b, err := svc.Create(context.Background(), validCreate())
	if err != nil {
		t.Fatalf("Create() error = %v, want nil", err)
	}
	stored := store.Booking(b.ID)
	if stored == nil || stored.Status != model.BookingStatusPending || stored.SagaRunID != "" {
		t.Errorf("stored booking = %+v, want PENDING without run id", stored)
	}
}

func TestBookingService_CreateStoreFailure(t *testing.T) {
	store, starter, svc := newService()
	store.FailNext("bookings.Create", errors.New("not primary"))

	if _, err := svc.Create(context.Background(), validCreate()); !apperrors.HasCode(err, apperrors.CodeInternal) {
		t.Fatalf("Create() error = %v, want internal", err)
	}
	if len(starter.started) != 0 {
		t.Error("saga started for unsaved booking")
	}
}

func TestBookingService_GetByID(t *testing.T) {
	store, _, svc := newService()
	b, _ := svc.Create(context.Background(), validCreate())

	tests := []struct {
		name     string
		id       string
		wantCode string
	}{
		{name: "found", id: b.ID},
		{name: "empty id", id: "", wantCode: apperrors.CodeInvalidInput},
		{name: "malformed id", id: "not-an-id", wantCode: apperrors.CodeInvalidInput},
		{name: "unknown id", id: "64b7f0c2a1b2c3d4e5f60718", wantCode: apperrors.CodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.GetByID(context.Background(), tt.id)
			if tt.wantCode != "" {
				if !apperrors.HasCode(err, tt.wantCode) {
					t.Fatalf("GetByID() error = %v, want %s", err, tt.wantCode)
				}
				return
			}
			if err != nil || got.ID != b.ID {
				t.Fatalf("GetByID() = %v, %v", got, err)
			}
		})
	}

	store.FailNext("bookings.FindByID", errors.New("timeout"))
	if _, err := svc.GetByID(context.Background(), b.ID); !apperrors.HasCode(err, apperrors.CodeInternal) {
		t.Errorf("GetByID() error = %v, want internal", err)
	}
}
