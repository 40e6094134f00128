package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"letsplay/pkg/model"
)

func TestLetsPlayClient_CreateBookingSendsHeaders(t *testing.T) {
	var gotUser, gotKey, gotContentType string
	var gotBody model.BookingCreate

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/bookings" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotUser = r.Header.Get("X-User-ID")
		gotKey = r.Header.Get("Idempotency-Key")
		gotContentType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"data":{"id":"b1","status":"PENDING","ground_id":"g1"}}`))
	}))
	defer srv.Close()

	c := NewLetsPlayClient(srv.URL).AsUser("user-1")
	resp, err := c.CreateBooking(context.Background(), &model.BookingCreate{GroundID: "g1"}, "key-1")
	if err != nil {
		t.Fatalf("CreateBooking: %v", err)
	}
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	if gotUser != "user-1" || gotKey != "key-1" || gotContentType != "application/json" {
		t.Errorf("headers = user %q key %q content-type %q", gotUser, gotKey, gotContentType)
	}
	if gotBody.GroundID != "g1" {
		t.Errorf("body ground_id = %q, want g1", gotBody.GroundID)
	}

	booking, err := c.DecodeBooking(resp)
	if err != nil {
		t.Fatalf("DecodeBooking: %v", err)
	}
	if booking.ID != "b1" || booking.Status != model.BookingStatusPending {
		t.Errorf("booking = %+v", booking)
	}
}

func TestLetsPlayClient_AsUserDoesNotLeak(t *testing.T) {
	base := NewLetsPlayClient("http://example.invalid")
	host := base.AsUser("host")
	guest := host.AsUser("guest")

	if _, ok := base.HTTP().Headers["X-User-ID"]; ok {
		t.Error("base client must not carry a user header")
	}
	if host.HTTP().Headers["X-User-ID"] != "host" {
		t.Errorf("host header = %q", host.HTTP().Headers["X-User-ID"])
	}
	if guest.HTTP().Headers["X-User-ID"] != "guest" {
		t.Errorf("guest header = %q", guest.HTTP().Headers["X-User-ID"])
	}
}

func TestGetErrorMessage(t *testing.T) {
	resp := &Response{Body: []byte(`{"code":"BOOKING_FULL","error":"Booking is full"}`)}
	if got := GetErrorMessage(resp); got != "Booking is full" {
		t.Errorf("GetErrorMessage = %q", got)
	}
	if got := GetErrorCode(resp); got != "BOOKING_FULL" {
		t.Errorf("GetErrorCode = %q", got)
	}
}

func TestResponse_DecodeDataWithoutData(t *testing.T) {
	resp := &Response{Response: &http.Response{StatusCode: http.StatusNotFound}, Body: []byte(`{"code":"NOT_FOUND"}`)}
	var b model.Booking
	if err := resp.DecodeData(&b); err == nil {
		t.Fatal("expected error for response without data")
	}
}
