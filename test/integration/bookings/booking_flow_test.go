package bookings

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"letsplay/pkg/client"
	"letsplay/pkg/model"
	"letsplay/test/integration/testutil"

	"go.mongodb.org/mongo-driver/bson"
)

const sagaSettleTimeout = 60 * time.Second

func newBooking(groundID string, public bool, maxParticipants int, start time.Time) *model.BookingCreate {
	return &model.BookingCreate{
		UserID:          "host-1",
		GroundID:        groundID,
		GroundName:      "Riverside Pitch",
		StartTime:       start,
		EndTime:         start.Add(90 * time.Minute),
		IsPublic:        &public,
		MaxParticipants: maxParticipants,
		TotalAmount:     40,
	}
}

func waitForStatus(t *testing.T, api *client.LetsPlayClient, id string) *model.Booking {
	t.Helper()
	ctx := context.Background()
	deadline := time.Now().Add(sagaSettleTimeout)
	for time.Now().Before(deadline) {
		resp, err := api.GetBooking(ctx, id)
		if err != nil {
			t.Fatalf("GetBooking: %v", err)
		}
		testutil.AssertStatusCode(t, resp, http.StatusOK)
		booking, err := api.DecodeBooking(resp)
		if err != nil {
			t.Fatal(err)
		}
		if booking.Status != model.BookingStatusPending {
			return booking
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("booking %s still PENDING after %s", id, sagaSettleTimeout)
	return nil
}

func TestBookingSaga_ConfirmsBooking(t *testing.T) {
	env := testutil.NewTestEnv()
	mongo, api := env.Setup(t)
	defer env.Cleanup(t, mongo)

	ctx := context.Background()
	host := api.AsUser("host-1")
	start := time.Now().Add(48 * time.Hour).Truncate(time.Minute)

	resp, err := host.CreateBooking(ctx, newBooking("ground-confirm", false, 0, start), "")
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertStatusCode(t, resp, http.StatusAccepted)
	created, err := host.DecodeBooking(resp)
	if err != nil {
		t.Fatal(err)
	}
	if created.Status != model.BookingStatusPending {
		t.Fatalf("new booking status = %s, want PENDING", created.Status)
	}

	final := waitForStatus(t, host, created.ID)
	if final.Status != model.BookingStatusConfirmed {
		t.Fatalf("status = %s (%s), want CONFIRMED", final.Status, final.FailureReason)
	}
	if !final.PaymentSettled {
		t.Error("confirmed booking must have its payment settled")
	}

	resp, err = host.GetSagaRun(ctx, created.ID)
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertStatusCode(t, resp, http.StatusOK)
	run, err := host.DecodeSagaRun(resp)
	if err != nil {
		t.Fatal(err)
	}
	if run.State != model.SagaRunStateCompleted || run.CompletedSteps != 4 {
		t.Errorf("run = %s with %d steps, want COMPLETED with 4", run.State, run.CompletedSteps)
	}
}

func TestBookingSaga_SecondBookingForSlotFails(t *testing.T) {
	env := testutil.NewTestEnv()
	mongo, api := env.Setup(t)
	defer env.Cleanup(t, mongo)

	ctx := context.Background()
	host := api.AsUser("host-1")
	start := time.Now().Add(72 * time.Hour).Truncate(time.Minute)

	first, err := host.CreateBooking(ctx, newBooking("ground-contended", false, 0, start), "")
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertStatusCode(t, first, http.StatusAccepted)
	firstBooking, _ := host.DecodeBooking(first)
	if b := waitForStatus(t, host, firstBooking.ID); b.Status != model.BookingStatusConfirmed {
		t.Fatalf("first booking status = %s, want CONFIRMED", b.Status)
	}

	second, err := host.CreateBooking(ctx, newBooking("ground-contended", false, 0, start), "")
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertStatusCode(t, second, http.StatusAccepted)
	secondBooking, _ := host.DecodeBooking(second)
	if b := waitForStatus(t, host, secondBooking.ID); b.Status != model.BookingStatusFailed {
		t.Fatalf("second booking status = %s, want FAILED", b.Status)
	}
}

func TestBookingCreate_IdempotentReplay(t *testing.T) {
	env := testutil.NewTestEnv()
	mongo, api := env.Setup(t)
	defer env.Cleanup(t, mongo)

	ctx := context.Background()
	host := api.AsUser("host-idem")
	in := newBooking("ground-idem", false, 0, time.Now().Add(96*time.Hour).Truncate(time.Minute))

	first, err := host.CreateBooking(ctx, in, "idem-key-1")
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertStatusCode(t, first, http.StatusAccepted)
	second, err := host.CreateBooking(ctx, in, "idem-key-1")
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertStatusCode(t, second, http.StatusAccepted)
	if second.Header.Get("Idempotent-Replayed") != "true" {
		t.Error("second create should be replayed")
	}
	if n := mongo.CountDocuments(t, testutil.BookingsCollection, bson.M{"ground_id": "ground-idem"}); n != 1 {
		t.Errorf("bookings stored = %d, want 1", n)
	}
}

func TestJoinRequests_ConcurrentAcceptsRespectCapacity(t *testing.T) {
	env := testutil.NewTestEnv()
	mongo, api := env.Setup(t)
	defer env.Cleanup(t, mongo)

	ctx := context.Background()
	host := api.AsUser("host-1")
	start := time.Now().Add(120 * time.Hour).Truncate(time.Minute)

	resp, err := host.CreateBooking(ctx, newBooking("ground-public", true, 3, start), "")
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertStatusCode(t, resp, http.StatusAccepted)
	booking, _ := host.DecodeBooking(resp)
	if b := waitForStatus(t, host, booking.ID); b.Status != model.BookingStatusConfirmed {
		t.Fatalf("booking status = %s, want CONFIRMED", b.Status)
	}

	const requesters = 5
	requestIDs := make([]string, 0, requesters)
	for i := 0; i < requesters; i++ {
		userID := fmt.Sprintf("player-%d", i)
		resp, err := api.AsUser(userID).CreateJoinRequest(ctx, booking.ID, &model.JoinRequestCreate{UserID: userID})
		if err != nil {
			t.Fatal(err)
		}
		testutil.AssertStatusCode(t, resp, http.StatusCreated)
		req, err := api.DecodeJoinRequest(resp)
		if err != nil {
			t.Fatal(err)
		}
		requestIDs = append(requestIDs, req.ID)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		full     int
	)
	for _, id := range requestIDs {
		id := id
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := host.RespondToJoinRequest(ctx, id, model.JoinRequestStatusAccepted)
			if err != nil {
				t.Errorf("respond: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			switch {
			case resp.StatusCode == http.StatusOK:
				accepted++
			case client.GetErrorCode(resp) == "BOOKING_FULL":
				full++
			default:
				t.Errorf("unexpected response %s", resp)
			}
		}()
	}
	wg.Wait()

	if accepted != 2 || full != requesters-2 {
		t.Fatalf("accepted = %d, full = %d, want 2 and %d", accepted, full, requesters-2)
	}

	resp, err = host.GetBooking(ctx, booking.ID)
	if err != nil {
		t.Fatal(err)
	}
	final, _ := host.DecodeBooking(resp)
	if final.JoinedParticipants != 3 {
		t.Errorf("joined participants = %d, want 3", final.JoinedParticipants)
	}
}
