package service

import (
	"context"
	"errors"
	apperrors "letsplay/pkg/errors"
	"letsplay/pkg/model"
	"letsplay/test/fakes"
	"testing"
)

func TestNotificationService_Enqueue(t *testing.T) {
	tests := []struct {
		name        string
		publisher   *fakes.Publisher
		storeErr    error
		wantStored  int
		wantPublish int
	}{
		{name: "persist and publish", publisher: &fakes.Publisher{}, wantStored: 1, wantPublish: 1},
		{name: "persist without publisher", wantStored: 1},
		{name: "publish failure still stored", publisher: &fakes.Publisher{Err: errors.New("channel closed")}, wantStored: 1},
		{name: "store failure skips publish", publisher: &fakes.Publisher{}, storeErr: errors.New("not primary")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := fakes.NewStore()
			if tt.storeErr != nil {
				store.FailNext("notifications.Create", tt.storeErr)
			}
			var pub Publisher
			if tt.publisher != nil {
				pub = tt.publisher
			}
			svc := NewNotificationService(store.Notifications(), pub, fakes.Config())

			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			svc.Enqueue(ctx, model.Notification{
				UserID:    "user-1",
				Title:     "Booking Confirmed",
				Message:   "Your booking is confirmed.",
				Kind:      model.NotificationKindBookingConfirmed,
				BookingID: "b1",
			})

			if got := len(store.NotificationsFor("user-1")); got != tt.wantStored {
				t.Errorf("stored = %d, want %d", got, tt.wantStored)
			}
			if tt.publisher != nil {
				if got := tt.publisher.Published("notification.BOOKING_CONFIRMED"); got != tt.wantPublish {
					t.Errorf("published = %d, want %d", got, tt.wantPublish)
				}
			}
		})
	}
}

func TestNotificationService_ListByUser(t *testing.T) {
	store := fakes.NewStore()
	svc := NewNotificationService(store.Notifications(), nil, fakes.Config())
	ctx := context.Background()

	for _, title := range []string{"first", "second", "third"} {
		svc.Enqueue(ctx, model.Notification{UserID: "user-1", Title: title})
	}
	svc.Enqueue(ctx, model.Notification{UserID: "user-2", Title: "other"})

	items, total, err := svc.ListByUser(ctx, "user-1", 2, 0)
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	if len(items) != 2 || items[0].Title != "third" || items[1].Title != "second" {
		t.Errorf("items = %+v, want newest first", items)
	}

	items, _, err = svc.ListByUser(ctx, "user-1", 2, 2)
	if err != nil || len(items) != 1 || items[0].Title != "first" {
		t.Errorf("second page = %+v, %v", items, err)
	}

	if _, _, err := svc.ListByUser(ctx, "  ", 10, 0); !apperrors.HasCode(err, apperrors.CodeInvalidInput) {
		t.Errorf("ListByUser(blank) error = %v, want invalid input", err)
	}

	store.FailNext("notifications.FindByUser", errors.New("cursor killed"))
	if _, _, err := svc.ListByUser(ctx, "user-1", 10, 0); !apperrors.HasCode(err, apperrors.CodeInternal) {
		t.Errorf("ListByUser() error = %v, want internal", err)
	}
}
