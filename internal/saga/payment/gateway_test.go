package payment

import (
	"context"
	"errors"
	"letsplay/internal/saga/core"
	"testing"
	"time"
)

func TestSimulatedGateway_Settle(t *testing.T) {
	tests := []struct {
		name          string
		declineAbove  float64
		amount        float64
		wantSettled   bool
		wantPermanent bool
	}{
		{name: "no limit", declineAbove: 0, amount: 1000, wantSettled: true},
		{name: "under limit", declineAbove: 100, amount: 99.5, wantSettled: true},
		{name: "at limit", declineAbove: 100, amount: 100, wantSettled: true},
		{name: "over limit", declineAbove: 100, amount: 100.01, wantPermanent: true},
		{name: "negative amount", declineAbove: 0, amount: -1, wantPermanent: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewSimulatedGateway(0, tt.declineAbove)
			receipt, err := g.Settle(context.Background(), Charge{BookingID: "b1", Amount: tt.amount, IdempotencyKey: "k"})

			if tt.wantPermanent {
				if err == nil {
					t.Fatal("Settle() error = nil, want decline")
				}
				if !core.IsPermanent(err) {
					t.Errorf("Settle() error %v is not permanent", err)
				}
				if !errors.Is(err, ErrPaymentDeclined) {
					t.Errorf("Settle() error %v is not ErrPaymentDeclined", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Settle() unexpected error: %v", err)
			}
			if receipt.Settled != tt.wantSettled {
				t.Errorf("Settled = %v, want %v", receipt.Settled, tt.wantSettled)
			}
		})
	}
}

func TestSimulatedGateway_Idempotent(t *testing.T) {
	g := NewSimulatedGateway(0, 0)
	charge := Charge{BookingID: "b1", Amount: 10, IdempotencyKey: "booking-b1"}

	first, err := g.Settle(context.Background(), charge)
	if err != nil {
		t.Fatalf("first Settle() error: %v", err)
	}
	second, err := g.Settle(context.Background(), charge)
	if err != nil {
		t.Fatalf("second Settle() error: %v", err)
	}
	if first.Reference != second.Reference {
		t.Errorf("references differ: %s vs %s", first.Reference, second.Reference)
	}
}

func TestSimulatedGateway_ContextCancelled(t *testing.T) {
	g := NewSimulatedGateway(time.Hour, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := g.Settle(ctx, Charge{BookingID: "b1", Amount: 10})
	if err == nil {
		t.Fatal("Settle() error = nil, want unavailable")
	}
	if core.IsPermanent(err) {
		t.Error("cancelled settlement must be retryable")
	}
	if !errors.Is(err, ErrGatewayUnavailable) {
		t.Errorf("error = %v, want ErrGatewayUnavailable", err)
	}
}
