package payment

import (
	"context"
	"errors"
	"fmt"
	"letsplay/internal/saga/core"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPaymentDeclined = errors.New("payment declined")

	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
)

type Charge struct {
	BookingID string
	Amount    float64
	// IdempotencyKey makes repeated settlement attempts of the same run
	// collapse onto one charge.
	IdempotencyKey string
}

type Receipt struct {
	Reference string
	Settled   bool
	SettledAt time.Time
}

type Gateway interface {
	Settle(ctx context.Context, charge Charge) (*Receipt, error)
}

// SimulatedGateway stands in for a card processor. It waits SettleDelay and
// then settles every charge not above DeclineAbove. A zero DeclineAbove
// accepts every amount.
type SimulatedGateway struct {
	SettleDelay  time.Duration
	DeclineAbove float64

	mu       sync.Mutex
	receipts map[string]*Receipt
}

func NewSimulatedGateway(settleDelay time.Duration, declineAbove float64) *SimulatedGateway {
	return &SimulatedGateway{
		SettleDelay:  settleDelay,
		DeclineAbove: declineAbove,
		receipts:     make(map[string]*Receipt),
	}
}

func (g *SimulatedGateway) Settle(ctx context.Context, charge Charge) (*Receipt, error) {
	if charge.Amount < 0 {
		return nil, core.Permanent(fmt.Errorf("%w: negative amount %.2f", ErrPaymentDeclined, charge.Amount))
	}

	g.mu.Lock()
	if r, ok := g.receipts[charge.IdempotencyKey]; ok && charge.IdempotencyKey != "" {
		g.mu.Unlock()
		return r, nil
	}
	g.mu.Unlock()

	if g.SettleDelay > 0 {
		timer := time.NewTimer(g.SettleDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, ctx.Err())
		case <-timer.C:
		}
	}

	if g.DeclineAbove > 0 && charge.Amount > g.DeclineAbove {
		return nil, core.Permanent(fmt.Errorf("%w: amount %.2f above limit %.2f", ErrPaymentDeclined, charge.Amount, g.DeclineAbove))
	}

	receipt := &Receipt{
		Reference: uuid.NewString(),
		Settled:   true,
		SettledAt: time.Now().UTC(),
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if r, ok := g.receipts[charge.IdempotencyKey]; ok && charge.IdempotencyKey != "" {
		return r, nil
	}
	if charge.IdempotencyKey != "" {
		g.receipts[charge.IdempotencyKey] = receipt
	}
	return receipt, nil
}
