// Package fakes holds in-memory implementations of the repository and
// transport interfaces for service-level tests.
package fakes

import (
	"context"
	"sync"

	mongotx "letsplay/pkg/db/mongo"
	"letsplay/pkg/model"
)

type txKey struct{}

// fakeTx collects undo actions for writes made inside ExecuteTransaction.
type fakeTx struct {
	undo []func()
}

// Store is a mutex-guarded in-memory database shared by every fake
// repository. Transactions are not serialized against each other; a failed
// transaction rolls back only its own writes.
type Store struct {
	mu sync.Mutex

	bookings      map[string]*model.Booking
	reservations  map[string]*model.GroundReservation
	runs          map[string]*model.SagaRun
	locks         map[string]*model.SagaLock
	joinRequests  map[string]*model.JoinRequest
	notifications []*model.Notification

	failures map[string][]error
	calls    map[string]int
}

func NewStore() *Store {
	return &Store{
		bookings:     make(map[string]*model.Booking),
		reservations: make(map[string]*model.GroundReservation),
		runs:         make(map[string]*model.SagaRun),
		locks:        make(map[string]*model.SagaLock),
		joinRequests: make(map[string]*model.JoinRequest),
		failures:     make(map[string][]error),
		calls:        make(map[string]int),
	}
}

// FailNext makes the next len(errs) calls of op return errs in order. Ops are
// named "<repo>.<Method>", e.g. "bookings.MarkFailed".
func (s *Store) FailNext(op string, errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = append(s.failures[op], errs...)
}

// Calls returns how many times op was invoked.
func (s *Store) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// enter records a call to op and returns an injected failure, if any.
// Callers must hold s.mu.
func (s *Store) enter(op string) error {
	s.calls[op]++
	queued := s.failures[op]
	if len(queued) == 0 {
		return nil
	}
	err := queued[0]
	s.failures[op] = queued[1:]
	return err
}

// record registers an undo action when ctx is inside a transaction.
// Callers must hold s.mu.
func (s *Store) record(ctx context.Context, undo func()) {
	if tx, ok := ctx.Value(txKey{}).(*fakeTx); ok {
		tx.undo = append(tx.undo, undo)
	}
}

var _ mongotx.TransactionManager = (*Store)(nil)

func (s *Store) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	if _, ok := ctx.Value(txKey{}).(*fakeTx); ok {
		return fn(ctx)
	}

	tx := &fakeTx{}
	err := fn(context.WithValue(ctx, txKey{}, tx))
	if err != nil {
		s.mu.Lock()
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		s.mu.Unlock()
	}
	return err
}
