package core

import (
	"context"
	"errors"
	"letsplay/pkg/logger"
	"sync"
	"testing"
	"time"
)

type recordedProgress struct {
	mu        sync.Mutex
	started   []string
	failed    []string
	completed []int
	failOn    int
}

func (p *recordedProgress) StepStarted(ctx context.Context, index int, step string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = append(p.started, step)
}

func (p *recordedProgress) AttemptFailed(ctx context.Context, index int, step string, attempt int, err error, willRetry bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed = append(p.failed, step)
}

func (p *recordedProgress) StepCompleted(ctx context.Context, index int, step string, attempt int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failOn > 0 && index+1 == p.failOn {
		return errors.New("mongo: write concern error")
	}
	p.completed = append(p.completed, index)
	return nil
}

func fastPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, StepTimeout: time.Second}
}

func TestEngine_RunsStepsInOrder(t *testing.T) {
	var calls []string
	step := func(name string) *Step {
		return NewStep(name, func(ctx context.Context, rc RunContext) error {
			calls = append(calls, name)
			return nil
		})
	}
	engine := NewEngine(fastPolicy(), logger.Discard(), step("validate"), step("reserve"), step("pay"), step("confirm"))
	progress := &recordedProgress{}

	if err := engine.Run(context.Background(), RunContext{BookingID: "b1", RunID: "booking-b1"}, 0, progress); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []string{"validate", "reserve", "pay", "confirm"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d = %s, want %s", i, calls[i], want[i])
		}
	}
	if len(progress.completed) != 4 {
		t.Errorf("completed = %v, want 4 entries", progress.completed)
	}
}

func TestEngine_ResumesFromIndex(t *testing.T) {
	var calls []string
	step := func(name string) *Step {
		return NewStep(name, func(ctx context.Context, rc RunContext) error {
			calls = append(calls, name)
			return nil
		})
	}
	engine := NewEngine(fastPolicy(), logger.Discard(), step("validate"), step("reserve"), step("pay"), step("confirm"))

	if err := engine.Run(context.Background(), RunContext{BookingID: "b1"}, 2, &recordedProgress{}); err != nil {
		t.Fatal(err)
	}
	if len(calls) != 2 || calls[0] != "pay" || calls[1] != "confirm" {
		t.Errorf("calls = %v, want [pay confirm]", calls)
	}

	if err := engine.Run(context.Background(), RunContext{BookingID: "b1"}, 5, &recordedProgress{}); err == nil {
		t.Error("expected error for out of range resume index")
	}
}

func TestEngine_RetriesTransientThenSucceeds(t *testing.T) {
	attempts := 0
	flaky := NewStep("pay", func(ctx context.Context, rc RunContext) error {
		attempts++
		if attempts < 3 {
			return errors.New("gateway unavailable")
		}
		return nil
	})
	engine := NewEngine(fastPolicy(), logger.Discard(), flaky)
	progress := &recordedProgress{}

	if err := engine.Run(context.Background(), RunContext{BookingID: "b1"}, 0, progress); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if len(progress.failed) != 2 {
		t.Errorf("failed attempts recorded = %d, want 2", len(progress.failed))
	}
}

func TestEngine_ExhaustedRetriesAreUnrecoverable(t *testing.T) {
	attempts := 0
	confirmCalled := false
	engine := NewEngine(fastPolicy(), logger.Discard(),
		NewStep("pay", func(ctx context.Context, rc RunContext) error {
			attempts++
			return errors.New("gateway unavailable")
		}),
		NewStep("confirm", func(ctx context.Context, rc RunContext) error {
			confirmCalled = true
			return nil
		}),
	)

	err := engine.Run(context.Background(), RunContext{BookingID: "b1"}, 0, &recordedProgress{})
	unrecoverable, ok := AsUnrecoverable(err)
	if !ok {
		t.Fatalf("expected UnrecoverableSagaError, got %v", err)
	}
	if unrecoverable.Step != "pay" || unrecoverable.Attempts != 3 {
		t.Errorf("got step=%s attempts=%d, want pay/3", unrecoverable.Step, unrecoverable.Attempts)
	}
	if unrecoverable.Reason() != "pay: gateway unavailable" {
		t.Errorf("Reason() = %q", unrecoverable.Reason())
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if confirmCalled {
		t.Error("confirm must not run after an unrecoverable failure")
	}
}

func TestEngine_PermanentFailsFast(t *testing.T) {
	attempts := 0
	engine := NewEngine(fastPolicy(), logger.Discard(), NewStep("validate", func(ctx context.Context, rc RunContext) error {
		attempts++
		return Permanent(errors.New("booking is not pending"))
	}))

	err := engine.Run(context.Background(), RunContext{BookingID: "b1"}, 0, &recordedProgress{})
	if _, ok := AsUnrecoverable(err); !ok {
		t.Fatalf("expected UnrecoverableSagaError, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("permanent failure should not be retried, attempts = %d", attempts)
	}
}

func TestEngine_StepTimeoutIsTransient(t *testing.T) {
	attempts := 0
	engine := NewEngine(RetryPolicy{MaxAttempts: 2, StepTimeout: 20 * time.Millisecond}, logger.Discard(),
		NewStep("pay", func(ctx context.Context, rc RunContext) error {
			attempts++
			if attempts == 1 {
				<-ctx.Done()
				return ctx.Err()
			}
			return nil
		}))

	if err := engine.Run(context.Background(), RunContext{BookingID: "b1"}, 0, &recordedProgress{}); err != nil {
		t.Fatalf("timeout should be retried, got %v", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestEngine_PanicIsTransient(t *testing.T) {
	attempts := 0
	engine := NewEngine(fastPolicy(), logger.Discard(), NewStep("reserve", func(ctx context.Context, rc RunContext) error {
		attempts++
		if attempts == 1 {
			panic("nil map")
		}
		return nil
	}))

	if err := engine.Run(context.Background(), RunContext{BookingID: "b1"}, 0, &recordedProgress{}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestEngine_RecordingFailureIsNotUnrecoverable(t *testing.T) {
	engine := NewEngine(fastPolicy(), logger.Discard(), NewStep("validate", func(ctx context.Context, rc RunContext) error {
		return nil
	}))

	err := engine.Run(context.Background(), RunContext{BookingID: "b1"}, 0, &recordedProgress{failOn: 1})
	if err == nil {
		t.Fatal("expected recording error")
	}
	if _, ok := AsUnrecoverable(err); ok {
		t.Error("a progress write failure must not trigger compensation")
	}
}

func TestEngine_CancelledContextStopsWithoutCompensation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	engine := NewEngine(RetryPolicy{MaxAttempts: 3, StepTimeout: time.Second, InitialBackoff: time.Second}, logger.Discard(),
		NewStep("pay", func(ctx context.Context, rc RunContext) error {
			cancel()
			return errors.New("gateway unavailable")
		}))

	err := engine.Run(ctx, RunContext{BookingID: "b1"}, 0, &recordedProgress{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRetryPolicy_Backoff(t *testing.T) {
	p := RetryPolicy{InitialBackoff: 100 * time.Millisecond, MaxBackoff: 350 * time.Millisecond}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 0},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 350 * time.Millisecond},
		{10, 350 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := p.Backoff(tt.attempt); got != tt.want {
			t.Errorf("Backoff(%d) = %s, want %s", tt.attempt, got, tt.want)
		}
	}
}

func TestPermanent(t *testing.T) {
	base := errors.New("slot taken")
	p := Permanent(base)

	if !IsPermanent(p) || IsTransient(p) {
		t.Error("Permanent() should mark the error permanent")
	}
	if !errors.Is(p, base) {
		t.Error("Permanent() should keep the cause reachable")
	}
	if Permanent(p) != p {
		t.Error("Permanent() should not double wrap")
	}
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
	if !IsTransient(base) {
		t.Error("unmarked errors are transient")
	}
}

func TestLimiter(t *testing.T) {
	l := NewLimiter(2)
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	for i := 0; i < 2; i++ {
		l.Go(func() {
			defer wg.Done()
			<-release
		})
	}

	if l.TryGo(func() {}) {
		t.Error("TryGo should fail when all slots are busy")
	}
	close(release)
	wg.Wait()

	deadline := time.Now().Add(time.Second)
	for l.InFlight() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if l.InFlight() != 0 {
		t.Errorf("InFlight() = %d, want 0", l.InFlight())
	}
}
