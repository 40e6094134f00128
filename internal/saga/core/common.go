package core

// Limiter bounds how many functions run at once.
type Limiter struct {
	slots chan struct{}
}

func NewLimiter(size int) *Limiter {
	if size < 1 {
		size = 1
	}
	return &Limiter{slots: make(chan struct{}, size)}
}

// Go blocks until a slot is free, then runs fn on a new goroutine that
// releases the slot when fn returns.
func (l *Limiter) Go(fn func()) {
	l.slots <- struct{}{}
	go func() {
		defer func() { <-l.slots }()
		fn()
	}()
}

// TryGo is Go without blocking. It reports whether fn was started.
func (l *Limiter) TryGo(fn func()) bool {
	select {
	case l.slots <- struct{}{}:
	default:
		return false
	}
	go func() {
		defer func() { <-l.slots }()
		fn()
	}()
	return true
}

// InFlight returns the number of running functions.
func (l *Limiter) InFlight() int {
	return len(l.slots)
}
