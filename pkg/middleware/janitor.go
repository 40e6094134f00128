package middleware

import (
	"sync"
	"time"
)

// janitor runs sweep every interval until stopped. The in-memory stores embed
// it so their Stop methods come for free.
type janitor struct {
	stop     chan struct{}
	stopOnce sync.Once
}

func startJanitor(interval time.Duration, sweep func(now time.Time)) *janitor {
	j := &janitor{stop: make(chan struct{})}
	go func() {
		tick := time.NewTicker(interval)
		defer tick.Stop()
		for {
			select {
			case now := <-tick.C:
				sweep(now)
			case <-j.stop:
				return
			}
		}
	}()
	return j
}

func (j *janitor) Stop() {
	j.stopOnce.Do(func() { close(j.stop) })
}
