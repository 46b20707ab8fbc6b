package quiztake

import (
	"sync"
	"time"
)

// CancelFunc stops a scheduled task. Safe to call more than once, and safe
// to call from inside the task's own callback.
type CancelFunc func()

// Scheduler abstracts the periodic and one-shot timers the engine owns, so
// tests can drive ticks by hand instead of sleeping.
type Scheduler interface {
	// Every runs fn repeatedly with the given period until cancelled.
	Every(d time.Duration, fn func()) CancelFunc
	// After runs fn once after the given delay unless cancelled first.
	After(d time.Duration, fn func()) CancelFunc
}

// NewTickerScheduler returns the real-time Scheduler used outside of tests.
func NewTickerScheduler() Scheduler { return tickerScheduler{} }

type tickerScheduler struct{}

func (tickerScheduler) Every(d time.Duration, fn func()) CancelFunc {
	t := time.NewTicker(d)
	done := make(chan struct{})
	var once sync.Once
	go func() {
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				fn()
			}
		}
	}()
	return func() { once.Do(func() { close(done) }) }
}

func (tickerScheduler) After(d time.Duration, fn func()) CancelFunc {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}
