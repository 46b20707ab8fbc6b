package quiztake

import (
	"sync"
	"time"
)

// SaveStatus is the autosave indicator the UI renders.
type SaveStatus string

const (
	SaveIdle   SaveStatus = "idle"
	SaveSaving SaveStatus = "saving"
	SaveSaved  SaveStatus = "saved"
	SaveError  SaveStatus = "error"
)

const (
	autosaveCheckEvery = 5 * time.Second
	autosaveMinGap     = 30 * time.Second
	savedStatusReset   = 3 * time.Second
	errorStatusReset   = 5 * time.Second
)

// autosaver flushes the current question's dirty buffer on a slow cadence:
// a check every 5s, but a successful save at most once per 30s. The gap is
// measured from the last save that succeeded, so a failure is retried on
// the very next check instead of waiting out the gap.
type autosaver struct {
	sched    Scheduler
	now      func() time.Time
	dirty    func() bool
	save     func() error
	onStatus func(SaveStatus)

	mu       sync.Mutex
	status   SaveStatus
	lastSave time.Time
	stopped  bool
	cancel   CancelFunc
	revert   CancelFunc
}

func startAutosaver(sched Scheduler, now func() time.Time, dirty func() bool, save func() error, onStatus func(SaveStatus)) *autosaver {
	a := &autosaver{
		sched:    sched,
		now:      now,
		dirty:    dirty,
		save:     save,
		onStatus: onStatus,
		status:   SaveIdle,
	}
	a.cancel = sched.Every(autosaveCheckEvery, a.tick)
	return a
}

func (a *autosaver) tick() {
	a.mu.Lock()
	if a.stopped || a.status == SaveSaving {
		a.mu.Unlock()
		return
	}
	if !a.lastSave.IsZero() && a.now().Sub(a.lastSave) < autosaveMinGap {
		a.mu.Unlock()
		return
	}
	a.mu.Unlock()

	if !a.dirty() {
		return
	}

	a.setStatus(SaveSaving, 0)
	if err := a.save(); err != nil {
		a.setStatus(SaveError, errorStatusReset)
		return
	}

	a.mu.Lock()
	a.lastSave = a.now()
	a.mu.Unlock()
	a.setStatus(SaveSaved, savedStatusReset)
}

// setStatus publishes a status and, when resetAfter is nonzero, schedules
// the fall back to idle so the indicator never sticks.
func (a *autosaver) setStatus(s SaveStatus, resetAfter time.Duration) {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.status = s
	if a.revert != nil {
		a.revert()
		a.revert = nil
	}
	if resetAfter > 0 {
		a.revert = a.sched.After(resetAfter, func() { a.setStatus(SaveIdle, 0) })
	}
	a.mu.Unlock()
	a.onStatus(s)
}

func (a *autosaver) Status() SaveStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

func (a *autosaver) Stop() {
	a.mu.Lock()
	a.stopped = true
	cancel, revert := a.cancel, a.revert
	a.cancel, a.revert = nil, nil
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if revert != nil {
		revert()
	}
}
