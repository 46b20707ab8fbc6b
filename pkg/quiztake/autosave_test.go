package quiztake

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type autosaveHarness struct {
	sched *manualScheduler
	now   time.Time
	nowMu sync.Mutex

	dirty    bool
	saveErr  error
	saves    int
	statuses []SaveStatus
	saver    *autosaver
}

func newAutosaveHarness() *autosaveHarness {
	h := &autosaveHarness{
		sched: &manualScheduler{},
		now:   time.Unix(1_700_000_000, 0),
	}
	h.saver = startAutosaver(h.sched,
		func() time.Time { h.nowMu.Lock(); defer h.nowMu.Unlock(); return h.now },
		func() bool { return h.dirty },
		func() error {
			h.saves++
			if h.saveErr != nil {
				return h.saveErr
			}
			h.dirty = false
			return nil
		},
		func(s SaveStatus) { h.statuses = append(h.statuses, s) })
	return h
}

func (h *autosaveHarness) advance(d time.Duration) {
	h.nowMu.Lock()
	h.now = h.now.Add(d)
	h.nowMu.Unlock()
}

// check advances the wall clock past one check interval and fires the tick.
func (h *autosaveHarness) check() {
	h.advance(autosaveCheckEvery)
	h.sched.tick(autosaveCheckEvery)
}

func TestAutosaveSkipsCleanBuffer(t *testing.T) {
	h := newAutosaveHarness()
	for i := 0; i < 10; i++ {
		h.check()
	}
	if h.saves != 0 {
		t.Fatalf("saves = %d, want 0 while clean", h.saves)
	}
	if len(h.statuses) != 0 {
		t.Fatalf("statuses = %v, want none while clean", h.statuses)
	}
}

func TestAutosaveSavesDirtyBuffer(t *testing.T) {
	h := newAutosaveHarness()
	h.dirty = true
	h.check()
	if h.saves != 1 {
		t.Fatalf("saves = %d, want 1", h.saves)
	}
	if len(h.statuses) != 2 || h.statuses[0] != SaveSaving || h.statuses[1] != SaveSaved {
		t.Fatalf("statuses = %v, want [saving saved]", h.statuses)
	}
	if h.saver.Status() != SaveSaved {
		t.Fatalf("status = %v, want saved", h.saver.Status())
	}

	// The saved badge falls back to idle shortly after.
	h.sched.tick(savedStatusReset)
	if h.saver.Status() != SaveIdle {
		t.Fatalf("status = %v, want idle after reset", h.saver.Status())
	}
}

func TestAutosaveHonorsMinimumGap(t *testing.T) {
	h := newAutosaveHarness()
	h.dirty = true
	h.check()
	if h.saves != 1 {
		t.Fatalf("saves = %d, want 1", h.saves)
	}

	// Dirty again right away: checks keep firing but the save waits out
	// the minimum gap.
	h.dirty = true
	for i := 0; i < 5; i++ { // 25s elapsed, still inside the gap
		h.check()
	}
	if h.saves != 1 {
		t.Fatalf("saved inside the minimum gap (saves=%d)", h.saves)
	}
	h.check() // 30s elapsed
	if h.saves != 2 {
		t.Fatalf("saves = %d, want 2 once the gap elapsed", h.saves)
	}
}

func TestAutosaveErrorRetriesNextTick(t *testing.T) {
	h := newAutosaveHarness()
	h.dirty = true
	h.saveErr = errors.New("network down")

	h.check()
	if h.saves != 1 {
		t.Fatalf("saves = %d, want 1", h.saves)
	}
	if h.saver.Status() != SaveError {
		t.Fatalf("status = %v, want error", h.saver.Status())
	}

	// A failed save does not consume the minimum gap: the still-dirty
	// buffer is retried on every following check.
	h.check()
	if h.saves != 2 {
		t.Fatalf("saves = %d, want a retry on the next check", h.saves)
	}

	// Recovery saves on the very next check, and the gap restarts from
	// that success.
	h.saveErr = nil
	h.check()
	if h.saves != 3 {
		t.Fatalf("saves = %d, want 3 after recovery", h.saves)
	}
	if h.saver.Status() != SaveSaved {
		t.Fatalf("status = %v, want saved", h.saver.Status())
	}

	h.dirty = true
	for i := 0; i < 5; i++ { // 25s since the successful save
		h.check()
	}
	if h.saves != 3 {
		t.Fatalf("saved inside the minimum gap (saves=%d)", h.saves)
	}
	h.check()
	if h.saves != 4 {
		t.Fatalf("saves = %d, want 4 once the gap elapsed", h.saves)
	}
}

func TestAutosaveErrorBadgeResets(t *testing.T) {
	h := newAutosaveHarness()
	h.dirty = true
	h.saveErr = errors.New("network down")
	h.check()
	if h.saver.Status() != SaveError {
		t.Fatalf("status = %v, want error", h.saver.Status())
	}

	// Once the buffer is flushed elsewhere (a manual submit), the error
	// badge falls back to idle instead of sticking.
	h.dirty = false
	h.sched.tick(errorStatusReset)
	if h.saver.Status() != SaveIdle {
		t.Fatalf("status = %v, want idle after error reset", h.saver.Status())
	}
	if h.saves != 1 {
		t.Fatalf("clean buffer saved again (saves=%d)", h.saves)
	}
}

func TestAutosaveStop(t *testing.T) {
	h := newAutosaveHarness()
	h.dirty = true
	h.saver.Stop()
	for i := 0; i < 10; i++ {
		h.check()
	}
	if h.saves != 0 {
		t.Fatalf("saved after Stop")
	}
	if h.sched.live() != 0 {
		t.Fatalf("autosave tasks still live after Stop")
	}
}
