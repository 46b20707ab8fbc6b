package quiztake

import (
	"sync"
	"time"
)

const (
	violationThreshold = 3
	longAbsence        = 30 * time.Second
)

// FocusEvent is one page-visibility transition: Hidden=true when the user
// leaves the page, Hidden=false on return.
type FocusEvent struct {
	Hidden bool
	At     time.Time
}

// FocusSource delivers visibility transitions. Outside of tests this is
// whatever the host UI can observe (a browser bridge, a terminal focus
// hook); NopFocusSource disables monitoring entirely.
type FocusSource interface {
	Subscribe(fn func(FocusEvent)) CancelFunc
}

// NopFocusSource never emits events.
type NopFocusSource struct{}

func (NopFocusSource) Subscribe(func(FocusEvent)) CancelFunc { return func() {} }

// monitor counts focus-loss violations during a timed attempt. Every loss
// raises a warning; the third raises the blocking continue-or-submit
// prompt, exactly once. A return after a long absence raises a softer
// advisory instead of another violation.
type monitor struct {
	onViolation func(count int)
	onThreshold func()
	onReturn    func(away time.Duration)

	mu         sync.Mutex
	violations int
	hiddenAt   time.Time
	prompted   bool
	stopped    bool
	cancel     CancelFunc
}

func startMonitor(src FocusSource, onViolation func(int), onThreshold func(), onReturn func(time.Duration)) *monitor {
	m := &monitor{
		onViolation: onViolation,
		onThreshold: onThreshold,
		onReturn:    onReturn,
	}
	m.cancel = src.Subscribe(m.handle)
	return m
}

func (m *monitor) handle(ev FocusEvent) {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	if ev.Hidden {
		m.violations++
		m.hiddenAt = ev.At
		count := m.violations
		prompt := count == violationThreshold && !m.prompted
		if prompt {
			m.prompted = true
		}
		m.mu.Unlock()

		m.onViolation(count)
		if prompt {
			m.onThreshold()
		}
		return
	}
	var away time.Duration
	if !m.hiddenAt.IsZero() {
		away = ev.At.Sub(m.hiddenAt)
		m.hiddenAt = time.Time{}
	}
	m.mu.Unlock()

	if away > longAbsence {
		m.onReturn(away)
	}
}

func (m *monitor) Violations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.violations
}

func (m *monitor) Stop() {
	m.mu.Lock()
	m.stopped = true
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
