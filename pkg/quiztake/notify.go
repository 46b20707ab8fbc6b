package quiztake

import "time"

// Notifier is how the engine reports to the UI layer. Callbacks arrive on
// timer goroutines; implementations should be quick and must not call back
// into the engine except for ContinueAfterViolations' return value.
type Notifier interface {
	// Tick fires once per second with the time left on a timed attempt.
	Tick(remaining time.Duration)
	// SaveStatus reports autosave indicator transitions.
	SaveStatus(status SaveStatus)
	// Violation fires on every focus-loss event with the running count.
	Violation(count int)
	// LongAbsence fires when the user returns after being away longer than
	// the advisory window. Softer than a violation.
	LongAbsence(away time.Duration)
	// LastQuestion fires when the final question's answer was accepted; the
	// UI should now offer the finish confirmation instead of auto-finishing.
	LastQuestion()
	// ContinueAfterViolations is the blocking prompt at the violation
	// threshold. Returning false submits the attempt immediately.
	ContinueAfterViolations(count int) bool
	// FinalizeFailed reports a failed forced submission; the engine retries
	// on its own shortly after.
	FinalizeFailed(err error)
}

// NopNotifier ignores everything and always continues.
type NopNotifier struct{}

func (NopNotifier) Tick(time.Duration)               {}
func (NopNotifier) SaveStatus(SaveStatus)            {}
func (NopNotifier) Violation(int)                    {}
func (NopNotifier) LongAbsence(time.Duration)        {}
func (NopNotifier) LastQuestion()                    {}
func (NopNotifier) ContinueAfterViolations(int) bool { return true }
func (NopNotifier) FinalizeFailed(error)             {}
