package quiztake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// State of the attempt as the engine sees it.
type State int

const (
	NotStarted State = iota
	InProgress
	Completed
	TimedOut
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case InProgress:
		return "in_progress"
	case Completed:
		return "completed"
	case TimedOut:
		return "timed_out"
	}
	return "unknown"
}

const finalizeRetryDelay = 5 * time.Second

// Engine is the attempt state machine. One Engine drives one attempt; build
// a new one for the next attempt.
type Engine struct {
	backend Backend
	sched   Scheduler
	notify  Notifier
	focus   FocusSource
	now     func() time.Time

	mu         sync.Mutex
	state      State
	quiz       Quiz
	attempt    Attempt
	index      int
	buf        *buffer
	inflight   map[string]bool
	finalizing bool
	closed     bool
	clock      *Countdown
	saver      *autosaver
	mon        *monitor
	retry      CancelFunc
}

type Option func(*Engine)

// WithScheduler swaps the timer source; tests drive ticks by hand.
func WithScheduler(s Scheduler) Option { return func(e *Engine) { e.sched = s } }

// WithNotifier installs the UI callback sink.
func WithNotifier(n Notifier) Option { return func(e *Engine) { e.notify = n } }

// WithFocusSource installs the visibility signal used by the integrity
// monitor on timed quizzes.
func WithFocusSource(src FocusSource) Option { return func(e *Engine) { e.focus = src } }

// WithClock overrides the wall clock; tests pin it.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func New(backend Backend, opts ...Option) *Engine {
	e := &Engine{
		backend:  backend,
		sched:    NewTickerScheduler(),
		notify:   NopNotifier{},
		focus:    NopFocusSource{},
		now:      time.Now,
		buf:      newBuffer(),
		inflight: make(map[string]bool),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Start fetches the quiz, opens (or resumes) an attempt and arms the clock,
// autosaver and integrity monitor. The countdown is seeded from the
// attempt's server-side start time, so reloading mid-attempt does not hand
// out fresh time.
func (e *Engine) Start(ctx context.Context, quizID string) error {
	e.mu.Lock()
	if e.state != NotStarted {
		e.mu.Unlock()
		return fmt.Errorf("quiztake: attempt already started (state %s)", e.state)
	}
	e.mu.Unlock()

	q, err := e.backend.GetQuiz(ctx, quizID)
	if err != nil {
		return err
	}
	if len(q.Questions) == 0 {
		return fmt.Errorf("quiztake: quiz %s has no questions", quizID)
	}
	if q.AttemptsExhausted() {
		return ErrAttemptLimit
	}

	a, err := e.backend.StartAttempt(ctx, quizID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.quiz = q
	e.attempt = a
	e.state = InProgress
	e.index = 0
	e.buf.seed(a.Answers)
	e.mu.Unlock()

	timed := q.TimeLimit > 0
	if timed {
		remaining := time.Duration(q.TimeLimit)*time.Minute - e.now().Sub(time.Unix(a.StartTime, 0))
		if remaining <= 0 {
			// Resumed an attempt whose window already closed.
			e.forceFinalize(true)
			return nil
		}
		clock := startCountdown(e.sched, remaining, e.onTick, func() { e.forceFinalize(true) })
		mon := startMonitor(e.focus, e.onViolation, e.onThreshold, e.notify.LongAbsence)
		e.mu.Lock()
		if e.closed {
			e.mu.Unlock()
			clock.Stop()
			mon.Stop()
			return nil
		}
		e.clock = clock
		e.mon = mon
		e.mu.Unlock()
	}

	saver := startAutosaver(e.sched, e.now, e.currentDirty, func() error {
		return e.flushCurrent(context.Background())
	}, e.notify.SaveStatus)
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		saver.Stop()
		return nil
	}
	e.saver = saver
	e.mu.Unlock()
	return nil
}

// RecordChoice stages a choice for the current question. Local only; no
// network call until submit or autosave.
func (e *Engine) RecordChoice(choiceID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != InProgress {
		return ErrNotInProgress
	}
	q := e.quiz.Questions[e.index]
	if q.QuestionType == TypeShortAnswer {
		return fmt.Errorf("quiztake: question %s takes a text answer", q.ID)
	}
	found := false
	for _, c := range q.Choices {
		if c.ID == choiceID {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("quiztake: choice %s does not belong to question %s", choiceID, q.ID)
	}
	e.buf.recordChoice(q, choiceID)
	return nil
}

// RecordText stages free text for the current (short-answer) question.
func (e *Engine) RecordText(text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != InProgress {
		return ErrNotInProgress
	}
	q := e.quiz.Questions[e.index]
	if q.QuestionType != TypeShortAnswer {
		return fmt.Errorf("quiztake: question %s takes choices, not text", q.ID)
	}
	e.buf.recordText(q.ID, text)
	return nil
}

// SubmitCurrent sends the staged answer for the current question and moves
// to the next one. On the last question it stays put and raises the finish
// confirmation instead. A submission already in flight for the same
// question blocks a second one.
func (e *Engine) SubmitCurrent(ctx context.Context) error {
	e.mu.Lock()
	if e.state != InProgress {
		e.mu.Unlock()
		return ErrNotInProgress
	}
	q := e.quiz.Questions[e.index]
	if e.buf.empty(q) {
		e.mu.Unlock()
		return ErrEmptyAnswer
	}
	if e.inflight[q.ID] {
		e.mu.Unlock()
		return ErrInFlight
	}
	e.inflight[q.ID] = true
	r, _ := e.buf.response(q.ID)
	attemptID := e.attempt.ID
	e.mu.Unlock()

	ans, err := e.backend.SubmitAnswer(ctx, attemptID, q.ID, r.ChoiceIDs, strings.TrimSpace(r.Text))

	e.mu.Lock()
	delete(e.inflight, q.ID)
	if err != nil {
		// Buffer stays dirty; the autosaver retries on its cadence.
		e.mu.Unlock()
		return err
	}
	if e.state != InProgress {
		e.mu.Unlock()
		return nil
	}
	e.buf.markClean(q.ID)
	e.patchAnswerLocked(ans)
	last := e.index >= len(e.quiz.Questions)-1
	if !last {
		e.index++
	}
	e.mu.Unlock()

	if last {
		e.notify.LastQuestion()
	}
	return nil
}

// Navigate jumps to the question at idx, flushing the current question's
// unsaved changes first via the autosave path. A failed flush keeps the
// buffer dirty but does not block the move.
func (e *Engine) Navigate(ctx context.Context, idx int) error {
	e.mu.Lock()
	if e.state != InProgress {
		e.mu.Unlock()
		return ErrNotInProgress
	}
	if idx < 0 || idx >= len(e.quiz.Questions) {
		e.mu.Unlock()
		return fmt.Errorf("quiztake: question index %d out of range", idx)
	}
	cur := e.quiz.Questions[e.index]
	needFlush := e.buf.isDirty(cur.ID)
	e.mu.Unlock()

	if needFlush {
		_ = e.flushCurrent(ctx)
	}

	e.mu.Lock()
	if e.state == InProgress {
		e.index = idx
	}
	e.mu.Unlock()
	return nil
}

// Next and Prev are Navigate shorthands clamped to the question range.
func (e *Engine) Next(ctx context.Context) error {
	e.mu.Lock()
	idx := e.index + 1
	if idx >= len(e.quiz.Questions) {
		idx = len(e.quiz.Questions) - 1
	}
	e.mu.Unlock()
	return e.Navigate(ctx, idx)
}

func (e *Engine) Prev(ctx context.Context) error {
	e.mu.Lock()
	idx := e.index - 1
	if idx < 0 {
		idx = 0
	}
	e.mu.Unlock()
	return e.Navigate(ctx, idx)
}

// Finalize is the user-confirmed submission of the whole attempt. On
// failure the attempt stays in progress and the caller may retry.
func (e *Engine) Finalize(ctx context.Context) error {
	return e.finalize(ctx, false)
}

func (e *Engine) finalize(ctx context.Context, timedOut bool) error {
	e.mu.Lock()
	if e.state != InProgress {
		e.mu.Unlock()
		return nil
	}
	if e.finalizing {
		e.mu.Unlock()
		return ErrInFlight
	}
	e.finalizing = true
	attemptID := e.attempt.ID
	e.mu.Unlock()

	a, err := e.backend.FinalizeAttempt(ctx, attemptID, timedOut)

	e.mu.Lock()
	e.finalizing = false
	if err != nil {
		e.mu.Unlock()
		return err
	}
	e.attempt = a
	if a.Status == StatusTimedOut {
		e.state = TimedOut
	} else {
		e.state = Completed
	}
	clock, saver, mon, retry := e.clock, e.saver, e.mon, e.retry
	e.clock, e.saver, e.mon, e.retry = nil, nil, nil, nil
	e.mu.Unlock()

	stopAll(clock, saver, mon, retry)
	return nil
}

// forceFinalize is the clock-expiry / integrity path: no confirmation, and
// failures are retried on a short delay because nobody is there to click a
// retry button.
func (e *Engine) forceFinalize(timedOut bool) {
	err := e.finalize(context.Background(), timedOut)
	if err == nil || errors.Is(err, ErrInFlight) {
		return
	}
	e.notify.FinalizeFailed(err)

	e.mu.Lock()
	if e.state == InProgress && !e.closed {
		if e.retry != nil {
			e.retry()
		}
		e.retry = e.sched.After(finalizeRetryDelay, func() { e.forceFinalize(timedOut) })
	}
	e.mu.Unlock()
}

// Close tears the engine down: clock, autosaver and monitor all stop, no
// timer fires afterwards. Call when leaving the quiz view. Idempotent.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	clock, saver, mon, retry := e.clock, e.saver, e.mon, e.retry
	e.clock, e.saver, e.mon, e.retry = nil, nil, nil, nil
	e.mu.Unlock()

	stopAll(clock, saver, mon, retry)
}

func stopAll(clock *Countdown, saver *autosaver, mon *monitor, retry CancelFunc) {
	if clock != nil {
		clock.Stop()
	}
	if saver != nil {
		saver.Stop()
	}
	if mon != nil {
		mon.Stop()
	}
	if retry != nil {
		retry()
	}
}

// ---- timer callbacks ----

func (e *Engine) onTick(remaining time.Duration) {
	if e.State() == InProgress {
		e.notify.Tick(remaining)
	}
}

func (e *Engine) onViolation(count int) {
	if e.State() == InProgress {
		e.notify.Violation(count)
	}
}

func (e *Engine) onThreshold() {
	if e.State() != InProgress {
		return
	}
	if !e.notify.ContinueAfterViolations(violationThreshold) {
		e.forceFinalize(false)
	}
}

// currentDirty gates the autosaver: only the current question, only while
// in progress, and never while its submission is on the wire.
func (e *Engine) currentDirty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.state != InProgress {
		return false
	}
	q := e.quiz.Questions[e.index]
	return e.buf.isDirty(q.ID) && !e.inflight[q.ID]
}

// flushCurrent is the autosave submission: same wire call as SubmitCurrent
// but no emptiness validation, no index advance, no finish prompt.
func (e *Engine) flushCurrent(ctx context.Context) error {
	e.mu.Lock()
	if e.closed || e.state != InProgress {
		e.mu.Unlock()
		return nil
	}
	q := e.quiz.Questions[e.index]
	if !e.buf.isDirty(q.ID) || e.inflight[q.ID] {
		e.mu.Unlock()
		return nil
	}
	e.inflight[q.ID] = true
	r, _ := e.buf.response(q.ID)
	attemptID := e.attempt.ID
	e.mu.Unlock()

	ans, err := e.backend.SubmitAnswer(ctx, attemptID, q.ID, r.ChoiceIDs, strings.TrimSpace(r.Text))

	e.mu.Lock()
	delete(e.inflight, q.ID)
	if err == nil && e.state == InProgress {
		e.buf.markClean(q.ID)
		e.patchAnswerLocked(ans)
	}
	e.mu.Unlock()
	return err
}

// patchAnswerLocked upserts one answer into the attempt by question id.
func (e *Engine) patchAnswerLocked(ans Answer) {
	for i := range e.attempt.Answers {
		if e.attempt.Answers[i].Question.ID == ans.Question.ID {
			e.attempt.Answers[i] = ans
			return
		}
	}
	e.attempt.Answers = append(e.attempt.Answers, ans)
}

// ---- view state ----

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) Quiz() Quiz {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.quiz
}

// Attempt returns the engine's latest view of the attempt, including the
// authoritative score once finalized.
func (e *Engine) Attempt() Attempt {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.attempt
}

// Current returns the question in focus and its zero-based index.
func (e *Engine) Current() (Question, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == NotStarted || len(e.quiz.Questions) == 0 {
		return Question{}, 0
	}
	return e.quiz.Questions[e.index], e.index
}

// Response returns the staged answer for a question, if any.
func (e *Engine) Response(questionID string) (Response, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buf.response(questionID)
}

// Remaining reports the countdown; zero for untimed quizzes.
func (e *Engine) Remaining() time.Duration {
	e.mu.Lock()
	clock := e.clock
	e.mu.Unlock()
	if clock == nil {
		return 0
	}
	return clock.Remaining()
}

func (e *Engine) SaveStatus() SaveStatus {
	e.mu.Lock()
	saver := e.saver
	e.mu.Unlock()
	if saver == nil {
		return SaveIdle
	}
	return saver.Status()
}

func (e *Engine) Violations() int {
	e.mu.Lock()
	mon := e.mon
	e.mu.Unlock()
	if mon == nil {
		return 0
	}
	return mon.Violations()
}

// Progress reports how many questions have an accepted answer on the
// server, out of the total.
func (e *Engine) Progress() (answered, total int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.attempt.Answers), len(e.quiz.Questions)
}
