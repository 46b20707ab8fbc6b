// Package quiztake drives the client side of a timed quiz attempt: a small
// state machine that owns the countdown clock, the per-question answer
// buffer, periodic autosave and the focus-loss integrity monitor, talking to
// the platform through the Backend interface. A UI layer (terminal, web
// frontend) feeds it user events and renders what the Notifier reports.
package quiztake

import (
	"context"
	"errors"
)

// Question types.
const (
	TypeSingleChoice   = "single_choice"
	TypeMultipleChoice = "multiple_choice"
	TypeTrueFalse      = "true_false"
	TypeShortAnswer    = "short_answer"
)

// Attempt statuses on the wire.
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusTimedOut   = "timed_out"
)

type Choice struct {
	ID         string `json:"id"`
	ChoiceText string `json:"choice_text"`
	// Only present on post-attempt review payloads.
	IsCorrect *bool `json:"is_correct,omitempty"`
}

type Question struct {
	ID           string   `json:"id"`
	QuestionText string   `json:"question_text"`
	QuestionType string   `json:"question_type"`
	Points       float64  `json:"points"`
	Explanation  string   `json:"explanation,omitempty"`
	Order        int      `json:"order"`
	Choices      []Choice `json:"choices"`
}

type Quiz struct {
	ID                    string     `json:"id"`
	Title                 string     `json:"title"`
	Description           string     `json:"description"`
	TimeLimit             int        `json:"time_limit"` // minutes, 0 = untimed
	PassScore             float64    `json:"pass_score"` // percent
	AllowMultipleAttempts bool       `json:"allow_multiple_attempts"`
	MaxAttempts           int        `json:"max_attempts"` // 0 = unlimited
	RandomizeQuestions    bool       `json:"randomize_questions"`
	ShowCorrectAnswers    bool       `json:"show_correct_answers"`
	Questions             []Question `json:"questions"`
	UserAttemptsCount     *int       `json:"user_attempts_count,omitempty"` // finished attempts by the caller
}

// AttemptsExhausted reports whether the caller has already used every
// allowed attempt. The platform annotates the quiz with the caller's count
// of finished attempts; an open attempt is not in it, so a fresh start
// resumes instead of tripping this gate.
func (q Quiz) AttemptsExhausted() bool {
	if q.UserAttemptsCount == nil {
		return false
	}
	limit := q.MaxAttempts
	if !q.AllowMultipleAttempts {
		limit = 1
	}
	return limit > 0 && *q.UserAttemptsCount >= limit
}

type Answer struct {
	ID              string   `json:"id"`
	AttemptID       string   `json:"quiz_attempt"`
	Question        Question `json:"question"`
	SelectedChoices []Choice `json:"selected_choices"`
	TextAnswer      string   `json:"text_answer"`
	IsCorrect       bool     `json:"is_correct"`
	Score           float64  `json:"score"`
	Feedback        string   `json:"feedback,omitempty"`
	Graded          bool     `json:"graded"`
}

type Attempt struct {
	ID            string   `json:"id"`
	UserID        string   `json:"user"`
	QuizID        string   `json:"quiz"`
	Status        string   `json:"status"`
	Score         float64  `json:"score"` // 0-100
	Passed        bool     `json:"passed"`
	AttemptNumber int      `json:"attempt_number"`
	StartTime     int64    `json:"start_time"` // unix seconds
	EndTime       *int64   `json:"end_time,omitempty"`
	Answers       []Answer `json:"answers"`
}

// Response is the staged answer for one question: choice ids for the
// choice-backed types, free text for short answers. Which field applies is
// decided by the question's declared type, never by shape.
type Response struct {
	ChoiceIDs []string
	Text      string
}

// Backend is the slice of the platform API the attempt engine needs.
// quizhttp.Client satisfies it; tests inject a fake.
type Backend interface {
	GetQuiz(ctx context.Context, quizID string) (Quiz, error)
	StartAttempt(ctx context.Context, quizID string) (Attempt, error)
	GetAttempt(ctx context.Context, attemptID string) (Attempt, error)
	SubmitAnswer(ctx context.Context, attemptID, questionID string, choiceIDs []string, text string) (Answer, error)
	FinalizeAttempt(ctx context.Context, attemptID string, timedOut bool) (Attempt, error)
}

var (
	// ErrNotFound maps the platform's 404s.
	ErrNotFound = errors.New("quiztake: not found")
	// ErrAttemptLimit is returned by Start when every allowed attempt has
	// been used. Blocking, no retry path.
	ErrAttemptLimit = errors.New("quiztake: attempt limit reached")
	// ErrEmptyAnswer is returned by SubmitCurrent when the current question
	// has no selection or only blank text. A user warning, not fatal.
	ErrEmptyAnswer = errors.New("quiztake: answer is empty")
	// ErrInFlight is returned when a submission for the same question, or a
	// second finalize, is already on the wire.
	ErrInFlight = errors.New("quiztake: submission already in flight")
	// ErrNotInProgress guards every mutation once the attempt is terminal.
	ErrNotInProgress = errors.New("quiztake: attempt is not in progress")
)
