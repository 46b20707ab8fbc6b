package grading

import (
	"context"
	"errors"
)

// Q is a minimal view of a question needed for grading.
type Q struct {
	Type       string
	Points     float64
	CorrectIDs []string // ids of the correct choices; empty for short_answer
}

// Response is what the student submitted for one question: the selected
// choice ids for objective types, or free text for short_answer.
type Response struct {
	ChoiceIDs []string
	Text      string
}

// Result is the outcome of grading a single question response.
type Result struct {
	Points      float64 // points awarded automatically
	MaxPoints   float64 // the question's max points
	IsCorrect   bool
	NeedsManual bool // true if teacher review is required
}

// Strategy grades a single question.
type Strategy interface {
	Grade(ctx context.Context, q Q, resp Response) (Result, error)
}

// Grader routes by question type to the correct Strategy.
type Grader interface {
	Grade(ctx context.Context, q Q, resp Response) (Result, error)
}

type defaultGrader struct {
	strategies map[string]Strategy
}

func (g *defaultGrader) Grade(ctx context.Context, q Q, resp Response) (Result, error) {
	s, ok := g.strategies[q.Type]
	if !ok {
		return Result{}, errors.New("unknown question type: " + q.Type)
	}
	return s.Grade(ctx, q, resp)
}

type Option func(*config)

type config struct {
	AllowPartialMulti bool // partial credit for multiple_choice
}

func WithPartialMulti(b bool) Option { return func(c *config) { c.AllowPartialMulti = b } }

// NewDefaultGrader installs built-in strategies.
func NewDefaultGrader(opts ...Option) Grader {
	cfg := &config{AllowPartialMulti: true}
	for _, o := range opts {
		o(cfg)
	}
	return &defaultGrader{
		strategies: map[string]Strategy{
			"single_choice":   exactMatchStrategy{},
			"true_false":      exactMatchStrategy{},
			"multiple_choice": multiChoiceStrategy{allowPartial: cfg.AllowPartialMulti},
			"short_answer":    manualStrategy{},
		},
	}
}

// --- Strategies ---

type exactMatchStrategy struct{}

func (exactMatchStrategy) Grade(_ context.Context, q Q, resp Response) (Result, error) {
	res := Result{MaxPoints: q.Points}
	if len(resp.ChoiceIDs) != 1 {
		return res, errors.New("exactly one choice required")
	}
	if setEqual(toSet(resp.ChoiceIDs), toSet(q.CorrectIDs)) {
		res.Points = q.Points
		res.IsCorrect = true
	}
	return res, nil
}

type multiChoiceStrategy struct{ allowPartial bool }

// Partial credit: fraction of correct choices picked, minus a penalty of one
// correct-choice share per wrong pick, floored at zero. A score of at least
// half the points counts as correct.
func (s multiChoiceStrategy) Grade(_ context.Context, q Q, resp Response) (Result, error) {
	res := Result{MaxPoints: q.Points}
	if len(resp.ChoiceIDs) == 0 {
		return res, errors.New("at least one choice required")
	}
	correct := toSet(q.CorrectIDs)
	picked := toSet(resp.ChoiceIDs)
	if len(correct) == 0 {
		return res, nil
	}

	if setEqual(correct, picked) {
		res.Points = q.Points
		res.IsCorrect = true
		return res, nil
	}
	if !s.allowPartial {
		return res, nil
	}

	hits, misses := 0, 0
	for id := range picked {
		if _, ok := correct[id]; ok {
			hits++
		} else {
			misses++
		}
	}
	frac := float64(hits)/float64(len(correct)) - float64(misses)/float64(len(correct))
	if frac < 0 {
		frac = 0
	}
	res.Points = q.Points * frac
	res.IsCorrect = res.Points >= q.Points*0.5
	return res, nil
}

type manualStrategy struct{}

func (manualStrategy) Grade(_ context.Context, q Q, _ Response) (Result, error) {
	return Result{MaxPoints: q.Points, NeedsManual: true}, nil
}

// helpers

func toSet(arr []string) map[string]struct{} {
	m := make(map[string]struct{}, len(arr))
	for _, s := range arr {
		m[s] = struct{}{}
	}
	return m
}

func setEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
