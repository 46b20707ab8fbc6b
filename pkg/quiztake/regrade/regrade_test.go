package regrade

import (
	"context"
	"strings"
	"testing"

	"github.com/RozzleCort/edu-platform/pkg/quiztake"
)

type fakeBackend struct {
	answers map[string][]quiztake.Answer // by question id
	attempt quiztake.Attempt
	grades  int
}

func (f *fakeBackend) ListQuestionAnswers(ctx context.Context, questionID string) ([]quiztake.Answer, error) {
	return f.answers[questionID], nil
}

func (f *fakeBackend) GetAttempt(ctx context.Context, attemptID string) (quiztake.Attempt, error) {
	return f.attempt, nil
}

func (f *fakeBackend) GradeAnswer(ctx context.Context, answerID string, score float64, feedback string) (quiztake.Answer, error) {
	f.grades++
	for _, answers := range f.answers {
		for _, a := range answers {
			if a.ID == answerID {
				a.Score = score
				a.Feedback = feedback
				a.Graded = true
				return a, nil
			}
		}
	}
	return quiztake.Answer{}, quiztake.ErrNotFound
}

func shortQuestion() quiztake.Question {
	return quiztake.Question{ID: "q3", QuestionType: quiztake.TypeShortAnswer, Points: 5}
}

func newFake() *fakeBackend {
	ans := quiztake.Answer{
		ID:         "ans-1",
		AttemptID:  "att-1",
		Question:   shortQuestion(),
		TextAnswer: "because the TTL hits zero",
	}
	return &fakeBackend{
		answers: map[string][]quiztake.Answer{"q3": {ans}},
		attempt: quiztake.Attempt{ID: "att-1", Status: quiztake.StatusCompleted, Answers: []quiztake.Answer{ans}},
	}
}

func TestGradePatchesEveryLoadedView(t *testing.T) {
	fb := newFake()
	r := New(fb)
	ctx := context.Background()

	if _, err := r.LoadQuestion(ctx, "q3"); err != nil {
		t.Fatalf("LoadQuestion: %v", err)
	}
	if _, err := r.LoadAttempt(ctx, "att-1"); err != nil {
		t.Fatalf("LoadAttempt: %v", err)
	}

	graded, err := r.Grade(ctx, "ans-1", 4, "close enough")
	if err != nil {
		t.Fatalf("Grade: %v", err)
	}
	if graded.Score != 4 || graded.Feedback != "close enough" || !graded.Graded {
		t.Fatalf("graded = %+v", graded)
	}

	// The flat worklist and the loaded attempt must show the same answer.
	flat := r.Answers()
	if len(flat) != 1 || flat[0].Score != 4 || flat[0].Feedback != "close enough" {
		t.Fatalf("flat list not patched: %+v", flat)
	}
	at, ok := r.Attempt("att-1")
	if !ok {
		t.Fatalf("attempt gone from cache")
	}
	if len(at.Answers) != 1 || at.Answers[0].Score != 4 || at.Answers[0].Feedback != "close enough" {
		t.Fatalf("attempt answers not patched: %+v", at.Answers)
	}
}

func TestGradeScoreOutOfRangeIsLocal(t *testing.T) {
	fb := newFake()
	r := New(fb)
	ctx := context.Background()
	if _, err := r.LoadQuestion(ctx, "q3"); err != nil {
		t.Fatalf("LoadQuestion: %v", err)
	}

	for _, score := range []float64{-1, 5.5} {
		if _, err := r.Grade(ctx, "ans-1", score, ""); err == nil {
			t.Fatalf("score %.1f accepted, want out-of-range error", score)
		} else if !strings.Contains(err.Error(), "out of range") {
			t.Fatalf("err = %v", err)
		}
	}
	if fb.grades != 0 {
		t.Fatalf("invalid score reached the network")
	}
}

func TestGradeRejectsObjectiveAnswer(t *testing.T) {
	fb := newFake()
	fb.answers["q3"][0].Question.QuestionType = quiztake.TypeSingleChoice
	r := New(fb)
	ctx := context.Background()
	if _, err := r.LoadQuestion(ctx, "q3"); err != nil {
		t.Fatalf("LoadQuestion: %v", err)
	}

	if _, err := r.Grade(ctx, "ans-1", 3, ""); err == nil {
		t.Fatalf("grading an objective answer should fail")
	}
	if fb.grades != 0 {
		t.Fatalf("rejected grade reached the network")
	}
}

func TestRegradeOverwrites(t *testing.T) {
	fb := newFake()
	r := New(fb)
	ctx := context.Background()
	if _, err := r.LoadQuestion(ctx, "q3"); err != nil {
		t.Fatalf("LoadQuestion: %v", err)
	}

	if _, err := r.Grade(ctx, "ans-1", 2, "partial"); err != nil {
		t.Fatalf("Grade: %v", err)
	}
	if _, err := r.Grade(ctx, "ans-1", 5, "full credit on review"); err != nil {
		t.Fatalf("re-Grade: %v", err)
	}

	flat := r.Answers()
	if flat[0].Score != 5 || flat[0].Feedback != "full credit on review" {
		t.Fatalf("regrade did not overwrite: %+v", flat[0])
	}
	if fb.grades != 2 {
		t.Fatalf("grade calls = %d, want 2", fb.grades)
	}
}
