// Package regrade is the teacher-side reconciliation of manually graded
// short answers: load the ungraded answers for a question (or one
// attempt's answers), submit a score + feedback, and keep every loaded
// view of that answer consistent without a reload.
package regrade

import (
	"context"
	"fmt"
	"sync"

	"github.com/RozzleCort/edu-platform/pkg/quiztake"
)

// Backend is the slice of the platform API the reconciler needs.
// quizhttp.Client satisfies it.
type Backend interface {
	ListQuestionAnswers(ctx context.Context, questionID string) ([]quiztake.Answer, error)
	GetAttempt(ctx context.Context, attemptID string) (quiztake.Attempt, error)
	GradeAnswer(ctx context.Context, answerID string, score float64, feedback string) (quiztake.Answer, error)
}

// Reconciler caches the collections a grading view displays and patches
// them all, by answer id, when a grade lands.
type Reconciler struct {
	backend Backend

	mu       sync.Mutex
	answers  []quiztake.Answer           // flat per-question worklist
	attempts map[string]quiztake.Attempt // loaded attempts by id
}

func New(backend Backend) *Reconciler {
	return &Reconciler{
		backend:  backend,
		attempts: make(map[string]quiztake.Attempt),
	}
}

// LoadQuestion fetches the worklist of answers to one question across
// completed attempts, replacing any previously loaded list.
func (r *Reconciler) LoadQuestion(ctx context.Context, questionID string) ([]quiztake.Answer, error) {
	answers, err := r.backend.ListQuestionAnswers(ctx, questionID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.answers = answers
	r.mu.Unlock()
	return answers, nil
}

// LoadAttempt fetches one attempt into the cache so its answer list is also
// kept coherent on grading.
func (r *Reconciler) LoadAttempt(ctx context.Context, attemptID string) (quiztake.Attempt, error) {
	a, err := r.backend.GetAttempt(ctx, attemptID)
	if err != nil {
		return quiztake.Attempt{}, err
	}
	r.mu.Lock()
	r.attempts[a.ID] = a
	r.mu.Unlock()
	return a, nil
}

// Grade submits a score and feedback for one short answer. The score is
// validated locally against the question's points before any network call;
// the returned answer is patched into every loaded collection. Re-grading
// just overwrites.
func (r *Reconciler) Grade(ctx context.Context, answerID string, score float64, feedback string) (quiztake.Answer, error) {
	if ans, ok := r.lookup(answerID); ok {
		if ans.Question.QuestionType != quiztake.TypeShortAnswer {
			return quiztake.Answer{}, fmt.Errorf("regrade: answer %s is not a short answer", answerID)
		}
		if score < 0 || score > ans.Question.Points {
			return quiztake.Answer{}, fmt.Errorf("regrade: score %.2f out of range [0, %.2f]", score, ans.Question.Points)
		}
	}
	graded, err := r.backend.GradeAnswer(ctx, answerID, score, feedback)
	if err != nil {
		return quiztake.Answer{}, err
	}
	r.patch(graded)
	return graded, nil
}

// Answers returns the current per-question worklist.
func (r *Reconciler) Answers() []quiztake.Answer {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]quiztake.Answer, len(r.answers))
	copy(out, r.answers)
	return out
}

// Attempt returns a loaded attempt, if present.
func (r *Reconciler) Attempt(attemptID string) (quiztake.Attempt, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.attempts[attemptID]
	return a, ok
}

func (r *Reconciler) lookup(answerID string) (quiztake.Answer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.answers {
		if a.ID == answerID {
			return a, true
		}
	}
	for _, at := range r.attempts {
		for _, a := range at.Answers {
			if a.ID == answerID {
				return a, true
			}
		}
	}
	return quiztake.Answer{}, false
}

// patch replaces the answer, by id, in the flat list and in every loaded
// attempt that contains it.
func (r *Reconciler) patch(graded quiztake.Answer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.answers {
		if r.answers[i].ID == graded.ID {
			r.answers[i] = graded
		}
	}
	for id, at := range r.attempts {
		for i := range at.Answers {
			if at.Answers[i].ID == graded.ID {
				at.Answers[i] = graded
				r.attempts[id] = at
			}
		}
	}
}
