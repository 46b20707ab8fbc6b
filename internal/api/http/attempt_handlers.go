package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	authmw "github.com/RozzleCort/edu-platform/internal/auth/middleware"
	"github.com/RozzleCort/edu-platform/internal/quiz"
	"github.com/RozzleCort/edu-platform/internal/rbac"
)

// POST /quizzes/{quizID}/attempts — start (or resume) an attempt.
func StartAttemptHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := store.NewAttempt(r.Context(), chi.URLParam(r, "quizID"), authmw.SubjectFromContext(r.Context()))
		if err != nil {
			writeStoreErr(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, sanitizeAttempt(r, store, a))
	}
}

// GET /attempts/{attemptID}
func GetAttemptHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := store.GetAttempt(r.Context(), chi.URLParam(r, "attemptID"))
		if err != nil {
			writeStoreErr(w, err)
			return
		}
		if !mayViewAttempt(r, a) {
			writeJSON(w, http.StatusForbidden, detailResponse{Detail: "not your attempt"})
			return
		}
		writeJSON(w, http.StatusOK, sanitizeAttempt(r, store, a))
	}
}

// GET /attempts?quiz={quizID} — the caller's own attempts (teachers see all).
func ListAttemptsHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := authmw.SubjectFromContext(ctx)
		if rbac.NewChecker(nil).Has(rbac.RoleFromContext(ctx), "attempt:view-all") {
			userID = r.URL.Query().Get("user")
		}
		attempts, err := store.ListAttempts(ctx, r.URL.Query().Get("quiz"), userID)
		if err != nil {
			writeStoreErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"results": attempts})
	}
}

// PUT /attempts/{attemptID}/answers/{questionID} — submit or overwrite one
// answer (last write wins per question).
func SubmitAnswerHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			SelectedChoiceIDs []string `json:"selected_choice_ids"`
			TextAnswer        string   `json:"text_answer"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, detailResponse{Detail: "bad json"})
			return
		}
		attemptID := chi.URLParam(r, "attemptID")
		a, err := store.GetAttempt(r.Context(), attemptID)
		if err != nil {
			writeStoreErr(w, err)
			return
		}
		if a.UserID != authmw.SubjectFromContext(r.Context()) {
			writeJSON(w, http.StatusForbidden, detailResponse{Detail: "not your attempt"})
			return
		}
		ans, err := store.UpsertAnswer(r.Context(), attemptID, chi.URLParam(r, "questionID"),
			req.SelectedChoiceIDs, req.TextAnswer)
		if err != nil {
			writeStoreErr(w, err)
			return
		}
		// Never leak correctness while the attempt is open.
		writeJSON(w, http.StatusOK, concealAnswer(ans))
	}
}

// POST /attempts/{attemptID}/submit — finalize the whole attempt.
func SubmitAttemptHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			TimedOut bool `json:"timed_out"`
		}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&req) // empty body allowed
		}
		attemptID := chi.URLParam(r, "attemptID")
		a, err := store.GetAttempt(r.Context(), attemptID)
		if err != nil {
			writeStoreErr(w, err)
			return
		}
		if a.UserID != authmw.SubjectFromContext(r.Context()) {
			writeJSON(w, http.StatusForbidden, detailResponse{Detail: "not your attempt"})
			return
		}
		a, err = store.Submit(r.Context(), attemptID, req.TimedOut)
		if err != nil {
			writeStoreErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sanitizeAttempt(r, store, a))
	}
}

func mayViewAttempt(r *http.Request, a quiz.Attempt) bool {
	ctx := r.Context()
	if rbac.NewChecker(nil).Has(rbac.RoleFromContext(ctx), "attempt:view-all") {
		return true
	}
	return a.UserID == authmw.SubjectFromContext(ctx)
}

// sanitizeAttempt applies answer-visibility rules for students: correctness
// is hidden while the attempt is open, and revealed afterwards only when the
// quiz allows it.
func sanitizeAttempt(r *http.Request, store quiz.Store, a quiz.Attempt) quiz.Attempt {
	ctx := r.Context()
	if rbac.NewChecker(nil).Has(rbac.RoleFromContext(ctx), "quiz:view-keys") {
		return a
	}
	reveal := false
	if a.Status != quiz.StatusInProgress {
		if q, err := store.GetQuiz(ctx, a.QuizID); err == nil {
			reveal = q.ShowCorrectAnswers
		}
	}
	out := a
	out.Answers = make([]quiz.Answer, len(a.Answers))
	for i, ans := range a.Answers {
		if a.Status == quiz.StatusInProgress {
			out.Answers[i] = concealAnswer(ans)
			continue
		}
		if !reveal {
			ans.Question = studentQuestion(ans.Question)
		}
		out.Answers[i] = ans
	}
	return out
}

// concealAnswer strips everything a student must not see mid-attempt.
func concealAnswer(ans quiz.Answer) quiz.Answer {
	ans.IsCorrect = false
	ans.Score = 0
	ans.Feedback = ""
	ans.Graded = false
	ans.Question = studentQuestion(ans.Question)
	sel := make([]quiz.Choice, len(ans.SelectedChoices))
	for i, c := range ans.SelectedChoices {
		sel[i] = quiz.Choice{ID: c.ID, ChoiceText: c.ChoiceText}
	}
	ans.SelectedChoices = sel
	return ans
}

func studentQuestion(q quiz.Question) quiz.Question {
	q.Explanation = ""
	choices := make([]quiz.Choice, len(q.Choices))
	for i, c := range q.Choices {
		choices[i] = quiz.Choice{ID: c.ID, ChoiceText: c.ChoiceText}
	}
	q.Choices = choices
	return q
}
