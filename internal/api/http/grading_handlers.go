package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/RozzleCort/edu-platform/internal/quiz"
)

// GET /questions/{questionID}/answers (teacher) — every submitted answer to
// one question across completed attempts, the manual-grading worklist.
func ListQuestionAnswersHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		answers, err := store.ListAnswersByQuestion(r.Context(), chi.URLParam(r, "questionID"))
		if err != nil {
			writeStoreErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"results": answers})
	}
}

// GET /attempts/{attemptID}/short-answers (teacher) — the free-text answers
// of one attempt, graded or not.
func ListShortAnswersHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		answers, err := store.ListShortAnswers(r.Context(), chi.URLParam(r, "attemptID"))
		if err != nil {
			writeStoreErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"results": answers})
	}
}

// POST /answers/{answerID}/grade (teacher) — score a short answer. The
// owning attempt's total and pass flag are recomputed when it is already
// closed.
func GradeAnswerHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Score    float64 `json:"score"`
			Feedback string  `json:"feedback"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, detailResponse{Detail: "bad json"})
			return
		}
		ans, err := store.GradeAnswer(r.Context(), chi.URLParam(r, "answerID"), req.Score, req.Feedback)
		if err != nil {
			writeStoreErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ans)
	}
}
