package http

import (
	"encoding/json"
	"math/rand"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	authmw "github.com/RozzleCort/edu-platform/internal/auth/middleware"
	"github.com/RozzleCort/edu-platform/internal/quiz"
	"github.com/RozzleCort/edu-platform/internal/rbac"
)

// POST /quizzes (teacher). Accepts nested questions and choices; ids are
// assigned server-side when absent.
func CreateQuizHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var q quiz.Quiz
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
			writeJSON(w, http.StatusBadRequest, detailResponse{Detail: "bad json"})
			return
		}
		if q.Title == "" {
			writeJSON(w, http.StatusBadRequest, quiz.ValidationError{"title": {"title is required"}})
			return
		}
		q.ID = uuid.NewString()
		q.InstructorID = authmw.SubjectFromContext(r.Context())
		for i := range q.Questions {
			if q.Questions[i].ID == "" {
				q.Questions[i].ID = uuid.NewString()
			}
			q.Questions[i].Order = i
			for j := range q.Questions[i].Choices {
				if q.Questions[i].Choices[j].ID == "" {
					q.Questions[i].Choices[j].ID = uuid.NewString()
				}
			}
		}
		if err := store.PutQuiz(r.Context(), q); err != nil {
			writeStoreErr(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, q)
	}
}

// GET /quizzes
func ListQuizzesHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		quizzes, err := store.ListQuizzes(r.Context())
		if err != nil {
			writeStoreErr(w, err)
			return
		}
		teacher := rbac.NewChecker(nil).Has(rbac.RoleFromContext(r.Context()), "quiz:view-keys")
		out := make([]quiz.Quiz, 0, len(quizzes))
		for _, q := range quizzes {
			if !teacher {
				q = q.StudentView()
			}
			out = append(out, q)
		}
		writeJSON(w, http.StatusOK, map[string]any{"results": out})
	}
}

// GET /quizzes/{quizID}. Students get the answer-key-free view, with
// questions shuffled when the quiz randomizes order, plus their own attempt
// count for the start-button gate.
func GetQuizHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := store.GetQuiz(r.Context(), chi.URLParam(r, "quizID"))
		if err != nil {
			writeStoreErr(w, err)
			return
		}
		ctx := r.Context()
		if !rbac.NewChecker(nil).Has(rbac.RoleFromContext(ctx), "quiz:view-keys") {
			q = q.StudentView()
			if q.RandomizeQuestions {
				rand.Shuffle(len(q.Questions), func(i, j int) {
					q.Questions[i], q.Questions[j] = q.Questions[j], q.Questions[i]
				})
			}
		}
		if sub := authmw.SubjectFromContext(ctx); sub != "" {
			attempts, err := store.ListAttempts(ctx, q.ID, sub)
			if err == nil {
				// Finished attempts only: an in_progress attempt is resumed by
				// the next start, so it must not trip the limit gate.
				n := 0
				for _, a := range attempts {
					if a.Status != quiz.StatusInProgress {
						n++
					}
				}
				q.UserAttemptsCount = &n
			}
		}
		writeJSON(w, http.StatusOK, q)
	}
}

// GET /quizzes/{quizID}/statistics (teacher)
func QuizStatisticsHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := store.Statistics(r.Context(), chi.URLParam(r, "quizID"))
		if err != nil {
			writeStoreErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}
