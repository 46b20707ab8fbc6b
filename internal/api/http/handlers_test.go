package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	authmw "github.com/RozzleCort/edu-platform/internal/auth/middleware"
	"github.com/RozzleCort/edu-platform/internal/quiz"
	"github.com/RozzleCort/edu-platform/internal/rbac"
	"github.com/RozzleCort/edu-platform/pkg/quiztake"
)

// testRouter mirrors the gateway wiring but swaps JWT auth for headers, so
// handler behavior is tested with the real RBAC middleware in place.
func testRouter(store quiz.Store) chi.Router {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := rbac.WithRole(authmw.WithSubject(req.Context(), req.Header.Get("X-Subject")), req.Header.Get("X-Role"))
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})

	r.With(rbac.Require("quiz:create")).Post("/quizzes", CreateQuizHandler(store))
	r.With(rbac.Require("quiz:view")).Get("/quizzes", ListQuizzesHandler(store))
	r.With(rbac.Require("quiz:view")).Get("/quizzes/{quizID}", GetQuizHandler(store))
	r.With(rbac.Require("quiz:stats")).Get("/quizzes/{quizID}/statistics", QuizStatisticsHandler(store))
	r.With(rbac.Require("attempt:create")).Post("/quizzes/{quizID}/attempts", StartAttemptHandler(store))
	r.With(rbac.Require("attempt:save")).Put("/attempts/{attemptID}/answers/{questionID}", SubmitAnswerHandler(store))
	r.With(rbac.Require("attempt:submit")).Post("/attempts/{attemptID}/submit", SubmitAttemptHandler(store))
	r.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).Get("/attempts/{attemptID}", GetAttemptHandler(store))
	r.With(rbac.Require("attempt:view-all")).Get("/questions/{questionID}/answers", ListQuestionAnswersHandler(store))
	r.With(rbac.Require("answer:grade")).Post("/answers/{answerID}/grade", GradeAnswerHandler(store))
	return r
}

func doJSON(t *testing.T, r chi.Router, method, path, subject, role string, body any, out any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("X-Subject", subject)
	req.Header.Set("X-Role", role)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if out != nil && rec.Code < 300 {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("decode %s %s response: %v (%s)", method, path, err, rec.Body.String())
		}
	}
	return rec
}

func seedQuiz(t *testing.T, r chi.Router) quiz.Quiz {
	t.Helper()
	tr := true
	fa := false
	in := quiz.Quiz{
		Title:              "Routing 101",
		PassScore:          60,
		MaxAttempts:        1,
		ShowCorrectAnswers: true,
		Questions: []quiz.Question{
			{
				QuestionType: quiz.TypeSingleChoice, QuestionText: "Longest prefix wins?", Points: 10,
				Choices: []quiz.Choice{
					{ChoiceText: "yes", IsCorrect: &tr},
					{ChoiceText: "no", IsCorrect: &fa},
				},
			},
			{QuestionType: quiz.TypeShortAnswer, QuestionText: "Why TTL?", Points: 10},
		},
	}
	var out quiz.Quiz
	rec := doJSON(t, r, http.MethodPost, "/quizzes", "teach-1", "teacher", in, &out)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create quiz: %d %s", rec.Code, rec.Body.String())
	}
	if out.InstructorID != "teach-1" {
		t.Fatalf("instructor = %q", out.InstructorID)
	}
	return out
}

func TestQuizVisibilityByRole(t *testing.T) {
	store := quiz.NewInMemoryStore(nil)
	r := testRouter(store)
	q := seedQuiz(t, r)

	var student quiz.Quiz
	rec := doJSON(t, r, http.MethodGet, "/quizzes/"+q.ID, "stu-1", "student", nil, &student)
	if rec.Code != http.StatusOK {
		t.Fatalf("get quiz: %d", rec.Code)
	}
	for _, c := range student.Questions[0].Choices {
		if c.IsCorrect != nil {
			t.Fatalf("answer key served to a student")
		}
	}
	if student.UserAttemptsCount == nil || *student.UserAttemptsCount != 0 {
		t.Fatalf("user_attempts_count = %v, want 0", student.UserAttemptsCount)
	}

	var teacher quiz.Quiz
	doJSON(t, r, http.MethodGet, "/quizzes/"+q.ID, "teach-1", "teacher", nil, &teacher)
	if teacher.Questions[0].Choices[0].IsCorrect == nil {
		t.Fatalf("answer key stripped for the teacher")
	}

	// Students cannot author quizzes.
	rec = doJSON(t, r, http.MethodPost, "/quizzes", "stu-1", "student", quiz.Quiz{Title: "x"}, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("student create = %d, want 403", rec.Code)
	}
}

func TestAttemptFlow(t *testing.T) {
	store := quiz.NewInMemoryStore(nil)
	r := testRouter(store)
	q := seedQuiz(t, r)
	q1, q2 := q.Questions[0], q.Questions[1]
	right := q1.Choices[0].ID

	var att quiz.Attempt
	rec := doJSON(t, r, http.MethodPost, "/quizzes/"+q.ID+"/attempts", "stu-1", "student", nil, &att)
	if rec.Code != http.StatusCreated {
		t.Fatalf("start attempt: %d %s", rec.Code, rec.Body.String())
	}
	if att.Status != quiz.StatusInProgress || att.AttemptNumber != 1 {
		t.Fatalf("attempt = %+v", att)
	}

	// Mid-attempt answers come back with correctness concealed.
	var ans quiz.Answer
	rec = doJSON(t, r, http.MethodPut, "/attempts/"+att.ID+"/answers/"+q1.ID, "stu-1", "student",
		map[string]any{"selected_choice_ids": []string{right}}, &ans)
	if rec.Code != http.StatusOK {
		t.Fatalf("submit answer: %d %s", rec.Code, rec.Body.String())
	}
	if ans.IsCorrect || ans.Score != 0 || ans.Graded {
		t.Fatalf("correctness leaked mid-attempt: %+v", ans)
	}

	doJSON(t, r, http.MethodPut, "/attempts/"+att.ID+"/answers/"+q2.ID, "stu-1", "student",
		map[string]any{"text_answer": "so loops die"}, &ans)

	// Another student cannot touch this attempt.
	rec = doJSON(t, r, http.MethodPut, "/attempts/"+att.ID+"/answers/"+q1.ID, "stu-2", "student",
		map[string]any{"selected_choice_ids": []string{right}}, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("foreign answer write = %d, want 403", rec.Code)
	}

	var final quiz.Attempt
	rec = doJSON(t, r, http.MethodPost, "/attempts/"+att.ID+"/submit", "stu-1", "student", nil, &final)
	if rec.Code != http.StatusOK {
		t.Fatalf("finalize: %d %s", rec.Code, rec.Body.String())
	}
	if final.Status != quiz.StatusCompleted {
		t.Fatalf("status = %q", final.Status)
	}
	// 10 of 20 points, short answer still pending.
	if final.Score != 50 || final.Passed {
		t.Fatalf("score = %.1f passed=%v, want provisional 50", final.Score, final.Passed)
	}
	// show_correct_answers=true: review reveals correctness.
	found := false
	for _, a := range final.Answers {
		if a.Question.ID == q1.ID {
			found = true
			if !a.IsCorrect || a.Score != 10 {
				t.Fatalf("review answer = %+v", a)
			}
		}
	}
	if !found {
		t.Fatalf("q1 answer missing from finalized attempt")
	}

	// max_attempts=1: a second start is a 409 with the machine code.
	rec = doJSON(t, r, http.MethodPost, "/quizzes/"+q.ID+"/attempts", "stu-1", "student", nil, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("second start = %d, want 409", rec.Code)
	}
	var errBody struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &errBody); err != nil || errBody.Code != "attempt_limit_exceeded" {
		t.Fatalf("conflict body = %s", rec.Body.String())
	}
}

func TestAttemptCountExcludesOpenAttempt(t *testing.T) {
	store := quiz.NewInMemoryStore(nil)
	r := testRouter(store)
	q := seedQuiz(t, r) // max_attempts=1

	var att quiz.Attempt
	doJSON(t, r, http.MethodPost, "/quizzes/"+q.ID+"/attempts", "stu-1", "student", nil, &att)

	// The open attempt does not count against the limit, neither in the
	// annotation nor through the client-side start gate.
	var annotated quiztake.Quiz
	rec := doJSON(t, r, http.MethodGet, "/quizzes/"+q.ID, "stu-1", "student", nil, &annotated)
	if rec.Code != http.StatusOK {
		t.Fatalf("get quiz: %d", rec.Code)
	}
	if annotated.UserAttemptsCount == nil || *annotated.UserAttemptsCount != 0 {
		t.Fatalf("user_attempts_count = %v, want 0 while an attempt is open", annotated.UserAttemptsCount)
	}
	if annotated.AttemptsExhausted() {
		t.Fatalf("start gate closed while the attempt is still resumable")
	}

	// A second start resumes, it does not duplicate.
	var again quiz.Attempt
	rec = doJSON(t, r, http.MethodPost, "/quizzes/"+q.ID+"/attempts", "stu-1", "student", nil, &again)
	if rec.Code != http.StatusCreated || again.ID != att.ID {
		t.Fatalf("second start = %d id=%s, want resume of %s", rec.Code, again.ID, att.ID)
	}

	doJSON(t, r, http.MethodPost, "/attempts/"+att.ID+"/submit", "stu-1", "student", nil, nil)

	// Finished, the attempt counts and the gate closes.
	doJSON(t, r, http.MethodGet, "/quizzes/"+q.ID, "stu-1", "student", nil, &annotated)
	if annotated.UserAttemptsCount == nil || *annotated.UserAttemptsCount != 1 {
		t.Fatalf("user_attempts_count = %v, want 1 after submit", annotated.UserAttemptsCount)
	}
	if !annotated.AttemptsExhausted() {
		t.Fatalf("start gate still open after the only attempt finished")
	}
	rec = doJSON(t, r, http.MethodPost, "/quizzes/"+q.ID+"/attempts", "stu-1", "student", nil, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("start after limit = %d, want 409", rec.Code)
	}
}

func TestAnswerVisibilityAfterSubmitWithoutReveal(t *testing.T) {
	store := quiz.NewInMemoryStore(nil)
	r := testRouter(store)

	tr := true
	var q quiz.Quiz
	rec := doJSON(t, r, http.MethodPost, "/quizzes", "teach-1", "teacher", quiz.Quiz{
		Title:              "No-reveal quiz",
		ShowCorrectAnswers: false,
		MaxAttempts:        1,
		Questions: []quiz.Question{{
			QuestionType: quiz.TypeSingleChoice, QuestionText: "pick", Points: 10,
			Choices: []quiz.Choice{{ChoiceText: "a", IsCorrect: &tr}, {ChoiceText: "b"}},
		}},
	}, &q)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d", rec.Code)
	}

	var att quiz.Attempt
	doJSON(t, r, http.MethodPost, "/quizzes/"+q.ID+"/attempts", "stu-1", "student", nil, &att)
	doJSON(t, r, http.MethodPut, "/attempts/"+att.ID+"/answers/"+q.Questions[0].ID, "stu-1", "student",
		map[string]any{"selected_choice_ids": []string{q.Questions[0].Choices[0].ID}}, nil)
	doJSON(t, r, http.MethodPost, "/attempts/"+att.ID+"/submit", "stu-1", "student", nil, nil)

	var got quiz.Attempt
	doJSON(t, r, http.MethodGet, "/attempts/"+att.ID, "stu-1", "student", nil, &got)
	// Own score and per-answer correctness are visible, the key is not.
	if len(got.Answers) != 1 || !got.Answers[0].IsCorrect {
		t.Fatalf("answers = %+v", got.Answers)
	}
	for _, c := range got.Answers[0].Question.Choices {
		if c.IsCorrect != nil {
			t.Fatalf("key revealed although show_correct_answers=false")
		}
	}

	// The teacher sees everything.
	var asTeacher quiz.Attempt
	doJSON(t, r, http.MethodGet, "/attempts/"+att.ID, "teach-1", "teacher", nil, &asTeacher)
	if asTeacher.Answers[0].Question.Choices[0].IsCorrect == nil {
		t.Fatalf("key stripped for teacher")
	}

	// A third party gets a 403.
	rec = doJSON(t, r, http.MethodGet, "/attempts/"+att.ID, "stu-2", "student", nil, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("foreign read = %d, want 403", rec.Code)
	}
}

func TestManualGradingFlow(t *testing.T) {
	store := quiz.NewInMemoryStore(nil)
	r := testRouter(store)
	q := seedQuiz(t, r)
	short := q.Questions[1]

	var att quiz.Attempt
	doJSON(t, r, http.MethodPost, "/quizzes/"+q.ID+"/attempts", "stu-1", "student", nil, &att)
	doJSON(t, r, http.MethodPut, "/attempts/"+att.ID+"/answers/"+q.Questions[0].ID, "stu-1", "student",
		map[string]any{"selected_choice_ids": []string{q.Questions[0].Choices[0].ID}}, nil)
	doJSON(t, r, http.MethodPut, "/attempts/"+att.ID+"/answers/"+short.ID, "stu-1", "student",
		map[string]any{"text_answer": "packets must die eventually"}, nil)
	doJSON(t, r, http.MethodPost, "/attempts/"+att.ID+"/submit", "stu-1", "student", nil, nil)

	// Students cannot reach the worklist.
	rec := doJSON(t, r, http.MethodGet, "/questions/"+short.ID+"/answers", "stu-1", "student", nil, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("student worklist = %d, want 403", rec.Code)
	}

	var list struct {
		Results []quiz.Answer `json:"results"`
	}
	rec = doJSON(t, r, http.MethodGet, "/questions/"+short.ID+"/answers", "teach-1", "teacher", nil, &list)
	if rec.Code != http.StatusOK || len(list.Results) != 1 {
		t.Fatalf("worklist: %d, %d results", rec.Code, len(list.Results))
	}
	target := list.Results[0]

	// Out-of-range score is a 400 validation error.
	rec = doJSON(t, r, http.MethodPost, "/answers/"+target.ID+"/grade", "teach-1", "teacher",
		map[string]any{"score": 99}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("over-points grade = %d, want 400", rec.Code)
	}

	var graded quiz.Answer
	rec = doJSON(t, r, http.MethodPost, "/answers/"+target.ID+"/grade", "teach-1", "teacher",
		map[string]any{"score": 10, "feedback": "well put"}, &graded)
	if rec.Code != http.StatusOK {
		t.Fatalf("grade: %d %s", rec.Code, rec.Body.String())
	}
	if !graded.Graded || graded.Score != 10 || graded.Feedback != "well put" {
		t.Fatalf("graded = %+v", graded)
	}

	// The closed attempt's aggregate reflects the manual grade.
	var after quiz.Attempt
	doJSON(t, r, http.MethodGet, "/attempts/"+att.ID, "teach-1", "teacher", nil, &after)
	if after.Score != 100 || !after.Passed {
		t.Fatalf("re-aggregated attempt = %.1f passed=%v, want 100 pass", after.Score, after.Passed)
	}

	// Statistics are teacher-only and include the graded result.
	var st quiz.Statistics
	rec = doJSON(t, r, http.MethodGet, "/quizzes/"+q.ID+"/statistics", "teach-1", "teacher", nil, &st)
	if rec.Code != http.StatusOK {
		t.Fatalf("statistics: %d", rec.Code)
	}
	if st.CompletedAttempts != 1 || st.PassedAttempts != 1 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestNotFoundMapping(t *testing.T) {
	store := quiz.NewInMemoryStore(nil)
	r := testRouter(store)

	rec := doJSON(t, r, http.MethodGet, "/quizzes/missing", "stu-1", "student", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing quiz = %d, want 404", rec.Code)
	}
	rec = doJSON(t, r, http.MethodGet, fmt.Sprintf("/attempts/%s", "missing"), "stu-1", "student", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing attempt = %d, want 404", rec.Code)
	}
}
