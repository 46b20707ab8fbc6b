package quizhttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/RozzleCort/edu-platform/pkg/quiztake"
)

func TestClientSendsBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(quiztake.Quiz{ID: "quiz-1"})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, AccessToken: "tok-123"})
	if _, err := c.GetQuiz(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("GetQuiz: %v", err)
	}
	if gotAuth != "Bearer tok-123" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
}

func TestStartAttemptMapsAttemptLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"detail": "you have reached the maximum number of attempts for this quiz",
			"code":   "attempt_limit_exceeded",
		})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, AccessToken: "tok"})
	_, err := c.StartAttempt(context.Background(), "quiz-1")
	if !errors.Is(err, quiztake.ErrAttemptLimit) {
		t.Fatalf("err = %v, want ErrAttemptLimit", err)
	}
}

func TestGetQuizMapsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"detail": "not found"})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, AccessToken: "tok"})
	if _, err := c.GetQuiz(context.Background(), "nope"); !errors.Is(err, quiztake.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestValidationErrorsFlattened(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string][]string{
			"text_answer":         {"answer cannot be blank"},
			"selected_choice_ids": {"exactly one choice required"},
		})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, AccessToken: "tok"})
	_, err := c.SubmitAnswer(context.Background(), "att-1", "q1", nil, "")
	if err == nil {
		t.Fatalf("expected validation error")
	}
	msg := err.Error()
	// One readable line, fields in stable order.
	want := "selected_choice_ids: exactly one choice required; text_answer: answer cannot be blank"
	if !strings.Contains(msg, want) {
		t.Fatalf("err = %q, want it to contain %q", msg, want)
	}
}

func TestSubmitAnswerRequestShape(t *testing.T) {
	var gotMethod, gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(quiztake.Answer{ID: "ans-1"})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, AccessToken: "tok"})
	ans, err := c.SubmitAnswer(context.Background(), "att-1", "q1", []string{"c1", "c2"}, "")
	if err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}
	if ans.ID != "ans-1" {
		t.Fatalf("answer id = %q", ans.ID)
	}
	if gotMethod != http.MethodPut || gotPath != "/attempts/att-1/answers/q1" {
		t.Fatalf("request = %s %s", gotMethod, gotPath)
	}
	ids, _ := gotBody["selected_choice_ids"].([]any)
	if len(ids) != 2 || ids[0] != "c1" || ids[1] != "c2" {
		t.Fatalf("selected_choice_ids = %v", gotBody["selected_choice_ids"])
	}
}

func TestFinalizeAttemptCarriesTimedOut(t *testing.T) {
	var gotBody map[string]bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(quiztake.Attempt{ID: "att-1", Status: quiztake.StatusTimedOut})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, AccessToken: "tok"})
	a, err := c.FinalizeAttempt(context.Background(), "att-1", true)
	if err != nil {
		t.Fatalf("FinalizeAttempt: %v", err)
	}
	if !gotBody["timed_out"] {
		t.Fatalf("timed_out flag not sent")
	}
	if a.Status != quiztake.StatusTimedOut {
		t.Fatalf("status = %q", a.Status)
	}
}

func TestLogin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/login" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["username"] != "dana" || req["password"] != "pw" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-xyz", "role": "student"})
	}))
	defer srv.Close()

	tok, role, err := Login(context.Background(), srv.URL, "dana", "pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if tok != "tok-xyz" || role != "student" {
		t.Fatalf("got token=%q role=%q", tok, role)
	}

	if _, _, err := Login(context.Background(), srv.URL, "dana", "wrong"); err == nil {
		t.Fatalf("expected error for bad credentials")
	}
}
