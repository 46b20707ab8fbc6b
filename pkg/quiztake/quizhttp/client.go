// Package quizhttp is the REST client for the quiz platform API. It
// satisfies both quiztake.Backend (the student attempt flow) and
// regrade.Backend (the teacher grading flow).
package quizhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/RozzleCort/edu-platform/pkg/quiztake"
)

type Client struct {
	base string
	http *http.Client
}

type Config struct {
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
}

func New(cfg Config) *Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.AccessToken})
	h := oauth2.NewClient(context.Background(), ts)
	if cfg.Timeout > 0 {
		h.Timeout = cfg.Timeout
	}
	return &Client{base: strings.TrimRight(cfg.BaseURL, "/"), http: h}
}

// Login exchanges credentials for a bearer token without an authenticated
// client. Feed the token into New.
func Login(ctx context.Context, baseURL, username, password string) (token, role string, err error) {
	body, _ := json.Marshal(map[string]string{"username": username, "password": password})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(baseURL, "/")+"/auth/login", bytes.NewReader(body))
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", "", err
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		return "", "", fmt.Errorf("login: %s", res.Status)
	}
	var out struct {
		AccessToken string `json:"access_token"`
		Role        string `json:"role"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return "", "", err
	}
	return out.AccessToken, out.Role, nil
}

func (c *Client) GetQuiz(ctx context.Context, quizID string) (quiztake.Quiz, error) {
	var q quiztake.Quiz
	err := c.do(ctx, http.MethodGet, "/quizzes/"+quizID, nil, &q)
	return q, err
}

func (c *Client) StartAttempt(ctx context.Context, quizID string) (quiztake.Attempt, error) {
	var a quiztake.Attempt
	err := c.do(ctx, http.MethodPost, "/quizzes/"+quizID+"/attempts", struct{}{}, &a)
	return a, err
}

func (c *Client) GetAttempt(ctx context.Context, attemptID string) (quiztake.Attempt, error) {
	var a quiztake.Attempt
	err := c.do(ctx, http.MethodGet, "/attempts/"+attemptID, nil, &a)
	return a, err
}

func (c *Client) SubmitAnswer(ctx context.Context, attemptID, questionID string, choiceIDs []string, text string) (quiztake.Answer, error) {
	body := map[string]any{
		"selected_choice_ids": choiceIDs,
		"text_answer":         text,
	}
	var ans quiztake.Answer
	err := c.do(ctx, http.MethodPut, "/attempts/"+attemptID+"/answers/"+questionID, body, &ans)
	return ans, err
}

func (c *Client) FinalizeAttempt(ctx context.Context, attemptID string, timedOut bool) (quiztake.Attempt, error) {
	var a quiztake.Attempt
	err := c.do(ctx, http.MethodPost, "/attempts/"+attemptID+"/submit",
		map[string]bool{"timed_out": timedOut}, &a)
	return a, err
}

// ListQuestionAnswers returns every answer to one question across completed
// attempts (teacher only).
func (c *Client) ListQuestionAnswers(ctx context.Context, questionID string) ([]quiztake.Answer, error) {
	var out struct {
		Results []quiztake.Answer `json:"results"`
	}
	err := c.do(ctx, http.MethodGet, "/questions/"+questionID+"/answers", nil, &out)
	return out.Results, err
}

// ListShortAnswers returns the free-text answers of one attempt (teacher
// only).
func (c *Client) ListShortAnswers(ctx context.Context, attemptID string) ([]quiztake.Answer, error) {
	var out struct {
		Results []quiztake.Answer `json:"results"`
	}
	err := c.do(ctx, http.MethodGet, "/attempts/"+attemptID+"/short-answers", nil, &out)
	return out.Results, err
}

// GradeAnswer scores a short answer (teacher only).
func (c *Client) GradeAnswer(ctx context.Context, answerID string, score float64, feedback string) (quiztake.Answer, error) {
	body := map[string]any{"score": score, "feedback": feedback}
	var ans quiztake.Answer
	err := c.do(ctx, http.MethodPost, "/answers/"+answerID+"/grade", body, &ans)
	return ans, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		return apiError(res)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(out)
}

// apiError turns an error body into something callers can act on: known
// machine codes map to quiztake sentinels, field-message maps are flattened
// into one readable string.
func apiError(res *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(res.Body, 1<<16))

	var detail struct {
		Detail string `json:"detail"`
		Code   string `json:"code"`
	}
	if json.Unmarshal(raw, &detail) == nil && detail.Detail != "" {
		switch {
		case detail.Code == "attempt_limit_exceeded":
			return quiztake.ErrAttemptLimit
		case res.StatusCode == http.StatusNotFound:
			return quiztake.ErrNotFound
		}
		return fmt.Errorf("%s: %s", res.Status, detail.Detail)
	}

	var fields map[string][]string
	if json.Unmarshal(raw, &fields) == nil && len(fields) > 0 {
		return fmt.Errorf("%s: %s", res.Status, flattenFields(fields))
	}

	if res.StatusCode == http.StatusNotFound {
		return quiztake.ErrNotFound
	}
	return fmt.Errorf("%s %s: %s", res.Request.Method, res.Request.URL.Path, res.Status)
}

func flattenFields(fields map[string][]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(fields[k], ", "))
	}
	return strings.Join(parts, "; ")
}
