package quiz

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/RozzleCort/edu-platform/internal/grading"
)

type Store interface {
	PutQuiz(ctx context.Context, q Quiz) error
	GetQuiz(ctx context.Context, id string) (Quiz, error)
	ListQuizzes(ctx context.Context) ([]Quiz, error)

	// NewAttempt starts an attempt for (quiz, user). If one is already
	// in_progress it is returned as-is (resume semantics). ErrAttemptLimit
	// when the cap is exhausted.
	NewAttempt(ctx context.Context, quizID, userID string) (Attempt, error)
	GetAttempt(ctx context.Context, id string) (Attempt, error)
	ListAttempts(ctx context.Context, quizID, userID string) ([]Attempt, error)

	// UpsertAnswer records or overwrites the answer for one question of an
	// in_progress attempt (last write wins) and auto-grades objective types.
	UpsertAnswer(ctx context.Context, attemptID, questionID string, choiceIDs []string, text string) (Answer, error)

	// Submit finalizes the attempt: aggregates the 0-100 score, sets passed,
	// and moves status to completed (or timed_out). Idempotent on terminal
	// attempts.
	Submit(ctx context.Context, attemptID string, timedOut bool) (Attempt, error)

	// Manual grading of short_answer items.
	ListAnswersByQuestion(ctx context.Context, questionID string) ([]Answer, error)
	ListShortAnswers(ctx context.Context, attemptID string) ([]Answer, error)
	GradeAnswer(ctx context.Context, answerID string, score float64, feedback string) (Answer, error)

	Statistics(ctx context.Context, quizID string) (Statistics, error)
}

type memoryStore struct {
	mu       sync.RWMutex
	grader   grading.Grader
	quizzes  map[string]Quiz
	attempts map[string]Attempt
	// answers by attempt, keyed by question id; answerIndex locates an answer
	// id inside its attempt.
	answers     map[string]map[string]Answer
	answerIndex map[string]string // answer id -> attempt id
}

func NewInMemoryStore(grader grading.Grader) Store {
	if grader == nil {
		grader = grading.NewDefaultGrader()
	}
	return &memoryStore{
		grader:      grader,
		quizzes:     map[string]Quiz{},
		attempts:    map[string]Attempt{},
		answers:     map[string]map[string]Answer{},
		answerIndex: map[string]string{},
	}
}

func (m *memoryStore) PutQuiz(_ context.Context, q Quiz) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.CreatedAt == 0 {
		q.CreatedAt = time.Now().Unix()
	}
	m.quizzes[q.ID] = q
	return nil
}

func (m *memoryStore) GetQuiz(_ context.Context, id string) (Quiz, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.quizzes[id]
	if !ok {
		return Quiz{}, ErrNotFound
	}
	return q, nil
}

func (m *memoryStore) ListQuizzes(_ context.Context) ([]Quiz, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Quiz, 0, len(m.quizzes))
	for _, q := range m.quizzes {
		out = append(out, q)
	}
	return out, nil
}

func (m *memoryStore) NewAttempt(_ context.Context, quizID, userID string) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quizzes[quizID]
	if !ok {
		return Attempt{}, ErrNotFound
	}

	used := 0
	for _, a := range m.attempts {
		if a.QuizID != quizID || a.UserID != userID {
			continue
		}
		if a.Status == StatusInProgress {
			return m.hydrate(a), nil
		}
		used++
	}
	if limit := q.attemptLimit(); limit > 0 && used >= limit {
		return Attempt{}, ErrAttemptLimit
	}

	a := Attempt{
		ID:            uuid.NewString(),
		UserID:        userID,
		QuizID:        quizID,
		Status:        StatusInProgress,
		AttemptNumber: used + 1,
		StartTime:     time.Now().Unix(),
		Answers:       []Answer{},
	}
	m.attempts[a.ID] = a
	m.answers[a.ID] = map[string]Answer{}
	return a, nil
}

func (m *memoryStore) GetAttempt(_ context.Context, id string) (Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attempts[id]
	if !ok {
		return Attempt{}, ErrNotFound
	}
	return m.hydrate(a), nil
}

func (m *memoryStore) ListAttempts(_ context.Context, quizID, userID string) ([]Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Attempt{}
	for _, a := range m.attempts {
		if quizID != "" && a.QuizID != quizID {
			continue
		}
		if userID != "" && a.UserID != userID {
			continue
		}
		out = append(out, m.hydrate(a))
	}
	return out, nil
}

func (m *memoryStore) UpsertAnswer(ctx context.Context, attemptID, questionID string, choiceIDs []string, text string) (Answer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[attemptID]
	if !ok {
		return Answer{}, ErrNotFound
	}
	if a.Status != StatusInProgress {
		return Answer{}, ErrAttemptClosed
	}
	q := m.quizzes[a.QuizID]
	question, ok := q.QuestionByID(questionID)
	if !ok {
		return Answer{}, validationf("question", "question does not belong to this quiz")
	}
	if err := validateResponse(question, choiceIDs, text); err != nil {
		return Answer{}, err
	}

	ans, exists := m.answers[attemptID][questionID]
	if !exists {
		ans = Answer{ID: uuid.NewString(), AttemptID: attemptID}
		m.answerIndex[ans.ID] = attemptID
	}
	ans.Question = question
	ans.SelectedChoices = choicesByID(question, choiceIDs)
	ans.TextAnswer = text
	ans.Feedback = ""

	res, err := m.grader.Grade(ctx, gradeQ(question), grading.Response{ChoiceIDs: choiceIDs, Text: text})
	if err != nil {
		return Answer{}, validationf("answer", err.Error())
	}
	ans.Score = res.Points
	ans.IsCorrect = res.IsCorrect
	ans.Graded = !res.NeedsManual

	m.answers[attemptID][questionID] = ans
	return ans, nil
}

func (m *memoryStore) Submit(_ context.Context, attemptID string, timedOut bool) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[attemptID]
	if !ok {
		return Attempt{}, ErrNotFound
	}
	if a.Status != StatusInProgress {
		return m.hydrate(a), nil
	}
	q := m.quizzes[a.QuizID]

	a.Status = StatusCompleted
	if timedOut {
		a.Status = StatusTimedOut
	}
	now := time.Now().Unix()
	a.EndTime = &now
	a.Score, a.Passed = aggregate(q, m.answers[attemptID])
	m.attempts[attemptID] = a
	return m.hydrate(a), nil
}

func (m *memoryStore) ListAnswersByQuestion(_ context.Context, questionID string) ([]Answer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Answer{}
	for attemptID, byQ := range m.answers {
		a := m.attempts[attemptID]
		if a.Status == StatusInProgress {
			continue
		}
		if ans, ok := byQ[questionID]; ok {
			out = append(out, ans)
		}
	}
	return out, nil
}

func (m *memoryStore) ListShortAnswers(_ context.Context, attemptID string) ([]Answer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.attempts[attemptID]; !ok {
		return nil, ErrNotFound
	}
	out := []Answer{}
	for _, ans := range m.answers[attemptID] {
		if ans.Question.QuestionType == TypeShortAnswer {
			out = append(out, ans)
		}
	}
	return out, nil
}

func (m *memoryStore) GradeAnswer(_ context.Context, answerID string, score float64, feedback string) (Answer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	attemptID, ok := m.answerIndex[answerID]
	if !ok {
		return Answer{}, ErrNotFound
	}
	var ans Answer
	for _, a := range m.answers[attemptID] {
		if a.ID == answerID {
			ans = a
			break
		}
	}
	if ans.Question.QuestionType != TypeShortAnswer {
		return Answer{}, validationf("answer", "only short answers are graded manually")
	}
	if score < 0 || score > ans.Question.Points {
		return Answer{}, validationf("score", "score out of range")
	}

	ans.Score = score
	ans.IsCorrect = score >= ans.Question.Points*0.5
	ans.Graded = true
	if feedback != "" {
		ans.Feedback = feedback
	}
	m.answers[attemptID][ans.Question.ID] = ans

	// Re-aggregate a terminal attempt so its score/passed reflect the grade.
	a := m.attempts[attemptID]
	if a.Status != StatusInProgress {
		q := m.quizzes[a.QuizID]
		a.Score, a.Passed = aggregate(q, m.answers[attemptID])
		m.attempts[attemptID] = a
	}
	return ans, nil
}

func (m *memoryStore) Statistics(_ context.Context, quizID string) (Statistics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.quizzes[quizID]
	if !ok {
		return Statistics{}, ErrNotFound
	}
	var attempts []Attempt
	var answers []map[string]Answer
	for id, a := range m.attempts {
		if a.QuizID == quizID {
			attempts = append(attempts, a)
			answers = append(answers, m.answers[id])
		}
	}
	return buildStatistics(q, attempts, answers), nil
}

func (m *memoryStore) hydrate(a Attempt) Attempt {
	a.Answers = []Answer{}
	for _, ans := range m.answers[a.ID] {
		a.Answers = append(a.Answers, ans)
	}
	sortAnswers(a.Answers)
	return a
}

// --- shared helpers (memory + SQL stores) ---

func validateResponse(q Question, choiceIDs []string, text string) error {
	switch q.QuestionType {
	case TypeSingleChoice, TypeTrueFalse:
		if len(choiceIDs) == 0 {
			return validationf("selected_choice_ids", "a choice is required")
		}
		if len(choiceIDs) > 1 {
			return validationf("selected_choice_ids", "only one choice allowed")
		}
	case TypeMultipleChoice:
		if len(choiceIDs) == 0 {
			return validationf("selected_choice_ids", "at least one choice is required")
		}
	case TypeShortAnswer:
		if strings.TrimSpace(text) == "" {
			return validationf("text_answer", "an answer is required")
		}
		return nil
	default:
		return validationf("question", "unknown question type")
	}
	for _, id := range choiceIDs {
		found := false
		for _, c := range q.Choices {
			if c.ID == id {
				found = true
				break
			}
		}
		if !found {
			return validationf("selected_choice_ids", "choice "+id+" does not belong to this question")
		}
	}
	return nil
}

func choicesByID(q Question, ids []string) []Choice {
	out := make([]Choice, 0, len(ids))
	for _, id := range ids {
		for _, c := range q.Choices {
			if c.ID == id {
				out = append(out, c)
			}
		}
	}
	return out
}

func gradeQ(q Question) grading.Q {
	var correct []string
	for _, c := range q.Choices {
		if c.IsCorrect != nil && *c.IsCorrect {
			correct = append(correct, c.ID)
		}
	}
	return grading.Q{Type: q.QuestionType, Points: q.Points, CorrectIDs: correct}
}

// aggregate computes the 0-100 score and pass flag from stored answers.
// Ungraded short answers count zero, so the result is provisional until all
// manual grading is done.
func aggregate(q Quiz, answers map[string]Answer) (score float64, passed bool) {
	total := q.TotalPoints()
	if total == 0 {
		return 0, false
	}
	var earned float64
	for _, a := range answers {
		earned += a.Score
	}
	score = earned / total * 100
	return score, score >= q.PassScore
}

func sortAnswers(answers []Answer) {
	sort.Slice(answers, func(i, j int) bool {
		return answers[i].Question.Order < answers[j].Question.Order
	})
}

func buildStatistics(q Quiz, attempts []Attempt, answers []map[string]Answer) Statistics {
	st := Statistics{
		QuizID:            q.ID,
		QuizTitle:         q.Title,
		ScoreDistribution: map[string]int{"0-20": 0, "20-40": 0, "40-60": 0, "60-80": 0, "80-100": 0},
	}
	var completedScores float64
	var completedAnswers []map[string]Answer
	for i, a := range attempts {
		st.TotalAttempts++
		if a.Status == StatusInProgress {
			continue
		}
		st.CompletedAttempts++
		completedScores += a.Score
		completedAnswers = append(completedAnswers, answers[i])
		if a.Passed {
			st.PassedAttempts++
		}
		switch {
		case a.Score < 20:
			st.ScoreDistribution["0-20"]++
		case a.Score < 40:
			st.ScoreDistribution["20-40"]++
		case a.Score < 60:
			st.ScoreDistribution["40-60"]++
		case a.Score < 80:
			st.ScoreDistribution["60-80"]++
		default:
			st.ScoreDistribution["80-100"]++
		}
	}
	if st.CompletedAttempts > 0 {
		st.PassRate = float64(st.PassedAttempts) / float64(st.CompletedAttempts) * 100
		st.AverageScore = completedScores / float64(st.CompletedAttempts)
	}

	for _, qu := range q.Questions {
		qs := QuestionStatistic{
			ID:     qu.ID,
			Text:   qu.QuestionText,
			Type:   qu.QuestionType,
			Points: qu.Points,
		}
		selections := map[string]int{}
		for _, byQ := range completedAnswers {
			ans, ok := byQ[qu.ID]
			if !ok {
				continue
			}
			qs.TotalAnswers++
			if ans.IsCorrect {
				qs.CorrectAnswers++
			}
			for _, c := range ans.SelectedChoices {
				selections[c.ID]++
			}
		}
		if qs.TotalAnswers > 0 {
			qs.CorrectRate = float64(qs.CorrectAnswers) / float64(qs.TotalAnswers) * 100
		}
		if qu.QuestionType != TypeShortAnswer {
			for _, c := range qu.Choices {
				cs := ChoiceStatistic{
					ID:             c.ID,
					Text:           c.ChoiceText,
					IsCorrect:      c.IsCorrect != nil && *c.IsCorrect,
					SelectionCount: selections[c.ID],
				}
				if qs.TotalAnswers > 0 {
					cs.SelectionRate = float64(cs.SelectionCount) / float64(qs.TotalAnswers) * 100
				}
				qs.Choices = append(qs.Choices, cs)
			}
		}
		st.Questions = append(st.Questions, qs)
	}
	return st
}
