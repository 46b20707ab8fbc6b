package quiz

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/RozzleCort/edu-platform/internal/grading"
)

type SQLStore struct {
	db     *sql.DB
	grader grading.Grader
}

func NewSQLStore(db *sql.DB, grader grading.Grader) *SQLStore {
	if grader == nil {
		grader = grading.NewDefaultGrader()
	}
	return &SQLStore{db: db, grader: grader}
}

func (s *SQLStore) PutQuiz(ctx context.Context, q Quiz) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.CreatedAt == 0 {
		q.CreatedAt = time.Now().Unix()
	}
	qj, err := json.Marshal(q.Questions)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO quizzes
		(id,instructor_id,title,description,time_limit,pass_score,allow_multiple_attempts,max_attempts,randomize_questions,show_correct_answers,questions_json,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (id) DO UPDATE SET
		  title=EXCLUDED.title, description=EXCLUDED.description,
		  time_limit=EXCLUDED.time_limit, pass_score=EXCLUDED.pass_score,
		  allow_multiple_attempts=EXCLUDED.allow_multiple_attempts,
		  max_attempts=EXCLUDED.max_attempts,
		  randomize_questions=EXCLUDED.randomize_questions,
		  show_correct_answers=EXCLUDED.show_correct_answers,
		  questions_json=EXCLUDED.questions_json`,
		q.ID, q.InstructorID, q.Title, q.Description, q.TimeLimit, q.PassScore,
		q.AllowMultipleAttempts, q.MaxAttempts, q.RandomizeQuestions,
		q.ShowCorrectAnswers, string(qj), q.CreatedAt)
	return err
}

func (s *SQLStore) GetQuiz(ctx context.Context, id string) (Quiz, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,instructor_id,title,description,time_limit,pass_score,
		allow_multiple_attempts,max_attempts,randomize_questions,show_correct_answers,questions_json,created_at
		FROM quizzes WHERE id=$1`, id)
	return scanQuiz(row)
}

func (s *SQLStore) ListQuizzes(ctx context.Context) ([]Quiz, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,instructor_id,title,description,time_limit,pass_score,
		allow_multiple_attempts,max_attempts,randomize_questions,show_correct_answers,questions_json,created_at
		FROM quizzes ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Quiz
	for rows.Next() {
		q, err := scanQuiz(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

type rowScanner interface{ Scan(dest ...any) error }

func scanQuiz(row rowScanner) (Quiz, error) {
	var q Quiz
	var qjson string
	err := row.Scan(&q.ID, &q.InstructorID, &q.Title, &q.Description, &q.TimeLimit, &q.PassScore,
		&q.AllowMultipleAttempts, &q.MaxAttempts, &q.RandomizeQuestions, &q.ShowCorrectAnswers,
		&qjson, &q.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Quiz{}, ErrNotFound
		}
		return Quiz{}, err
	}
	if err := json.Unmarshal([]byte(qjson), &q.Questions); err != nil {
		return Quiz{}, err
	}
	return q, nil
}

func (s *SQLStore) NewAttempt(ctx context.Context, quizID, userID string) (Attempt, error) {
	q, err := s.GetQuiz(ctx, quizID)
	if err != nil {
		return Attempt{}, err
	}

	// Resume an open attempt rather than stacking a second one.
	row := s.db.QueryRowContext(ctx, `SELECT id FROM attempts
		WHERE quiz_id=$1 AND user_id=$2 AND status=$3`, quizID, userID, StatusInProgress)
	var openID string
	switch err := row.Scan(&openID); {
	case err == nil:
		return s.GetAttempt(ctx, openID)
	case !errors.Is(err, sql.ErrNoRows):
		return Attempt{}, err
	}

	var used int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM attempts
		WHERE quiz_id=$1 AND user_id=$2`, quizID, userID).Scan(&used); err != nil {
		return Attempt{}, err
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
	_, err = s.db.ExecContext(ctx, `INSERT INTO attempts (id,quiz_id,user_id,status,score,passed,attempt_number,start_time)
		VALUES ($1,$2,$3,$4,0,$5,$6,$7)`,
		a.ID, a.QuizID, a.UserID, a.Status, false, a.AttemptNumber, a.StartTime)
	if err != nil {
		return Attempt{}, err
	}
	return a, nil
}

func (s *SQLStore) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,quiz_id,user_id,status,score,passed,attempt_number,start_time,end_time
		FROM attempts WHERE id=$1`, id)
	a, err := scanAttempt(row)
	if err != nil {
		return Attempt{}, err
	}
	q, err := s.GetQuiz(ctx, a.QuizID)
	if err != nil {
		return Attempt{}, err
	}
	a.Answers, err = s.answersForAttempt(ctx, a.ID, q)
	if err != nil {
		return Attempt{}, err
	}
	return a, nil
}

func (s *SQLStore) ListAttempts(ctx context.Context, quizID, userID string) ([]Attempt, error) {
	query := `SELECT id,quiz_id,user_id,status,score,passed,attempt_number,start_time,end_time FROM attempts WHERE 1=1`
	args := []any{}
	if quizID != "" {
		args = append(args, quizID)
		query += ` AND quiz_id=$` + strconv.Itoa(len(args))
	}
	if userID != "" {
		args = append(args, userID)
		query += ` AND user_id=$` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY start_time DESC`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Attempt{}
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAttempt(row rowScanner) (Attempt, error) {
	var a Attempt
	var end sql.NullInt64
	err := row.Scan(&a.ID, &a.QuizID, &a.UserID, &a.Status, &a.Score, &a.Passed,
		&a.AttemptNumber, &a.StartTime, &end)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Attempt{}, ErrNotFound
		}
		return Attempt{}, err
	}
	if end.Valid {
		a.EndTime = &end.Int64
	}
	a.Answers = []Answer{}
	return a, nil
}

func (s *SQLStore) UpsertAnswer(ctx context.Context, attemptID, questionID string, choiceIDs []string, text string) (Answer, error) {
	a, err := s.getAttemptRow(ctx, attemptID)
	if err != nil {
		return Answer{}, err
	}
	if a.Status != StatusInProgress {
		return Answer{}, ErrAttemptClosed
	}
	q, err := s.GetQuiz(ctx, a.QuizID)
	if err != nil {
		return Answer{}, err
	}
	question, ok := q.QuestionByID(questionID)
	if !ok {
		return Answer{}, validationf("question", "question does not belong to this quiz")
	}
	if err := validateResponse(question, choiceIDs, text); err != nil {
		return Answer{}, err
	}

	res, err := s.grader.Grade(ctx, gradeQ(question), grading.Response{ChoiceIDs: choiceIDs, Text: text})
	if err != nil {
		return Answer{}, validationf("answer", err.Error())
	}

	ans := Answer{
		ID:              uuid.NewString(),
		AttemptID:       attemptID,
		Question:        question,
		SelectedChoices: choicesByID(question, choiceIDs),
		TextAnswer:      text,
		IsCorrect:       res.IsCorrect,
		Score:           res.Points,
		Graded:          !res.NeedsManual,
	}
	selJSON, _ := json.Marshal(choiceIDs)
	// Keep the original answer id on overwrite so graders see a stable entity.
	_, err = s.db.ExecContext(ctx, `INSERT INTO answers (id,attempt_id,question_id,selected_choices_json,text_answer,is_correct,score,feedback,graded)
		VALUES ($1,$2,$3,$4,$5,$6,$7,'',$8)
		ON CONFLICT (attempt_id,question_id) DO UPDATE SET
		  selected_choices_json=EXCLUDED.selected_choices_json,
		  text_answer=EXCLUDED.text_answer, is_correct=EXCLUDED.is_correct,
		  score=EXCLUDED.score, feedback='', graded=EXCLUDED.graded`,
		ans.ID, attemptID, questionID, string(selJSON), text, ans.IsCorrect, ans.Score, ans.Graded)
	if err != nil {
		return Answer{}, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM answers WHERE attempt_id=$1 AND question_id=$2`,
		attemptID, questionID).Scan(&ans.ID); err != nil {
		return Answer{}, err
	}
	return ans, nil
}

func (s *SQLStore) Submit(ctx context.Context, attemptID string, timedOut bool) (Attempt, error) {
	a, err := s.getAttemptRow(ctx, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if a.Status != StatusInProgress {
		return s.GetAttempt(ctx, attemptID)
	}
	q, err := s.GetQuiz(ctx, a.QuizID)
	if err != nil {
		return Attempt{}, err
	}
	score, passed, err := s.aggregate(ctx, attemptID, q)
	if err != nil {
		return Attempt{}, err
	}
	status := StatusCompleted
	if timedOut {
		status = StatusTimedOut
	}
	_, err = s.db.ExecContext(ctx, `UPDATE attempts SET status=$1, score=$2, passed=$3, end_time=$4 WHERE id=$5`,
		status, score, passed, time.Now().Unix(), attemptID)
	if err != nil {
		return Attempt{}, err
	}
	return s.GetAttempt(ctx, attemptID)
}

func (s *SQLStore) ListAnswersByQuestion(ctx context.Context, questionID string) ([]Answer, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT a.id,a.attempt_id,a.question_id,a.selected_choices_json,a.text_answer,a.is_correct,a.score,a.feedback,a.graded,t.quiz_id
		FROM answers a JOIN attempts t ON t.id = a.attempt_id
		WHERE a.question_id=$1 AND t.status != $2`, questionID, StatusInProgress)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.scanAnswers(ctx, rows)
}

func (s *SQLStore) ListShortAnswers(ctx context.Context, attemptID string) ([]Answer, error) {
	a, err := s.getAttemptRow(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	q, err := s.GetQuiz(ctx, a.QuizID)
	if err != nil {
		return nil, err
	}
	all, err := s.answersForAttempt(ctx, attemptID, q)
	if err != nil {
		return nil, err
	}
	out := []Answer{}
	for _, ans := range all {
		if ans.Question.QuestionType == TypeShortAnswer {
			out = append(out, ans)
		}
	}
	return out, nil
}

func (s *SQLStore) GradeAnswer(ctx context.Context, answerID string, score float64, feedback string) (Answer, error) {
	row := s.db.QueryRowContext(ctx, `SELECT a.id,a.attempt_id,a.question_id,a.selected_choices_json,a.text_answer,a.is_correct,a.score,a.feedback,a.graded,t.quiz_id
		FROM answers a JOIN attempts t ON t.id = a.attempt_id WHERE a.id=$1`, answerID)
	ans, quizID, err := s.scanAnswer(row)
	if err != nil {
		return Answer{}, err
	}
	q, err := s.GetQuiz(ctx, quizID)
	if err != nil {
		return Answer{}, err
	}
	question, ok := q.QuestionByID(ans.Question.ID)
	if !ok {
		return Answer{}, ErrNotFound
	}
	if question.QuestionType != TypeShortAnswer {
		return Answer{}, validationf("answer", "only short answers are graded manually")
	}
	if score < 0 || score > question.Points {
		return Answer{}, validationf("score", "score out of range")
	}

	ans.Question = question
	ans.Score = score
	ans.IsCorrect = score >= question.Points*0.5
	ans.Graded = true
	if feedback != "" {
		ans.Feedback = feedback
	}
	_, err = s.db.ExecContext(ctx, `UPDATE answers SET score=$1, is_correct=$2, feedback=$3, graded=$4 WHERE id=$5`,
		ans.Score, ans.IsCorrect, ans.Feedback, true, answerID)
	if err != nil {
		return Answer{}, err
	}

	a, err := s.getAttemptRow(ctx, ans.AttemptID)
	if err != nil {
		return Answer{}, err
	}
	if a.Status != StatusInProgress {
		total, passed, err := s.aggregate(ctx, a.ID, q)
		if err != nil {
			return Answer{}, err
		}
		if _, err := s.db.ExecContext(ctx, `UPDATE attempts SET score=$1, passed=$2 WHERE id=$3`,
			total, passed, a.ID); err != nil {
			return Answer{}, err
		}
	}
	return ans, nil
}

func (s *SQLStore) Statistics(ctx context.Context, quizID string) (Statistics, error) {
	q, err := s.GetQuiz(ctx, quizID)
	if err != nil {
		return Statistics{}, err
	}
	attempts, err := s.ListAttempts(ctx, quizID, "")
	if err != nil {
		return Statistics{}, err
	}
	answers := make([]map[string]Answer, len(attempts))
	for i, a := range attempts {
		list, err := s.answersForAttempt(ctx, a.ID, q)
		if err != nil {
			return Statistics{}, err
		}
		byQ := map[string]Answer{}
		for _, ans := range list {
			byQ[ans.Question.ID] = ans
		}
		answers[i] = byQ
	}
	return buildStatistics(q, attempts, answers), nil
}

// --- internals ---

func (s *SQLStore) getAttemptRow(ctx context.Context, id string) (Attempt, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,quiz_id,user_id,status,score,passed,attempt_number,start_time,end_time
		FROM attempts WHERE id=$1`, id)
	return scanAttempt(row)
}

func (s *SQLStore) aggregate(ctx context.Context, attemptID string, q Quiz) (float64, bool, error) {
	var earned sql.NullFloat64
	if err := s.db.QueryRowContext(ctx, `SELECT SUM(score) FROM answers WHERE attempt_id=$1`, attemptID).Scan(&earned); err != nil {
		return 0, false, err
	}
	total := q.TotalPoints()
	if total == 0 {
		return 0, false, nil
	}
	score := earned.Float64 / total * 100
	return score, score >= q.PassScore, nil
}

func (s *SQLStore) answersForAttempt(ctx context.Context, attemptID string, q Quiz) ([]Answer, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT a.id,a.attempt_id,a.question_id,a.selected_choices_json,a.text_answer,a.is_correct,a.score,a.feedback,a.graded,t.quiz_id
		FROM answers a JOIN attempts t ON t.id = a.attempt_id WHERE a.attempt_id=$1`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out, err := s.scanAnswersWith(rows, func(string) (Quiz, error) { return q, nil })
	if err != nil {
		return nil, err
	}
	sortAnswers(out)
	return out, nil
}

func (s *SQLStore) scanAnswers(ctx context.Context, rows *sql.Rows) ([]Answer, error) {
	cache := map[string]Quiz{}
	return s.scanAnswersWith(rows, func(quizID string) (Quiz, error) {
		if q, ok := cache[quizID]; ok {
			return q, nil
		}
		q, err := s.GetQuiz(ctx, quizID)
		if err != nil {
			return Quiz{}, err
		}
		cache[quizID] = q
		return q, nil
	})
}

func (s *SQLStore) scanAnswersWith(rows *sql.Rows, quizFor func(string) (Quiz, error)) ([]Answer, error) {
	out := []Answer{}
	for rows.Next() {
		ans, quizID, err := s.scanAnswer(rows)
		if err != nil {
			return nil, err
		}
		q, err := quizFor(quizID)
		if err != nil {
			return nil, err
		}
		if question, ok := q.QuestionByID(ans.Question.ID); ok {
			selIDs := make([]string, len(ans.SelectedChoices))
			for i, c := range ans.SelectedChoices {
				selIDs[i] = c.ID
			}
			ans.Question = question
			ans.SelectedChoices = choicesByID(question, selIDs)
		}
		out = append(out, ans)
	}
	return out, rows.Err()
}

// scanAnswer reads one answer row; Question carries only the id until
// hydrated, SelectedChoices only ids.
func (s *SQLStore) scanAnswer(row rowScanner) (Answer, string, error) {
	var ans Answer
	var selJSON, quizID string
	err := row.Scan(&ans.ID, &ans.AttemptID, &ans.Question.ID, &selJSON, &ans.TextAnswer,
		&ans.IsCorrect, &ans.Score, &ans.Feedback, &ans.Graded, &quizID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Answer{}, "", ErrNotFound
		}
		return Answer{}, "", err
	}
	var ids []string
	if err := json.Unmarshal([]byte(selJSON), &ids); err != nil {
		return Answer{}, "", err
	}
	ans.SelectedChoices = make([]Choice, len(ids))
	for i, id := range ids {
		ans.SelectedChoices[i] = Choice{ID: id}
	}
	return ans, quizID, nil
}

