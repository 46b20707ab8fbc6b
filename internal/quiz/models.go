package quiz

// Question types supported by the platform.
const (
	TypeSingleChoice   = "single_choice"
	TypeMultipleChoice = "multiple_choice"
	TypeTrueFalse      = "true_false"
	TypeShortAnswer    = "short_answer"
)

// Attempt statuses. Transitions are forward-only:
// in_progress -> completed | timed_out.
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusTimedOut   = "timed_out"
)

type Choice struct {
	ID         string `json:"id"`
	ChoiceText string `json:"choice_text"`
	IsCorrect  *bool  `json:"is_correct,omitempty"` // nil when hidden from students
}

type Question struct {
	ID           string   `json:"id"`
	QuestionText string   `json:"question_text"`
	QuestionType string   `json:"question_type"`
	Points       float64  `json:"points"`
	Explanation  string   `json:"explanation,omitempty"`
	Order        int      `json:"order"`
	Choices      []Choice `json:"choices,omitempty"`
}

type Quiz struct {
	ID                    string     `json:"id"`
	InstructorID          string     `json:"instructor_id,omitempty"`
	Title                 string     `json:"title"`
	Description           string     `json:"description,omitempty"`
	TimeLimit             int        `json:"time_limit"` // minutes, 0 = untimed
	PassScore             float64    `json:"pass_score"` // percentage threshold
	AllowMultipleAttempts bool       `json:"allow_multiple_attempts"`
	MaxAttempts           int        `json:"max_attempts"` // 0 = unlimited
	RandomizeQuestions    bool       `json:"randomize_questions"`
	ShowCorrectAnswers    bool       `json:"show_correct_answers"`
	Questions             []Question `json:"questions"`
	CreatedAt             int64      `json:"created_at,omitempty"`

	// Filled per-viewer on reads, never stored.
	UserAttemptsCount *int `json:"user_attempts_count,omitempty"`
}

type Answer struct {
	ID              string   `json:"id"`
	AttemptID       string   `json:"quiz_attempt"`
	Question        Question `json:"question"`
	SelectedChoices []Choice `json:"selected_choices"`
	TextAnswer      string   `json:"text_answer,omitempty"`
	IsCorrect       bool     `json:"is_correct"`
	Score           float64  `json:"score"`
	Feedback        string   `json:"feedback,omitempty"`
	Graded          bool     `json:"graded"` // false for short_answer until a teacher grades it
}

type Attempt struct {
	ID            string   `json:"id"`
	UserID        string   `json:"user"`
	QuizID        string   `json:"quiz"`
	Status        string   `json:"status"`
	Score         float64  `json:"score"` // 0-100
	Passed        bool     `json:"passed"`
	AttemptNumber int      `json:"attempt_number"`
	StartTime     int64    `json:"start_time"` // unix seconds
	EndTime       *int64   `json:"end_time,omitempty"`
	Answers       []Answer `json:"answers"`
}

// Statistics is the teacher-facing aggregate for one quiz.
type Statistics struct {
	QuizID            string              `json:"quiz_id"`
	QuizTitle         string              `json:"quiz_title"`
	TotalAttempts     int                 `json:"total_attempts"`
	CompletedAttempts int                 `json:"completed_attempts"`
	PassedAttempts    int                 `json:"passed_attempts"`
	PassRate          float64             `json:"pass_rate"`
	AverageScore      float64             `json:"average_score"`
	ScoreDistribution map[string]int      `json:"score_distribution"`
	Questions         []QuestionStatistic `json:"questions"`
}

type QuestionStatistic struct {
	ID             string            `json:"id"`
	Text           string            `json:"text"`
	Type           string            `json:"type"`
	Points         float64           `json:"points"`
	TotalAnswers   int               `json:"total_answers"`
	CorrectAnswers int               `json:"correct_answers"`
	CorrectRate    float64           `json:"correct_rate"`
	Choices        []ChoiceStatistic `json:"choices,omitempty"`
}

type ChoiceStatistic struct {
	ID             string  `json:"id"`
	Text           string  `json:"text"`
	IsCorrect      bool    `json:"is_correct"`
	SelectionCount int     `json:"selection_count"`
	SelectionRate  float64 `json:"selection_rate"`
}

// TotalPoints sums the points of all questions.
func (q Quiz) TotalPoints() float64 {
	var sum float64
	for _, qu := range q.Questions {
		sum += qu.Points
	}
	return sum
}

// QuestionByID finds a question in the quiz.
func (q Quiz) QuestionByID(id string) (Question, bool) {
	for _, qu := range q.Questions {
		if qu.ID == id {
			return qu, true
		}
	}
	return Question{}, false
}

// AttemptsRemainingUnlimited reports whether the quiz caps attempts at all.
func (q Quiz) AttemptsRemainingUnlimited() bool {
	return q.AllowMultipleAttempts && q.MaxAttempts == 0
}

// attemptLimit is the effective cap: 1 when multiple attempts are disallowed,
// MaxAttempts otherwise (0 = unlimited).
func (q Quiz) attemptLimit() int {
	if !q.AllowMultipleAttempts {
		return 1
	}
	return q.MaxAttempts
}

// StudentView strips answer keys and explanations. Used whenever a quiz is
// served to a student, regardless of attempt state.
func (q Quiz) StudentView() Quiz {
	out := q
	out.Questions = make([]Question, len(q.Questions))
	for i, qu := range q.Questions {
		s := qu
		s.Explanation = ""
		s.Choices = make([]Choice, len(qu.Choices))
		for j, c := range qu.Choices {
			s.Choices[j] = Choice{ID: c.ID, ChoiceText: c.ChoiceText}
		}
		out.Questions[i] = s
	}
	return out
}
