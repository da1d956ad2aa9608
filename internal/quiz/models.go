package quiz

import (
	"time"

	"github.com/mind-engage/mindengage-quiz/internal/grading"
)

// QuestionType mirrors the grading engine's type names.
type QuestionType string

const (
	SingleChoice QuestionType = grading.TypeSingleChoice
	MultiChoice  QuestionType = grading.TypeMultiChoice
	FreeText     QuestionType = grading.TypeFreeText
)

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusAbandoned  Status = "abandoned"
)

type Quiz struct {
	ID               string  `json:"id"`
	CourseID         string  `json:"course_id"`
	Title            string  `json:"title"`
	Description      string  `json:"description,omitempty"`
	TimeLimitMinutes int     `json:"time_limit_minutes"` // 0 = unlimited
	PassingScore     float64 `json:"passing_score"`      // percentage 0-100
	MaxAttempts      int     `json:"max_attempts"`       // 0 = unlimited
	Published        bool    `json:"is_published"`
	Final            bool    `json:"is_final"` // final quiz of the course; gates certificates

	CreatedAt int64 `json:"created_at,omitempty"`
}

// TimeLimit returns the limit as a duration; zero means unlimited.
func (q Quiz) TimeLimit() time.Duration {
	return time.Duration(q.TimeLimitMinutes) * time.Minute
}

type AnswerOption struct {
	ID           string `json:"id"`
	QuestionID   string `json:"question_id"`
	Text         string `json:"text"`
	IsCorrect    bool   `json:"is_correct"`
	DisplayOrder int    `json:"display_order"`
}

type Question struct {
	ID           string         `json:"id"`
	QuizID       string         `json:"quiz_id"`
	Type         QuestionType   `json:"type"`
	Prompt       string         `json:"prompt"`
	Points       float64        `json:"points"`
	DisplayOrder int            `json:"display_order"`
	Options      []AnswerOption `json:"options,omitempty"`

	// Free-text grading hook inputs; never shown to learners.
	AcceptedAnswers []string `json:"accepted_answers,omitempty"`
	MatchPolicy     string   `json:"match_policy,omitempty"`
}

func (q Question) option(id string) (AnswerOption, bool) {
	for _, o := range q.Options {
		if o.ID == id {
			return o, true
		}
	}
	return AnswerOption{}, false
}

// CorrectAnswers returns the texts a reviewer should see as the right answer.
func (q Question) CorrectAnswers() []string {
	if q.Type == FreeText {
		return append([]string(nil), q.AcceptedAnswers...)
	}
	var out []string
	for _, o := range q.Options {
		if o.IsCorrect {
			out = append(out, o.Text)
		}
	}
	return out
}

type Attempt struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	QuizID        string     `json:"quiz_id"`
	Number        int        `json:"attempt_number"`
	Status        Status     `json:"status"`
	StartedAt     time.Time  `json:"started_at"`
	SubmittedAt   *time.Time `json:"submitted_at,omitempty"`
	TimeSpentSec  int64      `json:"time_spent_sec"`
	Score         float64    `json:"score"`
	TotalPoints   float64    `json:"total_points"`
	Percentage    float64    `json:"percentage"`
	Passed        bool       `json:"passed"`
	AutoSubmitted bool       `json:"auto_submitted"`
}

// Deadline returns when the attempt expires, or the zero time if the quiz is untimed.
func (a Attempt) Deadline(q Quiz) time.Time {
	if q.TimeLimitMinutes <= 0 {
		return time.Time{}
	}
	return a.StartedAt.Add(q.TimeLimit())
}

// Expired reports whether an in-progress attempt ran past the quiz time limit at now.
func (a Attempt) Expired(q Quiz, now time.Time) bool {
	d := a.Deadline(q)
	return !d.IsZero() && now.After(d)
}

type Response struct {
	AttemptID    string    `json:"attempt_id"`
	QuestionID   string    `json:"question_id"`
	OptionIDs    []string  `json:"selected_option_ids,omitempty"`
	Text         string    `json:"text,omitempty"`
	Answered     bool      `json:"answered"`
	PointsEarned float64   `json:"points_earned"`
	IsCorrect    bool      `json:"is_correct"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// AnswerInput is a learner's submission for one question.
type AnswerInput struct {
	QuestionID string   `json:"question_id" validate:"required"`
	OptionIDs  []string `json:"selected_option_ids"`
	Text       string   `json:"text"`
}

// NewAttempt carries what the ledger needs to create an attempt atomically.
type NewAttempt struct {
	ID          string
	UserID      string
	QuizID      string
	MaxAttempts int
	StartedAt   time.Time
}

type AttemptListOpts struct {
	QuizID string
	UserID string
	Status Status
	Limit  int
	Offset int
}

// CertificateCandidate is what certificate issuance consumes.
type CertificateCandidate struct {
	UserID      string    `json:"user_id"`
	CourseID    string    `json:"course_id"`
	QuizID      string    `json:"quiz_id"`
	AttemptID   string    `json:"attempt_id"`
	Percentage  float64   `json:"percentage"`
	CompletedAt time.Time `json:"completed_at"`
}
