// Package seed bootstraps users, enrollments and quizzes from a JSON fixture.
package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"

	auth "github.com/mind-engage/mindengage-quiz/internal/auth/middleware"
	"github.com/mind-engage/mindengage-quiz/internal/grading"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

type Fixture struct {
	Users       []User       `json:"users" validate:"dive"`
	Enrollments []Enrollment `json:"enrollments" validate:"dive"`
	Quizzes     []Quiz       `json:"quizzes" validate:"dive"`
}

type User struct {
	ID       string `json:"id" validate:"required"`
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required,min=6"`
	Role     string `json:"role" validate:"oneof=student instructor admin"`
}

type Enrollment struct {
	UserID   string `json:"user_id" validate:"required"`
	CourseID string `json:"course_id" validate:"required"`
}

type Quiz struct {
	ID               string     `json:"id" validate:"required"`
	CourseID         string     `json:"course_id" validate:"required"`
	Title            string     `json:"title" validate:"required"`
	Description      string     `json:"description"`
	TimeLimitMinutes int        `json:"time_limit_minutes" validate:"gte=0"`
	PassingScore     float64    `json:"passing_score" validate:"gte=0,lte=100"`
	MaxAttempts      int        `json:"max_attempts" validate:"gte=0"`
	Published        bool       `json:"is_published"`
	Final            bool       `json:"is_final"`
	Questions        []Question `json:"questions" validate:"dive"`
}

type Question struct {
	ID              string   `json:"id" validate:"required"`
	Type            string   `json:"type" validate:"oneof=single_choice multi_choice free_text"`
	Prompt          string   `json:"prompt" validate:"required"`
	Points          float64  `json:"points" validate:"gt=0"`
	Options         []Option `json:"options" validate:"dive"`
	AcceptedAnswers []string `json:"accepted_answers"`
	MatchPolicy     string   `json:"match_policy"`
}

type Option struct {
	ID        string `json:"id" validate:"required"`
	Text      string `json:"text" validate:"required"`
	IsCorrect bool   `json:"is_correct"`
}

// Targets receive fixture rows. Nil targets are skipped.
type Targets struct {
	Quizzes interface {
		PutQuiz(ctx context.Context, q quiz.Quiz, questions []quiz.Question) error
	}
	Enrollments interface {
		Enroll(ctx context.Context, userID, courseID string) error
	}
	Users interface {
		PutUser(ctx context.Context, u auth.User, password string) error
	}
}

var validate = validator.New()

// builtin knows the free-text policies every engine ships with.
var builtin = grading.NewEngine()

func Decode(r io.Reader) (Fixture, error) {
	var f Fixture
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return Fixture{}, fmt.Errorf("decode seed: %w", err)
	}
	return f, f.Validate()
}

func LoadFile(path string) (Fixture, error) {
	fh, err := os.Open(path)
	if err != nil {
		return Fixture{}, err
	}
	defer fh.Close()
	return Decode(fh)
}

// Validate checks field rules plus the answer key and match policy of every question.
func (f Fixture) Validate() error {
	if err := validate.Struct(f); err != nil {
		return fmt.Errorf("invalid seed: %w", err)
	}
	for _, q := range f.Quizzes {
		for _, qu := range q.Questions {
			if err := qu.checkKey(); err != nil {
				return fmt.Errorf("quiz %s question %s: %w", q.ID, qu.ID, err)
			}
		}
	}
	return nil
}

func (q Question) checkKey() error {
	correct := 0
	for _, o := range q.Options {
		if o.IsCorrect {
			correct++
		}
	}
	switch quiz.QuestionType(q.Type) {
	case quiz.SingleChoice:
		if correct != 1 {
			return fmt.Errorf("single choice needs exactly one correct option, has %d", correct)
		}
	case quiz.MultiChoice:
		if correct == 0 {
			return fmt.Errorf("multi choice needs at least one correct option")
		}
	case quiz.FreeText:
		if len(q.Options) > 0 || len(q.AcceptedAnswers) == 0 {
			return fmt.Errorf("free text needs accepted answers and no options")
		}
	}
	if !builtin.SupportsPolicy(q.MatchPolicy) {
		return fmt.Errorf("unknown match policy %q", q.MatchPolicy)
	}
	return nil
}

// QuestionIDs lists the ids of the quiz's questions in fixture order.
func (q Quiz) QuestionIDs() []string {
	ids := make([]string, 0, len(q.Questions))
	for _, qu := range q.Questions {
		ids = append(ids, qu.ID)
	}
	return ids
}

// Apply writes the fixture. It is idempotent: every write is an upsert.
func Apply(ctx context.Context, f Fixture, t Targets) error {
	if t.Users != nil {
		for _, u := range f.Users {
			if err := t.Users.PutUser(ctx, auth.User{ID: u.ID, Username: u.Username, Role: u.Role}, u.Password); err != nil {
				return fmt.Errorf("seed user %s: %w", u.ID, err)
			}
		}
	}
	if t.Enrollments != nil {
		for _, e := range f.Enrollments {
			if err := t.Enrollments.Enroll(ctx, e.UserID, e.CourseID); err != nil {
				return fmt.Errorf("seed enrollment %s/%s: %w", e.UserID, e.CourseID, err)
			}
		}
	}
	if t.Quizzes != nil {
		for _, q := range f.Quizzes {
			qz, questions := q.toDomain()
			if err := t.Quizzes.PutQuiz(ctx, qz, questions); err != nil {
				return fmt.Errorf("seed quiz %s: %w", q.ID, err)
			}
		}
	}
	return nil
}

func (q Quiz) toDomain() (quiz.Quiz, []quiz.Question) {
	out := quiz.Quiz{
		ID:               q.ID,
		CourseID:         q.CourseID,
		Title:            q.Title,
		Description:      q.Description,
		TimeLimitMinutes: q.TimeLimitMinutes,
		PassingScore:     q.PassingScore,
		MaxAttempts:      q.MaxAttempts,
		Published:        q.Published,
		Final:            q.Final,
	}
	questions := make([]quiz.Question, 0, len(q.Questions))
	for i, qu := range q.Questions {
		dq := quiz.Question{
			ID:              qu.ID,
			QuizID:          q.ID,
			Type:            quiz.QuestionType(qu.Type),
			Prompt:          qu.Prompt,
			Points:          qu.Points,
			DisplayOrder:    i + 1,
			AcceptedAnswers: qu.AcceptedAnswers,
			MatchPolicy:     qu.MatchPolicy,
		}
		for j, o := range qu.Options {
			dq.Options = append(dq.Options, quiz.AnswerOption{
				ID:           o.ID,
				QuestionID:   qu.ID,
				Text:         o.Text,
				IsCorrect:    o.IsCorrect,
				DisplayOrder: j + 1,
			})
		}
		questions = append(questions, dq)
	}
	return out, questions
}
