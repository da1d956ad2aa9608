package quiz

import (
	"context"
	"math"
)

// Result is the presentation of a completed attempt.
type Result struct {
	AttemptID     string       `json:"attempt_id"`
	QuizID        string       `json:"quiz_id"`
	QuizTitle     string       `json:"quiz_title"`
	AttemptNumber int          `json:"attempt_number"`
	Score         float64      `json:"score"`
	TotalPoints   float64      `json:"total_points"`
	Percentage    float64      `json:"percentage"`
	Display       int          `json:"percentage_display"`
	Passed        bool         `json:"passed"`
	PassingScore  float64      `json:"passing_score"`
	TimeSpentSec  int64        `json:"time_spent_sec"`
	AutoSubmitted bool         `json:"auto_submitted"`
	Items         []ReviewItem `json:"items"`
}

// ReviewItem shows one question with the learner's answer next to the correct one.
type ReviewItem struct {
	QuestionID     string       `json:"question_id"`
	Prompt         string       `json:"prompt"`
	Type           QuestionType `json:"type"`
	Points         float64      `json:"points"`
	PointsEarned   float64      `json:"points_earned"`
	IsCorrect      bool         `json:"is_correct"`
	Answered       bool         `json:"answered"`
	Selected       []string     `json:"selected_option_ids,omitempty"`
	SelectedTexts  []string     `json:"selected_texts,omitempty"`
	SubmittedText  string       `json:"submitted_text,omitempty"`
	CorrectAnswers []string     `json:"correct_answers"`
}

// RoundedPercentage is the display form of a percentage. The stored value keeps full precision.
func RoundedPercentage(p float64) int {
	return int(math.Round(p))
}

func (r Result) RoundedPercentage() int { return RoundedPercentage(r.Percentage) }

// GetResult renders a completed attempt for review.
func (s *Service) GetResult(ctx context.Context, v Viewer, attemptID string) (Result, error) {
	a, err := s.GetAttempt(ctx, v, attemptID)
	if err != nil {
		return Result{}, err
	}
	if a.Status != StatusCompleted {
		return Result{}, ErrAttemptNotCompleted
	}
	q, err := s.bank.GetQuiz(ctx, a.QuizID)
	if err != nil {
		return Result{}, err
	}
	questions, err := s.bank.GetQuestions(ctx, q.ID)
	if err != nil {
		return Result{}, err
	}
	responses, err := s.store.GetResponses(ctx, a.ID)
	if err != nil {
		return Result{}, err
	}
	byQuestion := make(map[string]Response, len(responses))
	for _, r := range responses {
		byQuestion[r.QuestionID] = r
	}

	res := Result{
		AttemptID:     a.ID,
		QuizID:        q.ID,
		QuizTitle:     q.Title,
		AttemptNumber: a.Number,
		Score:         a.Score,
		TotalPoints:   a.TotalPoints,
		Percentage:    a.Percentage,
		Display:       RoundedPercentage(a.Percentage),
		Passed:        a.Passed,
		PassingScore:  q.PassingScore,
		TimeSpentSec:  a.TimeSpentSec,
		AutoSubmitted: a.AutoSubmitted,
		Items:         make([]ReviewItem, 0, len(questions)),
	}
	for _, qu := range questions {
		r := byQuestion[qu.ID]
		item := ReviewItem{
			QuestionID:     qu.ID,
			Prompt:         qu.Prompt,
			Type:           qu.Type,
			Points:         qu.Points,
			PointsEarned:   r.PointsEarned,
			IsCorrect:      r.IsCorrect,
			Answered:       r.Answered,
			Selected:       r.OptionIDs,
			SubmittedText:  r.Text,
			CorrectAnswers: qu.CorrectAnswers(),
		}
		for _, id := range r.OptionIDs {
			if o, ok := qu.option(id); ok {
				item.SelectedTexts = append(item.SelectedTexts, o.Text)
			}
		}
		res.Items = append(res.Items, item)
	}
	return res, nil
}

// Overview is the learner-safe view of a quiz: no correctness flags, no accepted answers.
type Overview struct {
	Quiz              Quiz       `json:"quiz"`
	Questions         []Question `json:"questions"`
	AttemptsUsed      int        `json:"attempts_used"`
	AttemptsRemaining int        `json:"attempts_remaining"` // -1 = unlimited
	ActiveAttemptID   string     `json:"active_attempt_id,omitempty"`
}

// QuizOverview returns the quiz as a learner may see it before or during an attempt.
func (s *Service) QuizOverview(ctx context.Context, v Viewer, quizID string) (Overview, error) {
	q, err := s.bank.GetQuiz(ctx, quizID)
	if err != nil {
		return Overview{}, err
	}
	if !v.Staff {
		enrolled, err := s.enroll.IsEnrolled(ctx, v.UserID, q.CourseID)
		if err != nil {
			return Overview{}, err
		}
		if !enrolled {
			return Overview{}, ErrNotEnrolled
		}
		if !q.Published {
			return Overview{}, ErrQuizUnpublished
		}
	}
	questions, err := s.bank.GetQuestions(ctx, quizID)
	if err != nil {
		return Overview{}, err
	}
	if !v.Staff {
		for i := range questions {
			questions[i].AcceptedAnswers = nil
			questions[i].MatchPolicy = ""
			opts := make([]AnswerOption, len(questions[i].Options))
			for j, o := range questions[i].Options {
				o.IsCorrect = false
				opts[j] = o
			}
			questions[i].Options = opts
		}
	}

	attempts, err := s.store.ListAttempts(ctx, AttemptListOpts{QuizID: quizID, UserID: v.UserID, Limit: 500})
	if err != nil {
		return Overview{}, err
	}
	if attempts, err = s.settleExpired(ctx, attempts); err != nil {
		return Overview{}, err
	}
	ov := Overview{Quiz: q, Questions: questions, AttemptsUsed: len(attempts), AttemptsRemaining: -1}
	if q.MaxAttempts > 0 {
		ov.AttemptsRemaining = max(q.MaxAttempts-len(attempts), 0)
	}
	for _, a := range attempts {
		if a.Status == StatusInProgress {
			ov.ActiveAttemptID = a.ID
		}
	}
	return ov, nil
}
