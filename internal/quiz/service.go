package quiz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-quiz/internal/events"
	"github.com/mind-engage/mindengage-quiz/internal/grading"
	"github.com/mind-engage/mindengage-quiz/internal/metrics"
)

// Finalization triggers, also used as metric labels.
const (
	TriggerSubmit  = "submit"
	TriggerExpired = "time_expired"
	TriggerSweep   = "sweep"
)

// Service is the attempt lifecycle controller: start, answer, submit, finalize.
type Service struct {
	store  Store
	bank   Bank
	enroll Enrollments
	engine *grading.Engine
	events events.Publisher
	now    func() time.Time
	newID  func() string
	log    *slog.Logger
}

type ServiceOption func(*Service)

// WithBank overrides question bank reads, e.g. with a caching decorator.
func WithBank(b Bank) ServiceOption { return func(s *Service) { s.bank = b } }

func WithEngine(e *grading.Engine) ServiceOption { return func(s *Service) { s.engine = e } }

func WithPublisher(p events.Publisher) ServiceOption { return func(s *Service) { s.events = p } }

func WithClock(now func() time.Time) ServiceOption { return func(s *Service) { s.now = now } }

func WithIDGenerator(f func() string) ServiceOption { return func(s *Service) { s.newID = f } }

func WithLogger(l *slog.Logger) ServiceOption { return func(s *Service) { s.log = l } }

func NewService(store Store, enroll Enrollments, opts ...ServiceOption) *Service {
	s := &Service{
		store:  store,
		bank:   store,
		enroll: enroll,
		engine: grading.NewEngine(),
		events: events.Nop{},
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
		log:    slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Viewer identifies who reads attempt data. Staff may read any learner's attempts.
type Viewer struct {
	UserID string
	Staff  bool
}

// StartAttempt opens a new attempt for userID. When the user already has a live attempt
// it is returned together with ErrAttemptAlreadyInProgress so the caller can resume it.
func (s *Service) StartAttempt(ctx context.Context, userID, quizID string) (a Attempt, err error) {
	defer func() { metrics.AttemptStarted(string(KindOf(err))) }()

	q, err := s.bank.GetQuiz(ctx, quizID)
	if err != nil {
		return Attempt{}, err
	}
	enrolled, err := s.enroll.IsEnrolled(ctx, userID, q.CourseID)
	if err != nil {
		return Attempt{}, fmt.Errorf("enrollment check: %w", err)
	}
	if !enrolled {
		return Attempt{}, ErrNotEnrolled
	}
	if !q.Published {
		return Attempt{}, ErrQuizUnpublished
	}

	now := s.now()
	active, found, err := s.store.ActiveAttempt(ctx, userID, quizID)
	if err != nil {
		return Attempt{}, err
	}
	if found {
		if !active.Expired(q, now) {
			return active, ErrAttemptAlreadyInProgress
		}
		if _, err := s.finalize(ctx, active, q, TriggerExpired); err != nil && !errors.Is(err, ErrAttemptNotActive) {
			return Attempt{}, err
		}
	}

	a, err = s.store.CreateAttempt(ctx, NewAttempt{
		ID:          s.newID(),
		UserID:      userID,
		QuizID:      quizID,
		MaxAttempts: q.MaxAttempts,
		StartedAt:   now,
	})
	if err != nil {
		return Attempt{}, err
	}
	s.log.InfoContext(ctx, "attempt started",
		"attempt_id", a.ID, "user_id", userID, "quiz_id", quizID, "attempt_number", a.Number)
	s.publish(ctx, events.TypeAttemptStarted, a.ID, map[string]any{
		"attempt_id":     a.ID,
		"user_id":        a.UserID,
		"quiz_id":        a.QuizID,
		"attempt_number": a.Number,
		"started_at":     a.StartedAt,
	})
	return a, nil
}

// RecordAnswer stores or replaces the response to one question. Correctness is deferred
// to submission so the learner may revise answers. When the time limit has passed the
// attempt is submitted with the responses recorded so far and returned with ErrTimeExpired.
func (s *Service) RecordAnswer(ctx context.Context, userID, attemptID string, in AnswerInput) (a Attempt, err error) {
	defer func() { metrics.AnswerRecorded(string(KindOf(err))) }()

	a, q, err := s.loadOwned(ctx, userID, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if a.Status != StatusInProgress {
		return a, ErrAttemptNotActive
	}
	now := s.now()
	if a.Expired(q, now) {
		fin, err := s.finalizeOrReload(ctx, a, q, TriggerExpired)
		if err != nil {
			return Attempt{}, err
		}
		return fin, ErrTimeExpired
	}

	questions, err := s.bank.GetQuestions(ctx, q.ID)
	if err != nil {
		return Attempt{}, err
	}
	var question *Question
	for i := range questions {
		if questions[i].ID == in.QuestionID {
			question = &questions[i]
			break
		}
	}
	if question == nil {
		return a, ErrQuestionNotInQuiz
	}
	r, err := buildResponse(*question, in)
	if err != nil {
		return a, err
	}
	r.AttemptID = a.ID
	r.UpdatedAt = now
	if err := s.store.SaveResponse(ctx, r); err != nil {
		return a, err
	}
	return a, nil
}

// SubmitAttempt scores and completes an in-progress attempt. Completed attempts are final:
// a second submission fails with ErrAttemptNotActive and leaves the stored score untouched.
func (s *Service) SubmitAttempt(ctx context.Context, userID, attemptID string) (Attempt, error) {
	a, q, err := s.loadOwned(ctx, userID, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if a.Status != StatusInProgress {
		return a, ErrAttemptNotActive
	}
	trigger := TriggerSubmit
	if a.Expired(q, s.now()) {
		trigger = TriggerExpired
	}
	return s.finalize(ctx, a, q, trigger)
}

// GetAttempt returns an attempt, auto-submitting it first if its time limit has passed.
func (s *Service) GetAttempt(ctx context.Context, v Viewer, attemptID string) (Attempt, error) {
	a, q, err := s.load(ctx, v, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if a.Status == StatusInProgress && a.Expired(q, s.now()) {
		return s.finalizeOrReload(ctx, a, q, TriggerExpired)
	}
	return a, nil
}

// ListAttempts lists attempts. Learners only ever see their own.
func (s *Service) ListAttempts(ctx context.Context, v Viewer, opts AttemptListOpts) ([]Attempt, error) {
	if !v.Staff {
		opts.UserID = v.UserID
	}
	attempts, err := s.store.ListAttempts(ctx, opts)
	if err != nil {
		return nil, err
	}
	attempts, err = s.settleExpired(ctx, attempts)
	if err != nil {
		return nil, err
	}
	if opts.Status == "" {
		return attempts, nil
	}
	out := attempts[:0]
	for _, a := range attempts {
		if a.Status == opts.Status {
			out = append(out, a)
		}
	}
	return out, nil
}

// settleExpired finalizes every listed attempt whose time limit has passed and
// returns the list with the stored outcome in place.
func (s *Service) settleExpired(ctx context.Context, attempts []Attempt) ([]Attempt, error) {
	now := s.now()
	quizzes := map[string]Quiz{}
	for i, a := range attempts {
		if a.Status != StatusInProgress {
			continue
		}
		q, ok := quizzes[a.QuizID]
		if !ok {
			var err error
			if q, err = s.bank.GetQuiz(ctx, a.QuizID); err != nil {
				return nil, err
			}
			quizzes[a.QuizID] = q
		}
		if !a.Expired(q, now) {
			continue
		}
		fin, err := s.finalizeOrReload(ctx, a, q, TriggerExpired)
		if err != nil {
			return nil, err
		}
		attempts[i] = fin
	}
	return attempts, nil
}

// ExpireStale auto-submits up to limit in-progress attempts whose time limit has passed.
// It backs the optional sweep job.
func (s *Service) ExpireStale(ctx context.Context, limit int) (int, error) {
	stale, err := s.store.ListExpired(ctx, s.now(), limit)
	if err != nil {
		return 0, err
	}
	n := 0
	var errs []error
	for _, a := range stale {
		q, err := s.bank.GetQuiz(ctx, a.QuizID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, err := s.finalize(ctx, a, q, TriggerSweep); err != nil {
			if !errors.Is(err, ErrAttemptNotActive) {
				errs = append(errs, fmt.Errorf("attempt %s: %w", a.ID, err))
			}
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

// CertificateEligibility returns the best passing attempt of the course's final quiz.
func (s *Service) CertificateEligibility(ctx context.Context, userID, courseID string) (CertificateCandidate, error) {
	return s.store.BestPassedFinalAttempt(ctx, userID, courseID)
}

func (s *Service) loadOwned(ctx context.Context, userID, attemptID string) (Attempt, Quiz, error) {
	return s.load(ctx, Viewer{UserID: userID}, attemptID)
}

func (s *Service) load(ctx context.Context, v Viewer, attemptID string) (Attempt, Quiz, error) {
	a, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return Attempt{}, Quiz{}, err
	}
	if !v.Staff && a.UserID != v.UserID {
		return Attempt{}, Quiz{}, ErrAttemptNotFound
	}
	q, err := s.bank.GetQuiz(ctx, a.QuizID)
	if err != nil {
		return Attempt{}, Quiz{}, err
	}
	return a, q, nil
}

// finalizeOrReload finalizes a; if another request finalized it first, the stored
// attempt is returned instead.
func (s *Service) finalizeOrReload(ctx context.Context, a Attempt, q Quiz, trigger string) (Attempt, error) {
	fin, err := s.finalize(ctx, a, q, trigger)
	if errors.Is(err, ErrAttemptNotActive) {
		return s.store.GetAttempt(ctx, a.ID)
	}
	return fin, err
}

func (s *Service) finalize(ctx context.Context, a Attempt, q Quiz, trigger string) (Attempt, error) {
	questions, err := s.bank.GetQuestions(ctx, q.ID)
	if err != nil {
		return Attempt{}, err
	}
	recorded, err := s.store.GetResponses(ctx, a.ID)
	if err != nil {
		return Attempt{}, err
	}
	byQuestion := make(map[string]Response, len(recorded))
	answers := make(map[string]grading.Response, len(recorded))
	for _, r := range recorded {
		byQuestion[r.QuestionID] = r
		if r.Answered {
			answers[r.QuestionID] = grading.Response{QuestionID: r.QuestionID, Selected: r.OptionIDs, Text: r.Text}
		}
	}

	sum := s.engine.Score(ctx, q.PassingScore, toGrading(questions), answers)

	now := s.now()
	final := make([]Response, 0, len(questions))
	for i, qu := range questions {
		r, ok := byQuestion[qu.ID]
		if !ok {
			r = Response{AttemptID: a.ID, QuestionID: qu.ID, UpdatedAt: now}
		}
		r.PointsEarned = sum.Results[i].Points
		r.IsCorrect = sum.Results[i].Correct
		final = append(final, r)
	}

	spent := now.Sub(a.StartedAt)
	if trigger != TriggerSubmit && q.TimeLimitMinutes > 0 && spent > q.TimeLimit() {
		spent = q.TimeLimit()
	}
	if spent < 0 {
		spent = 0
	}
	a.Status = StatusCompleted
	a.SubmittedAt = &now
	a.TimeSpentSec = int64(spent / time.Second)
	a.Score = sum.Score
	a.TotalPoints = sum.TotalPoints
	a.Percentage = sum.Percentage
	a.Passed = sum.Passed
	a.AutoSubmitted = trigger != TriggerSubmit

	fin, err := s.store.Finalize(ctx, a, final)
	if err != nil {
		return Attempt{}, err
	}
	metrics.AttemptFinalized(trigger, fin.Passed, fin.Percentage)
	s.log.InfoContext(ctx, "attempt completed",
		"attempt_id", fin.ID, "user_id", fin.UserID, "quiz_id", fin.QuizID, "trigger", trigger,
		"score", fin.Score, "total_points", fin.TotalPoints, "percentage", fin.Percentage, "passed", fin.Passed)

	completedAt := now
	if fin.SubmittedAt != nil {
		completedAt = *fin.SubmittedAt
	}
	s.publish(ctx, events.TypeAttemptCompleted, fin.ID, map[string]any{
		"attempt_id":     fin.ID,
		"user_id":        fin.UserID,
		"quiz_id":        fin.QuizID,
		"course_id":      q.CourseID,
		"score":          fin.Score,
		"total_points":   fin.TotalPoints,
		"percentage":     fin.Percentage,
		"passed":         fin.Passed,
		"auto_submitted": fin.AutoSubmitted,
		"completed_at":   completedAt,
	})
	if q.Final && fin.Passed {
		s.publish(ctx, events.TypeCertificateEligible, fin.UserID+"|"+q.CourseID, CertificateCandidate{
			UserID:      fin.UserID,
			CourseID:    q.CourseID,
			QuizID:      q.ID,
			AttemptID:   fin.ID,
			Percentage:  fin.Percentage,
			CompletedAt: completedAt,
		})
	}
	return fin, nil
}

func (s *Service) publish(ctx context.Context, typ, key string, payload any) {
	e := events.Event{ID: s.newID(), Type: typ, Key: key, Payload: payload, OccurredAt: s.now()}
	if err := s.events.Publish(ctx, e); err != nil {
		s.log.WarnContext(ctx, "publish event failed", "type", typ, "key", key, "err", err)
	}
}

// buildResponse validates a submission against the question and normalizes it.
func buildResponse(q Question, in AnswerInput) (Response, error) {
	r := Response{QuestionID: q.ID, Answered: true}
	seen := map[string]bool{}
	for _, id := range in.OptionIDs {
		if seen[id] {
			continue
		}
		if _, ok := q.option(id); !ok {
			return Response{}, ErrInvalidSelection
		}
		seen[id] = true
		r.OptionIDs = append(r.OptionIDs, id)
	}
	switch q.Type {
	case SingleChoice:
		if len(r.OptionIDs) != 1 {
			return Response{}, ErrInvalidSelection
		}
	case MultiChoice:
		if len(r.OptionIDs) == 0 {
			return Response{}, ErrInvalidSelection
		}
	case FreeText:
		if len(r.OptionIDs) > 0 {
			return Response{}, ErrInvalidSelection
		}
		r.Text = in.Text
	default:
		return Response{}, ErrInvalidSelection
	}
	return r, nil
}

func toGrading(questions []Question) []grading.Q {
	out := make([]grading.Q, 0, len(questions))
	for _, q := range questions {
		gq := grading.Q{
			ID:       q.ID,
			Type:     string(q.Type),
			Points:   q.Points,
			Accepted: q.AcceptedAnswers,
			Policy:   q.MatchPolicy,
		}
		for _, o := range q.Options {
			gq.Choices = append(gq.Choices, grading.Choice{ID: o.ID, Correct: o.IsCorrect})
		}
		out = append(out, gq)
	}
	return out
}
