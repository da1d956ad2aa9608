package quiz

import (
	"context"
	"time"
)

// Bank is the read contract of the question bank.
type Bank interface {
	GetQuiz(ctx context.Context, id string) (Quiz, error)
	// GetQuestions returns the quiz's questions ordered by display order, options included.
	GetQuestions(ctx context.Context, quizID string) ([]Question, error)
	GetCorrectAnswers(ctx context.Context, questionID string) ([]AnswerOption, error)
}

// Ledger is the durable record of attempts.
type Ledger interface {
	// CreateAttempt checks the in-progress and max-attempts invariants and inserts the
	// attempt as one atomic unit.
	CreateAttempt(ctx context.Context, in NewAttempt) (Attempt, error)
	GetAttempt(ctx context.Context, id string) (Attempt, error)
	ActiveAttempt(ctx context.Context, userID, quizID string) (Attempt, bool, error)
	ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error)
	// ListExpired returns in-progress attempts of timed quizzes whose deadline passed before now.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]Attempt, error)
	// Finalize writes the scored attempt and every response. It fails with
	// ErrAttemptNotActive unless the stored attempt is still in progress.
	Finalize(ctx context.Context, a Attempt, responses []Response) (Attempt, error)
	BestPassedFinalAttempt(ctx context.Context, userID, courseID string) (CertificateCandidate, error)
}

// Recorder is the durable record of learner responses.
type Recorder interface {
	// SaveResponse upserts one response. It fails with ErrAttemptNotActive unless the
	// attempt is in progress, and persists nothing on failure.
	SaveResponse(ctx context.Context, r Response) error
	GetResponses(ctx context.Context, attemptID string) ([]Response, error)
}

// Enrollments is the enrollment collaborator.
type Enrollments interface {
	IsEnrolled(ctx context.Context, userID, courseID string) (bool, error)
}

// Store bundles everything the controller needs from persistence.
type Store interface {
	Bank
	Ledger
	Recorder
}
