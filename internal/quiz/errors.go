package quiz

import "errors"

// Kind discriminates controller failures for callers and the HTTP layer.
type Kind string

const (
	KindNotEnrolled              Kind = "not_enrolled"
	KindQuizUnpublished          Kind = "quiz_unpublished"
	KindAttemptLimitReached      Kind = "attempt_limit_reached"
	KindAttemptAlreadyInProgress Kind = "attempt_already_in_progress"
	KindAttemptNotActive         Kind = "attempt_not_active"
	KindTimeExpired              Kind = "time_expired"
	KindQuestionNotInQuiz        Kind = "question_not_in_quiz"
	KindInvalidSelection         Kind = "invalid_selection"
	KindNotFound                 Kind = "not_found"
	KindAttemptNotCompleted      Kind = "attempt_not_completed"
	KindNotEligible              Kind = "not_eligible"
	KindInternal                 Kind = "internal"
)

// Error is a typed precondition failure.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

var (
	ErrNotEnrolled              = &Error{KindNotEnrolled, "user is not enrolled in this course"}
	ErrQuizUnpublished          = &Error{KindQuizUnpublished, "quiz is not published"}
	ErrAttemptLimitReached      = &Error{KindAttemptLimitReached, "maximum number of attempts reached"}
	ErrAttemptAlreadyInProgress = &Error{KindAttemptAlreadyInProgress, "an attempt is already in progress"}
	ErrAttemptNotActive         = &Error{KindAttemptNotActive, "attempt is not in progress"}
	ErrTimeExpired              = &Error{KindTimeExpired, "time limit expired; attempt was submitted"}
	ErrQuestionNotInQuiz        = &Error{KindQuestionNotInQuiz, "question does not belong to this quiz"}
	ErrInvalidSelection         = &Error{KindInvalidSelection, "selection is not valid for this question"}
	ErrAttemptNotCompleted      = &Error{KindAttemptNotCompleted, "attempt has not been completed"}
	ErrNotEligible              = &Error{KindNotEligible, "no passing final quiz attempt"}

	ErrQuizNotFound     = &Error{KindNotFound, "quiz not found"}
	ErrQuestionNotFound = &Error{KindNotFound, "question not found"}
	ErrAttemptNotFound  = &Error{KindNotFound, "attempt not found"}
)

// KindOf returns the kind of the first typed error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
