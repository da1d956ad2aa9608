package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

// backTo is where clients send the learner after a rejected action.
const backTo = "/quizzes"

type errorBody struct {
	Error   string        `json:"error"`
	Message string        `json:"message"`
	BackTo  string        `json:"back_to,omitempty"`
	Attempt *quiz.Attempt `json:"attempt,omitempty"`
}

func statusFor(k quiz.Kind) int {
	switch k {
	case quiz.KindNotEnrolled, quiz.KindQuizUnpublished:
		return http.StatusForbidden
	case quiz.KindAttemptLimitReached, quiz.KindAttemptAlreadyInProgress, quiz.KindAttemptNotActive,
		quiz.KindTimeExpired, quiz.KindAttemptNotCompleted:
		return http.StatusConflict
	case quiz.KindQuestionNotInQuiz, quiz.KindInvalidSelection:
		return http.StatusUnprocessableEntity
	case quiz.KindNotFound, quiz.KindNotEligible:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders a controller error. att, when non-nil, is echoed so the client can
// resume a live attempt or show an auto-submitted one.
func writeError(w http.ResponseWriter, r *http.Request, err error, att *quiz.Attempt) {
	kind := quiz.KindOf(err)
	status := statusFor(kind)
	body := errorBody{Error: string(kind), Message: err.Error(), Attempt: att}
	var qe *quiz.Error
	if !errors.As(err, &qe) {
		slog.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "err", err)
		body.Message = "internal error"
	}
	switch kind {
	case quiz.KindNotEnrolled, quiz.KindQuizUnpublished, quiz.KindAttemptLimitReached, quiz.KindNotFound:
		body.BackTo = backTo
	}
	writeJSON(w, status, body)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
