package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	auth "github.com/mind-engage/mindengage-quiz/internal/auth/middleware"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

var validate = validator.New()

func viewer(r *http.Request) quiz.Viewer {
	return quiz.Viewer{UserID: auth.SubjectFromContext(r.Context()), Staff: rbac.CanViewAll(r.Context())}
}

// POST /quizzes/{quizID}/attempts
func StartAttemptHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := svc.StartAttempt(r.Context(), auth.SubjectFromContext(r.Context()), chi.URLParam(r, "quizID"))
		if errors.Is(err, quiz.ErrAttemptAlreadyInProgress) {
			writeError(w, r, err, &a)
			return
		}
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusCreated, a)
	}
}

// GET /attempts/{attemptID}
func GetAttemptHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := svc.GetAttempt(r.Context(), viewer(r), chi.URLParam(r, "attemptID"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

// PUT /attempts/{attemptID}/responses/{questionID}  { "selected_option_ids": [...], "text": "..." }
func RecordAnswerHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in quiz.AnswerInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			badRequest(w, "bad json")
			return
		}
		in.QuestionID = chi.URLParam(r, "questionID")
		if err := validate.Struct(in); err != nil {
			badRequest(w, err.Error())
			return
		}
		a, err := svc.RecordAnswer(r.Context(), auth.SubjectFromContext(r.Context()), chi.URLParam(r, "attemptID"), in)
		if errors.Is(err, quiz.ErrTimeExpired) {
			writeError(w, r, err, &a)
			return
		}
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

// POST /attempts/{attemptID}/submit
func SubmitAttemptHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := svc.SubmitAttempt(r.Context(), auth.SubjectFromContext(r.Context()), chi.URLParam(r, "attemptID"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

// GET /attempts/{attemptID}/result
func ResultHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := svc.GetResult(r.Context(), viewer(r), chi.URLParam(r, "attemptID"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
