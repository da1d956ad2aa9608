package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

// GET /quizzes/{quizID}
func QuizOverviewHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ov, err := svc.QuizOverview(r.Context(), viewer(r), chi.URLParam(r, "quizID"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, ov)
	}
}

// GET /courses/{courseID}/certificate-eligibility[?user_id=...]
// Staff may ask about any learner; everyone else gets their own answer.
func CertificateEligibilityHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v := viewer(r)
		userID := v.UserID
		if u := strings.TrimSpace(r.URL.Query().Get("user_id")); u != "" && v.Staff {
			userID = u
		}
		c, err := svc.CertificateEligibility(r.Context(), userID, chi.URLParam(r, "courseID"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"eligible": true, "candidate": c})
	}
}
