package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

// GET /attempts?quiz_id=...&user_id=...&status=...&limit=50&offset=0
// Callers without attempt:view-all only ever see their own attempts; user_id is ignored for them.
func ListAttemptsHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		status := quiz.Status(strings.TrimSpace(q.Get("status")))
		switch status {
		case "", quiz.StatusInProgress, quiz.StatusCompleted, quiz.StatusAbandoned:
		default:
			badRequest(w, "unknown status")
			return
		}
		list, err := svc.ListAttempts(r.Context(), viewer(r), quiz.AttemptListOpts{
			QuizID: strings.TrimSpace(q.Get("quiz_id")),
			UserID: strings.TrimSpace(q.Get("user_id")),
			Status: status,
			Limit:  parseIntDefault(q.Get("limit"), 50),
			Offset: parseIntDefault(q.Get("offset"), 0),
		})
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func parseIntDefault(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return def
	}
	return n
}
