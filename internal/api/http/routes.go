package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	auth "github.com/mind-engage/mindengage-quiz/internal/auth/middleware"
	"github.com/mind-engage/mindengage-quiz/internal/metrics"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

// Mount registers the quiz API on r behind JWT auth.
func Mount(r chi.Router, svc *quiz.Service, authSvc *auth.AuthService) {
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))
		pr.Use(Instrument)

		pr.With(rbac.Require(rbac.PermQuizView)).Get("/quizzes/{quizID}", QuizOverviewHandler(svc))
		pr.With(rbac.Require(rbac.PermAttemptCreate)).Post("/quizzes/{quizID}/attempts", StartAttemptHandler(svc))

		pr.With(rbac.RequireAny(rbac.PermAttemptViewOwn, rbac.PermAttemptViewAll)).Get("/attempts", ListAttemptsHandler(svc))
		pr.With(rbac.RequireAny(rbac.PermAttemptViewOwn, rbac.PermAttemptViewAll)).Get("/attempts/{attemptID}", GetAttemptHandler(svc))
		pr.With(rbac.RequireAny(rbac.PermAttemptViewOwn, rbac.PermAttemptViewAll)).Get("/attempts/{attemptID}/result", ResultHandler(svc))
		pr.With(rbac.Require(rbac.PermAttemptAnswer)).Put("/attempts/{attemptID}/responses/{questionID}", RecordAnswerHandler(svc))
		pr.With(rbac.Require(rbac.PermAttemptSubmit)).Post("/attempts/{attemptID}/submit", SubmitAttemptHandler(svc))

		pr.With(rbac.Require(rbac.PermCertificateCheck)).Get("/courses/{courseID}/certificate-eligibility", CertificateEligibilityHandler(svc))
	})
}

// Instrument records request latency by route pattern and status.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.ObserveHTTP(route, status, time.Since(start))
	})
}
