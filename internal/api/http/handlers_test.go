package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	auth "github.com/mind-engage/mindengage-quiz/internal/auth/middleware"
	"github.com/mind-engage/mindengage-quiz/internal/enrollment"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

type testServer struct {
	srv  *httptest.Server
	auth *auth.AuthService

	mu    sync.Mutex
	clock time.Time
}

func (ts *testServer) now() time.Time {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.clock
}

func (ts *testServer) advance(d time.Duration) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.clock = ts.clock.Add(d)
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	store := quiz.NewInMemoryStore()
	err := store.PutQuiz(ctx, quiz.Quiz{ID: "qz", CourseID: "c1", Title: "Basics", TimeLimitMinutes: 5,
		PassingScore: 50, MaxAttempts: 1, Published: true, Final: true}, []quiz.Question{
		{ID: "q1", Type: quiz.SingleChoice, Prompt: "1+1?", Points: 5, DisplayOrder: 1, Options: []quiz.AnswerOption{
			{ID: "a", Text: "2", IsCorrect: true, DisplayOrder: 1},
			{ID: "b", Text: "3", DisplayOrder: 2},
		}},
		{ID: "q2", Type: quiz.FreeText, Prompt: "Say hi", Points: 5, DisplayOrder: 2, AcceptedAnswers: []string{"hi"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	enroll := enrollment.NewMemory()
	_ = enroll.Enroll(ctx, "stu", "c1")

	ts := &testServer{auth: auth.NewAuthService("0123456789abcdef", time.Hour), clock: time.Now()}
	svc := quiz.NewService(store, enroll, quiz.WithClock(ts.now))
	r := chi.NewRouter()
	Mount(r, svc, ts.auth)
	ts.srv = httptest.NewServer(r)
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, sub, role, body string) (int, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, _ := http.NewRequest(method, ts.srv.URL+path, rd)
	if sub != "" {
		tok, err := ts.auth.IssueJWT(sub, role)
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer res.Body.Close()
	var out map[string]any
	raw, _ := io.ReadAll(res.Body)
	if len(raw) > 0 && raw[0] == '{' {
		_ = json.Unmarshal(raw, &out)
	}
	return res.StatusCode, out
}

func TestAttemptFlowOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	code, body := ts.do(t, http.MethodPost, "/quizzes/qz/attempts", "stu", "student", "")
	if code != http.StatusCreated {
		t.Fatalf("start: %d %v", code, body)
	}
	id := body["id"].(string)

	code, body = ts.do(t, http.MethodPost, "/quizzes/qz/attempts", "stu", "student", "")
	if code != http.StatusConflict || body["error"] != "attempt_already_in_progress" {
		t.Fatalf("second start: %d %v", code, body)
	}
	if att, _ := body["attempt"].(map[string]any); att == nil || att["id"] != id {
		t.Fatalf("live attempt not echoed: %v", body)
	}

	code, _ = ts.do(t, http.MethodPut, "/attempts/"+id+"/responses/q1", "stu", "student", `{"selected_option_ids":["a"]}`)
	if code != http.StatusOK {
		t.Fatalf("answer q1: %d", code)
	}
	code, body = ts.do(t, http.MethodPut, "/attempts/"+id+"/responses/q1", "stu", "student", `{"selected_option_ids":["a","b"]}`)
	if code != http.StatusUnprocessableEntity || body["error"] != "invalid_selection" {
		t.Fatalf("invalid selection: %d %v", code, body)
	}
	code, body = ts.do(t, http.MethodPut, "/attempts/"+id+"/responses/zz", "stu", "student", `{"text":"x"}`)
	if code != http.StatusUnprocessableEntity || body["error"] != "question_not_in_quiz" {
		t.Fatalf("foreign question: %d %v", code, body)
	}

	code, body = ts.do(t, http.MethodGet, "/attempts/"+id+"/result", "stu", "student", "")
	if code != http.StatusConflict || body["error"] != "attempt_not_completed" {
		t.Fatalf("early result: %d %v", code, body)
	}

	code, body = ts.do(t, http.MethodPost, "/attempts/"+id+"/submit", "stu", "student", "")
	if code != http.StatusOK || body["status"] != "completed" || body["percentage"] != 50.0 {
		t.Fatalf("submit: %d %v", code, body)
	}
	code, body = ts.do(t, http.MethodPost, "/attempts/"+id+"/submit", "stu", "student", "")
	if code != http.StatusConflict || body["error"] != "attempt_not_active" {
		t.Fatalf("resubmit: %d %v", code, body)
	}

	code, body = ts.do(t, http.MethodGet, "/attempts/"+id+"/result", "stu", "student", "")
	if code != http.StatusOK || body["quiz_title"] != "Basics" || body["percentage_display"] != 50.0 {
		t.Fatalf("result: %d %v", code, body)
	}

	code, body = ts.do(t, http.MethodPost, "/quizzes/qz/attempts", "stu", "student", "")
	if code != http.StatusConflict || body["error"] != "attempt_limit_reached" || body["back_to"] != "/quizzes" {
		t.Fatalf("over limit: %d %v", code, body)
	}

	code, body = ts.do(t, http.MethodGet, "/courses/c1/certificate-eligibility", "stu", "student", "")
	if code != http.StatusOK || body["eligible"] != true {
		t.Fatalf("eligibility: %d %v", code, body)
	}
}

func TestExpiredAnswerReturnsAutoSubmittedAttempt(t *testing.T) {
	ts := newTestServer(t)
	_, body := ts.do(t, http.MethodPost, "/quizzes/qz/attempts", "stu", "student", "")
	id := body["id"].(string)
	ts.advance(6 * time.Minute)

	code, body := ts.do(t, http.MethodPut, "/attempts/"+id+"/responses/q1", "stu", "student", `{"selected_option_ids":["a"]}`)
	if code != http.StatusConflict || body["error"] != "time_expired" {
		t.Fatalf("late answer: %d %v", code, body)
	}
	att, _ := body["attempt"].(map[string]any)
	if att == nil || att["status"] != "completed" || att["auto_submitted"] != true {
		t.Fatalf("attempt = %v", att)
	}
}

func TestAuthAndPermissions(t *testing.T) {
	ts := newTestServer(t)
	if code, _ := ts.do(t, http.MethodGet, "/quizzes/qz", "", "", ""); code != http.StatusUnauthorized {
		t.Fatalf("anonymous: %d", code)
	}
	if code, _ := ts.do(t, http.MethodPost, "/quizzes/qz/attempts", "prof", "instructor", ""); code != http.StatusForbidden {
		t.Fatalf("instructor start: %d", code)
	}
	code, body := ts.do(t, http.MethodPost, "/quizzes/qz/attempts", "outsider", "student", "")
	if code != http.StatusForbidden || body["error"] != "not_enrolled" {
		t.Fatalf("not enrolled: %d %v", code, body)
	}

	_, body = ts.do(t, http.MethodPost, "/quizzes/qz/attempts", "stu", "student", "")
	id := body["id"].(string)
	if code, body := ts.do(t, http.MethodGet, "/attempts/"+id, "other", "student", ""); code != http.StatusNotFound {
		t.Fatalf("foreign read: %d %v", code, body)
	}
	if code, _ := ts.do(t, http.MethodGet, "/attempts/"+id, "prof", "instructor", ""); code != http.StatusOK {
		t.Fatalf("instructor read: %d", code)
	}
}

func TestQuizOverviewOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	code, body := ts.do(t, http.MethodGet, "/quizzes/qz", "stu", "student", "")
	if code != http.StatusOK {
		t.Fatalf("overview: %d %v", code, body)
	}
	qs, _ := body["questions"].([]any)
	if len(qs) != 2 {
		t.Fatalf("questions = %v", body["questions"])
	}
	free := qs[1].(map[string]any)
	if _, leaked := free["accepted_answers"]; leaked {
		t.Fatalf("accepted answers leaked: %v", free)
	}
}

func TestListAttemptsRejectsUnknownStatus(t *testing.T) {
	ts := newTestServer(t)
	if code, _ := ts.do(t, http.MethodGet, "/attempts?status=paused", "stu", "student", ""); code != http.StatusBadRequest {
		t.Fatalf("code = %d", code)
	}
}

func TestStatusFor(t *testing.T) {
	cases := map[quiz.Kind]int{
		quiz.KindNotEnrolled:              http.StatusForbidden,
		quiz.KindAttemptAlreadyInProgress: http.StatusConflict,
		quiz.KindInvalidSelection:         http.StatusUnprocessableEntity,
		quiz.KindNotFound:                 http.StatusNotFound,
		quiz.KindInternal:                 http.StatusInternalServerError,
	}
	for k, want := range cases {
		if got := statusFor(k); got != want {
			t.Errorf("statusFor(%s) = %d, want %d", k, got, want)
		}
	}
}
