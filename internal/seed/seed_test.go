package seed

import (
	"context"
	"strings"
	"testing"

	auth "github.com/mind-engage/mindengage-quiz/internal/auth/middleware"
	"github.com/mind-engage/mindengage-quiz/internal/enrollment"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

const fixture = `{
  "users": [{"id": "u1", "username": "alice", "password": "secret1", "role": "student"}],
  "enrollments": [{"user_id": "u1", "course_id": "go-101"}],
  "quizzes": [{
    "id": "final", "course_id": "go-101", "title": "Final", "time_limit_minutes": 30,
    "passing_score": 70, "max_attempts": 3, "is_published": true, "is_final": true,
    "questions": [
      {"id": "q1", "type": "single_choice", "prompt": "Zero value of int?", "points": 1,
       "options": [{"id": "a", "text": "0", "is_correct": true}, {"id": "b", "text": "nil"}]},
      {"id": "q2", "type": "free_text", "prompt": "Keyword for goroutines?", "points": 2,
       "accepted_answers": ["go"], "match_policy": "exact"}
    ]
  }]
}`

type fakeUsers struct{ got []auth.User }

func (f *fakeUsers) PutUser(_ context.Context, u auth.User, _ string) error {
	f.got = append(f.got, u)
	return nil
}

func TestDecodeAndApply(t *testing.T) {
	ctx := context.Background()
	f, err := Decode(strings.NewReader(fixture))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	store := quiz.NewInMemoryStore()
	enroll := enrollment.NewMemory()
	users := &fakeUsers{}
	if err := Apply(ctx, f, Targets{Quizzes: store, Enrollments: enroll, Users: users}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	q, err := store.GetQuiz(ctx, "final")
	if err != nil || !q.Final || q.PassingScore != 70 {
		t.Fatalf("quiz = %+v %v", q, err)
	}
	qs, _ := store.GetQuestions(ctx, "final")
	if len(qs) != 2 || qs[0].ID != "q1" || qs[1].MatchPolicy != "exact" {
		t.Fatalf("questions = %+v", qs)
	}
	if ok, _ := enroll.IsEnrolled(ctx, "u1", "go-101"); !ok {
		t.Fatal("enrollment not applied")
	}
	if len(users.got) != 1 || users.got[0].Role != "student" {
		t.Fatalf("users = %+v", users.got)
	}
}

func TestValidateRejectsBrokenKeys(t *testing.T) {
	cases := map[string]string{
		"two correct on single": `{"quizzes":[{"id":"x","course_id":"c","title":"t","questions":[
			{"id":"q","type":"single_choice","prompt":"p","points":1,
			 "options":[{"id":"a","text":"a","is_correct":true},{"id":"b","text":"b","is_correct":true}]}]}]}`,
		"free text without answers": `{"quizzes":[{"id":"x","course_id":"c","title":"t","questions":[
			{"id":"q","type":"free_text","prompt":"p","points":1}]}]}`,
		"unknown type": `{"quizzes":[{"id":"x","course_id":"c","title":"t","questions":[
			{"id":"q","type":"essay","prompt":"p","points":1}]}]}`,
		"zero points": `{"quizzes":[{"id":"x","course_id":"c","title":"t","questions":[
			{"id":"q","type":"single_choice","prompt":"p","points":0,
			 "options":[{"id":"a","text":"a","is_correct":true}]}]}]}`,
		"unknown match policy": `{"quizzes":[{"id":"x","course_id":"c","title":"t","questions":[
			{"id":"q","type":"free_text","prompt":"p","points":1,
			 "accepted_answers":["go"],"match_policy":"soundex"}]}]}`,
		"bad role":      `{"users":[{"id":"u","username":"u","password":"secret1","role":"root"}]}`,
		"unknown field": `{"courses":[]}`,
	}
	for name, doc := range cases {
		if _, err := Decode(strings.NewReader(doc)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestQuestionIDsFollowFixtureOrder(t *testing.T) {
	f, err := Decode(strings.NewReader(fixture))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got := f.Quizzes[0].QuestionIDs()
	if len(got) != 2 || got[0] != "q1" || got[1] != "q2" {
		t.Fatalf("question ids = %v", got)
	}
}
