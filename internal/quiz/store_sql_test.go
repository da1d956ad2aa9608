package quiz

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mind-engage/mindengage-quiz/internal/db"
)

func newSQLStore(t *testing.T, name string) *SQLStore {
	t.Helper()
	d, err := db.Open(context.Background(), db.DriverSQLite, db.MemoryDSN(name))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return NewSQLStore(d, string(db.DriverSQLite))
}

func TestSQLStoreQuestionBank(t *testing.T) {
	ctx := context.Background()
	st := newSQLStore(t, "sqlstore_bank")
	qs := fixtures()
	q := quizzes()[0]
	// reversed on purpose; reads come back in display order
	in := []Question{qs[quizTimed][1], qs[quizTimed][0]}
	if err := st.PutQuiz(ctx, q, in); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := st.GetQuiz(ctx, q.ID)
	if err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if !got.Published || !got.Final || got.MaxAttempts != 2 || got.TimeLimitMinutes != 10 {
		t.Fatalf("quiz = %+v", got)
	}

	questions, err := st.GetQuestions(ctx, q.ID)
	if err != nil {
		t.Fatalf("questions: %v", err)
	}
	if len(questions) != 2 || questions[0].ID != "q-single" || questions[1].ID != "q-multi" {
		t.Fatalf("questions out of order: %+v", questions)
	}
	if len(questions[1].Options) != 3 || questions[1].Options[2].ID != "m-c" {
		t.Fatalf("multi options = %+v", questions[1].Options)
	}

	correct, err := st.GetCorrectAnswers(ctx, "q-multi")
	if err != nil {
		t.Fatalf("correct answers: %v", err)
	}
	if len(correct) != 2 || correct[0].ID != "m-a" || correct[1].ID != "m-b" {
		t.Fatalf("correct = %+v", correct)
	}
	if _, err := st.GetCorrectAnswers(ctx, "missing"); !errors.Is(err, ErrQuestionNotFound) {
		t.Fatalf("missing question: err = %v", err)
	}

	// republish with a new title
	q.Title = "Renamed"
	if err := st.PutQuiz(ctx, q, in); err != nil {
		t.Fatalf("re-put: %v", err)
	}
	if got, _ := st.GetQuiz(ctx, q.ID); got.Title != "Renamed" {
		t.Fatalf("title = %q", got.Title)
	}
}

func TestSQLStoreFreeTextRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := newSQLStore(t, "sqlstore_text")
	q := quizzes()[1]
	text := fixtures()[quizFree]
	text[0].MatchPolicy = "normalized"
	if err := st.PutQuiz(ctx, q, text); err != nil {
		t.Fatalf("put: %v", err)
	}
	questions, err := st.GetQuestions(ctx, q.ID)
	if err != nil {
		t.Fatalf("questions: %v", err)
	}
	if questions[0].MatchPolicy != "normalized" || len(questions[0].AcceptedAnswers) != 1 || questions[0].AcceptedAnswers[0] != "Paris" {
		t.Fatalf("free text question = %+v", questions[0])
	}
}

func TestSQLStoreAttemptGuards(t *testing.T) {
	ctx := context.Background()
	st := newSQLStore(t, "sqlstore_guards")
	q := quizzes()[0]
	if err := st.PutQuiz(ctx, q, fixtures()[quizTimed]); err != nil {
		t.Fatalf("put: %v", err)
	}
	start := time.Unix(1_700_000_000, 0).UTC()

	a, err := st.CreateAttempt(ctx, NewAttempt{ID: "a1", UserID: "u", QuizID: q.ID, MaxAttempts: 1, StartedAt: start})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := st.CreateAttempt(ctx, NewAttempt{ID: "a2", UserID: "u", QuizID: q.ID, MaxAttempts: 1, StartedAt: start}); !errors.Is(err, ErrAttemptAlreadyInProgress) {
		t.Fatalf("second live attempt: err = %v", err)
	}

	if err := st.SaveResponse(ctx, Response{AttemptID: a.ID, QuestionID: "q-multi", OptionIDs: []string{"m-b", "m-a"}, Answered: true}); err != nil {
		t.Fatalf("save: %v", err)
	}
	rs, err := st.GetResponses(ctx, a.ID)
	if err != nil {
		t.Fatalf("responses: %v", err)
	}
	if len(rs) != 1 || len(rs[0].OptionIDs) != 2 || rs[0].OptionIDs[0] != "m-a" {
		t.Fatalf("responses = %+v", rs)
	}

	done := start.Add(time.Minute)
	a.Status, a.SubmittedAt, a.Score, a.TotalPoints, a.Percentage = StatusCompleted, &done, 5, 10, 50
	fin, err := st.Finalize(ctx, a, rs)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if fin.Status != StatusCompleted || fin.SubmittedAt == nil || !fin.SubmittedAt.Equal(done) {
		t.Fatalf("finalized = %+v", fin)
	}
	if _, err := st.Finalize(ctx, a, rs); !errors.Is(err, ErrAttemptNotActive) {
		t.Fatalf("double finalize: err = %v", err)
	}
	if err := st.SaveResponse(ctx, Response{AttemptID: a.ID, QuestionID: "q-single", OptionIDs: []string{"s-a"}, Answered: true}); !errors.Is(err, ErrAttemptNotActive) {
		t.Fatalf("save after finalize: err = %v", err)
	}
	if err := st.SaveResponse(ctx, Response{AttemptID: "ghost", QuestionID: "q-single"}); !errors.Is(err, ErrAttemptNotFound) {
		t.Fatalf("save to missing attempt: err = %v", err)
	}
	if _, err := st.CreateAttempt(ctx, NewAttempt{ID: "a3", UserID: "u", QuizID: q.ID, MaxAttempts: 1, StartedAt: done}); !errors.Is(err, ErrAttemptLimitReached) {
		t.Fatalf("over limit: err = %v", err)
	}
}

func TestSQLStoreKeepsMillisecondTimestamps(t *testing.T) {
	ctx := context.Background()
	st := newSQLStore(t, "sqlstore_millis")
	q := quizzes()[0]
	if err := st.PutQuiz(ctx, q, fixtures()[quizTimed]); err != nil {
		t.Fatalf("put: %v", err)
	}
	start := time.Unix(1_700_000_000, 900_000_000).UTC()
	if _, err := st.CreateAttempt(ctx, NewAttempt{ID: "a1", UserID: "u", QuizID: q.ID, StartedAt: start}); err != nil {
		t.Fatalf("create: %v", err)
	}
	a, err := st.GetAttempt(ctx, "a1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !a.StartedAt.Equal(start) {
		t.Fatalf("started_at = %v, want %v", a.StartedAt, start)
	}

	deadline := start.Add(q.TimeLimit())
	if got, err := st.ListExpired(ctx, deadline, 10); err != nil || len(got) != 0 {
		t.Fatalf("expired at deadline = %+v, %v", got, err)
	}
	if got, err := st.ListExpired(ctx, deadline.Add(time.Millisecond), 10); err != nil || len(got) != 1 {
		t.Fatalf("expired after deadline = %+v, %v", got, err)
	}

	done := start.Add(599*time.Second + 500*time.Millisecond)
	a.Status, a.SubmittedAt = StatusCompleted, &done
	fin, err := st.Finalize(ctx, a, nil)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if fin.SubmittedAt == nil || !fin.SubmittedAt.Equal(done) {
		t.Fatalf("submitted_at = %v, want %v", fin.SubmittedAt, done)
	}
}

func TestSQLStoreListAttemptsPaging(t *testing.T) {
	ctx := context.Background()
	st := newSQLStore(t, "sqlstore_list")
	q := quizzes()[1]
	if err := st.PutQuiz(ctx, q, fixtures()[quizFree]); err != nil {
		t.Fatalf("put: %v", err)
	}
	base := time.Unix(1_700_000_000, 0).UTC()
	for i := 0; i < 3; i++ {
		id := string(rune('a' + i))
		at := base.Add(time.Duration(i) * time.Minute)
		a, err := st.CreateAttempt(ctx, NewAttempt{ID: id, UserID: "u", QuizID: q.ID, StartedAt: at})
		if err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
		done := at.Add(time.Second)
		a.Status, a.SubmittedAt = StatusCompleted, &done
		if _, err := st.Finalize(ctx, a, nil); err != nil {
			t.Fatalf("finalize %s: %v", id, err)
		}
	}
	page, err := st.ListAttempts(ctx, AttemptListOpts{UserID: "u", Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 2 || page[0].ID != "c" || page[1].ID != "b" {
		t.Fatalf("first page = %+v", page)
	}
	rest, _ := st.ListAttempts(ctx, AttemptListOpts{UserID: "u", Limit: 2, Offset: 2})
	if len(rest) != 1 || rest[0].ID != "a" || rest[0].Number != 1 {
		t.Fatalf("second page = %+v", rest)
	}
	none, _ := st.ListAttempts(ctx, AttemptListOpts{UserID: "u", Status: StatusInProgress})
	if len(none) != 0 {
		t.Fatalf("in-progress filter = %+v", none)
	}
}
