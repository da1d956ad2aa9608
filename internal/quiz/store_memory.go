package quiz

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used for tests and offline demos.
type MemoryStore struct {
	mu        sync.RWMutex
	quizzes   map[string]Quiz
	questions map[string][]Question // quizID -> ordered questions
	attempts  map[string]Attempt
	responses map[string]map[string]Response // attemptID -> questionID -> response
}

func NewInMemoryStore() *MemoryStore {
	return &MemoryStore{
		quizzes:   map[string]Quiz{},
		questions: map[string][]Question{},
		attempts:  map[string]Attempt{},
		responses: map[string]map[string]Response{},
	}
}

// PutQuiz replaces a quiz and its questions.
func (m *MemoryStore) PutQuiz(_ context.Context, q Quiz, questions []Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	qs := make([]Question, len(questions))
	copy(qs, questions)
	for i := range qs {
		qs[i].QuizID = q.ID
		qs[i].Options = append([]AnswerOption(nil), qs[i].Options...)
		for j := range qs[i].Options {
			qs[i].Options[j].QuestionID = qs[i].ID
		}
		sort.SliceStable(qs[i].Options, func(a, b int) bool {
			return qs[i].Options[a].DisplayOrder < qs[i].Options[b].DisplayOrder
		})
	}
	sort.SliceStable(qs, func(a, b int) bool { return qs[a].DisplayOrder < qs[b].DisplayOrder })
	m.quizzes[q.ID] = q
	m.questions[q.ID] = qs
	return nil
}

func (m *MemoryStore) GetQuiz(_ context.Context, id string) (Quiz, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.quizzes[id]
	if !ok {
		return Quiz{}, ErrQuizNotFound
	}
	return q, nil
}

func (m *MemoryStore) GetQuestions(_ context.Context, quizID string) ([]Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.quizzes[quizID]; !ok {
		return nil, ErrQuizNotFound
	}
	src := m.questions[quizID]
	out := make([]Question, len(src))
	for i, q := range src {
		q.Options = append([]AnswerOption(nil), q.Options...)
		q.AcceptedAnswers = append([]string(nil), q.AcceptedAnswers...)
		out[i] = q
	}
	return out, nil
}

func (m *MemoryStore) GetCorrectAnswers(_ context.Context, questionID string) ([]AnswerOption, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, qs := range m.questions {
		for _, q := range qs {
			if q.ID != questionID {
				continue
			}
			var out []AnswerOption
			for _, o := range q.Options {
				if o.IsCorrect {
					out = append(out, o)
				}
			}
			return out, nil
		}
	}
	return nil, ErrQuestionNotFound
}

func (m *MemoryStore) CreateAttempt(_ context.Context, in NewAttempt) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.quizzes[in.QuizID]; !ok {
		return Attempt{}, ErrQuizNotFound
	}
	count, last := 0, 0
	for _, a := range m.attempts {
		if a.UserID != in.UserID || a.QuizID != in.QuizID {
			continue
		}
		if a.Status == StatusInProgress {
			return Attempt{}, ErrAttemptAlreadyInProgress
		}
		count++
		if a.Number > last {
			last = a.Number
		}
	}
	if in.MaxAttempts > 0 && count >= in.MaxAttempts {
		return Attempt{}, ErrAttemptLimitReached
	}
	a := Attempt{
		ID:        in.ID,
		UserID:    in.UserID,
		QuizID:    in.QuizID,
		Number:    last + 1,
		Status:    StatusInProgress,
		StartedAt: in.StartedAt,
	}
	m.attempts[a.ID] = a
	m.responses[a.ID] = map[string]Response{}
	return a, nil
}

func (m *MemoryStore) GetAttempt(_ context.Context, id string) (Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attempts[id]
	if !ok {
		return Attempt{}, ErrAttemptNotFound
	}
	return a, nil
}

func (m *MemoryStore) ActiveAttempt(_ context.Context, userID, quizID string) (Attempt, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.attempts {
		if a.UserID == userID && a.QuizID == quizID && a.Status == StatusInProgress {
			return a, true, nil
		}
	}
	return Attempt{}, false, nil
}

func (m *MemoryStore) ListAttempts(_ context.Context, opts AttemptListOpts) ([]Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Attempt, 0)
	for _, a := range m.attempts {
		if opts.QuizID != "" && a.QuizID != opts.QuizID {
			continue
		}
		if opts.UserID != "" && a.UserID != opts.UserID {
			continue
		}
		if opts.Status != "" && a.Status != opts.Status {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].Number > out[j].Number
	})
	return paginate(out, opts.Limit, opts.Offset), nil
}

func (m *MemoryStore) ListExpired(_ context.Context, now time.Time, limit int) ([]Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Attempt, 0)
	for _, a := range m.attempts {
		if a.Status != StatusInProgress {
			continue
		}
		if a.Expired(m.quizzes[a.QuizID], now) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return paginate(out, limit, 0), nil
}

func (m *MemoryStore) Finalize(_ context.Context, a Attempt, responses []Response) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.attempts[a.ID]
	if !ok {
		return Attempt{}, ErrAttemptNotFound
	}
	if cur.Status != StatusInProgress {
		return Attempt{}, ErrAttemptNotActive
	}
	rs := make(map[string]Response, len(responses))
	for _, r := range responses {
		r.OptionIDs = append([]string(nil), r.OptionIDs...)
		rs[r.QuestionID] = r
	}
	m.responses[a.ID] = rs
	m.attempts[a.ID] = a
	return a, nil
}

func (m *MemoryStore) BestPassedFinalAttempt(_ context.Context, userID, courseID string) (CertificateCandidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var best *CertificateCandidate
	for _, a := range m.attempts {
		q := m.quizzes[a.QuizID]
		if a.UserID != userID || q.CourseID != courseID || !q.Final {
			continue
		}
		if a.Status != StatusCompleted || !a.Passed || a.SubmittedAt == nil {
			continue
		}
		c := CertificateCandidate{
			UserID:      a.UserID,
			CourseID:    q.CourseID,
			QuizID:      q.ID,
			AttemptID:   a.ID,
			Percentage:  a.Percentage,
			CompletedAt: *a.SubmittedAt,
		}
		if best == nil || c.Percentage > best.Percentage ||
			(c.Percentage == best.Percentage && c.CompletedAt.Before(best.CompletedAt)) {
			best = &c
		}
	}
	if best == nil {
		return CertificateCandidate{}, ErrNotEligible
	}
	return *best, nil
}

func (m *MemoryStore) SaveResponse(_ context.Context, r Response) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[r.AttemptID]
	if !ok {
		return ErrAttemptNotFound
	}
	if a.Status != StatusInProgress {
		return ErrAttemptNotActive
	}
	r.OptionIDs = append([]string(nil), r.OptionIDs...)
	m.responses[r.AttemptID][r.QuestionID] = r
	return nil
}

func (m *MemoryStore) GetResponses(_ context.Context, attemptID string) ([]Response, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.attempts[attemptID]; !ok {
		return nil, ErrAttemptNotFound
	}
	out := make([]Response, 0, len(m.responses[attemptID]))
	for _, r := range m.responses[attemptID] {
		r.OptionIDs = append([]string(nil), r.OptionIDs...)
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionID < out[j].QuestionID })
	return out, nil
}

func paginate(in []Attempt, limit, offset int) []Attempt {
	if offset >= len(in) {
		return []Attempt{}
	}
	in = in[offset:]
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}
	return in
}
