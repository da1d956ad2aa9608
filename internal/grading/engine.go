package grading

import (
	"context"
	"fmt"
)

// Question types understood by the engine.
const (
	TypeSingleChoice = "single_choice"
	TypeMultiChoice  = "multi_choice"
	TypeFreeText     = "free_text"
)

// Choice is a minimal view of an answer option needed for grading.
type Choice struct {
	ID      string
	Correct bool
}

// Q is a minimal view of a question needed for grading.
// Keep this in sync with whatever fields your store uses.
type Q struct {
	ID       string
	Type     string
	Points   float64
	Choices  []Choice
	Accepted []string // free-text accepted answers
	Policy   string   // free-text match policy; "" uses the engine default
}

// Response is what the learner submitted for one question.
type Response struct {
	QuestionID string
	Selected   []string
	Text       string
}

// Result is the outcome of grading a single question.
type Result struct {
	QuestionID string
	Answered   bool
	Correct    bool
	Points     float64 // points awarded, either 0 or MaxPoints
	MaxPoints  float64
	Feedback   []string
}

// Summary is the outcome of grading a whole attempt.
type Summary struct {
	Score       float64
	TotalPoints float64
	Percentage  float64
	Passed      bool
	Results     []Result // one per question, in question order
}

// Strategy decides whether a response to a question is correct.
type Strategy interface {
	Grade(ctx context.Context, q Q, r Response) (bool, error)
}

// Engine routes by question type to the correct Strategy.
type Engine struct {
	strategies map[string]Strategy
}

type Option func(*config)

type config struct {
	DefaultPolicy   string
	MaxEditDistance int
	Matchers        map[string]TextMatcher
}

// WithDefaultPolicy sets the free-text policy used when a question names none.
func WithDefaultPolicy(name string) Option { return func(c *config) { c.DefaultPolicy = name } }

// WithMaxEditDistance tunes the "fuzzy" free-text policy.
func WithMaxEditDistance(n int) Option { return func(c *config) { c.MaxEditDistance = n } }

// WithTextMatcher installs or replaces a free-text policy.
func WithTextMatcher(name string, m TextMatcher) Option {
	return func(c *config) { c.Matchers[name] = m }
}

// NewEngine installs built-in strategies.
func NewEngine(opts ...Option) *Engine {
	cfg := &config{
		DefaultPolicy:   PolicyCaseInsensitive,
		MaxEditDistance: 1,
		Matchers:        map[string]TextMatcher{},
	}
	for _, o := range opts {
		o(cfg)
	}
	matchers := map[string]TextMatcher{
		PolicyExact:           ExactMatcher{},
		PolicyCaseInsensitive: CaseInsensitiveMatcher{},
		PolicyNormalized:      NormalizedMatcher{},
		PolicyPattern:         PatternMatcher{},
		PolicyFuzzy:           FuzzyMatcher{MaxEdit: cfg.MaxEditDistance},
		PolicyNumeric:         NumericMatcher{},
	}
	for name, m := range cfg.Matchers {
		matchers[name] = m
	}
	return &Engine{
		strategies: map[string]Strategy{
			TypeSingleChoice: singleChoiceStrategy{},
			TypeMultiChoice:  multiChoiceStrategy{},
			TypeFreeText:     freeTextStrategy{matchers: matchers, fallback: cfg.DefaultPolicy},
		},
	}
}

// SupportsPolicy reports whether a free-text policy name is known to the engine.
func (e *Engine) SupportsPolicy(name string) bool {
	if name == "" {
		return true
	}
	ft, ok := e.strategies[TypeFreeText].(freeTextStrategy)
	if !ok {
		return false
	}
	_, ok = ft.matchers[name]
	return ok
}

// GradeQuestion grades one question. A nil response means the question was not answered.
// Grading failures never escape: they score zero and are reported in Feedback.
func (e *Engine) GradeQuestion(ctx context.Context, q Q, r *Response) Result {
	res := Result{QuestionID: q.ID, MaxPoints: q.Points}
	if r == nil {
		res.Feedback = append(res.Feedback, "unanswered")
		return res
	}
	res.Answered = true
	s, ok := e.strategies[q.Type]
	if !ok {
		res.Feedback = append(res.Feedback, fmt.Sprintf("no strategy for type %q", q.Type))
		return res
	}
	correct, err := s.Grade(ctx, q, *r)
	if err != nil {
		res.Feedback = append(res.Feedback, "grading failed: "+err.Error())
		return res
	}
	if correct {
		res.Correct = true
		res.Points = q.Points
	}
	return res
}

// Score grades every question against the responses keyed by question id and applies the
// inclusive passing threshold. A quiz without points never passes.
func (e *Engine) Score(ctx context.Context, passingScore float64, questions []Q, responses map[string]Response) Summary {
	sum := Summary{Results: make([]Result, 0, len(questions))}
	for _, q := range questions {
		sum.TotalPoints += q.Points
		var rp *Response
		if r, ok := responses[q.ID]; ok {
			rp = &r
		}
		res := e.GradeQuestion(ctx, q, rp)
		sum.Score += res.Points
		sum.Results = append(sum.Results, res)
	}
	if sum.TotalPoints > 0 {
		sum.Percentage = sum.Score / sum.TotalPoints * 100
		sum.Passed = sum.Percentage >= passingScore
	}
	return sum
}

// --- Strategies ---

type singleChoiceStrategy struct{}

func (singleChoiceStrategy) Grade(_ context.Context, q Q, r Response) (bool, error) {
	if len(r.Selected) != 1 {
		return false, nil
	}
	for _, c := range q.Choices {
		if c.ID == r.Selected[0] {
			return c.Correct, nil
		}
	}
	return false, nil
}

type multiChoiceStrategy struct{}

func (multiChoiceStrategy) Grade(_ context.Context, q Q, r Response) (bool, error) {
	correct := map[string]struct{}{}
	for _, c := range q.Choices {
		if c.Correct {
			correct[c.ID] = struct{}{}
		}
	}
	return setEqual(correct, toSet(r.Selected)), nil
}

type freeTextStrategy struct {
	matchers map[string]TextMatcher
	fallback string
}

func (s freeTextStrategy) Grade(ctx context.Context, q Q, r Response) (bool, error) {
	m, ok := s.matchers[q.Policy]
	if !ok {
		m, ok = s.matchers[s.fallback]
	}
	if !ok {
		return false, fmt.Errorf("unknown match policy %q", q.Policy)
	}
	return m.Match(ctx, r.Text, q.Accepted)
}

// helpers

func toSet(arr []string) map[string]struct{} {
	m := make(map[string]struct{}, len(arr))
	for _, s := range arr {
		m[s] = struct{}{}
	}
	return m
}

func setEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
