// Package cache puts a redis read-through cache in front of the question bank.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

// Bank caches quiz and question reads. Redis failures fall through to the wrapped bank.
type Bank struct {
	next   quiz.Bank
	client redis.Cmdable
	ttl    time.Duration
	prefix string
	log    *slog.Logger
}

func NewBank(next quiz.Bank, client redis.Cmdable, ttl time.Duration, log *slog.Logger) *Bank {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &Bank{next: next, client: client, ttl: ttl, prefix: "quizbank:", log: log}
}

func (b *Bank) quizKey(id string) string      { return b.prefix + "quiz:" + id }
func (b *Bank) questionsKey(id string) string { return b.prefix + "questions:" + id }
func (b *Bank) correctKey(id string) string   { return b.prefix + "correct:" + id }

func (b *Bank) GetQuiz(ctx context.Context, id string) (quiz.Quiz, error) {
	return readThrough(ctx, b, b.quizKey(id), func() (quiz.Quiz, error) { return b.next.GetQuiz(ctx, id) })
}

func (b *Bank) GetQuestions(ctx context.Context, quizID string) ([]quiz.Question, error) {
	return readThrough(ctx, b, b.questionsKey(quizID), func() ([]quiz.Question, error) {
		return b.next.GetQuestions(ctx, quizID)
	})
}

func (b *Bank) GetCorrectAnswers(ctx context.Context, questionID string) ([]quiz.AnswerOption, error) {
	return readThrough(ctx, b, b.correctKey(questionID), func() ([]quiz.AnswerOption, error) {
		return b.next.GetCorrectAnswers(ctx, questionID)
	})
}

// Invalidate drops the cached quiz, its question list and the answer keys of
// questionIDs, e.g. after re-seeding.
func (b *Bank) Invalidate(ctx context.Context, quizID string, questionIDs ...string) error {
	keys := []string{b.quizKey(quizID), b.questionsKey(quizID)}
	for _, id := range questionIDs {
		keys = append(keys, b.correctKey(id))
	}
	return b.client.Del(ctx, keys...).Err()
}

func readThrough[T any](ctx context.Context, b *Bank, key string, load func() (T, error)) (T, error) {
	raw, err := b.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			return v, nil
		}
		b.log.WarnContext(ctx, "discarding corrupt cache entry", "key", key)
	case !errors.Is(err, redis.Nil):
		b.log.WarnContext(ctx, "cache read failed", "key", key, "err", err)
	}

	v, err := load()
	if err != nil {
		return v, err
	}
	if data, err := json.Marshal(v); err == nil {
		if err := b.client.Set(ctx, key, data, b.ttl).Err(); err != nil {
			b.log.DebugContext(ctx, "cache write failed", "key", key, "err", err)
		}
	}
	return v, nil
}
