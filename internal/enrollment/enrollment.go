// Package enrollment answers whether a learner is enrolled in a course.
package enrollment

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"
)

type SQLStore struct{ db *sql.DB }

func NewSQLStore(db *sql.DB) *SQLStore { return &SQLStore{db: db} }

func (s *SQLStore) IsEnrolled(ctx context.Context, userID, courseID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM enrollments WHERE user_id=$1 AND course_id=$2`, userID, courseID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// Enroll is idempotent.
func (s *SQLStore) Enroll(ctx context.Context, userID, courseID string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO enrollments (user_id,course_id,enrolled_at)
		VALUES ($1,$2,$3) ON CONFLICT (user_id,course_id) DO NOTHING`, userID, courseID, time.Now().Unix())
	return err
}

func (s *SQLStore) Unenroll(ctx context.Context, userID, courseID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM enrollments WHERE user_id=$1 AND course_id=$2`, userID, courseID)
	return err
}

// Memory is an in-process enrollment set.
type Memory struct {
	mu  sync.RWMutex
	set map[[2]string]bool
}

func NewMemory() *Memory { return &Memory{set: map[[2]string]bool{}} }

func (m *Memory) IsEnrolled(_ context.Context, userID, courseID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.set[[2]string{userID, courseID}], nil
}

func (m *Memory) Enroll(_ context.Context, userID, courseID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set[[2]string{userID, courseID}] = true
	return nil
}

func (m *Memory) Unenroll(_ context.Context, userID, courseID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.set, [2]string{userID, courseID})
	return nil
}
