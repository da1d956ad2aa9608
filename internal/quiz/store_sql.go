package quiz

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// SQLStore persists the question bank, attempts and responses with database/sql.
// Queries use $n placeholders, understood by both the sqlite and pgx drivers.
type SQLStore struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"
	now    func() time.Time
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver, now: time.Now}
}

// PutQuiz upserts a quiz with its questions and options. Authoring is owned by another
// service; this exists for seeding and tests.
func (s *SQLStore) PutQuiz(ctx context.Context, q Quiz, questions []Question) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	created := q.CreatedAt
	if created == 0 {
		created = s.now().Unix()
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO quizzes
		(id,course_id,title,description,time_limit_minutes,passing_score,max_attempts,is_published,is_final,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (id) DO UPDATE SET course_id=EXCLUDED.course_id, title=EXCLUDED.title,
		  description=EXCLUDED.description, time_limit_minutes=EXCLUDED.time_limit_minutes,
		  passing_score=EXCLUDED.passing_score, max_attempts=EXCLUDED.max_attempts,
		  is_published=EXCLUDED.is_published, is_final=EXCLUDED.is_final`,
		q.ID, q.CourseID, q.Title, q.Description, q.TimeLimitMinutes, q.PassingScore,
		q.MaxAttempts, q.Published, q.Final, created)
	if err != nil {
		return fmt.Errorf("put quiz %s: %w", q.ID, err)
	}
	for _, qu := range questions {
		accepted, err := json.Marshal(qu.AcceptedAnswers)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO questions
			(id,quiz_id,type,prompt,points,display_order,match_policy,accepted_json)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			ON CONFLICT (id) DO UPDATE SET quiz_id=EXCLUDED.quiz_id, type=EXCLUDED.type,
			  prompt=EXCLUDED.prompt, points=EXCLUDED.points, display_order=EXCLUDED.display_order,
			  match_policy=EXCLUDED.match_policy, accepted_json=EXCLUDED.accepted_json`,
			qu.ID, q.ID, string(qu.Type), qu.Prompt, qu.Points, qu.DisplayOrder, qu.MatchPolicy, string(accepted))
		if err != nil {
			return fmt.Errorf("put question %s: %w", qu.ID, err)
		}
		for _, o := range qu.Options {
			_, err = tx.ExecContext(ctx, `INSERT INTO answer_options
				(id,question_id,text,is_correct,display_order)
				VALUES ($1,$2,$3,$4,$5)
				ON CONFLICT (id) DO UPDATE SET question_id=EXCLUDED.question_id, text=EXCLUDED.text,
				  is_correct=EXCLUDED.is_correct, display_order=EXCLUDED.display_order`,
				o.ID, qu.ID, o.Text, o.IsCorrect, o.DisplayOrder)
			if err != nil {
				return fmt.Errorf("put option %s: %w", o.ID, err)
			}
		}
	}
	return tx.Commit()
}

func (s *SQLStore) GetQuiz(ctx context.Context, id string) (Quiz, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,course_id,title,description,time_limit_minutes,
		passing_score,max_attempts,is_published,is_final,created_at FROM quizzes WHERE id=$1`, id)
	var q Quiz
	err := row.Scan(&q.ID, &q.CourseID, &q.Title, &q.Description, &q.TimeLimitMinutes,
		&q.PassingScore, &q.MaxAttempts, &q.Published, &q.Final, &q.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Quiz{}, ErrQuizNotFound
	}
	if err != nil {
		return Quiz{}, err
	}
	return q, nil
}

func (s *SQLStore) GetQuestions(ctx context.Context, quizID string) ([]Question, error) {
	if _, err := s.GetQuiz(ctx, quizID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id,quiz_id,type,prompt,points,display_order,match_policy,accepted_json
		FROM questions WHERE quiz_id=$1 ORDER BY display_order, id`, quizID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Question, 0)
	index := map[string]int{}
	for rows.Next() {
		var q Question
		var typ, accepted string
		if err := rows.Scan(&q.ID, &q.QuizID, &typ, &q.Prompt, &q.Points, &q.DisplayOrder, &q.MatchPolicy, &accepted); err != nil {
			return nil, err
		}
		q.Type = QuestionType(typ)
		if accepted != "" {
			if err := json.Unmarshal([]byte(accepted), &q.AcceptedAnswers); err != nil {
				return nil, fmt.Errorf("question %s accepted answers: %w", q.ID, err)
			}
		}
		index[q.ID] = len(out)
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	orows, err := s.db.QueryContext(ctx, `SELECT o.id,o.question_id,o.text,o.is_correct,o.display_order
		FROM answer_options o JOIN questions q ON q.id=o.question_id
		WHERE q.quiz_id=$1 ORDER BY o.display_order, o.id`, quizID)
	if err != nil {
		return nil, err
	}
	defer orows.Close()
	for orows.Next() {
		var o AnswerOption
		if err := orows.Scan(&o.ID, &o.QuestionID, &o.Text, &o.IsCorrect, &o.DisplayOrder); err != nil {
			return nil, err
		}
		if i, ok := index[o.QuestionID]; ok {
			out[i].Options = append(out[i].Options, o)
		}
	}
	return out, orows.Err()
}

func (s *SQLStore) GetCorrectAnswers(ctx context.Context, questionID string) ([]AnswerOption, error) {
	var exist int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM questions WHERE id=$1`, questionID).Scan(&exist)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrQuestionNotFound
	}
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id,question_id,text,is_correct,display_order
		FROM answer_options WHERE question_id=$1 AND is_correct=$2 ORDER BY display_order, id`, questionID, true)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AnswerOption
	for rows.Next() {
		var o AnswerOption
		if err := rows.Scan(&o.ID, &o.QuestionID, &o.Text, &o.IsCorrect, &o.DisplayOrder); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

const attemptCols = `a.id,a.user_id,a.quiz_id,a.attempt_number,a.status,a.started_at,a.submitted_at,
	a.time_spent_sec,a.score,a.total_points,a.percentage,a.passed,a.auto_submitted`

type scanner interface {
	Scan(dest ...any) error
}

func scanAttempt(sc scanner) (Attempt, error) {
	var a Attempt
	var status string
	var started int64
	var submitted sql.NullInt64
	if err := sc.Scan(&a.ID, &a.UserID, &a.QuizID, &a.Number, &status, &started, &submitted,
		&a.TimeSpentSec, &a.Score, &a.TotalPoints, &a.Percentage, &a.Passed, &a.AutoSubmitted); err != nil {
		return Attempt{}, err
	}
	a.Status = Status(status)
	a.StartedAt = time.UnixMilli(started).UTC()
	if submitted.Valid {
		t := time.UnixMilli(submitted.Int64).UTC()
		a.SubmittedAt = &t
	}
	return a, nil
}

func (s *SQLStore) CreateAttempt(ctx context.Context, in NewAttempt) (Attempt, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Attempt{}, err
	}
	defer tx.Rollback()

	var count, active, last int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*),
		COALESCE(SUM(CASE WHEN status=$3 THEN 1 ELSE 0 END),0),
		COALESCE(MAX(attempt_number),0)
		FROM attempts WHERE user_id=$1 AND quiz_id=$2`,
		in.UserID, in.QuizID, string(StatusInProgress)).Scan(&count, &active, &last)
	if err != nil {
		return Attempt{}, err
	}
	if active > 0 {
		return Attempt{}, ErrAttemptAlreadyInProgress
	}
	if in.MaxAttempts > 0 && count >= in.MaxAttempts {
		return Attempt{}, ErrAttemptLimitReached
	}

	started := in.StartedAt.UnixMilli()
	_, err = tx.ExecContext(ctx, `INSERT INTO attempts
		(id,user_id,quiz_id,attempt_number,status,started_at,updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$6)`,
		in.ID, in.UserID, in.QuizID, last+1, string(StatusInProgress), started)
	if err != nil {
		if isUniqueViolation(err) {
			// a concurrent start won the race
			return Attempt{}, ErrAttemptAlreadyInProgress
		}
		return Attempt{}, err
	}
	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return Attempt{}, ErrAttemptAlreadyInProgress
		}
		return Attempt{}, err
	}
	return Attempt{
		ID:        in.ID,
		UserID:    in.UserID,
		QuizID:    in.QuizID,
		Number:    last + 1,
		Status:    StatusInProgress,
		StartedAt: time.UnixMilli(started).UTC(),
	}, nil
}

func (s *SQLStore) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+attemptCols+` FROM attempts a WHERE a.id=$1`, id)
	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, ErrAttemptNotFound
	}
	return a, err
}

func (s *SQLStore) ActiveAttempt(ctx context.Context, userID, quizID string) (Attempt, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+attemptCols+` FROM attempts a
		WHERE a.user_id=$1 AND a.quiz_id=$2 AND a.status=$3`, userID, quizID, string(StatusInProgress))
	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, false, nil
	}
	if err != nil {
		return Attempt{}, false, err
	}
	return a, true, nil
}

func (s *SQLStore) ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error) {
	where := []string{"1=1"}
	args := []any{}
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if opts.QuizID != "" {
		add("a.quiz_id=$%d", opts.QuizID)
	}
	if opts.UserID != "" {
		add("a.user_id=$%d", opts.UserID)
	}
	if opts.Status != "" {
		add("a.status=$%d", string(opts.Status))
	}
	limit := opts.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	args = append(args, limit, opts.Offset)
	q := `SELECT ` + attemptCols + ` FROM attempts a WHERE ` + strings.Join(where, " AND ") +
		fmt.Sprintf(` ORDER BY a.started_at DESC, a.attempt_number DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Attempt, 0)
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]Attempt, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+attemptCols+` FROM attempts a
		JOIN quizzes q ON q.id=a.quiz_id
		WHERE a.status=$1 AND q.time_limit_minutes > 0
		  AND a.started_at + q.time_limit_minutes*60000 < $2
		ORDER BY a.started_at LIMIT $3`, string(StatusInProgress), now.UnixMilli(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Attempt, 0)
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// touchActive bumps updated_at on an in-progress attempt. Taking the row lock first
// serializes answer writes against finalization of the same attempt.
func touchActive(ctx context.Context, tx *sql.Tx, attemptID string, at int64) error {
	res, err := tx.ExecContext(ctx, `UPDATE attempts SET updated_at=$1 WHERE id=$2 AND status=$3`,
		at, attemptID, string(StatusInProgress))
	if err != nil {
		return err
	}
	return requireActive(ctx, tx, res, attemptID)
}

func requireActive(ctx context.Context, tx *sql.Tx, res sql.Result, attemptID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var exist int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM attempts WHERE id=$1`, attemptID).Scan(&exist)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrAttemptNotFound
	}
	if err != nil {
		return err
	}
	return ErrAttemptNotActive
}

func writeResponse(ctx context.Context, tx *sql.Tx, r Response) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO responses
		(attempt_id,question_id,free_text,answered,points_earned,is_correct,updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (attempt_id,question_id) DO UPDATE SET free_text=EXCLUDED.free_text,
		  answered=EXCLUDED.answered, points_earned=EXCLUDED.points_earned,
		  is_correct=EXCLUDED.is_correct, updated_at=EXCLUDED.updated_at`,
		r.AttemptID, r.QuestionID, r.Text, r.Answered, r.PointsEarned, r.IsCorrect, r.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("write response %s/%s: %w", r.AttemptID, r.QuestionID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM response_selections WHERE attempt_id=$1 AND question_id=$2`,
		r.AttemptID, r.QuestionID); err != nil {
		return err
	}
	seen := map[string]bool{}
	for _, opt := range r.OptionIDs {
		if seen[opt] {
			continue
		}
		seen[opt] = true
		if _, err := tx.ExecContext(ctx, `INSERT INTO response_selections (attempt_id,question_id,option_id)
			VALUES ($1,$2,$3)`, r.AttemptID, r.QuestionID, opt); err != nil {
			return fmt.Errorf("write selection %s: %w", opt, err)
		}
	}
	return nil
}

func (s *SQLStore) SaveResponse(ctx context.Context, r Response) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = s.now()
	}
	if err := touchActive(ctx, tx, r.AttemptID, r.UpdatedAt.UnixMilli()); err != nil {
		return err
	}
	// correctness is computed at finalize
	r.PointsEarned, r.IsCorrect = 0, false
	if err := writeResponse(ctx, tx, r); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLStore) Finalize(ctx context.Context, a Attempt, responses []Response) (Attempt, error) {
	if a.SubmittedAt == nil {
		return Attempt{}, errors.New("finalize: submitted_at required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Attempt{}, err
	}
	defer tx.Rollback()

	submitted := a.SubmittedAt.UnixMilli()
	res, err := tx.ExecContext(ctx, `UPDATE attempts SET status=$1, submitted_at=$2, updated_at=$2,
		time_spent_sec=$3, score=$4, total_points=$5, percentage=$6, passed=$7, auto_submitted=$8
		WHERE id=$9 AND status=$10`,
		string(a.Status), submitted, a.TimeSpentSec, a.Score, a.TotalPoints, a.Percentage,
		a.Passed, a.AutoSubmitted, a.ID, string(StatusInProgress))
	if err != nil {
		return Attempt{}, err
	}
	if err := requireActive(ctx, tx, res, a.ID); err != nil {
		return Attempt{}, err
	}
	for _, r := range responses {
		if err := writeResponse(ctx, tx, r); err != nil {
			return Attempt{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return Attempt{}, err
	}
	return s.GetAttempt(ctx, a.ID)
}

func (s *SQLStore) GetResponses(ctx context.Context, attemptID string) ([]Response, error) {
	if _, err := s.GetAttempt(ctx, attemptID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT attempt_id,question_id,free_text,answered,points_earned,is_correct,updated_at
		FROM responses WHERE attempt_id=$1 ORDER BY question_id`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Response, 0)
	index := map[string]int{}
	for rows.Next() {
		var r Response
		var updated int64
		if err := rows.Scan(&r.AttemptID, &r.QuestionID, &r.Text, &r.Answered, &r.PointsEarned, &r.IsCorrect, &updated); err != nil {
			return nil, err
		}
		r.UpdatedAt = time.UnixMilli(updated).UTC()
		index[r.QuestionID] = len(out)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	srows, err := s.db.QueryContext(ctx, `SELECT s.question_id, s.option_id FROM response_selections s
		LEFT JOIN answer_options o ON o.id=s.option_id
		WHERE s.attempt_id=$1 ORDER BY s.question_id, o.display_order, s.option_id`, attemptID)
	if err != nil {
		return nil, err
	}
	defer srows.Close()
	for srows.Next() {
		var qid, oid string
		if err := srows.Scan(&qid, &oid); err != nil {
			return nil, err
		}
		if i, ok := index[qid]; ok {
			out[i].OptionIDs = append(out[i].OptionIDs, oid)
		}
	}
	return out, srows.Err()
}

func (s *SQLStore) BestPassedFinalAttempt(ctx context.Context, userID, courseID string) (CertificateCandidate, error) {
	row := s.db.QueryRowContext(ctx, `SELECT a.id, a.quiz_id, a.percentage, a.submitted_at
		FROM attempts a JOIN quizzes q ON q.id=a.quiz_id
		WHERE a.user_id=$1 AND q.course_id=$2 AND q.is_final=$3 AND a.passed=$3
		  AND a.status=$4 AND a.submitted_at IS NOT NULL
		ORDER BY a.percentage DESC, a.submitted_at ASC LIMIT 1`,
		userID, courseID, true, string(StatusCompleted))
	c := CertificateCandidate{UserID: userID, CourseID: courseID}
	var submitted int64
	err := row.Scan(&c.AttemptID, &c.QuizID, &c.Percentage, &submitted)
	if errors.Is(err, sql.ErrNoRows) {
		return CertificateCandidate{}, ErrNotEligible
	}
	if err != nil {
		return CertificateCandidate{}, err
	}
	c.CompletedAt = time.UnixMilli(submitted).UTC()
	return c, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed") // sqlite
}
