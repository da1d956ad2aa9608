package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// UserStore keeps local accounts with bcrypt password hashes.
type UserStore struct {
	db   *sql.DB
	cost int
}

func NewUserStore(db *sql.DB) *UserStore { return &UserStore{db: db, cost: 12} }

// WithCost lowers the bcrypt cost, for tests.
func (s *UserStore) WithCost(cost int) *UserStore {
	s.cost = cost
	return s
}

// PutUser creates or updates a user. An empty password keeps the stored hash.
func (s *UserStore) PutUser(ctx context.Context, u User, password string) error {
	if u.ID == "" || u.Username == "" || u.Role == "" {
		return errors.New("user id, username and role are required")
	}
	if password == "" {
		res, err := s.db.ExecContext(ctx, `UPDATE users SET username=$1, role=$2 WHERE id=$3`, u.Username, u.Role, u.ID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("user %s: password required for new user", u.ID)
		}
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO users (id,username,password_hash,role,created_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (id) DO UPDATE SET username=EXCLUDED.username,
		  password_hash=EXCLUDED.password_hash, role=EXCLUDED.role`,
		u.ID, u.Username, string(hash), u.Role, time.Now().Unix())
	return err
}

func (s *UserStore) Authenticate(ctx context.Context, username, password string) (User, error) {
	var u User
	var hash string
	err := s.db.QueryRowContext(ctx, `SELECT id, username, role, password_hash FROM users WHERE username=$1`,
		username).Scan(&u.ID, &u.Username, &u.Role, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}
