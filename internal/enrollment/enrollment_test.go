package enrollment

import (
	"context"
	"testing"

	"github.com/mind-engage/mindengage-quiz/internal/db"
)

type store interface {
	IsEnrolled(ctx context.Context, userID, courseID string) (bool, error)
	Enroll(ctx context.Context, userID, courseID string) error
	Unenroll(ctx context.Context, userID, courseID string) error
}

func exercise(t *testing.T, s store) {
	t.Helper()
	ctx := context.Background()
	if ok, err := s.IsEnrolled(ctx, "u1", "c1"); err != nil || ok {
		t.Fatalf("before enroll: ok=%v err=%v", ok, err)
	}
	if err := s.Enroll(ctx, "u1", "c1"); err != nil {
		t.Fatalf("enroll: %v", err)
	}
	if err := s.Enroll(ctx, "u1", "c1"); err != nil {
		t.Fatalf("enroll twice: %v", err)
	}
	if ok, _ := s.IsEnrolled(ctx, "u1", "c1"); !ok {
		t.Fatal("expected enrolled")
	}
	if ok, _ := s.IsEnrolled(ctx, "u1", "c2"); ok {
		t.Fatal("enrollment leaked to another course")
	}
	if err := s.Unenroll(ctx, "u1", "c1"); err != nil {
		t.Fatalf("unenroll: %v", err)
	}
	if ok, _ := s.IsEnrolled(ctx, "u1", "c1"); ok {
		t.Fatal("still enrolled after unenroll")
	}
}

func TestMemory(t *testing.T) { exercise(t, NewMemory()) }

func TestSQLStore(t *testing.T) {
	d, err := db.Open(context.Background(), db.DriverSQLite, db.MemoryDSN("enrollment_test"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer d.Close()
	exercise(t, NewSQLStore(d))
}
