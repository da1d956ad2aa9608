package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCheckerHas(t *testing.T) {
	c := NewChecker(map[string][]string{
		"grader": {"attempt:*"},
		"viewer": {PermQuizView},
	})
	cases := []struct {
		role, perm string
		want       bool
	}{
		{"grader", PermAttemptSubmit, true},
		{"grader", PermQuizView, false},
		{"viewer", PermQuizView, true},
		{"viewer", PermAttemptCreate, false},
		{"nobody", PermQuizView, false},
	}
	for _, tc := range cases {
		if got := c.Has(tc.role, tc.perm); got != tc.want {
			t.Errorf("Has(%s, %s) = %v, want %v", tc.role, tc.perm, got, tc.want)
		}
	}
}

func TestDefaultPolicy(t *testing.T) {
	c := NewChecker(nil)
	if !c.Has(RoleStudent, PermAttemptCreate) || c.Has(RoleStudent, PermAttemptViewAll) {
		t.Fatal("student permissions wrong")
	}
	if c.Has(RoleInstructor, PermAttemptCreate) || !c.Has(RoleInstructor, PermAttemptViewAll) {
		t.Fatal("instructor permissions wrong")
	}
	if !c.Has(RoleAdmin, "anything:at-all") {
		t.Fatal("admin wildcard not honored")
	}
}

func TestRequire(t *testing.T) {
	h := Require(PermAttemptCreate)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	for role, want := range map[string]int{
		"":             http.StatusForbidden,
		RoleInstructor: http.StatusForbidden,
		RoleStudent:    http.StatusNoContent,
		RoleAdmin:      http.StatusNoContent,
	} {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req = req.WithContext(WithRole(req.Context(), role))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Errorf("role %q: code = %d, want %d", role, rec.Code, want)
		}
	}
}

func TestCanViewAll(t *testing.T) {
	if CanViewAll(WithRole(context.Background(), RoleStudent)) {
		t.Fatal("student can view all")
	}
	if !CanViewAll(WithRole(context.Background(), RoleInstructor)) {
		t.Fatal("instructor cannot view all")
	}
}
