package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mind-engage/mindengage-quiz/internal/db"
	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

func TestIssueAndParse(t *testing.T) {
	a := NewAuthService("0123456789abcdef", time.Hour)
	tok, err := a.IssueJWT("u1", "student")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	c, err := a.Parse(tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Sub != "u1" || c.Role != "student" {
		t.Fatalf("claims = %+v", c)
	}

	other := NewAuthService("another-secret-value", time.Hour)
	if _, err := other.Parse(tok); err == nil {
		t.Fatal("token accepted with the wrong secret")
	}
}

func TestParseRejectsExpired(t *testing.T) {
	a := NewAuthService("0123456789abcdef", time.Minute)
	base := time.Now()
	a.now = func() time.Time { return base }
	tok, _ := a.IssueJWT("u1", "student")
	a.now = func() time.Time { return base.Add(2 * time.Minute) }
	if _, err := a.Parse(tok); err == nil {
		t.Fatal("expired token accepted")
	}
}

func TestParseRejectsOtherAlgorithms(t *testing.T) {
	a := NewAuthService("0123456789abcdef", time.Hour)
	tok := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{Sub: "u1", Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: issuer}})
	s, err := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := a.Parse(s); err == nil {
		t.Fatal("unsigned token accepted")
	}
}

func TestJWTMiddlewareSetsIdentity(t *testing.T) {
	a := NewAuthService("0123456789abcdef", time.Hour)
	var gotSub, gotRole string
	h := JWTMiddleware(a)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSub = SubjectFromContext(r.Context())
		gotRole = rbac.RoleFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: code = %d", rec.Code)
	}

	tok, _ := a.IssueJWT("u9", "instructor")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || gotSub != "u9" || gotRole != "instructor" {
		t.Fatalf("code=%d sub=%q role=%q", rec.Code, gotSub, gotRole)
	}
}

func TestLoginHandler(t *testing.T) {
	ctx := context.Background()
	d, err := db.Open(ctx, db.DriverSQLite, db.MemoryDSN("auth_login"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer d.Close()
	users := NewUserStore(d).WithCost(4)
	if err := users.PutUser(ctx, User{ID: "u1", Username: "alice", Role: "student"}, "s3cret"); err != nil {
		t.Fatalf("put user: %v", err)
	}
	a := NewAuthService("0123456789abcdef", time.Hour)
	h := LoginHandler(a, users)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"username":"alice","password":"wrong"}`)))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password: code = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"username":"alice","password":"s3cret"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("login: code = %d body=%s", rec.Code, rec.Body)
	}
	var out struct {
		AccessToken string `json:"access_token"`
		Role        string `json:"role"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	c, err := a.Parse(out.AccessToken)
	if err != nil || c.Sub != "u1" || out.Role != "student" {
		t.Fatalf("claims=%+v role=%q err=%v", c, out.Role, err)
	}

	// role change without a password keeps the hash
	if err := users.PutUser(ctx, User{ID: "u1", Username: "alice", Role: "instructor"}, ""); err != nil {
		t.Fatalf("update role: %v", err)
	}
	u, err := users.Authenticate(ctx, "alice", "s3cret")
	if err != nil || u.Role != "instructor" {
		t.Fatalf("authenticate after update: %+v %v", u, err)
	}
	if err := users.PutUser(ctx, User{ID: "u2", Username: "bob", Role: "student"}, ""); err == nil {
		t.Fatal("new user without password accepted")
	}
}
