package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type staticValidator struct {
	token  string
	userID int64
}

func (v staticValidator) Validate(ctx context.Context, token string) (int64, error) {
	if token == v.token {
		return v.userID, nil
	}
	return 0, errors.New("invalid token")
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	r.Header.Set("Authorization", "Bearer tok123")
	if got := BearerToken(r); got != "tok123" {
		t.Fatalf("header token = %q", got)
	}

	r = httptest.NewRequest(http.MethodGet, "/ws/chat/42?token=tok123", nil)
	if got := BearerToken(r); got != "tok123" {
		t.Fatalf("query token = %q", got)
	}

	// A non-bearer Authorization header wins over the query and yields nothing.
	r = httptest.NewRequest(http.MethodGet, "/x?token=tok123", nil)
	r.Header.Set("Authorization", "Basic abc")
	if got := BearerToken(r); got != "" {
		t.Fatalf("basic auth token = %q", got)
	}
}

func TestRequireAuth(t *testing.T) {
	var gotUserID int64
	h := RequireAuth(staticValidator{token: "tok123", userID: 7})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotUserID = GetUserID(r.Context())
		}))

	// Missing token.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token status = %d", rec.Code)
	}

	// Wrong token.
	rec = httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer nope")
	h.ServeHTTP(rec, r)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token status = %d", rec.Code)
	}

	// Valid token reaches the handler with the user id in context.
	rec = httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer tok123")
	h.ServeHTTP(rec, r)
	if rec.Code != http.StatusOK || gotUserID != 7 {
		t.Fatalf("status = %d, user id = %d", rec.Code, gotUserID)
	}
}
