package auth

import (
	"strings"
	"testing"
	"time"
)

func TestIssueAndParse(t *testing.T) {
	m := NewTokenManager("test-secret", time.Hour)
	token, sessionID, err := m.Issue(7)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if sessionID == "" {
		t.Fatalf("empty session id")
	}
	claims, err := m.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != 7 || claims.ID != sessionID {
		t.Fatalf("claims: %+v", claims)
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	token, _, err := NewTokenManager("secret-a", time.Hour).Issue(7)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := NewTokenManager("secret-b", time.Hour).Parse(token); err == nil {
		t.Fatalf("token signed with another secret must not parse")
	}
}

func TestParseRejectsExpired(t *testing.T) {
	m := NewTokenManager("test-secret", -time.Minute)
	token, _, err := m.Issue(7)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Parse(token); err == nil {
		t.Fatalf("expired token must not parse")
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	m := NewTokenManager("test-secret", time.Hour)
	for _, token := range []string{"", "not.a.token", strings.Repeat("x", 400)} {
		if _, err := m.Parse(token); err == nil {
			t.Fatalf("Parse(%q) must fail", token)
		}
	}
}

func TestSessionIDsAreUnique(t *testing.T) {
	m := NewTokenManager("test-secret", time.Hour)
	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		_, sid, err := m.Issue(1)
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		if _, dup := seen[sid]; dup {
			t.Fatalf("duplicate session id %s", sid)
		}
		seen[sid] = struct{}{}
	}
}
