package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/motorchat/internal/model"
)

func restFixture(t *testing.T) (*RESTClient, *httptest.Server) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req struct{ Email, Password string }
		json.NewDecoder(r.Body).Decode(&req)
		if req.Email != "buyer@x.io" || req.Password != "secret123" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid email or password"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access": "tok123",
			"user":   model.UserPublic{ID: 1, Email: "buyer@x.io"},
		})
	})
	mux.HandleFunc("GET /api/conversations", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode([]model.ConversationSummary{{ID: 42, UnreadCount: 2}})
	})
	mux.HandleFunc("GET /api/conversations/42", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(model.ConversationDetail{
			ID:       42,
			Messages: []model.Message{{ID: 1, Content: "hi"}},
		})
	})
	mux.HandleFunc("POST /api/conversations/get_or_create", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			AdID int64 `json:"ad_id"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.AdID == 777 {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "You cannot chat with yourself"})
			return
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(model.ConversationDetail{ID: 99})
	})
	mux.HandleFunc("POST /api/conversations/42/mark_as_read", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "messages marked as read"})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewRESTClient(srv.URL, srv.Client()), srv
}

func TestLoginStoresToken(t *testing.T) {
	c, _ := restFixture(t)
	u, err := c.Login(context.Background(), "buyer@x.io", "secret123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if u.ID != 1 || c.Token() != "tok123" {
		t.Fatalf("user=%+v token=%q", u, c.Token())
	}
}

func TestLoginRejection(t *testing.T) {
	c, _ := restFixture(t)
	_, err := c.Login(context.Background(), "buyer@x.io", "wrong")
	if err == nil {
		t.Fatalf("expected an error")
	}
	if c.Token() != "" {
		t.Fatalf("failed login must not store a token")
	}
}

func TestListConversationsSendsBearer(t *testing.T) {
	c, _ := restFixture(t)
	if _, err := c.ListConversations(context.Background()); err == nil {
		t.Fatalf("unauthenticated list must fail")
	}
	c.SetToken("tok123")
	got, err := c.ListConversations(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != 42 || got[0].UnreadCount != 2 {
		t.Fatalf("conversations: %+v", got)
	}
}

func TestGetConversationHistory(t *testing.T) {
	c, _ := restFixture(t)
	c.SetToken("tok123")
	detail, err := c.GetConversation(context.Background(), 42)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if detail.ID != 42 || len(detail.Messages) != 1 {
		t.Fatalf("detail: %+v", detail)
	}
}

func TestGetOrCreate(t *testing.T) {
	c, _ := restFixture(t)
	c.SetToken("tok123")
	detail, err := c.GetOrCreateConversation(context.Background(), 5)
	if err != nil {
		t.Fatalf("get_or_create: %v", err)
	}
	if detail.ID != 99 {
		t.Fatalf("detail: %+v", detail)
	}
	// Self-chat surfaces the server's message.
	if _, err := c.GetOrCreateConversation(context.Background(), 777); err == nil {
		t.Fatalf("self-chat must fail")
	}
}

func TestMarkAsRead(t *testing.T) {
	c, _ := restFixture(t)
	c.SetToken("tok123")
	if err := c.MarkAsRead(context.Background(), 42); err != nil {
		t.Fatalf("mark as read: %v", err)
	}
}
