package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/motorchat/internal/model"
)

// RESTClient talks to the chat service's HTTP surface: conversation list,
// conversation detail, get-or-create and the mark-as-read fallback. It is
// independent of the socket.
type RESTClient struct {
	baseURL string
	http    *http.Client
	token   string
}

// NewRESTClient builds a client for the given HTTP origin, e.g.
// "http://localhost:8080".
func NewRESTClient(baseURL string, httpClient *http.Client) *RESTClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &RESTClient{baseURL: strings.TrimSuffix(baseURL, "/"), http: httpClient}
}

// SetToken sets the bearer credential used on every subsequent request.
func (c *RESTClient) SetToken(token string) { c.token = token }

// Token returns the current bearer credential (also used for the socket URL).
func (c *RESTClient) Token() string { return c.token }

// Login authenticates and stores the returned token on the client.
func (c *RESTClient) Login(ctx context.Context, email, password string) (model.UserPublic, error) {
	body := map[string]string{"email": email, "password": password}
	var resp struct {
		Access string           `json:"access"`
		User   model.UserPublic `json:"user"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", body, http.StatusOK, &resp); err != nil {
		return model.UserPublic{}, err
	}
	c.token = resp.Access
	return resp.User, nil
}

// ListConversations fetches the viewer's conversation list.
func (c *RESTClient) ListConversations(ctx context.Context) ([]model.ConversationSummary, error) {
	var out []model.ConversationSummary
	if err := c.do(ctx, http.MethodGet, "/api/conversations", nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetConversation fetches one conversation with its full message history.
// Server side, retrieving marks the peer's messages as read.
func (c *RESTClient) GetConversation(ctx context.Context, id int64) (*model.ConversationDetail, error) {
	out := &model.ConversationDetail{}
	path := fmt.Sprintf("/api/conversations/%d", id)
	if err := c.do(ctx, http.MethodGet, path, nil, http.StatusOK, out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetOrCreateConversation finds or starts the conversation about a listing.
func (c *RESTClient) GetOrCreateConversation(ctx context.Context, adID int64) (*model.ConversationDetail, error) {
	out := &model.ConversationDetail{}
	body := map[string]int64{"ad_id": adID}
	err := c.do(ctx, http.MethodPost, "/api/conversations/get_or_create", body, 0, out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MarkAsRead is the REST fallback for the socket's mark_read frame.
func (c *RESTClient) MarkAsRead(ctx context.Context, id int64) error {
	path := fmt.Sprintf("/api/conversations/%d/mark_as_read", id)
	return c.do(ctx, http.MethodPost, path, nil, http.StatusOK, nil)
}

// do performs one JSON round trip. wantStatus 0 accepts any 2xx.
func (c *RESTClient) do(ctx context.Context, method, path string, body any, wantStatus int, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: marshal %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("client: build %s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	ok := resp.StatusCode == wantStatus
	if wantStatus == 0 {
		ok = resp.StatusCode >= 200 && resp.StatusCode < 300
	}
	if !ok {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("client: %s %s: %s (status %d)", method, path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("client: %s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decode %s %s: %w", method, path, err)
	}
	return nil
}
