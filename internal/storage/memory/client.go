package memory

import (
	"context"
	"sync"
	"time"
)

type session struct {
	userID int64
	exp    time.Time
}

// Client is the in-memory SessionStore used by -dev mode and tests.
type Client struct {
	mu       sync.RWMutex
	sessions map[string]session
}

func New() *Client {
	return &Client{sessions: make(map[string]session)}
}

func (c *Client) Close() error { return nil }

func (c *Client) PutSession(ctx context.Context, sessionID string, userID int64, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[sessionID] = session{userID: userID, exp: time.Now().Add(ttl)}
	return nil
}

func (c *Client) SessionUser(ctx context.Context, sessionID string) (int64, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.sessions[sessionID]
	if !ok || time.Now().After(s.exp) {
		return 0, false, nil
	}
	return s.userID, true, nil
}

func (c *Client) RevokeSession(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, sessionID)
	return nil
}
