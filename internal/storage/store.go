package storage

import (
	"context"
	"time"
)

// SessionStore keeps the set of live sessions so that logout can revoke a
// bearer token before it expires. Implementations: redis.Client,
// memory.Client (for -dev and tests, no Redis required).
type SessionStore interface {
	PutSession(ctx context.Context, sessionID string, userID int64, ttl time.Duration) error
	// SessionUser returns the owning user id, or ok=false when the session is
	// unknown, expired or revoked.
	SessionUser(ctx context.Context, sessionID string) (userID int64, ok bool, err error)
	RevokeSession(ctx context.Context, sessionID string) error
	Close() error
}
