package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "session:"

type Client struct {
	cli *redis.Client
}

func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

// PutSession stores session:{id} -> user id with the token's TTL, so the key
// expires together with the token.
func (c *Client) PutSession(ctx context.Context, sessionID string, userID int64, ttl time.Duration) error {
	return c.cli.Set(ctx, sessionKeyPrefix+sessionID, userID, ttl).Err()
}

func (c *Client) SessionUser(ctx context.Context, sessionID string) (int64, bool, error) {
	val, err := c.cli.Get(ctx, sessionKeyPrefix+sessionID).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	userID, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("redis session value: %w", err)
	}
	return userID, true, nil
}

// RevokeSession deletes the key; the matching token stops validating
// immediately.
func (c *Client) RevokeSession(ctx context.Context, sessionID string) error {
	return c.cli.Del(ctx, sessionKeyPrefix+sessionID).Err()
}

// FlushDB clears the current Redis database (test/restart resets).
func (c *Client) FlushDB(ctx context.Context) error {
	return c.cli.FlushDB(ctx).Err()
}
