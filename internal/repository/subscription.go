package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/motorchat/internal/logger"
)

// PushSubscription is one browser Web Push registration.
type PushSubscription struct {
	ID       int64  `json:"id"`
	UserID   int64  `json:"user_id"`
	Endpoint string `json:"endpoint"`
	P256dh   string `json:"p256dh"`
	Auth     string `json:"auth"`
}

type SubscriptionRepository struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepository(pool *pgxpool.Pool) *SubscriptionRepository {
	return &SubscriptionRepository{pool: pool}
}

// Upsert stores a subscription; a re-registered endpoint moves to its new
// owner.
func (r *SubscriptionRepository) Upsert(ctx context.Context, s *PushSubscription) error {
	defer logger.DeferLogDuration("sub.Upsert", time.Now())()
	err := r.pool.QueryRow(ctx,
		`INSERT INTO push_subscriptions (user_id, endpoint, p256dh, auth, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (endpoint) DO UPDATE SET
		   user_id = EXCLUDED.user_id,
		   p256dh = EXCLUDED.p256dh,
		   auth = EXCLUDED.auth
		 RETURNING id`,
		s.UserID, s.Endpoint, s.P256dh, s.Auth, time.Now().UTC(),
	).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("subRepo.Upsert: %w", err)
	}
	return nil
}

func (r *SubscriptionRepository) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	defer logger.DeferLogDuration("sub.DeleteByEndpoint", time.Now())()
	_, err := r.pool.Exec(ctx, `DELETE FROM push_subscriptions WHERE endpoint = $1`, endpoint)
	if err != nil {
		return fmt.Errorf("subRepo.DeleteByEndpoint: %w", err)
	}
	return nil
}

func (r *SubscriptionRepository) ListForUser(ctx context.Context, userID int64) ([]PushSubscription, error) {
	defer logger.DeferLogDuration("sub.ListForUser", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, endpoint, p256dh, auth FROM push_subscriptions WHERE user_id = $1`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("subRepo.ListForUser query: %w", err)
	}
	defer rows.Close()

	subs := make([]PushSubscription, 0, 4)
	for rows.Next() {
		var s PushSubscription
		if err := rows.Scan(&s.ID, &s.UserID, &s.Endpoint, &s.P256dh, &s.Auth); err != nil {
			return nil, fmt.Errorf("subRepo.ListForUser scan: %w", err)
		}
		subs = append(subs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("subRepo.ListForUser rows: %w", err)
	}
	return subs, nil
}
