package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/motorchat/internal/logger"
	"github.com/motorchat/internal/model"
)

type ConversationRepository struct {
	pool *pgxpool.Pool
}

func NewConversationRepository(pool *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{pool: pool}
}

const convCols = `id, listing_id, buyer_id, seller_id, created_at, updated_at`

func scanConversation(s interface{ Scan(dest ...any) error }, c *model.Conversation) error {
	return s.Scan(&c.ID, &c.ListingID, &c.BuyerID, &c.SellerID, &c.CreatedAt, &c.UpdatedAt)
}

func (r *ConversationRepository) GetByID(ctx context.Context, id int64) (*model.Conversation, error) {
	defer logger.DeferLogDuration("conv.GetByID", time.Now())()
	c := &model.Conversation{}
	row := r.pool.QueryRow(ctx, `SELECT `+convCols+` FROM conversations WHERE id = $1`, id)
	if err := scanConversation(row, c); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("convRepo.GetByID: %w", err)
	}
	return c, nil
}

// GetOrCreate returns the conversation for (listing, buyer, seller), creating
// it if absent. created reports whether a new row was inserted.
func (r *ConversationRepository) GetOrCreate(ctx context.Context, listingID, buyerID, sellerID int64) (conv *model.Conversation, created bool, err error) {
	defer logger.DeferLogDuration("conv.GetOrCreate", time.Now())()
	c := &model.Conversation{}
	now := time.Now().UTC()
	// ON CONFLICT DO NOTHING returns no row for the existing conversation, so
	// fall back to a plain select in that case.
	row := r.pool.QueryRow(ctx,
		`INSERT INTO conversations (listing_id, buyer_id, seller_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $4)
		 ON CONFLICT (listing_id, buyer_id, seller_id) DO NOTHING
		 RETURNING `+convCols,
		listingID, buyerID, sellerID, now,
	)
	if err := scanConversation(row, c); err == nil {
		return c, true, nil
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("convRepo.GetOrCreate insert: %w", err)
	}

	row = r.pool.QueryRow(ctx,
		`SELECT `+convCols+` FROM conversations
		 WHERE listing_id = $1 AND buyer_id = $2 AND seller_id = $3`,
		listingID, buyerID, sellerID,
	)
	if err := scanConversation(row, c); err != nil {
		return nil, false, fmt.Errorf("convRepo.GetOrCreate select: %w", err)
	}
	return c, false, nil
}

// ListForUser returns every conversation the user participates in, most
// recently active first.
func (r *ConversationRepository) ListForUser(ctx context.Context, userID int64) ([]model.Conversation, error) {
	defer logger.DeferLogDuration("conv.ListForUser", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+convCols+` FROM conversations
		 WHERE buyer_id = $1 OR seller_id = $1
		 ORDER BY updated_at DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("convRepo.ListForUser query: %w", err)
	}
	defer rows.Close()

	convs := make([]model.Conversation, 0, 16)
	for rows.Next() {
		var c model.Conversation
		if err := scanConversation(rows, &c); err != nil {
			return nil, fmt.Errorf("convRepo.ListForUser scan: %w", err)
		}
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("convRepo.ListForUser rows: %w", err)
	}
	return convs, nil
}

// IsParticipant reports whether the user is the buyer or the seller.
func (r *ConversationRepository) IsParticipant(ctx context.Context, convID, userID int64) (bool, error) {
	defer logger.DeferLogDuration("conv.IsParticipant", time.Now())()
	var ok bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM conversations WHERE id = $1 AND (buyer_id = $2 OR seller_id = $2))`,
		convID, userID,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("convRepo.IsParticipant: %w", err)
	}
	return ok, nil
}

// Touch bumps updated_at so the conversation sorts to the top of the list.
func (r *ConversationRepository) Touch(ctx context.Context, convID int64, t time.Time) error {
	defer logger.DeferLogDuration("conv.Touch", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE conversations SET updated_at = $1 WHERE id = $2`, t, convID,
	)
	if err != nil {
		return fmt.Errorf("convRepo.Touch: %w", err)
	}
	return nil
}
