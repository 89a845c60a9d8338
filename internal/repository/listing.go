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

// ListingRepository reads the vehicle ads conversations anchor to. The chat
// service never creates or mutates listings.
type ListingRepository struct {
	pool *pgxpool.Pool
}

func NewListingRepository(pool *pgxpool.Pool) *ListingRepository {
	return &ListingRepository{pool: pool}
}

func (r *ListingRepository) GetByID(ctx context.Context, id int64) (*model.Listing, error) {
	defer logger.DeferLogDuration("listing.GetByID", time.Now())()
	l := &model.Listing{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, seller_id, title, price, COALESCE(primary_image,''), created_at
		 FROM listings WHERE id = $1`, id,
	).Scan(&l.ID, &l.SellerID, &l.Title, &l.Price, &l.PrimaryImage, &l.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("listingRepo.GetByID: %w", err)
	}
	return l, nil
}

// Create exists for seeding and tests; the catalog service owns listings in
// production.
func (r *ListingRepository) Create(ctx context.Context, l *model.Listing) error {
	defer logger.DeferLogDuration("listing.Create", time.Now())()
	err := r.pool.QueryRow(ctx,
		`INSERT INTO listings (seller_id, title, price, primary_image, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		l.SellerID, l.Title, l.Price, l.PrimaryImage, l.CreatedAt,
	).Scan(&l.ID)
	if err != nil {
		return fmt.Errorf("listingRepo.Create: %w", err)
	}
	return nil
}
