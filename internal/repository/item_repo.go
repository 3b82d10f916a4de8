package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lendly/backend/internal/models"
)

type ItemRepo struct {
	pool *pgxpool.Pool
}

func NewItemRepo(pool *pgxpool.Pool) *ItemRepo {
	return &ItemRepo{pool: pool}
}

const itemColumns = `id, owner_id, name, price, available, current_borrower_id, boosted_until, featured_until, created_at, updated_at`

func scanItem(row pgx.Row) (*models.Item, error) {
	var it models.Item
	if err := row.Scan(&it.ID, &it.OwnerID, &it.Name, &it.Price, &it.Available, &it.CurrentBorrowerID,
		&it.BoostedUntil, &it.FeaturedUntil, &it.CreatedAt, &it.UpdatedAt); err != nil {
		return nil, err
	}
	return &it, nil
}

func (r *ItemRepo) CreateTx(ctx context.Context, tx pgx.Tx, it *models.Item) error {
	return tx.QueryRow(ctx, `
		INSERT INTO items (id, owner_id, name, price, available)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`, it.ID, it.OwnerID, it.Name, it.Price, it.Available).Scan(&it.CreatedAt, &it.UpdatedAt)
}

func (r *ItemRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Item, error) {
	return scanItem(r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1`, id))
}

// GetForUpdate locks the item row. Call within a transaction.
func (r *ItemRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Item, error) {
	return scanItem(tx.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1 FOR UPDATE`, id))
}

// SetAvailability lends the item to borrower, or returns it when borrower is nil.
func (r *ItemRepo) SetAvailability(ctx context.Context, tx pgx.Tx, id uuid.UUID, borrower *uuid.UUID, at time.Time) error {
	return execOne(ctx, tx, `
		UPDATE items SET available = ($2::uuid IS NULL), current_borrower_id = $2, updated_at = $3 WHERE id = $1
	`, id, borrower, at)
}

// SetPromotion stores the end of a boost or featured period.
func (r *ItemRepo) SetPromotion(ctx context.Context, tx pgx.Tx, id uuid.UUID, boostedUntil, featuredUntil *time.Time, at time.Time) error {
	return execOne(ctx, tx, `
		UPDATE items SET boosted_until = $2, featured_until = $3, updated_at = $4 WHERE id = $1
	`, id, boostedUntil, featuredUntil, at)
}

// ListAvailable returns featured items first, then boosted ones, then the newest.
func (r *ItemRepo) ListAvailable(ctx context.Context, limit int) ([]*models.Item, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+itemColumns+` FROM items
		WHERE available
		ORDER BY COALESCE(featured_until > now(), false) DESC,
		         COALESCE(boosted_until > now(), false) DESC,
		         created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, it)
	}
	return list, rows.Err()
}
