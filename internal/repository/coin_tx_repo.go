package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lendly/backend/internal/models"
)

type CoinTxRepo struct {
	pool *pgxpool.Pool
}

func NewCoinTxRepo(pool *pgxpool.Pool) *CoinTxRepo {
	return &CoinTxRepo{pool: pool}
}

func (r *CoinTxRepo) CreateTx(ctx context.Context, tx pgx.Tx, c *models.CoinTransaction) error {
	meta := c.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	return tx.QueryRow(ctx, `
		INSERT INTO coin_transactions (id, uid, type, amount, reason, metadata, balance_before, balance_after, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`, c.ID, c.UID, c.Type, c.Amount, c.Reason, meta, c.BalanceBefore, c.BalanceAfter, c.IdempotencyKey).Scan(&c.CreatedAt)
}

func (r *CoinTxRepo) ExistsByKey(ctx context.Context, tx pgx.Tx, key string) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM coin_transactions WHERE idempotency_key = $1)`, key).Scan(&exists)
	return exists, err
}

// ListByUID returns the most recent entries first.
func (r *CoinTxRepo) ListByUID(ctx context.Context, uid uuid.UUID, limit int) ([]*models.CoinTransaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, uid, type, amount, reason, metadata, balance_before, balance_after, created_at
		FROM coin_transactions WHERE uid = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, uid, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.CoinTransaction
	for rows.Next() {
		var c models.CoinTransaction
		if err := rows.Scan(&c.ID, &c.UID, &c.Type, &c.Amount, &c.Reason, &c.Metadata, &c.BalanceBefore, &c.BalanceAfter, &c.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &c)
	}
	return list, rows.Err()
}
