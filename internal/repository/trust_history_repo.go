package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lendly/backend/internal/models"
)

type TrustHistoryRepo struct {
	pool *pgxpool.Pool
}

func NewTrustHistoryRepo(pool *pgxpool.Pool) *TrustHistoryRepo {
	return &TrustHistoryRepo{pool: pool}
}

func (r *TrustHistoryRepo) CreateTx(ctx context.Context, tx pgx.Tx, h *models.TrustScoreHistory) error {
	meta := h.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	return tx.QueryRow(ctx, `
		INSERT INTO trust_score_history (id, uid, previous_score, new_score, change, reason, type, metadata, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`, h.ID, h.UID, h.PreviousScore, h.NewScore, h.Change, h.Reason, h.Type, meta, h.IdempotencyKey).Scan(&h.CreatedAt)
}

func (r *TrustHistoryRepo) ExistsByKey(ctx context.Context, tx pgx.Tx, key string) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM trust_score_history WHERE idempotency_key = $1)`, key).Scan(&exists)
	return exists, err
}

func (r *TrustHistoryRepo) ListByUID(ctx context.Context, uid uuid.UUID, limit int) ([]*models.TrustScoreHistory, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, uid, previous_score, new_score, change, reason, type, metadata, created_at
		FROM trust_score_history WHERE uid = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, uid, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.TrustScoreHistory
	for rows.Next() {
		var h models.TrustScoreHistory
		if err := rows.Scan(&h.ID, &h.UID, &h.PreviousScore, &h.NewScore, &h.Change, &h.Reason, &h.Type, &h.Metadata, &h.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &h)
	}
	return list, rows.Err()
}
