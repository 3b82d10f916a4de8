package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lendly/backend/internal/models"
)

type ExchangeRepo struct {
	pool *pgxpool.Pool
}

func NewExchangeRepo(pool *pgxpool.Pool) *ExchangeRepo {
	return &ExchangeRepo{pool: pool}
}

const exchangeColumns = `id, requester_id, item_owner_id, item_id, type, status, proposed_price, charged_amount, message, response_message, duration_days,
	is_late, days_late, marked_late_at, requester_rating, requester_review, owner_rating, owner_review,
	created_at, updated_at, accepted_at, completed_at, cancelled_at, rejected_at`

func scanExchange(row pgx.Row) (*models.Exchange, error) {
	var e models.Exchange
	err := row.Scan(&e.ID, &e.RequesterID, &e.ItemOwnerID, &e.ItemID, &e.Type, &e.Status, &e.ProposedPrice, &e.ChargedAmount, &e.Message, &e.ResponseMessage, &e.DurationDays,
		&e.IsLate, &e.DaysLate, &e.MarkedLateAt, &e.RequesterRating, &e.RequesterReview, &e.OwnerRating, &e.OwnerReview,
		&e.CreatedAt, &e.UpdatedAt, &e.AcceptedAt, &e.CompletedAt, &e.CancelledAt, &e.RejectedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func collectExchanges(rows pgx.Rows) ([]*models.Exchange, error) {
	defer rows.Close()
	var list []*models.Exchange
	for rows.Next() {
		e, err := scanExchange(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

func (r *ExchangeRepo) CreateTx(ctx context.Context, tx pgx.Tx, e *models.Exchange) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO exchanges (id, requester_id, item_owner_id, item_id, type, status, proposed_price, message, duration_days, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, e.ID, e.RequesterID, e.ItemOwnerID, e.ItemID, e.Type, e.Status, e.ProposedPrice, e.Message, e.DurationDays, e.CreatedAt, e.UpdatedAt)
	return err
}

// GetForUpdate locks the exchange row. Call within a transaction.
func (r *ExchangeRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Exchange, error) {
	return scanExchange(tx.QueryRow(ctx, `SELECT `+exchangeColumns+` FROM exchanges WHERE id = $1 FOR UPDATE`, id))
}

// UpdateTx writes the mutable columns of a transitioned exchange.
func (r *ExchangeRepo) UpdateTx(ctx context.Context, tx pgx.Tx, e *models.Exchange) error {
	return execOne(ctx, tx, `
		UPDATE exchanges SET status = $2, charged_amount = $3, response_message = $4, is_late = $5, days_late = $6, marked_late_at = $7,
			requester_rating = $8, requester_review = $9, owner_rating = $10, owner_review = $11,
			updated_at = $12, accepted_at = $13, completed_at = $14, cancelled_at = $15, rejected_at = $16
		WHERE id = $1
	`, e.ID, e.Status, e.ChargedAmount, e.ResponseMessage, e.IsLate, e.DaysLate, e.MarkedLateAt,
		e.RequesterRating, e.RequesterReview, e.OwnerRating, e.OwnerReview,
		e.UpdatedAt, e.AcceptedAt, e.CompletedAt, e.CancelledAt, e.RejectedAt)
}

// ListRequestedByItem locks every pending request on the item, oldest first.
func (r *ExchangeRepo) ListRequestedByItem(ctx context.Context, tx pgx.Tx, itemID uuid.UUID) ([]*models.Exchange, error) {
	rows, err := tx.Query(ctx, `
		SELECT `+exchangeColumns+` FROM exchanges
		WHERE item_id = $1 AND status = 'requested'
		ORDER BY created_at
		FOR UPDATE
	`, itemID)
	if err != nil {
		return nil, err
	}
	return collectExchanges(rows)
}

func (r *ExchangeRepo) CountCompletedByRequester(ctx context.Context, tx pgx.Tx, uid uuid.UUID) (int, error) {
	var n int
	err := tx.QueryRow(ctx, `
		SELECT count(*) FROM exchanges WHERE requester_id = $1 AND status = 'completed'
	`, uid).Scan(&n)
	return n, err
}

func (r *ExchangeRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Exchange, error) {
	return scanExchange(r.pool.QueryRow(ctx, `SELECT `+exchangeColumns+` FROM exchanges WHERE id = $1`, id))
}

// ListByUser returns exchanges where uid is either party, newest first.
func (r *ExchangeRepo) ListByUser(ctx context.Context, uid uuid.UUID, limit int) ([]*models.Exchange, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+exchangeColumns+` FROM exchanges
		WHERE requester_id = $1 OR item_owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, uid, limit)
	if err != nil {
		return nil, err
	}
	return collectExchanges(rows)
}
