package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lendly/backend/internal/models"
)

type WalletRepo struct {
	pool *pgxpool.Pool
}

func NewWalletRepo(pool *pgxpool.Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

const walletColumns = `uid, balance, total_earned, total_spent, transaction_count, last_earned_at, last_spent_at, created_at, updated_at`

func scanWallet(row pgx.Row) (*models.Wallet, error) {
	var w models.Wallet
	if err := row.Scan(&w.UID, &w.Balance, &w.TotalEarned, &w.TotalSpent, &w.TransactionCount, &w.LastEarnedAt, &w.LastSpentAt, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	return &w, nil
}

// Ensure creates an empty wallet for uid if none exists.
func (r *WalletRepo) Ensure(ctx context.Context, tx pgx.Tx, uid uuid.UUID) error {
	_, err := tx.Exec(ctx, `INSERT INTO wallets (uid) VALUES ($1) ON CONFLICT (uid) DO NOTHING`, uid)
	return err
}

func (r *WalletRepo) Get(ctx context.Context, uid uuid.UUID) (*models.Wallet, error) {
	return scanWallet(r.pool.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE uid = $1`, uid))
}

// GetForUpdate locks the wallet row. Call within a transaction.
func (r *WalletRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, uid uuid.UUID) (*models.Wallet, error) {
	return scanWallet(tx.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE uid = $1 FOR UPDATE`, uid))
}

func (r *WalletRepo) AddEarned(ctx context.Context, tx pgx.Tx, uid uuid.UUID, amount int64, at time.Time) (*models.Wallet, error) {
	return scanWallet(tx.QueryRow(ctx, `
		UPDATE wallets SET balance = balance + $2, total_earned = total_earned + $2, transaction_count = transaction_count + 1,
			last_earned_at = $3, updated_at = $3
		WHERE uid = $1
		RETURNING `+walletColumns, uid, amount, at))
}

// AddSpent debits amount only if the balance covers it. Returns pgx.ErrNoRows otherwise.
func (r *WalletRepo) AddSpent(ctx context.Context, tx pgx.Tx, uid uuid.UUID, amount int64, at time.Time) (*models.Wallet, error) {
	return scanWallet(tx.QueryRow(ctx, `
		UPDATE wallets SET balance = balance - $2, total_spent = total_spent + $2, transaction_count = transaction_count + 1,
			last_spent_at = $3, updated_at = $3
		WHERE uid = $1 AND balance >= $2
		RETURNING `+walletColumns, uid, amount, at))
}
