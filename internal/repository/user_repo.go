package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lendly/backend/internal/models"
)

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

const userColumns = `id, email, display_name, password_hash, trust_score, trust_tier, is_verified, borrowed, lent, rating_sum, total_ratings, created_at, updated_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.PasswordHash, &u.TrustScore, &u.TrustTier, &u.IsVerified, &u.Borrowed, &u.Lent, &u.RatingSum, &u.TotalRatings, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateTx inserts a user. A duplicate email surfaces as a pgconn.PgError with code 23505.
func (r *UserRepo) CreateTx(ctx context.Context, tx pgx.Tx, u *models.User) error {
	return tx.QueryRow(ctx, `
		INSERT INTO users (id, email, display_name, password_hash, trust_score, trust_tier)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, u.ID, u.Email, u.DisplayName, u.PasswordHash, u.TrustScore, u.TrustTier).Scan(&u.CreatedAt, &u.UpdatedAt)
}

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

// GetForUpdate locks the user row. Call within a transaction.
func (r *UserRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.User, error) {
	return scanUser(tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id))
}

func (r *UserRepo) UpdateTrust(ctx context.Context, tx pgx.Tx, id uuid.UUID, score int, tier string, at time.Time) error {
	return execOne(ctx, tx, `
		UPDATE users SET trust_score = $2, trust_tier = $3, updated_at = $4 WHERE id = $1
	`, id, score, tier, at)
}

func (r *UserRepo) MarkVerified(ctx context.Context, tx pgx.Tx, id uuid.UUID, at time.Time) error {
	return execOne(ctx, tx, `
		UPDATE users SET is_verified = TRUE, updated_at = $2 WHERE id = $1
	`, id, at)
}

// IncrementCounts bumps the borrowed count of one party and the lent count of the other.
func (r *UserRepo) IncrementCounts(ctx context.Context, tx pgx.Tx, borrowerID, lenderID uuid.UUID) error {
	if err := execOne(ctx, tx, `UPDATE users SET borrowed = borrowed + 1, updated_at = now() WHERE id = $1`, borrowerID); err != nil {
		return err
	}
	return execOne(ctx, tx, `UPDATE users SET lent = lent + 1, updated_at = now() WHERE id = $1`, lenderID)
}

func (r *UserRepo) AddRating(ctx context.Context, tx pgx.Tx, id uuid.UUID, stars int) error {
	return execOne(ctx, tx, `
		UPDATE users SET rating_sum = rating_sum + $2, total_ratings = total_ratings + 1, updated_at = now() WHERE id = $1
	`, id, stars)
}

// execOne runs a single-row update and reports pgx.ErrNoRows when nothing matched.
func execOne(ctx context.Context, tx pgx.Tx, sql string, args ...any) error {
	tag, err := tx.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
