package auth

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/lendly/backend/internal/models"
)

// Repository is the user storage auth needs. Implemented by repository.UserRepo.
// Lookups return pgx.ErrNoRows when nothing matches.
type Repository interface {
	CreateTx(ctx context.Context, tx pgx.Tx, u *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}
