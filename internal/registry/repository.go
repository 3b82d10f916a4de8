package registry

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lendly/backend/internal/models"
)

// Repository is the item storage the registry needs. Implemented by repository.ItemRepo.
type Repository interface {
	CreateTx(ctx context.Context, tx pgx.Tx, it *models.Item) error
	GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Item, error)
	SetPromotion(ctx context.Context, tx pgx.Tx, id uuid.UUID, boostedUntil, featuredUntil *time.Time, at time.Time) error
	ListAvailable(ctx context.Context, limit int) ([]*models.Item, error)
}
