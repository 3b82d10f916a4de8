package registry

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lendly/backend/internal/ledger"
	"github.com/lendly/backend/internal/models"
	"github.com/lendly/backend/internal/store"
)

var (
	ErrInvalidItem      = errors.New("invalid item")
	ErrItemNotFound     = errors.New("item not found")
	ErrNotOwner         = errors.New("not the item owner")
	ErrInvalidPromotion = errors.New("invalid promotion")
)

// Promotion kinds.
const (
	PromotionBoost    = "boost"
	PromotionFeatured = "featured"
)

// Wallet charges the listing cost inside the item's transaction.
type Wallet interface {
	DeductTx(ctx context.Context, tx pgx.Tx, req ledger.Request) (*ledger.Result, error)
}

type Service interface {
	CreateItem(ctx context.Context, ownerID uuid.UUID, name string, price int64) (*models.Item, error)
	Promote(ctx context.Context, ownerID, itemID uuid.UUID, kind string) (*models.Item, error)
	ListAvailable(ctx context.Context, limit int) ([]*models.Item, error)
}

type service struct {
	tx     store.TxRunner
	repo   Repository
	wallet Wallet
	log    *slog.Logger
}

func NewService(tx store.TxRunner, repo Repository, wallet Wallet, log *slog.Logger) Service {
	if log == nil {
		log = slog.Default()
	}
	return &service{tx: tx, repo: repo, wallet: wallet, log: log}
}

var _ Service = (*service)(nil)

// CreateItem lists an item and debits the listing cost from the owner. An
// owner who cannot pay gets ledger.ErrInsufficientBalance and no item.
func (s *service) CreateItem(ctx context.Context, ownerID uuid.UUID, name string, price int64) (*models.Item, error) {
	name = strings.TrimSpace(name)
	if name == "" || price < 0 {
		return nil, ErrInvalidItem
	}
	it := &models.Item{ID: uuid.New(), OwnerID: ownerID, Name: name, Price: price, Available: true}
	err := s.tx.InTx(ctx, func(tx pgx.Tx) error {
		if err := s.repo.CreateTx(ctx, tx, it); err != nil {
			return err
		}
		_, err := s.wallet.DeductTx(ctx, tx, ledger.ListingCharge(ownerID, it.ID))
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("item listed", "item_id", it.ID, "owner_id", ownerID)
	return it, nil
}

// Promote buys a boost or featured period for an owned item. A new period
// starts when the current one of the same kind ends, so purchases stack.
func (s *service) Promote(ctx context.Context, ownerID, itemID uuid.UUID, kind string) (*models.Item, error) {
	var (
		charge ledger.Request
		period time.Duration
	)
	switch kind {
	case PromotionBoost:
		charge, period = ledger.BoostCharge(ownerID, itemID), ledger.BoostPeriod
	case PromotionFeatured:
		charge, period = ledger.FeatureCharge(ownerID, itemID), ledger.FeaturedPeriod
	default:
		return nil, ErrInvalidPromotion
	}

	var it *models.Item
	err := s.tx.InTx(ctx, func(tx pgx.Tx) error {
		var err error
		it, err = s.repo.GetForUpdate(ctx, tx, itemID)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrItemNotFound
		}
		if err != nil {
			return err
		}
		if it.OwnerID != ownerID {
			return ErrNotOwner
		}
		now := time.Now().UTC()
		current := &it.BoostedUntil
		if kind == PromotionFeatured {
			current = &it.FeaturedUntil
		}
		start := now
		if *current != nil && (*current).After(now) {
			start = **current
		}
		until := start.Add(period)
		*current = &until
		if _, err := s.wallet.DeductTx(ctx, tx, charge); err != nil {
			return err
		}
		it.UpdatedAt = now
		return s.repo.SetPromotion(ctx, tx, it.ID, it.BoostedUntil, it.FeaturedUntil, now)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("item promoted", "item_id", itemID, "owner_id", ownerID, "kind", kind, "cost", charge.Amount)
	return it, nil
}

func (s *service) ListAvailable(ctx context.Context, limit int) ([]*models.Item, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.ListAvailable(ctx, limit)
}
