package registry

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lendly/backend/internal/ledger"
	"github.com/lendly/backend/internal/testutil"
	"github.com/lendly/backend/internal/trust"
)

func newTestService() (Service, *testutil.MemStore) {
	mem := testutil.NewMemStore()
	led := ledger.NewService(mem, mem.Wallets(), mem.Entries(), mem, nil)
	return NewService(mem, mem.Items(), led, nil), mem
}

func TestCreateItem_ChargesListingCost(t *testing.T) {
	svc, mem := newTestService()
	owner := mem.NewUser(trust.NewUserScore)
	mem.SeedWallet(owner, 25)

	it, err := svc.CreateItem(context.Background(), owner, "  Graphing calculator ", 15)
	require.NoError(t, err)

	assert.Equal(t, "Graphing calculator", it.Name)
	assert.True(t, mem.Item(it.ID).Available)
	w, _ := mem.Wallet(owner)
	assert.Equal(t, 25-ledger.CostListItem, w.Balance)

	list, err := svc.ListAvailable(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, it.ID, list[0].ID)
}

func TestCreateItem_InsufficientBalanceCreatesNothing(t *testing.T) {
	svc, mem := newTestService()
	owner := mem.NewUser(trust.NewUserScore)
	mem.SeedWallet(owner, ledger.CostListItem-1)

	_, err := svc.CreateItem(context.Background(), owner, "Bike lock", 5)
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	list, err := svc.ListAvailable(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCreateItem_Invalid(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CreateItem(context.Background(), uuid.New(), "   ", 5)
	assert.ErrorIs(t, err, ErrInvalidItem)
	_, err = svc.CreateItem(context.Background(), uuid.New(), "Lamp", -1)
	assert.ErrorIs(t, err, ErrInvalidItem)
}

// ---------------------------------------------------------------------------
// Promotion
// ---------------------------------------------------------------------------

func TestPromote_BoostChargesAndStacks(t *testing.T) {
	svc, mem := newTestService()
	owner := mem.NewUser(trust.NewUserScore)
	itemID := mem.NewItem(owner, 10)
	mem.SeedWallet(owner, 2*ledger.CostBoostListing7d)

	first, err := svc.Promote(context.Background(), owner, itemID, PromotionBoost)
	require.NoError(t, err)
	require.NotNil(t, first.BoostedUntil)
	assert.WithinDuration(t, time.Now().Add(ledger.BoostPeriod), *first.BoostedUntil, time.Minute)
	assert.Nil(t, first.FeaturedUntil)

	second, err := svc.Promote(context.Background(), owner, itemID, PromotionBoost)
	require.NoError(t, err)
	assert.Equal(t, first.BoostedUntil.Add(ledger.BoostPeriod), *second.BoostedUntil)

	w, _ := mem.Wallet(owner)
	assert.Zero(t, w.Balance)
	assert.Equal(t, 2*ledger.CostBoostListing7d, w.TotalSpent)

	_, err = svc.Promote(context.Background(), owner, itemID, PromotionBoost)
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)
	assert.Equal(t, *second.BoostedUntil, *mem.Item(itemID).BoostedUntil)
}

func TestPromote_FeaturedListsFirst(t *testing.T) {
	svc, mem := newTestService()
	owner := mem.NewUser(trust.NewUserScore)
	featured := mem.NewItem(owner, 10)
	boosted := mem.NewItem(owner, 10)
	plain := mem.NewItem(owner, 10)
	mem.SeedWallet(owner, ledger.CostFeaturedListing3d+ledger.CostBoostListing7d)

	_, err := svc.Promote(context.Background(), owner, boosted, PromotionBoost)
	require.NoError(t, err)
	it, err := svc.Promote(context.Background(), owner, featured, PromotionFeatured)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(ledger.FeaturedPeriod), *it.FeaturedUntil, time.Minute)

	list, err := svc.ListAvailable(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []uuid.UUID{featured, boosted, plain}, []uuid.UUID{list[0].ID, list[1].ID, list[2].ID})
}

func TestPromote_Rejects(t *testing.T) {
	svc, mem := newTestService()
	owner := mem.NewUser(trust.NewUserScore)
	itemID := mem.NewItem(owner, 10)
	mem.SeedWallet(owner, 500)

	_, err := svc.Promote(context.Background(), owner, itemID, "spotlight")
	assert.ErrorIs(t, err, ErrInvalidPromotion)
	_, err = svc.Promote(context.Background(), owner, uuid.New(), PromotionBoost)
	assert.ErrorIs(t, err, ErrItemNotFound)
	_, err = svc.Promote(context.Background(), mem.NewUser(60), itemID, PromotionBoost)
	assert.ErrorIs(t, err, ErrNotOwner)

	w, _ := mem.Wallet(owner)
	assert.Equal(t, int64(500), w.Balance)
}
