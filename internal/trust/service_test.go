package trust

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lendly/backend/internal/events"
	"github.com/lendly/backend/internal/models"
	"github.com/lendly/backend/internal/testutil"
)

func newTestService() (Service, *testutil.MemStore) {
	mem := testutil.NewMemStore()
	return NewService(mem, mem.Users(), mem.TrustHistoryRepo(), mem, nil), mem
}

func TestAdjust_WritesHistoryAndEvent(t *testing.T) {
	svc, mem := newTestService()
	uid := mem.NewUser(NewUserScore)

	res, err := svc.Adjust(context.Background(), uid, LateReturn(uuid.New(), uid, 7))
	require.NoError(t, err)
	assert.Equal(t, 50, res.Previous)
	assert.Equal(t, 40, res.Score)
	assert.Equal(t, -10, res.Change)
	assert.Equal(t, "Below Average", res.Tier.Name)

	u := mem.User(uid)
	assert.Equal(t, 40, u.TrustScore)
	assert.Equal(t, "Below Average", u.TrustTier)

	hist := mem.TrustHistory(uid)
	require.Len(t, hist, 1)
	assert.Equal(t, 50, hist[0].PreviousScore)
	assert.Equal(t, 40, hist[0].NewScore)
	assert.Equal(t, models.TrustEventLateReturn, hist[0].Type)

	require.Len(t, mem.EventsOfType(events.TrustScoreChanged), 1)
}

func TestAdjust_ClampsAtBounds(t *testing.T) {
	svc, mem := newTestService()
	ctx := context.Background()

	high := mem.NewUser(98)
	res, err := svc.Adjust(ctx, high, Adjustment{Change: 7, Reason: "early return", Type: models.TrustEventTransaction})
	require.NoError(t, err)
	assert.Equal(t, 100, res.Score)
	assert.Equal(t, 2, res.Change)

	low := mem.NewUser(4)
	res, err = svc.Adjust(ctx, low, Adjustment{Change: -20, Reason: "dispute lost", Type: models.TrustEventDispute})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Score)
	assert.Equal(t, -4, res.Change)
}

func TestAdjust_PenaltyCappedPerIncident(t *testing.T) {
	svc, mem := newTestService()
	uid := mem.NewUser(90)

	res, err := svc.Adjust(context.Background(), uid, Adjustment{Change: -75, Reason: "fraud", Type: models.TrustEventAdjustment})
	require.NoError(t, err)
	assert.Equal(t, -MaxChange, res.Change)
	assert.Equal(t, 60, res.Score)
}

func TestAdjust_BoundsHoldForAnySequence(t *testing.T) {
	svc, mem := newTestService()
	uid := mem.NewUser(NewUserScore)
	ctx := context.Background()
	rng := rand.New(rand.NewPCG(1, 2))

	for i := 0; i < 500; i++ {
		change := rng.IntN(101) - 50
		_, err := svc.Adjust(ctx, uid, Adjustment{Change: change, Reason: "random", Type: models.TrustEventAdjustment})
		require.NoError(t, err)
	}
	for _, h := range mem.TrustHistory(uid) {
		assert.GreaterOrEqual(t, h.NewScore, MinScore)
		assert.LessOrEqual(t, h.NewScore, MaxScore)
		assert.LessOrEqual(t, abs(h.Change), MaxChange)
		assert.Equal(t, h.NewScore-h.PreviousScore, h.Change)
	}
}

func TestAdjust_IdempotencyKey(t *testing.T) {
	svc, mem := newTestService()
	uid := mem.NewUser(NewUserScore)
	adj := Cancellation(uuid.New(), uid)
	ctx := context.Background()

	_, err := svc.Adjust(ctx, uid, adj)
	require.NoError(t, err)
	_, err = svc.Adjust(ctx, uid, adj)
	require.ErrorIs(t, err, ErrAlreadyApplied)
	assert.Equal(t, 45, mem.User(uid).TrustScore)
}

func TestAdjust_UnknownUser(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.Adjust(context.Background(), uuid.New(), Adjustment{Change: 3})
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestVerifyTx(t *testing.T) {
	svc, mem := newTestService()
	ctx := context.Background()

	verify := func(uid uuid.UUID) (res *Result, err error) {
		err = mem.InTx(ctx, func(tx pgx.Tx) error {
			res, err = svc.VerifyTx(ctx, tx, uid)
			return err
		})
		return res, err
	}

	fresh := mem.NewUser(NewUserScore)
	res, err := verify(fresh)
	require.NoError(t, err)
	assert.Equal(t, VerifiedScore, res.Score)
	assert.True(t, mem.User(fresh).IsVerified)

	_, err = verify(fresh)
	require.ErrorIs(t, err, ErrAlreadyVerified)
	assert.Equal(t, VerifiedScore, mem.User(fresh).TrustScore)

	trusted := mem.NewUser(85)
	res, err = verify(trusted)
	require.NoError(t, err)
	assert.Equal(t, 85, res.Score, "verification never lowers a score")

	penalised := mem.NewUser(10)
	res, err = verify(penalised)
	require.NoError(t, err)
	assert.Equal(t, 40, res.Score, "verification is still capped per event")
}

func TestSummary(t *testing.T) {
	svc, mem := newTestService()
	uid := mem.NewUser(NewUserScore)
	ctx := context.Background()

	require.NoError(t, mem.InTx(ctx, func(tx pgx.Tx) error { return svc.InitializeTx(ctx, tx, uid) }))
	_, err := svc.Adjust(ctx, uid, Rating(uuid.New(), uid, uuid.New(), 5))
	require.NoError(t, err)

	sum, err := svc.Summary(ctx, uid, 10)
	require.NoError(t, err)
	assert.Equal(t, 53, sum.Score)
	assert.Equal(t, "Average", sum.Tier.Name)
	require.Len(t, sum.History, 2)
	assert.Equal(t, models.TrustEventRating, sum.History[0].Type, "newest first")
	assert.Equal(t, models.TrustEventInitial, sum.History[1].Type)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
