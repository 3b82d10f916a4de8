package exchange

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lendly/backend/internal/events"
	"github.com/lendly/backend/internal/execution"
	"github.com/lendly/backend/internal/ledger"
	"github.com/lendly/backend/internal/models"
	"github.com/lendly/backend/internal/testutil"
	"github.com/lendly/backend/internal/trust"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

var t0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type harness struct {
	mem    *testutil.MemStore
	svc    *service
	ledger ledger.Service
	trust  trust.Service
	proc   *execution.RewardProcessor
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mem := testutil.NewMemStore()
	led := ledger.NewService(mem, mem.Wallets(), mem.Entries(), mem, nil)
	tr := trust.NewService(mem, mem.Users(), mem.TrustHistoryRepo(), mem, nil)
	svc := NewService(Deps{
		Tx:        mem,
		Items:     mem.Items(),
		Exchanges: mem.Exchanges(),
		Users:     mem.Users(),
		Wallet:    led,
		Publisher: mem,
		Insert:    mem.InsertTx,
	}).(*service)
	svc.now = func() time.Time { return t0 }
	return &harness{mem: mem, svc: svc, ledger: led, trust: tr, proc: execution.NewRewardProcessor(led, tr, nil)}
}

func (h *harness) at(ts time.Time) { h.svc.now = func() time.Time { return ts } }

// drain runs every queued outbox job through the reward processor.
func (h *harness) drain(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for _, job := range h.mem.TakeJobs() {
		var err error
		switch a := job.(type) {
		case execution.CompletionRewardArgs:
			err = h.proc.Completion(ctx, a)
		case execution.LatePenaltyArgs:
			err = h.proc.LatePenalty(ctx, a)
		case execution.CancellationPenaltyArgs:
			err = h.proc.CancellationPenalty(ctx, a)
		default:
			t.Fatalf("unexpected job %T", job)
		}
		require.NoError(t, err, job.Kind())
	}
}

type fixture struct {
	requester uuid.UUID
	owner     uuid.UUID
	item      uuid.UUID
}

func (h *harness) fixture(price, balance int64) fixture {
	f := fixture{requester: h.mem.NewUser(trust.NewUserScore), owner: h.mem.NewUser(trust.NewUserScore)}
	f.item = h.mem.NewItem(f.owner, price)
	h.mem.SeedWallet(f.requester, balance)
	return f
}

func (h *harness) request(t *testing.T, f fixture, duration *int) *models.Exchange {
	t.Helper()
	ex, err := h.svc.CreateRequest(context.Background(), CreateRequestInput{
		RequesterID:  f.requester,
		ItemOwnerID:  f.owner,
		ItemID:       f.item,
		Type:         models.ExchangeTypeBorrow,
		Message:      "can I borrow this?",
		DurationDays: duration,
	})
	require.NoError(t, err)
	return ex
}

func (h *harness) accept(t *testing.T, f fixture, exchangeID uuid.UUID) *models.Exchange {
	t.Helper()
	ex, err := h.svc.Respond(context.Background(), RespondInput{ExchangeID: exchangeID, OwnerID: f.owner, Action: ActionAccept})
	require.NoError(t, err)
	return ex
}

// seedRequested inserts a pending request for item directly, bypassing the one-pending rule.
func (h *harness) seedRequested(itemID, owner uuid.UUID, created time.Time) models.Exchange {
	e := models.Exchange{
		ID:          uuid.New(),
		RequesterID: h.mem.NewUser(trust.NewUserScore),
		ItemOwnerID: owner,
		ItemID:      itemID,
		Type:        models.ExchangeTypeBorrow,
		Status:      models.ExchangeStatusRequested,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
	h.mem.SeedExchange(e)
	return e
}

func balance(t *testing.T, mem *testutil.MemStore, uid uuid.UUID) int64 {
	t.Helper()
	w, _ := mem.Wallet(uid)
	require.Equal(t, w.TotalEarned-w.TotalSpent, w.Balance, "wallet %s inconsistent", uid)
	return w.Balance
}

func intPtr(v int) *int { return &v }

// ---------------------------------------------------------------------------
// CreateRequest
// ---------------------------------------------------------------------------

func TestCreateRequest_Success(t *testing.T) {
	h := newHarness(t)
	f := h.fixture(20, 100)

	ex := h.request(t, f, intPtr(7))

	assert.Equal(t, models.ExchangeStatusRequested, ex.Status)
	assert.Equal(t, int64(20), ex.ProposedPrice, "defaults to item price")
	assert.Equal(t, t0, ex.CreatedAt)
	assert.Equal(t, ex.Status, h.mem.Exchange(ex.ID).Status)

	evs := h.mem.EventsOfType(events.ExchangeRequested)
	require.Len(t, evs, 1)
	assert.Equal(t, f.owner, evs[0].UserID)
	assert.Equal(t, ex.ID, *evs[0].ExchangeID)
}

func TestCreateRequest_SanitizesMessage(t *testing.T) {
	h := newHarness(t)
	f := h.fixture(0, 0)

	ex, err := h.svc.CreateRequest(context.Background(), CreateRequestInput{
		RequesterID: f.requester, ItemOwnerID: f.owner, ItemID: f.item,
		Type: models.ExchangeTypeDonate, Message: "  <b>hello</b>\x07 ",
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", ex.Message)
}

func TestCreateRequest_Errors(t *testing.T) {
	h := newHarness(t)
	f := h.fixture(20, 100)
	ctx := context.Background()

	cases := []struct {
		name string
		in   CreateRequestInput
		want error
	}{
		{"self request", CreateRequestInput{RequesterID: f.owner, ItemOwnerID: f.owner, ItemID: f.item, Type: models.ExchangeTypeBorrow}, ErrSelfRequest},
		{"unknown item", CreateRequestInput{RequesterID: f.requester, ItemOwnerID: f.owner, ItemID: uuid.New(), Type: models.ExchangeTypeBorrow}, ErrItemNotFound},
		{"owner mismatch", CreateRequestInput{RequesterID: f.requester, ItemOwnerID: uuid.New(), ItemID: f.item, Type: models.ExchangeTypeBorrow}, ErrItemNotFound},
		{"bad type", CreateRequestInput{RequesterID: f.requester, ItemOwnerID: f.owner, ItemID: f.item, Type: "steal"}, ErrInvalidInput},
		{"missing requester", CreateRequestInput{ItemOwnerID: f.owner, ItemID: f.item, Type: models.ExchangeTypeBorrow}, ErrInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.svc.CreateRequest(ctx, tc.in)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Empty(t, h.mem.AllExchanges())
}

func TestCreateRequest_UnavailableItem(t *testing.T) {
	h := newHarness(t)
	f := h.fixture(0, 0)
	it := h.mem.Item(f.item)
	it.Available = false
	h.mem.SeedItem(it)

	_, err := h.svc.CreateRequest(context.Background(), CreateRequestInput{
		RequesterID: f.requester, ItemOwnerID: f.owner, ItemID: f.item, Type: models.ExchangeTypeBorrow,
	})
	assert.ErrorIs(t, err, ErrItemUnavailable)
}

func TestCreateRequest_Duplicate(t *testing.T) {
	h := newHarness(t)
	f := h.fixture(0, 0)
	h.request(t, f, nil)

	_, err := h.svc.CreateRequest(context.Background(), CreateRequestInput{
		RequesterID: f.requester, ItemOwnerID: f.owner, ItemID: f.item, Type: models.ExchangeTypeBorrow,
	})
	assert.ErrorIs(t, err, ErrDuplicateRequest)

	other := h.mem.NewUser(trust.NewUserScore)
	_, err = h.svc.CreateRequest(context.Background(), CreateRequestInput{
		RequesterID: other, ItemOwnerID: f.owner, ItemID: f.item, Type: models.ExchangeTypeBorrow,
	})
	assert.ErrorIs(t, err, ErrDuplicateRequest)
	assert.Len(t, h.mem.AllExchanges(), 1)
}

func TestCreateRequest_ConcurrentOnlyOneWins(t *testing.T) {
	h := newHarness(t)
	f := h.fixture(0, 0)

	const n = 20
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		ok   int
		dups int
	)
	for i := 0; i < n; i++ {
		requester := h.mem.NewUser(trust.NewUserScore)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.CreateRequest(context.Background(), CreateRequestInput{
				RequesterID: requester, ItemOwnerID: f.owner, ItemID: f.item, Type: models.ExchangeTypeBorrow,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrDuplicateRequest):
				dups++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, dups)
	assert.Len(t, h.mem.AllExchanges(), 1)
}

// ---------------------------------------------------------------------------
// Respond
// ---------------------------------------------------------------------------

func TestRespond_AcceptDebitsAndLendsItem(t *testing.T) {
	h := newHarness(t)
	f := h.fixture(20, 100)
	ex := h.request(t, f, nil)

	acc := h.accept(t, f, ex.ID)

	assert.Equal(t, models.ExchangeStatusAccepted, acc.Status)
	assert.Equal(t, int64(20), acc.ChargedAmount)
	require.NotNil(t, acc.AcceptedAt)
	assert.Equal(t, int64(80), balance(t, h.mem, f.requester))

	it := h.mem.Item(f.item)
	assert.False(t, it.Available)
	require.NotNil(t, it.CurrentBorrowerID)
	assert.Equal(t, f.requester, *it.CurrentBorrowerID)

	evs := h.mem.EventsOfType(events.ExchangeAccepted)
	require.Len(t, evs, 1)
	assert.Equal(t, f.requester, evs[0].UserID)
}

func TestRespond_AcceptCascadesRejection(t *testing.T) {
	h := newHarness(t)
	f := h.fixture(0, 0)
	ex := h.request(t, f, nil)

	var siblings []models.Exchange
	for i := 1; i <= 4; i++ {
		siblings = append(siblings, h.seedRequested(f.item, f.owner, t0.Add(time.Duration(i)*time.Minute)))
	}

	h.accept(t, f, ex.ID)

	for _, s := range siblings {
		got := h.mem.Exchange(s.ID)
		assert.Equal(t, models.ExchangeStatusRejected, got.Status)
		assert.Equal(t, ReasonItemTaken, got.ResponseMessage)
		assert.NotNil(t, got.RejectedAt)
	}
	rejected := h.mem.EventsOfType(events.ExchangeRejected)
	require.Len(t, rejected, len(siblings))
	notified := map[uuid.UUID]bool{}
	for _, ev := range rejected {
		notified[ev.UserID] = true
	}
	for _, s := range siblings {
		assert.True(t, notified[s.RequesterID], "requester %s not notified", s.RequesterID)
	}

	accepted := 0
	for _, e := range h.mem.AllExchanges() {
		if e.ItemID == f.item && e.Status == models.ExchangeStatusAccepted {
			accepted++
		}
	}
	assert.Equal(t, 1, accepted)
}

func TestRespond_Reject(t *testing.T) {
	h := newHarness(t)
	f := h.fixture(20, 100)
	ex := h.request(t, f, nil)

	rej, err := h.svc.Respond(context.Background(), RespondInput{ExchangeID: ex.ID, OwnerID: f.owner, Action: ActionReject, Message: "sorry"})
	require.NoError(t, err)

	assert.Equal(t, models.ExchangeStatusRejected, rej.Status)
	assert.Equal(t, "sorry", rej.ResponseMessage)
	assert.Equal(t, int64(100), balance(t, h.mem, f.requester))
	assert.True(t, h.mem.Item(f.item).Available)
	require.Len(t, h.mem.EventsOfType(events.ExchangeRejected), 1)
}

func TestRespond_InsufficientBalanceChangesNothing(t *testing.T) {
	h := newHarness(t)
	f := h.fixture(50, 10)
	ex := h.request(t, f, nil)
	sibling := h.seedRequested(f.item, f.owner, t0.Add(time.Minute))
	eventsBefore := len(h.mem.Events())

	_, err := h.svc.Respond(context.Background(), RespondInput{ExchangeID: ex.ID, OwnerID: f.owner, Action: ActionAccept})
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	assert.Equal(t, models.ExchangeStatusRequested, h.mem.Exchange(ex.ID).Status)
	assert.Equal(t, models.ExchangeStatusRequested, h.mem.Exchange(sibling.ID).Status)
	assert.True(t, h.mem.Item(f.item).Available)
	assert.Equal(t, int64(10), balance(t, h.mem, f.requester))
	assert.Len(t, h.mem.CoinTxs(f.requester), 1, "only the seed entry")
	assert.Len(t, h.mem.Events(), eventsBefore)
}

func TestRespond_Authorization(t *testing.T) {
	h := newHarness(t)
	f := h.fixture(0, 0)
	ex := h.request(t, f, nil)

	_, err := h.svc.Respond(context.Background(), RespondInput{ExchangeID: ex.ID, OwnerID: f.requester, Action: ActionAccept})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = h.svc.Respond(context.Background(), RespondInput{ExchangeID: uuid.New(), OwnerID: f.owner, Action: ActionAccept})
	assert.ErrorIs(t, err, ErrExchangeNotFound)

	_, err = h.svc.Respond(context.Background(), RespondInput{ExchangeID: ex.ID, OwnerID: f.owner, Action: "maybe"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRespond_OnlyFromRequested(t *testing.T) {
	h := newHarness(t)
	f := h.fixture(0, 0)
	ex := h.request(t, f, nil)
	h.accept(t, f, ex.ID)

	_, err := h.svc.Respond(context.Background(), RespondInput{ExchangeID: ex.ID, OwnerID: f.owner, Action: ActionReject})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

// ---------------------------------------------------------------------------
// Complete
// ---------------------------------------------------------------------------

func TestComplete_FiveStarEarlyReturn(t *testing.T) {
	h := newHarness(t)
	f := h.fixture(20, 100)
	ex := h.request(t, f, intPtr(7))
	h.accept(t, f, ex.ID)

	h.at(t0.Add(24 * time.Hour))
	done, err := h.svc.Complete(context.Background(), CompleteInput{ExchangeID: ex.ID, CallerID: f.requester, Rating: intPtr(5), Review: "great"})
	require.NoError(t, err)

	assert.Equal(t, models.ExchangeStatusCompleted, done.Status)
	require.NotNil(t, done.RequesterRating)
	assert.Equal(t, 5, *done.RequesterRating)
	assert.True(t, h.mem.Item(f.item).Available)
	assert.Nil(t, h.mem.Item(f.item).CurrentBorrowerID)

	// 20 charged: 17 to the owner, 3 platform fee.
	assert.Equal(t, int64(80), balance(t, h.mem, f.requester))
	assert.Equal(t, int64(17), balance(t, h.mem, f.owner))
	assert.Equal(t, int64(3), balance(t, h.mem, models.SystemPlatformUserID))

	assert.Equal(t, 1, h.mem.User(f.requester).Borrowed)
	assert.Equal(t, 1, h.mem.User(f.owner).Lent)
	assert.Equal(t, 1, h.mem.User(f.owner).TotalRatings)
	assert.Equal(t, 5, h.mem.User(f.owner).RatingSum)
	assert.Len(t, h.mem.EventsOfType(events.ExchangeCompleted), 2)

	h.drain(t)

	// borrow 30 + first transaction 100 + early return 15
	assert.Equal(t, int64(80+30+100+15), balance(t, h.mem, f.requester))
	// lend 50 + five star 10
	assert.Equal(t, int64(17+50+10), balance(t, h.mem, f.owner))
	assert.Equal(t, trust.NewUserScore+trust.DeltaBorrow+trust.DeltaEarlyReturn, h.mem.User(f.requester).TrustScore)
	assert.Equal(t, trust.NewUserScore+trust.DeltaLend+trust.DeltaRating5Star, h.mem.User(f.owner).TrustScore)
}

func TestComplete_RewardsAreIdempotent(t *testing.T) {
	h := newHarness(t)
	f := h.fixture(0, 0)
	ex := h.request(t, f, nil)
	h.accept(t, f, ex.ID)
	_, err := h.svc.Complete(context.Background(), CompleteInput{ExchangeID: ex.ID, CallerID: f.owner})
	require.NoError(t, err)

	jobs := h.mem.TakeJobs()
	require.Len(t, jobs, 1)
	args := jobs[0].(execution.CompletionRewardArgs)
	assert.True(t, args.FirstTransaction)
	assert.Equal(t, string(trust.TimelinessUnknown), args.Timeliness)

	for i := 0; i < 3; i++ {
		require.NoError(t, h.proc.Completion(context.Background(), args))
	}
	assert.Equal(t, int64(ledger.RewardCompleteBorrow+ledger.RewardFirstTransaction), balance(t, h.mem, f.requester))
	assert.Equal(t, ledger.RewardCompleteLend, balance(t, h.mem, f.owner))
	assert.Len(t, h.mem.TrustHistory(f.owner), 1)
}

func TestComplete_SecondExchangeIsNotFirst(t *testing.T) {
	h := newHarness(t)
	f := h.fixture(0, 0)
	for i := 0; i < 2; i++ {
		ex := h.request(t, f, nil)
		h.accept(t, f, ex.ID)
		_, err := h.svc.Complete(context.Background(), CompleteInput{ExchangeID: ex.ID, CallerID: f.requester})
		require.NoError(t, err)
	}
	jobs := h.mem.TakeJobs()
	require.Len(t, jobs, 2)
	assert.True(t, jobs[0].(execution.CompletionRewardArgs).FirstTransaction)
	assert.False(t, jobs[1].(execution.CompletionRewardArgs).FirstTransaction)
}

func TestComplete_Errors(t *testing.T) {
	h := newHarness(t)
	f := h.fixture(0, 0)
	ex := h.request(t, f, nil)

	_, err := h.svc.Complete(context.Background(), CompleteInput{ExchangeID: ex.ID, CallerID: f.requester})
	assert.ErrorIs(t, err, ErrInvalidTransition, "requested cannot complete")

	h.accept(t, f, ex.ID)
	_, err = h.svc.Complete(context.Background(), CompleteInput{ExchangeID: ex.ID, CallerID: uuid.New()})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = h.svc.Complete(context.Background(), CompleteInput{ExchangeID: ex.ID, CallerID: f.requester, Rating: intPtr(6)})
	assert.ErrorIs(t, err, ErrInvalidInput)

	assert.Equal(t, models.ExchangeStatusAccepted, h.mem.Exchange(ex.ID).Status)
	assert.Empty(t, h.mem.Jobs())
}

// ---------------------------------------------------------------------------
// Cancel
// ---------------------------------------------------------------------------

func TestCancel_FromRequested(t *testing.T) {
	h := newHarness(t)
	f := h.fixture(20, 100)
	ex := h.request(t, f, nil)

	got, err := h.svc.Cancel(context.Background(), ex.ID, f.requester)
	require.NoError(t, err)

	assert.Equal(t, models.ExchangeStatusCancelled, got.Status)
	assert.NotNil(t, got.CancelledAt)
	assert.Empty(t, h.mem.Jobs(), "no penalty before acceptance")
	require.Len(t, h.mem.EventsOfType(events.ExchangeCancelled), 1)
	assert.Equal(t, f.owner, h.mem.EventsOfType(events.ExchangeCancelled)[0].UserID)
}

func TestCancel_AfterAcceptRefundsInFull(t *testing.T) {
	h := newHarness(t)
	f := h.fixture(40, 100)
	ex := h.request(t, f, nil)
	h.accept(t, f, ex.ID)
	require.Equal(t, int64(60), balance(t, h.mem, f.requester))

	_, err := h.svc.Cancel(context.Background(), ex.ID, f.requester)
	require.NoError(t, err)

	assert.Equal(t, int64(100), balance(t, h.mem, f.requester))
	assert.True(t, h.mem.Item(f.item).Available)
	assert.Equal(t, int64(0), balance(t, h.mem, f.owner))

	h.drain(t)
	assert.Equal(t, trust.NewUserScore+trust.DeltaCancellation, h.mem.User(f.requester).TrustScore)
}

func TestCancel_Errors(t *testing.T) {
	h := newHarness(t)
	f := h.fixture(0, 0)
	ex := h.request(t, f, nil)

	_, err := h.svc.Cancel(context.Background(), ex.ID, f.owner)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = h.svc.Cancel(context.Background(), uuid.New(), f.requester)
	assert.ErrorIs(t, err, ErrExchangeNotFound)

	_, err = h.svc.Respond(context.Background(), RespondInput{ExchangeID: ex.ID, OwnerID: f.owner, Action: ActionReject})
	require.NoError(t, err)
	_, err = h.svc.Cancel(context.Background(), ex.ID, f.requester)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

// ---------------------------------------------------------------------------
// MarkLate
// ---------------------------------------------------------------------------

func TestMarkLate(t *testing.T) {
	h := newHarness(t)
	f := h.fixture(0, 0)
	ex := h.request(t, f, intPtr(3))
	h.accept(t, f, ex.ID)

	got, err := h.svc.MarkLate(context.Background(), MarkLateInput{ExchangeID: ex.ID, OwnerID: f.owner, DaysLate: 3})
	require.NoError(t, err)

	assert.True(t, got.IsLate)
	assert.Equal(t, 3, got.DaysLate)
	assert.Equal(t, models.ExchangeStatusAccepted, got.Status)
	require.Len(t, h.mem.EventsOfType(events.LateReturnWarned), 1)

	h.drain(t)
	assert.Equal(t, trust.NewUserScore+trust.DeltaLate3Days, h.mem.User(f.requester).TrustScore)

	_, err = h.svc.MarkLate(context.Background(), MarkLateInput{ExchangeID: ex.ID, OwnerID: f.requester, DaysLate: 4})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestMarkLate_CompletionIsLate(t *testing.T) {
	h := newHarness(t)
	f := h.fixture(0, 0)
	ex := h.request(t, f, intPtr(30))
	h.accept(t, f, ex.ID)
	_, err := h.svc.MarkLate(context.Background(), MarkLateInput{ExchangeID: ex.ID, OwnerID: f.owner, DaysLate: 1})
	require.NoError(t, err)
	h.mem.TakeJobs()

	_, err = h.svc.Complete(context.Background(), CompleteInput{ExchangeID: ex.ID, CallerID: f.owner})
	require.NoError(t, err)
	jobs := h.mem.TakeJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, string(trust.TimelinessLate), jobs[0].(execution.CompletionRewardArgs).Timeliness)
}

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

func TestGetAndList(t *testing.T) {
	h := newHarness(t)
	f := h.fixture(0, 0)
	ex := h.request(t, f, nil)

	got, err := h.svc.Get(context.Background(), ex.ID, f.owner)
	require.NoError(t, err)
	assert.Equal(t, ex.ID, got.ID)

	_, err = h.svc.Get(context.Background(), ex.ID, uuid.New())
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = h.svc.Get(context.Background(), uuid.New(), f.owner)
	assert.ErrorIs(t, err, ErrExchangeNotFound)

	list, err := h.svc.ListForUser(context.Background(), f.requester, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, ex.ID, list[0].ID)
}
