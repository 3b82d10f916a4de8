package testutil

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/lendly/backend/internal/models"
)

// ---------------------------------------------------------------------------
// Wallets
// ---------------------------------------------------------------------------

type MemWallets struct{ m *MemStore }

func (m *MemStore) Wallets() *MemWallets { return &MemWallets{m: m} }

func (r *MemWallets) Ensure(_ context.Context, _ pgx.Tx, uid uuid.UUID) error {
	if _, ok := r.m.st.wallets[uid]; !ok {
		now := time.Now()
		r.m.st.wallets[uid] = models.Wallet{UID: uid, CreatedAt: now, UpdatedAt: now}
	}
	return nil
}

func (r *MemWallets) GetForUpdate(_ context.Context, _ pgx.Tx, uid uuid.UUID) (*models.Wallet, error) {
	w, ok := r.m.st.wallets[uid]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &w, nil
}

func (r *MemWallets) Get(_ context.Context, uid uuid.UUID) (*models.Wallet, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	w, ok := r.m.st.wallets[uid]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &w, nil
}

func (r *MemWallets) AddEarned(_ context.Context, _ pgx.Tx, uid uuid.UUID, amount int64, at time.Time) (*models.Wallet, error) {
	w, ok := r.m.st.wallets[uid]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	w.Balance += amount
	w.TotalEarned += amount
	w.TransactionCount++
	w.LastEarnedAt = &at
	w.UpdatedAt = at
	r.m.st.wallets[uid] = w
	return &w, nil
}

func (r *MemWallets) AddSpent(_ context.Context, _ pgx.Tx, uid uuid.UUID, amount int64, at time.Time) (*models.Wallet, error) {
	w, ok := r.m.st.wallets[uid]
	if !ok || w.Balance < amount {
		return nil, pgx.ErrNoRows
	}
	w.Balance -= amount
	w.TotalSpent += amount
	w.TransactionCount++
	w.LastSpentAt = &at
	w.UpdatedAt = at
	r.m.st.wallets[uid] = w
	return &w, nil
}

// ---------------------------------------------------------------------------
// Coin transactions
// ---------------------------------------------------------------------------

type MemEntries struct{ m *MemStore }

func (m *MemStore) Entries() *MemEntries { return &MemEntries{m: m} }

func (r *MemEntries) CreateTx(_ context.Context, _ pgx.Tx, c *models.CoinTransaction) error {
	c.CreatedAt = time.Now()
	r.m.st.coinTxs = append(r.m.st.coinTxs, *c)
	return nil
}

func (r *MemEntries) ExistsByKey(_ context.Context, _ pgx.Tx, key string) (bool, error) {
	for _, c := range r.m.st.coinTxs {
		if c.IdempotencyKey != nil && *c.IdempotencyKey == key {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemEntries) ListByUID(_ context.Context, uid uuid.UUID, limit int) ([]*models.CoinTransaction, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.CoinTransaction
	for i := len(r.m.st.coinTxs) - 1; i >= 0 && len(out) < limit; i-- {
		if c := r.m.st.coinTxs[i]; c.UID == uid {
			out = append(out, &c)
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

type MemUsers struct{ m *MemStore }

func (m *MemStore) Users() *MemUsers { return &MemUsers{m: m} }

// CreateTx fails like Postgres on a duplicate email.
func (r *MemUsers) CreateTx(_ context.Context, _ pgx.Tx, u *models.User) error {
	for _, existing := range r.m.st.users {
		if existing.Email == u.Email {
			return &pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"}
		}
	}
	now := time.Now()
	u.CreatedAt, u.UpdatedAt = now, now
	r.m.st.users[u.ID] = *u
	return nil
}

func (r *MemUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, u := range r.m.st.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *MemUsers) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u, ok := r.m.st.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &u, nil
}

func (r *MemUsers) GetForUpdate(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.User, error) {
	u, ok := r.m.st.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &u, nil
}

func (r *MemUsers) UpdateTrust(_ context.Context, _ pgx.Tx, id uuid.UUID, score int, tier string, at time.Time) error {
	u, ok := r.m.st.users[id]
	if !ok {
		return pgx.ErrNoRows
	}
	u.TrustScore = score
	u.TrustTier = tier
	u.UpdatedAt = at
	r.m.st.users[id] = u
	return nil
}

func (r *MemUsers) MarkVerified(_ context.Context, _ pgx.Tx, id uuid.UUID, at time.Time) error {
	u, ok := r.m.st.users[id]
	if !ok {
		return pgx.ErrNoRows
	}
	u.IsVerified = true
	u.UpdatedAt = at
	r.m.st.users[id] = u
	return nil
}

func (r *MemUsers) IncrementCounts(_ context.Context, _ pgx.Tx, borrowerID, lenderID uuid.UUID) error {
	b, ok := r.m.st.users[borrowerID]
	if !ok {
		return pgx.ErrNoRows
	}
	b.Borrowed++
	r.m.st.users[borrowerID] = b
	l, ok := r.m.st.users[lenderID]
	if !ok {
		return pgx.ErrNoRows
	}
	l.Lent++
	r.m.st.users[lenderID] = l
	return nil
}

func (r *MemUsers) AddRating(_ context.Context, _ pgx.Tx, id uuid.UUID, stars int) error {
	u, ok := r.m.st.users[id]
	if !ok {
		return pgx.ErrNoRows
	}
	u.RatingSum += stars
	u.TotalRatings++
	r.m.st.users[id] = u
	return nil
}

// ---------------------------------------------------------------------------
// Trust history
// ---------------------------------------------------------------------------

type MemTrustHistory struct{ m *MemStore }

func (m *MemStore) TrustHistoryRepo() *MemTrustHistory { return &MemTrustHistory{m: m} }

func (r *MemTrustHistory) CreateTx(_ context.Context, _ pgx.Tx, h *models.TrustScoreHistory) error {
	h.CreatedAt = time.Now()
	r.m.st.trustHist = append(r.m.st.trustHist, *h)
	return nil
}

func (r *MemTrustHistory) ExistsByKey(_ context.Context, _ pgx.Tx, key string) (bool, error) {
	for _, h := range r.m.st.trustHist {
		if h.IdempotencyKey != nil && *h.IdempotencyKey == key {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemTrustHistory) ListByUID(_ context.Context, uid uuid.UUID, limit int) ([]*models.TrustScoreHistory, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.TrustScoreHistory
	for i := len(r.m.st.trustHist) - 1; i >= 0 && len(out) < limit; i-- {
		if h := r.m.st.trustHist[i]; h.UID == uid {
			out = append(out, &h)
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Items
// ---------------------------------------------------------------------------

type MemItems struct{ m *MemStore }

func (m *MemStore) Items() *MemItems { return &MemItems{m: m} }

func (r *MemItems) CreateTx(_ context.Context, _ pgx.Tx, it *models.Item) error {
	now := time.Now()
	it.CreatedAt, it.UpdatedAt = now, now
	r.m.st.items[it.ID] = *it
	return nil
}

func (r *MemItems) GetForUpdate(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.Item, error) {
	it, ok := r.m.st.items[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &it, nil
}

func (r *MemItems) SetAvailability(_ context.Context, _ pgx.Tx, id uuid.UUID, borrower *uuid.UUID, at time.Time) error {
	it, ok := r.m.st.items[id]
	if !ok {
		return pgx.ErrNoRows
	}
	it.Available = borrower == nil
	it.CurrentBorrowerID = borrower
	it.UpdatedAt = at
	r.m.st.items[id] = it
	return nil
}

func (r *MemItems) SetPromotion(_ context.Context, _ pgx.Tx, id uuid.UUID, boostedUntil, featuredUntil *time.Time, at time.Time) error {
	it, ok := r.m.st.items[id]
	if !ok {
		return pgx.ErrNoRows
	}
	it.BoostedUntil, it.FeaturedUntil, it.UpdatedAt = boostedUntil, featuredUntil, at
	r.m.st.items[id] = it
	return nil
}

func (r *MemItems) ListAvailable(_ context.Context, limit int) ([]*models.Item, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	now := time.Now()
	active := func(t *time.Time) bool { return t != nil && t.After(now) }
	var out []*models.Item
	for _, it := range r.m.st.items {
		if it.Available {
			out = append(out, &it)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if fa, fb := active(a.FeaturedUntil), active(b.FeaturedUntil); fa != fb {
			return fa
		}
		if ba, bb := active(a.BoostedUntil), active(b.BoostedUntil); ba != bb {
			return ba
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Exchanges
// ---------------------------------------------------------------------------

type MemExchanges struct{ m *MemStore }

func (m *MemStore) Exchanges() *MemExchanges { return &MemExchanges{m: m} }

func (r *MemExchanges) CreateTx(_ context.Context, _ pgx.Tx, e *models.Exchange) error {
	r.m.st.exchanges[e.ID] = *e
	return nil
}

func (r *MemExchanges) GetForUpdate(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.Exchange, error) {
	e, ok := r.m.st.exchanges[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &e, nil
}

func (r *MemExchanges) UpdateTx(_ context.Context, _ pgx.Tx, e *models.Exchange) error {
	if _, ok := r.m.st.exchanges[e.ID]; !ok {
		return pgx.ErrNoRows
	}
	r.m.st.exchanges[e.ID] = *e
	return nil
}

func (r *MemExchanges) ListRequestedByItem(_ context.Context, _ pgx.Tx, itemID uuid.UUID) ([]*models.Exchange, error) {
	var out []*models.Exchange
	for _, e := range r.m.st.exchanges {
		if e.ItemID == itemID && e.Status == models.ExchangeStatusRequested {
			out = append(out, &e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemExchanges) CountCompletedByRequester(_ context.Context, _ pgx.Tx, uid uuid.UUID) (int, error) {
	n := 0
	for _, e := range r.m.st.exchanges {
		if e.RequesterID == uid && e.Status == models.ExchangeStatusCompleted {
			n++
		}
	}
	return n, nil
}

func (r *MemExchanges) GetByID(_ context.Context, id uuid.UUID) (*models.Exchange, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	e, ok := r.m.st.exchanges[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &e, nil
}

func (r *MemExchanges) ListByUser(_ context.Context, uid uuid.UUID, limit int) ([]*models.Exchange, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.Exchange
	for _, e := range r.m.st.exchanges {
		if e.IsParty(uid) {
			out = append(out, &e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
