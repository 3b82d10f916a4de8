// Package testutil provides an in-memory ledger store for service tests.
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"

	"github.com/lendly/backend/internal/events"
	"github.com/lendly/backend/internal/models"
)

// MemStore serialises transactions behind one mutex and restores a snapshot
// when fn fails, so a failed transaction leaves no partial writes. Repository
// views must only be called inside InTx, except the non-transactional reads
// (Get, GetByID, List*), which lock on their own.
type MemStore struct {
	mu sync.Mutex
	st *memState
	// CommitErr, when non-nil, is returned for the next N transactions after fn succeeds and their writes are discarded.
	CommitErr   error
	CommitFails int
}

type memState struct {
	users     map[uuid.UUID]models.User
	items     map[uuid.UUID]models.Item
	exchanges map[uuid.UUID]models.Exchange
	wallets   map[uuid.UUID]models.Wallet
	coinTxs   []models.CoinTransaction
	trustHist []models.TrustScoreHistory
	events    []events.Event
	jobs      []river.JobArgs
}

func NewMemStore() *MemStore {
	return &MemStore{st: &memState{
		users:     make(map[uuid.UUID]models.User),
		items:     make(map[uuid.UUID]models.Item),
		exchanges: make(map[uuid.UUID]models.Exchange),
		wallets:   make(map[uuid.UUID]models.Wallet),
	}}
}

func (s *memState) clone() *memState {
	cp := &memState{
		users:     make(map[uuid.UUID]models.User, len(s.users)),
		items:     make(map[uuid.UUID]models.Item, len(s.items)),
		exchanges: make(map[uuid.UUID]models.Exchange, len(s.exchanges)),
		wallets:   make(map[uuid.UUID]models.Wallet, len(s.wallets)),
		coinTxs:   append([]models.CoinTransaction(nil), s.coinTxs...),
		trustHist: append([]models.TrustScoreHistory(nil), s.trustHist...),
		events:    append([]events.Event(nil), s.events...),
		jobs:      append([]river.JobArgs(nil), s.jobs...),
	}
	for k, v := range s.users {
		cp.users[k] = v
	}
	for k, v := range s.items {
		cp.items[k] = v
	}
	for k, v := range s.exchanges {
		cp.exchanges[k] = v
	}
	for k, v := range s.wallets {
		cp.wallets[k] = v
	}
	return cp
}

// InTx runs fn with a nil pgx.Tx.
func (m *MemStore) InTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	snapshot := m.st.clone()
	if err := fn(nil); err != nil {
		m.st = snapshot
		return err
	}
	if m.CommitErr != nil && m.CommitFails > 0 {
		m.CommitFails--
		m.st = snapshot
		return m.CommitErr
	}
	return nil
}

// PublishTx implements events.Publisher; events roll back with the transaction.
func (m *MemStore) PublishTx(_ context.Context, _ pgx.Tx, evs ...events.Event) error {
	m.st.events = append(m.st.events, evs...)
	return nil
}

// InsertTx records a job; usable as events.InsertTxFunc.
func (m *MemStore) InsertTx(_ context.Context, _ pgx.Tx, args river.JobArgs) error {
	m.st.jobs = append(m.st.jobs, args)
	return nil
}

// ---------------------------------------------------------------------------
// Seeding and inspection
// ---------------------------------------------------------------------------

func (m *MemStore) SeedUser(u models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	m.st.users[u.ID] = u
}

// NewUser seeds a user with the given trust score and returns its id.
func (m *MemStore) NewUser(score int) uuid.UUID {
	id := uuid.New()
	m.SeedUser(models.User{ID: id, Email: id.String() + "@campus.test", TrustScore: score})
	return id
}

func (m *MemStore) SeedItem(it models.Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.items[it.ID] = it
}

// NewItem seeds an available item owned by owner and returns its id.
func (m *MemStore) NewItem(owner uuid.UUID, price int64) uuid.UUID {
	id := uuid.New()
	m.SeedItem(models.Item{ID: id, OwnerID: owner, Name: "item " + id.String()[:8], Price: price, Available: true})
	return id
}

func (m *MemStore) SeedExchange(e models.Exchange) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.exchanges[e.ID] = e
}

// SeedWallet sets a wallet whose balance is entirely earned.
func (m *MemStore) SeedWallet(uid uuid.UUID, balance int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.wallets[uid] = models.Wallet{UID: uid, Balance: balance, TotalEarned: balance}
	if balance > 0 {
		m.st.coinTxs = append(m.st.coinTxs, models.CoinTransaction{
			ID: uuid.New(), UID: uid, Type: models.CoinTxEarned, Amount: balance,
			Reason: "seed", BalanceAfter: balance, CreatedAt: time.Now(),
		})
	}
}

func (m *MemStore) User(id uuid.UUID) models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.users[id]
}

func (m *MemStore) Item(id uuid.UUID) models.Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.items[id]
}

func (m *MemStore) Exchange(id uuid.UUID) models.Exchange {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.exchanges[id]
}

// AllExchanges returns every exchange, oldest first.
func (m *MemStore) AllExchanges() []models.Exchange {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Exchange, 0, len(m.st.exchanges))
	for _, e := range m.st.exchanges {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Wallet returns the wallet and whether it exists.
func (m *MemStore) Wallet(uid uuid.UUID) (models.Wallet, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.st.wallets[uid]
	return w, ok
}

func (m *MemStore) CoinTxs(uid uuid.UUID) []models.CoinTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.CoinTransaction
	for _, c := range m.st.coinTxs {
		if c.UID == uid {
			out = append(out, c)
		}
	}
	return out
}

func (m *MemStore) TrustHistory(uid uuid.UUID) []models.TrustScoreHistory {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.TrustScoreHistory
	for _, h := range m.st.trustHist {
		if h.UID == uid {
			out = append(out, h)
		}
	}
	return out
}

func (m *MemStore) Events() []events.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]events.Event(nil), m.st.events...)
}

// EventsOfType filters recorded events by type.
func (m *MemStore) EventsOfType(typ string) []events.Event {
	var out []events.Event
	for _, ev := range m.Events() {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func (m *MemStore) Jobs() []river.JobArgs {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]river.JobArgs(nil), m.st.jobs...)
}

// TakeJobs returns the recorded jobs and clears the queue.
func (m *MemStore) TakeJobs() []river.JobArgs {
	m.mu.Lock()
	defer m.mu.Unlock()
	jobs := m.st.jobs
	m.st.jobs = nil
	return jobs
}
