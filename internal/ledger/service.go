package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lendly/backend/internal/events"
	"github.com/lendly/backend/internal/models"
	"github.com/lendly/backend/internal/store"
)

var (
	// ErrInsufficientBalance is returned when a deduction exceeds the wallet balance. Nothing is written.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInvalidAmount is returned for zero or negative amounts.
	ErrInvalidAmount = errors.New("amount must be a positive integer")
	// ErrWalletNotFound is returned for the nil user id; wallets are otherwise created on first use.
	ErrWalletNotFound = errors.New("wallet not found")
	// ErrAlreadyApplied is returned when an entry with the same idempotency key exists.
	ErrAlreadyApplied = errors.New("ledger entry already applied")
)

// WalletRepo is the minimal wallet repository the ledger needs.
type WalletRepo interface {
	Ensure(ctx context.Context, tx pgx.Tx, uid uuid.UUID) error
	GetForUpdate(ctx context.Context, tx pgx.Tx, uid uuid.UUID) (*models.Wallet, error)
	Get(ctx context.Context, uid uuid.UUID) (*models.Wallet, error)
	AddEarned(ctx context.Context, tx pgx.Tx, uid uuid.UUID, amount int64, at time.Time) (*models.Wallet, error)
	AddSpent(ctx context.Context, tx pgx.Tx, uid uuid.UUID, amount int64, at time.Time) (*models.Wallet, error)
}

// EntryRepo is the append-only coin transaction log.
type EntryRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, c *models.CoinTransaction) error
	ExistsByKey(ctx context.Context, tx pgx.Tx, key string) (bool, error)
	ListByUID(ctx context.Context, uid uuid.UUID, limit int) ([]*models.CoinTransaction, error)
}

// Request describes one balance mutation.
type Request struct {
	UID      uuid.UUID
	Amount   int64
	Reason   string
	Metadata map[string]any
	// IdempotencyKey is optional. When set, a second request with the same key fails with ErrAlreadyApplied.
	IdempotencyKey string
}

type Result struct {
	Wallet  *models.Wallet
	Entry   *models.CoinTransaction
	Applied int64
}

type Service interface {
	Award(ctx context.Context, req Request) (*Result, error)
	AwardTx(ctx context.Context, tx pgx.Tx, req Request) (*Result, error)
	Deduct(ctx context.Context, req Request) (*Result, error)
	DeductTx(ctx context.Context, tx pgx.Tx, req Request) (*Result, error)
	CreditTx(ctx context.Context, tx pgx.Tx, req Request) (*Result, error)
	Wallet(ctx context.Context, uid uuid.UUID) (*models.Wallet, error)
	History(ctx context.Context, uid uuid.UUID, limit int) ([]*models.CoinTransaction, error)
}

type service struct {
	tx        store.TxRunner
	wallets   WalletRepo
	entries   EntryRepo
	publisher events.Publisher
	now       func() time.Time
	log       *slog.Logger
}

func NewService(tx store.TxRunner, wallets WalletRepo, entries EntryRepo, publisher events.Publisher, log *slog.Logger) Service {
	if log == nil {
		log = slog.Default()
	}
	return &service{tx: tx, wallets: wallets, entries: entries, publisher: publisher, now: time.Now, log: log}
}

var _ Service = (*service)(nil)

func (s *service) Award(ctx context.Context, req Request) (res *Result, err error) {
	err = s.tx.InTx(ctx, func(tx pgx.Tx) error {
		res, err = s.AwardTx(ctx, tx, req)
		return err
	})
	return res, err
}

func (s *service) Deduct(ctx context.Context, req Request) (res *Result, err error) {
	err = s.tx.InTx(ctx, func(tx pgx.Tx) error {
		res, err = s.DeductTx(ctx, tx, req)
		return err
	})
	return res, err
}

// AwardTx credits min(balance+amount, MaxBalance) inside the caller's transaction.
// When the wallet is already at the cap nothing is written and Applied is 0.
func (s *service) AwardTx(ctx context.Context, tx pgx.Tx, req Request) (*Result, error) {
	w, err := s.prepare(ctx, tx, req)
	if err != nil {
		return nil, err
	}
	next := w.Balance + req.Amount
	if next > MaxBalance {
		next = MaxBalance
	}
	applied := next - w.Balance
	if applied <= 0 {
		s.log.Info("wallet at max balance, award skipped", "uid", req.UID, "reason", req.Reason)
		return &Result{Wallet: w}, nil
	}
	res, err := s.earn(ctx, tx, w, req, applied)
	if err != nil {
		return nil, err
	}
	if s.publisher != nil {
		ev := events.New(events.CoinsAwarded, req.UID, map[string]any{
			"amount":  applied,
			"reason":  req.Reason,
			"balance": res.Wallet.Balance,
		})
		if err := s.publisher.PublishTx(ctx, tx, ev); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// CreditTx credits the full amount without applying the balance cap. Used for
// refunds and settlement where coins move between wallets.
func (s *service) CreditTx(ctx context.Context, tx pgx.Tx, req Request) (*Result, error) {
	w, err := s.prepare(ctx, tx, req)
	if err != nil {
		return nil, err
	}
	return s.earn(ctx, tx, w, req, req.Amount)
}

func (s *service) DeductTx(ctx context.Context, tx pgx.Tx, req Request) (*Result, error) {
	w, err := s.prepare(ctx, tx, req)
	if err != nil {
		return nil, err
	}
	if w.Balance < req.Amount {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientBalance, w.Balance, req.Amount)
	}
	updated, err := s.wallets.AddSpent(ctx, tx, req.UID, req.Amount, s.now())
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInsufficientBalance
		}
		return nil, err
	}
	entry := s.entry(req, models.CoinTxSpent, req.Amount, w.Balance, updated.Balance)
	if err := s.entries.CreateTx(ctx, tx, entry); err != nil {
		return nil, err
	}
	return &Result{Wallet: updated, Entry: entry, Applied: req.Amount}, nil
}

func (s *service) earn(ctx context.Context, tx pgx.Tx, w *models.Wallet, req Request, amount int64) (*Result, error) {
	updated, err := s.wallets.AddEarned(ctx, tx, req.UID, amount, s.now())
	if err != nil {
		return nil, err
	}
	entry := s.entry(req, models.CoinTxEarned, amount, w.Balance, updated.Balance)
	if err := s.entries.CreateTx(ctx, tx, entry); err != nil {
		return nil, err
	}
	return &Result{Wallet: updated, Entry: entry, Applied: amount}, nil
}

// prepare validates the request, checks its idempotency key and returns the
// locked wallet, creating it on first use.
func (s *service) prepare(ctx context.Context, tx pgx.Tx, req Request) (*models.Wallet, error) {
	if req.Amount < MinTransaction {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAmount, req.Amount)
	}
	if req.UID == uuid.Nil {
		return nil, ErrWalletNotFound
	}
	if req.IdempotencyKey != "" {
		exists, err := s.entries.ExistsByKey(ctx, tx, req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyApplied, req.IdempotencyKey)
		}
	}
	if err := s.wallets.Ensure(ctx, tx, req.UID); err != nil {
		return nil, err
	}
	return s.wallets.GetForUpdate(ctx, tx, req.UID)
}

func (s *service) entry(req Request, typ string, amount, before, after int64) *models.CoinTransaction {
	e := &models.CoinTransaction{
		ID:            uuid.New(),
		UID:           req.UID,
		Type:          typ,
		Amount:        amount,
		Reason:        req.Reason,
		Metadata:      req.Metadata,
		BalanceBefore: before,
		BalanceAfter:  after,
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		e.IdempotencyKey = &key
	}
	return e
}

// Wallet returns the user's wallet, creating an empty one on first access.
func (s *service) Wallet(ctx context.Context, uid uuid.UUID) (*models.Wallet, error) {
	w, err := s.wallets.Get(ctx, uid)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	err = s.tx.InTx(ctx, func(tx pgx.Tx) error {
		if err := s.wallets.Ensure(ctx, tx, uid); err != nil {
			return err
		}
		w, err = s.wallets.GetForUpdate(ctx, tx, uid)
		return err
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (s *service) History(ctx context.Context, uid uuid.UUID, limit int) ([]*models.CoinTransaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.entries.ListByUID(ctx, uid, limit)
}
