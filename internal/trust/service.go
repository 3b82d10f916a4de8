package trust

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
	ErrUserNotFound = errors.New("user not found")
	// ErrAlreadyApplied is returned when a history row with the same idempotency key exists.
	ErrAlreadyApplied  = errors.New("trust adjustment already applied")
	ErrAlreadyVerified = errors.New("user already verified")
)

// UserRepo reads and writes the score columns on users.
type UserRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.User, error)
	UpdateTrust(ctx context.Context, tx pgx.Tx, id uuid.UUID, score int, tier string, at time.Time) error
	MarkVerified(ctx context.Context, tx pgx.Tx, id uuid.UUID, at time.Time) error
}

// HistoryRepo is the append-only score audit trail.
type HistoryRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, h *models.TrustScoreHistory) error
	ExistsByKey(ctx context.Context, tx pgx.Tx, key string) (bool, error)
	ListByUID(ctx context.Context, uid uuid.UUID, limit int) ([]*models.TrustScoreHistory, error)
}

// Adjustment is one scoring event.
type Adjustment struct {
	Change         int
	Reason         string
	Type           string
	Metadata       map[string]any
	IdempotencyKey string
}

type Result struct {
	Previous int
	Score    int
	Change   int
	Tier     Tier
	Entry    *models.TrustScoreHistory
}

type Summary struct {
	Score   int                         `json:"score"`
	Tier    Tier                        `json:"tier"`
	History []*models.TrustScoreHistory `json:"history"`
}

type Service interface {
	Adjust(ctx context.Context, uid uuid.UUID, adj Adjustment) (*Result, error)
	AdjustTx(ctx context.Context, tx pgx.Tx, uid uuid.UUID, adj Adjustment) (*Result, error)
	InitializeTx(ctx context.Context, tx pgx.Tx, uid uuid.UUID) error
	VerifyTx(ctx context.Context, tx pgx.Tx, uid uuid.UUID) (*Result, error)
	Summary(ctx context.Context, uid uuid.UUID, limit int) (*Summary, error)
}

type service struct {
	tx        store.TxRunner
	users     UserRepo
	history   HistoryRepo
	publisher events.Publisher
	now       func() time.Time
	log       *slog.Logger
}

func NewService(tx store.TxRunner, users UserRepo, history HistoryRepo, publisher events.Publisher, log *slog.Logger) Service {
	if log == nil {
		log = slog.Default()
	}
	return &service{tx: tx, users: users, history: history, publisher: publisher, now: time.Now, log: log}
}

var _ Service = (*service)(nil)

func (s *service) Adjust(ctx context.Context, uid uuid.UUID, adj Adjustment) (res *Result, err error) {
	err = s.tx.InTx(ctx, func(tx pgx.Tx) error {
		res, err = s.AdjustTx(ctx, tx, uid, adj)
		return err
	})
	return res, err
}

// AdjustTx applies one event as a read-modify-write within tx and appends a history row.
func (s *service) AdjustTx(ctx context.Context, tx pgx.Tx, uid uuid.UUID, adj Adjustment) (*Result, error) {
	if adj.IdempotencyKey != "" {
		exists, err := s.history.ExistsByKey(ctx, tx, adj.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyApplied, adj.IdempotencyKey)
		}
	}
	u, err := s.lockUser(ctx, tx, uid)
	if err != nil {
		return nil, err
	}
	next, applied := Apply(u.TrustScore, adj.Change)
	return s.write(ctx, tx, uid, u.TrustScore, next, applied, adj)
}

// InitializeTx records the starting score for a new user.
func (s *service) InitializeTx(ctx context.Context, tx pgx.Tx, uid uuid.UUID) error {
	if _, err := s.lockUser(ctx, tx, uid); err != nil {
		return err
	}
	_, err := s.write(ctx, tx, uid, NewUserScore, NewUserScore, 0, Adjustment{
		Reason:         "Account created",
		Type:           models.TrustEventInitial,
		IdempotencyKey: fmt.Sprintf("user:%s:initial", uid),
	})
	return err
}

// VerifyTx moves the score to VerifiedScore on first verification. The move
// is still subject to MaxChange and never lowers a higher score.
func (s *service) VerifyTx(ctx context.Context, tx pgx.Tx, uid uuid.UUID) (*Result, error) {
	u, err := s.lockUser(ctx, tx, uid)
	if err != nil {
		return nil, err
	}
	if u.IsVerified {
		return nil, ErrAlreadyVerified
	}
	if err := s.users.MarkVerified(ctx, tx, uid, s.now()); err != nil {
		return nil, err
	}
	target := max(u.TrustScore, VerifiedScore)
	next, applied := Apply(u.TrustScore, target-u.TrustScore)
	return s.write(ctx, tx, uid, u.TrustScore, next, applied, Adjustment{
		Reason:         "Identity verified",
		Type:           models.TrustEventVerification,
		IdempotencyKey: fmt.Sprintf("user:%s:verification", uid),
	})
}

func (s *service) lockUser(ctx context.Context, tx pgx.Tx, uid uuid.UUID) (*models.User, error) {
	u, err := s.users.GetForUpdate(ctx, tx, uid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, uid)
		}
		return nil, err
	}
	return u, nil
}

func (s *service) write(ctx context.Context, tx pgx.Tx, uid uuid.UUID, prev, next, applied int, adj Adjustment) (*Result, error) {
	tier := TierFor(next)
	if err := s.users.UpdateTrust(ctx, tx, uid, next, tier.Name, s.now()); err != nil {
		return nil, err
	}
	entry := &models.TrustScoreHistory{
		ID:            uuid.New(),
		UID:           uid,
		PreviousScore: prev,
		NewScore:      next,
		Change:        applied,
		Reason:        adj.Reason,
		Type:          adj.Type,
		Metadata:      adj.Metadata,
	}
	if adj.IdempotencyKey != "" {
		key := adj.IdempotencyKey
		entry.IdempotencyKey = &key
	}
	if err := s.history.CreateTx(ctx, tx, entry); err != nil {
		return nil, err
	}
	if applied != 0 && s.publisher != nil {
		ev := events.New(events.TrustScoreChanged, uid, map[string]any{
			"previousScore": prev,
			"newScore":      next,
			"change":        applied,
			"reason":        adj.Reason,
			"tier":          tier.Name,
		})
		if err := s.publisher.PublishTx(ctx, tx, ev); err != nil {
			return nil, err
		}
	}
	return &Result{Previous: prev, Score: next, Change: applied, Tier: tier, Entry: entry}, nil
}

// Summary returns the current score, its tier and the most recent history.
func (s *service) Summary(ctx context.Context, uid uuid.UUID, limit int) (*Summary, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	u, err := s.users.GetByID(ctx, uid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, uid)
		}
		return nil, err
	}
	hist, err := s.history.ListByUID(ctx, uid, limit)
	if err != nil {
		return nil, err
	}
	return &Summary{Score: u.TrustScore, Tier: TierFor(u.TrustScore), History: hist}, nil
}
