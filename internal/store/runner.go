package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrContention is returned once a transaction has been retried the maximum
// number of times and still conflicts with concurrent writers.
var ErrContention = errors.New("transaction contention, retry later")

const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// Beginner is satisfied by *pgxpool.Pool and pgx.Tx.
type Beginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// TxRunner executes fn inside one atomic transaction. fn may be invoked more
// than once, so it must not have effects outside the transaction.
type TxRunner interface {
	InTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// Runner runs SERIALIZABLE transactions and re-executes them on
// serialization failures or deadlocks with exponential backoff.
type Runner struct {
	db          Beginner
	maxAttempts int
	backoff     time.Duration
	log         *slog.Logger
}

func NewRunner(db Beginner, maxAttempts int, backoff time.Duration, log *slog.Logger) *Runner {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Runner{db: db, maxAttempts: maxAttempts, backoff: backoff, log: log}
}

var _ TxRunner = (*Runner)(nil)

func (r *Runner) InTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		err := pgx.BeginTxFunc(ctx, r.db, pgx.TxOptions{IsoLevel: pgx.Serializable}, fn)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		lastErr = err
		if attempt == r.maxAttempts {
			break
		}
		delay := r.delay(attempt)
		r.log.Warn("transaction conflict, retrying", "attempt", attempt, "delay", delay, "error", err)
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return fmt.Errorf("%w: %d attempts: %v", ErrContention, r.maxAttempts, lastErr)
}

func (r *Runner) delay(attempt int) time.Duration {
	if r.backoff <= 0 {
		return 0
	}
	d := r.backoff << (attempt - 1)
	return d + rand.N(r.backoff)
}

// IsRetryable reports whether err is a serialization failure or deadlock.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == codeSerializationFailure || pgErr.Code == codeDeadlockDetected
}
