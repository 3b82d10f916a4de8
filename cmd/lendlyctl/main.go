package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"

	"github.com/lendly/backend/internal/auth"
	"github.com/lendly/backend/internal/cli"
	"github.com/lendly/backend/internal/config"
	"github.com/lendly/backend/internal/events"
	"github.com/lendly/backend/internal/ledger"
	"github.com/lendly/backend/internal/repository"
	"github.com/lendly/backend/internal/store"
	"github.com/lendly/backend/internal/trust"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := cli.NewRootCommand(connect).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// connect opens the pool and an insert-only River client so events emitted by
// manual adjustments reach the notification worker of the running API.
func connect(ctx context.Context, opts *cli.RootOptions) (*cli.Env, func(), error) {
	cfg := config.Load()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.App.LogLevel}))

	url := opts.DatabaseURL
	if url == "" {
		url = cfg.DB.URL
	}
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("create pool: %w", err)
	}

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{Logger: logger})
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("create river client: %w", err)
	}
	publisher := events.NewRiverPublisher(func(ctx context.Context, tx pgx.Tx, args river.JobArgs) error {
		_, err := riverClient.InsertTx(ctx, tx, args, nil)
		return err
	})

	runner := store.NewRunner(pool, cfg.DB.TxMaxAttempts, cfg.DB.TxRetryBackoff, logger)
	users := repository.NewUserRepo(pool)
	ledgerSvc := ledger.NewService(runner, repository.NewWalletRepo(pool), repository.NewCoinTxRepo(pool), publisher, logger)
	trustSvc := trust.NewService(runner, users, repository.NewTrustHistoryRepo(pool), publisher, logger)
	env := &cli.Env{
		Ledger:    ledgerSvc,
		Trust:     trustSvc,
		Accounts:  auth.NewService(runner, users, trustSvc, ledgerSvc, cfg.Auth.JWTSecret, logger),
		Exchanges: repository.NewExchangeRepo(pool),
		Users:     users,
		Migrate:   func(ctx context.Context) error {
			return store.Migrate(ctx, pool)
		},
	}
	return env, pool.Close, nil
}
