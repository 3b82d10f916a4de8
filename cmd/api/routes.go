package main

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lendly/backend/internal/auth"
	"github.com/lendly/backend/internal/config"
	"github.com/lendly/backend/internal/dashboard"
	"github.com/lendly/backend/internal/events"
	"github.com/lendly/backend/internal/exchange"
	"github.com/lendly/backend/internal/execution"
	"github.com/lendly/backend/internal/handlers"
	"github.com/lendly/backend/internal/ledger"
	"github.com/lendly/backend/internal/ratelimit"
	"github.com/lendly/backend/internal/registry"
	"github.com/lendly/backend/internal/repository"
	"github.com/lendly/backend/internal/router"
	"github.com/lendly/backend/internal/services"
	"github.com/lendly/backend/internal/store"
	"github.com/lendly/backend/internal/trust"
)

// app holds the wired services shared by the HTTP routes and the River workers.
type app struct {
	handlers   router.Handlers
	tokens     auth.Service
	rewards    *execution.RewardProcessor
	dispatcher *services.Dispatcher
	logger     *slog.Logger
}

func newApp(cfg *config.Config, pool *pgxpool.Pool, insert events.InsertTxFunc, logger *slog.Logger) *app {
	runner := store.NewRunner(pool, cfg.DB.TxMaxAttempts, cfg.DB.TxRetryBackoff, logger)
	publisher := events.NewRiverPublisher(insert)

	userRepo := repository.NewUserRepo(pool)
	itemRepo := repository.NewItemRepo(pool)
	exchangeRepo := repository.NewExchangeRepo(pool)

	ledgerSvc := ledger.NewService(runner, repository.NewWalletRepo(pool), repository.NewCoinTxRepo(pool), publisher, logger)
	trustSvc := trust.NewService(runner, userRepo, repository.NewTrustHistoryRepo(pool), publisher, logger)
	authSvc := auth.NewService(runner, userRepo, trustSvc, ledgerSvc, cfg.Auth.JWTSecret, logger)
	itemSvc := registry.NewService(runner, itemRepo, ledgerSvc, logger)
	exchangeSvc := exchange.NewService(exchange.Deps{
		Tx:        runner,
		Items:     itemRepo,
		Exchanges: exchangeRepo,
		Users:     userRepo,
		Wallet:    ledgerSvc,
		Publisher: publisher,
		Insert:    insert,
		Logger:    logger,
	})

	validator, err := services.NewValidator()
	if err != nil {
		// Schemas are embedded; failure here is a build defect.
		slog.Error("Schema validator init failed", "error", err)
		os.Exit(1)
	}

	return &app{
		handlers: router.Handlers{
			Auth:      auth.NewHandler(authSvc, validator, logger),
			Items:     registry.NewHandler(itemSvc, validator, logger),
			Exchanges: &handlers.ExchangeHandler{
				Exchanges: exchangeSvc,
				Validator: validator,
				Logger:    logger,
			},
			Dashboard: dashboard.NewHandler(ledgerSvc, trustSvc, userRepo, logger),
		},
		tokens:     authSvc,
		rewards:    execution.NewRewardProcessor(ledgerSvc, trustSvc, logger),
		dispatcher: services.NewDispatcher(cfg.Notify.WebhookURL, logger),
		logger:     logger,
	}
}

// routes mounts the /api/v1 router behind the given limiter.
func (a *app) routes(limiter ratelimit.Limiter) http.Handler {
	return router.New(a.handlers, a.tokens, limiter, a.logger)
}
