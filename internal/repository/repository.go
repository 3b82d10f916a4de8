// Package repository holds the Postgres implementations of the service repositories.
package repository

import (
	"github.com/lendly/backend/internal/auth"
	"github.com/lendly/backend/internal/dashboard"
	"github.com/lendly/backend/internal/exchange"
	"github.com/lendly/backend/internal/ledger"
	"github.com/lendly/backend/internal/registry"
	"github.com/lendly/backend/internal/trust"
)

var (
	_ ledger.WalletRepo      = (*WalletRepo)(nil)
	_ ledger.EntryRepo       = (*CoinTxRepo)(nil)
	_ trust.UserRepo         = (*UserRepo)(nil)
	_ trust.HistoryRepo      = (*TrustHistoryRepo)(nil)
	_ exchange.ItemRepo      = (*ItemRepo)(nil)
	_ exchange.ExchangeRepo  = (*ExchangeRepo)(nil)
	_ exchange.UserStatsRepo = (*UserRepo)(nil)
	_ auth.Repository        = (*UserRepo)(nil)
	_ registry.Repository    = (*ItemRepo)(nil)
	_ dashboard.Users        = (*UserRepo)(nil)
)
