package models

import (
	"time"

	"github.com/google/uuid"
)

// Coin transaction type enums.
const (
	CoinTxEarned = "earned"
	CoinTxSpent  = "spent"
)

type Wallet struct {
	UID              uuid.UUID  `json:"uid"`
	Balance          int64      `json:"balance"`
	TotalEarned      int64      `json:"total_earned"`
	TotalSpent       int64      `json:"total_spent"`
	TransactionCount int        `json:"transaction_count"`
	LastEarnedAt     *time.Time `json:"last_earned_at,omitempty"`
	LastSpentAt      *time.Time `json:"last_spent_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

type CoinTransaction struct {
	ID             uuid.UUID      `json:"id"`
	UID            uuid.UUID      `json:"uid"`
	Type           string         `json:"type"`
	Amount         int64          `json:"amount"`
	Reason         string         `json:"reason"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	BalanceBefore  int64          `json:"balance_before"`
	BalanceAfter   int64          `json:"balance_after"`
	IdempotencyKey *string        `json:"-"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Signed returns the amount as it affects the balance.
func (c *CoinTransaction) Signed() int64 {
	if c.Type == CoinTxSpent {
		return -c.Amount
	}
	return c.Amount
}
