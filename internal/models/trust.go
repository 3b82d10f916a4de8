package models

import (
	"time"

	"github.com/google/uuid"
)

// Trust history type enums.
const (
	TrustEventInitial      = "initial"
	TrustEventVerification = "verification"
	TrustEventTransaction  = "transaction"
	TrustEventRating       = "rating"
	TrustEventLateReturn   = "late_return"
	TrustEventDispute      = "dispute"
	TrustEventCancellation = "cancellation"
	TrustEventFailed       = "failed_transaction"
	TrustEventAdjustment   = "adjustment"
)

type TrustScoreHistory struct {
	ID             uuid.UUID      `json:"id"`
	UID            uuid.UUID      `json:"uid"`
	PreviousScore  int            `json:"previous_score"`
	NewScore       int            `json:"new_score"`
	Change         int            `json:"change"`
	Reason         string         `json:"reason"`
	Type           string         `json:"type"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	IdempotencyKey *string        `json:"-"`
	CreatedAt      time.Time      `json:"created_at"`
}
