package models

import (
	"time"

	"github.com/google/uuid"
)

// Exchange status enums.
const (
	ExchangeStatusRequested = "requested"
	ExchangeStatusAccepted  = "accepted"
	ExchangeStatusRejected  = "rejected"
	ExchangeStatusCompleted = "completed"
	ExchangeStatusCancelled = "cancelled"
)

// Exchange type enums.
const (
	ExchangeTypeBorrow   = "borrow"
	ExchangeTypeLend     = "lend"
	ExchangeTypeExchange = "exchange"
	ExchangeTypeDonate   = "donate"
)

// Exchange is the persisted row. Behaviour lives on the per-state variants in package exchange.
type Exchange struct {
	ID              uuid.UUID  `json:"id"`
	RequesterID     uuid.UUID  `json:"requester_id"`
	ItemOwnerID     uuid.UUID  `json:"item_owner_id"`
	ItemID          uuid.UUID  `json:"item_id"`
	Type            string     `json:"type"`
	Status          string     `json:"status"`
	ProposedPrice   int64      `json:"proposed_price"`
	ChargedAmount   int64      `json:"charged_amount"`
	Message         string     `json:"message,omitempty"`
	ResponseMessage string     `json:"response_message,omitempty"`
	DurationDays    *int       `json:"duration_days,omitempty"`
	IsLate          bool       `json:"is_late"`
	DaysLate        int        `json:"days_late,omitempty"`
	MarkedLateAt    *time.Time `json:"marked_late_at,omitempty"`
	RequesterRating *int       `json:"requester_rating,omitempty"`
	RequesterReview string     `json:"requester_review,omitempty"`
	OwnerRating     *int       `json:"owner_rating,omitempty"`
	OwnerReview     string     `json:"owner_review,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	AcceptedAt      *time.Time `json:"accepted_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`
	RejectedAt      *time.Time `json:"rejected_at,omitempty"`
}

// IsParty reports whether uid is the requester or the item owner.
func (e *Exchange) IsParty(uid uuid.UUID) bool {
	return e.RequesterID == uid || e.ItemOwnerID == uid
}
