package execution

import (
	"github.com/google/uuid"
	"github.com/riverqueue/river"
)

// CompletionRewardArgs is enqueued in the same transaction that completes an
// exchange. Everything the worker needs is captured at commit time.
type CompletionRewardArgs struct {
	ExchangeID       uuid.UUID  `json:"exchange_id"`
	Type             string     `json:"type"`
	RequesterID      uuid.UUID  `json:"requester_id"`
	OwnerID          uuid.UUID  `json:"owner_id"`
	RatedBy          *uuid.UUID `json:"rated_by,omitempty"`
	Rating           *int       `json:"rating,omitempty"`
	FirstTransaction bool       `json:"first_transaction"`
	Timeliness       string     `json:"timeliness,omitempty"`
}

func (CompletionRewardArgs) Kind() string { return "exchange_completion_reward" }

func (CompletionRewardArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{MaxAttempts: 10}
}

// RatedUser returns the party who received the rating.
func (a CompletionRewardArgs) RatedUser() uuid.UUID {
	if a.RatedBy != nil && *a.RatedBy == a.OwnerID {
		return a.RequesterID
	}
	return a.OwnerID
}

type LatePenaltyArgs struct {
	ExchangeID  uuid.UUID `json:"exchange_id"`
	RequesterID uuid.UUID `json:"requester_id"`
	DaysLate    int       `json:"days_late"`
}

func (LatePenaltyArgs) Kind() string { return "late_return_penalty" }

type CancellationPenaltyArgs struct {
	ExchangeID  uuid.UUID `json:"exchange_id"`
	RequesterID uuid.UUID `json:"requester_id"`
}

func (CancellationPenaltyArgs) Kind() string { return "cancellation_penalty" }
