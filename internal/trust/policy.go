package trust

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/lendly/backend/internal/models"
)

// Score bounds.
const (
	MinScore      = 0
	MaxScore      = 100
	NewUserScore  = 50
	VerifiedScore = 70
	// MaxChange caps the magnitude of any single event.
	MaxChange = 30
)

// Event deltas.
const (
	DeltaBorrow       = 3
	DeltaLend         = 4
	DeltaRent         = 3
	DeltaSell         = 2
	DeltaOnTimeReturn = 5
	DeltaEarlyReturn  = 7
	DeltaFailed       = -10
	DeltaDisputeWon   = -15
	DeltaDisputeLost  = -20
	DeltaCancellation = -5
	DeltaLate1Day     = -2
	DeltaLate3Days    = -5
	DeltaLate7Days    = -10
	DeltaLate14Days   = -15
	DeltaRating5Star  = 3
	DeltaRating4Star  = 1
	DeltaRating2Star  = -2
	DeltaRating1Star  = -5
)

// Timeliness of a returned item relative to the agreed duration.
type Timeliness string

const (
	TimelinessUnknown Timeliness = ""
	TimelinessEarly   Timeliness = "early"
	TimelinessOnTime  Timeliness = "on_time"
	TimelinessLate    Timeliness = "late"
)

type Tier struct {
	Name  string `json:"name"`
	Badge string `json:"badge"`
	Min   int    `json:"min"`
}

var tiers = []Tier{
	{Name: "Excellent", Badge: "gold", Min: 90},
	{Name: "Good", Badge: "silver", Min: 70},
	{Name: "Average", Badge: "bronze", Min: 50},
	{Name: "Below Average", Badge: "warning", Min: 30},
	{Name: "Poor", Badge: "restricted", Min: MinScore},
}

// TierFor maps a score to its band.
func TierFor(score int) Tier {
	for _, t := range tiers {
		if score >= t.Min {
			return t
		}
	}
	return tiers[len(tiers)-1]
}

// Apply caps change to ±MaxChange and clamps the result to [MinScore, MaxScore].
// It returns the new score and the change actually applied.
func Apply(current, change int) (next, applied int) {
	change = max(-MaxChange, min(MaxChange, change))
	next = max(MinScore, min(MaxScore, current+change))
	return next, next - current
}

// CompletionDelta is the base reward for a completed exchange. The owner is
// always credited as a lender.
func CompletionDelta(exchangeType string, asOwner bool) int {
	if asOwner {
		return DeltaLend
	}
	switch exchangeType {
	case models.ExchangeTypeBorrow:
		return DeltaBorrow
	case models.ExchangeTypeLend:
		return DeltaLend
	case models.ExchangeTypeExchange:
		return DeltaRent
	case models.ExchangeTypeDonate:
		return DeltaSell
	default:
		return 0
	}
}

func TimelinessBonus(t Timeliness) int {
	switch t {
	case TimelinessEarly:
		return DeltaEarlyReturn
	case TimelinessOnTime:
		return DeltaOnTimeReturn
	default:
		return 0
	}
}

func RatingDelta(stars int) int {
	switch stars {
	case 5:
		return DeltaRating5Star
	case 4:
		return DeltaRating4Star
	case 2:
		return DeltaRating2Star
	case 1:
		return DeltaRating1Star
	default:
		return 0
	}
}

// LatePenalty grades lateness: 1 day -2, 3+ days -5, 7+ days -10, 14+ days -15.
func LatePenalty(daysLate int) int {
	switch {
	case daysLate >= 14:
		return DeltaLate14Days
	case daysLate >= 7:
		return DeltaLate7Days
	case daysLate >= 3:
		return DeltaLate3Days
	case daysLate >= 1:
		return DeltaLate1Day
	default:
		return 0
	}
}

func DisputeDelta(won bool) int {
	if won {
		return DeltaDisputeWon
	}
	return DeltaDisputeLost
}

// ---------------------------------------------------------------------------
// Adjustment builders
// ---------------------------------------------------------------------------

func exchangeKey(exchangeID uuid.UUID, uid uuid.UUID, step string) string {
	return fmt.Sprintf("exchange:%s:%s:%s", exchangeID, uid, step)
}

// Completion builds the completion adjustment for one party, including the return-timeliness bonus for the requester.
func Completion(exchangeID, uid uuid.UUID, exchangeType string, asOwner bool, t Timeliness) Adjustment {
	change := CompletionDelta(exchangeType, asOwner)
	reason := fmt.Sprintf("Completed %s transaction", exchangeType)
	if asOwner {
		reason = "Completed lending transaction"
	} else if bonus := TimelinessBonus(t); bonus > 0 {
		change += bonus
		reason += fmt.Sprintf(" (%s return)", t)
	}
	return Adjustment{
		Change:         change,
		Reason:         reason,
		Type:           models.TrustEventTransaction,
		Metadata:       map[string]any{"transactionId": exchangeID.String(), "timeliness": string(t)},
		IdempotencyKey: exchangeKey(exchangeID, uid, "completion"),
	}
}

func Rating(exchangeID, uid, fromUID uuid.UUID, stars int) Adjustment {
	return Adjustment{
		Change:         RatingDelta(stars),
		Reason:         fmt.Sprintf("Received %d-star rating", stars),
		Type:           models.TrustEventRating,
		Metadata:       map[string]any{"transactionId": exchangeID.String(), "rating": stars, "fromUid": fromUID.String()},
		IdempotencyKey: exchangeKey(exchangeID, uid, "rating"),
	}
}

func LateReturn(exchangeID, uid uuid.UUID, daysLate int) Adjustment {
	return Adjustment{
		Change:         LatePenalty(daysLate),
		Reason:         fmt.Sprintf("Late return (%d days)", daysLate),
		Type:           models.TrustEventLateReturn,
		Metadata:       map[string]any{"transactionId": exchangeID.String(), "daysLate": daysLate},
		IdempotencyKey: exchangeKey(exchangeID, uid, fmt.Sprintf("late:%d", daysLate)),
	}
}

func Cancellation(exchangeID, uid uuid.UUID) Adjustment {
	return Adjustment{
		Change:         DeltaCancellation,
		Reason:         "Cancelled an accepted transaction",
		Type:           models.TrustEventCancellation,
		Metadata:       map[string]any{"transactionId": exchangeID.String()},
		IdempotencyKey: exchangeKey(exchangeID, uid, "cancellation"),
	}
}

// Dispute builds the outcome of a resolved dispute. A won dispute still carries a partial penalty.
func Dispute(exchangeID, uid uuid.UUID, won bool) Adjustment {
	reason := "Dispute lost"
	if won {
		reason = "Dispute raised (resolved in favour)"
	}
	return Adjustment{
		Change:         DisputeDelta(won),
		Reason:         reason,
		Type:           models.TrustEventDispute,
		Metadata:       map[string]any{"transactionId": exchangeID.String(), "won": won},
		IdempotencyKey: exchangeKey(exchangeID, uid, "dispute"),
	}
}

func FailedTransaction(exchangeID, uid uuid.UUID) Adjustment {
	return Adjustment{
		Change:         DeltaFailed,
		Reason:         "Failed transaction",
		Type:           models.TrustEventFailed,
		Metadata:       map[string]any{"transactionId": exchangeID.String()},
		IdempotencyKey: exchangeKey(exchangeID, uid, "failed"),
	}
}
