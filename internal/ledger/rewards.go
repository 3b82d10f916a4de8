package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lendly/backend/internal/models"
)

// Balance limits.
const (
	MaxBalance     int64 = 1_000_000
	MinTransaction int64 = 1
)

// Coin rewards.
const (
	RewardVerification     int64 = 100
	RewardCompleteLend     int64 = 50
	RewardCompleteBorrow   int64 = 30
	RewardCompleteRent     int64 = 40
	RewardCompleteSale     int64 = 25
	RewardReferral         int64 = 75
	RewardDailyStreakBase  int64 = 5
	RewardDailyStreakMax   int64 = 25
	RewardFiveStarRating   int64 = 10
	RewardEarlyReturn      int64 = 15
	RewardFirstTransaction int64 = 100
)

// Coin costs.
const (
	CostListItem          int64 = 10
	CostBoostListing7d    int64 = 50
	CostFeaturedListing3d int64 = 75
	TransactionFeePercent int64 = 15
)

// Promotion periods bought by CostBoostListing7d and CostFeaturedListing3d.
const (
	BoostPeriod    = 7 * 24 * time.Hour
	FeaturedPeriod = 3 * 24 * time.Hour
)

// TransactionFee is the platform's share of value, rounded up.
func TransactionFee(value int64) int64 {
	if value <= 0 {
		return 0
	}
	return (value*TransactionFeePercent + 99) / 100
}

// CompletionReward returns the coins a party earns for completing an
// exchange. The item owner is always rewarded as a lender; the requester by
// exchange type.
func CompletionReward(exchangeType string, asOwner bool) (int64, string) {
	if asOwner {
		return RewardCompleteLend, "Completed lending transaction"
	}
	switch exchangeType {
	case models.ExchangeTypeBorrow:
		return RewardCompleteBorrow, "Completed borrowing transaction"
	case models.ExchangeTypeLend:
		return RewardCompleteLend, "Completed lending transaction"
	case models.ExchangeTypeExchange:
		return RewardCompleteRent, "Completed exchange transaction"
	case models.ExchangeTypeDonate:
		return RewardCompleteSale, "Completed donation transaction"
	default:
		return 0, ""
	}
}

// DailyStreakReward grows by the base amount per consecutive day up to the cap.
func DailyStreakReward(streakDays int) int64 {
	if streakDays < 1 {
		streakDays = 1
	}
	r := RewardDailyStreakBase * int64(streakDays)
	if r > RewardDailyStreakMax {
		return RewardDailyStreakMax
	}
	return r
}

// ListingCharge builds the deduction for publishing an item.
func ListingCharge(uid, itemID uuid.UUID) Request {
	return Request{
		UID:            uid,
		Amount:         CostListItem,
		Reason:         "Listed new item",
		Metadata:       map[string]any{"itemId": itemID.String()},
		IdempotencyKey: fmt.Sprintf("item:%s:listing", itemID),
	}
}

// BoostCharge builds the deduction for a seven day listing boost.
func BoostCharge(uid, itemID uuid.UUID) Request {
	return Request{
		UID:      uid,
		Amount:   CostBoostListing7d,
		Reason:   "Boosted listing for 7 days",
		Metadata: map[string]any{"itemId": itemID.String()},
	}
}

// FeatureCharge builds the deduction for a three day featured listing.
func FeatureCharge(uid, itemID uuid.UUID) Request {
	return Request{
		UID:      uid,
		Amount:   CostFeaturedListing3d,
		Reason:   "Featured listing for 3 days",
		Metadata: map[string]any{"itemId": itemID.String()},
	}
}

// StreakAward credits the daily streak reward. At most one award per user per UTC day.
func StreakAward(uid uuid.UUID, streakDays int, day time.Time) Request {
	return Request{
		UID:            uid,
		Amount:         DailyStreakReward(streakDays),
		Reason:         fmt.Sprintf("Daily streak day %d", streakDays),
		Metadata:       map[string]any{"streakDays": streakDays},
		IdempotencyKey: fmt.Sprintf("user:%s:streak:%s", uid, day.UTC().Format(time.DateOnly)),
	}
}

// ReferralAward credits the referrer once per referred user.
func ReferralAward(referrer, referred uuid.UUID) Request {
	return Request{
		UID:            referrer,
		Amount:         RewardReferral,
		Reason:         "Referred a new user",
		Metadata:       map[string]any{"referredUserId": referred.String()},
		IdempotencyKey: fmt.Sprintf("referral:%s", referred),
	}
}
