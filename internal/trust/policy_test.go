package trust

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lendly/backend/internal/models"
)

func TestTierFor(t *testing.T) {
	cases := []struct {
		score int
		name  string
		badge string
	}{
		{100, "Excellent", "gold"},
		{90, "Excellent", "gold"},
		{89, "Good", "silver"},
		{70, "Good", "silver"},
		{69, "Average", "bronze"},
		{50, "Average", "bronze"},
		{49, "Below Average", "warning"},
		{30, "Below Average", "warning"},
		{29, "Poor", "restricted"},
		{0, "Poor", "restricted"},
	}
	for _, c := range cases {
		tier := TierFor(c.score)
		assert.Equal(t, c.name, tier.Name, "score %d", c.score)
		assert.Equal(t, c.badge, tier.Badge, "score %d", c.score)
	}
}

func TestApply(t *testing.T) {
	cases := []struct {
		current, change, next, applied int
	}{
		{50, 3, 53, 3},
		{98, 7, 100, 2},
		{4, -15, 0, -4},
		{80, -45, 50, -30},
		{10, 60, 40, 30},
		{50, 0, 50, 0},
	}
	for _, c := range cases {
		next, applied := Apply(c.current, c.change)
		assert.Equal(t, c.next, next, "Apply(%d, %d) next", c.current, c.change)
		assert.Equal(t, c.applied, applied, "Apply(%d, %d) applied", c.current, c.change)
	}
}

func TestLatePenalty(t *testing.T) {
	cases := map[int]int{0: 0, 1: -2, 2: -2, 3: -5, 6: -5, 7: -10, 13: -10, 14: -15, 60: -15}
	for days, want := range cases {
		assert.Equal(t, want, LatePenalty(days), "days late %d", days)
	}
}

func TestRatingDelta(t *testing.T) {
	assert.Equal(t, 3, RatingDelta(5))
	assert.Equal(t, 1, RatingDelta(4))
	assert.Equal(t, 0, RatingDelta(3))
	assert.Equal(t, -2, RatingDelta(2))
	assert.Equal(t, -5, RatingDelta(1))
}

func TestCompletionDelta(t *testing.T) {
	assert.Equal(t, DeltaBorrow, CompletionDelta(models.ExchangeTypeBorrow, false))
	assert.Equal(t, DeltaLend, CompletionDelta(models.ExchangeTypeLend, false))
	assert.Equal(t, DeltaRent, CompletionDelta(models.ExchangeTypeExchange, false))
	assert.Equal(t, DeltaSell, CompletionDelta(models.ExchangeTypeDonate, false))
	assert.Equal(t, DeltaLend, CompletionDelta(models.ExchangeTypeDonate, true))
	for _, typ := range []string{models.ExchangeTypeBorrow, models.ExchangeTypeLend, models.ExchangeTypeExchange, models.ExchangeTypeDonate} {
		d := CompletionDelta(typ, false)
		assert.True(t, d >= 2 && d <= 5, "%s delta %d outside +2..+5", typ, d)
	}
}

func TestCompletionAdjustment_TimelinessBonus(t *testing.T) {
	exID, uid := models.SystemPlatformUserID, models.SystemPlatformUserID

	early := Completion(exID, uid, models.ExchangeTypeBorrow, false, TimelinessEarly)
	assert.Equal(t, DeltaBorrow+DeltaEarlyReturn, early.Change)

	onTime := Completion(exID, uid, models.ExchangeTypeBorrow, false, TimelinessOnTime)
	assert.Equal(t, DeltaBorrow+DeltaOnTimeReturn, onTime.Change)

	late := Completion(exID, uid, models.ExchangeTypeBorrow, false, TimelinessLate)
	assert.Equal(t, DeltaBorrow, late.Change)

	owner := Completion(exID, uid, models.ExchangeTypeBorrow, true, TimelinessEarly)
	assert.Equal(t, DeltaLend, owner.Change, "timeliness bonus only applies to the borrower")
}
