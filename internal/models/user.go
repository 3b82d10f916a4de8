package models

import (
	"time"

	"github.com/google/uuid"
)

// SystemPlatformUserID owns the platform wallet that collects transaction fees.
var SystemPlatformUserID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"`
	TrustScore   int       `json:"trust_score"`
	TrustTier    string    `json:"trust_tier"`
	IsVerified   bool      `json:"is_verified"`
	Borrowed     int       `json:"borrowed"`
	Lent         int       `json:"lent"`
	RatingSum    int       `json:"rating_sum"`
	TotalRatings int       `json:"total_ratings"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// AverageRating returns the mean received rating, or 0 when unrated.
func (u *User) AverageRating() float64 {
	if u.TotalRatings == 0 {
		return 0
	}
	return float64(u.RatingSum) / float64(u.TotalRatings)
}
