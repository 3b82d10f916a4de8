package models

import (
	"time"

	"github.com/google/uuid"
)

type Item struct {
	ID                uuid.UUID  `json:"id"`
	OwnerID           uuid.UUID  `json:"owner_id"`
	Name              string     `json:"name"`
	Price             int64      `json:"price"`
	Available         bool       `json:"available"`
	CurrentBorrowerID *uuid.UUID `json:"current_borrower_id,omitempty"`
	BoostedUntil      *time.Time `json:"boosted_until,omitempty"`
	FeaturedUntil     *time.Time `json:"featured_until,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}
