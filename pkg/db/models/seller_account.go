package models

import (
	"time"

	"github.com/google/uuid"
)

// SellerAccount caches the payout readiness of a seller's connected account.
type SellerAccount struct {
	UserID           uuid.UUID  `gorm:"column:user_id;type:uuid;primaryKey"`
	StripeAccountID  string     `gorm:"column:stripe_account_id;type:text;not null;uniqueIndex"`
	ChargesEnabled   bool       `gorm:"column:charges_enabled;not null;default:false"`
	PayoutsEnabled   bool       `gorm:"column:payouts_enabled;not null;default:false"`
	DetailsSubmitted bool       `gorm:"column:details_submitted;not null;default:false"`
	SyncedAt         *time.Time `gorm:"column:synced_at;type:timestamptz"`
	CreatedAt        time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// FullySetUp reports whether the account can accept charges and receive payouts.
func (a SellerAccount) FullySetUp() bool {
	return a.ChargesEnabled && a.PayoutsEnabled && a.DetailsSubmitted
}
