package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tradepost-backend/pkg/enums"
)

// Transaction is the single financial record materialized for one confirmed
// payment intent. Monetary columns are minor units and
// PlatformFee + SellerReceives always equals FinalPrice.
type Transaction struct {
	ID                uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PaymentIntentID   string                  `gorm:"column:payment_intent_id;type:text;not null;uniqueIndex:ux_transactions_payment_intent_id"`
	ListingID         uuid.UUID               `gorm:"column:listing_id;type:uuid;not null"`
	OfferID           *uuid.UUID              `gorm:"column:offer_id;type:uuid"`
	BuyerID           uuid.UUID               `gorm:"column:buyer_id;type:uuid;not null"`
	SellerID          uuid.UUID               `gorm:"column:seller_id;type:uuid;not null"`
	FinalPrice        int64                   `gorm:"column:final_price;not null"`
	PlatformFee       int64                   `gorm:"column:platform_fee;not null"`
	SellerReceives    int64                   `gorm:"column:seller_receives;not null"`
	Currency          string                  `gorm:"column:currency;type:text;not null"`
	Status            enums.TransactionStatus `gorm:"column:status;type:transaction_status;not null"`
	EscrowReleaseDate time.Time               `gorm:"column:escrow_release_date;type:timestamptz;not null"`
	CompletedAt       *time.Time              `gorm:"column:completed_at;type:timestamptz"`
	CreatedAt         time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
