package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tradepost-backend/pkg/enums"
)

// Listing is the item a seller puts up for negotiation. Catalog fields live
// elsewhere; this row only carries what offers and settlement need.
type Listing struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SellerID          uuid.UUID           `gorm:"column:seller_id;type:uuid;not null"`
	Title             string              `gorm:"column:title;type:text;not null"`
	AskingPrice       int64               `gorm:"column:asking_price;not null"`
	Currency          string              `gorm:"column:currency;type:text;not null;default:'usd'"`
	Status            enums.ListingStatus `gorm:"column:status;type:listing_status;not null;default:'ACTIVE'"`
	SoldPrice         *int64              `gorm:"column:sold_price"`
	SoldAt            *time.Time          `gorm:"column:sold_at;type:timestamptz"`
	SoldTransactionID *uuid.UUID          `gorm:"column:sold_transaction_id;type:uuid"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
