package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tradepost-backend/pkg/enums"
)

// Offer is a buyer's proposed price for a listing. Amount is in minor units.
type Offer struct {
	ID                 uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ListingID          uuid.UUID         `gorm:"column:listing_id;type:uuid;not null"`
	BuyerID            uuid.UUID         `gorm:"column:buyer_id;type:uuid;not null"`
	SellerID           uuid.UUID         `gorm:"column:seller_id;type:uuid;not null"`
	Amount             int64             `gorm:"column:amount;not null"`
	Currency           string            `gorm:"column:currency;type:text;not null"`
	Message            *string           `gorm:"column:message;type:text"`
	Contingency        *string           `gorm:"column:contingency;type:text"`
	TransportIncluded  bool              `gorm:"column:transport_included;not null;default:false"`
	InspectionIncluded bool              `gorm:"column:inspection_included;not null;default:false"`
	Status             enums.OfferStatus `gorm:"column:status;type:offer_status;not null;default:'pending'"`
	ExpiresAt          time.Time         `gorm:"column:expires_at;type:timestamptz;not null"`
	CreatedAt          time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

// OfferEvent is an append-only record of one step in an offer's negotiation.
// ActorID is nil for system transitions such as expiry.
type OfferEvent struct {
	ID        uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OfferID   uuid.UUID            `gorm:"column:offer_id;type:uuid;not null"`
	Type      enums.OfferEventType `gorm:"column:type;type:offer_event_type;not null"`
	ActorID   *uuid.UUID           `gorm:"column:actor_id;type:uuid"`
	Payload   json.RawMessage      `gorm:"column:payload;type:jsonb;not null"`
	CreatedAt time.Time            `gorm:"column:created_at;autoCreateTime"`
}
