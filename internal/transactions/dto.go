package transactions

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tradepost-backend/pkg/db/models"
	"github.com/angelmondragon/tradepost-backend/pkg/enums"
	"github.com/angelmondragon/tradepost-backend/pkg/money"
)

// TransactionDTO is the API shape of an escrow transaction. Amounts are
// reported in minor units with a formatted companion for display.
type TransactionDTO struct {
	ID                uuid.UUID               `json:"id"`
	PaymentIntentID   string                  `json:"payment_intent_id"`
	ListingID         uuid.UUID               `json:"listing_id"`
	OfferID           *uuid.UUID              `json:"offer_id,omitempty"`
	BuyerID           uuid.UUID               `json:"buyer_id"`
	SellerID          uuid.UUID               `json:"seller_id"`
	FinalPrice        int64                   `json:"final_price_cents"`
	PlatformFee       int64                   `json:"platform_fee_cents"`
	SellerReceives    int64                   `json:"seller_receives_cents"`
	FinalPriceDisplay string                  `json:"final_price"`
	Currency          string                  `json:"currency"`
	Status            enums.TransactionStatus `json:"status"`
	EscrowReleaseDate time.Time               `json:"escrow_release_date"`
	CompletedAt       *time.Time              `json:"completed_at,omitempty"`
	CreatedAt         time.Time               `json:"created_at"`
}

// FromModel maps a persisted transaction to its DTO.
func FromModel(m *models.Transaction) *TransactionDTO {
	if m == nil {
		return nil
	}
	return &TransactionDTO{
		ID:                m.ID,
		PaymentIntentID:   m.PaymentIntentID,
		ListingID:         m.ListingID,
		OfferID:           m.OfferID,
		BuyerID:           m.BuyerID,
		SellerID:          m.SellerID,
		FinalPrice:        m.FinalPrice,
		PlatformFee:       m.PlatformFee,
		SellerReceives:    m.SellerReceives,
		FinalPriceDisplay: money.Format(m.FinalPrice),
		Currency:          m.Currency,
		Status:            m.Status,
		EscrowReleaseDate: m.EscrowReleaseDate,
		CompletedAt:       m.CompletedAt,
		CreatedAt:         m.CreatedAt,
	}
}
