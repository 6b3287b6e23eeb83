package payloads

import (
	"time"

	"github.com/angelmondragon/tradepost-backend/pkg/enums"
	"github.com/google/uuid"
)

// OfferTransitionEvent is emitted for every offer state change.
type OfferTransitionEvent struct {
	OfferID    uuid.UUID            `json:"offer_id"`
	ListingID  uuid.UUID            `json:"listing_id"`
	BuyerID    uuid.UUID            `json:"buyer_id"`
	SellerID   uuid.UUID            `json:"seller_id"`
	FromStatus *enums.OfferStatus   `json:"from_status,omitempty"`
	ToStatus   enums.OfferStatus    `json:"to_status"`
	EventType  enums.OfferEventType `json:"offer_event_type"`
	Amount     int64                `json:"amount"`
	Currency   string               `json:"currency"`
	ExpiresAt  time.Time            `json:"expires_at"`
	ActorID    *uuid.UUID           `json:"actor_id,omitempty"`
}

// TransactionSettledEvent reports a materialized escrow transaction.
type TransactionSettledEvent struct {
	TransactionID     uuid.UUID              `json:"transaction_id"`
	PaymentIntentID   string                 `json:"payment_intent_id"`
	ListingID         uuid.UUID              `json:"listing_id"`
	OfferID           *uuid.UUID             `json:"offer_id,omitempty"`
	BuyerID           uuid.UUID              `json:"buyer_id"`
	SellerID          uuid.UUID              `json:"seller_id"`
	FinalPrice        int64                  `json:"final_price"`
	PlatformFee       int64                  `json:"platform_fee"`
	SellerReceives    int64                  `json:"seller_receives"`
	Currency          string                 `json:"currency"`
	EscrowReleaseDate time.Time              `json:"escrow_release_date"`
	Source            enums.SettlementSource `json:"source"`
}

// SellerAccountSyncedEvent reports a refreshed connected-account snapshot.
type SellerAccountSyncedEvent struct {
	UserID           uuid.UUID `json:"user_id"`
	StripeAccountID  string    `json:"stripe_account_id"`
	ChargesEnabled   bool      `json:"charges_enabled"`
	PayoutsEnabled   bool      `json:"payouts_enabled"`
	DetailsSubmitted bool      `json:"details_submitted"`
	SyncedAt         time.Time `json:"synced_at"`
}
