package offers

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tradepost-backend/pkg/db/models"
	"github.com/angelmondragon/tradepost-backend/pkg/enums"
	"github.com/angelmondragon/tradepost-backend/pkg/money"
)

// Role selects which side of the negotiation a listing query is for.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
)

// Terms are the negotiable parts of an offer besides the price.
type Terms struct {
	Message            *string `json:"message,omitempty"`
	Contingency        *string `json:"contingency,omitempty"`
	TransportIncluded  bool    `json:"transport_included"`
	InspectionIncluded bool    `json:"inspection_included"`
}

// CreateInput is a buyer's opening offer.
type CreateInput struct {
	ListingID      uuid.UUID
	BuyerID        uuid.UUID
	Amount         int64
	Terms          Terms
	ExpiresInHours *int
}

// CounterInput is the seller's counter proposal. ExpiresInHours refreshes the
// offer's expiry; the default TTL applies when nil.
type CounterInput struct {
	OfferID        uuid.UUID
	SellerID       uuid.UUID
	Amount         int64
	Terms          Terms
	ExpiresInHours *int
}

// ExtendInput reopens an expired offer with a new expiry.
type ExtendInput struct {
	OfferID        uuid.UUID
	BuyerID        uuid.UUID
	ExpiresInHours *int
}

// ListParams configures an offer listing for one participant.
type ListParams struct {
	UserID    uuid.UUID
	Role      Role
	Status    *enums.OfferStatus
	ListingID *uuid.UUID
	Limit     int
	Cursor    string
}

// ListResult wraps a page of offers and the cursor for the next page.
type ListResult struct {
	Items  []OfferDTO `json:"items"`
	Cursor string     `json:"cursor"`
}

// OfferDTO is the API shape of an offer. Overdue is true for a pending offer
// whose expiry has passed but which the sweeper has not yet processed.
type OfferDTO struct {
	ID                 uuid.UUID         `json:"id"`
	ListingID          uuid.UUID         `json:"listing_id"`
	BuyerID            uuid.UUID         `json:"buyer_id"`
	SellerID           uuid.UUID         `json:"seller_id"`
	Amount             int64             `json:"amount_cents"`
	AmountDisplay      string            `json:"amount"`
	Currency           string            `json:"currency"`
	Message            *string           `json:"message,omitempty"`
	Contingency        *string           `json:"contingency,omitempty"`
	TransportIncluded  bool              `json:"transport_included"`
	InspectionIncluded bool              `json:"inspection_included"`
	Status             enums.OfferStatus `json:"status"`
	Overdue            bool              `json:"overdue"`
	ExpiresAt          time.Time         `json:"expires_at"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

func toDTO(o *models.Offer, now time.Time) OfferDTO {
	return OfferDTO{
		ID:                 o.ID,
		ListingID:          o.ListingID,
		BuyerID:            o.BuyerID,
		SellerID:           o.SellerID,
		Amount:             o.Amount,
		AmountDisplay:      money.Format(o.Amount),
		Currency:           o.Currency,
		Message:            o.Message,
		Contingency:        o.Contingency,
		TransportIncluded:  o.TransportIncluded,
		InspectionIncluded: o.InspectionIncluded,
		Status:             o.Status,
		Overdue:            o.Status == enums.OfferStatusPending && !o.ExpiresAt.After(now),
		ExpiresAt:          o.ExpiresAt,
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
	}
}

// EventDTO is one entry of an offer's negotiation history.
type EventDTO struct {
	ID        uuid.UUID            `json:"id"`
	Type      enums.OfferEventType `json:"type"`
	ActorID   *uuid.UUID           `json:"actor_id,omitempty"`
	Payload   json.RawMessage      `json:"payload"`
	CreatedAt time.Time            `json:"created_at"`
}

func toEventDTO(e *models.OfferEvent) EventDTO {
	return EventDTO{
		ID:        e.ID,
		Type:      e.Type,
		ActorID:   e.ActorID,
		Payload:   e.Payload,
		CreatedAt: e.CreatedAt,
	}
}

// eventSnapshot is stored as the payload of each offer event.
type eventSnapshot struct {
	Amount             int64              `json:"amount"`
	Currency           string             `json:"currency"`
	Message            *string            `json:"message,omitempty"`
	Contingency        *string            `json:"contingency,omitempty"`
	TransportIncluded  bool               `json:"transport_included"`
	InspectionIncluded bool               `json:"inspection_included"`
	ExpiresAt          time.Time          `json:"expires_at"`
	FromStatus         *enums.OfferStatus `json:"from_status,omitempty"`
	ToStatus           enums.OfferStatus  `json:"to_status"`
}

func snapshotOf(o *models.Offer, from *enums.OfferStatus) eventSnapshot {
	return eventSnapshot{
		Amount:             o.Amount,
		Currency:           o.Currency,
		Message:            o.Message,
		Contingency:        o.Contingency,
		TransportIncluded:  o.TransportIncluded,
		InspectionIncluded: o.InspectionIncluded,
		ExpiresAt:          o.ExpiresAt,
		FromStatus:         from,
		ToStatus:           o.Status,
	}
}
