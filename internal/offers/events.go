package offers

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/angelmondragon/tradepost-backend/pkg/db/models"
	"github.com/angelmondragon/tradepost-backend/pkg/enums"
	"github.com/angelmondragon/tradepost-backend/pkg/outbox/payloads"
)

func marshalSnapshot(snapshot eventSnapshot) (json.RawMessage, error) {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func transitionPayload(o *models.Offer, from *enums.OfferStatus, eventType enums.OfferEventType, actorID *uuid.UUID) payloads.OfferTransitionEvent {
	return payloads.OfferTransitionEvent{
		OfferID:    o.ID,
		ListingID:  o.ListingID,
		BuyerID:    o.BuyerID,
		SellerID:   o.SellerID,
		FromStatus: from,
		ToStatus:   o.Status,
		EventType:  eventType,
		Amount:     o.Amount,
		Currency:   o.Currency,
		ExpiresAt:  o.ExpiresAt,
		ActorID:    actorID,
	}
}
