package offers

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/tradepost-backend/pkg/db/models"
	"github.com/angelmondragon/tradepost-backend/pkg/enums"
)

func TestEventsKeepAppendOrderWithinOneInstant(t *testing.T) {
	h := newHarness(t)
	offer := h.insertOffer(t, h.buyer, t0.Add(time.Hour))
	ctx := context.Background()

	sequence := []enums.OfferEventType{
		enums.OfferEventCreated,
		enums.OfferEventExtended,
		enums.OfferEventAccepted,
	}
	for _, eventType := range sequence {
		require.NoError(t, h.repo.AppendEvent(ctx, &models.OfferEvent{
			OfferID:   offer.ID,
			Type:      eventType,
			Payload:   json.RawMessage(`{}`),
			CreatedAt: t0,
		}))
	}

	assert.Equal(t, sequence, h.eventTypes(t, offer.ID))
}
