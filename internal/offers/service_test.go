package offers

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/tradepost-backend/internal/testutil"
	dbpkg "github.com/angelmondragon/tradepost-backend/pkg/db"
	"github.com/angelmondragon/tradepost-backend/pkg/db/models"
	"github.com/angelmondragon/tradepost-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradepost-backend/pkg/errors"
	"github.com/angelmondragon/tradepost-backend/pkg/outbox"
)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func TestCreateOffer(t *testing.T) {
	h := newHarness(t)

	dto, err := h.svc.Create(context.Background(), CreateInput{
		ListingID: h.listing.ID,
		BuyerID:   h.buyer,
		Amount:    5000,
		Terms: Terms{
			Message:           strPtr("  Can pick up Saturday  "),
			Contingency:       strPtr("   "),
			TransportIncluded: true,
		},
	})
	require.NoError(t, err)

	assert.Equal(t, enums.OfferStatusPending, dto.Status)
	assert.Equal(t, h.seller, dto.SellerID)
	assert.Equal(t, "50.00", dto.AmountDisplay)
	assert.True(t, dto.ExpiresAt.Equal(t0.Add(48*time.Hour)))
	require.NotNil(t, dto.Message)
	assert.Equal(t, "Can pick up Saturday", *dto.Message)
	assert.Nil(t, dto.Contingency)

	stored := h.reload(t, dto.ID)
	assert.True(t, stored.ExpiresAt.After(stored.CreatedAt))
	assert.Equal(t, []enums.OfferEventType{enums.OfferEventCreated}, h.eventTypes(t, dto.ID))
	assert.Equal(t, int64(1), h.outboxCount(t, enums.EventOfferCreated))

	sent := h.notifier.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, h.seller, sent[0].UserID)
	assert.Equal(t, enums.NotificationTypeOfferReceived, sent[0].Type)
}

func TestCreateOfferValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sold := h.seedListing(t, enums.ListingStatusSold)

	cases := []struct {
		name  string
		input CreateInput
		code  pkgerrors.Code
	}{
		{"zero amount", CreateInput{ListingID: h.listing.ID, BuyerID: h.buyer, Amount: 0}, pkgerrors.CodeValidation},
		{"own listing", CreateInput{ListingID: h.listing.ID, BuyerID: h.seller, Amount: 100}, pkgerrors.CodeForbidden},
		{"sold listing", CreateInput{ListingID: sold.ID, BuyerID: h.buyer, Amount: 100}, pkgerrors.CodeStateConflict},
		{"missing listing", CreateInput{ListingID: uuid.New(), BuyerID: h.buyer, Amount: 100}, pkgerrors.CodeNotFound},
		{"window too short", CreateInput{ListingID: h.listing.ID, BuyerID: h.buyer, Amount: 100, ExpiresInHours: intPtr(0)}, pkgerrors.CodeValidation},
		{"window too long", CreateInput{ListingID: h.listing.ID, BuyerID: h.buyer, Amount: 100, ExpiresInHours: intPtr(169)}, pkgerrors.CodeValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.svc.Create(ctx, tc.input)
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, tc.code), "got %v", err)
		})
	}

	var count int64
	require.NoError(t, h.db.Model(&models.Offer{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCreateOfferCustomWindow(t *testing.T) {
	h := newHarness(t)
	dto, err := h.svc.Create(context.Background(), CreateInput{
		ListingID:      h.listing.ID,
		BuyerID:        h.buyer,
		Amount:         100,
		ExpiresInHours: intPtr(168),
	})
	require.NoError(t, err)
	assert.True(t, dto.ExpiresAt.Equal(t0.Add(168*time.Hour)))
}

func TestCreateOfferSurvivesNotificationFailure(t *testing.T) {
	h := newHarness(t)
	h.notifier.err = errNotifyDown

	dto := h.createOffer(t, 5000)
	assert.Equal(t, enums.OfferStatusPending, h.reload(t, dto.ID).Status)
}

func TestAcceptOffer(t *testing.T) {
	h := newHarness(t)
	offer := h.createOffer(t, 5000)
	h.clock.Advance(time.Minute)

	_, err := h.svc.Accept(context.Background(), offer.ID, h.buyer)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	dto, err := h.svc.Accept(context.Background(), offer.ID, h.seller)
	require.NoError(t, err)
	assert.Equal(t, enums.OfferStatusAccepted, dto.Status)
	assert.Equal(t, enums.OfferStatusAccepted, h.reload(t, offer.ID).Status)
	assert.Equal(t, []enums.OfferEventType{enums.OfferEventCreated, enums.OfferEventAccepted}, h.eventTypes(t, offer.ID))
	assert.Equal(t, int64(1), h.outboxCount(t, enums.EventOfferAccepted))

	sent := h.notifier.sent()
	require.Len(t, sent, 2)
	assert.Equal(t, h.buyer, sent[1].UserID)
	assert.Equal(t, enums.NotificationTypeOfferAccepted, sent[1].Type)
}

func TestNonPendingTransitionsLeaveStateUnchanged(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	offer := h.createOffer(t, 5000)
	h.clock.Advance(time.Minute)
	_, err := h.svc.Accept(ctx, offer.ID, h.seller)
	require.NoError(t, err)
	h.clock.Advance(time.Minute)

	attempts := map[string]func() error{
		"accept": func() error { _, err := h.svc.Accept(ctx, offer.ID, h.seller); return err },
		"reject": func() error { _, err := h.svc.Reject(ctx, offer.ID, h.seller); return err },
		"counter": func() error {
			_, err := h.svc.Counter(ctx, CounterInput{OfferID: offer.ID, SellerID: h.seller, Amount: 5500})
			return err
		},
		"cancel": func() error { _, err := h.svc.Cancel(ctx, offer.ID, h.buyer); return err },
		"extend": func() error { _, err := h.svc.Extend(ctx, ExtendInput{OfferID: offer.ID, BuyerID: h.buyer}); return err },
	}
	for name, attempt := range attempts {
		t.Run(name, func(t *testing.T) {
			err := attempt()
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidStateTransition), "got %v", err)
		})
	}

	stored := h.reload(t, offer.ID)
	assert.Equal(t, enums.OfferStatusAccepted, stored.Status)
	assert.Equal(t, int64(5000), stored.Amount)
	assert.Len(t, h.eventTypes(t, offer.ID), 2)
}

func TestCounterUpdatesTermsAndRests(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	offer := h.createOffer(t, 4000)
	h.clock.Advance(time.Hour)

	dto, err := h.svc.Counter(ctx, CounterInput{
		OfferID:        offer.ID,
		SellerID:       h.seller,
		Amount:         5500,
		Terms:          Terms{InspectionIncluded: true, Contingency: strPtr("Cash only")},
		ExpiresInHours: intPtr(24),
	})
	require.NoError(t, err)
	assert.Equal(t, enums.OfferStatusCountered, dto.Status)

	stored := h.reload(t, offer.ID)
	assert.Equal(t, int64(5500), stored.Amount)
	assert.True(t, stored.InspectionIncluded)
	require.NotNil(t, stored.Contingency)
	assert.Equal(t, "Cash only", *stored.Contingency)
	assert.True(t, stored.ExpiresAt.Equal(t0.Add(25*time.Hour)))

	events, err := h.svc.Events(ctx, offer.ID, h.buyer)
	require.NoError(t, err)
	require.Len(t, events, 2)
	var snapshot eventSnapshot
	require.NoError(t, json.Unmarshal(events[1].Payload, &snapshot))
	assert.Equal(t, int64(5500), snapshot.Amount)
	require.NotNil(t, snapshot.FromStatus)
	assert.Equal(t, enums.OfferStatusPending, *snapshot.FromStatus)

	_, err = h.svc.Accept(ctx, offer.ID, h.seller)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidStateTransition))

	_, err = h.svc.Counter(ctx, CounterInput{OfferID: offer.ID, SellerID: h.seller, Amount: 0})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestRejectAndCancel(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	rejected := h.createOffer(t, 3000)
	dto, err := h.svc.Reject(ctx, rejected.ID, h.seller)
	require.NoError(t, err)
	assert.Equal(t, enums.OfferStatusRejected, dto.Status)

	cancelled := h.createOffer(t, 3100)
	_, err = h.svc.Cancel(ctx, cancelled.ID, h.seller)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	dto, err = h.svc.Cancel(ctx, cancelled.ID, h.buyer)
	require.NoError(t, err)
	assert.Equal(t, enums.OfferStatusCancelled, dto.Status)
	assert.Equal(t, int64(1), h.outboxCount(t, enums.EventOfferCancelled))
}

func TestOverdueOfferIsTreatedAsExpired(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	offer := h.createOffer(t, 5000)
	h.clock.Advance(49 * time.Hour)

	got, err := h.svc.Get(ctx, offer.ID, h.buyer)
	require.NoError(t, err)
	assert.True(t, got.Overdue)

	_, err = h.svc.Accept(ctx, offer.ID, h.seller)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidStateTransition))
	assert.Equal(t, enums.OfferStatusPending, h.reload(t, offer.ID).Status)
}

func TestActionRacingSweepLosesCAS(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	offer := h.createOffer(t, 5000)

	// the sweeper wins between the state check and the conditional update
	h.listings.hook = func() {
		require.NoError(t, h.db.Model(&models.Offer{}).
			Where("id = ?", offer.ID).
			Update("status", enums.OfferStatusExpired).Error)
	}

	_, err := h.svc.Accept(ctx, offer.ID, h.seller)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidStateTransition))
	assert.Equal(t, enums.OfferStatusExpired, h.reload(t, offer.ID).Status)
	assert.Equal(t, []enums.OfferEventType{enums.OfferEventCreated}, h.eventTypes(t, offer.ID))
	assert.Zero(t, h.outboxCount(t, enums.EventOfferAccepted))
}

func TestExtendReopensExpiredOffer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	offer := h.createOffer(t, 5000)

	_, err := h.svc.Extend(ctx, ExtendInput{OfferID: offer.ID, BuyerID: h.buyer})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidStateTransition))

	h.clock.Advance(49 * time.Hour)
	res, err := h.svc.ExpireOverdue(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.Expired)

	_, err = h.svc.Extend(ctx, ExtendInput{OfferID: offer.ID, BuyerID: h.seller})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = h.svc.Extend(ctx, ExtendInput{OfferID: offer.ID, BuyerID: h.buyer, ExpiresInHours: intPtr(500)})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	dto, err := h.svc.Extend(ctx, ExtendInput{OfferID: offer.ID, BuyerID: h.buyer, ExpiresInHours: intPtr(12)})
	require.NoError(t, err)
	assert.Equal(t, enums.OfferStatusPending, dto.Status)

	stored := h.reload(t, offer.ID)
	assert.True(t, stored.ExpiresAt.Equal(h.clock.Now().Add(12*time.Hour)))
	assert.Equal(t, int64(5000), stored.Amount)
	assert.Equal(t, []enums.OfferEventType{enums.OfferEventCreated, enums.OfferEventExpired, enums.OfferEventExtended}, h.eventTypes(t, offer.ID))

	_, err = h.svc.Accept(ctx, offer.ID, h.seller)
	require.NoError(t, err)
}

func TestExtendRequiresActiveListing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	offer := h.createOffer(t, 5000)
	h.clock.Advance(49 * time.Hour)
	_, err := h.svc.ExpireOverdue(ctx)
	require.NoError(t, err)

	require.NoError(t, h.db.Model(&models.Listing{}).Where("id = ?", h.listing.ID).
		Update("status", enums.ListingStatusSold).Error)

	_, err = h.svc.Extend(ctx, ExtendInput{OfferID: offer.ID, BuyerID: h.buyer})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.Equal(t, enums.OfferStatusExpired, h.reload(t, offer.ID).Status)
}

func TestGetListAndEventsAreParticipantScoped(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	first := h.createOffer(t, 1000)
	h.clock.Advance(time.Minute)
	second := h.createOffer(t, 2000)
	h.clock.Advance(time.Minute)
	_, err := h.svc.Reject(ctx, first.ID, h.seller)
	require.NoError(t, err)

	_, err = h.svc.Get(ctx, first.ID, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	_, err = h.svc.Events(ctx, first.ID, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	_, err = h.svc.Get(ctx, uuid.New(), h.buyer)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	asBuyer, err := h.svc.List(ctx, ListParams{UserID: h.buyer, Role: RoleBuyer, Limit: 1})
	require.NoError(t, err)
	require.Len(t, asBuyer.Items, 1)
	assert.Equal(t, second.ID, asBuyer.Items[0].ID)
	require.NotEmpty(t, asBuyer.Cursor)

	page2, err := h.svc.List(ctx, ListParams{UserID: h.buyer, Role: RoleBuyer, Limit: 1, Cursor: asBuyer.Cursor})
	require.NoError(t, err)
	require.Len(t, page2.Items, 1)
	assert.Equal(t, first.ID, page2.Items[0].ID)
	assert.Empty(t, page2.Cursor)

	pending := enums.OfferStatusPending
	asSeller, err := h.svc.List(ctx, ListParams{UserID: h.seller, Role: RoleSeller, Status: &pending})
	require.NoError(t, err)
	require.Len(t, asSeller.Items, 1)
	assert.Equal(t, second.ID, asSeller.Items[0].ID)

	_, err = h.svc.List(ctx, ListParams{UserID: h.buyer, Role: "lurker"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestNewServiceRejectsInvertedWindow(t *testing.T) {
	h := newHarness(t)
	_, err := NewService(ServiceParams{
		DB:         dbpkg.Wrap(h.db),
		Repository: h.repo,
		Listings:   h.listings,
		Outbox:     outbox.NewService(outbox.NewRepository(h.db), testutil.Logger()),
		Logger:     testutil.Logger(),
		Policy:     Policy{DefaultTTL: time.Hour, MinWindow: 2 * time.Hour, MaxWindow: time.Hour},
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInternal))
}
