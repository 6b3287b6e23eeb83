package offers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/tradepost-backend/internal/listings"
	"github.com/angelmondragon/tradepost-backend/internal/notifications"
	"github.com/angelmondragon/tradepost-backend/internal/testutil"
	dbpkg "github.com/angelmondragon/tradepost-backend/pkg/db"
	"github.com/angelmondragon/tradepost-backend/pkg/db/models"
	"github.com/angelmondragon/tradepost-backend/pkg/enums"
	"github.com/angelmondragon/tradepost-backend/pkg/outbox"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []notifications.Message
	err      error
}

func (n *recordingNotifier) Notify(_ context.Context, msg notifications.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
	return n.err
}

func (n *recordingNotifier) sent() []notifications.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notifications.Message(nil), n.messages...)
}

// hookedListings runs a hook before every lookup so tests can interleave a
// competing change with an in-flight action.
type hookedListings struct {
	inner *listings.Repository
	hook  func()
}

func (h *hookedListings) FindByID(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	if h.hook != nil {
		h.hook()
	}
	return h.inner.FindByID(ctx, id)
}

type harness struct {
	db       *gorm.DB
	svc      Service
	repo     *Repository
	clock    *fakeClock
	notifier *recordingNotifier
	listings *hookedListings
	seller   uuid.UUID
	buyer    uuid.UUID
	listing  models.Listing
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conn := testutil.NewSQLite(t,
		testutil.TableListings,
		testutil.TableOffers,
		testutil.TableOfferEvents,
		testutil.TableOutboxEvents,
	)
	logg := testutil.Logger()
	h := &harness{
		db:       conn,
		repo:     NewRepository(conn),
		clock:    &fakeClock{now: t0},
		notifier: &recordingNotifier{},
		listings: &hookedListings{inner: listings.NewRepository(conn)},
		seller:   uuid.New(),
		buyer:    uuid.New(),
	}
	h.listing = h.seedListing(t, enums.ListingStatusActive)

	svc, err := NewService(ServiceParams{
		DB:         dbpkg.Wrap(conn),
		Repository: h.repo,
		Listings:   h.listings,
		Outbox:     outbox.NewService(outbox.NewRepository(conn), logg),
		Notifier:   h.notifier,
		Logger:     logg,
		Policy: Policy{
			DefaultTTL:     48 * time.Hour,
			MinWindow:      time.Hour,
			MaxWindow:      168 * time.Hour,
			SweepBatchSize: 2,
		},
		Clock: h.clock.Now,
	})
	require.NoError(t, err)
	h.svc = svc
	return h
}

func (h *harness) seedListing(t *testing.T, status enums.ListingStatus) models.Listing {
	t.Helper()
	listing := models.Listing{
		ID:          uuid.New(),
		SellerID:    h.seller,
		Title:       "Cedar canoe",
		AskingPrice: 6000,
		Currency:    "usd",
		Status:      status,
		CreatedAt:   t0,
		UpdatedAt:   t0,
	}
	require.NoError(t, h.db.Create(&listing).Error)
	return listing
}

func (h *harness) createOffer(t *testing.T, amount int64) *OfferDTO {
	t.Helper()
	dto, err := h.svc.Create(context.Background(), CreateInput{
		ListingID: h.listing.ID,
		BuyerID:   h.buyer,
		Amount:    amount,
	})
	require.NoError(t, err)
	return dto
}

// insertOffer bypasses the window policy to place an offer with an arbitrary expiry.
func (h *harness) insertOffer(t *testing.T, buyer uuid.UUID, expiresAt time.Time) models.Offer {
	t.Helper()
	offer := models.Offer{
		ID:        uuid.New(),
		ListingID: h.listing.ID,
		BuyerID:   buyer,
		SellerID:  h.seller,
		Amount:    4000,
		Currency:  "usd",
		Status:    enums.OfferStatusPending,
		ExpiresAt: expiresAt,
		CreatedAt: h.clock.Now(),
		UpdatedAt: h.clock.Now(),
	}
	require.NoError(t, h.repo.Create(context.Background(), &offer))
	return offer
}

func (h *harness) reload(t *testing.T, id uuid.UUID) *models.Offer {
	t.Helper()
	offer, err := h.repo.FindByID(context.Background(), id)
	require.NoError(t, err)
	return offer
}

func (h *harness) eventTypes(t *testing.T, id uuid.UUID) []enums.OfferEventType {
	t.Helper()
	events, err := h.repo.Events(context.Background(), id)
	require.NoError(t, err)
	out := make([]enums.OfferEventType, 0, len(events))
	for _, e := range events {
		out = append(out, e.Type)
	}
	return out
}

func (h *harness) outboxCount(t *testing.T, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var count int64
	require.NoError(t, h.db.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&count).Error)
	return count
}

var errNotifyDown = errors.New("notifications down")
