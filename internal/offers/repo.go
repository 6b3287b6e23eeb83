package offers

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tradepost-backend/pkg/db/models"
	"github.com/angelmondragon/tradepost-backend/pkg/enums"
	"github.com/angelmondragon/tradepost-backend/pkg/pagination"
)

// Repository persists offers and their append-only event log.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds an offers repository to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the supplied transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// Create inserts a new offer.
func (r *Repository) Create(ctx context.Context, offer *models.Offer) error {
	if offer.ID == uuid.Nil {
		offer.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(offer).Error
}

// AppendEvent adds one entry to the offer's event log.
func (r *Repository) AppendEvent(ctx context.Context, event *models.OfferEvent) error {
	if event.ID == uuid.Nil {
		// v7 ids are monotonic per process, so they order events that share
		// a created_at.
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		event.ID = id
	}
	return r.db.WithContext(ctx).Create(event).Error
}

// FindByID returns the offer or gorm.ErrRecordNotFound.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Offer, error) {
	var offer models.Offer
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&offer).Error; err != nil {
		return nil, err
	}
	return &offer, nil
}

type expiryGuard int

const (
	expiryAny expiryGuard = iota
	// the offer must still be open at the transition instant
	expiryNotPassed
	// the offer must already be overdue at the transition instant
	expiryPassed
)

type transition struct {
	From    enums.OfferStatus
	To      enums.OfferStatus
	Expiry  expiryGuard
	At      time.Time
	Updates map[string]any
}

// Transition applies a compare-and-set on status. It reports false when no
// row matched, which means another actor or the sweeper moved the offer first
// (or the expiry guard no longer holds).
func (r *Repository) Transition(ctx context.Context, offerID uuid.UUID, t transition) (bool, error) {
	if t.At.IsZero() {
		return false, errors.New("transition time required")
	}
	updates := map[string]any{
		"status":     t.To,
		"updated_at": t.At,
	}
	for k, v := range t.Updates {
		updates[k] = v
	}

	query := r.db.WithContext(ctx).
		Model(&models.Offer{}).
		Where("id = ? AND status = ?", offerID, t.From)
	switch t.Expiry {
	case expiryNotPassed:
		query = query.Where("expires_at > ?", t.At)
	case expiryPassed:
		query = query.Where("expires_at < ?", t.At)
	}

	res := query.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListDueForExpiry returns pending offers whose expiry has passed, oldest first.
func (r *Repository) ListDueForExpiry(ctx context.Context, now time.Time, limit int) ([]models.Offer, error) {
	var rows []models.Offer
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at < ?", enums.OfferStatusPending, now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// Events returns the event log for an offer in chronological order.
func (r *Repository) Events(ctx context.Context, offerID uuid.UUID) ([]models.OfferEvent, error) {
	var rows []models.OfferEvent
	err := r.db.WithContext(ctx).
		Where("offer_id = ?", offerID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	return rows, err
}

type listOffersParams struct {
	UserID    uuid.UUID
	Role      Role
	Status    *enums.OfferStatus
	ListingID *uuid.UUID
	Limit     int
	Cursor    *pagination.Cursor
}

// List pages through offers where the user is the buyer or the seller.
func (r *Repository) List(ctx context.Context, params listOffersParams) ([]models.Offer, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).Model(&models.Offer{})
	if params.Role == RoleSeller {
		query = query.Where("seller_id = ?", params.UserID)
	} else {
		query = query.Where("buyer_id = ?", params.UserID)
	}
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.ListingID != nil {
		query = query.Where("listing_id = ?", *params.ListingID)
	}

	var rows []models.Offer
	if err := pagination.Keyset(query, params.Cursor, params.Limit).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	page, next := pagination.Trim(rows, params.Limit, offerCursor)
	return page, next, nil
}

func offerCursor(o *models.Offer) pagination.Cursor {
	return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
}
