package accounts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/tradepost-backend/pkg/db/models"
)

// Repository persists the cached connected-account flags.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a seller account repository to the provided GORM DB.
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

// FindByUserID returns the cached account for a seller, or nil when none is linked.
func (r *Repository) FindByUserID(ctx context.Context, userID uuid.UUID) (*models.SellerAccount, error) {
	var account models.SellerAccount
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

// FindByStripeAccountID returns the cached account for a processor account id, or nil.
func (r *Repository) FindByStripeAccountID(ctx context.Context, stripeAccountID string) (*models.SellerAccount, error) {
	var account models.SellerAccount
	err := r.db.WithContext(ctx).Where("stripe_account_id = ?", stripeAccountID).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

// Upsert inserts the account or overwrites every cached column of the
// existing row for the same seller.
func (r *Repository) Upsert(ctx context.Context, account *models.SellerAccount) error {
	if account.CreatedAt.IsZero() {
		account.CreatedAt = account.UpdatedAt
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"stripe_account_id",
				"charges_enabled",
				"payouts_enabled",
				"details_submitted",
				"synced_at",
				"updated_at",
			}),
		}).
		Create(account).Error
}

// UpdateFlags overwrites the cached flags of an existing row.
func (r *Repository) UpdateFlags(ctx context.Context, userID uuid.UUID, snap Snapshot, syncedAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.SellerAccount{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"charges_enabled":   snap.ChargesEnabled,
			"payouts_enabled":   snap.PayoutsEnabled,
			"details_submitted": snap.DetailsSubmitted,
			"synced_at":         syncedAt,
			"updated_at":        syncedAt,
		}).Error
}
