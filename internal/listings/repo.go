package listings

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tradepost-backend/pkg/db/models"
	"github.com/angelmondragon/tradepost-backend/pkg/enums"
)

// Repository reads listings and applies the one-way sold transition.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a listings repository to the provided GORM DB.
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

// FindByID returns the listing or gorm.ErrRecordNotFound.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	var listing models.Listing
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&listing).Error; err != nil {
		return nil, err
	}
	return &listing, nil
}

// MarkSoldTx flips the listing to SOLD exactly once. It returns false when the
// listing was already sold (or does not exist) so callers can proceed without
// overwriting the first sale.
func (r *Repository) MarkSoldTx(tx *gorm.DB, listingID uuid.UUID, price int64, soldAt time.Time, transactionID uuid.UUID) (bool, error) {
	if tx == nil {
		return false, errors.New("transaction required")
	}
	res := tx.Model(&models.Listing{}).
		Where("id = ? AND status <> ?", listingID, enums.ListingStatusSold).
		Updates(map[string]any{
			"status":              enums.ListingStatusSold,
			"sold_price":          price,
			"sold_at":             soldAt,
			"sold_transaction_id": transactionID,
			"updated_at":          soldAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
