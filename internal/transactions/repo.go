package transactions

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tradepost-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/tradepost-backend/pkg/errors"
	"github.com/angelmondragon/tradepost-backend/pkg/money"
	"github.com/angelmondragon/tradepost-backend/pkg/pagination"
)

// Role selects which side of a transaction a listing query filters on.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
)

// Repository persists escrow transactions.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a transactions repository to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// CreateTx inserts the transaction inside the caller's DB transaction after
// checking the fee split adds up. Unique violations are returned untouched so
// callers can detect them with db.IsUniqueViolation.
func (r *Repository) CreateTx(tx *gorm.DB, txn *models.Transaction) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if txn == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "transaction is required")
	}
	split := money.Split{
		Gross:       txn.FinalPrice,
		PlatformFee: txn.PlatformFee,
		SellerNet:   txn.SellerReceives,
	}
	if err := split.Validate(); err != nil {
		return err
	}
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	return tx.Create(txn).Error
}

// FindByPaymentIntentID returns nil, nil when no transaction exists for the intent.
func (r *Repository) FindByPaymentIntentID(ctx context.Context, intentID string) (*models.Transaction, error) {
	var txn models.Transaction
	err := r.db.WithContext(ctx).Where("payment_intent_id = ?", intentID).First(&txn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// FindByID returns the transaction or gorm.ErrRecordNotFound.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	var txn models.Transaction
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&txn).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

type listForUserParams struct {
	UserID uuid.UUID
	Role   Role
	Limit  int
	Cursor *pagination.Cursor
}

// ListForUser pages through a user's transactions newest first.
func (r *Repository) ListForUser(ctx context.Context, params listForUserParams) ([]models.Transaction, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).Model(&models.Transaction{})
	switch params.Role {
	case RoleBuyer:
		query = query.Where("buyer_id = ?", params.UserID)
	case RoleSeller:
		query = query.Where("seller_id = ?", params.UserID)
	default:
		query = query.Where("(buyer_id = ? OR seller_id = ?)", params.UserID, params.UserID)
	}

	var rows []models.Transaction
	if err := pagination.Keyset(query, params.Cursor, params.Limit).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	page, next := pagination.Trim(rows, params.Limit, func(t *models.Transaction) pagination.Cursor {
		return pagination.Cursor{CreatedAt: t.CreatedAt, ID: t.ID}
	})
	return page, next, nil
}
