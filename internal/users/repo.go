package users

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tradepost-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/tradepost-backend/pkg/errors"
)

// Repository is a read-only directory over the users table. Accounts are
// provisioned by the identity service.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a users repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Lookup returns the contact for a user id.
func (r *Repository) Lookup(ctx context.Context, id uuid.UUID) (*Contact, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup user")
	}
	return FromModel(&user), nil
}

// LookupMany returns contacts keyed by id; unknown ids are omitted.
func (r *Repository) LookupMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Contact, error) {
	out := make(map[uuid.UUID]*Contact, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.User
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup users")
	}
	for i := range rows {
		out[rows[i].ID] = FromModel(&rows[i])
	}
	return out, nil
}
