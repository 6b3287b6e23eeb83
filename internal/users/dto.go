package users

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/tradepost-backend/pkg/db/models"
	"github.com/angelmondragon/tradepost-backend/pkg/enums"
)

// Contact is the addressable view of a user used for notifications and email.
type Contact struct {
	ID          uuid.UUID      `json:"id"`
	Email       string         `json:"email"`
	DisplayName string         `json:"display_name"`
	Role        enums.UserRole `json:"role"`
}

// FromModel maps a user row to its contact view.
func FromModel(u *models.User) *Contact {
	if u == nil {
		return nil
	}
	return &Contact{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Role:        u.Role,
	}
}
