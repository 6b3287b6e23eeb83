package accounts

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tradepost-backend/pkg/db/models"
)

// Snapshot is the processor's view of a connected account.
type Snapshot struct {
	ChargesEnabled   bool
	PayoutsEnabled   bool
	DetailsSubmitted bool
}

// FullySetUp reports whether all three capabilities are on.
func (s Snapshot) FullySetUp() bool {
	return s.ChargesEnabled && s.PayoutsEnabled && s.DetailsSubmitted
}

// StatusDTO is the API shape of a seller's payout account.
type StatusDTO struct {
	UserID           uuid.UUID  `json:"user_id"`
	StripeAccountID  string     `json:"stripe_account_id"`
	ChargesEnabled   bool       `json:"charges_enabled"`
	PayoutsEnabled   bool       `json:"payouts_enabled"`
	DetailsSubmitted bool       `json:"details_submitted"`
	FullySetUp       bool       `json:"fully_set_up"`
	SyncedAt         *time.Time `json:"synced_at,omitempty"`
}

func toDTO(a *models.SellerAccount) *StatusDTO {
	return &StatusDTO{
		UserID:           a.UserID,
		StripeAccountID:  a.StripeAccountID,
		ChargesEnabled:   a.ChargesEnabled,
		PayoutsEnabled:   a.PayoutsEnabled,
		DetailsSubmitted: a.DetailsSubmitted,
		FullySetUp:       a.FullySetUp(),
		SyncedAt:         a.SyncedAt,
	}
}
