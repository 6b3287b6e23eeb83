package email

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tradepost-backend/pkg/config"
	"github.com/angelmondragon/tradepost-backend/pkg/logger"
)

// Party selects which side of the sale a confirmation is written for.
type Party string

const (
	PartyBuyer  Party = "buyer"
	PartySeller Party = "seller"
)

// Recipient is the addressee of an outbound email.
type Recipient struct {
	Email string
	Name  string
}

// ConfirmationData carries the settled transaction details rendered into the
// purchase and sale confirmation emails. Amounts are minor units.
type ConfirmationData struct {
	Party             Party
	TransactionID     uuid.UUID
	ListingTitle      string
	FinalPrice        int64
	PlatformFee       int64
	SellerReceives    int64
	Currency          string
	EscrowReleaseDate time.Time
}

// Sender delivers transactional email. Failures carry EMAIL_SEND_FAILED.
type Sender interface {
	SendConfirmation(ctx context.Context, to Recipient, data ConfirmationData) error
}

// NewSender returns the SendGrid sender when an API key is configured and a
// logging no-op otherwise.
func NewSender(cfg config.SendgridConfig, logg *logger.Logger) Sender {
	if !cfg.Enabled() {
		return NewNoopSender(logg)
	}
	return NewSendgridSender(cfg, logg)
}
