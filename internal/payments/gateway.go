package payments

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/tradepost-backend/internal/accounts"
	"github.com/angelmondragon/tradepost-backend/pkg/money"
)

// ErrMetadataMissing marks an intent that does not carry the fee split and
// parties recorded at creation.
var ErrMetadataMissing = errors.New("payment intent metadata missing")

// IntentStatusSucceeded is the processor status of a confirmed charge.
const IntentStatusSucceeded = "succeeded"

const (
	metaListingID     = "tp_listing_id"
	metaOfferID       = "tp_offer_id"
	metaBuyerID       = "tp_buyer_id"
	metaSellerID      = "tp_seller_id"
	metaSellerAccount = "tp_seller_account"
	metaGross         = "tp_gross"
	metaPlatformFee   = "tp_platform_fee"
	metaSellerNet     = "tp_seller_net"
)

// Gateway is the payment processor as seen by checkout and settlement.
type Gateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	GetIntentMetadata(ctx context.Context, intentID string) (*IntentMetadata, error)
	FetchAccount(ctx context.Context, accountID string) (accounts.Snapshot, error)
}

// IntentRequest describes the charge for one accepted offer.
type IntentRequest struct {
	Split           money.Split
	Currency        string
	BuyerID         uuid.UUID
	SellerID        uuid.UUID
	ListingID       uuid.UUID
	OfferID         *uuid.UUID
	SellerAccountID string
}

// Intent is a created payment intent the client confirms.
type Intent struct {
	ID           string
	ClientSecret string
	Status       string
}

// IntentMetadata is what settlement trusts about a payment: the processor's
// charged amount plus the split and parties recorded at creation.
type IntentMetadata struct {
	IntentID      string
	Status        string
	AmountCharged int64
	Currency      string
	Split         money.Split
	BuyerID       uuid.UUID
	SellerID      uuid.UUID
	ListingID     uuid.UUID
	OfferID       *uuid.UUID
}

// Succeeded reports whether the processor confirmed the charge.
func (m IntentMetadata) Succeeded() bool {
	return m.Status == IntentStatusSucceeded
}

func encodeMetadata(req IntentRequest) map[string]string {
	md := map[string]string{
		metaListingID:     req.ListingID.String(),
		metaBuyerID:       req.BuyerID.String(),
		metaSellerID:      req.SellerID.String(),
		metaSellerAccount: req.SellerAccountID,
		metaGross:         strconv.FormatInt(req.Split.Gross, 10),
		metaPlatformFee:   strconv.FormatInt(req.Split.PlatformFee, 10),
		metaSellerNet:     strconv.FormatInt(req.Split.SellerNet, 10),
	}
	if req.OfferID != nil {
		md[metaOfferID] = req.OfferID.String()
	}
	return md
}

// parseMetadata reads the fields written by encodeMetadata. Every required key
// must be present and well formed; the offer id is optional.
func parseMetadata(md map[string]string) (IntentMetadata, error) {
	var out IntentMetadata
	var err error
	if out.ListingID, err = metaUUID(md, metaListingID); err != nil {
		return IntentMetadata{}, err
	}
	if out.BuyerID, err = metaUUID(md, metaBuyerID); err != nil {
		return IntentMetadata{}, err
	}
	if out.SellerID, err = metaUUID(md, metaSellerID); err != nil {
		return IntentMetadata{}, err
	}
	if out.Split.Gross, err = metaInt(md, metaGross); err != nil {
		return IntentMetadata{}, err
	}
	if out.Split.PlatformFee, err = metaInt(md, metaPlatformFee); err != nil {
		return IntentMetadata{}, err
	}
	if out.Split.SellerNet, err = metaInt(md, metaSellerNet); err != nil {
		return IntentMetadata{}, err
	}
	if raw := strings.TrimSpace(md[metaOfferID]); raw != "" {
		offerID, err := uuid.Parse(raw)
		if err != nil {
			return IntentMetadata{}, fmt.Errorf("%w: %s is not a uuid", ErrMetadataMissing, metaOfferID)
		}
		out.OfferID = &offerID
	}
	return out, nil
}

func metaUUID(md map[string]string, key string) (uuid.UUID, error) {
	raw := strings.TrimSpace(md[key])
	if raw == "" {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrMetadataMissing, key)
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: %s is not a uuid", ErrMetadataMissing, key)
	}
	return id, nil
}

func metaInt(md map[string]string, key string) (int64, error) {
	raw := strings.TrimSpace(md[key])
	if raw == "" {
		return 0, fmt.Errorf("%w: %s", ErrMetadataMissing, key)
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s is not an integer", ErrMetadataMissing, key)
	}
	return v, nil
}
