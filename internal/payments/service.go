package payments

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tradepost-backend/pkg/db/models"
	"github.com/angelmondragon/tradepost-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradepost-backend/pkg/errors"
	"github.com/angelmondragon/tradepost-backend/pkg/logger"
	"github.com/angelmondragon/tradepost-backend/pkg/money"
)

// Service starts checkout for accepted offers.
type Service interface {
	CreateIntentForOffer(ctx context.Context, offerID, buyerID uuid.UUID) (*CheckoutDTO, error)
}

// CheckoutDTO carries what the client needs to confirm the payment.
type CheckoutDTO struct {
	PaymentIntentID string    `json:"payment_intent_id"`
	ClientSecret    string    `json:"client_secret"`
	OfferID         uuid.UUID `json:"offer_id"`
	ListingID       uuid.UUID `json:"listing_id"`
	Amount          int64     `json:"amount"`
	PlatformFee     int64     `json:"platform_fee"`
	SellerReceives  int64     `json:"seller_receives"`
	Currency        string    `json:"currency"`
	ReturnURL       string    `json:"return_url,omitempty"`
}

type offerReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Offer, error)
}

type listingReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Listing, error)
}

type payoutChecker interface {
	RequireFullySetUp(ctx context.Context, sellerID uuid.UUID) (*models.SellerAccount, error)
}

// ServiceParams wires the checkout service.
type ServiceParams struct {
	Offers    offerReader
	Listings  listingReader
	Accounts  payoutChecker
	Gateway   Gateway
	FeeRate   money.Rate
	ReturnURL string
	Logger    *logger.Logger
}

type service struct {
	offers    offerReader
	listings  listingReader
	accounts  payoutChecker
	gateway   Gateway
	feeRate   money.Rate
	returnURL string
	logg      *logger.Logger
}

// NewService validates dependencies and builds the checkout service.
func NewService(params ServiceParams) (Service, error) {
	if params.Offers == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "offers reader required")
	}
	if params.Listings == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "listings reader required")
	}
	if params.Accounts == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payout checker required")
	}
	if params.Gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment gateway required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &service{
		offers:    params.Offers,
		listings:  params.Listings,
		accounts:  params.Accounts,
		gateway:   params.Gateway,
		feeRate:   params.FeeRate,
		returnURL: params.ReturnURL,
		logg:      params.Logger,
	}, nil
}

// CreateIntentForOffer opens a payment intent for the accepted offer's
// amount with the platform fee split recorded on it.
func (s *service) CreateIntentForOffer(ctx context.Context, offerID, buyerID uuid.UUID) (*CheckoutDTO, error) {
	if offerID == uuid.Nil || buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "offer id and buyer id required")
	}
	ctx = s.logg.WithOfferID(ctx, offerID.String())

	offer, err := s.offers.FindByID(ctx, offerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "offer not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load offer")
	}
	if offer.BuyerID != buyerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the buyer can check out this offer")
	}
	if offer.Status != enums.OfferStatusAccepted {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "offer must be accepted before checkout").
			WithDetails(map[string]any{"status": offer.Status})
	}

	listing, err := s.listings.FindByID(ctx, offer.ListingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "listing not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load listing")
	}
	if listing.Status != enums.ListingStatusActive {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "listing is no longer available")
	}

	account, err := s.accounts.RequireFullySetUp(ctx, offer.SellerID)
	if err != nil {
		return nil, err
	}

	split, err := money.SplitFee(offer.Amount, s.feeRate)
	if err != nil {
		return nil, err
	}

	intent, err := s.gateway.CreateIntent(ctx, IntentRequest{
		Split:           split,
		Currency:        offer.Currency,
		BuyerID:         offer.BuyerID,
		SellerID:        offer.SellerID,
		ListingID:       offer.ListingID,
		OfferID:         &offer.ID,
		SellerAccountID: account.StripeAccountID,
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment intent")
	}

	logCtx := s.logg.WithFields(s.logg.WithPaymentIntentID(ctx, intent.ID), map[string]any{
		"gross":        split.Gross,
		"platform_fee": split.PlatformFee,
	})
	s.logg.Info(logCtx, "payment intent created")

	return &CheckoutDTO{
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
		OfferID:         offer.ID,
		ListingID:       offer.ListingID,
		Amount:          split.Gross,
		PlatformFee:     split.PlatformFee,
		SellerReceives:  split.SellerNet,
		Currency:        strings.ToLower(offer.Currency),
		ReturnURL:       s.returnURL,
	}, nil
}
