package offers

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/tradepost-backend/api/middleware"
	"github.com/angelmondragon/tradepost-backend/api/responses"
	"github.com/angelmondragon/tradepost-backend/api/validators"
	internaloffers "github.com/angelmondragon/tradepost-backend/internal/offers"
	"github.com/angelmondragon/tradepost-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradepost-backend/pkg/errors"
	"github.com/angelmondragon/tradepost-backend/pkg/logger"
	"github.com/angelmondragon/tradepost-backend/pkg/money"
	"github.com/google/uuid"
)

const (
	maxMessageLen     = 1000
	maxContingencyLen = 500
)

type termsRequest struct {
	Message            *string `json:"message" validate:"omitempty,max=1000"`
	Contingency        *string `json:"contingency" validate:"omitempty,max=500"`
	TransportIncluded  bool    `json:"transport_included"`
	InspectionIncluded bool    `json:"inspection_included"`
}

func (t termsRequest) toTerms() internaloffers.Terms {
	return internaloffers.Terms{
		Message:            sanitize(t.Message, maxMessageLen),
		Contingency:        sanitize(t.Contingency, maxContingencyLen),
		TransportIncluded:  t.TransportIncluded,
		InspectionIncluded: t.InspectionIncluded,
	}
}

// amountRequest takes the price either in minor units or as a decimal string
// such as "45.00", never both.
type amountRequest struct {
	AmountCents int64   `json:"amount_cents" validate:"omitempty,min=1"`
	Amount      *string `json:"amount" validate:"omitempty,max=32"`
}

func (a amountRequest) minor() (int64, error) {
	switch {
	case a.Amount != nil && a.AmountCents != 0:
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "send amount or amount_cents, not both")
	case a.Amount != nil:
		cents, err := money.ParseMinor(*a.Amount)
		if err != nil {
			return 0, err
		}
		if cents <= 0 {
			return 0, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
		}
		return cents, nil
	case a.AmountCents > 0:
		return a.AmountCents, nil
	default:
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "amount_cents is required")
	}
}

type createOfferRequest struct {
	ListingID      string `json:"listing_id" validate:"required,uuid"`
	ExpiresInHours *int   `json:"expires_in_hours" validate:"omitempty,min=1"`
	amountRequest
	termsRequest
}

type counterOfferRequest struct {
	ExpiresInHours *int `json:"expires_in_hours" validate:"omitempty,min=1"`
	amountRequest
	termsRequest
}

type extendOfferRequest struct {
	ExpiresInHours *int `json:"expires_in_hours" validate:"omitempty,min=1"`
}

// Create opens a negotiation on an active listing as the signed-in buyer.
func Create(svc internaloffers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "offers service unavailable"))
			return
		}
		buyerID, err := middleware.ActorIDFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req createOfferRequest
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		listingID, err := uuid.Parse(req.ListingID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid listing id"))
			return
		}
		amount, err := req.minor()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		offer, err := svc.Create(r.Context(), internaloffers.CreateInput{
			ListingID:      listingID,
			BuyerID:        buyerID,
			Amount:         amount,
			Terms:          req.toTerms(),
			ExpiresInHours: req.ExpiresInHours,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, offer)
	}
}

func Get(svc internaloffers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, offerID, ok := actorAndOffer(w, r, svc, logg)
		if !ok {
			return
		}
		offer, err := svc.Get(r.Context(), offerID, actorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, offer)
	}
}

// List pages through the user's offers as buyer (default) or seller.
func List(svc internaloffers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "offers service unavailable"))
			return
		}
		userID, err := middleware.ActorIDFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := validators.ParseListQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		role, err := validators.ParseQueryEnum(r, "role", string(internaloffers.RoleBuyer), string(internaloffers.RoleSeller))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params := internaloffers.ListParams{
			UserID: userID,
			Role:   internaloffers.RoleBuyer,
			Limit:  page.Limit,
			Cursor: page.Cursor,
		}
		if role != "" {
			params.Role = internaloffers.Role(role)
		}

		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseOfferStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status").WithDetails(map[string]any{"field": "status"}))
				return
			}
			params.Status = &status
		}

		listingID, err := validators.ParseOptionalUUID(r, "listing_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params.ListingID = listingID

		result, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// Events returns the offer's negotiation history, oldest first.
func Events(svc internaloffers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, offerID, ok := actorAndOffer(w, r, svc, logg)
		if !ok {
			return
		}
		events, err := svc.Events(r.Context(), offerID, actorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, events)
	}
}

func Accept(svc internaloffers.Service, logg *logger.Logger) http.HandlerFunc {
	return transition(svc, logg, func(ctx context.Context, offerID, actorID uuid.UUID) (*internaloffers.OfferDTO, error) {
		return svc.Accept(ctx, offerID, actorID)
	})
}

func Reject(svc internaloffers.Service, logg *logger.Logger) http.HandlerFunc {
	return transition(svc, logg, func(ctx context.Context, offerID, actorID uuid.UUID) (*internaloffers.OfferDTO, error) {
		return svc.Reject(ctx, offerID, actorID)
	})
}

func Cancel(svc internaloffers.Service, logg *logger.Logger) http.HandlerFunc {
	return transition(svc, logg, func(ctx context.Context, offerID, actorID uuid.UUID) (*internaloffers.OfferDTO, error) {
		return svc.Cancel(ctx, offerID, actorID)
	})
}

// Counter replaces the offer's price and terms on behalf of the seller.
func Counter(svc internaloffers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sellerID, offerID, ok := actorAndOffer(w, r, svc, logg)
		if !ok {
			return
		}

		var req counterOfferRequest
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		amount, err := req.minor()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		offer, err := svc.Counter(r.Context(), internaloffers.CounterInput{
			OfferID:        offerID,
			SellerID:       sellerID,
			Amount:         amount,
			Terms:          req.toTerms(),
			ExpiresInHours: req.ExpiresInHours,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, offer)
	}
}

// Extend reopens an expired offer. The body is optional.
func Extend(svc internaloffers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buyerID, offerID, ok := actorAndOffer(w, r, svc, logg)
		if !ok {
			return
		}

		var req extendOfferRequest
		if err := validators.DecodeOptionalJSONBody(w, r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		offer, err := svc.Extend(r.Context(), internaloffers.ExtendInput{
			OfferID:        offerID,
			BuyerID:        buyerID,
			ExpiresInHours: req.ExpiresInHours,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, offer)
	}
}

// AdminSweep runs one expiration pass on demand.
func AdminSweep(svc internaloffers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "offers service unavailable"))
			return
		}
		result, err := svc.ExpireOverdue(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

type transitionFunc func(ctx context.Context, offerID, actorID uuid.UUID) (*internaloffers.OfferDTO, error)

func transition(svc internaloffers.Service, logg *logger.Logger, fn transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, offerID, ok := actorAndOffer(w, r, svc, logg)
		if !ok {
			return
		}
		offer, err := fn(r.Context(), offerID, actorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, offer)
	}
}

func actorAndOffer(w http.ResponseWriter, r *http.Request, svc internaloffers.Service, logg *logger.Logger) (uuid.UUID, uuid.UUID, bool) {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "offers service unavailable"))
		return uuid.Nil, uuid.Nil, false
	}
	actorID, err := middleware.ActorIDFromContext(r.Context())
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return uuid.Nil, uuid.Nil, false
	}
	offerID, err := validators.ParsePathUUID(r, "offerId", "offer id")
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return uuid.Nil, uuid.Nil, false
	}
	return actorID, offerID, true
}

func sanitize(value *string, maxLen int) *string {
	if value == nil {
		return nil
	}
	cleaned := validators.SanitizeString(*value, maxLen)
	if cleaned == "" {
		return nil
	}
	return &cleaned
}
