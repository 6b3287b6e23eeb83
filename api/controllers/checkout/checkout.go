package checkout

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/tradepost-backend/api/middleware"
	"github.com/angelmondragon/tradepost-backend/api/responses"
	"github.com/angelmondragon/tradepost-backend/api/validators"
	"github.com/angelmondragon/tradepost-backend/internal/payments"
	"github.com/angelmondragon/tradepost-backend/internal/settlement"
	"github.com/angelmondragon/tradepost-backend/internal/transactions"
	"github.com/angelmondragon/tradepost-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradepost-backend/pkg/errors"
	"github.com/angelmondragon/tradepost-backend/pkg/logger"
)

type settler interface {
	Settle(ctx context.Context, in settlement.SettleInput) (*settlement.Result, error)
}

type createIntentRequest struct {
	OfferID string `json:"offer_id" validate:"required,uuid"`
}

// ReturnResponse is what the buyer's browser sees after the Stripe redirect.
type ReturnResponse struct {
	Status      string                       `json:"status"`
	Transaction *transactions.TransactionDTO `json:"transaction,omitempty"`
}

const (
	returnStatusSettled    = "settled"
	returnStatusProcessing = "processing"
)

// CreateIntent starts payment for an accepted offer.
func CreateIntent(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		buyerID, err := middleware.ActorIDFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req createIntentRequest
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		offerID, err := uuid.Parse(req.OfferID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid offer id"))
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithOfferID(ctx, offerID.String())
		}
		dto, err := svc.CreateIntentForOffer(ctx, offerID, buyerID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, dto)
	}
}

// Return settles the payment named by the redirect when the webhook has not
// arrived yet. A payment that is still confirming answers 202 so the client
// can poll.
func Return(svc settler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlement service unavailable"))
			return
		}
		buyerID, err := middleware.ActorIDFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		intentID := strings.TrimSpace(r.URL.Query().Get("payment_intent"))
		if intentID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "payment_intent is required").WithDetails(map[string]any{"field": "payment_intent"}))
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithPaymentIntentID(ctx, intentID)
		}

		result, err := svc.Settle(ctx, settlement.SettleInput{
			PaymentIntentID: intentID,
			ExpectedBuyerID: &buyerID,
			Source:          enums.SettlementSourceRedirect,
		})
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
				responses.WriteSuccessStatus(w, http.StatusAccepted, ReturnResponse{Status: returnStatusProcessing})
				return
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, ReturnResponse{
			Status:      returnStatusSettled,
			Transaction: transactions.FromModel(result.Transaction),
		})
	}
}
