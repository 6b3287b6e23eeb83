package stripewebhook

import (
	"context"
	"encoding/json"

	"github.com/angelmondragon/tradepost-backend/internal/accounts"
	"github.com/angelmondragon/tradepost-backend/internal/payments"
	"github.com/angelmondragon/tradepost-backend/internal/settlement"
	"github.com/angelmondragon/tradepost-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradepost-backend/pkg/errors"
	"github.com/angelmondragon/tradepost-backend/pkg/logger"
	"github.com/stripe/stripe-go/v84"
)

type settler interface {
	Settle(ctx context.Context, in settlement.SettleInput) (*settlement.Result, error)
}

type accountSyncer interface {
	ApplySnapshot(ctx context.Context, stripeAccountID string, snap accounts.Snapshot) error
}

type ServiceParams struct {
	Settlement settler
	Accounts   accountSyncer
	Logger     *logger.Logger
}

// Service routes verified Stripe events to settlement and payout account sync.
type Service struct {
	settlement settler
	accounts   accountSyncer
	logg       *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Settlement == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "settlement service required")
	}
	if params.Accounts == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "accounts service required")
	}
	return &Service{
		settlement: params.Settlement,
		accounts:   params.Accounts,
		logg:       params.Logger,
	}, nil
}

func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent event")
		}
		return s.settle(ctx, event.ID, &intent)
	case stripe.EventTypeAccountUpdated:
		var acct stripe.Account
		if err := json.Unmarshal(event.Data.Raw, &acct); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode account event")
		}
		if acct.ID == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "account id missing")
		}
		return s.accounts.ApplySnapshot(ctx, acct.ID, payments.SnapshotFromAccount(&acct))
	default:
		return nil
	}
}

func (s *Service) settle(ctx context.Context, eventID string, intent *stripe.PaymentIntent) error {
	if intent.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment intent id missing")
	}
	_, err := s.settlement.Settle(ctx, settlement.SettleInput{
		PaymentIntentID: intent.ID,
		Source:          enums.SettlementSourceWebhook,
	})
	if err == nil || !isTerminal(err) {
		return err
	}

	// Stripe retries anything non-2xx; these failures will not heal on redelivery.
	if s.logg != nil {
		logCtx := s.logg.WithPaymentIntentID(ctx, intent.ID)
		logCtx = s.logg.WithField(logCtx, "stripe_event_id", eventID)
		s.logg.Error(logCtx, "stripe webhook settlement rejected", err)
	}
	return nil
}

func isTerminal(err error) bool {
	return pkgerrors.IsCode(err, pkgerrors.CodePaymentMetadataMissing) ||
		pkgerrors.IsCode(err, pkgerrors.CodeFeeMismatch) ||
		pkgerrors.IsCode(err, pkgerrors.CodeConflict) ||
		pkgerrors.IsCode(err, pkgerrors.CodeForbidden) ||
		pkgerrors.IsCode(err, pkgerrors.CodeValidation)
}
