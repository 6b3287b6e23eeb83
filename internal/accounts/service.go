package accounts

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tradepost-backend/pkg/db"
	"github.com/angelmondragon/tradepost-backend/pkg/db/models"
	"github.com/angelmondragon/tradepost-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradepost-backend/pkg/errors"
	"github.com/angelmondragon/tradepost-backend/pkg/logger"
	"github.com/angelmondragon/tradepost-backend/pkg/outbox"
	"github.com/angelmondragon/tradepost-backend/pkg/outbox/payloads"
)

// Service caches whether sellers can be paid out.
type Service interface {
	Link(ctx context.Context, userID uuid.UUID, stripeAccountID string) (*StatusDTO, error)
	Status(ctx context.Context, userID uuid.UUID) (*StatusDTO, error)
	Resync(ctx context.Context, userID uuid.UUID) (*StatusDTO, error)
	ApplySnapshot(ctx context.Context, stripeAccountID string, snap Snapshot) error
	RequireFullySetUp(ctx context.Context, sellerID uuid.UUID) (*models.SellerAccount, error)
}

// Fetcher reads live account capabilities from the payment processor.
type Fetcher interface {
	FetchAccount(ctx context.Context, accountID string) (Snapshot, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ServiceParams wires the account service.
type ServiceParams struct {
	DB         txRunner
	Repository *Repository
	Fetcher    Fetcher
	Outbox     outboxEmitter
	Logger     *logger.Logger
	Clock      func() time.Time
}

type service struct {
	db      txRunner
	repo    *Repository
	fetcher Fetcher
	outbox  outboxEmitter
	logg    *logger.Logger
	clock   func() time.Time
}

const stripeAccountPrefix = "acct_"

// NewService validates dependencies and builds the account service.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "db runner required")
	}
	if params.Repository == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "accounts repository required")
	}
	if params.Fetcher == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "account fetcher required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &service{
		db:      params.DB,
		repo:    params.Repository,
		fetcher: params.Fetcher,
		outbox:  params.Outbox,
		logg:    params.Logger,
		clock:   clock,
	}, nil
}

func (s *service) Link(ctx context.Context, userID uuid.UUID, stripeAccountID string) (*StatusDTO, error) {
	stripeAccountID = strings.TrimSpace(stripeAccountID)
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if !strings.HasPrefix(stripeAccountID, stripeAccountPrefix) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stripe account id must start with acct_")
	}

	owner, err := s.repo.FindByStripeAccountID(ctx, stripeAccountID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load seller account")
	}
	if owner != nil && owner.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "stripe account already linked to another seller")
	}

	snap, err := s.fetch(ctx, stripeAccountID)
	if err != nil {
		return nil, err
	}
	account, err := s.store(ctx, userID, stripeAccountID, snap)
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithUserID(ctx, userID.String()), "seller account linked")
	return toDTO(account), nil
}

func (s *service) Status(ctx context.Context, userID uuid.UUID) (*StatusDTO, error) {
	account, err := s.linked(ctx, userID)
	if err != nil {
		return nil, err
	}
	return toDTO(account), nil
}

func (s *service) Resync(ctx context.Context, userID uuid.UUID) (*StatusDTO, error) {
	account, err := s.linked(ctx, userID)
	if err != nil {
		return nil, err
	}
	refreshed, err := s.resync(ctx, account)
	if err != nil {
		return nil, err
	}
	return toDTO(refreshed), nil
}

// ApplySnapshot overwrites the cache from an account.updated notification.
// Accounts that were never linked here are ignored.
func (s *service) ApplySnapshot(ctx context.Context, stripeAccountID string, snap Snapshot) error {
	if strings.TrimSpace(stripeAccountID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe account id required")
	}
	account, err := s.repo.FindByStripeAccountID(ctx, stripeAccountID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load seller account")
	}
	if account == nil {
		s.logg.Warn(s.logg.WithField(ctx, "stripe_account_id", stripeAccountID), "account update for unknown seller account ignored")
		return nil
	}
	_, err = s.store(ctx, account.UserID, account.StripeAccountID, snap)
	return err
}

// RequireFullySetUp returns the seller's account when it can take charges and
// receive payouts. A negative cached answer is re-checked live once before the
// seller is blocked.
func (s *service) RequireFullySetUp(ctx context.Context, sellerID uuid.UUID) (*models.SellerAccount, error) {
	account, err := s.repo.FindByUserID(ctx, sellerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load seller account")
	}
	if account == nil {
		return nil, pkgerrors.New(pkgerrors.CodePayoutAccountIncomplete, "seller has not linked a payout account").
			WithDetails(map[string]any{"seller_id": sellerID})
	}
	if account.FullySetUp() {
		return account, nil
	}

	refreshed, err := s.resync(ctx, account)
	if err != nil {
		return nil, err
	}
	if !refreshed.FullySetUp() {
		return nil, pkgerrors.New(pkgerrors.CodePayoutAccountIncomplete, "seller payout account is not fully set up").
			WithDetails(map[string]any{
				"seller_id":         sellerID,
				"charges_enabled":   refreshed.ChargesEnabled,
				"payouts_enabled":   refreshed.PayoutsEnabled,
				"details_submitted": refreshed.DetailsSubmitted,
			})
	}
	return refreshed, nil
}

func (s *service) linked(ctx context.Context, userID uuid.UUID) (*models.SellerAccount, error) {
	account, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load seller account")
	}
	if account == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no payout account linked")
	}
	return account, nil
}

func (s *service) resync(ctx context.Context, account *models.SellerAccount) (*models.SellerAccount, error) {
	snap, err := s.fetch(ctx, account.StripeAccountID)
	if err != nil {
		return nil, err
	}
	return s.store(ctx, account.UserID, account.StripeAccountID, snap)
}

func (s *service) fetch(ctx context.Context, stripeAccountID string) (Snapshot, error) {
	snap, err := s.fetcher.FetchAccount(ctx, stripeAccountID)
	if err != nil {
		if pkgerrors.As(err) != nil {
			return Snapshot{}, err
		}
		return Snapshot{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch stripe account")
	}
	return snap, nil
}

func (s *service) store(ctx context.Context, userID uuid.UUID, stripeAccountID string, snap Snapshot) (*models.SellerAccount, error) {
	now := s.clock().UTC()
	account := &models.SellerAccount{
		UserID:           userID,
		StripeAccountID:  stripeAccountID,
		ChargesEnabled:   snap.ChargesEnabled,
		PayoutsEnabled:   snap.PayoutsEnabled,
		DetailsSubmitted: snap.DetailsSubmitted,
		SyncedAt:         &now,
		UpdatedAt:        now,
	}
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Upsert(ctx, account); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSellerAccountSynced,
			AggregateType: enums.AggregateSellerAccount,
			AggregateID:   userID,
			Version:       1,
			OccurredAt:    now,
			Data: payloads.SellerAccountSyncedEvent{
				UserID:           userID,
				StripeAccountID:  stripeAccountID,
				ChargesEnabled:   snap.ChargesEnabled,
				PayoutsEnabled:   snap.PayoutsEnabled,
				DetailsSubmitted: snap.DetailsSubmitted,
				SyncedAt:         now,
			},
		})
	})
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "stripe account already linked to another seller")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store seller account")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"user_id":           userID.String(),
		"stripe_account_id": stripeAccountID,
		"fully_set_up":      snap.FullySetUp(),
	})
	s.logg.Info(logCtx, "seller account synced")
	return account, nil
}
