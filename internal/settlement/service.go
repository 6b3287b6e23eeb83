// Package settlement turns a confirmed payment into exactly one escrow
// transaction, no matter how many times or from which path it is triggered.
package settlement

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tradepost-backend/internal/email"
	"github.com/angelmondragon/tradepost-backend/internal/notifications"
	"github.com/angelmondragon/tradepost-backend/internal/payments"
	"github.com/angelmondragon/tradepost-backend/internal/users"
	"github.com/angelmondragon/tradepost-backend/pkg/db"
	"github.com/angelmondragon/tradepost-backend/pkg/db/models"
	"github.com/angelmondragon/tradepost-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradepost-backend/pkg/errors"
	"github.com/angelmondragon/tradepost-backend/pkg/logger"
	"github.com/angelmondragon/tradepost-backend/pkg/metrics"
	"github.com/angelmondragon/tradepost-backend/pkg/outbox"
	"github.com/angelmondragon/tradepost-backend/pkg/outbox/payloads"
)

// SettleInput identifies the payment to settle. The optional fields are what
// the caller believes the payment is for; they must agree with the intent.
type SettleInput struct {
	PaymentIntentID string
	ListingID       *uuid.UUID
	OfferID         *uuid.UUID
	ExpectedBuyerID *uuid.UUID
	Source          enums.SettlementSource
}

// Result is the transaction for the intent. Created is true only for the
// call that inserted it.
type Result struct {
	Transaction *models.Transaction
	Created     bool
}

// Service materializes escrow transactions.
type Service interface {
	Settle(ctx context.Context, in SettleInput) (*Result, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type transactionStore interface {
	FindByPaymentIntentID(ctx context.Context, intentID string) (*models.Transaction, error)
	CreateTx(tx *gorm.DB, txn *models.Transaction) error
}

type listingStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Listing, error)
	MarkSoldTx(tx *gorm.DB, listingID uuid.UUID, price int64, soldAt time.Time, transactionID uuid.UUID) (bool, error)
}

type intentReader interface {
	GetIntentMetadata(ctx context.Context, intentID string) (*payments.IntentMetadata, error)
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type notifier interface {
	Notify(ctx context.Context, msg notifications.Message) error
}

type contactDirectory interface {
	LookupMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*users.Contact, error)
}

// ServiceParams wires the settlement service.
type ServiceParams struct {
	DB           txRunner
	Transactions transactionStore
	Listings     listingStore
	Payments     intentReader
	Outbox       outboxEmitter
	Notifier     notifier
	Users        contactDirectory
	Email        email.Sender
	Metrics      *metrics.SettlementMetrics
	Logger       *logger.Logger
	EscrowHold   time.Duration
	Clock        func() time.Time
}

type service struct {
	db       txRunner
	txns     transactionStore
	listings listingStore
	payments intentReader
	outbox   outboxEmitter
	notifier notifier
	users    contactDirectory
	email    email.Sender
	metrics  *metrics.SettlementMetrics
	logg     *logger.Logger
	hold     time.Duration
	clock    func() time.Time
	runAsync func(fn func())
}

const defaultEscrowHold = 7 * 24 * time.Hour

// NewService validates dependencies and builds the settlement service.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "db runner required")
	}
	if params.Transactions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction store required")
	}
	if params.Listings == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "listing store required")
	}
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment gateway required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	hold := params.EscrowHold
	if hold <= 0 {
		hold = defaultEscrowHold
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &service{
		db:       params.DB,
		txns:     params.Transactions,
		listings: params.Listings,
		payments: params.Payments,
		outbox:   params.Outbox,
		notifier: params.Notifier,
		users:    params.Users,
		email:    params.Email,
		metrics:  params.Metrics,
		logg:     params.Logger,
		hold:     hold,
		clock:    clock,
		runAsync: func(fn func()) { go fn() },
	}, nil
}

// Settle creates the transaction for a confirmed payment intent, marks the
// listing sold and queues the settled event in one DB transaction. Repeated
// or concurrent calls for the same intent return the first caller's row.
func (s *service) Settle(ctx context.Context, in SettleInput) (*Result, error) {
	start := time.Now()
	in.PaymentIntentID = strings.TrimSpace(in.PaymentIntentID)
	if in.PaymentIntentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id required")
	}
	if !in.Source.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown settlement source")
	}
	source := in.Source.String()
	ctx = s.logg.WithFields(s.logg.WithPaymentIntentID(ctx, in.PaymentIntentID), map[string]any{
		"settlement_source": source,
	})

	existing, err := s.txns.FindByPaymentIntentID(ctx, in.PaymentIntentID)
	if err != nil {
		s.metrics.Observe(source, metrics.SettlementError, time.Since(start))
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction")
	}
	if existing != nil {
		if err := checkBuyer(in, existing.BuyerID); err != nil {
			return nil, err
		}
		s.metrics.Observe(source, metrics.SettlementAlreadySettled, time.Since(start))
		s.logg.Info(ctx, "payment already settled")
		return &Result{Transaction: existing}, nil
	}

	md, err := s.payments.GetIntentMetadata(ctx, in.PaymentIntentID)
	if err != nil {
		if errors.Is(err, payments.ErrMetadataMissing) {
			s.metrics.Observe(source, metrics.SettlementMetadataMissing, time.Since(start))
			s.logg.Error(ctx, "payment intent metadata missing", err)
			return nil, pkgerrors.Wrap(pkgerrors.CodePaymentMetadataMissing, err, "payment intent is missing settlement metadata")
		}
		s.metrics.Observe(source, metrics.SettlementError, time.Since(start))
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch payment intent")
	}
	if !md.Succeeded() {
		s.metrics.Observe(source, metrics.SettlementError, time.Since(start))
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment has not been confirmed").
			WithDetails(map[string]any{"intent_status": md.Status})
	}
	if err := checkExpectations(in, md); err != nil {
		return nil, err
	}
	if err := reconcile(md); err != nil {
		s.metrics.Observe(source, metrics.SettlementFeeMismatch, time.Since(start))
		s.logg.Error(ctx, "settlement amounts do not reconcile", err)
		return nil, err
	}

	now := s.clock().UTC()
	txn := &models.Transaction{
		ID:                uuid.New(),
		PaymentIntentID:   in.PaymentIntentID,
		ListingID:         md.ListingID,
		OfferID:           md.OfferID,
		BuyerID:           md.BuyerID,
		SellerID:          md.SellerID,
		FinalPrice:        md.Split.Gross,
		PlatformFee:       md.Split.PlatformFee,
		SellerReceives:    md.Split.SellerNet,
		Currency:          strings.ToLower(md.Currency),
		Status:            enums.TransactionStatusPaymentHeld,
		EscrowReleaseDate: now.Add(s.hold),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.txns.CreateTx(tx, txn); err != nil {
			return err
		}
		flipped, err := s.listings.MarkSoldTx(tx, txn.ListingID, txn.FinalPrice, now, txn.ID)
		if err != nil {
			return err
		}
		if !flipped {
			s.logg.Warn(s.logg.WithListingID(ctx, txn.ListingID.String()), "listing was already sold; keeping first sale details")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventTransactionSettled,
			AggregateType: enums.AggregateTransaction,
			AggregateID:   txn.ID,
			Version:       1,
			OccurredAt:    now,
			Data:          settledPayload(txn, in.Source),
		})
	})
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return s.resolveConflict(ctx, in, start, err)
		}
		s.metrics.Observe(source, metrics.SettlementError, time.Since(start))
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist transaction")
	}

	s.metrics.Observe(source, metrics.SettlementCreated, time.Since(start))
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"transaction_id": txn.ID.String(),
		"listing_id":     txn.ListingID.String(),
		"final_price":    txn.FinalPrice,
		"platform_fee":   txn.PlatformFee,
	})
	s.logg.Info(logCtx, "transaction settled")

	created := *txn
	bg := context.WithoutCancel(logCtx)
	s.runAsync(func() { s.dispatch(bg, &created) })

	return &Result{Transaction: txn, Created: true}, nil
}

// resolveConflict handles a unique violation: another caller already
// settled the intent, or the listing has a different active transaction.
func (s *service) resolveConflict(ctx context.Context, in SettleInput, start time.Time, cause error) (*Result, error) {
	source := in.Source.String()
	winner, err := s.txns.FindByPaymentIntentID(ctx, in.PaymentIntentID)
	if err != nil {
		s.metrics.Observe(source, metrics.SettlementError, time.Since(start))
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload transaction after conflict")
	}
	if winner == nil {
		s.metrics.Observe(source, metrics.SettlementError, time.Since(start))
		s.logg.Error(ctx, "listing already has an active transaction for another payment", cause)
		return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, cause, "listing already has an active transaction")
	}
	if err := checkBuyer(in, winner.BuyerID); err != nil {
		return nil, err
	}
	s.metrics.Observe(source, metrics.SettlementConflictReread, time.Since(start))
	s.logg.Info(s.logg.WithField(ctx, "transaction_id", winner.ID.String()), "concurrent settlement won by another caller")
	return &Result{Transaction: winner}, nil
}

func checkBuyer(in SettleInput, buyerID uuid.UUID) error {
	if in.ExpectedBuyerID != nil && *in.ExpectedBuyerID != buyerID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "payment belongs to another buyer")
	}
	return nil
}

func checkExpectations(in SettleInput, md *payments.IntentMetadata) error {
	if err := checkBuyer(in, md.BuyerID); err != nil {
		return err
	}
	if in.ListingID != nil && *in.ListingID != md.ListingID {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment is for a different listing")
	}
	if in.OfferID != nil && (md.OfferID == nil || *md.OfferID != *in.OfferID) {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment is for a different offer")
	}
	return nil
}

// reconcile fails closed unless the recorded split adds up and matches what
// the processor actually charged.
func reconcile(md *payments.IntentMetadata) error {
	if err := md.Split.Validate(); err != nil {
		return err
	}
	if md.Split.Gross <= 0 || md.Split.Gross != md.AmountCharged {
		return pkgerrors.New(pkgerrors.CodeFeeMismatch, "recorded gross does not match the amount charged").
			WithDetails(map[string]any{
				"gross":          md.Split.Gross,
				"amount_charged": md.AmountCharged,
			})
	}
	return nil
}

func settledPayload(txn *models.Transaction, source enums.SettlementSource) payloads.TransactionSettledEvent {
	return payloads.TransactionSettledEvent{
		TransactionID:     txn.ID,
		PaymentIntentID:   txn.PaymentIntentID,
		ListingID:         txn.ListingID,
		OfferID:           txn.OfferID,
		BuyerID:           txn.BuyerID,
		SellerID:          txn.SellerID,
		FinalPrice:        txn.FinalPrice,
		PlatformFee:       txn.PlatformFee,
		SellerReceives:    txn.SellerReceives,
		Currency:          txn.Currency,
		EscrowReleaseDate: txn.EscrowReleaseDate,
		Source:            source,
	}
}
