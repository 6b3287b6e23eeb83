package offers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tradepost-backend/internal/notifications"
	"github.com/angelmondragon/tradepost-backend/pkg/config"
	"github.com/angelmondragon/tradepost-backend/pkg/db/models"
	"github.com/angelmondragon/tradepost-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradepost-backend/pkg/errors"
	"github.com/angelmondragon/tradepost-backend/pkg/logger"
	"github.com/angelmondragon/tradepost-backend/pkg/metrics"
	"github.com/angelmondragon/tradepost-backend/pkg/money"
	"github.com/angelmondragon/tradepost-backend/pkg/outbox"
	"github.com/angelmondragon/tradepost-backend/pkg/pagination"
)

// Service negotiates offers between a buyer and a seller.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*OfferDTO, error)
	Get(ctx context.Context, offerID, actorID uuid.UUID) (*OfferDTO, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
	Events(ctx context.Context, offerID, actorID uuid.UUID) ([]EventDTO, error)
	Accept(ctx context.Context, offerID, sellerID uuid.UUID) (*OfferDTO, error)
	Reject(ctx context.Context, offerID, sellerID uuid.UUID) (*OfferDTO, error)
	Counter(ctx context.Context, input CounterInput) (*OfferDTO, error)
	Cancel(ctx context.Context, offerID, buyerID uuid.UUID) (*OfferDTO, error)
	Extend(ctx context.Context, input ExtendInput) (*OfferDTO, error)
	ExpireOverdue(ctx context.Context) (SweepResult, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type listingReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Listing, error)
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type notifier interface {
	Notify(ctx context.Context, msg notifications.Message) error
}

// Policy bounds how long an offer may stay open.
type Policy struct {
	DefaultTTL     time.Duration
	MinWindow      time.Duration
	MaxWindow      time.Duration
	SweepBatchSize int
}

// PolicyFromConfig reads the offer window settings.
func PolicyFromConfig(cfg config.MarketplaceConfig) Policy {
	return Policy{
		DefaultTTL:     cfg.OfferDefaultTTL,
		MinWindow:      cfg.OfferMinWindow,
		MaxWindow:      cfg.OfferMaxWindow,
		SweepBatchSize: cfg.SweepBatchSize,
	}
}

func (p Policy) expiry(now time.Time, hours *int) (time.Time, error) {
	window := p.DefaultTTL
	if hours != nil {
		window = time.Duration(*hours) * time.Hour
	}
	if window < p.MinWindow || window > p.MaxWindow {
		return time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, "offer expiry outside the allowed window").
			WithDetails(map[string]any{
				"min_hours": int(p.MinWindow.Hours()),
				"max_hours": int(p.MaxWindow.Hours()),
			})
	}
	return now.Add(window), nil
}

// ServiceParams wires the offer service.
type ServiceParams struct {
	DB         txRunner
	Repository *Repository
	Listings   listingReader
	Outbox     outboxEmitter
	Notifier   notifier
	Metrics    *metrics.OfferMetrics
	Logger     *logger.Logger
	Policy     Policy
	Clock      func() time.Time
}

type service struct {
	db       txRunner
	repo     *Repository
	listings listingReader
	outbox   outboxEmitter
	notifier notifier
	metrics  *metrics.OfferMetrics
	logg     *logger.Logger
	policy   Policy
	clock    func() time.Time
}

var errTransitionLost = errors.New("offer transition lost")

const defaultSweepBatchSize = 500

// NewService validates dependencies and builds the offer service.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "db runner required")
	}
	if params.Repository == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "offers repository required")
	}
	if params.Listings == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "listings reader required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	policy := params.Policy
	if policy.MinWindow <= 0 || policy.MaxWindow < policy.MinWindow {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "offer window misconfigured")
	}
	if policy.DefaultTTL < policy.MinWindow || policy.DefaultTTL > policy.MaxWindow {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "default offer ttl outside window")
	}
	if policy.SweepBatchSize <= 0 {
		policy.SweepBatchSize = defaultSweepBatchSize
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &service{
		db:       params.DB,
		repo:     params.Repository,
		listings: params.Listings,
		outbox:   params.Outbox,
		notifier: params.Notifier,
		metrics:  params.Metrics,
		logg:     params.Logger,
		policy:   policy,
		clock:    clock,
	}, nil
}

func (s *service) now() time.Time {
	return s.clock().UTC()
}

func (s *service) Create(ctx context.Context, input CreateInput) (*OfferDTO, error) {
	if input.ListingID == uuid.Nil || input.BuyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "listing id and buyer id required")
	}
	if input.Amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "offer amount must be positive")
	}

	listing, err := s.listings.FindByID(ctx, input.ListingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "listing not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load listing")
	}
	if listing.Status != enums.ListingStatusActive {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "listing is not accepting offers")
	}
	if listing.SellerID == input.BuyerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "sellers cannot make offers on their own listing")
	}

	now := s.now()
	expiresAt, err := s.policy.expiry(now, input.ExpiresInHours)
	if err != nil {
		return nil, err
	}
	terms := normalizeTerms(input.Terms)
	offer := &models.Offer{
		ID:                 uuid.New(),
		ListingID:          listing.ID,
		BuyerID:            input.BuyerID,
		SellerID:           listing.SellerID,
		Amount:             input.Amount,
		Currency:           listing.Currency,
		Message:            terms.Message,
		Contingency:        terms.Contingency,
		TransportIncluded:  terms.TransportIncluded,
		InspectionIncluded: terms.InspectionIncluded,
		Status:             enums.OfferStatusPending,
		ExpiresAt:          expiresAt,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	ctx = s.logg.WithOfferID(ctx, offer.ID.String())
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, offer); err != nil {
			return err
		}
		return s.record(ctx, tx, offer, nil, enums.OfferEventCreated, enums.EventOfferCreated, &input.BuyerID, RoleBuyer, now)
	})
	if err != nil {
		return nil, asDependency(err, "create offer")
	}

	s.metrics.IncTransition(string(enums.OfferEventCreated))
	s.logg.Info(ctx, "offer created")
	s.notify(ctx, notifications.Message{
		UserID:  offer.SellerID,
		Type:    enums.NotificationTypeOfferReceived,
		Title:   "New offer received",
		Body:    fmt.Sprintf("You received an offer of %s.", displayAmount(offer)),
		Link:    offerLink(offer.ID),
		Payload: map[string]any{"offer_id": offer.ID, "listing_id": offer.ListingID, "amount": offer.Amount},
	})

	dto := toDTO(offer, now)
	return &dto, nil
}

func (s *service) Get(ctx context.Context, offerID, actorID uuid.UUID) (*OfferDTO, error) {
	offer, err := s.loadForParticipant(ctx, offerID, actorID)
	if err != nil {
		return nil, err
	}
	dto := toDTO(offer, s.now())
	return &dto, nil
}

func (s *service) Events(ctx context.Context, offerID, actorID uuid.UUID) ([]EventDTO, error) {
	if _, err := s.loadForParticipant(ctx, offerID, actorID); err != nil {
		return nil, err
	}
	rows, err := s.repo.Events(ctx, offerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load offer events")
	}
	out := make([]EventDTO, 0, len(rows))
	for i := range rows {
		out = append(out, toEventDTO(&rows[i]))
	}
	return out, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	role := params.Role
	if role == "" {
		role = RoleBuyer
	}
	if role != RoleBuyer && role != RoleSeller {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "role must be buyer or seller")
	}
	if params.Status != nil && !params.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid offer status filter")
	}

	query := listOffersParams{
		UserID:    params.UserID,
		Role:      role,
		Status:    params.Status,
		ListingID: params.ListingID,
		Limit:     params.Limit,
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list offers")
	}
	now := s.now()
	items := make([]OfferDTO, 0, len(rows))
	for i := range rows {
		items = append(items, toDTO(&rows[i], now))
	}
	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	return &ListResult{Items: items, Cursor: cursor}, nil
}

func (s *service) Accept(ctx context.Context, offerID, sellerID uuid.UUID) (*OfferDTO, error) {
	return s.apply(ctx, action{
		offerID:     offerID,
		actorID:     sellerID,
		actor:       RoleSeller,
		event:       enums.OfferEventAccepted,
		outboxEvent: enums.EventOfferAccepted,
		from:        enums.OfferStatusPending,
		to:          enums.OfferStatusAccepted,
		expiry:      expiryNotPassed,
		precheck:    s.requireActiveListing,
		message: func(o *models.Offer) notifications.Message {
			return notifications.Message{
				UserID: o.BuyerID,
				Type:   enums.NotificationTypeOfferAccepted,
				Title:  "Offer accepted",
				Body:   fmt.Sprintf("Your offer of %s was accepted. Complete checkout to buy the item.", displayAmount(o)),
			}
		},
	})
}

func (s *service) Reject(ctx context.Context, offerID, sellerID uuid.UUID) (*OfferDTO, error) {
	return s.apply(ctx, action{
		offerID:     offerID,
		actorID:     sellerID,
		actor:       RoleSeller,
		event:       enums.OfferEventRejected,
		outboxEvent: enums.EventOfferRejected,
		from:        enums.OfferStatusPending,
		to:          enums.OfferStatusRejected,
		expiry:      expiryNotPassed,
		message: func(o *models.Offer) notifications.Message {
			return notifications.Message{
				UserID: o.BuyerID,
				Type:   enums.NotificationTypeOfferRejected,
				Title:  "Offer declined",
				Body:   fmt.Sprintf("Your offer of %s was declined.", displayAmount(o)),
			}
		},
	})
}

func (s *service) Counter(ctx context.Context, input CounterInput) (*OfferDTO, error) {
	if input.Amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "counter amount must be positive")
	}
	terms := normalizeTerms(input.Terms)
	return s.apply(ctx, action{
		offerID:     input.OfferID,
		actorID:     input.SellerID,
		actor:       RoleSeller,
		event:       enums.OfferEventCountered,
		outboxEvent: enums.EventOfferCountered,
		from:        enums.OfferStatusPending,
		to:          enums.OfferStatusCountered,
		expiry:      expiryNotPassed,
		mutate: func(o *models.Offer, now time.Time) (map[string]any, error) {
			expiresAt, err := s.policy.expiry(now, input.ExpiresInHours)
			if err != nil {
				return nil, err
			}
			o.Amount = input.Amount
			o.Message = terms.Message
			o.Contingency = terms.Contingency
			o.TransportIncluded = terms.TransportIncluded
			o.InspectionIncluded = terms.InspectionIncluded
			o.ExpiresAt = expiresAt
			return map[string]any{
				"amount":              o.Amount,
				"message":             o.Message,
				"contingency":         o.Contingency,
				"transport_included":  o.TransportIncluded,
				"inspection_included": o.InspectionIncluded,
				"expires_at":          o.ExpiresAt,
			}, nil
		},
		message: func(o *models.Offer) notifications.Message {
			return notifications.Message{
				UserID: o.BuyerID,
				Type:   enums.NotificationTypeOfferCountered,
				Title:  "Counter offer",
				Body:   fmt.Sprintf("The seller countered with %s.", displayAmount(o)),
			}
		},
	})
}

func (s *service) Cancel(ctx context.Context, offerID, buyerID uuid.UUID) (*OfferDTO, error) {
	return s.apply(ctx, action{
		offerID:     offerID,
		actorID:     buyerID,
		actor:       RoleBuyer,
		event:       enums.OfferEventCancelled,
		outboxEvent: enums.EventOfferCancelled,
		from:        enums.OfferStatusPending,
		to:          enums.OfferStatusCancelled,
		expiry:      expiryNotPassed,
		message: func(o *models.Offer) notifications.Message {
			return notifications.Message{
				UserID: o.SellerID,
				Type:   enums.NotificationTypeOfferCancelled,
				Title:  "Offer withdrawn",
				Body:   fmt.Sprintf("The buyer withdrew their offer of %s.", displayAmount(o)),
			}
		},
	})
}

func (s *service) Extend(ctx context.Context, input ExtendInput) (*OfferDTO, error) {
	return s.apply(ctx, action{
		offerID:     input.OfferID,
		actorID:     input.BuyerID,
		actor:       RoleBuyer,
		event:       enums.OfferEventExtended,
		outboxEvent: enums.EventOfferExtended,
		from:        enums.OfferStatusExpired,
		to:          enums.OfferStatusPending,
		expiry:      expiryAny,
		precheck:    s.requireActiveListing,
		mutate: func(o *models.Offer, now time.Time) (map[string]any, error) {
			expiresAt, err := s.policy.expiry(now, input.ExpiresInHours)
			if err != nil {
				return nil, err
			}
			o.ExpiresAt = expiresAt
			return map[string]any{"expires_at": expiresAt}, nil
		},
		message: func(o *models.Offer) notifications.Message {
			return notifications.Message{
				UserID: o.SellerID,
				Type:   enums.NotificationTypeOfferExtended,
				Title:  "Offer reopened",
				Body:   fmt.Sprintf("The buyer reopened their offer of %s.", displayAmount(o)),
			}
		},
	})
}

type action struct {
	offerID     uuid.UUID
	actorID     uuid.UUID
	actor       Role
	event       enums.OfferEventType
	outboxEvent enums.OutboxEventType
	from        enums.OfferStatus
	to          enums.OfferStatus
	expiry      expiryGuard
	precheck    func(ctx context.Context, offer *models.Offer) error
	mutate      func(offer *models.Offer, now time.Time) (map[string]any, error)
	message     func(offer *models.Offer) notifications.Message
}

// apply runs one actor-driven transition: authorize, CAS the status, append
// the event and queue the outbox row in one transaction, then notify.
func (s *service) apply(ctx context.Context, a action) (*OfferDTO, error) {
	if a.offerID == uuid.Nil || a.actorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "offer id and actor id required")
	}
	ctx = s.logg.WithOfferID(ctx, a.offerID.String())

	offer, err := s.load(ctx, a.offerID)
	if err != nil {
		return nil, err
	}
	if err := authorize(offer, a.actorID, a.actor); err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.checkState(offer, a, now); err != nil {
		s.metrics.IncInvalidTransition(string(a.event))
		return nil, err
	}
	if a.precheck != nil {
		if err := a.precheck(ctx, offer); err != nil {
			return nil, err
		}
	}

	next := *offer
	next.Status = a.to
	next.UpdatedAt = now
	var updates map[string]any
	if a.mutate != nil {
		if updates, err = a.mutate(&next, now); err != nil {
			return nil, err
		}
	}

	from := offer.Status
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).Transition(ctx, offer.ID, transition{
			From:    a.from,
			To:      a.to,
			Expiry:  a.expiry,
			At:      now,
			Updates: updates,
		})
		if err != nil {
			return err
		}
		if !ok {
			return errTransitionLost
		}
		return s.record(ctx, tx, &next, &from, a.event, a.outboxEvent, &a.actorID, a.actor, now)
	})
	if errors.Is(err, errTransitionLost) {
		s.metrics.IncInvalidTransition(string(a.event))
		s.logg.Warn(ctx, "offer transition lost to a concurrent change")
		return nil, invalidTransition(offer.ID, a.event, "offer changed state before this action completed")
	}
	if err != nil {
		return nil, asDependency(err, fmt.Sprintf("%s offer", a.event))
	}

	s.metrics.IncTransition(string(a.event))
	s.logg.Info(s.logg.WithField(ctx, "offer_event", string(a.event)), "offer transitioned")
	if a.message != nil {
		msg := a.message(&next)
		msg.Link = offerLink(next.ID)
		msg.Payload = map[string]any{"offer_id": next.ID, "listing_id": next.ListingID, "status": next.Status, "amount": next.Amount}
		s.notify(ctx, msg)
	}

	dto := toDTO(&next, now)
	return &dto, nil
}

func (s *service) checkState(offer *models.Offer, a action, now time.Time) error {
	if offer.Status != a.from {
		return invalidTransition(offer.ID, a.event, fmt.Sprintf("offer is %s", offer.Status))
	}
	if a.expiry == expiryNotPassed && !offer.ExpiresAt.After(now) {
		return invalidTransition(offer.ID, a.event, "offer has expired")
	}
	return nil
}

func (s *service) requireActiveListing(ctx context.Context, offer *models.Offer) error {
	listing, err := s.listings.FindByID(ctx, offer.ListingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "listing not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load listing")
	}
	if listing.Status != enums.ListingStatusActive {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "listing is no longer active")
	}
	return nil
}

func (s *service) record(ctx context.Context, tx *gorm.DB, offer *models.Offer, from *enums.OfferStatus, eventType enums.OfferEventType, outboxType enums.OutboxEventType, actorID *uuid.UUID, role Role, at time.Time) error {
	payload, err := marshalSnapshot(snapshotOf(offer, from))
	if err != nil {
		return err
	}
	event := &models.OfferEvent{
		OfferID:   offer.ID,
		Type:      eventType,
		ActorID:   actorID,
		Payload:   payload,
		CreatedAt: at,
	}
	if err := s.repo.WithTx(tx).AppendEvent(ctx, event); err != nil {
		return err
	}

	var actor *outbox.ActorRef
	if actorID != nil {
		actor = &outbox.ActorRef{UserID: *actorID, Role: string(role)}
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     outboxType,
		AggregateType: enums.AggregateOffer,
		AggregateID:   offer.ID,
		Actor:         actor,
		Version:       1,
		OccurredAt:    at,
		Data:          transitionPayload(offer, from, eventType, actorID),
	})
}

func (s *service) load(ctx context.Context, offerID uuid.UUID) (*models.Offer, error) {
	offer, err := s.repo.FindByID(ctx, offerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "offer not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load offer")
	}
	return offer, nil
}

func (s *service) loadForParticipant(ctx context.Context, offerID, actorID uuid.UUID) (*models.Offer, error) {
	if offerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "offer id required")
	}
	offer, err := s.load(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if offer.BuyerID != actorID && offer.SellerID != actorID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "offer belongs to other users")
	}
	return offer, nil
}

func (s *service) notify(ctx context.Context, msg notifications.Message) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, msg); err != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"recipient_id":      msg.UserID.String(),
			"notification_type": string(msg.Type),
			"error":             err.Error(),
		})
		s.logg.Warn(logCtx, "offer notification failed")
	}
}

func authorize(offer *models.Offer, actorID uuid.UUID, role Role) error {
	switch role {
	case RoleSeller:
		if offer.SellerID != actorID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the seller can do this")
		}
	case RoleBuyer:
		if offer.BuyerID != actorID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the buyer can do this")
		}
	}
	return nil
}

func invalidTransition(offerID uuid.UUID, event enums.OfferEventType, reason string) error {
	return pkgerrors.New(pkgerrors.CodeInvalidStateTransition, reason).
		WithDetails(map[string]any{"offer_id": offerID, "action": string(event)})
}

func asDependency(err error, msg string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}

func normalizeTerms(t Terms) Terms {
	t.Message = trimmedOrNil(t.Message)
	t.Contingency = trimmedOrNil(t.Contingency)
	return t
}

func trimmedOrNil(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func displayAmount(o *models.Offer) string {
	return fmt.Sprintf("%s %s", money.Format(o.Amount), strings.ToUpper(o.Currency))
}

func offerLink(id uuid.UUID) string {
	return "/offers/" + id.String()
}
