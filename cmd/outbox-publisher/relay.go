package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tradepost-backend/pkg/db/models"
	"github.com/angelmondragon/tradepost-backend/pkg/enums"
	"github.com/angelmondragon/tradepost-backend/pkg/logger"
	"github.com/angelmondragon/tradepost-backend/pkg/metrics"
	"github.com/angelmondragon/tradepost-backend/pkg/outbox/registry"
)

// processBatch claims one batch and relays it inside a single transaction.
// It reports whether any rows were claimed.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	var claimed int
	started := s.now()
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		claimed = len(events)

		// Once a row fails, later rows of its aggregate stay unpublished so
		// they never overtake it on the topic.
		held := map[string]bool{}
		for _, event := range events {
			key := event.OrderingKey()
			if held[key] {
				s.metrics.ObserveEvent(string(event.EventType), metrics.OutboxHeld)
				continue
			}
			retry, err := s.relay(ctx, tx, event)
			if err != nil {
				return err
			}
			if retry {
				held[key] = true
			}
		}
		return nil
	})
	if claimed > 0 {
		s.metrics.ObserveBatch(s.now().Sub(started))
	}
	return claimed > 0, err
}

// relay publishes one row and records the outcome. retry is true when the row
// stays pending for another attempt.
func (s *Service) relay(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) (retry bool, err error) {
	ctx = s.eventContext(ctx, event)

	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return false, s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err)
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"event_id": resolved.Envelope.EventID,
		"topic":    resolved.Descriptor.Topic,
	})

	publishErr := s.publish(ctx, event, resolved)
	if publishErr == nil {
		if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return false, fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.metrics.ObserveEvent(string(event.EventType), metrics.OutboxPublished)
		s.logg.Info(ctx, "outbox event published")
		return false, nil
	}

	var nonRetry registry.NonRetryableError
	if errors.As(publishErr, &nonRetry) {
		return false, s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, publishErr)
	}
	attempt := event.AttemptCount + 1
	if attempt >= s.maxAttempts {
		return false, s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonMaxAttempts,
			fmt.Errorf("gave up after %d attempts: %w", attempt, publishErr))
	}

	if err := s.repo.MarkFailedTx(tx, event.ID, publishErr); err != nil {
		return false, fmt.Errorf("mark failure %s: %w", event.ID, err)
	}
	s.metrics.ObserveEvent(string(event.EventType), metrics.OutboxRetry)
	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
		"next_attempt": attempt,
		"error":        publishErr.Error(),
	}), "outbox publish failed, will retry")
	return true, nil
}

func (s *Service) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	msg := cause.Error()
	entry := models.OutboxDLQ{
		ID:            uuid.New(),
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  event.AttemptCount,
		FailedAt:      s.now().UTC(),
	}
	if err := s.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := s.repo.MarkTerminalTx(tx, event.ID, cause, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	s.metrics.ObserveEvent(string(event.EventType), metrics.OutboxDeadLettered)
	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
		"error_reason": reason,
		"error":        msg,
	}), "outbox event dead-lettered")
	return nil
}

func (s *Service) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := s.publisherFactory(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("no publisher for topic %s", topic))
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, buildMessage(event, resolved))
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher for %s returned no result", topic))
	}
	_, err := result.Get(publishCtx)
	return err
}

// buildMessage publishes the stored envelope verbatim; attributes let
// subscribers filter without decoding the body.
func buildMessage(event models.OutboxEvent, resolved *registry.ResolvedEvent) *gcppubsub.Message {
	envelope := resolved.Envelope
	attrs := map[string]string{
		"event_id":       envelope.EventID,
		"event_type":     string(event.EventType),
		"aggregate_type": string(event.AggregateType),
		"aggregate_id":   event.AggregateID.String(),
		"schema_version": strconv.Itoa(envelope.Version),
		"created_at":     event.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if envelope.Actor != nil && envelope.Actor.UserID != uuid.Nil {
		attrs["actor_id"] = envelope.Actor.UserID.String()
	}
	return &gcppubsub.Message{
		Data:        event.Payload,
		Attributes:  attrs,
		OrderingKey: event.OrderingKey(),
	}
}

func (s *Service) eventContext(ctx context.Context, event models.OutboxEvent) context.Context {
	ctx = s.logg.WithFields(ctx, map[string]any{
		"outbox_id":     event.ID.String(),
		"event_type":    event.EventType,
		"ordering_key":  event.OrderingKey(),
		"attempt_count": event.AttemptCount,
	})
	switch event.AggregateType {
	case enums.AggregateOffer:
		ctx = s.logg.WithOfferID(ctx, event.AggregateID.String())
	case enums.AggregateTransaction:
		ctx = s.logg.WithTransactionID(ctx, event.AggregateID.String())
	case enums.AggregateSellerAccount:
		ctx = s.logg.WithField(ctx, logger.FieldUserID, event.AggregateID.String())
	}
	return ctx
}
