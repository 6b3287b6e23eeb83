package enums

import (
	"fmt"
	"slices"
)

// OutboxAggregateType maps to aggregate_type_enum. It prefixes the Pub/Sub
// ordering key.
type OutboxAggregateType string

const (
	AggregateOffer         OutboxAggregateType = "offer"
	AggregateTransaction   OutboxAggregateType = "transaction"
	AggregateSellerAccount OutboxAggregateType = "seller_account"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOffer,
	AggregateTransaction,
	AggregateSellerAccount,
}

func (a OutboxAggregateType) IsValid() bool {
	return slices.Contains(validAggregateTypes, a)
}

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parseEnum(validAggregateTypes, value, "aggregate type")
}

// OutboxEventType maps to event_type_enum.
type OutboxEventType string

const (
	EventOfferCreated        OutboxEventType = "offer_created"
	EventOfferAccepted       OutboxEventType = "offer_accepted"
	EventOfferRejected       OutboxEventType = "offer_rejected"
	EventOfferCountered      OutboxEventType = "offer_countered"
	EventOfferCancelled      OutboxEventType = "offer_cancelled"
	EventOfferExpired        OutboxEventType = "offer_expired"
	EventOfferExtended       OutboxEventType = "offer_extended"
	EventTransactionSettled  OutboxEventType = "transaction_settled"
	EventSellerAccountSynced OutboxEventType = "seller_account_synced"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOfferCreated,
	EventOfferAccepted,
	EventOfferRejected,
	EventOfferCountered,
	EventOfferCancelled,
	EventOfferExpired,
	EventOfferExtended,
	EventTransactionSettled,
	EventSellerAccountSynced,
}

// OutboxEventTypes lists every event type the outbox can carry.
func OutboxEventTypes() []OutboxEventType {
	return slices.Clone(validOutboxEventTypes)
}

func (e OutboxEventType) IsValid() bool {
	return slices.Contains(validOutboxEventTypes, e)
}

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parseEnum(validOutboxEventTypes, value, "event type")
}

// OutboxDLQErrorReason records why the relay dead-lettered an event.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

var validOutboxDLQErrorReasons = []OutboxDLQErrorReason{
	OutboxDLQReasonMaxAttempts,
	OutboxDLQReasonNonRetryable,
}

func (r OutboxDLQErrorReason) IsValid() bool {
	return slices.Contains(validOutboxDLQErrorReasons, r)
}

func ParseOutboxDLQErrorReason(value string) (OutboxDLQErrorReason, error) {
	return parseEnum(validOutboxDLQErrorReasons, value, "dlq error reason")
}

func parseEnum[T ~string](valid []T, value, label string) (T, error) {
	if slices.Contains(valid, T(value)) {
		return T(value), nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", label, value)
}
