package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/tradepost-backend/pkg/redis"
)

const (
	markerProcessing = "processing"
	markerDone       = "done"

	// A claim left behind by a crashed instance expires after this long and
	// Stripe's next redelivery is processed normally.
	defaultClaimTTL = 5 * time.Minute
)

// ClaimState says what to do with a delivery.
type ClaimState int

const (
	// ClaimAcquired means this delivery owns the event and must process it.
	ClaimAcquired ClaimState = iota
	// ClaimDuplicate means the event was already processed.
	ClaimDuplicate
	// ClaimInFlight means another delivery is processing the event right now.
	ClaimInFlight
)

var errEventIDRequired = errors.New("event id is required")

// IdempotencyGuard deduplicates Stripe deliveries by event id. A delivery
// first claims the event, then marks it done on success or releases it on
// failure so Stripe's retry is not swallowed.
type IdempotencyGuard struct {
	store    redis.IdempotencyStore
	ttl      time.Duration
	claimTTL time.Duration
	scope    string
}

// NewIdempotencyGuard remembers processed events for ttl under scope.
func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	switch {
	case store == nil:
		return nil, errors.New("idempotency store is required")
	case ttl < 0:
		return nil, errors.New("ttl must be non-negative")
	case scope == "":
		return nil, errors.New("scope is required")
	}
	return &IdempotencyGuard{store: store, ttl: ttl, claimTTL: defaultClaimTTL, scope: scope}, nil
}

// Claim tries to take ownership of eventID.
func (g *IdempotencyGuard) Claim(ctx context.Context, eventID string) (ClaimState, error) {
	key, err := g.key(eventID)
	if err != nil {
		return ClaimInFlight, err
	}
	acquired, err := g.store.SetNX(ctx, key, markerProcessing, g.claimTTL)
	if err != nil {
		return ClaimInFlight, fmt.Errorf("claim %s: %w", eventID, err)
	}
	if acquired {
		return ClaimAcquired, nil
	}

	marker, err := g.store.Get(ctx, key)
	switch {
	case redis.IsNil(err), err == nil && marker == "":
		// The claim expired between SetNX and Get; let Stripe redeliver.
		return ClaimInFlight, nil
	case err != nil:
		return ClaimInFlight, fmt.Errorf("read claim %s: %w", eventID, err)
	case marker == markerDone:
		return ClaimDuplicate, nil
	default:
		return ClaimInFlight, nil
	}
}

// Complete records eventID as processed for the guard's ttl.
func (g *IdempotencyGuard) Complete(ctx context.Context, eventID string) error {
	key, err := g.key(eventID)
	if err != nil {
		return err
	}
	return g.store.Set(ctx, key, markerDone, g.ttl)
}

// Release drops the claim so a later delivery can process eventID.
func (g *IdempotencyGuard) Release(ctx context.Context, eventID string) error {
	key, err := g.key(eventID)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, key)
}

func (g *IdempotencyGuard) key(eventID string) (string, error) {
	if eventID == "" {
		return "", errEventIDRequired
	}
	return g.store.IdempotencyKey(g.scope, eventID), nil
}
