package enums

import "fmt"

// OfferEventType enumerates the append-only offer_events log entries.
type OfferEventType string

const (
	OfferEventCreated   OfferEventType = "created"
	OfferEventCountered OfferEventType = "countered"
	OfferEventAccepted  OfferEventType = "accepted"
	OfferEventRejected  OfferEventType = "rejected"
	OfferEventCancelled OfferEventType = "cancelled"
	OfferEventExpired   OfferEventType = "expired"
	OfferEventExtended  OfferEventType = "extended"
)

var validOfferEventTypes = []OfferEventType{
	OfferEventCreated,
	OfferEventCountered,
	OfferEventAccepted,
	OfferEventRejected,
	OfferEventCancelled,
	OfferEventExpired,
	OfferEventExtended,
}

// String implements fmt.Stringer.
func (o OfferEventType) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OfferEventType.
func (o OfferEventType) IsValid() bool {
	for _, candidate := range validOfferEventTypes {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseOfferEventType converts raw input into an OfferEventType.
func ParseOfferEventType(value string) (OfferEventType, error) {
	for _, candidate := range validOfferEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid offer event type %q", value)
}
