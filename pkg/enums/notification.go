package enums

import "fmt"

// NotificationType maps to the notification_type enum in Postgres.
type NotificationType string

const (
	NotificationTypeOfferReceived      NotificationType = "offer_received"
	NotificationTypeOfferAccepted      NotificationType = "offer_accepted"
	NotificationTypeOfferRejected      NotificationType = "offer_rejected"
	NotificationTypeOfferCountered     NotificationType = "offer_countered"
	NotificationTypeOfferCancelled     NotificationType = "offer_cancelled"
	NotificationTypeOfferExpired       NotificationType = "offer_expired"
	NotificationTypeOfferExtended      NotificationType = "offer_extended"
	NotificationTypePurchaseConfirmed  NotificationType = "purchase_confirmed"
	NotificationTypeItemSold           NotificationType = "item_sold"
	NotificationTypeSystemAnnouncement NotificationType = "system_announcement"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeOfferReceived,
	NotificationTypeOfferAccepted,
	NotificationTypeOfferRejected,
	NotificationTypeOfferCountered,
	NotificationTypeOfferCancelled,
	NotificationTypeOfferExpired,
	NotificationTypeOfferExtended,
	NotificationTypePurchaseConfirmed,
	NotificationTypeItemSold,
	NotificationTypeSystemAnnouncement,
}

// String implements fmt.Stringer.
func (n NotificationType) String() string {
	return string(n)
}

// IsValid reports whether the value is a known NotificationType.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw input into a NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
