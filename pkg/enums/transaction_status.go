package enums

import "fmt"

// TransactionStatus tracks the escrow lifecycle of a settled purchase.
type TransactionStatus string

const (
	TransactionStatusPending           TransactionStatus = "pending"
	TransactionStatusPaymentProcessing TransactionStatus = "payment_processing"
	TransactionStatusPaymentHeld       TransactionStatus = "payment_held"
	TransactionStatusCompleted         TransactionStatus = "completed"
	TransactionStatusRefunded          TransactionStatus = "refunded"
	TransactionStatusPartiallyRefunded TransactionStatus = "partially_refunded"
	TransactionStatusDisputed          TransactionStatus = "disputed"
	TransactionStatusCancelled         TransactionStatus = "cancelled"
)

var validTransactionStatuses = []TransactionStatus{
	TransactionStatusPending,
	TransactionStatusPaymentProcessing,
	TransactionStatusPaymentHeld,
	TransactionStatusCompleted,
	TransactionStatusRefunded,
	TransactionStatusPartiallyRefunded,
	TransactionStatusDisputed,
	TransactionStatusCancelled,
}

// String implements fmt.Stringer.
func (t TransactionStatus) String() string {
	return string(t)
}

// IsValid reports whether the value is a known TransactionStatus.
func (t TransactionStatus) IsValid() bool {
	for _, candidate := range validTransactionStatuses {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTransactionStatus converts raw input into a TransactionStatus.
func ParseTransactionStatus(value string) (TransactionStatus, error) {
	for _, candidate := range validTransactionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction status %q", value)
}

// IsTerminal reports whether the transaction no longer holds the listing.
func (t TransactionStatus) IsTerminal() bool {
	switch t {
	case TransactionStatusCompleted, TransactionStatusRefunded, TransactionStatusCancelled:
		return true
	default:
		return false
	}
}
