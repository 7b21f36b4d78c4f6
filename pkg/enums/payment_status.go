package enums

import "fmt"

// PaymentIntentStatus tracks the lifecycle of a push-payment request.
type PaymentIntentStatus string

const (
	PaymentIntentPending   PaymentIntentStatus = "pending"
	PaymentIntentCompleted PaymentIntentStatus = "completed"
	PaymentIntentFailed    PaymentIntentStatus = "failed"
	PaymentIntentCancelled PaymentIntentStatus = "cancelled"
)

var validPaymentIntentStatuses = []PaymentIntentStatus{
	PaymentIntentPending,
	PaymentIntentCompleted,
	PaymentIntentFailed,
	PaymentIntentCancelled,
}

// String implements fmt.Stringer.
func (s PaymentIntentStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known PaymentIntentStatus.
func (s PaymentIntentStatus) IsValid() bool {
	for _, candidate := range validPaymentIntentStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the intent can no longer change.
func (s PaymentIntentStatus) IsTerminal() bool {
	return s == PaymentIntentCompleted || s == PaymentIntentFailed || s == PaymentIntentCancelled
}

// ParsePaymentIntentStatus converts raw input into a PaymentIntentStatus.
func ParsePaymentIntentStatus(value string) (PaymentIntentStatus, error) {
	for _, candidate := range validPaymentIntentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment intent status %q", value)
}
