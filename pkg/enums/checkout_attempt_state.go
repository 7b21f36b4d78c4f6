package enums

import "fmt"

// CheckoutAttemptState is the checkpoint of the sequential per-vendor payment flow.
type CheckoutAttemptState string

const (
	CheckoutAttemptCreated          CheckoutAttemptState = "created"
	CheckoutAttemptDispatching      CheckoutAttemptState = "dispatching"
	CheckoutAttemptAwaitingCallback CheckoutAttemptState = "awaiting_callback"
	CheckoutAttemptAdvancing        CheckoutAttemptState = "advancing"
	CheckoutAttemptFailed           CheckoutAttemptState = "failed"
	CheckoutAttemptDone             CheckoutAttemptState = "done"
)

var validCheckoutAttemptStates = []CheckoutAttemptState{
	CheckoutAttemptCreated,
	CheckoutAttemptDispatching,
	CheckoutAttemptAwaitingCallback,
	CheckoutAttemptAdvancing,
	CheckoutAttemptFailed,
	CheckoutAttemptDone,
}

// DispatchableCheckoutAttemptStates are the states from which a push may be issued.
var DispatchableCheckoutAttemptStates = []CheckoutAttemptState{
	CheckoutAttemptCreated,
	CheckoutAttemptFailed,
	CheckoutAttemptAdvancing,
}

// String implements fmt.Stringer.
func (s CheckoutAttemptState) String() string {
	return string(s)
}

// IsValid reports whether the value is a known CheckoutAttemptState.
func (s CheckoutAttemptState) IsValid() bool {
	for _, candidate := range validCheckoutAttemptStates {
		if candidate == s {
			return true
		}
	}
	return false
}

// CanDispatch reports whether a push may be issued from this state.
func (s CheckoutAttemptState) CanDispatch() bool {
	for _, candidate := range DispatchableCheckoutAttemptStates {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseCheckoutAttemptState converts raw input into a CheckoutAttemptState.
func ParseCheckoutAttemptState(value string) (CheckoutAttemptState, error) {
	for _, candidate := range validCheckoutAttemptStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid checkout attempt state %q", value)
}
