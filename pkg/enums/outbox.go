package enums

import "fmt"

// OutboxAggregateType names the aggregate an outbox event describes.
type OutboxAggregateType string

const (
	AggregateCheckoutAttempt OutboxAggregateType = "checkout_attempt"
	AggregateOrder           OutboxAggregateType = "order"
	AggregatePaymentIntent   OutboxAggregateType = "payment_intent"
	AggregateSettlement      OutboxAggregateType = "vendor_settlement"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateCheckoutAttempt,
	AggregateOrder,
	AggregatePaymentIntent,
	AggregateSettlement,
}

// IsValid reports whether the value is a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType names a domain event published through the outbox.
type OutboxEventType string

const (
	EventCheckoutCreated      OutboxEventType = "checkout.created"
	EventCheckoutCompleted    OutboxEventType = "checkout.completed"
	EventOrderCreated         OutboxEventType = "order.created"
	EventOrderPaid            OutboxEventType = "order.paid"
	EventOrderPaymentRejected OutboxEventType = "order.payment_rejected"
	EventPaymentCompleted     OutboxEventType = "payment.completed"
	EventPaymentFailed        OutboxEventType = "payment.failed"
)

var validEventTypes = []OutboxEventType{
	EventCheckoutCreated,
	EventCheckoutCompleted,
	EventOrderCreated,
	EventOrderPaid,
	EventOrderPaymentRejected,
	EventPaymentCompleted,
	EventPaymentFailed,
}

// IsValid reports whether the value is a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
