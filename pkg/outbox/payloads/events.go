package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/dukalink-backend/pkg/enums"
)

// CheckoutCreatedEvent signals a cart split into vendor orders.
type CheckoutCreatedEvent struct {
	CheckoutAttemptID uuid.UUID            `json:"checkout_attempt_id"`
	Path              enums.SettlementPath `json:"path"`
	OrderIDs          []uuid.UUID          `json:"order_ids"`
	ItemCount         int                  `json:"item_count"`
	Total             decimal.Decimal      `json:"total"`
}

// CheckoutCompletedEvent is emitted once every order of an attempt has been walked.
type CheckoutCompletedEvent struct {
	CheckoutAttemptID uuid.UUID `json:"checkout_attempt_id"`
	OrderCount        int       `json:"order_count"`
}

// OrderCreatedEvent describes one vendor order.
type OrderCreatedEvent struct {
	OrderID           uuid.UUID           `json:"order_id"`
	CheckoutAttemptID uuid.UUID           `json:"checkout_attempt_id"`
	VendorID          uuid.UUID           `json:"vendor_id"`
	Sequence          int                 `json:"sequence"`
	ItemCount         int                 `json:"item_count"`
	Total             decimal.Decimal     `json:"total"`
	PaymentMethod     enums.PaymentMethod `json:"payment_method"`
}

// OrderPaidEvent is emitted when an order flips to paid, by gateway or by hand.
type OrderPaidEvent struct {
	OrderID           uuid.UUID           `json:"order_id"`
	VendorID          uuid.UUID           `json:"vendor_id"`
	Amount            decimal.Decimal     `json:"amount"`
	PaymentMethod     enums.PaymentMethod `json:"payment_method"`
	Receipt           string              `json:"receipt,omitempty"`
	ConfirmedBy       *uuid.UUID          `json:"confirmed_by,omitempty"`
	PaidAt            time.Time           `json:"paid_at"`
	CheckoutRequestID string              `json:"checkout_request_id,omitempty"`
}

// OrderPaymentRejectedEvent is emitted when a vendor rejects a self-declared payment.
type OrderPaymentRejectedEvent struct {
	OrderID    uuid.UUID `json:"order_id"`
	VendorID   uuid.UUID `json:"vendor_id"`
	RejectedBy uuid.UUID `json:"rejected_by"`
	Reason     string    `json:"reason"`
}

// PaymentStatusEvent reports a terminal push-payment outcome.
type PaymentStatusEvent struct {
	PaymentIntentID   uuid.UUID                 `json:"payment_intent_id"`
	CheckoutRequestID string                    `json:"checkout_request_id"`
	OrderID           *uuid.UUID                `json:"order_id,omitempty"`
	Status            enums.PaymentIntentStatus `json:"status"`
	ResultCode        string                    `json:"result_code"`
	ResultDesc        string                    `json:"result_desc"`
	Amount            decimal.Decimal           `json:"amount"`
	Receipt           string                    `json:"receipt,omitempty"`
}
