package payments

import (
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/dukalink-backend/pkg/enums"
)

// ErrAllSettled is returned by DispatchNext once every order of the attempt
// has been walked.
var ErrAllSettled = errors.New("all orders of the checkout are settled")

// DispatchResult is the waiting view shown while the customer answers a push prompt.
type DispatchResult struct {
	Token             string          `json:"token"`
	AttemptID         uuid.UUID       `json:"attempt_id"`
	Index             int             `json:"index"`
	OrderCount        int             `json:"order_count"`
	OrderID           uuid.UUID       `json:"order_id"`
	VendorName        string          `json:"vendor_name"`
	Amount            decimal.Decimal `json:"amount"`
	CheckoutRequestID string          `json:"checkout_request_id"`
	CustomerMessage   string          `json:"customer_message,omitempty"`
	Existing          bool            `json:"existing"`
}

// AttemptOrderView is one order's progress within a checkout attempt.
type AttemptOrderView struct {
	OrderID           uuid.UUID           `json:"order_id"`
	Sequence          int                 `json:"sequence"`
	VendorID          uuid.UUID           `json:"vendor_id"`
	VendorName        string              `json:"vendor_name"`
	Amount            decimal.Decimal     `json:"amount"`
	Paid              bool                `json:"paid"`
	Status            enums.OrderStatus   `json:"status"`
	PaymentMethod     enums.PaymentMethod `json:"payment_method"`
	CheckoutRequestID *string             `json:"checkout_request_id,omitempty"`
}

// AttemptView is the read model of a checkout attempt.
type AttemptView struct {
	Token                    string                     `json:"token"`
	Path                     enums.SettlementPath       `json:"path"`
	State                    enums.CheckoutAttemptState `json:"state"`
	CurrentIndex             int                        `json:"current_index"`
	OrderCount               int                        `json:"order_count"`
	PaidCount                int                        `json:"paid_count"`
	Total                    decimal.Decimal            `json:"total"`
	CurrentCheckoutRequestID *string                    `json:"current_checkout_request_id,omitempty"`
	LastError                *string                    `json:"last_error,omitempty"`
	CanRetry                 bool                       `json:"can_retry"`
	Orders                   []AttemptOrderView         `json:"orders"`
}

// ReconcileOutcome names what a reconciliation did.
type ReconcileOutcome string

const (
	ReconcileUnknown   ReconcileOutcome = "unknown"
	ReconcileDuplicate ReconcileOutcome = "duplicate"
	ReconcilePending   ReconcileOutcome = "pending"
	ReconcileCompleted ReconcileOutcome = "completed"
	ReconcileFailed    ReconcileOutcome = "failed"
	ReconcileCancelled ReconcileOutcome = "cancelled"
)

// ReconcileResult reports the effect of one gateway outcome.
type ReconcileResult struct {
	Outcome ReconcileOutcome
	Intent  IntentRef
	Next    *DispatchResult
}

// IntentRef identifies the intent a result refers to.
type IntentRef struct {
	ID                uuid.UUID
	CheckoutRequestID string
	OrderID           *uuid.UUID
	AttemptID         *uuid.UUID
}

// StatusView answers a client polling for a push payment outcome.
type StatusView struct {
	CheckoutRequestID string                    `json:"checkout_request_id"`
	Status            enums.PaymentIntentStatus `json:"status"`
	ResultCode        string                    `json:"result_code,omitempty"`
	ResultDesc        string                    `json:"result_desc,omitempty"`
	Receipt           string                    `json:"receipt,omitempty"`
	Amount            *decimal.Decimal          `json:"amount,omitempty"`
	OrderID           *uuid.UUID                `json:"order_id,omitempty"`
	VendorName        string                    `json:"vendor_name,omitempty"`
	Index             *int                      `json:"index,omitempty"`
	OrderCount        *int                      `json:"order_count,omitempty"`
	AttemptToken      string                    `json:"attempt_token,omitempty"`
	RedirectURL       string                    `json:"redirect_url,omitempty"`
	Source            string                    `json:"source"`
}

// SuccessView summarizes a paid order and what is still left to pay.
type SuccessView struct {
	OrderID         uuid.UUID           `json:"order_id"`
	VendorName      string              `json:"vendor_name"`
	Amount          decimal.Decimal     `json:"amount"`
	Receipt         string              `json:"receipt,omitempty"`
	PaymentMethod   enums.PaymentMethod `json:"payment_method"`
	AttemptToken    string              `json:"attempt_token,omitempty"`
	RemainingOrders []AttemptOrderView  `json:"remaining_orders"`
	HasMorePayments bool                `json:"has_more_payments"`
	ContinueURL     string              `json:"continue_url,omitempty"`
}
