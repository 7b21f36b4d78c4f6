package orders

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/dukalink-backend/pkg/enums"
)

// Actor identifies the caller of a customer-side operation. Guests are known
// by session key only.
type Actor struct {
	UserID     *uuid.UUID
	SessionKey string
}

// InstructionLine tells the customer how to pay one vendor directly.
type InstructionLine struct {
	OrderID          uuid.UUID       `json:"order_id"`
	Sequence         int             `json:"sequence"`
	VendorID         uuid.UUID       `json:"vendor_id"`
	VendorName       string          `json:"vendor_name"`
	PayoutPhone      string          `json:"payout_phone"`
	Amount           decimal.Decimal `json:"amount"`
	AccountReference string          `json:"account_reference"`
	TransactionCode  *string         `json:"transaction_code,omitempty"`
	PaymentNotes     *string         `json:"payment_notes,omitempty"`
	Paid             bool            `json:"paid"`
}

// InstructionsView lists every order of a merchant-direct checkout.
type InstructionsView struct {
	Token  string               `json:"token"`
	Path   enums.SettlementPath `json:"path"`
	Total  decimal.Decimal      `json:"total"`
	Orders []InstructionLine    `json:"orders"`
}
