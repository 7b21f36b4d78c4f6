package checkout

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/dukalink-backend/internal/payments"
	"github.com/angelmondragon/dukalink-backend/pkg/enums"
)

// Input is the checkout form.
type Input struct {
	SessionKey    string
	UserID        *uuid.UUID
	Name          string
	Phone         string
	PaymentMethod string
}

// Result tells the client where the chosen settlement path continues.
type Result struct {
	Token       string                     `json:"token"`
	Path        enums.SettlementPath       `json:"path"`
	State       enums.CheckoutAttemptState `json:"state"`
	OrderIDs    []uuid.UUID                `json:"order_ids"`
	OrderCount  int                        `json:"order_count"`
	Total       decimal.Decimal            `json:"total"`
	RedirectURL string                     `json:"redirect_url"`
	Payment     *payments.DispatchResult   `json:"payment,omitempty"`
}
