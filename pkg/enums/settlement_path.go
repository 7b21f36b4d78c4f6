package enums

import (
	"fmt"
	"strings"
)

// SettlementPath is the customer's choice at checkout.
type SettlementPath string

const (
	SettlementPathPushPayment    SettlementPath = "push_payment"
	SettlementPathMerchantDirect SettlementPath = "merchant_direct"
	SettlementPathCashOnDelivery SettlementPath = "cash_on_delivery"
)

var validSettlementPaths = []SettlementPath{
	SettlementPathPushPayment,
	SettlementPathMerchantDirect,
	SettlementPathCashOnDelivery,
}

// String implements fmt.Stringer.
func (p SettlementPath) String() string {
	return string(p)
}

// IsValid reports whether the value is a known SettlementPath.
func (p SettlementPath) IsValid() bool {
	for _, candidate := range validSettlementPaths {
		if candidate == p {
			return true
		}
	}
	return false
}

// InitialPaymentMethod is the payment method stamped on orders created for this path.
func (p SettlementPath) InitialPaymentMethod() PaymentMethod {
	switch p {
	case SettlementPathMerchantDirect:
		return PaymentMethodMerchantDirect
	case SettlementPathCashOnDelivery:
		return PaymentMethodCashOnDelivery
	default:
		return PaymentMethodPushPending
	}
}

// InitialOrderStatus is the status orders start in for this path.
func (p SettlementPath) InitialOrderStatus() OrderStatus {
	if p == SettlementPathCashOnDelivery {
		return OrderStatusProcessing
	}
	return OrderStatusPending
}

// ParseSettlementPath converts raw input into a SettlementPath.
func ParseSettlementPath(value string) (SettlementPath, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validSettlementPaths {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid settlement path %q", value)
}
