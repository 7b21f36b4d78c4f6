package enums

import "fmt"

// PaymentMethod records how an order is being paid. Push payments start as
// pending and flip to confirmed once the gateway accepts the STK request.
type PaymentMethod string

const (
	PaymentMethodPushPending    PaymentMethod = "push_payment_pending"
	PaymentMethodPushConfirmed  PaymentMethod = "push_payment_confirmed"
	PaymentMethodMerchantDirect PaymentMethod = "merchant_direct"
	PaymentMethodCashOnDelivery PaymentMethod = "cash_on_delivery"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodPushPending,
	PaymentMethodPushConfirmed,
	PaymentMethodMerchantDirect,
	PaymentMethodCashOnDelivery,
}

// String implements fmt.Stringer.
func (m PaymentMethod) String() string {
	return string(m)
}

// IsValid reports whether the value is a known PaymentMethod.
func (m PaymentMethod) IsValid() bool {
	for _, candidate := range validPaymentMethods {
		if candidate == m {
			return true
		}
	}
	return false
}

// IsPush reports whether the order is settled through the push gateway.
func (m PaymentMethod) IsPush() bool {
	return m == PaymentMethodPushPending || m == PaymentMethodPushConfirmed
}

// ManuallyConfirmable reports whether a vendor may mark the order paid by hand.
func (m PaymentMethod) ManuallyConfirmable() bool {
	return m == PaymentMethodMerchantDirect || m == PaymentMethodCashOnDelivery
}

// ParsePaymentMethod converts raw input into a PaymentMethod.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	for _, candidate := range validPaymentMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}
