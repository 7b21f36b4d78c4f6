package helpers

import (
	"strings"

	"github.com/angelmondragon/dukalink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dukalink-backend/pkg/errors"
	"github.com/angelmondragon/dukalink-backend/pkg/mpesa"
)

const maxCustomerNameLength = 120

// CustomerDetails is the validated contact information of a checkout.
type CustomerDetails struct {
	Name  string
	Phone string
	Path  enums.SettlementPath
}

// ValidateCustomer normalizes the checkout form. The phone is returned in
// the gateway's international form.
func ValidateCustomer(name, phone, paymentMethod string) (CustomerDetails, error) {
	fields := map[string]string{}

	name = strings.Join(strings.Fields(name), " ")
	switch {
	case name == "":
		fields["name"] = "name is required"
	case len(name) > maxCustomerNameLength:
		fields["name"] = "name is too long"
	}

	normalized := ""
	if strings.TrimSpace(phone) == "" {
		fields["phone"] = "phone is required"
	} else if value, err := mpesa.NormalizePhone(phone); err != nil {
		fields["phone"] = "enter a valid Safaricom number, e.g. 0712345678"
	} else {
		normalized = value
	}

	path, err := enums.ParseSettlementPath(paymentMethod)
	if err != nil {
		fields["payment_method"] = "choose push_payment, merchant_direct or cash_on_delivery"
	}

	if len(fields) > 0 {
		return CustomerDetails{}, pkgerrors.New(pkgerrors.CodeValidation, "checkout details are invalid").
			WithDetails(map[string]any{"fields": fields})
	}
	return CustomerDetails{Name: name, Phone: normalized, Path: path}, nil
}
