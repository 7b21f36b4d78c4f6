package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/dukalink-backend/pkg/db/models"
	"github.com/angelmondragon/dukalink-backend/pkg/enums"
)

type customerConfirmRequest struct {
	TransactionCode string `json:"transaction_code" validate:"required,max=32"`
}

type vendorPaymentRequest struct {
	Action          string `json:"action" validate:"required,oneof=confirm reject"`
	TransactionCode string `json:"transaction_code" validate:"omitempty,max=32"`
	Reason          string `json:"reason" validate:"omitempty,max=500"`
}

type orderItemResponse struct {
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

type orderResponse struct {
	ID                 uuid.UUID           `json:"id"`
	VendorID           uuid.UUID           `json:"vendor_id"`
	VendorName         string              `json:"vendor_name,omitempty"`
	CustomerName       string              `json:"customer_name"`
	CustomerPhone      string              `json:"customer_phone"`
	Total              decimal.Decimal     `json:"total"`
	Status             enums.OrderStatus   `json:"status"`
	Paid               bool                `json:"paid"`
	PaymentMethod      enums.PaymentMethod `json:"payment_method"`
	PaymentReference   string              `json:"payment_reference"`
	TransactionCode    *string             `json:"transaction_code,omitempty"`
	PaymentNotes       *string             `json:"payment_notes,omitempty"`
	PaymentConfirmedAt *time.Time          `json:"payment_confirmed_at,omitempty"`
	CreatedAt          time.Time           `json:"created_at"`
	Items              []orderItemResponse `json:"items,omitempty"`
}

func newOrderResponse(order *models.Order) orderResponse {
	resp := orderResponse{
		ID:                 order.ID,
		VendorID:           order.VendorID,
		CustomerName:       order.CustomerName,
		CustomerPhone:      order.CustomerPhone,
		Total:              order.Total,
		Status:             order.Status,
		Paid:               order.Paid,
		PaymentMethod:      order.PaymentMethod,
		PaymentReference:   order.PaymentReference,
		TransactionCode:    order.TransactionCode,
		PaymentNotes:       order.PaymentNotes,
		PaymentConfirmedAt: order.PaymentConfirmedAt,
		CreatedAt:          order.CreatedAt,
	}
	if order.Vendor != nil {
		resp.VendorName = order.Vendor.Name
	}
	for _, item := range order.Items {
		resp.Items = append(resp.Items, orderItemResponse{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			LineTotal:   item.LineTotal(),
		})
	}
	return resp
}
