package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/dukalink-backend/pkg/enums"
)

// Order is one vendor's share of a checkout. Total is frozen at creation.
type Order struct {
	ID                 uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	CheckoutAttemptID  *uuid.UUID          `gorm:"column:checkout_attempt_id;type:uuid"`
	Sequence           int                 `gorm:"column:sequence;not null;default:0"`
	VendorID           uuid.UUID           `gorm:"column:vendor_id;type:uuid;not null"`
	CustomerID         *uuid.UUID          `gorm:"column:customer_id;type:uuid"`
	CustomerName       string              `gorm:"column:customer_name;not null"`
	CustomerPhone      string              `gorm:"column:customer_phone;not null"`
	SessionKey         string              `gorm:"column:session_key;not null"`
	Total              decimal.Decimal     `gorm:"column:total;type:numeric(12,2);not null"`
	Status             enums.OrderStatus   `gorm:"column:status;type:text;not null;default:'pending'"`
	Paid               bool                `gorm:"column:paid;not null;default:false"`
	PaymentMethod      enums.PaymentMethod `gorm:"column:payment_method;type:text;not null"`
	PaymentReference   string              `gorm:"column:payment_reference;not null;default:''"`
	CheckoutRequestID  *string             `gorm:"column:checkout_request_id"`
	TransactionCode    *string             `gorm:"column:transaction_code"`
	PaymentNotes       *string             `gorm:"column:payment_notes"`
	PaymentConfirmedBy *uuid.UUID          `gorm:"column:payment_confirmed_by;type:uuid"`
	PaymentConfirmedAt *time.Time          `gorm:"column:payment_confirmed_at"`
	CreatedAt          time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time           `gorm:"column:updated_at;autoUpdateTime"`

	Items  []OrderItem `gorm:"foreignKey:OrderID"`
	Vendor *Business   `gorm:"foreignKey:VendorID"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

// OrderItem is an immutable priced line of an Order.
type OrderItem struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID     uuid.UUID       `gorm:"column:order_id;type:uuid;not null"`
	ProductID   uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	VendorID    uuid.UUID       `gorm:"column:vendor_id;type:uuid;not null"`
	ProductName string          `gorm:"column:product_name;not null"`
	Quantity    int             `gorm:"column:quantity;not null"`
	UnitPrice   decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}

// LineTotal is unit price times quantity.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
