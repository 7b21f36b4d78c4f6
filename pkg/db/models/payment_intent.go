package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/dukalink-backend/pkg/enums"
)

// PaymentIntent is one STK push request accepted by the gateway, keyed by the
// gateway's CheckoutRequestID.
type PaymentIntent struct {
	ID                 uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	CheckoutRequestID  string                    `gorm:"column:checkout_request_id;not null;uniqueIndex"`
	MerchantRequestID  string                    `gorm:"column:merchant_request_id;not null;default:''"`
	OrderID            *uuid.UUID                `gorm:"column:order_id;type:uuid"`
	CheckoutAttemptID  *uuid.UUID                `gorm:"column:checkout_attempt_id;type:uuid"`
	Phone              string                    `gorm:"column:phone;not null"`
	Amount             decimal.Decimal           `gorm:"column:amount;type:numeric(12,2);not null"`
	Status             enums.PaymentIntentStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	ResultCode         *string                   `gorm:"column:result_code"`
	ResultDesc         *string                   `gorm:"column:result_desc"`
	MpesaReceiptNumber *string                   `gorm:"column:mpesa_receipt_number"`
	TransactionDate    *string                   `gorm:"column:transaction_date"`
	CompletedAt        *time.Time                `gorm:"column:completed_at"`
	CreatedAt          time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *PaymentIntent) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
