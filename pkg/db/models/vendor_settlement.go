package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/dukalink-backend/pkg/enums"
)

// VendorSettlement is what the platform owes a vendor for one paid order.
type VendorSettlement struct {
	ID               uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	OrderID          uuid.UUID              `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	VendorID         uuid.UUID              `gorm:"column:vendor_id;type:uuid;not null"`
	Amount           decimal.Decimal        `gorm:"column:amount;type:numeric(12,2);not null"`
	CommissionAmount decimal.Decimal        `gorm:"column:commission_amount;type:numeric(12,2);not null"`
	NetAmount        decimal.Decimal        `gorm:"column:net_amount;type:numeric(12,2);not null"`
	Status           enums.SettlementStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	MpesaReceipt     *string                `gorm:"column:mpesa_receipt"`
	TransactionID    *string                `gorm:"column:transaction_id"`
	CompletedAt      *time.Time             `gorm:"column:completed_at"`
	CreatedAt        time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *VendorSettlement) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}
