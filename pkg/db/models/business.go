package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Business is a vendor storefront. PayoutPhone is the merchant-direct number
// shown to customers paying outside the push gateway.
type Business struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OwnerUserID uuid.UUID `gorm:"column:owner_user_id;type:uuid;not null"`
	Name        string    `gorm:"column:name;not null"`
	PayoutPhone string    `gorm:"column:payout_phone;not null;default:''"`
	Active      bool      `gorm:"column:active;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (b *Business) BeforeCreate(*gorm.DB) error {
	ensureID(&b.ID)
	return nil
}
