package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product is the catalog row a cart line points at.
type Product struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	BusinessID uuid.UUID       `gorm:"column:business_id;type:uuid;not null"`
	Name       string          `gorm:"column:name;not null"`
	Price      decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	ImageURL   *string         `gorm:"column:image_url"`
	Active     bool            `gorm:"column:active;not null"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time       `gorm:"column:updated_at;autoUpdateTime"`

	Business *Business `gorm:"foreignKey:BusinessID"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
