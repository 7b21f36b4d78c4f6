package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dukalink-backend/pkg/enums"
)

// CheckoutAttempt is the durable checkpoint of a sequential multi-vendor
// payment. Its orders are the rows with checkout_attempt_id = ID ordered by sequence.
type CheckoutAttempt struct {
	ID                       uuid.UUID                  `gorm:"column:id;type:uuid;primaryKey"`
	Token                    string                     `gorm:"column:token;not null;uniqueIndex"`
	SessionKey               string                     `gorm:"column:session_key;not null"`
	CustomerID               *uuid.UUID                 `gorm:"column:customer_id;type:uuid"`
	CustomerName             string                     `gorm:"column:customer_name;not null"`
	Phone                    string                     `gorm:"column:phone;not null"`
	Path                     enums.SettlementPath       `gorm:"column:path;type:text;not null"`
	OrderCount               int                        `gorm:"column:order_count;not null"`
	CurrentIndex             int                        `gorm:"column:current_index;not null;default:0"`
	State                    enums.CheckoutAttemptState `gorm:"column:state;type:text;not null;default:'created'"`
	CurrentCheckoutRequestID *string                    `gorm:"column:current_checkout_request_id"`
	LastError                *string                    `gorm:"column:last_error"`
	CreatedAt                time.Time                  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt                time.Time                  `gorm:"column:updated_at;autoUpdateTime"`
}

func (a *CheckoutAttempt) BeforeCreate(*gorm.DB) error {
	ensureID(&a.ID)
	return nil
}

// Settled reports whether every order of the attempt has been walked.
func (a CheckoutAttempt) Settled() bool {
	return a.CurrentIndex >= a.OrderCount
}
