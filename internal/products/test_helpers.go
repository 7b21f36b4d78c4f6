package products

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/dukalink-backend/pkg/db/models"
)

// SeedBusiness inserts an active business owned by owner.
func SeedBusiness(t testing.TB, conn *gorm.DB, owner uuid.UUID, name, payoutPhone string) models.Business {
	t.Helper()
	business := models.Business{OwnerUserID: owner, Name: name, PayoutPhone: payoutPhone, Active: true}
	if err := conn.Create(&business).Error; err != nil {
		t.Fatalf("seed business: %v", err)
	}
	return business
}

// SeedProduct inserts an active product priced at price.
func SeedProduct(t testing.TB, conn *gorm.DB, businessID uuid.UUID, name, price string) models.Product {
	t.Helper()
	product := models.Product{BusinessID: businessID, Name: name, Price: decimal.RequireFromString(price), Active: true}
	if err := conn.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return product
}
