// Package dbtest opens throwaway sqlite databases carrying the full schema.
package dbtest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/dukalink-backend/pkg/db/models"
)

// AllModels lists every persisted model in dependency order.
var AllModels = []any{
	&models.Business{},
	&models.Product{},
	&models.CheckoutAttempt{},
	&models.Order{},
	&models.OrderItem{},
	&models.PaymentIntent{},
	&models.VendorSettlement{},
	&models.OutboxEvent{},
	&models.OutboxDLQ{},
}

// Open returns an isolated in-memory database migrated with AllModels.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(AllModels...); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	// One connection keeps shared-cache sqlite from reporting table locks
	// between a transaction and concurrent readers.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return conn
}
