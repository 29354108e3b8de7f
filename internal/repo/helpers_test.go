package repo

import (
	"fmt"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-refund-backend/internal/domain"
)

func newTestDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()
	// Use a unique in-memory database per test to avoid schema leakage across tests.
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	// Single connection so the foreign_keys pragma applies to every statement.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	db.Exec("PRAGMA foreign_keys=ON;")

	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func newRefundDB(t *testing.T) *gorm.DB {
	t.Helper()
	return newTestDB(t, domain.All()...)
}

func seedRefund(t *testing.T, db *gorm.DB, id, orderID, merchantID string, status domain.RefundStatus, source domain.Source, createdAt time.Time) *domain.RefundRequest {
	t.Helper()
	r := &domain.RefundRequest{
		ID:          id,
		OrderID:     orderID,
		OrderNumber: "N-" + orderID,
		MerchantID:  merchantID,
		Status:      status,
		Source:      source,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
	if err := db.Omit("Notes", "Timeline").Create(r).Error; err != nil {
		t.Fatalf("seed refund %s: %v", id, err)
	}
	return r
}

func strPtr(s string) *string { return &s }
