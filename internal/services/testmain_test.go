package services

import (
	"log"
	"os"
	"testing"

	"ledger-service/internal/models"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Integration tests need a running MySQL instance; they skip when
// DATABASE_URL is not set.

var testDB *gorm.DB

func TestMain(m *testing.M) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn != "" {
		var err error
		testDB, err = gorm.Open(mysql.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			log.Printf("Failed to connect to database: %v", err)
			testDB = nil
		} else {
			testDB.AutoMigrate(
				&models.Wallet{},
				&models.LedgerEntry{},
				&models.Transaction{},
				&models.Refund{},
				&models.CommissionSetting{},
				&models.CommissionEarning{},
				&models.IdempotencyKey{},
				&models.AuditLog{},
			)
		}
	} else {
		log.Println("Skipping DB tests: DATABASE_URL not set")
	}

	os.Exit(m.Run())
}

func cleanup() {
	if testDB == nil {
		return
	}
	for _, table := range []string{
		"commission_earnings",
		"commission_settings",
		"idempotency_keys",
		"refunds",
		"ledger_entries",
		"transactions",
		"wallets",
		"audit_logs",
	} {
		testDB.Exec("DELETE FROM " + table)
	}
}

func testLogger() *zap.Logger {
	return zap.NewNop()
}
