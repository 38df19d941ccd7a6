package database

import (
	"fmt"
	"os"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"ledger-service/internal/models"
)

// Open connects to MySQL using the DB_* environment variables. The handle is
// returned to the caller for injection; no package-level state.
func Open() (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_HOST"),
		os.Getenv("DB_PORT"),
		os.Getenv("DB_NAME"),
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
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
