package db

import (
	"fmt"
	"time"

	"privatesend-backend/internal/config"
	"privatesend-backend/internal/metrics"
	"privatesend-backend/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// InitDB connects to the send ledger database and migrates it
func InitDB(cfg config.DatabaseConfig, log *logrus.Logger) (*gorm.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}
	if cfg.Driver != "" && cfg.Driver != "postgres" {
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	log.Info("Connecting to database...")

	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		SkipDefaultTransaction:                   true,
		TranslateError:                           true,
		PrepareStmt:                              true,
		Logger:                                   logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		metrics.DBConnectionStatus.Set(0)
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	metrics.DBConnectionStatus.Set(1)
	log.Info("✅ Database connected successfully")

	log.Info("🚀 Starting database schema migration with GORM AutoMigrate...")
	if err := db.AutoMigrate(
		&models.PrivateSendRecord{}, // Send ledger
	); err != nil {
		return nil, fmt.Errorf("AutoMigrate failed: %w", err)
	}

	if err := widenSignatureColumns(db, log); err != nil {
		log.Warnf("⚠️ Failed to widen signature columns: %v", err)
	}

	log.Info("✅ Database schema migrated successfully")

	DB = db
	return db, nil
}
