package main

import (
	"fmt"
	"log"

	"privatesend-backend/internal/config"
	"privatesend-backend/internal/db"
	"privatesend-backend/internal/models"

	"github.com/sirupsen/logrus"
)

func main() {
	fmt.Println("🔍 Verifying database connection and column sizes...")
	fmt.Println("============================================================")

	if err := config.LoadConfig(""); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	database, err := db.InitDB(config.AppConfig.Database, logger)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	sqlDB, err := database.DB()
	if err != nil {
		log.Fatalf("Failed to get database connection: %v", err)
	}
	defer sqlDB.Close()

	var dbName string
	if err := sqlDB.QueryRow("SELECT current_database()").Scan(&dbName); err != nil {
		log.Fatalf("Failed to get database name: %v", err)
	}
	fmt.Printf("📋 Connected to database: %s\n", dbName)

	table := models.PrivateSendRecord{}.TableName()
	healthy := true
	for _, column := range db.SignatureColumns {
		size, ok, err := db.ColumnSize(database, table, column)
		if err != nil {
			log.Fatalf("Failed to query column size: %v", err)
		}
		if !ok {
			fmt.Printf("❌ %s.%s column does not exist!\n", table, column)
			healthy = false
			continue
		}
		if size < db.SignatureColumnSize {
			fmt.Printf("❌ %s.%s is VARCHAR(%d), need VARCHAR(%d)\n", table, column, size, db.SignatureColumnSize)
			healthy = false
			continue
		}
		fmt.Printf("✅ %s.%s is VARCHAR(%d)\n", table, column, size)
	}

	var total int64
	if err := database.Model(&models.PrivateSendRecord{}).Count(&total).Error; err != nil {
		log.Fatalf("Failed to count ledger rows: %v", err)
	}
	var partial int64
	if err := database.Model(&models.PrivateSendRecord{}).Where("outcome = ?", models.OutcomeDepositOnly).Count(&partial).Error; err != nil {
		log.Fatalf("Failed to count deposit-only rows: %v", err)
	}
	fmt.Printf("📋 Ledger rows: %d (deposit_only: %d)\n", total, partial)

	if !healthy {
		fmt.Println("❌ Database needs attention, restart the server to run the column migration")
		return
	}
	fmt.Println("✅ Database looks good")
}
