package db

import (
	"database/sql"
	"fmt"

	"privatesend-backend/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// widenSignatureColumns early ledgers stored signatures in VARCHAR(64).
// AutoMigrate does not change the size of existing columns.
func widenSignatureColumns(db *gorm.DB, log *logrus.Logger) error {
	for _, column := range SignatureColumns {
		if err := widenColumn(db, log, models.PrivateSendRecord{}.TableName(), column, SignatureColumnSize); err != nil {
			return err
		}
	}
	return nil
}

// SignatureColumns ledger columns holding base58 signatures
var SignatureColumns = []string{"deposit_signature", "withdraw_signature"}

// SignatureColumnSize longest base58 encoding of a 64-byte signature
const SignatureColumnSize = 88

// ColumnSize character_maximum_length of a column; ok is false when the column does not exist
func ColumnSize(db *gorm.DB, tableName, columnName string) (size int64, ok bool, err error) {
	var currentSize sql.NullInt64
	err = db.Raw(`
		SELECT character_maximum_length
		FROM information_schema.columns
		WHERE table_schema = 'public'
		AND table_name = ?
		AND column_name = ?
	`, tableName, columnName).Scan(&currentSize).Error
	if err != nil {
		return 0, false, fmt.Errorf("failed to check %s.%s column size: %w", tableName, columnName, err)
	}
	return currentSize.Int64, currentSize.Valid, nil
}

func widenColumn(db *gorm.DB, log *logrus.Logger, tableName, columnName string, size int) error {
	currentSize, ok, err := ColumnSize(db, tableName, columnName)
	if err != nil {
		return err
	}
	if !ok || int(currentSize) >= size {
		return nil
	}

	log.Infof("🔧 Updating %s.%s column from VARCHAR(%d) to VARCHAR(%d)...", tableName, columnName, currentSize, size)
	result := db.Exec(fmt.Sprintf(`ALTER TABLE %s ALTER COLUMN %s TYPE VARCHAR(%d)`, tableName, columnName, size))
	if result.Error != nil {
		return fmt.Errorf("failed to update %s.%s column size: %w", tableName, columnName, result.Error)
	}
	log.Infof("✅ Updated %s.%s column size to VARCHAR(%d)", tableName, columnName, size)
	return nil
}
