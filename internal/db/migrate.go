package db

import (
	"fmt"

	"github.com/pagemark/ingest/internal/models"
	"gorm.io/gorm"
)

// Migrate creates or updates the schema for all persisted models.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	return conn.AutoMigrate(
		&models.Document{},
		&models.QuotaProfile{},
		&models.UsageRecord{},
	)
}
