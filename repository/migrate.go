package repository

import (
	"fmt"

	"github.com/kisaan-market/kisaan/models"
	"gorm.io/gorm"
)

// AllModels lists entities in dependency order for migration.
func AllModels() []any {
	return []any{
		&models.Account{},
		&models.Profile{},
		&models.FarmerProfile{},
		&models.CustomerProfile{},
		&models.Product{},
		&models.ChatRoom{},
		&models.Message{},
		&models.Review{},
		&models.OneTimeCode{},
		&models.AuditLog{},
		&models.DeletedAccount{},
	}
}

// Migrate creates or updates tables, indexes, foreign keys and check constraints.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
