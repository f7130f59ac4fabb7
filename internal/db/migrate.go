package db

import (
	"fmt"

	"github.com/scanmark/scanmark/internal/models"
	"gorm.io/gorm"
)

// AllModels returns the list of all GORM models for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.AuthToken{},
		&models.Task{},
		&models.TaskTag{},
		&models.TaskImage{},
		&models.TaskAnnotation{},
		&models.Bundle{},
		&models.BundlePage{},
		&models.PaperPage{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}
