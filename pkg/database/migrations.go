package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/wadispatch/pkg/entities"
)

// AutoMigrate runs database migrations
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&entities.Campaign{},
		&entities.Contact{},
		&entities.Message{},
		&entities.WhatsAppSession{},
		&entities.AutoResponseRule{},
		&entities.AutoResponseLog{},
	); err != nil {
		return fmt.Errorf("database: migrate: %w", err)
	}
	return nil
}
