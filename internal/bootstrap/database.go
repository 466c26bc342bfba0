package bootstrap

import (
	"fmt"

	"gorm.io/gorm"

	"eventpay/internal/models"
)

// Migrate ensures the tables owned by this service exist.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(allModels()...); err != nil {
		return fmt.Errorf("auto migrate failed: %w", err)
	}
	return nil
}

func allModels() []interface{} {
	return []interface{}{
		&models.Payment{},
	}
}
