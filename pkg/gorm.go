package pkg

import (
	"fmt"

	"github.com/SAP-F-2025/testportal-service/internal/config"
	"github.com/SAP-F-2025/testportal-service/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func InitDatabase(cfg *config.Config) (*gorm.DB, error) {
	var logLevel logger.LogLevel
	if cfg.IsProduction() {
		logLevel = logger.Error
	} else {
		logLevel = logger.Info
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), GormConfig(logger.Default.LogMode(logLevel)))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

// GormConfig is shared by the server and the test databases. Catalog tables
// are owned by other services, so no foreign keys are created.
func GormConfig(l logger.Interface) *gorm.Config {
	return &gorm.Config{
		Logger:                                   l,
		DisableForeignKeyConstraintWhenMigrating: true,
	}
}

// MigrationModels lists every table this service reads or writes
func MigrationModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Subject{},
		&models.Question{},
		&models.Group{},
		&models.GroupMember{},
		&models.Test{},
		&models.TestQuestion{},
		&models.Submission{},
		&models.SubmissionAnswer{},
	}
}

func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(MigrationModels()...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}
