package database

import (
	"fmt"
	"log"
	"os"
	"time"

	"backoffice/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewConnection initializes a new connection pool using GORM
func NewConnection(dsn string, debug bool) (*gorm.DB, error) {
	logLevel := logger.Warn
	if debug {
		logLevel = logger.Info
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.New(
			log.New(os.Stdout, "\r\n", log.LstdFlags),
			logger.Config{
				SlowThreshold:             time.Second,
				LogLevel:                  logLevel,
				IgnoreRecordNotFoundError: true,
			},
		),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate auto-migrates every model owned by the service
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&model.User{},
		&model.Integration{},
		&model.DatabaseConnection{},
		&model.PendingApproval{},
		&model.Customer{},
		&model.Item{},
		&model.Invoice{},
		&model.InvoiceItem{},
		&model.WeeklyPayroll{},
		&model.ClockEntry{},
		&model.ActivityLog{},
		&model.WebhookEvent{},
	)
	if err != nil {
		return fmt.Errorf("failed to auto-migrate models: %w", err)
	}
	return nil
}
