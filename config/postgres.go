package config

import (
	"errors"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/yoockh/fitcoach/internal/models"
)

var PostgresDB *gorm.DB

func InitPostgres(cfg PostgresConfig) error {
	if cfg.URI == "" {
		return errors.New("postgres.uri is not set")
	}
	// TranslateError surfaces unique violations as gorm.ErrDuplicatedKey.
	db, err := gorm.Open(postgres.Open(cfg.URI), &gorm.Config{TranslateError: true})
	if err != nil {
		return err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 100
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	if cfg.AutoMigrate {
		if err := Migrate(db); err != nil {
			return err
		}
	}

	PostgresDB = db
	return nil
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Conversation{},
		&models.Profile{},
		&models.Program{},
		&models.WorkoutLog{},
		&models.ProgressStats{},
	)
}
