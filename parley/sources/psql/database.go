package psql

import (
	"context"
	"fmt"

	"parley/parley/config"
	"parley/parley/sources/psql/models"
	"parley/parley/utils/logging"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Database struct {
	DB *gorm.DB
}

func NewDatabase(ctx context.Context, cfg config.Config) (*Database, error) {
	return Open(ctx, postgres.Open(cfg.PostgresDSN()))
}

// Open connects through any gorm dialector and migrates the schema. Tests use
// it with an in-memory sqlite dialector.
func Open(ctx context.Context, dialector gorm.Dialector) (*Database, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	err = db.WithContext(ctx).AutoMigrate(
		&models.Device{},
		&models.Chat{},
		&models.Message{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to auto-migrate: %w", err)
	}
	logging.AppLogger.Info("database ready", zap.String("dialect", db.Dialector.Name()))
	return &Database{DB: db}, nil
}

func (db *Database) Close() {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return
	}
	sqlDB.Close()
}

func (db *Database) Ping(ctx context.Context) error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
