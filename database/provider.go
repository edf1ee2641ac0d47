package database

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"identity-api/config"
	"identity-api/services/logging"
)

type ModelsOption struct {
	models []any
}

func WithModels(models ...any) *ModelsOption {
	return &ModelsOption{models: models}
}

func ProvideDatabase(cfg *config.Config, modelsOpt *ModelsOption, logger *logging.Service) (*gorm.DB, error) {
	var db *gorm.DB
	var err error

	gormCfg := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	}

	switch cfg.Database.Driver {
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(cfg.Database.DSN), gormCfg)
	case "postgres", "postgresql":
		db, err = gorm.Open(postgres.Open(cfg.Database.DSN), gormCfg)
	case "mysql":
		db, err = gorm.Open(mysql.Open(cfg.Database.DSN), gormCfg)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s (supported: sqlite, postgres, mysql)", cfg.Database.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.Database.AutoMigrate && modelsOpt != nil && len(modelsOpt.models) > 0 {
		if err := db.AutoMigrate(modelsOpt.models...); err != nil {
			return nil, fmt.Errorf("failed to auto-migrate models: %w", err)
		}
		logger.Info("database migrations applied", zap.Int("models", len(modelsOpt.models)))
	}

	logger.Info("database connection established", zap.String("driver", cfg.Database.Driver))

	return db, nil
}
