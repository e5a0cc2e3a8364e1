// Package database opens the gorm connection used by every repository.
package database

import (
	"payment-reconciliation-backend/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Config struct {
	Driver string // "postgres" or "sqlite"
	DSN    string
}

// Open connects and migrates the schema.
func Open(cfg Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, errors.Errorf("unsupported db driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s database", cfg.Driver)
	}

	if cfg.Driver == "sqlite" {
		// sqlite has no row locks; a single connection serializes writers.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, errors.Wrap(err, "sqlite pool")
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	return errors.Wrap(db.AutoMigrate(models.All()...), "auto-migrate")
}
