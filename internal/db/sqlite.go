package db

import (
	"fmt"

	"github.com/geocoder89/userdir/internal/repo/sqlite"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenSQLite opens the embedded store and brings the users table up to date.
// Unique violations surface as gorm.ErrDuplicatedKey.
func OpenSQLite(path string, debug bool) (*gorm.DB, error) {
	logLevel := logger.Silent
	if debug {
		logLevel = logger.Info
	}

	d, err := gorm.Open(gormsqlite.Open(path), &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	if err := d.AutoMigrate(&sqlite.UserRecord{}); err != nil {
		return nil, fmt.Errorf("automigrate users: %w", err)
	}

	return d, nil
}
