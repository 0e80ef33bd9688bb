package database

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/arxiv/relations/internal/infra/database/models"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

func newGormLogger(l *zap.Logger) logger.Interface {
	return logger.New(
		zap.NewStdLog(l.Named("gorm")),
		logger.Config{
			SlowThreshold:             300 * time.Millisecond, // Slow SQL threshold
			LogLevel:                  logger.Warn,            // Log level
			IgnoreRecordNotFoundError: true,                   // Ignore ErrRecordNotFound error for logger
			Colorful:                  false,
		},
	)
}

// Open connects to the configured database driver.
func Open(driver, dsn string, l *zap.Logger) (*gorm.DB, error) {
	switch driver {
	case DriverPostgres, "":
		return NewPostgres(dsn, l)
	case DriverSQLite:
		return NewSQLite(dsn, l)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

func NewPostgres(dsn string, l *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         newGormLogger(l),
	})
	return db, err
}

// NewSQLite opens a SQLite database file. SQLite has a single writer, so the
// pool is limited to one connection.
func NewSQLite(path string, l *zap.Logger) (*gorm.DB, error) {
	dsn := path + "?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         newGormLogger(l),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	return db, nil
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Relation{},
		&models.Activation{},
	)
}
