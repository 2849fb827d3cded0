package database

import (
	"fmt"
	"time"

	"backoffice/internal/config"
	"backoffice/internal/model"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Models lists every table owned by this service, in migration order.
var Models = []interface{}{
	&model.Invoice{},
	&model.PaymentSubmission{},
	&model.Expense{},
	&model.ReceiptEvent{},
	&model.TrackingCode{},
	&model.AuditLog{},
}

// NewConnection opens the configured database and migrates the schema.
func NewConnection(cfg config.DatabaseConfig, dsn string, log gormlogger.Interface) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case config.DriverSQLite:
		dialector = sqlite.Open(cfg.SQLitePath)
	default:
		dialector = postgres.Open(dsn)
	}

	db, err := Open(dialector, log)
	if err != nil {
		return nil, err
	}
	if cfg.Driver == config.DriverSQLite {
		// SQLite allows a single writer; one connection keeps transactions serialized.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Open creates a GORM handle whose timestamps are UTC on every dialect.
func Open(dialector gorm.Dialector, log gormlogger.Interface) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
	}
	if log != nil {
		gormCfg.Logger = log
	}
	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models...); err != nil {
		return fmt.Errorf("auto-migrate models: %w", err)
	}
	return nil
}

// NewSQLiteMemory opens a private in-memory database with the schema applied.
func NewSQLiteMemory() (*gorm.DB, error) {
	db, err := Open(sqlite.Open("file::memory:"), gormlogger.Default.LogMode(gormlogger.Silent))
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// Every connection to :memory: is a separate database.
	sqlDB.SetMaxOpenConns(1)
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}
