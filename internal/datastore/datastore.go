// Package datastore opens the worker database and migrates the cache and
// sync-queue schema.
package datastore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-sql-driver/mysql"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"

	"github.com/estoca-ai/estoca-worker/internal/conf"
	"github.com/estoca-ai/estoca-worker/internal/datastore/entities"
	"github.com/estoca-ai/estoca-worker/internal/errors"
	"github.com/estoca-ai/estoca-worker/internal/logger"
)

const (
	sqliteBusyTimeoutMs = 5000
	mysqlMaxOpenConns   = 10
	mysqlConnMaxLife    = 30 * time.Minute
)

// Open connects to the configured database and runs AutoMigrate.
func Open(settings conf.DatabaseSettings, debug bool, log logger.Logger) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger: gorm_logger.Default.LogMode(gorm_logger.Silent),
	}
	if debug {
		gormCfg.Logger = gorm_logger.Default.LogMode(gorm_logger.Info)
	}

	var (
		dialector gorm.Dialector
		err       error
	)
	switch settings.Type {
	case conf.DatabaseSQLite:
		dialector, err = sqliteDialector(settings.Path)
	case conf.DatabaseMySQL:
		dialector, err = mysqlDialector(settings.DSN)
	default:
		err = fmt.Errorf("unsupported database type %q", settings.Type)
	}
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Context("db_type", settings.Type).
			Build()
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryStorage).
			Context("operation", "open").
			Context("db_type", settings.Type).
			Build()
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if settings.Type == conf.DatabaseSQLite {
		// SQLite serializes writers; one connection avoids SQLITE_BUSY storms.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(mysqlMaxOpenConns)
		sqlDB.SetConnMaxLifetime(mysqlConnMaxLife)
	}

	if err := Migrate(db); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	log.Info("database ready",
		logger.String("db_type", settings.Type),
		logger.String("path", settings.Path))
	return db, nil
}

// Migrate creates or updates the schema.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(entities.All()...); err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryStorage).
			Context("operation", "auto_migrate").
			Build()
	}
	return nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func sqliteDialector(path string) (gorm.Dialector, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path must not be empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_foreign_keys=ON&_busy_timeout=%d&_journal_mode=WAL", path, sqliteBusyTimeoutMs)
	return sqlite.Open(dsn), nil
}

// mysqlDialector normalizes the DSN so time columns scan into time.Time.
func mysqlDialector(dsn string) (gorm.Dialector, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	if cfg.Loc == nil {
		cfg.Loc = time.UTC
	}
	return gormmysql.Open(cfg.FormatDSN()), nil
}
