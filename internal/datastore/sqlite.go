package datastore

import (
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/esafety/roadguard/internal/errors"
	"github.com/esafety/roadguard/internal/logger"
)

// memoryPath selects a private in-memory database, used by tests and demos.
const memoryPath = ":memory:"

// sqliteParams keeps concurrent correlator reads from failing on a busy writer.
const sqliteParams = "?_busy_timeout=5000&_journal_mode=WAL"

// SQLiteStore implements Interface for SQLite
type SQLiteStore struct {
	DataStore
}

func (store *SQLiteStore) dsn() (string, error) {
	path := store.Settings.Database.SQLite.Path
	if path == "" {
		return "", validationError("sqlite path must not be empty", "database.sqlite.path", path)
	}
	if path == memoryPath {
		return path, nil
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", errors.New(err).
				Component("datastore").
				Category(errors.CategorySystem).
				Context("operation", "create_database_dir").
				Context("path", dir).
				Build()
		}
	}
	return path + sqliteParams, nil
}

// Open sets up the SQLite database connection and migrates the schema
func (store *SQLiteStore) Open() error {
	dsn, err := store.dsn()
	if err != nil {
		return err
	}

	db, err := gorm.Open(sqlite.Open(dsn), store.gormConfig())
	if err != nil {
		store.log.Error("failed to open SQLite database",
			logger.String("path", store.Settings.Database.SQLite.Path),
			logger.Error(err))
		return dbError(err, "open", errors.PriorityCritical, "path", store.Settings.Database.SQLite.Path)
	}

	if store.Settings.Database.SQLite.Path == memoryPath {
		// Every pooled connection would otherwise see its own empty database
		sqlDB, err := db.DB()
		if err != nil {
			return stateError(err, "open", "connection")
		}
		sqlDB.SetMaxOpenConns(1)
	}

	store.DB = db
	return performAutoMigration(db, "sqlite", store.log)
}
