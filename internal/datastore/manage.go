package datastore

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"github.com/esafety/roadguard/internal/errors"
	"github.com/esafety/roadguard/internal/logger"
)

// DefaultSlowQueryThreshold applies when the settings leave it unset.
const DefaultSlowQueryThreshold = 200 * time.Millisecond

var errNotOpen = errors.NewStd("database connection is not initialized")

func isNotFound(err error) bool {
	return errors.IsNotFound(err)
}

// gormConfig builds the shared GORM configuration: SQL through the module
// logger and all timestamps in UTC so range queries compare consistently.
func (ds *DataStore) gormConfig() *gorm.Config {
	threshold := ds.Settings.Database.SlowQueryThreshold
	if threshold <= 0 {
		threshold = DefaultSlowQueryThreshold
	}
	return &gorm.Config{
		Logger:  logger.NewGormLoggerAdapter(ds.log, threshold),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}
}

// performAutoMigration creates or updates every table the engine uses.
func performAutoMigration(db *gorm.DB, dbType string, log logger.Logger) error {
	migrationStart := time.Now()
	migrationLogger := log.With(logger.String("db_type", dbType))
	migrationLogger.Debug("starting database migration")

	successCount := 0
	for _, model := range models() {
		if err := migrateTable(db, model, migrationLogger); err != nil {
			return err
		}
		successCount++
	}

	migrationLogger.Debug("database migration completed",
		logger.Duration("total_duration", time.Since(migrationStart)),
		logger.Int("tables_migrated", successCount))
	return nil
}

// migrateTable migrates a single table with detailed logging
func migrateTable(db *gorm.DB, model any, log logger.Logger) error {
	tableStart := time.Now()
	tableName := "unknown"
	if t, ok := model.(schema.Tabler); ok {
		tableName = t.TableName()
	}

	existed := db.Migrator().HasTable(model)
	if err := db.AutoMigrate(model); err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Priority(errors.PriorityCritical).
			Context("operation", "auto_migrate").
			Context("table", tableName).
			Build()
	}

	log.Debug("table migrated",
		logger.String("table", tableName),
		logger.Bool("created", !existed),
		logger.Duration("duration", time.Since(tableStart)))
	return nil
}
