package datastore

import (
	"net"
	"strconv"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/esafety/roadguard/internal/errors"
	"github.com/esafety/roadguard/internal/logger"
)

// MySQLStore implements Interface for MySQL
type MySQLStore struct {
	DataStore
}

// dsn builds the connection string. Times are read and written in UTC.
func (store *MySQLStore) dsn() string {
	cfg := mysqldriver.NewConfig()
	cfg.User = store.Settings.Database.MySQL.Username
	cfg.Passwd = store.Settings.Database.MySQL.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(store.Settings.Database.MySQL.Host, strconv.Itoa(store.Settings.Database.MySQL.Port))
	cfg.DBName = store.Settings.Database.MySQL.Database
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	// Report matched rather than changed rows so unchanged updates are not mistaken for misses
	cfg.ClientFoundRows = true
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg.FormatDSN()
}

// Open sets up the MySQL database connection and migrates the schema
func (store *MySQLStore) Open() error {
	mysqlSettings := store.Settings.Database.MySQL

	db, err := gorm.Open(mysql.Open(store.dsn()), store.gormConfig())
	if err != nil {
		store.log.Error("failed to open MySQL database",
			logger.String("host", mysqlSettings.Host),
			logger.Int("port", mysqlSettings.Port),
			logger.String("database", mysqlSettings.Database),
			logger.Error(err))
		return dbError(err, "open", errors.PriorityCritical,
			"host", mysqlSettings.Host,
			"database", mysqlSettings.Database)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return stateError(err, "open", "connection")
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(time.Hour)

	store.DB = db
	return performAutoMigration(db, "mysql", store.log)
}
