// Package datastore provides monitoring functions for database operations
package datastore

import (
	"context"
	"time"

	"github.com/esafety/roadguard/internal/logger"
)

// monitoredTables are the growing evidence and record tables sampled by the monitor.
var monitoredTables = []string{
	tableIncidents,
	tableRFIDLogs,
	tableSensorReadings,
	tableCCTVFeeds,
	tableValidations,
}

// poolRecorder is implemented by recorders that track pool and table gauges.
type poolRecorder interface {
	UpdateConnectionMetrics(inUse, idle, maxOpen int)
	UpdateTableRowCount(table string, count int64)
}

// StartMonitoring samples connection pool statistics and table sizes every
// interval until ctx is cancelled.
func (ds *DataStore) StartMonitoring(ctx context.Context, interval time.Duration) {
	if interval <= 0 || ds.DB == nil {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ds.sample(ctx)
			}
		}
	}()
}

func (ds *DataStore) sample(ctx context.Context) {
	recorder, _ := ds.metrics.(poolRecorder)

	sqlDB, err := ds.DB.DB()
	if err != nil {
		ds.log.Error("failed to get SQL DB for monitoring", logger.Error(err))
		return
	}
	stats := sqlDB.Stats()
	if recorder != nil {
		recorder.UpdateConnectionMetrics(stats.InUse, stats.Idle, stats.MaxOpenConnections)
	}

	ds.log.Debug("connection pool statistics",
		logger.Int("open_connections", stats.OpenConnections),
		logger.Int("in_use", stats.InUse),
		logger.Int("idle", stats.Idle),
		logger.Int64("wait_count", stats.WaitCount),
		logger.Duration("wait_duration", stats.WaitDuration))

	if stats.WaitCount > 0 {
		ds.log.Warn("connection pool experiencing waits",
			logger.Int64("wait_count", stats.WaitCount),
			logger.Duration("total_wait_duration", stats.WaitDuration))
	}

	for _, table := range monitoredTables {
		count, err := ds.tableRowCount(ctx, table)
		if err != nil {
			ds.log.Warn("failed to count table rows", logger.String("table", table), logger.Error(err))
			continue
		}
		if recorder != nil {
			recorder.UpdateTableRowCount(table, count)
		}
	}
}

func (ds *DataStore) tableRowCount(ctx context.Context, table string) (int64, error) {
	var count int64
	if err := ds.DB.WithContext(ctx).Table(table).Count(&count).Error; err != nil {
		return 0, dbError(err, "count_rows", "", "table", table)
	}
	return count, nil
}
