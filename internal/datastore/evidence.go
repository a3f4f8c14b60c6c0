package datastore

import (
	"context"
	"time"

	"gorm.io/gorm/clause"

	"github.com/esafety/roadguard/internal/errors"
	"github.com/esafety/roadguard/internal/observability/metrics"
)

const (
	tableRFIDReaders    = "rfid_readers"
	tableRFIDLogs       = "rfid_logs"
	tableCCTVCameras    = "cctv_cameras"
	tableCCTVFeeds      = "cctv_feeds"
	tableSensors        = "sensors"
	tableSensorReadings = "sensor_readings"
	tableAIResults      = "ai_verification_results"
)

// resultSizeRecorder is implemented by recorders that also track query result sizes.
type resultSizeRecorder interface {
	RecordQueryResultSize(operation string, resultSize int)
}

func (ds *DataStore) observeResultSize(operation string, n int) {
	if r, ok := ds.metrics.(resultSizeRecorder); ok {
		r.RecordQueryResultSize(operation, n)
	}
}

// RFIDLogsBetween returns every RFID log with from <= timestamp <= to.
func (ds *DataStore) RFIDLogsBetween(ctx context.Context, from, to time.Time) (logs []RFIDLog, err error) {
	const op = metrics.OpQuery + ":" + tableRFIDLogs
	defer func(start time.Time) { ds.observe(op, start, err) }(time.Now())

	if err := ds.DB.WithContext(ctx).
		Where("timestamp >= ? AND timestamp <= ?", from.UTC(), to.UTC()).
		Order("timestamp").
		Find(&logs).Error; err != nil {
		return nil, dbError(err, "rfid_logs_between", errors.PriorityMedium, "from", from, "to", to)
	}
	ds.observeResultSize(op, len(logs))
	return logs, nil
}

// CCTVFeedsForIncident returns the feeds linked to an incident.
func (ds *DataStore) CCTVFeedsForIncident(ctx context.Context, incidentID uint) (feeds []CCTVFeed, err error) {
	const op = metrics.OpQuery + ":" + tableCCTVFeeds
	defer func(start time.Time) { ds.observe(op, start, err) }(time.Now())

	if err := ds.DB.WithContext(ctx).
		Where("incident_id = ?", incidentID).
		Order("start_time DESC").
		Find(&feeds).Error; err != nil {
		return nil, dbError(err, "cctv_feeds_for_incident", errors.PriorityMedium, "incident_id", incidentID)
	}
	ds.observeResultSize(op, len(feeds))
	return feeds, nil
}

// AnomalousReadingsBetween returns anomalous readings with from <= timestamp <= to,
// each with its Sensor loaded.
func (ds *DataStore) AnomalousReadingsBetween(ctx context.Context, from, to time.Time) (readings []SensorReading, err error) {
	const op = metrics.OpQuery + ":" + tableSensorReadings
	defer func(start time.Time) { ds.observe(op, start, err) }(time.Now())

	if err := ds.DB.WithContext(ctx).
		Preload("Sensor").
		Where("anomaly_detected = ? AND timestamp >= ? AND timestamp <= ?", true, from.UTC(), to.UTC()).
		Order("timestamp").
		Find(&readings).Error; err != nil {
		return nil, dbError(err, "anomalous_readings_between", errors.PriorityMedium, "from", from, "to", to)
	}
	ds.observeResultSize(op, len(readings))
	return readings, nil
}

// LatestAIResult returns the most recently created AI result, or nil when the
// incident has none.
func (ds *DataStore) LatestAIResult(ctx context.Context, incidentID uint) (result *AIVerificationResult, err error) {
	const op = metrics.OpGet + ":" + tableAIResults
	defer func(start time.Time) { ds.observe(op, start, err) }(time.Now())

	var rows []AIVerificationResult
	if err := ds.DB.WithContext(ctx).
		Where("incident_id = ?", incidentID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(1).
		Find(&rows).Error; err != nil {
		return nil, dbError(err, "latest_ai_result", errors.PriorityMedium, "incident_id", incidentID)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// SaveRFIDLog inserts one RFID log.
func (ds *DataStore) SaveRFIDLog(ctx context.Context, log *RFIDLog) (err error) {
	const op = metrics.OpCreate + ":" + tableRFIDLogs
	defer func(start time.Time) { ds.observe(op, start, err) }(time.Now())

	if log.RFIDReaderID == 0 {
		return validationError("rfid log must reference a reader", "rfid_reader_id", log.RFIDReaderID)
	}
	log.Timestamp = log.Timestamp.UTC()
	if err := ds.DB.WithContext(ctx).Create(log).Error; err != nil {
		return dbError(err, "save_rfid_log", errors.PriorityMedium, "rfid_reader_id", log.RFIDReaderID)
	}
	return nil
}

// SaveSensorReading inserts one sensor reading.
func (ds *DataStore) SaveSensorReading(ctx context.Context, reading *SensorReading) (err error) {
	const op = metrics.OpCreate + ":" + tableSensorReadings
	defer func(start time.Time) { ds.observe(op, start, err) }(time.Now())

	if reading.SensorID == 0 {
		return validationError("sensor reading must reference a sensor", "sensor_id", reading.SensorID)
	}
	reading.Timestamp = reading.Timestamp.UTC()
	if err := ds.DB.WithContext(ctx).Omit("Sensor").Create(reading).Error; err != nil {
		return dbError(err, "save_sensor_reading", errors.PriorityMedium, "sensor_id", reading.SensorID)
	}
	return nil
}

// SaveCCTVFeed inserts one analysed CCTV feed.
func (ds *DataStore) SaveCCTVFeed(ctx context.Context, feed *CCTVFeed) (err error) {
	const op = metrics.OpCreate + ":" + tableCCTVFeeds
	defer func(start time.Time) { ds.observe(op, start, err) }(time.Now())

	if feed.EndTime.Before(feed.StartTime) {
		return validationError("cctv feed ends before it starts", "end_time", feed.EndTime)
	}
	feed.StartTime = feed.StartTime.UTC()
	feed.EndTime = feed.EndTime.UTC()
	if err := ds.DB.WithContext(ctx).Create(feed).Error; err != nil {
		return dbError(err, "save_cctv_feed", errors.PriorityMedium, "cctv_camera_id", feed.CCTVCameraID)
	}
	return nil
}

// SaveAIResult inserts one AI verification result.
func (ds *DataStore) SaveAIResult(ctx context.Context, result *AIVerificationResult) (err error) {
	const op = metrics.OpCreate + ":" + tableAIResults
	defer func(start time.Time) { ds.observe(op, start, err) }(time.Now())

	if result.IncidentID == 0 {
		return validationError("ai result must reference an incident", "incident_id", result.IncidentID)
	}
	if !result.CreatedAt.IsZero() {
		result.CreatedAt = result.CreatedAt.UTC()
	}
	if err := ds.DB.WithContext(ctx).Create(result).Error; err != nil {
		return dbError(err, "save_ai_result", errors.PriorityMedium, "incident_id", result.IncidentID)
	}
	return nil
}

// UpsertRFIDReader inserts a reader or updates the one with the same code.
func (ds *DataStore) UpsertRFIDReader(ctx context.Context, reader *RFIDReader) (err error) {
	const op = metrics.OpUpsert + ":" + tableRFIDReaders
	defer func(start time.Time) { ds.observe(op, start, err) }(time.Now())

	if err := ds.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "reader_code"}},
		DoUpdates: clause.AssignmentColumns([]string{"latitude", "longitude", "mqtt_topic", "status", "updated_at"}),
	}).Create(reader).Error; err != nil {
		return dbError(err, "upsert_rfid_reader", errors.PriorityMedium, "reader_code", reader.ReaderCode)
	}
	id, err := ds.reloadID(ctx, tableRFIDReaders, "reader_code = ?", reader.ReaderCode)
	if err != nil {
		return err
	}
	reader.ID = id
	return nil
}

// UpsertCCTVCamera inserts a camera or updates the one with the same code.
func (ds *DataStore) UpsertCCTVCamera(ctx context.Context, camera *CCTVCamera) (err error) {
	const op = metrics.OpUpsert + ":" + tableCCTVCameras
	defer func(start time.Time) { ds.observe(op, start, err) }(time.Now())

	if err := ds.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "camera_code"}},
		DoUpdates: clause.AssignmentColumns([]string{"latitude", "longitude", "coverage_radius_meters", "protocol", "status", "updated_at"}),
	}).Create(camera).Error; err != nil {
		return dbError(err, "upsert_cctv_camera", errors.PriorityMedium, "camera_code", camera.CameraCode)
	}
	id, err := ds.reloadID(ctx, tableCCTVCameras, "camera_code = ?", camera.CameraCode)
	if err != nil {
		return err
	}
	camera.ID = id
	return nil
}

// UpsertSensor inserts a sensor or updates the one with the same code.
func (ds *DataStore) UpsertSensor(ctx context.Context, sensor *Sensor) (err error) {
	const op = metrics.OpUpsert + ":" + tableSensors
	defer func(start time.Time) { ds.observe(op, start, err) }(time.Now())

	if err := ds.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "sensor_code"}},
		DoUpdates: clause.AssignmentColumns([]string{"sensor_type", "latitude", "longitude", "mqtt_topic", "status", "updated_at"}),
	}).Create(sensor).Error; err != nil {
		return dbError(err, "upsert_sensor", errors.PriorityMedium, "sensor_code", sensor.SensorCode)
	}
	id, err := ds.reloadID(ctx, tableSensors, "sensor_code = ?", sensor.SensorCode)
	if err != nil {
		return err
	}
	sensor.ID = id
	return nil
}

// reloadID returns the primary key of the row matching query. Drivers do not
// report the id of a conflicting row that was updated instead of inserted.
func (ds *DataStore) reloadID(ctx context.Context, table, query string, args ...any) (uint, error) {
	var ids []uint
	if err := ds.DB.WithContext(ctx).Table(table).Where(query, args...).Limit(1).Pluck("id", &ids).Error; err != nil {
		return 0, dbError(err, "reload_id", errors.PriorityLow, "table", table)
	}
	if len(ids) == 0 {
		return 0, notFoundError(table, args)
	}
	return ids[0], nil
}

// RFIDReaderByCode looks a reader up by its device code.
func (ds *DataStore) RFIDReaderByCode(ctx context.Context, code string) (reader *RFIDReader, err error) {
	const op = metrics.OpGet + ":" + tableRFIDReaders
	defer func(start time.Time) { ds.observe(op, start, err) }(time.Now())

	var row RFIDReader
	if err := ds.DB.WithContext(ctx).Where("reader_code = ?", code).First(&row).Error; err != nil {
		return nil, lookupError(err, "rfid_reader_by_code", "rfid reader", code)
	}
	return &row, nil
}

// SensorByCode looks a sensor up by its device code.
func (ds *DataStore) SensorByCode(ctx context.Context, code string) (sensor *Sensor, err error) {
	const op = metrics.OpGet + ":" + tableSensors
	defer func(start time.Time) { ds.observe(op, start, err) }(time.Now())

	var row Sensor
	if err := ds.DB.WithContext(ctx).Where("sensor_code = ?", code).First(&row).Error; err != nil {
		return nil, lookupError(err, "sensor_by_code", "sensor", code)
	}
	return &row, nil
}
