package datastore

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"

	"github.com/esafety/roadguard/internal/geo"
)

// SeedOptions controls the demo data set. Zero counts fall back to the defaults.
type SeedOptions struct {
	Center   geo.Point
	Readers  int
	Cameras  int
	Sensors  int
	Logs     int
	Readings int
	Seed     uint64
	Now      time.Time
}

// DefaultSeedOptions centres the demo network on Nairobi.
func DefaultSeedOptions() SeedOptions {
	return SeedOptions{
		Center:   geo.Point{Lat: -1.2921, Lon: 36.8219},
		Readers:  20,
		Cameras:  30,
		Sensors:  25,
		Logs:     100,
		Readings: 150,
		Seed:     1,
	}
}

// SeedSummary reports what Seed created.
type SeedSummary struct {
	IncidentID uint
	Readers    int
	Cameras    int
	Sensors    int
	Logs       int
	Readings   int
	Feeds      int
	AIResults  int
}

var sensorTypes = []string{"traffic_flow", "weather", "road_surface", "air_quality", "vibration"}

// Seed writes a deterministic demo network: devices scattered around the
// centre, a demo incident there, and evidence of which a share falls inside
// the incident's correlation windows. Devices are upserted by code, so
// reseeding updates them; logs and readings are appended.
func Seed(ctx context.Context, w EvidenceWriter, opts SeedOptions) (*SeedSummary, error) {
	defaults := DefaultSeedOptions()
	if opts.Readers <= 0 {
		opts.Readers = defaults.Readers
	}
	if opts.Cameras <= 0 {
		opts.Cameras = defaults.Cameras
	}
	if opts.Sensors <= 0 {
		opts.Sensors = defaults.Sensors
	}
	if opts.Logs <= 0 {
		opts.Logs = defaults.Logs
	}
	if opts.Readings <= 0 {
		opts.Readings = defaults.Readings
	}
	if opts.Center == (geo.Point{}) {
		opts.Center = defaults.Center
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now().UTC()
	}
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))

	summary := &SeedSummary{}
	incidentTime := opts.Now.Add(-5 * time.Minute)

	incident := &Incident{
		Reference:        fmt.Sprintf("INC-DEMO-%d", opts.Now.Unix()),
		Category:         "collision",
		Description:      "Two-vehicle collision reported by a passing motorist, left lane blocked",
		Latitude:         coord(opts.Center.Lat),
		Longitude:        coord(opts.Center.Lon),
		Timestamp:        incidentTime,
		VehiclesInvolved: 2,
		HasInjuries:      true,
	}
	if err := w.SaveIncident(ctx, incident); err != nil {
		return nil, err
	}
	summary.IncidentID = incident.ID

	readers := make([]*RFIDReader, 0, opts.Readers)
	for i := range opts.Readers {
		p := jitter(rng, opts.Center, 0.02)
		reader := &RFIDReader{
			ReaderCode: fmt.Sprintf("RFID-%04d", i+1),
			Latitude:   coord(p.Lat),
			Longitude:  coord(p.Lon),
			MQTTTopic:  fmt.Sprintf("rfid/RFID-%04d", i+1),
			Status:     pick(rng, []string{DeviceActive, DeviceActive, DeviceActive, DeviceInactive, DeviceMaintenance}),
		}
		if err := w.UpsertRFIDReader(ctx, reader); err != nil {
			return nil, err
		}
		readers = append(readers, reader)
	}
	summary.Readers = len(readers)

	for i := range opts.Cameras {
		p := jitter(rng, opts.Center, 0.05)
		camera := &CCTVCamera{
			CameraCode:           fmt.Sprintf("CCTV-%04d", i+1),
			Latitude:             coord(p.Lat),
			Longitude:            coord(p.Lon),
			CoverageRadiusMeters: 300 + rng.IntN(5)*100,
			Protocol:             pick(rng, []string{"RTSP", "ONVIF", "proprietary"}),
			Status:               DeviceActive,
		}
		if err := w.UpsertCCTVCamera(ctx, camera); err != nil {
			return nil, err
		}

		// The first three cameras covered the demo incident
		if i < 3 {
			score := 60 + rng.Float64()*35
			feed := &CCTVFeed{
				CCTVCameraID:     camera.ID,
				IncidentID:       &incident.ID,
				StartTime:        incidentTime.Add(-5 * time.Minute),
				EndTime:          incidentTime.Add(5 * time.Minute),
				AIAnalysisResult: JSONMap{"objects": []string{"car", "car"}, "event": "collision"},
				IncidentDetected: score > 70,
				ConfidenceScore:  decimal.NewNullDecimal(decimal.NewFromFloat(score).Round(2)),
			}
			if err := w.SaveCCTVFeed(ctx, feed); err != nil {
				return nil, err
			}
			summary.Feeds++
		}
	}
	summary.Cameras = opts.Cameras

	sensors := make([]*Sensor, 0, opts.Sensors)
	for i := range opts.Sensors {
		p := jitter(rng, opts.Center, 0.02)
		sensor := &Sensor{
			SensorCode: fmt.Sprintf("SNS-%04d", i+1),
			SensorType: sensorTypes[i%len(sensorTypes)],
			Latitude:   coord(p.Lat),
			Longitude:  coord(p.Lon),
			MQTTTopic:  fmt.Sprintf("sensor/SNS-%04d", i+1),
			Status:     DeviceActive,
		}
		if err := w.UpsertSensor(ctx, sensor); err != nil {
			return nil, err
		}
		sensors = append(sensors, sensor)
	}
	summary.Sensors = len(sensors)

	for i := range opts.Logs {
		reader := readers[rng.IntN(len(readers))]
		ts := opts.Now.Add(-time.Duration(rng.IntN(720*60)) * time.Minute)
		if i%4 == 0 {
			// A quarter of the traffic passes while the incident unfolds
			ts = incidentTime.Add(time.Duration(rng.IntN(19)-9) * time.Minute)
		}
		lane := 1 + rng.IntN(3)
		entry := &RFIDLog{
			RFIDReaderID: reader.ID,
			VehicleTag:   fmt.Sprintf("TAG-%06d", 1000+rng.IntN(1000)),
			Timestamp:    ts,
			Latitude:     decimal.NewNullDecimal(reader.Latitude.Add(decimal.NewFromFloat(rng.Float64()*0.002 - 0.001)).Round(6)),
			Longitude:    decimal.NewNullDecimal(reader.Longitude.Add(decimal.NewFromFloat(rng.Float64()*0.002 - 0.001)).Round(6)),
			Direction:    pick(rng, []string{"North", "South", "East", "West"}),
			Lane:         &lane,
			Speed:        decimal.NewNullDecimal(decimal.NewFromFloat(20 + rng.Float64()*100).Round(2)),
			VehicleType:  pick(rng, []string{"Saloon", "SUV", "Truck", "Bus", "Motorcycle", "Van"}),
		}
		if err := w.SaveRFIDLog(ctx, entry); err != nil {
			return nil, err
		}
		summary.Logs++
	}

	for i := range opts.Readings {
		sensor := sensors[rng.IntN(len(sensors))]
		ts := opts.Now.Add(-time.Duration(rng.IntN(720*60)) * time.Minute)
		anomaly := rng.IntN(10) == 0
		if i%10 == 0 {
			ts = incidentTime.Add(time.Duration(rng.IntN(19)-9) * time.Minute)
			anomaly = true
		}
		reading := &SensorReading{
			SensorID:        sensor.ID,
			Timestamp:       ts,
			ReadingType:     sensor.SensorType,
			Value:           JSONMap{"value": decimal.NewFromFloat(rng.Float64() * 100).Round(2).InexactFloat64()},
			QualityScore:    decimal.NewNullDecimal(decimal.NewFromFloat(80 + rng.Float64()*20).Round(2)),
			AnomalyDetected: anomaly,
		}
		if err := w.SaveSensorReading(ctx, reading); err != nil {
			return nil, err
		}
		summary.Readings++
	}

	ai := &AIVerificationResult{
		IncidentID:           incident.ID,
		ClassificationResult: "accident",
		ConfidenceScore:      decimal.NewFromFloat(70 + rng.Float64()*25).Round(2),
		CreatedAt:            opts.Now,
	}
	if err := w.SaveAIResult(ctx, ai); err != nil {
		return nil, err
	}
	summary.AIResults = 1

	return summary, nil
}

func coord(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(6)
}

func jitter(rng *rand.Rand, p geo.Point, spread float64) geo.Point {
	return geo.Point{
		Lat: p.Lat + (rng.Float64()*2-1)*spread,
		Lon: p.Lon + (rng.Float64()*2-1)*spread,
	}
}

func pick(rng *rand.Rand, options []string) string {
	return options[rng.IntN(len(options))]
}
