// Package seed provides the seed command for roadguard
package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/esafety/roadguard/internal/app"
	"github.com/esafety/roadguard/internal/conf"
	"github.com/esafety/roadguard/internal/datastore"
	"github.com/esafety/roadguard/internal/logger"
)

// Command creates the command that writes a demo device network and evidence.
func Command(settings *conf.Settings) *cobra.Command {
	opts := datastore.DefaultSeedOptions()

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Populate the database with a demo incident and IoT evidence",
		Long: `Seed upserts RFID readers, CCTV cameras and sensors around a centre point,
creates a demo incident there and appends RFID passages, sensor readings,
CCTV feeds and an AI result, part of which falls inside the correlation windows.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, settings, opts)
		},
	}

	flags := cmd.Flags()
	flags.Float64Var(&opts.Center.Lat, "lat", opts.Center.Lat, "Latitude of the demo network centre")
	flags.Float64Var(&opts.Center.Lon, "lon", opts.Center.Lon, "Longitude of the demo network centre")
	flags.IntVar(&opts.Readers, "readers", opts.Readers, "Number of RFID readers")
	flags.IntVar(&opts.Cameras, "cameras", opts.Cameras, "Number of CCTV cameras")
	flags.IntVar(&opts.Sensors, "sensors", opts.Sensors, "Number of sensors")
	flags.IntVar(&opts.Logs, "logs", opts.Logs, "Number of RFID passages")
	flags.IntVar(&opts.Readings, "readings", opts.Readings, "Number of sensor readings")
	flags.Uint64Var(&opts.Seed, "seed", opts.Seed, "Random seed; the same seed yields the same network")

	return cmd
}

func run(cmd *cobra.Command, settings *conf.Settings, opts datastore.SeedOptions) error {
	log := logger.Global().Module("seed")

	if !opts.Center.Valid() {
		return fmt.Errorf("invalid centre %s", opts.Center)
	}

	store, err := app.OpenStore(settings, log, nil)
	if err != nil {
		return err
	}
	defer app.CloseStore(store, log)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	summary, err := datastore.Seed(ctx, store, opts)
	if err != nil {
		return fmt.Errorf("seeding failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(),
		"Seeded incident %d with %d readers, %d cameras, %d sensors, %d RFID logs, %d sensor readings, %d CCTV feeds and %d AI results\n",
		summary.IncidentID, summary.Readers, summary.Cameras, summary.Sensors,
		summary.Logs, summary.Readings, summary.Feeds, summary.AIResults)
	return nil
}
