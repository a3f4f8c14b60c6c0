// Package serve provides the serve command for roadguard
package serve

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/esafety/roadguard/internal/app"
	"github.com/esafety/roadguard/internal/buildinfo"
	"github.com/esafety/roadguard/internal/conf"
	"github.com/esafety/roadguard/internal/logger"
)

// Command creates the command running the HTTP API and MQTT ingestion.
func Command(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the validation API, Prometheus metrics and MQTT ingestion",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return app.Serve(ctx, settings, build, logger.Global().Module("main"))
		},
	}

	if err := setupFlags(cmd); err != nil {
		panic(err)
	}

	return cmd
}

// setupFlags configures flags specific to the serve command.
func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().String("listen", "", "Listen address of the HTTP API")
	cmd.Flags().Bool("mqtt", false, "Enable MQTT evidence ingestion and result publishing")
	cmd.Flags().String("broker", "", "MQTT broker URL, e.g. tcp://localhost:1883")

	bindings := map[string]string{
		"webserver.listen": "listen",
		"mqtt.enabled":     "mqtt",
		"mqtt.broker":      "broker",
	}
	for key, flag := range bindings {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return err
		}
	}
	return nil
}
