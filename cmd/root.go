package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/esafety/roadguard/cmd/config"
	"github.com/esafety/roadguard/cmd/seed"
	"github.com/esafety/roadguard/cmd/serve"
	"github.com/esafety/roadguard/cmd/validate"
	"github.com/esafety/roadguard/internal/buildinfo"
	"github.com/esafety/roadguard/internal/conf"
	"github.com/esafety/roadguard/internal/errors"
	"github.com/esafety/roadguard/internal/logger"
	"github.com/esafety/roadguard/internal/privacy"
)

// RootCommand creates and returns the root command. settings is filled in
// before any subcommand runs.
func RootCommand(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "roadguard",
		Short:         "Road incident multi-source validation engine",
		Version:       build.Version(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, &configFile); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(
		validate.Command(settings),
		serve.Command(settings, build),
		seed.Command(settings),
		config.Command(settings),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		loaded, err := conf.Load(configFile)
		if err != nil {
			return err
		}
		*settings = *loaded
		return initialize(settings, build)
	}

	return rootCmd
}

// initialize sets up logging and error telemetry once settings are loaded.
func initialize(settings *conf.Settings, build *buildinfo.Context) error {
	if settings.Debug {
		settings.Logging.DefaultLevel = "debug"
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = "debug"
		}
	}

	central, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(central)

	if settings.Sentry.Enabled {
		errors.SetPrivacyScrubber(privacy.ScrubMessage)
		if err := errors.InitSentry(settings.Sentry.DSN, settings.Sentry.Environment, build.Version()); err != nil {
			central.Module("main").Warn("error telemetry disabled", logger.Error(err))
		}
	}

	if file := conf.ConfigFileUsed(); file != "" {
		central.Module("main").Debug("configuration loaded", logger.String("file", file))
	}
	return nil
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, configFile *string) error {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(configFile, "config", "c", "", "Path to the configuration file")
	flags.BoolP("debug", "d", false, "Enable debug output")
	flags.String("dbtype", "", "Database type (sqlite or mysql)")
	flags.String("dbpath", "", "Path to the SQLite database file")

	bindings := map[string]string{
		"debug":                "debug",
		"database.type":        "dbtype",
		"database.sqlite.path": "dbpath",
	}
	for key, flag := range bindings {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", flag, err)
		}
	}

	return nil
}
