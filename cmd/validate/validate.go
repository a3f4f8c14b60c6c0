// Package validate provides the validate command for roadguard
package validate

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/esafety/roadguard/internal/app"
	"github.com/esafety/roadguard/internal/conf"
	"github.com/esafety/roadguard/internal/logger"
	"github.com/esafety/roadguard/internal/validation"
)

// Command creates the command that runs one validation and prints the result.
func Command(settings *conf.Settings) *cobra.Command {
	var apply bool

	cmd := &cobra.Command{
		Use:   "validate <incident-id>",
		Short: "Validate one incident against RFID, CCTV, sensor and AI evidence",
		Long: `Validate correlates the incident with nearby RFID passages, linked CCTV feeds,
anomalous sensor readings and the latest AI verification, stores one validation
record per source and prints the fused result as JSON.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil || id == 0 {
				return fmt.Errorf("invalid incident id %q", args[0])
			}
			return run(cmd, settings, uint(id), apply)
		},
	}

	cmd.Flags().BoolVar(&apply, "apply", false, "Write the verdict back to the incident")

	return cmd
}

func run(cmd *cobra.Command, settings *conf.Settings, id uint, apply bool) error {
	log := logger.Global().Module("validate")

	store, err := app.OpenStore(settings, log, nil)
	if err != nil {
		return err
	}
	defer app.CloseStore(store, log)

	service, err := app.NewValidationService(settings, store, log, nil)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var result *validation.Result
	if apply {
		result, err = service.ValidateAndApply(ctx, id)
	} else {
		result, err = service.Validate(ctx, id)
	}
	if result == nil {
		return err
	}

	// A failed write-back still prints the result before reporting the error
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(result); encErr != nil {
		return encErr
	}
	return err
}
