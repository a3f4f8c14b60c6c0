package main

import (
	"context"
	"fmt"
	"os"

	"github.com/esafety/roadguard/cmd"
	"github.com/esafety/roadguard/internal/buildinfo"
	"github.com/esafety/roadguard/internal/conf"
	"github.com/esafety/roadguard/internal/logger"
)

// Set at build time with -ldflags "-X main.version=... -X main.buildDate=..."
var (
	version   string
	buildDate string
)

func main() {
	settings := &conf.Settings{}
	build := buildinfo.NewContext(version, buildDate)

	rootCmd := cmd.RootCommand(settings, build)
	err := rootCmd.ExecuteContext(context.Background())

	if flushErr := logger.Global().Flush(); flushErr != nil {
		fmt.Fprintf(os.Stderr, "failed to flush logs: %v\n", flushErr)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
