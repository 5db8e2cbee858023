// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/mitchellh/cli"

	"github.com/opentofu/mapsync/internal/command"
	"github.com/opentofu/mapsync/internal/logging"
	"github.com/opentofu/mapsync/internal/tracing"
	"github.com/opentofu/mapsync/version"
)

// envTmpLogPath names a file that receives a copy of the log.
const envTmpLogPath = "MAPSYNC_TEMP_LOG_PATH"

// Ui is the cli.Ui used for communicating to the outside world.
var Ui cli.Ui

func init() {
	Ui = command.NewBasicUI()
}

func main() {
	os.Exit(realMain())
}

func realMain() int {
	defer logging.PanicHandler()

	ctx, err := tracing.OpenTelemetryInit(context.Background())
	if err != nil {
		// Only possible when telemetry was explicitly requested.
		Ui.Error(fmt.Sprintf("Could not initialize telemetry: %s", err))
		Ui.Error(fmt.Sprintf("Unset environment variable %s if you don't intend to collect telemetry from mapsync.", tracing.OTELExporterEnvVar))
		return 1
	}
	defer tracing.ForceFlush(5 * time.Second)

	// At minimum, we emit a span covering the entire command execution.
	ctx, span := tracing.Tracer().Start(ctx, "mapsync")
	defer span.End()

	if tmpLogPath := os.Getenv(envTmpLogPath); tmpLogPath != "" {
		f, err := os.OpenFile(tmpLogPath, os.O_RDWR|os.O_APPEND, 0666)
		if err == nil {
			defer f.Close()

			log.Printf("[DEBUG] Adding temp file log sink: %s", f.Name())
			logging.RegisterSink(f)
		} else {
			log.Printf("[ERROR] Could not open temp log file: %v", err)
		}
	}

	log.Printf("[INFO] mapsync version: %s", version.String())
	if logging.IsDebugOrHigher() {
		for _, depMod := range version.InterestingDependencies() {
			log.Printf("[DEBUG] using %s %s", depMod.Path, depMod.Version)
		}
	}
	log.Printf("[INFO] Go runtime version: %s", runtime.Version())
	log.Printf("[INFO] CLI args: %#v", os.Args)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	meta := command.Meta{Ui: Ui, ShutdownCtx: ctx}
	args := os.Args[1:]

	// We shortcut "--version" and "-v" to just show the version
	for _, arg := range args {
		if arg == "-v" || arg == "-version" || arg == "--version" {
			args = append([]string{"version"}, args...)
			break
		}
	}

	cliRunner := &cli.CLI{
		Name:       filepath.Base(os.Args[0]),
		Args:       args,
		Commands:   command.Commands(meta),
		HelpFunc:   command.HelpFunc,
		HelpWriter: os.Stdout,
	}
	exitCode, err := cliRunner.Run()
	if err != nil {
		Ui.Error(fmt.Sprintf("Error executing CLI: %s", err.Error()))
		return 1
	}
	return exitCode
}
