// Command rotorbridge runs the host-side control-plane bridge to a
// multirotor flight board: serial link management, sensor calibration and
// filtering, rotor command dispatch, and telemetry logging. Its flag
// declaration and signal-driven shutdown are grounded on
// cmd/valkyrie/main.go's context-with-cancellation lifecycle, trimmed to
// what this bridge actually needs: one config file and one log target,
// no HTTP API and no feature flags for subsystems this bridge doesn't have.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/rotorbridge/rotorbridge/internal/config"
	"github.com/rotorbridge/rotorbridge/internal/supervisor"
	"github.com/rotorbridge/rotorbridge/pkg/utils"
)

var (
	configFile = flag.String("config", "", "path to a YAML configuration file (optional, defaults applied otherwise)")
	logLevel   = flag.String("log-level", "", "override the configured log level (debug|info|warn|error)")
	logOutput  = flag.String("log-output", "stdout", "process log destination: \"stdout\" or a file path")
	logPath    = flag.String("log-path", "", "override the configured telemetry log output path")
	noStart    = flag.Bool("no-start", false, "connect and run the comm/main tasks but skip the rotor startup sequence")
)

func main() {
	flag.Parse()

	if *logLevel != "" {
		utils.SetLogLevel(*logLevel)
	}

	cfg := config.Default()
	if *configFile != "" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			utils.Logger.WithError(err).Fatal("failed to load configuration")
		}
		cfg = loaded
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *logPath != "" {
		cfg.LogPath = *logPath
	}

	log := utils.NewLogger(cfg.LogLevel, *logOutput)
	entry := logrus.NewEntry(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	sup := supervisor.New(cfg, entry)

	entry.Info("connecting to links")
	if err := sup.Connect(); err != nil {
		log.WithError(err).Fatal("connect failed")
	}
	defer sup.Disconnect()

	sup.RefreshFilterFromCutoffs()

	if cfg.LogPath != "" {
		if err := sup.StartLog(cfg.LogPath, cfg.LogDecimation); err != nil {
			log.WithError(err).Fatal("failed to open telemetry log")
		}
		defer sup.StopLog()
	}

	runCtx, runCancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		sup.Run(runCtx)
		close(done)
	}()

	if !*noStart {
		entry.Info("running rotor startup sequence")
		if err := sup.StartRotors(ctx); err != nil {
			log.WithError(err).Error("startup sequence failed, shutting down")
			runCancel()
			<-done
			os.Exit(1)
		}
		entry.Info("rotors up, entering steady-state control")
	}

	select {
	case <-sigCh:
		entry.Info("shutdown signal received")
	case <-done:
		entry.Warn("supervisor tasks exited unexpectedly")
	}

	runCancel()
	<-done
	fmt.Fprintln(os.Stderr, "rotorbridge: shutdown complete")
}
