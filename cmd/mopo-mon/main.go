// Command mopo-mon follows a controller over its USB console: it
// fetches the identity dictionary, then streams every report as
// structured log lines, optionally polling status and counters.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"mopo/host/mon"
	"mopo/host/serial"
	"mopo/telemetry"
)

func main() {
	var (
		configPath    = flag.String("config", "", "Path to YAML config file (optional)")
		device        = flag.String("device", "", "Serial device path, overrides the config")
		logLevel      = flag.String("log-level", "", "Log level: error, warn, info, debug; overrides the config")
		statusMS      = flag.Int("status-ms", -1, "Status poll interval in ms, 0 disables; overrides the config")
		countersMS    = flag.Int("counters-ms", -1, "Counters poll interval in ms, 0 disables; overrides the config")
		resetCounters = flag.Bool("reset-counters", false, "Reset the controller trip counters after connecting")
	)
	flag.Parse()

	cfg := mon.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = mon.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
	}
	if *device != "" {
		cfg.Serial.Device = *device
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *statusMS >= 0 {
		cfg.Poll.StatusMS = *statusMS
	}
	if *countersMS >= 0 {
		cfg.Poll.CountersMS = *countersMS
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	level, err := parseLevel(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	port, err := serial.Open(&serial.Config{
		Device:      cfg.Serial.Device,
		Baud:        cfg.Serial.Baud,
		ReadTimeout: cfg.ReadTimeout(),
	})
	if err != nil {
		logger.Error("failed to open serial port", "device", cfg.Serial.Device, "error", err)
		os.Exit(1)
	}

	link := telemetry.NewHostLink(port)
	defer link.Close()

	monitor := mon.New(link, logger)

	logger.Info("connecting", "device", cfg.Serial.Device)
	info, err := monitor.Identify()
	if err != nil {
		logger.Error("identify failed", "error", err)
		os.Exit(1)
	}
	logger.Info("connected",
		"version", info.Version,
		"mcu", info.Config["MCU"],
		"commands", len(info.Commands),
		"responses", len(info.Responses))

	if *resetCounters {
		if err := monitor.ResetCounters(); err != nil {
			logger.Error("reset counters failed", "error", err)
			os.Exit(1)
		}
		logger.Info("trip counters reset")
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigc
		cancel()
	}()

	err = monitor.Run(ctx, cfg.StatusInterval(), cfg.CountersInterval())
	switch {
	case errors.Is(err, context.Canceled):
		logger.Info("stopping on signal")
	case err != nil:
		logger.Error("monitor stopped", "error", err)
		os.Exit(1)
	}
}

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "error":
		return slog.LevelError, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	}
	return 0, fmt.Errorf("invalid log level %q (must be error, warn, info, or debug)", level)
}
