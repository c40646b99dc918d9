// Copyright 2026 The Canlink Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/canlink-project/canlink/bridge"
	"github.com/canlink-project/canlink/canbus"
	"github.com/canlink-project/canlink/lib/config"
	"github.com/canlink-project/canlink/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		demo        bool
		linkUp      bool
		verbose     bool
		showVersion bool
	)
	flag.StringVar(&configPath, "config", "", "path to canlink.yaml (overrides CANLINK_CONFIG)")
	flag.BoolVar(&demo, "demo", false, "generate synthetic traffic instead of opening a CAN interface")
	flag.BoolVar(&linkUp, "link-up", false, "bring the CAN interface up before connecting (requires CAP_NET_ADMIN)")
	flag.BoolVar(&verbose, "verbose", false, "enable debug logging (per-frame events)")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("canlink-bridge %s\n", version.Full())
		return nil
	}

	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.ValidateBridge(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	source, linkReady, err := openSource(cfg, demo, linkUp, logger)
	if err != nil {
		return err
	}
	defer source.Close()

	if verbose {
		source = canbus.NewLogged(source, logger, slog.LevelDebug)
	}

	conn := bridge.NewConn(cfg.Bridge.Server, nil, logger)
	b, err := bridge.New(bridge.Config{
		Source:         source,
		Conn:           conn,
		ReceiveTimeout: cfg.Bridge.ReceiveTimeout.Std(),
		BackoffMin:     cfg.Bridge.ReconnectMin.Std(),
		BackoffMax:     cfg.Bridge.ReconnectMax.Std(),
		LinkReady:      linkReady,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	logger.Info("bridge running",
		"server", cfg.Bridge.Server,
		"interface", cfg.Bridge.Interface,
		"demo", demo,
	)

	runErr := b.Run(ctx)

	stats := b.Stats()
	logger.Info("bridge stopped",
		"forwarded", stats.Forwarded,
		"dropped", stats.Dropped,
		"lost", stats.Lost,
		"bus_errors", stats.BusErrors,
		"connects", stats.Connects,
	)
	return runErr
}

// loadConfig prefers the --config flag, then CANLINK_CONFIG.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// openSource constructs the frame source: the configured SocketCAN
// interface, or a synthetic generator in demo mode. The returned
// channel, when non-nil, closes once link bring-up has finished; the
// bridge holds off dialing until then.
func openSource(cfg *config.Config, demo, linkUp bool, logger *slog.Logger) (canbus.Source, <-chan struct{}, error) {
	if demo {
		logger.Info("demo mode: synthetic frame source")
		return canbus.NewSynthetic(nil, 100*time.Millisecond, nil), nil, nil
	}

	socket, err := canbus.OpenSocketCAN(cfg.Bridge.Interface)
	if err != nil {
		return nil, nil, fmt.Errorf("opening CAN interface %s: %w", cfg.Bridge.Interface, err)
	}

	if !linkUp {
		return socket, nil, nil
	}

	iface, err := canbus.NewInterface(cfg.Bridge.Interface)
	if err != nil {
		socket.Close()
		return nil, nil, fmt.Errorf("resolving CAN interface %s: %w", cfg.Bridge.Interface, err)
	}

	linkReady := make(chan struct{})
	go func() {
		defer close(linkReady)
		if err := iface.Up(); err != nil {
			// Bring-up failure is not fatal: the link may already be
			// up, or an operator can raise it out-of-band. The bridge
			// proceeds and lets receive timeouts tell the story.
			logger.Warn("link bring-up failed",
				"interface", cfg.Bridge.Interface,
				"error", err,
			)
			return
		}
		logger.Info("link up", "interface", cfg.Bridge.Interface)
	}()
	return socket, linkReady, nil
}
