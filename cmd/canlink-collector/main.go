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

	"github.com/canlink-project/canlink/collector"
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
		verbose     bool
		showVersion bool
	)
	flag.StringVar(&configPath, "config", "", "path to canlink.yaml (overrides CANLINK_CONFIG)")
	flag.BoolVar(&verbose, "verbose", false, "enable debug logging (per-connection events)")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("canlink-collector %s\n", version.Full())
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
	if err := cfg.ValidateCollector(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := collector.OpenStore(collector.StoreConfig{
		Path:   cfg.Collector.DatabasePath,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	var journal *collector.Journal
	if cfg.Collector.JournalPath != "" {
		journal, err = collector.OpenJournal(cfg.Collector.JournalPath, logger)
		if err != nil {
			return err
		}
		defer journal.Close()
	}

	server, err := collector.New(collector.Config{
		Listen:        cfg.Collector.Listen,
		Store:         store,
		Journal:       journal,
		BatchInterval: cfg.Collector.BatchInterval.Std(),
		Logger:        logger,
	})
	if err != nil {
		return err
	}
	if err := server.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("shutting down")
	server.Stop()

	stats := server.Stats()
	logger.Info("collector stopped",
		"received", stats.Received,
		"stored", stats.Stored,
		"dropped_connections", stats.Dropped,
	)
	return nil
}

// loadConfig prefers the --config flag, then CANLINK_CONFIG.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}
