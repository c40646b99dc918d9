// Copyright 2026 The Canlink Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "1s" or "500ms".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the master configuration for canlink.
type Config struct {
	// Bridge configures the CAN-to-TCP bridge daemon.
	Bridge BridgeConfig `yaml:"bridge"`

	// Collector configures the receiving collector daemon.
	Collector CollectorConfig `yaml:"collector"`
}

// BridgeConfig configures the bridge daemon. All values are fixed for
// the lifetime of the process.
type BridgeConfig struct {
	// Server is the collector endpoint in "host:port" form. The
	// bridge maintains exactly one outbound connection to it.
	Server string `yaml:"server"`

	// Interface is the CAN network interface name (e.g. "can0").
	Interface string `yaml:"interface"`

	// Bitrate is the CAN bus bit rate in bits per second (e.g.
	// 500000). Used when bringing the link up; ignored if the link is
	// already configured.
	Bitrate int `yaml:"bitrate"`

	// ReceiveTimeout bounds each bus read. A timeout is a normal idle
	// outcome, not an error. Default: 1s.
	ReceiveTimeout Duration `yaml:"receive_timeout"`

	// ReconnectMin is the floor of the reconnect backoff. Default: 1s.
	ReconnectMin Duration `yaml:"reconnect_min"`

	// ReconnectMax is the ceiling of the reconnect backoff.
	// Default: 30s.
	ReconnectMax Duration `yaml:"reconnect_max"`
}

// CollectorConfig configures the collector daemon.
type CollectorConfig struct {
	// Listen is the TCP address to accept bridge connections on
	// (e.g. ":5000").
	Listen string `yaml:"listen"`

	// DatabasePath is the SQLite file for the frame store. The parent
	// directory must exist.
	DatabasePath string `yaml:"database_path"`

	// JournalPath, if non-empty, enables the zstd-compressed CBOR
	// frame journal at this path.
	JournalPath string `yaml:"journal_path"`

	// BatchInterval is how often buffered frames are flushed to the
	// store. Default: 1s.
	BatchInterval Duration `yaml:"batch_interval"`
}

// Default returns the default configuration. These defaults ensure all
// fields have sensible zero-values; the config file is still the
// source of truth for the endpoint and bus parameters.
func Default() *Config {
	return &Config{
		Bridge: BridgeConfig{
			Interface:      "can0",
			Bitrate:        500000,
			ReceiveTimeout: Duration(1 * time.Second),
			ReconnectMin:   Duration(1 * time.Second),
			ReconnectMax:   Duration(30 * time.Second),
		},
		Collector: CollectorConfig{
			Listen:        ":5000",
			BatchInterval: Duration(1 * time.Second),
		},
	}
}

// Load loads configuration from the CANLINK_CONFIG environment
// variable. There are no fallbacks — if CANLINK_CONFIG is not set,
// this fails.
func Load() (*Config, error) {
	configPath := os.Getenv("CANLINK_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("CANLINK_CONFIG environment variable not set; " +
			"set it to the path of your canlink.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path. The config
// file is the single source of truth; environment variables do not
// override config values.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// ValidateBridge checks the fields the bridge daemon requires.
func (c *Config) ValidateBridge() error {
	b := c.Bridge
	if b.Server == "" {
		return fmt.Errorf("config: bridge.server is required")
	}
	if _, _, err := net.SplitHostPort(b.Server); err != nil {
		return fmt.Errorf("config: bridge.server %q is not host:port: %w", b.Server, err)
	}
	if b.Interface == "" {
		return fmt.Errorf("config: bridge.interface is required")
	}
	if b.Bitrate <= 0 {
		return fmt.Errorf("config: bridge.bitrate must be positive, got %d", b.Bitrate)
	}
	if b.ReceiveTimeout <= 0 {
		return fmt.Errorf("config: bridge.receive_timeout must be positive")
	}
	if b.ReconnectMin <= 0 || b.ReconnectMax < b.ReconnectMin {
		return fmt.Errorf("config: reconnect backoff bounds invalid: min=%v max=%v",
			b.ReconnectMin.Std(), b.ReconnectMax.Std())
	}
	return nil
}

// ValidateCollector checks the fields the collector daemon requires.
func (c *Config) ValidateCollector() error {
	col := c.Collector
	if col.Listen == "" {
		return fmt.Errorf("config: collector.listen is required")
	}
	if col.DatabasePath == "" {
		return fmt.Errorf("config: collector.database_path is required")
	}
	if col.BatchInterval <= 0 {
		return fmt.Errorf("config: collector.batch_interval must be positive")
	}
	return nil
}
