// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-walletcore.
//
// go-walletcore is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package config loads walletctl configuration from YAML with environment
// variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeremyhahn/go-walletcore/pkg/adapters/kdf"
	"github.com/jeremyhahn/go-walletcore/pkg/adapters/logger"
	"github.com/jeremyhahn/go-walletcore/pkg/device"
	"github.com/jeremyhahn/go-walletcore/pkg/migration"
	"github.com/jeremyhahn/go-walletcore/pkg/ratelimit"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, for example
// WALLET_LOGGING_LEVEL or WALLET_EXCHANGE_BASE_URL.
const EnvPrefix = "WALLET"

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config represents the complete walletctl configuration
type Config struct {
	Logging   LoggingConfig   `yaml:"logging"`
	Vault     VaultConfig     `yaml:"vault"`
	KDF       KDFConfig       `yaml:"kdf"`
	Device    DeviceConfig    `yaml:"device"`
	Migration MigrationConfig `yaml:"migration"`
	Exchange  ExchangeConfig  `yaml:"exchange"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// VaultConfig locates the canonical vault file
type VaultConfig struct {
	Path string `yaml:"path"`
}

// KDFConfig is the derivation template for newly written vaults. Zero
// fields keep the algorithm's recommended value.
type KDFConfig struct {
	Algorithm  string `yaml:"algorithm"`
	Iterations int    `yaml:"iterations"`
	MemoryKiB  uint32 `yaml:"memory_kib" split_words:"true"`
	Threads    uint8  `yaml:"threads"`
	BlockSize  int    `yaml:"block_size" split_words:"true"`
	KeyLength  int    `yaml:"key_length" split_words:"true"`
	Hash       string `yaml:"hash"`
}

// DeviceConfig bounds discovery, handshakes and signing
type DeviceConfig struct {
	DiscoveryTimeout time.Duration `yaml:"discovery_timeout" split_words:"true"`
	PollInterval     time.Duration `yaml:"poll_interval" split_words:"true"`
	ProbeTimeout     time.Duration `yaml:"probe_timeout" split_words:"true"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout" split_words:"true"`
	SigningTimeout   time.Duration `yaml:"signing_timeout" split_words:"true"`
}

// MigrationConfig controls extension imports
type MigrationConfig struct {
	MaxAttempts     int           `yaml:"max_attempts" split_words:"true"`
	AttemptInterval time.Duration `yaml:"attempt_interval" split_words:"true"`
	ReplaceExisting bool          `yaml:"replace_existing" split_words:"true"`
}

// ExchangeConfig configures the exchange link client
type ExchangeConfig struct {
	BaseURL   string           `yaml:"base_url" split_words:"true"`
	Timeout   time.Duration    `yaml:"timeout"`
	UserAgent string           `yaml:"user_agent" split_words:"true"`
	RateLimit ratelimit.Config `yaml:"ratelimit" split_words:"true"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Path    string `yaml:"path"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Vault: VaultConfig{
			Path: defaultVaultPath(),
		},
		KDF: KDFConfig{
			Algorithm: string(kdf.AlgorithmArgon2id),
		},
		Device: DeviceConfig{
			DiscoveryTimeout: device.DefaultDiscoveryTimeout,
			PollInterval:     device.DefaultPollInterval,
			ProbeTimeout:     device.DefaultProbeTimeout,
			HandshakeTimeout: device.DefaultHandshakeTimeout,
			SigningTimeout:   device.DefaultSigningTimeout,
		},
		Migration: MigrationConfig{
			MaxAttempts:     migration.DefaultMaxAttempts,
			AttemptInterval: migration.DefaultAttemptInterval,
		},
		Exchange: ExchangeConfig{
			RateLimit: ratelimit.Config{
				Enabled:           true,
				RequestsPerMinute: 6,
				Burst:             2,
			},
		},
		Metrics: MetricsConfig{
			Address: "127.0.0.1:9090",
			Path:    "/metrics",
		},
	}
}

func defaultVaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".walletcore", "vault.json")
	}
	return filepath.Join(home, ".walletcore", "vault.json")
}

// Load reads configuration from a YAML file over Default and applies
// environment variable overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		// #nosec G304 - Config file path is provided by the user
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if _, err := logger.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: log level %q", ErrInvalidConfig, c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("%w: log format %q (must be json or text)", ErrInvalidConfig, c.Logging.Format)
	}

	if c.Vault.Path == "" {
		return fmt.Errorf("%w: vault path must be specified", ErrInvalidConfig)
	}

	if err := c.validateKDF(); err != nil {
		return err
	}

	durations := map[string]time.Duration{
		"device.discovery_timeout": c.Device.DiscoveryTimeout,
		"device.poll_interval":     c.Device.PollInterval,
		"device.probe_timeout":     c.Device.ProbeTimeout,
		"device.handshake_timeout": c.Device.HandshakeTimeout,
		"device.signing_timeout":   c.Device.SigningTimeout,
	}
	for name, d := range durations {
		if d < 0 {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidConfig, name)
		}
	}

	if c.Migration.MaxAttempts < 0 {
		return fmt.Errorf("%w: migration.max_attempts must not be negative", ErrInvalidConfig)
	}
	if c.Migration.AttemptInterval < 0 {
		return fmt.Errorf("%w: migration.attempt_interval must not be negative", ErrInvalidConfig)
	}

	if c.Exchange.RateLimit.Enabled && c.Exchange.RateLimit.RequestsPerMinute <= 0 {
		return fmt.Errorf("%w: exchange.ratelimit.requests_per_minute must be positive", ErrInvalidConfig)
	}

	if c.Metrics.Enabled {
		if c.Metrics.Address == "" {
			return fmt.Errorf("%w: metrics address is required when metrics are enabled", ErrInvalidConfig)
		}
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			return fmt.Errorf("%w: metrics path %q must start with /", ErrInvalidConfig, c.Metrics.Path)
		}
	}
	return nil
}

func (c *Config) validateKDF() error {
	params := c.KDF.Params()
	if params == nil {
		return fmt.Errorf("%w: kdf algorithm %q", ErrInvalidConfig, c.KDF.Algorithm)
	}
	adapter, err := kdf.AdapterFor(params.Algorithm)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	probe := params.Clone()
	probe.Salt = make([]byte, kdf.DefaultSaltLength)
	if err := adapter.ValidateParams(probe, kdf.StrictPolicy); err != nil {
		return fmt.Errorf("%w: kdf: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Params returns the KDF template, or nil for an unknown algorithm.
func (k KDFConfig) Params() *kdf.Params {
	params := kdf.DefaultParams(parseAlgorithm(k.Algorithm))
	if params == nil {
		return nil
	}
	if k.Iterations > 0 {
		params.Iterations = k.Iterations
	}
	if k.MemoryKiB > 0 {
		params.Memory = k.MemoryKiB
	}
	if k.Threads > 0 {
		params.Threads = k.Threads
	}
	if k.BlockSize > 0 {
		params.BlockSize = k.BlockSize
	}
	if k.KeyLength > 0 {
		params.KeyLength = k.KeyLength
	}
	if k.Hash != "" {
		params.Hash = k.Hash
	}
	return params
}

func parseAlgorithm(name string) kdf.KDFAlgorithm {
	for _, a := range []kdf.KDFAlgorithm{
		kdf.AlgorithmArgon2id, kdf.AlgorithmArgon2i, kdf.AlgorithmScrypt, kdf.AlgorithmPBKDF2,
	} {
		if strings.EqualFold(name, string(a)) {
			return a
		}
	}
	return kdf.KDFAlgorithm(name)
}

// ManagerConfig converts the device section for device.NewManager.
func (d DeviceConfig) ManagerConfig(log logger.Logger) *device.Config {
	return &device.Config{
		DiscoveryTimeout: d.DiscoveryTimeout,
		PollInterval:     d.PollInterval,
		ProbeTimeout:     d.ProbeTimeout,
		HandshakeTimeout: d.HandshakeTimeout,
		SigningTimeout:   d.SigningTimeout,
		Logger:           log,
	}
}
