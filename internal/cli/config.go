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

package cli

import (
	"io"

	"github.com/jeremyhahn/go-walletcore/internal/config"
)

// Config holds global CLI configuration
type Config struct {
	// ConfigFile is the path to the configuration file. Empty uses defaults
	// plus WALLET_* environment overrides.
	ConfigFile string

	// OutputFormat controls output formatting (json, text, table)
	OutputFormat string

	// Verbose enables debug logging
	Verbose bool

	// Emulator attaches one emulated device of every kind instead of
	// enumerating real hardware
	Emulator bool

	// In overrides the passphrase source. When nil, stdin is used and
	// read without echo if it is a terminal.
	In io.Reader
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	return &Config{
		OutputFormat: string(OutputFormatText),
	}
}

// load reads the wallet configuration and applies CLI overrides.
func (c *Config) load() (*config.Config, error) {
	cfg, err := config.Load(c.ConfigFile)
	if err != nil {
		return nil, err
	}
	if c.Verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}
