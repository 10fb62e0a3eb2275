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

// Package cli implements walletctl, a command-line front end for the wallet
// engine.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// NewRootCommand builds the walletctl command tree around cfg.
func NewRootCommand(cfg *Config) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "walletctl",
		Short: "go-walletcore CLI - hardware wallet and vault management",
		Long: `walletctl drives the wallet engine from the command line: it pairs
hardware signing devices, requests signatures, imports vaults exported by
the legacy browser extension and links exchange accounts.

Supported devices:
  - LedgerS, LedgerX
  - TrezorOne, TrezorT`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringVar(&cfg.ConfigFile, "config", cfg.ConfigFile,
		"config file (defaults plus WALLET_* environment overrides when empty)")
	rootCmd.PersistentFlags().StringVarP(&cfg.OutputFormat, "output", "o", cfg.OutputFormat,
		"output format (text, json, table)")
	rootCmd.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose,
		"verbose output")
	rootCmd.PersistentFlags().BoolVar(&cfg.Emulator, "emulator", cfg.Emulator,
		"use emulated devices instead of real hardware")

	rootCmd.AddCommand(newVersionCmd(cfg))
	rootCmd.AddCommand(newDeviceCmd(cfg))
	rootCmd.AddCommand(newImportCmd(cfg))
	rootCmd.AddCommand(newLinkCmd(cfg))
	rootCmd.AddCommand(newStatusCmd(cfg))
	return rootCmd
}

// Execute runs walletctl until it finishes or receives SIGINT/SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := NewConfig()
	rootCmd := NewRootCommand(cfg)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		handleError(cfg, os.Stderr, err)
		return err
	}
	return nil
}

// handleError prints err in the selected output format.
func handleError(cfg *Config, w io.Writer, err error) {
	printer := NewPrinter(cfg.OutputFormat, w)
	if printErr := printer.PrintError(err); printErr != nil {
		fmt.Fprintf(w, "Error: %v\n", err)
	}
}

// withApp builds the engine for one command and closes it afterwards.
func withApp(cmd *cobra.Command, cfg *Config, imp *importOptions, fn func(*app, *Printer) error) (err error) {
	a, err := newApp(cfg, cmd.ErrOrStderr(), imp)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return fn(a, NewPrinter(cfg.OutputFormat, cmd.OutOrStdout()))
}
