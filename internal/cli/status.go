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
	"errors"
	"time"

	"github.com/jeremyhahn/go-walletcore/pkg/health"
	"github.com/spf13/cobra"
)

// ErrUnhealthy is returned by status when any component check fails.
var ErrUnhealthy = errors.New("cli: wallet is unhealthy")

func newStatusCmd(cfg *Config) *cobra.Command {
	var deviceWindow time.Duration
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check the vault, exchange and connected devices",
		Long: `Report the state of each wallet component. A missing vault, an
unconfigured exchange or an unplugged device is reported as degraded;
an unreadable vault or a failing transport is unhealthy and makes the
command exit non-zero.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, cfg, nil, func(a *app, printer *Printer) error {
				checker, err := a.checker(deviceWindow)
				if err != nil {
					return err
				}
				results := checker.Run(cmd.Context())
				if err := printer.PrintHealth(results); err != nil {
					return err
				}
				if health.AggregateStatus(results) == health.StatusUnhealthy {
					return ErrUnhealthy
				}
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&deviceWindow, "device-window", time.Second,
		"how long to look for each device kind")
	return cmd
}
