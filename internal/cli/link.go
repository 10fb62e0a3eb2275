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
	"os"

	"github.com/spf13/cobra"
)

// apiKeyEnv supplies the API key when --api-key is not given, keeping it out
// of shell history.
const apiKeyEnv = "WALLET_EXCHANGE_API_KEY"

func newLinkCmd(cfg *Config) *cobra.Command {
	var apiKey string
	cmd := &cobra.Command{
		Use:   "link --api-key <key>",
		Short: "Link an exchange account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if apiKey == "" {
				apiKey = os.Getenv(apiKeyEnv)
			}
			return withApp(cmd, cfg, nil, func(a *app, printer *Printer) error {
				if err := a.engine.LinkExchangeAccountResult(cmd.Context(), apiKey); err != nil {
					return err
				}
				return printer.PrintSuccess("Exchange account linked")
			})
		},
	}
	cmd.Flags().StringVar(&apiKey, "api-key", "", "exchange API key (or "+apiKeyEnv+")")
	return cmd
}
