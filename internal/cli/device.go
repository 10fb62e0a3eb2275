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
	"encoding/hex"
	"fmt"

	"github.com/jeremyhahn/go-walletcore/pkg/adapters/logger"
	"github.com/spf13/cobra"
)

func newDeviceCmd(cfg *Config) *cobra.Command {
	deviceCmd := &cobra.Command{
		Use:   "device",
		Short: "Hardware signing device operations",
	}

	var initKind string
	initCmd := &cobra.Command{
		Use:   "init --kind <kind>",
		Short: "Discover a device and complete the handshake",
		Long: `Discover a connected device of the given kind within the discovery
window, authenticate it and report its capabilities.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, cfg, nil, func(a *app, printer *Printer) error {
				s, err := a.engine.InitializeHardwareDeviceResult(cmd.Context(), initKind)
				if err != nil {
					return err
				}
				return printer.PrintSession(s)
			})
		},
	}
	initCmd.Flags().StringVar(&initKind, "kind", "", "device kind (LedgerS, LedgerX, TrezorOne, TrezorT)")
	_ = initCmd.MarkFlagRequired("kind")

	var signKind, digestHex string
	signCmd := &cobra.Command{
		Use:   "sign --kind <kind> --digest <hex>",
		Short: "Ask a device to sign a 32-byte digest",
		Long: `Pair with a device of the given kind and request a signature over a
hex-encoded 32-byte digest. The user must approve on the device.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			digest, err := hex.DecodeString(digestHex)
			if err != nil {
				return fmt.Errorf("invalid digest: %w", err)
			}
			return withApp(cmd, cfg, nil, func(a *app, printer *Printer) error {
				s, err := a.engine.InitializeHardwareDeviceResult(cmd.Context(), signKind)
				if err != nil {
					return err
				}
				a.logger.Debug("requesting signature",
					logger.String("session_id", s.ID),
					logger.String("kind", s.Kind().String()))

				sig, err := a.engine.RequestSignature(cmd.Context(), digest)
				if err != nil {
					return err
				}
				return printer.PrintSignature(sig)
			})
		},
	}
	signCmd.Flags().StringVar(&signKind, "kind", "", "device kind (LedgerS, LedgerX, TrezorOne, TrezorT)")
	signCmd.Flags().StringVar(&digestHex, "digest", "", "hex-encoded 32-byte digest")
	_ = signCmd.MarkFlagRequired("kind")
	_ = signCmd.MarkFlagRequired("digest")

	deviceCmd.AddCommand(initCmd, signCmd)
	return deviceCmd
}
